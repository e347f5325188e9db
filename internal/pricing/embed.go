package pricing

import _ "embed"

// On-demand Linux/shared-tenancy hourly rates for the instance types the
// gateway can launch. Rates are strings to keep them exact until parsed.
//
//go:embed data/ec2_ondemand.json
var rawRatesJSON []byte
