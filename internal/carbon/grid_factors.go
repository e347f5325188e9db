package carbon

// GridIntensity maps AWS region codes to grid carbon intensity in gCO2/kWh.
// It is only consulted when a region is missing from the region catalog.
var GridIntensity = map[string]float64{
	"us-east-1":      379,
	"us-east-2":      411,
	"us-west-1":      322,
	"us-west-2":      322,
	"ca-central-1":   120,
	"eu-west-1":      278.6,
	"eu-west-2":      228,
	"eu-central-1":   338,
	"eu-north-1":     8.8,
	"ap-southeast-1": 408,
	"ap-southeast-2": 790,
	"ap-northeast-1": 506,
	"ap-south-1":     708,
	"sa-east-1":      61.7,
}

// DefaultGridIntensity is the global average used for unlisted regions.
const DefaultGridIntensity = 392.78

// GetGridIntensity returns the grid carbon intensity for region in gCO2/kWh,
// or DefaultGridIntensity when the region is not listed.
func GetGridIntensity(region string) float64 {
	if v, ok := GridIntensity[region]; ok {
		return v
	}
	return DefaultGridIntensity
}
