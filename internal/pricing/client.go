// Package pricing estimates the monetary cost of running a cloud instance
// from a fixed hourly-rate table.
package pricing

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rshade/carbon-offload/internal/carbon"
)

// CostPrecision is the number of fractional digits kept for cost amounts.
const CostPrecision = 4

// PricingClient provides hourly rates and cost estimates.
type PricingClient interface {
	// Currency returns the currency code (always "USD").
	Currency() string

	// HourlyRate returns the on-demand hourly rate for an instance type.
	// Returns (rate, true) if found, (0, false) otherwise.
	HourlyRate(provider, instanceType string) (decimal.Decimal, bool)

	// EstimateCost returns rate × hours rounded to CostPrecision digits.
	// Unsupported providers cost zero; unknown instance types are priced at
	// the default tier.
	EstimateCost(provider, instanceType string, durationHours float64) float64
}

// Client implements PricingClient with the embedded rate table.
type Client struct {
	provider string
	currency string
	logger   zerolog.Logger

	once sync.Once
	err  error

	rates    map[string]decimal.Decimal
	metadata pricingMetadata
}

// NewClient parses the embedded rate table and returns a ready Client.
func NewClient(logger zerolog.Logger) (*Client, error) {
	c := &Client{
		logger: logger.With().Str("component", "pricing").Logger(),
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

// init parses embedded pricing data exactly once.
func (c *Client) init() error {
	c.once.Do(func() {
		var data rateTable
		if err := json.Unmarshal(rawRatesJSON, &data); err != nil {
			c.err = fmt.Errorf("failed to parse pricing data: %w", err)
			return
		}

		c.provider = data.Provider
		c.currency = data.Currency
		if c.currency == "" {
			c.currency = "USD"
		}
		c.metadata = pricingMetadata{
			Version:         data.Version,
			PublicationDate: data.PublicationDate,
		}

		c.rates = make(map[string]decimal.Decimal, len(data.Rates))
		for instanceType, raw := range data.Rates {
			rate, err := decimal.NewFromString(raw)
			if err != nil || rate.IsNegative() {
				c.logger.Warn().
					Str("instance_type", instanceType).
					Str("rate", raw).
					Msg("skipping invalid hourly rate")
				continue
			}
			c.rates[instanceType] = rate
		}

		if _, ok := c.rates[carbon.DefaultInstanceType]; !ok {
			c.err = fmt.Errorf("pricing data has no rate for default instance type %q", carbon.DefaultInstanceType)
			return
		}

		c.logger.Debug().
			Str("version", c.metadata.Version).
			Str("publication_date", c.metadata.PublicationDate).
			Int("rates", len(c.rates)).
			Msg("pricing data loaded")
	})
	return c.err
}

// Currency returns the currency code of the rate table.
func (c *Client) Currency() string {
	return c.currency
}

// Version returns the rate table version.
func (c *Client) Version() string {
	return c.metadata.Version
}

// HourlyRate returns the hourly rate for instanceType if provider matches the
// rate table's provider.
func (c *Client) HourlyRate(provider, instanceType string) (decimal.Decimal, bool) {
	if provider != c.provider {
		return decimal.Zero, false
	}
	rate, ok := c.rates[instanceType]
	return rate, ok
}

// EstimateCost prices durationHours of instanceType.
func (c *Client) EstimateCost(provider, instanceType string, durationHours float64) float64 {
	if provider != c.provider {
		return 0
	}
	rate, ok := c.rates[instanceType]
	if !ok {
		rate = c.rates[carbon.DefaultInstanceType]
	}
	cost, _ := rate.Mul(decimal.NewFromFloat(durationHours)).Round(CostPrecision).Float64()
	return cost
}

// InstanceTypes returns the priced instance types, sorted.
func (c *Client) InstanceTypes() []string {
	types := make([]string, 0, len(c.rates))
	for t := range c.rates {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
