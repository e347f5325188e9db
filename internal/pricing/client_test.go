package pricing

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient(zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.Equal(t, "USD", client.Currency())
	assert.NotEmpty(t, client.Version())
	assert.Contains(t, client.InstanceTypes(), "t2.micro")
}

func TestClient_HourlyRate(t *testing.T) {
	client, err := NewClient(zerolog.Nop())
	require.NoError(t, err)

	tests := []struct {
		name         string
		provider     string
		instanceType string
		wantFound    bool
		wantRate     string
	}{
		{name: "t3.micro", provider: "aws", instanceType: "t3.micro", wantFound: true, wantRate: "0.0104"},
		{name: "t2.medium", provider: "aws", instanceType: "t2.medium", wantFound: true, wantRate: "0.0464"},
		{name: "unknown type", provider: "aws", instanceType: "t99.mega", wantFound: false},
		{name: "unsupported provider", provider: "gcp", instanceType: "t3.micro", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, found := client.HourlyRate(tt.provider, tt.instanceType)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.wantRate, rate.String())
			}
		})
	}
}

func TestClient_EstimateCost(t *testing.T) {
	client, err := NewClient(zerolog.Nop())
	require.NoError(t, err)

	tests := []struct {
		name         string
		provider     string
		instanceType string
		hours        float64
		want         float64
	}{
		{name: "t2.micro for two hours", provider: "aws", instanceType: "t2.micro", hours: 2, want: 0.0232},
		{name: "t3.small for ten hours", provider: "aws", instanceType: "t3.small", hours: 10, want: 0.208},
		{name: "rounded to four digits", provider: "aws", instanceType: "t3.micro", hours: 1.0 / 3.0, want: 0.0035},
		{name: "unknown type priced at default tier", provider: "aws", instanceType: "x9.odd", hours: 1, want: 0.0116},
		{name: "unsupported provider is free", provider: "azure", instanceType: "t2.micro", hours: 5, want: 0},
		{name: "zero hours", provider: "aws", instanceType: "t2.micro", hours: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, client.EstimateCost(tt.provider, tt.instanceType, tt.hours))
		})
	}
}
