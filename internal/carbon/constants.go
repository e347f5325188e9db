// Package carbon estimates energy use and emissions for cloud workloads from
// a fixed instance power-draw table and a region's grid carbon intensity.
package carbon

const (
	// DefaultInstanceType is the tier used when an instance type is not in the
	// power-draw table. It is also the default for launches that omit a type.
	DefaultInstanceType = "t2.micro"

	// DefaultLocalCarbonIntensity is the baseline for a typical mixed grid in gCO2/kWh.
	// Savings compare a target region against this value.
	DefaultLocalCarbonIntensity = 500.0

	// EnergyPrecision is the number of fractional digits kept for displayed kWh.
	EnergyPrecision = 6

	// EmissionsPrecision is the number of fractional digits kept for displayed gCO2.
	EmissionsPrecision = 2

	// wattsPerKilowatt converts watt-hours to kWh.
	wattsPerKilowatt = 1000.0
)
