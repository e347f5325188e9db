package carbon

// Estimate is the energy and emissions figure for running an instance type for
// a number of hours in a grid of a given carbon intensity.
//
// EnergyKWh and EmissionsGCO2 are unrounded and are what should be persisted.
// The Display fields are rounded for presentation.
type Estimate struct {
	InstanceType    string  `json:"instanceType"`
	PowerWatts      float64 `json:"power"`
	DurationHours   float64 `json:"durationHours"`
	CarbonIntensity float64 `json:"carbonIntensity"`

	EnergyKWh     float64 `json:"-"`
	EmissionsGCO2 float64 `json:"-"`

	DisplayEnergyKWh     float64 `json:"energyKWh"`
	DisplayEmissionsGCO2 float64 `json:"emissionsGCO2"`
}

// Savings compares emissions for the same energy under a local baseline grid
// and a target grid.
type Savings struct {
	EnergyKWh      float64 `json:"energyKWh"`
	LocalEmissions float64 `json:"localEmissions"`
	CloudEmissions float64 `json:"cloudEmissions"`
	SavingsGCO2    float64 `json:"savingsGCO2"`

	// SavingsPercentage is nil when LocalEmissions is zero.
	SavingsPercentage *float64 `json:"savingsPercentage"`
}
