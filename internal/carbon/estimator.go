package carbon

// CarbonEstimator estimates energy and emissions for an instance workload.
type CarbonEstimator interface {
	// Estimate never fails. Unknown instance types use DefaultInstanceType's
	// power draw; zero or negative hours yield zero or negative figures.
	Estimate(instanceType string, durationHours, carbonIntensity float64) Estimate
}

// Estimator implements CarbonEstimator from the embedded power table.
// It holds no state and is safe for concurrent use.
type Estimator struct{}

// NewEstimator creates a new carbon estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate computes:
//  1. power (W) from the instance power table
//  2. energy (kWh) = power × hours / 1000
//  3. emissions (gCO2) = energy × carbon intensity (gCO2/kWh)
func (e *Estimator) Estimate(instanceType string, durationHours, carbonIntensity float64) Estimate {
	if instanceType == "" {
		instanceType = DefaultInstanceType
	}
	power := PowerWatts(instanceType)
	energy := EnergyKWh(power, durationHours)
	emissions := energy * carbonIntensity

	return Estimate{
		InstanceType:         instanceType,
		PowerWatts:           power,
		DurationHours:        durationHours,
		CarbonIntensity:      carbonIntensity,
		EnergyKWh:            energy,
		EmissionsGCO2:        emissions,
		DisplayEnergyKWh:     Round(energy, EnergyPrecision),
		DisplayEmissionsGCO2: Round(emissions, EmissionsPrecision),
	}
}

// EnergyKWh converts a constant power draw over a duration into kWh.
func EnergyKWh(powerWatts, durationHours float64) float64 {
	return powerWatts * durationHours / wattsPerKilowatt
}

// ComputeSavings compares emissions for the same energy under the local
// baseline intensity and the target intensity. Energy is computed once so
// the only variable between the two figures is carbon intensity.
func ComputeSavings(localIntensity, targetIntensity, powerWatts, durationHours float64) Savings {
	energy := EnergyKWh(powerWatts, durationHours)
	local := energy * localIntensity
	cloud := energy * targetIntensity
	savings := local - cloud

	s := Savings{
		EnergyKWh:      energy,
		LocalEmissions: local,
		CloudEmissions: cloud,
		SavingsGCO2:    savings,
	}
	if local != 0 {
		pct := savings / local * 100
		s.SavingsPercentage = &pct
	}
	return s
}
