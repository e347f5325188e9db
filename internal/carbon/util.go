package carbon

import "math"

// Round rounds f half away from zero to the given number of fractional digits.
// NaN and infinities are returned unchanged.
func Round(f float64, digits int) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	p := math.Pow(10, float64(digits))
	return math.Round(f*p) / p
}
