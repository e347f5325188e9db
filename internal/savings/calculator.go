// Package savings compares the emissions of running a workload on the local
// baseline grid with running it in a catalog region.
package savings

import (
	"context"
	"math"
	"strings"

	"github.com/rshade/carbon-offload/internal/apperr"
	"github.com/rshade/carbon-offload/internal/carbon"
	"github.com/rshade/carbon-offload/internal/regions"
)

// RegionLookup resolves catalog ids of the form "provider:region".
type RegionLookup interface {
	FindByID(ctx context.Context, id string) (regions.CloudRegion, error)
}

// Request asks for a savings breakdown. PowerWatts, when nil, is taken from
// the power table for InstanceType.
type Request struct {
	WorkloadType   string   `json:"workloadType"`
	DurationHours  *float64 `json:"durationHours"`
	PowerWatts     *float64 `json:"powerWatts"`
	InstanceType   string   `json:"instanceType,omitempty"`
	TargetRegionID string   `json:"targetRegionId"`
}

// Result is the savings breakdown for one target region.
type Result struct {
	carbon.Savings
	WorkloadType         string              `json:"workloadType,omitempty"`
	DurationHours        float64             `json:"durationHours"`
	PowerWatts           float64             `json:"powerWatts"`
	LocalCarbonIntensity float64             `json:"localCarbonIntensity"`
	TargetRegion         regions.CloudRegion `json:"targetRegion"`
}

// Calculator computes savings against a fixed local baseline.
type Calculator struct {
	regions  RegionLookup
	baseline float64
}

// NewCalculator creates a Calculator. A negative baseline selects
// carbon.DefaultLocalCarbonIntensity; zero is a valid all-renewable baseline.
func NewCalculator(lookup RegionLookup, baseline float64) *Calculator {
	if baseline < 0 {
		baseline = carbon.DefaultLocalCarbonIntensity
	}
	return &Calculator{regions: lookup, baseline: baseline}
}

// Baseline returns the local carbon intensity used for comparisons.
func (c *Calculator) Baseline() float64 { return c.baseline }

// Calculate validates req, looks up the target region and returns the
// breakdown. SavingsPercentage is nil when the local figure is zero.
func (c *Calculator) Calculate(ctx context.Context, req Request) (Result, error) {
	if req.DurationHours == nil {
		return Result{}, apperr.Validation("durationHours is required")
	}
	hours := *req.DurationHours
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
		return Result{}, apperr.Validation("durationHours must be a non-negative number")
	}

	var power float64
	switch {
	case req.PowerWatts != nil:
		power = *req.PowerWatts
		if math.IsNaN(power) || math.IsInf(power, 0) || power < 0 {
			return Result{}, apperr.Validation("powerWatts must be a non-negative number")
		}
	case req.InstanceType != "":
		power = carbon.PowerWatts(req.InstanceType)
	default:
		return Result{}, apperr.Validation("powerWatts or instanceType is required")
	}

	id := strings.TrimSpace(req.TargetRegionID)
	if id == "" {
		return Result{}, apperr.Validation("targetRegionId is required")
	}
	target, err := c.regions.FindByID(ctx, id)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Savings:              carbon.ComputeSavings(c.baseline, target.CarbonIntensity, power, hours),
		WorkloadType:         req.WorkloadType,
		DurationHours:        hours,
		PowerWatts:           power,
		LocalCarbonIntensity: c.baseline,
		TargetRegion:         target,
	}, nil
}
