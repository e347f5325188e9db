// Package workload owns CloudWorkload records and the lifecycle manager that
// moves them through their state machine.
package workload

import (
	"fmt"
	"math"
	"time"
)

// Status is a workload lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProvisioning Status = "provisioning"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusTerminated   Status = "terminated"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending, StatusProvisioning, StatusRunning,
	StatusCompleted, StatusFailed, StatusTerminated,
}

var transitions = map[Status][]Status{
	StatusPending:      {StatusProvisioning, StatusRunning, StatusFailed},
	StatusProvisioning: {StatusRunning, StatusFailed},
	StatusRunning:      {StatusCompleted, StatusFailed, StatusTerminated},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether s accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTerminated
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Type tags what kind of work a workload represents.
type Type string

const (
	TypeComputation Type = "computation"
	TypeStorage     Type = "storage"
	TypeProcessing  Type = "processing"
	TypeTraining    Type = "training"
	TypeBatch       Type = "batch"
	TypeAnalysis    Type = "analysis"
)

// Types lists the accepted workload types.
var Types = []Type{TypeComputation, TypeStorage, TypeProcessing, TypeTraining, TypeBatch, TypeAnalysis}

// Valid reports whether t is one of Types.
func (t Type) Valid() bool {
	for _, v := range Types {
		if t == v {
			return true
		}
	}
	return false
}

// DefaultSourceLocation is where a workload runs when it is not offloaded.
const DefaultSourceLocation = "local"

// Metadata captures the estimate inputs at creation time so later reads do
// not depend on a catalog that may have been reseeded.
type Metadata struct {
	EnergyKWh           float64           `json:"energyKWh"`
	DurationHours       float64           `json:"durationHours"`
	PowerWatts          float64           `json:"power"`
	CarbonIntensity     float64           `json:"carbonIntensity"`
	RenewablePercentage float64           `json:"renewablePercentage"`
	LaunchTime          *time.Time        `json:"launchTime,omitempty"`
	ImageID             string            `json:"imageId,omitempty"`
	Simulated           bool              `json:"simulated"`
	Labels              map[string]string `json:"labels,omitempty"`
}

// Workload is one CloudWorkload record. It is owned by exactly one user.
type Workload struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	WorkloadType Type   `json:"workloadType"`

	SourceLocation string `json:"sourceLocation"`
	TargetProvider string `json:"targetProvider"`
	TargetRegion   string `json:"targetRegion"`
	InstanceID     string `json:"instanceId,omitempty"`
	InstanceType   string `json:"instanceType,omitempty"`

	EstimatedLocalEmissions float64  `json:"estimatedLocalEmissions"`
	EstimatedCloudEmissions float64  `json:"estimatedCloudEmissions"`
	ActualCloudEmissions    *float64 `json:"actualCloudEmissions,omitempty"`
	Savings                 float64  `json:"carbonSavings"`
	EstimatedCost           float64  `json:"estimatedCost"`
	ActualCost              *float64 `json:"actualCost,omitempty"`

	Status       Status     `json:"status"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Duration     *int64     `json:"duration,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`

	Metadata Metadata `json:"metadata"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecomputeSavings derives Savings from the two emission estimates. It is
// called on every write.
func (w *Workload) RecomputeSavings() {
	w.Savings = w.EstimatedLocalEmissions - w.EstimatedCloudEmissions
}

// Validate checks the record invariants before it is written.
func (w Workload) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("id is required")
	}
	if w.UserID == "" {
		return fmt.Errorf("user is required")
	}
	if !w.WorkloadType.Valid() {
		return fmt.Errorf("unknown workload type %q", w.WorkloadType)
	}
	if !w.Status.Valid() {
		return fmt.Errorf("unknown status %q", w.Status)
	}
	if w.TargetProvider == "" || w.TargetRegion == "" {
		return fmt.Errorf("target provider and region are required")
	}
	if w.Duration != nil && *w.Duration < 0 {
		return fmt.Errorf("duration must be non-negative")
	}
	if w.Status == StatusFailed && w.ErrorMessage == "" {
		return fmt.Errorf("failed workload requires an error message")
	}
	for _, v := range []float64{w.EstimatedLocalEmissions, w.EstimatedCloudEmissions, w.EstimatedCost} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("estimates must be finite numbers")
		}
	}
	return nil
}
