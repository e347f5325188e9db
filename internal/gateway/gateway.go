// Package gateway is the only component allowed to act on external compute
// infrastructure. It launches, terminates, inspects and lists instances that
// carry the management tag, and nothing else.
package gateway

import (
	"context"
	"time"
)

// Instance state names reported by the provider.
const (
	StatePending      = "pending"
	StateRunning      = "running"
	StateShuttingDown = "shutting-down"
	StateTerminated   = "terminated"
	StateStopping     = "stopping"
	StateStopped      = "stopped"
)

// LaunchRequest describes one instance to start.
type LaunchRequest struct {
	Region       string
	InstanceType string
	// Tags are added after the management tags and cannot override them.
	Tags map[string]string
}

// LaunchResult is the provider's answer to a launch.
type LaunchResult struct {
	Provider     string    `json:"provider"`
	ExternalID   string    `json:"instanceId"`
	State        string    `json:"state"`
	LaunchTime   time.Time `json:"launchTime"`
	InstanceType string    `json:"instanceType"`
	Region       string    `json:"region"`
	ImageID      string    `json:"imageId"`
}

// TerminateResult reports the state change caused by a terminate call.
type TerminateResult struct {
	ExternalID    string `json:"instanceId"`
	PreviousState string `json:"previousState"`
	CurrentState  string `json:"currentState"`
}

// InstanceSnapshot is the observed state of one managed instance.
type InstanceSnapshot struct {
	ExternalID   string            `json:"instanceId"`
	State        string            `json:"state"`
	InstanceType string            `json:"instanceType"`
	LaunchTime   time.Time         `json:"launchTime"`
	PublicIP     string            `json:"publicIp,omitempty"`
	PrivateIP    string            `json:"privateIp,omitempty"`
	Region       string            `json:"region"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// ConnectionStatus is the result of a connectivity check.
type ConnectionStatus struct {
	OK       bool   `json:"success"`
	Provider string `json:"provider"`
	Region   string `json:"region,omitempty"`
	Detail   string `json:"message"`
}

// Gateway wraps the external provisioning API. When IsAvailable is false
// every method except TestConnection fails with IntegrationDisabled without
// touching the network. Failures of the provider call are ProvisioningError,
// calls exceeding the configured bound are Timeout.
type Gateway interface {
	Provider() string
	IsAvailable() bool

	// TestConnection never returns an error; failures are reported in the status.
	TestConnection(ctx context.Context) ConnectionStatus

	Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error)

	// Terminate returns NotFound when the provider does not know externalID.
	Terminate(ctx context.Context, externalID, region string) (TerminateResult, error)

	// Status returns NotFound for unknown or unmanaged instances.
	Status(ctx context.Context, externalID, region string) (InstanceSnapshot, error)

	// List returns only instances carrying the management tag.
	List(ctx context.Context, region string) ([]InstanceSnapshot, error)

	SupportedRegions() []string
	SupportedInstanceTypes() []string
	DefaultRegion() string
}

// Recorder observes gateway calls.
type Recorder interface {
	RecordGatewayCall(operation, result string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordGatewayCall(string, string, time.Duration) {}
