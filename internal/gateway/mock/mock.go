// Package mock provides an in-memory gateway.Gateway for tests and for
// running the service without cloud credentials.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rshade/carbon-offload/internal/apperr"
	"github.com/rshade/carbon-offload/internal/gateway"
)

// Gateway is a scriptable fake. Set the *Err fields to make the matching
// call fail; Calls counts invocations per operation.
type Gateway struct {
	mu sync.Mutex

	Available bool
	Region    string
	Now       func() time.Time

	LaunchErr    error
	TerminateErr error
	StatusErr    error
	ListErr      error

	Calls map[string]int

	instances map[string]*gateway.InstanceSnapshot
	seq       int
}

var _ gateway.Gateway = (*Gateway)(nil)

// New returns an available fake defaulting to us-east-1.
func New() *Gateway {
	return &Gateway{
		Available: true,
		Region:    "us-east-1",
		Now:       time.Now,
		Calls:     map[string]int{},
		instances: map[string]*gateway.InstanceSnapshot{},
	}
}

// Disabled returns a fake that behaves like an unconfigured gateway.
func Disabled() *Gateway {
	g := New()
	g.Available = false
	return g
}

func (g *Gateway) Provider() string { return gateway.ProviderAWS }

func (g *Gateway) IsAvailable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Available
}

func (g *Gateway) DefaultRegion() string { return g.Region }

func (g *Gateway) SupportedRegions() []string { return gateway.SupportedRegions() }

func (g *Gateway) SupportedInstanceTypes() []string { return gateway.SupportedInstanceTypes() }

func (g *Gateway) TestConnection(context.Context) gateway.ConnectionStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["test_connection"]++
	if !g.Available {
		return gateway.ConnectionStatus{Provider: gateway.ProviderAWS, Region: g.Region, Detail: "cloud integration is disabled"}
	}
	return gateway.ConnectionStatus{OK: true, Provider: gateway.ProviderAWS, Region: g.Region, Detail: "mock connection successful"}
}

func (g *Gateway) Launch(_ context.Context, req gateway.LaunchRequest) (gateway.LaunchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["launch"]++
	if err := g.precheck(g.LaunchErr); err != nil {
		return gateway.LaunchResult{}, err
	}

	g.seq++
	region := g.region(req.Region)
	id := fmt.Sprintf("i-mock%012d", g.seq)
	launched := g.Now().UTC()
	tags := map[string]string{"ManagedBy": gateway.DefaultManagedByTag}
	for k, v := range req.Tags {
		if _, ok := tags[k]; !ok {
			tags[k] = v
		}
	}
	g.instances[id] = &gateway.InstanceSnapshot{
		ExternalID:   id,
		State:        gateway.StatePending,
		InstanceType: req.InstanceType,
		LaunchTime:   launched,
		Region:       region,
		Tags:         tags,
	}
	return gateway.LaunchResult{
		Provider:     gateway.ProviderAWS,
		ExternalID:   id,
		State:        gateway.StatePending,
		LaunchTime:   launched,
		InstanceType: req.InstanceType,
		Region:       region,
		ImageID:      gateway.ImageForRegion(region),
	}, nil
}

func (g *Gateway) Terminate(_ context.Context, externalID, _ string) (gateway.TerminateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["terminate"]++
	if err := g.precheck(g.TerminateErr); err != nil {
		return gateway.TerminateResult{}, err
	}
	inst, ok := g.managed(externalID)
	if !ok {
		return gateway.TerminateResult{}, apperr.NotFound("instance %s not found", externalID)
	}
	prev := inst.State
	inst.State = gateway.StateShuttingDown
	return gateway.TerminateResult{ExternalID: externalID, PreviousState: prev, CurrentState: inst.State}, nil
}

func (g *Gateway) Status(_ context.Context, externalID, _ string) (gateway.InstanceSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["status"]++
	if err := g.precheck(g.StatusErr); err != nil {
		return gateway.InstanceSnapshot{}, err
	}
	inst, ok := g.managed(externalID)
	if !ok {
		return gateway.InstanceSnapshot{}, apperr.NotFound("instance %s not found", externalID)
	}
	return *inst, nil
}

func (g *Gateway) List(_ context.Context, region string) ([]gateway.InstanceSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["list"]++
	if err := g.precheck(g.ListErr); err != nil {
		return nil, err
	}
	region = g.region(region)
	out := []gateway.InstanceSnapshot{}
	for _, inst := range g.instances {
		if inst.Tags["ManagedBy"] != gateway.DefaultManagedByTag || inst.Region != region || inst.State == gateway.StateShuttingDown || inst.State == gateway.StateTerminated {
			continue
		}
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

// AddUnmanaged registers an instance that was not launched through the
// gateway. It is invisible to Status, Terminate and List.
func (g *Gateway) AddUnmanaged(externalID, region, state string, tags map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instances[externalID] = &gateway.InstanceSnapshot{
		ExternalID: externalID,
		State:      state,
		LaunchTime: g.Now().UTC(),
		Region:     g.region(region),
		Tags:       tags,
	}
}

// StateOf returns the raw state of any registered instance, managed or not.
func (g *Gateway) StateOf(externalID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.instances[externalID]
	if !ok {
		return "", false
	}
	return inst.State, true
}

// SetState forces the observed state of a launched instance.
func (g *Gateway) SetState(externalID, state string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if inst, ok := g.instances[externalID]; ok {
		inst.State = state
	}
}

// CallCount returns how often operation was invoked.
func (g *Gateway) CallCount(operation string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Calls[operation]
}

func (g *Gateway) managed(externalID string) (*gateway.InstanceSnapshot, bool) {
	inst, ok := g.instances[externalID]
	if !ok || inst.Tags["ManagedBy"] != gateway.DefaultManagedByTag {
		return nil, false
	}
	return inst, true
}

func (g *Gateway) precheck(scripted error) error {
	if !g.Available {
		return apperr.Disabled("cloud integration is disabled")
	}
	return scripted
}

func (g *Gateway) region(region string) string {
	if region == "" {
		return g.Region
	}
	return region
}
