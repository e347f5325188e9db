package workload_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/carbon-offload/internal/apperr"
	"github.com/rshade/carbon-offload/internal/gateway"
	"github.com/rshade/carbon-offload/internal/gateway/mock"
	"github.com/rshade/carbon-offload/internal/pricing"
	"github.com/rshade/carbon-offload/internal/regions"
	"github.com/rshade/carbon-offload/internal/store/memory"
	"github.com/rshade/carbon-offload/internal/workload"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type countingRecorder struct {
	workloads map[string]int
	savings   float64
}

func (r *countingRecorder) RecordWorkload(provider, status string) {
	r.workloads[provider+"/"+status]++
}

func (r *countingRecorder) RecordSavings(_ string, grams float64) { r.savings += grams }

type fixture struct {
	mgr   *workload.Manager
	store *memory.Store
	gw    *mock.Gateway
	clock *clock
	rec   *countingRecorder
}

func newFixture(t *testing.T, opts ...func(*workload.Deps)) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	catalog := regions.NewCatalog(st, zerolog.Nop())
	seed, err := regions.DefaultRegions()
	require.NoError(t, err)
	_, err = catalog.Seed(ctx, seed)
	require.NoError(t, err)

	prices, err := pricing.NewClient(zerolog.Nop())
	require.NoError(t, err)

	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	gw := mock.New()
	gw.Now = clk.Now
	rec := &countingRecorder{workloads: map[string]int{}}
	seq := 0

	deps := workload.Deps{
		Repo:                 st,
		Catalog:              catalog,
		Gateway:              gw,
		Pricing:              prices,
		Recorder:             rec,
		LocalCarbonIntensity: 500,
		Now:                  clk.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("wl-%03d", seq)
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	mgr := workload.NewManager(deps, zerolog.Nop())

	return &fixture{mgr: mgr, store: st, gw: gw, clock: clk, rec: rec}
}

func (f *fixture) count(t *testing.T, user string) int {
	t.Helper()
	res, err := f.mgr.ListWorkloads(context.Background(), workload.Filter{UserID: user})
	require.NoError(t, err)
	return res.Stats.TotalWorkloads
}

func TestManager_LaunchStockholm(t *testing.T) {
	f := newFixture(t)

	out, err := f.mgr.Launch(context.Background(), workload.LaunchRequest{
		UserID:        "alice",
		Provider:      "aws",
		Region:        "eu-north-1",
		InstanceType:  "t2.micro",
		DurationHours: 2,
	})
	require.NoError(t, err)

	w := out.Workload
	assert.Equal(t, workload.StatusRunning, w.Status)
	assert.Equal(t, out.Instance.ExternalID, w.InstanceID)
	assert.Equal(t, workload.TypeComputation, w.WorkloadType)
	assert.InDelta(t, 0.01, w.Metadata.EnergyKWh, 1e-12)
	assert.InDelta(t, 0.08, w.EstimatedCloudEmissions, 1e-12)
	assert.InDelta(t, 5.0, w.EstimatedLocalEmissions, 1e-12)
	assert.InDelta(t, 4.92, w.Savings, 1e-12)
	assert.Equal(t, w.EstimatedLocalEmissions-w.EstimatedCloudEmissions, w.Savings)
	assert.Equal(t, 0.0232, w.EstimatedCost)
	assert.Equal(t, 8.0, w.Metadata.CarbonIntensity)
	assert.False(t, w.Metadata.Simulated)
	require.NotNil(t, out.Estimate.SavingsPercentage)
	assert.InDelta(t, 98.4, *out.Estimate.SavingsPercentage, 1e-9)

	stored, err := f.mgr.GetWorkload(context.Background(), "alice", w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.InstanceID, stored.InstanceID)
	assert.Equal(t, 1, f.rec.workloads["aws/running"])
}

func TestManager_LaunchDefaults(t *testing.T) {
	f := newFixture(t)

	out, err := f.mgr.Launch(context.Background(), workload.LaunchRequest{UserID: "alice", Provider: "AWS"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", out.Workload.TargetRegion)
	assert.Equal(t, "t2.micro", out.Workload.InstanceType)
	assert.Equal(t, 1.0, out.Workload.Metadata.DurationHours)
}

func TestManager_LaunchFallsBackToGridTable(t *testing.T) {
	f := newFixture(t)

	out, err := f.mgr.Launch(context.Background(), workload.LaunchRequest{
		UserID: "alice", Provider: "aws", Region: "eu-west-2",
	})
	require.NoError(t, err)
	assert.Equal(t, 228.0, out.Workload.Metadata.CarbonIntensity)
	assert.Equal(t, 0.0, out.Workload.Metadata.RenewablePercentage)
}

func TestManager_LaunchValidation(t *testing.T) {
	tests := []struct {
		name string
		req  workload.LaunchRequest
		kind apperr.Kind
	}{
		{name: "unsupported provider", req: workload.LaunchRequest{UserID: "u", Provider: "gcp"}, kind: apperr.KindValidation},
		{name: "unsupported region", req: workload.LaunchRequest{UserID: "u", Provider: "aws", Region: "mars-1"}, kind: apperr.KindValidation},
		{name: "unsupported instance type", req: workload.LaunchRequest{UserID: "u", Provider: "aws", InstanceType: "p4d.24xlarge"}, kind: apperr.KindValidation},
		{name: "instance type not offered in region", req: workload.LaunchRequest{UserID: "u", Provider: "aws", Region: "eu-north-1", InstanceType: "t3.medium"}, kind: apperr.KindValidation},
		{name: "unknown workload type", req: workload.LaunchRequest{UserID: "u", Provider: "aws", WorkloadType: "mining"}, kind: apperr.KindValidation},
		{name: "negative duration", req: workload.LaunchRequest{UserID: "u", Provider: "aws", DurationHours: -1}, kind: apperr.KindValidation},
		{name: "no user", req: workload.LaunchRequest{Provider: "aws"}, kind: apperr.KindUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.mgr.Launch(context.Background(), tt.req)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Zero(t, f.gw.CallCount("launch"))
		})
	}
}

func TestManager_ZeroLocalIntensityIsKept(t *testing.T) {
	tests := []struct {
		name     string
		local    float64
		expected float64
	}{
		{name: "zero", local: 0, expected: 0},
		{name: "negative selects default", local: -1, expected: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(d *workload.Deps) { d.LocalCarbonIntensity = tt.local })
			assert.Equal(t, tt.expected, f.mgr.LocalCarbonIntensity())
		})
	}

	f := newFixture(t, func(d *workload.Deps) { d.LocalCarbonIntensity = 0 })
	out, err := f.mgr.Launch(context.Background(), workload.LaunchRequest{
		UserID: "alice", Provider: "aws", Region: "eu-north-1", DurationHours: 2,
	})
	require.NoError(t, err)
	assert.Zero(t, out.Workload.EstimatedLocalEmissions)
	assert.Nil(t, out.Estimate.SavingsPercentage)
}

func TestManager_LaunchDisabled(t *testing.T) {
	f := newFixture(t)
	f.gw.Available = false

	_, err := f.mgr.Launch(context.Background(), workload.LaunchRequest{UserID: "alice", Provider: "aws"})
	assert.Equal(t, apperr.KindIntegrationDisabled, apperr.KindOf(err))
	assert.Zero(t, f.gw.CallCount("launch"))
}

func TestManager_LaunchFailureCreatesNoRecord(t *testing.T) {
	f := newFixture(t)
	before := f.count(t, "alice")

	f.gw.LaunchErr = apperr.Provisioning(errors.New("insufficient capacity"), "failed to launch instance")
	_, err := f.mgr.Launch(context.Background(), workload.LaunchRequest{
		UserID: "alice", Provider: "aws", Region: "us-east-1", InstanceType: "t2.micro",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindProvisioning, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "insufficient capacity")

	assert.Equal(t, before, f.count(t, "alice"))
	assert.Empty(t, f.rec.workloads)
}

func TestManager_LaunchIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.mgr.Launch(ctx, workload.LaunchRequest{UserID: "alice", Provider: "aws"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Workload.ID)
}

func TestManager_Terminate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	launched, err := f.mgr.Launch(ctx, workload.LaunchRequest{
		UserID: "alice", Provider: "aws", Region: "eu-north-1", InstanceType: "t2.micro",
	})
	require.NoError(t, err)
	f.gw.SetState(launched.Instance.ExternalID, gateway.StateRunning)
	f.clock.Advance(90 * time.Minute)

	out, err := f.mgr.Terminate(ctx, workload.TerminateRequest{
		UserID:     "alice",
		Provider:   "aws",
		InstanceID: launched.Instance.ExternalID,
		WorkloadID: launched.Workload.ID,
	})
	require.NoError(t, err)
	assert.False(t, out.NoOp)
	assert.Equal(t, gateway.StateRunning, out.Result.PreviousState)
	assert.Equal(t, gateway.StateShuttingDown, out.Result.CurrentState)

	require.NotNil(t, out.Workload)
	w := out.Workload
	assert.Equal(t, workload.StatusCompleted, w.Status)
	require.NotNil(t, w.Duration)
	assert.Equal(t, int64(5400), *w.Duration)
	require.NotNil(t, w.EndTime)
	require.NotNil(t, w.ActualCost)
	assert.Equal(t, 0.0174, *w.ActualCost)
	require.NotNil(t, w.ActualCloudEmissions)
	assert.InDelta(t, 0.06, *w.ActualCloudEmissions, 1e-12)
	assert.Equal(t, 1, f.rec.workloads["aws/completed"])
}

func TestManager_TerminateTwiceIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	launched, err := f.mgr.Launch(ctx, workload.LaunchRequest{UserID: "alice", Provider: "aws"})
	require.NoError(t, err)
	req := workload.TerminateRequest{
		UserID:     "alice",
		Provider:   "aws",
		InstanceID: launched.Instance.ExternalID,
		WorkloadID: launched.Workload.ID,
	}

	_, err = f.mgr.Terminate(ctx, req)
	require.NoError(t, err)
	first, err := f.mgr.GetWorkload(ctx, "alice", launched.Workload.ID)
	require.NoError(t, err)

	again, err := f.mgr.Terminate(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.NoOp)
	assert.Equal(t, 1, f.gw.CallCount("terminate"))

	second, err := f.mgr.GetWorkload(ctx, "alice", launched.Workload.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestManager_TerminateUnknownInstanceIsNoOp(t *testing.T) {
	f := newFixture(t)

	out, err := f.mgr.Terminate(context.Background(), workload.TerminateRequest{
		UserID: "alice", Provider: "aws", InstanceID: "i-gone",
	})
	require.NoError(t, err)
	assert.True(t, out.NoOp)
	assert.Equal(t, gateway.StateTerminated, out.Result.CurrentState)
}

func TestManager_TerminateLeavesUnmanagedInstanceRunning(t *testing.T) {
	f := newFixture(t)
	f.gw.AddUnmanaged("i-prod-db", "us-east-1", gateway.StateRunning, map[string]string{"Name": "production-db"})

	out, err := f.mgr.Terminate(context.Background(), workload.TerminateRequest{
		UserID: "alice", Provider: "aws", InstanceID: "i-prod-db", Region: "us-east-1",
	})
	require.NoError(t, err)
	assert.True(t, out.NoOp)
	assert.Nil(t, out.Workload)

	state, ok := f.gw.StateOf("i-prod-db")
	require.True(t, ok)
	assert.Equal(t, gateway.StateRunning, state)
}

func TestManager_TerminateFailureLeavesWorkload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	launched, err := f.mgr.Launch(ctx, workload.LaunchRequest{UserID: "alice", Provider: "aws"})
	require.NoError(t, err)

	f.gw.TerminateErr = apperr.Provisioning(errors.New("UnauthorizedOperation"), "failed to terminate instance")
	_, err = f.mgr.Terminate(ctx, workload.TerminateRequest{
		UserID: "alice", Provider: "aws",
		InstanceID: launched.Instance.ExternalID, WorkloadID: launched.Workload.ID,
	})
	assert.Equal(t, apperr.KindProvisioning, apperr.KindOf(err))

	w, err := f.mgr.GetWorkload(ctx, "alice", launched.Workload.ID)
	require.NoError(t, err)
	assert.Equal(t, workload.StatusRunning, w.Status)
	assert.Nil(t, w.EndTime)
}

func TestManager_TerminateScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	launched, err := f.mgr.Launch(ctx, workload.LaunchRequest{UserID: "alice", Provider: "aws"})
	require.NoError(t, err)

	_, err = f.mgr.Terminate(ctx, workload.TerminateRequest{
		UserID: "mallory", Provider: "aws",
		InstanceID: launched.Instance.ExternalID, WorkloadID: launched.Workload.ID,
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Zero(t, f.gw.CallCount("terminate"))
}

func TestManager_TerminateSimulatedWorkloadConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.mgr.SubmitSimulated(ctx, workload.SimulatedRequest{
		UserID: "alice", WorkloadType: workload.TypeBatch, Region: "eu-north-1",
	})
	require.NoError(t, err)

	_, err = f.mgr.Terminate(ctx, workload.TerminateRequest{
		UserID: "alice", Provider: "aws", InstanceID: "i-123", WorkloadID: w.ID,
	})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestManager_StatusAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	launched, err := f.mgr.Launch(ctx, workload.LaunchRequest{UserID: "alice", Provider: "aws", Region: "eu-north-1"})
	require.NoError(t, err)

	snap, err := f.mgr.Status(ctx, "aws", launched.Instance.ExternalID, "eu-north-1")
	require.NoError(t, err)
	assert.Equal(t, gateway.StatePending, snap.State)

	_, err = f.mgr.Status(ctx, "aws", "i-unknown", "")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	list, err := f.mgr.ListInstances(ctx, "aws", "eu-north-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.mgr.ListInstances(ctx, "azure", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	stored, err := f.mgr.GetWorkload(ctx, "alice", launched.Workload.ID)
	require.NoError(t, err)
	assert.Equal(t, launched.Workload, stored)
}

func TestManager_SubmitSimulated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	local, cloud := 12.5, 0.5

	w, err := f.mgr.SubmitSimulated(ctx, workload.SimulatedRequest{
		UserID:                  "alice",
		WorkloadType:            workload.TypeTraining,
		Provider:                "aws",
		Region:                  "ca-central-1",
		EstimatedLocalEmissions: &local,
		EstimatedCloudEmissions: &cloud,
		Labels:                  map[string]string{"job": "nightly"},
	})
	require.NoError(t, err)
	assert.Equal(t, workload.StatusPending, w.Status)
	assert.True(t, w.Metadata.Simulated)
	assert.Equal(t, 12.0, w.Savings)
	assert.Equal(t, 25.0, w.Metadata.CarbonIntensity)
	assert.Equal(t, workload.DefaultSourceLocation, w.SourceLocation)
	assert.Zero(t, f.gw.CallCount("launch"))

	estimated, err := f.mgr.SubmitSimulated(ctx, workload.SimulatedRequest{
		UserID: "alice", WorkloadType: workload.TypeAnalysis, Region: "eu-north-1", DurationHours: 2,
	})
	require.NoError(t, err)
	assert.InDelta(t, 4.92, estimated.Savings, 1e-12)
}

func TestManager_SubmitSimulatedDefaultsInstanceType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.mgr.SubmitSimulated(ctx, workload.SimulatedRequest{
		UserID: "alice", WorkloadType: workload.TypeBatch, Region: "eu-north-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "t2.micro", w.InstanceType)
	assert.Equal(t, 5.0, w.Metadata.PowerWatts)

	stored, err := f.mgr.GetWorkload(ctx, "alice", w.ID)
	require.NoError(t, err)
	assert.Equal(t, "t2.micro", stored.InstanceType)
}

func TestManager_InvalidRecordIsNotSaved(t *testing.T) {
	f := newFixture(t, func(d *workload.Deps) { d.NewID = func() string { return "" } })

	_, err := f.mgr.SubmitSimulated(context.Background(), workload.SimulatedRequest{
		UserID: "alice", WorkloadType: workload.TypeBatch, Region: "eu-north-1",
	})
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Zero(t, f.count(t, "alice"))
	assert.Empty(t, f.rec.workloads)
}

func TestManager_SubmitSimulatedValidation(t *testing.T) {
	tests := []struct {
		name string
		req  workload.SimulatedRequest
	}{
		{name: "bad type", req: workload.SimulatedRequest{UserID: "u", WorkloadType: "mining", Region: "eu-north-1"}},
		{name: "unknown region", req: workload.SimulatedRequest{UserID: "u", WorkloadType: workload.TypeBatch, Region: "mars-1"}},
		{name: "missing region", req: workload.SimulatedRequest{UserID: "u", WorkloadType: workload.TypeBatch}},
		{name: "unknown provider", req: workload.SimulatedRequest{UserID: "u", WorkloadType: workload.TypeBatch, Provider: "ibm", Region: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.mgr.SubmitSimulated(context.Background(), tt.req)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestManager_ListWorkloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.mgr.SubmitSimulated(ctx, workload.SimulatedRequest{
			UserID: "alice", WorkloadType: workload.TypeBatch, Region: "eu-north-1",
		})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}
	_, err := f.mgr.Launch(ctx, workload.LaunchRequest{UserID: "alice", Provider: "aws", Region: "eu-north-1"})
	require.NoError(t, err)
	_, err = f.mgr.SubmitSimulated(ctx, workload.SimulatedRequest{
		UserID: "bob", WorkloadType: workload.TypeBatch, Region: "eu-north-1",
	})
	require.NoError(t, err)

	res, err := f.mgr.ListWorkloads(ctx, workload.Filter{UserID: "alice", Limit: 2})
	require.NoError(t, err)
	require.Len(t, res.Workloads, 2)
	assert.Equal(t, workload.StatusRunning, res.Workloads[0].Status)
	assert.Equal(t, 4, res.Stats.TotalWorkloads)
	assert.Equal(t, 3, res.Stats.ByStatus[workload.StatusPending])
	assert.Equal(t, 1, res.Stats.ByStatus[workload.StatusRunning])
	assert.Equal(t, 4, res.Stats.ByProvider["aws"])
	assert.Equal(t, 9.84, res.Stats.TotalCarbonSaved)

	pending, err := f.mgr.ListWorkloads(ctx, workload.Filter{UserID: "alice", Status: workload.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending.Workloads, 3)

	_, err = f.mgr.ListWorkloads(ctx, workload.Filter{UserID: "alice", Status: "sleeping"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.mgr.ListWorkloads(ctx, workload.Filter{UserID: "alice", Limit: -1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestManager_Reconcile(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture, instanceID string)
		expected workload.Status
		changed  bool
	}{
		{
			name:     "running instance leaves workload unchanged",
			setup:    func(f *fixture, id string) { f.gw.SetState(id, gateway.StateRunning) },
			expected: workload.StatusRunning,
		},
		{
			name:     "terminated instance fails workload",
			setup:    func(f *fixture, id string) { f.gw.SetState(id, gateway.StateTerminated) },
			expected: workload.StatusFailed,
			changed:  true,
		},
		{
			name:     "vanished instance fails workload",
			setup:    func(f *fixture, _ string) { f.gw.StatusErr = apperr.NotFound("gone") },
			expected: workload.StatusFailed,
			changed:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			launched, err := f.mgr.Launch(ctx, workload.LaunchRequest{UserID: "alice", Provider: "aws"})
			require.NoError(t, err)
			tt.setup(f, launched.Instance.ExternalID)

			out, err := f.mgr.Reconcile(ctx, "alice", launched.Workload.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.changed, out.Changed)
			assert.Equal(t, tt.expected, out.Workload.Status)
			if tt.expected == workload.StatusFailed {
				assert.NotEmpty(t, out.Workload.ErrorMessage)
			}

			stored, err := f.mgr.GetWorkload(ctx, "alice", launched.Workload.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, stored.Status)
		})
	}
}

func TestManager_ReconcileSimulatedSkipsGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, err := f.mgr.SubmitSimulated(ctx, workload.SimulatedRequest{
		UserID: "alice", WorkloadType: workload.TypeBatch, Region: "eu-north-1",
	})
	require.NoError(t, err)

	out, err := f.mgr.Reconcile(ctx, "alice", w.ID)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Zero(t, f.gw.CallCount("status"))
}

func TestManager_TestConnection(t *testing.T) {
	f := newFixture(t)

	status, err := f.mgr.TestConnection(context.Background(), "aws")
	require.NoError(t, err)
	assert.True(t, status.OK)

	_, err = f.mgr.TestConnection(context.Background(), "oracle")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
