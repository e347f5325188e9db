// Package storetest is a conformance suite run against every store driver.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/carbon-offload/internal/regions"
	"github.com/rshade/carbon-offload/internal/store"
	"github.com/rshade/carbon-offload/internal/workload"
)

// Store is everything a driver must implement.
type Store interface {
	regions.Repository
	regions.PreferenceRepository
	workload.Repository
	store.Pinger
}

// Run exercises a fresh store produced by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
	t.Run("regions", func(t *testing.T) { testRegions(t, newStore(t)) })
	t.Run("region replace keeps old set on failure", func(t *testing.T) { testReplaceFailure(t, newStore(t)) })
	t.Run("preferences", func(t *testing.T) { testPreferences(t, newStore(t)) })
	t.Run("workloads", func(t *testing.T) { testWorkloads(t, newStore(t)) })
	t.Run("workload list and aggregate", func(t *testing.T) { testListAggregate(t, newStore(t)) })
}

func region(provider, code string, intensity float64, available bool) regions.CloudRegion {
	return regions.CloudRegion{
		ID:                  regions.RegionID(provider, code),
		Provider:            provider,
		Region:              code,
		RegionName:          code,
		Country:             "Testland",
		CarbonIntensity:     intensity,
		RenewablePercentage: 50,
		InstanceTypes:       []string{"t2.micro"},
		Zones:               []string{code + "a"},
		Available:           available,
	}
}

func testRegions(t *testing.T, s Store) {
	ctx := context.Background()

	n, err := s.ReplaceRegions(ctx, []regions.CloudRegion{
		region("aws", "us-east-1", 415, true),
		region("aws", "eu-north-1", 8, true),
		region("gcp", "europe-north1", 90, false),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := s.ListRegions(ctx, regions.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "eu-north-1", all[0].Region)
	assert.Equal(t, []string{"t2.micro"}, all[0].InstanceTypes)

	avail, err := s.ListRegions(ctx, regions.Filter{Provider: "aws", AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, avail, 2)
	assert.LessOrEqual(t, avail[0].CarbonIntensity, avail[1].CarbonIntensity)

	got, err := s.GetRegion(ctx, "aws", "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, 415.0, got.CarbonIntensity)

	_, err = s.GetRegion(ctx, "aws", "mars-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err = s.ReplaceRegions(ctx, []regions.CloudRegion{region("aws", "sa-east-1", 62, true)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	all, err = s.ListRegions(ctx, regions.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "sa-east-1", all[0].Region)
}

func testReplaceFailure(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.ReplaceRegions(ctx, []regions.CloudRegion{region("aws", "us-east-1", 415, true)})
	require.NoError(t, err)

	_, err = s.ReplaceRegions(ctx, []regions.CloudRegion{
		region("aws", "eu-north-1", 8, true),
		region("aws", "eu-north-1", 9, true),
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	all, err := s.ListRegions(ctx, regions.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "us-east-1", all[0].Region)
}

func testPreferences(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetPreferences(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	prefs := regions.Preferences{
		UserID:             "alice",
		PreferredRegions:   []regions.PreferredRegion{{RegionCode: "eu-north-1", Priority: 1}},
		MaxCarbonIntensity: 300,
		PreferRenewable:    true,
	}
	require.NoError(t, s.PutPreferences(ctx, prefs))
	prefs.MaxCarbonIntensity = 200
	require.NoError(t, s.PutPreferences(ctx, prefs))

	got, err := s.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 200.0, got.MaxCarbonIntensity)
	assert.Equal(t, prefs.PreferredRegions, got.PreferredRegions)
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newWorkload(id, user string, status workload.Status, provider string, start time.Time) workload.Workload {
	w := workload.Workload{
		ID:                      id,
		UserID:                  user,
		WorkloadType:            workload.TypeComputation,
		SourceLocation:          workload.DefaultSourceLocation,
		TargetProvider:          provider,
		TargetRegion:            "eu-north-1",
		EstimatedLocalEmissions: 5,
		EstimatedCloudEmissions: 1,
		EstimatedCost:           0.0116,
		Status:                  status,
		StartTime:               start,
		CreatedAt:               start,
		UpdatedAt:               start,
	}
	if status == workload.StatusFailed {
		w.ErrorMessage = "boom"
	}
	w.RecomputeSavings()
	return w
}

func testWorkloads(t *testing.T, s Store) {
	ctx := context.Background()

	w := newWorkload("w1", "alice", workload.StatusRunning, "aws", base)
	w.Metadata.Labels = map[string]string{"team": "green"}
	require.NoError(t, s.CreateWorkload(ctx, w))
	assert.ErrorIs(t, s.CreateWorkload(ctx, w), store.ErrDuplicate)

	got, err := s.GetWorkload(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, 4.0, got.Savings)
	assert.True(t, got.StartTime.Equal(base))
	assert.Equal(t, "green", got.Metadata.Labels["team"])

	end := base.Add(time.Hour)
	dur := int64(3600)
	cost := 0.0116
	got.Status = workload.StatusCompleted
	got.EndTime = &end
	got.Duration = &dur
	got.ActualCost = &cost
	require.NoError(t, s.UpdateWorkload(ctx, got))

	again, err := s.GetWorkload(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, workload.StatusCompleted, again.Status)
	require.NotNil(t, again.Duration)
	assert.Equal(t, int64(3600), *again.Duration)

	_, err = s.GetWorkload(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	missing := newWorkload("missing", "alice", workload.StatusRunning, "aws", base)
	assert.ErrorIs(t, s.UpdateWorkload(ctx, missing), store.ErrNotFound)
}

func testListAggregate(t *testing.T, s Store) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		status := workload.StatusPending
		if i%2 == 1 {
			status = workload.StatusRunning
		}
		w := newWorkload(fmt.Sprintf("a%d", i), "alice", status, "aws", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreateWorkload(ctx, w))
	}
	require.NoError(t, s.CreateWorkload(ctx, newWorkload("g1", "alice", workload.StatusPending, "gcp", base)))
	require.NoError(t, s.CreateWorkload(ctx, newWorkload("b1", "bob", workload.StatusRunning, "aws", base)))

	page, err := s.ListWorkloads(ctx, workload.Filter{UserID: "alice", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a4", page[0].ID)
	assert.Equal(t, "a3", page[1].ID)

	running, err := s.ListWorkloads(ctx, workload.Filter{UserID: "alice", Status: workload.StatusRunning})
	require.NoError(t, err)
	assert.Len(t, running, 2)

	gcp, err := s.ListWorkloads(ctx, workload.Filter{UserID: "alice", Provider: "gcp"})
	require.NoError(t, err)
	require.Len(t, gcp, 1)
	assert.Equal(t, "g1", gcp[0].ID)

	stats, err := s.AggregateWorkloads(ctx, workload.Filter{UserID: "alice", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, stats.TotalWorkloads)
	assert.Equal(t, 4, stats.ByStatus[workload.StatusPending])
	assert.Equal(t, 2, stats.ByStatus[workload.StatusRunning])
	assert.Equal(t, 5, stats.ByProvider["aws"])
	assert.Equal(t, 1, stats.ByProvider["gcp"])
	assert.InDelta(t, 24.0, stats.TotalCarbonSaved, 1e-9)
	assert.InDelta(t, 6*0.0116, stats.TotalCost, 1e-9)

	empty, err := s.AggregateWorkloads(ctx, workload.Filter{UserID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalWorkloads)
	assert.NotNil(t, empty.ByStatus)
}
