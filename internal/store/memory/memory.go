// Package memory is an in-process document store. Data lives only as long as
// the process; it backs tests and `store.driver: memory`.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/rshade/carbon-offload/internal/regions"
	"github.com/rshade/carbon-offload/internal/store"
	"github.com/rshade/carbon-offload/internal/workload"
)

// Store implements regions.Repository, regions.PreferenceRepository and
// workload.Repository.
type Store struct {
	mu          sync.RWMutex
	regions     map[string]regions.CloudRegion
	workloads   map[string]workload.Workload
	preferences map[string]regions.Preferences
}

var (
	_ regions.Repository           = (*Store)(nil)
	_ regions.PreferenceRepository = (*Store)(nil)
	_ workload.Repository          = (*Store)(nil)
	_ store.Pinger                 = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		regions:     map[string]regions.CloudRegion{},
		workloads:   map[string]workload.Workload{},
		preferences: map[string]regions.Preferences{},
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// ReplaceRegions builds the new set first and swaps it in under the lock,
// so readers see either the old catalog or the new one.
func (s *Store) ReplaceRegions(_ context.Context, list []regions.CloudRegion) (int, error) {
	next := make(map[string]regions.CloudRegion, len(list))
	for _, r := range list {
		key := regions.RegionID(r.Provider, r.Region)
		if _, dup := next[key]; dup {
			return 0, fmt.Errorf("region %s: %w", key, store.ErrDuplicate)
		}
		next[key] = cloneRegion(r)
	}

	s.mu.Lock()
	s.regions = next
	s.mu.Unlock()
	return len(next), nil
}

func (s *Store) ListRegions(_ context.Context, filter regions.Filter) ([]regions.CloudRegion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]regions.CloudRegion, 0, len(s.regions))
	for _, r := range s.regions {
		if filter.Provider != "" && r.Provider != filter.Provider {
			continue
		}
		if filter.AvailableOnly && !r.Available {
			continue
		}
		out = append(out, cloneRegion(r))
	}
	regions.SortByCarbonIntensity(out)
	return out, nil
}

func (s *Store) GetRegion(_ context.Context, provider, region string) (regions.CloudRegion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.regions[regions.RegionID(provider, region)]
	if !ok {
		return regions.CloudRegion{}, fmt.Errorf("region %s/%s: %w", provider, region, store.ErrNotFound)
	}
	return cloneRegion(r), nil
}

func (s *Store) GetPreferences(_ context.Context, userID string) (regions.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.preferences[userID]
	if !ok {
		return regions.Preferences{}, fmt.Errorf("preferences for %s: %w", userID, store.ErrNotFound)
	}
	p.PreferredRegions = append([]regions.PreferredRegion{}, p.PreferredRegions...)
	return p, nil
}

func (s *Store) PutPreferences(_ context.Context, prefs regions.Preferences) error {
	prefs.PreferredRegions = append([]regions.PreferredRegion{}, prefs.PreferredRegions...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[prefs.UserID] = prefs
	return nil
}

func (s *Store) CreateWorkload(_ context.Context, w workload.Workload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workloads[w.ID]; exists {
		return fmt.Errorf("workload %s: %w", w.ID, store.ErrDuplicate)
	}
	s.workloads[w.ID] = cloneWorkload(w)
	return nil
}

func (s *Store) GetWorkload(_ context.Context, id string) (workload.Workload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workloads[id]
	if !ok {
		return workload.Workload{}, fmt.Errorf("workload %s: %w", id, store.ErrNotFound)
	}
	return cloneWorkload(w), nil
}

func (s *Store) UpdateWorkload(_ context.Context, w workload.Workload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workloads[w.ID]; !ok {
		return fmt.Errorf("workload %s: %w", w.ID, store.ErrNotFound)
	}
	s.workloads[w.ID] = cloneWorkload(w)
	return nil
}

func (s *Store) ListWorkloads(_ context.Context, filter workload.Filter) ([]workload.Workload, error) {
	out := s.matching(filter)
	workload.SortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) AggregateWorkloads(_ context.Context, filter workload.Filter) (workload.Stats, error) {
	return workload.Aggregate(s.matching(filter)), nil
}

func (s *Store) matching(filter workload.Filter) []workload.Workload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []workload.Workload{}
	for _, w := range s.workloads {
		if filter.Matches(w) {
			out = append(out, cloneWorkload(w))
		}
	}
	return out
}

func cloneRegion(r regions.CloudRegion) regions.CloudRegion {
	r.InstanceTypes = append([]string{}, r.InstanceTypes...)
	r.Zones = append([]string{}, r.Zones...)
	if r.Metadata != nil {
		md := *r.Metadata
		r.Metadata = &md
	}
	return r
}

func cloneWorkload(w workload.Workload) workload.Workload {
	w.ActualCloudEmissions = clonePtr(w.ActualCloudEmissions)
	w.ActualCost = clonePtr(w.ActualCost)
	w.EndTime = clonePtr(w.EndTime)
	w.Duration = clonePtr(w.Duration)
	w.Metadata.LaunchTime = clonePtr(w.Metadata.LaunchTime)
	if w.Metadata.Labels != nil {
		w.Metadata.Labels = maps.Clone(w.Metadata.Labels)
	}
	return w
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
