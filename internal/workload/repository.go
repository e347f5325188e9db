package workload

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// Filter narrows a workload listing. Zero values match everything.
type Filter struct {
	UserID   string
	Status   Status
	Provider string
	// Limit caps the result size; 0 means no limit.
	Limit int
}

// Matches reports whether w passes the filter, ignoring Limit.
func (f Filter) Matches(w Workload) bool {
	if f.UserID != "" && w.UserID != f.UserID {
		return false
	}
	if f.Status != "" && w.Status != f.Status {
		return false
	}
	if f.Provider != "" && w.TargetProvider != f.Provider {
		return false
	}
	return true
}

// Repository is the document-store view of workloads.
type Repository interface {
	// CreateWorkload returns store.ErrDuplicate if the id exists.
	CreateWorkload(ctx context.Context, w Workload) error
	// GetWorkload returns store.ErrNotFound for unknown ids.
	GetWorkload(ctx context.Context, id string) (Workload, error)
	// UpdateWorkload replaces the stored record; store.ErrNotFound if absent.
	UpdateWorkload(ctx context.Context, w Workload) error
	// ListWorkloads returns matches newest StartTime first, capped at Limit.
	ListWorkloads(ctx context.Context, filter Filter) ([]Workload, error)
	// AggregateWorkloads summarises every match, ignoring Limit.
	AggregateWorkloads(ctx context.Context, filter Filter) (Stats, error)
}

// Stats summarises a set of workloads.
type Stats struct {
	TotalWorkloads   int            `json:"totalWorkloads"`
	TotalCarbonSaved float64        `json:"totalCarbonSaved"`
	TotalCost        float64        `json:"totalCost"`
	ByStatus         map[Status]int `json:"byStatus"`
	ByProvider       map[string]int `json:"byProvider"`
}

// NewStats returns empty stats with initialised maps.
func NewStats() Stats {
	return Stats{ByStatus: map[Status]int{}, ByProvider: map[string]int{}}
}

// Aggregate folds list into Stats. Cost uses ActualCost when present.
func Aggregate(list []Workload) Stats {
	s := NewStats()
	saved := decimal.Zero
	cost := decimal.Zero
	for _, w := range list {
		s.TotalWorkloads++
		s.ByStatus[w.Status]++
		s.ByProvider[w.TargetProvider]++
		saved = saved.Add(decimal.NewFromFloat(w.Savings))
		cost = cost.Add(decimal.NewFromFloat(EffectiveCost(w)))
	}
	s.TotalCarbonSaved = saved.InexactFloat64()
	s.TotalCost = cost.InexactFloat64()
	return s
}

// EffectiveCost is the actual cost when known, otherwise the estimate.
func EffectiveCost(w Workload) float64 {
	if w.ActualCost != nil {
		return *w.ActualCost
	}
	return w.EstimatedCost
}

// SortNewestFirst orders list by StartTime descending, then id descending.
func SortNewestFirst(list []Workload) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].StartTime.Equal(list[j].StartTime) {
			return list[i].StartTime.After(list[j].StartTime)
		}
		return list[i].ID > list[j].ID
	})
}
