package regions

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/carbon-offload/internal/apperr"
	"github.com/rshade/carbon-offload/internal/store"
)

// Filter narrows a region listing.
type Filter struct {
	Provider      string
	AvailableOnly bool
}

// Repository is the document-store view of the catalog.
type Repository interface {
	// ReplaceRegions swaps the whole catalog for regions. Implementations
	// must insert the new set before, or atomically with, discarding the old.
	ReplaceRegions(ctx context.Context, regions []CloudRegion) (int, error)
	ListRegions(ctx context.Context, filter Filter) ([]CloudRegion, error)
	// GetRegion returns store.ErrNotFound when the pair is unknown.
	GetRegion(ctx context.Context, provider, region string) (CloudRegion, error)
}

// SeedResult summarises a seed operation.
type SeedResult struct {
	Count          int          `json:"count"`
	AWSRegions     int          `json:"awsRegions"`
	ReferenceCount int          `json:"referenceRegions"`
	Greenest       *CloudRegion `json:"greenestRegion,omitempty"`
}

// Catalog provides read access to regions and the administrative seed.
type Catalog struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewCatalog creates a Catalog over repo.
func NewCatalog(repo Repository, logger zerolog.Logger) *Catalog {
	return &Catalog{
		repo:   repo,
		logger: logger.With().Str("component", "regions").Logger(),
		now:    time.Now,
	}
}

// ListAvailable returns available regions, optionally for one provider,
// sorted ascending by carbon intensity. The first element is the greenest
// launchable option.
func (c *Catalog) ListAvailable(ctx context.Context, provider string) ([]CloudRegion, error) {
	filter := Filter{
		Provider:      strings.ToLower(strings.TrimSpace(provider)),
		AvailableOnly: true,
	}
	list, err := c.repo.ListRegions(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list regions")
	}
	SortByCarbonIntensity(list)
	return list, nil
}

// Find returns the region for (provider, region).
func (c *Catalog) Find(ctx context.Context, provider, region string) (CloudRegion, error) {
	r, err := c.repo.GetRegion(ctx, strings.ToLower(provider), region)
	if errors.Is(err, store.ErrNotFound) {
		return CloudRegion{}, apperr.NotFound("region %s not found for provider %s", region, provider)
	}
	if err != nil {
		return CloudRegion{}, apperr.Internal(err, "failed to load region")
	}
	return r, nil
}

// FindByID resolves a catalog id of the form "provider:region".
func (c *Catalog) FindByID(ctx context.Context, id string) (CloudRegion, error) {
	provider, region, ok := ParseRegionID(id)
	if !ok {
		return CloudRegion{}, apperr.NotFound("region %q not found", id)
	}
	return c.Find(ctx, provider, region)
}

// Seed validates regions and replaces the whole catalog with them.
func (c *Catalog) Seed(ctx context.Context, regions []CloudRegion) (SeedResult, error) {
	if len(regions) == 0 {
		return SeedResult{}, apperr.Validation("seed requires at least one region")
	}

	seededAt := c.now().UTC()
	seen := make(map[string]struct{}, len(regions))
	prepared := make([]CloudRegion, 0, len(regions))
	for _, r := range regions {
		r.normalize()
		if err := r.Validate(); err != nil {
			return SeedResult{}, apperr.Validation("invalid region: %v", err)
		}
		if _, dup := seen[r.ID]; dup {
			return SeedResult{}, apperr.Validation("duplicate region %s", r.ID)
		}
		seen[r.ID] = struct{}{}
		r.SeededAt = seededAt
		prepared = append(prepared, r)
	}

	count, err := c.repo.ReplaceRegions(ctx, prepared)
	if err != nil {
		return SeedResult{}, apperr.Internal(err, "failed to replace region catalog")
	}

	SortByCarbonIntensity(prepared)
	result := SeedResult{Count: count}
	for i := range prepared {
		r := prepared[i]
		if !r.Available {
			result.ReferenceCount++
			continue
		}
		if r.Provider == ProviderAWS {
			result.AWSRegions++
			if result.Greenest == nil {
				result.Greenest = &r
			}
		}
	}

	c.logger.Info().
		Int("count", result.Count).
		Int("aws_regions", result.AWSRegions).
		Int("reference_regions", result.ReferenceCount).
		Msg("region catalog seeded")

	return result, nil
}

// SortByCarbonIntensity orders regions ascending by carbon intensity, with
// provider and region code as tie-breakers so the order is deterministic.
func SortByCarbonIntensity(list []CloudRegion) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CarbonIntensity != list[j].CarbonIntensity {
			return list[i].CarbonIntensity < list[j].CarbonIntensity
		}
		if list[i].Provider != list[j].Provider {
			return list[i].Provider < list[j].Provider
		}
		return list[i].Region < list[j].Region
	})
}
