package regions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rshade/carbon-offload/internal/apperr"
	"github.com/rshade/carbon-offload/internal/store"
)

// DefaultMaxCarbonIntensity is the ceiling applied when a user has not set one.
const DefaultMaxCarbonIntensity = 500.0

// PreferredRegion ranks a region for a user. Lower Priority wins.
type PreferredRegion struct {
	RegionCode string `json:"regionCode"`
	Priority   int    `json:"priority"`
}

// Preferences are a user's region selection settings.
type Preferences struct {
	UserID             string            `json:"userId"`
	PreferredRegions   []PreferredRegion `json:"preferredRegions"`
	AutoOptimize       bool              `json:"autoOptimize"`
	MaxCarbonIntensity float64           `json:"maxCarbonIntensity"`
	PreferRenewable    bool              `json:"preferRenewable"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// DefaultPreferences returns the settings used for users who never saved any.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:             userID,
		PreferredRegions:   []PreferredRegion{},
		MaxCarbonIntensity: DefaultMaxCarbonIntensity,
		PreferRenewable:    true,
	}
}

// Validate checks that the preferences can be stored.
func (p Preferences) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user is required")
	}
	if p.MaxCarbonIntensity < 0 {
		return fmt.Errorf("maxCarbonIntensity must be non-negative")
	}
	seen := make(map[string]struct{}, len(p.PreferredRegions))
	for _, pr := range p.PreferredRegions {
		if pr.RegionCode == "" {
			return fmt.Errorf("preferred region code is required")
		}
		if _, dup := seen[pr.RegionCode]; dup {
			return fmt.Errorf("preferred region %s listed twice", pr.RegionCode)
		}
		seen[pr.RegionCode] = struct{}{}
	}
	return nil
}

// PreferenceRepository stores one Preferences document per user.
type PreferenceRepository interface {
	// GetPreferences returns store.ErrNotFound when the user has none.
	GetPreferences(ctx context.Context, userID string) (Preferences, error)
	PutPreferences(ctx context.Context, prefs Preferences) error
}

// PreferenceService reads and writes user preferences.
type PreferenceService struct {
	repo PreferenceRepository
	now  func() time.Time
}

// NewPreferenceService creates a PreferenceService over repo.
func NewPreferenceService(repo PreferenceRepository) *PreferenceService {
	return &PreferenceService{repo: repo, now: time.Now}
}

// Get returns the user's preferences, or the defaults when none are stored.
func (s *PreferenceService) Get(ctx context.Context, userID string) (Preferences, error) {
	p, err := s.repo.GetPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultPreferences(userID), nil
	}
	if err != nil {
		return Preferences{}, apperr.Internal(err, "failed to load preferences")
	}
	return p, nil
}

// Put validates and stores prefs for userID.
func (s *PreferenceService) Put(ctx context.Context, userID string, prefs Preferences) (Preferences, error) {
	prefs.UserID = userID
	if prefs.PreferredRegions == nil {
		prefs.PreferredRegions = []PreferredRegion{}
	}
	if err := prefs.Validate(); err != nil {
		return Preferences{}, apperr.Validation("invalid preferences: %v", err)
	}
	prefs.UpdatedAt = s.now().UTC()
	if err := s.repo.PutPreferences(ctx, prefs); err != nil {
		return Preferences{}, apperr.Internal(err, "failed to save preferences")
	}
	return prefs, nil
}

// Recommendation is the region suggested for a user and why.
type Recommendation struct {
	Region       CloudRegion `json:"region"`
	Reason       string      `json:"reason"`
	Alternatives int         `json:"alternatives"`
}

// Recommend picks a region for prefs among available regions of provider.
// Regions above the user's carbon ceiling are excluded. A preferred region
// wins by priority; otherwise the lowest carbon intensity wins, with higher
// renewable share breaking ties when PreferRenewable is set.
func (c *Catalog) Recommend(ctx context.Context, prefs Preferences, provider string) (Recommendation, error) {
	list, err := c.ListAvailable(ctx, provider)
	if err != nil {
		return Recommendation{}, err
	}

	ceiling := prefs.MaxCarbonIntensity
	if ceiling <= 0 {
		ceiling = DefaultMaxCarbonIntensity
	}
	eligible := list[:0:0]
	for _, r := range list {
		if r.CarbonIntensity <= ceiling {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return Recommendation{}, apperr.NotFound("no available region under %.0f gCO2/kWh", ceiling)
	}

	preferred := append([]PreferredRegion(nil), prefs.PreferredRegions...)
	sort.SliceStable(preferred, func(i, j int) bool { return preferred[i].Priority < preferred[j].Priority })
	for _, pr := range preferred {
		for _, r := range eligible {
			if r.Region == pr.RegionCode {
				return Recommendation{
					Region:       r,
					Reason:       fmt.Sprintf("preferred region (priority %d)", pr.Priority),
					Alternatives: len(eligible) - 1,
				}, nil
			}
		}
	}

	best := eligible[0]
	reason := "lowest carbon intensity"
	if prefs.PreferRenewable {
		for _, r := range eligible[1:] {
			if r.CarbonIntensity == best.CarbonIntensity && r.RenewablePercentage > best.RenewablePercentage {
				best = r
				reason = "lowest carbon intensity, highest renewable share"
			}
		}
	}
	return Recommendation{Region: best, Reason: reason, Alternatives: len(eligible) - 1}, nil
}
