// Package regions is the Region Catalog: cloud provider regions with their
// carbon intensity and renewable share, seeded by an administrative
// operation and otherwise read-only.
package regions

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Provider identifiers accepted in the catalog.
const (
	ProviderAWS    = "aws"
	ProviderGCP    = "gcp"
	ProviderAzure  = "azure"
	ProviderOracle = "oracle"
)

// Providers lists every provider the catalog can hold. Only aws is actionable.
var Providers = []string{ProviderAWS, ProviderGCP, ProviderAzure, ProviderOracle}

// IsKnownProvider reports whether p is one of Providers.
func IsKnownProvider(p string) bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// Metadata is optional descriptive data for a region.
type Metadata struct {
	Latitude   float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	Timezone   string  `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	DataCenter string  `json:"dataCenter,omitempty" yaml:"dataCenter,omitempty"`
}

// CloudRegion is one catalog entry, identified by (Provider, Region).
type CloudRegion struct {
	ID                  string    `json:"id" yaml:"-"`
	Provider            string    `json:"provider" yaml:"provider"`
	Region              string    `json:"region" yaml:"region"`
	RegionName          string    `json:"regionName" yaml:"regionName"`
	Country             string    `json:"country" yaml:"country"`
	CarbonIntensity     float64   `json:"carbonIntensity" yaml:"carbonIntensity"`
	RenewablePercentage float64   `json:"renewablePercentage" yaml:"renewablePercentage"`
	InstanceTypes       []string  `json:"instanceTypes" yaml:"instanceTypes"`
	Zones               []string  `json:"zones" yaml:"zones"`
	Available           bool      `json:"available" yaml:"available"`
	Metadata            *Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	SeededAt            time.Time `json:"seededAt" yaml:"-"`
}

// RegionID builds the catalog id for a (provider, region) pair.
func RegionID(provider, region string) string {
	return provider + ":" + region
}

// ParseRegionID splits an id produced by RegionID.
func ParseRegionID(id string) (provider, region string, ok bool) {
	provider, region, ok = strings.Cut(id, ":")
	if !ok || provider == "" || region == "" {
		return "", "", false
	}
	return provider, region, true
}

// normalize lower-cases the provider, trims identifiers and fills ID.
func (r *CloudRegion) normalize() {
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
	r.Region = strings.TrimSpace(r.Region)
	r.ID = RegionID(r.Provider, r.Region)
	if r.InstanceTypes == nil {
		r.InstanceTypes = []string{}
	}
	if r.Zones == nil {
		r.Zones = []string{}
	}
}

// Validate checks the catalog invariants for a single region.
func (r CloudRegion) Validate() error {
	if !IsKnownProvider(r.Provider) {
		return fmt.Errorf("unknown provider %q", r.Provider)
	}
	if r.Region == "" {
		return fmt.Errorf("region code is required")
	}
	if r.RegionName == "" {
		return fmt.Errorf("%s: regionName is required", r.ID)
	}
	if r.Country == "" {
		return fmt.Errorf("%s: country is required", r.ID)
	}
	if math.IsNaN(r.CarbonIntensity) || math.IsInf(r.CarbonIntensity, 0) || r.CarbonIntensity < 0 {
		return fmt.Errorf("%s: carbonIntensity must be a non-negative number", r.ID)
	}
	if math.IsNaN(r.RenewablePercentage) || r.RenewablePercentage < 0 || r.RenewablePercentage > 100 {
		return fmt.Errorf("%s: renewablePercentage must be between 0 and 100", r.ID)
	}
	return nil
}

// SupportsInstanceType reports whether the region lists instanceType.
func (r CloudRegion) SupportsInstanceType(instanceType string) bool {
	for _, t := range r.InstanceTypes {
		if t == instanceType {
			return true
		}
	}
	return false
}
