package regions

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/regions.yaml
var defaultRegionsYAML []byte

// seedFile is the YAML layout accepted by LoadRegions.
type seedFile struct {
	Regions []CloudRegion `yaml:"regions"`
}

// DefaultRegions returns the embedded default catalog.
func DefaultRegions() ([]CloudRegion, error) {
	return ParseRegions(defaultRegionsYAML)
}

// LoadRegions reads a seed file from path.
func LoadRegions(path string) ([]CloudRegion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read region file: %w", err)
	}
	return ParseRegions(data)
}

// ParseRegions decodes a YAML seed document. Unknown fields are rejected so
// typos in hand-edited files surface early.
func ParseRegions(data []byte) ([]CloudRegion, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f seedFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse region file: %w", err)
	}
	return f.Regions, nil
}
