package carbon

import (
	_ "embed"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// CSV column indices in data/instance_power.csv. The family column is
// informational and not loaded.
const (
	colInstanceType = 0
	colVCPUCount    = 2
	colWatts        = 3
)

//go:embed data/instance_power.csv
var instanceSpecsCSV string

// InstanceSpec is the average power draw of an instance type.
type InstanceSpec struct {
	InstanceType string
	VCPUCount    int
	Watts        float64
}

var (
	instanceSpecs     map[string]InstanceSpec
	instanceSpecsOnce sync.Once
)

// parseInstanceSpecs loads the embedded power table. Rows with an empty type,
// a vCPU count below one, or a negative wattage are skipped.
func parseInstanceSpecs() {
	instanceSpecs = make(map[string]InstanceSpec)

	reader := csv.NewReader(strings.NewReader(instanceSpecsCSV))

	// Skip header row
	if _, err := reader.Read(); err != nil {
		return
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(record) <= colWatts {
			continue
		}

		instanceType := strings.TrimSpace(record[colInstanceType])
		if instanceType == "" {
			continue
		}

		vcpuCount, err := strconv.Atoi(strings.TrimSpace(record[colVCPUCount]))
		if err != nil || vcpuCount < 1 {
			continue
		}

		watts, err := strconv.ParseFloat(strings.TrimSpace(record[colWatts]), 64)
		if err != nil || watts < 0 {
			continue
		}

		instanceSpecs[instanceType] = InstanceSpec{
			InstanceType: instanceType,
			VCPUCount:    vcpuCount,
			Watts:        watts,
		}
	}
}

// GetInstanceSpec looks up an instance type in the embedded power table.
func GetInstanceSpec(instanceType string) (InstanceSpec, bool) {
	instanceSpecsOnce.Do(parseInstanceSpecs)
	spec, ok := instanceSpecs[instanceType]
	return spec, ok
}

// PowerWatts returns the power draw for instanceType, falling back to the
// DefaultInstanceType tier for unknown types.
func PowerWatts(instanceType string) float64 {
	if spec, ok := GetInstanceSpec(instanceType); ok {
		return spec.Watts
	}
	spec, _ := GetInstanceSpec(DefaultInstanceType)
	return spec.Watts
}

// InstanceTypes returns every instance type in the power table, sorted.
func InstanceTypes() []string {
	instanceSpecsOnce.Do(parseInstanceSpecs)
	types := make([]string, 0, len(instanceSpecs))
	for t := range instanceSpecs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
