package hardwareconfig

import (
	"fmt"
	"os"
	"sort"

	"github.com/golang/glog"
	"sigs.k8s.io/yaml"
)

// EmbeddedTables lists the hwDefPaths that LoadClockTable can resolve.
func EmbeddedTables() []string {
	paths := make([]string, 0, len(embeddedTables))
	for p := range embeddedTables {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// LoadClockTable loads the clock table for a given hardware definition path
// (hwDefPath) from the tables baked into the binary.
func LoadClockTable(hwDefPath string) (*ClockTable, error) {
	data, ok := embeddedTables[hwDefPath]
	if !ok || len(data) == 0 {
		return nil, fmt.Errorf("no embedded clock table for %q (known: %v)", hwDefPath, EmbeddedTables())
	}
	glog.Infof("Clock table: using embedded table for %s", hwDefPath)
	return DecodeClockTable("embedded:"+hwDefPath, data)
}

// LoadClockTableFile loads a clock table from a YAML file.
func LoadClockTableFile(path string) (*ClockTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clock table: %w", err)
	}
	glog.Infof("Clock table: using %s", path)
	return DecodeClockTable(path, data)
}

// Load resolves ref as an embedded hwDefPath first and as a file path otherwise.
func Load(ref string) (*ClockTable, error) {
	if _, ok := embeddedTables[ref]; ok {
		return LoadClockTable(ref)
	}
	return LoadClockTableFile(ref)
}

// DecodeClockTable parses a YAML clock table. Unknown fields are rejected.
func DecodeClockTable(path string, data []byte) (*ClockTable, error) {
	var ct ClockTable
	if err := yaml.UnmarshalStrict(data, &ct); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if len(ct.Clocks) == 0 {
		return nil, fmt.Errorf("%s: no clocks defined", path)
	}
	return &ct, nil
}
