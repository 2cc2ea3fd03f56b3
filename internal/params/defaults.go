// Package params derives the identification parameter set from the default
// parameter source, the instrument sensitivity preset and caller overrides,
// and renders it as IdentificationParametersCLI and SearchCLI flags.
package params

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yml
var embeddedDefaults []byte

// Defaults is the default parameter source. It is always passed explicitly
// to Derive; there is no package-level mutable copy.
type Defaults struct {
	Common  map[string]any            `yaml:"ms-common"`
	Levels  map[string]map[string]any `yaml:"ms-level"`
	Engines map[string]any            `yaml:"search-engines"`
}

// Embedded returns the defaults shipped with the binary.
func Embedded() (*Defaults, error) {
	return ParseDefaults(embeddedDefaults)
}

// LoadDefaults reads a defaults file from disk.
func LoadDefaults(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("params: read defaults %s: %w", path, err)
	}
	d, err := ParseDefaults(data)
	if err != nil {
		return nil, fmt.Errorf("params: %s: %w", path, err)
	}
	return d, nil
}

// ParseDefaults decodes and validates a defaults document.
func ParseDefaults(data []byte) (*Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("params: parse defaults: %w", err)
	}
	d.normalize()
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Defaults) normalize() {
	if d.Common == nil {
		d.Common = map[string]any{}
	}
	levels := make(map[string]map[string]any, len(d.Levels))
	for name, preset := range d.Levels {
		if preset == nil {
			preset = map[string]any{}
		}
		levels[normalizeLevel(name)] = preset
	}
	d.Levels = levels
}

func (d *Defaults) validate() error {
	if len(d.Levels) == 0 {
		return fmt.Errorf("params: ms-level must define at least one sensitivity level")
	}
	if len(d.Engines) == 0 {
		return fmt.Errorf("params: search-engines must enable at least one engine")
	}
	for key, value := range d.Common {
		if _, err := FormatValue(value); err != nil {
			return fmt.Errorf("params: ms-common.%s: %w", key, err)
		}
	}
	for level, preset := range d.Levels {
		for key, value := range preset {
			if _, err := FormatValue(value); err != nil {
				return fmt.Errorf("params: ms-level.%s.%s: %w", level, key, err)
			}
		}
	}
	for engine, value := range d.Engines {
		if _, err := FormatValue(value); err != nil {
			return fmt.Errorf("params: search-engines.%s: %w", engine, err)
		}
	}
	return nil
}

// LevelNames returns the known sensitivity levels, sorted.
func (d *Defaults) LevelNames() []string {
	names := make([]string, 0, len(d.Levels))
	for name := range d.Levels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasLevel reports whether level has a preset block.
func (d *Defaults) HasLevel(level string) bool {
	_, ok := d.Levels[normalizeLevel(level)]
	return ok
}

func normalizeLevel(level string) string {
	return strings.ToLower(strings.TrimSpace(level))
}
