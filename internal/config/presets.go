package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Subhashis360/API-Inspector/internal/filter"
)

// PresetsFile is the top-level YAML configuration for named filter presets.
type PresetsFile struct {
	Presets []filter.Config `yaml:"presets"`
}

// LoadPresets reads and validates a presets YAML file. Returns an
// os.ErrNotExist-wrapped error if the file is absent (caller silently skips
// in that case).
func LoadPresets(path string) (map[string]filter.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("presets config: %w", err)
	}
	return ParsePresets(data)
}

// ParsePresets decodes presets YAML. Every preset must be named and must
// compile; empty exclusion lists take the built-in defaults.
func ParsePresets(data []byte) (map[string]filter.Config, error) {
	var file PresetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("presets config: %w", err)
	}
	out := make(map[string]filter.Config, len(file.Presets))
	for i, p := range file.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("presets config: presets[%d] missing name", i)
		}
		if _, dup := out[p.Name]; dup {
			return nil, fmt.Errorf("presets config: duplicate preset %q", p.Name)
		}
		p = p.WithDefaults()
		if _, err := filter.Compile(p); err != nil {
			return nil, fmt.Errorf("presets config: preset %q: %w", p.Name, err)
		}
		out[p.Name] = p
	}
	return out, nil
}
