package scenario

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/lossim/internal/domain"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// LoadPreset reads a named scenario from the embedded presets.
func LoadPreset(name string) (*domain.Scenario, error) {
	data, err := presetFS.ReadFile("presets/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("preset %q not found (available: %s): %w",
			name, strings.Join(ListPresets(), ", "), err)
	}

	var s domain.Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse preset %q: %w", name, err)
	}
	if s.Name == "" {
		s.Name = name
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("preset %q: %w", name, err)
	}
	return &s, nil
}

// ListPresets returns the names of all embedded presets, sorted.
func ListPresets() []string {
	entries, _ := presetFS.ReadDir("presets")
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}
