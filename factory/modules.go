/*
Package factory builds the active accrual modules from configuration.

PURPOSE:
  Which accrual types a deployment tracks is a wiring concern, not engine
  logic. The factory turns a static list of module configs (from the config
  file, env or a JSON string) into the []generic.AccrualModule the
  Calculator runs.

JSON SCHEMA:
  [
    {"type": "annual_target_hours"},
    {
      "type": "night_hours",
      "timezone": "UTC",
      "windows": [{"start_hour": 0, "end_hour": 6}, {"start_hour": 23, "end_hour": 24}]
    },
    {"type": "some_future_type", "enabled": false}
  ]

RULES:
  - Unknown type ids are an error (no silent fallback)
  - Disabled entries are skipped
  - Duplicate type ids are an error
  - An empty result is generic.ErrNoAccrualModules

USAGE:
  f := factory.NewModuleFactory()
  modules, err := f.ParseModules(`[{"type":"annual_target_hours"}]`)

SEE ALSO:
  - generic/accrual.go: Module registry
  - worktime/accrual.go: Built-in modules
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/accrual-engine/generic"
	"github.com/warp/accrual-engine/worktime"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ModuleJSON configures one accrual module.
type ModuleJSON struct {
	Type     string       `json:"type" mapstructure:"type"`
	Enabled  *bool        `json:"enabled,omitempty" mapstructure:"enabled"`
	Timezone string       `json:"timezone,omitempty" mapstructure:"timezone"`
	Windows  []WindowJSON `json:"windows,omitempty" mapstructure:"windows"`
}

// WindowJSON is a night window in whole local hours.
type WindowJSON struct {
	StartHour int `json:"start_hour" mapstructure:"start_hour"`
	EndHour   int `json:"end_hour" mapstructure:"end_hour"`
}

// IsEnabled defaults to true when unset.
func (m ModuleJSON) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// =============================================================================
// MODULE FACTORY
// =============================================================================

// ModuleFactory converts module configs to accrual modules.
type ModuleFactory struct{}

// NewModuleFactory creates a new module factory.
func NewModuleFactory() *ModuleFactory {
	return &ModuleFactory{}
}

// ParseModules parses a JSON array of module configs.
func (f *ModuleFactory) ParseModules(jsonStr string) ([]generic.AccrualModule, error) {
	var specs []ModuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &specs); err != nil {
		return nil, fmt.Errorf("failed to parse modules JSON: %w", err)
	}
	return f.Build(specs)
}

// FromIDs builds modules with default settings for each type id.
func (f *ModuleFactory) FromIDs(ids []string) ([]generic.AccrualModule, error) {
	specs := make([]ModuleJSON, len(ids))
	for i, id := range ids {
		specs[i] = ModuleJSON{Type: id}
	}
	return f.Build(specs)
}

// Build converts module configs to modules, in config order.
func (f *ModuleFactory) Build(specs []ModuleJSON) ([]generic.AccrualModule, error) {
	seen := make(map[generic.AccrualTypeID]bool)
	var modules []generic.AccrualModule

	for _, spec := range specs {
		if !spec.IsEnabled() {
			continue
		}
		id := generic.AccrualTypeID(spec.Type)
		if seen[id] {
			return nil, fmt.Errorf("accrual type %q configured twice", spec.Type)
		}
		seen[id] = true

		module, err := f.buildModule(id, spec)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}

	if len(modules) == 0 {
		return nil, generic.ErrNoAccrualModules
	}
	return modules, nil
}

func (f *ModuleFactory) buildModule(id generic.AccrualTypeID, spec ModuleJSON) (generic.AccrualModule, error) {
	switch id {
	case worktime.TypeNightHours:
		return parseNightHours(spec)
	default:
		// Modules without settings come straight from the registry.
		module := generic.LookupModule(id)
		if module == nil {
			return nil, fmt.Errorf("unknown accrual type %q", spec.Type)
		}
		return module, nil
	}
}

func parseNightHours(spec ModuleJSON) (generic.AccrualModule, error) {
	loc := time.UTC
	if spec.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(spec.Timezone)
		if err != nil {
			return nil, fmt.Errorf("night_hours timezone: %w", err)
		}
	}

	module := worktime.NewNightHours(loc)
	if len(spec.Windows) > 0 {
		module.Windows = make([]worktime.NightWindow, len(spec.Windows))
		for i, w := range spec.Windows {
			if w.StartHour < 0 || w.EndHour > 24 || w.EndHour <= w.StartHour {
				return nil, fmt.Errorf("night_hours window %d-%d is invalid", w.StartHour, w.EndHour)
			}
			module.Windows[i] = worktime.NightWindow{StartHour: w.StartHour, EndHour: w.EndHour}
		}
	}
	return module, nil
}
