package factory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/accrual-engine/factory"
	"github.com/warp/accrual-engine/generic"
	"github.com/warp/accrual-engine/worktime"
)

func TestFromIDs(t *testing.T) {
	modules, err := factory.NewModuleFactory().FromIDs([]string{"annual_target_hours", "night_hours"})

	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, worktime.TypeAnnualTargetHours, modules[0].AccrualType().ID)
	assert.Equal(t, worktime.TypeNightHours, modules[1].AccrualType().ID)
}

func TestParseModules_NightHoursSettings(t *testing.T) {
	// GIVEN a night-hours config with its own zone and window
	modules, err := factory.NewModuleFactory().ParseModules(`[
		{"type": "night_hours", "timezone": "Europe/Berlin", "windows": [{"start_hour": 22, "end_hour": 24}]}
	]`)

	// THEN the module carries both
	require.NoError(t, err)
	require.Len(t, modules, 1)
	night, ok := modules[0].(worktime.NightHours)
	require.True(t, ok)
	assert.Equal(t, "Europe/Berlin", night.Location.String())
	assert.Equal(t, []worktime.NightWindow{{StartHour: 22, EndHour: 24}}, night.Windows)
}

func TestParseModules_DisabledSkipped(t *testing.T) {
	modules, err := factory.NewModuleFactory().ParseModules(`[
		{"type": "annual_target_hours"},
		{"type": "night_hours", "enabled": false}
	]`)

	require.NoError(t, err)
	assert.Len(t, modules, 1)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name  string
		specs []factory.ModuleJSON
		want  string
	}{
		{"unknown type", []factory.ModuleJSON{{Type: "overtime"}}, "unknown accrual type"},
		{"duplicate", []factory.ModuleJSON{{Type: "night_hours"}, {Type: "night_hours"}}, "configured twice"},
		{"bad timezone", []factory.ModuleJSON{{Type: "night_hours", Timezone: "Mars/Olympus"}}, "timezone"},
		{"bad window", []factory.ModuleJSON{{Type: "night_hours", Windows: []factory.WindowJSON{{StartHour: 6, EndHour: 2}}}}, "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.NewModuleFactory().Build(tt.specs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuild_NothingEnabled(t *testing.T) {
	off := false
	_, err := factory.NewModuleFactory().Build([]factory.ModuleJSON{{Type: "night_hours", Enabled: &off}})

	assert.ErrorIs(t, err, generic.ErrNoAccrualModules)
}

func TestParseModules_InvalidJSON(t *testing.T) {
	_, err := factory.NewModuleFactory().ParseModules(`{`)
	assert.Error(t, err)
}

func TestBuild_DefaultNightHoursIsUTC(t *testing.T) {
	modules, err := factory.NewModuleFactory().FromIDs([]string{"night_hours"})
	require.NoError(t, err)

	night := modules[0].(worktime.NightHours)
	assert.Equal(t, time.UTC, night.Location)
	assert.Equal(t, worktime.DefaultNightWindows, night.Windows)
}
