/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates agreements, seeds their accrual
	rows and replays time records through the real recalculator, so the
	balances shown are exactly what the engine computes.

AVAILABLE SCENARIOS:

	annual-target:    Twelve 9h days (6480 min), then 08:00-10:00 on day 13
	                  takes the running total to 6600
	night-shift:      Night-hours windows, including a shift across midnight
	agreement-change: A record spanning two agreements; the later agreement
	                  governs and its running total starts from zero

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create agreements and seed accrual rows
 3. Replay CREATE (and DELETE) time records through the recalculator

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "annual-target"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Agreement and accrual endpoints
  - worktime/seed.go: Row seeding
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/accrual-engine/generic"
	"github.com/warp/accrual-engine/worktime"
)

// DemoTenant and DemoPerson own all scenario data.
const (
	DemoTenant generic.TenantID = "demo"
	DemoPerson generic.PersonID = "alice"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "annual-target",
		Name:        "Annual Target",
		Description: "Twelve 9-hour days, then a 2-hour record taking the running total from 6480 to 6600 minutes",
	},
	{
		ID:          "night-shift",
		Name:        "Night Shift",
		Description: "Early-morning and cross-midnight shifts accruing night hours",
	},
	{
		ID:          "agreement-change",
		Name:        "Agreement Change",
		Description: "A shift spanning the switch to a new agreement; the new agreement's total starts from zero",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, map[string]any{"scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "annual-target":
		load = h.loadAnnualTargetScenario
	case "night-shift":
		load = h.loadNightShiftScenario
	case "agreement-change":
		load = h.loadAgreementChangeScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()

	h.mu.Lock()
	defer h.mu.Unlock()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadAnnualTargetScenario(ctx context.Context) error {
	agreement := generic.Agreement{
		ID:        "agr-2024",
		TenantID:  DemoTenant,
		PersonID:  DemoPerson,
		StartDate: generic.NewDate(2024, time.March, 1),
		EndDate:   generic.NewDate(2024, time.December, 31),
	}
	// 1800 hours a year spread over the calendar days of the agreement
	daily := decimal.NewFromInt(1800 * 60).Div(decimal.NewFromInt(366)).Round(2)
	if err := h.provision(ctx, agreement, daily); err != nil {
		return err
	}

	for day := 1; day <= 12; day++ {
		id := generic.TimeRecordID(fmt.Sprintf("tr-day-%02d", day))
		if err := h.replay(ctx, id, clock(2024, time.March, day, 9), clock(2024, time.March, day, 18)); err != nil {
			return err
		}
	}
	return h.replay(ctx, "tr-day-13", clock(2024, time.March, 13, 8), clock(2024, time.March, 13, 10))
}

func (h *Handler) loadNightShiftScenario(ctx context.Context) error {
	agreement := generic.Agreement{
		ID:        "agr-night",
		TenantID:  DemoTenant,
		PersonID:  DemoPerson,
		StartDate: generic.NewDate(2024, time.January, 1),
		EndDate:   generic.NewDate(2024, time.December, 31),
	}
	if err := h.provision(ctx, agreement, decimal.Zero); err != nil {
		return err
	}

	shifts := []struct {
		id         generic.TimeRecordID
		start, end time.Time
	}{
		{"tr-early", clock(2024, time.June, 3, 0), clock(2024, time.June, 3, 6)},      // 360 night
		{"tr-morning", clock(2024, time.June, 4, 4), clock(2024, time.June, 4, 10)},   // 120 night
		{"tr-overnight", clock(2024, time.June, 5, 22), clock(2024, time.June, 6, 1)}, // 60 + 60 night
		{"tr-cancelled", clock(2024, time.June, 7, 23), clock(2024, time.June, 8, 5)},
	}
	for _, s := range shifts {
		if err := h.replay(ctx, s.id, s.start, s.end); err != nil {
			return err
		}
	}

	// The last shift was entered by mistake
	last := shifts[len(shifts)-1]
	_, err := h.Recalculator.Handle(ctx, h.demoRecord(last.id, last.start, last.end), generic.ActionDelete)
	return err
}

func (h *Handler) loadAgreementChangeScenario(ctx context.Context) error {
	first := generic.Agreement{
		ID:        "agr-h1",
		TenantID:  DemoTenant,
		PersonID:  DemoPerson,
		StartDate: generic.NewDate(2024, time.January, 1),
		EndDate:   generic.NewDate(2024, time.June, 30),
	}
	second := generic.Agreement{
		ID:        "agr-h2",
		TenantID:  DemoTenant,
		PersonID:  DemoPerson,
		StartDate: generic.NewDate(2024, time.July, 1),
		EndDate:   generic.NewDate(2024, time.December, 31),
	}
	if err := h.provision(ctx, first, decimal.Zero); err != nil {
		return err
	}
	if err := h.provision(ctx, second, decimal.Zero); err != nil {
		return err
	}

	if err := h.replay(ctx, "tr-june", clock(2024, time.June, 28, 9), clock(2024, time.June, 28, 17)); err != nil {
		return err
	}
	// Ends in the second agreement, so the second agreement governs
	return h.replay(ctx, "tr-switch", clock(2024, time.June, 30, 20), clock(2024, time.July, 1, 4))
}

// =============================================================================
// HELPERS
// =============================================================================

// provision saves an agreement and seeds its rows for every enabled type.
func (h *Handler) provision(ctx context.Context, agreement generic.Agreement, dailyTarget decimal.Decimal) error {
	if err := h.Store.SaveAgreement(ctx, agreement); err != nil {
		return err
	}
	rows := worktime.SeedAccruals(agreement, generic.AccrualTypes(h.Modules), worktime.SeedOptions{
		DailyTarget: dailyTarget,
	})
	_, err := h.Store.SeedAccruals(ctx, rows)
	return err
}

func (h *Handler) replay(ctx context.Context, id generic.TimeRecordID, start, end time.Time) error {
	_, err := h.Recalculator.Handle(ctx, h.demoRecord(id, start, end), generic.ActionCreate)
	if err != nil {
		return fmt.Errorf("time record %s: %w", id, err)
	}
	return nil
}

func (h *Handler) demoRecord(id generic.TimeRecordID, start, end time.Time) generic.TimeRecord {
	return generic.TimeRecord{
		ID:       id,
		TenantID: DemoTenant,
		PersonID: DemoPerson,
		Start:    start,
		End:      end,
	}
}

func clock(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}
