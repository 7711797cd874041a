/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Accrual types:
    AccrualTypeDTO

  Agreements:
    AgreementDTO, CreateAgreementRequest, CreateAgreementResponse

  Accruals:
    AccrualDTO (shared with balanceapi), PatchAccrualsRequest, BalanceDTO

  Time records:
    TimeRecordRequest, RecalculationResponse

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator struct tags. Handlers call
  h.validate.Struct before touching the store.

AMOUNTS:
  Decimal amounts are JSON strings ("6600", "12.5") so no precision is lost.

SEE ALSO:
  - handlers.go: Uses these types
  - balanceapi/client.go: AccrualPayload, the accrual wire format
*/
package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/warp/accrual-engine/balanceapi"
	"github.com/warp/accrual-engine/events"
	"github.com/warp/accrual-engine/generic"
)

// =============================================================================
// ACCRUAL TYPES
// =============================================================================

// AccrualTypeDTO represents an enabled accrual type.
type AccrualTypeDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Unit    string `json:"unit"`
	Enabled bool   `json:"enabled"`
}

func toAccrualTypeDTO(t generic.AccrualType) AccrualTypeDTO {
	return AccrualTypeDTO{
		ID:      string(t.ID),
		Name:    t.Name,
		Unit:    string(t.Unit),
		Enabled: t.Enabled,
	}
}

// =============================================================================
// AGREEMENTS
// =============================================================================

// AgreementDTO represents an agreement in API responses.
type AgreementDTO struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	PersonID  string          `json:"person_id"`
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	Terms     json.RawMessage `json:"terms,omitempty"`
}

func toAgreementDTO(a generic.Agreement) AgreementDTO {
	return AgreementDTO{
		ID:        string(a.ID),
		TenantID:  string(a.TenantID),
		PersonID:  string(a.PersonID),
		StartDate: a.StartDate.String(),
		EndDate:   a.EndDate.String(),
		Terms:     a.Terms,
	}
}

// CreateAgreementRequest is the request to create an agreement and seed
// its accrual rows.
type CreateAgreementRequest struct {
	ID        string          `json:"id"` // generated when empty
	StartDate string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	Terms     json.RawMessage `json:"terms,omitempty"`

	// DailyTarget is accumulated into each seeded row's cumulative target.
	DailyTarget decimal.Decimal `json:"daily_target"`

	// SkipCarryOver leaves the day before StartDate unseeded.
	SkipCarryOver bool `json:"skip_carry_over"`
}

// CreateAgreementResponse reports the agreement and how many rows were seeded.
type CreateAgreementResponse struct {
	Agreement AgreementDTO `json:"agreement"`
	Seeded    int          `json:"seeded"`
}

// =============================================================================
// ACCRUALS
// =============================================================================

// AccrualDTO is one accrual row. The same shape is consumed by balanceapi.
type AccrualDTO = balanceapi.AccrualPayload

// PatchAccrualsRequest is the batch partial update body.
type PatchAccrualsRequest = balanceapi.PatchRequest

// PatchAccrualsResponse reports how many rows were written.
type PatchAccrualsResponse struct {
	Updated int `json:"updated"`
}

func toAccrualDTOs(records []generic.AccrualRecord) []AccrualDTO {
	dtos := make([]AccrualDTO, len(records))
	for i, r := range records {
		dtos[i] = balanceapi.ToPayload(r)
	}
	return dtos
}

// BalanceDTO is one accrual type's position on a date.
type BalanceDTO struct {
	Type        string          `json:"type"`
	AgreementID string          `json:"agreement_id"`
	AsOf        string          `json:"as_of"`
	Total       decimal.Decimal `json:"total"`
	Target      decimal.Decimal `json:"target"`
	Difference  decimal.Decimal `json:"difference"`
	OnTarget    bool            `json:"on_target"`
}

func toBalanceDTO(b generic.Balance) BalanceDTO {
	return BalanceDTO{
		Type:        string(b.TypeID),
		AgreementID: string(b.AgreementID),
		AsOf:        b.AsOf.String(),
		Total:       b.Total,
		Target:      b.Target,
		Difference:  b.Difference(),
		OnTarget:    b.OnTarget(),
	}
}

// =============================================================================
// TIME RECORDS
// =============================================================================

// TimeRecordRequest is the body of POST /api/time-records/{action}.
type TimeRecordRequest = events.TimeRecordPayload

// RecalculationResponse lists the rows recomputed and persisted.
type RecalculationResponse struct {
	Action       string       `json:"action"`
	TimeRecordID string       `json:"time_record_id"`
	Changed      []AccrualDTO `json:"changed"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
