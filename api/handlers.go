/*
handlers.go - HTTP API handlers for the accrual engine

PURPOSE:
  Exposes accrual balances and the recalculation engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  store and worktime.Recalculator.

ENDPOINTS:
  Accrual types:
    GET    /api/accrual-types                              Registered types

  Agreements (per person, under /api/tenants/{tenantID}/persons/{personID}):
    GET    /agreements                                     List agreements
    POST   /agreements                                     Create + seed rows
    GET    /agreements/applicable?date=YYYY-MM-DD          Agreement in force

  Accruals (same prefix):
    GET    /accruals?from=&to=&type=                       Rows in a window
    PATCH  /accruals                                       Batch partial update
    GET    /balances?date=YYYY-MM-DD                       Total vs target per type

  Time records:
    POST   /api/time-records/{action}                      create | update | delete

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validator struct tags)
  3. Call the store or the recalculator
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, invalid range
  - 404: No applicable agreement
  - 409: Stored accrual rows cannot support the calculation
  - 422: Unsupported action (UPDATE)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Tenant and person ids are taken from
  the path as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/accrual-engine/generic"
	"github.com/warp/accrual-engine/store/sqlite"
	"github.com/warp/accrual-engine/worktime"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	Recalculator *worktime.Recalculator
	Modules      []generic.AccrualModule
	Logger       logrus.FieldLogger

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. The recalculator must read from and
// write to store.
func NewHandler(store *sqlite.Store, recalc *worktime.Recalculator, modules []generic.AccrualModule, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		Store:        store,
		Recalculator: recalc,
		Modules:      modules,
		Logger:       logger,
		validate:     validator.New(),
	}
}

// =============================================================================
// ACCRUAL TYPE HANDLERS
// =============================================================================

// ListAccrualTypes returns every registered accrual type, ordered by id.
// Enabled is true only for the types this deployment calculates.
func (h *Handler) ListAccrualTypes(w http.ResponseWriter, r *http.Request) {
	active := make(map[generic.AccrualTypeID]bool, len(h.Modules))
	for _, m := range h.Modules {
		active[m.AccrualType().ID] = true
	}

	registered := generic.AccrualTypes(generic.ListModules())
	dtos := make([]AccrualTypeDTO, len(registered))
	for i, t := range registered {
		t.Enabled = t.Enabled && active[t.ID]
		dtos[i] = toAccrualTypeDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AGREEMENT HANDLERS
// =============================================================================

// ListAgreements returns a person's agreements ordered by start date.
func (h *Handler) ListAgreements(w http.ResponseWriter, r *http.Request) {
	tenantID, personID := personParams(r)

	agreements, err := h.Store.ListAgreements(r.Context(), tenantID, personID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list agreements", err)
		return
	}

	dtos := make([]AgreementDTO, len(agreements))
	for i, a := range agreements {
		dtos[i] = toAgreementDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAgreement stores an agreement and seeds one accrual row per enabled
// type per day, plus the carry-over row for the day before the start.
func (h *Handler) CreateAgreement(w http.ResponseWriter, r *http.Request) {
	tenantID, personID := personParams(r)

	var req CreateAgreementRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, _ := generic.ParseDate(req.StartDate)
	end, _ := generic.ParseDate(req.EndDate)
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date must not be before start_date", generic.ErrInvalidRange)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	agreement := generic.Agreement{
		ID:        generic.AgreementID(req.ID),
		TenantID:  tenantID,
		PersonID:  personID,
		StartDate: start,
		EndDate:   end,
		Terms:     req.Terms,
	}

	ctx := r.Context()
	if err := h.Store.SaveAgreement(ctx, agreement); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save agreement", err)
		return
	}

	rows := worktime.SeedAccruals(agreement, generic.AccrualTypes(h.Modules), worktime.SeedOptions{
		SkipCarryOver: req.SkipCarryOver,
		DailyTarget:   req.DailyTarget,
	})
	seeded, err := h.Store.SeedAccruals(ctx, rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed accruals", err)
		return
	}

	h.Logger.WithFields(logrus.Fields{
		"tenant_id":    tenantID,
		"person_id":    personID,
		"agreement_id": agreement.ID,
		"seeded":       seeded,
	}).Info("Agreement created")

	writeJSON(w, http.StatusCreated, CreateAgreementResponse{
		Agreement: toAgreementDTO(agreement),
		Seeded:    seeded,
	})
}

// GetApplicableAgreement returns the agreement in force on ?date=.
func (h *Handler) GetApplicableAgreement(w http.ResponseWriter, r *http.Request) {
	tenantID, personID := personParams(r)

	on, err := generic.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
		return
	}

	agreement, err := h.Store.ApplicableAgreement(r.Context(), tenantID, personID, on)
	if errors.Is(err, generic.ErrAgreementNotFound) {
		writeError(w, http.StatusNotFound, "agreement not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve agreement", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementDTO(agreement))
}

// GetBalances returns each accrual type's total and target on ?date=.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	tenantID, personID := personParams(r)

	on, err := generic.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
		return
	}

	agreement, err := h.Store.ApplicableAgreement(r.Context(), tenantID, personID, on)
	if errors.Is(err, generic.ErrAgreementNotFound) {
		writeError(w, http.StatusNotFound, "agreement not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve agreement", err)
		return
	}

	records, err := h.Store.AccrualWindow(r.Context(), tenantID, personID, agreement.StartDate, on)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load accruals", err)
		return
	}

	balances := generic.BalancesAsOf(records, on)
	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toBalanceDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ACCRUAL HANDLERS
// =============================================================================

// ListAccruals returns the rows dated in [from, to], optionally one type only.
func (h *Handler) ListAccruals(w http.ResponseWriter, r *http.Request) {
	tenantID, personID := personParams(r)
	q := r.URL.Query()

	from, err := generic.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD", err)
		return
	}
	to, err := generic.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from", generic.ErrInvalidRange)
		return
	}

	records, err := h.Store.AccrualWindow(r.Context(), tenantID, personID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load accruals", err)
		return
	}

	if typeID := q.Get("type"); typeID != "" {
		filtered := records[:0]
		for _, rec := range records {
			if string(rec.TypeID) == typeID {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	writeJSON(w, http.StatusOK, toAccrualDTOs(records))
}

// PatchAccruals writes a batch of rows atomically. Every row must belong to
// the person in the path.
func (h *Handler) PatchAccruals(w http.ResponseWriter, r *http.Request) {
	tenantID, personID := personParams(r)

	var req PatchAccrualsRequest
	if !h.decode(w, r, &req) {
		return
	}

	records := make([]generic.AccrualRecord, 0, len(req.Accruals))
	for i, p := range req.Accruals {
		if p.TenantID != string(tenantID) || p.PersonID != string(personID) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("accruals[%d] belongs to another person", i), nil)
			return
		}
		rec, err := p.ToRecord()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("accruals[%d] is invalid", i), err)
			return
		}
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		records = append(records, rec)
	}

	if err := h.Store.SaveAccruals(r.Context(), records); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save accruals", err)
		return
	}
	writeJSON(w, http.StatusOK, PatchAccrualsResponse{Updated: len(records)})
}

// =============================================================================
// TIME RECORD HANDLERS
// =============================================================================

// RecalculateTimeRecord applies a create/update/delete of a time record and
// returns the persisted rows.
func (h *Handler) RecalculateTimeRecord(w http.ResponseWriter, r *http.Request) {
	action, err := generic.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "action must be create, update or delete", err)
		return
	}

	var req TimeRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	record := req.ToTimeRecord()

	changed, err := h.Recalculator.Handle(r.Context(), record, action)
	if err != nil {
		writeError(w, statusFor(err), "Recalculation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, RecalculationResponse{
		Action:       string(action),
		TimeRecordID: string(record.ID),
		Changed:      toAccrualDTOs(changed),
	})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrUnsupportedAction):
		return http.StatusUnprocessableEntity
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsDataError(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func personParams(r *http.Request) (generic.TenantID, generic.PersonID) {
	return generic.TenantID(chi.URLParam(r, "tenantID")), generic.PersonID(chi.URLParam(r, "personID"))
}

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "validation",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
