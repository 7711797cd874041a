/*
Package balanceapi reads and writes accrual balances through the HTTP API
of a remote accrual service.

PURPOSE:
  Lets the engine run against balances owned by another deployment (for
  example the consumer running next to Kafka while the database sits
  behind the API service). Implements the same three storage interfaces as
  the SQLite store.

ENDPOINTS USED:
  GET   /api/tenants/{t}/persons/{p}/agreements/applicable?date=YYYY-MM-DD
  GET   /api/tenants/{t}/persons/{p}/accruals?from=&to=
  PATCH /api/tenants/{t}/persons/{p}/accruals   {"accruals": [...]}

RETRIES:
  Transport errors and 5xx responses are retried by go-retryablehttp with
  bounded exponential backoff. 4xx responses are final. A 404 on the
  agreement lookup maps to generic.ErrAgreementNotFound.

RESPONSES:
  Success bodies are the resource itself; error bodies are
  {"error": "...", "details": "..."}. Both are read with gjson.

SEE ALSO:
  - api/handlers.go: The server side of these endpoints
  - generic/store.go: Interface definitions
*/
package balanceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/warp/accrual-engine/generic"
)

// Client talks to a remote accrual service.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	logger  logrus.FieldLogger
}

var _ generic.Store = (*Client)(nil)

// Options configures a Client.
type Options struct {
	RetryMax int
	Timeout  time.Duration
	Logger   logrus.FieldLogger
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = leveledLogger{logger}
	if opts.Timeout > 0 {
		retryClient.HTTPClient.Timeout = opts.Timeout
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    retryClient,
		logger:  logger,
	}
}

// =============================================================================
// STORAGE INTERFACES
// =============================================================================

// ApplicableAgreement fetches the agreement covering 'on'.
func (c *Client) ApplicableAgreement(ctx context.Context, tenantID generic.TenantID, personID generic.PersonID, on generic.Date) (generic.Agreement, error) {
	query := url.Values{"date": {on.String()}}
	body, status, err := c.do(ctx, http.MethodGet, c.personPath(tenantID, personID, "agreements/applicable"), query, nil)
	if err != nil {
		return generic.Agreement{}, err
	}
	if status == http.StatusNotFound {
		return generic.Agreement{}, generic.ErrAgreementNotFound
	}
	if err := statusError(status, body); err != nil {
		return generic.Agreement{}, err
	}
	return parseAgreement(gjson.ParseBytes(body))
}

// AccrualWindow fetches every row dated in [from, to].
func (c *Client) AccrualWindow(ctx context.Context, tenantID generic.TenantID, personID generic.PersonID, from, to generic.Date) ([]generic.AccrualRecord, error) {
	query := url.Values{"from": {from.String()}, "to": {to.String()}}
	body, status, err := c.do(ctx, http.MethodGet, c.personPath(tenantID, personID, "accruals"), query, nil)
	if err != nil {
		return nil, err
	}
	if err := statusError(status, body); err != nil {
		return nil, err
	}

	var records []generic.AccrualRecord
	var parseErr error
	gjson.ParseBytes(body).ForEach(func(_, value gjson.Result) bool {
		r, err := parseAccrual(value)
		if err != nil {
			parseErr = err
			return false
		}
		records = append(records, r)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return records, nil
}

// SaveAccruals sends one PATCH per person. The server applies each batch
// atomically; rows for several people are split into several batches.
func (c *Client) SaveAccruals(ctx context.Context, records []generic.AccrualRecord) error {
	type personKey struct {
		tenant generic.TenantID
		person generic.PersonID
	}
	var order []personKey
	batches := make(map[personKey][]AccrualPayload)
	for _, r := range records {
		k := personKey{r.TenantID, r.PersonID}
		if _, ok := batches[k]; !ok {
			order = append(order, k)
		}
		batches[k] = append(batches[k], ToPayload(r))
	}

	for _, k := range order {
		payload, err := json.Marshal(PatchRequest{Accruals: batches[k]})
		if err != nil {
			return fmt.Errorf("encode accruals: %w", err)
		}
		body, status, err := c.do(ctx, http.MethodPatch, c.personPath(k.tenant, k.person, "accruals"), nil, payload)
		if err != nil {
			return err
		}
		if err := statusError(status, body); err != nil {
			return err
		}
		c.logger.WithFields(logrus.Fields{
			"tenant_id": k.tenant,
			"person_id": k.person,
			"updated":   gjson.GetBytes(body, "updated").Int(),
		}).Debug("Accruals saved remotely")
	}
	return nil
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// AccrualPayload is one accrual row on the wire. Amounts are decimal strings.
type AccrualPayload struct {
	ID               string                     `json:"id"`
	TenantID         string                     `json:"tenant_id"`
	PersonID         string                     `json:"person_id"`
	AgreementID      string                     `json:"agreement_id"`
	Date             string                     `json:"date"`
	Type             string                     `json:"type"`
	CumulativeTotal  decimal.Decimal            `json:"cumulative_total"`
	CumulativeTarget decimal.Decimal            `json:"cumulative_target"`
	Contributions    map[string]decimal.Decimal `json:"contributions"`
	Total            decimal.Decimal            `json:"total"`
}

// PatchRequest is the body of the batch partial update.
type PatchRequest struct {
	Accruals []AccrualPayload `json:"accruals" validate:"required,min=1,dive"`
}

// ToPayload converts a row to its wire form.
func ToPayload(r generic.AccrualRecord) AccrualPayload {
	contributions := make(map[string]decimal.Decimal, len(r.Contributions))
	for id, amount := range r.Contributions {
		contributions[string(id)] = amount
	}
	return AccrualPayload{
		ID:               r.ID,
		TenantID:         string(r.TenantID),
		PersonID:         string(r.PersonID),
		AgreementID:      string(r.AgreementID),
		Date:             r.Date.String(),
		Type:             string(r.TypeID),
		CumulativeTotal:  r.CumulativeTotal,
		CumulativeTarget: r.CumulativeTarget,
		Contributions:    contributions,
		Total:            r.Total,
	}
}

// ToRecord converts a wire row back. Total is recomputed from the
// contributions rather than trusted.
func (p AccrualPayload) ToRecord() (generic.AccrualRecord, error) {
	date, err := generic.ParseDate(p.Date)
	if err != nil {
		return generic.AccrualRecord{}, err
	}
	r := generic.AccrualRecord{
		ID:               p.ID,
		TenantID:         generic.TenantID(p.TenantID),
		PersonID:         generic.PersonID(p.PersonID),
		AgreementID:      generic.AgreementID(p.AgreementID),
		Date:             date,
		TypeID:           generic.AccrualTypeID(p.Type),
		CumulativeTotal:  p.CumulativeTotal,
		CumulativeTarget: p.CumulativeTarget,
		Contributions:    make(map[generic.TimeRecordID]decimal.Decimal, len(p.Contributions)),
	}
	for id, amount := range p.Contributions {
		r.Contributions[generic.TimeRecordID(id)] = amount
	}
	r.RecomputeTotal()
	return r, nil
}

func parseAgreement(v gjson.Result) (generic.Agreement, error) {
	start, err := generic.ParseDate(v.Get("start_date").Str)
	if err != nil {
		return generic.Agreement{}, fmt.Errorf("agreement start_date: %w", err)
	}
	end, err := generic.ParseDate(v.Get("end_date").Str)
	if err != nil {
		return generic.Agreement{}, fmt.Errorf("agreement end_date: %w", err)
	}
	a := generic.Agreement{
		ID:        generic.AgreementID(v.Get("id").Str),
		TenantID:  generic.TenantID(v.Get("tenant_id").Str),
		PersonID:  generic.PersonID(v.Get("person_id").Str),
		StartDate: start,
		EndDate:   end,
	}
	if terms := v.Get("terms"); terms.Exists() && terms.Type != gjson.Null {
		a.Terms = json.RawMessage(terms.Raw)
	}
	return a, nil
}

func parseAccrual(v gjson.Result) (generic.AccrualRecord, error) {
	var p AccrualPayload
	if err := json.Unmarshal([]byte(v.Raw), &p); err != nil {
		return generic.AccrualRecord{}, fmt.Errorf("decode accrual: %w", err)
	}
	return p.ToRecord()
}

// =============================================================================
// TRANSPORT
// =============================================================================

// StatusError is a non-2xx answer from the remote service.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("balance api: %d %s", e.Status, e.Message)
}

func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := gjson.GetBytes(body, "error").Str
	if details := gjson.GetBytes(body, "details").Str; details != "" {
		msg += ": " + details
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &StatusError{Status: status, Message: msg}
}

func (c *Client) personPath(tenantID generic.TenantID, personID generic.PersonID, suffix string) string {
	return fmt.Sprintf("/api/tenants/%s/persons/%s/%s",
		url.PathEscape(string(tenantID)), url.PathEscape(string(personID)), suffix)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("balance api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logrus.FieldLogger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.fields(kv).Error(msg) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.fields(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.fields(kv).Debug(msg) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.fields(kv).Warn(msg) }

func (l leveledLogger) fields(kv []any) logrus.FieldLogger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.WithFields(fields)
}
