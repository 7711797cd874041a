package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/warp/accrual-engine/generic"
)

// SupportedMajorVersion is the schema major this consumer understands.
const SupportedMajorVersion = "1"

// ErrInvalidMessage marks a message that will never be processable.
var ErrInvalidMessage = errors.New("invalid change event")

// ChangeEvent announces that a time record was created, updated or deleted.
type ChangeEvent struct {
	SchemaVersion string            `json:"schema_version" validate:"required"`
	Action        string            `json:"action" validate:"required"`
	TimeRecord    TimeRecordPayload `json:"time_record"`
}

// TimeRecordPayload is a time record on the wire. Instants are RFC 3339
// with an offset.
type TimeRecordPayload struct {
	ID       string    `json:"id" validate:"required"`
	TenantID string    `json:"tenant_id" validate:"required"`
	PersonID string    `json:"person_id" validate:"required"`
	Start    time.Time `json:"start" validate:"required"`
	End      time.Time `json:"end" validate:"required"`
}

// ToTimeRecord converts the payload.
func (p TimeRecordPayload) ToTimeRecord() generic.TimeRecord {
	return generic.TimeRecord{
		ID:       generic.TimeRecordID(p.ID),
		TenantID: generic.TenantID(p.TenantID),
		PersonID: generic.PersonID(p.PersonID),
		Start:    p.Start,
		End:      p.End,
	}
}

var validate = validator.New()

// ParseChangeEvent decodes and validates a message value. Every error it
// returns wraps ErrInvalidMessage.
func ParseChangeEvent(data []byte) (*ChangeEvent, generic.Action, error) {
	var evt ChangeEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := validate.Struct(&evt); err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidMessage, describe(err))
	}
	if major := strings.SplitN(evt.SchemaVersion, ".", 2)[0]; major != SupportedMajorVersion {
		return nil, "", fmt.Errorf("%w: schema version %q not supported", ErrInvalidMessage, evt.SchemaVersion)
	}
	action, err := generic.ParseAction(evt.Action)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &evt, action, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
