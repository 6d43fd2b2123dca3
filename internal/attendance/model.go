package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"faceattend/internal/recognition"
)

// Status is the persisted attendance state of a student.
type Status string

const (
	StatusRegistered Status = "Registered"
	StatusPresent    Status = "Present"
	StatusCheckedOut Status = "Checked Out"
)

// Intent is the action a submission asks for.
type Intent string

const (
	IntentRegister    Intent = "register"
	IntentMarkPresent Intent = "attendance"
	IntentCheckOut    Intent = "checkout"
)

// ParseIntent accepts the kiosk form values, including the legacy "existing" for registration.
func ParseIntent(s string) (Intent, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "register", "existing":
		return IntentRegister, true
	case "attendance", "present":
		return IntentMarkPresent, true
	case "checkout", "check_out", "checked_out":
		return IntentCheckOut, true
	}
	return "", false
}

// Rejection reasons reported with TRANSITION_REJECTED.
const (
	ReasonNotRegistered          = "NotRegistered"
	ReasonAlreadyMarkedToday     = "AlreadyMarkedToday"
	ReasonAlreadyCheckedOutToday = "AlreadyCheckedOutToday"
	ReasonMustMarkPresentFirst   = "MustMarkPresentFirst"
)

// DateLayout is the calendar-date format of Record.Date.
const DateLayout = "2006-01-02"

// Record is the single attendance row of a student, overwritten on every transition.
type Record struct {
	Class     string    `json:"className"`
	Student   string    `json:"studentName"`
	Status    Status    `json:"status"`
	Date      string    `json:"date"`
	UpdatedAt time.Time `json:"timestamp"`
	// Version increases by one on every write; conditional writes compare it.
	Version int64 `json:"version"`
}

// Identity returns the owning student identity.
func (r Record) Identity() recognition.Identity {
	return recognition.Identity{Class: r.Class, Name: r.Student}
}

// ErrConflict is returned by PutIfMatch when the stored version differs from the expected one.
var ErrConflict = errors.New("attendance record changed concurrently")

// RecordStore persists one Record per class|name key.
type RecordStore interface {
	// Get returns nil, nil when the student has no record.
	Get(ctx context.Context, id recognition.Identity) (*Record, error)
	// Upsert writes rec unconditionally and bumps its version.
	Upsert(ctx context.Context, rec Record) error
	// PutIfMatch writes rec only if the stored version equals expected; 0 means no record may exist.
	PutIfMatch(ctx context.Context, expected int64, rec Record) error
	ListByClass(ctx context.Context, class string) ([]Record, error)
}
