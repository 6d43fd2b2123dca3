package attendance

import (
	"fmt"
	"time"

	"faceattend/internal/apperrors"
	"faceattend/internal/recognition"
)

// Transition computes the next record for id, or a TRANSITION_REJECTED error.
// current is nil when the student has no record. The day boundary is evaluated in loc,
// and a record dated before today carries no same-day state.
func Transition(id recognition.Identity, intent Intent, current *Record, now time.Time, loc *time.Location) (Record, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc).Format(DateLayout)
	next := Record{Class: id.Class, Student: id.Name, Date: today, UpdatedAt: now.UTC()}

	if intent == IntentRegister {
		next.Status = StatusRegistered
		return next, nil
	}

	if current == nil {
		return Record{}, apperrors.Rejected(ReasonNotRegistered,
			fmt.Sprintf("%s is not registered in class %s", id.Name, id.Class))
	}
	sameDay := current.Date == today

	switch intent {
	case IntentMarkPresent:
		if sameDay && (current.Status == StatusPresent || current.Status == StatusCheckedOut) {
			return Record{}, apperrors.Rejected(ReasonAlreadyMarkedToday,
				fmt.Sprintf("%s is already marked present today", id.Name))
		}
		next.Status = StatusPresent
		return next, nil

	case IntentCheckOut:
		if sameDay && current.Status == StatusCheckedOut {
			return Record{}, apperrors.Rejected(ReasonAlreadyCheckedOutToday,
				fmt.Sprintf("%s has already checked out today", id.Name))
		}
		if sameDay && current.Status == StatusPresent {
			next.Status = StatusCheckedOut
			return next, nil
		}
		return Record{}, apperrors.Rejected(ReasonMustMarkPresentFirst,
			fmt.Sprintf("%s cannot check out without being marked present first", id.Name))
	}

	return Record{}, apperrors.Validation(fmt.Sprintf("unknown intent %q", intent))
}
