package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/apperrors"
	"faceattend/internal/recognition"
)

var (
	alice     = recognition.Identity{Class: "7A", Name: "Alice"}
	now       = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	today     = "2026-10-16"
	yesterday = "2026-10-15"
)

func rejectedWith(reason string) *apperrors.Error {
	return &apperrors.Error{Code: apperrors.CodeTransitionRejected, Reason: reason}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		intent  Intent
		current *Record
		want    Status
		reason  string
	}{
		{"register unregistered", IntentRegister, nil, StatusRegistered, ""},
		{"register overwrites", IntentRegister, &Record{Status: StatusCheckedOut, Date: today}, StatusRegistered, ""},
		{"present unregistered", IntentMarkPresent, nil, "", ReasonNotRegistered},
		{"checkout unregistered", IntentCheckOut, nil, "", ReasonNotRegistered},
		{"present from registered today", IntentMarkPresent, &Record{Status: StatusRegistered, Date: today}, StatusPresent, ""},
		{"present twice today", IntentMarkPresent, &Record{Status: StatusPresent, Date: today}, "", ReasonAlreadyMarkedToday},
		{"present after checkout today", IntentMarkPresent, &Record{Status: StatusCheckedOut, Date: today}, "", ReasonAlreadyMarkedToday},
		{"present after yesterday present", IntentMarkPresent, &Record{Status: StatusPresent, Date: yesterday}, StatusPresent, ""},
		{"present after yesterday checkout", IntentMarkPresent, &Record{Status: StatusCheckedOut, Date: yesterday}, StatusPresent, ""},
		{"checkout after present today", IntentCheckOut, &Record{Status: StatusPresent, Date: today}, StatusCheckedOut, ""},
		{"checkout twice today", IntentCheckOut, &Record{Status: StatusCheckedOut, Date: today}, "", ReasonAlreadyCheckedOutToday},
		{"checkout when only registered", IntentCheckOut, &Record{Status: StatusRegistered, Date: today}, "", ReasonMustMarkPresentFirst},
		{"checkout on yesterday present", IntentCheckOut, &Record{Status: StatusPresent, Date: yesterday}, "", ReasonMustMarkPresentFirst},
		{"checkout on yesterday checkout", IntentCheckOut, &Record{Status: StatusCheckedOut, Date: yesterday}, "", ReasonMustMarkPresentFirst},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Transition(alice, tc.intent, tc.current, now, time.UTC)
			if tc.reason != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, rejectedWith(tc.reason)), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Status)
			assert.Equal(t, today, got.Date)
			assert.Equal(t, "7A", got.Class)
			assert.Equal(t, "Alice", got.Student)
			assert.Equal(t, now, got.UpdatedAt)
		})
	}
}

func TestTransitionUsesReportingTimezone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 20:00 UTC on the 15th is already the 16th in Kolkata.
	late := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)
	cur := &Record{Status: StatusPresent, Date: yesterday}

	got, err := Transition(alice, IntentMarkPresent, cur, late, kolkata)
	require.NoError(t, err)
	assert.Equal(t, today, got.Date)

	_, err = Transition(alice, IntentMarkPresent, cur, late, time.UTC)
	assert.True(t, errors.Is(err, rejectedWith(ReasonAlreadyMarkedToday)))
}

func TestTransitionUnknownIntent(t *testing.T) {
	_, err := Transition(alice, Intent("teleport"), &Record{Status: StatusPresent, Date: today}, now, nil)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestParseIntent(t *testing.T) {
	cases := map[string]Intent{
		"existing":   IntentRegister,
		"Register":   IntentRegister,
		"attendance": IntentMarkPresent,
		"checkout":   IntentCheckOut,
	}
	for in, want := range cases {
		got, ok := ParseIntent(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseIntent("lunch")
	assert.False(t, ok)
}
