package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRejectedMatchesByReason(t *testing.T) {
	err := fmt.Errorf("submit: %w", Rejected("AlreadyMarkedToday", "already marked"))

	assert.True(t, errors.Is(err, ErrTransitionRejected))
	assert.True(t, errors.Is(err, &Error{Code: CodeTransitionRejected, Reason: "AlreadyMarkedToday"}))
	assert.False(t, errors.Is(err, &Error{Code: CodeTransitionRejected, Reason: "MustMarkPresentFirst"}))
	assert.False(t, errors.Is(err, ErrNoMatch))
}

func TestFromErrorNormalisesUnknown(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, CodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	wrapped := FromError(fmt.Errorf("ctx: %w", StoreUnavailable(errors.New("io"), "record write failed")))
	assert.Equal(t, CodeStoreUnavailable, wrapped.Code)
	assert.Equal(t, "record write failed: io", wrapped.Error())
}

func TestResolverUnavailableIsNotNoMatch(t *testing.T) {
	err := ResolverUnavailable(errors.New("timeout"))
	assert.True(t, errors.Is(err, ErrResolverUnavailable))
	assert.False(t, errors.Is(err, ErrNoMatch))
	assert.Nil(t, FromError(nil))
}
