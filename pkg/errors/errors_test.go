package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("approve: %w", Clone(ErrNotarization, "rpc unreachable"))

	appErr := FromError(wrapped)
	assert.Equal(t, ErrNotarization.Code, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
	assert.Equal(t, "rpc unreachable", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(stdErrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Contains(t, appErr.Error(), "boom")
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("parse: %w", Wrap(stdErrors.New("eof"), ErrRosterParse.Code, ErrRosterParse.Status, "bad roster"))
	assert.True(t, Is(err, ErrRosterParse))
	assert.False(t, Is(err, ErrEmptyRoster))
	assert.False(t, Is(nil, ErrRosterParse))
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrConflict, "already awarded")
	assert.Equal(t, "already awarded", clone.Message)
	assert.Equal(t, "conflict", ErrConflict.Message)
}
