package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorKeepsDomainErrors(t *testing.T) {
	original := NewAlreadyLinked(map[string]any{"lead_id": "l-1"})
	wrapped := fmt.Errorf("qualify: %w", original)

	got := ToDomainError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeAlreadyLinked, got.Code)
	assert.Equal(t, http.StatusConflict, got.HTTPStatus)
	assert.Equal(t, "l-1", got.Details["lead_id"])
}

func TestToDomainErrorWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("connection reset")

	got := ToDomainError(cause)
	require.NotNil(t, got)
	assert.Equal(t, CodeInternal, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
	assert.ErrorIs(t, got, cause)
	assert.Nil(t, ToDomainError(nil))
}

func TestWorkflowErrorKinds(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{NewIllegalTransition("unqualified is a terminal status", nil), CodeIllegalTransition, http.StatusBadRequest},
		{NewAlreadyLinked(nil), CodeAlreadyLinked, http.StatusConflict},
		{NewDuplicateAccount(nil), CodeDuplicateAccount, http.StatusConflict},
		{NewConfigurationMissing("department missing", nil), CodeConfigurationMissing, http.StatusInternalServerError},
		{NewPartialFailure("lead update failed", nil, errors.New("boom")), CodePartialFailure, http.StatusInternalServerError},
		{NewNotFound("lead", nil), CodeNotFound, http.StatusNotFound},
		{NewRateLimited(), CodeRateLimited, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			assert.True(t, HasCode(tc.err, tc.code))
			assert.Equal(t, tc.status, ToDomainError(tc.err).HTTPStatus)
		})
	}
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
}

func TestIllegalTransitionUsesReasonAsMessage(t *testing.T) {
	err := NewIllegalTransition("a qualified lead can only move to unqualified", nil)
	assert.Equal(t, "a qualified lead can only move to unqualified", err.Error())
}
