package apperr_test

import (
	"errors"
	"fmt"
	"kiselgram-backend/internal/apperr"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedKind apperr.Kind
		status       int
	}{
		{
			name:         "Unauthorized",
			err:          apperr.Unauthorized("not yours"),
			expectedKind: apperr.KindUnauthorized,
			status:       http.StatusForbidden,
		},
		{
			name:         "NotFound wrapped with fmt",
			err:          fmt.Errorf("deleting: %w", apperr.NotFound("Message not found")),
			expectedKind: apperr.KindNotFound,
			status:       http.StatusNotFound,
		},
		{
			name:         "InvalidInput",
			err:          apperr.InvalidInput("empty message"),
			expectedKind: apperr.KindInvalidInput,
			status:       http.StatusBadRequest,
		},
		{
			name:         "Conflict",
			err:          apperr.Conflict("handle in use"),
			expectedKind: apperr.KindConflict,
			status:       http.StatusConflict,
		},
		{
			name:         "Plain error is internal",
			err:          errors.New("disk on fire"),
			expectedKind: apperr.KindInternal,
			status:       http.StatusInternalServerError,
		},
		{
			name:         "Unauthenticated",
			err:          apperr.New(apperr.KindUnauthenticated, "login required"),
			expectedKind: apperr.KindUnauthenticated,
			status:       http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apperr.KindOf(tt.err); got != tt.expectedKind {
				t.Errorf("KindOf() = %s, want %s", got, tt.expectedKind)
			}
			if got := apperr.HTTPStatus(tt.err); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := apperr.Internal("storing message", cause)

	if !errors.Is(err, cause) {
		t.Fatal("wrapped error lost its cause")
	}
	if apperr.PublicMessage(err) != "Internal server error" {
		t.Errorf("internal details leaked: %q", apperr.PublicMessage(err))
	}
	if apperr.PublicMessage(apperr.NotFound("User not found")) != "User not found" {
		t.Error("public message of a client error should be kept")
	}
}
