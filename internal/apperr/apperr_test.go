package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind error
	}{
		{"validation", Validation("create_report", "missing %s", "item id"), ErrValidation},
		{"not found", NotFound("review_report", "report %s not found", "r1"), ErrNotFound},
		{"conflict", Conflict("review_report", "report has already been reviewed"), ErrStateConflict},
		{"permission", Permission("process_report", "only admins may do this"), ErrPermission},
		{"external", External("classify", errors.New("timeout")), ErrExternalService},
	}

	kinds := []error{ErrValidation, ErrNotFound, ErrStateConflict, ErrPermission, ErrExternalService}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range kinds {
				assert.Equal(t, k == tt.kind, errors.Is(tt.err, k), "kind %v", k)
			}
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Validation("reject_report", "reason must be at least %d characters", 5)
	assert.Equal(t, "reject_report: reason must be at least 5 characters", err.Error())

	cause := errors.New("connection refused")
	ext := External("classify", cause)
	assert.Equal(t, "classify: external service failure: connection refused", ext.Error())
	assert.ErrorIs(t, ext, cause)
}

func TestKindOfWrapped(t *testing.T) {
	inner := NotFound("view_report", "report missing")
	wrapped := fmt.Errorf("handler: %w", inner)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, ErrNotFound, KindOf(wrapped))
	assert.Nil(t, KindOf(errors.New("plain")))
}
