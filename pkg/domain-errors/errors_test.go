package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches wrapped coded error", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeDuplicateActiveExit, "member already has an active exit"))
		assert.True(t, HasCode(err, CodeDuplicateActiveExit))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("uncoded error has internal code", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(nil, CodeInternal))
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeExitStatusUpdateFailed, "failed to update member status")
		require.ErrorIs(t, err, cause)
		assert.Equal(t, "failed to update member status: connection reset", err.Error())
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidPayload:         http.StatusBadRequest,
		CodeDuplicateActiveExit:    http.StatusConflict,
		CodeRateLimitUser:          http.StatusTooManyRequests,
		CodeRateLimitChurch:        http.StatusTooManyRequests,
		CodeNotFound:               http.StatusNotFound,
		CodeExitStatusUpdateFailed: http.StatusInternalServerError,
		CodeExitReinstateFailed:    http.StatusInternalServerError,
		CodeUnavailable:            http.StatusServiceUnavailable,
		CodeUnauthorized:           http.StatusUnauthorized,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}
