// Package testutil provides common helpers for handler tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "flock/pkg/domain"
	"flock/pkg/requestcontext"
)

// HeaderRole overrides the role of a single request routed through Scoped.
const HeaderRole = "X-Test-Role"

// Scoped stands in for RequireAuth: every request runs as userID within
// churchID. The role comes from HeaderRole when present.
func Scoped(churchID id.ChurchID, userID id.UserID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithChurchID(r.Context(), churchID)
			ctx = requestcontext.WithUserID(ctx, userID)
			if role := r.Header.Get(HeaderRole); role != "" {
				ctx = requestcontext.WithRole(ctx, role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Do sends a JSON request to h. headers are key, value pairs.
func Do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals the response body into T, failing the test on error.
func Decode[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "decode response: %s", rec.Body.String())
	return out
}

// AssertError checks both the status and the error code of a failed call.
func AssertError(t testing.TB, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, code, Decode[map[string]string](t, rec)["error"])
}
