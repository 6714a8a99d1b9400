package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

type observed struct {
	method, route string
	status        int
}

type observerFunc func(method, route string, status int, elapsed time.Duration)

func (f observerFunc) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	f(method, route, status, elapsed)
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestRequestIDKeepsValidAndReplacesHostile(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1234abcd")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, "req-1234abcd", seen)
	assert.Equal(t, "req-1234abcd", resp.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc\n{\"level\":\"error\"}")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.NotContains(t, seen, "\n")
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, resp.Header().Get(RequestIDHeader))
}

func TestLoggingReportsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	var got []observed

	r := chi.NewRouter()
	r.Use(RequestID(logg), Logging(logg, observerFunc(func(method, route string, status int, _ time.Duration) {
		got = append(got, observed{method, route, status})
	})))
	r.Get("/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Len(t, got, 2)
	assert.Equal(t, observed{http.MethodGet, "/orders/{orderId}", http.StatusOK}, got[0])
	assert.Equal(t, observed{http.MethodGet, "/boom", http.StatusBadGateway}, got[1])

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "/orders/42", lines[0]["path"])
	assert.EqualValues(t, 2, lines[0]["bytes"])
	assert.NotEmpty(t, lines[0]["request_id"])
	assert.Equal(t, "warn", lines[1]["level"])
}

func TestRecovererAnswersInternalError(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	handler := Recoverer(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "nil map")
	assert.Contains(t, buf.String(), "nil map")
}

func TestRecovererReraisesAbort(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithError(t, http.ErrAbortHandler.Error(), func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
