package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/evogen/internal/logging"
	"github.com/copyleftdev/evogen/internal/optimization"
)

func TestError_Format(t *testing.T) {
	err := Wrap(stderrors.New("disk full"), "save run").
		WithOperation("persist").
		WithComponent("server")

	assert.Equal(t, "save run: operation=persist, component=server: disk full", err.Error())
	assert.NotEmpty(t, err.StackTrace())
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))
}

func TestIsAs(t *testing.T) {
	base := optimization.ConfigErrorf("population size must be positive, got 0")
	wrapped := Wrapf(fmt.Errorf("start: %w", base), "run %s", "r1")

	assert.True(t, Is(wrapped, optimization.ErrConfiguration))
	assert.False(t, Is(wrapped, ErrNotFound))

	var oe *optimization.Error
	require.True(t, As(wrapped, &oe))
	assert.Same(t, base, oe)

	assert.Equal(t, wrapped.Err, Unwrap(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", NotFound("run %s", "x"), http.StatusNotFound},
		{"conflict", Conflict("run finished"), http.StatusConflict},
		{"configuration", optimization.ConfigErrorf("bad"), http.StatusBadRequest},
		{"contract", fmt.Errorf("run: %w", optimization.ContractErrorf("NaN")), http.StatusUnprocessableEntity},
		{"explicit status", New("slow down").WithStatus(http.StatusTooManyRequests), http.StatusTooManyRequests},
		{"unknown", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	status := WriteJSON(rr, NotFound("run %s", "abc"))

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "run abc: not found", body["error"])
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.ErrorLevel, &buf)

	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("engine exploded")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buf.String(), "Recovered from panic")
	assert.Contains(t, buf.String(), "engine exploded")
}
