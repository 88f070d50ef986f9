package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusByKind(t *testing.T) {
	cases := []struct {
		err  *GatewayError
		want int
	}{
		{EmptyCommand(), http.StatusBadRequest},
		{Forbidden(), http.StatusForbidden},
		{LimitExceeded("too big"), http.StatusRequestEntityTooLarge},
		{BackendUnavailable("no conn"), http.StatusServiceUnavailable},
		{BackendCommand("WRONGTYPE"), http.StatusInternalServerError},
		{InternalEncode("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.Status())
	}
}

func TestWriteHTTP_RendersSpecLiteralBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/DEBUG", nil)
	WriteHTTP(rec, req, nil, Forbidden())

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Forbidden", body["error"])
}

func TestWriteHTTP_WrapsUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/DEBUG", nil)
	WriteHTTP(rec, req, nil, assertError{"plain failure"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
