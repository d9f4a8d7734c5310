package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var payload struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	return payload.Error
}

func TestWriteErrorAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, fmt.Errorf("quote: %w", BadRequest("attendees", "unknown attendee", errors.New("id 7"))))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	body := decodeError(t, rr)
	require.Equal(t, "BAD_REQUEST", body.Code)
	require.Equal(t, "unknown attendee", body.Message)
	require.Equal(t, map[string]any{"field": "attendees"}, body.Details)
}

func TestWriteErrorSyntaxOffset(t *testing.T) {
	var target map[string]any
	err := json.Unmarshal([]byte(`{"attendees": [`), &target)
	var syntaxErr *json.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)

	rr := httptest.NewRecorder()
	WriteError(rr, BadRequest("", "invalid payload", err))
	body := decodeError(t, rr)
	require.Contains(t, body.Details, "offset")
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("redis: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	require.Equal(t, "INTERNAL", body.Code)
	require.NotContains(t, rr.Body.String(), "redis")
}

func TestAppErrorMessage(t *testing.T) {
	err := NewAppError("PORTAL_ERROR", "portal unavailable", http.StatusBadGateway, errors.New("timeout"))
	require.Equal(t, "portal unavailable: timeout", err.Error())
	require.True(t, IsAppError(fmt.Errorf("wrap: %w", err)))
	require.False(t, IsAppError(errors.New("plain")))
}
