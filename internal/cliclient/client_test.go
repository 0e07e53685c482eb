package cliclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRunReturnsRunID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runs", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"run_id": "run-1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	runID, err := c.CreateRun(context.Background(), CreateRunRequest{ProjectID: "proj"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
}

func TestDoSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error_type": "RUN_NOT_FOUND", "error_message": "no such run"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.GetRun(context.Background(), "missing")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "RUN_NOT_FOUND", apiErr.ErrorType)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestDoReturnsConnectionErrorWhenUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", "")
	_, err := c.GetRun(context.Background(), "run-1")
	require.Error(t, err)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
}
