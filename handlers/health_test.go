package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootReturnsA200WithServiceInfo(t *testing.T) {
	d := Collection{ServiceName: "vaultline"}
	handler := d.Root()

	req := httptest.NewRequest("GET", "/", nil)
	resp := httptest.NewRecorder()
	handler(resp, req, nil)

	require.Equal(t, 200, resp.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "vaultline", body.Service)
	require.Equal(t, "healthy", body.Status)
	require.NotEmpty(t, body.Timestamp)
}

func TestHealthReturnsA200(t *testing.T) {
	d := Collection{ServiceName: "vaultline"}
	handler := d.Health()

	req := httptest.NewRequest("GET", "/health", nil)
	resp := httptest.NewRecorder()
	handler(resp, req, nil)

	require.Equal(t, 200, resp.Code)
}
