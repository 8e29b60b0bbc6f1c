package web

import (
	"encoding/json"
	"github.com/XANi/gasreader2ha/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestBackend(t *testing.T, r *discovery.Registry) *WebBackend {
	w, err := New(Config{
		Logger:     zap.NewNop().Sugar(),
		ListenAddr: "127.0.0.1:0",
		Devices:    r,
	})
	require.NoError(t, err)
	return w
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{ListenAddr: ":3001", Devices: discovery.NewRegistry()})
	assert.Error(t, err)
	_, err = New(Config{Logger: zap.NewNop().Sugar(), Devices: discovery.NewRegistry()})
	assert.Error(t, err)
	_, err = New(Config{Logger: zap.NewNop().Sugar(), ListenAddr: ":3001"})
	assert.Error(t, err)
}

func TestListDevices(t *testing.T) {
	r := discovery.NewRegistry()
	r.LatchMode("dev2", discovery.ModeField)
	r.MarkDiscovered("dev2")
	r.LatchMode("dev1", discovery.ModeJSON)
	w := newTestBackend(t, r)

	rec := httptest.NewRecorder()
	w.r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/devices", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Devices []struct {
			ID         string `json:"id"`
			Mode       string `json:"mode"`
			Discovered bool   `json:"discovered"`
		} `json:"devices"`
		Discovered int `json:"discovered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Discovered)
	require.Len(t, resp.Devices, 2)
	assert.Equal(t, "dev1", resp.Devices[0].ID)
	assert.Equal(t, "json", resp.Devices[0].Mode)
	assert.False(t, resp.Devices[0].Discovered)
	assert.Equal(t, "dev2", resp.Devices[1].ID)
	assert.Equal(t, "field", resp.Devices[1].Mode)
	assert.True(t, resp.Devices[1].Discovered)
}

func TestHealthAndNotFound(t *testing.T) {
	w := newTestBackend(t, discovery.NewRegistry())

	rec := httptest.NewRecorder()
	w.r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	w.r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
