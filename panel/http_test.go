package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/stagelink/interaction"
	"github.com/c360/stagelink/module"
)

func newTestServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	s := startTestService(t)
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestModulesEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	var body struct {
		Modules []module.Info `json:"modules"`
	}
	status := getJSON(t, ts.URL+"/api/modules", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body.Modules, 3)
	assert.Equal(t, "clock", body.Modules[0].Name)
	assert.Equal(t, module.KindInput, body.Modules[0].Manifest.Kind)
}

func TestInteractionLifecycleOverHTTP(t *testing.T) {
	s, ts := newTestServer(t)

	// Create
	var added interaction.Interaction
	status := doJSON(t, http.MethodPost, ts.URL+"/api/interactions", clockToFile(), &added)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, added.Input.InstanceID)

	// List
	var listed struct {
		Interactions []interaction.Interaction `json:"interactions"`
	}
	status = getJSON(t, ts.URL+"/api/interactions", &listed)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, listed.Interactions, 1)

	// Connections follow
	var conns struct {
		Connections []ConnectionInfo `json:"connections"`
	}
	status = getJSON(t, ts.URL+"/api/connections", &conns)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, conns.Connections, 1)
	assert.Equal(t, added.Input.InstanceID, conns.Connections[0].InputID)

	// Update
	replacement := clockToFile()
	replacement.Output = interaction.Side{Module: "udp-send", Config: module.Config{"addr": "127.0.0.1:9000"}}
	var replaced interaction.Interaction
	status = doJSON(t, http.MethodPut, ts.URL+"/api/interactions", map[string]any{
		"old": added,
		"new": replacement,
	}, &replaced)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "udp-send", replaced.Output.Module)

	// Delete
	status = doJSON(t, http.MethodDelete, ts.URL+"/api/interactions", replaced, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, s.store.Len())

	// Delete again is not found
	status = doJSON(t, http.MethodDelete, ts.URL+"/api/interactions", replaced, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateInvalidInteraction(t *testing.T) {
	_, ts := newTestServer(t)

	status := doJSON(t, http.MethodPost, ts.URL+"/api/interactions",
		interaction.Interaction{Input: interaction.Side{Module: "clock"}}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestInstanceConfigEndpoint(t *testing.T) {
	s, ts := newTestServer(t)

	added, err := s.AddInteraction(context.Background(), clockToFile())
	require.NoError(t, err)
	id := added.Input.InstanceID

	status := doJSON(t, http.MethodPost, ts.URL+"/api/instances/"+id+"/config",
		map[string]any{"config": map[string]any{"interval": "100ms"}}, nil)
	assert.Equal(t, http.StatusOK, status)

	s.mu.Lock()
	inst := s.findInstance(id)
	s.mu.Unlock()
	assert.Equal(t, module.Config{"interval": "100ms"}, inst.Config())
}

func TestInstanceModeEndpoint(t *testing.T) {
	s, ts := newTestServer(t)

	added, err := s.AddInteraction(context.Background(), clockToFile())
	require.NoError(t, err)
	id := added.Input.InstanceID

	status := doJSON(t, http.MethodPost, ts.URL+"/api/instances/"+id+"/mode",
		map[string]any{"mode": "streaming"}, nil)
	assert.Equal(t, http.StatusOK, status)

	status = doJSON(t, http.MethodPost, ts.URL+"/api/instances/"+id+"/mode",
		map[string]any{"mode": "pulse"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestInstanceActionUnknownID(t *testing.T) {
	_, ts := newTestServer(t)

	status := doJSON(t, http.MethodPost, ts.URL+"/api/instances/no-such-id/config",
		map[string]any{"config": map[string]any{}}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status = doJSON(t, http.MethodPost, ts.URL+"/api/instances/no-such-id/paint", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSnapshotEndpoint(t *testing.T) {
	s, ts := newTestServer(t)

	_, err := s.AddInteraction(context.Background(), clockToFile())
	require.NoError(t, err)

	var snap Snapshot
	status := getJSON(t, ts.URL+"/api/snapshot", &snap)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "test-panel", snap.PanelID)
	assert.Len(t, snap.Modules, 2)
	assert.Len(t, snap.Connections, 1)
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]any
	status := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-panel", body["panel"])
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	status := doJSON(t, http.MethodPost, ts.URL+"/api/modules", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status = doJSON(t, http.MethodPatch, ts.URL+"/api/interactions", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}
