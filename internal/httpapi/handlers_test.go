package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/esports-draft/internal/champions"
	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/hub"
	"github.com/DoyleJ11/esports-draft/internal/protocol"
	"github.com/DoyleJ11/esports-draft/internal/store"
	"github.com/DoyleJ11/esports-draft/internal/ws"
)

func newTestServer(t *testing.T, st store.Store) (*httptest.Server, *hub.Hub) {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := hub.NewHub(context.Background(), hub.Options{Logger: log, Store: st, Catalog: champions.Range(1, 30)})
	srv := httptest.NewServer(SetupRoutes(Deps{
		Hub:    h,
		WS:     ws.NewManager(h, ws.Options{Logger: log}),
		Logger: log,
	}))
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
	})
	return srv, h
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out.Bytes()
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "body: %s", data)
	return v
}

func testConfig() engine.Config {
	return engine.Config{
		Format:        engine.FormatBO3,
		Patch:         "14.12",
		FearlessDraft: true,
		SeriesID:      "series-http",
		GameNumber:    2,
		Blue:          engine.TeamIdentity{ID: "t1", Name: "Tigers"},
		Red:           engine.TeamIdentity{ID: "t2", Name: "Dragons"},
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemory())
	status, body := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestSessionLifecycle(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.RecordSeriesGame(context.Background(), "series-http", 1, []int{4, 9}))
	srv, _ := newTestServer(t, mem)

	status, body := do(t, srv, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, status, "body: %s", body)
	created := decode[sessionResponse](t, body)
	require.Len(t, created.SessionID, 6)
	assert.Equal(t, engine.PhaseConfig, created.State.Phase)
	id := created.SessionID

	status, body = do(t, srv, http.MethodPost, "/sessions/"+id+"/start", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status, "cannot open an unconfigured session")
	assert.Equal(t, "INVALID_CONFIG", decode[protocol.ErrorPayload](t, body).Code)

	status, body = do(t, srv, http.MethodPost, "/sessions/"+id+"/config", testConfig())
	require.Equal(t, http.StatusOK, status, "body: %s", body)
	cfg := decode[configResponse](t, body)
	assert.True(t, cfg.Configured)
	assert.Equal(t, []int{4, 9}, cfg.Config.UsedChampionIDs, "series history is folded in")

	status, body = do(t, srv, http.MethodGet, "/sessions/"+id+"/config", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Tigers", decode[configResponse](t, body).Config.Blue.Name)

	status, body = do(t, srv, http.MethodPost, "/sessions/"+id+"/swap", nil)
	require.Equal(t, http.StatusOK, status)
	swapped := decode[sessionResponse](t, body)
	assert.Equal(t, "Dragons", swapped.State.Teams.Blue.Name)

	status, body = do(t, srv, http.MethodPost, "/sessions/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, status, "body: %s", body)
	assert.Equal(t, engine.PhaseLobby, decode[sessionResponse](t, body).State.Phase)

	status, body = do(t, srv, http.MethodPost, "/sessions/"+id+"/start", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_PHASE", decode[protocol.ErrorPayload](t, body).Code)

	status, body = do(t, srv, http.MethodGet, "/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[sessionResponse](t, body)
	assert.Equal(t, engine.PhaseLobby, got.State.Phase)
	assert.Equal(t, []int{4, 9}, got.State.SeriesContext.UsedChampionIDs)
}

func TestCreateSessionWithIDAndConfig(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemory())

	cfg := testConfig()
	status, body := do(t, srv, http.MethodPost, "/sessions", createRequest{SessionID: "FINALS", Config: &cfg})
	require.Equal(t, http.StatusCreated, status, "body: %s", body)
	created := decode[sessionResponse](t, body)
	assert.Equal(t, "FINALS", created.SessionID)
	assert.True(t, created.State.Configured)

	status, _ = do(t, srv, http.MethodPost, "/sessions", createRequest{SessionID: "FINALS"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestErrors(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemory())

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{name: "unknown session", method: http.MethodGet, path: "/sessions/NOPE00", status: http.StatusNotFound, code: CodeNotFound},
		{name: "start unknown", method: http.MethodPost, path: "/sessions/NOPE00/start", status: http.StatusNotFound, code: CodeNotFound},
		{name: "configure unknown", method: http.MethodPost, path: "/sessions/NOPE00/config", body: testConfig(), status: http.StatusNotFound, code: CodeNotFound},
		{name: "create with dotted id", method: http.MethodPost, path: "/sessions", body: map[string]string{"sessionId": "draft.*"}, status: http.StatusBadRequest, code: CodeInvalidID},
		{name: "start wildcard id", method: http.MethodPost, path: "/sessions/a%3Eb/start", status: http.StatusBadRequest, code: CodeInvalidID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, srv, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, decode[protocol.ErrorPayload](t, body).Code)
		})
	}
}

func TestConfigureValidation(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemory())
	_, body := do(t, srv, http.MethodPost, "/sessions", nil)
	id := decode[sessionResponse](t, body).SessionID

	bad := testConfig()
	bad.Red.Name = "Tigers"
	status, body := do(t, srv, http.MethodPost, "/sessions/"+id+"/config", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_CONFIG", decode[protocol.ErrorPayload](t, body).Code)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/sessions/"+id+"/config", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompletedSessionReadableFromStore(t *testing.T) {
	mem := store.NewMemory()
	done := engine.NewState("OLDONE", engine.DefaultRules(), nil)
	done.Phase = engine.PhaseComplete
	require.NoError(t, mem.SaveSnapshot(context.Background(), done))
	srv, _ := newTestServer(t, mem)

	status, body := do(t, srv, http.MethodGet, "/sessions/OLDONE", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, engine.PhaseComplete, decode[sessionResponse](t, body).State.Phase)
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemory())
	do(t, srv, http.MethodPost, "/sessions", nil)

	status, body := do(t, srv, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, status)
	var stats struct {
		Sessions  int      `json:"sessions"`
		Websocket ws.Stats `json:"websocket"`
	}
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 0, stats.Websocket.Connections)
}
