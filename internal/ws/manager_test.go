package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/esports-draft/internal/champions"
	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/hub"
	"github.com/DoyleJ11/esports-draft/internal/protocol"
	"github.com/DoyleJ11/esports-draft/internal/session"
)

type fixture struct {
	hub *hub.Hub
	mgr *Manager
	url string
}

func newFixture(t *testing.T, autoCreate bool) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := hub.NewHub(context.Background(), hub.Options{
		Logger:     log,
		Catalog:    champions.Range(1, 50),
		AutoCreate: autoCreate,
	})
	m := NewManager(h, Options{Logger: log, PingInterval: time.Second})
	srv := httptest.NewServer(m)
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
	})
	return &fixture{hub: h, mgr: m, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

// readySession returns a configured session in the lobby.
func (f *fixture) readySession(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	s, err := f.hub.Create(ctx, "")
	require.NoError(t, err)
	_, err = f.hub.Configure(ctx, s, engine.Config{
		Format: engine.FormatBO1,
		Blue:   engine.TeamIdentity{Name: "Tigers"},
		Red:    engine.TeamIdentity{Name: "Dragons"},
	})
	require.NoError(t, err)
	_, err = s.Do(ctx, engine.Command{Type: engine.CmdStart})
	require.NoError(t, err)
	return s.ID()
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func sendRaw(t *testing.T, c *websocket.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(raw)))
}

func readFrame(t *testing.T, c *websocket.Conn) protocol.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var f protocol.Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func readState(t *testing.T, c *websocket.Conn) engine.State {
	t.Helper()
	f := readFrame(t, c)
	require.Equal(t, protocol.TypeGameState, f.Type, "payload: %s", f.Payload)
	var st engine.State
	require.NoError(t, json.Unmarshal(f.Payload, &st))
	return st
}

func readError(t *testing.T, c *websocket.Conn) protocol.ErrorPayload {
	t.Helper()
	f := readFrame(t, c)
	require.Equal(t, protocol.TypeError, f.Type, "payload: %s", f.Payload)
	var p protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	return p
}

type frame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	TeamSide  string `json:"teamSide"`
	Payload   any    `json:"payload,omitempty"`
}

func join(id, side string) frame { return frame{Type: "join", SessionID: id, TeamSide: side} }

func TestManager_ProtocolErrors(t *testing.T) {
	f := newFixture(t, false)
	id := f.readySession(t)

	cases := []struct {
		name  string
		setup []frame
		raw   string
		want  string
	}{
		{name: "bad json", raw: `{"type":`, want: protocol.CodeMalformed},
		{name: "unknown type", raw: `{"type":"dance","sessionId":"` + id + `","teamSide":"blue"}`, want: protocol.CodeUnknownType},
		{name: "invalid session id", raw: `{"type":"join","sessionId":"a.b.*","teamSide":"blue"}`, want: protocol.CodeMalformed},
		{name: "unknown session", raw: `{"type":"join","sessionId":"NOPE00","teamSide":"blue"}`, want: protocol.CodeUnknownSession},
		{name: "act before join", raw: `{"type":"ban","sessionId":"` + id + `","teamSide":"blue","payload":{"championId":5}}`, want: protocol.CodeNotJoined},
		{
			name:  "spectator acts",
			setup: []frame{join(id, "spectator")},
			raw:   `{"type":"ready","sessionId":"` + id + `","teamSide":"blue","payload":{"ready":true}}`,
			want:  protocol.CodeRoleMismatch,
		},
		{
			name:  "acts for other side",
			setup: []frame{join(id, "red")},
			raw:   `{"type":"ready","sessionId":"` + id + `","teamSide":"blue","payload":{"ready":true}}`,
			want:  protocol.CodeRoleMismatch,
		},
		{
			name:  "second join",
			setup: []frame{join(id, "blue")},
			raw:   `{"type":"join","sessionId":"` + id + `","teamSide":"red"}`,
			want:  protocol.CodeAlreadyJoined,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := f.dial(t)
			for _, fr := range tc.setup {
				send(t, c, fr)
				readState(t, c)
			}
			sendRaw(t, c, tc.raw)
			assert.Equal(t, tc.want, readError(t, c).Code)
		})
	}
	assert.GreaterOrEqual(t, f.mgr.Stats().ProtocolErrors, uint64(len(cases)))
}

func TestManager_DraftOverWebsocket(t *testing.T) {
	f := newFixture(t, false)
	id := f.readySession(t)

	blue, red, overlay := f.dial(t), f.dial(t), f.dial(t)
	for side, c := range map[string]*websocket.Conn{"blue": blue, "red": red, "overlay": overlay} {
		send(t, c, join(id, side))
		st := readState(t, c)
		assert.Equal(t, engine.PhaseLobby, st.Phase)
	}

	send(t, blue, frame{Type: "ready", SessionID: id, TeamSide: "blue", Payload: map[string]bool{"ready": true}})
	for _, c := range []*websocket.Conn{blue, red, overlay} {
		assert.True(t, readState(t, c).Teams.Blue.IsReady)
	}
	send(t, red, frame{Type: "ready", SessionID: id, TeamSide: "red", Payload: map[string]bool{"ready": true}})
	var st engine.State
	for _, c := range []*websocket.Conn{blue, red, overlay} {
		st = readState(t, c)
		assert.Equal(t, engine.PhaseBan1, st.Phase)
	}

	// Out of turn: only the sender hears about it.
	send(t, red, frame{Type: "ban", SessionID: id, TeamSide: "red", Payload: map[string]int{"championId": 5}})
	assert.Equal(t, "NOT_YOUR_TURN", readError(t, red).Code)

	send(t, blue, frame{Type: "ban", SessionID: id, TeamSide: "blue", Payload: map[string]int{"championId": 5}})
	for _, c := range []*websocket.Conn{blue, red, overlay} {
		next := readState(t, c)
		assert.Equal(t, []int{5}, next.Teams.Blue.Bans)
		assert.Equal(t, 1, next.TurnNumber)
		assert.Greater(t, next.Version, st.Version)
	}

	// Banned champions are gone for both sides.
	send(t, red, frame{Type: "ban", SessionID: id, TeamSide: "red", Payload: map[string]int{"championId": 5}})
	assert.Equal(t, "CHAMPION_UNAVAILABLE", readError(t, red).Code)

	stats := f.mgr.Stats()
	assert.Equal(t, 3, stats.Connections)
	assert.Equal(t, map[string]int{"blue": 1, "red": 1, "overlay": 1}, stats.Joined)
}

func TestManager_ReconnectGetsSnapshot(t *testing.T) {
	f := newFixture(t, true)

	c := f.dial(t)
	send(t, c, join("ROOM42", "spectator"))
	st := readState(t, c)
	assert.Equal(t, "ROOM42", st.SessionID)
	assert.Equal(t, engine.PhaseConfig, st.Phase)
	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))

	again := f.dial(t)
	send(t, again, join("ROOM42", "spectator"))
	assert.Equal(t, "ROOM42", readState(t, again).SessionID)
}

func TestManager_SessionShutdownClosesWithTryAgain(t *testing.T) {
	f := newFixture(t, false)
	id := f.readySession(t)

	c := f.dial(t)
	send(t, c, join(id, "spectator"))
	readState(t, c)

	s, err := f.hub.Get(context.Background(), id)
	require.NoError(t, err)
	s.Inbox() <- session.Shutdown{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusTryAgainLater, websocket.CloseStatus(err))
}
