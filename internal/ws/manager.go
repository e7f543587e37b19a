// Package ws is the connection manager: it accepts websocket connections,
// validates client frames and bridges them to session actors.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/hub"
	"github.com/DoyleJ11/esports-draft/internal/protocol"
	"github.com/DoyleJ11/esports-draft/internal/session"
)

type Options struct {
	Logger       *zap.Logger
	PingInterval time.Duration
	WriteTimeout time.Duration
	OutboxSize   int
	// OriginPatterns are passed to websocket.Accept. Empty allows same-origin only.
	OriginPatterns []string
}

type Stats struct {
	Connections    int            `json:"connections"`
	Joined         map[string]int `json:"joined"`
	Accepted       uint64         `json:"accepted"`
	ProtocolErrors uint64         `json:"protocolErrors"`
}

type Manager struct {
	hub  *hub.Hub
	log  *zap.Logger
	opts Options

	mu    sync.Mutex
	conns map[string]*conn

	accepted       atomic.Uint64
	protocolErrors atomic.Uint64
}

func NewManager(h *hub.Hub, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 20 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 32
	}
	return &Manager{
		hub:   h,
		log:   opts.Logger,
		opts:  opts,
		conns: make(map[string]*conn),
	}
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{
		Connections:    len(m.conns),
		Joined:         make(map[string]int),
		Accepted:       m.accepted.Load(),
		ProtocolErrors: m.protocolErrors.Load(),
	}
	for _, c := range m.conns {
		if role := c.joinedRole(); role != "" {
			st.Joined[string(role)]++
		}
	}
	return st
}

func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: m.opts.OriginPatterns,
	})
	if err != nil {
		m.log.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer wsConn.CloseNow()

	c := &conn{
		id:   uuid.NewString(),
		ws:   wsConn,
		m:    m,
		log:  m.log,
		done: make(chan struct{}),
	}
	c.log = c.log.With(zap.String("conn_id", c.id))

	m.accepted.Add(1)
	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.conns, c.id)
		m.mu.Unlock()
	}()

	c.serve(r.Context())
}

// conn is one websocket connection. It joins at most one session.
type conn struct {
	id  string
	ws  *websocket.Conn
	m   *Manager
	log *zap.Logger

	mu      sync.Mutex
	session *session.Session
	role    protocol.Role

	done chan struct{}
}

func (c *conn) joinedRole() protocol.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *conn) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer close(c.done)
	defer c.leave()

	go c.keepalive(ctx)

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					c.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.reject(ctx, err)
			continue
		}
		if err := c.dispatch(ctx, msg); err != nil {
			if errors.Is(err, session.ErrClosed) {
				c.ws.Close(websocket.StatusTryAgainLater, "session closed")
				return
			}
			c.reject(ctx, err)
		}
	}
}

func (c *conn) dispatch(ctx context.Context, msg protocol.Message) error {
	if join, ok := msg.(protocol.Join); ok {
		return c.join(ctx, join)
	}

	c.mu.Lock()
	s, role := c.session, c.role
	c.mu.Unlock()
	if s == nil {
		return protocol.Errorf(protocol.CodeNotJoined, "join a session first")
	}
	if msg.Session() != s.ID() {
		return protocol.Errorf(protocol.CodeUnknownSession, "connection is joined to %s", s.ID())
	}
	team, ok := role.Team()
	if !ok {
		return protocol.Errorf(protocol.CodeRoleMismatch, "%s connections cannot act", role)
	}

	cmd, err := toEngineCommand(msg)
	if err != nil {
		return err
	}
	if cmd.Team != team {
		return protocol.Errorf(protocol.CodeRoleMismatch, "joined as %s, cannot act for %s", role, cmd.Team)
	}
	return s.Send(ctx, session.FromClient{ClientID: c.id, Cmd: cmd})
}

func (c *conn) join(ctx context.Context, msg protocol.Join) error {
	c.mu.Lock()
	joined := c.session != nil
	c.mu.Unlock()
	if joined {
		return protocol.Errorf(protocol.CodeAlreadyJoined, "connection already joined a session")
	}

	s, err := c.m.hub.Ensure(ctx, msg.SessionID)
	if errors.Is(err, hub.ErrNotFound) {
		return protocol.Errorf(protocol.CodeUnknownSession, "unknown session %s", msg.SessionID)
	}
	if errors.Is(err, hub.ErrInvalidID) {
		return protocol.Errorf(protocol.CodeMalformed, "invalid session id")
	}
	if err != nil {
		c.log.Error("resolve session", zap.String("session_id", msg.SessionID), zap.Error(err))
		return protocol.Errorf(protocol.CodeInternal, "session unavailable")
	}

	outbox := make(chan protocol.ServerMessage, c.m.opts.OutboxSize)
	if err := s.Send(ctx, session.Join{ClientID: c.id, Role: msg.Role, Outbox: outbox}); err != nil {
		return err
	}

	c.mu.Lock()
	c.session, c.role = s, msg.Role
	c.mu.Unlock()
	c.log.Info("joined", zap.String("session_id", s.ID()), zap.String("role", string(msg.Role)))

	go c.writer(outbox)
	return nil
}

// leave detaches from the session. The session owns the outbox and closes it.
func (c *conn) leave() {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.Send(ctx, session.Leave{ClientID: c.id})
}

// writer forwards session output. A closed outbox means the session dropped
// this connection, so the client is told to reconnect.
func (c *conn) writer(outbox <-chan protocol.ServerMessage) {
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-outbox:
			if !ok {
				c.ws.Close(websocket.StatusTryAgainLater, "reconnect")
				return
			}
			if err := c.write(msg); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				c.ws.CloseNow()
				return
			}
		}
	}
}

func (c *conn) write(msg protocol.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.m.opts.WriteTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, payload)
}

// reject answers a bad frame on this connection only.
func (c *conn) reject(ctx context.Context, err error) {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		c.m.protocolErrors.Add(1)
	}
	if werr := c.write(protocol.ErrorMessage(err)); werr != nil && ctx.Err() == nil {
		c.log.Debug("write error frame", zap.Error(werr))
	}
}

func (c *conn) keepalive(ctx context.Context) {
	t := time.NewTicker(c.m.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.m.opts.WriteTimeout)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				c.ws.CloseNow()
				return
			}
		}
	}
}

func toEngineCommand(msg protocol.Message) (engine.Command, error) {
	switch m := msg.(type) {
	case protocol.Ready:
		return engine.Command{Type: engine.CmdSetReady, Team: m.Team, Ready: m.Ready}, nil
	case protocol.Action:
		typ := engine.CmdLockPick
		if m.Action == engine.ActionBan {
			typ = engine.CmdBanChampion
		}
		return engine.Command{Type: typ, Team: m.Team, ChampionID: m.ChampionID}, nil
	case protocol.Hover:
		return engine.Command{Type: engine.CmdHoverChampion, Team: m.Team, Action: m.Action, ChampionID: m.ChampionID}, nil
	default:
		return engine.Command{}, protocol.Errorf(protocol.CodeUnknownType, "unsupported message")
	}
}
