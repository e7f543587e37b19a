// Package client is a reconnecting Go client for the draft websocket, used by
// overlays and spectator tools.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/protocol"
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

var ErrNotConnected = errors.New("not connected")

// Backoff returns the wait before reconnect attempt n (1-based).
type Backoff func(attempt int) time.Duration

func FixedBackoff(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

const (
	DefaultBackoff = 3 * time.Second
	dialTimeout    = 10 * time.Second
)

type Options struct {
	URL       string
	SessionID string
	Role      protocol.Role
	Backoff   Backoff
	Clock     clockwork.Clock
	Logger    *zap.Logger

	OnState     func(engine.State)
	OnError     func(protocol.ErrorPayload)
	OnConnState func(ConnState)
}

type Client struct {
	id   string
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	state    ConnState
	conn     *websocket.Conn
	last     engine.State
	haveLast bool
	visible  bool
	wake     chan struct{}
}

func New(opts Options) *Client {
	if opts.Backoff == nil {
		opts.Backoff = FixedBackoff(DefaultBackoff)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Client{
		id:      id,
		opts:    opts,
		log:     opts.Logger.With(zap.String("client_id", id), zap.String("session_id", opts.SessionID)),
		visible: true,
		wake:    make(chan struct{}, 1),
	}
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the newest accepted game state.
func (c *Client) Snapshot() (engine.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.haveLast
}

// SetVisible gates reconnection. A hidden client finishes its current
// connection but does not dial again until it becomes visible.
func (c *Client) SetVisible(v bool) {
	c.mu.Lock()
	c.visible = v
	c.mu.Unlock()
	if v {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed {
		c.log.Debug("connection state", zap.Stringer("state", s))
		if c.opts.OnConnState != nil {
			c.opts.OnConnState(s)
		}
	}
}

// Run connects and keeps reconnecting until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := c.waitVisible(ctx); err != nil {
			return err
		}

		c.setState(Connecting)
		err := c.session(ctx)
		c.setState(Disconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errJoined) {
			attempt = 0
		}
		attempt++
		wait := c.opts.Backoff(attempt)
		c.log.Info("connection lost, retrying", zap.Error(err), zap.Duration("backoff", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.opts.Clock.After(wait):
		}
	}
}

func (c *Client) waitVisible(ctx context.Context) error {
	for {
		c.mu.Lock()
		v := c.visible
		c.mu.Unlock()
		if v {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
	}
}

// errJoined marks a session that got as far as a snapshot before dropping.
var errJoined = errors.New("connection closed after join")

func (c *Client) session(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{
		HTTPClient: &http.Client{Timeout: dialTimeout},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	if err := writeFrame(ctx, conn, protocol.Envelope{Type: protocol.TypeJoin, SessionID: c.opts.SessionID, TeamSide: string(c.opts.Role)}); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	joined := false
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if joined {
				return fmt.Errorf("%w: %w", errJoined, err)
			}
			return fmt.Errorf("read: %w", err)
		}
		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("bad frame", zap.Error(err))
			continue
		}
		switch f.Type {
		case protocol.TypeGameState:
			var st engine.State
			if err := json.Unmarshal(f.Payload, &st); err != nil {
				c.log.Warn("bad snapshot", zap.Error(err))
				continue
			}
			// The join snapshot is authoritative: a restarted server may
			// legitimately be behind what this client saw before.
			c.accept(st, !joined)
			if !joined {
				joined = true
				c.setState(Connected)
			}
		case protocol.TypeError:
			var p protocol.ErrorPayload
			_ = json.Unmarshal(f.Payload, &p)
			if c.opts.OnError != nil {
				c.opts.OnError(p)
			}
		}
	}
}

// accept records st if it is newer than the last snapshot, or unconditionally
// when reset is set.
func (c *Client) accept(st engine.State, reset bool) {
	c.mu.Lock()
	ok := reset || !c.haveLast || Newer(c.last, st)
	if ok {
		c.last, c.haveLast = st, true
	}
	c.mu.Unlock()
	if !ok {
		c.log.Debug("dropping stale snapshot", zap.Int("turn", st.TurnNumber), zap.Int("version", st.Version))
		return
	}
	if c.opts.OnState != nil {
		c.opts.OnState(st)
	}
}

// Newer reports whether next supersedes prev, ordering by turn then version.
func Newer(prev, next engine.State) bool {
	if prev.SessionID != next.SessionID {
		return true
	}
	if next.TurnNumber != prev.TurnNumber {
		return next.TurnNumber > prev.TurnNumber
	}
	return next.Version > prev.Version
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f protocol.Envelope) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (c *Client) send(ctx context.Context, typ protocol.MessageType, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeFrame(ctx, conn, protocol.Envelope{Type: typ, SessionID: c.opts.SessionID, TeamSide: string(c.opts.Role), Payload: raw})
}

func (c *Client) Ready(ctx context.Context, ready bool) error {
	return c.send(ctx, protocol.TypeReady, map[string]bool{"ready": ready})
}

func (c *Client) Ban(ctx context.Context, championID int) error {
	return c.send(ctx, protocol.TypeBan, map[string]int{"championId": championID})
}

func (c *Client) Pick(ctx context.Context, championID int) error {
	return c.send(ctx, protocol.TypePick, map[string]int{"championId": championID})
}

// Hover previews championID; zero clears the hover.
func (c *Client) Hover(ctx context.Context, action engine.Action, championID int) error {
	var id *int
	if championID > 0 {
		id = &championID
	}
	return c.send(ctx, protocol.TypeHover, struct {
		ChampionID *int          `json:"championId"`
		ActionType engine.Action `json:"actionType"`
	}{id, action})
}
