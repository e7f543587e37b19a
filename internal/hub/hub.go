// Package hub is the session registry: it maps session ids to running
// session actors and is the only place sessions are created or removed.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/esports-draft/internal/champions"
	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/events"
	"github.com/DoyleJ11/esports-draft/internal/session"
	"github.com/DoyleJ11/esports-draft/internal/store"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrExists    = errors.New("session already exists")
	ErrClosed    = errors.New("hub closed")
	ErrInvalidID = errors.New("invalid session id")
)

type HubMsg interface{ isHubMsg() }

// CreateSession registers a new session under State.SessionID, or a freshly
// generated id when that is empty. Reply gets nil if the id is taken.
type CreateSession struct {
	State engine.State
	Reply chan *session.Session
}

type GetSession struct {
	ID    string
	Reply chan *session.Session
}

// EnsureSession returns the running session for ID, starting one from State
// if there is none.
type EnsureSession struct {
	ID    string
	State engine.State // only used if creation happens
	Reply chan *session.Session
}

// RemoveSession unregisters ID if it still points at Session.
type RemoveSession struct {
	ID      string
	Session *session.Session
}

type ListSessions struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (EnsureSession) isHubMsg() {}
func (RemoveSession) isHubMsg() {}
func (ListSessions) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

type Options struct {
	Clock     clockwork.Clock
	Logger    *zap.Logger
	Store     store.Store
	Publisher events.Publisher
	Catalog   champions.Catalog
	Settings  session.Settings
	Rules     engine.Rules
	// AutoCreate starts an empty session when a client joins an unknown id.
	AutoCreate bool
	// NewID overrides session id generation.
	NewID func() (string, error)
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Catalog == nil {
		opts.Catalog = champions.Default()
	}
	if opts.Settings == (session.Settings{}) {
		opts.Settings = session.DefaultSettings()
	}
	if opts.Rules == (engine.Rules{}) {
		opts.Rules = engine.DefaultRules()
	}
	if opts.NewID == nil {
		opts.NewID = GenerateCode
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		opts:     opts,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Store is the persistence backend sessions write to.
func (h *Hub) Store() store.Store { return h.opts.Store }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				msg.Reply <- h.create(msg.State)

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case EnsureSession:
				if s := h.sessions[msg.ID]; s != nil {
					msg.Reply <- s
					break
				}
				msg.State.SessionID = msg.ID
				msg.Reply <- h.start(msg.State)

			case RemoveSession:
				if h.sessions[msg.ID] == msg.Session {
					delete(h.sessions, msg.ID)
					h.log.Debug("session removed", zap.String("session_id", msg.ID))
				}

			case ListSessions:
				ids := make([]string, 0, len(h.sessions))
				for id := range h.sessions {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				msg.Reply <- ids

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(st engine.State) *session.Session {
	if st.SessionID != "" {
		if h.sessions[st.SessionID] != nil {
			return nil
		}
		return h.start(st)
	}
	for attempt := 0; attempt < 16; attempt++ {
		id, err := h.opts.NewID()
		if err != nil {
			h.log.Error("generate session id", zap.Error(err))
			return nil
		}
		if h.sessions[id] != nil {
			h.log.Debug("collision on session id, regenerating", zap.String("session_id", id))
			continue
		}
		st.SessionID = id
		return h.start(st)
	}
	return nil
}

func (h *Hub) start(st engine.State) *session.Session {
	s := session.New(h.ctx, st, session.Deps{
		Clock:     h.opts.Clock,
		Logger:    h.log,
		Store:     h.opts.Store,
		Publisher: h.opts.Publisher,
		Settings:  h.opts.Settings,
		OnClose:   h.onSessionClosed,
	})
	h.sessions[st.SessionID] = s
	h.log.Info("session started", zap.String("session_id", st.SessionID), zap.String("phase", string(st.Phase)))
	return s
}

// onSessionClosed runs on the session goroutine.
func (h *Hub) onSessionClosed(s *session.Session) {
	select {
	case h.inbox <- RemoveSession{ID: s.ID(), Session: s}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	h.cancel()
	for _, s := range h.sessions {
		<-s.Done()
	}
	clear(h.sessions)
}

// Done is closed once the hub and every session it owned have stopped.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) ask(ctx context.Context, msg HubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, h *Hub, reply chan T) (T, error) {
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		var zero T
		return zero, ErrClosed
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Create starts an unconfigured session. An empty id gets a generated code.
func (h *Hub) Create(ctx context.Context, id string) (*session.Session, error) {
	if id != "" && !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	pool, err := h.opts.Catalog.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load champion catalog: %w", err)
	}
	if id != "" {
		if _, err := h.opts.Store.LoadSnapshot(ctx, id); err == nil {
			return nil, ErrExists
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check session %s: %w", id, err)
		}
	}
	reply := make(chan *session.Session, 1)
	if err := h.ask(ctx, CreateSession{State: engine.NewState(id, h.opts.Rules, pool), Reply: reply}); err != nil {
		return nil, err
	}
	s, err := await(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	if s == nil {
		if id != "" {
			return nil, ErrExists
		}
		return nil, errors.New("could not allocate a session id")
	}
	return s, nil
}

// Get returns the running session or ErrNotFound.
func (h *Hub) Get(ctx context.Context, id string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	if err := h.ask(ctx, GetSession{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	s, err := await(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// Ensure returns the running session, restoring it from the store or, with
// AutoCreate, starting a fresh one.
func (h *Hub) Ensure(ctx context.Context, id string) (*session.Session, error) {
	return h.ensure(ctx, id, h.opts.AutoCreate)
}

// Lookup is Ensure without auto-creation.
func (h *Hub) Lookup(ctx context.Context, id string) (*session.Session, error) {
	return h.ensure(ctx, id, false)
}

func (h *Hub) ensure(ctx context.Context, id string, autoCreate bool) (*session.Session, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if s, err := h.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		return s, err
	}

	pool, err := h.opts.Catalog.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load champion catalog: %w", err)
	}
	st, err := h.opts.Store.LoadSnapshot(ctx, id)
	switch {
	case err == nil:
		st.Pool = pool
		h.log.Info("restoring session from store", zap.String("session_id", id), zap.String("phase", string(st.Phase)))
	case errors.Is(err, store.ErrNotFound):
		if !autoCreate {
			return nil, ErrNotFound
		}
		st = engine.NewState(id, h.opts.Rules, pool)
	default:
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	reply := make(chan *session.Session, 1)
	if err := h.ask(ctx, EnsureSession{ID: id, State: st, Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Configure applies cfg to the session, folding in the series history when
// the draft is fearless.
func (h *Hub) Configure(ctx context.Context, s *session.Session, cfg engine.Config) (engine.State, error) {
	if cfg.FearlessDraft && cfg.SeriesID != "" {
		used, err := h.opts.Store.UsedChampions(ctx, cfg.SeriesID)
		if err != nil {
			return engine.State{}, fmt.Errorf("load series history: %w", err)
		}
		cfg.UsedChampionIDs = store.MergeIDs(append(cfg.UsedChampionIDs, used...))
	}
	return s.Do(ctx, engine.Command{Type: engine.CmdConfigure, Config: &cfg})
}

func (h *Hub) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := h.ask(ctx, ListSessions{Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Shutdown stops every session and waits for them to exit.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
	}
	<-h.done
}
