// Package session runs one draft as an actor: a single goroutine owns the
// state and serializes client commands, admin commands and timer expiry.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/events"
	"github.com/DoyleJ11/esports-draft/internal/protocol"
	"github.com/DoyleJ11/esports-draft/internal/store"
	"github.com/DoyleJ11/esports-draft/internal/timer"
)

var ErrClosed = errors.New("session closed")

type Msg interface{ isSessionMsg() }

// Join registers a connection. The current snapshot is sent to Outbox at once.
type Join struct {
	ClientID string
	Role     protocol.Role
	Outbox   chan protocol.ServerMessage
}

func (Join) isSessionMsg() {}

type Leave struct{ ClientID string }

func (Leave) isSessionMsg() {}

// FromClient carries a command from a joined connection. Rejections go back
// to that connection only.
type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isSessionMsg() {}

// Admin carries a command from the REST surface.
type Admin struct {
	Cmd   engine.Command
	Reply chan Result
}

func (Admin) isSessionMsg() {}

type Result struct {
	State engine.State
	Err   error
}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type View struct {
	Version        int
	NumClients     int
	State          engine.State
	TimerSuspended bool
}

type Settings struct {
	TickInterval      time.Duration
	BroadcastInterval time.Duration
	ReconnectGrace    time.Duration
	// RetentionTTL keeps a completed session readable. Zero disables eviction.
	RetentionTTL time.Duration
	// IdleTTL evicts an unfinished session nobody is connected to. Zero disables it.
	IdleTTL      time.Duration
	StoreTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		TickInterval:      timer.DefaultInterval,
		BroadcastInterval: 200 * time.Millisecond,
		ReconnectGrace:    30 * time.Second,
		RetentionTTL:      time.Hour,
		IdleTTL:           2 * time.Hour,
		StoreTimeout:      5 * time.Second,
	}
}

type Deps struct {
	Clock     clockwork.Clock
	Logger    *zap.Logger
	Store     store.Store
	Publisher events.Publisher
	Settings  Settings
	// OnClose runs once after the loop exits.
	OnClose func(*Session)
}

type client struct {
	role   protocol.Role
	outbox chan protocol.ServerMessage
}

type Session struct {
	id       string
	inbox    chan Msg
	state    engine.State
	clients  map[string]client
	clock    clockwork.Clock
	log      *zap.Logger
	settings Settings

	timer    *timer.Driver
	throttle *throttle
	evict    clockwork.Timer
	sink     chan sinkJob

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	onClose func(*Session)
}

func New(parent context.Context, initial engine.State, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Settings.StoreTimeout <= 0 {
		deps.Settings.StoreTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:       initial.SessionID,
		inbox:    make(chan Msg, 64),
		state:    initial.Snapshot(),
		clients:  make(map[string]client),
		clock:    deps.Clock,
		log:      deps.Logger.With(zap.String("session_id", initial.SessionID)),
		settings: deps.Settings,
		timer:    timer.New(deps.Clock, deps.Settings.TickInterval, deps.Settings.ReconnectGrace),
		throttle: newThrottle(deps.Clock, deps.Settings.BroadcastInterval),
		sink:     make(chan sinkJob, 64),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		onClose:  deps.OnClose,
	}

	// A restored draft resumes its countdown where the snapshot left it.
	if s.state.InDraft() && s.state.Timer.IsActive {
		s.timer.Start(time.Duration(s.state.Timer.RemainingMs) * time.Millisecond)
	}
	// A finished draft is only kept around for the retention window.
	if s.state.Phase == engine.PhaseComplete {
		s.armEviction(s.settings.RetentionTTL)
	}
	s.detached()

	go s.runSink(deps.Store, deps.Publisher)
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Inbox exposes the raw mailbox. Prefer Send outside tests.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Send delivers m unless the session has stopped or ctx ends first.
func (s *Session) Send(ctx context.Context, m Msg) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do applies an admin command and returns the resulting state.
func (s *Session) Do(ctx context.Context, cmd engine.Command) (engine.State, error) {
	reply := make(chan Result, 1)
	if err := s.Send(ctx, Admin{Cmd: cmd, Reply: reply}); err != nil {
		return engine.State{}, err
	}
	select {
	case r := <-reply:
		return r.State, r.Err
	case <-s.done:
		return engine.State{}, ErrClosed
	case <-ctx.Done():
		return engine.State{}, ctx.Err()
	}
}

func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (s *Session) loop() {
	defer s.close()
	for {
		select {
		case <-s.ctx.Done():
			return

		case m := <-s.inbox:
			if !s.handle(m) {
				return
			}

		case <-s.timer.C():
			if s.timer.Tick(s.clock.Now()) {
				if err := s.apply(engine.Command{Type: engine.CmdTimeoutAdvance}, ""); err != nil {
					s.log.Error("timeout advance failed", zap.Error(err))
					s.timer.Stop()
				}
			}

		case <-s.throttle.C():
			s.throttle.Fired()
			s.broadcast()

		case <-s.evictC():
			s.log.Info("session evicted", zap.String("phase", string(s.state.Phase)))
			return
		}
	}
}

func (s *Session) handle(m Msg) bool {
	switch msg := m.(type) {
	case Join:
		if len(s.clients) == 0 {
			s.timer.Resume()
			if s.state.Phase != engine.PhaseComplete {
				s.stopEviction()
			}
		}
		s.clients[msg.ClientID] = client{role: msg.Role, outbox: msg.Outbox}
		s.sendTo(msg.ClientID, protocol.GameState(s.current()))
		s.log.Debug("client joined", zap.String("client_id", msg.ClientID), zap.String("role", string(msg.Role)))

	case Leave:
		if _, ok := s.clients[msg.ClientID]; !ok {
			break
		}
		delete(s.clients, msg.ClientID)
		if len(s.clients) == 0 {
			s.detached()
		}

	case FromClient:
		_ = s.apply(msg.Cmd, msg.ClientID)

	case Admin:
		err := s.apply(msg.Cmd, "")
		msg.Reply <- Result{State: s.current(), Err: err}

	case GetState:
		msg.Reply <- View{
			Version:        s.state.Version,
			NumClients:     len(s.clients),
			State:          s.current(),
			TimerSuspended: s.timer.Suspended(),
		}

	case Shutdown:
		return false
	}
	return true
}

// apply runs cmd through the engine. origin names the connection to notify on
// rejection; empty for admin and timer commands.
func (s *Session) apply(cmd engine.Command, origin string) error {
	cmd.At = s.clock.Now()
	evts, next, err := engine.Apply(s.state, cmd)
	if err != nil {
		if origin != "" {
			s.sendTo(origin, protocol.ErrorMessage(err))
		}
		s.log.Debug("command rejected", zap.String("command", string(cmd.Type)), zap.String("client_id", origin), zap.Error(err))
		return err
	}

	prevTurn, prevPhase := s.state.TurnNumber, s.state.Phase
	s.state = next
	s.state.Version++

	if s.state.TurnNumber != prevTurn || s.state.Phase != prevPhase {
		if s.state.InDraft() {
			s.timer.Start(time.Duration(s.state.Timer.RemainingMs) * time.Millisecond)
		} else {
			s.timer.Stop()
		}
	}

	job := sinkJob{events: evts}
	switch {
	case engine.ContainsEvent(evts, engine.EvtGameCompleted):
		snap := s.state.Snapshot()
		job.save = &snap
		if id := snap.Config.SeriesID; id != "" {
			job.series = &seriesGame{
				seriesID:   id,
				gameNumber: snap.Config.GameNumber,
				picks:      append(append([]int{}, snap.Teams.Blue.Picks...), snap.Teams.Red.Picks...),
			}
		}
		s.armEviction(s.settings.RetentionTTL)
		s.log.Info("draft completed")
	case engine.ContainsEvent(evts, engine.EvtLobbyOpened), engine.ContainsEvent(evts, engine.EvtSidesSwapped):
		snap := s.state.Snapshot()
		job.save = &snap
	}
	s.enqueue(job)

	if onlyHover(evts) {
		if s.throttle.Allow() {
			s.broadcast()
		}
		return nil
	}
	s.broadcast()
	return nil
}

func onlyHover(evts []engine.Event) bool {
	for _, e := range evts {
		if e.Type != engine.EvtHoverChanged {
			return false
		}
	}
	return len(evts) > 0
}

// current is the state with the live countdown folded in.
func (s *Session) current() engine.State {
	st := s.state.Snapshot()
	if s.timer.Active() {
		st.Timer.RemainingMs = s.timer.Remaining().Milliseconds()
	}
	return st
}

func (s *Session) broadcast() {
	s.throttle.Sent()
	msg := protocol.GameState(s.current())
	for id, c := range s.clients {
		select {
		case c.outbox <- msg:
		default:
			// Client is slow/full - drop them.
			close(c.outbox)
			delete(s.clients, id)
			s.log.Warn("dropped slow client", zap.String("client_id", id))
		}
	}
	if len(s.clients) == 0 {
		s.detached()
	}
}

func (s *Session) sendTo(id string, msg protocol.ServerMessage) {
	c, ok := s.clients[id]
	if !ok {
		return
	}
	select {
	case c.outbox <- msg:
	default:
		close(c.outbox)
		delete(s.clients, id)
		s.log.Warn("dropped slow client", zap.String("client_id", id))
		if len(s.clients) == 0 {
			s.detached()
		}
	}
}

// detached runs whenever the last connection goes away.
func (s *Session) detached() {
	s.timer.Suspend()
	if s.state.Phase != engine.PhaseComplete && s.evict == nil {
		s.armEviction(s.settings.IdleTTL)
	}
}

func (s *Session) armEviction(d time.Duration) {
	s.stopEviction()
	if d > 0 {
		s.evict = s.clock.NewTimer(d)
	}
}

func (s *Session) stopEviction() {
	if s.evict != nil {
		s.evict.Stop()
		s.evict = nil
	}
}

func (s *Session) evictC() <-chan time.Time {
	if s.evict == nil {
		return nil
	}
	return s.evict.Chan()
}

func (s *Session) close() {
	s.timer.Stop()
	s.throttle.Stop()
	s.stopEviction()
	for id, c := range s.clients {
		close(c.outbox) // Tell client no more snapshots
		delete(s.clients, id)
	}
	close(s.sink)
	s.cancel()
	close(s.done)
	s.drain()
	if s.onClose != nil {
		s.onClose(s)
	}
}

// drain releases joins that were queued after the loop stopped reading.
func (s *Session) drain() {
	for {
		select {
		case m := <-s.inbox:
			if j, ok := m.(Join); ok {
				close(j.Outbox)
			}
		default:
			return
		}
	}
}
