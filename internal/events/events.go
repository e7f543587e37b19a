// Package events fans draft events out to downstream consumers such as
// broadcast overlays and stat trackers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/DoyleJ11/esports-draft/internal/engine"
)

const DefaultSubjectPrefix = "draft.sessions"

type Publisher interface {
	Publish(ctx context.Context, sessionID string, evts []engine.Event) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, string, []engine.Event) error { return nil }
func (Nop) Close() error                                          { return nil }

// Envelope is the payload of every published message.
type Envelope struct {
	SessionID string       `json:"sessionId"`
	Event     engine.Event `json:"event"`
	At        time.Time    `json:"at"`
}

// Subject returns "<prefix>.<sessionId>.<eventType>".
func Subject(prefix, sessionID string, typ engine.EventType) string {
	return fmt.Sprintf("%s.%s.%s", prefix, sessionID, typ)
}

// Published reports whether an event leaves the process. Hover changes are
// transient and stay local.
func Published(e engine.Event) bool {
	return e.Type != engine.EvtHoverChanged
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	now    func() time.Time
}

func NewNATS(cfg NATSConfig, log *zap.Logger) (*NATSPublisher, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	opts := []nats.Option{
		nats.Name("esports-draft"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("nats error", zap.Error(err))
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix, now: time.Now}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, sessionID string, evts []engine.Event) error {
	for _, e := range evts {
		if !Published(e) {
			continue
		}
		data, err := json.Marshal(Envelope{SessionID: sessionID, Event: e, At: p.now().UTC()})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := p.nc.Publish(Subject(p.prefix, sessionID, e.Type), data); err != nil {
			return fmt.Errorf("publish %s: %w", e.Type, err)
		}
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events map[string][]engine.Event
}

func NewRecorder() *Recorder {
	return &Recorder{events: make(map[string][]engine.Event)}
}

func (r *Recorder) Publish(_ context.Context, sessionID string, evts []engine.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range evts {
		if Published(e) {
			r.events[sessionID] = append(r.events[sessionID], e)
		}
	}
	return nil
}

func (r *Recorder) Events(sessionID string) []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.Event, len(r.events[sessionID]))
	copy(out, r.events[sessionID])
	return out
}

func (r *Recorder) Close() error { return nil }
