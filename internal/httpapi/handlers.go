// Package httpapi is the REST surface used by match setup tooling to create,
// configure and open draft sessions.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/hub"
	"github.com/DoyleJ11/esports-draft/internal/protocol"
	"github.com/DoyleJ11/esports-draft/internal/session"
	"github.com/DoyleJ11/esports-draft/internal/store"
	"github.com/DoyleJ11/esports-draft/internal/ws"
)

const (
	CodeNotFound  = "NOT_FOUND"
	CodeConflict  = "CONFLICT"
	CodeInvalidID = "INVALID_SESSION_ID"
)

type api struct {
	hub *hub.Hub
	ws  *ws.Manager
	log *zap.Logger
}

type createRequest struct {
	SessionID string         `json:"sessionId"`
	Config    *engine.Config `json:"config,omitempty"`
}

type sessionResponse struct {
	SessionID string       `json:"sessionId"`
	State     engine.State `json:"state"`
}

type configResponse struct {
	Configured bool          `json:"configured"`
	Config     engine.Config `json:"config"`
}

func (a *api) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeMalformed, err.Error())
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)

	s, err := a.hub.Create(r.Context(), req.SessionID)
	if err != nil {
		a.fail(w, err)
		return
	}

	var st engine.State
	if req.Config != nil {
		st, err = a.hub.Configure(r.Context(), s, *req.Config)
	} else {
		var v session.View
		v, err = s.View(r.Context())
		st = v.State
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: s.ID(), State: st})
}

// GetSession serves live state, falling back to the last persisted snapshot
// for sessions that are no longer running.
func (a *api) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := a.hub.Get(r.Context(), id)
	if errors.Is(err, hub.ErrNotFound) {
		st, serr := a.hub.Store().LoadSnapshot(r.Context(), id)
		if serr != nil {
			a.fail(w, serr)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: st})
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	v, err := s.View(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: v.State})
}

func (a *api) GetConfig(w http.ResponseWriter, r *http.Request) {
	s, ok := a.lookup(w, r)
	if !ok {
		return
	}
	v, err := s.View(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configResponse{Configured: v.State.Configured, Config: v.State.Config})
}

func (a *api) Configure(w http.ResponseWriter, r *http.Request) {
	var cfg engine.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeMalformed, "bad json")
		return
	}
	s, ok := a.lookup(w, r)
	if !ok {
		return
	}
	st, err := a.hub.Configure(r.Context(), s, cfg)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configResponse{Configured: st.Configured, Config: st.Config})
}

func (a *api) Start(w http.ResponseWriter, r *http.Request) {
	a.command(w, r, engine.Command{Type: engine.CmdStart})
}

func (a *api) SwapSides(w http.ResponseWriter, r *http.Request) {
	a.command(w, r, engine.Command{Type: engine.CmdSwapSides})
}

func (a *api) command(w http.ResponseWriter, r *http.Request, cmd engine.Command) {
	s, ok := a.lookup(w, r)
	if !ok {
		return
	}
	st, err := s.Do(r.Context(), cmd)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: s.ID(), State: st})
}

func (a *api) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.hub.Store().Ping(ctx); err != nil {
		a.log.Warn("store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) Stats(w http.ResponseWriter, r *http.Request) {
	ids, err := a.hub.List(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Sessions  int      `json:"sessions"`
		Websocket ws.Stats `json:"websocket"`
	}{Sessions: len(ids), Websocket: a.ws.Stats()})
}

func (a *api) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := a.hub.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return nil, false
	}
	return s, true
}

// fail maps err onto a status code and wire error.
func (a *api) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hub.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusNotFound, CodeNotFound, "session not found")
		return
	case errors.Is(err, hub.ErrExists):
		writeError(w, http.StatusConflict, CodeConflict, err.Error())
		return
	case errors.Is(err, hub.ErrInvalidID):
		writeError(w, http.StatusBadRequest, CodeInvalidID, err.Error())
		return
	}

	switch code := engine.ErrorCode(err); code {
	case "INVALID_CONFIG":
		writeError(w, http.StatusUnprocessableEntity, code, err.Error())
	case "INVALID_PHASE", "NOT_YOUR_TURN", "CHAMPION_UNAVAILABLE":
		writeError(w, http.StatusConflict, code, err.Error())
	case "UNSUPPORTED":
		writeError(w, http.StatusBadRequest, code, err.Error())
	default:
		a.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, protocol.CodeInternal, "internal error")
	}
}

func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return errors.New("bad json")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, protocol.ErrorPayload{Message: msg, Code: code})
}
