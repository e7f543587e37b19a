// Package protocol defines the JSON wire format spoken over the draft websocket.
//
// Inbound frames are decoded into a closed set of message types so the
// session only ever sees validated input.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/esports-draft/internal/engine"
)

type MessageType string

const (
	TypeJoin  MessageType = "join"
	TypeReady MessageType = "ready"
	TypePick  MessageType = "pick"
	TypeBan   MessageType = "ban"
	TypeHover MessageType = "hover"

	TypeGameState MessageType = "gameState"
	TypeError     MessageType = "error"
)

// Protocol error codes, reported before a message reaches a session.
const (
	CodeMalformed      = "MALFORMED"
	CodeUnknownType    = "UNKNOWN_TYPE"
	CodeUnknownSession = "UNKNOWN_SESSION"
	CodeRoleMismatch   = "ROLE_MISMATCH"
	CodeNotJoined      = "NOT_JOINED"
	CodeAlreadyJoined  = "ALREADY_JOINED"
	CodeInternal       = "INTERNAL"
)

// Error is a protocol-level rejection.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

type Role string

const (
	RoleBlue      Role = "blue"
	RoleRed       Role = "red"
	RoleSpectator Role = "spectator"
	RoleOverlay   Role = "overlay"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleBlue, RoleRed, RoleSpectator, RoleOverlay:
		return r, true
	}
	return "", false
}

// Team returns the side a role drafts for. Passive roles have none.
func (r Role) Team() (engine.Team, bool) {
	switch r {
	case RoleBlue:
		return engine.TeamBlue, true
	case RoleRed:
		return engine.TeamRed, true
	}
	return "", false
}

// Envelope is the raw client frame.
type Envelope struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId"`
	TeamSide  string          `json:"teamSide"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Message is one of Join, Ready, Action or Hover.
type Message interface {
	isMessage()
	Session() string
}

type Join struct {
	SessionID string
	Role      Role
}

type Ready struct {
	SessionID string
	Team      engine.Team
	Ready     bool
}

type Action struct {
	SessionID  string
	Team       engine.Team
	Action     engine.Action
	ChampionID int
}

// Hover carries ChampionID 0 when the client sent null.
type Hover struct {
	SessionID  string
	Team       engine.Team
	Action     engine.Action
	ChampionID int
}

func (Join) isMessage()   {}
func (Ready) isMessage()  {}
func (Action) isMessage() {}
func (Hover) isMessage()  {}

func (m Join) Session() string   { return m.SessionID }
func (m Ready) Session() string  { return m.SessionID }
func (m Action) Session() string { return m.SessionID }
func (m Hover) Session() string  { return m.SessionID }

type readyPayload struct {
	Ready *bool `json:"ready"`
}

type actionPayload struct {
	ChampionID *int `json:"championId"`
}

type hoverPayload struct {
	ChampionID *int   `json:"championId"`
	ActionType string `json:"actionType"`
}

// Decode parses and validates one client frame.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, Errorf(CodeMalformed, "bad json")
	}
	if env.SessionID == "" {
		return nil, Errorf(CodeMalformed, "missing sessionId")
	}
	role, ok := ParseRole(env.TeamSide)
	if !ok {
		return nil, Errorf(CodeRoleMismatch, "unknown teamSide %q", env.TeamSide)
	}

	if env.Type == TypeJoin {
		return Join{SessionID: env.SessionID, Role: role}, nil
	}

	switch env.Type {
	case TypeReady, TypePick, TypeBan, TypeHover:
	default:
		return nil, Errorf(CodeUnknownType, "unknown type %q", env.Type)
	}
	team, ok := role.Team()
	if !ok {
		return nil, Errorf(CodeRoleMismatch, "%s cannot send %s", role, env.Type)
	}

	switch env.Type {
	case TypeReady:
		var p readyPayload
		if err := decodePayload(env.Payload, &p); err != nil || p.Ready == nil {
			return nil, Errorf(CodeMalformed, "ready needs payload.ready")
		}
		return Ready{SessionID: env.SessionID, Team: team, Ready: *p.Ready}, nil

	case TypePick, TypeBan:
		var p actionPayload
		if err := decodePayload(env.Payload, &p); err != nil || p.ChampionID == nil || *p.ChampionID <= 0 {
			return nil, Errorf(CodeMalformed, "%s needs a positive payload.championId", env.Type)
		}
		action := engine.ActionPick
		if env.Type == TypeBan {
			action = engine.ActionBan
		}
		return Action{SessionID: env.SessionID, Team: team, Action: action, ChampionID: *p.ChampionID}, nil

	default:
		var p hoverPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, Errorf(CodeMalformed, "bad hover payload")
		}
		action := engine.Action(p.ActionType)
		if action != engine.ActionPick && action != engine.ActionBan {
			return nil, Errorf(CodeMalformed, "hover needs actionType pick or ban")
		}
		h := Hover{SessionID: env.SessionID, Team: team, Action: action}
		if p.ChampionID != nil {
			if *p.ChampionID <= 0 {
				return nil, Errorf(CodeMalformed, "championId must be positive or null")
			}
			h.ChampionID = *p.ChampionID
		}
		return h, nil
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(raw, v)
}

// ServerMessage is every frame the server sends.
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func GameState(s engine.State) ServerMessage {
	return ServerMessage{Type: TypeGameState, Payload: s}
}

// ErrorMessage renders err for the wire, keeping protocol and engine codes.
func ErrorMessage(err error) ServerMessage {
	var perr *Error
	if errors.As(err, &perr) {
		return ServerMessage{Type: TypeError, Payload: ErrorPayload{Message: perr.Message, Code: perr.Code}}
	}
	return ServerMessage{Type: TypeError, Payload: ErrorPayload{Message: err.Error(), Code: engine.ErrorCode(err)}}
}

// Frame is a server message as seen by a client, with the payload left raw.
type Frame struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
