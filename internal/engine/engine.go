package engine

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("invalid config")
var ErrInvalidPhase = errors.New("invalid phase")
var ErrNotYourTurn = errors.New("not your turn")
var ErrChampionUnavailable = errors.New("champion unavailable")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Team string

const (
	TeamBlue Team = "blue"
	TeamRed  Team = "red"
)

func (t Team) Valid() bool { return t == TeamBlue || t == TeamRed }

func (t Team) Opponent() Team {
	if t == TeamBlue {
		return TeamRed
	}
	return TeamBlue
}

type Action string

const (
	ActionBan      Action = "ban"
	ActionPick     Action = "pick"
	ActionFinalize Action = "finalize"
)

type Phase string

const (
	PhaseConfig   Phase = "config"
	PhaseLobby    Phase = "lobby"
	PhaseBan1     Phase = "ban1"
	PhasePick1    Phase = "pick1"
	PhaseBan2     Phase = "ban2"
	PhasePick2    Phase = "pick2"
	PhaseComplete Phase = "complete"
)

func (p Phase) IsDraft() bool {
	switch p {
	case PhaseBan1, PhasePick1, PhaseBan2, PhasePick2:
		return true
	}
	return false
}

type CommandType string

const (
	CmdConfigure      CommandType = "Configure"
	CmdStart          CommandType = "Start"
	CmdSetReady       CommandType = "SetReady"
	CmdLockPick       CommandType = "LockPick"
	CmdBanChampion    CommandType = "BanChampion"
	CmdHoverChampion  CommandType = "HoverChampion"
	CmdTimeoutAdvance CommandType = "TimeoutAdvance"
	CmdSwapSides      CommandType = "SwapSides"
)

/*
	CmdConfigure      -> EvtConfigured
	CmdStart          -> EvtLobbyOpened
	CmdSetReady       -> EvtTeamReady (-> EvtDraftStarted -> EvtTimerStarted once both sides are ready)
	CmdBanChampion    -> EvtChampionBanned -> EvtTurnAdvanced -> EvtTimerStarted | EvtGameCompleted
	CmdLockPick       -> EvtChampionPicked -> EvtTurnAdvanced -> EvtTimerStarted | EvtGameCompleted
	CmdHoverChampion  -> EvtHoverChanged (transient, never persisted)
	CmdTimeoutAdvance -> EvtTimerExpired -> (EvtChampionBanned | EvtChampionPicked) -> EvtTurnAdvanced ...
	CmdSwapSides      -> EvtSidesSwapped
*/

// Command is a pre-validated request against one session. At stamps the
// timer when the command advances the turn.
type Command struct {
	Type       CommandType
	Team       Team
	Action     Action
	ChampionID int
	Ready      bool
	Config     *Config
	At         time.Time
}

type EventType string

const (
	EvtConfigured     EventType = "Configured"
	EvtLobbyOpened    EventType = "LobbyOpened"
	EvtTeamReady      EventType = "TeamReady"
	EvtDraftStarted   EventType = "DraftStarted"
	EvtChampionPicked EventType = "ChampionPicked"
	EvtChampionBanned EventType = "ChampionBanned"
	EvtHoverChanged   EventType = "HoverChanged"
	EvtTurnAdvanced   EventType = "TurnAdvanced"
	EvtTimerStarted   EventType = "TimerStarted"
	EvtTimerExpired   EventType = "TimerExpired"
	EvtSidesSwapped   EventType = "SidesSwapped"
	EvtGameCompleted  EventType = "GameCompleted"
)

type Event struct {
	Type       EventType `json:"type"`
	Team       Team      `json:"team,omitempty"`
	ChampionID int       `json:"championId,omitempty"`
	Turn       int       `json:"turn"`
}

// Apply validates cmd against s and returns the resulting state. s is never
// modified; on error the returned state is s itself.
func Apply(s State, cmd Command) ([]Event, State, error) {
	next := s.Snapshot()

	var (
		events []Event
		err    error
	)
	switch cmd.Type {
	case CmdConfigure:
		events, err = configure(&next, cmd.Config)
	case CmdStart:
		events, err = start(&next)
	case CmdSetReady:
		events, err = setReady(&next, cmd.Team, cmd.Ready, cmd.At)
	case CmdLockPick:
		events, err = submit(&next, cmd.Team, ActionPick, cmd.ChampionID, cmd.At)
	case CmdBanChampion:
		events, err = submit(&next, cmd.Team, ActionBan, cmd.ChampionID, cmd.At)
	case CmdHoverChampion:
		events, err = hover(&next, cmd.Team, cmd.Action, cmd.ChampionID)
	case CmdTimeoutAdvance:
		events, err = timeout(&next, cmd.At)
	case CmdSwapSides:
		events, err = swapSides(&next)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd.Type)
	}
	if err != nil {
		return nil, s, err
	}
	return events, next, nil
}

func configure(s *State, cfg *Config) ([]Event, error) {
	if s.Phase != PhaseConfig {
		return nil, fmt.Errorf("%w: session is in %s", ErrInvalidConfig, s.Phase)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: missing config", ErrInvalidConfig)
	}
	c := *cfg
	c.Rules = mergeRules(s.Config.Rules, c.Rules)
	if c.GameNumber == 0 {
		c.GameNumber = 1
	}
	if err := validateConfig(c); err != nil {
		return nil, err
	}
	c.UsedChampionIDs = normalizeIDs(c.UsedChampionIDs)

	s.Config = c
	s.Configured = true
	s.Teams.Blue.Name = c.Blue.Name
	s.Teams.Red.Name = c.Red.Name
	s.SeriesContext = SeriesContext{FearlessDraft: c.FearlessDraft, UsedChampionIDs: []int{}}
	if c.FearlessDraft {
		s.SeriesContext.UsedChampionIDs = cloneIDs(c.UsedChampionIDs)
	}
	s.refresh()
	return []Event{{Type: EvtConfigured}}, nil
}

func start(s *State) ([]Event, error) {
	if s.Phase != PhaseConfig {
		return nil, fmt.Errorf("%w: cannot start from %s", ErrInvalidPhase, s.Phase)
	}
	if !s.Configured {
		return nil, fmt.Errorf("%w: session has not been configured", ErrInvalidConfig)
	}
	s.Phase = PhaseLobby
	s.refresh()
	return []Event{{Type: EvtLobbyOpened}}, nil
}

func setReady(s *State, team Team, ready bool, at time.Time) ([]Event, error) {
	if s.Phase != PhaseLobby {
		return nil, fmt.Errorf("%w: ready is only accepted in the lobby", ErrInvalidPhase)
	}
	side := s.Teams.Side(team)
	if side == nil {
		return nil, fmt.Errorf("%w: unknown team %q", ErrNotYourTurn, team)
	}
	side.IsReady = ready
	events := []Event{{Type: EvtTeamReady, Team: team}}

	if !s.Teams.Blue.IsReady || !s.Teams.Red.IsReady {
		return events, nil
	}

	s.Phase = PhaseBan1
	s.TurnNumber = 0
	s.refresh()
	s.startTimer(at)
	events = append(events,
		Event{Type: EvtDraftStarted},
		Event{Type: EvtTimerStarted, Team: s.CurrentTurn.Team, Turn: s.TurnNumber},
	)
	return events, nil
}

func submit(s *State, team Team, action Action, id int, at time.Time) ([]Event, error) {
	turn, err := pendingTurn(s)
	if err != nil {
		return nil, err
	}
	// Turn must match BOTH team & action
	if turn.Team != team || turn.Action != action {
		return nil, fmt.Errorf("%w: turn %d expects %s %s", ErrNotYourTurn, turn.Index, turn.Team, turn.Action)
	}
	if !IsLegal(*s, id) {
		return nil, fmt.Errorf("%w: %d", ErrChampionUnavailable, id)
	}
	events := record(s, turn, id)
	return append(events, advance(s, at)...), nil
}

func hover(s *State, team Team, action Action, id int) ([]Event, error) {
	turn, err := pendingTurn(s)
	if err != nil {
		return nil, err
	}
	if !team.Valid() {
		return nil, fmt.Errorf("%w: unknown team %q", ErrNotYourTurn, team)
	}
	if action != ActionBan && action != ActionPick {
		return nil, fmt.Errorf("%w: cannot hover a %q", ErrUnsupportedCommand, action)
	}
	// A team acting now may only preview the action it is about to commit.
	if turn.Team == team && turn.Action != action {
		return nil, fmt.Errorf("%w: turn %d expects %s", ErrNotYourTurn, turn.Index, turn.Action)
	}

	h := &Hover{Team: team, Action: action}
	if id > 0 {
		h.ChampionID = &id
	}
	s.Hover.set(team, h)
	return []Event{{Type: EvtHoverChanged, Team: team, ChampionID: id, Turn: turn.Index}}, nil
}

func timeout(s *State, at time.Time) ([]Event, error) {
	turn, err := pendingTurn(s)
	if err != nil {
		return nil, err
	}
	events := []Event{{Type: EvtTimerExpired, Team: turn.Team, Turn: turn.Index}}
	if turn.Action == ActionBan || turn.Action == ActionPick {
		// No legal champion left: the turn passes without a selection.
		if id, ok := fallbackChampion(*s, turn); ok {
			events = append(events, record(s, turn, id)...)
		}
	}
	return append(events, advance(s, at)...), nil
}

func swapSides(s *State) ([]Event, error) {
	if s.Phase != PhaseConfig && s.Phase != PhaseLobby {
		return nil, fmt.Errorf("%w: sides are locked once the draft starts", ErrInvalidPhase)
	}
	s.Config.Blue, s.Config.Red = s.Config.Red, s.Config.Blue
	s.Teams.Blue, s.Teams.Red = s.Teams.Red, s.Teams.Blue
	return []Event{{Type: EvtSidesSwapped}}, nil
}

func pendingTurn(s *State) (Turn, error) {
	if !s.Phase.IsDraft() {
		return Turn{}, fmt.Errorf("%w: no turn is pending in %s", ErrInvalidPhase, s.Phase)
	}
	turn, ok := s.Order().At(s.TurnNumber)
	if !ok {
		return Turn{}, fmt.Errorf("%w: turn %d out of range", ErrInvalidPhase, s.TurnNumber)
	}
	return turn, nil
}

func record(s *State, turn Turn, id int) []Event {
	side := s.Teams.Side(turn.Team)
	if turn.Action == ActionBan {
		side.Bans = append(side.Bans, id)
		return []Event{{Type: EvtChampionBanned, Team: turn.Team, ChampionID: id, Turn: turn.Index}}
	}
	side.Picks = append(side.Picks, id)
	return []Event{{Type: EvtChampionPicked, Team: turn.Team, ChampionID: id, Turn: turn.Index}}
}

// advance moves the turn pointer by exactly one and resets transient state.
func advance(s *State, at time.Time) []Event {
	s.TurnNumber++
	s.Hover = Hovers{}
	s.refresh()
	events := []Event{{Type: EvtTurnAdvanced, Turn: s.TurnNumber}}

	if s.TurnNumber >= s.TotalTurns {
		s.Phase = PhaseComplete
		s.Timer = Timer{}
		return append(events, Event{Type: EvtGameCompleted, Turn: s.TurnNumber})
	}
	s.startTimer(at)
	return append(events, Event{Type: EvtTimerStarted, Team: s.CurrentTurn.Team, Turn: s.TurnNumber})
}

func (s *State) startTimer(at time.Time) {
	if s.CurrentTurn == nil {
		s.Timer = Timer{}
		return
	}
	s.Timer = Timer{
		RemainingMs:   s.Budget(*s.CurrentTurn).Milliseconds(),
		IsActive:      true,
		TurnStartedAt: at,
	}
}
