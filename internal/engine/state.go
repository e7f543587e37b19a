package engine

import (
	"slices"
	"time"
)

type Format string

const (
	FormatBO1 Format = "BO1"
	FormatBO3 Format = "BO3"
	FormatBO5 Format = "BO5"
)

// Games returns the series length, or 0 for an unknown format.
func (f Format) Games() int {
	switch f {
	case FormatBO1:
		return 1
	case FormatBO3:
		return 3
	case FormatBO5:
		return 5
	default:
		return 0
	}
}

type TimeoutPolicy string

const (
	// TimeoutLowest auto-selects the lowest legal champion id in the pool.
	TimeoutLowest TimeoutPolicy = "lowest"
	// TimeoutHover locks the owning team's hover when legal, else falls back to TimeoutLowest.
	TimeoutHover TimeoutPolicy = "hover"
)

type Rules struct {
	PickTimerSec         int           `json:"pickTimerSec"`
	BanTimerSec          int           `json:"banTimerSec"`
	Finalization         bool          `json:"finalization,omitempty"`
	FinalizationTimerSec int           `json:"finalizationTimerSec,omitempty"`
	TimeoutPolicy        TimeoutPolicy `json:"timeoutPolicy,omitempty"`
}

func DefaultRules() Rules {
	return Rules{PickTimerSec: 30, BanTimerSec: 30, FinalizationTimerSec: 60, TimeoutPolicy: TimeoutLowest}
}

type TeamIdentity struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Config is what the match-setup collaborator supplies before the lobby opens.
type Config struct {
	Format          Format       `json:"format"`
	Patch           string       `json:"patch"`
	FearlessDraft   bool         `json:"fearlessDraft"`
	Blue            TeamIdentity `json:"blue"`
	Red             TeamIdentity `json:"red"`
	SeriesID        string       `json:"seriesId,omitempty"`
	GameNumber      int          `json:"gameNumber,omitempty"`
	UsedChampionIDs []int        `json:"usedChampionIds,omitempty"`
	Rules           Rules        `json:"rules"`
}

type TeamState struct {
	Name    string `json:"name"`
	IsReady bool   `json:"isReady"`
	Bans    []int  `json:"bans"`
	Picks   []int  `json:"picks"`
}

type Teams struct {
	Blue TeamState `json:"blue"`
	Red  TeamState `json:"red"`
}

// Side returns the roster for team, or nil for anything but blue/red.
func (t *Teams) Side(team Team) *TeamState {
	switch team {
	case TeamBlue:
		return &t.Blue
	case TeamRed:
		return &t.Red
	default:
		return nil
	}
}

type Timer struct {
	RemainingMs   int64     `json:"remaining"`
	IsActive      bool      `json:"isActive"`
	TurnStartedAt time.Time `json:"turnStartedAt"`
}

type Hover struct {
	Team       Team   `json:"team"`
	ChampionID *int   `json:"championId"`
	Action     Action `json:"actionType"`
}

type Hovers struct {
	Blue *Hover `json:"blue"`
	Red  *Hover `json:"red"`
}

func (h *Hovers) set(team Team, v *Hover) {
	switch team {
	case TeamBlue:
		h.Blue = v
	case TeamRed:
		h.Red = v
	}
}

func (h Hovers) For(team Team) *Hover {
	switch team {
	case TeamBlue:
		return h.Blue
	case TeamRed:
		return h.Red
	default:
		return nil
	}
}

type SeriesContext struct {
	FearlessDraft   bool  `json:"fearlessDraft"`
	UsedChampionIDs []int `json:"usedChampionIds"`
}

type State struct {
	SessionID     string        `json:"sessionId"`
	Version       int           `json:"version"`
	Phase         Phase         `json:"phase"`
	TurnNumber    int           `json:"turnNumber"`
	TotalTurns    int           `json:"totalTurns"`
	CurrentTurn   *Turn         `json:"currentTurn,omitempty"`
	Teams         Teams         `json:"teams"`
	Timer         Timer         `json:"timer"`
	Hover         Hovers        `json:"hover"`
	SeriesContext SeriesContext `json:"seriesContext"`
	Configured    bool          `json:"configured"`
	Config        Config        `json:"config"`

	// Pool is the sorted champion universe used for timeout fallbacks. It comes
	// from the champion catalog and is not broadcast.
	Pool []int `json:"-"`
}

// NewState returns an unconfigured session in the config phase.
func NewState(sessionID string, rules Rules, pool []int) State {
	s := State{
		SessionID: sessionID,
		Phase:     PhaseConfig,
		Teams: Teams{
			Blue: TeamState{Name: "Blue", Bans: []int{}, Picks: []int{}},
			Red:  TeamState{Name: "Red", Bans: []int{}, Picks: []int{}},
		},
		SeriesContext: SeriesContext{UsedChampionIDs: []int{}},
		Config:        Config{Rules: rules},
		Pool:          normalizeIDs(pool),
	}
	s.refresh()
	return s
}

// Order returns the turn table selected by the session rules.
func (s State) Order() TurnOrder {
	if s.Config.Rules.Finalization {
		return FinalizationOrder
	}
	return StandardOrder
}

// Snapshot returns a deep copy that shares no memory with s.
func (s State) Snapshot() State {
	out := s
	out.Teams.Blue = cloneTeam(s.Teams.Blue)
	out.Teams.Red = cloneTeam(s.Teams.Red)
	out.Hover = Hovers{Blue: cloneHover(s.Hover.Blue), Red: cloneHover(s.Hover.Red)}
	out.SeriesContext.UsedChampionIDs = cloneIDs(s.SeriesContext.UsedChampionIDs)
	out.Config.UsedChampionIDs = slices.Clone(s.Config.UsedChampionIDs)
	out.Pool = slices.Clone(s.Pool)
	if s.CurrentTurn != nil {
		t := *s.CurrentTurn
		out.CurrentTurn = &t
	}
	return out
}

// InDraft reports whether a ban or pick turn is pending.
func (s State) InDraft() bool {
	return s.Phase.IsDraft()
}

// Budget is the full time allowance for a turn.
func (s State) Budget(turn Turn) time.Duration {
	r := s.Config.Rules
	sec := r.PickTimerSec
	switch turn.Action {
	case ActionBan:
		sec = r.BanTimerSec
	case ActionFinalize:
		sec = r.FinalizationTimerSec
		if sec <= 0 {
			sec = r.PickTimerSec
		}
	}
	return time.Duration(sec) * time.Second
}

// refresh recomputes the derived fields from the turn pointer.
func (s *State) refresh() {
	order := s.Order()
	s.TotalTurns = order.Len()
	s.CurrentTurn = nil
	if s.Phase == PhaseConfig || s.Phase == PhaseLobby {
		return
	}
	s.Phase = DerivePhase(order, s.TurnNumber)
	if t, ok := order.At(s.TurnNumber); ok {
		s.CurrentTurn = &t
	}
}

func cloneTeam(t TeamState) TeamState {
	t.Bans = cloneIDs(t.Bans)
	t.Picks = cloneIDs(t.Picks)
	return t
}

func cloneHover(h *Hover) *Hover {
	if h == nil {
		return nil
	}
	out := *h
	if h.ChampionID != nil {
		id := *h.ChampionID
		out.ChampionID = &id
	}
	return &out
}

func cloneIDs(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return slices.Clone(ids)
}

// normalizeIDs sorts, dedupes and drops non-positive ids.
func normalizeIDs(ids []int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
