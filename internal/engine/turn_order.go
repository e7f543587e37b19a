package engine

type TurnPhase string

const (
	TurnBan1         TurnPhase = "BAN_1"
	TurnPick1        TurnPhase = "PICK_1"
	TurnBan2         TurnPhase = "BAN_2"
	TurnPick2        TurnPhase = "PICK_2"
	TurnFinalization TurnPhase = "FINALIZATION"
)

// Turn is one slot of the draft sequence. The finalization turn has no owning
// team and can only be resolved by its timer.
type Turn struct {
	Index  int       `json:"index"`
	Phase  TurnPhase `json:"phase"`
	Team   Team      `json:"team,omitempty"`
	Action Action    `json:"actionType"`
}

// TurnOrder is an immutable draft sequence.
type TurnOrder struct {
	turns []Turn
}

func (o TurnOrder) At(index int) (Turn, bool) {
	if index < 0 || index >= len(o.turns) {
		return Turn{}, false
	}
	return o.turns[index], true
}

func (o TurnOrder) Len() int { return len(o.turns) }

// CountFor returns how many turns of the given action belong to team.
func (o TurnOrder) CountFor(team Team, action Action) int {
	n := 0
	for _, t := range o.turns {
		if t.Team == team && t.Action == action {
			n++
		}
	}
	return n
}

var GameOrder = []Turn{
	// Ban Phase 1
	{Index: 0, Phase: TurnBan1, Team: TeamBlue, Action: ActionBan},
	{Index: 1, Phase: TurnBan1, Team: TeamRed, Action: ActionBan},
	{Index: 2, Phase: TurnBan1, Team: TeamBlue, Action: ActionBan},
	{Index: 3, Phase: TurnBan1, Team: TeamRed, Action: ActionBan},
	{Index: 4, Phase: TurnBan1, Team: TeamBlue, Action: ActionBan},
	{Index: 5, Phase: TurnBan1, Team: TeamRed, Action: ActionBan},
	// Pick Phase 1
	{Index: 6, Phase: TurnPick1, Team: TeamBlue, Action: ActionPick},
	{Index: 7, Phase: TurnPick1, Team: TeamRed, Action: ActionPick},
	{Index: 8, Phase: TurnPick1, Team: TeamRed, Action: ActionPick},
	{Index: 9, Phase: TurnPick1, Team: TeamBlue, Action: ActionPick},
	{Index: 10, Phase: TurnPick1, Team: TeamBlue, Action: ActionPick},
	{Index: 11, Phase: TurnPick1, Team: TeamRed, Action: ActionPick},
	// Ban Phase 2 starts with the side that did not open ban phase 1
	{Index: 12, Phase: TurnBan2, Team: TeamRed, Action: ActionBan},
	{Index: 13, Phase: TurnBan2, Team: TeamBlue, Action: ActionBan},
	{Index: 14, Phase: TurnBan2, Team: TeamRed, Action: ActionBan},
	{Index: 15, Phase: TurnBan2, Team: TeamBlue, Action: ActionBan},
	// Pick Phase 2
	{Index: 16, Phase: TurnPick2, Team: TeamRed, Action: ActionPick},
	{Index: 17, Phase: TurnPick2, Team: TeamBlue, Action: ActionPick},
	{Index: 18, Phase: TurnPick2, Team: TeamBlue, Action: ActionPick},
	{Index: 19, Phase: TurnPick2, Team: TeamRed, Action: ActionPick},
}

var (
	StandardOrder     = TurnOrder{turns: GameOrder}
	FinalizationOrder = TurnOrder{turns: append(append([]Turn{}, GameOrder...),
		Turn{Index: len(GameOrder), Phase: TurnFinalization, Action: ActionFinalize})}
)

// DerivePhase maps a turn pointer onto the coarse session phase. The
// finalization turn reports as pick2 since there is no coarser state for it.
func DerivePhase(order TurnOrder, cursor int) Phase {
	turn, ok := order.At(cursor)
	if !ok {
		return PhaseComplete
	}
	switch turn.Phase {
	case TurnBan1:
		return PhaseBan1
	case TurnPick1:
		return PhasePick1
	case TurnBan2:
		return PhaseBan2
	default:
		return PhasePick2
	}
}
