package engine

import "slices"

// IsLegal reports whether id may still be banned or picked in this game.
// Turn ownership is checked separately so callers can tell the two failures apart.
func IsLegal(s State, id int) bool {
	if id <= 0 {
		return false
	}
	if hasBan(s, id) || hasPick(s, id) {
		return false
	}
	if s.SeriesContext.FearlessDraft && slices.Contains(s.SeriesContext.UsedChampionIDs, id) {
		return false
	}
	return true
}

// LowestLegal returns the smallest pool id that is still legal.
func LowestLegal(s State) (int, bool) {
	for _, id := range s.Pool {
		if IsLegal(s, id) {
			return id, true
		}
	}
	return 0, false
}

func hasPick(s State, id int) bool {
	return slices.Contains(s.Teams.Blue.Picks, id) || slices.Contains(s.Teams.Red.Picks, id)
}

func hasBan(s State, id int) bool {
	return slices.Contains(s.Teams.Blue.Bans, id) || slices.Contains(s.Teams.Red.Bans, id)
}

// fallbackChampion picks the champion a timed-out turn resolves to.
func fallbackChampion(s State, turn Turn) (int, bool) {
	if s.Config.Rules.TimeoutPolicy == TimeoutHover {
		if h := s.Hover.For(turn.Team); h != nil && h.ChampionID != nil && h.Action == turn.Action && IsLegal(s, *h.ChampionID) {
			return *h.ChampionID, true
		}
	}
	return LowestLegal(s)
}
