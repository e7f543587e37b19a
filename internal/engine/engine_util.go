package engine

import (
	"errors"
	"fmt"
	"strings"
)

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// ErrorCode maps a validation error onto its wire code. Unknown errors map to "".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return "INVALID_CONFIG"
	case errors.Is(err, ErrInvalidPhase):
		return "INVALID_PHASE"
	case errors.Is(err, ErrNotYourTurn):
		return "NOT_YOUR_TURN"
	case errors.Is(err, ErrChampionUnavailable):
		return "CHAMPION_UNAVAILABLE"
	case errors.Is(err, ErrUnsupportedCommand):
		return "UNSUPPORTED"
	default:
		return ""
	}
}

// mergeRules fills unset fields of next from base.
func mergeRules(base, next Rules) Rules {
	if next.PickTimerSec == 0 {
		next.PickTimerSec = base.PickTimerSec
	}
	if next.BanTimerSec == 0 {
		next.BanTimerSec = base.BanTimerSec
	}
	if next.FinalizationTimerSec == 0 {
		next.FinalizationTimerSec = base.FinalizationTimerSec
	}
	if next.TimeoutPolicy == "" {
		next.TimeoutPolicy = base.TimeoutPolicy
	}
	if next.TimeoutPolicy == "" {
		next.TimeoutPolicy = TimeoutLowest
	}
	return next
}

func validateConfig(c Config) error {
	games := c.Format.Games()
	if games == 0 {
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, c.Format)
	}
	blue, red := strings.TrimSpace(c.Blue.Name), strings.TrimSpace(c.Red.Name)
	if blue == "" || red == "" {
		return fmt.Errorf("%w: both teams need a name", ErrInvalidConfig)
	}
	if strings.EqualFold(blue, red) {
		return fmt.Errorf("%w: teams must be distinct", ErrInvalidConfig)
	}
	if c.GameNumber < 1 || c.GameNumber > games {
		return fmt.Errorf("%w: game %d is outside a %s", ErrInvalidConfig, c.GameNumber, c.Format)
	}
	r := c.Rules
	if r.PickTimerSec < 0 || r.BanTimerSec < 0 || r.FinalizationTimerSec < 0 {
		return fmt.Errorf("%w: timers cannot be negative", ErrInvalidConfig)
	}
	if r.TimeoutPolicy != TimeoutLowest && r.TimeoutPolicy != TimeoutHover {
		return fmt.Errorf("%w: unknown timeout policy %q", ErrInvalidConfig, r.TimeoutPolicy)
	}
	for _, id := range c.UsedChampionIDs {
		if id <= 0 {
			return fmt.Errorf("%w: champion id %d", ErrInvalidConfig, id)
		}
	}
	return nil
}
