package combat

import (
	"fmt"
	"strings"
)

// Faction tags which side an entity fights for.
type Faction string

const (
	FactionPlayer Faction = "player"
	FactionEnemy  Faction = "enemy"
)

// Opposes reports whether other is on the opposite side of f.
func (f Faction) Opposes(other Faction) bool {
	return f != "" && other != "" && f != other
}

// AllowedTargets filters which factions an attack may damage.
type AllowedTargets uint8

const (
	AllowPlayer AllowedTargets = iota + 1
	AllowEnemy
	AllowBoth
)

// Allows reports whether a candidate of the given faction passes the filter.
func (a AllowedTargets) Allows(f Faction) bool {
	switch a {
	case AllowPlayer:
		return f == FactionPlayer
	case AllowEnemy:
		return f == FactionEnemy
	case AllowBoth:
		return f == FactionPlayer || f == FactionEnemy
	default:
		return false
	}
}

func (a AllowedTargets) String() string {
	switch a {
	case AllowPlayer:
		return "player"
	case AllowEnemy:
		return "enemy"
	case AllowBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseAllowedTargets converts a configuration string into a filter.
func ParseAllowedTargets(raw string) (AllowedTargets, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "player", "players":
		return AllowPlayer, nil
	case "enemy", "enemies":
		return AllowEnemy, nil
	case "both", "all":
		return AllowBoth, nil
	default:
		return 0, fmt.Errorf("combat: unknown allowed targets %q", raw)
	}
}

// OpposingTargets returns the filter an attacker of faction f uses by default.
func OpposingTargets(f Faction) AllowedTargets {
	if f == FactionEnemy {
		return AllowPlayer
	}
	return AllowEnemy
}
