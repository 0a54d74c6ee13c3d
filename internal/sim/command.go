package sim

import "time"

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandMove       CommandType = "Move"
	CommandAttack     CommandType = "Attack"
	CommandHeal       CommandType = "Heal"
	CommandSpawnEnemy CommandType = "SpawnEnemy"
	CommandJoin       CommandType = "Join"
	CommandLeave      CommandType = "Leave"
)

// MoveCommand carries a move-to-point destination.
type MoveCommand struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HealCommand carries a positive health delta.
type HealCommand struct {
	Amount int `json:"amount"`
}

// SpawnCommand optionally overrides the spawn position.
type SpawnCommand struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64        `json:"originTick"`
	ActorID    string        `json:"actorId"`
	Type       CommandType   `json:"type"`
	IssuedAt   time.Time     `json:"issuedAt"`
	Move       *MoveCommand  `json:"move,omitempty"`
	Heal       *HealCommand  `json:"heal,omitempty"`
	Spawn      *SpawnCommand `json:"spawn,omitempty"`
}
