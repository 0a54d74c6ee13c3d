package app

import (
	"strconv"
	"strings"

	"github.com/MurkesM/ARPG/internal/spatial"
	"github.com/MurkesM/ARPG/internal/telemetry"
	"github.com/MurkesM/ARPG/logging"
)

// Role selects what a node runs.
type Role string

const (
	// RoleAuthority runs the authoritative simulation and serves observers.
	RoleAuthority Role = "authority"
	// RoleObserver dials an authority and mirrors it.
	RoleObserver Role = "observer"
)

// Config carries everything Run needs.
type Config struct {
	Addr         string
	Role         Role
	NodeID       string
	AuthorityURL string
	TickRate     int
	EnemyCount   int

	PerceptionRadius float64
	EntityRadius     float64
	Obstacles        []spatial.Rectangle

	Logging  logging.Config
	LogLevel string
	// Logger overrides the logrus-backed operational logger.
	Logger telemetry.Logger
}

// DefaultConfig returns a single authority on :8080 with one enemy.
func DefaultConfig() Config {
	return Config{
		Addr:             ":8080",
		Role:             RoleAuthority,
		AuthorityURL:     "ws://localhost:8080/ws",
		TickRate:         30,
		EnemyCount:       1,
		PerceptionRadius: 10,
		EntityRadius:     0.5,
		Obstacles: []spatial.Rectangle{
			{X: 3, Y: 2, Width: 1, Height: 1},
		},
		Logging:  logging.DefaultConfig(),
		LogLevel: "info",
	}
}

// ApplyEnv overlays environment overrides. Invalid values are logged and
// ignored.
func (c Config) ApplyEnv(getenv func(string) string, logger telemetry.Logger) Config {
	if logger == nil {
		logger = telemetry.Nop()
	}
	if raw := getenv("LOG_LEVEL"); raw != "" {
		c.LogLevel = strings.ToLower(raw)
		c.Logging.MinimumSeverity = logging.ParseSeverity(raw)
	}
	if raw := getenv("LOG_FORMAT"); raw != "" {
		c.Logging.Console.Format = strings.ToLower(raw)
	}
	if raw := getenv("LOG_SINKS"); raw != "" {
		if sinks := logging.ParseSinks(raw); len(sinks) > 0 {
			c.Logging.EnabledSinks = sinks
		}
	}
	if raw := getenv("LOG_JSON_PATH"); raw != "" {
		c.Logging.JSON.FilePath = raw
	}
	if raw := getenv("ARPG_ADDR"); raw != "" {
		c.Addr = raw
	}
	if raw := getenv("ARPG_TICK_RATE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			c.TickRate = value
		} else {
			logger.Printf("invalid ARPG_TICK_RATE=%q", raw)
		}
	}
	if raw := getenv("ARPG_ROLE"); raw != "" {
		switch Role(strings.ToLower(raw)) {
		case RoleAuthority:
			c.Role = RoleAuthority
		case RoleObserver:
			c.Role = RoleObserver
		default:
			logger.Printf("invalid ARPG_ROLE=%q", raw)
		}
	}
	if raw := getenv("ARPG_AUTHORITY_URL"); raw != "" {
		c.AuthorityURL = raw
	}
	if raw := getenv("ARPG_ENEMY_COUNT"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			c.EnemyCount = value
		} else {
			logger.Printf("invalid ARPG_ENEMY_COUNT=%q", raw)
		}
	}
	if raw := getenv("ARPG_NODE_ID"); raw != "" {
		c.NodeID = raw
	}
	return c
}
