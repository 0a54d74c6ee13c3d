// Package net exposes the node over HTTP.
package net

import (
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MurkesM/ARPG/internal/sim"
	"github.com/MurkesM/ARPG/internal/telemetry"
	"github.com/MurkesM/ARPG/logging"
)

// CommandSink stages commands on the local node.
type CommandSink interface {
	Enqueue(cmd sim.Command) (bool, string)
}

// HTTPHandlerConfig wires the HTTP surface.
type HTTPHandlerConfig struct {
	Role     string
	TickRate int
	Commands CommandSink
	// Observers serves the websocket endpoint; nil on observer nodes.
	Observers nethttp.HandlerFunc
	Metrics   *logging.Metrics
	Router    *logging.Router
	Logger    telemetry.Logger
}

type commandRequest struct {
	ActorID string          `json:"actorId"`
	Type    sim.CommandType `json:"type" binding:"required"`
	X       float64         `json:"x"`
	Y       float64         `json:"y"`
	Amount  int             `json:"amount"`
}

// NewHTTPHandler builds the gin engine serving /health, /diagnostics,
// /join, /command and /ws.
func NewHTTPHandler(cfg HTTPHandlerConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(nethttp.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/diagnostics", func(c *gin.Context) {
		payload := gin.H{
			"status":     "ok",
			"role":       cfg.Role,
			"serverTime": time.Now().UnixMilli(),
			"tickRate":   cfg.TickRate,
		}
		if cfg.Commands != nil {
			if pending, ok := cfg.Commands.(interface{ Pending() int }); ok {
				payload["pendingCommands"] = pending.Pending()
			}
		}
		if cfg.Metrics != nil {
			payload["telemetry"] = cfg.Metrics.Snapshot()
		}
		if cfg.Router != nil {
			stats := cfg.Router.Stats()
			payload["logging"] = gin.H{"events": stats.EventsTotal, "dropped": stats.DroppedTotal, "sinkDropped": stats.SinkDropped}
		}
		c.JSON(nethttp.StatusOK, payload)
	})

	r.POST("/join", func(c *gin.Context) {
		id := sim.NewEntityID("player")
		if !enqueue(c, cfg.Commands, sim.Command{ActorID: id, Type: sim.CommandJoin, IssuedAt: time.Now()}) {
			return
		}
		logger.Printf("[http] join accepted id=%s", id)
		c.JSON(nethttp.StatusOK, gin.H{"id": id})
	})

	r.POST("/command", func(c *gin.Context) {
		var req commandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		cmd, ok := toCommand(req)
		if !ok {
			c.JSON(nethttp.StatusBadRequest, gin.H{"error": "unknown command"})
			return
		}
		if !enqueue(c, cfg.Commands, cmd) {
			return
		}
		c.JSON(nethttp.StatusAccepted, gin.H{"status": "queued"})
	})

	if cfg.Observers != nil {
		r.GET("/ws", gin.WrapF(cfg.Observers))
	}
	return r
}

func toCommand(req commandRequest) (sim.Command, bool) {
	cmd := sim.Command{ActorID: req.ActorID, Type: req.Type, IssuedAt: time.Now()}
	switch req.Type {
	case sim.CommandMove:
		cmd.Move = &sim.MoveCommand{X: req.X, Y: req.Y}
	case sim.CommandHeal:
		cmd.Heal = &sim.HealCommand{Amount: req.Amount}
	case sim.CommandSpawnEnemy:
		cmd.Spawn = &sim.SpawnCommand{X: req.X, Y: req.Y}
	case sim.CommandAttack, sim.CommandJoin, sim.CommandLeave:
	default:
		return sim.Command{}, false
	}
	return cmd, true
}

func enqueue(c *gin.Context, sink CommandSink, cmd sim.Command) bool {
	if sink == nil {
		c.JSON(nethttp.StatusServiceUnavailable, gin.H{"error": "no simulation"})
		return false
	}
	if ok, reason := sink.Enqueue(cmd); !ok {
		c.JSON(nethttp.StatusTooManyRequests, gin.H{"error": reason})
		return false
	}
	return true
}
