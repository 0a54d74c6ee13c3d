package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MurkesM/ARPG/internal/lifecycle"
	servernet "github.com/MurkesM/ARPG/internal/net"
	"github.com/MurkesM/ARPG/internal/net/ws"
	"github.com/MurkesM/ARPG/internal/presentation"
	"github.com/MurkesM/ARPG/internal/replication"
	"github.com/MurkesM/ARPG/internal/sim"
	"github.com/MurkesM/ARPG/internal/spatial"
	"github.com/MurkesM/ARPG/internal/telemetry"
	"github.com/MurkesM/ARPG/logging"
	loggingSinks "github.com/MurkesM/ARPG/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

// Server is a fully wired node: its simulation, its HTTP surface and the
// logging pipeline behind both.
type Server struct {
	cfg     Config
	logger  telemetry.Logger
	router  *logging.Router
	metrics *logging.Metrics
	memory  *loggingSinks.MemorySink
	handler http.Handler

	commands servernet.CommandSink
	run      func(stop <-chan struct{})
	cleanup  []func()
	stop     chan struct{}
	done     chan struct{}
}

// Build wires a node for cfg without starting it.
func Build(ctx context.Context, cfg Config, registry *lifecycle.Registry) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogrus(newLogrus(cfg).WithFields(logrus.Fields{
			"role": string(cfg.Role),
			"node": cfg.NodeID,
		}))
	}
	if cfg.NodeID == "" {
		cfg.NodeID = string(cfg.Role)
	}
	if registry == nil {
		registry = lifecycle.Shared()
	}

	s := &Server{cfg: cfg, logger: logger, metrics: &logging.Metrics{}}
	router, memory, err := newRouter(cfg.Logging, logger)
	if err != nil {
		return nil, err
	}
	s.router = router
	s.memory = memory
	s.cleanup = append(s.cleanup, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	})

	var observers http.HandlerFunc
	switch cfg.Role {
	case RoleObserver:
		err = s.buildObserver(ctx, registry)
	default:
		observers, err = s.buildAuthority(registry)
	}
	if err != nil {
		s.Close()
		return nil, err
	}

	s.handler = servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
		Role:      string(cfg.Role),
		TickRate:  cfg.TickRate,
		Commands:  s.commands,
		Observers: observers,
		Metrics:   s.metrics,
		Router:    router,
		Logger:    logger,
	})
	return s, nil
}

func (s *Server) deps(registry *lifecycle.Registry, lookup func(string) logging.EntityRef) sim.Deps {
	bridge := statusLogging(presentation.Publishing(s.router, lookup), s.logger)
	prev := registry.SetFactory(lifecycle.StatusIndicators(presentation.StatusNotifier(bridge)))
	detach := presentation.AttachRegistry(bridge, registry)
	s.cleanup = append(s.cleanup, func() {
		detach()
		registry.SetFactory(prev)
	})
	return sim.Deps{
		Registry:  registry,
		Bridge:    bridge,
		Publisher: s.router,
		Logger:    s.logger,
		Metrics:   telemetry.WrapMetrics(s.metrics),
	}
}

func (s *Server) nodeConfig() (replication.NodeConfig, sim.LoopDeps) {
	nodeCfg := replication.DefaultNodeConfig(s.cfg.NodeID)
	nodeCfg.Loop.TickRate = s.cfg.TickRate
	return nodeCfg, sim.LoopDeps{
		Logger:    s.logger,
		Metrics:   telemetry.WrapMetrics(s.metrics),
		Publisher: s.router,
	}
}

func (s *Server) buildAuthority(registry *lifecycle.Registry) (http.HandlerFunc, error) {
	scene := spatial.NewScene(s.cfg.Obstacles, s.cfg.EntityRadius)
	var world *sim.World
	lookup := func(id string) logging.EntityRef {
		if world == nil {
			return logging.EntityRef{ID: id, Kind: logging.EntityKindUnknown}
		}
		return world.Lookup(id)
	}
	deps := s.deps(registry, lookup)
	deps.Perception = spatial.NewField(s.cfg.PerceptionRadius)
	deps.Overlaps = spatial.DefaultReach()
	deps.Visibility = scene
	deps.Blocker = scene

	nodeCfg, loopDeps := s.nodeConfig()
	authority, err := replication.NewAuthorityNode(nodeCfg, deps, loopDeps)
	if err != nil {
		return nil, fmt.Errorf("failed to construct authority: %w", err)
	}
	world = authority.World()
	scene.Track(world.Characters)

	spawn := nodeCfg.World.EnemySpawn
	for i := 0; i < s.cfg.EnemyCount; i++ {
		authority.Enqueue(sim.Command{
			Type:  sim.CommandSpawnEnemy,
			Spawn: &sim.SpawnCommand{X: spawn.X, Y: spawn.Y + 2*float64(i)},
		})
	}

	s.commands = authority.Loop()
	s.run = authority.Run
	handler := ws.NewHandler(authority, ws.HandlerConfig{Logger: s.logger})
	return handler.Handle, nil
}

func (s *Server) buildObserver(ctx context.Context, registry *lifecycle.Registry) error {
	client, err := ws.Dial(ctx, s.cfg.AuthorityURL, s.logger)
	if err != nil {
		return fmt.Errorf("failed to reach authority: %w", err)
	}
	s.cleanup = append(s.cleanup, func() { client.Close() })

	var world *sim.World
	lookup := func(id string) logging.EntityRef {
		if world == nil {
			return logging.EntityRef{ID: id, Kind: logging.EntityKindUnknown}
		}
		return world.Lookup(id)
	}
	nodeCfg, loopDeps := s.nodeConfig()
	observer, err := replication.NewObserverNode(nodeCfg, client, s.deps(registry, lookup), loopDeps)
	if err != nil {
		return fmt.Errorf("failed to construct observer: %w", err)
	}
	world = observer.World()

	s.commands = observer
	s.run = func(stop <-chan struct{}) {
		runCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := client.Run(runCtx, observer); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Printf("authority connection lost: %v", err)
			}
		}()
		observer.Run(stop)
	}
	return nil
}

// Handler returns the HTTP surface.
func (s *Server) Handler() http.Handler { return s.handler }

// Memory returns the in-memory sink when it is enabled.
func (s *Server) Memory() *loggingSinks.MemorySink { return s.memory }

// Start runs the tick loop in the background.
func (s *Server) Start() {
	if s.stop != nil || s.run == nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(s.stop)
	}()
}

// Close stops the tick loop and releases every resource.
func (s *Server) Close() {
	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
	}
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

// Run builds a node from cfg and serves it until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	srv, err := Build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer srv.Close()
	srv.Start()

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: srv.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	srv.logger.Printf("%s listening on %s", cfg.Role, cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

func newLogrus(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if strings.EqualFold(cfg.Logging.Console.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func newRouter(cfg logging.Config, logger telemetry.Logger) (*logging.Router, *loggingSinks.MemorySink, error) {
	var memory *loggingSinks.MemorySink
	sinks := make(map[string]logging.Sink, len(cfg.EnabledSinks))
	enabled := make([]string, 0, len(cfg.EnabledSinks))
	for _, name := range cfg.EnabledSinks {
		switch name {
		case "console":
			sinks[name] = loggingSinks.NewConsole(os.Stdout, cfg.Console)
		case "json":
			file, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				logger.Printf("json sink disabled: %v", err)
				continue
			}
			sinks[name] = loggingSinks.NewJSON(file, cfg.JSON.FlushInterval)
		case "memory":
			memory = loggingSinks.NewMemorySink()
			sinks[name] = memory
		default:
			logger.Printf("unknown log sink %q ignored", name)
			continue
		}
		enabled = append(enabled, name)
	}
	cfg.EnabledSinks = enabled

	router, err := logging.NewRouter(cfg, logging.SystemClock{}, logger, sinks)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	return router, memory, nil
}

// statusLogging renders status indicator updates as operational log lines
// and forwards everything else.
func statusLogging(next presentation.Bridge, logger telemetry.Logger) presentation.Bridge {
	return presentation.BridgeFunc(func(n presentation.Notification) {
		if n.Kind != presentation.KindStatus {
			next.Notify(n)
			return
		}
		if status, ok := n.Payload.(lifecycle.Status); ok {
			logger.Printf("[status] entity=%s health=%d/%d alive=%t", status.EntityID, status.Current, status.Max, status.Alive)
		}
	})
}
