package api

import (
	"fmt"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llmkube/console/pkg/api/handlers"
	"github.com/llmkube/console/pkg/api/middleware"
	"github.com/llmkube/console/pkg/config"
	"github.com/llmkube/console/pkg/discovery"
	"github.com/llmkube/console/pkg/kubectl"
	"github.com/llmkube/console/pkg/store"
)

// Server wires the discovery engine, cache store, and HTTP surface.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	store   store.Store
	runner  *kubectl.Runner
	watcher *kubectl.Watcher
	engine  *discovery.Engine
	hub     *handlers.Hub
}

// NewServer builds the server: SQLite-backed cache, kubectl runner,
// discovery engine seeded from cache, and the fiber app.
func NewServer(cfg config.Config) (*Server, error) {
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	runner, err := kubectl.NewRunner(cfg.Kubeconfig)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize kubectl runner: %w", err)
	}

	engine := discovery.NewEngine(runner, runner.ListContexts, db, discovery.Config{
		RefreshInterval: cfg.RefreshInterval,
		QueryTimeout:    cfg.QueryTimeout,
		Clusters:        cfg.Clusters,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	hub := handlers.NewHub()
	go hub.Run()

	server := &Server{
		app:    app,
		cfg:    cfg,
		store:  db,
		runner: runner,
		engine: engine,
		hub:    hub,
	}

	// Rediscover on kubeconfig changes; contexts may have been added or
	// removed.
	watcher, err := kubectl.NewWatcher(runner, func() {
		hub.BroadcastAll(handlers.Message{
			Type: "kubeconfig_changed",
			Data: map[string]string{"message": "Kubeconfig updated"},
		})
		engine.Refresh()
	})
	if err != nil {
		log.Printf("Warning: failed to start kubeconfig watcher: %v", err)
	} else {
		server.watcher = watcher
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
}

func (s *Server) setupRoutes() {
	// Health check
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Prometheus metrics
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	stacks := handlers.NewStackHandlers(s.engine, s.runner)
	s.app.Get("/api/stacks", stacks.GetStacks)
	s.app.Post("/api/stacks/refresh", stacks.RefreshStacks)
	s.app.Get("/api/stacks/stream", stacks.StreamStacks)
	s.app.Get("/api/clusters", stacks.ListClusters)

	// WebSocket for real-time updates
	s.app.Use("/ws", middleware.WebSocketUpgrade())
	s.app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		s.hub.HandleConnection(c)
	}))
}

// Start launches the discovery engine, bridges published snapshots to the
// WebSocket hub, and begins listening.
func (s *Server) Start() error {
	s.engine.Start()

	id, updates := s.engine.Subscribe()
	go func() {
		for snap := range updates {
			s.hub.BroadcastAll(handlers.Message{Type: "stacks", Data: snap})
		}
	}()
	_ = id // released by engine.Stop closing the channel

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	log.Printf("Starting server on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.engine.Stop()
	s.hub.Close()
	if err := s.store.Close(); err != nil {
		log.Printf("Warning: store close error: %v", err)
	}
	return s.app.Shutdown()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
