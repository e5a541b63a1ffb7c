package server

import (
	"context"

	"backend-territory/internal/auth"
	"backend-territory/internal/config"
	"backend-territory/internal/db"
	"backend-territory/internal/friends"
	"backend-territory/internal/logger"
	"backend-territory/internal/session"
	"backend-territory/internal/stream"
	"backend-territory/internal/territory"
	"backend-territory/internal/tracking"
	"backend-territory/internal/xp"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Querier
	Redis  *redis.Client
	Stream *stream.Hub
}

// NewServer wires every route. A nil database runs the territory and XP
// components on in-memory stores with no friend graph.
func NewServer(cfg config.Config, pool db.Querier, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pool,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

// Shutdown stops the HTTP server and the stream subscription. The stream is
// closed even when the HTTP shutdown fails.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.App.ShutdownWithContext(ctx)
	if cerr := s.Stream.Close(); err == nil {
		err = cerr
	}
	return err
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	var (
		store       territory.Store
		ledger      xp.Ledger
		friendGraph friends.Provider
	)
	if s.DB != nil {
		friendSvc := friends.NewService(s.DB)
		store = territory.NewPostgresStore(s.DB)
		ledger = xp.NewPostgresLedger(s.DB)
		friendGraph = friendSvc
		friends.RegisterRoutes(s.App.Group("/friends"), friendSvc, jwtMiddleware)
	} else {
		logger.L().Warn("no database configured, using in-memory territory and xp stores")
		store = territory.NewMemoryStore()
		ledger = xp.NewMemoryLedger()
		friendGraph = friends.Static{}
	}

	territorySvc := territory.NewService(store, friendGraph, ledger, s.Stream, s.Cfg.XpPerSqMile)
	board := xp.NewLeaderboard(ledger, friendGraph, s.Redis, s.Cfg.LeaderboardCacheTTL)
	trackingSvc := tracking.NewService(session.NewFileStore(s.Cfg.SessionStorePath), s.Cfg.LoopConfig(), s.Stream, s.Cfg.PrivacyMask)

	territory.RegisterRoutes(s.App.Group("/territories"), territorySvc, jwtMiddleware)
	xp.RegisterRoutes(s.App.Group("/xp"), xp.NewService(ledger, board, s.Cfg.Location()), jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), trackingSvc, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware)
}
