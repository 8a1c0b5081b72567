package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"multiaccount-trade/internal/engine"
	"multiaccount-trade/internal/monitor"
)

// Config tunes the HTTP layer.
type Config struct {
	// Per client IP request rate. Zero picks 20 req/s with a burst of 50.
	RateLimit rate.Limit
	Burst     int
}

// Server wires HTTP endpoints around the trading engine.
type Server struct {
	Router  *gin.Engine
	Engine  engine.Service
	Auth    TokenValidator
	Metrics *monitor.SystemMetrics

	log zerolog.Logger
}

func NewServer(svc engine.Service, auth TokenValidator, metrics *monitor.SystemMetrics, logger zerolog.Logger, cfg Config) *Server {
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 50
	}

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(newIPLimiters(cfg.RateLimit, cfg.Burst, 5*time.Minute)))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:  r,
		Engine:  svc,
		Auth:    auth,
		Metrics: metrics,
		log:     logger.With().Str("component", "api").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	api.Use(AuthMiddleware(s.Auth))
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)
		api.GET("/gateways", s.getGateways)

		// Trading
		api.POST("/orders/:intent", s.placeOrder)
		api.DELETE("/orders/:id", s.cancelOrder)
		api.POST("/subscriptions", s.subscribe)

		// State
		api.GET("/quotes", s.getQuotes)
		api.GET("/quotes/:id", s.getQuote)
		api.GET("/contracts", s.getContracts)
		api.GET("/contracts/:id", s.getContract)
		api.GET("/orders", s.getOrders)
		api.GET("/orders/active", s.getActiveOrders)
		api.GET("/orders/active/:id", s.getActiveOrder)
		api.GET("/orders/:id", s.getOrder)
		api.GET("/trades", s.getTrades)
		api.GET("/trades/:id", s.getTrade)
		api.GET("/positions", s.getPositions)
		api.GET("/positions/:id", s.getPosition)
		api.GET("/accounts", s.getAccounts)
		api.GET("/accounts/:id", s.getAccount)

		// Journal
		api.GET("/journal/orders", s.getJournalOrders)
		api.GET("/journal/trades", s.getJournalTrades)

		// Tabular data
		api.POST("/data/:gateway/load", s.loadData)
		api.POST("/data/:gateway/backup", s.backupData)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
