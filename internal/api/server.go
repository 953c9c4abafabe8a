// Package api exposes the gateway over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fluid-gateway/internal/actions"
	"fluid-gateway/internal/balance"
	"fluid-gateway/internal/history"
	"fluid-gateway/internal/metrics"
	"fluid-gateway/internal/pricefeed"
	"fluid-gateway/internal/tracker"
	"fluid-gateway/internal/wallet"
)

const requestIDHeader = "X-Request-ID"

// Options configure the listener.
type Options struct {
	Addr            string
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the components served by the API. Nil components disable their routes.
type Deps struct {
	// Prices answers POST /api/prices and should be cached.
	Prices   pricefeed.Feed
	Adapter  *pricefeed.Adapter
	Session  *wallet.Session
	Balances *balance.Reader
	History  *history.Log
	Actions  *actions.Handlers
	Tracker  *tracker.Manager
	Metrics  *metrics.Metrics
}

// Server is the gin HTTP server.
type Server struct {
	opts     Options
	deps     Deps
	engine   *gin.Engine
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New builds the router.
func New(opts Options, deps Deps, logger zerolog.Logger) *Server {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		opts:   opts,
		deps:   deps,
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.engine.Use(gin.Recovery(), requestID(), s.observe())
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := r.Group("/api")
	api.POST("/prices", s.postPrices)
	api.GET("/prices/latest", s.latestPrices)

	api.GET("/wallet", s.walletStatus)
	api.POST("/wallet/connect", s.walletConnect)
	api.POST("/wallet/disconnect", s.walletDisconnect)
	api.POST("/wallet/chain", s.walletSwitchChain)

	api.GET("/balances/:address", s.balances)

	api.GET("/transactions/:address", s.transactions)
	api.GET("/transactions/:address/export", s.exportTransactions)

	api.POST("/purchase/quote", s.purchaseQuote)
	api.POST("/purchase", s.purchase)
	api.POST("/claim", s.claim)

	api.GET("/airdrop", s.airdropStats)
	api.GET("/airdrop/:address", s.airdropStatus)
	api.GET("/presale", s.presaleStats)

	api.POST("/tx/:hash/track", s.trackTx)
	api.GET("/tx/:hash", s.txStatus)
	api.GET("/tx/:hash/ws", s.streamTx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		s.deps.Metrics.ObserveHTTP(route, c.Request.Method, strconv.Itoa(status), elapsed.Seconds())

		event := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("request served")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}
