package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/samvad-hq/samvad-briefing/internal/briefing"
	"github.com/samvad-hq/samvad-briefing/internal/domain"
	"github.com/samvad-hq/samvad-briefing/internal/logger"
)

// Service is the orchestrator surface the HTTP layer exposes.
type Service interface {
	Generate(ctx context.Context, req briefing.Request) (briefing.Result, error)
	GetByDate(ctx context.Context, date string) (domain.Briefing, bool, error)
	GetLatest(ctx context.Context) (domain.Briefing, bool, error)
	ListBriefings(ctx context.Context, limit, offset int) ([]domain.Briefing, error)
}

const shutdownTimeout = 10 * time.Second

// Server serves briefings over HTTP.
type Server struct {
	svc    Service
	log    logger.Logger
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(svc Service, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		svc:    svc,
		log:    logger.Ensure(log),
		router: router,
	}
	router.Use(gin.Recovery(), s.accessLog())

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/briefing/latest", s.handleLatest)
		v1.GET("/briefings", s.handleList)
		v1.GET("/briefings/:date", s.handleByDate)
		v1.POST("/briefings", s.handleGenerate)
	}
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("api listening", "api_start", map[string]any{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.InfoObj("api stopped", "api_stop", map[string]any{"addr": addr})
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.DebugObj("api request", "api_request", map[string]any{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		})
	}
}
