package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chlumarket/internal/config"
	"chlumarket/internal/domain"
	"chlumarket/internal/infra/ratelimit"
	"chlumarket/internal/usecase"

	"github.com/gin-gonic/gin"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("marketplace/http")

type Server struct {
	cfg config.Config
	mkt *usecase.Marketplace
	r   *gin.Engine

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Marketplace *usecase.Marketplace
	RateLimiter domain.RateLimiter
}

func NewServer(cfg config.Config, mkt *usecase.Marketplace) *Server {
	return NewServerWithDeps(cfg, ServerDeps{Marketplace: mkt})
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger())

	s := &Server{cfg: cfg, mkt: deps.Marketplace, r: r}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	s.rateLimiter = override
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
			MaxKeys: s.cfg.RateLimitMaxKeys,
		})
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = time.Minute
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = s.cfg.RateLimitWindow()
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Chlu Marketplace")
	})
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"lifecycle": string(s.mkt.Lifecycle.State()),
			"backend":   s.cfg.DirectoryBackend,
		})
	})
	s.r.GET("/.well-known", s.handleWellKnown)

	s.r.GET("/vendors", s.handleListVendors)
	s.r.POST("/vendors", s.rateLimited(routeVendorsRegister), s.handleRegisterVendor)
	s.r.POST("/search", s.handleSearch)

	vendor := s.r.Group("/vendors/:id")
	{
		vendor.GET("", s.handleGetVendor)
		vendor.POST("/profile", s.rateLimited(routeVendorsProfile), s.handleSetProfile)
		vendor.PATCH("/profile", s.rateLimited(routeVendorsProfile), s.handlePatchProfile)
		vendor.POST("/signature", s.rateLimited(routeVendorsSignature), s.handleVendorSignature)
		vendor.POST("/popr", s.rateLimited(routeVendorsPoPR), s.handleCreatePoPR)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infow("http server listening", "addr", s.cfg.HTTPAddr)
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

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
