// Package server exposes the chain over HTTP for operators: status,
// on-demand verification, the drift tripwire, entry creation, and
// Prometheus metrics.
package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/helixlog/chainguard/internal/chain"
	"github.com/helixlog/chainguard/internal/config"
	"go.uber.org/zap"
)

// Server wires the chain core into a gin router.
type Server struct {
	builder  *chain.Builder
	verifier *chain.Verifier
	logger   *zap.Logger
}

// New creates a Server over the given builder and verifier.
func New(builder *chain.Builder, verifier *chain.Verifier, logger *zap.Logger) *Server {
	return &Server{builder: builder, verifier: verifier, logger: logger}
}

// Router builds the gin engine with middleware and all routes mounted.
func (s *Server) Router(cfg config.ServerConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(PrometheusMiddleware())
	r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Content-Type"},
		}))
	}

	r.GET("/healthz", s.Healthz)
	r.GET("/metrics", MetricsHandler())

	v1 := r.Group("/v1/chain")
	{
		v1.GET("", s.Overview)
		v1.GET("/verify", s.Verify)
		v1.GET("/drift", s.Drift)
		v1.POST("/entries", s.CreateEntry)
	}
	return r
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(c *gin.Context) {
	length, err := s.verifier.ChainLength(c.Request.Context())
	if err != nil {
		s.logger.Error("chain length", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	SetChainLength(length)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "chain_length": length})
}

// Overview handles GET /v1/chain: length and tip hash without a full walk.
func (s *Server) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	length, err := s.verifier.ChainLength(ctx)
	if err != nil {
		s.logger.Error("chain length", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	SetChainLength(length)

	resp := gin.H{
		"entries":         length,
		"monitored_files": s.builder.MonitoredPaths(),
	}
	tip, ok, err := s.verifier.TipHash(ctx)
	if err != nil {
		s.logger.Error("ledger tip", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	if ok {
		resp["tip"] = tip
	}
	c.JSON(http.StatusOK, resp)
}

// Verify handles GET /v1/chain/verify: full chain walk. 200 when intact,
// 409 with the violation report when not.
func (s *Server) Verify(c *gin.Context) {
	valid, violations, err := s.verifier.VerifyChain(c.Request.Context())
	if err != nil {
		s.logger.Error("verify chain", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}
	RecordVerification(valid, len(violations))

	if !valid {
		c.JSON(http.StatusConflict, gin.H{
			"valid":      false,
			"violations": violations,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "violations": []chain.Violation{}})
}

// Drift handles GET /v1/chain/drift: the point-in-time tripwire.
func (s *Server) Drift(c *gin.Context) {
	matches, drifted, err := s.verifier.VerifyCurrentState(c.Request.Context())
	if err != nil {
		s.logger.Error("drift check", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}
	RecordDriftCheck(matches)
	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"drifted": drifted,
	})
}

// CreateEntry handles POST /v1/chain/entries: digest the monitored files
// and append one entry.
func (s *Server) CreateEntry(c *gin.Context) {
	entry, err := s.builder.CreateEntry(c.Request.Context())
	if err != nil {
		s.logger.Error("create entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append entry"})
		return
	}
	RecordEntryAppend()
	c.JSON(http.StatusCreated, entry)
}
