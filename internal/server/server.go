package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bitcoin-tipjar-go/internal/models"
	"bitcoin-tipjar-go/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server is the forwarding endpoint between the browser UI and the Voltage
// API. It validates the payment payload, injects the server-held
// credentials, forwards the call upstream and passes the upstream status
// through verbatim (202 stays 202, never 200). Duplicate submissions of a
// payment id replay the original response from the idempotency store.
type Server struct {
	cfg     models.ServerConfig
	voltage models.VoltageConfig
	client  *http.Client
	replay  store.ReplayStore
	engine  *gin.Engine
}

func New(cfg *models.Config, replay store.ReplayStore) *Server {
	s := &Server{
		cfg:     cfg.Server,
		voltage: cfg.Voltage,
		client:  &http.Client{Timeout: cfg.Server.UpstreamTimeout},
		replay:  replay,
	}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.Default()
	r.HandleMethodNotAllowed = true

	if s.cfg.CorsEnabled {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
		r.Use(cors.New(corsCfg))
	}

	r.POST("/api/voltage-payments", s.handleCreatePayment)
	r.GET("/api/voltage-payments/:id", s.handleGetPayment)
	r.GET("/healthz", s.handleHealth)

	return r
}

// Run serves until the context is cancelled, then drains in-flight requests
// within the shutdown timeout. The idempotency purge loop runs alongside.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.engine,
	}

	go s.purgeLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	zap.L().Info("Forwarding server listening", zap.String("addr", s.cfg.ListenAddr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		zap.L().Info("Shutting down forwarding server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}

// purgeLoop periodically evicts expired idempotency entries.
func (s *Server) purgeLoop(ctx context.Context) {
	if s.cfg.PurgeInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			purged, err := s.replay.PurgeExpired(ctx)
			if err != nil {
				zap.L().Error("Failed to purge idempotency entries", zap.Error(err))
				continue
			}
			if purged > 0 {
				zap.L().Debug("Purged idempotency entries", zap.Int("purged", purged))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) paymentsUrl() string {
	return fmt.Sprintf("%s/organizations/%s/environments/%s/payments",
		strings.TrimRight(s.voltage.BaseUrl, "/"), s.voltage.OrgId, s.voltage.EnvId)
}
