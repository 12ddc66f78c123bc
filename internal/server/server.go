package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/delivery"
	"github.com/lkarthik76/ddnd/internal/models"
	"github.com/lkarthik76/ddnd/internal/risk"
)

// Sources supplies the state the status API exposes
type Sources struct {
	Identity models.Identity
	Risk     func() models.RiskState
	Driving  func() models.DrivingState
	Record   func() (models.HealthPayload, bool)
	Delivery func() delivery.Stats
	Refresh  func()
	Location *time.Location
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Identity models.Identity     `json:"identity"`
	Risk     models.RiskState    `json:"risk"`
	View     risk.View           `json:"view"`
	Driving  models.DrivingState `json:"driving"`
	Delivery delivery.Stats      `json:"delivery"`
}

// Server is the read-only status API for the watch face
type Server struct {
	addr    string
	sources Sources
	logger  *zap.Logger
	engine  *gin.Engine
}

// New creates a status server listening on addr
func New(addr string, sources Sources, logger *zap.Logger) *Server {
	if sources.Location == nil {
		sources.Location = time.Local
	}
	s := &Server{
		addr:    addr,
		sources: sources,
		logger:  logger.Named("server"),
	}
	s.engine = s.setupRouter()
	return s
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", s.handleStatus)
	r.GET("/record", s.handleRecord)
	r.POST("/risk/refresh", s.handleRefresh)

	return r
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{Identity: s.sources.Identity}
	if s.sources.Risk != nil {
		resp.Risk = s.sources.Risk()
		resp.View = risk.Render(resp.Risk, s.sources.Location)
	}
	if s.sources.Driving != nil {
		resp.Driving = s.sources.Driving()
	}
	if s.sources.Delivery != nil {
		resp.Delivery = s.sources.Delivery()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecord(c *gin.Context) {
	if s.sources.Record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no record delivered yet"})
		return
	}
	payload, ok := s.sources.Record()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no record delivered yet"})
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleRefresh(c *gin.Context) {
	if s.sources.Refresh == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk poller not running"})
		return
	}
	s.sources.Refresh()
	c.JSON(http.StatusAccepted, gin.H{"status": "refreshing"})
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status API listening", zap.String("addr", s.addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Status API stopped")
	return nil
}

// requestLogger logs every request at debug level
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
