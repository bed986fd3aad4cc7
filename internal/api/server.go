package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crashstack/crash-radar/internal/config"
	"github.com/crashstack/crash-radar/internal/models"
	"github.com/crashstack/crash-radar/internal/services"
)

// ReportRunner is the narrow service contract required by the HTTP API.
type ReportRunner interface {
	Run(ctx context.Context, req models.ReportRequest) (models.Report, error)
}

var _ ReportRunner = (*services.ReportService)(nil)

// Server provides the HTTP surface for triggering and reading reports.
type Server struct {
	cfg        config.ServerConfig
	reports    ReportRunner
	loc        *time.Location
	defaultEnv string

	server    *http.Server
	listener  net.Listener
	startTime time.Time
}

// NewServer constructs an HTTP server bound to the configured address.
func NewServer(cfg config.ServerConfig, reports ReportRunner, loc *time.Location, defaultEnv string) (*Server, error) {
	if loc == nil {
		loc = time.UTC
	}
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:        cfg,
		reports:    reports,
		loc:        loc,
		defaultEnv: defaultEnv,
		listener:   lis,
	}, nil
}

// Router builds the gin handler. Exposed separately so tests can drive
// it through httptest without a listener.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.POST("/api/v1/reports/run", s.handleRunReport)
	return r
}

// Start serves incoming requests until Shutdown is invoked.
func (s *Server) Start() error {
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
	}
	s.startTime = time.Now()
	return s.server.Serve(s.listener)
}

// Shutdown drains in-flight requests within the graceful timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if s.cfg.GracefulTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GracefulTimeout)
		defer cancel()
	}
	return s.server.Shutdown(ctx)
}

// Address exposes the bound listener address (useful for tests).
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
