// Package server exposes the pipeline as an HTTP dashboard.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/KaramelBytes/macindex/internal/logging"
	"github.com/KaramelBytes/macindex/internal/pipeline"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Options configures the HTTP server.
type Options struct {
	Addr string
	// RatePerSec and Burst size the shared token bucket; a zero rate disables limiting.
	RatePerSec      float64
	Burst           int
	ShutdownTimeout time.Duration
}

// Server hosts the dashboard routes.
type Server struct {
	p       *pipeline.Pipeline
	opt     Options
	log     *logrus.Entry
	limiter *rate.Limiter
	started time.Time

	httpServer *http.Server
}

// New constructs a server for p.
func New(p *pipeline.Pipeline, opt Options, log logrus.FieldLogger) *Server {
	opt.Addr = normalizeAddress(opt.Addr)
	if opt.ShutdownTimeout <= 0 {
		opt.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{p: p, opt: opt, log: logging.WithComponent(log, "server"), started: time.Now()}
	if opt.RatePerSec > 0 {
		burst := opt.Burst
		if burst <= 0 {
			burst = int(opt.RatePerSec) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opt.RatePerSec), burst)
	}
	return s
}

// Address reports the network address the server listens on.
func (s *Server) Address() string { return s.opt.Addr }

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails. Cancellation shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	router, err := s.buildRouter()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:              s.opt.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.opt.Addr).Info("dashboard listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opt.ShutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() (http.Handler, error) {
	return s.buildRouter()
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(s.log))
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}
	tmpl, err := template.New("dashboard").ParseFS(templatesFS, "templates/index.tmpl")
	if err != nil {
		return nil, err
	}
	router.SetHTMLTemplate(tmpl)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime_sec": int(time.Since(s.started).Seconds())})
	})

	router.GET("/", s.index)

	api := router.Group("/api", rateLimit(s.limiter))
	api.GET("/countries", s.countries)
	api.GET("/countries/eligible", s.eligible)
	api.GET("/summary", s.summary)
	api.GET("/stats", s.stats)
	api.GET("/charts/average.png", s.averageChart)
	api.GET("/charts/country/:file", s.countryChart)
	api.GET("/charts/regression/:file", s.regressionChart)
	api.GET("/regression/:country/score", s.score)
	api.GET("/regression/:country/predict", s.predict)
	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8080"
	}
	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil && parsed.Host != "" {
			addr = parsed.Host
		}
	}
	if len(addr) > 1 && addr[0] == ':' && addr[1] >= '0' && addr[1] <= '9' {
		return "0.0.0.0" + addr
	}
	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}
	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}
	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}
	return addr
}
