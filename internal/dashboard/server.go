package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"optionsflow/config"
	"optionsflow/internal/metrics"
	"optionsflow/logger"
	"optionsflow/models"
)

// Grouping names accepted by /api/summary/:grouping.
const (
	GroupingMoneyness = "by_moneyness"
	GroupingDTE       = "by_dte"
)

// Server exposes the latest report, recent metrics, logs and host
// resources as a JSON API.
type Server struct {
	cfg           config.DashboardConfig
	log           *logger.Log
	metrics       *metricHistory
	logs          *logHistory
	metricHandler metrics.MetricHandlerID
	reports       reportStore
	sampler       *resourceSampler
	httpServer    *http.Server
}

// NewServer registers the metric handler and log hook right away so a run
// started before Run is captured.
func NewServer(cfg config.DashboardConfig, diskPath string, log *logger.Log) *Server {
	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		metrics: newMetricHistory(cfg.MetricsHistory),
		logs:    newLogHistory(cfg.LogHistory),
		sampler: newResourceSampler(cfg.MetricsHistory, cfg.RefreshInterval, diskPath, log),
	}
	s.metricHandler = metrics.RegisterMetricHandler(s.metrics.handle)
	log.AddHook(s.logs)

	log.WithComponent("dashboard").WithFields(logger.Fields{
		"address":          cfg.Address,
		"refresh_interval": cfg.RefreshInterval.String(),
	}).Info("dashboard initialized")
	return s
}

// SetReport replaces the report served by the API.
func (s *Server) SetReport(report *models.Report) {
	s.reports.set(report)
}

// Address reports the address the server listens on.
func (s *Server) Address() string {
	return s.cfg.Address
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	s.sampler.start(ctx)
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops sampling and detaches from metrics and logging. It may be
// called more than once.
func (s *Server) Close() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	s.logs.close()
	s.sampler.stop()
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if r := s.reports.get(); r != nil {
			body["run_id"] = r.RunID
		}
		c.JSON(http.StatusOK, body)
	})

	api := router.Group("/api")
	api.GET("/report", s.withReport(func(c *gin.Context, r *models.Report) {
		c.JSON(http.StatusOK, r)
	}))
	api.GET("/summary/:grouping", s.withReport(s.handleSummary))
	api.GET("/supplementary", s.withReport(func(c *gin.Context, r *models.Report) {
		c.JSON(http.StatusOK, r.Supplementary)
	}))
	api.GET("/rejections", s.withReport(func(c *gin.Context, r *models.Report) {
		c.JSON(http.StatusOK, gin.H{"rows_rejected": r.RowsRejected, "rejections": r.Rejections, "records_dropped": r.RecordsDropped})
	}))
	api.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"metrics": s.metrics.snapshot()})
	})
	api.GET("/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logs.snapshot()})
	})
	api.GET("/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.sampler.samples.snapshot()})
	})
	return router
}

func (s *Server) withReport(h func(*gin.Context, *models.Report)) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := s.reports.get()
		if r == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no report loaded"})
			return
		}
		h(c, r)
	}
}

// handleSummary lists the groups of one grouping, optionally narrowed by
// the group and metric query parameters.
func (s *Server) handleSummary(c *gin.Context, r *models.Report) {
	var groups []models.GroupSummary
	switch c.Param("grouping") {
	case GroupingMoneyness:
		groups = r.Summary.ByMoneyness
	case GroupingDTE:
		groups = r.Summary.ByBucket
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "grouping must be by_moneyness or by_dte"})
		return
	}

	group := c.Query("group")
	metric := models.Metric(c.Query("metric"))
	out := make([]models.GroupSummary, 0, len(groups))
	for _, g := range groups {
		if group != "" && g.Group != group {
			continue
		}
		if metric != "" {
			stats, ok := g.Metrics[metric]
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown metric " + string(metric)})
				return
			}
			g.Metrics = map[models.Metric]models.Stats{metric: stats}
		}
		out = append(out, g)
	}
	c.JSON(http.StatusOK, gin.H{"grouping": c.Param("grouping"), "groups": out})
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8080"
	}
	if strings.Contains(addr, "://") {
		if u, err := url.Parse(addr); err == nil && u.Host != "" {
			addr = u.Host
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		if ip := net.ParseIP(addr); ip != nil || !strings.Contains(addr, ":") {
			return net.JoinHostPort(addr, "8080")
		}
		return addr
	}
	if host == "" || host == "*" {
		host = "0.0.0.0"
	}
	if port == "" {
		port = "8080"
	}
	return net.JoinHostPort(host, port)
}
