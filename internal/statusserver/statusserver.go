// Package statusserver implements the run status endpoint of
// SPEC_FULL.md §11/§11.1: a small read-only HTTP surface a long-
// running batch job exposes on a local port, trimmed down from the
// teacher's gin HTTP layer. Grounded on
// app/controllers/address_controller.go's HealthCheck handler and
// routes/api.go's health-route registration, generalised from a
// request-serving API to a read-only status surface for an offline
// batch engine.
package statusserver

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Counters accumulates the run statistics spec §11.1 asks for
// ("rows scanned, pairs scored, equivalence classes formed, oversized
// groups skipped"), safe for concurrent updates from every pipeline
// worker.
type Counters struct {
	rowsScanned            int64
	pairsScored            int64
	equivalenceClasses     int64
	oversizedGroupsSkipped int64
}

// AddRowsScanned adds n to the rows-scanned counter.
func (c *Counters) AddRowsScanned(n int64) { atomic.AddInt64(&c.rowsScanned, n) }

// AddPairsScored adds n to the pairs-scored counter.
func (c *Counters) AddPairsScored(n int64) { atomic.AddInt64(&c.pairsScored, n) }

// SetEquivalenceClasses records the final equivalence-class count.
func (c *Counters) SetEquivalenceClasses(n int64) { atomic.StoreInt64(&c.equivalenceClasses, n) }

// IncOversizedGroupsSkipped increments the oversized-group counter.
func (c *Counters) IncOversizedGroupsSkipped() { atomic.AddInt64(&c.oversizedGroupsSkipped, 1) }

// Stats is a point-in-time snapshot of Counters, serialised as the
// /stats response body.
type Stats struct {
	RowsScanned            int64 `json:"rows_scanned"`
	PairsScored            int64 `json:"pairs_scored"`
	EquivalenceClasses     int64 `json:"equivalence_classes"`
	OversizedGroupsSkipped int64 `json:"oversized_groups_skipped"`
}

// Snapshot reads every counter atomically.
func (c *Counters) Snapshot() Stats {
	return Stats{
		RowsScanned:            atomic.LoadInt64(&c.rowsScanned),
		PairsScored:            atomic.LoadInt64(&c.pairsScored),
		EquivalenceClasses:     atomic.LoadInt64(&c.equivalenceClasses),
		OversizedGroupsSkipped: atomic.LoadInt64(&c.oversizedGroupsSkipped),
	}
}

// Server is the read-only status/metrics HTTP server.
type Server struct {
	engine    *gin.Engine
	counters  *Counters
	startedAt time.Time
	httpSrv   *http.Server
}

// New builds a Server backed by counters. The caller owns counters
// and updates it from the pipeline as stages progress.
func New(counters *Counters, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, counters: counters, startedAt: time.Now()}
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/stats", s.handleStats)

	return s
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.counters.Snapshot())
}

// Handler returns the underlying http.Handler, useful for tests that
// want to drive requests without binding a real port.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe starts the server on addr and blocks until Shutdown
// is called or the server fails.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, mirroring the teacher's
// signal-triggered shutdown in cmd/api/main.go.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
