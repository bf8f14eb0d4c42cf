package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
)

// RunReporter exposes the pipeline's readiness and its last completed run.
type RunReporter interface {
	sharedobs.ReadinessChecker
	LastRun() (domain.RunSummary, bool)
}

// RunHistory is the persisted run ledger. It serves /runs/latest after a
// restart, before the process has completed a run of its own.
type RunHistory interface {
	LatestRun(ctx context.Context) (domain.RunSummary, bool, error)
	OmissionCounts(ctx context.Context) (map[string]int, error)
}

// Server exposes health, readiness, metrics, and run summary HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /runs/latest and /reports/omissions routes. history may be nil when no
// ledger is configured.
func NewServer(addr string, runs RunReporter, history RunHistory, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(runs))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /runs/latest", handleLatestRun(runs, history, logger))
	mux.HandleFunc("GET /reports/omissions", handleOmissions(history, logger))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type outcomeJSON struct {
	ID           string `json:"id"`
	ReportDate   string `json:"report_date,omitempty"`
	Version      string `json:"version,omitempty"`
	Status       string `json:"status"`
	Detail       string `json:"detail,omitempty"`
	RowsKept     int    `json:"rows_kept"`
	RowsDropped  int    `json:"rows_dropped"`
	UnmappedRows int    `json:"unmapped_rows"`
}

type runJSON struct {
	RunID            string         `json:"run_id"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	Counts           map[string]int `json:"counts"`
	IncidentsRead    int            `json:"incidents_read"`
	IncidentsDropped int            `json:"incidents_dropped"`
	Outcomes         []outcomeJSON  `json:"outcomes"`
}

func handleLatestRun(runs RunReporter, history RunHistory, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, ok := runs.LastRun()
		if !ok && history != nil {
			var err error
			if summary, ok, err = history.LatestRun(r.Context()); err != nil {
				logger.Error("read latest run from ledger", "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"})
				return
			}
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no completed run"})
			return
		}
		writeJSON(w, http.StatusOK, toRunJSON(summary))
	}
}

// handleOmissions reports how many runs omitted each report, across the
// whole ledger.
func handleOmissions(history RunHistory, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run ledger not configured"})
			return
		}
		counts, err := history.OmissionCounts(r.Context())
		if err != nil {
			logger.Error("read omission counts", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func toRunJSON(s domain.RunSummary) runJSON {
	out := runJSON{
		RunID:      s.RunID,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Counts: map[string]int{
			string(domain.OutcomeReconciled): s.Count(domain.OutcomeReconciled),
			string(domain.OutcomeSuperseded): s.Count(domain.OutcomeSuperseded),
			string(domain.OutcomeOmitted):    s.Count(domain.OutcomeOmitted),
		},
		IncidentsRead:    s.IncidentsRead,
		IncidentsDropped: s.IncidentsDropped,
		Outcomes:         make([]outcomeJSON, 0, len(s.Outcomes)),
	}
	for _, o := range s.Outcomes {
		oj := outcomeJSON{
			ID:           o.ID,
			Version:      o.Version,
			Status:       string(o.Status),
			Detail:       o.Detail,
			RowsKept:     o.RowsKept,
			RowsDropped:  o.RowsDropped,
			UnmappedRows: o.UnmappedRows,
		}
		if !o.ReportDate.IsZero() {
			oj.ReportDate = domain.FormatDate(o.ReportDate)
		}
		out.Outcomes = append(out.Outcomes, oj)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
