package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
	"github.com/couchcryptid/capacity-forecast-etl/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ReportSource lists report identifiers and reads report documents.
type ReportSource interface {
	ListReports(ctx context.Context) ([]string, error)
	ReadReport(ctx context.Context, ref domain.ReportRef) (domain.RawReportDocument, error)
}

// IncidentSource reads raw system-status incidents.
type IncidentSource interface {
	ReadIncidents(ctx context.Context) ([]domain.IncidentRow, error)
}

// Transformer converts one report document into its pivoted window.
type Transformer interface {
	Transform(ctx context.Context, doc domain.RawReportDocument) (domain.ReportWindow, error)
}

// Loader persists the result of a run.
type Loader interface {
	Load(ctx context.Context, rec domain.Reconciliation) error
}

// Options tunes a pipeline.
type Options struct {
	Workers     int // concurrent document parses; values below 1 mean 1
	RunInterval time.Duration
	Incidents   domain.IncidentOptions
	Clean       domain.CleanOptions
}

// Pipeline orchestrates the list-resolve-parse-merge-load run.
type Pipeline struct {
	reports     ReportSource
	incidents   IncidentSource
	transformer Transformer
	loader      Loader
	logger      *slog.Logger
	metrics     *observability.Metrics
	opts        Options

	ready   atomic.Bool
	lastRun atomic.Pointer[domain.RunSummary]
}

// New creates a Pipeline with the given stages and observability. A nil
// incident source yields an all-false status table.
func New(reports ReportSource, incidents IncidentSource, t Transformer, l Loader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Pipeline{
		reports:     reports,
		incidents:   incidents,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no reconciliation run has completed yet")
	}
	return nil
}

// LastRun returns the summary of the most recent successful run.
func (p *Pipeline) LastRun() (domain.RunSummary, bool) {
	s := p.lastRun.Load()
	if s == nil {
		return domain.RunSummary{}, false
	}
	return *s, true
}

// Run reconciles once, or on every RunInterval until the context is cancelled.
// Failed runs are retried with capped exponential backoff. In run-once mode the
// error of the single run is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "workers", p.opts.Workers, "interval", p.opts.RunInterval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		_, err := p.RunOnce(ctx)
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
		if p.opts.RunInterval <= 0 {
			return err
		}

		wait := p.opts.RunInterval
		if err != nil {
			wait = min(backoff, p.opts.RunInterval)
			backoff = nextBackoff(backoff, maxBackoff)
		} else {
			backoff = initialBackoff
		}
		if !sleepWithContext(ctx, wait) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunOnce performs one full reconciliation. Per-document failures are
// recorded in the run summary; only an empty input set or a failed load
// fails the run.
func (p *Pipeline) RunOnce(ctx context.Context) (domain.Reconciliation, error) {
	summary := domain.RunSummary{RunID: uuid.NewString(), StartedAt: clock.Now().UTC()}
	logger := p.logger.With("run_id", summary.RunID)

	rec, err := p.reconcile(ctx, logger, &summary)
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		logger.Error("run failed", "error", err)
		return domain.Reconciliation{}, err
	}

	if err := p.loader.Load(ctx, rec); err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		logger.Error("load failed", "error", err)
		return domain.Reconciliation{}, fmt.Errorf("load reconciliation: %w", err)
	}

	p.metrics.Runs.WithLabelValues("success").Inc()
	p.metrics.RunDuration.Observe(rec.Summary.FinishedAt.Sub(rec.Summary.StartedAt).Seconds())
	p.metrics.LastSuccess.Set(float64(rec.Summary.FinishedAt.Unix()))
	p.metrics.ReconciledDates.Set(float64(rec.Forecast.Len()))
	p.lastRun.Store(&rec.Summary)
	p.ready.Store(true)

	logger.Info("run complete",
		"dates", rec.Forecast.Len(),
		"columns", len(rec.Joined.Columns()),
		"reconciled", rec.Summary.Count(domain.OutcomeReconciled),
		"superseded", rec.Summary.Count(domain.OutcomeSuperseded),
		"omitted", rec.Summary.Count(domain.OutcomeOmitted),
	)
	return rec, nil
}

func (p *Pipeline) reconcile(ctx context.Context, logger *slog.Logger, summary *domain.RunSummary) (domain.Reconciliation, error) {
	ids, err := p.reports.ListReports(ctx)
	if err != nil {
		return domain.Reconciliation{}, fmt.Errorf("list reports: %w", err)
	}
	if len(ids) == 0 {
		return domain.Reconciliation{}, fmt.Errorf("%w: listing is empty", domain.ErrNoInput)
	}

	res := domain.ResolveReports(ids)
	for _, err := range res.Failures {
		p.recordOutcome(logger, summary, omitted(err))
	}
	for _, ref := range res.Superseded {
		p.recordOutcome(logger, summary, domain.DocumentOutcome{
			ID: ref.ID, ReportDate: ref.ReportDate, Version: ref.Version, Status: domain.OutcomeSuperseded,
		})
	}

	windows, err := p.parseAll(ctx, logger, summary, res.Selected)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	if len(windows) == 0 {
		return domain.Reconciliation{}, fmt.Errorf("%w: %d listed, none reconcilable", domain.ErrNoInput, len(ids))
	}

	forecast := domain.MergeWindows(windows)
	status := p.readStatuses(ctx, logger, summary)
	joined := domain.CleanDataset(domain.JoinStatuses(forecast, status), p.opts.Clean)

	summary.FinishedAt = clock.Now().UTC()
	return domain.Reconciliation{
		Forecast: forecast,
		Status:   status,
		Joined:   joined,
		Summary:  *summary,
	}, nil
}

type parseResult struct {
	window domain.ReportWindow
	err    error
}

// parseAll reads and transforms the selected documents concurrently. Results
// keep the order of refs so the merge sees ascending report dates.
func (p *Pipeline) parseAll(ctx context.Context, logger *slog.Logger, summary *domain.RunSummary, refs []domain.ReportRef) ([]domain.ReportWindow, error) {
	results := make([]parseResult, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, ref := range refs {
		g.Go(func() error {
			doc, err := p.reports.ReadReport(gctx, ref)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				results[i].err = &domain.SourceParseError{ID: ref.ID, Reason: "read document", Err: err}
				return nil
			}
			w, err := p.transformer.Transform(gctx, doc)
			results[i] = parseResult{window: w, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parse reports: %w", err)
	}

	windows := make([]domain.ReportWindow, 0, len(refs))
	for i, r := range results {
		ref := refs[i]
		if r.err != nil {
			out := omitted(r.err)
			out.ID, out.ReportDate, out.Version = ref.ID, ref.ReportDate, ref.Version
			p.recordOutcome(logger, summary, out)
			continue
		}

		out := domain.DocumentOutcome{
			ID:           ref.ID,
			ReportDate:   ref.ReportDate,
			Version:      ref.Version,
			Status:       domain.OutcomeReconciled,
			RowsKept:     len(r.window.Metrics),
			RowsDropped:  len(r.window.Dropped),
			UnmappedRows: len(r.window.Unmapped),
		}
		if len(r.window.Unmapped) > 0 {
			out.Detail = "unmapped labels: " + strings.Join(r.window.Unmapped, "; ")
		}
		p.recordOutcome(logger, summary, out)
		windows = append(windows, r.window)
	}
	return windows, nil
}

// readStatuses builds the status table. An unreadable incident source leaves
// every status false rather than failing the run.
func (p *Pipeline) readStatuses(ctx context.Context, logger *slog.Logger, summary *domain.RunSummary) domain.StatusTable {
	if p.incidents == nil {
		return domain.StatusTable{}
	}
	rows, err := p.incidents.ReadIncidents(ctx)
	if err != nil {
		logger.Warn("read incidents failed, statuses default to false", "error", err)
		return domain.StatusTable{}
	}

	table, rep := domain.TransformIncidents(rows, p.opts.Incidents)
	summary.IncidentsRead = len(rows)
	summary.IncidentsDropped = len(rep.Dropped)
	p.metrics.IncidentsDropped.Add(float64(len(rep.Dropped)))
	for _, d := range rep.Dropped {
		logger.Warn("incident dropped", "row", d.Line, "reason", d.Reason)
	}
	if len(rep.Unmapped) > 0 {
		logger.Warn("unmapped status labels", "labels", rep.Unmapped)
	}
	return table
}

func (p *Pipeline) recordOutcome(logger *slog.Logger, summary *domain.RunSummary, out domain.DocumentOutcome) {
	summary.Outcomes = append(summary.Outcomes, out)
	p.metrics.Documents.WithLabelValues(string(out.Status)).Inc()
	p.metrics.RowsDropped.Add(float64(out.RowsDropped))
	p.metrics.UnmappedLabels.Add(float64(out.UnmappedRows))

	switch {
	case out.Status == domain.OutcomeOmitted:
		logger.Warn("document omitted", "report_id", out.ID, "reason", out.Detail)
	case out.UnmappedRows > 0:
		logger.Warn("schema drift", "report_id", out.ID, "detail", out.Detail)
	case out.Status == domain.OutcomeSuperseded:
		logger.Debug("document superseded", "report_id", out.ID, "version", out.Version)
	}
}

// omitted turns a document-level error into an omitted outcome.
func omitted(err error) domain.DocumentOutcome {
	out := domain.DocumentOutcome{Status: domain.OutcomeOmitted, Detail: err.Error()}
	var spe *domain.SourceParseError
	if errors.As(err, &spe) {
		out.ID = spe.ID
	}
	return out
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
