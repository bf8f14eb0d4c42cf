package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id            TEXT PRIMARY KEY,
	started_at        TEXT NOT NULL,
	finished_at       TEXT NOT NULL,
	first_date        TEXT,
	last_date         TEXT,
	incidents_read    INTEGER NOT NULL,
	incidents_dropped INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS document_outcomes (
	run_id        TEXT NOT NULL REFERENCES runs(run_id),
	report_id     TEXT NOT NULL,
	report_date   TEXT,
	version       TEXT NOT NULL,
	status        TEXT NOT NULL,
	detail        TEXT NOT NULL,
	rows_kept     INTEGER NOT NULL,
	rows_dropped  INTEGER NOT NULL,
	unmapped_rows INTEGER NOT NULL,
	PRIMARY KEY (run_id, report_id)
);
CREATE INDEX IF NOT EXISTS document_outcomes_report ON document_outcomes(report_id);
`

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger records every run and the outcome of each listed document in a
// SQLite database, so omissions stay auditable across runs.
// It implements pipeline.Loader.
type Ledger struct {
	db *sql.DB
}

// NewLedger opens (or creates) a SQLite database at dbPath and applies the schema.
func NewLedger(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Load inserts the run and its document outcomes in one transaction.
func (l *Ledger) Load(ctx context.Context, rec domain.Reconciliation) error {
	s := rec.Summary
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var first, last sql.NullString
	if dates := rec.Forecast.Dates(); len(dates) > 0 {
		first = sql.NullString{String: domain.FormatDate(dates[0]), Valid: true}
		last = sql.NullString{String: domain.FormatDate(dates[len(dates)-1]), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, finished_at, first_date, last_date, incidents_read, incidents_dropped)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.StartedAt.UTC().Format(timeLayout), s.FinishedAt.UTC().Format(timeLayout),
		first, last, s.IncidentsRead, s.IncidentsDropped,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO document_outcomes
		 (run_id, report_id, report_date, version, status, detail, rows_kept, rows_dropped, unmapped_rows)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range s.Outcomes {
		var reportDate sql.NullString
		if !o.ReportDate.IsZero() {
			reportDate = sql.NullString{String: domain.FormatDate(o.ReportDate), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, s.RunID, o.ID, reportDate, o.Version, string(o.Status), o.Detail,
			o.RowsKept, o.RowsDropped, o.UnmappedRows); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

// LatestRun returns the most recently started run, with its outcomes.
// ok is false when the ledger is empty.
func (l *Ledger) LatestRun(ctx context.Context) (summary domain.RunSummary, ok bool, err error) {
	var started, finished string
	row := l.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, finished_at, incidents_read, incidents_dropped
		 FROM runs ORDER BY started_at DESC LIMIT 1`)
	if err := row.Scan(&summary.RunID, &started, &finished, &summary.IncidentsRead, &summary.IncidentsDropped); err != nil {
		if err == sql.ErrNoRows {
			return domain.RunSummary{}, false, nil
		}
		return domain.RunSummary{}, false, err
	}
	if summary.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return domain.RunSummary{}, false, err
	}
	if summary.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return domain.RunSummary{}, false, err
	}
	if summary.Outcomes, err = l.ListOutcomes(ctx, summary.RunID); err != nil {
		return domain.RunSummary{}, false, err
	}
	return summary, true, nil
}

// ListOutcomes returns the document outcomes of one run ordered by report id.
func (l *Ledger) ListOutcomes(ctx context.Context, runID string) ([]domain.DocumentOutcome, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT report_id, report_date, version, status, detail, rows_kept, rows_dropped, unmapped_rows
		 FROM document_outcomes WHERE run_id = ? ORDER BY report_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DocumentOutcome
	for rows.Next() {
		var (
			o          domain.DocumentOutcome
			reportDate sql.NullString
			status     string
		)
		if err := rows.Scan(&o.ID, &reportDate, &o.Version, &status, &o.Detail, &o.RowsKept, &o.RowsDropped, &o.UnmappedRows); err != nil {
			return nil, err
		}
		o.Status = domain.OutcomeStatus(status)
		if reportDate.Valid {
			if o.ReportDate, err = time.Parse("2006-01-02", reportDate.String); err != nil {
				return nil, err
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OmissionCounts returns how many runs omitted each report id, for reports
// omitted at least once.
func (l *Ledger) OmissionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT report_id, COUNT(*) FROM document_outcomes WHERE status = ? GROUP BY report_id`,
		string(domain.OutcomeOmitted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
