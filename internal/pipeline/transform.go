package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
)

// ReportTransformer implements Transformer using the domain extract and pivot
// functions.
type ReportTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates a ReportTransformer.
func NewTransformer(logger *slog.Logger) *ReportTransformer {
	return &ReportTransformer{logger: logger}
}

func (t *ReportTransformer) Transform(_ context.Context, doc domain.RawReportDocument) (domain.ReportWindow, error) {
	block, err := domain.ExtractBlock(doc.Content)
	if err != nil {
		return domain.ReportWindow{}, &domain.SourceParseError{ID: doc.Ref.ID, Reason: "extract block", Err: err}
	}
	if len(block.Rows) == 0 {
		return domain.ReportWindow{}, &domain.SourceParseError{ID: doc.Ref.ID, Reason: "extract block", Err: domain.ErrEmptyBlock}
	}

	// The identifier is authoritative for dating; a disagreeing header is only reported.
	if len(block.HeaderDates) > 0 && !block.HeaderDates[0].Equal(doc.Ref.ReportDate) {
		t.logger.Warn("header date disagrees with report date",
			"report_id", doc.Ref.ID,
			"report_date", domain.FormatDate(doc.Ref.ReportDate),
			"header_date", domain.FormatDate(block.HeaderDates[0]),
		)
	}

	w := domain.PivotBlock(doc.Ref, block)
	if len(w.Metrics) == 0 {
		return domain.ReportWindow{}, &domain.SourceParseError{ID: doc.Ref.ID, Reason: "pivot block", Err: domain.ErrEmptyBlock}
	}
	for _, d := range w.Dropped {
		t.logger.Debug("row dropped", "report_id", doc.Ref.ID, "line", d.Line, "metric", d.Metric, "reason", d.Reason)
	}
	return w, nil
}
