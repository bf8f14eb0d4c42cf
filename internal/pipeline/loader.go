package pipeline

import (
	"context"
	"errors"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
)

// MultiLoader fans a reconciliation out to several loaders in order. Every
// loader runs even when an earlier one fails; the errors are joined.
type MultiLoader []Loader

func (m MultiLoader) Load(ctx context.Context, rec domain.Reconciliation) error {
	var errs []error
	for _, l := range m {
		if err := l.Load(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
