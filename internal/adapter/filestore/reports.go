// Package filestore reads forecast reports and incident exports from local
// directories laid out the way the archive scraper leaves them.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
)

// ReportStore lists and reads report documents under a root directory.
// Identifiers are slash-separated paths relative to the root.
// It implements pipeline.ReportSource.
type ReportStore struct {
	root string
}

// NewReportStore creates a ReportStore rooted at dir.
func NewReportStore(dir string) *ReportStore {
	return &ReportStore{root: dir}
}

// ListReports walks the root and returns every regular file, sorted. Hidden
// files are skipped. A missing root lists nothing.
func (s *ReportStore) ListReports(ctx context.Context) ([]string, error) {
	var ids []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if strings.HasPrefix(d.Name(), ".") && path != s.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list reports in %s: %w", s.root, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadReport returns the content stored under ref.ID.
func (s *ReportStore) ReadReport(_ context.Context, ref domain.ReportRef) (domain.RawReportDocument, error) {
	if !fs.ValidPath(ref.ID) {
		return domain.RawReportDocument{}, fmt.Errorf("invalid report path %q", ref.ID)
	}
	content, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(ref.ID)))
	if err != nil {
		return domain.RawReportDocument{}, fmt.Errorf("read report %s: %w", ref.ID, err)
	}
	return domain.RawReportDocument{Ref: ref, Content: content}, nil
}
