// Package memory keeps exported reports in memory. It backs the export
// endpoint when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finos/internal/core"
	"finos/internal/sheets"
)

var _ sheets.DashboardExporter = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	conv    *core.Converter
	reports []sheets.Report
	grids   [][][]interface{}
}

func New(conv *core.Converter) *Store {
	return &Store{conv: conv}
}

// Export records the report and returns a synthetic reference.
func (s *Store) Export(_ context.Context, r sheets.Report) (string, error) {
	grid := sheets.Rows(r, s.conv)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	s.grids = append(s.grids, grid)
	return fmt.Sprintf("mem:%d", len(s.reports)), nil
}

// Reports returns the exported reports in order.
func (s *Store) Reports() []sheets.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Report(nil), s.reports...)
}

// Last returns the grid of the latest export.
func (s *Store) Last() ([][]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.grids) == 0 {
		return nil, false
	}
	return s.grids[len(s.grids)-1], true
}
