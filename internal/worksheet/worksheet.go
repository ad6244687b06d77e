// Package worksheet provides header-addressed access to a single
// spreadsheet tab.
package worksheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet is a worksheet whose first row names the columns.
type Sheet struct {
	header []string
	index  map[string]int
	rows   []Row
}

// Row is one data row. Cells beyond the header width are kept so that
// unnamed value columns stay addressable by position.
type Row struct {
	sheet *Sheet
	cells []string
}

// New builds a sheet from an in-memory header and data rows.
func New(header []string, rows [][]string) *Sheet {
	s := &Sheet{header: header, index: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := s.index[h]; !dup {
			s.index[h] = i
		}
	}
	for _, cells := range rows {
		s.rows = append(s.rows, Row{sheet: s, cells: cells})
	}
	return s
}

// Open reads the active tab of an xlsx workbook.
func Open(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()
	return fromFile(f)
}

// OpenFile reads the active tab of the xlsx workbook at path.
func OpenFile(path string) (*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()
	return fromFile(f)
}

func fromFile(f *excelize.File) (*Sheet, error) {
	name := f.GetSheetName(f.GetActiveSheetIndex())
	if name == "" {
		return nil, fmt.Errorf("workbook has no active sheet")
	}
	all, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", name, err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", name)
	}
	return New(all[0], all[1:]), nil
}

// Header returns the column names in order.
func (s *Sheet) Header() []string { return s.header }

// Column returns the position of a named column.
func (s *Sheet) Column(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func (s *Sheet) Rows() []Row { return s.rows }

func (s *Sheet) Len() int { return len(s.rows) }

// Get returns the trimmed cell under the named column, or "" when the
// column or cell is missing.
func (r Row) Get(column string) string {
	i, ok := r.sheet.Column(column)
	if !ok {
		return ""
	}
	return r.At(i)
}

// At returns the trimmed cell at position i, or "".
func (r Row) At(i int) string {
	if i < 0 || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}
