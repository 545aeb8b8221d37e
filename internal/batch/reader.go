// Package batch streams fixed-size row batches out of stored tabular files.
//
// The reader is stateless: every call re-opens the file and counts rows up to
// the requested offset, so any stage can resume from a persisted offset after
// a crash or process restart.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one parsed data row. Index is the zero-based position among data
// rows (the header row is not counted).
type Row struct {
	Index  int64
	Fields map[string]string
}

// RowError records a malformed row that was skipped.
type RowError struct {
	Index int64
	Err   string
}

// Batch is the result of one ReadBatch call. Empty Rows means end-of-file.
type Batch struct {
	Rows        []Row
	SkippedRows []RowError
}

// Request selects what to read. Sheet is only used for spreadsheet files.
type Request struct {
	Path   string
	Sheet  int
	Offset int64
	Limit  int
}

var ErrNoHeader = errors.New("batch: file has no header row")

// Reader parses CSV and xlsx files.
type Reader struct{}

func NewReader() *Reader { return &Reader{} }

// ReadBatch returns up to Limit ordered rows starting at Offset.
func (r *Reader) ReadBatch(req Request) (Batch, error) {
	if req.Limit <= 0 {
		req.Limit = 100
	}
	switch strings.ToLower(filepath.Ext(req.Path)) {
	case ".xlsx", ".xls":
		return r.readSheet(req)
	default:
		return r.readCSV(req)
	}
}

func (r *Reader) readCSV(req Request) (Batch, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return Batch{}, fmt.Errorf("open %s: %w", req.Path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return Batch{}, ErrNoHeader
		}
		return Batch{}, fmt.Errorf("read header: %w", err)
	}

	var batch Batch
	var index int64
	for len(batch.Rows) < req.Limit {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if index >= req.Offset {
				batch.SkippedRows = append(batch.SkippedRows, RowError{Index: index, Err: err.Error()})
			}
			index++
			continue
		}
		if index < req.Offset {
			index++
			continue
		}
		batch.Rows = append(batch.Rows, Row{Index: index, Fields: zipRow(header, record)})
		index++
	}
	return batch, nil
}

func (r *Reader) readSheet(req Request) (Batch, error) {
	f, err := excelize.OpenFile(req.Path)
	if err != nil {
		return Batch{}, fmt.Errorf("open %s: %w", req.Path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if req.Sheet < 0 || req.Sheet >= len(sheets) {
		return Batch{}, fmt.Errorf("batch: sheet index %d out of range (%d sheets)", req.Sheet, len(sheets))
	}

	rows, err := f.GetRows(sheets[req.Sheet])
	if err != nil {
		return Batch{}, fmt.Errorf("read sheet %q: %w", sheets[req.Sheet], err)
	}
	if len(rows) == 0 {
		return Batch{}, ErrNoHeader
	}

	header := rows[0]
	var batch Batch
	for i, record := range rows[1:] {
		index := int64(i)
		if index < req.Offset {
			continue
		}
		if len(batch.Rows) >= req.Limit {
			break
		}
		batch.Rows = append(batch.Rows, Row{Index: index, Fields: zipRow(header, record)})
	}
	return batch, nil
}

func zipRow(header, record []string) map[string]string {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if i < len(record) {
			fields[name] = strings.TrimSpace(record[i])
		} else {
			fields[name] = ""
		}
	}
	return fields
}
