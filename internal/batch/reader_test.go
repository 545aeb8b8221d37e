package batch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestReadBatchCSV(t *testing.T) {
	path := writeCSV(t, "title,city\nconcert,Berlin\nexhibition,Hamburg\nreading,Bremen\n")
	reader := NewReader()

	batch, err := reader.ReadBatch(Request{Path: path, Limit: 10})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(batch.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(batch.Rows))
	}
	if batch.Rows[0].Index != 0 || batch.Rows[2].Index != 2 {
		t.Fatalf("unexpected indices: %d, %d", batch.Rows[0].Index, batch.Rows[2].Index)
	}
	if batch.Rows[1].Fields["city"] != "Hamburg" {
		t.Fatalf("unexpected field: %q", batch.Rows[1].Fields["city"])
	}
}

func TestReadBatchOffsetLimit(t *testing.T) {
	path := writeCSV(t, "n\n0\n1\n2\n3\n4\n")
	reader := NewReader()

	batch, err := reader.ReadBatch(Request{Path: path, Offset: 2, Limit: 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(batch.Rows))
	}
	if batch.Rows[0].Index != 2 || batch.Rows[0].Fields["n"] != "2" {
		t.Fatalf("offset not honored: index %d value %q", batch.Rows[0].Index, batch.Rows[0].Fields["n"])
	}
}

func TestReadBatchPastEOF(t *testing.T) {
	path := writeCSV(t, "n\n0\n1\n")
	reader := NewReader()

	batch, err := reader.ReadBatch(Request{Path: path, Offset: 10, Limit: 5})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(batch.Rows) != 0 {
		t.Fatalf("expected empty batch past EOF, got %d rows", len(batch.Rows))
	}
}

func TestReadBatchShortRecordPadded(t *testing.T) {
	path := writeCSV(t, "a,b,c\n1,2\n")
	reader := NewReader()

	batch, err := reader.ReadBatch(Request{Path: path, Limit: 5})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(batch.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(batch.Rows))
	}
	if got, ok := batch.Rows[0].Fields["c"]; !ok || got != "" {
		t.Fatalf("missing trailing field should be empty, got %q (present=%v)", got, ok)
	}
}

func TestReadBatchNoHeader(t *testing.T) {
	path := writeCSV(t, "")
	reader := NewReader()

	_, err := reader.ReadBatch(Request{Path: path, Limit: 5})
	if !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
}

func TestReadBatchMissingFile(t *testing.T) {
	reader := NewReader()
	_, err := reader.ReadBatch(Request{Path: filepath.Join(t.TempDir(), "nope.csv"), Limit: 5})
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}
