package schema

import (
	"testing"

	"github.com/jfilter/timetiles-sub015/internal/batch"
	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
)

func rowsFromMaps(maps ...map[string]string) []batch.Row {
	rows := make([]batch.Row, len(maps))
	for i, fields := range maps {
		rows[i] = batch.Row{Index: int64(i), Fields: fields}
	}
	return rows
}

func fieldByName(t *testing.T, fields []datasetdomain.FieldSchema, name string) datasetdomain.FieldSchema {
	t.Helper()
	for _, field := range fields {
		if field.Name == name {
			return field
		}
	}
	t.Fatalf("field %q not inferred", name)
	return datasetdomain.FieldSchema{}
}

func TestInferTypes(t *testing.T) {
	rows := rowsFromMaps(
		map[string]string{"title": "concert", "count": "12", "active": "true", "when": "2024-05-01", "lat": "52.5"},
		map[string]string{"title": "reading", "count": "3", "active": "false", "when": "2024-06-02", "lat": "48.1"},
	)

	fields, stats := Infer(rows, 100)
	if len(fields) != 5 {
		t.Fatalf("expected 5 fields, got %d", len(fields))
	}

	if got := fieldByName(t, fields, "title").Type; got != datasetdomain.FieldTypeString {
		t.Fatalf("title: expected string, got %s", got)
	}
	if got := fieldByName(t, fields, "count").Type; got != datasetdomain.FieldTypeNumber {
		t.Fatalf("count: expected number, got %s", got)
	}
	if got := fieldByName(t, fields, "active").Type; got != datasetdomain.FieldTypeBoolean {
		t.Fatalf("active: expected boolean, got %s", got)
	}
	if got := fieldByName(t, fields, "when").Type; got != datasetdomain.FieldTypeDate {
		t.Fatalf("when: expected date, got %s", got)
	}
	if got := fieldByName(t, fields, "lat").Type; got != datasetdomain.FieldTypeCoordinate {
		t.Fatalf("lat: expected coordinate, got %s", got)
	}

	for _, stat := range stats {
		if stat.FillRate != 1 {
			t.Fatalf("%s: expected fill rate 1, got %v", stat.Name, stat.FillRate)
		}
	}
}

func TestInferOptionalAndFillRate(t *testing.T) {
	rows := rowsFromMaps(
		map[string]string{"title": "a", "venue": "hall"},
		map[string]string{"title": "b", "venue": ""},
		map[string]string{"title": "c", "venue": ""},
		map[string]string{"title": "d", "venue": "club"},
	)

	fields, stats := Infer(rows, 100)
	venue := fieldByName(t, fields, "venue")
	if !venue.Optional {
		t.Fatalf("venue should be optional")
	}
	if title := fieldByName(t, fields, "title"); title.Optional {
		t.Fatalf("title should be required")
	}

	for _, stat := range stats {
		if stat.Name == "venue" {
			if stat.FillRate != 0.5 {
				t.Fatalf("venue fill rate: expected 0.5, got %v", stat.FillRate)
			}
			if stat.DistinctCount != 2 {
				t.Fatalf("venue distinct: expected 2, got %d", stat.DistinctCount)
			}
		}
	}
}

func TestInferMixedColumnFallsBackToString(t *testing.T) {
	rows := rowsFromMaps(
		map[string]string{"v": "12"},
		map[string]string{"v": "hello"},
		map[string]string{"v": "world"},
	)
	fields, _ := Infer(rows, 100)
	if got := fieldByName(t, fields, "v").Type; got != datasetdomain.FieldTypeString {
		t.Fatalf("mixed column: expected string, got %s", got)
	}
}

func TestInferSampleLimit(t *testing.T) {
	rows := rowsFromMaps(
		map[string]string{"v": "1"},
		map[string]string{"v": "2"},
		map[string]string{"v": "not-a-number"},
	)
	fields, _ := Infer(rows, 2)
	if got := fieldByName(t, fields, "v").Type; got != datasetdomain.FieldTypeNumber {
		t.Fatalf("expected number from first 2 samples, got %s", got)
	}
}

func TestInferEmpty(t *testing.T) {
	fields, stats := Infer(nil, 100)
	if fields != nil || stats != nil {
		t.Fatalf("expected nil results for no rows")
	}
}

func TestCompareUnchanged(t *testing.T) {
	previous := []datasetdomain.FieldSchema{
		{Name: "title", Type: datasetdomain.FieldTypeString},
		{Name: "count", Type: datasetdomain.FieldTypeNumber},
	}
	changed, _ := Compare(previous, previous)
	if changed {
		t.Fatalf("identical schemas must not report change")
	}
}

func TestCompareOnlyAdds(t *testing.T) {
	previous := []datasetdomain.FieldSchema{
		{Name: "title", Type: datasetdomain.FieldTypeString},
	}
	proposed := append(previous, datasetdomain.FieldSchema{Name: "venue", Type: datasetdomain.FieldTypeString})

	changed, onlyAdds := Compare(previous, proposed)
	if !changed || !onlyAdds {
		t.Fatalf("expected changed=true onlyAdds=true, got %v %v", changed, onlyAdds)
	}
}

func TestCompareRemovalIsNotAdditive(t *testing.T) {
	previous := []datasetdomain.FieldSchema{
		{Name: "title", Type: datasetdomain.FieldTypeString},
		{Name: "venue", Type: datasetdomain.FieldTypeString},
	}
	proposed := previous[:1]

	changed, onlyAdds := Compare(previous, proposed)
	if !changed || onlyAdds {
		t.Fatalf("expected changed=true onlyAdds=false, got %v %v", changed, onlyAdds)
	}
}

func TestCompareTypeChangeIsNotAdditive(t *testing.T) {
	previous := []datasetdomain.FieldSchema{
		{Name: "count", Type: datasetdomain.FieldTypeNumber},
	}
	proposed := []datasetdomain.FieldSchema{
		{Name: "count", Type: datasetdomain.FieldTypeString},
	}

	changed, onlyAdds := Compare(previous, proposed)
	if !changed || onlyAdds {
		t.Fatalf("expected changed=true onlyAdds=false, got %v %v", changed, onlyAdds)
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name        string
		mode        datasetdomain.SchemaMode
		hasPrevious bool
		changed     bool
		onlyAdds    bool
		want        Acceptance
	}{
		{"unchanged needs nothing", datasetdomain.SchemaModeStrict, true, false, true, AcceptanceNone},
		{"flexible auto-accepts", datasetdomain.SchemaModeFlexible, true, true, false, AcceptanceAuto},
		{"additive accepts additions", datasetdomain.SchemaModeAdditive, true, true, true, AcceptanceAuto},
		{"additive first version", datasetdomain.SchemaModeAdditive, false, true, true, AcceptanceAuto},
		{"additive rejects removals", datasetdomain.SchemaModeAdditive, true, true, false, AcceptanceApproval},
		{"strict needs approval", datasetdomain.SchemaModeStrict, true, true, true, AcceptanceApproval},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(tc.mode, tc.hasPrevious, tc.changed, tc.onlyAdds)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
