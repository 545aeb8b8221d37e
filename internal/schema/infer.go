// Package schema infers structural schemas from sampled rows and manages
// dataset schema versions.
package schema

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jfilter/timetiles-sub015/internal/batch"
	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02.01.2006",
	"01/02/2006",
}

// Infer samples up to sampleLimit rows and derives per-field types and
// statistics. Field order is stable (sorted by name) so schema comparisons
// are order-independent.
func Infer(rows []batch.Row, sampleLimit int) ([]datasetdomain.FieldSchema, []datasetdomain.FieldStats) {
	if sampleLimit > 0 && len(rows) > sampleLimit {
		rows = rows[:sampleLimit]
	}
	if len(rows) == 0 {
		return nil, nil
	}

	type fieldAcc struct {
		filled   int
		distinct map[string]struct{}
		types    map[datasetdomain.FieldType]int
	}
	accs := make(map[string]*fieldAcc)

	for _, row := range rows {
		for name, value := range row.Fields {
			acc := accs[name]
			if acc == nil {
				acc = &fieldAcc{
					distinct: make(map[string]struct{}),
					types:    make(map[datasetdomain.FieldType]int),
				}
				accs[name] = acc
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			acc.filled++
			acc.distinct[value] = struct{}{}
			acc.types[classifyValue(name, value)]++
		}
	}

	names := make([]string, 0, len(accs))
	for name := range accs {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]datasetdomain.FieldSchema, 0, len(names))
	stats := make([]datasetdomain.FieldStats, 0, len(names))
	for _, name := range names {
		acc := accs[name]
		fields = append(fields, datasetdomain.FieldSchema{
			Name:     name,
			Type:     dominantType(acc.types),
			Optional: acc.filled < len(rows),
		})
		stats = append(stats, datasetdomain.FieldStats{
			Name:          name,
			FillRate:      float64(acc.filled) / float64(len(rows)),
			DistinctCount: int64(len(acc.distinct)),
		})
	}
	return fields, stats
}

func classifyValue(fieldName, value string) datasetdomain.FieldType {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" || lower == "yes" || lower == "no" {
		return datasetdomain.FieldTypeBoolean
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		if looksLikeCoordinateField(fieldName) && f >= -180 && f <= 180 {
			return datasetdomain.FieldTypeCoordinate
		}
		return datasetdomain.FieldTypeNumber
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return datasetdomain.FieldTypeDate
		}
	}
	return datasetdomain.FieldTypeString
}

func looksLikeCoordinateField(name string) bool {
	lower := strings.ToLower(name)
	for _, candidate := range []string{"lat", "latitude", "lon", "lng", "longitude"} {
		if lower == candidate {
			return true
		}
	}
	return false
}

// dominantType picks the most frequent type; strings win ties because a
// mixed column must fall back to the loosest type.
func dominantType(counts map[datasetdomain.FieldType]int) datasetdomain.FieldType {
	best := datasetdomain.FieldTypeString
	bestCount := counts[datasetdomain.FieldTypeString]
	for _, candidate := range []datasetdomain.FieldType{
		datasetdomain.FieldTypeCoordinate,
		datasetdomain.FieldTypeNumber,
		datasetdomain.FieldTypeBoolean,
		datasetdomain.FieldTypeDate,
	} {
		if counts[candidate] > bestCount {
			best = candidate
			bestCount = counts[candidate]
		}
	}
	return best
}

// Compare reports whether proposed differs from previous, and whether the
// difference only adds fields (same name+type for everything that existed).
func Compare(previous, proposed []datasetdomain.FieldSchema) (changed, onlyAdds bool) {
	prevByName := make(map[string]datasetdomain.FieldSchema, len(previous))
	for _, field := range previous {
		prevByName[field.Name] = field
	}
	propByName := make(map[string]datasetdomain.FieldSchema, len(proposed))
	for _, field := range proposed {
		propByName[field.Name] = field
	}

	onlyAdds = true
	for name, prev := range prevByName {
		prop, ok := propByName[name]
		if !ok || prop.Type != prev.Type {
			changed = true
			onlyAdds = false
		}
	}
	for name := range propByName {
		if _, ok := prevByName[name]; !ok {
			changed = true
		}
	}
	return changed, onlyAdds
}
