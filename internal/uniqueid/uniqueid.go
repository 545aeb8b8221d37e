// Package uniqueid derives the stable identity key duplicate detection is
// built on. Identical input must always produce the identical ID, across
// processes and over time.
package uniqueid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Strategy selects how a row's identity is derived.
type Strategy string

const (
	StrategyExternalKey Strategy = "external-key"
	StrategyContentHash Strategy = "content-hash"
	StrategyPositional  Strategy = "positional"
)

var (
	ErrUnknownStrategy = errors.New("uniqueid: unknown strategy")
	ErrEmptyKeyField   = errors.New("uniqueid: external key field is empty")
)

// Generate derives the unique ID for one row.
//   - external-key: "<dataset>:ext:<value>" from the configured key field
//   - content-hash: "<dataset>:hash:<sha256>" over the normalized row
//   - positional:   "<dataset>:row:<ordinal>"
func Generate(datasetID snowflake.ID, strategy Strategy, keyField string, row map[string]string, ordinal int64) (string, error) {
	switch strategy {
	case StrategyExternalKey:
		value := strings.TrimSpace(row[keyField])
		if value == "" {
			return "", fmt.Errorf("%w: field %q", ErrEmptyKeyField, keyField)
		}
		return fmt.Sprintf("%s:ext:%s", datasetID, value), nil
	case StrategyContentHash:
		return fmt.Sprintf("%s:hash:%s", datasetID, hashRow(row)), nil
	case StrategyPositional:
		return fmt.Sprintf("%s:row:%d", datasetID, ordinal), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// hashRow hashes the full row with keys in sorted order so map iteration
// order never leaks into the ID.
func hashRow(row map[string]string) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(strings.TrimSpace(row[k])))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
