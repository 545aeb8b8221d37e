// Package repository provides a small generic persistence layer over gorm.
//
// Filters are expressed as field/operator/value triples so callers never hand
// raw SQL fragments to the store. The one exception in the codebase is the
// schema-version counter, which needs an atomic read-then-insert and lives in
// the dataset repository.
package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type Operator string

const (
	OpEq  Operator = "="
	OpNe  Operator = "<>"
	OpGt  Operator = ">"
	OpGte Operator = ">="
	OpLt  Operator = "<"
	OpLte Operator = "<="
	OpIn  Operator = "IN"
)

// Condition is one field/operator/value predicate.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Repository is the typed store for a single record type.
type Repository[T any] interface {
	Find(ctx context.Context, conds ...Condition) ([]*T, error)
	FindOne(ctx context.Context, conds ...Condition) (*T, error)
	Create(ctx context.Context, record *T) error
	Update(ctx context.Context, record *T) error
	Count(ctx context.Context, conds ...Condition) (int64, error)
}

type store[T any] struct {
	db *gorm.DB
}

// ProvideStore builds a Repository for T backed by the given connection.
func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) apply(ctx context.Context, conds []Condition) *gorm.DB {
	var model T
	query := s.db.WithContext(ctx).Model(&model)
	for _, c := range conds {
		if c.Op == OpIn {
			query = query.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
			continue
		}
		query = query.Where(fmt.Sprintf("%s %s ?", c.Field, c.Op), c.Value)
	}
	return query
}

func (s *store[T]) Find(ctx context.Context, conds ...Condition) ([]*T, error) {
	var records []*T
	if err := s.apply(ctx, conds).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (s *store[T]) FindOne(ctx context.Context, conds ...Condition) (*T, error) {
	records, err := s.Find(ctx, conds...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return records[0], nil
}

func (s *store[T]) Create(ctx context.Context, record *T) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *store[T]) Update(ctx context.Context, record *T) error {
	return s.db.WithContext(ctx).Save(record).Error
}

func (s *store[T]) Count(ctx context.Context, conds ...Condition) (int64, error) {
	var count int64
	if err := s.apply(ctx, conds).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Eq is shorthand for an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

// In is shorthand for an IN-list condition.
func In(field string, values any) Condition {
	return Condition{Field: field, Op: OpIn, Value: values}
}
