// Package repositories declares storage-agnostic repository contracts used by
// the sqlite ledger backend.
package repositories

import (
	"context"
)

// QueryCondition is a single WHERE clause term.
type QueryCondition struct {
	Field    string      // struct field name, translated to a column by the backend
	Operator string      // comparison operator such as "=" or ">="
	Value    interface{} // right hand side of the comparison
}

type ModelType interface{}

// Query wraps an example instance of T and additional query parameters.
// Non-zero fields of Instance become equality conditions.
type Query[T any] struct {
	Instance   T
	Conditions []QueryCondition
	SortBy     string
	Limit      int
	Offset     int
}

// GenericRepository is the set of operations the ledger backends rely on.
type GenericRepository[T ModelType] interface {
	// Upsert inserts the records, replacing any that share a primary key.
	Upsert(ctx context.Context, data []T) error
	// Find retrieves a single record based on a query.
	Find(ctx context.Context, query Query[T]) (T, error)
	// FindAll retrieves multiple records based on a query.
	FindAll(ctx context.Context, query Query[T]) ([]T, error)
	// Count returns the number of records matching a query.
	Count(ctx context.Context, query Query[T]) (int64, error)
	// GetQuery returns an empty query instance for the repository's type.
	GetQuery() Query[T]
}

// EQ creates a QueryCondition for equality comparison.
func EQ(field string, value interface{}) QueryCondition {
	return QueryCondition{Field: field, Operator: "=", Value: value}
}

// GTE creates a QueryCondition for greater-than or equal comparison.
func GTE(field string, value interface{}) QueryCondition {
	return QueryCondition{Field: field, Operator: ">=", Value: value}
}

// LTE creates a QueryCondition for less-than or equal comparison.
func LTE(field string, value interface{}) QueryCondition {
	return QueryCondition{Field: field, Operator: "<=", Value: value}
}
