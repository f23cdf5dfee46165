package repositories_gorm

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/nunet/nosana-node-monitor/internal/repositories"
)

// GenericRepositoryGORM is a generic repository implementation using GORM as an ORM.
// It is embedded in model repositories to provide basic database operations.
type GenericRepositoryGORM[T interface{}] struct {
	db *gorm.DB
}

// NewGenericRepository creates a new instance of GenericRepositoryGORM.
func NewGenericRepository[T interface{}](db *gorm.DB) repositories.GenericRepository[T] {
	return &GenericRepositoryGORM[T]{db: db}
}

// GetQuery returns a clean Query instance for building queries.
func (repo *GenericRepositoryGORM[T]) GetQuery() repositories.Query[T] {
	return repositories.Query[T]{}
}

// upsertBatchSize keeps each statement well below SQLite's bound-variable limit.
const upsertBatchSize = 500

// Upsert inserts data, overwriting every column of rows whose primary key already exists.
func (repo *GenericRepositoryGORM[T]) Upsert(ctx context.Context, data []T) error {
	if len(data) == 0 {
		return nil
	}
	err := repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&data, upsertBatchSize).Error
	return handleDBError(err)
}

// Find retrieves a single record based on a query.
func (repo *GenericRepositoryGORM[T]) Find(
	ctx context.Context,
	query repositories.Query[T],
) (T, error) {
	var result T
	db := repo.db.WithContext(ctx).Model(new(T))

	db = applyConditions(db, query)

	err := db.First(&result).Error
	return result, handleDBError(err)
}

// FindAll retrieves multiple records based on a query.
func (repo *GenericRepositoryGORM[T]) FindAll(
	ctx context.Context,
	query repositories.Query[T],
) ([]T, error) {
	var results []T
	db := repo.db.WithContext(ctx).Model(new(T))

	db = applyConditions(db, query)

	err := db.Find(&results).Error
	return results, handleDBError(err)
}

// Count returns how many records match a query.
func (repo *GenericRepositoryGORM[T]) Count(ctx context.Context, query repositories.Query[T]) (int64, error) {
	var n int64
	db := repo.db.WithContext(ctx).Model(new(T))
	err := applyConditions(db, query).Count(&n).Error
	return n, handleDBError(err)
}

// applyConditions turns a repositories.Query into WHERE, ORDER BY, LIMIT and
// OFFSET clauses. Field names are mapped to columns with the db naming strategy.
func applyConditions[T any](db *gorm.DB, query repositories.Query[T]) *gorm.DB {
	tableName := db.NamingStrategy.TableName(reflect.TypeOf(*new(T)).Name())

	for _, condition := range query.Conditions {
		columnName := db.NamingStrategy.ColumnName(tableName, condition.Field)
		db = db.Where(
			fmt.Sprintf("%s %s ?", columnName, condition.Operator),
			condition.Value,
		)
	}

	if !isEmptyValue(query.Instance) {
		exampleType := reflect.TypeOf(query.Instance)
		exampleValue := reflect.ValueOf(query.Instance)
		for i := 0; i < exampleType.NumField(); i++ {
			fieldName := exampleType.Field(i).Name
			fieldValue := exampleValue.Field(i).Interface()
			if !isEmptyValue(fieldValue) {
				columnName := db.NamingStrategy.ColumnName(tableName, fieldName)
				db = db.Where(fmt.Sprintf("%s = ?", columnName), fieldValue)
			}
		}
	}

	if query.SortBy != "" {
		db = db.Order(query.SortBy)
	}
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	return db
}
