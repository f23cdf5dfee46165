package repositories_gorm

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"

	"gitlab.com/nunet/nosana-node-monitor/internal/repositories"
)

// handleDBError translates GORM errors into the repositories sentinel errors.
// Context cancellation is passed through untouched so callers can tell an
// abandoned query from a broken database.
func handleDBError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repositories.NotFoundError
	case errors.Is(err, gorm.ErrInvalidData), errors.Is(err, gorm.ErrInvalidField), errors.Is(err, gorm.ErrInvalidValue):
		return repositories.InvalidDataError
	default:
		return fmt.Errorf("%w: %v", repositories.DatabaseError, err)
	}
}

// isEmptyValue reports whether value is nil or the zero value of its type,
// looking through one level of pointer.
func isEmptyValue(value interface{}) bool {
	if value == nil {
		return true
	}

	val := reflect.ValueOf(value)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return true
		}
		val = val.Elem()
	}

	return val.IsZero()
}
