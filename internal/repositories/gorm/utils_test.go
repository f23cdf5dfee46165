package repositories_gorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"gitlab.com/nunet/nosana-node-monitor/internal/repositories"
)

// TestHandleDBError asserts that GORM errors are translated into the repository sentinels.
func TestHandleDBError(t *testing.T) {
	assert.NoError(t, handleDBError(nil))

	err := handleDBError(gorm.ErrRecordNotFound)
	assert.Equal(t, repositories.NotFoundError, err)

	err = handleDBError(gorm.ErrInvalidData)
	assert.Equal(t, repositories.InvalidDataError, err)

	err = handleDBError(gorm.ErrInvalidDB)
	assert.ErrorIs(t, err, repositories.DatabaseError)

	// cancellation is not a database failure
	err = handleDBError(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, repositories.DatabaseError)
}

// TestEmptyValue checks zero-value detection for structs and pointers to structs.
func TestEmptyValue(t *testing.T) {
	assert.Equal(t, true, isEmptyValue(nil))

	assert.Equal(t, true, isEmptyValue(ledgerMetaRow{}))
	assert.Equal(t, true, isEmptyValue(&ledgerMetaRow{}))
	assert.Equal(t, true, isEmptyValue((*ledgerMetaRow)(nil)))

	assert.Equal(t, false, isEmptyValue(ledgerMetaRow{Version: 1}))
	assert.Equal(t, false, isEmptyValue(&ledgerMetaRow{NodeAddress: "abc"}))
}
