package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownCancelsContext(t *testing.T) {
	ctx, stop := ShutdownContext(context.Background())
	defer stop()

	Shutdown("test")

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestStopReleasesContext(t *testing.T) {
	ctx, stop := ShutdownContext(context.Background())
	stop()
	assert.Error(t, ctx.Err())
}
