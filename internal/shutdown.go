package internal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	shutdownMu     sync.Mutex
	shutdownCancel context.CancelFunc
)

// ShutdownContext returns a context that is cancelled on SIGINT, SIGTERM or a
// call to Shutdown. The returned stop function releases the signal handler.
func ShutdownContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	shutdownMu.Lock()
	shutdownCancel = cancel
	shutdownMu.Unlock()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			Shutdown("Received signal for " + sig.String())
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

// Shutdown logs the shutdown reason and cancels the context returned by
// ShutdownContext.
func Shutdown(message string) {
	zlog.Sugar().Infof("Shutdown initiated: %s", message)

	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdownCancel != nil {
		shutdownCancel()
	}
}
