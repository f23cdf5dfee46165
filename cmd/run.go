package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"gitlab.com/nunet/nosana-node-monitor/api"
	"gitlab.com/nunet/nosana-node-monitor/internal"
	"gitlab.com/nunet/nosana-node-monitor/internal/config"
	"gitlab.com/nunet/nosana-node-monitor/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

var flagPort int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor the configured node and serve the API",
	Long:  `Runs a refresh cycle right away and then on the configured interval, publishing every snapshot on the REST API and websocket feed until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		if flagPort > 0 {
			cfg.Rest.Port = flagPort
		}

		ctx, stop := internal.ShutdownContext(commandContext(cmd))
		defer stop()

		shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing, cfg.Node.Address)
		if err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		a.monitor.Start(ctx)

		router := api.SetupRouter(api.NewHandler(a.monitor, a.ledger), cfg.Rest.AllowedOrigins)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Rest.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		serveErr := make(chan error, 1)
		go func() {
			zlog.Sugar().Infof("serving API on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()

		var runErr error
		select {
		case <-ctx.Done():
		case runErr = <-serveErr:
			zlog.Sugar().Errorf("API server stopped: %v", runErr)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Cleaning up before shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// closing subscriptions ends the hijacked websocket connections
		a.monitor.Stop()
		runErr = multierr.Combine(runErr, srv.Shutdown(shutdownCtx), shutdownTracer(shutdownCtx))
		return runErr
	},
}

func init() {
	runCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "API port, overrides rest.port")
}
