package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"gitlab.com/nunet/nosana-node-monitor/cache"
	"gitlab.com/nunet/nosana-node-monitor/coordinator"
	"gitlab.com/nunet/nosana-node-monitor/internal/config"
	repositories_gorm "gitlab.com/nunet/nosana-node-monitor/internal/repositories/gorm"
	"gitlab.com/nunet/nosana-node-monitor/ledger"
	"gitlab.com/nunet/nosana-node-monitor/models"
	"gitlab.com/nunet/nosana-node-monitor/monitor"
	"gitlab.com/nunet/nosana-node-monitor/upstream"
)

// app is the wired set of components behind the run and status commands.
type app struct {
	cfg     *config.Config
	ledger  *ledger.Ledger
	monitor *monitor.Monitor
	closers []func() error
}

func openStore(cfg *config.Config) (ledger.Store, func() error, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendSQLite:
		db, err := repositories_gorm.Open(cfg.LedgerPath())
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		return repositories_gorm.NewLedgerRepository(db), sqlDB.Close, nil
	default:
		return ledger.NewFileStore(afero.NewOsFs(), cfg.LedgerPath()), func() error { return nil }, nil
	}
}

func openLedger(cfg *config.Config) (*ledger.Ledger, func() error, error) {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s ledger at %s: %w", cfg.Ledger.Backend, cfg.LedgerPath(), err)
	}
	l := ledger.New(store, cfg.Node.Address, cfg.Poll.JobLimit, ledger.WithBenchmarkOp(cfg.Poll.BenchmarkOp))
	return l, closeStore, nil
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l, closeStore, err := openLedger(cfg)
	if err != nil {
		return nil, err
	}

	client := upstream.NewClient(cfg.Endpoints, cfg.Poll.RequestTimeout, upstream.WithRPCURL(cfg.Queue.RPCURL))
	coord := coordinator.New(
		coordinator.Settings{
			NodeAddress:  cfg.Node.Address,
			CycleTimeout: cfg.Poll.CycleTimeout,
			JobLimit:     cfg.Poll.JobLimit,
			QueueEnabled: cfg.Queue.Enabled,
		},
		client,
		cache.NewMarketCache(cfg.Poll.MarketTTL, time.Now),
		cache.NewJobGate(cfg.Poll.JobTTL),
		l,
	)

	mon := monitor.New(coord, cfg.Node.Address, monitor.Settings{
		Interval: cfg.Poll.Interval,
		CronExpr: cfg.Poll.CronExpr,
	})
	for _, status := range []models.NodeStatus{models.StatusRunning, models.StatusQueued, models.StatusOffline} {
		mon.OnTransition(status.TriggerType(), logTransition)
	}

	return &app{cfg: cfg, ledger: l, monitor: mon, closers: []func() error{closeStore}}, nil
}

func logTransition(ctx context.Context, from, to models.NodeStatus, snap *models.Snapshot) {
	zlog.Ctx(ctx).Sugar().Infof("node %s went from %s to %s (cycle %s)", snap.NodeAddress, from, to, snap.CycleID)
}

func (a *app) Close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c())
	}
	return err
}
