// Package coordinator runs one polling cycle for a node: it fetches every
// upstream source, degrades each failed source to a safe default and merges
// the results into a single snapshot.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"gitlab.com/nunet/nosana-node-monitor/cache"
	"gitlab.com/nunet/nosana-node-monitor/models"
	"gitlab.com/nunet/nosana-node-monitor/normalize"
	"gitlab.com/nunet/nosana-node-monitor/queue"
	"gitlab.com/nunet/nosana-node-monitor/upstream"
)

var tracer = otel.Tracer("gitlab.com/nunet/nosana-node-monitor/coordinator")

// Fetcher is the set of upstream calls a cycle makes.
type Fetcher interface {
	FetchInfo(ctx context.Context, address string) upstream.Result[[]byte]
	FetchSpecs(ctx context.Context, address string) upstream.Result[[]byte]
	FetchMarkets(ctx context.Context) upstream.Result[[]byte]
	FetchJobs(ctx context.Context, address string, limit int) upstream.Result[[]byte]
	FetchAccountData(ctx context.Context, account string) upstream.Result[[]byte]
}

// JobLedger is the persisted job accounting of the node.
type JobLedger interface {
	Refresh(ctx context.Context, raw []byte) (models.Earnings, error)
	Totals(ctx context.Context) models.Earnings
}

type Settings struct {
	NodeAddress  string
	CycleTimeout time.Duration
	JobLimit     int
	QueueEnabled bool
}

type Option func(*Coordinator)

// WithDecoder enables queue-position decoding with d.
func WithDecoder(d queue.Decoder) Option {
	return func(c *Coordinator) { c.decoder = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator owns the caches of one node. Overlapping Refresh calls share a
// single cycle.
type Coordinator struct {
	settings Settings
	client   Fetcher
	markets  *cache.MarketCache
	jobs     *cache.JobGate
	ledger   JobLedger
	decoder  queue.Decoder
	now      func() time.Time

	sf         singleflight.Group
	mu         sync.Mutex
	prevStatus models.NodeStatus
}

func New(settings Settings, client Fetcher, markets *cache.MarketCache, jobs *cache.JobGate, ledger JobLedger, opts ...Option) *Coordinator {
	if settings.CycleTimeout <= 0 {
		settings.CycleTimeout = 30 * time.Second
	}
	if settings.JobLimit <= 0 {
		settings.JobLimit = 10
	}
	c := &Coordinator{
		settings:   settings,
		client:     client,
		markets:    markets,
		jobs:       jobs,
		ledger:     ledger,
		now:        time.Now,
		prevStatus: models.InitialStatus,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.settings.QueueEnabled && c.decoder == nil {
		c.decoder = queue.LengthPrefixDecoder{}
	}
	return c
}

// PreviousStatus returns the status committed by the last successful cycle.
func (c *Coordinator) PreviousStatus() models.NodeStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prevStatus
}

// Refresh runs a cycle and returns its snapshot, or a *CycleError when the
// cycle timed out or failed unexpectedly.
func (c *Coordinator) Refresh(ctx context.Context) (*models.Snapshot, error) {
	v, err, shared := c.sf.Do(c.settings.NodeAddress, func() (interface{}, error) {
		return c.cycle(ctx)
	})
	if shared {
		zlog.Sugar().Debugf("joined in-flight cycle for %s", c.settings.NodeAddress)
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.Snapshot), nil
}

type marketsOutcome struct {
	records [][]byte
	fresh   bool
	err     error
}

func (c *Coordinator) cycle(parent context.Context) (snap *models.Snapshot, err error) {
	cycleID := uuid.NewString()
	ctx, cancel := context.WithTimeout(parent, c.settings.CycleTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "coordinator.cycle")
	span.SetAttributes(
		attribute.String("node.address", c.settings.NodeAddress),
		attribute.String("cycle.id", cycleID),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			snap, err = nil, &CycleError{CycleID: cycleID, Cause: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			zlog.Sugar().Errorf("cycle %s: %v", cycleID, err)
		}
	}()

	address := c.settings.NodeAddress
	started := c.now()
	snap = models.NewSnapshot(address, started.UTC())
	snap.CycleID = cycleID

	var (
		info, specs upstream.Result[[]byte]
		markets     marketsOutcome
		g           errgroup.Group
	)
	g.Go(func() error {
		info = c.client.FetchInfo(ctx, address)
		return nil
	})
	g.Go(func() error {
		specs = c.client.FetchSpecs(ctx, address)
		return nil
	})
	g.Go(func() error {
		markets = c.fetchMarkets(ctx)
		return nil
	})
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, &CycleError{CycleID: cycleID, Cause: ctx.Err()}
	}

	var fetchErrs error
	fetchErrs = multierr.Append(fetchErrs, info.Err)
	fetchErrs = multierr.Append(fetchErrs, specs.Err)
	fetchErrs = multierr.Append(fetchErrs, markets.err)

	in := normalize.NormalizeInfo(info.ValueOr(nil))
	snap.Status = normalize.NormalizeStatus(in.State, info.OK())
	if info.OK() {
		snap.State = in.State
		snap.Uptime = in.Uptime
		snap.Version = in.Version
		snap.Country = in.Country
		snap.Network = in.Network
	}
	snap.Sources.Info = sourceResult(info.Err, false)

	snap.Specs = models.EmptySpecs()
	if specs.OK() {
		snap.Specs = normalize.NormalizeSpecs(specs.Value)
	}
	snap.Sources.Specs = sourceResult(specs.Err, false)
	if snap.Version == nil {
		snap.Version = snap.Specs.NodeVersion
	}

	marketAddress := ""
	switch {
	case snap.Specs.MarketAddress != nil:
		marketAddress = *snap.Specs.MarketAddress
	case in.MarketAddress != nil:
		marketAddress = *in.MarketAddress
	}
	snap.Market = normalize.ResolveMarket(marketAddress, markets.records)
	snap.Sources.Markets = sourceResult(markets.err, !markets.fresh && (markets.err == nil || markets.records != nil))

	transition := snap.Status != c.PreviousStatus()
	jobsDue := c.jobs.Due(started, transition)
	wantQueue := c.settings.QueueEnabled && c.decoder != nil && marketAddress != ""

	var (
		jobs, account upstream.Result[[]byte]
		late          errgroup.Group
	)
	if jobsDue {
		late.Go(func() error {
			jobs = c.client.FetchJobs(ctx, address, c.settings.JobLimit)
			return nil
		})
	}
	if wantQueue {
		late.Go(func() error {
			account = c.client.FetchAccountData(ctx, marketAddress)
			return nil
		})
	}
	_ = late.Wait()
	if ctx.Err() != nil {
		return nil, &CycleError{CycleID: cycleID, Cause: ctx.Err()}
	}

	if wantQueue {
		snap.Queue, snap.Sources.Account = c.queuePosition(account)
		fetchErrs = multierr.Append(fetchErrs, account.Err)
	}

	// the ledger commit is the last step; after it the cycle is final
	jobsRefreshed := false
	switch {
	case !jobsDue:
		snap.Earnings = c.ledger.Totals(ctx)
		snap.Sources.Jobs = models.SourceResult{OK: true, Cached: true}
	case jobs.OK():
		earnings, err := c.ledger.Refresh(ctx, jobs.Value)
		if err != nil {
			return nil, &CycleError{CycleID: cycleID, Cause: err}
		}
		snap.Earnings = earnings
		snap.Sources.Jobs = models.SourceResult{OK: true}
		jobsRefreshed = true
	default:
		fetchErrs = multierr.Append(fetchErrs, jobs.Err)
		snap.Earnings = c.ledger.Totals(ctx)
		snap.Sources.Jobs = sourceResult(jobs.Err, false)
	}
	if !jobsRefreshed && ctx.Err() != nil {
		return nil, &CycleError{CycleID: cycleID, Cause: ctx.Err()}
	}

	c.mu.Lock()
	prev := c.prevStatus
	c.prevStatus = snap.Status
	c.mu.Unlock()
	if jobsRefreshed {
		c.jobs.MarkRefreshed(started)
	}

	span.SetAttributes(
		attribute.String("node.status", snap.Status.String()),
		attribute.Bool("jobs.refreshed", jobsRefreshed),
	)
	if fetchErrs != nil {
		zlog.Sugar().Warnf("cycle %s degraded: %v", cycleID, fetchErrs)
	}
	if prev != snap.Status {
		zlog.Sugar().Infof("node %s status %s -> %s", address, prev, snap.Status)
	}
	zlog.Sugar().Debugf("cycle %s finished in %s", cycleID, c.now().Sub(started))
	return snap, nil
}

func (c *Coordinator) fetchMarkets(ctx context.Context) marketsOutcome {
	records, fresh, err := c.markets.Get(ctx, func(ctx context.Context) ([][]byte, error) {
		r := c.client.FetchMarkets(ctx)
		if !r.OK() {
			return nil, r.Err
		}
		return normalize.MarketRecords(r.Value), nil
	})
	return marketsOutcome{records: records, fresh: fresh, err: err}
}

func (c *Coordinator) queuePosition(account upstream.Result[[]byte]) (models.QueuePosition, models.SourceResult) {
	if !account.OK() {
		return models.QueuePosition{}, sourceResult(account.Err, false)
	}
	blob, err := queue.DecodeAccountData(account.Value)
	if err != nil {
		return models.QueuePosition{}, sourceResult(err, false)
	}
	pos, ok := c.decoder.Position(blob, c.settings.NodeAddress)
	if !ok {
		return models.QueuePosition{}, models.SourceResult{OK: true}
	}
	return models.QueuePosition{Position: &pos.Position, Length: &pos.Length}, models.SourceResult{OK: true}
}

// CacheStatus reports when the market directory and the job history were
// last fetched successfully.
func (c *Coordinator) CacheStatus() models.CacheStatus {
	var st models.CacheStatus
	if at := c.markets.LastUpdate(); !at.IsZero() {
		st.MarketsUpdatedAt = &at
	}
	if err := c.markets.LastError(); err != nil {
		msg := err.Error()
		st.MarketsError = &msg
	}
	if at := c.jobs.LastRefresh(); !at.IsZero() {
		st.JobsRefreshedAt = &at
	}
	return st
}

func sourceResult(err error, cached bool) models.SourceResult {
	if err == nil {
		return models.SourceResult{OK: true, Cached: cached}
	}
	msg := err.Error()
	return models.SourceResult{OK: false, Error: &msg, Cached: cached}
}
