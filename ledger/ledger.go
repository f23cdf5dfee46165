// Package ledger keeps the persisted per-node job accounting. Totals are
// always recomputed from the stored records, so replaying the same job list
// never changes them.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gitlab.com/nunet/nosana-node-monitor/models"
)

// Ledger owns the job records of a single node. It is safe for concurrent use.
type Ledger struct {
	store       Store
	node        string
	limit       int
	benchmarkOp string
	now         func() time.Time

	mu          sync.Mutex
	doc         *models.LedgerDocument
	dirty       bool
	readOnly    bool
	refreshedAt *time.Time
}

type Option func(*Ledger)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithBenchmarkOp sets the operation id that carries benchmark output.
func WithBenchmarkOp(op string) Option {
	return func(l *Ledger) { l.benchmarkOp = op }
}

// New returns a ledger for node. At most limit jobs are taken from each fetched page.
func New(store Store, node string, limit int, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		node:        node,
		limit:       limit,
		benchmarkOp: "benchmark",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Refresh merges a freshly fetched job-history document into the ledger and
// returns the recomputed totals. Nothing is committed if ctx is done before
// the merge completes; ctx.Err() is returned in that case.
func (l *Ledger) Refresh(ctx context.Context, raw []byte) (models.Earnings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.loadLocked(ctx)
	jobs := parseJobs(raw, l.limit, l.benchmarkOp)
	now := l.now().UTC()

	next := cloneDocument(current)
	window := make([]string, 0, len(jobs))
	changed := false
	for _, job := range jobs {
		window = append(window, job.ID)
		rec, ok := next.Jobs[job.ID]
		updated, did := applyJob(rec, ok, job, l.node, now)
		if did {
			next.Jobs[job.ID] = updated
			changed = true
		}
	}

	if err := ctx.Err(); err != nil {
		return models.Earnings{}, err
	}

	l.doc = &next
	l.refreshedAt = &now
	if changed || l.dirty {
		l.persistLocked(ctx)
	}

	earnings := Summarize(next, window)
	earnings.LedgerRefreshedAt = l.refreshedAt
	zlog.Sugar().Debugf("ingested %d jobs for %s (changed=%t)", len(jobs), l.node, changed)
	return earnings, nil
}

// Totals returns the totals of the stored ledger without touching the network.
func (l *Ledger) Totals(ctx context.Context) models.Earnings {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := l.loadLocked(ctx)
	if l.dirty && ctx.Err() == nil {
		l.persistLocked(ctx)
	}
	earnings := Summarize(doc, nil)
	earnings.LedgerRefreshedAt = l.refreshedAt
	return earnings
}

// Document returns a copy of the stored ledger.
func (l *Ledger) Document(ctx context.Context) models.LedgerDocument {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneDocument(l.loadLocked(ctx))
}

func (l *Ledger) loadLocked(ctx context.Context) models.LedgerDocument {
	if l.doc != nil {
		return *l.doc
	}
	doc, err := l.store.Load(ctx, l.node)
	if err != nil {
		if ctx.Err() != nil {
			// retry on the next call rather than caching an empty ledger
			return models.NewLedgerDocument()
		}
		if errors.Is(err, ErrUnsupportedVersion) {
			l.readOnly = true
		}
		zlog.Sugar().Errorf("loading ledger for %s, continuing with an empty one: %v", l.node, err)
		doc = models.NewLedgerDocument()
	}
	if doc.Jobs == nil {
		doc.Jobs = map[string]models.JobRecord{}
	}
	l.doc = &doc
	return doc
}

func (l *Ledger) persistLocked(ctx context.Context) {
	if l.readOnly {
		return
	}
	if err := l.store.Save(ctx, l.node, *l.doc); err != nil {
		l.dirty = true
		zlog.Sugar().Errorf("saving ledger for %s: %v", l.node, err)
		return
	}
	l.dirty = false
}

// applyJob returns the record for job after applying the update rules, and
// whether anything changed.
func applyJob(rec models.JobRecord, exists bool, job observedJob, node string, now time.Time) (models.JobRecord, bool) {
	if !exists {
		runtime, earned := Accounting(job.TimeStart, job.TimeEnd, job.Rate)
		return models.JobRecord{
			JobID:            job.ID,
			NodeAddress:      node,
			TimeStart:        job.TimeStart,
			TimeEnd:          job.TimeEnd,
			USDRewardPerHour: job.Rate,
			RuntimeSeconds:   runtime,
			EarnedUSD:        earned,
			State:            job.State,
			Finalized:        job.finalized(),
			LastSeen:         now,
			Benchmark:        job.Benchmark,
		}, true
	}

	changed := false
	switch {
	case job.finalized() && (!rec.Finalized || rec.TimeEnd != job.TimeEnd || rec.TimeStart != job.TimeStart):
		rec.TimeStart = job.TimeStart
		rec.TimeEnd = job.TimeEnd
		rec.USDRewardPerHour = job.Rate
		rec.RuntimeSeconds, rec.EarnedUSD = Accounting(job.TimeStart, job.TimeEnd, job.Rate)
		rec.Finalized = true
		rec.State = job.State
		changed = true
	case rec.Finalized:
		// an upstream that lost the end time does not undo accounting
	case rec.State != job.State || rec.TimeStart != job.TimeStart || rec.USDRewardPerHour != job.Rate:
		rec.State = job.State
		rec.TimeStart = job.TimeStart
		rec.TimeEnd = job.TimeEnd
		rec.USDRewardPerHour = job.Rate
		changed = true
	}

	if rec.Benchmark == nil && job.Benchmark != nil {
		rec.Benchmark = job.Benchmark
		changed = true
	}
	if changed {
		rec.LastSeen = now
	}
	return rec, changed
}

// Summarize folds the finalized records of doc into totals. window lists the
// job ids of the latest fetch; the reported benchmark comes from the most
// recently finalized job among them, or among all records when the window has none.
func Summarize(doc models.LedgerDocument, window []string) models.Earnings {
	ids := make([]string, 0, len(doc.Jobs))
	for id := range doc.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var e models.Earnings
	e.TrackedJobs = len(ids)
	for _, id := range ids {
		rec := doc.Jobs[id]
		if !rec.Finalized {
			continue
		}
		e.FinalizedJobs++
		e.TotalRuntimeSeconds += rec.RuntimeSeconds
		e.TotalEarnedUSD += rec.EarnedUSD
	}

	inWindow := make([]models.JobRecord, 0, len(window))
	for _, id := range window {
		if rec, ok := doc.Jobs[id]; ok {
			inWindow = append(inWindow, rec)
		}
	}
	e.LastBenchmark = latestBenchmark(inWindow)
	if e.LastBenchmark == nil {
		all := make([]models.JobRecord, 0, len(ids))
		for _, id := range ids {
			all = append(all, doc.Jobs[id])
		}
		e.LastBenchmark = latestBenchmark(all)
	}
	return e
}

func latestBenchmark(recs []models.JobRecord) *models.BenchmarkResult {
	var best *models.JobRecord
	for i := range recs {
		rec := &recs[i]
		if rec.Benchmark == nil || !rec.Finalized {
			continue
		}
		if best == nil || rec.TimeEnd > best.TimeEnd || (rec.TimeEnd == best.TimeEnd && rec.JobID > best.JobID) {
			best = rec
		}
	}
	if best == nil {
		return nil
	}
	b := *best.Benchmark
	return &b
}

func cloneDocument(doc models.LedgerDocument) models.LedgerDocument {
	out := models.LedgerDocument{Version: doc.Version, Jobs: make(map[string]models.JobRecord, len(doc.Jobs))}
	for id, rec := range doc.Jobs {
		if rec.Benchmark != nil {
			b := *rec.Benchmark
			rec.Benchmark = &b
		}
		out.Jobs[id] = rec
	}
	return out
}
