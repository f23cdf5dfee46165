package repositories_gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"gitlab.com/nunet/nosana-node-monitor/internal/repositories"
	"gitlab.com/nunet/nosana-node-monitor/ledger"
	"gitlab.com/nunet/nosana-node-monitor/models"
)

type jobRecordRow struct {
	NodeAddress      string `gorm:"primaryKey"`
	JobID            string `gorm:"primaryKey"`
	TimeStart        int64
	TimeEnd          int64
	USDRewardPerHour float64
	RuntimeSeconds   float64
	EarnedUSD        float64
	State            string
	Finalized        bool
	LastSeen         time.Time
	BenchmarkModel   *string
	BenchmarkTPS     *float64
}

func (jobRecordRow) TableName() string { return "ledger_jobs" }

type ledgerMetaRow struct {
	NodeAddress string `gorm:"primaryKey"`
	Version     int
	UpdatedAt   time.Time
}

func (ledgerMetaRow) TableName() string { return "ledger_meta" }

// LedgerRepository stores ledgers in sqlite, one row per job.
type LedgerRepository struct {
	db   *gorm.DB
	jobs repositories.GenericRepository[jobRecordRow]
	meta repositories.GenericRepository[ledgerMetaRow]
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{
		db:   db,
		jobs: NewGenericRepository[jobRecordRow](db),
		meta: NewGenericRepository[ledgerMetaRow](db),
	}
}

func (r *LedgerRepository) Load(ctx context.Context, node string) (models.LedgerDocument, error) {
	doc := models.NewLedgerDocument()

	q := r.meta.GetQuery()
	q.Instance = ledgerMetaRow{NodeAddress: node}
	meta, err := r.meta.Find(ctx, q)
	switch {
	case errors.Is(err, repositories.NotFoundError):
		meta.Version = models.LedgerVersion
	case err != nil:
		return doc, err
	}
	if meta.Version > models.LedgerVersion {
		return doc, ledger.ErrUnsupportedVersion
	}

	jq := r.jobs.GetQuery()
	jq.Conditions = append(jq.Conditions, repositories.EQ("NodeAddress", node))
	rows, err := r.jobs.FindAll(ctx, jq)
	if err != nil {
		return doc, err
	}
	for _, row := range rows {
		doc.Jobs[row.JobID] = row.record()
	}
	return doc, nil
}

// Save writes every record of doc in a single transaction. Records are never
// removed from a ledger, so rows missing from doc are left alone.
func (r *LedgerRepository) Save(ctx context.Context, node string, doc models.LedgerDocument) error {
	rows := make([]jobRecordRow, 0, len(doc.Jobs))
	for id, rec := range doc.Jobs {
		rows = append(rows, rowFromRecord(node, id, rec))
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := NewGenericRepository[jobRecordRow](tx).Upsert(ctx, rows); err != nil {
			return err
		}
		meta := []ledgerMetaRow{{NodeAddress: node, Version: models.LedgerVersion, UpdatedAt: time.Now().UTC()}}
		return NewGenericRepository[ledgerMetaRow](tx).Upsert(ctx, meta)
	})
}

func rowFromRecord(node, id string, rec models.JobRecord) jobRecordRow {
	row := jobRecordRow{
		NodeAddress:      node,
		JobID:            id,
		TimeStart:        rec.TimeStart,
		TimeEnd:          rec.TimeEnd,
		USDRewardPerHour: rec.USDRewardPerHour,
		RuntimeSeconds:   rec.RuntimeSeconds,
		EarnedUSD:        rec.EarnedUSD,
		State:            rec.State,
		Finalized:        rec.Finalized,
		LastSeen:         rec.LastSeen,
	}
	if rec.Benchmark != nil {
		model, tps := rec.Benchmark.Model, rec.Benchmark.MeanTokensPerSecond
		row.BenchmarkModel = &model
		row.BenchmarkTPS = &tps
	}
	return row
}

func (row jobRecordRow) record() models.JobRecord {
	rec := models.JobRecord{
		JobID:            row.JobID,
		NodeAddress:      row.NodeAddress,
		TimeStart:        row.TimeStart,
		TimeEnd:          row.TimeEnd,
		USDRewardPerHour: row.USDRewardPerHour,
		RuntimeSeconds:   row.RuntimeSeconds,
		EarnedUSD:        row.EarnedUSD,
		State:            row.State,
		Finalized:        row.Finalized,
		LastSeen:         row.LastSeen.UTC(),
	}
	if row.BenchmarkModel != nil && row.BenchmarkTPS != nil {
		rec.Benchmark = &models.BenchmarkResult{Model: *row.BenchmarkModel, MeanTokensPerSecond: *row.BenchmarkTPS}
	}
	return rec
}

var _ ledger.Store = (*LedgerRepository)(nil)
