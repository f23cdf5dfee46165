package models

import "time"

// LedgerVersion is the current layout version of a persisted ledger.
const LedgerVersion = 1

// BenchmarkResult is the throughput measured by a benchmark job.
type BenchmarkResult struct {
	Model               string  `json:"model"`
	MeanTokensPerSecond float64 `json:"mean_tokens_per_second"`
}

// JobRecord is one ledger entry for an observed job.
type JobRecord struct {
	JobID            string           `json:"job_id"`
	NodeAddress      string           `json:"node_address"`
	TimeStart        int64            `json:"time_start"`
	TimeEnd          int64            `json:"time_end"`
	USDRewardPerHour float64          `json:"usd_reward_per_hour"`
	RuntimeSeconds   float64          `json:"runtime_seconds"`
	EarnedUSD        float64          `json:"earned_usd"`
	State            string           `json:"state"`
	Finalized        bool             `json:"finalized"`
	LastSeen         time.Time        `json:"last_seen"`
	Benchmark        *BenchmarkResult `json:"benchmark"`
}

// LedgerDocument is the persisted form of a node's ledger.
type LedgerDocument struct {
	Version int                  `json:"version"`
	Jobs    map[string]JobRecord `json:"jobs"`
}

// NewLedgerDocument returns an empty ledger at the current version.
func NewLedgerDocument() LedgerDocument {
	return LedgerDocument{Version: LedgerVersion, Jobs: map[string]JobRecord{}}
}
