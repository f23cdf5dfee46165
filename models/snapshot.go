package models

import "time"

// NetworkMetrics holds the latency and bandwidth reported for a node.
type NetworkMetrics struct {
	PingMs       *float64 `json:"ping_ms"`
	DownloadMbps *float64 `json:"download_mbps"`
	UploadMbps   *float64 `json:"upload_mbps"`
}

// GPU describes a single graphics card reported in the node specs.
type GPU struct {
	Model    *string  `json:"model"`
	MemoryMB *float64 `json:"memory_mb"`
}

// Specs is the normalized hardware description of a node.
type Specs struct {
	RAMMB         *float64       `json:"ram_mb"`
	DiskSpaceGB   *float64       `json:"disk_space_gb"`
	CPU           *string        `json:"cpu"`
	LogicalCores  *int           `json:"logical_cores"`
	PhysicalCores *int           `json:"physical_cores"`
	GPUModel      *string        `json:"gpu_model"`
	GPUs          []GPU          `json:"gpus"`
	MemoryGPUMB   *float64       `json:"memory_gpu_mb"`
	MarketAddress *string        `json:"market_address"`
	NodeVersion   *string        `json:"node_version"`
	CudaVersion   *string        `json:"cuda_version"`
	Bandwidth     NetworkMetrics `json:"bandwidth"`
}

// EmptySpecs returns a specs record with every field unset.
func EmptySpecs() Specs {
	return Specs{GPUs: []GPU{}}
}

// Market is the display data resolved for a market address.
type Market struct {
	Address            *string  `json:"address"`
	Name               *string  `json:"name"`
	Type               *string  `json:"type"`
	Slug               *string  `json:"slug"`
	NosRewardPerSecond *float64 `json:"nos_reward_per_second"`
	USDRewardPerHour   *float64 `json:"usd_reward_per_hour"`
}

// Earnings summarizes the job ledger of a node.
type Earnings struct {
	TotalRuntimeSeconds float64          `json:"total_runtime_seconds"`
	TotalEarnedUSD      float64          `json:"total_earned_usd"`
	TrackedJobs         int              `json:"tracked_jobs"`
	FinalizedJobs       int              `json:"finalized_jobs"`
	LastBenchmark       *BenchmarkResult `json:"last_benchmark"`
	LedgerRefreshedAt   *time.Time       `json:"ledger_refreshed_at"`
}

// CacheStatus reports how old the cached upstream data of a node is.
type CacheStatus struct {
	MarketsUpdatedAt *time.Time `json:"markets_updated_at"`
	MarketsError     *string    `json:"markets_error"`
	JobsRefreshedAt  *time.Time `json:"jobs_refreshed_at"`
}

// QueuePosition is the node's place in its market queue, when it could be decoded.
type QueuePosition struct {
	Position *int `json:"position"`
	Length   *int `json:"length"`
}

// SourceResult records how a single upstream source fared in a cycle.
type SourceResult struct {
	OK    bool    `json:"ok"`
	Error *string `json:"error"`

	// Cached is set when the value came from a cache instead of a network call.
	Cached bool `json:"cached"`
}

// Sources lists the outcome of every upstream source for one cycle.
type Sources struct {
	Info    SourceResult `json:"info"`
	Specs   SourceResult `json:"specs"`
	Markets SourceResult `json:"markets"`
	Jobs    SourceResult `json:"jobs"`
	Account SourceResult `json:"account"`
}

// Snapshot is one cycle's complete, normalized view of a node. Every field is
// always present; unavailable values are nil pointers and serialize as null.
type Snapshot struct {
	CycleID     string         `json:"cycle_id"`
	NodeAddress string         `json:"node_address"`
	FetchedAt   time.Time      `json:"fetched_at"`
	Status      NodeStatus     `json:"status"`
	State       *string        `json:"state"`
	Uptime      *float64       `json:"uptime"`
	Version     *string        `json:"version"`
	Country     *string        `json:"country"`
	Network     NetworkMetrics `json:"network"`
	Specs       Specs          `json:"specs"`
	Market      Market         `json:"market"`
	Earnings    Earnings       `json:"earnings"`
	Queue       QueuePosition  `json:"queue"`
	Sources     Sources        `json:"sources"`
}

// NewSnapshot returns a structurally complete snapshot for address with
// every optional value unset and the status at its initial state.
func NewSnapshot(address string, at time.Time) *Snapshot {
	return &Snapshot{
		NodeAddress: address,
		FetchedAt:   at,
		Status:      InitialStatus,
		Specs:       EmptySpecs(),
	}
}
