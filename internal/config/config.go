package config

import "time"

type Config struct {
	General   `mapstructure:"general"`
	Node      `mapstructure:"node"`
	Endpoints `mapstructure:"endpoints"`
	Poll      `mapstructure:"poll"`
	Ledger    `mapstructure:"ledger"`
	Queue     `mapstructure:"queue"`
	Rest      `mapstructure:"rest"`
	Tracing   `mapstructure:"tracing"`
}

type General struct {
	DataDir string `mapstructure:"data_dir"`
	Debug   bool   `mapstructure:"debug"`
}

type Node struct {
	Address string `mapstructure:"address"`
	Name    string `mapstructure:"name"`
}

// Endpoints are URL templates; `{address}` is replaced with the node address.
type Endpoints struct {
	Info    string `mapstructure:"info"`
	Specs   string `mapstructure:"specs"`
	Markets string `mapstructure:"markets"`
	Jobs    string `mapstructure:"jobs"`
}

type Poll struct {
	Interval       time.Duration `mapstructure:"interval"`
	CronExpr       string        `mapstructure:"cron_expr"` // optional, overrides interval when set
	CycleTimeout   time.Duration `mapstructure:"cycle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MarketTTL      time.Duration `mapstructure:"market_ttl"`
	JobTTL         time.Duration `mapstructure:"job_ttl"`
	JobLimit       int           `mapstructure:"job_limit"`
	BenchmarkOp    string        `mapstructure:"benchmark_op"`
}

type Ledger struct {
	Backend string `mapstructure:"backend"` // "file" or "sqlite"
	Path    string `mapstructure:"path"`
}

type Queue struct {
	Enabled bool   `mapstructure:"enabled"`
	RPCURL  string `mapstructure:"rpc_url"`
}

type Rest struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Tracing struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}
