package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/spf13/viper"
)

const (
	LedgerBackendFile   = "file"
	LedgerBackendSQLite = "sqlite"

	configName = "nosana_config"
	envPrefix  = "NOSANA"
)

var (
	cfg    Config
	loaded *viper.Viper
	mu     sync.Mutex
	home   = os.Getenv("HOME")
)

func getViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("json")
	v.AddConfigPath(".")             // config file reading order starts with current working directory
	v.AddConfigPath("$HOME/.nosana") // then home directory
	v.AddConfigPath("/etc/nosana/")  // finally /etc/nosana
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaultConfig() *viper.Viper {
	v := getViper()
	v.SetDefault("general.data_dir", home+"/.nosana")
	v.SetDefault("general.debug", false)
	v.SetDefault("node.address", "")
	v.SetDefault("node.name", "Nosana Node")
	v.SetDefault("endpoints.info", "https://{address}.node.k8s.prd.nos.ci/node/info")
	v.SetDefault("endpoints.specs", "https://dashboard.k8s.prd.nos.ci/api/nodes/{address}/specs")
	v.SetDefault("endpoints.markets", "https://dashboard.k8s.prd.nos.ci/api/markets/")
	v.SetDefault("endpoints.jobs", "https://dashboard.k8s.prd.nos.ci/api/jobs")
	v.SetDefault("poll.interval", "60s")
	v.SetDefault("poll.cron_expr", "")
	v.SetDefault("poll.cycle_timeout", "30s")
	v.SetDefault("poll.request_timeout", "10s")
	v.SetDefault("poll.market_ttl", "300s")
	v.SetDefault("poll.job_ttl", "15m")
	v.SetDefault("poll.job_limit", 10)
	v.SetDefault("poll.benchmark_op", "benchmark")
	v.SetDefault("ledger.backend", LedgerBackendFile)
	v.SetDefault("ledger.path", "")
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rest.port", 9998)
	v.SetDefault("rest.allowed_origins", []string{"http://localhost:9991", "http://localhost:9992"})
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	return v
}

// LoadConfig reads the config file from the standard search paths, falling back
// to defaults when no file is found or it cannot be parsed.
func LoadConfig() {
	mu.Lock()
	defer mu.Unlock()

	paths := []string{
		".",
		home + "/.nosana",
		"/etc/nosana",
	}
	v := setDefaultConfig()

	config, err := findConfig(paths, configName+".json")
	if err == nil {
		// Viper only reads buffer, keeping comments in original config
		if err = v.ReadConfig(bytes.NewBuffer(removeComments(config))); err != nil {
			v = setDefaultConfig()
		}
	}

	if err = v.Unmarshal(&cfg); err != nil {
		v = setDefaultConfig()
		_ = v.Unmarshal(&cfg)
	}
	loaded = v
}

// LoadConfigFile reads an explicit config file instead of searching the default paths.
func LoadConfigFile(path string) error {
	mu.Lock()
	defer mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	v := setDefaultConfig()
	if err := v.ReadConfig(bytes.NewBuffer(removeComments(raw))); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	var decoded Config
	if err := v.Unmarshal(&decoded); err != nil {
		return fmt.Errorf("decoding config %s: %w", path, err)
	}
	cfg = decoded
	loaded = v
	return nil
}

// SetConfig overrides a single key on top of the loaded configuration.
func SetConfig(key string, value interface{}) {
	GetConfig()

	mu.Lock()
	defer mu.Unlock()

	loaded.Set(key, value)
	var updated Config
	if err := loaded.Unmarshal(&updated); err != nil {
		return
	}
	cfg = updated
}

func GetConfig() *Config {
	mu.Lock()
	empty := reflect.DeepEqual(cfg, Config{})
	mu.Unlock()
	if empty {
		LoadConfig()
	}
	return &cfg
}

// LedgerPath returns the configured ledger location, defaulting to a file under the data dir.
func (c *Config) LedgerPath() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	if c.Ledger.Backend == LedgerBackendSQLite {
		return filepath.Join(c.General.DataDir, "ledger.db")
	}
	return filepath.Join(c.General.DataDir, "ledger")
}

// Validate checks the settings the monitor cannot run without.
func (c *Config) Validate() error {
	if err := ValidateNodeAddress(c.Node.Address); err != nil {
		return err
	}
	if c.Poll.Interval <= 0 && c.Poll.CronExpr == "" {
		return fmt.Errorf("poll.interval must be positive when poll.cron_expr is empty")
	}
	if c.Poll.CycleTimeout <= 0 || c.Poll.RequestTimeout <= 0 {
		return fmt.Errorf("poll timeouts must be positive")
	}
	if c.Poll.JobLimit <= 0 {
		return fmt.Errorf("poll.job_limit must be positive")
	}
	switch c.Ledger.Backend {
	case LedgerBackendFile, LedgerBackendSQLite:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	for name, tmpl := range map[string]string{
		"info":    c.Endpoints.Info,
		"specs":   c.Endpoints.Specs,
		"markets": c.Endpoints.Markets,
		"jobs":    c.Endpoints.Jobs,
	} {
		if tmpl == "" {
			return fmt.Errorf("endpoints.%s is empty", name)
		}
	}
	return nil
}

// ValidateNodeAddress checks that addr is a base58 encoded 32 byte public key.
func ValidateNodeAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("node address is empty")
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("node address is not base58: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("node address decodes to %d bytes, expected 32", len(raw))
	}
	return nil
}

func findConfig(paths []string, filename string) ([]byte, error) {
	for _, path := range paths {
		fullPath := filepath.Join(path, filename)
		_, err := os.Stat(fullPath)
		if err == nil {
			config, err := os.ReadFile(fullPath)
			if err == nil {
				return config, nil
			} else {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("file not found in any of the paths")
}

func removeComments(configBytes []byte) []byte {
	re := regexp.MustCompile("(?m)^\\s*//.*$") // whole-line '//' comments; URLs keep their '//'
	result := re.ReplaceAll(configBytes, nil)
	return result
}
