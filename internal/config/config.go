// Package config loads the explorer's configuration: a TOML file read with
// github.com/pelletier/go-toml/v2, overridable by flags bound with
// github.com/spf13/pflag (the flag set cobra exposes), per SPEC_FULL.md §6's recognized option set.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
)

// Config holds every option SPEC_FULL.md §6 recognizes: the core's
// db_path/blockchain_db_path/cert_path/key_path/port/batch_size, plus the
// ambient log_level/metrics_addr/upstream_timeout/retry_attempts options.
type Config struct {
	DBPath           string        `toml:"db_path"`
	BlockchainDBPath string        `toml:"blockchain_db_path"`
	CertPath         string        `toml:"cert_path"`
	KeyPath          string        `toml:"key_path"`
	RPCBaseURL       string        `toml:"rpc_base_url"`
	Port             uint16        `toml:"port"`
	BatchSize        uint32        `toml:"batch_size"`
	GenesisHeight    uint32        `toml:"genesis_height"`
	LogLevel         string        `toml:"log_level"`
	MetricsAddr      string        `toml:"metrics_addr"`
	UpstreamTimeout  time.Duration `toml:"upstream_timeout"`
	RetryAttempts    int           `toml:"retry_attempts"`
}

// Defaults returns a Config populated with SPEC_FULL.md §6's stated
// defaults: port 3000, batch_size 1000, log_level info, upstream_timeout
// 10s, retry_attempts 5.
func Defaults() Config {
	return Config{
		Port:            3000,
		BatchSize:       1000,
		LogLevel:        "info",
		RPCBaseURL:      "https://localhost:8555",
		UpstreamTimeout: 10 * time.Second,
		RetryAttempts:   5,
	}
}

// Load reads a TOML file at path (if non-empty and present) over Defaults(),
// then applies flags, which always win (scenario 7: a --batch-size flag
// overrides a file-sourced batch_size). A missing path is not an error: the
// file is optional, flags and defaults still apply.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if flags != nil {
		applyFlagOverrides(&cfg, flags)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFlagOverrides copies any flag the caller actually set (flags.Changed)
// on top of the file/default-sourced value, so an unset flag never
// clobbers a TOML-supplied setting.
func applyFlagOverrides(cfg *Config, flags *pflag.FlagSet) {
	if flags.Changed("db-path") {
		cfg.DBPath, _ = flags.GetString("db-path")
	}
	if flags.Changed("blockchain-db-path") {
		cfg.BlockchainDBPath, _ = flags.GetString("blockchain-db-path")
	}
	if flags.Changed("cert-path") {
		cfg.CertPath, _ = flags.GetString("cert-path")
	}
	if flags.Changed("key-path") {
		cfg.KeyPath, _ = flags.GetString("key-path")
	}
	if flags.Changed("rpc-base-url") {
		cfg.RPCBaseURL, _ = flags.GetString("rpc-base-url")
	}
	if flags.Changed("port") {
		p, _ := flags.GetUint16("port")
		cfg.Port = p
	}
	if flags.Changed("batch-size") {
		b, _ := flags.GetUint32("batch-size")
		cfg.BatchSize = b
	}
	if flags.Changed("genesis-height") {
		g, _ := flags.GetUint32("genesis-height")
		cfg.GenesisHeight = g
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("upstream-timeout") {
		cfg.UpstreamTimeout, _ = flags.GetDuration("upstream-timeout")
	}
	if flags.Changed("retry-attempts") {
		cfg.RetryAttempts, _ = flags.GetInt("retry-attempts")
	}
}

// BindFlags registers every recognized option on flags with its SPEC_FULL.md
// §6 default, so an unset flag reports the default rather than a zero value
// when Changed is false.
func BindFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String("db-path", "", "directory for the embedded coin/block store")
	flags.String("blockchain-db-path", "", "path to the upstream node's SQLite block store")
	flags.String("cert-path", "", "TLS client certificate for the upstream RPC")
	flags.String("key-path", "", "TLS client key for the upstream RPC")
	flags.String("rpc-base-url", "https://localhost:8555", "base URL of the upstream node RPC")
	flags.Uint16("port", d.Port, "HTTP query surface listen port")
	flags.Uint32("batch-size", d.BatchSize, "number of heights processed per sync batch")
	flags.Uint32("genesis-height", d.GenesisHeight, "height to resume from when the store is empty")
	flags.String("log-level", d.LogLevel, "zap log level: debug, info, warn, error")
	flags.String("metrics-addr", "", "optional separate listen address for /metrics")
	flags.Duration("upstream-timeout", d.UpstreamTimeout, "deadline for a single upstream SQL/RPC call")
	flags.Int("retry-attempts", d.RetryAttempts, "attempts before a transient upstream error is fatal")
}

// Validate checks the options the core cannot run without.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.BlockchainDBPath == "" {
		return fmt.Errorf("config: blockchain_db_path is required")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("config: batch_size must be positive")
	}
	return nil
}
