// Package config loads the daemon's configuration from environment
// variables, with an optional TOML file layered underneath for values not
// set in the environment. It is grounded on rivine's pkg/daemon/config.go:
// a single struct of configurable variables, a DefaultConfig constructor,
// and a RegisterAsFlags method so cmd/oracled can let pflag override any
// of it, the same three-piece shape rivine's own config package uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/spf13/pflag"
)

// Config holds every environment-style variable named in spec.md §6.
type Config struct {
	HeliusAPIKey        string
	HeliusBaseURL       string
	HeliusWebhookSecret string
	HeliusRatePerSecond float64
	HeliusBurst         int
	TokenMint           string
	TokenSymbol         string
	TokenDecimals       int
	TokenLaunchTs       time.Time
	OGEarlyWindowDays   int
	OGHoldThresholdDays int
	MinBalance          string // decimal string, parsed to types.Amount by the caller

	Port          int
	CORSOrigins   string
	AdminKey      string

	KGlobalGated      bool
	KGlobalMinBalance string
	KGlobalFailClosed bool

	Maintenance bool
	Production  bool // NODE_ENV-equivalent production flag

	DataDir              string
	BackupInterval       time.Duration
	BackupRetentionCount int

	LogLevel  string
	LogFormat string

	WSConnCapPerKey    int
	WSHeartbeatInterval time.Duration
	WSPongTimeout      time.Duration

	EcosystemSuffixes []string

	WalletScorerWorkers    int
	TokenScorerParallelism int
	TokenScorerTopN        int

	PullSyncInterval time.Duration
	PullBatchLimit   int
}

// Default returns the baseline configuration, matching the defaults named
// throughout spec.md §4 and §6.
func Default() Config {
	return Config{
		HeliusBaseURL:          "https://api.helius.xyz",
		HeliusRatePerSecond:    5,
		HeliusBurst:            10,
		TokenSymbol:            "TOKEN",
		TokenDecimals:          9,
		OGEarlyWindowDays:      7,
		OGHoldThresholdDays:    30,
		MinBalance:             "0",
		Port:                   8080,
		CORSOrigins:            "",
		KGlobalGated:           true,
		KGlobalFailClosed:      true,
		DataDir:                "./data",
		BackupInterval:         6 * time.Hour,
		BackupRetentionCount:   5,
		LogLevel:               "info",
		LogFormat:              "text",
		WSConnCapPerKey:        5,
		WSHeartbeatInterval:    30 * time.Second,
		WSPongTimeout:          60 * time.Second,
		WalletScorerWorkers:    3,
		TokenScorerParallelism: 5,
		TokenScorerTopN:        50,
		PullSyncInterval:       300 * time.Second,
		PullBatchLimit:         200,
	}
}

// LoadEnv layers process environment variables onto cfg, following
// spec.md §6's enumeration. A TOML file at tomlPath (if tomlPath is
// non-empty and the file exists) is applied first, so environment
// variables always take precedence — the inverse of a typical override
// chain, matching "env wins" being the more common production deployment
// expectation for this kind of daemon.
func LoadEnv(tomlPath string) (Config, error) {
	cfg := Default()
	if tomlPath != "" {
		if _, err := os.Stat(tomlPath); err == nil {
			if err := applyTOML(&cfg, tomlPath); err != nil {
				return Config{}, fmt.Errorf("config: %w", err)
			}
		}
	}

	str(&cfg.HeliusAPIKey, "HELIUS_API_KEY")
	str(&cfg.HeliusBaseURL, "HELIUS_BASE_URL")
	str(&cfg.HeliusWebhookSecret, "HELIUS_WEBHOOK_SECRET")
	if v := os.Getenv("HELIUS_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.HeliusRatePerSecond = f
		}
	}
	intv(&cfg.HeliusBurst, "HELIUS_BURST")
	str(&cfg.TokenMint, "TOKEN_MINT")
	str(&cfg.TokenSymbol, "TOKEN_SYMBOL")
	intv(&cfg.TokenDecimals, "TOKEN_DECIMALS")
	if v := os.Getenv("TOKEN_LAUNCH_TS"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TokenLaunchTs = time.Unix(unix, 0).UTC()
		}
	}
	intv(&cfg.OGEarlyWindowDays, "OG_EARLY_WINDOW")
	intv(&cfg.OGHoldThresholdDays, "OG_HOLD_THRESHOLD")
	str(&cfg.MinBalance, "MIN_BALANCE")
	intv(&cfg.Port, "PORT")
	str(&cfg.CORSOrigins, "CORS_ORIGINS")
	str(&cfg.AdminKey, "ADMIN_KEY")
	boolv(&cfg.KGlobalGated, "K_GLOBAL_GATED")
	str(&cfg.KGlobalMinBalance, "K_GLOBAL_MIN_BALANCE")
	boolv(&cfg.KGlobalFailClosed, "K_GLOBAL_FAIL_CLOSED")
	boolv(&cfg.Maintenance, "MAINTENANCE")
	boolv(&cfg.Production, "NODE_ENV_PRODUCTION")
	str(&cfg.DataDir, "DATA_DIR")
	durv(&cfg.BackupInterval, "BACKUP_INTERVAL")
	intv(&cfg.BackupRetentionCount, "BACKUP_RETENTION_COUNT")
	str(&cfg.LogLevel, "LOG_LEVEL")
	str(&cfg.LogFormat, "LOG_FORMAT")
	intv(&cfg.WSConnCapPerKey, "WS_CONN_CAP_PER_KEY")
	durv(&cfg.WSHeartbeatInterval, "WS_HEARTBEAT_INTERVAL")
	durv(&cfg.WSPongTimeout, "WS_PONG_TIMEOUT")
	if v := os.Getenv("ECOSYSTEM_SUFFIXES"); v != "" {
		cfg.EcosystemSuffixes = splitCSV(v)
	}
	intv(&cfg.WalletScorerWorkers, "WALLET_SCORER_WORKERS")
	intv(&cfg.TokenScorerParallelism, "TOKEN_SCORER_PARALLELISM")
	intv(&cfg.TokenScorerTopN, "TOKEN_SCORER_TOP_N")

	return cfg, Validate(cfg)
}

// Validate enforces the fatal-misconfiguration rules from spec.md §7:
// in production, an unset inbound webhook secret must fail fast rather
// than silently accept unsigned traffic.
func Validate(cfg Config) error {
	if cfg.Production && cfg.HeliusWebhookSecret == "" {
		return fmt.Errorf("config: HELIUS_WEBHOOK_SECRET must be set in production")
	}
	if cfg.TokenMint == "" {
		return fmt.Errorf("config: TOKEN_MINT is required")
	}
	return nil
}

// RegisterAsFlags lets cmd/oracled's cobra command override any of these
// with CLI flags, the same RegisterAsFlags contract rivine's daemon config
// exposes.
func (cfg *Config) RegisterAsFlags(flagSet *pflag.FlagSet) {
	flagSet.IntVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP port to listen on")
	flagSet.StringVarP(&cfg.DataDir, "data-dir", "d", cfg.DataDir, "directory for persistent state and backups")
	flagSet.StringVarP(&cfg.LogLevel, "log-level", "", cfg.LogLevel, "log level (debug, info, warn, error)")
	flagSet.StringVarP(&cfg.LogFormat, "log-format", "", cfg.LogFormat, "log format (text or json)")
	flagSet.BoolVarP(&cfg.Maintenance, "maintenance", "", cfg.Maintenance, "start in maintenance mode")
}

func applyTOML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return toml.Unmarshal(data, cfg)
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intv(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func boolv(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func durv(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
