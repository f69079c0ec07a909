package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/congo-pay/note_wallet/internal/ledger"
)

const (
	defaultAppName          = "NoteWallet"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultNodeTimeout      = 30 * time.Second
	defaultLockTTL          = 60 * time.Second
	defaultBatchConcurrency = 4
	defaultSyncAttempts     = 2
	defaultTxRatePerMin     = 60
	defaultNoteImportPaths  = "./note_1.mno"
	defaultCORSOrigins      = "*"
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
	configFileEnvVar        = "CONFIG_FILE"
)

// Config captures application runtime configuration loaded from environment
// variables, optionally layered over a YAML file named by CONFIG_FILE.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// NodeURL is the ledger node RPC endpoint. Empty in development runs an
	// embedded devnet.
	NodeURL     string
	NodeTimeout time.Duration
	NodeRPS     float64

	FaucetID         ledger.AccountID
	DefaultAccountID *ledger.AccountID
	NoteImportPaths  []string

	BatchConcurrency       int
	LockTTL                time.Duration
	PostSubmitSyncAttempts int
	TxRateLimitPerMin      int
	CORSAllowOrigins       string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	src := source{}
	if path := os.Getenv(configFileEnvVar); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}
	return load(src)
}

func load(src source) (Config, error) {
	cfg := Config{
		AppName:          src.get("APP_NAME", defaultAppName),
		AppEnv:           src.get("APP_ENV", defaultAppEnv),
		Port:             src.get("PORT", defaultPort),
		LogLevel:         strings.ToLower(src.get("LOG_LEVEL", defaultLogLevel)),
		LogFormat:        strings.ToLower(src.get("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:      src.get("DATABASE_URL", ""),
		RedisURL:         src.get("REDIS_URL", ""),
		NodeURL:          src.get("NODE_URL", ""),
		CORSAllowOrigins: src.get("CORS_ALLOW_ORIGINS", defaultCORSOrigins),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
	}

	var err error
	if cfg.ShutdownPeriod, err = src.secondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = src.secondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.NodeTimeout, err = src.duration("NODE_TIMEOUT", defaultNodeTimeout); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = src.duration("LOCK_TTL", defaultLockTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL <= cfg.NodeTimeout {
		return Config{}, fmt.Errorf("LOCK_TTL (%s) must exceed NODE_TIMEOUT (%s)", cfg.LockTTL, cfg.NodeTimeout)
	}
	if cfg.BatchConcurrency, err = src.nonNegativeInt("BATCH_CONCURRENCY", defaultBatchConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.PostSubmitSyncAttempts, err = src.nonNegativeInt("POST_SUBMIT_SYNC_ATTEMPTS", defaultSyncAttempts); err != nil {
		return Config{}, err
	}
	if cfg.TxRateLimitPerMin, err = src.nonNegativeInt("TX_RATE_LIMIT_PER_MIN", defaultTxRatePerMin); err != nil {
		return Config{}, err
	}
	if v := src.get("NODE_RPS", ""); v != "" {
		if cfg.NodeRPS, err = strconv.ParseFloat(v, 64); err != nil || cfg.NodeRPS < 0 {
			return Config{}, fmt.Errorf("invalid NODE_RPS: %q", v)
		}
	}

	faucet := src.get("FAUCET_ID", "")
	if faucet == "" {
		return Config{}, fmt.Errorf("FAUCET_ID must be set")
	}
	if cfg.FaucetID, err = ledger.ParseAccountID(faucet); err != nil {
		return Config{}, fmt.Errorf("invalid FAUCET_ID: %w", err)
	}
	if v := src.get("DEFAULT_ACCOUNT_ID", ""); v != "" {
		id, err := ledger.ParseAccountID(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DEFAULT_ACCOUNT_ID: %w", err)
		}
		cfg.DefaultAccountID = &id
	}
	for _, p := range strings.Split(src.get("NOTE_IMPORT_PATHS", defaultNoteImportPaths), ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.NoteImportPaths = append(cfg.NoteImportPaths, p)
		}
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.NodeURL == "" {
			return Config{}, fmt.Errorf("NODE_URL must be set")
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDevelopment reports whether the service runs with development fallbacks.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// source resolves keys from the environment first, then the YAML file.
type source struct {
	file   map[string]string
	lookup func(string) (string, bool)
}

func (s source) get(key, fallback string) string {
	lookup := s.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return fallback
}

func (s source) duration(key string, fallback time.Duration) (time.Duration, error) {
	v := s.get(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func (s source) secondsOrDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := s.get(secondsKey, ""); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return s.duration(durationKey, fallback)
}

func (s source) nonNegativeInt(key string, fallback int) (int, error) {
	v := s.get(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

// readFile loads a flat YAML mapping of the same keys as the environment.
// Sequences are joined with commas.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			out[strings.ToUpper(key)] = strings.Join(parts, ",")
		default:
			out[strings.ToUpper(key)] = fmt.Sprint(v)
		}
	}
	return out, nil
}
