// Package config loads service configuration from PASSD_* environment
// variables.
//
// Optional values that fail to parse are logged and replaced by their
// defaults. Values that would leave the service unable to run (a malformed
// boolean switch, a missing credential, inconsistent step bounds) are returned
// as errors naming the variable.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/auth"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/passes"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/propagation"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/stream"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tracking"
)

const prefix = "PASSD_"

// Cache backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// DefaultSourceURL is the CelesTrak active-satellites group in 3-line format.
const DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle"

// Config is the complete service configuration.
type Config struct {
	HTTP        HTTPConfig
	Log         LogConfig
	TLE         TLEConfig
	Pass        passes.Config
	Groundtrack GroundtrackConfig
	Propagation PropagationConfig
	NATS        NATSConfig
	Auth        auth.Config
	Stream      stream.Config
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	TrustProxy      bool
	MaxPassWindow   time.Duration
	MaxPassIDs      int
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  slog.Level
	Format string // json or text
}

// TLEConfig configures catalog acquisition and persistence.
type TLEConfig struct {
	SourceURL         string
	ExtraURLs         []string
	FetchTimeout      time.Duration
	CacheTTL          time.Duration
	CacheBackend      string
	CacheDir          string
	MaxFiles          int
	PostgresURL       string
	RefreshPeriod     time.Duration
	RefreshMaxRetries int
}

// GroundtrackConfig bounds groundtrack requests.
type GroundtrackConfig struct {
	Step      time.Duration
	MinStep   time.Duration
	MaxStep   time.Duration
	MaxPoints int
}

// PropagationConfig configures the SGP4 adapter.
type PropagationConfig struct {
	MaxEpochAge time.Duration
}

// NATSConfig enables refresh notifications when URL is set.
type NATSConfig struct {
	URL     string
	Subject string
}

// Default returns the configuration used when no variables are set.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			MaxPassWindow:   10 * 24 * time.Hour,
			MaxPassIDs:      100,
		},
		Log: LogConfig{
			Level:  slog.LevelInfo,
			Format: "json",
		},
		TLE: TLEConfig{
			SourceURL:         DefaultSourceURL,
			FetchTimeout:      30 * time.Second,
			CacheTTL:          tle.DefaultTTL,
			CacheBackend:      BackendFile,
			CacheDir:          "/tmp/passd/tle",
			MaxFiles:          5,
			RefreshPeriod:     6 * time.Hour,
			RefreshMaxRetries: 5,
		},
		Pass: passes.Config{
			Step:        passes.DefaultStep,
			Interpolate: true,
			Workers:     runtime.NumCPU(),
		},
		Groundtrack: GroundtrackConfig{
			Step:      30 * time.Second,
			MinStep:   time.Second,
			MaxStep:   300 * time.Second,
			MaxPoints: tracking.DefaultMaxPoints,
		},
		Propagation: PropagationConfig{
			MaxEpochAge: propagation.DefaultMaxEpochAge,
		},
		NATS: NATSConfig{
			Subject: "catalog.refreshed",
		},
		Stream: stream.Config{
			MaxConcurrentPerIP: 10,
			MaxPoints:          stream.DefaultMaxPoints,
			BatchSize:          stream.DefaultBatchSize,
		},
	}
}

// Load reads every section from the environment and validates the result.
func Load(logger *slog.Logger) (*Config, error) {
	cfg := Default()
	l := loader{logger: logger}

	l.loadHTTP(&cfg.HTTP)
	l.loadLog(&cfg.Log)
	l.loadTLE(&cfg.TLE)
	l.loadPass(&cfg.Pass)
	l.loadGroundtrack(&cfg.Groundtrack)
	cfg.Propagation.MaxEpochAge = l.duration("PROPAGATION_MAX_EPOCH_AGE", cfg.Propagation.MaxEpochAge, true)
	l.loadNATS(&cfg.NATS)
	l.loadStream(&cfg.Stream)
	l.loadAuth(&cfg.Auth)

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.TLE.CacheTTL <= 0 {
		errs = append(errs, errors.New(prefix+"TLE_CACHE_TTL must be positive"))
	}
	if c.TLE.SourceURL == "" {
		errs = append(errs, errors.New(prefix+"TLE_SOURCE_URL must not be empty"))
	}
	switch c.TLE.CacheBackend {
	case BackendFile:
	case BackendPostgres:
		if c.TLE.PostgresURL == "" {
			errs = append(errs, errors.New(prefix+"POSTGRES_URL is required when the postgres cache backend is selected"))
		}
	default:
		errs = append(errs, fmt.Errorf("%sTLE_CACHE_BACKEND must be %q or %q, got %q", prefix, BackendFile, BackendPostgres, c.TLE.CacheBackend))
	}
	if c.Pass.Step <= 0 {
		errs = append(errs, errors.New(prefix+"PASS_STEP must be positive"))
	}
	g := c.Groundtrack
	if g.MinStep <= 0 || g.MinStep > g.Step || g.Step > g.MaxStep {
		errs = append(errs, fmt.Errorf("groundtrack steps must satisfy 0 < min (%s) <= default (%s) <= max (%s)", g.MinStep, g.Step, g.MaxStep))
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		errs = append(errs, errors.New(prefix+"AUTH_TOKEN is required when auth is enabled"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger for cfg.
func NewLogger(cfg LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

type loader struct {
	logger *slog.Logger
	errs   []error
}

func (l *loader) loadHTTP(cfg *HTTPConfig) {
	if v := os.Getenv(prefix + "HTTP_ADDR"); v != "" {
		cfg.Addr = v
	}
	cfg.ShutdownTimeout = l.duration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout, false)
	cfg.CORSOrigins = list(os.Getenv(prefix + "CORS_ORIGINS"))
	cfg.TrustProxy = l.boolean("TRUST_PROXY", cfg.TrustProxy)
	cfg.MaxPassWindow = l.duration("PASS_MAX_WINDOW", cfg.MaxPassWindow, false)
	cfg.MaxPassIDs = l.integer("PASS_MAX_IDS", cfg.MaxPassIDs, 1)

	l.logger.Info("http config",
		"addr", cfg.Addr,
		"shutdown_timeout_seconds", cfg.ShutdownTimeout.Seconds(),
		"cors_origins", cfg.CORSOrigins,
		"trust_proxy", cfg.TrustProxy,
		"max_pass_window_hours", cfg.MaxPassWindow.Hours(),
		"max_pass_ids", cfg.MaxPassIDs,
	)
}

func (l *loader) loadLog(cfg *LogConfig) {
	if v := os.Getenv(prefix + "LOG_LEVEL"); v != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err != nil {
			l.logger.Warn("invalid "+prefix+"LOG_LEVEL value, using default", "value", v, "default", cfg.Level.String())
		} else {
			cfg.Level = lvl
		}
	}
	if v := os.Getenv(prefix + "LOG_FORMAT"); v != "" {
		switch v = strings.ToLower(v); v {
		case "json", "text":
			cfg.Format = v
		default:
			l.logger.Warn("invalid "+prefix+"LOG_FORMAT value, using default", "value", v, "default", cfg.Format)
		}
	}
}

func (l *loader) loadTLE(cfg *TLEConfig) {
	if v := os.Getenv(prefix + "TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}
	if v := os.Getenv(prefix + "TLE_EXTRA_URLS"); v != "" {
		cfg.ExtraURLs = list(v)
	}
	cfg.FetchTimeout = l.duration("TLE_FETCH_TIMEOUT", cfg.FetchTimeout, false)
	cfg.CacheTTL = l.duration("TLE_CACHE_TTL", cfg.CacheTTL, false)
	if v := os.Getenv(prefix + "TLE_CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = strings.ToLower(v)
	}
	if v := os.Getenv(prefix + "TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	cfg.MaxFiles = l.integer("TLE_CACHE_MAX_FILES", cfg.MaxFiles, 1)
	cfg.PostgresURL = os.Getenv(prefix + "POSTGRES_URL")
	cfg.RefreshPeriod = l.duration("REFRESH_PERIOD", cfg.RefreshPeriod, false)
	cfg.RefreshMaxRetries = l.integer("REFRESH_MAX_RETRIES", cfg.RefreshMaxRetries, 0)

	l.logger.Info("TLE config",
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraURLs,
		"cache_backend", cfg.CacheBackend,
		"cache_dir", cfg.CacheDir,
		"cache_ttl_seconds", cfg.CacheTTL.Seconds(),
		"refresh_period_seconds", cfg.RefreshPeriod.Seconds(),
		"refresh_max_retries", cfg.RefreshMaxRetries,
	)
}

func (l *loader) loadPass(cfg *passes.Config) {
	cfg.Step = l.duration("PASS_STEP", cfg.Step, false)
	cfg.Interpolate = l.boolean("PASS_INTERPOLATE", cfg.Interpolate)
	cfg.Workers = l.integer("PASS_WORKERS", cfg.Workers, 1)

	l.logger.Info("pass config",
		"step_seconds", cfg.Step.Seconds(),
		"interpolate", cfg.Interpolate,
		"workers", cfg.Workers,
	)
}

func (l *loader) loadGroundtrack(cfg *GroundtrackConfig) {
	cfg.Step = l.duration("GROUNDTRACK_STEP", cfg.Step, false)
	cfg.MinStep = l.duration("GROUNDTRACK_MIN_STEP", cfg.MinStep, false)
	cfg.MaxStep = l.duration("GROUNDTRACK_MAX_STEP", cfg.MaxStep, false)
	cfg.MaxPoints = l.integer("GROUNDTRACK_MAX_POINTS", cfg.MaxPoints, 1)

	l.logger.Info("groundtrack config",
		"step_seconds", cfg.Step.Seconds(),
		"min_step_seconds", cfg.MinStep.Seconds(),
		"max_step_seconds", cfg.MaxStep.Seconds(),
		"max_points", cfg.MaxPoints,
	)
}

func (l *loader) loadNATS(cfg *NATSConfig) {
	cfg.URL = os.Getenv(prefix + "NATS_URL")
	if v := os.Getenv(prefix + "NATS_SUBJECT"); v != "" {
		cfg.Subject = v
	}
	if cfg.URL != "" {
		l.logger.Info("nats config", "subject", cfg.Subject)
	}
}

func (l *loader) loadStream(cfg *stream.Config) {
	cfg.MaxConcurrentPerIP = l.integer("STREAM_MAX_CONCURRENT", cfg.MaxConcurrentPerIP, 1)
	cfg.MaxPoints = l.integer("STREAM_MAX_POINTS", cfg.MaxPoints, 1)
	cfg.BatchSize = l.integer("STREAM_BATCH_SIZE", cfg.BatchSize, 1)

	l.logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_points", cfg.MaxPoints,
		"batch_size", cfg.BatchSize,
	)
}

func (l *loader) loadAuth(cfg *auth.Config) {
	if v := os.Getenv(prefix + "AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			l.errs = append(l.errs, errors.New(prefix+"AUTH_ENABLED must be a boolean value (true/false/1/0)"))
			return
		}
		cfg.Enabled = enabled
	}
	if cfg.Enabled {
		cfg.Token = os.Getenv(prefix + "AUTH_TOKEN")
		l.logger.Info("auth enabled")
	}
}

// duration accepts Go duration syntax ("90s", "6h") or a plain number of
// seconds. zeroOK permits "0".
func (l *loader) duration(name string, def time.Duration, zeroOK bool) time.Duration {
	v := os.Getenv(prefix + name)
	if v == "" {
		return def
	}
	d, err := parseDuration(v)
	if err != nil || d < 0 || (d == 0 && !zeroOK) {
		l.logger.Warn("invalid "+prefix+name+" value, using default", "value", v, "default", def.String())
		return def
	}
	return d
}

func (l *loader) integer(name string, def, minimum int) int {
	v := os.Getenv(prefix + name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minimum {
		l.logger.Warn("invalid "+prefix+name+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

func (l *loader) boolean(name string, def bool) bool {
	v := os.Getenv(prefix + name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.logger.Warn("invalid "+prefix+name+" value, using default", "value", v, "default", def)
		return def
	}
	return b
}

func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func list(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
