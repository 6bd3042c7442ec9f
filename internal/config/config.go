package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/noah-isme/metrix/internal/queue"
)

// Version is the release reported by --version. Overridden at build time with -ldflags.
var Version = "dev"

// ErrVersionRequested is returned by Load when --version was passed.
var ErrVersionRequested = errors.New("config: version requested")

const (
	DefaultPort         = 8000
	DefaultRedisURI     = "redis://localhost:6379/0"
	DefaultIntervalSecs = 5.0
)

// envKeys maps recognised environment variables to configuration keys.
// Command-line flags share the same keys so they override the environment.
var envKeys = map[string]string{
	"METRIX_PORT":                   "port",
	"METRIX_REDIS_URI":              "redis-uri",
	"METRIX_REFRESH_INTERVAL":       "interval",
	"METRIX_QUEUES":                 "queue",
	"METRIX_TIMEZONE":               "timezone",
	"METRIX_CORS_ALLOWED_ORIGINS":   "cors-allowed-origins",
	"OBS_LOG_FORMAT":                "log-format",
	"OBS_LOG_LEVEL":                 "log-level",
	"OBS_ENABLE_TRACING":            "tracing-enabled",
	"OBS_TRACING_EXPORTER":          "tracing-exporter",
	"OBS_OTLP_ENDPOINT":             "otlp-endpoint",
	"OBS_TRACING_SAMPLING_RATIO":    "tracing-sampling-ratio",
	"OBS_ENABLE_PPROF":              "pprof-enabled",
	"SECURE_PPROF_BASIC_AUTH_USER":  "pprof-user",
	"SECURE_PPROF_BASIC_AUTH_PASS":  "pprof-pass",
	"OBS_METRICS_BUCKETS_MS":        "metrics-buckets-ms",
	"HEALTH_READY_REDIS_TIMEOUT_MS": "ready-redis-timeout-ms",
}

// Config holds exporter configuration resolved from defaults, environment and flags.
type Config struct {
	Port            int           `validate:"min=1,max=65535"`
	RedisURI        string        `validate:"required,uri"`
	RefreshInterval time.Duration `validate:"gt=0"`
	Queues          []string      `validate:"min=1,dive,required"`
	Timezone        string        `validate:"required"`
	Location        *time.Location

	LogFormat string `validate:"oneof=json console text"`
	LogLevel  string

	TracingEnabled       bool
	TracingExporter      string
	OTLPEndpoint         string
	TracingSamplingRatio float64 `validate:"gte=0,lte=1"`

	PprofEnabled bool
	PprofUser    string
	PprofPass    string

	MetricsBucketsMS   string
	ReadyRedisTimeout  time.Duration
	CORSAllowedOrigins []string
}

// Load resolves configuration from an optional .env file, the environment and args.
// Flags take precedence over environment variables, which take precedence over defaults.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := NewFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if v, _ := fs.GetBool("version"); v {
		return nil, ErrVersionRequested
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	cfg, err := build(k)
	if err != nil {
		return nil, err
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc
	return cfg, nil
}

// NewFlagSet declares the command-line flags. Defaults double as configuration defaults.
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("metrix", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.BoolP("version", "V", false, "print version and exit")
	fs.IntP("port", "p", DefaultPort, "port to expose the metrics on")
	fs.StringP("redis-uri", "r", DefaultRedisURI, "URI of the Redis database to read metrics from")
	fs.Float64P("interval", "i", DefaultIntervalSecs, "refresh interval in seconds")
	fs.StringSliceP("queue", "q", queue.DefaultQueues, "queue to watch (repeatable)")
	fs.String("timezone", "Local", "IANA zone the job 'added' timestamps were written in")
	fs.String("log-format", "json", "log format: json or console")
	fs.String("log-level", "info", "log level")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Metrics for the job queue backend\n\nUsage of metrix:\n%s", fs.FlagUsages())
	}
	return fs
}

// HTTPAddr returns the address the metrics server should bind to.
func (c *Config) HTTPAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

func envKey(name string) string {
	return envKeys[name]
}

func build(k *koanf.Koanf) (*Config, error) {
	port, err := strconv.Atoi(strings.TrimSpace(k.String("port")))
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", k.String("port"), err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(k.String("interval")), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh interval %q: %w", k.String("interval"), err)
	}
	ratio, err := parseFloat(k.String("tracing-sampling-ratio"), 1.0)
	if err != nil {
		return nil, fmt.Errorf("invalid tracing sampling ratio: %w", err)
	}
	readyTimeout, err := parseFloat(k.String("ready-redis-timeout-ms"), 300)
	if err != nil {
		return nil, fmt.Errorf("invalid readiness timeout: %w", err)
	}

	return &Config{
		Port:                 port,
		RedisURI:             strings.TrimSpace(k.String("redis-uri")),
		RefreshInterval:      time.Duration(secs * float64(time.Second)),
		Queues:               stringList(k.Get("queue")),
		Timezone:             valueOrDefault(k.String("timezone"), "Local"),
		LogFormat:            strings.ToLower(valueOrDefault(k.String("log-format"), "json")),
		LogLevel:             valueOrDefault(k.String("log-level"), "info"),
		TracingEnabled:       parseBool(k.String("tracing-enabled")),
		TracingExporter:      valueOrDefault(k.String("tracing-exporter"), "otlp"),
		OTLPEndpoint:         strings.TrimSpace(k.String("otlp-endpoint")),
		TracingSamplingRatio: ratio,
		PprofEnabled:         parseBool(k.String("pprof-enabled")),
		PprofUser:            strings.TrimSpace(k.String("pprof-user")),
		PprofPass:            strings.TrimSpace(k.String("pprof-pass")),
		MetricsBucketsMS:     k.String("metrics-buckets-ms"),
		ReadyRedisTimeout:    time.Duration(readyTimeout * float64(time.Millisecond)),
		CORSAllowedOrigins:   splitAndTrim(k.String("cors-allowed-origins")),
	}, nil
}

func stringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return trimAll(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return trimAll(out)
	case string:
		return splitAndTrim(val)
	default:
		return nil
	}
}

func trimAll(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	return trimAll(strings.Split(value, ","))
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseFloat(value string, fallback float64) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
// An empty value unsets the variable for the duration of the call.
func LoadForTests(env map[string]string, args []string) (*Config, error) {
	original := make(map[string]*string, len(env))
	for key := range env {
		if prev, ok := os.LookupEnv(key); ok {
			original[key] = &prev
		} else {
			original[key] = nil
		}
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load(args)
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]*string) error {
	var errs []string
	for key, value := range values {
		var err error
		if value == nil {
			err = os.Unsetenv(key)
		} else {
			err = os.Setenv(key, *value)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
