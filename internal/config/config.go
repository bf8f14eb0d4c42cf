package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"
)

// Output formats accepted in OUTPUT_FORMATS.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

const dateLayout = "2006-01-02"

// Config holds all service settings, populated from an optional YAML file
// and environment variables. Environment variables win.
type Config struct {
	ReportsDir          string
	StatusesDir         string
	OutputDir           string
	OutputFormats       []string
	LedgerPath          string
	ExcludedStatusYears []string

	DropColumnPrefixes  []string
	EndDate             time.Time // exclusive; zero keeps every date
	ExpandIncidentSpans bool

	ParseWorkers   int
	ParseCacheSize int
	RunInterval    time.Duration // zero runs once and exits

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
	BatchSize      int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// fileConfig is the CONFIG_FILE schema. Empty fields fall through to defaults.
type fileConfig struct {
	Input struct {
		ReportsDir          string   `yaml:"reports_dir"`
		StatusesDir         string   `yaml:"statuses_dir"`
		ExcludedStatusYears []string `yaml:"excluded_status_years"`
	} `yaml:"input"`
	Output struct {
		Dir        string   `yaml:"dir"`
		Formats    []string `yaml:"formats"`
		LedgerPath string   `yaml:"ledger_path"`
	} `yaml:"output"`
	Reconcile struct {
		DropColumnPrefixes  []string `yaml:"drop_column_prefixes"`
		EndDate             string   `yaml:"end_date"`
		ExpandIncidentSpans *bool    `yaml:"expand_incident_spans"`
		ParseWorkers        int      `yaml:"parse_workers"`
		ParseCacheSize      int      `yaml:"parse_cache_size"`
		RunInterval         string   `yaml:"run_interval"`
	} `yaml:"reconcile"`
	Kafka struct {
		Enabled   *bool    `yaml:"enabled"`
		Brokers   []string `yaml:"brokers"`
		SinkTopic string   `yaml:"sink_topic"`
	} `yaml:"kafka"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	HTTPAddr string `yaml:"http_addr"`
}

// DefaultDropColumnPrefixes are the sparse advisory columns removed from the
// modeling dataset.
var DefaultDropColumnPrefixes = []string{"PWH_", "PWG_", "CWWH_", "CWWG_", "CWE_", "AREG_"}

// Load reads configuration from CONFIG_FILE (when set) and environment
// variables, applying defaults where unset.
func Load() (*Config, error) {
	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse CONFIG_FILE: %w", err)
		}
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ReportsDir:          sharedcfg.EnvOrDefault("REPORTS_DIR", orDefault(file.Input.ReportsDir, "data/reports")),
		StatusesDir:         sharedcfg.EnvOrDefault("STATUSES_DIR", orDefault(file.Input.StatusesDir, "data/statuses")),
		OutputDir:           sharedcfg.EnvOrDefault("OUTPUT_DIR", orDefault(file.Output.Dir, "data/output")),
		LedgerPath:          sharedcfg.EnvOrDefault("LEDGER_PATH", file.Output.LedgerPath),
		OutputFormats:       listOrDefault("OUTPUT_FORMATS", file.Output.Formats, []string{FormatCSV, FormatParquet}),
		ExcludedStatusYears: listOrDefault("EXCLUDED_STATUS_YEARS", file.Input.ExcludedStatusYears, []string{"2019"}),
		DropColumnPrefixes:  listOrDefault("DROP_COLUMN_PREFIXES", file.Reconcile.DropColumnPrefixes, DefaultDropColumnPrefixes),
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", orDefault(strings.Join(file.Kafka.Brokers, ","), "localhost:9092"))),
		KafkaSinkTopic:      sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", orDefault(file.Kafka.SinkTopic, "capacity-forecast-reconciled")),
		BatchSize:           batchSize,
		HTTPAddr:            sharedcfg.EnvOrDefault("HTTP_ADDR", orDefault(file.HTTPAddr, ":8080")),
		LogLevel:            sharedcfg.EnvOrDefault("LOG_LEVEL", orDefault(file.Logging.Level, "info")),
		LogFormat:           sharedcfg.EnvOrDefault("LOG_FORMAT", orDefault(file.Logging.Format, "json")),
		ShutdownTimeout:     shutdownTimeout,
	}

	if cfg.EndDate, err = parseEndDate(sharedcfg.EnvOrDefault("END_DATE", file.Reconcile.EndDate)); err != nil {
		return nil, err
	}
	if cfg.ExpandIncidentSpans, err = parseBool("EXPAND_INCIDENT_SPANS", file.Reconcile.ExpandIncidentSpans, false); err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", file.Kafka.Enabled, false); err != nil {
		return nil, err
	}
	if cfg.ParseWorkers, err = parsePositiveInt("PARSE_WORKERS", file.Reconcile.ParseWorkers, 4); err != nil {
		return nil, err
	}
	if cfg.ParseCacheSize, err = parsePositiveInt("PARSE_CACHE_SIZE", file.Reconcile.ParseCacheSize, 512); err != nil {
		return nil, err
	}
	if cfg.RunInterval, err = parseRunInterval(sharedcfg.EnvOrDefault("RUN_INTERVAL", orDefault(file.Reconcile.RunInterval, "0s"))); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReportsDir == "" {
		return errors.New("REPORTS_DIR is required")
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	for _, f := range c.OutputFormats {
		if f != FormatCSV && f != FormatParquet {
			return fmt.Errorf("invalid OUTPUT_FORMATS entry %q", f)
		}
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaSinkTopic == "" {
			return errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	return nil
}

// WantsFormat reports whether the given output format is enabled.
func (c *Config) WantsFormat(format string) bool {
	for _, f := range c.OutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func listOrDefault(key string, fromFile, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		return splitList(v)
	}
	if len(fromFile) > 0 {
		return fromFile
	}
	return append([]string(nil), def...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(key string, fromFile *bool, def bool) (bool, error) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %w", key, err)
		}
		return b, nil
	}
	if fromFile != nil {
		return *fromFile, nil
	}
	return def, nil
}

func parsePositiveInt(key string, fromFile, def int) (int, error) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
		}
		return n, nil
	}
	if fromFile < 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	if fromFile > 0 {
		return fromFile, nil
	}
	return def, nil
}

func parseRunInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.New("invalid RUN_INTERVAL")
	}
	return d, nil
}

func parseEndDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid END_DATE %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
