package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Optionsflow OptionsflowConfig `yaml:"optionsflow"`
	Input       InputConfig       `yaml:"input"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Processor   ProcessorConfig   `yaml:"processor"`
	Fetcher     FetcherConfig     `yaml:"fetcher"`
	Writer      WriterConfig      `yaml:"writer"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type OptionsflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type InputConfig struct {
	Delimiter  string `yaml:"delimiter"`
	DateFormat string `yaml:"date_format"`
	// SnapshotDate pins the quote date for layouts that carry none.
	SnapshotDate string `yaml:"snapshot_date"`
}

type AnalysisConfig struct {
	ATMTolerancePct      float64   `yaml:"atm_tolerance_pct"`
	DTEBucketEdges       []int     `yaml:"dte_bucket_edges"`
	Quantiles            []float64 `yaml:"quantiles"`
	OutlierIQRMultiplier float64   `yaml:"outlier_iqr_multiplier"`
	RequireGreeks        bool      `yaml:"require_greeks"`
}

type ProcessorConfig struct {
	MaxWorkers int `yaml:"max_workers"`
	ChunkSize  int `yaml:"chunk_size"`
}

type FetcherConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	UserAgent string          `yaml:"user_agent"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type WriterConfig struct {
	OutputDir    string             `yaml:"output_dir"`
	Formats      []string           `yaml:"formats"`
	Parquet      ParquetConfig      `yaml:"parquet"`
	Partitioning PartitioningConfig `yaml:"partitioning"`
}

type ParquetConfig struct {
	Compression string `yaml:"compression"`
}

type PartitioningConfig struct {
	Prefix     string `yaml:"prefix"`
	TimeFormat string `yaml:"time_format"`
}

type StorageConfig struct {
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Brokers   []string      `yaml:"brokers"`
	Topic     string        `yaml:"topic"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	// Textfile is the path of a Prometheus textfile written after each run.
	Textfile string `yaml:"textfile"`
}

type DashboardConfig struct {
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Supported output formats.
const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatParquet = "parquet"
	FormatXLSX    = "xlsx"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Optionsflow: OptionsflowConfig{Name: "optionsflow", Version: "1.0"},
		Input:       InputConfig{Delimiter: ","},
		Analysis: AnalysisConfig{
			ATMTolerancePct:      0.5,
			DTEBucketEdges:       []int{7, 30, 90},
			Quantiles:            []float64{0.25, 0.5, 0.75},
			OutlierIQRMultiplier: 1.5,
		},
		Processor: ProcessorConfig{MaxWorkers: 4, ChunkSize: 2048},
		Fetcher: FetcherConfig{
			Timeout:   30 * time.Second,
			UserAgent: "optionsflow/1.0",
			RateLimit: RateLimitConfig{RequestsPerSecond: 2, BurstSize: 1},
			Retry: RetryConfig{
				MaxAttempts:       3,
				BaseDelay:         500 * time.Millisecond,
				MaxDelay:          5 * time.Second,
				BackoffMultiplier: 2,
			},
		},
		Writer: WriterConfig{
			OutputDir:    "output",
			Formats:      []string{FormatCSV, FormatJSON},
			Parquet:      ParquetConfig{Compression: "snappy"},
			Partitioning: PartitioningConfig{Prefix: "options-summary", TimeFormat: "2006-01-02"},
		},
		Metrics:   MetricsConfig{CloudWatch: CloudWatchConfig{Namespace: "Optionsflow", Dashboard: "Optionsflow"}},
		Dashboard: DashboardConfig{Address: ":8080", RefreshInterval: 5 * time.Second, LogHistory: 200, MetricsHistory: 200},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides analysis parameters and S3 credentials from the
// environment.
func ApplyEnv(config *Config) error {
	if v := strings.TrimSpace(os.Getenv("OPTIONSFLOW_ATM_TOLERANCE_PCT")); v != "" {
		tol, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OPTIONSFLOW_ATM_TOLERANCE_PCT: %w", err)
		}
		config.Analysis.ATMTolerancePct = tol
	}
	if v := strings.TrimSpace(os.Getenv("OPTIONSFLOW_DTE_EDGES")); v != "" {
		edges, err := ParseEdges(v)
		if err != nil {
			return fmt.Errorf("OPTIONSFLOW_DTE_EDGES: %w", err)
		}
		config.Analysis.DTEBucketEdges = edges
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
	return nil
}

// ParseEdges parses a comma separated list of bucket edges such as "7,30,90".
func ParseEdges(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	edges := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket edge %q: %w", p, err)
		}
		edges = append(edges, n)
	}
	return edges, nil
}

// Validate checks a configuration built outside LoadConfig.
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.Optionsflow.Name == "" {
		return fmt.Errorf("optionsflow.name is required")
	}

	if cfg.Optionsflow.Version == "" {
		return fmt.Errorf("optionsflow.version is required")
	}

	if len([]rune(cfg.Input.Delimiter)) != 1 {
		return fmt.Errorf("input.delimiter must be a single character")
	}

	if cfg.Analysis.ATMTolerancePct < 0 || cfg.Analysis.ATMTolerancePct >= 100 {
		return fmt.Errorf("analysis.atm_tolerance_pct must be in [0, 100)")
	}

	if len(cfg.Analysis.DTEBucketEdges) == 0 {
		return fmt.Errorf("analysis.dte_bucket_edges must not be empty")
	}
	for i, e := range cfg.Analysis.DTEBucketEdges {
		if e < 0 {
			return fmt.Errorf("analysis.dte_bucket_edges must not be negative")
		}
		if i > 0 && e <= cfg.Analysis.DTEBucketEdges[i-1] {
			return fmt.Errorf("analysis.dte_bucket_edges must be strictly ascending")
		}
	}

	for _, q := range cfg.Analysis.Quantiles {
		if q <= 0 || q >= 1 {
			return fmt.Errorf("analysis.quantiles must be in (0, 1), got %v", q)
		}
	}

	if cfg.Analysis.OutlierIQRMultiplier <= 0 {
		return fmt.Errorf("analysis.outlier_iqr_multiplier must be greater than 0")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}
	if cfg.Processor.ChunkSize <= 0 {
		return fmt.Errorf("processor.chunk_size must be greater than 0")
	}

	if cfg.Fetcher.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("fetcher.rate_limit.requests_per_second must be greater than 0")
	}
	if cfg.Fetcher.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("fetcher.retry.max_attempts must be greater than 0")
	}

	for _, f := range cfg.Writer.Formats {
		switch f {
		case FormatCSV, FormatJSON, FormatParquet, FormatXLSX:
		default:
			return fmt.Errorf("writer.formats: unsupported format '%s'", f)
		}
	}
	switch strings.ToLower(cfg.Writer.Parquet.Compression) {
	case "", "none", "uncompressed", "snappy", "gzip", "zstd":
	default:
		return fmt.Errorf("writer.parquet.compression '%s' is not supported", cfg.Writer.Parquet.Compression)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Storage.Kafka.Enabled {
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers is required when Kafka is enabled")
		}
		if cfg.Storage.Kafka.Topic == "" {
			return fmt.Errorf("storage.kafka.topic is required when Kafka is enabled")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
