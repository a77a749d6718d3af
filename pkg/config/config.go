// Package config handles matrixgraph configuration via YAML files and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--data-dir, --graph, etc.)
//  2. Environment variables (MATRIXGRAPH_*)
//  3. Config file (config.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	fmt.Println(cfg.Database.DataDir)
//
// Environment Variables (all use MATRIXGRAPH_ prefix):
//
// Database:
//   - MATRIXGRAPH_DATA_DIR="./data"
//   - MATRIXGRAPH_GRAPH="default"
//   - MATRIXGRAPH_IN_MEMORY=false
//   - MATRIXGRAPH_SYNC_WRITES=false
//   - MATRIXGRAPH_ENCRYPTION_PASSWORD=""
//   - MATRIXGRAPH_ENTITIES_PER_KEY=100000
//
// Index:
//   - MATRIXGRAPH_INDEX_BATCH_SIZE=10000
//   - MATRIXGRAPH_INDEX_WORKERS=2
//
// Execution:
//   - MATRIXGRAPH_RECORD_CAP=16
//   - MATRIXGRAPH_CSV_FETCH_TIMEOUT="30s"
//
// Logging:
//   - MATRIXGRAPH_LOG_LEVEL="INFO"
//   - MATRIXGRAPH_LOG_FORMAT="text"
//
// Metrics:
//   - MATRIXGRAPH_METRICS_ENABLED=true
//   - MATRIXGRAPH_METRICS_ADDRESS=":9464"
//
// Tracing:
//   - MATRIXGRAPH_TRACE_EXPORTER="none" (none, stdout, otlp)
//   - MATRIXGRAPH_OTLP_ENDPOINT="localhost:4317"
//   - MATRIXGRAPH_OTLP_INSECURE=true
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "MATRIXGRAPH_"

// Config holds all matrixgraph configuration.
//
// Configuration is organized into sections:
//   - Database: snapshot store location and encoding
//   - Index: background index population
//   - Execution: execution plan settings
//   - Logging: log level and format
//   - Metrics: Prometheus endpoint
//   - Tracing: OpenTelemetry span export
type Config struct {
	Database  DatabaseConfig
	Index     IndexConfig
	Execution ExecutionConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Tracing   TracingConfig
}

// DatabaseConfig holds snapshot store settings.
type DatabaseConfig struct {
	// DataDir is the badger directory for graph snapshots
	DataDir string
	// Graph is the graph name used when a command is not given one
	Graph string
	// InMemory keeps the store in memory only (tests, scratch imports)
	InMemory bool
	// SyncWrites makes every snapshot write durable before returning
	SyncWrites bool
	// EncryptionPassword enables encryption at rest when non-empty
	EncryptionPassword string
	// EntitiesPerKey bounds the entities encoded into one virtual key
	EntitiesPerKey uint64
}

// IndexConfig holds index population settings.
type IndexConfig struct {
	// BatchSize is the number of entities indexed per lock hold
	BatchSize int
	// Workers is the number of concurrent population workers
	Workers int
}

// ExecutionConfig holds execution plan settings.
type ExecutionConfig struct {
	// RecordCap is the number of records a traversal batches per matrix multiply
	RecordCap int
	// CSVFetchTimeout bounds remote LOAD CSV requests
	CSVFetchTimeout time.Duration
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (DEBUG, INFO, WARN, ERROR)
	Level string
	// Format (json, text)
	Format string
	// Output path (stdout, stderr, or file path)
	Output string
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool
	Address string
}

// TracingConfig selects where OpenTelemetry spans go.
type TracingConfig struct {
	// Exporter is none, stdout (pretty JSON on stderr) or otlp (gRPC)
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// YAMLConfig represents the YAML configuration file structure.
type YAMLConfig struct {
	Database struct {
		DataDir            string `yaml:"data_dir"`
		Graph              string `yaml:"graph"`
		InMemory           bool   `yaml:"in_memory"`
		SyncWrites         bool   `yaml:"sync_writes"`
		EncryptionPassword string `yaml:"encryption_password"`
		EntitiesPerKey     uint64 `yaml:"entities_per_key"`
	} `yaml:"database"`

	// Storage alias for database.data_dir
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Index struct {
		BatchSize int `yaml:"batch_size"`
		Workers   int `yaml:"workers"`
	} `yaml:"index"`

	Execution struct {
		RecordCap       int    `yaml:"record_cap"`
		CSVFetchTimeout string `yaml:"csv_fetch_timeout"`
	} `yaml:"execution"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`

	Metrics struct {
		Enabled *bool  `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"metrics"`

	Tracing struct {
		Exporter     string `yaml:"exporter"`
		OTLPEndpoint string `yaml:"otlp_endpoint"`
		OTLPInsecure *bool  `yaml:"otlp_insecure"`
	} `yaml:"tracing"`
}

// LoadDefaults returns a Config with built-in defaults.
//
// Precedence order:
//  1. Built-in defaults (this function)
//  2. Config file (YAML)
//  3. Environment variables
//  4. Command-line flags (applied by the CLI)
func LoadDefaults() *Config {
	config := &Config{}

	config.Database.DataDir = "./data"
	config.Database.Graph = "default"
	config.Database.EntitiesPerKey = 100_000

	config.Index.BatchSize = 10_000
	config.Index.Workers = 2

	config.Execution.RecordCap = 16
	config.Execution.CSVFetchTimeout = 30 * time.Second

	config.Logging.Level = "INFO"
	config.Logging.Format = "text"
	config.Logging.Output = "stderr"

	config.Metrics.Enabled = true
	config.Metrics.Address = ":9464"

	config.Tracing.Exporter = "none"
	config.Tracing.OTLPEndpoint = "localhost:4317"
	config.Tracing.OTLPInsecure = true
	return config
}

// LoadFromFile loads configuration with proper precedence:
//  1. Built-in defaults (lowest priority)
//  2. YAML config file
//  3. Environment variables
//
// A missing file is not an error. Command-line flags are applied by the caller.
//
// Example YAML:
//
//	database:
//	  data_dir: /var/lib/matrixgraph
//	  graph: social
//	index:
//	  batch_size: 5000
//	logging:
//	  level: debug
//	  format: json
func LoadFromFile(configPath string) (*Config, error) {
	config := LoadDefaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := applyYAML(config, data); err != nil {
				return nil, err
			}
		}
	}

	applyEnvVars(config)
	return config, nil
}

func applyYAML(config *Config, data []byte) error {
	var y YAMLConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// === Database ===
	if y.Storage.Path != "" {
		config.Database.DataDir = y.Storage.Path
	}
	if y.Database.DataDir != "" {
		config.Database.DataDir = y.Database.DataDir
	}
	if y.Database.Graph != "" {
		config.Database.Graph = y.Database.Graph
	}
	if y.Database.InMemory {
		config.Database.InMemory = true
	}
	if y.Database.SyncWrites {
		config.Database.SyncWrites = true
	}
	if y.Database.EncryptionPassword != "" {
		config.Database.EncryptionPassword = y.Database.EncryptionPassword
	}
	if y.Database.EntitiesPerKey > 0 {
		config.Database.EntitiesPerKey = y.Database.EntitiesPerKey
	}

	// === Index ===
	if y.Index.BatchSize > 0 {
		config.Index.BatchSize = y.Index.BatchSize
	}
	if y.Index.Workers > 0 {
		config.Index.Workers = y.Index.Workers
	}

	// === Execution ===
	if y.Execution.RecordCap > 0 {
		config.Execution.RecordCap = y.Execution.RecordCap
	}
	if y.Execution.CSVFetchTimeout != "" {
		d, err := time.ParseDuration(y.Execution.CSVFetchTimeout)
		if err != nil {
			return fmt.Errorf("invalid execution.csv_fetch_timeout %q: %w", y.Execution.CSVFetchTimeout, err)
		}
		config.Execution.CSVFetchTimeout = d
	}

	// === Logging ===
	if y.Logging.Level != "" {
		config.Logging.Level = strings.ToUpper(y.Logging.Level)
	}
	if y.Logging.Format != "" {
		config.Logging.Format = strings.ToLower(y.Logging.Format)
	}
	if y.Logging.Output != "" {
		config.Logging.Output = y.Logging.Output
	}

	// === Metrics ===
	if y.Metrics.Enabled != nil {
		config.Metrics.Enabled = *y.Metrics.Enabled
	}
	if y.Metrics.Address != "" {
		config.Metrics.Address = y.Metrics.Address
	}

	// === Tracing ===
	if y.Tracing.Exporter != "" {
		config.Tracing.Exporter = strings.ToLower(y.Tracing.Exporter)
	}
	if y.Tracing.OTLPEndpoint != "" {
		config.Tracing.OTLPEndpoint = y.Tracing.OTLPEndpoint
	}
	if y.Tracing.OTLPInsecure != nil {
		config.Tracing.OTLPInsecure = *y.Tracing.OTLPInsecure
	}
	return nil
}

// ApplyEnvVars applies MATRIXGRAPH_* environment overrides to config.
func ApplyEnvVars(config *Config) {
	applyEnvVars(config)
}

func applyEnvVars(config *Config) {
	config.Database.DataDir = getEnv("DATA_DIR", config.Database.DataDir)
	config.Database.Graph = getEnv("GRAPH", config.Database.Graph)
	config.Database.InMemory = getEnvBool("IN_MEMORY", config.Database.InMemory)
	config.Database.SyncWrites = getEnvBool("SYNC_WRITES", config.Database.SyncWrites)
	config.Database.EncryptionPassword = getEnv("ENCRYPTION_PASSWORD", config.Database.EncryptionPassword)
	if v := getEnvInt("ENTITIES_PER_KEY", 0); v > 0 {
		config.Database.EntitiesPerKey = uint64(v)
	}

	if v := getEnvInt("INDEX_BATCH_SIZE", 0); v > 0 {
		config.Index.BatchSize = v
	}
	if v := getEnvInt("INDEX_WORKERS", 0); v > 0 {
		config.Index.Workers = v
	}

	if v := getEnvInt("RECORD_CAP", 0); v > 0 {
		config.Execution.RecordCap = v
	}
	config.Execution.CSVFetchTimeout = getEnvDuration("CSV_FETCH_TIMEOUT", config.Execution.CSVFetchTimeout)

	if v := getEnv("LOG_LEVEL", ""); v != "" {
		config.Logging.Level = strings.ToUpper(v)
	}
	if v := getEnv("LOG_FORMAT", ""); v != "" {
		config.Logging.Format = strings.ToLower(v)
	}
	config.Logging.Output = getEnv("LOG_OUTPUT", config.Logging.Output)

	config.Metrics.Enabled = getEnvBool("METRICS_ENABLED", config.Metrics.Enabled)
	config.Metrics.Address = getEnv("METRICS_ADDRESS", config.Metrics.Address)

	if v := getEnv("TRACE_EXPORTER", ""); v != "" {
		config.Tracing.Exporter = strings.ToLower(v)
	}
	config.Tracing.OTLPEndpoint = getEnv("OTLP_ENDPOINT", config.Tracing.OTLPEndpoint)
	config.Tracing.OTLPInsecure = getEnvBool("OTLP_INSECURE", config.Tracing.OTLPInsecure)
}

// Validate checks the configuration for errors.
//
// Returns nil if configuration is valid, or an error describing the first problem.
func (c *Config) Validate() error {
	if !c.Database.InMemory && c.Database.DataDir == "" {
		return fmt.Errorf("data directory required unless in_memory is set")
	}
	if c.Database.Graph == "" || strings.Contains(c.Database.Graph, "/") {
		return fmt.Errorf("invalid graph name: %q", c.Database.Graph)
	}
	if c.Database.EntitiesPerKey == 0 {
		return fmt.Errorf("entities per key must be positive")
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("invalid index batch size: %d", c.Index.BatchSize)
	}
	if c.Index.Workers <= 0 {
		return fmt.Errorf("invalid index workers: %d", c.Index.Workers)
	}
	if c.Execution.RecordCap <= 0 {
		return fmt.Errorf("invalid record cap: %d", c.Execution.RecordCap)
	}
	if c.Execution.CSVFetchTimeout <= 0 {
		return fmt.Errorf("invalid csv fetch timeout: %v", c.Execution.CSVFetchTimeout)
	}

	switch c.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics enabled but no address provided")
	}

	switch c.Tracing.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Tracing.OTLPEndpoint == "" {
			return fmt.Errorf("otlp trace exporter needs an endpoint")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %q", c.Tracing.Exporter)
	}
	return nil
}

// String returns a representation of the Config that is safe to log.
// The encryption password is reduced to whether it is set.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, Graph: %s, InMemory: %v, Encrypted: %v, IndexBatch: %d, RecordCap: %d, Log: %s/%s, Metrics: %s, Tracing: %s}",
		c.Database.DataDir, c.Database.Graph, c.Database.InMemory, c.Database.EncryptionPassword != "",
		c.Index.BatchSize, c.Execution.RecordCap,
		c.Logging.Level, c.Logging.Format,
		c.metricsAddr(), c.Tracing.Exporter,
	)
}

func (c *Config) metricsAddr() string {
	if !c.Metrics.Enabled {
		return "off"
	}
	return c.Metrics.Address
}

// FindConfigFile searches for a config file in standard locations.
// Returns the first path found, or "" if none exists.
// Search order:
//  1. ~/.matrixgraph/config.yaml
//  2. Current working directory (config.yaml, matrixgraph.yaml)
//  3. ~/.config/matrixgraph/config.yaml (XDG)
func FindConfigFile() string {
	var candidates []string

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".matrixgraph", "config.yaml"))
	}
	candidates = append(candidates, "config.yaml", "matrixgraph.yaml")
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "matrixgraph", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Helper functions for environment variable parsing. Keys are given
// without the MATRIXGRAPH_ prefix.

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(envPrefix + key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(envPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// bare integers are seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

// FormatMemorySize renders a byte count with a binary unit suffix, e.g.
// "512 B" or "1.50 MB". Used when reporting snapshot and backup sizes.
func FormatMemorySize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	size := float64(n)
	unit := "B"
	for _, u := range []string{"KB", "MB", "GB", "TB"} {
		if size < 1024 {
			break
		}
		size /= 1024
		unit = u
	}
	return fmt.Sprintf("%.2f %s", size, unit)
}
