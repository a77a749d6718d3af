package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoadDefaults tests default values are loaded correctly.
func TestLoadDefaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Database.DataDir != "./data" {
		t.Errorf("expected data dir './data', got %q", cfg.Database.DataDir)
	}
	if cfg.Database.Graph != "default" {
		t.Errorf("expected graph 'default', got %q", cfg.Database.Graph)
	}
	if cfg.Database.InMemory {
		t.Error("expected InMemory to be false by default")
	}
	if cfg.Database.EntitiesPerKey != 100_000 {
		t.Errorf("expected 100000 entities per key, got %d", cfg.Database.EntitiesPerKey)
	}
	if cfg.Index.BatchSize != 10_000 {
		t.Errorf("expected index batch size 10000, got %d", cfg.Index.BatchSize)
	}
	if cfg.Index.Workers != 2 {
		t.Errorf("expected 2 index workers, got %d", cfg.Index.Workers)
	}
	if cfg.Execution.RecordCap != 16 {
		t.Errorf("expected record cap 16, got %d", cfg.Execution.RecordCap)
	}
	if cfg.Execution.CSVFetchTimeout != 30*time.Second {
		t.Errorf("expected csv fetch timeout 30s, got %v", cfg.Execution.CSVFetchTimeout)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected log format 'text', got %q", cfg.Logging.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address != ":9464" {
		t.Errorf("expected metrics on :9464, got %v %q", cfg.Metrics.Enabled, cfg.Metrics.Address)
	}
	if cfg.Tracing.Exporter != "none" || cfg.Tracing.OTLPEndpoint != "localhost:4317" {
		t.Errorf("expected tracing off with default endpoint, got %+v", cfg.Tracing)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

// TestLoadFromFile tests YAML values override defaults and env overrides YAML.
func TestLoadFromFile(t *testing.T) {
	clearEnvVars(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
database:
  data_dir: /var/lib/matrixgraph
  graph: social
  sync_writes: true
  entities_per_key: 500
index:
  batch_size: 250
  workers: 4
execution:
  record_cap: 64
  csv_fetch_timeout: 5s
logging:
  level: debug
  format: JSON
metrics:
  enabled: false
tracing:
  exporter: OTLP
  otlp_endpoint: collector:4317
  otlp_insecure: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MATRIXGRAPH_GRAPH", "from-env")
	t.Setenv("MATRIXGRAPH_INDEX_WORKERS", "8")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Database.DataDir != "/var/lib/matrixgraph" {
		t.Errorf("expected data dir from yaml, got %q", cfg.Database.DataDir)
	}
	if cfg.Database.Graph != "from-env" {
		t.Errorf("expected env to override yaml graph, got %q", cfg.Database.Graph)
	}
	if !cfg.Database.SyncWrites {
		t.Error("expected SyncWrites from yaml")
	}
	if cfg.Database.EntitiesPerKey != 500 {
		t.Errorf("expected 500 entities per key, got %d", cfg.Database.EntitiesPerKey)
	}
	if cfg.Index.BatchSize != 250 {
		t.Errorf("expected batch size 250, got %d", cfg.Index.BatchSize)
	}
	if cfg.Index.Workers != 8 {
		t.Errorf("expected env workers 8, got %d", cfg.Index.Workers)
	}
	if cfg.Execution.RecordCap != 64 {
		t.Errorf("expected record cap 64, got %d", cfg.Execution.RecordCap)
	}
	if cfg.Execution.CSVFetchTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Execution.CSVFetchTimeout)
	}
	if cfg.Logging.Level != "DEBUG" || cfg.Logging.Format != "json" {
		t.Errorf("expected normalized DEBUG/json, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics disabled by yaml")
	}
	if cfg.Tracing != (TracingConfig{Exporter: "otlp", OTLPEndpoint: "collector:4317"}) {
		t.Errorf("unexpected tracing config %+v", cfg.Tracing)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	clearEnvVars(t)
	dir := t.TempDir()

	cfg, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	if err != nil || cfg == nil {
		t.Fatalf("missing file should fall back to defaults, got %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("database: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected parse error")
	}

	badTimeout := filepath.Join(dir, "timeout.yaml")
	if err := os.WriteFile(badTimeout, []byte("execution:\n  csv_fetch_timeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(badTimeout); err == nil {
		t.Error("expected duration error")
	}
}

// TestApplyEnvVars_Parsing tests bool and duration parsing of env overrides.
func TestApplyEnvVars_Parsing(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(*Config) bool
	}{
		{"bool yes", map[string]string{"MATRIXGRAPH_IN_MEMORY": "yes"}, func(c *Config) bool { return c.Database.InMemory }},
		{"bool 1", map[string]string{"MATRIXGRAPH_SYNC_WRITES": "1"}, func(c *Config) bool { return c.Database.SyncWrites }},
		{"bool false", map[string]string{"MATRIXGRAPH_METRICS_ENABLED": "false"}, func(c *Config) bool { return !c.Metrics.Enabled }},
		{"duration", map[string]string{"MATRIXGRAPH_CSV_FETCH_TIMEOUT": "2m"}, func(c *Config) bool { return c.Execution.CSVFetchTimeout == 2*time.Minute }},
		{"duration seconds", map[string]string{"MATRIXGRAPH_CSV_FETCH_TIMEOUT": "45"}, func(c *Config) bool { return c.Execution.CSVFetchTimeout == 45*time.Second }},
		{"invalid int ignored", map[string]string{"MATRIXGRAPH_RECORD_CAP": "lots"}, func(c *Config) bool { return c.Execution.RecordCap == 16 }},
		{"log level upper-cased", map[string]string{"MATRIXGRAPH_LOG_LEVEL": "warn"}, func(c *Config) bool { return c.Logging.Level == "WARN" }},
		{"trace exporter", map[string]string{"MATRIXGRAPH_TRACE_EXPORTER": "Stdout"}, func(c *Config) bool { return c.Tracing.Exporter == "stdout" }},
		{"encryption password", map[string]string{"MATRIXGRAPH_ENCRYPTION_PASSWORD": "s3cret"}, func(c *Config) bool { return c.Database.EncryptionPassword == "s3cret" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := LoadDefaults()
			ApplyEnvVars(cfg)
			if !tt.check(cfg) {
				t.Errorf("override %v not applied: %s", tt.env, cfg)
			}
		})
	}
}

// TestConfig_Validate tests configuration validation.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{
			name: "in-memory without data dir",
			modify: func(c *Config) {
				c.Database.InMemory = true
				c.Database.DataDir = ""
			},
		},
		{
			name:    "no data dir",
			modify:  func(c *Config) { c.Database.DataDir = "" },
			wantErr: true,
			errMsg:  "data directory",
		},
		{
			name:    "graph name with slash",
			modify:  func(c *Config) { c.Database.Graph = "a/b" },
			wantErr: true,
			errMsg:  "graph name",
		},
		{
			name:    "zero batch size",
			modify:  func(c *Config) { c.Index.BatchSize = 0 },
			wantErr: true,
			errMsg:  "batch size",
		},
		{
			name:    "zero record cap",
			modify:  func(c *Config) { c.Execution.RecordCap = 0 },
			wantErr: true,
			errMsg:  "record cap",
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Logging.Level = "TRACE" },
			wantErr: true,
			errMsg:  "log level",
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
			errMsg:  "log format",
		},
		{
			name:    "unknown trace exporter",
			modify:  func(c *Config) { c.Tracing.Exporter = "zipkin" },
			wantErr: true,
			errMsg:  "trace exporter",
		},
		{
			name: "otlp without endpoint",
			modify: func(c *Config) {
				c.Tracing.Exporter = "otlp"
				c.Tracing.OTLPEndpoint = ""
			},
			wantErr: true,
			errMsg:  "endpoint",
		},
		{
			name:    "metrics without address",
			modify:  func(c *Config) { c.Metrics.Address = "" },
			wantErr: true,
			errMsg:  "metrics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadDefaults()
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestConfig_String tests the loggable representation hides secrets.
func TestConfig_String(t *testing.T) {
	cfg := LoadDefaults()
	cfg.Database.EncryptionPassword = "supersecretpassword"
	str := cfg.String()

	for _, want := range []string{"./data", "Graph: default", "Encrypted: true", ":9464"} {
		if !strings.Contains(str, want) {
			t.Errorf("expected %q in %s", want, str)
		}
	}
	if strings.Contains(str, "supersecret") {
		t.Error("string should not contain password")
	}

	cfg.Metrics.Enabled = false
	if !strings.Contains(cfg.String(), "Metrics: off") {
		t.Errorf("expected metrics off, got %s", cfg.String())
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	if got := FindConfigFile(); got != "" {
		t.Errorf("expected no config file, got %q", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "matrixgraph.yaml"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(); got != "matrixgraph.yaml" {
		t.Errorf("expected working directory file, got %q", got)
	}

	home := filepath.Join(dir, ".matrixgraph")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(); got != filepath.Join(home, "config.yaml") {
		t.Errorf("expected home config to win, got %q", got)
	}
}

func TestFormatMemorySize(t *testing.T) {
	tests := map[int64]string{
		512:     "512 B",
		2048:    "2.00 KB",
		5 << 20: "5.00 MB",
		3 << 30: "3.00 GB",
		1536:    "1.50 KB",
		1 << 40: "1.00 TB",
		1 << 50: "1024.00 TB",
		-5:      "-5 B",
	}
	for in, want := range tests {
		if got := FormatMemorySize(in); got != want {
			t.Errorf("FormatMemorySize(%d) = %q, want %q", in, got, want)
		}
	}
}

// clearEnvVars blanks every MATRIXGRAPH_ variable for the duration of the test.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, envPrefix) {
			t.Setenv(k, "")
		}
	}
}
