package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/retry"
)

// TestDefaultConfig проверяет конфигурацию по умолчанию: sqlite
// in-memory с консольным журналом и включенными повторами
func TestDefaultConfig(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if config.Backend.Type != "sqlite" {
		t.Errorf("Backend.Type = %q, want %q", config.Backend.Type, "sqlite")
	}
	if config.Backend.DSN != ":memory:" {
		t.Errorf("Backend.DSN = %q, want %q", config.Backend.DSN, ":memory:")
	}
	if config.Backend.TimeoutSec != 30 {
		t.Errorf("Backend.TimeoutSec = %d, want 30", config.Backend.TimeoutSec)
	}
	if !config.Audit.Enabled || !config.Audit.Console {
		t.Errorf("unexpected audit defaults: %+v", config.Audit)
	}
	if config.Audit.Level != "standard" {
		t.Errorf("Audit.Level = %q, want %q", config.Audit.Level, "standard")
	}
	if !config.Retry.Enabled {
		t.Error("Retry.Enabled = false, want true")
	}
	if config.Retry.MaxAttempts != 3 || config.Retry.Strategy != "exponential" {
		t.Errorf("unexpected retry defaults: %+v", config.Retry)
	}
	if config.Retry.InitialWaitMs != 100 || config.Retry.MaxWaitMs != 5000 {
		t.Errorf("unexpected retry wait defaults: %+v", config.Retry)
	}
	if config.Breaker.MaxFailures != 5 || config.Breaker.TimeoutSec != 30 || config.Breaker.SuccessThreshold != 2 {
		t.Errorf("unexpected breaker defaults: %+v", config.Breaker)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Validate() on default config failed: %v", err)
	}
}

// TestLoadConfigFile проверяет загрузку YAML-файла с раскрытием
// переменных окружения в DSN и паролях
func TestLoadConfigFile(t *testing.T) {
	t.Setenv("TPCCWB_TEST_DSN", "postgresql://root@localhost:26257/tpcc?sslmode=disable")
	t.Setenv("TPCCWB_TEST_PASS", "s3cret")

	content := `
backend:
  type: cockroach
  dsn: ${TPCCWB_TEST_DSN}
  max_conns: 20
audit:
  enabled: true
  level: full
retry:
  enabled: true
  max_attempts: 7
telemetry:
  enabled: true
  type: rabbitmq
  host: localhost
  password: ${TPCCWB_TEST_PASS}
  queue: tpcc-events
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Backend.Type != "cockroach" {
		t.Errorf("Backend.Type = %q, want %q", config.Backend.Type, "cockroach")
	}
	if config.Backend.DSN != "postgresql://root@localhost:26257/tpcc?sslmode=disable" {
		t.Errorf("Backend.DSN = %q, env variable was not expanded", config.Backend.DSN)
	}
	if config.Backend.MaxConns != 20 {
		t.Errorf("Backend.MaxConns = %d, want 20", config.Backend.MaxConns)
	}
	if config.Audit.Level != "full" {
		t.Errorf("Audit.Level = %q, want %q", config.Audit.Level, "full")
	}
	if config.Telemetry.Password != "s3cret" {
		t.Errorf("Telemetry.Password = %q, env variable was not expanded", config.Telemetry.Password)
	}

	// Явные значения из файла сохраняются, пропуски добиваются умолчаниями
	if config.Retry.MaxAttempts != 7 {
		t.Errorf("Retry.MaxAttempts = %d, want 7", config.Retry.MaxAttempts)
	}
	if config.Retry.MaxWaitMs != 5000 {
		t.Errorf("Retry.MaxWaitMs = %d, want default 5000", config.Retry.MaxWaitMs)
	}
	if config.Backend.TimeoutSec != 30 {
		t.Errorf("Backend.TimeoutSec = %d, want default 30", config.Backend.TimeoutSec)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

// TestLoadConfigMissingFile проверяет ошибку при отсутствующем файле
func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() with missing file succeeded, want error")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %v, want read failure", err)
	}
}

// TestLoadConfigBadYAML проверяет ошибку при невалидном YAML
func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("backend: [unclosed"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("LoadConfig() with bad YAML succeeded, want error")
	}
	if !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("error = %v, want parse failure", err)
	}
}

// TestConfigValidate проверяет диагностику невалидной конфигурации
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing backend type",
			mutate:  func(c *Config) { c.Backend.Type = "" },
			wantErr: "backend type is required",
		},
		{
			name:    "unknown backend type",
			mutate:  func(c *Config) { c.Backend.Type = "oracle" },
			wantErr: `unknown backend type "oracle"`,
		},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.Backend.DSN = "" },
			wantErr: "backend dsn is required",
		},
		{
			name:    "unknown audit level",
			mutate:  func(c *Config) { c.Audit.Level = "verbose" },
			wantErr: "unknown audit level",
		},
		{
			name:    "telemetry enabled without type",
			mutate:  func(c *Config) { c.Telemetry.Enabled = true },
			wantErr: "unknown telemetry type",
		},
		{
			name:    "disabled telemetry ignores type",
			mutate:  func(c *Config) { c.Telemetry.Type = "carrier-pigeon" },
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

// TestBackendConfigMapping проверяет сборку конфигурации подключения
func TestBackendConfigMapping(t *testing.T) {
	config := DefaultConfig()
	config.Backend.MaxConns = 12
	config.Backend.MinConns = 2

	bc := config.backendConfig()
	if bc.Type != "sqlite" {
		t.Errorf("Type = %q, want %q", bc.Type, "sqlite")
	}
	if bc.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", bc.Timeout)
	}
	if bc.MaxConns != 12 || bc.MinConns != 2 {
		t.Errorf("conns = %d/%d, want 12/2", bc.MaxConns, bc.MinConns)
	}
}

// TestGuardConfigMapping проверяет сборку защитного слоя из
// секций retry и breaker
func TestGuardConfigMapping(t *testing.T) {
	config := DefaultConfig()
	config.Retry.Jitter = 0.25
	config.Breaker.Enabled = true

	guard := config.guardConfig()
	if !guard.Retry.Enabled {
		t.Error("Retry.Enabled = false, want true")
	}
	if guard.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", guard.Retry.MaxAttempts)
	}
	if guard.Retry.InitialDelay != 100*time.Millisecond {
		t.Errorf("Retry.InitialDelay = %v, want 100ms", guard.Retry.InitialDelay)
	}
	if guard.Retry.MaxDelay != 5*time.Second {
		t.Errorf("Retry.MaxDelay = %v, want 5s", guard.Retry.MaxDelay)
	}
	if guard.Retry.BackoffStrategy != retry.BackoffExponential {
		t.Errorf("Retry.BackoffStrategy = %q, want %q", guard.Retry.BackoffStrategy, retry.BackoffExponential)
	}
	if guard.Retry.BackoffMultiplier != 2.0 {
		t.Errorf("Retry.BackoffMultiplier = %v, want 2.0", guard.Retry.BackoffMultiplier)
	}
	if guard.Retry.Jitter != 0.25 {
		t.Errorf("Retry.Jitter = %v, want 0.25", guard.Retry.Jitter)
	}

	if !guard.Breaker.Enabled {
		t.Error("Breaker.Enabled = false, want true")
	}
	if guard.Breaker.Name != "tpccwb-backend" {
		t.Errorf("Breaker.Name = %q, want %q", guard.Breaker.Name, "tpccwb-backend")
	}
	if guard.Breaker.MaxFailures != 5 {
		t.Errorf("Breaker.MaxFailures = %d, want 5", guard.Breaker.MaxFailures)
	}
	if guard.Breaker.Timeout != 30*time.Second {
		t.Errorf("Breaker.Timeout = %v, want 30s", guard.Breaker.Timeout)
	}
	if guard.Breaker.SuccessThreshold != 2 {
		t.Errorf("Breaker.SuccessThreshold = %d, want 2", guard.Breaker.SuccessThreshold)
	}
}

// TestBrokerConfigMapping проверяет сборку конфигурации телеметрии
func TestBrokerConfigMapping(t *testing.T) {
	config := DefaultConfig()
	config.Telemetry = TelemetryConfig{
		Enabled: true,
		Type:    "kafka",
		Brokers: []string{"localhost:9092"},
		Topic:   "tpcc-events",
	}

	bc := config.brokerConfig()
	if bc.Type != "kafka" {
		t.Errorf("Type = %q, want %q", bc.Type, "kafka")
	}
	if len(bc.Brokers) != 1 || bc.Brokers[0] != "localhost:9092" {
		t.Errorf("Brokers = %v, want [localhost:9092]", bc.Brokers)
	}
	if bc.Topic != "tpcc-events" {
		t.Errorf("Topic = %q, want %q", bc.Topic, "tpcc-events")
	}
	if !bc.Durable {
		t.Error("Durable = false, want true")
	}
}
