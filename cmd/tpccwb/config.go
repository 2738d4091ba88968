package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/brokers"
	"github.com/ruslano69/tpcc-workbench/pkg/resilience"
	"github.com/ruslano69/tpcc-workbench/pkg/resultlog"
	"github.com/ruslano69/tpcc-workbench/pkg/retry"
)

// Config - конфигурация CLI из YAML-файла. Ядро не читает ни файлы,
// ни окружение: всё собирается здесь и передается конструкторам.
type Config struct {
	Backend   BackendConfig    `yaml:"backend"`
	Workload  WorkloadConfig   `yaml:"workload,omitempty"`
	Audit     AuditConfig      `yaml:"audit,omitempty"`
	Retry     RetryConfig      `yaml:"retry,omitempty"`
	Breaker   BreakerConfig    `yaml:"breaker,omitempty"`
	Telemetry TelemetryConfig  `yaml:"telemetry,omitempty"`
	ResultLog resultlog.Config `yaml:"resultlog,omitempty"`
	Report    ReportConfig     `yaml:"report,omitempty"`
}

// BackendConfig - подключение к измеряемому backend'у
type BackendConfig struct {
	Type       string `yaml:"type"` // cockroach, tidb, sqlite
	DSN        string `yaml:"dsn"`  // поддерживает ${VAR}-подстановку
	TimeoutSec int    `yaml:"timeout_sec,omitempty"`
	MaxConns   int    `yaml:"max_conns,omitempty"`
	MinConns   int    `yaml:"min_conns,omitempty"`
}

// WorkloadConfig - поведение протокольных операций
type WorkloadConfig struct {
	// Region - метка региона для созданных заказов (пусто = не метить)
	Region string `yaml:"region,omitempty"`
	// SimulateRollbacks - подмешивать преднамеренно невалидный товар
	// в ~1% заказов
	SimulateRollbacks bool `yaml:"simulate_rollbacks,omitempty"`
	// Seed - зерно генератора случайности (0 = от времени)
	Seed int64 `yaml:"seed,omitempty"`
}

// AuditConfig - журнал операций
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Level      string `yaml:"level"` // minimal, standard, full
	Async      bool   `yaml:"async,omitempty"`
	BufferSize int    `yaml:"buffer_size,omitempty"`
	Console    bool   `yaml:"console,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int64  `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// RetryConfig - повторы transient-ошибок
type RetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	MaxAttempts   int     `yaml:"max_attempts,omitempty"`
	Strategy      string  `yaml:"strategy,omitempty"` // constant, linear, exponential
	InitialWaitMs int     `yaml:"initial_wait_ms,omitempty"`
	MaxWaitMs     int     `yaml:"max_wait_ms,omitempty"`
	Jitter        float64 `yaml:"jitter,omitempty"`
	// DLQFile - файл для недоставленных побочных записей
	DLQFile string `yaml:"dlq_file,omitempty"`
}

// BreakerConfig - circuit breaker на сбои связности
type BreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	MaxFailures      uint32 `yaml:"max_failures,omitempty"`
	TimeoutSec       int    `yaml:"timeout_sec,omitempty"`
	SuccessThreshold uint32 `yaml:"success_threshold,omitempty"`
}

// TelemetryConfig - публикация событий протоколов в message broker
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type,omitempty"` // kafka, rabbitmq

	// Kafka
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`

	// RabbitMQ
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Queue    string `yaml:"queue,omitempty"`
	VHost    string `yaml:"vhost,omitempty"`
}

// ReportConfig - файловые артефакты сьюта проверок
type ReportConfig struct {
	XLSXPath      string `yaml:"xlsx_path,omitempty"`
	ArchiveDir    string `yaml:"archive_dir,omitempty"`
	ArchivePrefix string `yaml:"archive_prefix,omitempty"`
}

// LoadConfig загружает конфигурацию из YAML-файла. Пустое имя файла
// дает конфигурацию по умолчанию (sqlite in-memory).
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()
	if filename == "" {
		return config, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()
	return config, nil
}

// DefaultConfig возвращает конфигурацию по умолчанию: sqlite in-memory,
// консольный журнал, повторы включены
func DefaultConfig() *Config {
	config := &Config{
		Backend: BackendConfig{Type: "sqlite", DSN: ":memory:"},
		Audit:   AuditConfig{Enabled: true, Level: "standard", Console: true},
		Retry:   RetryConfig{Enabled: true},
	}
	config.SetDefaults()
	return config
}

// SetDefaults устанавливает значения по умолчанию и раскрывает
// ${VAR}-подстановки в DSN и паролях
func (c *Config) SetDefaults() {
	c.Backend.DSN = os.ExpandEnv(c.Backend.DSN)
	c.Telemetry.Password = os.ExpandEnv(c.Telemetry.Password)
	c.ResultLog.Password = os.ExpandEnv(c.ResultLog.Password)

	if c.Backend.TimeoutSec == 0 {
		c.Backend.TimeoutSec = 30
	}
	if c.Audit.Level == "" {
		c.Audit.Level = "standard"
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.Strategy == "" {
		c.Retry.Strategy = "exponential"
	}
	if c.Retry.InitialWaitMs == 0 {
		c.Retry.InitialWaitMs = 100
	}
	if c.Retry.MaxWaitMs == 0 {
		c.Retry.MaxWaitMs = 5000
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.TimeoutSec == 0 {
		c.Breaker.TimeoutSec = 30
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 2
	}
	c.ResultLog.SetDefaults()
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	switch c.Backend.Type {
	case "cockroach", "tidb", "sqlite":
	case "":
		return fmt.Errorf("backend type is required")
	default:
		return fmt.Errorf("unknown backend type %q (supported: cockroach, tidb, sqlite)", c.Backend.Type)
	}
	if c.Backend.DSN == "" {
		return fmt.Errorf("backend dsn is required")
	}
	switch c.Audit.Level {
	case "", "minimal", "standard", "full":
	default:
		return fmt.Errorf("unknown audit level %q (supported: minimal, standard, full)", c.Audit.Level)
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Type {
		case "kafka", "rabbitmq":
		default:
			return fmt.Errorf("unknown telemetry type %q (supported: kafka, rabbitmq)", c.Telemetry.Type)
		}
	}
	return nil
}

// ========== Сборка зависимостей из конфигурации ==========

// backendConfig собирает конфигурацию подключения
func (c *Config) backendConfig() backend.Config {
	return backend.Config{
		Type:     c.Backend.Type,
		DSN:      c.Backend.DSN,
		Timeout:  time.Duration(c.Backend.TimeoutSec) * time.Second,
		MaxConns: c.Backend.MaxConns,
		MinConns: c.Backend.MinConns,
	}
}

// guardConfig собирает конфигурацию защитного слоя
func (c *Config) guardConfig() backend.GuardConfig {
	return backend.GuardConfig{
		Retry: retry.Config{
			Enabled:           c.Retry.Enabled,
			MaxAttempts:       c.Retry.MaxAttempts,
			InitialDelay:      time.Duration(c.Retry.InitialWaitMs) * time.Millisecond,
			MaxDelay:          time.Duration(c.Retry.MaxWaitMs) * time.Millisecond,
			BackoffStrategy:   retry.BackoffStrategy(c.Retry.Strategy),
			BackoffMultiplier: 2.0,
			Jitter:            c.Retry.Jitter,
		},
		Breaker: resilience.Config{
			Enabled:          c.Breaker.Enabled,
			Name:             "tpccwb-backend",
			MaxFailures:      c.Breaker.MaxFailures,
			Timeout:          time.Duration(c.Breaker.TimeoutSec) * time.Second,
			SuccessThreshold: c.Breaker.SuccessThreshold,
		},
	}
}

// brokerConfig собирает конфигурацию телеметрии
func (c *Config) brokerConfig() brokers.Config {
	return brokers.Config{
		Type:     c.Telemetry.Type,
		Brokers:  c.Telemetry.Brokers,
		Topic:    c.Telemetry.Topic,
		Host:     c.Telemetry.Host,
		Port:     c.Telemetry.Port,
		User:     c.Telemetry.User,
		Password: c.Telemetry.Password,
		Queue:    c.Telemetry.Queue,
		VHost:    c.Telemetry.VHost,
		Durable:  true,
	}
}

// buildLogger собирает журнал операций из конфигурации
func (c *Config) buildLogger() (audit.Logger, error) {
	if !c.Audit.Enabled {
		return audit.NewNullLogger(), nil
	}

	level := audit.ParseLevel(c.Audit.Level)
	var appenders []audit.Appender
	if c.Audit.Console {
		appenders = append(appenders, audit.NewConsoleAppender(level))
	}
	if c.Audit.File != "" {
		fileAppender, err := audit.NewFileAppender(audit.FileAppenderConfig{
			FilePath:   c.Audit.File,
			MaxSize:    c.Audit.MaxSizeMB,
			MaxBackups: c.Audit.MaxBackups,
			Level:      level,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create audit file appender: %w", err)
		}
		appenders = append(appenders, fileAppender)
	}
	if len(appenders) == 0 {
		return audit.NewNullLogger(), nil
	}

	return audit.NewLogger(audit.LoggerConfig{
		AsyncMode:      c.Audit.Async,
		BufferSize:     c.Audit.BufferSize,
		DefaultLevel:   level,
		DefaultBackend: c.Backend.Type,
	}, appenders...), nil
}
