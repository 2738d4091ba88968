package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config описывает подключение к Redis для публикации результатов сессии.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`  // host:port, например "localhost:6379"
	Password string `yaml:"password"` // опционально
	DB       int    `yaml:"db"`       // номер базы, по умолчанию 0
	TTL      int    `yaml:"ttl"`      // время жизни state-ключа в секундах
}

// SetDefaults устанавливает значения по умолчанию
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = "localhost:6379"
	}
	if c.TTL <= 0 {
		c.TTL = 3600
	}
}

// SessionResult представляет итог выполнения сессии workbench'а,
// публикуемый в Redis после завершения (успешного или с ошибкой).
//
// Redis-ключи:
//
//	SET  tpccwb:result:<session>:state  <JSON>  EX <ttl>  (GET-запросы оркестратора)
//	PUB  tpccwb:result:<session>                          (event-driven маршрутизация)
type SessionResult struct {
	SessionID    string    `json:"session_id"`
	Command      string    `json:"command"` // "new-order" | "payment" | "acid" | ...
	Backend      string    `json:"backend"`
	Status       string    `json:"status"` // "success" | "failed"
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	DurationMs   int64     `json:"duration_ms"`
	RowsAffected int64     `json:"rows_affected"`
	Details      string    `json:"details,omitempty"`
	Error        *string   `json:"error,omitempty"`
}

// RedisPublisher публикует результат выполнения сессии в Redis
type RedisPublisher struct {
	client *redis.Client
	config Config
}

// NewRedisPublisher создает новый Redis publisher на основе конфигурации
func NewRedisPublisher(config Config) *RedisPublisher {
	config.SetDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisPublisher{client: client, config: config}
}

// Publish публикует результат выполнения сессии:
//   - SET tpccwb:result:<session>:state <JSON> EX <ttl>  → для опроса (polling)
//   - PUBLISH tpccwb:result:<session> <JSON>              → для подписки (pub/sub)
//
// Вызывается независимо от результата выполнения (success или failed).
// execErr == nil означает успешное выполнение.
func (p *RedisPublisher) Publish(ctx context.Context, result SessionResult, execErr error) error {
	if execErr != nil {
		result.Status = "failed"
		errStr := execErr.Error()
		result.Error = &errStr
	} else {
		result.Status = "success"
	}
	if result.DurationMs == 0 && !result.FinishedAt.IsZero() {
		result.DurationMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	stateKey := fmt.Sprintf("tpccwb:result:%s:state", result.SessionID)
	eventChannel := fmt.Sprintf("tpccwb:result:%s", result.SessionID)
	ttl := time.Duration(p.config.TTL) * time.Second

	// SET ключ с TTL: оркестратор может GET для получения последнего состояния
	if err := p.client.Set(ctx, stateKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	// PUBLISH событие: оркестратор может SUBSCRIBE для event-driven маршрутизации
	if err := p.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}

	return nil
}

// Ping проверяет доступность Redis
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
