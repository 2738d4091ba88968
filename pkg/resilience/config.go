package resilience

import (
	"fmt"
	"time"
)

// Config - конфигурация circuit breaker'а между протокольными
// операциями и измеряемым backend'ом
type Config struct {
	// Enabled - включить circuit breaker
	Enabled bool

	// Name - имя breaker'а для диагностики
	Name string

	// MaxFailures - число последовательных сбоев для открытия
	MaxFailures uint32

	// Timeout - время в открытом состоянии до пробного вызова
	Timeout time.Duration

	// MaxConcurrentCalls - лимит одновременных вызовов, 0 = без лимита
	MaxConcurrentCalls uint32

	// SuccessThreshold - число последовательных успехов в half-open
	// для возврата в closed
	SuccessThreshold uint32

	// OnStateChange - callback при смене состояния
	OnStateChange func(name string, from State, to State)

	// ShouldTrip - нестандартное условие открытия. nil = открытие
	// по MaxFailures последовательных сбоев
	ShouldTrip func(counts Counts) bool
}

// Counts - счетчики вызовов текущего поколения состояния.
// Смена состояния обнуляет счетчики
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Validate проверяет конфигурацию и заполняет умолчания
func (c *Config) Validate() error {
	if c.MaxFailures == 0 {
		return fmt.Errorf("max_failures must be greater than 0")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}

	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}

	if c.Name == "" {
		c.Name = "circuit-breaker"
	}

	return nil
}

// DefaultConfig - открытие после пяти сбоев подряд, пробный вызов
// через 30 секунд, закрытие после двух успешных проб
func DefaultConfig(name string) Config {
	return Config{
		Enabled:          true,
		Name:             name,
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		SuccessThreshold: 2,
	}
}
