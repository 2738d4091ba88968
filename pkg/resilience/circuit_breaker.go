package resilience

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen - breaker открыт, вызов отклонен без обращения к backend'у
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyCalls - превышен лимит одновременных вызовов
	ErrTooManyCalls = errors.New("too many concurrent calls")
)

// ExecuteFunc - операция, выполняемая под защитой breaker'а
type ExecuteFunc func(ctx context.Context) error

// CircuitBreaker отсекает вызовы к недоступному backend'у. После
// MaxFailures последовательных сбоев вызовы отклоняются сразу, через
// Timeout пропускаются пробные вызовы, SuccessThreshold успешных
// проб подряд возвращают нормальную работу
type CircuitBreaker struct {
	config  Config
	machine *machine
}

// New создает circuit breaker
func New(config Config) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}

	return &CircuitBreaker{
		config:  config,
		machine: newMachine(config),
	}, nil
}

// Execute выполняет fn под защитой breaker'а. Ошибка fn возвращается
// без изменений, отклоненный вызов получает ErrCircuitOpen или
// ErrTooManyCalls. Panic внутри fn учитывается как сбой
func (cb *CircuitBreaker) Execute(ctx context.Context, fn ExecuteFunc) error {
	if !cb.config.Enabled {
		return fn(ctx)
	}

	gen, err := cb.machine.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.machine.settle(gen, false)
			panic(r)
		}
	}()

	err = fn(ctx)
	cb.machine.settle(gen, err == nil)

	return err
}

// ExecuteWithFallback выполняет fallback, когда вызов отклонен
// breaker'ом. Ошибки самого fn до fallback'а не доходят
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn, fallback ExecuteFunc) error {
	err := cb.Execute(ctx, fn)

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyCalls) {
		if fallback != nil {
			return fallback(ctx)
		}
	}

	return err
}

// State - текущее состояние
func (cb *CircuitBreaker) State() State {
	return cb.machine.current()
}

// Counts - счетчики текущего поколения
func (cb *CircuitBreaker) Counts() Counts {
	return cb.machine.snapshot()
}

// Stats - полная статистика breaker'а
func (cb *CircuitBreaker) Stats() Stats {
	return cb.machine.stats()
}

// Reset принудительно закрывает breaker
func (cb *CircuitBreaker) Reset() {
	cb.machine.reset()
}

// IsOpen - открыт ли breaker
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.machine.current() == StateOpen
}

// IsClosed - закрыт ли breaker
func (cb *CircuitBreaker) IsClosed() bool {
	return cb.machine.current() == StateClosed
}

// IsHalfOpen - идет ли проверка восстановления
func (cb *CircuitBreaker) IsHalfOpen() bool {
	return cb.machine.current() == StateHalfOpen
}

// Name - имя breaker'а
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// String - краткое представление для диагностики
func (cb *CircuitBreaker) String() string {
	stats := cb.Stats()
	return fmt.Sprintf("CircuitBreaker(%s state=%s failures=%d/%d)",
		cb.config.Name, stats.State, stats.Counts.ConsecutiveFailures, cb.config.MaxFailures)
}
