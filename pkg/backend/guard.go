package backend

import (
	"context"
	"fmt"

	"github.com/ruslano69/tpcc-workbench/pkg/resilience"
	"github.com/ruslano69/tpcc-workbench/pkg/retry"
)

// Compile-time check: Guard сам реализует контракт Backend
var _ Backend = (*Guard)(nil)

// GuardConfig - конфигурация защитной обертки
type GuardConfig struct {
	// Retry - политика повторов для transient-ошибок
	Retry retry.Config
	// Breaker - circuit breaker для сбоев связности
	Breaker resilience.Config
}

// Guard - декоратор Backend: повторяет transient-ошибки с backoff'ом и
// отсекает вызовы при потере связности через circuit breaker.
// Повтор безопасен для всех операций контракта: неудавшийся оператор
// или группа не оставляют частичного эффекта.
// Ошибки остальных классов (constraint, not_found, translation) проходят
// без повторов и breaker не открывают.
type Guard struct {
	inner   Backend
	retryer *retry.Retryer
	breaker *resilience.CircuitBreaker
}

// NewGuard оборачивает backend в защитный слой
func NewGuard(inner Backend, cfg GuardConfig) (*Guard, error) {
	if cfg.Retry.RetryIf == nil {
		cfg.Retry.RetryIf = IsTransient
	}
	retryer, err := retry.NewRetryer(cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("failed to create retryer: %w", err)
	}

	var breaker *resilience.CircuitBreaker
	if cfg.Breaker.Enabled {
		breaker, err = resilience.New(cfg.Breaker)
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
		}
	}

	return &Guard{inner: inner, retryer: retryer, breaker: breaker}, nil
}

// Unwrap возвращает обернутый backend
func (g *Guard) Unwrap() Backend {
	return g.inner
}

// Breaker возвращает circuit breaker (nil если отключен)
func (g *Guard) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}

// run выполняет операцию через retryer и breaker.
// Breaker учитывает только сбои связности: нарушение ограничения или
// отсутствие строки означают здоровый backend.
func (g *Guard) run(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := func(ctx context.Context) error {
		return g.retryer.Do(ctx, op)
	}

	if g.breaker == nil {
		return attempt(ctx)
	}

	var opErr error
	cbErr := g.breaker.Execute(ctx, func(ctx context.Context) error {
		opErr = attempt(ctx)
		if IsConnectivity(opErr) {
			return opErr
		}
		return nil
	})
	if opErr == nil && cbErr != nil {
		// Вызов отклонен breaker'ом без обращения к backend'у
		return WrapError(ClassConnectivity, g.inner.BackendType(), "guard", cbErr)
	}
	return opErr
}

// ========== Контракт Backend ==========

func (g *Guard) Connect(ctx context.Context, cfg Config) error {
	return g.inner.Connect(ctx, cfg)
}

func (g *Guard) Close() error {
	if err := g.retryer.Close(); err != nil {
		return err
	}
	return g.inner.Close()
}

func (g *Guard) Ping(ctx context.Context) error {
	return g.run(ctx, func(ctx context.Context) error {
		return g.inner.Ping(ctx)
	})
}

func (g *Guard) ExecuteQuery(ctx context.Context, q Query) (*ResultSet, error) {
	var rs *ResultSet
	err := g.run(ctx, func(ctx context.Context) error {
		var opErr error
		rs, opErr = g.inner.ExecuteQuery(ctx, q)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (g *Guard) ExecuteDML(ctx context.Context, q Query) error {
	return g.run(ctx, func(ctx context.Context) error {
		return g.inner.ExecuteDML(ctx, q)
	})
}

func (g *Guard) ExecuteDDL(ctx context.Context, stmt string) error {
	return g.run(ctx, func(ctx context.Context) error {
		return g.inner.ExecuteDDL(ctx, stmt)
	})
}

func (g *Guard) RunInTransaction(ctx context.Context, plan []Query) error {
	return g.run(ctx, func(ctx context.Context) error {
		return g.inner.RunInTransaction(ctx, plan)
	})
}

func (g *Guard) ExecuteNewOrder(ctx context.Context, req NewOrderRequest) (*NewOrderResult, error) {
	var result *NewOrderResult
	err := g.run(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = g.inner.ExecuteNewOrder(ctx, req)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (g *Guard) BackendType() string {
	return g.inner.BackendType()
}

func (g *Guard) Marker() MarkerFunc {
	return g.inner.Marker()
}
