// Package cockroach реализует контракт выполнения поверх CockroachDB
// (PostgreSQL wire protocol, маркеры $1..$n) через pgx/v5 и pgxpool.
package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/backend/base"
)

// Compile-time check: Backend должен реализовывать интерфейс backend.Backend
var _ backend.Backend = (*Backend)(nil)

// Регистрация в глобальной фабрике
func init() {
	backend.Register("cockroach", func() backend.Backend {
		return &Backend{}
	})
}

// Backend - реализация контракта для CockroachDB
type Backend struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// Connect устанавливает подключение и создает connection pool
func (b *Backend) Connect(ctx context.Context, cfg backend.Config) error {
	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return backend.WrapError(backend.ClassConnectivity, "cockroach", "connect",
			fmt.Errorf("failed to parse connection string: %w", err))
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		config.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return backend.WrapError(backend.ClassConnectivity, "cockroach", "connect",
			fmt.Errorf("failed to create connection pool: %w", err))
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return backend.WrapError(backend.ClassConnectivity, "cockroach", "connect",
			fmt.Errorf("failed to ping database: %w", err))
	}

	b.pool = pool
	b.timeout = cfg.Timeout
	return nil
}

// Close закрывает connection pool
func (b *Backend) Close() error {
	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
	return nil
}

// Ping проверяет доступность backend'а
func (b *Backend) Ping(ctx context.Context) error {
	if b.pool == nil {
		return backend.WrapError(backend.ClassConnectivity, "cockroach", "ping", backend.ErrNotConnected)
	}
	if err := b.pool.Ping(ctx); err != nil {
		return b.wrap("ping", err)
	}
	return nil
}

// BackendType возвращает тип backend'а
func (b *Backend) BackendType() string {
	return "cockroach"
}

// Marker возвращает функцию нативных маркеров $1..$n
func (b *Backend) Marker() backend.MarkerFunc {
	return backend.MarkerDollar
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// translate транслирует запрос в нативный SQL с маркерами $n
func (b *Backend) translate(op string, q backend.Query) (string, []any, error) {
	sqlText, params, err := backend.Translate(q.Text, q.Params, backend.MarkerDollar)
	if err != nil {
		return "", nil, backend.WrapError(backend.ClassTranslation, "cockroach", op, err)
	}
	return sqlText, backend.Args(params), nil
}

func (b *Backend) wrap(op string, err error) error {
	return backend.WrapError(classify(err), "cockroach", op, err)
}

// ExecuteQuery выполняет чтение и материализует результат
func (b *Backend) ExecuteQuery(ctx context.Context, q backend.Query) (*backend.ResultSet, error) {
	if b.pool == nil {
		return nil, backend.WrapError(backend.ClassConnectivity, "cockroach", "query", backend.ErrNotConnected)
	}
	sqlText, args, err := b.translate("query", q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	rows, err := b.pool.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, b.wrap("query", err)
	}
	defer rows.Close()

	rs, err := scanRows(rows)
	if err != nil {
		return nil, b.wrap("query", err)
	}
	rs.Duration = time.Since(started)
	return rs, nil
}

// ExecuteDML выполняет один модифицирующий оператор как автономную
// транзакцию (implicit transaction одиночного оператора)
func (b *Backend) ExecuteDML(ctx context.Context, q backend.Query) error {
	if b.pool == nil {
		return backend.WrapError(backend.ClassConnectivity, "cockroach", "dml", backend.ErrNotConnected)
	}
	sqlText, args, err := b.translate("dml", q)
	if err != nil {
		return err
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	if _, err := b.pool.Exec(ctx, sqlText, args...); err != nil {
		return b.wrap("dml", err)
	}
	return nil
}

// ExecuteDDL выполняет изменение схемы. CockroachDB выполняет DDL
// асинхронно только для индексов; CREATE/DROP TABLE блокируются до
// завершения самим драйвером.
func (b *Backend) ExecuteDDL(ctx context.Context, stmt string) error {
	if b.pool == nil {
		return backend.WrapError(backend.ClassConnectivity, "cockroach", "ddl", backend.ErrNotConnected)
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	if _, err := b.pool.Exec(ctx, stmt); err != nil {
		return b.wrap("ddl", err)
	}
	return nil
}

// RunInTransaction выполняет группу операторов атомарно
func (b *Backend) RunInTransaction(ctx context.Context, plan []backend.Query) error {
	if b.pool == nil {
		return backend.WrapError(backend.ClassConnectivity, "cockroach", "txn", backend.ErrNotConnected)
	}
	if len(plan) == 0 {
		return backend.WrapError(backend.ClassTranslation, "cockroach", "txn", backend.ErrEmptyPlan)
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return b.wrap("txn", err)
	}

	for i, q := range plan {
		sqlText, args, terr := b.translate("txn", q)
		if terr != nil {
			_ = tx.Rollback(ctx)
			return terr
		}
		if _, err := tx.Exec(ctx, sqlText, args...); err != nil {
			_ = tx.Rollback(ctx)
			return b.wrap("txn", fmt.Errorf("statement %d/%d: %w", i+1, len(plan), err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return b.wrap("txn", err)
	}
	return nil
}

// ExecuteNewOrder выполняет протокол New-Order одной транзакцией
func (b *Backend) ExecuteNewOrder(ctx context.Context, req backend.NewOrderRequest) (*backend.NewOrderResult, error) {
	if b.pool == nil {
		return nil, backend.WrapError(backend.ClassConnectivity, "cockroach", "new_order", backend.ErrNotConnected)
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, b.wrap("new_order", err)
	}

	result, err := base.RunNewOrder(ctx, &pgxExecer{b: b, tx: tx}, req)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, b.wrap("new_order", err)
	}
	return result, nil
}

// ========== Execer поверх pgx.Tx ==========

// pgxExecer реализует base.Execer внутри pgx-транзакции
type pgxExecer struct {
	b  *Backend
	tx pgx.Tx
}

func (e *pgxExecer) BackendType() string {
	return "cockroach"
}

func (e *pgxExecer) Exec(ctx context.Context, q backend.Query) error {
	sqlText, args, err := e.b.translate("new_order", q)
	if err != nil {
		return err
	}
	if _, err := e.tx.Exec(ctx, sqlText, args...); err != nil {
		return e.b.wrap("new_order", err)
	}
	return nil
}

func (e *pgxExecer) Query(ctx context.Context, q backend.Query) (*backend.ResultSet, error) {
	sqlText, args, err := e.b.translate("new_order", q)
	if err != nil {
		return nil, err
	}
	rows, err := e.tx.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, e.b.wrap("new_order", err)
	}
	defer rows.Close()

	rs, err := scanRows(rows)
	if err != nil {
		return nil, e.b.wrap("new_order", err)
	}
	return rs, nil
}

// ========== Сканирование pgx.Rows ==========

// scanRows материализует pgx.Rows в ResultSet.
// Имена колонок берутся из описаний полей; пустое имя (выражение без
// алиаса) получает позиционное имя, текст запроса не анализируется.
func scanRows(rows pgx.Rows) (*backend.ResultSet, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	inferred := false
	for i, fd := range fields {
		columns[i] = fd.Name
		if columns[i] == "" {
			columns[i] = fmt.Sprintf("column_%d", i+1)
			inferred = true
		}
	}

	var raw [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		coerced := make([]any, len(values))
		for i, v := range values {
			coerced[i], _ = backend.CoerceRowValue(normalizePgValue(v))
		}
		raw = append(raw, coerced)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	rs := backend.NewResultSet(columns, raw)
	rs.ColumnsInferred = inferred
	return rs, nil
}

// normalizePgValue приводит pgx-специфичные типы к стандартным Go-типам
// до общего приведения. DECIMAL приходит как pgtype.Numeric.
func normalizePgValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if f, err := t.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return nil
	case *pgtype.Numeric:
		if t == nil {
			return nil
		}
		if f, err := t.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return nil
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	}
	return v
}

// ========== Классификация ошибок ==========

// classify отображает SQLSTATE в класс ошибки контракта.
// CockroachDB сигнализирует конфликт сериализации кодом 40001
// ("restart transaction"), это безопасный для повтора класс.
func classify(err error) backend.Class {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		switch code {
		case "40001", "40P01":
			return backend.ClassTransient
		case "42P01", "42703":
			return backend.ClassNotFound
		}
		if len(code) >= 2 {
			switch code[:2] {
			case "23", "22":
				return backend.ClassConstraint
			case "08", "28", "53", "57":
				return backend.ClassConnectivity
			}
		}
		return backend.ClassInternal
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return backend.ClassNotFound
	}
	return backend.ClassifyFallback(err)
}
