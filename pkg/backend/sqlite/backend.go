// Package sqlite реализует контракт выполнения поверх встраиваемого
// SQLite (modernc.org/sqlite, чистый Go без cgo). Используется для
// локальных прогонов и собственных тестов harness'а.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/backend/base"
)

// Compile-time check: Backend должен реализовывать интерфейс backend.Backend
var _ backend.Backend = (*Backend)(nil)

// Регистрация в глобальной фабрике
func init() {
	backend.Register("sqlite", func() backend.Backend {
		return &Backend{}
	})
}

// Backend - реализация контракта для SQLite
type Backend struct {
	db   *sql.DB
	base *base.DB
}

// Connect открывает файл базы данных
func (b *Backend) Connect(ctx context.Context, cfg backend.Config) error {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return backend.WrapError(backend.ClassConnectivity, "sqlite", "connect",
			fmt.Errorf("failed to open database: %w", err))
	}

	if isMemoryDSN(cfg.DSN) {
		// Каждое соединение пула видит собственную in-memory базу,
		// поэтому пул ограничивается одним соединением
		db.SetMaxOpenConns(1)
	} else if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MinConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return backend.WrapError(backend.ClassConnectivity, "sqlite", "connect",
			fmt.Errorf("failed to ping database: %w", err))
	}

	// Ожидание вместо немедленного SQLITE_BUSY при конкурентной записи
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return backend.WrapError(backend.ClassConnectivity, "sqlite", "connect",
			fmt.Errorf("failed to set busy_timeout: %w", err))
	}

	b.db = db
	b.base = base.New(db, "sqlite", backend.MarkerQuestion, classify, cfg.Timeout)
	return nil
}

// Close закрывает подключение
func (b *Backend) Close() error {
	if b.db != nil {
		err := b.db.Close()
		b.db = nil
		b.base = nil
		if err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

// Ping проверяет доступность базы
func (b *Backend) Ping(ctx context.Context) error {
	if b.db == nil {
		return backend.WrapError(backend.ClassConnectivity, "sqlite", "ping", backend.ErrNotConnected)
	}
	if err := b.db.PingContext(ctx); err != nil {
		return backend.WrapError(classify(err), "sqlite", "ping", err)
	}
	return nil
}

// BackendType возвращает тип backend'а
func (b *Backend) BackendType() string {
	return "sqlite"
}

// Marker возвращает функцию нативных маркеров ?
func (b *Backend) Marker() backend.MarkerFunc {
	return backend.MarkerQuestion
}

func (b *Backend) ready(op string) error {
	if b.base == nil {
		return backend.WrapError(backend.ClassConnectivity, "sqlite", op, backend.ErrNotConnected)
	}
	return nil
}

// ExecuteQuery выполняет чтение и материализует результат
func (b *Backend) ExecuteQuery(ctx context.Context, q backend.Query) (*backend.ResultSet, error) {
	if err := b.ready("query"); err != nil {
		return nil, err
	}
	return b.base.RunQuery(ctx, q)
}

// ExecuteDML выполняет один модифицирующий оператор
func (b *Backend) ExecuteDML(ctx context.Context, q backend.Query) error {
	if err := b.ready("dml"); err != nil {
		return err
	}
	return b.base.RunDML(ctx, q)
}

// ExecuteDDL выполняет изменение схемы
func (b *Backend) ExecuteDDL(ctx context.Context, stmt string) error {
	if err := b.ready("ddl"); err != nil {
		return err
	}
	return b.base.RunDDL(ctx, stmt)
}

// RunInTransaction выполняет группу операторов атомарно
func (b *Backend) RunInTransaction(ctx context.Context, plan []backend.Query) error {
	if err := b.ready("txn"); err != nil {
		return err
	}
	return b.base.RunGroup(ctx, plan)
}

// ExecuteNewOrder выполняет протокол New-Order одной транзакцией
func (b *Backend) ExecuteNewOrder(ctx context.Context, req backend.NewOrderRequest) (*backend.NewOrderResult, error) {
	if err := b.ready("new_order"); err != nil {
		return nil, err
	}
	return b.base.RunNewOrderTx(ctx, req)
}

// isMemoryDSN распознает in-memory базу в любой из форм DSN
func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// ========== Классификация ошибок ==========

// classify отображает ошибки SQLite в классы контракта.
// Драйвер не экспортирует типизированные коды в удобной форме,
// классификация идет по стабильным сигнатурам сообщений.
func classify(err error) backend.Class {
	if err == nil {
		return backend.ClassInternal
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "NOT NULL constraint failed"),
		strings.Contains(msg, "CHECK constraint failed"),
		strings.Contains(msg, "FOREIGN KEY constraint failed"),
		strings.Contains(msg, "cannot store"), // STRICT: несовместимый тип
		strings.Contains(msg, "constraint failed"):
		return backend.ClassConstraint
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"):
		return backend.ClassNotFound
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "busy"):
		return backend.ClassTransient
	case strings.Contains(msg, "unable to open database"):
		return backend.ClassConnectivity
	}
	return backend.ClassifyFallback(err)
}
