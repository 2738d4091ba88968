// Package tidb реализует контракт выполнения поверх TiDB
// (MySQL wire protocol, маркеры ?) через database/sql и go-sql-driver.
package tidb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/backend/base"
)

// Compile-time check: Backend должен реализовывать интерфейс backend.Backend
var _ backend.Backend = (*Backend)(nil)

// Регистрация в глобальной фабрике
func init() {
	backend.Register("tidb", func() backend.Backend {
		return &Backend{}
	})
}

// Backend - реализация контракта для TiDB
type Backend struct {
	db   *sql.DB
	base *base.DB
}

// Connect устанавливает подключение к TiDB
func (b *Backend) Connect(ctx context.Context, cfg backend.Config) error {
	dsnCfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return backend.WrapError(backend.ClassConnectivity, "tidb", "connect",
			fmt.Errorf("failed to parse connection string: %w", err))
	}
	// time.Time вместо сырых байт для DATETIME/TIMESTAMP
	dsnCfg.ParseTime = true

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return backend.WrapError(backend.ClassConnectivity, "tidb", "connect",
			fmt.Errorf("failed to open database: %w", err))
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return backend.WrapError(backend.ClassConnectivity, "tidb", "connect",
			fmt.Errorf("failed to ping database: %w", err))
	}

	b.db = db
	b.base = base.New(db, "tidb", backend.MarkerQuestion, classify, cfg.Timeout)
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

// Ping проверяет доступность backend'а
func (b *Backend) Ping(ctx context.Context) error {
	if b.db == nil {
		return backend.WrapError(backend.ClassConnectivity, "tidb", "ping", backend.ErrNotConnected)
	}
	if err := b.db.PingContext(ctx); err != nil {
		return backend.WrapError(classify(err), "tidb", "ping", err)
	}
	return nil
}

// BackendType возвращает тип backend'а
func (b *Backend) BackendType() string {
	return "tidb"
}

// Marker возвращает функцию нативных маркеров ?
func (b *Backend) Marker() backend.MarkerFunc {
	return backend.MarkerQuestion
}

func (b *Backend) ready(op string) error {
	if b.base == nil {
		return backend.WrapError(backend.ClassConnectivity, "tidb", op, backend.ErrNotConnected)
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

// ========== Классификация ошибок ==========

// classify отображает коды MySQL-протокола в классы ошибок контракта.
// TiDB добавляет собственные коды конфликтов записи (8005, 9007),
// безопасные для повтора.
func classify(err error) backend.Class {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062, 1048, 1366, 1264, 1292, 1452, 3819:
			return backend.ClassConstraint
		case 1213, 1205, 8005, 9007:
			return backend.ClassTransient
		case 1146, 1054:
			return backend.ClassNotFound
		case 1040, 1044, 1045, 1049, 1053, 1129, 1130:
			return backend.ClassConnectivity
		}
		return backend.ClassInternal
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return backend.ClassConnectivity
	}
	return backend.ClassifyFallback(err)
}
