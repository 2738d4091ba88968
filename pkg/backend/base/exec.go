// Package base содержит общую database/sql обвязку для backend'ов,
// работающих через стандартный драйверный интерфейс (TiDB, SQLite).
// CockroachDB использует pgx напрямую и в base не нуждается.
package base

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// ClassifyFunc - типизированная классификация ошибки драйвера.
// Каждый backend передает свою; base добавляет общий fallback.
type ClassifyFunc func(err error) backend.Class

// DB - обвязка вокруг *sql.DB, реализующая контракт выполнения
type DB struct {
	db          *sql.DB
	backendType string
	marker      backend.MarkerFunc
	classify    ClassifyFunc
	timeout     time.Duration
}

// New создает обвязку над открытым *sql.DB
func New(db *sql.DB, backendType string, marker backend.MarkerFunc, classify ClassifyFunc, timeout time.Duration) *DB {
	return &DB{
		db:          db,
		backendType: backendType,
		marker:      marker,
		classify:    classify,
		timeout:     timeout,
	}
}

// Unwrap возвращает нижележащий *sql.DB
func (d *DB) Unwrap() *sql.DB {
	return d.db
}

// BackendType возвращает тип backend'а
func (d *DB) BackendType() string {
	return d.backendType
}

// Marker возвращает функцию нативных маркеров
func (d *DB) Marker() backend.MarkerFunc {
	return d.marker
}

func (d *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

// wrap классифицирует и оборачивает ошибку драйвера
func (d *DB) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	class := d.classify(err)
	if class == backend.ClassInternal {
		class = backend.ClassifyFallback(err)
	}
	return backend.WrapError(class, d.backendType, op, err)
}

// translate транслирует запрос в нативный SQL
func (d *DB) translate(op string, q backend.Query) (string, []any, error) {
	sqlText, params, err := backend.Translate(q.Text, q.Params, d.marker)
	if err != nil {
		return "", nil, backend.WrapError(backend.ClassTranslation, d.backendType, op, err)
	}
	return sqlText, backend.Args(params), nil
}

// RunQuery выполняет чтение и материализует результат
func (d *DB) RunQuery(ctx context.Context, q backend.Query) (*backend.ResultSet, error) {
	if d.db == nil {
		return nil, backend.WrapError(backend.ClassConnectivity, d.backendType, "query", backend.ErrNotConnected)
	}
	sqlText, args, err := d.translate("query", q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	rows, err := d.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, d.wrap("query", err)
	}
	defer rows.Close()

	rs, err := ScanRows(rows)
	if err != nil {
		return nil, d.wrap("query", err)
	}
	rs.Duration = time.Since(started)
	return rs, nil
}

// RunDML выполняет один модифицирующий оператор (автокоммит драйвера
// дает автономную транзакцию для одиночного оператора)
func (d *DB) RunDML(ctx context.Context, q backend.Query) error {
	if d.db == nil {
		return backend.WrapError(backend.ClassConnectivity, d.backendType, "dml", backend.ErrNotConnected)
	}
	sqlText, args, err := d.translate("dml", q)
	if err != nil {
		return err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if _, err := d.db.ExecContext(ctx, sqlText, args...); err != nil {
		return d.wrap("dml", err)
	}
	return nil
}

// RunDDL выполняет изменение схемы. Драйвер блокируется до завершения
// оператора, отдельного ожидания не требуется.
func (d *DB) RunDDL(ctx context.Context, stmt string) error {
	if d.db == nil {
		return backend.WrapError(backend.ClassConnectivity, d.backendType, "ddl", backend.ErrNotConnected)
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return d.wrap("ddl", err)
	}
	return nil
}

// RunGroup выполняет группу операторов в одной транзакции.
// Ошибка любого оператора откатывает всю группу.
func (d *DB) RunGroup(ctx context.Context, plan []backend.Query) error {
	if d.db == nil {
		return backend.WrapError(backend.ClassConnectivity, d.backendType, "txn", backend.ErrNotConnected)
	}
	if len(plan) == 0 {
		return backend.WrapError(backend.ClassTranslation, d.backendType, "txn", backend.ErrEmptyPlan)
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return d.wrap("txn", err)
	}

	for i, q := range plan {
		sqlText, args, terr := d.translate("txn", q)
		if terr != nil {
			_ = tx.Rollback()
			return terr
		}
		if _, err := tx.ExecContext(ctx, sqlText, args...); err != nil {
			_ = tx.Rollback()
			return d.wrap("txn", fmt.Errorf("statement %d/%d: %w", i+1, len(plan), err))
		}
	}

	if err := tx.Commit(); err != nil {
		return d.wrap("txn", err)
	}
	return nil
}

// RunNewOrderTx выполняет скрипт New-Order в одной транзакции
func (d *DB) RunNewOrderTx(ctx context.Context, req backend.NewOrderRequest) (*backend.NewOrderResult, error) {
	if d.db == nil {
		return nil, backend.WrapError(backend.ClassConnectivity, d.backendType, "new_order", backend.ErrNotConnected)
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, d.wrap("new_order", err)
	}

	result, err := RunNewOrder(ctx, &txExecer{d: d, tx: tx}, req)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, d.wrap("new_order", err)
	}
	return result, nil
}

// ========== Execer поверх *sql.Tx ==========

// txExecer реализует Execer внутри database/sql транзакции
type txExecer struct {
	d  *DB
	tx *sql.Tx
}

func (e *txExecer) BackendType() string {
	return e.d.backendType
}

func (e *txExecer) Exec(ctx context.Context, q backend.Query) error {
	sqlText, args, err := e.d.translate("new_order", q)
	if err != nil {
		return err
	}
	if _, err := e.tx.ExecContext(ctx, sqlText, args...); err != nil {
		return e.d.wrap("new_order", err)
	}
	return nil
}

func (e *txExecer) Query(ctx context.Context, q backend.Query) (*backend.ResultSet, error) {
	sqlText, args, err := e.d.translate("new_order", q)
	if err != nil {
		return nil, err
	}
	rows, err := e.tx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, e.d.wrap("new_order", err)
	}
	defer rows.Close()

	rs, err := ScanRows(rows)
	if err != nil {
		return nil, e.d.wrap("new_order", err)
	}
	return rs, nil
}

// ========== Сканирование строк ==========

// ScanRows материализует *sql.Rows в ResultSet с приведением значений
// к скалярному домену. []byte-значения дизамбигуируются по типу колонки
// (text-протокол MySQL отдает числа байтами).
func ScanRows(rows *sql.Rows) (*backend.ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read column names: %w", err)
	}

	// Колонки без метаданных (выражения без алиаса у части драйверов)
	// получают позиционные имена, текст запроса не анализируется
	inferred := false
	for i, col := range columns {
		if col == "" {
			columns[i] = "column_" + strconv.Itoa(i+1)
			inferred = true
		}
	}

	var dbTypes []string
	if colTypes, err := rows.ColumnTypes(); err == nil {
		dbTypes = make([]string, len(colTypes))
		for i, ct := range colTypes {
			dbTypes[i] = strings.ToUpper(ct.DatabaseTypeName())
		}
	}

	var raw [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		coerced := make([]any, len(values))
		for i, v := range values {
			if b, ok := v.([]byte); ok && i < len(dbTypes) {
				v = normalizeRawValue(dbTypes[i], b)
			}
			coerced[i], _ = backend.CoerceRowValue(v)
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

// normalizeRawValue интерпретирует []byte по объявленному типу колонки
func normalizeRawValue(dbType string, raw []byte) any {
	s := string(raw)
	switch {
	case isIntegerType(dbType):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case isDecimalType(dbType):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

func isIntegerType(dbType string) bool {
	switch dbType {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT",
		"UNSIGNED INT", "UNSIGNED BIGINT", "INT8", "INT4", "INT2":
		return true
	}
	return false
}

func isDecimalType(dbType string) bool {
	switch dbType {
	case "DECIMAL", "NEWDECIMAL", "NUMERIC", "DOUBLE", "FLOAT", "REAL":
		return true
	}
	return false
}
