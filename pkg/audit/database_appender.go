package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DatabaseAppender - запись событий в SQL таблицу.
// Использует маркеры `?`, поэтому рассчитан на семейство драйверов
// sqlite/mysql (локальный журнал рядом с workbench'ом, не на измеряемом
// backend'е).
type DatabaseAppender struct {
	db         *sql.DB
	tableName  string
	level      Level
	batchSize  int
	batchQueue []*Entry
	insertStmt *sql.Stmt
}

// DatabaseAppenderConfig - конфигурация database appender
type DatabaseAppenderConfig struct {
	// DB - подключение к базе данных
	DB *sql.DB

	// TableName - имя таблицы для журнала
	TableName string

	// Level - уровень детализации
	Level Level

	// BatchSize - размер batch для группового insert (0 = без batching)
	BatchSize int

	// AutoCreateTable - автоматически создать таблицу если не существует
	AutoCreateTable bool
}

// NewDatabaseAppender - создать database appender
func NewDatabaseAppender(config DatabaseAppenderConfig) (*DatabaseAppender, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if config.TableName == "" {
		config.TableName = "workbench_events"
	}

	da := &DatabaseAppender{
		db:         config.DB,
		tableName:  config.TableName,
		level:      config.Level,
		batchSize:  config.BatchSize,
		batchQueue: make([]*Entry, 0, config.BatchSize),
	}

	// Создаем таблицу если нужно
	if config.AutoCreateTable {
		if err := da.createTable(); err != nil {
			return nil, fmt.Errorf("failed to create events table: %w", err)
		}
	}

	// Подготавливаем insert statement
	if err := da.prepareInsert(); err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	return da, nil
}

// createTable - создать таблицу журнала
func (da *DatabaseAppender) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(255) PRIMARY KEY,
			ts TIMESTAMP NOT NULL,
			operation VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL,
			backend VARCHAR(50),
			table_name VARCHAR(255),
			rows_affected BIGINT DEFAULT 0,
			duration_ms BIGINT DEFAULT 0,
			error_message TEXT,
			details TEXT,
			statement TEXT,
			session_id VARCHAR(255)
		)
	`, da.tableName)

	if _, err := da.db.Exec(query); err != nil {
		return err
	}

	// Создаем индексы
	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s(ts)", da.tableName, da.tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_operation ON %s(operation)", da.tableName, da.tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_status ON %s(status)", da.tableName, da.tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_session ON %s(session_id)", da.tableName, da.tableName),
	}

	for _, indexQuery := range indexes {
		if _, err := da.db.Exec(indexQuery); err != nil {
			// Игнорируем ошибки создания индексов (они могут не поддерживаться)
			continue
		}
	}

	return nil
}

// prepareInsert - подготовить insert statement
func (da *DatabaseAppender) prepareInsert() error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, ts, operation, status, backend, table_name,
			rows_affected, duration_ms, error_message, details, statement, session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, da.tableName)

	stmt, err := da.db.Prepare(query)
	if err != nil {
		return err
	}

	da.insertStmt = stmt
	return nil
}

// Append - записать entry в базу данных
func (da *DatabaseAppender) Append(ctx context.Context, entry *Entry) error {
	// Фильтруем по уровню
	filtered := entry.FilterByLevel(da.level)

	// Batching режим
	if da.batchSize > 0 {
		da.batchQueue = append(da.batchQueue, filtered)

		// Если batch заполнен, записываем
		if len(da.batchQueue) >= da.batchSize {
			return da.flushBatch(ctx)
		}

		return nil
	}

	// Прямая запись
	return da.insertEntry(ctx, filtered)
}

// insertEntry - вставить одну entry
func (da *DatabaseAppender) insertEntry(ctx context.Context, entry *Entry) error {
	_, err := da.insertStmt.ExecContext(ctx, insertArgs(entry)...)
	return err
}

// insertArgs - аргументы insert statement в порядке колонок
func insertArgs(entry *Entry) []interface{} {
	detailsJSON := "{}"
	if len(entry.Details) > 0 {
		if data, err := json.Marshal(entry.Details); err == nil {
			detailsJSON = string(data)
		}
	}

	return []interface{}{
		entry.ID,
		entry.Timestamp,
		string(entry.Operation),
		string(entry.Status),
		entry.Backend,
		entry.Table,
		entry.Rows,
		entry.Duration.Milliseconds(),
		entry.ErrorMessage,
		detailsJSON,
		entry.Statement,
		entry.SessionID,
	}
}

// flushBatch - записать batch entries
func (da *DatabaseAppender) flushBatch(ctx context.Context) error {
	if len(da.batchQueue) == 0 {
		return nil
	}

	// Начинаем транзакцию
	tx, err := da.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Создаем statement в контексте транзакции
	stmt := tx.StmtContext(ctx, da.insertStmt)
	defer stmt.Close()

	// Вставляем все entries
	for _, entry := range da.batchQueue {
		if _, err := stmt.ExecContext(ctx, insertArgs(entry)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert entry: %w", err)
		}
	}

	// Коммитим транзакцию
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Очищаем batch queue
	da.batchQueue = da.batchQueue[:0]

	return nil
}

// Flush - сбросить batch queue
func (da *DatabaseAppender) Flush() error {
	if da.batchSize > 0 && len(da.batchQueue) > 0 {
		return da.flushBatch(context.Background())
	}
	return nil
}

// Close - закрыть database appender
func (da *DatabaseAppender) Close() error {
	// Сбрасываем оставшиеся entries
	if err := da.Flush(); err != nil {
		return err
	}

	// Закрываем prepared statement
	if da.insertStmt != nil {
		return da.insertStmt.Close()
	}

	return nil
}

// QueryFilter - фильтр для выборки событий
type QueryFilter struct {
	Operation Operation
	Status    Status
	Backend   string
	SessionID string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// buildWhere - собрать WHERE условия и аргументы по фильтру
func (f QueryFilter) buildWhere() (string, []interface{}) {
	where := ""
	args := make([]interface{}, 0)

	if f.Operation != "" {
		where += " AND operation = ?"
		args = append(args, string(f.Operation))
	}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Backend != "" {
		where += " AND backend = ?"
		args = append(args, f.Backend)
	}
	if f.SessionID != "" {
		where += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if !f.StartTime.IsZero() {
		where += " AND ts >= ?"
		args = append(args, f.StartTime)
	}
	if !f.EndTime.IsZero() {
		where += " AND ts <= ?"
		args = append(args, f.EndTime)
	}

	return where, args
}

// Query - выбрать события из таблицы
func (da *DatabaseAppender) Query(ctx context.Context, filter QueryFilter) ([]*Entry, error) {
	where, args := filter.buildWhere()

	query := fmt.Sprintf(`
		SELECT id, ts, operation, status, backend, table_name,
		       rows_affected, duration_ms, error_message, details, statement, session_id
		FROM %s WHERE 1=1%s ORDER BY ts DESC`, da.tableName, where)

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := da.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)

	for rows.Next() {
		entry := &Entry{}
		var operation, status string
		var detailsJSON sql.NullString
		var errorMessage, statement, sessionID, backend, tableName sql.NullString
		var durationMs int64

		err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&operation,
			&status,
			&backend,
			&tableName,
			&entry.Rows,
			&durationMs,
			&errorMessage,
			&detailsJSON,
			&statement,
			&sessionID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		entry.Operation = Operation(operation)
		entry.Status = Status(status)
		entry.Backend = backend.String
		entry.Table = tableName.String
		entry.ErrorMessage = errorMessage.String
		entry.Statement = statement.String
		entry.SessionID = sessionID.String
		entry.Duration = time.Duration(durationMs) * time.Millisecond

		if detailsJSON.Valid && detailsJSON.String != "" && detailsJSON.String != "{}" {
			json.Unmarshal([]byte(detailsJSON.String), &entry.Details)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// Count - подсчитать количество событий по фильтру
func (da *DatabaseAppender) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := filter.buildWhere()
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", da.tableName, where)

	var count int64
	err := da.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}

	return count, nil
}

// DeleteOlderThan - удалить события старше заданного момента
func (da *DatabaseAppender) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE ts < ?", da.tableName)

	result, err := da.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
