package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// TestEntryBuilder проверяет цепочку builder-методов записи
func TestEntryBuilder(t *testing.T) {
	entry := NewEntry(OpNewOrder, StatusSuccess).
		WithBackend("cockroach").
		WithTable("orders").
		WithRows(5).
		WithDuration(250 * time.Millisecond).
		WithDetail("order_id", int64(3001)).
		WithSessionID("bench-42")

	if entry.Operation != OpNewOrder {
		t.Errorf("Operation = %q, want %q", entry.Operation, OpNewOrder)
	}
	if entry.Backend != "cockroach" {
		t.Errorf("Backend = %q, want %q", entry.Backend, "cockroach")
	}
	if entry.Table != "orders" {
		t.Errorf("Table = %q, want %q", entry.Table, "orders")
	}
	if entry.Rows != 5 {
		t.Errorf("Rows = %d, want 5", entry.Rows)
	}
	if entry.Duration != 250*time.Millisecond {
		t.Errorf("Duration = %v, want 250ms", entry.Duration)
	}
	if entry.Details["order_id"] != int64(3001) {
		t.Errorf("Details[order_id] = %v, want 3001", entry.Details["order_id"])
	}
	if entry.SessionID != "bench-42" {
		t.Errorf("SessionID = %q, want %q", entry.SessionID, "bench-42")
	}
	if entry.ID == "" || entry.Timestamp.IsZero() {
		t.Error("Expected generated ID and timestamp")
	}
}

// TestEntryWithError проверяет что ошибка переводит запись в failure
func TestEntryWithError(t *testing.T) {
	entry := NewEntry(OpPayment, StatusSuccess).WithError(errors.New("connection refused"))

	if entry.Status != StatusFailure {
		t.Errorf("Status = %q, want %q", entry.Status, StatusFailure)
	}
	if entry.ErrorMessage != "connection refused" {
		t.Errorf("ErrorMessage = %q, want %q", entry.ErrorMessage, "connection refused")
	}

	// nil не меняет статус
	clean := NewEntry(OpPayment, StatusSuccess).WithError(nil)
	if clean.Status != StatusSuccess {
		t.Errorf("Status after nil error = %q, want %q", clean.Status, StatusSuccess)
	}
}

// TestEntryWithWarning проверяет деградацию статуса: success
// становится degraded, failure не понижается
func TestEntryWithWarning(t *testing.T) {
	entry := NewEntry(OpNewOrder, StatusSuccess).WithWarning("history insert failed")
	if entry.Status != StatusDegraded {
		t.Errorf("Status = %q, want %q", entry.Status, StatusDegraded)
	}
	if entry.Details["warning"] != "history insert failed" {
		t.Errorf("Details[warning] = %v, want warning text", entry.Details["warning"])
	}

	failed := NewEntry(OpNewOrder, StatusFailure).WithWarning("late warning")
	if failed.Status != StatusFailure {
		t.Errorf("Status = %q, failure must not be downgraded", failed.Status)
	}
}

// TestEntryFilterByLevel проверяет фильтрацию полей по уровню
func TestEntryFilterByLevel(t *testing.T) {
	entry := NewEntry(OpQuery, StatusSuccess).
		WithDetail("threshold", int64(10)).
		WithStatement("SELECT COUNT(*) FROM stock").
		WithSessionID("sess-1")

	minimal := entry.FilterByLevel(LevelMinimal)
	if minimal.Details != nil || minimal.Statement != "" || minimal.SessionID != "" {
		t.Error("Minimal level should drop details, statement and session id")
	}
	if minimal.Operation != OpQuery {
		t.Error("Minimal level should keep the operation")
	}

	standard := entry.FilterByLevel(LevelStandard)
	if standard.Statement != "" {
		t.Error("Standard level should drop the statement")
	}
	if standard.Details["threshold"] != int64(10) {
		t.Error("Standard level should keep details")
	}

	full := entry.FilterByLevel(LevelFull)
	if full.Statement == "" || full.SessionID == "" {
		t.Error("Full level should keep everything")
	}

	// Исходная запись не изменяется
	if entry.Statement == "" || entry.Details == nil {
		t.Error("FilterByLevel must not mutate the original entry")
	}
}

// TestEntryJSON проверяет сериализацию записи
func TestEntryJSON(t *testing.T) {
	entry := NewEntry(OpStockLevel, StatusSuccess).
		WithBackend("sqlite").
		WithRows(7)

	data, err := entry.ToJSON()
	if err != nil {
		t.Fatalf("Failed to marshal entry: %v", err)
	}
	if !strings.Contains(string(data), `"operation":"stock_level"`) {
		t.Errorf("JSON = %s, want operation field", data)
	}
	if !strings.Contains(string(data), `"backend":"sqlite"`) {
		t.Errorf("JSON = %s, want backend field", data)
	}

	indented, err := entry.ToJSONIndent()
	if err != nil {
		t.Fatalf("Failed to marshal indented entry: %v", err)
	}
	if len(indented) <= len(data) {
		t.Error("Expected indented JSON to be longer")
	}
}

// TestParseLevel проверяет разбор уровня из конфигурации
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"minimal", LevelMinimal},
		{"standard", LevelStandard},
		{"full", LevelFull},
		{"unknown", LevelStandard},
		{"", LevelStandard},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestFileAppenderWrite проверяет запись JSON-lines в файл
func TestFileAppenderWrite(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "events.log")

	appender, err := NewFileAppender(FileAppenderConfig{
		FilePath: filePath,
		Level:    LevelStandard,
	})
	if err != nil {
		t.Fatalf("Failed to create file appender: %v", err)
	}
	defer appender.Close()

	ctx := context.Background()
	first := NewEntry(OpNewOrder, StatusSuccess).WithBackend("sqlite").WithRows(3)
	second := NewEntry(OpPayment, StatusFailure).WithError(errors.New("boom"))

	if err := appender.Append(ctx, first); err != nil {
		t.Fatalf("Failed to append entry: %v", err)
	}
	if err := appender.Append(ctx, second); err != nil {
		t.Fatalf("Failed to append entry: %v", err)
	}
	if appender.CurrentSize() == 0 {
		t.Error("Expected non-zero file size")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read audit file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 JSON lines, got %d", len(lines))
	}

	var decoded Entry
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("Failed to unmarshal first line: %v", err)
	}
	if decoded.Operation != OpNewOrder || decoded.Rows != 3 {
		t.Errorf("decoded = %+v, want new_order with 3 rows", decoded)
	}
	if !strings.Contains(lines[1], `"error_message":"boom"`) {
		t.Errorf("second line = %s, want error message", lines[1])
	}
}

// TestFileAppenderRotation проверяет ротацию по размеру файла
func TestFileAppenderRotation(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "events.log")

	appender, err := NewFileAppender(FileAppenderConfig{
		FilePath:   filePath,
		MaxSize:    1, // 1 MB
		MaxBackups: 2,
		Level:      LevelFull,
	})
	if err != nil {
		t.Fatalf("Failed to create file appender: %v", err)
	}
	defer appender.Close()

	// Каждая запись ~64KB, двадцать записей гарантированно превышают 1MB
	bigStatement := strings.Repeat("x", 64*1024)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		entry := NewEntry(OpQuery, StatusSuccess).
			WithStatement(bigStatement).
			WithRows(int64(i))
		if err := appender.Append(ctx, entry); err != nil {
			t.Fatalf("Failed to append entry %d: %v", i, err)
		}
	}

	if _, err := os.Stat(filePath + ".1"); err != nil {
		t.Errorf("Expected backup file after rotation: %v", err)
	}
	if appender.CurrentSize() == 0 {
		t.Error("Expected non-zero size in the fresh file")
	}
}

// TestConsoleAppender проверяет однострочный текстовый вывод
func TestConsoleAppender(t *testing.T) {
	var buf bytes.Buffer
	appender := NewConsoleAppenderTo(&buf, LevelStandard)

	entry := NewEntry(OpDelivery, StatusSuccess).
		WithBackend("tidb").
		WithTable("orders").
		WithRows(10)

	if err := appender.Append(context.Background(), entry); err != nil {
		t.Fatalf("Failed to append entry: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "delivery success") {
		t.Errorf("output = %q, want operation and status", out)
	}
	if !strings.Contains(out, "backend=tidb") || !strings.Contains(out, "table=orders") {
		t.Errorf("output = %q, want backend and table", out)
	}
	if err := appender.Close(); err != nil {
		t.Errorf("Unexpected error on close: %v", err)
	}
}

// TestMultiAppender проверяет дублирование записи в несколько appenders
func TestMultiAppender(t *testing.T) {
	var first, second bytes.Buffer
	multi := NewMultiAppender(
		NewConsoleAppenderTo(&first, LevelStandard),
		NewConsoleAppenderTo(&second, LevelMinimal),
	)

	entry := NewEntry(OpACIDSuite, StatusSuccess).WithBackend("sqlite")
	if err := multi.Append(context.Background(), entry); err != nil {
		t.Fatalf("Failed to append to multi appender: %v", err)
	}

	if first.Len() == 0 || second.Len() == 0 {
		t.Error("Expected both appenders to receive the entry")
	}
	if err := multi.Close(); err != nil {
		t.Errorf("Unexpected error on close: %v", err)
	}
}

// TestLoggerSync проверяет синхронную запись с backend по умолчанию
func TestLoggerSync(t *testing.T) {
	var buf bytes.Buffer
	config := SyncConfig()
	config.DefaultBackend = "sqlite"

	logger := NewLogger(config, NewConsoleAppenderTo(&buf, LevelStandard))
	defer logger.Close()

	entry := NewEntry(OpOrderStatus, StatusSuccess)
	if err := logger.Log(context.Background(), entry); err != nil {
		t.Fatalf("Failed to log entry: %v", err)
	}

	if entry.Backend != "sqlite" {
		t.Errorf("Backend = %q, want default %q", entry.Backend, "sqlite")
	}
	if !strings.Contains(buf.String(), "order_status success") {
		t.Errorf("output = %q, want logged entry", buf.String())
	}
}

// TestLoggerAsync проверяет что Close дописывает буферизованные записи
func TestLoggerAsync(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "events.log")
	appender, err := NewFileAppender(FileAppenderConfig{
		FilePath: filePath,
		Level:    LevelStandard,
	})
	if err != nil {
		t.Fatalf("Failed to create file appender: %v", err)
	}

	config := DefaultConfig()
	config.AsyncMode = true
	config.BufferSize = 100

	logger := NewLogger(config, appender)
	for i := 0; i < 10; i++ {
		entry := NewEntry(OpNewOrder, StatusSuccess).WithRows(int64(i))
		if err := logger.Log(context.Background(), entry); err != nil {
			t.Fatalf("Failed to log entry %d: %v", i, err)
		}
	}

	// Close ждет обработки канала и закрывает appenders
	if err := logger.Close(); err != nil {
		t.Fatalf("Failed to close logger: %v", err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read audit file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 10 {
		t.Errorf("Expected 10 entries after close, got %d", len(lines))
	}
}

// TestLoggerLogOperation проверяет вспомогательные методы логгера
func TestLoggerLogOperation(t *testing.T) {
	logger := NewLogger(SyncConfig(), NewNullAppender())
	defer logger.Close()

	ctx := context.Background()

	entry := logger.LogSuccess(ctx, OpDelivery)
	if entry.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", entry.Status, StatusSuccess)
	}
	if entry.Operation != OpDelivery {
		t.Errorf("Operation = %q, want %q", entry.Operation, OpDelivery)
	}

	testErr := errors.New("deadlock detected")
	entry = logger.LogFailure(ctx, OpNewOrder, testErr)
	if entry.Status != StatusFailure {
		t.Errorf("Status = %q, want %q", entry.Status, StatusFailure)
	}
	if entry.ErrorMessage != testErr.Error() {
		t.Errorf("ErrorMessage = %q, want %q", entry.ErrorMessage, testErr.Error())
	}
}

// TestNullLogger проверяет что пустой логгер никогда не ошибается
func TestNullLogger(t *testing.T) {
	logger := NewNullLogger()

	if err := logger.Log(context.Background(), NewEntry(OpQuery, StatusSuccess)); err != nil {
		t.Errorf("NullLogger.Log error = %v, want nil", err)
	}

	entry := logger.LogSuccess(context.Background(), OpPayment)
	if entry.Operation != OpPayment {
		t.Error("Expected valid entry from NullLogger")
	}

	if err := logger.Flush(); err != nil {
		t.Errorf("NullLogger.Flush error = %v, want nil", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NullLogger.Close error = %v, want nil", err)
	}
}

// stubBroker имитирует message broker для проверки публикации
type stubBroker struct {
	sent [][]byte
}

func (sb *stubBroker) Connect(ctx context.Context) error { return nil }
func (sb *stubBroker) Close() error                      { return nil }
func (sb *stubBroker) Send(ctx context.Context, message []byte) error {
	sb.sent = append(sb.sent, message)
	return nil
}
func (sb *stubBroker) Receive(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
func (sb *stubBroker) Ping(ctx context.Context) error { return nil }
func (sb *stubBroker) GetBrokerType() string          { return "stub" }

// TestBrokerAppender проверяет публикацию записей в брокер
func TestBrokerAppender(t *testing.T) {
	broker := &stubBroker{}
	appender := NewBrokerAppender(broker, LevelStandard)

	entry := NewEntry(OpPayment, StatusSuccess).
		WithBackend("cockroach").
		WithStatement("UPDATE customer SET c_balance = c_balance - 10")

	if err := appender.Append(context.Background(), entry); err != nil {
		t.Fatalf("Failed to append entry: %v", err)
	}
	if len(broker.sent) != 1 {
		t.Fatalf("Expected 1 published message, got %d", len(broker.sent))
	}

	payload := string(broker.sent[0])
	if !strings.Contains(payload, `"operation":"payment"`) {
		t.Errorf("payload = %s, want operation field", payload)
	}
	// Standard level отрезает текст оператора перед публикацией
	if strings.Contains(payload, "UPDATE customer") {
		t.Errorf("payload = %s, statement must be filtered out", payload)
	}
}

// TestDatabaseAppender проверяет запись и выборку событий из SQL таблицы
func TestDatabaseAppender(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open sqlite database: %v", err)
	}
	defer db.Close()

	appender, err := NewDatabaseAppender(DatabaseAppenderConfig{
		DB:              db,
		TableName:       "workbench_events",
		Level:           LevelStandard,
		AutoCreateTable: true,
	})
	if err != nil {
		t.Fatalf("Failed to create database appender: %v", err)
	}
	defer appender.Close()

	ctx := context.Background()
	entry := NewEntry(OpACIDCheck, StatusSuccess).
		WithBackend("sqlite").
		WithTable("acid_accounts").
		WithRows(3).
		WithDuration(25 * time.Millisecond).
		WithDetail("check", "atomicity").
		WithSessionID("1710500000000")

	if err := appender.Append(ctx, entry); err != nil {
		t.Fatalf("Failed to append entry: %v", err)
	}

	entries, err := appender.Query(ctx, QueryFilter{
		Operation: OpACIDCheck,
		SessionID: "1710500000000",
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("Failed to query entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	got := entries[0]
	if got.Rows != 3 {
		t.Errorf("Rows = %d, want 3", got.Rows)
	}
	if got.Table != "acid_accounts" {
		t.Errorf("Table = %q, want %q", got.Table, "acid_accounts")
	}
	if got.Duration != 25*time.Millisecond {
		t.Errorf("Duration = %v, want 25ms", got.Duration)
	}
	if got.Details["check"] != "atomicity" {
		t.Errorf("Details[check] = %v, want atomicity", got.Details["check"])
	}
}

// TestDatabaseAppenderBatch проверяет групповую вставку с flush
func TestDatabaseAppenderBatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open sqlite database: %v", err)
	}
	defer db.Close()

	appender, err := NewDatabaseAppender(DatabaseAppenderConfig{
		DB:              db,
		Level:           LevelStandard,
		BatchSize:       5,
		AutoCreateTable: true,
	})
	if err != nil {
		t.Fatalf("Failed to create database appender: %v", err)
	}
	defer appender.Close()

	ctx := context.Background()
	for i := 0; i < 12; i++ {
		entry := NewEntry(OpNewOrder, StatusSuccess).WithRows(int64(i))
		if err := appender.Append(ctx, entry); err != nil {
			t.Fatalf("Failed to append entry %d: %v", i, err)
		}
	}

	// Два полных batch ушли, хвост дописывает Flush
	if err := appender.Flush(); err != nil {
		t.Fatalf("Failed to flush batch: %v", err)
	}

	count, err := appender.Count(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	if count != 12 {
		t.Errorf("count = %d, want 12", count)
	}
}

// TestDatabaseAppenderDeleteOld проверяет чистку устаревших событий
func TestDatabaseAppenderDeleteOld(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open sqlite database: %v", err)
	}
	defer db.Close()

	appender, err := NewDatabaseAppender(DatabaseAppenderConfig{
		DB:              db,
		Level:           LevelStandard,
		AutoCreateTable: true,
	})
	if err != nil {
		t.Fatalf("Failed to create database appender: %v", err)
	}
	defer appender.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := appender.Append(ctx, NewEntry(OpQuery, StatusSuccess)); err != nil {
			t.Fatalf("Failed to append entry %d: %v", i, err)
		}
	}

	deleted, err := appender.DeleteOlderThan(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Failed to delete old entries: %v", err)
	}
	if deleted != 5 {
		t.Errorf("deleted = %d, want 5", deleted)
	}

	count, err := appender.Count(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	if count != 0 {
		t.Errorf("count after delete = %d, want 0", count)
	}
}
