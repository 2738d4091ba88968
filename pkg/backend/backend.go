package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Config - универсальная конфигурация подключения к backend'у
type Config struct {
	// Type - тип backend'а: "cockroach", "tidb", "sqlite"
	Type string

	// DSN - строка подключения (connection string)
	// Примеры:
	//   CockroachDB: "postgresql://root@localhost:26257/tpcc?sslmode=disable"
	//   TiDB:        "root@tcp(localhost:4000)/tpcc"
	//   SQLite:      "file:tpcc.db" или ":memory:"
	DSN string

	// Timeout - таймаут одного запроса. 0 = без таймаута.
	Timeout time.Duration

	// MaxConns - максимальное количество подключений в пуле
	MaxConns int

	// MinConns - минимальное количество idle подключений
	MinConns int

	// Params - дополнительные параметры драйвера (ключ-значение)
	Params map[string]string
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("backend type is required")
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must be >= 0, got %d", c.MaxConns)
	}
	if c.MinConns < 0 {
		return fmt.Errorf("min_conns must be >= 0, got %d", c.MinConns)
	}
	if c.MaxConns > 0 && c.MinConns > c.MaxConns {
		return fmt.Errorf("min_conns (%d) must be <= max_conns (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// SetDefaults устанавливает значения по умолчанию
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
}

// MarkerFunc возвращает нативный маркер параметра для позиции pos (с 1)
type MarkerFunc func(pos int) string

// MarkerDollar - маркеры вида $1, $2, ... (PostgreSQL wire: CockroachDB)
func MarkerDollar(pos int) string {
	return "$" + strconv.Itoa(pos)
}

// MarkerQuestion - маркеры вида ? (MySQL wire: TiDB, а также SQLite)
func MarkerQuestion(pos int) string {
	return "?"
}

// Backend - универсальный интерфейс выполнения запросов.
// Реализуется каждым конкретным backend'ом (CockroachDB, TiDB, SQLite).
// Все методы контракта возвращают классифицированные ошибки (*Error),
// сырые ошибки драйвера за границу контракта не выходят.
type Backend interface {
	// ========== Lifecycle ==========

	// Connect устанавливает подключение к backend'у
	Connect(ctx context.Context, cfg Config) error

	// Close закрывает подключение и освобождает пул
	Close() error

	// Ping проверяет доступность backend'а
	Ping(ctx context.Context) error

	// ========== Контракт выполнения ==========

	// ExecuteQuery выполняет чтение и материализует весь результат.
	// Ошибка возвращается явно и никогда не кодируется пустым результатом.
	ExecuteQuery(ctx context.Context, q Query) (*ResultSet, error)

	// ExecuteDML выполняет один модифицирующий оператор как автономную
	// транзакцию. Возвращает только успех/ошибку.
	ExecuteDML(ctx context.Context, q Query) error

	// ExecuteDDL выполняет изменение схемы и блокируется до завершения
	ExecuteDDL(ctx context.Context, stmt string) error

	// RunInTransaction выполняет упорядоченную группу операторов атомарно:
	// ошибка любого оператора откатывает всю группу
	RunInTransaction(ctx context.Context, plan []Query) error

	// ExecuteNewOrder выполняет протокол New-Order одной read-write
	// транзакцией (инкремент d_next_o_id требует чтения внутри транзакции)
	ExecuteNewOrder(ctx context.Context, req NewOrderRequest) (*NewOrderResult, error)

	// ========== Metadata ==========

	// BackendType возвращает тип backend'а: "cockroach", "tidb", "sqlite"
	BackendType() string

	// Marker возвращает функцию нативных маркеров параметров
	Marker() MarkerFunc
}

// ========== Sentinel errors ==========

var (
	// ErrNotConnected - операция вызвана до Connect или после Close
	ErrNotConnected = errors.New("backend is not connected")

	// ErrEmptyPlan - RunInTransaction получил пустую группу операторов
	ErrEmptyPlan = errors.New("transaction plan is empty")
)
