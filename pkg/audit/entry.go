package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Level - уровень детализации логирования
type Level int

const (
	// LevelMinimal - только основная информация
	LevelMinimal Level = iota

	// LevelStandard - стандартная информация
	LevelStandard

	// LevelFull - полная информация включая текст операторов
	LevelFull
)

// String - строковое представление уровня
func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelStandard:
		return "standard"
	case LevelFull:
		return "full"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// ParseLevel разбирает уровень из строки конфигурации.
// Неизвестное значение дает LevelStandard.
func ParseLevel(s string) Level {
	switch s {
	case "minimal":
		return LevelMinimal
	case "full":
		return LevelFull
	default:
		return LevelStandard
	}
}

// Operation - тип операции
type Operation string

const (
	OpConnect     Operation = "connect"
	OpDisconnect  Operation = "disconnect"
	OpQuery       Operation = "query"
	OpDML         Operation = "dml"
	OpDDL         Operation = "ddl"
	OpTxn         Operation = "txn"
	OpNewOrder    Operation = "new_order"
	OpPayment     Operation = "payment"
	OpOrderStatus Operation = "order_status"
	OpDelivery    Operation = "delivery"
	OpStockLevel  Operation = "stock_level"
	OpListing     Operation = "listing"
	OpACIDCheck   Operation = "acid_check"
	OpACIDSuite   Operation = "acid_suite"
	OpExport      Operation = "export"
	OpPublish     Operation = "publish"
)

// Status - статус выполнения операции
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"

	// StatusDegraded - основная операция выполнена, но best-effort
	// побочная запись (history, region tag, телеметрия) не прошла
	StatusDegraded Status = "degraded"
)

// Entry - запись журнала операций workbench'а
type Entry struct {
	// ID - уникальный идентификатор записи
	ID string `json:"id"`

	// Timestamp - время операции
	Timestamp time.Time `json:"timestamp"`

	// Operation - тип операции
	Operation Operation `json:"operation"`

	// Status - статус выполнения
	Status Status `json:"status"`

	// Backend - тип backend'а, на котором шла операция
	Backend string `json:"backend,omitempty"`

	// Table - основная таблица операции
	Table string `json:"table,omitempty"`

	// Rows - количество затронутых или прочитанных строк
	Rows int64 `json:"rows,omitempty"`

	// Duration - длительность операции
	Duration time.Duration `json:"duration,omitempty"`

	// ErrorMessage - сообщение об ошибке
	ErrorMessage string `json:"error_message,omitempty"`

	// Details - дополнительные атрибуты операции
	Details map[string]interface{} `json:"details,omitempty"`

	// Statement - текст оператора (только для LevelFull)
	Statement string `json:"statement,omitempty"`

	// SessionID - идентификатор сессии (прогон harness'а, bench-сессия)
	SessionID string `json:"session_id,omitempty"`
}

// NewEntry - создать новую запись
func NewEntry(operation Operation, status Status) *Entry {
	return &Entry{
		ID:        generateID(),
		Timestamp: time.Now(),
		Operation: operation,
		Status:    status,
		Details:   make(map[string]interface{}),
	}
}

// WithBackend - установить тип backend'а
func (e *Entry) WithBackend(backendType string) *Entry {
	e.Backend = backendType
	return e
}

// WithTable - установить основную таблицу
func (e *Entry) WithTable(table string) *Entry {
	e.Table = table
	return e
}

// WithRows - установить количество строк
func (e *Entry) WithRows(rows int64) *Entry {
	e.Rows = rows
	return e
}

// WithDuration - установить длительность
func (e *Entry) WithDuration(duration time.Duration) *Entry {
	e.Duration = duration
	return e
}

// WithError - установить ошибку и статус failure
func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.ErrorMessage = err.Error()
		e.Status = StatusFailure
	}
	return e
}

// WithWarning - пометить запись деградировавшей с текстом причины.
// Статус failure не понижается до degraded.
func (e *Entry) WithWarning(warning string) *Entry {
	if e.Status == StatusSuccess {
		e.Status = StatusDegraded
	}
	if warning != "" {
		e.WithDetail("warning", warning)
	}
	return e
}

// WithDetail - добавить атрибут операции
func (e *Entry) WithDetail(key string, value interface{}) *Entry {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithStatement - установить текст оператора
func (e *Entry) WithStatement(stmt string) *Entry {
	e.Statement = stmt
	return e
}

// WithSessionID - установить ID сессии
func (e *Entry) WithSessionID(sessionID string) *Entry {
	e.SessionID = sessionID
	return e
}

// ToJSON - преобразовать в JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ToJSONIndent - преобразовать в JSON с отступами
func (e *Entry) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// String - однострочное текстовое представление
func (e *Entry) String() string {
	s := fmt.Sprintf("[%s] %s %s backend=%s",
		e.Timestamp.Format(time.RFC3339),
		e.Operation,
		e.Status,
		e.Backend,
	)
	if e.Table != "" {
		s += " table=" + e.Table
	}
	if e.Rows > 0 {
		s += fmt.Sprintf(" rows=%d", e.Rows)
	}
	if e.Duration > 0 {
		s += fmt.Sprintf(" duration=%v", e.Duration)
	}
	if e.ErrorMessage != "" {
		s += " error=" + e.ErrorMessage
	}
	return s
}

// Clone - создать копию записи
func (e *Entry) Clone() *Entry {
	clone := *e

	if e.Details != nil {
		clone.Details = make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			clone.Details[k] = v
		}
	}

	return &clone
}

// FilterByLevel - фильтрация полей по уровню детализации
func (e *Entry) FilterByLevel(level Level) *Entry {
	filtered := e.Clone()

	switch level {
	case LevelMinimal:
		filtered.Details = nil
		filtered.Statement = ""
		filtered.SessionID = ""

	case LevelStandard:
		filtered.Statement = ""

	case LevelFull:
		// Вся информация
	}

	return filtered
}

// generateID - генерация уникального ID
func generateID() string {
	return fmt.Sprintf("evt-%d-%d",
		time.Now().UnixNano(),
		time.Now().Unix()%1000,
	)
}
