// Package tpcc реализует пять протоколов TPC-C (New-Order, Payment,
// Order-Status, Delivery, Stock-Level) и сервисы отчетности поверх
// контракта backend.Backend. Сервис не знает о конкретном backend'е:
// все запросы пишутся с именованными параметрами и транслируются
// контрактом в нативные маркеры.
package tpcc

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/brokers"
	"github.com/ruslano69/tpcc-workbench/pkg/retry"
)

// ========== Типизированные отказы протоколов ==========

var (
	// ErrWarehouseNotFound - склад с заданным id не существует
	ErrWarehouseNotFound = errors.New("warehouse not found")

	// ErrDistrictNotFound - район с заданным id не существует
	ErrDistrictNotFound = errors.New("district not found")

	// ErrCustomerNotFound - клиент с заданным id не существует
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrOrderNotFound - заказ с заданным id не существует
	ErrOrderNotFound = errors.New("order not found")

	// ErrNoOrders - у клиента нет ни одного заказа
	ErrNoOrders = errors.New("customer has no orders")

	// ErrItemNotFound - товар с заданным id не существует
	ErrItemNotFound = errors.New("item not found")
)

// ServiceConfig - конфигурация сервиса протоколов
type ServiceConfig struct {
	// Region - метка региона для best-effort тега новых заказов.
	// Пустая строка отключает тегирование.
	Region string

	// SimulateRollbacks - включает преднамеренные откаты New-Order:
	// примерно 1% запросов получает несуществующий товар в последней
	// позиции, что прогоняет путь отката транзакции
	SimulateRollbacks bool

	// Seed - seed генератора случайных чисел (0 = текущее время)
	Seed int64
}

// Service выполняет протоколы TPC-C на одном backend'е.
// События операций уходят во внедренный audit.Logger, опциональный
// publisher получает JSON-событие каждой завершенной операции.
type Service struct {
	be        backend.Backend
	events    audit.Logger
	publisher brokers.MessageBroker
	dlq       *retry.DLQ
	config    ServiceConfig

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService создает сервис протоколов. events == nil дает NullLogger.
func NewService(be backend.Backend, events audit.Logger, cfg ServiceConfig) *Service {
	if events == nil {
		events = audit.NewNullLogger()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Service{
		be:     be,
		events: events,
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// SetPublisher подключает телеметрию: JSON-событие каждой операции
// отправляется в брокер best-effort
func (s *Service) SetPublisher(pub brokers.MessageBroker) {
	s.publisher = pub
}

// SetDeadLetter подключает DLQ для упавших best-effort записей
// (history, тег региона, телеметрия). Оператор может их переиграть.
func (s *Service) SetDeadLetter(dlq *retry.DLQ) {
	s.dlq = dlq
}

// Backend возвращает backend сервиса
func (s *Service) Backend() backend.Backend {
	return s.be
}

// emit записывает событие операции и отправляет его в телеметрию.
// Ошибки журнала и телеметрии не влияют на результат операции.
func (s *Service) emit(ctx context.Context, entry *audit.Entry) {
	entry.WithBackend(s.be.BackendType())
	if err := s.events.Log(ctx, entry); err != nil {
		return
	}
	if s.publisher == nil {
		return
	}
	if payload, err := json.Marshal(entry); err == nil {
		// Телеметрия best-effort: сбой брокера не трогает операцию
		if sendErr := s.publisher.Send(ctx, payload); sendErr != nil {
			s.deadLetter("telemetry_publish", string(payload), sendErr)
		}
	}
}

// deadLetter сохраняет упавшую best-effort запись для последующего
// переигрывания. Без подключенного DLQ запись теряется молча.
func (s *Service) deadLetter(failureType string, data any, err error) {
	if s.dlq == nil {
		return
	}
	s.dlq.Add(retry.DLQEntry{
		Timestamp:   time.Now(),
		Attempts:    1,
		LastError:   err.Error(),
		FailureType: failureType,
		Data:        data,
	})
}

// rollDice возвращает true с вероятностью 1/n
func (s *Service) rollDice(n int) bool {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n) == 0
}

// notFound оборачивает типизированный отказ в классифицированную ошибку
// контракта, чтобы backend.IsNotFound работал единообразно
func (s *Service) notFound(op string, sentinel error) error {
	return backend.WrapError(backend.ClassNotFound, s.be.BackendType(), op, sentinel)
}
