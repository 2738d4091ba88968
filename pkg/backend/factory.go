package backend

import (
	"context"
	"fmt"
	"sync"
)

// Constructor - функция-конструктор backend'а.
// Возвращает новый экземпляр (еще не подключенный).
type Constructor func() Backend

// Factory - фабрика backend'ов.
// Управляет регистрацией и созданием backend'ов по типу.
type Factory struct {
	registry map[string]Constructor
	mu       sync.RWMutex
}

// NewFactory создает новую фабрику
func NewFactory() *Factory {
	return &Factory{
		registry: make(map[string]Constructor),
	}
}

// Register регистрирует конструктор для типа backend'а.
// Тип должен быть одним из: "cockroach", "tidb", "sqlite".
//
// Пример:
//
//	factory.Register("cockroach", func() backend.Backend {
//	    return &Backend{}
//	})
func (f *Factory) Register(backendType string, constructor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[backendType] = constructor
}

// IsRegistered проверяет, зарегистрирован ли тип backend'а
func (f *Factory) IsRegistered(backendType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.registry[backendType]
	return ok
}

// RegisteredTypes возвращает список зарегистрированных типов
func (f *Factory) RegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.registry))
	for backendType := range f.registry {
		types = append(types, backendType)
	}
	return types
}

// Create создает и подключает backend по конфигурации
func (f *Factory) Create(ctx context.Context, cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}
	cfg.SetDefaults()

	f.mu.RLock()
	constructor, ok := f.registry[cfg.Type]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s (available types: %v)",
			cfg.Type, f.RegisteredTypes())
	}

	b := constructor()
	if err := b.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Type, err)
	}
	return b, nil
}

// CreateWithoutConnect создает backend БЕЗ подключения.
// Полезно для тестирования или отложенного подключения.
func (f *Factory) CreateWithoutConnect(backendType string) (Backend, error) {
	f.mu.RLock()
	constructor, ok := f.registry[backendType]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s (available types: %v)",
			backendType, f.RegisteredTypes())
	}
	return constructor(), nil
}

// ========== Global Factory ==========

var globalFactory = NewFactory()

// Register регистрирует backend в глобальной фабрике.
// Вызывается в init() функциях пакетов backend'ов.
//
// Пример (в pkg/backend/cockroach/backend.go):
//
//	func init() {
//	    backend.Register("cockroach", func() backend.Backend {
//	        return &Backend{}
//	    })
//	}
func Register(backendType string, constructor Constructor) {
	globalFactory.Register(backendType, constructor)
}

// IsRegistered проверяет регистрацию в глобальной фабрике
func IsRegistered(backendType string) bool {
	return globalFactory.IsRegistered(backendType)
}

// RegisteredTypes возвращает типы из глобальной фабрики
func RegisteredTypes() []string {
	return globalFactory.RegisteredTypes()
}

// New создает и подключает backend через глобальную фабрику.
// Основной способ создания backend'ов в приложении.
//
// Пример:
//
//	b, err := backend.New(ctx, backend.Config{
//	    Type: "cockroach",
//	    DSN:  "postgresql://root@localhost:26257/tpcc?sslmode=disable",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
func New(ctx context.Context, cfg Config) (Backend, error) {
	return globalFactory.Create(ctx, cfg)
}

// NewWithoutConnect создает backend БЕЗ подключения через глобальную фабрику
func NewWithoutConnect(backendType string) (Backend, error) {
	return globalFactory.CreateWithoutConnect(backendType)
}
