package tpcc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// fakeBackend - сценарный backend для тестов протоколов: результаты
// чтения подбираются по подстроке текста запроса, все вызовы
// записываются для проверок. При нескольких совпадениях побеждает
// самая длинная подстрока.
type fakeBackend struct {
	mu sync.Mutex

	queries []backend.Query
	dml     []backend.Query
	plans   [][]backend.Query

	results   map[string][]*backend.ResultSet
	queryErrs map[string]error

	dmlErr error
	txnErr error

	newOrderReqs   []backend.NewOrderRequest
	newOrderResult *backend.NewOrderResult
	newOrderErr    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		results:   make(map[string][]*backend.ResultSet),
		queryErrs: make(map[string]error),
	}
}

// script добавляет результат для запросов, содержащих подстроку match.
// Повторные вызовы с одной подстрокой выстраивают очередь: каждый
// запрос забирает следующий результат, последний остается для всех
// дальнейших запросов.
func (f *fakeBackend) script(match string, columns []string, rows ...[]any) *fakeBackend {
	f.results[match] = append(f.results[match], backend.NewResultSet(columns, rows))
	return f
}

// scriptEmpty добавляет пустой результат (ни одной строки)
func (f *fakeBackend) scriptEmpty(match string, columns ...string) *fakeBackend {
	return f.script(match, columns)
}

func (f *fakeBackend) Connect(ctx context.Context, cfg backend.Config) error { return nil }
func (f *fakeBackend) Close() error                                          { return nil }
func (f *fakeBackend) Ping(ctx context.Context) error                        { return nil }

func (f *fakeBackend) ExecuteQuery(ctx context.Context, q backend.Query) (*backend.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	for match, err := range f.queryErrs {
		if strings.Contains(q.Text, match) {
			return nil, err
		}
	}
	best := ""
	found := false
	for match := range f.results {
		if strings.Contains(q.Text, match) && (!found || len(match) > len(best)) {
			best = match
			found = true
		}
	}
	if found {
		queue := f.results[best]
		rs := queue[0]
		if len(queue) > 1 {
			f.results[best] = queue[1:]
		}
		return rs, nil
	}
	return nil, fmt.Errorf("unscripted query: %s", q.Text)
}

func (f *fakeBackend) ExecuteDML(ctx context.Context, q backend.Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dml = append(f.dml, q)
	return f.dmlErr
}

func (f *fakeBackend) ExecuteDDL(ctx context.Context, stmt string) error { return nil }

func (f *fakeBackend) RunInTransaction(ctx context.Context, plan []backend.Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
	return f.txnErr
}

func (f *fakeBackend) ExecuteNewOrder(ctx context.Context, req backend.NewOrderRequest) (*backend.NewOrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Снимок позиций: вызывающий код может переиспользовать слайс
	lines := make([]backend.NewOrderLine, len(req.Lines))
	copy(lines, req.Lines)
	req.Lines = lines
	f.newOrderReqs = append(f.newOrderReqs, req)

	if f.newOrderErr != nil {
		return nil, f.newOrderErr
	}
	if f.newOrderResult != nil {
		return f.newOrderResult, nil
	}
	return &backend.NewOrderResult{OrderID: 1}, nil
}

func (f *fakeBackend) BackendType() string        { return "fake" }
func (f *fakeBackend) Marker() backend.MarkerFunc { return backend.MarkerQuestion }

// queryCount возвращает количество записанных запросов с подстрокой
func (f *fakeBackend) queryCount(match string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queries {
		if strings.Contains(q.Text, match) {
			n++
		}
	}
	return n
}

// queryArgs транслирует записанный запрос и возвращает его параметры
// по именам
func queryArgs(t *testing.T, q backend.Query) map[string]any {
	t.Helper()
	_, params, err := backend.Translate(q.Text, q.Params, backend.MarkerQuestion)
	if err != nil {
		t.Fatalf("Failed to translate recorded query %q: %v", q.Text, err)
	}
	out := make(map[string]any, len(params))
	for _, p := range params {
		out[p.Name] = p.Value
	}
	return out
}

// fakeBroker - брокер для тестов телеметрии: копит отправленные payload'ы
type fakeBroker struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
}

func (b *fakeBroker) Connect(ctx context.Context) error { return nil }
func (b *fakeBroker) Close() error                      { return nil }

func (b *fakeBroker) Send(ctx context.Context, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, message)
	return nil
}

func (b *fakeBroker) Receive(ctx context.Context) ([]byte, error) { return nil, nil }
func (b *fakeBroker) Ping(ctx context.Context) error              { return nil }
func (b *fakeBroker) GetBrokerType() string                       { return "fake" }

func (b *fakeBroker) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}
