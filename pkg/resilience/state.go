package resilience

import (
	"fmt"
	"sync"
	"time"
)

// State - состояние circuit breaker'а
type State int

const (
	// StateClosed - нормальная работа, вызовы проходят к backend'у
	StateClosed State = iota

	// StateHalfOpen - проверка восстановления пробными вызовами
	StateHalfOpen

	// StateOpen - backend недоступен, вызовы отклоняются
	StateOpen
)

// String - строковое представление состояния
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Stats - снимок состояния breaker'а для диагностики
type Stats struct {
	State             State
	Generation        uint64
	Counts            Counts
	RunningCalls      uint32
	MaxRunningCalls   uint32
	LastStateChange   time.Time
	StateChanges      map[State]int
	TimeUntilHalfOpen time.Duration
}

// machine - машина состояний breaker'а. Каждая смена состояния
// открывает новое поколение: результат вызова, начатого в прошлом
// поколении, не влияет на счетчики текущего
type machine struct {
	mu          sync.Mutex
	cfg         Config
	state       State
	generation  uint64
	counts      Counts
	openUntil   time.Time // когда open переходит в half-open
	running     uint32
	maxRunning  uint32
	changedAt   time.Time
	transitions map[State]int
}

func newMachine(cfg Config) *machine {
	return &machine{
		cfg:         cfg,
		state:       StateClosed,
		changedAt:   time.Now(),
		transitions: make(map[State]int),
	}
}

// current - текущее состояние
func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// admit решает, пропускать ли вызов. Возвращает поколение, в котором
// вызов начат, для последующего settle
func (m *machine) admit() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Истекший open переходит в half-open, вызов становится пробным
	if m.state == StateOpen {
		if !time.Now().After(m.openUntil) {
			return m.generation, ErrCircuitOpen
		}
		m.shiftLocked(StateHalfOpen)
	}

	if m.cfg.MaxConcurrentCalls > 0 && m.running >= m.cfg.MaxConcurrentCalls {
		return m.generation, ErrTooManyCalls
	}

	m.running++
	if m.running > m.maxRunning {
		m.maxRunning = m.running
	}

	return m.generation, nil
}

// settle учитывает результат вызова, начатого в поколении gen
func (m *machine) settle(gen uint64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running > 0 {
		m.running--
	}

	// Устаревшее поколение: состояние уже сменилось
	if gen != m.generation {
		return
	}

	if success {
		m.onSuccessLocked()
	} else {
		m.onFailureLocked()
	}
}

func (m *machine) onSuccessLocked() {
	m.counts.Requests++
	m.counts.TotalSuccesses++
	m.counts.ConsecutiveSuccesses++
	m.counts.ConsecutiveFailures = 0

	if m.state == StateHalfOpen && m.counts.ConsecutiveSuccesses >= m.cfg.SuccessThreshold {
		m.shiftLocked(StateClosed)
	}
}

func (m *machine) onFailureLocked() {
	m.counts.Requests++
	m.counts.TotalFailures++
	m.counts.ConsecutiveFailures++
	m.counts.ConsecutiveSuccesses = 0

	switch m.state {
	case StateClosed:
		if m.tripLocked() {
			m.shiftLocked(StateOpen)
		}
	case StateHalfOpen:
		// Любой сбой пробного вызова возвращает в open
		m.shiftLocked(StateOpen)
	}
}

// tripLocked - пора ли открываться
func (m *machine) tripLocked() bool {
	if m.cfg.ShouldTrip != nil {
		return m.cfg.ShouldTrip(m.counts)
	}
	return m.counts.ConsecutiveFailures >= m.cfg.MaxFailures
}

// shiftLocked переводит машину в состояние to: новое поколение,
// чистые счетчики, callback вне lock'а
func (m *machine) shiftLocked(to State) {
	from := m.state
	m.state = to
	m.generation++
	m.counts = Counts{}
	m.changedAt = time.Now()
	m.transitions[to]++

	if to == StateOpen {
		m.openUntil = time.Now().Add(m.cfg.Timeout)
	}

	if m.cfg.OnStateChange != nil {
		go m.cfg.OnStateChange(m.cfg.Name, from, to)
	}
}

// snapshot - счетчики текущего поколения
func (m *machine) snapshot() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts
}

// stats - полный снимок для диагностики
func (m *machine) stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var untilProbe time.Duration
	if m.state == StateOpen {
		if d := time.Until(m.openUntil); d > 0 {
			untilProbe = d
		}
	}

	tr := make(map[State]int, len(m.transitions))
	for s, n := range m.transitions {
		tr[s] = n
	}

	return Stats{
		State:             m.state,
		Generation:        m.generation,
		Counts:            m.counts,
		RunningCalls:      m.running,
		MaxRunningCalls:   m.maxRunning,
		LastStateChange:   m.changedAt,
		StateChanges:      tr,
		TimeUntilHalfOpen: untilProbe,
	}
}

// reset принудительно закрывает breaker. Переход не попадает в
// transitions и не вызывает callback
func (m *machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateClosed
	m.generation++
	m.counts = Counts{}
	m.openUntil = time.Time{}
	m.running = 0
	m.changedAt = time.Now()
}
