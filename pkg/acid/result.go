package acid

import "time"

// CheckStatus - исход одной проверки
type CheckStatus string

const (
	// CheckPassed - свойство подтверждено
	CheckPassed CheckStatus = "passed"
	// CheckFailed - свойство опровергнуто или проверка сломалась
	CheckFailed CheckStatus = "failed"
)

// Check - структурированный исход одной проверки ACID
type Check struct {
	// Name - имя свойства: "atomicity", "consistency", "isolation",
	// "durability"
	Name string `json:"name"`

	// Provider - тип backend'а, на котором выполнялась проверка
	Provider string `json:"provider"`

	// Status - исход проверки
	Status CheckStatus `json:"status"`

	// Description - человекочитаемое описание исхода
	Description string `json:"description"`

	// Details - сырая диагностика: наблюдаемые балансы, классы ошибок
	Details map[string]any `json:"details,omitempty"`

	// DurationMs - длительность проверки в миллисекундах
	DurationMs int64 `json:"duration_ms"`
}

// Passed сообщает об успехе проверки
func (c Check) Passed() bool {
	return c.Status == CheckPassed
}

// Summary - агрегат исходов сьюта
type Summary struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	DurationMs  int64   `json:"duration_ms"`
}

// SuiteResult - результат полного прогона четырех проверок
type SuiteResult struct {
	// Provider - тип backend'а
	Provider string `json:"provider"`

	// SessionID - идентификатор сессии (Unix-миллисекунды на момент
	// создания таблиц), встроенный в имена таблиц
	SessionID int64 `json:"test_session_id"`

	// Checks - исходы в порядке выполнения
	Checks []Check `json:"tests"`

	// Summary - агрегат
	Summary Summary `json:"summary"`

	// StartedAt, FinishedAt - границы прогона
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Passed сообщает, что все проверки прошли
func (r *SuiteResult) Passed() bool {
	return r.Summary.Failed == 0 && r.Summary.Total > 0
}

// CheckByName возвращает исход проверки по имени свойства
func (r *SuiteResult) CheckByName(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// finalize заполняет агрегат по исходам
func (r *SuiteResult) finalize() {
	r.Summary.Total = len(r.Checks)
	r.Summary.Passed = 0
	for _, c := range r.Checks {
		if c.Passed() {
			r.Summary.Passed++
		}
	}
	r.Summary.Failed = r.Summary.Total - r.Summary.Passed
	if r.Summary.Total > 0 {
		r.Summary.SuccessRate = float64(r.Summary.Passed) / float64(r.Summary.Total) * 100
	}
	r.Summary.DurationMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
}
