package acid

import (
	"testing"
	"time"
)

// TestSuiteResultFinalize проверяет заполнение агрегата по исходам
func TestSuiteResultFinalize(t *testing.T) {
	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	r := &SuiteResult{
		Provider:   "sqlite",
		StartedAt:  start,
		FinishedAt: start.Add(250 * time.Millisecond),
		Checks: []Check{
			{Name: "atomicity", Status: CheckPassed},
			{Name: "consistency", Status: CheckPassed},
			{Name: "isolation", Status: CheckPassed},
			{Name: "durability", Status: CheckFailed},
		},
	}
	r.finalize()

	if r.Summary.Total != 4 || r.Summary.Passed != 3 || r.Summary.Failed != 1 {
		t.Errorf("Summary = %+v, want 4/3/1", r.Summary)
	}
	if r.Summary.SuccessRate != 75.0 {
		t.Errorf("SuccessRate = %.1f, want 75.0", r.Summary.SuccessRate)
	}
	if r.Summary.DurationMs != 250 {
		t.Errorf("DurationMs = %d, want 250", r.Summary.DurationMs)
	}
	if r.Passed() {
		t.Error("Passed() = true with a failed check")
	}
}

// TestSuiteResultPassed проверяет границы Passed: пустой сьют не
// считается успешным
func TestSuiteResultPassed(t *testing.T) {
	all := &SuiteResult{Checks: []Check{
		{Status: CheckPassed},
		{Status: CheckPassed},
	}}
	all.finalize()
	if !all.Passed() {
		t.Error("Passed() = false with all checks passed")
	}

	empty := &SuiteResult{}
	empty.finalize()
	if empty.Passed() {
		t.Error("Passed() = true for an empty suite")
	}
}

// TestCheckByName проверяет поиск исхода по имени свойства
func TestCheckByName(t *testing.T) {
	r := &SuiteResult{Checks: []Check{
		{Name: "atomicity", Status: CheckPassed},
		{Name: "durability", Status: CheckFailed},
	}}

	c, ok := r.CheckByName("durability")
	if !ok || c.Status != CheckFailed {
		t.Errorf("CheckByName(durability) = %+v, %v", c, ok)
	}
	if _, ok := r.CheckByName("isolation"); ok {
		t.Error("CheckByName(isolation) found a missing check")
	}
}
