package acid

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
)

// Суммы и константы проверок
const (
	transferAmount    = 200.00
	rolledBackAmount  = 300.00
	isolationBalance  = 111.11
	staleBalance      = 222.22
	durabilityAccount = 999
	durabilityBalance = 12345.67
	durabilityAction  = "durability_insert"

	// durabilityPause - пауза между фиксацией и контрольным чтением.
	// Чтение после паузы идет через пул и может попасть на другое
	// соединение, что и проверяет видимость фиксации.
	durabilityPause = 100 * time.Millisecond
)

func passCheck(description string, details map[string]any) Check {
	return Check{Status: CheckPassed, Description: description, Details: details}
}

func failCheck(description string, details map[string]any, err error) Check {
	if err != nil {
		details["error"] = err.Error()
	}
	return Check{Status: CheckFailed, Description: description, Details: details}
}

// ========== Atomicity ==========

// checkAtomicity проверяет атомарность группы операторов: успешный
// перевод фиксируется целиком, перевод с нарушением ограничения
// на последнем операторе не оставляет следов от первых.
func (h *Harness) checkAtomicity(ctx context.Context) Check {
	const description = "committed transfer persists in full, failed transfer leaves no trace"
	details := map[string]any{}
	now := backend.FormatTimestamp(time.Now())

	// Фаза 1: успешный перевод 200.00 со счета 1 на счет 2
	commit := []backend.Query{
		backend.NamedQuery(
			"UPDATE "+h.accountsTable+" SET balance = balance - @amount WHERE account_id = @from",
			map[string]any{"amount": transferAmount, "from": 1},
		),
		backend.NamedQuery(
			"UPDATE "+h.accountsTable+" SET balance = balance + @amount WHERE account_id = @to",
			map[string]any{"amount": transferAmount, "to": 2},
		),
		backend.NamedQuery(
			"INSERT INTO "+h.transfersTable+" (transfer_id, from_account, to_account, amount, created_at) VALUES (@id, @from, @to, @amount, @now)",
			map[string]any{"id": 1, "from": 1, "to": 2, "amount": transferAmount, "now": now},
		),
	}
	if err := h.be.RunInTransaction(ctx, commit); err != nil {
		return failCheck(description, details, fmt.Errorf("transfer transaction failed: %w", err))
	}

	balance1, err := h.readBalance(ctx, 1)
	if err != nil {
		return failCheck(description, details, err)
	}
	balance2, err := h.readBalance(ctx, 2)
	if err != nil {
		return failCheck(description, details, err)
	}
	details["balance_1_after_commit"] = balance1
	details["balance_2_after_commit"] = balance2
	if !sameCents(balance1, seedBalance1-transferAmount) || !sameCents(balance2, seedBalance2+transferAmount) {
		return failCheck(description, details, fmt.Errorf("committed transfer not fully visible"))
	}

	// Фаза 2: перевод 300.00, последний оператор нарушает PK таблицы
	// счетов. Вся группа обязана откатиться.
	rollback := []backend.Query{
		backend.NamedQuery(
			"UPDATE "+h.accountsTable+" SET balance = balance - @amount WHERE account_id = @from",
			map[string]any{"amount": rolledBackAmount, "from": 1},
		),
		backend.NamedQuery(
			"UPDATE "+h.accountsTable+" SET balance = balance + @amount WHERE account_id = @to",
			map[string]any{"amount": rolledBackAmount, "to": 2},
		),
		backend.NamedQuery(
			"INSERT INTO "+h.accountsTable+" (account_id, balance, version, updated_at) VALUES (@id, @balance, 1, @now)",
			map[string]any{"id": 1, "balance": 0.00, "now": now},
		),
	}
	err = h.be.RunInTransaction(ctx, rollback)
	if err == nil {
		return failCheck(description, details, fmt.Errorf("duplicate key transaction unexpectedly committed"))
	}
	details["rollback_error_class"] = string(backend.ClassOf(err))

	after1, err := h.readBalance(ctx, 1)
	if err != nil {
		return failCheck(description, details, err)
	}
	after2, err := h.readBalance(ctx, 2)
	if err != nil {
		return failCheck(description, details, err)
	}
	details["balance_1_after_rollback"] = after1
	details["balance_2_after_rollback"] = after2
	if !sameCents(after1, balance1) || !sameCents(after2, balance2) {
		return failCheck(description, details, fmt.Errorf("rolled back transfer left partial changes"))
	}

	return passCheck(description, details)
}

// ========== Consistency ==========

// checkConsistency проверяет, что схема отклоняет некорректные данные:
// дубликат первичного ключа, NULL в NOT NULL-колонке и значение
// несовместимого типа. Каждая попытка обязана вернуть ошибку класса
// constraint, а число счетов - не измениться.
func (h *Harness) checkConsistency(ctx context.Context) Check {
	const description = "schema rejects duplicate keys, null balances and mistyped values"
	details := map[string]any{}
	now := backend.FormatTimestamp(time.Now())

	before, err := h.countAccounts(ctx)
	if err != nil {
		return failCheck(description, details, err)
	}

	probes := []struct {
		key   string
		query backend.Query
	}{
		{
			key: "duplicate_pk",
			query: backend.NamedQuery(
				"INSERT INTO "+h.accountsTable+" (account_id, balance, version, updated_at) VALUES (@id, @balance, 1, @now)",
				map[string]any{"id": 1, "balance": 10.00, "now": now},
			),
		},
		{
			key: "null_balance",
			query: backend.NamedQuery(
				"INSERT INTO "+h.accountsTable+" (account_id, balance, version, updated_at) VALUES (@id, @balance, 1, @now)",
				map[string]any{"id": 101, "balance": nil, "now": now},
			),
		},
		{
			key: "invalid_type",
			query: backend.NamedQuery(
				"INSERT INTO "+h.accountsTable+" (account_id, balance, version, updated_at) VALUES (@id, @balance, 1, @now)",
				map[string]any{"id": 102, "balance": "not-a-number", "now": now},
			),
		},
	}

	for _, probe := range probes {
		err := h.be.ExecuteDML(ctx, probe.query)
		if err == nil {
			return failCheck(description, details, fmt.Errorf("probe %s was accepted", probe.key))
		}
		details[probe.key] = string(backend.ClassOf(err))
		if !backend.IsConstraint(err) {
			return failCheck(description, details, fmt.Errorf("probe %s rejected with wrong class: %w", probe.key, err))
		}
	}

	after, err := h.countAccounts(ctx)
	if err != nil {
		return failCheck(description, details, err)
	}
	details["account_rows"] = after
	if after != before {
		return failCheck(description, details, fmt.Errorf("account count changed from %d to %d", before, after))
	}

	return passCheck(description, details)
}

// ========== Isolation ==========

// checkIsolation проверяет видимость зафиксированной записи и
// оптимистическую блокировку по колонке version: устаревшее условие
// version = 1 после инкремента не находит строку, и попытка записи
// по нему не меняет данных.
func (h *Harness) checkIsolation(ctx context.Context) Check {
	const description = "committed write is visible, stale optimistic update has no effect"
	details := map[string]any{}

	// Зафиксированная запись видна следующему чтению
	err := h.be.ExecuteDML(ctx, backend.NamedQuery(
		"UPDATE "+h.accountsTable+" SET balance = @balance WHERE account_id = @id",
		map[string]any{"balance": isolationBalance, "id": 3},
	))
	if err != nil {
		return failCheck(description, details, err)
	}
	balance, err := h.readBalance(ctx, 3)
	if err != nil {
		return failCheck(description, details, err)
	}
	details["balance_after_write"] = balance
	if !sameCents(balance, isolationBalance) {
		return failCheck(description, details, fmt.Errorf("committed write not visible: got %.2f", balance))
	}

	// Оптимистический инкремент версии по актуальному условию
	err = h.be.ExecuteDML(ctx, backend.NamedQuery(
		"UPDATE "+h.accountsTable+" SET version = version + 1 WHERE account_id = @id AND version = @version",
		map[string]any{"id": 3, "version": 1},
	))
	if err != nil {
		return failCheck(description, details, err)
	}
	version, err := h.readVersion(ctx, 3)
	if err != nil {
		return failCheck(description, details, err)
	}
	details["version_after_bump"] = version
	if version != 2 {
		return failCheck(description, details, fmt.Errorf("optimistic bump did not apply: version %d", version))
	}

	// Запись по устаревшему условию version = 1 не находит строку.
	// Контракт не возвращает число затронутых строк, эффект проверяется
	// контрольным чтением.
	err = h.be.ExecuteDML(ctx, backend.NamedQuery(
		"UPDATE "+h.accountsTable+" SET balance = @balance WHERE account_id = @id AND version = @version",
		map[string]any{"balance": staleBalance, "id": 3, "version": 1},
	))
	if err != nil {
		return failCheck(description, details, err)
	}
	staleRead, err := h.readBalance(ctx, 3)
	if err != nil {
		return failCheck(description, details, err)
	}
	staleVersion, err := h.readVersion(ctx, 3)
	if err != nil {
		return failCheck(description, details, err)
	}
	details["balance_after_stale_update"] = staleRead
	details["version_after_stale_update"] = staleVersion
	if !sameCents(staleRead, isolationBalance) || staleVersion != 2 {
		return failCheck(description, details, fmt.Errorf("stale update modified the row"))
	}

	// Уровень изоляции backend'а - справочная деталь, сбой чтения
	// не валит проверку
	if h.dialect.isolationQuery != "" {
		rs, err := h.be.ExecuteQuery(ctx, backend.PositionalQuery(h.dialect.isolationQuery))
		if err == nil {
			if row, ok := rs.First(); ok {
				details["isolation_level"] = row.String(h.dialect.isolationColumn)
			}
		}
	}

	return passCheck(description, details)
}

// ========== Durability ==========

// checkDurability проверяет, что зафиксированная транзакция переживает
// паузу и читается с точным значением: счет и связанная запись журнала
// вставляются одной группой, контрольное чтение идет после паузы.
func (h *Harness) checkDurability(ctx context.Context) Check {
	const description = "committed transaction survives and reads back with exact values"
	details := map[string]any{}
	now := backend.FormatTimestamp(time.Now())

	plan := []backend.Query{
		backend.NamedQuery(
			"INSERT INTO "+h.accountsTable+" (account_id, balance, version, updated_at) VALUES (@id, @balance, 1, @now)",
			map[string]any{"id": durabilityAccount, "balance": durabilityBalance, "now": now},
		),
		backend.NamedQuery(
			"INSERT INTO "+h.auditTable+" (audit_id, action, detail, created_at) VALUES (@id, @action, @detail, @now)",
			map[string]any{"id": 1, "action": durabilityAction, "detail": fmt.Sprintf("account %d committed", durabilityAccount), "now": now},
		),
	}
	if err := h.be.RunInTransaction(ctx, plan); err != nil {
		return failCheck(description, details, fmt.Errorf("durability transaction failed: %w", err))
	}

	select {
	case <-time.After(durabilityPause):
	case <-ctx.Done():
		return failCheck(description, details, ctx.Err())
	}

	balance, err := h.readBalance(ctx, durabilityAccount)
	if err != nil {
		return failCheck(description, details, err)
	}
	details["expected_balance"] = durabilityBalance
	details["observed_balance"] = balance
	if !sameCents(balance, durabilityBalance) {
		return failCheck(description, details, fmt.Errorf("balance drifted: expected %.2f, got %.2f", durabilityBalance, balance))
	}

	rs, err := h.be.ExecuteQuery(ctx, backend.NamedQuery(
		"SELECT COUNT(*) AS total FROM "+h.auditTable+" WHERE action = @action",
		map[string]any{"action": durabilityAction},
	))
	if err != nil {
		return failCheck(description, details, err)
	}
	row, ok := rs.First()
	if !ok {
		return failCheck(description, details, fmt.Errorf("audit count query returned no rows"))
	}
	auditRows := row.Int64("total")
	details["audit_rows"] = auditRows
	if auditRows != 1 {
		return failCheck(description, details, fmt.Errorf("expected 1 audit row, found %d", auditRows))
	}

	return passCheck(description, details)
}
