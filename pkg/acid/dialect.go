package acid

import "fmt"

// dialect - тексты DDL и зондов, зависящие от backend'а. Харнесс
// использует реальные таблицы, поэтому типы колонок и форма
// неправильно-типизированного зонда различаются по диалектам.
type dialect struct {
	backendType string
	// accountsDDL, transfersDDL, auditDDL - шаблоны CREATE TABLE,
	// %s - имя таблицы сессии
	accountsDDL  string
	transfersDDL string
	auditDDL     string
	// isolationQuery - best-effort чтение уровня изоляции ("" = нет)
	isolationQuery string
	// isolationColumn - колонка результата isolationQuery
	isolationColumn string
}

// dialectFor возвращает диалект по типу backend'а.
// Неизвестный тип получает диалект tidb (наиболее переносимый DDL).
func dialectFor(backendType string) dialect {
	switch backendType {
	case "cockroach":
		return dialect{
			backendType: backendType,
			accountsDDL: `CREATE TABLE IF NOT EXISTS %s (
				account_id INT8 PRIMARY KEY,
				balance DECIMAL(12,2) NOT NULL,
				version INT8 NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			transfersDDL: `CREATE TABLE IF NOT EXISTS %s (
				transfer_id INT8 PRIMARY KEY,
				from_account INT8 NOT NULL,
				to_account INT8 NOT NULL,
				amount DECIMAL(12,2) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			auditDDL: `CREATE TABLE IF NOT EXISTS %s (
				audit_id INT8 PRIMARY KEY,
				action TEXT NOT NULL,
				detail TEXT,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			isolationQuery:  "SHOW transaction_isolation",
			isolationColumn: "transaction_isolation",
		}

	case "sqlite":
		// STRICT заставляет sqlite отвергать значения чужого типа,
		// без него неправильно-типизированный зонд прошел бы молча
		return dialect{
			backendType: backendType,
			accountsDDL: `CREATE TABLE IF NOT EXISTS %s (
				account_id INTEGER PRIMARY KEY,
				balance REAL NOT NULL,
				version INTEGER NOT NULL,
				updated_at TEXT NOT NULL
			) STRICT`,
			transfersDDL: `CREATE TABLE IF NOT EXISTS %s (
				transfer_id INTEGER PRIMARY KEY,
				from_account INTEGER NOT NULL,
				to_account INTEGER NOT NULL,
				amount REAL NOT NULL,
				created_at TEXT NOT NULL
			) STRICT`,
			auditDDL: `CREATE TABLE IF NOT EXISTS %s (
				audit_id INTEGER PRIMARY KEY,
				action TEXT NOT NULL,
				detail TEXT,
				created_at TEXT NOT NULL
			) STRICT`,
		}

	default: // tidb и совместимые
		return dialect{
			backendType: backendType,
			accountsDDL: `CREATE TABLE IF NOT EXISTS %s (
				account_id BIGINT PRIMARY KEY,
				balance DECIMAL(12,2) NOT NULL,
				version BIGINT NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
			transfersDDL: `CREATE TABLE IF NOT EXISTS %s (
				transfer_id BIGINT PRIMARY KEY,
				from_account BIGINT NOT NULL,
				to_account BIGINT NOT NULL,
				amount DECIMAL(12,2) NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
			auditDDL: `CREATE TABLE IF NOT EXISTS %s (
				audit_id BIGINT PRIMARY KEY,
				action TEXT NOT NULL,
				detail TEXT,
				created_at TIMESTAMP NOT NULL
			)`,
			isolationQuery:  "SELECT @@transaction_isolation AS iso",
			isolationColumn: "iso",
		}
	}
}

// createAccounts возвращает DDL таблицы счетов сессии
func (d dialect) createAccounts(table string) string {
	return fmt.Sprintf(d.accountsDDL, table)
}

// createTransfers возвращает DDL таблицы переводов сессии
func (d dialect) createTransfers(table string) string {
	return fmt.Sprintf(d.transfersDDL, table)
}

// createAudit возвращает DDL таблицы журнала сессии
func (d dialect) createAudit(table string) string {
	return fmt.Sprintf(d.auditDDL, table)
}
