package repo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect isola as diferenças entre Postgres e SQLite. As queries do repo
// são escritas com "?" e convertidas por Rebind.
type Dialect struct {
	Name string

	numbered   bool   // $1, $2, ...
	lockUpdate string // sufixo de lock exclusivo em SELECT
	lockShare  string // sufixo de lock compartilhado em SELECT
}

var (
	Postgres = Dialect{Name: "postgres", numbered: true, lockUpdate: " FOR UPDATE", lockShare: " FOR SHARE"}
	// SQLite serializa escritores com BEGIN IMMEDIATE; não há lock de linha
	SQLite = Dialect{Name: "sqlite"}
)

// DialectFor resolve o dialeto pelo nome do driver
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	}
	return Dialect{}, errors.New("unknown dialect " + driver)
}

// Rebind troca "?" pelos placeholders do dialeto. Não há "?" literais nas queries do repo.
func (d Dialect) Rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// isRetryable identifica falhas de serialização/lock que valem nova tentativa
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// isUniqueViolation identifica violação de UNIQUE (ex.: idempotency key repetida)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		// sem extended result codes só temos o código base
		return code == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
