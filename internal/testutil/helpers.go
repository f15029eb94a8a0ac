// Package testutil monta um banco SQLite temporário com o schema aplicado para os testes.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
	"github.com/radieske/props-entry-platform/internal/entry-service/ledger"
	"github.com/radieske/props-entry-platform/internal/entry-service/repo"
	"github.com/radieske/props-entry-platform/internal/shared/db"
)

// NewSQLiteDB abre um SQLite em t.TempDir() com as migrations aplicadas
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.ConnectSQLite(filepath.Join(t.TempDir(), "props.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = db.Migrate(context.Background(), conn, db.DriverSQLite)
	require.NoError(t, err)
	return conn
}

// NewStore retorna um repo.Store sobre um SQLite temporário
func NewStore(t *testing.T) *repo.Store {
	t.Helper()
	return repo.New(NewSQLiteDB(t), repo.SQLite)
}

// SeedUser cria o usuário com o saldo informado
func SeedUser(t *testing.T, s *repo.Store, userID string, balanceCents int64) {
	t.Helper()
	created, err := s.EnsureUser(context.Background(), ledger.New(0), userID, balanceCents)
	require.NoError(t, err)
	require.True(t, created, "user %s already exists", userID)
}

// SeedLine publica uma prop line
func SeedLine(t *testing.T, s *repo.Store, id string, value float64, status entry.LineStatus) {
	t.Helper()
	require.NoError(t, s.UpsertPropLine(context.Background(), entry.PropLine{
		ID:        id,
		StatType:  "kills_m1m2",
		LineValue: value,
		Status:    status,
	}))
}

// Balance lê o saldo atual, falhando o teste em erro
func Balance(t *testing.T, s *repo.Store, userID string) int64 {
	t.Helper()
	b, err := s.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

// CountRows conta linhas de uma tabela (verificação de efeitos colaterais)
func CountRows(t *testing.T, s *repo.Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.Reader().QueryRowContext(context.Background(), `SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}
