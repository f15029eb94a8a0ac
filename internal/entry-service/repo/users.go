package repo

import (
	"context"

	"github.com/radieske/props-entry-platform/internal/entry-service/ledger"
)

// Balance lê o saldo atual do usuário fora de transação
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	return ledger.Balance(ctx, s.Reader(), userID)
}

// EnsureUser abre a conta com saldo inicial caso ainda não exista (auto-provisionamento local)
func (s *Store) EnsureUser(ctx context.Context, l *ledger.Ledger, userID string, initialCents int64) (bool, error) {
	var created bool
	err := s.InTx(ctx, func(tx *Tx) error {
		var err error
		created, err = l.Open(ctx, tx, userID, initialCents)
		return err
	})
	return created, err
}
