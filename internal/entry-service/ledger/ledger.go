// Package ledger é o único ponto que altera users.balance_cents.
//
// As funções recebem o DBTX da transação em andamento: débito/crédito e o registro no
// wallet_ledger comitam (ou não) junto com o restante da operação do chamador.
// As queries usam placeholders "?"; quem implementa DBTX faz o rebind para o dialeto.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
)

var (
	ErrInsufficientFunds = entry.ErrInsufficientFunds
	ErrUserNotFound      = entry.ErrUserNotFound
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrBalanceCeiling    = errors.New("balance ceiling exceeded")
)

const (
	OpDebit  = "DEBIT"
	OpCredit = "CREDIT"
)

// DBTX é o subconjunto de *sql.Tx usado pelo ledger
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Ledger struct {
	// MaxBalanceCents é um teto de segurança para créditos; 0 desliga
	MaxBalanceCents int64
	now             func() time.Time
}

func New(maxBalanceCents int64) *Ledger {
	return &Ledger{MaxBalanceCents: maxBalanceCents, now: time.Now}
}

// Debit decrementa o saldo se, e somente se, ele cobre o valor.
// A checagem e o decremento são um único UPDATE condicional: dois débitos concorrentes
// no mesmo usuário nunca passam juntos sobre um saldo que só cobre um deles.
func (l *Ledger) Debit(ctx context.Context, q DBTX, userID string, amount int64, reference string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var balance int64
	err := q.QueryRowContext(ctx, `
		UPDATE users SET balance_cents = balance_cents - ?, version = version + 1
		WHERE id = ? AND balance_cents >= ?
		RETURNING balance_cents`, amount, userID, amount).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		if _, berr := Balance(ctx, q, userID); berr != nil {
			return 0, berr
		}
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("debit %s: %w", userID, err)
	}

	if err := l.journal(ctx, q, userID, OpDebit, amount, balance, reference); err != nil {
		return 0, err
	}
	return balance, nil
}

// Credit incrementa o saldo. Só falha por usuário inexistente, teto configurado
// ou referência já lançada (UNIQUE em wallet_ledger).
func (l *Ledger) Credit(ctx context.Context, q DBTX, userID string, amount int64, reference string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var (
		balance int64
		err     error
	)
	if l.MaxBalanceCents > 0 {
		err = q.QueryRowContext(ctx, `
			UPDATE users SET balance_cents = balance_cents + ?, version = version + 1
			WHERE id = ? AND balance_cents <= ?
			RETURNING balance_cents`, amount, userID, l.MaxBalanceCents-amount).Scan(&balance)
	} else {
		err = q.QueryRowContext(ctx, `
			UPDATE users SET balance_cents = balance_cents + ?, version = version + 1
			WHERE id = ?
			RETURNING balance_cents`, amount, userID).Scan(&balance)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if _, berr := Balance(ctx, q, userID); berr != nil {
			return 0, berr
		}
		return 0, ErrBalanceCeiling
	}
	if err != nil {
		return 0, fmt.Errorf("credit %s: %w", userID, err)
	}

	if err := l.journal(ctx, q, userID, OpCredit, amount, balance, reference); err != nil {
		return 0, err
	}
	return balance, nil
}

// Open cria a conta do usuário com saldo inicial, se ainda não existir.
// Usado apenas no modo de auto-provisionamento (ambiente local).
func (l *Ledger) Open(ctx context.Context, q DBTX, userID string, initialCents int64) (bool, error) {
	if initialCents < 0 {
		return false, ErrInvalidAmount
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO users (id, balance_cents, version, created_at) VALUES (?, ?, 1, ?)
		ON CONFLICT (id) DO NOTHING`, userID, initialCents, l.now().UTC())
	if err != nil {
		return false, fmt.Errorf("open account %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if initialCents > 0 {
		if err := l.journal(ctx, q, userID, OpCredit, initialCents, initialCents, "open:"+userID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Balance lê o saldo atual
func Balance(ctx context.Context, q DBTX, userID string) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx, `SELECT balance_cents FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("balance %s: %w", userID, err)
	}
	return balance, nil
}

func (l *Ledger) journal(ctx context.Context, q DBTX, userID, op string, amount, balanceAfter int64, reference string) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO wallet_ledger (user_id, operation_type, amount_cents, balance_after, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, op, amount, balanceAfter, reference, l.now().UTC()); err != nil {
		return fmt.Errorf("journal %s %s: %w", op, reference, err)
	}
	return nil
}
