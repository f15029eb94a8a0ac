package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
)

// Store implementa a persistência de entries, legs e prop lines.
// Toda mutação acontece dentro de InTx: uma transação por operação.
type Store struct {
	db         *sql.DB
	d          Dialect
	maxRetries int
	backoff    time.Duration
}

type Option func(*Store)

// WithRetries define quantas vezes uma transação é repetida após conflito de serialização
func WithRetries(n int, backoff time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = n
		s.backoff = backoff
	}
}

func New(db *sql.DB, d Dialect, opts ...Option) *Store {
	s := &Store{db: db, d: d, maxRetries: 3, backoff: 50 * time.Millisecond}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifica a conexão (usado pelo /healthz)
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InTx executa fn numa transação. Commit se fn retorna nil, rollback caso contrário.
// Conflitos de serialização são repetidos até maxRetries; esgotadas as tentativas
// o erro vira entry.ErrTryAgain.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			// backoff linear simples
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", entry.ErrTryAgain, err)
}

func (s *Store) runTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{tx: sqlTx, d: s.d}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Tx é a transação corrente. Implementa ledger.DBTX com rebind de placeholders.
type Tx struct {
	tx *sql.Tx
	d  Dialect
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.d.Rebind(query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.d.Rebind(query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.d.Rebind(query), args...)
}

// Querier é comum a leituras fora de transação e a Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// reader faz rebind para leituras fora de transação
type reader struct {
	db *sql.DB
	d  Dialect
}

func (r reader) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, r.d.Rebind(query), args...)
}

func (r reader) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, r.d.Rebind(query), args...)
}

func (r reader) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.d.Rebind(query), args...)
}

// Reader expõe o banco fora de transação com o mesmo contrato de placeholders
func (s *Store) Reader() Querier { return reader{db: s.db, d: s.d} }

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// IsUniqueViolation é exportado para o serviço de colocação tratar idempotency keys concorrentes
func IsUniqueViolation(err error) bool { return isUniqueViolation(err) }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
