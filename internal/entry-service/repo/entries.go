package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
)

const entryColumns = `id, user_id, wager_cents, leg_count, multiplier, potential_payout_cents, status, idempotency_key, created_at, settled_at`

const legColumns = `l.id, l.entry_id, l.prop_line_id, l.position, l.pick, l.result, l.resolved_at, p.line_value, p.actual_result`

// EntryByIdempotencyKey busca, dentro da transação, uma entry já criada para (user, key)
func (t *Tx) EntryByIdempotencyKey(ctx context.Context, userID, key string) (entry.Entry, bool, error) {
	return entryByKey(ctx, t, userID, key)
}

// EntryByIdempotencyKey busca fora de transação (caminho rápido de requisições repetidas)
func (s *Store) EntryByIdempotencyKey(ctx context.Context, userID, key string) (entry.Entry, bool, error) {
	return entryByKey(ctx, s.Reader(), userID, key)
}

func entryByKey(ctx context.Context, q Querier, userID, key string) (entry.Entry, bool, error) {
	e, err := scanEntry(q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE user_id = ? AND idempotency_key = ?`, userID, key))
	if isNoRows(err) {
		return entry.Entry{}, false, nil
	}
	if err != nil {
		return entry.Entry{}, false, fmt.Errorf("entry by idempotency key: %w", err)
	}
	if e.Legs, err = legsOf(ctx, q, []string{e.ID}); err != nil {
		return entry.Entry{}, false, err
	}
	return e, true, nil
}

// InsertEntry grava a entry (OPEN) e suas legs (result nulo)
func (t *Tx) InsertEntry(ctx context.Context, e *entry.Entry) error {
	var key any
	if e.IdempotencyKey != "" {
		key = e.IdempotencyKey
	}
	if _, err := t.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		e.ID, e.UserID, e.WagerCents, e.LegCount, e.Multiplier, e.PotentialPayoutCents,
		string(e.Status), key, e.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	for _, l := range e.Legs {
		if _, err := t.ExecContext(ctx, `
			INSERT INTO entry_legs (id, entry_id, prop_line_id, position, pick, result, resolved_at)
			VALUES (?, ?, ?, ?, ?, NULL, NULL)`,
			l.ID, e.ID, l.PropLineID, l.Position, string(l.Pick)); err != nil {
			return fmt.Errorf("insert leg %s: %w", l.PropLineID, err)
		}
	}
	return nil
}

// LockEntry lê a entry com lock exclusivo (Postgres) junto com as legs
func (t *Tx) LockEntry(ctx context.Context, entryID string) (entry.Entry, error) {
	e, err := scanEntry(t.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`+t.d.lockUpdate, entryID))
	if isNoRows(err) {
		return entry.Entry{}, entry.ErrNotFound
	}
	if err != nil {
		return entry.Entry{}, fmt.Errorf("lock entry %s: %w", entryID, err)
	}
	if e.Legs, err = legsOf(ctx, t, []string{e.ID}); err != nil {
		return entry.Entry{}, err
	}
	return e, nil
}

// SetLegResult grava o resultado apenas se ainda estiver nulo (write-once)
func (t *Tx) SetLegResult(ctx context.Context, legID string, result entry.LegResult, at time.Time) (bool, error) {
	res, err := t.ExecContext(ctx,
		`UPDATE entry_legs SET result = ?, resolved_at = ? WHERE id = ? AND result IS NULL`,
		string(result), at.UTC(), legID)
	if err != nil {
		return false, fmt.Errorf("set leg result %s: %w", legID, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CloseEntry move a entry de OPEN para um status terminal; false se já estava fechada
func (t *Tx) CloseEntry(ctx context.Context, entryID string, status entry.Status, at time.Time) (bool, error) {
	res, err := t.ExecContext(ctx,
		`UPDATE entries SET status = ?, settled_at = ? WHERE id = ? AND status = 'OPEN'`,
		string(status), at.UTC(), entryID)
	if err != nil {
		return false, fmt.Errorf("close entry %s: %w", entryID, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// OpenEntryIDsForLine lista entries OPEN com legs ainda não resolvidas na linha
func (t *Tx) OpenEntryIDsForLine(ctx context.Context, lineID string) ([]string, error) {
	rows, err := t.QueryContext(ctx, `
		SELECT DISTINCT l.entry_id
		FROM entry_legs l
		JOIN entries e ON e.id = l.entry_id
		WHERE l.prop_line_id = ? AND l.result IS NULL AND e.status = 'OPEN'
		ORDER BY l.entry_id`, lineID)
	if err != nil {
		return nil, fmt.Errorf("open entries for line %s: %w", lineID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Entry retorna uma entry do usuário com as legs
func (s *Store) Entry(ctx context.Context, userID, entryID string) (entry.Entry, error) {
	q := s.Reader()
	e, err := scanEntry(q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ? AND user_id = ?`, entryID, userID))
	if isNoRows(err) {
		return entry.Entry{}, entry.ErrNotFound
	}
	if err != nil {
		return entry.Entry{}, fmt.Errorf("get entry %s: %w", entryID, err)
	}
	if e.Legs, err = legsOf(ctx, q, []string{e.ID}); err != nil {
		return entry.Entry{}, err
	}
	return e, nil
}

// ListEntries retorna as entries do usuário, mais recentes primeiro, com legs aninhadas
func (s *Store) ListEntries(ctx context.Context, userID string, status entry.Status, limit int) ([]entry.Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.Reader()

	query := `SELECT ` + entryColumns + ` FROM entries WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	var (
		out []entry.Entry
		ids []string
	)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	legs, err := legsOf(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	byEntry := map[string][]entry.Leg{}
	for _, l := range legs {
		byEntry[l.EntryID] = append(byEntry[l.EntryID], l)
	}
	for i := range out {
		out[i].Legs = byEntry[out[i].ID]
	}
	return out, nil
}

// UnresolvedLeg é a visão operacional de uma leg aguardando resultado
type UnresolvedLeg struct {
	LegID      string
	EntryID    string
	UserID     string
	PropLineID string
	StatType   string
	LineValue  float64
	Pick       entry.Pick
	CreatedAt  time.Time
}

// UnresolvedLegs lista legs sem resultado em entries OPEN (tela do operador)
func (s *Store) UnresolvedLegs(ctx context.Context, limit int) ([]UnresolvedLeg, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.Reader().QueryContext(ctx, `
		SELECT l.id, l.entry_id, e.user_id, l.prop_line_id, p.stat_type, p.line_value, l.pick, e.created_at
		FROM entry_legs l
		JOIN entries e ON e.id = l.entry_id
		JOIN prop_lines p ON p.id = l.prop_line_id
		WHERE l.result IS NULL AND e.status = 'OPEN'
		ORDER BY e.created_at, l.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("unresolved legs: %w", err)
	}
	defer rows.Close()

	var out []UnresolvedLeg
	for rows.Next() {
		var (
			u       UnresolvedLeg
			pick    string
			created nullTime
		)
		if err := rows.Scan(&u.LegID, &u.EntryID, &u.UserID, &u.PropLineID, &u.StatType, &u.LineValue, &pick, &created); err != nil {
			return nil, err
		}
		u.Pick = entry.Pick(pick)
		u.CreatedAt = created.Time.UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (entry.Entry, error) {
	var (
		e       entry.Entry
		status  string
		key     sql.NullString
		created nullTime
		settled nullTime
	)
	if err := r.Scan(&e.ID, &e.UserID, &e.WagerCents, &e.LegCount, &e.Multiplier, &e.PotentialPayoutCents,
		&status, &key, &created, &settled); err != nil {
		return entry.Entry{}, err
	}
	e.Status = entry.Status(status)
	e.IdempotencyKey = key.String
	e.CreatedAt = created.Time.UTC()
	e.SettledAt = settled.ptr()
	return e, nil
}

func legsOf(ctx context.Context, q Querier, entryIDs []string) ([]entry.Leg, error) {
	args := make([]any, len(entryIDs))
	for i, id := range entryIDs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+legColumns+`
		FROM entry_legs l
		JOIN prop_lines p ON p.id = l.prop_line_id
		WHERE l.entry_id IN (`+placeholders(len(entryIDs))+`)
		ORDER BY l.entry_id, l.position`, args...)
	if err != nil {
		return nil, fmt.Errorf("legs of %s: %w", strings.Join(entryIDs, ","), err)
	}
	defer rows.Close()

	var out []entry.Leg
	for rows.Next() {
		var (
			l        entry.Leg
			pick     string
			result   sql.NullString
			resolved nullTime
			actual   sql.NullFloat64
		)
		if err := rows.Scan(&l.ID, &l.EntryID, &l.PropLineID, &l.Position, &pick, &result, &resolved, &l.LineValue, &actual); err != nil {
			return nil, err
		}
		l.Pick = entry.Pick(pick)
		if result.Valid {
			r := entry.LegResult(result.String)
			l.Result = &r
		}
		l.ResolvedAt = resolved.ptr()
		if actual.Valid {
			v := actual.Float64
			l.ActualResult = &v
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
