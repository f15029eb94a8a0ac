package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
)

const lineColumns = `id, stat_type, line_value, status, actual_result, settled_at`

// PropLines lê as linhas pedidas, sem lock. Ids ausentes simplesmente não aparecem no mapa.
func (s *Store) PropLines(ctx context.Context, ids []string) (map[string]entry.PropLine, error) {
	return propLines(ctx, s.Reader(), ids, "")
}

// LockPropLines relê as linhas com lock compartilhado: ninguém congela ou liquida
// uma linha enquanto a colocação que a referencia não comita.
func (t *Tx) LockPropLines(ctx context.Context, ids []string) (map[string]entry.PropLine, error) {
	return propLines(ctx, t, ids, t.d.lockShare)
}

// LockPropLine lê uma linha com lock exclusivo
func (t *Tx) LockPropLine(ctx context.Context, id string) (entry.PropLine, error) {
	p, err := scanLine(t.QueryRowContext(ctx,
		`SELECT `+lineColumns+` FROM prop_lines WHERE id = ?`+t.d.lockUpdate, id))
	if isNoRows(err) {
		return entry.PropLine{}, entry.ErrNotFound
	}
	if err != nil {
		return entry.PropLine{}, fmt.Errorf("lock prop line %s: %w", id, err)
	}
	return p, nil
}

// RecordLineResult grava o valor observado e marca a linha SETTLED. O valor é gravado uma única vez.
func (t *Tx) RecordLineResult(ctx context.Context, id string, actual float64, at time.Time) (bool, error) {
	res, err := t.ExecContext(ctx, `
		UPDATE prop_lines SET actual_result = ?, status = 'SETTLED', settled_at = ?, updated_at = ?
		WHERE id = ? AND actual_result IS NULL`, actual, at.UTC(), at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("record line result %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// UpsertPropLine é usado pelo catálogo (e pelos testes) para publicar ou atualizar uma linha.
// Linhas já liquidadas não são alteradas.
func (s *Store) UpsertPropLine(ctx context.Context, p entry.PropLine) error {
	status := p.Status
	if status == "" {
		status = entry.LineOpen
	}
	_, err := s.Reader().ExecContext(ctx, `
		INSERT INTO prop_lines (id, stat_type, line_value, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			stat_type = excluded.stat_type,
			line_value = excluded.line_value,
			status = excluded.status,
			updated_at = excluded.updated_at
		WHERE prop_lines.status <> 'SETTLED'`,
		p.ID, p.StatType, p.LineValue, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert prop line %s: %w", p.ID, err)
	}
	return nil
}

func propLines(ctx context.Context, q Querier, ids []string, lock string) (map[string]entry.PropLine, error) {
	out := make(map[string]entry.PropLine, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+lineColumns+` FROM prop_lines WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`+lock, args...)
	if err != nil {
		return nil, fmt.Errorf("prop lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func scanLine(r rowScanner) (entry.PropLine, error) {
	var (
		p       entry.PropLine
		status  string
		actual  sql.NullFloat64
		settled nullTime
	)
	if err := r.Scan(&p.ID, &p.StatType, &p.LineValue, &status, &actual, &settled); err != nil {
		return entry.PropLine{}, err
	}
	p.Status = entry.LineStatus(status)
	if actual.Valid {
		v := actual.Float64
		p.ActualResult = &v
	}
	p.SettledAt = settled.ptr()
	return p, nil
}
