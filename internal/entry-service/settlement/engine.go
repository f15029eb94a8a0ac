// Package settlement transforma valores observados em resultados de legs e entries.
//
// A liquidação roda em dois estágios idempotentes. Primeiro cada prop line recebe o valor
// observado (uma transação por linha). Depois cada entry tocada é resolvida numa única
// transação: legs, status final e crédito do payout. Rodar o mesmo lote de novo não
// altera nada.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
	"github.com/radieske/props-entry-platform/internal/entry-service/ledger"
	"github.com/radieske/props-entry-platform/internal/entry-service/repo"
	"github.com/radieske/props-entry-platform/pkg/contracts/events"
)

// Outcome com ActualValue nil representa um valor ausente ou ilegível
type Outcome struct {
	PropLineID  string
	ActualValue *float64
}

type Summary struct {
	LegsResolved   int
	EntriesSettled int
	Warnings       []string
}

func (s *Summary) warn(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// Publisher recebe entry_settled após o commit de cada entry. Opcional.
type Publisher interface {
	PublishEntrySettled(ctx context.Context, e events.EntrySettled) error
}

// LineStatusWriter propaga o status SETTLED para o cache de linhas. Opcional.
type LineStatusWriter interface {
	MarkSettled(ctx context.Context, lineID string) error
}

type Engine struct {
	log    *zap.Logger
	store  *repo.Store
	ledger *ledger.Ledger
	publ   Publisher
	lines  LineStatusWriter
	now    func() time.Time

	OnLegResolved  func(entry.LegResult)
	OnEntrySettled func(entry.Status)
}

func NewEngine(log *zap.Logger, store *repo.Store, l *ledger.Ledger, publ Publisher, lines LineStatusWriter) *Engine {
	return &Engine{log: log, store: store, ledger: l, publ: publ, lines: lines, now: time.Now}
}

type settled struct {
	entry  entry.Entry
	status entry.Status
	payout int64
}

// ResolveOutcomes aplica o lote. Registros inválidos ou linhas desconhecidas viram warnings.
// Uma entry que falha não impede as demais; erro de storage com tentativas esgotadas
// (entry.ErrTryAgain) ou contexto cancelado interrompe o lote e é devolvido junto com o
// parcial. Repetir o lote é seguro.
func (e *Engine) ResolveOutcomes(ctx context.Context, outcomes []Outcome) (Summary, error) {
	var sum Summary

	valid := e.validate(outcomes, &sum)

	// estágio 0: valor observado em cada linha
	var (
		touched  []string
		seen     = map[string]struct{}{}
		recorded []string
	)
	for _, o := range valid {
		ids, isNew, err := e.recordLine(ctx, o, &sum)
		if err != nil {
			if fatal(ctx, err) {
				return sum, err
			}
			sum.warn("prop_line_id %s: %v", o.PropLineID, err)
			continue
		}
		if isNew {
			recorded = append(recorded, o.PropLineID)
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				touched = append(touched, id)
			}
		}
	}

	// estágios 1 e 2: uma transação por entry
	var done []settled
	for _, id := range touched {
		res, legs, err := e.settleEntry(ctx, id)
		if err != nil {
			if fatal(ctx, err) {
				return sum, err
			}
			sum.warn("entry %s: %v", id, err)
			e.log.Warn("settle entry failed", zap.String("entryId", id), zap.Error(err))
			continue
		}
		sum.LegsResolved += len(legs)
		for _, r := range legs {
			if e.OnLegResolved != nil {
				e.OnLegResolved(r)
			}
		}
		if res != nil {
			sum.EntriesSettled++
			done = append(done, *res)
		}
	}

	e.afterCommit(ctx, done, recorded)

	e.log.Info("settlement batch applied",
		zap.Int("outcomes", len(outcomes)),
		zap.Int("legsResolved", sum.LegsResolved),
		zap.Int("entriesSettled", sum.EntriesSettled),
		zap.Int("warnings", len(sum.Warnings)),
	)
	return sum, nil
}

func (e *Engine) validate(outcomes []Outcome, sum *Summary) []Outcome {
	out := make([]Outcome, 0, len(outcomes))
	seen := make(map[string]struct{}, len(outcomes))
	for i, o := range outcomes {
		switch {
		case o.PropLineID == "":
			sum.warn("result %d: empty prop_line_id", i)
		case o.ActualValue == nil:
			sum.warn("prop_line_id %s: missing actual_value", o.PropLineID)
		case math.IsNaN(*o.ActualValue) || math.IsInf(*o.ActualValue, 0):
			sum.warn("prop_line_id %s: invalid actual_value", o.PropLineID)
		default:
			if _, dup := seen[o.PropLineID]; dup {
				sum.warn("prop_line_id %s: duplicated in batch, first value kept", o.PropLineID)
				continue
			}
			seen[o.PropLineID] = struct{}{}
			out = append(out, o)
		}
	}
	for _, w := range sum.Warnings {
		e.log.Warn("settlement record skipped", zap.String("reason", w))
	}
	return out
}

// recordLine grava o valor observado (uma vez) e devolve as entries OPEN com legs pendentes na linha
func (e *Engine) recordLine(ctx context.Context, o Outcome, sum *Summary) ([]string, bool, error) {
	var (
		ids   []string
		isNew bool
		warn  string
	)
	err := e.store.InTx(ctx, func(tx *repo.Tx) error {
		ids, isNew, warn = nil, false, ""

		line, err := tx.LockPropLine(ctx, o.PropLineID)
		if errors.Is(err, entry.ErrNotFound) {
			warn = "unknown prop line"
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case line.Status == entry.LinePulled:
			// TODO: anular (VOID) as legs de linhas retiradas quando o produto definir a regra de PARTIAL
			warn = "line pulled, legs left unresolved"
			return nil
		case line.ActualResult != nil:
			if *line.ActualResult != *o.ActualValue {
				warn = fmt.Sprintf("conflicting actual_value %v, keeping recorded %v", *o.ActualValue, *line.ActualResult)
			}
		default:
			if isNew, err = tx.RecordLineResult(ctx, line.ID, *o.ActualValue, e.now()); err != nil {
				return err
			}
		}

		ids, err = tx.OpenEntryIDsForLine(ctx, line.ID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if warn != "" {
		sum.warn("prop_line_id %s: %s", o.PropLineID, warn)
		e.log.Warn("settlement record", zap.String("propLineId", o.PropLineID), zap.String("reason", warn))
	}
	return ids, isNew, nil
}

// settleEntry resolve as legs da entry que já têm valor observado e, se todas tiverem
// resultado, fecha a entry e credita o payout na mesma transação.
func (e *Engine) settleEntry(ctx context.Context, entryID string) (*settled, []entry.LegResult, error) {
	var (
		res      *settled
		resolved []entry.LegResult
	)
	err := e.store.InTx(ctx, func(tx *repo.Tx) error {
		res, resolved = nil, nil

		en, err := tx.LockEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if en.Status.Terminal() {
			return nil
		}

		now := e.now()
		for i := range en.Legs {
			l := &en.Legs[i]
			if l.Resolved() || l.ActualResult == nil {
				continue
			}
			r := Resolve(l.Pick, l.LineValue, *l.ActualResult)
			ok, err := tx.SetLegResult(ctx, l.ID, r, now)
			if err != nil {
				return err
			}
			if ok {
				l.Result = &r
				resolved = append(resolved, r)
			}
		}

		status := Aggregate(en.Legs)
		if status == entry.StatusOpen {
			return nil
		}
		closed, err := tx.CloseEntry(ctx, en.ID, status, now)
		if err != nil || !closed {
			return err
		}

		var payout int64
		if status == entry.StatusWon {
			if _, err := e.ledger.Credit(ctx, tx, en.UserID, en.PotentialPayoutCents, "payout:"+en.ID); err != nil {
				return err
			}
			payout = en.PotentialPayoutCents
		}
		res = &settled{entry: en, status: status, payout: payout}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res, resolved, nil
}

func (e *Engine) afterCommit(ctx context.Context, done []settled, lines []string) {
	for _, s := range done {
		e.log.Info("entry settled",
			zap.String("entryId", s.entry.ID),
			zap.String("userId", s.entry.UserID),
			zap.String("status", string(s.status)),
			zap.Int64("payout", s.payout),
		)
		if e.OnEntrySettled != nil {
			e.OnEntrySettled(s.status)
		}
		if e.publ == nil {
			continue
		}
		ev := events.EntrySettled{
			EntryID:     s.entry.ID,
			UserID:      s.entry.UserID,
			Status:      string(s.status),
			PayoutCents: s.payout,
			Ts:          e.now().UTC(),
		}
		if err := e.publ.PublishEntrySettled(ctx, ev); err != nil {
			e.log.Warn("publish entry_settled", zap.String("entryId", s.entry.ID), zap.Error(err))
		}
	}

	if e.lines == nil {
		return
	}
	for _, id := range lines {
		if err := e.lines.MarkSettled(ctx, id); err != nil {
			e.log.Warn("line cache update", zap.String("propLineId", id), zap.Error(err))
		}
	}
}

// UnresolvedLegs lista as legs ainda sem resultado (tela do operador)
func (e *Engine) UnresolvedLegs(ctx context.Context, limit int) ([]repo.UnresolvedLeg, error) {
	return e.store.UnresolvedLegs(ctx, limit)
}

func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, entry.ErrTryAgain)
}
