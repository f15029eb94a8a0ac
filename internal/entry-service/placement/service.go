package placement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
	"github.com/radieske/props-entry-platform/internal/entry-service/ledger"
	"github.com/radieske/props-entry-platform/internal/entry-service/multiplier"
	"github.com/radieske/props-entry-platform/internal/entry-service/repo"
	"github.com/radieske/props-entry-platform/pkg/contracts/events"
)

// LineStatusCache é o pré-check rápido do status das linhas (Redis). Opcional.
type LineStatusCache interface {
	Status(ctx context.Context, lineID string) (entry.LineStatus, bool, error)
}

// Publisher recebe o evento entry_placed após o commit. Opcional.
type Publisher interface {
	PublishEntryPlaced(ctx context.Context, e events.EntryPlaced) error
}

type Config struct {
	MinWagerCents int64
	MaxWagerCents int64
}

type LegRequest struct {
	PropLineID string
	Pick       entry.Pick
}

type Request struct {
	UserID         string
	WagerCents     int64
	Legs           []LegRequest
	IdempotencyKey string
}

type Result struct {
	Entry    entry.Entry
	Replayed bool // requisição repetida com a mesma idempotency key
}

// Service valida e grava entries. Débito, entry e legs comitam na mesma transação.
type Service struct {
	log    *zap.Logger
	store  *repo.Store
	ledger *ledger.Ledger
	cfg    Config
	cache  LineStatusCache
	publ   Publisher

	now   func() time.Time
	newID func() string

	OnPlaced   func(entry.Entry) // métricas
	OnRejected func(code string) // métricas por motivo
}

func NewService(log *zap.Logger, store *repo.Store, l *ledger.Ledger, cfg Config, cache LineStatusCache, publ Publisher) *Service {
	return &Service{
		log:    log,
		store:  store,
		ledger: l,
		cfg:    cfg,
		cache:  cache,
		publ:   publ,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// PlaceEntry executa as checagens em ordem (legs, duplicidade, linhas, wager, saldo) e só
// então abre a transação. Se qualquer passo da transação falhar nada é gravado.
func (s *Service) PlaceEntry(ctx context.Context, req Request) (Result, error) {
	res, err := s.place(ctx, req)
	if err != nil {
		if s.OnRejected != nil {
			code := entry.Code(err)
			if code == "" {
				code = "internal"
			}
			s.OnRejected(code)
		}
		return Result{}, err
	}
	return res, nil
}

func (s *Service) place(ctx context.Context, req Request) (Result, error) {
	if req.UserID == "" {
		return Result{}, entry.ErrUserNotFound
	}

	// Requisição repetida que já comitou devolve a entry original, mesmo que as
	// linhas tenham fechado desde então
	if req.IdempotencyKey != "" {
		if e, ok, err := s.store.EntryByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey); err != nil {
			return Result{}, err
		} else if ok {
			return Result{Entry: e, Replayed: true}, nil
		}
	}

	lineIDs, err := validateLegs(req.Legs)
	if err != nil {
		return Result{}, err
	}
	if err := s.checkLines(ctx, lineIDs); err != nil {
		return Result{}, err
	}
	if req.WagerCents < s.cfg.MinWagerCents || req.WagerCents > s.cfg.MaxWagerCents || req.WagerCents <= 0 {
		return Result{}, fmt.Errorf("%w: %d not in [%d, %d]", entry.ErrInvalidWager, req.WagerCents, s.cfg.MinWagerCents, s.cfg.MaxWagerCents)
	}
	// leitura otimista; o débito condicional confere de novo dentro da transação
	balance, err := s.store.Balance(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	if balance < req.WagerCents {
		return Result{}, entry.ErrInsufficientFunds
	}

	mult, err := multiplier.For(len(req.Legs))
	if err != nil {
		return Result{}, entry.ErrInvalidLegCount
	}

	e := s.build(req, mult)
	res := Result{Entry: e}

	err = s.store.InTx(ctx, func(tx *repo.Tx) error {
		if req.IdempotencyKey != "" {
			prev, ok, err := tx.EntryByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if ok {
				res = Result{Entry: prev, Replayed: true}
				return nil
			}
		}

		lines, err := tx.LockPropLines(ctx, lineIDs)
		if err != nil {
			return err
		}
		if err := requireOpen(lines, lineIDs); err != nil {
			return err
		}

		if _, err := s.ledger.Debit(ctx, tx, req.UserID, e.WagerCents, "entry:"+e.ID); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, &e)
	})
	if err != nil && req.IdempotencyKey != "" && repo.IsUniqueViolation(err) {
		// outra tentativa com a mesma key comitou primeiro; o débito desta foi desfeito
		prev, ok, lerr := s.store.EntryByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if lerr != nil || !ok {
			s.log.Warn("idempotency key race", zap.String("userId", req.UserID), zap.Error(err))
			return Result{}, fmt.Errorf("%w: idempotency key %q in flight", entry.ErrTryAgain, req.IdempotencyKey)
		}
		return Result{Entry: prev, Replayed: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if !res.Replayed {
		s.afterCommit(ctx, res.Entry)
	}
	return res, nil
}

func (s *Service) build(req Request, mult int64) entry.Entry {
	now := s.now().UTC()
	e := entry.Entry{
		ID:                   s.newID(),
		UserID:               req.UserID,
		WagerCents:           req.WagerCents,
		LegCount:             len(req.Legs),
		Multiplier:           mult,
		PotentialPayoutCents: req.WagerCents * mult,
		Status:               entry.StatusOpen,
		IdempotencyKey:       req.IdempotencyKey,
		CreatedAt:            now,
	}
	e.Legs = make([]entry.Leg, len(req.Legs))
	for i, l := range req.Legs {
		e.Legs[i] = entry.Leg{
			ID:         s.newID(),
			EntryID:    e.ID,
			PropLineID: l.PropLineID,
			Position:   i,
			Pick:       l.Pick,
		}
	}
	return e
}

func (s *Service) afterCommit(ctx context.Context, e entry.Entry) {
	s.log.Info("entry placed",
		zap.String("entryId", e.ID),
		zap.String("userId", e.UserID),
		zap.Int64("wager", e.WagerCents),
		zap.Int("legs", e.LegCount),
		zap.Int64("potentialPayout", e.PotentialPayoutCents),
	)
	if s.OnPlaced != nil {
		s.OnPlaced(e)
	}
	if s.publ == nil {
		return
	}

	ev := events.EntryPlaced{
		EntryID:              e.ID,
		UserID:               e.UserID,
		WagerCents:           e.WagerCents,
		Multiplier:           e.Multiplier,
		PotentialPayoutCents: e.PotentialPayoutCents,
	}
	for _, l := range e.Legs {
		ev.Legs = append(ev.Legs, events.EntryLeg{PropLineID: l.PropLineID, Pick: string(l.Pick)})
	}
	// best effort: a entry já está comitada
	if err := s.publ.PublishEntryPlaced(ctx, ev); err != nil {
		s.log.Warn("publish entry_placed", zap.String("entryId", e.ID), zap.Error(err))
	}
}

// checkLines consulta o cache primeiro; qualquer status não-OPEN no cache já rejeita.
// O banco continua sendo a fonte da verdade para o que passar.
func (s *Service) checkLines(ctx context.Context, ids []string) error {
	if s.cache != nil {
		for _, id := range ids {
			st, ok, err := s.cache.Status(ctx, id)
			if err != nil {
				s.log.Debug("line cache miss", zap.String("propLineId", id), zap.Error(err))
				continue
			}
			if ok && st != entry.LineOpen {
				return fmt.Errorf("%w: %s is %s", entry.ErrLineUnavailable, id, st)
			}
		}
	}

	lines, err := s.store.PropLines(ctx, ids)
	if err != nil {
		return err
	}
	return requireOpen(lines, ids)
}

func requireOpen(lines map[string]entry.PropLine, ids []string) error {
	for _, id := range ids {
		p, ok := lines[id]
		if !ok {
			return fmt.Errorf("%w: %s not found", entry.ErrLineUnavailable, id)
		}
		if p.Status != entry.LineOpen {
			return fmt.Errorf("%w: %s is %s", entry.ErrLineUnavailable, id, p.Status)
		}
	}
	return nil
}

// validateLegs cobre as checagens que não dependem de estado: quantidade, duplicidade e pick
func validateLegs(legs []LegRequest) ([]string, error) {
	if len(legs) < multiplier.MinLegs || len(legs) > multiplier.MaxLegs {
		return nil, fmt.Errorf("%w: got %d", entry.ErrInvalidLegCount, len(legs))
	}
	seen := make(map[string]struct{}, len(legs))
	ids := make([]string, 0, len(legs))
	for _, l := range legs {
		if _, dup := seen[l.PropLineID]; dup {
			return nil, fmt.Errorf("%w: %s", entry.ErrDuplicateLeg, l.PropLineID)
		}
		seen[l.PropLineID] = struct{}{}
		ids = append(ids, l.PropLineID)
	}
	for _, l := range legs {
		if l.PropLineID == "" {
			return nil, fmt.Errorf("%w: empty prop_line_id", entry.ErrLineUnavailable)
		}
		if !l.Pick.Valid() {
			return nil, fmt.Errorf("%w: %q", entry.ErrInvalidPick, l.Pick)
		}
	}
	return ids, nil
}
