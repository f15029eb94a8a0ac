package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/props-entry-platform/internal/entry-service/dto"
	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
	"github.com/radieske/props-entry-platform/internal/entry-service/ledger"
	"github.com/radieske/props-entry-platform/internal/entry-service/placement"
	"github.com/radieske/props-entry-platform/internal/entry-service/repo"
	"github.com/radieske/props-entry-platform/internal/entry-service/settlement"
)

const maxBody = 1 << 20

type ctxKey struct{}

// Server expõe a API de entries, o /me e os endpoints de operador
type Server struct {
	log    *zap.Logger
	store  *repo.Store
	ledger *ledger.Ledger
	place  *placement.Service
	settle *settlement.Engine
	ident  Identity
	admin  SettlementAuthorizer

	// AutoProvisionCents > 0 abre a conta do usuário no primeiro acesso (ambiente local)
	AutoProvisionCents int64
}

func NewServer(log *zap.Logger, store *repo.Store, l *ledger.Ledger, p *placement.Service, e *settlement.Engine, ident Identity, admin SettlementAuthorizer) *Server {
	return &Server{log: log, store: store, ledger: l, place: p, settle: e, ident: ident, admin: admin}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/entries", s.placeEntry)   // cria entry
		r.Get("/entries", s.listEntries)   // ?status=OPEN&limit=50
		r.Get("/entries/{id}", s.getEntry) // entry com legs
		r.Get("/me", s.me)                 // saldo
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authorizeAdmin)
		r.Post("/settlements", s.resolveOutcomes)
		r.Get("/admin/unsettled-legs", s.unsettledLegs)
	})
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.ident.UserID(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthenticated"})
			return
		}
		if s.AutoProvisionCents > 0 {
			if _, err := s.store.EnsureUser(r.Context(), s.ledger, userID, s.AutoProvisionCents); err != nil {
				s.writeError(w, err)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func (s *Server) authorizeAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch err := s.admin.Authorize(r); {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, ErrForbidden):
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Forbidden"})
		default:
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthenticated"})
		}
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (s *Server) placeEntry(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceEntryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "BadRequest", Message: "bad json"})
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = req.IdempotencyKey
	}

	pr := placement.Request{
		UserID:         userID(r),
		WagerCents:     req.Wager,
		IdempotencyKey: key,
		Legs:           make([]placement.LegRequest, len(req.Legs)),
	}
	for i, l := range req.Legs {
		pr.Legs[i] = placement.LegRequest{PropLineID: l.PropLineID, Pick: entry.Pick(strings.ToUpper(l.Pick))}
	}

	res, err := s.place.PlaceEntry(r.Context(), pr)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, dto.NewPlaceEntryResponse(res.Entry))
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	status := entry.Status(strings.ToUpper(r.URL.Query().Get("status")))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := s.store.ListEntries(r.Context(), userID(r), status, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]dto.EntryResponse, 0, len(list))
	for _, e := range list {
		out = append(out, dto.NewEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.Entry(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewEntryResponse(e))
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	bal, err := s.store.Balance(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MeResponse{UserID: id, Balance: bal})
}

func (s *Server) resolveOutcomes(w http.ResponseWriter, r *http.Request) {
	var req dto.SettlementRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "BadRequest", Message: "bad json"})
		return
	}
	outcomes := make([]settlement.Outcome, len(req.Results))
	for i, o := range req.Results {
		outcomes[i] = settlement.Outcome{PropLineID: o.PropLineID, ActualValue: o.ActualValue}
	}

	sum, err := s.settle.ResolveOutcomes(r.Context(), outcomes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SettlementResponse{
		LegsResolved:   sum.LegsResolved,
		EntriesSettled: sum.EntriesSettled,
		Warnings:       sum.Warnings,
	})
}

func (s *Server) unsettledLegs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	legs, err := s.settle.UnresolvedLegs(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]dto.UnresolvedLegResponse, 0, len(legs))
	for _, l := range legs {
		out = append(out, dto.NewUnresolvedLegResponse(l))
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor traduz o código de erro do domínio para o status HTTP
func statusFor(code string) int {
	switch code {
	case "InvalidLegCount", "DuplicateLeg", "InvalidPick", "InvalidWager":
		return http.StatusBadRequest
	case "LineUnavailable", "InsufficientFunds":
		return http.StatusConflict
	case "NotFound", "UserNotFound":
		return http.StatusNotFound
	case "TryAgain":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := entry.Code(err)
	status := statusFor(code)
	if code == "" {
		s.log.Error("request failed", zap.Error(err))
		code = "Internal"
	} else if status == http.StatusServiceUnavailable {
		s.log.Warn("transaction retries exhausted", zap.Error(err))
	}
	resp := dto.ErrorResponse{Error: code}
	if status != http.StatusInternalServerError {
		resp.Message = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
