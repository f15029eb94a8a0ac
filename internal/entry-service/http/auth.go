package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Identity resolve o usuário autenticado da requisição.
// A emissão de identidade é externa; o gateway de autenticação repassa o id num header.
type Identity interface {
	UserID(r *http.Request) (string, error)
}

// HeaderIdentity lê o id do usuário de um header (padrão X-User-ID)
type HeaderIdentity struct{ Header string }

func (h HeaderIdentity) UserID(r *http.Request) (string, error) {
	name := h.Header
	if name == "" {
		name = "X-User-ID"
	}
	id := strings.TrimSpace(r.Header.Get(name))
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// SettlementAuthorizer decide quem pode liquidar e ver o painel de operador
type SettlementAuthorizer interface {
	Authorize(r *http.Request) error
}

// TokenAuthorizer exige "Authorization: Bearer <token>". Token vazio nega tudo.
type TokenAuthorizer struct{ Token string }

func (a TokenAuthorizer) Authorize(r *http.Request) error {
	h := r.Header.Get("Authorization")
	got, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || got == "" {
		return ErrUnauthenticated
	}
	if a.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.Token)) != 1 {
		return ErrForbidden
	}
	return nil
}
