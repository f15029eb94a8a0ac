package entry

import "errors"

// Erros de validação: rejeitados antes de qualquer mutação
var (
	ErrInvalidLegCount = errors.New("entry must have between 2 and 6 legs")
	ErrDuplicateLeg    = errors.New("duplicate prop line in entry")
	ErrInvalidPick     = errors.New("pick must be MORE or LESS")
	ErrLineUnavailable = errors.New("prop line not available")
	ErrInvalidWager    = errors.New("wager out of bounds")
)

// Erros de recurso e consistência
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTryAgain          = errors.New("transaction conflict, try again")
	ErrNotFound          = errors.New("not found")
	ErrUserNotFound      = errors.New("user not found")
)

// Code traduz o erro para o código exposto ao cliente. Vazio para erros internos.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidLegCount):
		return "InvalidLegCount"
	case errors.Is(err, ErrDuplicateLeg):
		return "DuplicateLeg"
	case errors.Is(err, ErrInvalidPick):
		return "InvalidPick"
	case errors.Is(err, ErrLineUnavailable):
		return "LineUnavailable"
	case errors.Is(err, ErrInvalidWager):
		return "InvalidWager"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrTryAgain):
		return "TryAgain"
	case errors.Is(err, ErrUserNotFound):
		return "UserNotFound"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	}
	return ""
}
