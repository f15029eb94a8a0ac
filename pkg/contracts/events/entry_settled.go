package events

import "time"

// Evento emitido quando uma entry sai de OPEN para um status terminal.
type EntrySettled struct {
	EntryID     string    `json:"entry_id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"` // "WON" | "LOST"
	PayoutCents int64     `json:"payout_cents"`
	Ts          time.Time `json:"ts"`
}
