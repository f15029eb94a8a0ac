package events

// EntryPlaced é publicado pelo entry-service após o commit da transação de colocação.
type EntryPlaced struct {
	EntryID              string     `json:"entry_id"`
	UserID               string     `json:"user_id"`
	WagerCents           int64      `json:"wager_cents"`
	Multiplier           int64      `json:"multiplier"`
	PotentialPayoutCents int64      `json:"potential_payout_cents"`
	Legs                 []EntryLeg `json:"legs"`
	TsUnixMs             int64      `json:"ts_unix_ms"`
}

type EntryLeg struct {
	PropLineID string `json:"prop_line_id"`
	Pick       string `json:"pick"` // "MORE" | "LESS"
}
