package dto

import (
	"encoding/json"

	"github.com/radieske/props-entry-platform/pkg/contracts/events"
)

// Valores monetários são inteiros em centavos

type PlaceEntryRequest struct {
	Wager          int64        `json:"wager"`
	Legs           []LegRequest `json:"legs"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"` // alternativa ao header Idempotency-Key
}

type LegRequest struct {
	PropLineID string `json:"prop_line_id"`
	Pick       string `json:"pick"` // "MORE" | "LESS"
}

type SettlementRequest struct {
	Results []OutcomeRequest `json:"results"`
}

// OutcomeRequest segue o contrato do tópico prop_results: ActualValue nil quando ausente ou inválido
type OutcomeRequest struct {
	PropLineID  string   `json:"prop_line_id"`
	ActualValue *float64 `json:"actual_value"`
}

func (o *OutcomeRequest) UnmarshalJSON(b []byte) error {
	var r events.PropResult
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*o = OutcomeRequest{PropLineID: r.PropLineID, ActualValue: r.ActualValue}
	return nil
}
