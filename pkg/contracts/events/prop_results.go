package events

import (
	"bytes"
	"encoding/json"
	"time"
)

// PropResults é o lote de valores observados publicado no tópico "prop_results"
// pelo colaborador de ingestão de estatísticas.
type PropResults struct {
	BatchID string       `json:"batch_id,omitempty"`
	Source  string       `json:"source,omitempty"`
	Results []PropResult `json:"results"`
	Ts      time.Time    `json:"ts"`
}

// PropResult traz ActualValue nil quando o valor está ausente, é null ou não é numérico.
type PropResult struct {
	PropLineID  string   `json:"prop_line_id"`
	ActualValue *float64 `json:"actual_value"`
}

// UnmarshalJSON decodifica cada registro isoladamente: um registro malformado não derruba o
// lote, só chega vazio e vira warning na liquidação.
func (r *PropResult) UnmarshalJSON(b []byte) error {
	*r = PropResult{}
	var raw struct {
		PropLineID  json.RawMessage `json:"prop_line_id"`
		ActualValue json.RawMessage `json:"actual_value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	_ = json.Unmarshal(raw.PropLineID, &r.PropLineID)

	if len(raw.ActualValue) == 0 || bytes.Equal(raw.ActualValue, []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw.ActualValue, &v); err == nil {
		r.ActualValue = &v
	}
	return nil
}
