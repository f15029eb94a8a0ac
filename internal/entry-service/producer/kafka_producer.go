package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/radieske/props-entry-platform/internal/shared/kafka"
	"github.com/radieske/props-entry-platform/pkg/contracts/events"
)

// KafkaPublisher publica os eventos da entry. As mensagens usam o id da entry como key,
// então placed e settled da mesma entry caem na mesma partição.
type KafkaPublisher struct {
	Writer       kafka.MessageWriter
	PlacedTopic  string
	SettledTopic string
}

func NewKafkaPublisher(w kafka.MessageWriter, placedTopic, settledTopic string) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, PlacedTopic: placedTopic, SettledTopic: settledTopic}
}

func (p *KafkaPublisher) PublishEntryPlaced(ctx context.Context, e events.EntryPlaced) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.Writer, p.PlacedTopic, e.EntryID, b)
}

func (p *KafkaPublisher) PublishEntrySettled(ctx context.Context, e events.EntrySettled) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.Writer, p.SettledTopic, e.EntryID, b)
}
