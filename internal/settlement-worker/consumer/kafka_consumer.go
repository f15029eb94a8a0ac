package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/props-entry-platform/internal/entry-service/settlement"
	"github.com/radieske/props-entry-platform/internal/shared/kafka"
	"github.com/radieske/props-entry-platform/pkg/contracts/events"
)

// MessageReader é o subconjunto de *kafka.Reader usado pelo worker (commit manual)
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

type Resolver interface {
	ResolveOutcomes(ctx context.Context, outcomes []settlement.Outcome) (settlement.Summary, error)
}

// Processor consome lotes de prop_results e aplica no Settlement Engine.
// O offset só é commitado depois que o lote foi aplicado ou enviado à DLQ.
type Processor struct {
	Log      *zap.Logger
	Reader   MessageReader
	Resolver Resolver
	DLQ      kafka.MessageWriter // opcional
	DLQTopic string

	MaxAttempts int           // tentativas por lote (padrão 3)
	Backoff     time.Duration // backoff linear entre tentativas

	OnConsumed func()       // métricas
	OnApplied  func()       // métricas
	OnDLQ      func()       // métricas
	OnError    func(string) // métricas por estágio
}

// Run inicia o loop de consumo até o contexto ser cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.stage("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		// offsets são cumulativos: não dá para pular a mensagem sem perdê-la,
		// então insiste nela até aplicar ou enviar à DLQ
		for {
			err := p.Handle(ctx, m.Key, m.Value)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Error("message not handled, retrying", zap.Int64("offset", m.Offset), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay()):
			}
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			p.Log.Warn("kafka commit failed", zap.Error(err))
			p.stage("commit")
		}
	}
}

// Handle decodifica e aplica um lote. Mensagem inválida ou lote que esgota as tentativas
// vai para a DLQ; o erro só é devolvido quando nem a DLQ aceitou.
func (p *Processor) Handle(ctx context.Context, key, value []byte) error {
	var batch events.PropResults
	if err := json.Unmarshal(value, &batch); err != nil {
		p.Log.Warn("invalid message", zap.Error(err))
		p.stage("decode")
		return p.deadLetter(ctx, key, value, err)
	}

	outcomes := make([]settlement.Outcome, len(batch.Results))
	for i, r := range batch.Results {
		outcomes[i] = settlement.Outcome{PropLineID: r.PropLineID, ActualValue: r.ActualValue}
	}

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * p.Backoff):
			}
		}
		var sum settlement.Summary
		sum, err = p.Resolver.ResolveOutcomes(ctx, outcomes)
		if err == nil {
			p.Log.Info("prop results applied",
				zap.String("batchId", batch.BatchID),
				zap.String("source", batch.Source),
				zap.Int("legsResolved", sum.LegsResolved),
				zap.Int("entriesSettled", sum.EntriesSettled),
				zap.Strings("warnings", sum.Warnings),
			)
			if p.OnApplied != nil {
				p.OnApplied()
			}
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		p.Log.Warn("resolve outcomes failed", zap.String("batchId", batch.BatchID), zap.Int("attempt", i+1), zap.Error(err))
		p.stage("resolve")
	}
	return p.deadLetter(ctx, key, value, err)
}

type deadLetter struct {
	Error   string          `json:"error"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Raw     string          `json:"raw,omitempty"`
	Ts      time.Time       `json:"ts"`
}

func (p *Processor) deadLetter(ctx context.Context, key, value []byte, cause error) error {
	if p.DLQ == nil {
		return fmt.Errorf("no dlq configured: %w", cause)
	}
	dl := deadLetter{Error: cause.Error(), Ts: time.Now().UTC()}
	if json.Valid(value) {
		dl.Payload = value
	} else {
		dl.Raw = string(value)
	}
	b, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	if err := kafka.WriteJSON(ctx, p.DLQ, p.DLQTopic, string(key), b); err != nil {
		p.stage("dlq")
		return fmt.Errorf("write dlq: %w (cause: %v)", err, cause)
	}
	p.Log.Warn("message sent to dlq", zap.String("topic", p.DLQTopic), zap.Error(cause))
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
	return nil
}

func (p *Processor) retryDelay() time.Duration {
	if p.Backoff <= 0 {
		return time.Second
	}
	return 10 * p.Backoff
}

func (p *Processor) stage(s string) {
	if p.OnError != nil {
		p.OnError(s)
	}
}
