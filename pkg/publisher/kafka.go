// Package publisher sends picks and passes to Kafka for downstream services.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// Event types.
const (
	EventPick = "pick"
	EventPass = "pass"
)

// Event is the message envelope. Payload is a sports.Pick or
// sports.PassRecord.
type Event struct {
	Type      string      `json:"type"`
	Capper    string      `json:"capper"`
	GameID    string      `json:"game_id"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic, keyed by game ID so every
// message about a game lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	log    *zap.Logger
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher for a topic.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not provided")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic not provided")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
	}
	return newPublisher(w, log), nil
}

func newPublisher(w messageWriter, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, log: log, now: time.Now}
}

// PublishPicks sends picks in one write.
func (p *KafkaPublisher) PublishPicks(ctx context.Context, picks []sports.Pick) error {
	msgs := make([]kafka.Message, 0, len(picks))
	for i := range picks {
		m, err := p.message(Event{Type: EventPick, Capper: picks[i].Capper, GameID: picks[i].GameID, Payload: picks[i]})
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	return p.write(ctx, msgs)
}

// PublishPasses sends pass records in one write.
func (p *KafkaPublisher) PublishPasses(ctx context.Context, passes []sports.PassRecord) error {
	msgs := make([]kafka.Message, 0, len(passes))
	for i := range passes {
		m, err := p.message(Event{Type: EventPass, Capper: passes[i].Capper, GameID: passes[i].GameID, Payload: passes[i]})
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	return p.write(ctx, msgs)
}

func (p *KafkaPublisher) message(e Event) (kafka.Message, error) {
	e.Timestamp = p.now().UTC()
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event for %s: %w", e.Type, e.GameID, err)
	}
	return kafka.Message{
		Key:   []byte(e.GameID),
		Value: value,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
			{Key: "capper", Value: []byte(e.Capper)},
		},
	}, nil
}

func (p *KafkaPublisher) write(ctx context.Context, msgs []kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("failed to publish events", zap.Int("count", len(msgs)), zap.Error(err))
		return fmt.Errorf("publish %d events: %w", len(msgs), err)
	}
	p.log.Debug("published events", zap.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
