// Package kafka publishes audit events to a Kafka topic.
//
// Records are keyed by contact request ID so every event for one request lands
// on the same partition and keeps its order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "chatline/pkg/platform/audit"
	"chatline/pkg/platform/circuit"
)

// Producer is the subset of *kgo.Client used by the sink.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink is an append-only audit.Sink backed by Kafka. It is not queryable.
type Sink struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
}

// wireEvent is the JSON shape consumers read.
type wireEvent struct {
	Action           string    `json:"action"`
	Timestamp        time.Time `json:"timestamp"`
	ActorID          string    `json:"actor_id"`
	CounterpartID    string    `json:"counterpart_id,omitempty"`
	ContactRequestID string    `json:"contact_request_id,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
	Detail           string    `json:"detail,omitempty"`
}

// New creates a sink. A nil breaker disables fail-fast behavior.
func New(producer Producer, topic string, breaker *circuit.Breaker) *Sink {
	return &Sink{producer: producer, topic: topic, breaker: breaker}
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	record, err := s.record(event)
	if err != nil {
		return err
	}
	produce := func() error {
		return s.producer.ProduceSync(ctx, record).FirstErr()
	}
	if s.breaker != nil {
		err = s.breaker.Execute(produce)
	} else {
		err = produce()
	}
	if err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *Sink) record(event audit.Event) (*kgo.Record, error) {
	w := wireEvent{
		Action:    string(event.Action),
		Timestamp: event.Timestamp.UTC(),
		ActorID:   event.ActorID.String(),
		RequestID: event.RequestID,
		Detail:    event.Detail,
	}
	if !event.CounterpartID.IsNil() {
		w.CounterpartID = event.CounterpartID.String()
	}
	var key []byte
	if !event.ContactRequestID.IsNil() {
		w.ContactRequestID = event.ContactRequestID.String()
		key = []byte(w.ContactRequestID)
	} else {
		key = []byte(w.ActorID)
	}
	value, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal audit event: %w", err)
	}
	return &kgo.Record{
		Topic: s.topic,
		Key:   key,
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
		},
	}, nil
}
