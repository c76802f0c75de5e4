// Package stream publishes committed vault events to NATS JetStream for
// downstream consumers. Publishing is best-effort: the authoritative
// record is already persisted by the time an event reaches this package.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"CollateralVault/internal/event"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName holds every outbound vault event.
	StreamName = "VAULT_EVENTS"

	subjectPrefix = "vault.events."
)

// Publisher drains the publish channel and writes each event to
// vault.events.{kind}.
type Publisher struct {
	js    jetstream.JetStream
	input <-chan event.Event
}

func NewPublisher(js jetstream.JetStream, input <-chan event.Event) *Publisher {
	return &Publisher{js: js, input: input}
}

// Run starts the publisher loop. Blocks until ctx is cancelled or the
// input channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-p.input:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, evt); err != nil {
				// Non-fatal: consumers can read vault_records directly.
				log.Printf("WARN: outbound publish failed key=%s: %v", evt.IdempotencyKey(), err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, evt event.Event) error {
	envelope := struct {
		Kind           string      `json:"kind"`
		IdempotencyKey string      `json:"idempotency_key"`
		Owner          string      `json:"owner"`
		Payload        interface{} `json:"payload"`
		Timestamp      time.Time   `json:"timestamp"`
	}{
		Kind:           evt.Kind().String(),
		IdempotencyKey: evt.IdempotencyKey(),
		Owner:          evt.Owner(),
		Payload:        evt,
		Timestamp:      evt.OccurredAt(),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := subjectPrefix + strings.ToLower(evt.Kind().String())
	_, err = p.js.Publish(ctx, subject, data,
		jetstream.WithMsgID(evt.IdempotencyKey()))
	return err
}

// EnsureEventStream creates the outbound events stream.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create event stream: %w", err)
	}
	log.Printf("INFO: ensured outbound stream %s", StreamName)
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
