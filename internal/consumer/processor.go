// Package consumer reads training events back from Kafka for downstream processing.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a record published by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	AggregateType string
	AggregateID   string
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetryDelay sets the pause after a failed fetch or handler call.
func WithRetryDelay(delay time.Duration) Option {
	return func(p *Processor) {
		p.retryDelay = delay
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
// It implements suture.Service.
type Processor struct {
	name       string
	reader     Reader
	handler    Handler
	logger     zerolog.Logger
	retryDelay time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(name string, reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		name:       name,
		reader:     reader,
		handler:    handler,
		logger:     zerolog.Nop(),
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Serve processes messages until the context is cancelled. A message whose
// handler fails is not committed and is retried after the retry delay.
func (p *Processor) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Warn().Err(err).Msg("fetch error")
			if err := p.pause(ctx); err != nil {
				return err
			}
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Warn().Err(decodeErr).Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("decode error, skipping message")
			recordRejected(msg.Topic)
			// Malformed records are committed so they cannot block the partition.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Warn().Err(commitErr).Msg("commit error after decode failure")
			}
			continue
		}

		if err := p.handleUntilDone(ctx, event); err != nil {
			return err
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Warn().Err(commitErr).Msg("commit error")
		} else {
			recordStored(event)
		}
	}
}

// handleUntilDone retries the handler until it succeeds or ctx ends.
func (p *Processor) handleUntilDone(ctx context.Context, event Message) error {
	for {
		err := p.handler.Handle(ctx, event)
		if err == nil {
			return nil
		}
		p.logger.Error().Err(err).Str("event_type", event.EventType).Int64("offset", event.Offset).Msg("handler error")
		recordRetried(event)
		if err := p.pause(ctx); err != nil {
			return err
		}
	}
}

func (p *Processor) pause(ctx context.Context) error {
	timer := time.NewTimer(p.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// String names the service in supervisor logs.
func (p *Processor) String() string { return "consumer:" + p.name }

func decodeMessage(msg kafka.Message) (Message, error) {
	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	if !json.Valid(msg.Value) {
		return Message{}, fmt.Errorf("payload is not valid JSON (%d bytes)", len(msg.Value))
	}
	aggregateType, _ := headerValue(msg, "aggregate_type")
	aggregateID, _ := headerValue(msg, "aggregate_id")

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		AggregateType: string(aggregateType),
		AggregateID:   string(aggregateID),
		Payload:       json.RawMessage(append([]byte(nil), msg.Value...)),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
