package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"kasir-be/internal/logger"
	"kasir-be/internal/order"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventVersion = 1

	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

var (
	ErrBufferFull = errors.New("event buffer full")
	ErrClosed     = errors.New("producer closed")
)

// Envelope wraps every order event written to the topic.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order events asynchronously. Publish never blocks
// the caller; messages are written by one background loop.
type Producer struct {
	w       messageWriter
	service string

	inbox   chan kafka.Message
	closeCh chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic, service string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}, service, buf)
}

func newProducer(w messageWriter, service string, buf int) *Producer {
	if buf <= 0 {
		buf = 256
	}
	return &Producer{
		w:       w,
		service: service,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the write loop until Close is called.
func (p *Producer) Start(ctx context.Context) {
	log := logger.L().With(zap.String("layer", "kafka"))

	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(ctx, m); err != nil {
				log.Error("failed to write order event",
					zap.String("key", string(m.Key)),
					zap.String("event_type", headerValue(m.Headers, HeaderEventType)),
					zap.Error(err),
				)
			}
		}
		if err := p.w.Close(); err != nil {
			log.Warn("failed to close kafka writer", zap.Error(err))
		}
	}()
}

// Publish implements order.EventPublisher. Events of one order share the
// order code as partition key so they stay ordered.
func (p *Producer) Publish(ctx context.Context, e order.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	value, err := json.Marshal(Envelope{
		EventID:       e.ID,
		EventType:     string(e.Type),
		EventVersion:  EventVersion,
		OccurredAt:    e.OccurredAt.UTC(),
		Producer:      p.service,
		TraceID:       logger.RequestIDFrom(ctx),
		CorrelationID: e.OrderCode,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("encode event envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.OrderCode),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(e.Type)},
			{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(EventVersion))},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events and waits for the buffer to flush.
func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()

	<-p.closeCh
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
