package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler consumes one JSON-encoded message. A returned error triggers a retry.
type Handler func(ctx context.Context, body []byte) error

// Queue is a topic based pub/sub transport for worker signals.
type Queue interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

const defaultMaxRetries = 3

// InMemoryQueue delivers messages to the subscribers of the same process.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	log        *zap.Logger
	maxRetries int
	backoff    time.Duration
	wg         sync.WaitGroup
}

func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		log:        log,
		maxRetries: defaultMaxRetries,
		backoff:    500 * time.Millisecond,
	}
}

// job wraps a message payload with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish hands the message to every subscriber of topic. Publishing to a
// topic with no subscribers is a no-op.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	for _, handler := range handlers {
		q.wg.Add(1)
		go func(h Handler) {
			defer q.wg.Done()
			q.process(context.WithoutCancel(ctx), h, job{topic: topic, body: body})
		}(handler)
	}
	return nil
}

// process retries a failing handler with a linear backoff.
func (q *InMemoryQueue) process(ctx context.Context, handler Handler, j job) {
	for {
		err := handler(ctx, j.body)
		if err == nil {
			return
		}

		j.retryCount++
		if j.retryCount > q.maxRetries {
			q.log.Error("message permanently failed",
				zap.String("topic", j.topic), zap.Int("attempts", j.retryCount), zap.Error(err))
			return
		}
		q.log.Warn("message handler failed, retrying",
			zap.String("topic", j.topic), zap.Int("attempt", j.retryCount), zap.Error(err))
		time.Sleep(time.Duration(j.retryCount) * q.backoff)
	}
}

func (q *InMemoryQueue) Subscribe(_ context.Context, topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight deliveries.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
