package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const retryHeader = "x-retry-count"

// AMQPQueue maps each topic to a durable RabbitMQ queue on the default
// exchange. Subscribers of the same topic compete for messages.
type AMQPQueue struct {
	conn       *amqp.Connection
	log        *zap.Logger
	maxRetries int

	mu      sync.Mutex
	pubCh   *amqp.Channel
	declare map[string]bool
}

func DialAMQP(url string, log *zap.Logger) (*AMQPQueue, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	return &AMQPQueue{
		conn:       conn,
		log:        log,
		maxRetries: defaultMaxRetries,
		pubCh:      ch,
		declare:    make(map[string]bool),
	}, nil
}

func declareQueue(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retryCount int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.declare[topic] {
		if err := declareQueue(q.pubCh, topic); err != nil {
			return fmt.Errorf("declare queue %s: %w", topic, err)
		}
		q.declare[topic] = true
	}
	return q.pubCh.Publish(
		"",    // default exchange
		topic, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{retryHeader: int32(retryCount)},
			Body:         body,
		},
	)
}

// Subscribe consumes topic on a dedicated channel until ctx is done. A
// failed message is acked and republished with a bumped retry count, then
// dropped once the retries are used up.
func (q *AMQPQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	if err := declareQueue(ch, topic); err != nil {
		ch.Close()
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("register consumer on %s: %w", topic, err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				q.handle(ctx, topic, d, handler)
			}
		}
	}()
	return nil
}

func (q *AMQPQueue) handle(ctx context.Context, topic string, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retryCount := retriesOf(d.Headers) + 1
	if retryCount > q.maxRetries {
		q.log.Error("message permanently failed", zap.String("topic", topic), zap.Error(err))
		_ = d.Ack(false)
		return
	}
	q.log.Warn("message handler failed, requeueing",
		zap.String("topic", topic), zap.Int("attempt", retryCount), zap.Error(err))
	if perr := q.publish(topic, d.Body, retryCount); perr != nil {
		q.log.Error("requeue failed", zap.String("topic", topic), zap.Error(perr))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func retriesOf(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	_ = q.pubCh.Close()
	q.mu.Unlock()
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
