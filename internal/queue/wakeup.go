package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const WakeupTopic = "automation.wakeup"

// Wakeup asks the worker to run a consumer pass now.
type Wakeup struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Notifier publishes wake-ups. Failures are logged only: the worker's
// poll interval picks the work up anyway.
type Notifier struct {
	Queue Queue
	Topic string
	Log   *zap.Logger
}

func (n *Notifier) Notify(ctx context.Context, reason string) {
	if n == nil || n.Queue == nil {
		return
	}
	topic := n.Topic
	if topic == "" {
		topic = WakeupTopic
	}
	if err := n.Queue.Publish(ctx, topic, Wakeup{Reason: reason, At: time.Now()}); err != nil && n.Log != nil {
		n.Log.Warn("wake-up publish failed", zap.String("reason", reason), zap.Error(err))
	}
}

// SubscribeWakeups signals wake for each wake-up on topic. Signals arriving
// while wake is pending are coalesced.
func SubscribeWakeups(ctx context.Context, q Queue, topic string, wake chan<- struct{}) error {
	if topic == "" {
		topic = WakeupTopic
	}
	return q.Subscribe(ctx, topic, func(context.Context, []byte) error {
		select {
		case wake <- struct{}{}:
		default:
		}
		return nil
	})
}
