package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/metrics"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
	HeaderDelivery  = "X-Webhook-Delivery"

	defaultWebhookTimeout = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultClaimLease     = 2 * time.Minute
	maxResponseBody       = 1000
)

// retryTiers is indexed by the number of attempts already made. The last
// tier is only reached when MaxAttempts is raised above 3.
var retryTiers = []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute}

func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(retryTiers) {
		return retryTiers[len(retryTiers)-1]
	}
	return retryTiers[attempt-1]
}

type SubscriptionSource interface {
	ListActiveForEvent(ctx context.Context, event string) ([]model.WebhookSubscription, error)
}

type DeliveryStore interface {
	CreateDelivery(ctx context.Context, d *model.WebhookDelivery, claimedUntil time.Time) error
	RecordAttempt(ctx context.Context, d *model.WebhookDelivery, a *model.DeliveryAttempt) error
	ClaimDue(ctx context.Context, now time.Time, limit int, claimedUntil time.Time) ([]model.WebhookDelivery, error)
	Abandon(ctx context.Context, id, reason string, at time.Time) error
}

// WebhookDispatcher fans events out to subscribers. Only the first attempt
// happens inline; later attempts belong to the RetryScheduler.
type WebhookDispatcher struct {
	Subscriptions SubscriptionSource
	// Current, when set, is read before each first attempt so a subscription
	// deactivated while the cached listing is still warm gets nothing new.
	Current       SubscriptionGetter
	Deliveries    DeliveryStore
	HTTPClient    *http.Client
	Timeout       time.Duration
	MaxAttempts   int
	ClaimLease    time.Duration
	UserAgent     string
	Now           func() time.Time
	Log           *zap.Logger
	Metrics       *metrics.Pipeline
}

func (d *WebhookDispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *WebhookDispatcher) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func (d *WebhookDispatcher) maxAttempts() int {
	if d.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return d.MaxAttempts
}

// Dispatch delivers event to every active subscription listening on it,
// concurrently. Delivery failures are persisted on the deliveries, never
// returned; the error covers subscription lookup only.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event string, data any) ([]model.WebhookDelivery, error) {
	subs, err := d.Subscriptions.ListActiveForEvent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for %s: %w", event, err)
	}
	if len(subs) == 0 {
		return nil, nil
	}

	deliveries := make([]model.WebhookDelivery, len(subs))
	sent := make([]bool, len(subs))
	var g errgroup.Group
	for i := range subs {
		sub := subs[i]
		g.Go(func() error {
			current, ok := d.stillActive(ctx, &sub, event)
			if !ok {
				return nil
			}
			deliveries[i] = d.deliverNew(ctx, current, event, data)
			sent[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := deliveries[:0]
	for i, delivery := range deliveries {
		if sent[i] {
			out = append(out, delivery)
		}
	}
	return out, nil
}

// stillActive re-reads sub through Current. A lookup failure other than
// not-found keeps the listed copy so an outage does not drop deliveries.
func (d *WebhookDispatcher) stillActive(ctx context.Context, sub *model.WebhookSubscription, event string) (*model.WebhookSubscription, bool) {
	if d.Current == nil {
		return sub, true
	}
	current, err := d.Current.GetSubscription(ctx, sub.ID)
	switch {
	case appErrors.IsNotFound(err):
		return nil, false
	case err != nil:
		d.logger().Warn("subscription re-check failed, using listed copy", zap.String("webhook_id", sub.ID), zap.Error(err))
		return sub, true
	}
	if !current.IsActive || !current.Subscribes(event) {
		d.logger().Debug("subscription changed since it was listed", zap.String("webhook_id", sub.ID), zap.String("event", event))
		return nil, false
	}
	return current, true
}

func (d *WebhookDispatcher) deliverNew(ctx context.Context, sub *model.WebhookSubscription, event string, data any) model.WebhookDelivery {
	now := d.now()
	delivery := model.WebhookDelivery{
		ID:            uuid.NewString(),
		WebhookID:     sub.ID,
		Event:         event,
		Status:        model.DeliveryPending,
		NextAttemptAt: &now,
		CreatedAt:     now,
	}

	payload, err := BuildWebhookPayload(delivery.ID, event, data, now)
	if err != nil {
		delivery.Status = model.DeliveryFailed
		delivery.LastError = fmt.Sprintf("encode payload: %v", err)
		d.logger().Error("webhook payload encoding failed", zap.String("webhook_id", sub.ID), zap.String("event", event), zap.Error(err))
		return delivery
	}
	delivery.Payload = payload

	lease := d.ClaimLease
	if lease <= 0 {
		lease = defaultClaimLease
	}
	if err := d.Deliveries.CreateDelivery(ctx, &delivery, now.Add(lease)); err != nil {
		// Without a row there is nothing to retry from; give up on this subscriber.
		delivery.Status = model.DeliveryFailed
		delivery.LastError = fmt.Sprintf("persist delivery: %v", err)
		d.logger().Error("webhook delivery not persisted", zap.String("webhook_id", sub.ID), zap.String("event", event), zap.Error(err))
		return delivery
	}

	d.attempt(ctx, sub, &delivery)
	return delivery
}

// attempt makes one HTTP try and moves the delivery to its next state.
func (d *WebhookDispatcher) attempt(ctx context.Context, sub *model.WebhookSubscription, delivery *model.WebhookDelivery) {
	number := delivery.Attempts + 1
	started := d.now()

	statusCode, body, sendErr := d.send(ctx, sub, delivery)
	finished := d.now()
	elapsed := finished.Sub(started)

	attempt := &model.DeliveryAttempt{
		DeliveryID:     delivery.ID,
		WebhookID:      delivery.WebhookID,
		Event:          delivery.Event,
		Payload:        delivery.Payload,
		Attempt:        number,
		ResponseStatus: statusCode,
		ResponseBody:   body,
		DurationMS:     elapsed.Milliseconds(),
		CompletedAt:    finished,
	}

	delivery.Attempts = number
	delivery.LastStatusCode = statusCode
	switch {
	case sendErr == nil && statusCode >= 200 && statusCode < 300:
		attempt.Status = model.DeliverySuccess
		delivery.Status = model.DeliverySuccess
		delivery.LastError = ""
		delivery.NextAttemptAt = nil
		delivery.CompletedAt = &finished
	default:
		if sendErr != nil {
			attempt.Error = sendErr.Error()
		} else {
			attempt.Error = fmt.Sprintf("unexpected status %d", statusCode)
		}
		delivery.LastError = attempt.Error
		if number >= d.maxAttempts() {
			attempt.Status = model.DeliveryFailed
			delivery.Status = model.DeliveryFailed
			delivery.NextAttemptAt = nil
			delivery.CompletedAt = &finished
		} else {
			attempt.Status = model.DeliveryRetrying
			delivery.Status = model.DeliveryRetrying
			next := finished.Add(retryDelay(number))
			delivery.NextAttemptAt = &next
		}
	}

	d.Metrics.DeliveryAttempt(string(attempt.Status), delivery.Event, elapsed)
	log := d.logger().With(
		zap.String("delivery_id", delivery.ID),
		zap.String("webhook_id", delivery.WebhookID),
		zap.String("event", delivery.Event),
		zap.Int("attempt", number),
	)
	if attempt.Status != model.DeliverySuccess {
		log.Warn("webhook attempt failed", zap.Int("status_code", statusCode), zap.String("error", attempt.Error))
	}

	// The claim lease keeps the row safe if this write fails; it is retried once the lease expires.
	if err := d.Deliveries.RecordAttempt(context.WithoutCancel(ctx), delivery, attempt); err != nil {
		log.Error("failed to record webhook attempt", zap.Error(err))
	}
}

func (d *WebhookDispatcher) send(ctx context.Context, sub *model.WebhookSubscription, delivery *model.WebhookDelivery) (int, string, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return 0, "", err
	}
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.UserAgent)
	req.Header.Set(HeaderEvent, delivery.Event)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(d.now().Unix(), 10))
	req.Header.Set(HeaderSignature, Sign(sub.Secret, delivery.Payload))
	req.Header.Set(HeaderDelivery, delivery.ID)

	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxResponseBody))
	return resp.StatusCode, truncate(string(raw), maxResponseBody), nil
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
