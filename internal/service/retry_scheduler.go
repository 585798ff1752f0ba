package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

const (
	defaultRetryBatch       = 50
	defaultRetryConcurrency = 8
)

type SubscriptionGetter interface {
	GetSubscription(ctx context.Context, id string) (*model.WebhookSubscription, error)
}

// RetryScheduler re-sends deliveries whose next attempt is due.
type RetryScheduler struct {
	Dispatcher    *WebhookDispatcher
	Subscriptions SubscriptionGetter
	BatchSize     int
	Concurrency   int
}

type RetryResult struct {
	Claimed   int `json:"claimed"`
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Abandoned int `json:"abandoned"`
}

// RunDue claims due deliveries and makes one attempt on each. The
// subscription is read fresh so deactivated endpoints are not called.
func (s *RetryScheduler) RunDue(ctx context.Context) (RetryResult, error) {
	d := s.Dispatcher
	batch := s.BatchSize
	if batch <= 0 {
		batch = defaultRetryBatch
	}
	lease := d.ClaimLease
	if lease <= 0 {
		lease = defaultClaimLease
	}

	now := d.now()
	due, err := d.Deliveries.ClaimDue(ctx, now, batch, now.Add(lease))
	if err != nil {
		return RetryResult{}, err
	}
	res := RetryResult{Claimed: len(due)}
	if len(due) == 0 {
		return res, nil
	}

	outcomes := make([]model.DeliveryStatus, len(due))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.Concurrency
	if limit <= 0 {
		limit = defaultRetryConcurrency
	}
	g.SetLimit(limit)
	for i := range due {
		delivery := due[i]
		g.Go(func() error {
			outcomes[i] = s.retry(gctx, &delivery)
			return nil
		})
	}
	_ = g.Wait()

	for _, status := range outcomes {
		switch status {
		case "":
		case model.DeliverySuccess:
			res.Attempted++
			res.Succeeded++
		case abandoned:
			res.Abandoned++
		default:
			res.Attempted++
		}
	}
	return res, nil
}

const abandoned model.DeliveryStatus = "abandoned"

func (s *RetryScheduler) retry(ctx context.Context, delivery *model.WebhookDelivery) model.DeliveryStatus {
	d := s.Dispatcher
	log := d.logger().With(zap.String("delivery_id", delivery.ID), zap.String("webhook_id", delivery.WebhookID))

	sub, err := s.Subscriptions.GetSubscription(ctx, delivery.WebhookID)
	reason := ""
	switch {
	case appErrors.IsNotFound(err):
		reason = "subscription deleted"
	case err != nil:
		// Left claimed; the lease runs out and a later pass picks it up.
		log.Warn("subscription lookup failed", zap.Error(err))
		return ""
	case !sub.IsActive:
		reason = "subscription inactive"
	case !sub.Subscribes(delivery.Event):
		reason = "subscription no longer listens to " + delivery.Event
	}
	if reason != "" {
		if err := d.Deliveries.Abandon(ctx, delivery.ID, reason, d.now()); err != nil {
			log.Error("failed to abandon delivery", zap.Error(err))
			return ""
		}
		log.Info("webhook delivery abandoned", zap.String("reason", reason))
		return abandoned
	}

	d.attempt(ctx, sub, delivery)
	return delivery.Status
}

// RetryLoop runs RunDue every interval until ctx is done.
func (s *RetryScheduler) RetryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.RunDue(ctx)
			if err != nil {
				s.Dispatcher.logger().Error("webhook retry pass failed", zap.Error(err))
				continue
			}
			if res.Claimed > 0 {
				s.Dispatcher.logger().Info("webhook retry pass",
					zap.Int("claimed", res.Claimed),
					zap.Int("succeeded", res.Succeeded),
					zap.Int("abandoned", res.Abandoned))
			}
		}
	}
}
