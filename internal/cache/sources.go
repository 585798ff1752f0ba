package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/wacrm-backend/internal/metrics"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

type RuleLister interface {
	ListActiveByTrigger(ctx context.Context, trigger string) ([]model.AutomationRule, error)
}

type SubscriptionLister interface {
	ListActiveForEvent(ctx context.Context, event string) ([]model.WebhookSubscription, error)
}

// CachedRuleSource reads active rules per trigger through the cache. Cache
// failures fall back to the store.
type CachedRuleSource struct {
	Next    RuleLister
	Cache   Cache
	TTL     time.Duration
	Metrics *metrics.Pipeline
	Log     *zap.Logger
}

func (s *CachedRuleSource) ListActiveByTrigger(ctx context.Context, trigger string) ([]model.AutomationRule, error) {
	if s.Cache == nil || s.TTL <= 0 {
		return s.Next.ListActiveByTrigger(ctx, trigger)
	}
	key := cacheKey(RulesPrefix, trigger)

	var rules []model.AutomationRule
	hit, err := s.Cache.Get(ctx, key, &rules)
	if err != nil {
		s.logger().Warn("rule cache read failed", zap.String("key", key), zap.Error(err))
	}
	s.Metrics.CacheLookup("rules", hit)
	if hit {
		return rules, nil
	}

	rules, err = s.Next.ListActiveByTrigger(ctx, trigger)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.Set(ctx, key, rules, s.TTL); err != nil {
		s.logger().Warn("rule cache write failed", zap.String("key", key), zap.Error(err))
	}
	return rules, nil
}

func (s *CachedRuleSource) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// cachedSubscription keeps the secret, which the API representation omits.
type cachedSubscription struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Secret    string            `json:"secret"`
	Events    []string          `json:"events"`
	Headers   map[string]string `json:"headers"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
}

type CachedSubscriptionSource struct {
	Next    SubscriptionLister
	Cache   Cache
	TTL     time.Duration
	Metrics *metrics.Pipeline
	Log     *zap.Logger
}

func (s *CachedSubscriptionSource) ListActiveForEvent(ctx context.Context, event string) ([]model.WebhookSubscription, error) {
	if s.Cache == nil || s.TTL <= 0 {
		return s.Next.ListActiveForEvent(ctx, event)
	}
	key := cacheKey(SubscriptionsPrefix, event)

	var cached []cachedSubscription
	hit, err := s.Cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger().Warn("subscription cache read failed", zap.String("key", key), zap.Error(err))
	}
	s.Metrics.CacheLookup("subscriptions", hit)
	if hit {
		subs := make([]model.WebhookSubscription, 0, len(cached))
		for _, c := range cached {
			subs = append(subs, model.WebhookSubscription(c))
		}
		return subs, nil
	}

	subs, err := s.Next.ListActiveForEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	cached = make([]cachedSubscription, 0, len(subs))
	for _, sub := range subs {
		cached = append(cached, cachedSubscription(sub))
	}
	if err := s.Cache.Set(ctx, key, cached, s.TTL); err != nil {
		s.logger().Warn("subscription cache write failed", zap.String("key", key), zap.Error(err))
	}
	return subs, nil
}

func (s *CachedSubscriptionSource) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Invalidate drops cached entries for one prefix, or all of them when
// prefix is empty.
func Invalidate(ctx context.Context, c Cache, prefix string) (int, error) {
	if prefix != "" {
		return c.DeletePrefix(ctx, prefix)
	}
	total := 0
	for _, p := range []string{RulesPrefix, SubscriptionsPrefix} {
		n, err := c.DeletePrefix(ctx, p)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
