// Package cache holds the read-through caches in front of the rule and
// webhook subscription tables. Entries expire on a TTL and can be dropped
// explicitly, by key or by prefix.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache stores JSON-encoded values under string keys.
type Cache interface {
	// Get decodes the value for key into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix drops every key starting with prefix and returns how many went.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

const (
	RulesPrefix         = "rules:"
	SubscriptionsPrefix = "webhooks:"
)

func cacheKey(prefix string, parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return prefix + strings.Join(values, "|")
}
