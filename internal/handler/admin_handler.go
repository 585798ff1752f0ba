package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/wacrm-backend/internal/cache"
	"github.com/unclebandit/wacrm-backend/internal/controller"
	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
)

var cacheScopes = map[string]string{
	"all":           "",
	"rules":         cache.RulesPrefix,
	"subscriptions": cache.SubscriptionsPrefix,
}

type AdminHandler struct {
	Cache cache.Cache
	Log   *zap.Logger
}

// InvalidateCache handles POST /admin/cache/invalidate with an optional
// {"scope": "rules" | "subscriptions" | "all"} body.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Scope == "" {
		body.Scope = "all"
	}
	prefix, ok := cacheScopes[body.Scope]
	if !ok {
		controller.WriteError(w, appErrors.InvalidParam("scope", "must be rules, subscriptions or all"))
		return
	}

	removed, err := cache.Invalidate(r.Context(), h.Cache, prefix)
	if err != nil {
		controller.WriteError(w, err)
		return
	}
	if h.Log != nil {
		h.Log.Info("cache invalidated", zap.String("scope", body.Scope), zap.Int("removed", removed))
	}
	controller.WriteJSON(w, http.StatusOK, map[string]any{"scope": body.Scope, "removed": removed})
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	DB Pinger
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		controller.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
