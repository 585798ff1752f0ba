package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/wacrm-backend/internal/controller"
	"github.com/unclebandit/wacrm-backend/internal/model"
	"github.com/unclebandit/wacrm-backend/internal/repository"
)

type DeliveryLister interface {
	ListDeliveries(ctx context.Context, f repository.DeliveryFilter) ([]model.WebhookDelivery, error)
	ListAttempts(ctx context.Context, deliveryID string) ([]model.DeliveryAttempt, error)
}

type WebhookGetter interface {
	GetSubscription(ctx context.Context, id string) (*model.WebhookSubscription, error)
}

// DeliveryHandler serves the delivery log of a webhook subscription.
type DeliveryHandler struct {
	Webhooks   WebhookGetter
	Deliveries DeliveryLister
}

type deliveryView struct {
	model.WebhookDelivery
	AttemptLog []model.DeliveryAttempt `json:"attempt_log,omitempty"`
}

// ListDeliveries handles GET /webhooks/{id}/deliveries. Pass attempts=true
// to include each delivery's attempt log.
func (h *DeliveryHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "id")
	if _, err := h.Webhooks.GetSubscription(r.Context(), webhookID); err != nil {
		controller.WriteError(w, err)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	filter := repository.DeliveryFilter{
		WebhookID: webhookID,
		Event:     q.Get("event"),
		Status:    model.DeliveryStatus(q.Get("status")),
		Limit:     limit,
		Offset:    offset,
	}

	deliveries, err := h.Deliveries.ListDeliveries(r.Context(), filter)
	if err != nil {
		controller.WriteError(w, err)
		return
	}

	withAttempts := q.Get("attempts") == "true"
	views := make([]deliveryView, 0, len(deliveries))
	for _, d := range deliveries {
		v := deliveryView{WebhookDelivery: d}
		if withAttempts {
			attempts, err := h.Deliveries.ListAttempts(r.Context(), d.ID)
			if err != nil {
				controller.WriteError(w, err)
				return
			}
			v.AttemptLog = attempts
		}
		views = append(views, v)
	}

	controller.WriteJSON(w, http.StatusOK, map[string]any{
		"data":  views,
		"count": len(views),
	})
}
