package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/wacrm-backend/internal/controller"
	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/model"
	"github.com/unclebandit/wacrm-backend/internal/repository"
)

type RunLister interface {
	ListRuns(ctx context.Context, f repository.RunFilter) ([]model.AutomationRun, error)
}

type QueueItemGetter interface {
	GetByID(ctx context.Context, id int64) (*model.QueueItem, error)
}

// RunHandler exposes the automation audit trail.
type RunHandler struct {
	Runs  RunLister
	Queue QueueItemGetter
}

// ListRuns handles GET /automation/runs?rule_id=&queue_item_id=&failed=true&limit=
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RunFilter{
		RuleID:     q.Get("rule_id"),
		OnlyFailed: q.Get("failed") == "true",
	}
	if v := q.Get("queue_item_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			controller.WriteError(w, appErrors.InvalidParam("queue_item_id", "must be an integer"))
			return
		}
		filter.QueueItemID = id
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	runs, err := h.Runs.ListRuns(r.Context(), filter)
	if err != nil {
		controller.WriteError(w, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]any{"data": runs, "count": len(runs)})
}

// GetQueueItem handles GET /automation/queue/{id}, with the runs it produced.
func (h *RunHandler) GetQueueItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		controller.WriteError(w, appErrors.InvalidParam("id", "must be an integer"))
		return
	}
	item, err := h.Queue.GetByID(r.Context(), id)
	if err != nil {
		controller.WriteError(w, err)
		return
	}
	runs, err := h.Runs.ListRuns(r.Context(), repository.RunFilter{QueueItemID: id})
	if err != nil {
		controller.WriteError(w, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]any{"item": item, "runs": runs})
}
