package automation

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/event"
	"github.com/unclebandit/wacrm-backend/internal/metrics"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

// ActionHandler performs the side effect of one action type.
type ActionHandler interface {
	Execute(ctx context.Context, params Params, env *event.Envelope) (map[string]any, error)
}

// HandlerFunc adapts a function to ActionHandler.
type HandlerFunc func(ctx context.Context, params Params, env *event.Envelope) (map[string]any, error)

func (f HandlerFunc) Execute(ctx context.Context, params Params, env *event.Envelope) (map[string]any, error) {
	return f(ctx, params, env)
}

// Registry maps action types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]ActionHandler)}
}

// Register adds or replaces the handler for an action type.
func (r *Registry) Register(actionType string, h ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[actionType] = h
}

func (r *Registry) Lookup(actionType string) (ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[actionType]
	return h, ok
}

// Executor runs a rule's action list, best effort and fully isolated.
type Executor struct {
	Registry *Registry
	Log      *zap.Logger
	Metrics  *metrics.Pipeline
}

func NewExecutor(registry *Registry, log *zap.Logger, m *metrics.Pipeline) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{Registry: registry, Log: log, Metrics: m}
}

// Execute runs every action in order. A failing action is recorded and the
// next one still runs; executed is true only when every action succeeded.
func (e *Executor) Execute(ctx context.Context, actions []model.Action, env *event.Envelope) ([]model.ActionResult, bool) {
	results := make([]model.ActionResult, 0, len(actions))
	executed := true

	for _, action := range actions {
		res := e.executeOne(ctx, action, env)
		if !res.Success {
			executed = false
			e.Log.Warn("automation action failed",
				zap.String("action", action.Type),
				zap.String("event", env.Name),
				zap.Int64("queue_item_id", env.QueueItemID),
				zap.String("error", res.Error),
			)
		}
		e.Metrics.ActionExecuted(action.Type, res.Success)
		results = append(results, res)
	}
	return results, executed
}

func (e *Executor) executeOne(ctx context.Context, action model.Action, env *event.Envelope) (res model.ActionResult) {
	res.Type = action.Type

	handler, ok := e.Registry.Lookup(action.Type)
	if !ok {
		res.Error = fmt.Errorf("%w: %q", appErrors.ErrUnknownAction, action.Type).Error()
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Output = nil
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	output, err := handler.Execute(ctx, Params(action.Params), env)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Output = output
	return res
}
