package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/wacrm-backend/internal/event"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

func testEnvelope(t *testing.T, name, payload string) *event.Envelope {
	t.Helper()
	p, err := event.Decode(name, []byte(payload))
	require.NoError(t, err)
	return &event.Envelope{QueueItemID: 1, Name: name, Payload: p}
}

func TestExecutorIsolatesFailures(t *testing.T) {
	var bRan bool
	registry := NewRegistry()
	registry.Register("a", HandlerFunc(func(context.Context, Params, *event.Envelope) (map[string]any, error) {
		return nil, errBoom
	}))
	registry.Register("b", HandlerFunc(func(context.Context, Params, *event.Envelope) (map[string]any, error) {
		bRan = true
		return map[string]any{"ok": true}, nil
	}))

	exec := NewExecutor(registry, nil, nil)
	results, executed := exec.Execute(context.Background(), []model.Action{{Type: "a"}, {Type: "b"}}, testEnvelope(t, "lead.created", `{}`))

	assert.False(t, executed)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, "boom", results[0].Error)
	assert.True(t, results[1].Success)
	assert.Equal(t, map[string]any{"ok": true}, results[1].Output)
	assert.True(t, bRan)
}

func TestExecutorRecoversPanics(t *testing.T) {
	registry := NewRegistry()
	registry.Register("explode", HandlerFunc(func(context.Context, Params, *event.Envelope) (map[string]any, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	}))
	registry.Register("ok", HandlerFunc(func(context.Context, Params, *event.Envelope) (map[string]any, error) {
		return nil, nil
	}))

	results, executed := NewExecutor(registry, nil, nil).Execute(context.Background(),
		[]model.Action{{Type: "explode"}, {Type: "ok"}}, testEnvelope(t, "lead.created", `{}`))

	assert.False(t, executed)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Error, "panic")
	assert.True(t, results[1].Success)
}

func TestExecutorUnknownActionType(t *testing.T) {
	results, executed := NewExecutor(NewRegistry(), nil, nil).Execute(context.Background(),
		[]model.Action{{Type: "teleport"}}, testEnvelope(t, "lead.created", `{}`))

	assert.False(t, executed)
	require.Len(t, results, 1)
	assert.Equal(t, "teleport", results[0].Type)
	assert.Contains(t, results[0].Error, "unknown action type")
}

func TestExecutorAllSucceed(t *testing.T) {
	registry := NewRegistry()
	registry.Register("noop", HandlerFunc(func(context.Context, Params, *event.Envelope) (map[string]any, error) {
		return nil, nil
	}))
	results, executed := NewExecutor(registry, nil, nil).Execute(context.Background(),
		[]model.Action{{Type: "noop"}, {Type: "noop"}}, testEnvelope(t, "lead.created", `{}`))

	assert.True(t, executed)
	assert.Len(t, results, 2)
}

func TestExecutorEmptyActionList(t *testing.T) {
	results, executed := NewExecutor(NewRegistry(), nil, nil).Execute(context.Background(), nil, testEnvelope(t, "lead.created", `{}`))
	assert.True(t, executed)
	assert.Empty(t, results)
}
