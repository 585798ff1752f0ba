package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/wacrm-backend/internal/automation"
	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/event"
	"github.com/unclebandit/wacrm-backend/internal/metrics"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultQueueLease = 2 * time.Minute
)

// Queue item outcomes, also used as metric labels.
const (
	OutcomeProcessed = "processed"
	OutcomeNoTrigger = "no_trigger"
	OutcomeNoRules   = "no_rules"
	OutcomeInvalid   = "invalid_payload"
	OutcomeClaimLost = "claim_lost"
	OutcomeFailed    = "failed"
)

type QueueStore interface {
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]model.QueueItem, error)
	RenewClaim(ctx context.Context, id int64, claimToken string, lease time.Duration) error
	MarkProcessed(ctx context.Context, id int64, claimToken string) error
}

type RuleSource interface {
	ListActiveByTrigger(ctx context.Context, trigger string) ([]model.AutomationRule, error)
}

type RunRecorder interface {
	Record(ctx context.Context, run *model.AutomationRun) error
}

// EventNotifier receives every event that resolved to a trigger.
type EventNotifier interface {
	Dispatch(ctx context.Context, event string, data any) ([]model.WebhookDelivery, error)
}

// QueueConsumer drains the automation queue and runs matching rules.
type QueueConsumer struct {
	Queue      QueueStore
	Rules      RuleSource
	Runs       RunRecorder
	Executor   *automation.Executor
	Webhooks   EventNotifier
	BatchSize  int
	ClaimLease time.Duration
	Log        *zap.Logger
	Metrics    *metrics.Pipeline
}

type ItemResult struct {
	QueueItemID int64              `json:"queue_item_id"`
	Event       string             `json:"event"`
	Trigger     string             `json:"trigger,omitempty"`
	Outcome     string             `json:"outcome"`
	Rules       []model.RuleResult `json:"rules"`
	Error       string             `json:"error,omitempty"`
}

type PassResult struct {
	Claimed   int          `json:"claimed"`
	Processed int          `json:"processed"`
	Items     []ItemResult `json:"items"`
}

func (c *QueueConsumer) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// ProcessPending runs one pass over the oldest unprocessed items. Every
// claimed item is marked processed whatever its rules did; only items whose
// claim was lost, or whose rules could not be loaded, stay pending.
//
// Cancelling ctx stops the pass from starting further items but does not
// interrupt the item in progress. Each item renews its claim before any rule
// runs and must finish within itemBudget of that renewal, so no other
// consumer can take it over while its actions are running.
func (c *QueueConsumer) ProcessPending(ctx context.Context) (PassResult, error) {
	started := time.Now()
	defer func() { c.Metrics.ObservePass(time.Since(started)) }()

	batch := c.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	lease := c.ClaimLease
	if lease <= 0 {
		lease = defaultQueueLease
	}

	items, err := c.Queue.ClaimPending(ctx, batch, lease)
	if err != nil {
		return PassResult{}, err
	}

	res := PassResult{Claimed: len(items), Items: make([]ItemResult, 0, len(items))}
	for _, item := range items {
		if ctx.Err() != nil {
			// Unvisited items keep their lease and are reclaimed after it expires.
			break
		}
		ir := c.processClaimed(ctx, item, lease)
		c.Metrics.QueueItem(ir.Outcome)
		if ir.Outcome != OutcomeClaimLost && ir.Outcome != OutcomeFailed {
			res.Processed++
		}
		res.Items = append(res.Items, ir)
	}
	return res, nil
}

// itemBudget leaves a quarter of the lease as margin for marking the item
// processed after its deadline.
func itemBudget(lease time.Duration) time.Duration {
	return lease - lease/4
}

func (c *QueueConsumer) processClaimed(ctx context.Context, item model.QueueItem, lease time.Duration) ItemResult {
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), itemBudget(lease))
	defer cancel()

	log := c.logger().With(zap.Int64("queue_item_id", item.ID), zap.String("event", item.Event))
	if err := c.Queue.RenewClaim(itemCtx, item.ID, item.ClaimToken, lease); err != nil {
		ir := ItemResult{QueueItemID: item.ID, Event: item.Event, Rules: []model.RuleResult{}}
		if errors.Is(err, appErrors.ErrClaimLost) {
			log.Warn("queue item claimed by another consumer before processing")
			ir.Outcome = OutcomeClaimLost
			return ir
		}
		log.Error("failed to renew queue item claim", zap.Error(err))
		ir.Outcome = OutcomeFailed
		ir.Error = err.Error()
		return ir
	}
	return c.processItem(itemCtx, item, log)
}

func (c *QueueConsumer) processItem(ctx context.Context, item model.QueueItem, log *zap.Logger) ItemResult {
	ir := ItemResult{QueueItemID: item.ID, Event: item.Event, Rules: []model.RuleResult{}}

	payload, err := event.Decode(item.Event, item.Payload)
	if err != nil {
		log.Warn("queue item payload is not an object", zap.Error(err))
		ir.Outcome = OutcomeInvalid
		ir.Error = err.Error()
		return c.finish(ctx, item, ir, log)
	}

	trigger, ok := automation.ResolveTrigger(item.Event)
	if !ok {
		ir.Outcome = OutcomeNoTrigger
		return c.finish(ctx, item, ir, log)
	}
	ir.Trigger = string(trigger)

	rules, err := c.Rules.ListActiveByTrigger(ctx, string(trigger))
	if err != nil {
		log.Error("failed to load automation rules", zap.Error(err))
		ir.Outcome = OutcomeFailed
		ir.Error = err.Error()
		return ir
	}

	env := &event.Envelope{
		QueueItemID: item.ID,
		Name:        item.Event,
		Trigger:     string(trigger),
		Payload:     payload,
		OccurredAt:  item.CreatedAt,
	}
	for _, rule := range rules {
		rr := c.runRule(ctx, rule, env)
		ir.Rules = append(ir.Rules, rr)
	}

	if c.Webhooks != nil {
		if _, err := c.Webhooks.Dispatch(ctx, item.Event, payload.Data()); err != nil {
			log.Error("webhook dispatch failed", zap.Error(err))
		}
	}

	ir.Outcome = OutcomeProcessed
	if len(rules) == 0 {
		ir.Outcome = OutcomeNoRules
	}
	return c.finish(ctx, item, ir, log)
}

func (c *QueueConsumer) runRule(ctx context.Context, rule model.AutomationRule, env *event.Envelope) model.RuleResult {
	rr := model.RuleResult{RuleID: rule.ID, RuleName: rule.Name, Results: []model.ActionResult{}}
	rr.Matched = automation.Evaluate(rule.Conditions, env.Payload.Data())
	c.Metrics.RuleEvaluated(env.Trigger, rr.Matched)
	if rr.Matched {
		rr.Results, rr.Executed = c.Executor.Execute(ctx, rule.Actions, env)
	}

	if c.Runs != nil {
		run := &model.AutomationRun{
			QueueItemID: env.QueueItemID,
			RuleID:      rule.ID,
			Event:       env.Name,
			Matched:     rr.Matched,
			Executed:    rr.Executed,
			Results:     rr.Results,
		}
		if err := c.Runs.Record(ctx, run); err != nil {
			c.logger().Warn("failed to record automation run",
				zap.String("rule_id", rule.ID), zap.Int64("queue_item_id", env.QueueItemID), zap.Error(err))
		}
	}
	return rr
}

func (c *QueueConsumer) finish(ctx context.Context, item model.QueueItem, ir ItemResult, log *zap.Logger) ItemResult {
	err := c.Queue.MarkProcessed(context.WithoutCancel(ctx), item.ID, item.ClaimToken)
	switch {
	case err == nil:
	case errors.Is(err, appErrors.ErrClaimLost):
		log.Warn("queue item claimed by another consumer")
		ir.Outcome = OutcomeClaimLost
	default:
		log.Error("failed to mark queue item processed", zap.Error(err))
		ir.Outcome = OutcomeFailed
		ir.Error = err.Error()
	}
	return ir
}
