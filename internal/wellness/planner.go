// Package wellness generates meal and workout plans through the shared
// request queue. Plans run at normal priority so live chat exchanges,
// which queue high, are never stuck behind a slow generation.
package wellness

import (
	"context"

	"go.uber.org/zap"

	"github.com/vitawell/companion/internal/chat/queue"
	"github.com/vitawell/companion/internal/shared/types"
)

// Plan kinds, also used as metric label values.
const (
	KindMeal    = "meal"
	KindWorkout = "workout"
)

// Transport is the slice of the backend client the planner needs.
type Transport interface {
	SendInto(ctx context.Context, endpoint string, payload, out any) error
}

// Planner issues plan generation requests.
type Planner struct {
	transport Transport
	queue     *queue.Queue
	logger    *zap.Logger
}

// New wires a planner onto the shared request queue.
func New(transport Transport, q *queue.Queue, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{transport: transport, queue: q, logger: logger}
}

// GenerateMealPlan requests a meal plan. Blocks until generated.
func (p *Planner) GenerateMealPlan(ctx context.Context, req types.PlanRequest) (types.PlanResponse, error) {
	return p.generate(ctx, "/nutrition/generate-meal-plan", KindMeal, req)
}

// GenerateWorkoutPlan requests a workout plan. Blocks until generated.
func (p *Planner) GenerateWorkoutPlan(ctx context.Context, req types.PlanRequest) (types.PlanResponse, error) {
	return p.generate(ctx, "/fitness/generate-workout-plan", KindWorkout, req)
}

func (p *Planner) generate(ctx context.Context, endpoint, kind string, req types.PlanRequest) (types.PlanResponse, error) {
	fut := p.queue.Enqueue(ctx, func(taskCtx context.Context) (any, error) {
		var resp types.PlanResponse
		if err := p.transport.SendInto(taskCtx, endpoint, req, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	}, queue.Normal)

	val, err := fut.Wait(ctx)
	if err != nil {
		p.logger.Warn("plan generation failed",
			zap.String("kind", kind),
			zap.Error(err),
		)
		return types.PlanResponse{}, err
	}

	resp := val.(types.PlanResponse)
	p.logger.Info("plan generated",
		zap.String("kind", kind),
		zap.String("plan_id", resp.PlanID),
	)
	return resp, nil
}
