package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/core/events"
	"github.com/berfenger/zeropv2mqtt/internal/core/port"
	. "github.com/berfenger/zeropv2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type FeedInControlActor struct {
	ActorWithStates
	stash       *Stash
	controller  port.FeedInController
	eventStream *eventstream.EventStream
	ticker      *QuartzTicker
	enabled     bool
	lastResult  *domain.TickResult
	// evaluation numbers the background ticks, overdue is set once the
	// running one has outlived its period
	evaluation uint64
	overdue    bool

	logger *zap.Logger
}

type feedInTick struct {
}

type feedInTickResult struct {
	evaluation uint64
	result     domain.TickResult
}

func NewFeedInControlActor(controller port.FeedInController, enabled bool, eventStream *eventstream.EventStream, logger *zap.Logger) *FeedInControlActor {
	act := &FeedInControlActor{
		controller:  controller,
		enabled:     enabled,
		eventStream: eventStream,
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_FEEDIN_CONTROL, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(FCStartingState{
		actor: act,
	})
	return act
}

func (state *FeedInControlActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type FCStartingState struct {
	ActorState
	actor *FeedInControlActor
}

func (state FCStartingState) Name() string {
	return "starting"
}

func (state FCStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("feedin_control@starting started")

		ticker, err := StartQuartzTicker(ctx.ActorSystem().Root, ctx.Self(), ctx.Self().Id,
			state.actor.controller.Config().EvaluationPeriod, func() any { return feedInTick{} })
		if err != nil {
			state.actor.logger.Error("feedin_control@starting could not schedule ticks", zap.Error(err))
			panic(err)
		}
		state.actor.ticker = ticker

		state.actor.publishControlState()
		if state.actor.enabled {
			state.actor.Become(FCActiveState{actor: state.actor})
		} else {
			state.actor.Become(FCIdleState{actor: state.actor})
		}
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.actor.ticker.Stop()
	default:
		state.actor.logger.Debug("feedin_control@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state, control disabled

type FCIdleState struct {
	ActorState
	actor *FeedInControlActor
}

func (state FCIdleState) Name() string {
	return "idle"
}

func (state FCIdleState) Receive(ctx actor.Context) {
	if state.actor.handleCommon(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case feedInTick:
	case domain.FeedInControlRequest:
		state.actor.handleCommand(ctx, msg)
	default:
		state.actor.logger.Debug("feedin_control@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Active state, waiting for the next tick

type FCActiveState struct {
	ActorState
	actor *FeedInControlActor
}

func (state FCActiveState) Name() string {
	return "active"
}

func (state FCActiveState) Receive(ctx actor.Context) {
	if state.actor.handleCommon(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case feedInTick:
		state.actor.logger.Debug("feedin_control@active feedInTick")
		state.actor.BecomeStacked(FCEvaluatingState{
			actor: state.actor,
		}.OnEnterAction(ctx))
	case domain.FeedInControlRequest:
		state.actor.handleCommand(ctx, msg)
	default:
		state.actor.logger.Debug("feedin_control@active: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Evaluating state, a tick is running in the background

type FCEvaluatingState struct {
	ActorState
	actor *FeedInControlActor
}

func (state FCEvaluatingState) Name() string {
	return "evaluating"
}

func (state FCEvaluatingState) Receive(ctx actor.Context) {
	if state.actor.handleCommon(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case feedInTickResult:
		if msg.evaluation != state.actor.evaluation {
			state.actor.logger.Warn("feedin_control@evaluating result of a previous evaluation ignored",
				zap.Uint64("evaluation", msg.evaluation))
			return
		}
		state.actor.logger.Debug("feedin_control@evaluating feedInTickResult", zap.String("outcome", string(msg.result.Outcome)))
		if state.actor.overdue {
			state.actor.logger.Info("feedin_control@evaluating overdue evaluation finished", zap.String("outcome", string(msg.result.Outcome)))
		}
		state.actor.overdue = false
		state.actor.onTickResult(msg.result)
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case feedInTick:
		// single flight: the running Tick keeps going until it returns, later
		// ticks are dropped
		if state.actor.overdue {
			state.actor.logger.Debug("feedin_control@evaluating tick dropped")
			return
		}
		state.actor.overdue = true
		state.actor.logger.Warn("feedin_control@evaluating evaluation overdue, ticks are dropped until it returns")
		state.actor.onTickResult(domain.TickResult{
			Outcome: domain.OutcomeEvaluationFailed,
			At:      time.Now(),
		})
	default:
		state.actor.logger.Debug("feedin_control@evaluating: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// OnEnterAction starts the evaluation. Its result is piped back exactly once,
// when Tick returns or panics, so the actor stays in this state for as long
// as the evaluation runs.
func (state FCEvaluatingState) OnEnterAction(ctx actor.Context) FCEvaluatingState {
	controller := state.actor.controller
	state.actor.evaluation++
	evaluation := state.actor.evaluation
	period := controller.Config().EvaluationPeriod
	logger := state.actor.logger
	NewBackgroundTaskNoError(ctx, func() *feedInTickResult {
		tickCtx, cancel := context.WithTimeout(context.Background(), period)
		defer cancel()
		return &feedInTickResult{evaluation: evaluation, result: controller.Tick(tickCtx)}
	}).Recover(func(err error) feedInTickResult {
		logger.Error("feedin_control@evaluating tick failed", zap.Error(err))
		return feedInTickResult{evaluation: evaluation, result: domain.TickResult{
			Outcome: domain.OutcomeEvaluationFailed,
			At:      time.Now(),
		}}
	}).PipeTo(ctx.Self())
	return state
}

// Done state, after stop

type FCDoneState struct {
	ActorState
	actor *FeedInControlActor
}

func (state FCDoneState) Name() string {
	return "done"
}

func (state FCDoneState) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_FEEDIN_CONTROL,
			Healthy: false,
			State:   state.Name(),
		})
	default:
	}
}

// Other actor function helpers

// handleCommon answers the requests every running state serves the same way.
func (state *FeedInControlActor) handleCommon(ctx actor.Context) bool {
	name := state.StateName()
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug(fmt.Sprintf("feedin_control@%s: ActorHealthRequest", name))
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_FEEDIN_CONTROL,
			Healthy: true,
			State:   name,
		})
	case domain.GetFeedInStatusRequest:
		ForRequest(msg).Respond(ctx, state.status(name))
	case *actor.Stopping:
		state.ticker.Stop()
		state.Become(FCDoneState{actor: state})
	case *actor.Restarting:
		state.ticker.Stop()
	default:
		return false
	}
	return true
}

func (state *FeedInControlActor) handleCommand(ctx actor.Context, msg domain.FeedInControlRequest) {
	switch cmd := msg.(type) {
	case domain.FeedInControlEnableRequest:
		state.logger.Sugar().Debugf("feedin_control: cmd enable %t", cmd.Enable)
		if cmd.Enable == state.enabled {
			return
		}
		state.enabled = cmd.Enable
		if cmd.Enable {
			state.Become(FCActiveState{actor: state})
		} else {
			state.logger.Info("feedin_control: control disabled, inverter limits are left as they are")
			state.Become(FCIdleState{actor: state})
		}
		state.eventStream.Publish(events.FeedInControlSwitchUpdateEvent(cmd.Enable))
	case domain.FeedInControlSetTargetRequest:
		if err := state.controller.SetTargetFeedInWatts(cmd.TargetFeedInWatts); err != nil {
			state.logger.Warn("feedin_control: target feed-in rejected", zap.Error(err))
			return
		}
		state.logger.Sugar().Infof("feedin_control: set target feed-in %.0f W", cmd.TargetFeedInWatts)
		state.eventStream.Publish(events.FeedInTargetUpdateEvent(cmd.TargetFeedInWatts))
	}
}

func (state *FeedInControlActor) onTickResult(result domain.TickResult) {
	state.lastResult = &result
	switch {
	case result.Outcome == domain.OutcomeApplied && len(result.FailedWrites) > 0:
		state.logger.Warn("feedin_control: limits applied with failures",
			zap.Float64("grid_power", result.GridPowerWatts), zap.Any("failed", result.FailedWrites))
	case result.Outcome == domain.OutcomeApplied:
		state.logger.Info("feedin_control: limits applied",
			zap.Float64("grid_power", result.GridPowerWatts), zap.Float64("aggregate_limit", result.Status.AggregateLimitWatts))
	case result.Outcome.Aborted():
		state.logger.Warn("feedin_control: tick aborted", zap.String("outcome", string(result.Outcome)))
	}
	for _, ev := range events.TickResultToUpdateEvents(result) {
		state.eventStream.Publish(ev)
	}
}

func (state *FeedInControlActor) status(name string) domain.GetFeedInStatusResponse {
	return domain.GetFeedInStatusResponse{
		Enabled:           state.enabled,
		State:             name,
		TargetFeedInWatts: state.controller.Config().TargetFeedInWatts,
		LastResult:        state.lastResult,
	}
}

func (state *FeedInControlActor) publishControlState() {
	for _, ev := range events.FeedInControlStateUpdateEvents(state.enabled, state.controller.Config().TargetFeedInWatts) {
		state.eventStream.Publish(ev)
	}
}
