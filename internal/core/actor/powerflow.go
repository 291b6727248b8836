package actor

import (
	"fmt"
	"sort"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/core/events"
	. "github.com/berfenger/zeropv2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// PowerFlowActor polls the modbus actor for monitoring values. It never
// touches inverter limits.
type PowerFlowActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	modbusActor  *actor.PID
	pollInterval time.Duration
	eventStream  *eventstream.EventStream
	lastError    error

	logger *zap.Logger
}

type powerFlowTick struct {
}

// NewPowerFlowActor polls every pollInterval, a zero interval disables
// polling.
func NewPowerFlowActor(pollInterval time.Duration, modbusActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *PowerFlowActor {
	act := &PowerFlowActor{
		pollInterval: pollInterval,
		modbusActor:  modbusActor,
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		logger:       ActorLogger(domain.ACTOR_ID_POWERFLOW, logger),
		eventStream:  eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PowerFlowActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PowerFlowActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("powerflow@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		if state.pollInterval > 0 {
			state.scheduler.RequestOnce(state.pollInterval, ctx.Self(), powerFlowTick{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("powerflow@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PowerFlowActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("powerflow@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POWERFLOW,
			Healthy: true,
			State:   state.stateName(),
		})
	case powerFlowTick:
		state.logger.Debug("powerflow@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetPowerFlowRequest{}, 4*time.Second), func(err error) any {
			return domain.GetPowerFlowResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})

		// schedule next tick
		state.scheduler.RequestOnce(state.pollInterval, ctx.Self(), powerFlowTick{})
		state.behavior.BecomeStacked(state.WaitingPFReceive)
	default:
		state.logger.Debug("powerflow@default: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PowerFlowActor) WaitingPFReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetPowerFlowResponse:
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
		if msg.HasResponseError() {
			state.logger.Error("powerflow@waiting GetPowerFlowResponse error", zap.Error(msg.GetResponseError()))
			state.lastError = msg.GetResponseError()
			return
		}
		state.logger.Debug("powerflow@waiting GetPowerFlowResponse")
		state.lastError = nil
		state.publishPowerFlow(msg)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POWERFLOW,
			Healthy: true,
			State:   "waiting",
		})
	case powerFlowTick:
		// previous poll still running, try again later
		state.scheduler.RequestOnce(state.pollInterval, ctx.Self(), powerFlowTick{})
	default:
		state.logger.Debug("powerflow@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PowerFlowActor) publishPowerFlow(msg domain.GetPowerFlowResponse) {
	ids := make([]string, 0, len(msg.Inverters))
	for id := range msg.Inverters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, ev := range events.InverterPowerFlowToUpdateEvents(id, msg.Inverters[id]) {
			state.eventStream.Publish(ev)
		}
	}
	if msg.ACMeter != nil {
		for _, ev := range events.ACMeterPowerFlowToUpdateEvents(msg.ACMeter) {
			state.eventStream.Publish(ev)
		}
	}
}

func (state *PowerFlowActor) stateName() string {
	switch {
	case state.pollInterval <= 0:
		return "disabled"
	case state.lastError != nil:
		return "degraded"
	default:
		return "polling"
	}
}
