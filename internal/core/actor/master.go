package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/zeropv2mqtt/internal/adapter/actor"
	"github.com/berfenger/zeropv2mqtt/internal/config"
	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/core/port"
	. "github.com/berfenger/zeropv2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type ModbusActorProvider func() *adactor.ModbusActor

type MasterOfPuppetsActor struct {
	config     config.Config
	behavior   actor.Behavior
	stash      *Stash
	controller port.FeedInController

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	modbusActor         *actor.PID
	mqttActor           *actor.PID
	powerFlowActor      *actor.PID
	feedInControlActor  *actor.PID
	modbusActorProvider ModbusActorProvider
	mqttActorProvider   MQTTActorProvider
	logger              *zap.Logger
}

// healthCheckResult tracks one round of health requests to the children.
type healthCheckResult struct {
	healthy   map[string]bool
	expected  []string
	respondTo *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, controller port.FeedInController, modbusActorProvider ModbusActorProvider,
	mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:              config,
		controller:          controller,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         &eventstream.EventStream{},
		modbusActorProvider: modbusActorProvider,
		mqttActorProvider:   mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		var err error
		if state.modbusActor, err = state.startModbusActor(ctx); err != nil {
			panic(err)
		}
		if state.mqttActor, err = state.startMQTTActor(ctx); err != nil {
			panic(err)
		}
		if state.powerFlowActor, err = state.startPowerFlowActor(ctx); err != nil {
			panic(err)
		}
		if state.feedInControlActor, err = state.startFeedInControlActor(ctx); err != nil {
			panic(err)
		}
		if state.config.MQTT.HADiscoveryEnable {
			if _, err := state.startHADiscoveryActor(ctx); err != nil {
				panic(err)
			}
		}

		state.currentHealthCheck = newHealthCheckResult(domain.ACTOR_ID_MODBUS, domain.ACTOR_ID_MQTT,
			domain.ACTOR_ID_POWERFLOW, domain.ACTOR_ID_FEEDIN_CONTROL)

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ForRequest(msg).ReplyTo(ctx)
		for id, pid := range state.children() {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetFeedInStatusRequest:
		state.logger.Debug("master@default GetFeedInStatusRequest")
		msg.ReplyToRef = (*domain.ActorRef)(ForRequest(msg).ReplyTo(ctx))
		ctx.Send(state.feedInControlActor, msg)
	case adactor.ParsedCommand:
		// route command to the owning actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
		if err != nil {
			state.logger.Warn("master@default invalid command", zap.Any("command", msg.Command), zap.Error(err))
			return
		}
		switch pcmd := cmd.(type) {
		case domain.FeedInControlRequest:
			ctx.Send(state.feedInControlActor, pcmd)
		}
	case domain.FeedInControlRequest:
		ctx.Send(state.feedInControlActor, msg)
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MODBUS) {
			state.logger.Error("master@default modbus error")
			panic(errors.New("modbus terminated"))
		}
	default:
		state.logger.Debug("master@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.SetReceiveTimeout(0)
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.record(msg)
		if state.currentHealthCheck.allReceived() {
			ctx.SetReceiveTimeout(0)
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) children() map[string]*actor.PID {
	return map[string]*actor.PID{
		domain.ACTOR_ID_MODBUS:         state.modbusActor,
		domain.ACTOR_ID_MQTT:           state.mqttActor,
		domain.ACTOR_ID_POWERFLOW:      state.powerFlowActor,
		domain.ACTOR_ID_FEEDIN_CONTROL: state.feedInControlActor,
	}
}

func (state *MasterOfPuppetsActor) startModbusActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return state.modbusActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(modbusProps, domain.ACTOR_ID_MODBUS)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startPowerFlowActor(ctx actor.Context) (*actor.PID, error) {

	pollInterval := time.Duration(0)
	if state.config.MonitorConfig.Enabled {
		pollInterval = state.config.PollInterval()
	}
	powerFlowProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPowerFlowActor(pollInterval, state.modbusActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(state.restartingSupervisor()))
	return ctx.SpawnNamed(powerFlowProps, domain.ACTOR_ID_POWERFLOW)
}

func (state *MasterOfPuppetsActor) startFeedInControlActor(ctx actor.Context) (*actor.PID, error) {

	feedInProps := actor.PropsFromProducer(func() actor.Actor {
		return NewFeedInControlActor(state.controller, state.config.FeedInControl.Enabled, state.eventStream, state.logger)
	}, actor.WithSupervisor(state.restartingSupervisor()))
	return ctx.SpawnNamed(feedInProps, domain.ACTOR_ID_FEEDIN_CONTROL)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(state.config.MQTT.BaseTopic, state.controller.Inverters(),
			state.controller.Config().TargetFeedInWatts, state.modbusActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(state.restartingSupervisor()))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) restartingSupervisor() actor.SupervisorStrategy {
	decider := func(reason interface{}) actor.Directive {
		state.logger.Warn("master: restarting failed child", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	return actor.NewOneForOneStrategy(3, 10*time.Second, decider)
}

func newHealthCheckResult(expected ...string) healthCheckResult {
	return healthCheckResult{
		healthy:  make(map[string]bool, len(expected)),
		expected: expected,
	}
}

func (state *healthCheckResult) reset() {
	clear(state.healthy)
	state.respondTo = nil
}

func (state *healthCheckResult) record(resp domain.ActorHealthResponse) {
	state.healthy[resp.Id] = resp.Healthy
}

func (state *healthCheckResult) allReceived() bool {
	for _, id := range state.expected {
		if _, ok := state.healthy[id]; !ok {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range state.expected {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
