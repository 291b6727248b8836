package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes the Home Assistant discovery config once the
// modbus and MQTT actors are up, then stays done.
type HADiscoveryActor struct {
	baseTopic          string
	specs              []domain.InverterSpec
	initialTarget      float64
	behavior           actor.Behavior
	stash              *actorutil.Stash
	modbusActor        *actor.PID
	mqttActor          *actor.PID
	modbusActorHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int

	logger *zap.Logger
}

func NewHADiscoveryActor(baseTopic string, specs []domain.InverterSpec, initialTarget float64, modbusActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		baseTopic:     baseTopic,
		specs:         specs,
		initialTarget: initialTarget,
		modbusActor:   modbusActor,
		mqttActor:     mqttActor,
		behavior:      actor.NewBehavior(),
		stash:         &actorutil.Stash{},
		logger:        actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		state.healthyRecv = 0
		state.modbusActorHealthy = false
		state.mqttActorHealthy = false
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MODBUS,
				Healthy: false,
			}
		})
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MODBUS:
				state.modbusActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if !state.modbusActorHealthy || !state.mqttActorHealthy {
				panic(errors.New("MQTT Actor or Modbus Actor are not healthy"))
			}
			actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetDevicesInfoRequest{}, 4*time.Second), func(err error) any {
				return domain.GetDevicesInfoResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				}
			})
			state.behavior.Become(state.WaitingInfoReceive)
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDevicesInfoResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@info: GetDevicesInfoResponse", zap.Int("inverters", len(msg.Inverters)))
		ctx.Send(state.mqttActor, state.discoveryRequest(msg))
		state.behavior.Become(state.DoneReceive)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_HA_DISCOVERY, Healthy: true, State: "waitingInfo"})
	default:
		state.logger.Debug("hadiscovery@info: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) DoneReceive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_HA_DISCOVERY, Healthy: true, State: "done"})
	default:
	}
}

// discoveryRequest builds the entity set. Inverters missing from info are
// announced from their configured spec.
func (state *HADiscoveryActor) discoveryRequest(info domain.GetDevicesInfoResponse) domain.PublishDiscoveryRequest {
	var sensors []domain.GenericSensor

	bridgeDevice := domain.BridgeDevice(state.baseTopic)
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)

	controllerDevice := domain.FeedInControllerDevice(state.baseTopic)
	controllerDevice.ViaDevice = bridgeDevice.Id
	sensors = append(sensors, domain.FeedInControlSensors(controllerDevice)...)

	for _, spec := range state.specs {
		inverterDevice := domain.InverterDevice(spec, info.Inverters[spec.Id])
		inverterDevice.ViaDevice = bridgeDevice.Id
		sensors = append(sensors, domain.InverterSensors(inverterDevice, spec)...)
	}

	if info.ACMeter != nil {
		acmeterDevice := domain.ACMeterDevice(info.ACMeter)
		acmeterDevice.ViaDevice = bridgeDevice.Id
		sensors = append(sensors, domain.ACMeterBaseSensors(acmeterDevice)...)
	}

	return domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		Switches:     domain.FeedInControlSwitches(controllerDevice),
		InputNumbers: domain.FeedInControlInputNumbers(controllerDevice, state.initialTarget),
	}
}
