package actor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/util/actorutil"
	"github.com/berfenger/zeropv2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	modbusTaskTimeout = 3 * time.Second
)

// ModbusActor owns the SunSpec connections used for monitoring. Requests are
// served one at a time, the next one waits in the stash.
type ModbusActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	inverters map[string]sunspec_modbus.InverterModbusReader
	acMeter   sunspec_modbus.ACMeterModbusReader
	logger    *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(inverters map[string]sunspec_modbus.InverterModbusReader, acMeter sunspec_modbus.ACMeterModbusReader, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		inverters: inverters,
		acMeter:   acMeter,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		for _, id := range state.inverterIds() {
			if err := state.inverters[id].Open(); err != nil {
				panic(fmt.Errorf("inverter %s: %w", id, err))
			}
		}
		if state.acMeter != nil {
			if err := state.acMeter.Open(); err != nil {
				panic(err)
			}
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetDevicesInfoRequest:
		state.logger.Debug("modbus@default: GetDevicesInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		state.runTask(ctx, sender, func() (any, error) {
			return state.getDevicesInfo()
		}, func(err error) any {
			return domain.GetDevicesInfoResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
		})
	case domain.GetPowerFlowRequest:
		state.logger.Debug("modbus@default: GetPowerFlowRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		state.runTask(ctx, sender, func() (any, error) {
			return state.getPowerFlow()
		}, func(err error) any {
			return domain.GetPowerFlowResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
		})
	case *actor.Stopping:
		state.close()
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.close()
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) runTask(ctx actor.Context, sender *actor.PID, fn func() (any, error), onError func(error) any) {
	actorutil.NewBackgroundTask(ctx, func() (*backgroundTaskResult, error) {
		message, err := fn()
		if err != nil {
			return nil, err
		}
		return &backgroundTaskResult{message: message, replyTo: sender}, nil
	}).Recover(func(err error) backgroundTaskResult {
		state.logger.Error("modbus: request failed", zap.Error(err))
		return backgroundTaskResult{message: onError(err), replyTo: sender}
	}).WithTimeout(modbusTaskTimeout).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.WaitingModbus)
}

// getDevicesInfo reads every device concurrently. Devices that fail are left
// out and only a complete failure is an error.
func (state *ModbusActor) getDevicesInfo() (domain.GetDevicesInfoResponse, error) {
	resp := domain.GetDevicesInfoResponse{
		Inverters: make(map[string]*sunspec_modbus.InverterInfo, len(state.inverters)),
	}
	var mu sync.Mutex
	var errs []error

	var g errgroup.Group
	for id, inv := range state.inverters {
		g.Go(func() error {
			info, err := inv.GetInfo()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("inverter %s: %w", id, err))
				return nil
			}
			resp.Inverters[id] = info
			return nil
		})
	}
	if state.acMeter != nil {
		g.Go(func() error {
			info, err := state.acMeter.GetInfo()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("acmeter: %w", err))
				return nil
			}
			resp.ACMeter = info
			return nil
		})
	}
	_ = g.Wait()

	if len(resp.Inverters) == 0 && resp.ACMeter == nil && len(errs) > 0 {
		return resp, errors.Join(errs...)
	}
	for _, err := range errs {
		state.logger.Warn("modbus: device info unavailable", zap.Error(err))
	}
	return resp, nil
}

func (state *ModbusActor) getPowerFlow() (domain.GetPowerFlowResponse, error) {
	resp := domain.GetPowerFlowResponse{
		Inverters: make(map[string]*sunspec_modbus.InverterPowerFlow, len(state.inverters)),
	}
	var mu sync.Mutex
	var errs []error

	var g errgroup.Group
	for id, inv := range state.inverters {
		g.Go(func() error {
			pf, err := inv.GetPowerFlow()
			if err == nil {
				if st, stErr := inv.GetState(); stErr == nil {
					pf.State = st
				} else {
					state.logger.Debug("modbus: inverter state unavailable", zap.String("inverter", id), zap.Error(stErr))
				}
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("inverter %s: %w", id, err))
				return nil
			}
			resp.Inverters[id] = pf
			return nil
		})
	}
	if state.acMeter != nil {
		g.Go(func() error {
			pf, err := state.acMeter.GetPowerFlow()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("acmeter: %w", err))
				return nil
			}
			resp.ACMeter = pf
			return nil
		})
	}
	_ = g.Wait()

	if len(resp.Inverters) == 0 && resp.ACMeter == nil && len(errs) > 0 {
		return resp, errors.Join(errs...)
	}
	for _, err := range errs {
		state.logger.Warn("modbus: power flow unavailable", zap.Error(err))
	}
	return resp, nil
}

func (state *ModbusActor) inverterIds() []string {
	ids := make([]string, 0, len(state.inverters))
	for id := range state.inverters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (state *ModbusActor) close() {
	for _, inv := range state.inverters {
		inv.Close()
	}
	if state.acMeter != nil {
		state.acMeter.Close()
	}
}
