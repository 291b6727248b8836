package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type controlFixture struct {
	ctrl      *FeedInControl
	limits    *fakeLimits
	telemetry *fakeTelemetry
	clock     *fakeClock
}

func newControlFixture(t *testing.T, specs []domain.InverterSpec, limits map[string]float64) controlFixture {
	reg, err := NewInverterRegistry(specs)
	require.NoError(t, err)
	f := controlFixture{
		limits:    newFakeLimits(limits),
		telemetry: &fakeTelemetry{},
		clock:     newFakeClock(),
	}
	f.ctrl = NewFeedInControl(reg, f.limits, f.telemetry, f.clock, defaultControlConfig(), zap.NewNop())
	return f
}

func TestEvaluateImportApplies(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})

	r := f.ctrl.Evaluate(context.Background(), 500)

	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	require.NotNil(t, r.Status)
	assert.True(t, r.Status.ControlActive)
	assert.Equal(t, 2500.0, r.Status.AggregateLimitWatts)
	assert.Equal(t, map[string]float64{"inv1": 1250, "inv2": 1250}, f.limits.written())
	assert.Empty(t, r.FailedWrites)
}

func TestEvaluateDecreaseWithCooldown(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})

	// first decrease goes through
	r := f.ctrl.Evaluate(context.Background(), -1200)
	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	assert.Equal(t, map[string]float64{"inv1": 800, "inv2": 800}, f.limits.written())
	assert.Equal(t, 15*time.Second, r.CooldownRemaining)

	// second one within 3 evaluation periods is suppressed
	f.limits.resetWrites()
	f.clock.Advance(5 * time.Second)
	r = f.ctrl.Evaluate(context.Background(), -1200)
	assert.Equal(t, domain.OutcomeDecreaseCooldown, r.Outcome)
	require.NotNil(t, r.Status)
	assert.False(t, r.Status.ControlActive)
	assert.Equal(t, 1600.0, r.Status.AggregateLimitWatts)
	assert.Equal(t, 10*time.Second, r.CooldownRemaining)
	assert.Empty(t, f.limits.written())

	// once elapsed the decrease is applied
	f.clock.Advance(10 * time.Second)
	r = f.ctrl.Evaluate(context.Background(), -1200)
	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	assert.Equal(t, map[string]float64{"inv1": 600, "inv2": 600}, f.limits.written())
}

func TestEvaluateIncreaseDuringCooldown(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})

	r := f.ctrl.Evaluate(context.Background(), -1200)
	assert.Equal(t, domain.OutcomeApplied, r.Outcome)

	f.clock.Advance(time.Second)
	r = f.ctrl.Evaluate(context.Background(), 600)
	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	assert.Equal(t, map[string]float64{"inv1": 1100, "inv2": 1100}, f.limits.written())
}

func TestEvaluateClamped(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 1500), map[string]float64{"inv1": 1000, "inv2": 1000})

	r := f.ctrl.Evaluate(context.Background(), 2000)

	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	assert.Equal(t, 3500.0, r.Status.AggregateLimitWatts)
	assert.Equal(t, map[string]float64{"inv1": 2000, "inv2": 1500}, f.limits.written())
}

func TestEvaluateBelowThreshold(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})

	r := f.ctrl.Evaluate(context.Background(), -850)

	assert.Equal(t, domain.OutcomeBelowThreshold, r.Outcome)
	require.NotNil(t, r.Status)
	assert.False(t, r.Status.ControlActive)
	assert.Equal(t, 2000.0, r.Status.AggregateLimitWatts)
	assert.Empty(t, f.limits.written())

	// the suppressed decrease does not arm the cooldown
	_, stamped := f.ctrl.hysteresis.LastDecreaseAppliedAt()
	assert.False(t, stamped)
}

func TestEvaluateSkipsUnchangedInverter(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 1000), map[string]float64{"inv1": 1000, "inv2": 1000})

	r := f.ctrl.Evaluate(context.Background(), 1000)

	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	assert.Equal(t, map[string]float64{"inv1": 1500}, f.limits.written())
}

func TestEvaluateExcludesFailedReads(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})
	f.limits.readErrs["inv2"] = errors.New("timeout")

	r := f.ctrl.Evaluate(context.Background(), 500)

	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	assert.Equal(t, []string{"inv2"}, r.ExcludedInverters)
	assert.Equal(t, map[string]float64{"inv1": 1500}, f.limits.written())
	assert.Len(t, r.Plan.PerInverter, 1)
}

func TestEvaluateExcludesInvalidReads(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": math.NaN(), "inv2": 1000})

	r := f.ctrl.Evaluate(context.Background(), 500)

	assert.Equal(t, []string{"inv1"}, r.ExcludedInverters)
	assert.Equal(t, map[string]float64{"inv2": 1500}, f.limits.written())
}

func TestEvaluateNoSnapshots(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})
	f.limits.readErrs["inv1"] = errors.New("down")
	f.limits.readErrs["inv2"] = errors.New("down")

	r := f.ctrl.Evaluate(context.Background(), 500)

	assert.Equal(t, domain.OutcomeNoSnapshots, r.Outcome)
	assert.True(t, r.Outcome.Aborted())
	assert.Nil(t, r.Status)
	assert.ElementsMatch(t, []string{"inv1", "inv2"}, r.ExcludedInverters)
	assert.Empty(t, f.limits.written())
}

func TestEvaluateWriteFailureStillReportsPlan(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})
	f.limits.writeErrs["inv1"] = errors.New("modbus exception")

	r := f.ctrl.Evaluate(context.Background(), 500)

	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	assert.Equal(t, map[string]float64{"inv2": 1250}, f.limits.written())
	assert.Contains(t, r.FailedWrites, "inv1")
	assert.Equal(t, 2500.0, r.Status.AggregateLimitWatts)
}

func TestEvaluateInvalidGridPower(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})

	for _, g := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		r := f.ctrl.Evaluate(context.Background(), g)
		assert.Equal(t, domain.OutcomeTelemetryUnavailable, r.Outcome)
		assert.False(t, r.HasGridPower)
	}
	assert.Zero(t, f.limits.reads)
}

func TestTickTelemetryUnavailable(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})
	f.telemetry.err = domain.ErrUnavailable

	r := f.ctrl.Tick(context.Background())

	assert.Equal(t, domain.OutcomeTelemetryUnavailable, r.Outcome)
	assert.Zero(t, f.limits.reads)
}

func TestTickReadsTelemetry(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})
	f.telemetry.power = 500

	r := f.ctrl.Tick(context.Background())

	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	assert.Equal(t, 500.0, r.GridPowerWatts)
	assert.True(t, r.HasGridPower)
}

func TestSetTargetFeedIn(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})

	require.NoError(t, f.ctrl.SetTargetFeedInWatts(0))
	assert.Equal(t, 0.0, f.ctrl.Config().TargetFeedInWatts)

	// with zero target an export of 300 lowers the aggregate by 300
	r := f.ctrl.Evaluate(context.Background(), -300)
	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	assert.Equal(t, 1700.0, r.Status.AggregateLimitWatts)
	assert.Len(t, f.ctrl.Inverters(), 2)
}

func TestSetTargetFeedInRejectsNonFinite(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 20000} {
		assert.ErrorIs(t, f.ctrl.SetTargetFeedInWatts(v), domain.ErrInvalidValue)
	}
	assert.Equal(t, -800.0, f.ctrl.Config().TargetFeedInWatts)

	// control keeps working on the previous target
	r := f.ctrl.Evaluate(context.Background(), -3000)
	assert.Equal(t, domain.OutcomeApplied, r.Outcome)
	assert.Equal(t, map[string]float64{"inv1": 0, "inv2": 0}, f.limits.written())
}

func TestEvaluatePlanningFailed(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})
	// bypass the setter to reach the planner with an unusable target
	f.ctrl.config.TargetFeedInWatts = math.NaN()

	r := f.ctrl.Evaluate(context.Background(), -3000)

	assert.Equal(t, domain.OutcomePlanningFailed, r.Outcome)
	assert.True(t, r.Outcome.Aborted())
	assert.True(t, r.HasGridPower)
	assert.Nil(t, r.Plan)
	assert.Empty(t, f.limits.written())
}

func TestEvaluateOverlappingCallsApplyOneDecrease(t *testing.T) {
	f := newControlFixture(t, twoInverters(2250, 2250), map[string]float64{"inv1": 1000, "inv2": 1000})

	results := make(chan domain.TickResult, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.ctrl.Evaluate(context.Background(), -1200)
		}()
	}
	wg.Wait()
	close(results)

	outcomes := map[domain.Outcome]int{}
	for r := range results {
		outcomes[r.Outcome]++
	}
	assert.Equal(t, map[domain.Outcome]int{
		domain.OutcomeApplied:          1,
		domain.OutcomeDecreaseCooldown: 1,
	}, outcomes)
	assert.Equal(t, map[string]float64{"inv1": 800, "inv2": 800}, f.limits.written())
}
