package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
)

type fakeLimits struct {
	mu        sync.Mutex
	limits    map[string]float64
	readErrs  map[string]error
	writeErrs map[string]error
	writes    map[string]float64
	reads     int
}

func newFakeLimits(limits map[string]float64) *fakeLimits {
	return &fakeLimits{
		limits:    limits,
		readErrs:  map[string]error{},
		writeErrs: map[string]error{},
		writes:    map[string]float64{},
	}
}

func (f *fakeLimits) ReadLimit(ctx context.Context, id string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if err := f.readErrs[id]; err != nil {
		return 0, err
	}
	v, ok := f.limits[id]
	if !ok {
		return 0, fmt.Errorf("unknown inverter %s", id)
	}
	return v, nil
}

func (f *fakeLimits) WriteLimit(ctx context.Context, id string, watts float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErrs[id]; err != nil {
		return err
	}
	f.writes[id] = watts
	f.limits[id] = watts
	return nil
}

func (f *fakeLimits) written() map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(f.writes))
	for k, v := range f.writes {
		out[k] = v
	}
	return out
}

func (f *fakeLimits) resetWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = map[string]float64{}
}

type fakeTelemetry struct {
	power float64
	err   error
}

func (f *fakeTelemetry) ReadGridPower(ctx context.Context) (float64, error) {
	return f.power, f.err
}

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func twoInverters(max1, max2 float64) []domain.InverterSpec {
	return []domain.InverterSpec{
		{Id: "inv1", Name: "Inverter 1", MaxPowerWatts: max1},
		{Id: "inv2", Name: "Inverter 2", MaxPowerWatts: max2},
	}
}

func defaultControlConfig() domain.ControlConfig {
	return domain.ControlConfig{
		TargetFeedInWatts:          -800,
		SignificanceThresholdWatts: 100,
		EvaluationPeriod:           5 * time.Second,
	}
}
