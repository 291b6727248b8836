package service

import (
	"sync"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/core/port"
)

// SignificanceGate drops plans whose aggregate change is below the threshold.
type SignificanceGate struct {
	ThresholdWatts float64
}

func (g SignificanceGate) Admit(plan domain.Plan) bool {
	return plan.Delta() >= g.ThresholdWatts
}

// DecreaseHysteresisGate spaces applied decreases by at least the cooldown.
// Increases are always admitted and leave the gate state untouched.
type DecreaseHysteresisGate struct {
	cooldown              time.Duration
	clock                 port.Clock
	mu                    sync.Mutex
	lastDecreaseAppliedAt *time.Time
}

func NewDecreaseHysteresisGate(cooldown time.Duration, clock port.Clock) *DecreaseHysteresisGate {
	return &DecreaseHysteresisGate{
		cooldown: cooldown,
		clock:    clock,
	}
}

// Admit returns whether the plan may be applied and, when a decrease is
// suppressed, the remaining cooldown. An admitted decrease is stamped
// immediately, before any write is dispatched.
func (g *DecreaseHysteresisGate) Admit(plan domain.Plan) (bool, time.Duration) {
	if !plan.IsDecrease() {
		return true, 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	if g.lastDecreaseAppliedAt != nil {
		elapsed := now.Sub(*g.lastDecreaseAppliedAt)
		if elapsed < g.cooldown {
			return false, g.cooldown - elapsed
		}
	}
	g.lastDecreaseAppliedAt = &now
	return true, 0
}

// Remaining is the cooldown left before another decrease is admitted.
func (g *DecreaseHysteresisGate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastDecreaseAppliedAt == nil {
		return 0
	}
	elapsed := g.clock.Now().Sub(*g.lastDecreaseAppliedAt)
	if elapsed >= g.cooldown {
		return 0
	}
	return g.cooldown - elapsed
}

func (g *DecreaseHysteresisGate) LastDecreaseAppliedAt() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastDecreaseAppliedAt == nil {
		return time.Time{}, false
	}
	return *g.lastDecreaseAppliedAt, true
}
