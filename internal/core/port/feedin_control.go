package port

import (
	"context"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
)

// InverterLimitPort reads and commands per inverter power limits in watts.
// Implementations bound their own I/O time.
type InverterLimitPort interface {
	ReadLimit(ctx context.Context, inverterId string) (float64, error)
	WriteLimit(ctx context.Context, inverterId string, watts float64) error
}

// TelemetryPort provides the signed grid power sample. Positive = import.
type TelemetryPort interface {
	ReadGridPower(ctx context.Context) (float64, error)
}

type Clock interface {
	Now() time.Time
}

type FeedInController interface {
	// Tick reads telemetry and evaluates it.
	Tick(ctx context.Context) domain.TickResult
	Evaluate(ctx context.Context, gridPower float64) domain.TickResult
	SetTargetFeedInWatts(watts float64) error
	Config() domain.ControlConfig
	Inverters() []domain.InverterSpec
}
