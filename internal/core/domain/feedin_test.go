package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckFeedInTarget(t *testing.T) {
	assert.NoError(t, CheckFeedInTarget(0))
	assert.NoError(t, CheckFeedInTarget(-800))
	assert.NoError(t, CheckFeedInTarget(FEEDIN_TARGET_MIN_WATTS))
	assert.NoError(t, CheckFeedInTarget(FEEDIN_TARGET_MAX_WATTS))

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), FEEDIN_TARGET_MIN_WATTS - 1, FEEDIN_TARGET_MAX_WATTS + 1} {
		assert.ErrorIs(t, CheckFeedInTarget(v), ErrInvalidValue, "%v", v)
	}
}

func TestOutcomeAborted(t *testing.T) {
	for _, o := range []Outcome{OutcomeNoSnapshots, OutcomeTelemetryUnavailable, OutcomePlanningFailed, OutcomeEvaluationFailed} {
		assert.True(t, o.Aborted(), o)
	}
	for _, o := range []Outcome{OutcomeApplied, OutcomeBelowThreshold, OutcomeDecreaseCooldown} {
		assert.False(t, o.Aborted(), o)
	}
}
