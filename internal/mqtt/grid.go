package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type gridPowerMessage struct {
	Power     *float64  `json:"power"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseGridPowerPayload accepts either a bare number or a JSON object with a
// "power" field. Positive = import.
func ParseGridPowerPayload(payload []byte) (float64, error) {
	var power float64
	var msg gridPowerMessage
	if err := json.Unmarshal(payload, &msg); err == nil {
		if msg.Power == nil {
			return 0, fmt.Errorf("grid power payload has no power field: %s", payload)
		}
		power = *msg.Power
	} else {
		power, err = strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid grid power payload %q: %w", payload, err)
		}
	}
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return 0, fmt.Errorf("invalid grid power value %f", power)
	}
	return power, nil
}
