package util

import (
	"github.com/berfenger/zeropv2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Meter: config.MeterConfig{
			Source:  config.METER_SOURCE_MODBUS,
			Host:    "127.0.0.1",
			Port:    502,
			MeterId: 200,
		},
		Inverters: []config.InverterConfig{
			{Id: "inv1", Name: "Roof east", MaxPower: 2250, Host: "127.0.0.1", Port: 502, UnitId: 1},
			{Id: "inv2", Name: "Roof west", MaxPower: 2250, Host: "127.0.0.1", Port: 502, UnitId: 2},
		},
		FeedInControl: config.FeedInControlConfig{
			Enabled:                    true,
			TargetFeedInPower:          -800,
			SignificanceThresholdPower: 100,
			EvaluationIntervalMillis:   1000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "zeropv",
			HADiscoveryTopic: "homeassistant",
		},
		MonitorConfig: config.MonitorConfig{
			Enabled:            true,
			PollIntervalMillis: 5000,
		},
		Port: 8080,
	}
}
