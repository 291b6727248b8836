package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"

	"go.uber.org/zap/zapcore"
)

const (
	METER_SOURCE_MODBUS = "modbus"
	METER_SOURCE_MQTT   = "mqtt"

	MIN_EVALUATION_INTERVAL_MILLIS = 1000
	MIN_POLL_INTERVAL_MILLIS       = 1000

	// Sequential Modbus requests an inverter may need within one evaluation:
	// two to read its limit and three to write a new one.
	INVERTER_REQUESTS_PER_EVALUATION = 5
)

type Config struct {
	LogLevel      zapcore.Level
	Meter         MeterConfig         `mapstructure:"meter"`
	Inverters     []InverterConfig    `mapstructure:"inverters"`
	FeedInControl FeedInControlConfig `mapstructure:"feedin_control"`
	MQTT          MQTTConfig          `mapstructure:"mqtt"`
	MonitorConfig MonitorConfig       `mapstructure:"monitor"`
	Port          uint                `mapstructure:"port"`
	HttpLog       bool                `mapstructure:"http_log"`
}

type MeterConfig struct {
	Source        string
	Host          string
	Port          uint
	MeterId       uint   `mapstructure:"meter_id"`
	IgnoreFronius bool   `mapstructure:"ignore_fronius"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
	// mqtt source only
	MQTTTopic    string `mapstructure:"mqtt_topic"`
	MaxAgeMillis uint32 `mapstructure:"max_age_millis"`
}

type InverterConfig struct {
	Id                   string
	Name                 string
	MaxPower             float64 `mapstructure:"max_power"`
	Host                 string
	Port                 uint
	UnitId               uint   `mapstructure:"unit_id"`
	IgnoreFronius        bool   `mapstructure:"ignore_fronius"`
	RevertTimeoutSeconds uint32 `mapstructure:"revert_timeout_seconds"`
	TimeoutMillis        uint32 `mapstructure:"timeout_millis"`
}

type FeedInControlConfig struct {
	Enabled                    bool
	TargetFeedInPower          float64 `mapstructure:"target_feedin_power"`
	SignificanceThresholdPower float64 `mapstructure:"significance_threshold_power"`
	EvaluationIntervalMillis   uint32  `mapstructure:"evaluation_interval_millis"`
	ImportIncludesTarget       bool    `mapstructure:"import_includes_target"`
}

type MonitorConfig struct {
	Enabled            bool
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

var topicRegexp = regexp.MustCompile("^[a-z0-9_]+$")

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	if !topicRegexp.MatchString(lowerBaseTopic) {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks bounds and normalizes topics and inverter ids in place.
func Validate(cfg *Config) error {
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return fmt.Errorf("mqtt.base_topic: %w", err)
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return fmt.Errorf("mqtt.ha_discovery_topic: %w", err)
	}
	cfg.MQTT.HADiscoveryTopic = hadTopic

	fc := cfg.FeedInControl
	if fc.EvaluationIntervalMillis < MIN_EVALUATION_INTERVAL_MILLIS {
		return fmt.Errorf("config param feedin_control.evaluation_interval_millis should be >= %d", MIN_EVALUATION_INTERVAL_MILLIS)
	}
	if fc.SignificanceThresholdPower < 0 {
		return errors.New("config param feedin_control.significance_threshold_power should be >= 0")
	}
	if err := domain.CheckFeedInTarget(fc.TargetFeedInPower); err != nil {
		return fmt.Errorf("config param feedin_control.target_feedin_power: %w", err)
	}
	if cfg.MonitorConfig.Enabled && cfg.MonitorConfig.PollIntervalMillis < MIN_POLL_INTERVAL_MILLIS {
		return fmt.Errorf("config param monitor.poll_interval_millis should be >= %d", MIN_POLL_INTERVAL_MILLIS)
	}

	if len(cfg.Inverters) == 0 {
		return errors.New("at least one inverter must be configured")
	}
	seen := map[string]bool{}
	for i := range cfg.Inverters {
		inv := &cfg.Inverters[i]
		id, err := CheckMQTTTopic(inv.Id)
		if err != nil {
			return fmt.Errorf("inverters[%d].id: %w", i, err)
		}
		if seen[id] {
			return fmt.Errorf("inverters[%d].id %q is duplicated", i, id)
		}
		seen[id] = true
		inv.Id = id
		if inv.MaxPower <= 0 {
			return fmt.Errorf("inverters[%d].max_power should be > 0", i)
		}
		if inv.Host == "" {
			return fmt.Errorf("inverters[%d].host is required", i)
		}
		if inv.Port == 0 {
			inv.Port = 502
		}
	}

	switch strings.ToLower(cfg.Meter.Source) {
	case METER_SOURCE_MODBUS:
		cfg.Meter.Source = METER_SOURCE_MODBUS
		if cfg.Meter.Host == "" {
			return errors.New("config param meter.host is required for the modbus meter source")
		}
	case METER_SOURCE_MQTT:
		cfg.Meter.Source = METER_SOURCE_MQTT
		if cfg.Meter.MQTTTopic == "" {
			return errors.New("config param meter.mqtt_topic is required for the mqtt meter source")
		}
	default:
		return fmt.Errorf("config param meter.source must be %q or %q", METER_SOURCE_MODBUS, METER_SOURCE_MQTT)
	}

	if budget := cfg.EvaluationBudget(); budget > cfg.EvaluationInterval() {
		return fmt.Errorf("modbus timeouts allow an evaluation to take up to %s, longer than feedin_control.evaluation_interval_millis (%s)",
			budget, cfg.EvaluationInterval())
	}
	return nil
}

// EvaluationBudget is the longest a single evaluation can block on Modbus
// timeouts: one meter read followed by the slowest inverter's read and write.
// Inverters are driven concurrently so only the slowest one counts.
func (c Config) EvaluationBudget() time.Duration {
	var slowest time.Duration
	for _, inv := range c.Inverters {
		slowest = max(slowest, inv.Timeout())
	}
	budget := INVERTER_REQUESTS_PER_EVALUATION * slowest
	if c.Meter.Source == METER_SOURCE_MODBUS {
		budget += c.Meter.Timeout()
	}
	return budget
}

func (c Config) InverterSpecs() []domain.InverterSpec {
	specs := make([]domain.InverterSpec, len(c.Inverters))
	for i, inv := range c.Inverters {
		specs[i] = domain.InverterSpec{
			Id:            inv.Id,
			Name:          inv.Name,
			MaxPowerWatts: inv.MaxPower,
		}
	}
	return specs
}

func (c Config) ControlConfig() domain.ControlConfig {
	return domain.ControlConfig{
		TargetFeedInWatts:          c.FeedInControl.TargetFeedInPower,
		SignificanceThresholdWatts: c.FeedInControl.SignificanceThresholdPower,
		EvaluationPeriod:           c.EvaluationInterval(),
		ImportIncludesTarget:       c.FeedInControl.ImportIncludesTarget,
	}
}

func (c Config) EvaluationInterval() time.Duration {
	return time.Duration(c.FeedInControl.EvaluationIntervalMillis) * time.Millisecond
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.MonitorConfig.PollIntervalMillis) * time.Millisecond
}

func (c Config) MeterMaxAge() time.Duration {
	return time.Duration(c.Meter.MaxAgeMillis) * time.Millisecond
}

func millisOrDefault(millis uint32, def time.Duration) time.Duration {
	if millis == 0 {
		return def
	}
	return time.Duration(millis) * time.Millisecond
}

func (c MeterConfig) Timeout() time.Duration {
	return millisOrDefault(c.TimeoutMillis, time.Second)
}

func (c InverterConfig) Timeout() time.Duration {
	return millisOrDefault(c.TimeoutMillis, time.Second)
}
