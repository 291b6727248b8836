package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/zeropv2mqtt/internal/adapter/actor"
	"github.com/berfenger/zeropv2mqtt/internal/adapter/sunspec"
	"github.com/berfenger/zeropv2mqtt/internal/adapter/telemetry"
	"github.com/berfenger/zeropv2mqtt/internal/config"
	"github.com/berfenger/zeropv2mqtt/internal/core/actor"
	"github.com/berfenger/zeropv2mqtt/internal/core/port"
	"github.com/berfenger/zeropv2mqtt/internal/core/service"
	"github.com/berfenger/zeropv2mqtt/internal/server"
	"github.com/berfenger/zeropv2mqtt/internal/util/actorutil"
	"github.com/berfenger/zeropv2mqtt/pkg/sunspec_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	devices, err := createDevices(cfg, logger)
	if err != nil {
		logger.Fatal("modbus client setup failed", zap.Error(err))
	}

	// grid power samples come from the modbus meter or from an MQTT topic
	var gridPowerSink adactor.GridPowerSink
	var gridTelemetry port.TelemetryPort
	switch cfg.Meter.Source {
	case config.METER_SOURCE_MQTT:
		cache := telemetry.NewGridPowerCache(cfg.MeterMaxAge(), nil)
		gridPowerSink = cache.Update
		gridTelemetry = cache
	default:
		gridTelemetry = telemetry.NewMeterTelemetry(devices.acMeter)
	}

	registry, err := service.NewInverterRegistry(cfg.InverterSpecs())
	if err != nil {
		logger.Fatal("invalid inverter set", zap.Error(err))
	}
	controller := service.NewFeedInControl(registry, devices.limits, gridTelemetry, nil, cfg.ControlConfig(),
		logger.With(zap.String("component", "feedin")))

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, controller, modbusActorProvider(devices, logger),
			mqttActorProvider(cfg, gridPowerSink, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Fatal("master actor spawn failed", zap.Error(err))
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

// modbusDevices holds the device clients. The modbus actor owns their
// connections, the limit router and the meter telemetry share them.
type modbusDevices struct {
	inverters map[string]sunspec_modbus.InverterModbusReader
	acMeter   sunspec_modbus.ACMeterModbusReader
	limits    *sunspec.LimitRouter
}

func createDevices(cfg *config.Config, logger *zap.Logger) (*modbusDevices, error) {
	devices := &modbusDevices{
		inverters: make(map[string]sunspec_modbus.InverterModbusReader, len(cfg.Inverters)),
	}
	targets := make(map[string]sunspec.LimitTarget, len(cfg.Inverters))
	for _, invCfg := range cfg.Inverters {
		inv, err := sunspec_modbus.CreateInverterIntSFModbusReader(invCfg.Host, invCfg.Port, uint8(invCfg.UnitId),
			invCfg.Timeout(), invCfg.IgnoreFronius, logger.With(zap.String("inverter", invCfg.Id)), nil)
		if err != nil {
			return nil, fmt.Errorf("inverter %s: %w", invCfg.Id, err)
		}
		devices.inverters[invCfg.Id] = inv
		targets[invCfg.Id] = sunspec.LimitTarget{
			Reader:            inv,
			MaxPowerWatts:     invCfg.MaxPower,
			RevertTimeSeconds: invCfg.RevertTimeoutSeconds,
		}
	}
	devices.limits = sunspec.NewLimitRouter(targets)

	if cfg.Meter.Source == config.METER_SOURCE_MODBUS {
		acMeter, err := sunspec_modbus.CreateACMeterIntSFModbusReader(cfg.Meter.Host, cfg.Meter.Port,
			uint8(cfg.Meter.MeterId), cfg.Meter.Timeout(), cfg.Meter.IgnoreFronius, logger, nil)
		if err != nil {
			return nil, fmt.Errorf("meter: %w", err)
		}
		devices.acMeter = acMeter
	}
	return devices, nil
}

func initConfig() (*config.Config, error) {

	// alias PORT => ZEROPV_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("ZEROPV_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("zeropv")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func modbusActorProvider(devices *modbusDevices, logger *zap.Logger) actor.ModbusActorProvider {
	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(devices.inverters, devices.acMeter, logger)
	}
}

func mqttActorProvider(cfg *config.Config, gridPower adactor.GridPowerSink, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, gridPower, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("meter.source", config.METER_SOURCE_MODBUS)
	viper.SetDefault("meter.port", 502)
	viper.SetDefault("meter.meter_id", 200)
	viper.SetDefault("meter.max_age_millis", 15000)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "zeropv")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.poll_interval_millis", 5000)
	viper.SetDefault("feedin_control.enabled", true)
	viper.SetDefault("feedin_control.target_feedin_power", 0)
	viper.SetDefault("feedin_control.significance_threshold_power", 100)
	viper.SetDefault("feedin_control.evaluation_interval_millis", 10000)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
