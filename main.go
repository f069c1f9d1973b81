package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/torchnode/cmd"
	"github.com/smazurov/torchnode/internal/api"
	"github.com/smazurov/torchnode/internal/config"
	"github.com/smazurov/torchnode/internal/events"
	"github.com/smazurov/torchnode/internal/led"
	"github.com/smazurov/torchnode/internal/logging"
	"github.com/smazurov/torchnode/internal/metrics"
	"github.com/smazurov/torchnode/internal/power"
	"github.com/smazurov/torchnode/internal/safety"
	"github.com/smazurov/torchnode/internal/systemd"
	"github.com/smazurov/torchnode/internal/torch"
	"github.com/smazurov/torchnode/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// LED settings
	LEDName      string `help:"Sysfs LED to use as the torch; empty auto-detects" toml:"led.name" env:"LED_NAME"`
	LEDSysfsRoot string `help:"LED class directory" default:"/sys/class/leds" toml:"led.sysfs_root" env:"LED_SYSFS_ROOT"`

	// Safety settings
	SafetyLowPowerThreshold int    `help:"Battery level at or below which the torch is refused unless charging" default:"10" toml:"safety.low_power_threshold" env:"SAFETY_LOW_POWER_THRESHOLD"`
	SafetyMaxOnDuration     string `help:"Turn the torch off after this long on; 0 disables" default:"15m" toml:"safety.max_on_duration" env:"SAFETY_MAX_ON_DURATION"`

	// Power settings
	PowerSupply    string `help:"Battery power supply name; empty auto-detects" toml:"power.supply" env:"POWER_SUPPLY"`
	PowerSysfsRoot string `help:"Power supply class directory" default:"/sys/class/power_supply" toml:"power.sysfs_root" env:"POWER_SYSFS_ROOT"`

	// Strobe settings
	StrobeDefaultIntervalMs int `help:"Strobe interval when a request omits one" default:"100" toml:"strobe.default_interval_ms" env:"STROBE_DEFAULT_INTERVAL_MS"`

	// Observability settings
	ObsPrometheusEnabled bool `help:"Enable Prometheus" default:"true" toml:"obs.prometheus_enabled" env:"OBS_PROMETHEUS_ENABLED"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingTorch  string `help:"Torch controller logging level" default:"info" toml:"logging.torch" env:"LOGGING_TORCH"`
	LoggingStrobe string `help:"Strobe scheduler logging level" default:"info" toml:"logging.strobe" env:"LOGGING_STROBE"`
	LoggingSafety string `help:"Safety monitor logging level" default:"info" toml:"logging.safety" env:"LOGGING_SAFETY"`
	LoggingPower  string `help:"Power watcher logging level" default:"info" toml:"logging.power" env:"LOGGING_POWER"`
	LoggingLED    string `help:"LED driver logging level" default:"info" toml:"logging.led" env:"LOGGING_LED"`
	LoggingAPI    string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"torch":  o.LoggingTorch,
			"strobe": o.LoggingStrobe,
			"safety": o.LoggingSafety,
			"power":  o.LoggingPower,
			"led":    o.LoggingLED,
			"api":    o.LoggingAPI,
		},
	}
}

func (o *Options) safetyPolicy(logger *slog.Logger) safety.Policy {
	policy := safety.DefaultPolicy()
	if o.SafetyLowPowerThreshold >= 0 && o.SafetyLowPowerThreshold <= 100 {
		policy.LowPowerThreshold = o.SafetyLowPowerThreshold
	} else {
		logger.Warn("Ignoring out of range low power threshold", "value", o.SafetyLowPowerThreshold)
	}
	if d, err := config.ParseDuration(o.SafetyMaxOnDuration); err == nil {
		policy.MaxOnDuration = d
	} else {
		logger.Warn("Ignoring invalid max on duration", "value", o.SafetyMaxOnDuration, "error", err)
	}
	return policy
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		eventBus := events.New()
		logging.SetEntryCallback(func(e logging.Entry) {
			eventBus.Publish(api.LogEntryEvent(e))
		})

		driver := led.New(logging.GetLogger("led"), led.Options{
			Name: opts.LEDName,
			Root: opts.LEDSysfsRoot,
		})
		illuminator := led.NewIlluminator(driver, logging.GetLogger("led"))

		controller := torch.NewController(torch.Options{
			Illuminator: illuminator,
			Bus:         eventBus,
		})

		hotplug := led.NewManager(driver, controller.SetDeviceCapable, logging.GetLogger("led"))

		startupPolicy := opts.safetyPolicy(logger)
		monitor := safety.NewMonitor(controller, eventBus, nil, startupPolicy)
		controller.SetGuard(monitor)

		powerWatcher := power.NewWatcher(eventBus, power.Options{
			Root:   opts.PowerSysfsRoot,
			Supply: opts.PowerSupply,
		})
		sleepWatcher := systemd.NewSleepWatcher(monitor)
		notifier := systemd.NewNotifier()
		controller.OnStateChange(func(st torch.State) {
			notifier.Status("torch " + st.Mode.String())
		})

		var configWatcher *config.Watcher[config.Runtime]
		if _, statErr := os.Stat(opts.Config); statErr == nil {
			configWatcher = config.NewConfigWatcher(opts.Config, config.LoadRuntime, logging.GetLogger("config"))
			pinned := config.PinnedKeys(opts, cli.Root())
			configWatcher.OnReload(func(rt config.Runtime) {
				logging.ApplyLevels(rt.Logging)
				// File keys layer over the startup policy; flags and env keep winning.
				if policy := rt.Safety.Apply(startupPolicy, pinned); policy != monitor.Snapshot().Policy {
					monitor.SetPolicy(policy)
				}
			})
		}

		apiOpts := &api.Options{
			AuthUsername:          opts.AuthUsername,
			AuthPassword:          opts.AuthPassword,
			Torch:                 controller,
			Safety:                monitor,
			Bus:                   eventBus,
			LEDName:               driver.Name(),
			DefaultStrobeInterval: time.Duration(opts.StrobeDefaultIntervalMs) * time.Millisecond,
		}
		if opts.ObsPrometheusEnabled {
			apiOpts.PrometheusHandler = metrics.Handler()
		}
		server := api.NewServer(apiOpts)

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			monitor.Start()
			go func() {
				if runErr := powerWatcher.Run(ctx); runErr != nil {
					logger.Warn("Power watcher stopped", "error", runErr)
				}
			}()
			go func() {
				if runErr := hotplug.Run(ctx); runErr != nil {
					logger.Warn("LED hotplug watcher stopped", "error", runErr)
				}
			}()
			go func() {
				if runErr := sleepWatcher.Run(ctx); runErr != nil {
					logger.Warn("Sleep watcher stopped", "error", runErr)
				}
			}()
			go notifier.Watchdog(ctx)

			if configWatcher != nil {
				if startErr := configWatcher.Start(); startErr != nil {
					logger.Warn("Config hot reload disabled", "path", opts.Config, "error", startErr)
					configWatcher = nil
				}
			}

			// The daemon is the hosting context; it is active while serving.
			monitor.OnContextActivated("startup")

			logger.Info("Torch ready",
				"version", version.String(),
				"led", driver.Name(),
				"capable", controller.QueryState().DeviceCapable,
				"port", opts.Port)
			notifier.Ready()

			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()

			// Release the LED before anything else goes away.
			monitor.OnContextDeactivated("shutdown")
			if closeErr := controller.Close(); closeErr != nil {
				logger.Warn("Failed to turn torch off", "error", closeErr)
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer stopCancel()
			if stopErr := server.Stop(stopCtx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if configWatcher != nil {
				if stopErr := configWatcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
			cancel()
			monitor.Stop()
		})
	})

	cli.Root().Version = version.Full()
	cli.Root().AddCommand(cmd.CreateDetectCmd())

	cli.Run()
}
