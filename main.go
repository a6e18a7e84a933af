package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/smazurov/camctl/cmd"
	"github.com/smazurov/camctl/internal/api"
	"github.com/smazurov/camctl/internal/commands"
	"github.com/smazurov/camctl/internal/config"
	"github.com/smazurov/camctl/internal/events"
	"github.com/smazurov/camctl/internal/hal/sim"
	"github.com/smazurov/camctl/internal/led"
	"github.com/smazurov/camctl/internal/logging"
	"github.com/smazurov/camctl/internal/metrics"
	"github.com/smazurov/camctl/internal/mp4"
	"github.com/smazurov/camctl/internal/natsbridge"
	"github.com/smazurov/camctl/internal/orientation"
	"github.com/smazurov/camctl/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (empty disables auth)" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// NATS settings
	NatsEnabled     bool   `help:"Serve commands and events over NATS" default:"true" toml:"nats.enabled" env:"NATS_ENABLED"`
	NatsEmbedded    bool   `help:"Run an embedded NATS server" default:"true" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NatsURL         string `help:"External NATS server URL, used when not embedded" default:"nats://127.0.0.1:4222" toml:"nats.url" env:"NATS_URL"`
	NatsPort        int    `help:"Embedded NATS server port" default:"4222" toml:"nats.port" env:"NATS_PORT"`
	NatsPassword    string `help:"Password of the embedded server's client user, enables subject authorization" toml:"nats.password" env:"NATS_PASSWORD"`
	NatsCallTimeout string `help:"Timeout of one NATS command" default:"30s" toml:"nats.call_timeout" env:"NATS_CALL_TIMEOUT"`

	// Recording settings
	RecordingMaxShortSide   int `help:"Largest short side of the recording size" default:"1080" toml:"recording.max_short_side" env:"RECORDING_MAX_SHORT_SIDE"`
	RecordingVideoBitRate   int `help:"Default video bit rate" default:"4000000" toml:"recording.video_bit_rate" env:"RECORDING_VIDEO_BIT_RATE"`
	RecordingVideoFrameRate int `help:"Default video frame rate" default:"30" toml:"recording.video_frame_rate" env:"RECORDING_VIDEO_FRAME_RATE"`
	RecordingAudioRate      int `help:"Default audio sample rate" default:"44100" toml:"recording.audio_sample_rate" env:"RECORDING_AUDIO_SAMPLE_RATE"`

	// Repair settings
	RepairEnabled      bool `help:"Repair the audio timestamp defect after recording" default:"true" toml:"repair.enabled" env:"REPAIR_ENABLED"`
	RepairAnomalySlack int  `help:"How far a first sample delta may exceed the second" default:"10000" toml:"repair.anomaly_slack" env:"REPAIR_ANOMALY_SLACK"`

	// Features settings
	FeaturesActivityLED bool   `help:"Show camera activity on a board LED" default:"false" toml:"features.activity_led" env:"FEATURES_ACTIVITY_LED"`
	FeaturesLEDName     string `help:"LED under /sys/class/leds (empty detects the board)" default:"" toml:"features.led_name" env:"FEATURES_LED_NAME"`

	// Simulated device settings
	SimRotation        int    `help:"Simulated display rotation in degrees (0, 90, 180, 270)" default:"0" toml:"sim.rotation" env:"SIM_ROTATION"`
	SimRecordingLength string `help:"Length of simulated recordings" default:"2s" toml:"sim.recording_length" env:"SIM_RECORDING_LENGTH"`
	SimTimestampDefect bool   `help:"Simulate the corrupt first audio timestamp" default:"false" toml:"sim.timestamp_defect" env:"SIM_TIMESTAMP_DEFECT"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera    string `help:"Camera controller logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingRecording string `help:"Recording logging level" default:"info" toml:"logging.recording" env:"LOGGING_RECORDING"`
	LoggingRepair    string `help:"Container repair logging level" default:"info" toml:"logging.repair" env:"LOGGING_REPAIR"`
	LoggingCommands  string `help:"Command dispatcher logging level" default:"info" toml:"logging.commands" env:"LOGGING_COMMANDS"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingNats      string `help:"NATS logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
	LoggingSim       string `help:"Simulated device logging level" default:"info" toml:"logging.sim" env:"LOGGING_SIM"`
	LoggingLED       string `help:"LED logging level" default:"info" toml:"logging.led" env:"LOGGING_LED"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"camera":    o.LoggingCamera,
			"recording": o.LoggingRecording,
			"repair":    o.LoggingRepair,
			"commands":  o.LoggingCommands,
			"api":       o.LoggingAPI,
			"nats":      o.LoggingNats,
			"sim":       o.LoggingSim,
			"led":       o.LoggingLED,
		},
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		rotation := orientation.FromDegrees(opts.SimRotation)
		if rotation.Degrees() != opts.SimRotation {
			logger.Warn("Unsupported simulated rotation", "rotation", opts.SimRotation, "using", rotation.Degrees())
		}
		recordingLength, err := time.ParseDuration(opts.SimRecordingLength)
		if err != nil {
			recordingLength = 2 * time.Second
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		system := sim.New(sim.Options{
			Rotation:          rotation,
			RecordingDuration: recordingLength,
			TimestampDefect:   opts.SimTimestampDefect,
		})

		dispatcherOpts := []commands.Option{
			commands.WithDefaults(commands.Defaults{
				VideoBitRate:       opts.RecordingVideoBitRate,
				VideoFrameRate:     opts.RecordingVideoFrameRate,
				AudioSampleRate:    opts.RecordingAudioRate,
				MaxRecordShortSide: opts.RecordingMaxShortSide,
			}),
		}
		if opts.RepairEnabled {
			dispatcherOpts = append(dispatcherOpts, commands.WithRepairer(mp4.Repairer{
				Slack:  uint32(max(opts.RepairAnomalySlack, 0)),
				Logger: logging.GetLogger("repair"),
			}))
		}
		dispatcher := commands.New(system.Backend(), eventBus, dispatcherOpts...)

		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector := metrics.NewCollector(registry)

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Dispatcher:        dispatcher,
			EventBus:          eventBus,
			PrometheusHandler: metrics.Handler(registry),
		})

		var natsServer *natsbridge.Server
		var bridge *natsbridge.Bridge
		if opts.NatsEnabled {
			natsURL := opts.NatsURL
			if opts.NatsEmbedded {
				natsServer = natsbridge.NewServer(natsbridge.ServerOptions{
					Port:           opts.NatsPort,
					ClientPassword: opts.NatsPassword,
					Logger:         logging.GetLogger("nats"),
				})
				natsURL = natsServer.URL(natsbridge.BridgeUser)
			}
			bridge = natsbridge.NewBridge(natsURL, dispatcher, eventBus, logging.GetLogger("nats"))
			if timeout, parseErr := time.ParseDuration(opts.NatsCallTimeout); parseErr == nil {
				bridge.SetCallTimeout(timeout)
			}
		}

		// Initialize LED control if enabled
		var ledManager *led.Manager
		if opts.FeaturesActivityLED {
			ledLogger := logging.GetLogger("led")
			ledManager = led.NewManager(led.New(opts.FeaturesLEDName, ledLogger), eventBus, ledLogger)
		}

		notifier := systemd.NewNotifier(logger)
		watchdogCtx, stopWatchdog := context.WithCancel(context.Background())

		// Watch the config file so log levels follow edits without a restart
		watcher := config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logger,
			config.WithEqual(logging.Config.Equal),
			config.WithErrorHandler[logging.Config](func(err error) {
				logger.Warn("Ignoring invalid logging config", "error", err)
			}))
		watcher.OnReload(func(cfg logging.Config) {
			logging.SetLevels(cfg.Level, cfg.Modules)
			logger.Info("Log levels reloaded", "level", cfg.Level)
		})

		hooks.OnStart(func() {
			collector.Start(eventBus)
			if ledManager != nil {
				ledManager.Start()
			}

			if natsServer != nil {
				if startErr := natsServer.Start(); startErr != nil {
					logger.Error("Failed to start embedded NATS server", "error", startErr)
					os.Exit(1)
				}
			}
			if bridge != nil {
				if startErr := bridge.Start(); startErr != nil {
					logger.Warn("NATS bridge unavailable", "error", startErr)
				}
			}

			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Config watcher not started", "path", opts.Config, "error", startErr)
			}

			go notifier.Watchdog(watchdogCtx)
			notifier.Ready()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			stopWatchdog()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Release the camera after the HTTP server stops accepting commands
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if disposeErr := dispatcher.Dispose(ctx); disposeErr != nil {
				logger.Warn("Error disposing camera", "error", disposeErr)
			}
			cancel()

			if bridge != nil {
				bridge.Stop()
			}
			if natsServer != nil {
				natsServer.Stop()
			}
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}
			if ledManager != nil {
				ledManager.Stop()
			}
			collector.Stop()
		})
	})

	cli.Root().Use = "camctl"
	cli.Root().Short = "Single-camera controller with HTTP and NATS command surfaces"

	cli.Root().AddCommand(cmd.CreateRepairCmd())
	cli.Root().AddCommand(cmd.CreateInspectCmd())
	cli.Root().AddCommand(cmd.CreateCallCmd())

	// Run the CLI
	cli.Run()
}
