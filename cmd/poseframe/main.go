// cmd/poseframe/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlverezYari/poseframe/internal/capture"
	"github.com/AlverezYari/poseframe/internal/config"
	"github.com/AlverezYari/poseframe/internal/domain"
	"github.com/AlverezYari/poseframe/internal/logging"
	"github.com/AlverezYari/poseframe/internal/metrics"
	"github.com/AlverezYari/poseframe/internal/persist"
	"github.com/AlverezYari/poseframe/internal/sampler"
	"github.com/AlverezYari/poseframe/internal/server"
	"github.com/AlverezYari/poseframe/internal/telemetry"
	"github.com/AlverezYari/poseframe/internal/tui"
	"github.com/AlverezYari/poseframe/internal/verify"
	"github.com/AlverezYari/poseframe/pkg/camera"
	"github.com/AlverezYari/poseframe/pkg/camera/opencv"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

type options struct {
	configPath  string
	saveConfig  bool
	firstName   string
	lastName    string
	device      string
	framesDir   string
	port        string
	headless    bool
	listDevices bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	flags := pflag.NewFlagSet("poseframe", pflag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "", "path to the config file (default: user config dir)")
	flags.BoolVar(&opts.saveConfig, "save-config", false, "write the effective config back to the config file")
	flags.StringVar(&opts.firstName, "first", "", "first name of the person being enrolled")
	flags.StringVar(&opts.lastName, "last", "", "last name of the person being enrolled")
	flags.StringVar(&opts.device, "device", "", "camera device index (overrides config)")
	flags.StringVar(&opts.framesDir, "frames-dir", "", "replay still images from this directory instead of a camera")
	flags.StringVar(&opts.port, "port", "", "preview server port (overrides config)")
	flags.BoolVar(&opts.headless, "headless", false, "run one session without the TUI; requires --first and --last")
	flags.BoolVar(&opts.listDevices, "list-devices", false, "list camera devices and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "poseframe: %v\n", err)
		return 2
	}

	if opts.listDevices {
		if err := listDevices(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning for cameras: %v\n", err)
			return 1
		}
		return 0
	}

	cfg, configPath, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	if opts.saveConfig {
		if err := config.Save(cfg, configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			return 1
		}
	}

	logBuffer := logging.NewBuffer(0)
	logger, logFile, err := logging.Open(cfg.Log.File, cfg.Log.Level, logBuffer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		return 1
	}
	defer logFile.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "poseframe")
	if err != nil {
		logger.Error("tracing setup failed", "err", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		fmt.Fprintf(os.Stderr, "Error starting poseframe: %v\n", err)
		return 1
	}
	defer app.close()

	if opts.headless {
		return runHeadless(ctx, app.sequencer, domain.Identity{FirstName: opts.firstName, LastName: opts.lastName}, logger)
	}

	updates, unsubscribe := app.sequencer.Subscribe()
	defer unsubscribe()

	model := tui.New(tui.Options{
		Controller: app.sequencer,
		Updates:    updates,
		Server:     app.server,
		Logs:       logBuffer,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(opts options) (*config.AppConfig, string, error) {
	path := opts.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}

	if opts.device != "" {
		cfg.CameraConfig.DeviceID = opts.device
	}
	if opts.framesDir != "" {
		cfg.CameraConfig.FramesDir = opts.framesDir
	}
	if opts.port != "" {
		cfg.ServerPort = opts.port
	}
	return cfg, path, cfg.Validate()
}

func listDevices(w io.Writer) error {
	devices, err := opencv.NewManager(nil).ScanDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "No cameras found")
		return nil
	}
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\n", d.ID, d.Name)
	}
	return nil
}

type app struct {
	sequencer *capture.Sequencer
	server    *server.Server
	logger    *slog.Logger
}

func newApp(cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	width, height, err := cfg.CameraConfig.StreamConfig.Dimensions()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	var manager camera.Manager
	deviceID := cfg.CameraConfig.DeviceID
	if cfg.CameraConfig.FramesDir != "" {
		manager = camera.NewStillsManager()
		deviceID = cfg.CameraConfig.FramesDir
	} else {
		manager = opencv.NewManager(logger.With("component", "camera"))
	}

	encoder := sampler.JPEGEncoder{Quality: cfg.Capture.JPEGQuality}

	// The sequencer and the server refer to each other: the server is the
	// camera sink and reads the sequencer's snapshots.
	a := &app{logger: logger}
	a.server = server.New(server.Options{
		Host:     cfg.ServerIP,
		Port:     cfg.ServerPort,
		Session:  lazySession{a},
		Gatherer: registry,
		Logger:   logger,
	})

	cam := camera.NewSession(manager, deviceID, camera.StreamConfig{
		Width:     width,
		Height:    height,
		Framerate: cfg.CameraConfig.StreamConfig.FPS,
	}, a.server, logger.With("component", "camera"))

	a.sequencer = capture.New(capture.Config{
		Camera:          cam,
		Verifier:        verify.New(cfg.Services.VerifyURL, cfg.Services.Timeout.Std(), logger),
		Persister:       persist.New(cfg.Services.SaveURL, cfg.Services.Timeout.Std(), logger),
		Encoder:         encoder,
		Logger:          logger,
		Metrics:         m,
		SampleInterval:  cfg.Capture.SampleInterval.Std(),
		TransitionDelay: cfg.Capture.TransitionDelay.Std(),
		SaveDelay:       cfg.Capture.SaveDelay.Std(),
	})

	if err := a.server.Start(); err != nil {
		// The preview is optional; capture still works without it.
		logger.Error("error starting server", "err", err)
	}
	return a, nil
}

func (a *app) close() {
	if err := a.sequencer.Close(); err != nil {
		a.logger.Warn("sequencer close failed", "err", err)
	}
	if a.server.IsRunning() {
		if err := a.server.Stop(); err != nil {
			a.logger.Warn("server stop failed", "err", err)
		}
	}
}

// lazySession defers to the sequencer once it exists.
type lazySession struct{ a *app }

func (l lazySession) Snapshot() capture.Snapshot { return l.a.sequencer.Snapshot() }

func (l lazySession) Subscribe() (<-chan capture.Snapshot, func()) {
	return l.a.sequencer.Subscribe()
}

// runHeadless drives a single session to the end. It returns 0 when the
// user is saved and 1 when the session stops or the save fails.
func runHeadless(ctx context.Context, seq *capture.Sequencer, identity domain.Identity, logger *slog.Logger) int {
	updates, unsubscribe := seq.Subscribe()
	defer unsubscribe()

	if err := seq.Start(ctx, identity); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting capture: %v\n", err)
		return 1
	}

	last := ""
	for {
		select {
		case <-ctx.Done():
			seq.Stop()
			fmt.Fprintln(os.Stderr, capture.InstructionStopped)
			return 1
		case snap, ok := <-updates:
			if !ok {
				return 1
			}
			if line := headlessLine(snap); line != last {
				fmt.Println(line)
				last = line
			}
			switch {
			case snap.State == capture.StateComplete:
				logger.Info("headless session complete", "user_id", snap.UserID)
				return 0
			case snap.State == capture.StateStopped:
				return 1
			case snap.Saving && snap.ErrorMessage != "":
				seq.Stop()
				return 1
			}
		}
	}
}

func headlessLine(snap capture.Snapshot) string {
	line := fmt.Sprintf("[%d/%d] %s", snap.CapturedCount(), domain.SlotCount, snap.Instruction)
	if snap.TransitionMessage != "" {
		line += " | " + snap.TransitionMessage
	}
	if snap.ErrorMessage != "" {
		line += " | " + snap.ErrorMessage
	}
	return line
}
