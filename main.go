// Command ytchat-collector is the supervisor. It:
//   - Loads configuration and initializes structured logging, metrics and tracing.
//   - Polls every configured channel for a live broadcast on a peak/off-peak schedule.
//   - Claims each new live through a marker file and starts one capture worker per live.
//   - Optionally mirrors live metadata into Postgres.
//   - Exposes /healthz, /readyz, /status and /metrics over HTTP.
//
// Shutdown is graceful on SIGINT/SIGTERM. Running workers are separate processes in their own
// process groups, so a terminal Ctrl+C stops only the supervisor and they keep capturing.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/ytchat-collector/config"
	"github.com/onnwee/ytchat-collector/db"
	"github.com/onnwee/ytchat-collector/marker"
	"github.com/onnwee/ytchat-collector/monitor"
	"github.com/onnwee/ytchat-collector/server"
	"github.com/onnwee/ytchat-collector/store"
	"github.com/onnwee/ytchat-collector/telemetry"
	"github.com/onnwee/ytchat-collector/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	telemetry.SetupLogging(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("ytchat-collector", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("supervisor exited with error", slog.Any("err", err))
		stop()
		shutdown()
		os.Exit(1)
	}
	slog.Info("shutting down")
}

func run(ctx context.Context, cfg *config.Config) error {
	channels, err := store.LoadChannels(cfg.ChannelsFile)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		slog.Warn("channel list is empty", slog.String("file", cfg.ChannelsFile))
	}

	exec, err := youtubeapi.NewExecutorFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("credential pool ready", slog.Int("credentials", exec.PoolSize()), slog.String("component", "youtube_executor"))

	markers, err := marker.New(cfg.MarkerStrategy, cfg.MarkerDir, cfg.MarkerStaleAfter)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.MarkerDir, 0o755); err != nil {
		return err
	}

	opts := monitor.Options{
		API:      youtubeapi.NewAPI(exec),
		Markers:  markers,
		Channels: channels,
		DataDir:  cfg.DataDir,
		Policy: monitor.Policy{
			PeakStart: cfg.PeakStartHour,
			PeakEnd:   cfg.PeakEndHour,
			Short:     cfg.ShortInterval,
			Long:      cfg.LongInterval,
		},
		Concurrency:     cfg.CheckConcurrency,
		CredentialIndex: exec.CurrentIndex,
		Launcher: monitor.ExecLauncher{
			Binary: cfg.CaptureBinary,
			LogDir: filepath.Join(cfg.DataDir, "logs"),
			// Workers must agree with the supervisor on where lives and markers go.
			Env: []string{
				"DATA_DIR=" + cfg.DataDir,
				"MARKER_DIR=" + cfg.MarkerDir,
				"MARKER_STRATEGY=" + cfg.MarkerStrategy,
			},
		},
	}
	if cfg.StatusTable {
		opts.StatusOut = os.Stdout
	}

	var database *sql.DB
	if cfg.DBDsn != "" {
		database, err = db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			return err
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Setup(ctx, database); err != nil {
			return err
		}
		opts.Sink = db.NewStore(database)
	}

	sup := monitor.NewSupervisor(opts)

	if cfg.HTTPAddr != "" {
		go func() {
			if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(sup, database)); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	return sup.Run(ctx)
}
