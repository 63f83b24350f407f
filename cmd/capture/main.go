// Command ytchat-capture records the live chat of one video.
//
// Usage:
//
//	ytchat-capture VIDEO_ID
//
// The worker claims the video's marker, writes metadados.csv into the live folder, and appends
// chat pages to chat.csv until the chat ends or it receives SIGINT/SIGTERM. Both are clean
// exits (status 0). A video without an active chat also exits 0. API and storage failures
// exit 1; a wrong argument count exits 2.
//
// Environment Variables:
//
//	YOUTUBE_API_KEYS: credential pool (required)
//	DATA_DIR, MARKER_DIR, MARKER_STRATEGY: output and marker locations
//	CHAT_POLL_INTERVAL: minimum wait between chat pages
//	DB_DSN: optional Postgres sink
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

	"github.com/joho/godotenv"

	"github.com/onnwee/ytchat-collector/capture"
	"github.com/onnwee/ytchat-collector/config"
	"github.com/onnwee/ytchat-collector/db"
	"github.com/onnwee/ytchat-collector/marker"
	"github.com/onnwee/ytchat-collector/telemetry"
	"github.com/onnwee/ytchat-collector/youtubeapi"
)

const usage = "usage: ytchat-capture VIDEO_ID"

func main() {
	_ = godotenv.Load()
	telemetry.SetupLogging(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the worker and returns the process exit status.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	videoID := args[0]

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		return 1
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("ytchat-capture", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdown()

	exec, err := youtubeapi.NewExecutorFromConfig(ctx, cfg)
	if err != nil {
		slog.Error("failed to build youtube client", slog.Any("err", err))
		return 1
	}
	markers, err := marker.New(cfg.MarkerStrategy, cfg.MarkerDir, cfg.MarkerStaleAfter)
	if err != nil {
		slog.Error("invalid marker strategy", slog.Any("err", err))
		return 1
	}

	opts := capture.Options{
		API:          youtubeapi.NewAPI(exec),
		Markers:      markers,
		DataDir:      cfg.DataDir,
		PollInterval: cfg.ChatPollInterval,
	}
	if cfg.DBDsn != "" {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			return 1
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		if err := db.Setup(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			return 1
		}
		opts.Sink = db.NewStore(database)
	}

	res, err := capture.New(opts).Run(ctx, videoID)
	switch {
	case errors.Is(err, capture.ErrNotLive):
		slog.Info("video has no active live chat", slog.String("video_id", videoID))
		return 0
	case err != nil:
		slog.Error("capture failed", slog.String("video_id", videoID), slog.Any("err", err))
		return 1
	}
	slog.Info("capture complete",
		slog.String("video_id", videoID),
		slog.String("run_id", res.RunID),
		slog.String("reason", res.StopReason),
		slog.Int("messages", res.Messages))
	return 0
}
