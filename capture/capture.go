// Package capture records the live chat of one video into its live folder. A Worker claims the
// video's marker, writes the metadata CSV, then polls chat pages and appends them to chat.csv
// until the chat ends or the context is cancelled. The marker is released on every exit path.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/ytchat-collector/marker"
	"github.com/onnwee/ytchat-collector/store"
	"github.com/onnwee/ytchat-collector/telemetry"
	"github.com/onnwee/ytchat-collector/youtubeapi"
)

// DefaultPollInterval is the wait between chat pages when the API suggests less.
const DefaultPollInterval = 30 * time.Second

var (
	// ErrNotLive means the video has no active live chat.
	ErrNotLive = errors.New("capture: video has no active live chat")
	// ErrChatEnded means the API reported the chat as finished or gone.
	ErrChatEnded = youtubeapi.ErrChatEnded
)

// ChatAPI is the subset of youtubeapi.API the worker needs.
type ChatAPI interface {
	Video(ctx context.Context, videoID string) (*youtubeapi.VideoInfo, error)
	ChatPage(ctx context.Context, videoID, chatID, pageToken string) (*youtubeapi.ChatPage, error)
}

// Sink optionally mirrors what the worker writes to disk.
type Sink interface {
	InsertLive(ctx context.Context, m store.Metadata) error
	InsertChatMessages(ctx context.Context, msgs []store.ChatMessage) error
}

// Options configures a Worker.
type Options struct {
	API          ChatAPI
	Markers      marker.Coordinator
	DataDir      string
	PollInterval time.Duration
	// Sink is optional.
	Sink Sink
}

// Result summarises a finished capture.
type Result struct {
	RunID    string
	VideoID  string
	Dir      string
	Pages    int
	Messages int
	Skipped  int
	// StopReason is "offline", "chat_ended" or "cancelled".
	StopReason string
}

// Worker captures one video per Run call.
type Worker struct {
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a worker with defaults applied.
func New(o Options) *Worker {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return &Worker{opts: o, sleep: sleepCtx}
}

// Run captures videoID until its chat ends. Cancellation is a clean stop: rows already fetched
// are flushed, the marker is released and nil is returned.
func (w *Worker) Run(ctx context.Context, videoID string) (res Result, err error) {
	res = Result{RunID: uuid.NewString(), VideoID: videoID}
	ctx = telemetry.WithCorrelation(ctx, res.RunID)
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("video_id", videoID), slog.String("component", "capture"))

	if err := w.opts.Markers.Acquire(videoID); err != nil {
		return res, fmt.Errorf("acquire marker: %w", err)
	}
	defer func() {
		if rerr := w.opts.Markers.Release(videoID); rerr != nil {
			logger.Warn("release marker", slog.Any("err", rerr))
		}
	}()

	info, err := w.opts.API.Video(ctx, videoID)
	if err != nil {
		if ctx.Err() != nil {
			res.StopReason = "cancelled"
			return res, nil
		}
		return res, err
	}
	if info.LiveChatID == "" {
		return res, fmt.Errorf("%w: %s", ErrNotLive, videoID)
	}
	meta := info.Metadata
	res.Dir = store.LiveDir(w.opts.DataDir, meta)
	if err := store.WriteMetadataCSV(res.Dir, meta); err != nil {
		return res, fmt.Errorf("write metadata: %w", err)
	}
	if w.opts.Sink != nil {
		if err := w.opts.Sink.InsertLive(ctx, meta); err != nil {
			logger.Warn("store live in database", slog.Any("err", err))
		}
	}

	chat, err := store.OpenChat(res.Dir)
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := chat.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close chat csv: %w", cerr)
		}
		logger.Info("chat capture finished",
			slog.String("reason", res.StopReason),
			slog.Int("messages", res.Messages),
			slog.Int("pages", res.Pages),
			slog.String("dir", res.Dir))
	}()

	logger.Info("capturing chat", slog.String("title", meta.Title), slog.String("channel", meta.Channel), slog.String("dir", res.Dir))
	res.StopReason, err = w.poll(ctx, videoID, info.LiveChatID, chat, &res, logger)
	return res, err
}

func (w *Worker) poll(ctx context.Context, videoID, chatID string, chat *store.ChatWriter, res *Result, logger *slog.Logger) (string, error) {
	token := ""
	for {
		page, err := w.opts.API.ChatPage(ctx, videoID, chatID, token)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return "cancelled", nil
			case errors.Is(err, ErrChatEnded):
				logger.Info("live chat ended", slog.Any("reason", err))
				return "chat_ended", nil
			default:
				return "error", err
			}
		}
		res.Pages++
		if err := chat.Append(page.Messages); err != nil {
			return "error", err
		}
		if w.opts.Sink != nil && len(page.Messages) > 0 {
			if err := w.opts.Sink.InsertChatMessages(ctx, page.Messages); err != nil {
				logger.Warn("store chat messages in database", slog.Any("err", err))
			}
		}
		res.Messages = chat.Rows()
		res.Skipped += page.Skipped
		telemetry.Add(telemetry.MessagesCaptured, len(page.Messages))
		telemetry.Add(telemetry.MessagesSkipped, page.Skipped)
		if len(page.Messages) > 0 {
			logger.Info("messages collected", slog.Int("page", len(page.Messages)), slog.Int("total", res.Messages))
		}
		if page.Skipped > 0 {
			logger.Info("messages without text ignored", slog.Int("count", page.Skipped))
		}
		if err := w.opts.Markers.Heartbeat(videoID); err != nil {
			logger.Warn("marker heartbeat", slog.Any("err", err))
		}
		if page.OfflineAt != "" {
			logger.Info("live chat went offline", slog.String("offline_at", page.OfflineAt))
			return "offline", nil
		}
		if page.NextPageToken != "" {
			token = page.NextPageToken
		}
		if err := w.sleep(ctx, max(w.opts.PollInterval, page.PollInterval)); err != nil {
			return "cancelled", nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
