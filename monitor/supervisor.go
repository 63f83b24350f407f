// Package monitor runs the supervisor loop: every round it checks each configured channel for
// a live stream, records metadata for new lives, and launches one capture worker per live
// through the marker coordinator. Rounds are spaced by Policy.
package monitor

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/ytchat-collector/marker"
	"github.com/onnwee/ytchat-collector/store"
	"github.com/onnwee/ytchat-collector/telemetry"
	"github.com/onnwee/ytchat-collector/youtubeapi"
)

// LiveAPI is the subset of youtubeapi.API the supervisor needs.
type LiveAPI interface {
	SearchLive(ctx context.Context, channelID string) (*youtubeapi.LiveRef, error)
	Video(ctx context.Context, videoID string) (*youtubeapi.VideoInfo, error)
	IsStillLive(ctx context.Context, videoID string) (bool, error)
}

// LiveSink receives metadata of new lives (the optional database).
type LiveSink interface {
	InsertLive(ctx context.Context, m store.Metadata) error
}

// TrackedLive is a live the supervisor believes is still on air.
type TrackedLive struct {
	ChannelID  string    `json:"channel_id"`
	Channel    string    `json:"channel"`
	VideoID    string    `json:"video_id"`
	Title      string    `json:"title"`
	DetectedAt time.Time `json:"detected_at"`
	WorkerPID  int       `json:"worker_pid,omitempty"`
}

// RoundStats counts the API calls of one round, for the consumption log.
type RoundStats struct {
	Searches int
	Metadata int
	Launched int
}

// Options configures a Supervisor.
type Options struct {
	API      LiveAPI
	Markers  marker.Coordinator
	Launcher Launcher
	// Sink is optional.
	Sink        LiveSink
	Channels    []store.Channel
	DataDir     string
	Policy      Policy
	Concurrency int
	// StatusOut receives the status table after every round; nil disables it.
	StatusOut io.Writer
	// CredentialIndex reports the credential in use, for Snapshot.
	CredentialIndex func() int
}

// Supervisor owns the set of tracked lives. It is safe for Snapshot to be called while
// Run is in progress.
type Supervisor struct {
	opts Options
	now  func() time.Time

	mu        sync.Mutex
	tracked   map[string]TrackedLive // by channel id
	rounds    int
	lastRound time.Time
	lastStats RoundStats
}

// NewSupervisor validates nothing beyond filling defaults; callers pass wired collaborators.
func NewSupervisor(o Options) *Supervisor {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Policy == (Policy{}) {
		o.Policy = DefaultPolicy()
	}
	return &Supervisor{opts: o, now: time.Now, tracked: make(map[string]TrackedLive)}
}

// Run executes rounds until ctx is cancelled. Cancellation returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	slog.Info("monitoring channels",
		slog.Int("channels", len(s.opts.Channels)),
		slog.Int("concurrency", s.opts.Concurrency),
		slog.String("component", "monitor"))
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("round failed", slog.Any("err", err), slog.String("component", "monitor"))
		}
		wait := s.opts.Policy.IntervalFor(s.now().Hour())
		slog.Info("waiting for next round", slog.Duration("interval", wait), slog.String("component", "monitor"))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// RunOnce checks every channel once. Per-channel API errors are logged and do not stop the
// round; only cancellation is returned.
func (s *Supervisor) RunOnce(ctx context.Context) (RoundStats, error) {
	var searches, metas, launched atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, ch := range s.opts.Channels {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			r := s.checkChannel(gctx, ch)
			searches.Add(int64(r.Searches))
			metas.Add(int64(r.Metadata))
			launched.Add(int64(r.Launched))
			return nil
		})
	}
	err := g.Wait()

	stats := RoundStats{Searches: int(searches.Load()), Metadata: int(metas.Load()), Launched: int(launched.Load())}
	now := s.now()
	if lerr := store.AppendConsumption(s.opts.DataDir, now, stats.Searches, stats.Metadata); lerr != nil {
		slog.Warn("consumption log", slog.Any("err", lerr), slog.String("component", "monitor"))
	}

	s.mu.Lock()
	s.rounds++
	s.lastRound = now
	s.lastStats = stats
	active := len(s.tracked)
	s.mu.Unlock()

	telemetry.Inc(telemetry.PollCycles)
	telemetry.SetActiveLives(active)
	if s.opts.StatusOut != nil {
		RenderStatus(s.opts.StatusOut, s.Lives(), now)
	}
	slog.Info("round complete",
		slog.Int("searches", stats.Searches),
		slog.Int("metadata", stats.Metadata),
		slog.Int("launched", stats.Launched),
		slog.Int("active", active),
		slog.String("component", "monitor"))
	if err == nil {
		err = ctx.Err()
	}
	return stats, err
}

func (s *Supervisor) checkChannel(ctx context.Context, ch store.Channel) RoundStats {
	var st RoundStats
	logger := slog.Default().With(slog.String("channel_id", ch.ID), slog.String("component", "monitor"))

	if live, ok := s.trackedFor(ch.ID); ok {
		still, err := s.opts.API.IsStillLive(ctx, live.VideoID)
		st.Metadata++
		switch {
		case err != nil && !errors.Is(err, youtubeapi.ErrVideoNotFound):
			logger.Warn("live status check failed", slog.String("video_id", live.VideoID), slog.Any("err", err))
			return st
		case err == nil && still:
			s.ensureWorker(ctx, live, logger, &st)
			return st
		}
		logger.Info("live ended", slog.String("video_id", live.VideoID))
		s.forget(ch.ID)
	}

	st.Searches++
	ref, err := s.opts.API.SearchLive(ctx, ch.ID)
	if err != nil {
		logger.Warn("live search failed", slog.Any("err", err))
		return st
	}
	if ref == nil {
		return st
	}
	logger = logger.With(slog.String("video_id", ref.VideoID))

	if active, err := s.opts.Markers.IsActive(ref.VideoID); err != nil {
		logger.Warn("marker check failed", slog.Any("err", err))
		return st
	} else if active {
		logger.Debug("chat already being captured")
		s.track(TrackedLive{ChannelID: ch.ID, Channel: firstNonEmpty(ch.Name, ref.Channel), VideoID: ref.VideoID, Title: ref.Title, DetectedAt: s.now()})
		return st
	}

	info, err := s.opts.API.Video(ctx, ref.VideoID)
	st.Metadata++
	if err != nil {
		logger.Warn("metadata fetch failed", slog.Any("err", err))
		return st
	}
	meta := info.Metadata
	if err := store.WriteMetadataJSON(store.MetadataJSONPath(s.opts.DataDir, ref.VideoID), meta); err != nil {
		logger.Warn("write metadata json", slog.Any("err", err))
	}
	if s.opts.Sink != nil {
		if err := s.opts.Sink.InsertLive(ctx, meta); err != nil {
			logger.Warn("store live in database", slog.Any("err", err))
		}
	}
	telemetry.Inc(telemetry.LivesDetected)
	logger.Info("new live", slog.String("channel", meta.Channel), slog.String("title", ref.Title))

	pid, err := s.launch(ctx, ref.VideoID, logger)
	if err != nil {
		return st
	}
	st.Launched++
	s.track(TrackedLive{
		ChannelID:  ch.ID,
		Channel:    firstNonEmpty(meta.Channel, ch.Name),
		VideoID:    ref.VideoID,
		Title:      ref.Title,
		DetectedAt: s.now(),
		WorkerPID:  pid,
	})
	return st
}

// ensureWorker relaunches the capture of a still-live video whose marker went stale, which
// happens when the worker crashed or stopped heartbeating.
func (s *Supervisor) ensureWorker(ctx context.Context, live TrackedLive, logger *slog.Logger, st *RoundStats) {
	logger = logger.With(slog.String("video_id", live.VideoID))
	active, err := s.opts.Markers.IsActive(live.VideoID)
	if err != nil {
		logger.Warn("marker check failed", slog.Any("err", err))
		return
	}
	if active {
		return
	}
	logger.Warn("capture worker gone while live continues, restarting", slog.Int("previous_pid", live.WorkerPID))
	pid, err := s.launch(ctx, live.VideoID, logger)
	if err != nil {
		return
	}
	st.Launched++
	live.WorkerPID = pid
	s.track(live)
}

// launch claims the marker, starts the worker and hands the marker over to it. A failed
// launch releases the claim so the next round can retry.
func (s *Supervisor) launch(ctx context.Context, videoID string, logger *slog.Logger) (int, error) {
	ok, err := marker.TryAcquire(s.opts.Markers, videoID)
	if err != nil {
		logger.Error("claim marker", slog.Any("err", err))
		return 0, err
	}
	if !ok {
		logger.Info("chat already being captured")
		return 0, errors.New("marker held")
	}
	pid, err := s.opts.Launcher.Launch(ctx, videoID)
	if err != nil {
		telemetry.Inc(telemetry.CapturesFailed)
		logger.Error("launch capture worker", slog.Any("err", err))
		if rerr := s.opts.Markers.Release(videoID); rerr != nil {
			logger.Warn("release marker after failed launch", slog.Any("err", rerr))
		}
		return 0, err
	}
	switch err := s.opts.Markers.Reassign(videoID, pid); {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("capture worker already finished", slog.Int("pid", pid))
	case err != nil:
		logger.Warn("reassign marker to worker", slog.Int("pid", pid), slog.Any("err", err))
	}
	telemetry.Inc(telemetry.CapturesStarted)
	logger.Info("chat capture started", slog.Int("pid", pid))
	return pid, nil
}

func (s *Supervisor) trackedFor(channelID string) (TrackedLive, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tracked[channelID]
	return l, ok
}

func (s *Supervisor) track(l TrackedLive) {
	if len(l.Title) > 0 {
		l.Title = truncate(l.Title, 60)
	}
	s.mu.Lock()
	s.tracked[l.ChannelID] = l
	s.mu.Unlock()
}

func (s *Supervisor) forget(channelID string) {
	s.mu.Lock()
	delete(s.tracked, channelID)
	s.mu.Unlock()
}

// Lives returns the tracked lives ordered by channel.
func (s *Supervisor) Lives() []TrackedLive {
	s.mu.Lock()
	out := make([]TrackedLive, 0, len(s.tracked))
	for _, l := range s.tracked {
		out = append(out, l)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Snapshot is the supervisor state exposed over HTTP.
type Snapshot struct {
	Channels        int           `json:"channels"`
	Rounds          int           `json:"rounds"`
	LastRound       *time.Time    `json:"last_round,omitempty"`
	NextInterval    string        `json:"next_interval"`
	CredentialIndex int           `json:"credential_index"`
	LastSearches    int           `json:"last_searches"`
	LastMetadata    int           `json:"last_metadata"`
	Lives           []TrackedLive `json:"lives"`
}

// Snapshot returns a copy of the current state.
func (s *Supervisor) Snapshot() Snapshot {
	lives := s.Lives()
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Channels:        len(s.opts.Channels),
		Rounds:          s.rounds,
		NextInterval:    s.opts.Policy.IntervalFor(s.now().Hour()).String(),
		CredentialIndex: -1,
		LastSearches:    s.lastStats.Searches,
		LastMetadata:    s.lastStats.Metadata,
		Lives:           lives,
	}
	if !s.lastRound.IsZero() {
		t := s.lastRound
		snap.LastRound = &t
	}
	if s.opts.CredentialIndex != nil {
		snap.CredentialIndex = s.opts.CredentialIndex()
	}
	return snap
}

// Ready reports whether at least one round has completed.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rounds > 0
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
