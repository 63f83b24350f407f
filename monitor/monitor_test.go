package monitor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/ytchat-collector/marker"
	"github.com/onnwee/ytchat-collector/store"
	"github.com/onnwee/ytchat-collector/youtubeapi"
)

func TestPolicyIntervalFor(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		hour int
		want time.Duration
	}{
		{0, 10 * time.Minute},
		{21, 10 * time.Minute},
		{22, 10 * time.Minute},
		{23, 10 * time.Minute},
		{1, time.Hour},
		{12, time.Hour},
		{20, time.Hour},
	}
	for _, tt := range tests {
		if got := p.IntervalFor(tt.hour); got != tt.want {
			t.Errorf("IntervalFor(%d) = %v, want %v", tt.hour, got, tt.want)
		}
	}

	day := Policy{PeakStart: 9, PeakEnd: 17, Short: time.Minute, Long: time.Hour}
	if !day.InPeak(9) || !day.InPeak(17) || day.InPeak(18) || day.InPeak(8) {
		t.Error("non-wrapping window misclassified")
	}
}

type fakeAPI struct {
	mu       sync.Mutex
	live     map[string]*youtubeapi.LiveRef // channel -> live
	videos   map[string]*youtubeapi.VideoInfo
	ended    map[string]bool
	searchFn func(channelID string) error
	searches int
}

func (f *fakeAPI) SearchLive(ctx context.Context, channelID string) (*youtubeapi.LiveRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchFn != nil {
		if err := f.searchFn(channelID); err != nil {
			return nil, err
		}
	}
	return f.live[channelID], nil
}

func (f *fakeAPI) Video(ctx context.Context, videoID string) (*youtubeapi.VideoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[videoID]
	if !ok {
		return nil, youtubeapi.ErrVideoNotFound
	}
	return v, nil
}

func (f *fakeAPI) IsStillLive(ctx context.Context, videoID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.ended[videoID], nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	launched []string
	err      error
	pid      int
}

func (l *fakeLauncher) Launch(ctx context.Context, videoID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	l.launched = append(l.launched, videoID)
	return l.pid, nil
}

func newFixture(t *testing.T) (*fakeAPI, *fakeLauncher, *marker.PIDMarkers, string) {
	t.Helper()
	api := &fakeAPI{
		live: map[string]*youtubeapi.LiveRef{"UC1": {VideoID: "vid1", Title: "Ao vivo", Channel: "Canal Um"}},
		videos: map[string]*youtubeapi.VideoInfo{"vid1": {
			Metadata:   store.Metadata{VideoID: "vid1", Channel: "Canal Um", Title: "Ao vivo"},
			LiveChatID: "chat1",
		}},
		ended: map[string]bool{},
	}
	data := t.TempDir()
	// The worker pid is this test process, so the marker stays active after handover.
	return api, &fakeLauncher{pid: os.Getpid()}, marker.NewPIDMarkers(filepath.Join(data, "chats")), data
}

func TestRunOnceLaunchesOneWorkerPerLive(t *testing.T) {
	api, launcher, markers, data := newFixture(t)
	s := NewSupervisor(Options{
		API: api, Markers: markers, Launcher: launcher, DataDir: data,
		Channels: []store.Channel{{ID: "UC1"}, {ID: "UC2"}},
	})

	stats, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Searches != 2 || stats.Metadata != 1 || stats.Launched != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(launcher.launched) != 1 || launcher.launched[0] != "vid1" {
		t.Fatalf("launched = %v", launcher.launched)
	}
	if _, err := os.Stat(store.MetadataJSONPath(data, "vid1")); err != nil {
		t.Errorf("metadata json missing: %v", err)
	}
	if active, _ := markers.IsActive("vid1"); !active {
		t.Error("marker should be held by the worker")
	}
	b, err := os.ReadFile(store.ConsumptionPath(data, time.Now()))
	if err != nil || !strings.Contains(string(b), "BUSCA:2 METADADOS:1 TOTAL:201") {
		t.Errorf("consumption log = %q, %v", b, err)
	}

	// Still live: the next round only checks status, no search and no second worker.
	stats, _ = s.RunOnce(context.Background())
	if stats.Searches != 1 || len(launcher.launched) != 1 {
		t.Fatalf("second round stats=%+v launched=%v", stats, launcher.launched)
	}
	if lives := s.Lives(); len(lives) != 1 || lives[0].VideoID != "vid1" {
		t.Fatalf("lives = %+v", lives)
	}

	// Ended: forgotten, then searched again.
	api.ended["vid1"] = true
	delete(api.live, "UC1")
	stats, _ = s.RunOnce(context.Background())
	if stats.Searches != 2 || len(s.Lives()) != 0 {
		t.Fatalf("after end stats=%+v lives=%v", stats, s.Lives())
	}
	if !s.Ready() || s.Snapshot().Rounds != 3 {
		t.Errorf("snapshot = %+v", s.Snapshot())
	}
}

func TestRunOnceSkipsLiveAlreadyCaptured(t *testing.T) {
	api, launcher, markers, data := newFixture(t)
	if err := markers.Acquire("vid1"); err != nil {
		t.Fatal(err)
	}
	s := NewSupervisor(Options{API: api, Markers: markers, Launcher: launcher, DataDir: data, Channels: []store.Channel{{ID: "UC1"}}})
	stats, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(launcher.launched) != 0 || stats.Metadata != 0 {
		t.Fatalf("launched=%v stats=%+v", launcher.launched, stats)
	}
	if len(s.Lives()) != 1 {
		t.Fatal("live captured elsewhere should still be tracked")
	}
}

func TestRunOnceRestartsWorkerWhenMarkerGoesStale(t *testing.T) {
	tests := []struct {
		name    string
		markers func(dir string) marker.Coordinator
		// kill makes the first worker's marker inactive.
		kill func(t *testing.T, dir string)
	}{
		{
			name:    "mtime heartbeat stopped",
			markers: func(dir string) marker.Coordinator { return marker.NewMtimeMarkers(dir, 20*time.Minute) },
			kill: func(t *testing.T, dir string) {
				old := time.Now().Add(-21 * time.Minute)
				if err := os.Chtimes(marker.Path(dir, "vid1"), old, old); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name:    "pid marker gone",
			markers: func(dir string) marker.Coordinator { return marker.NewPIDMarkers(dir) },
			kill: func(t *testing.T, dir string) {
				if err := os.Remove(marker.Path(dir, "vid1")); err != nil {
					t.Fatal(err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, launcher, _, data := newFixture(t)
			dir := filepath.Join(data, "chats")
			markers := tt.markers(dir)
			s := NewSupervisor(Options{API: api, Markers: markers, Launcher: launcher, DataDir: data, Channels: []store.Channel{{ID: "UC1"}}})

			if _, err := s.RunOnce(context.Background()); err != nil {
				t.Fatal(err)
			}
			// Worker healthy: nothing relaunched.
			if stats, _ := s.RunOnce(context.Background()); stats.Launched != 0 || len(launcher.launched) != 1 {
				t.Fatalf("healthy round stats=%+v launched=%v", stats, launcher.launched)
			}

			tt.kill(t, dir)
			stats, err := s.RunOnce(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if stats.Launched != 1 || stats.Searches != 0 {
				t.Fatalf("restart round stats = %+v", stats)
			}
			if len(launcher.launched) != 2 || launcher.launched[1] != "vid1" {
				t.Fatalf("launched = %v", launcher.launched)
			}
			if active, _ := markers.IsActive("vid1"); !active {
				t.Error("restarted worker should hold the marker")
			}
			if lives := s.Lives(); len(lives) != 1 || lives[0].WorkerPID != os.Getpid() {
				t.Errorf("lives = %+v", lives)
			}
		})
	}
}

func TestRunOnceReleasesMarkerWhenLaunchFails(t *testing.T) {
	api, launcher, markers, data := newFixture(t)
	launcher.err = errors.New("exec: not found")
	s := NewSupervisor(Options{API: api, Markers: markers, Launcher: launcher, DataDir: data, Channels: []store.Channel{{ID: "UC1"}}})
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if active, _ := markers.IsActive("vid1"); active {
		t.Fatal("marker should be released after failed launch")
	}
	if len(s.Lives()) != 0 {
		t.Fatal("failed launch should not be tracked")
	}
}

func TestRunOnceContinuesAfterChannelError(t *testing.T) {
	api, launcher, markers, data := newFixture(t)
	api.live["UC2"] = &youtubeapi.LiveRef{VideoID: "vid2"}
	api.videos["vid2"] = &youtubeapi.VideoInfo{Metadata: store.Metadata{VideoID: "vid2", Channel: "Dois"}}
	api.searchFn = func(id string) error {
		if id == "UC1" {
			return errors.New("forbidden")
		}
		return nil
	}
	s := NewSupervisor(Options{
		API: api, Markers: markers, Launcher: launcher, DataDir: data,
		Channels: []store.Channel{{ID: "UC1"}, {ID: "UC2"}}, Concurrency: 2,
	})
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(launcher.launched) != 1 || launcher.launched[0] != "vid2" {
		t.Fatalf("launched = %v", launcher.launched)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	api, launcher, markers, data := newFixture(t)
	s := NewSupervisor(Options{API: api, Markers: markers, Launcher: launcher, DataDir: data, Channels: []store.Channel{{ID: "UC1"}}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	deadline := time.Now().Add(5 * time.Second)
	for !s.Ready() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestStatusView(t *testing.T) {
	now := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	if got := StatusView(nil, now); !strings.Contains(got, "Nenhuma live ativa") {
		t.Errorf("empty view = %q", got)
	}
	var buf bytes.Buffer
	RenderStatus(&buf, []TrackedLive{{Channel: "Canal", Title: strings.Repeat("x", 80), DetectedAt: now.Add(-125 * time.Minute)}}, now)
	out := buf.String()
	if !strings.Contains(out, "Canal") || !strings.Contains(out, "02:05") {
		t.Errorf("view = %q", out)
	}
	if strings.Contains(out, strings.Repeat("x", 61)) {
		t.Error("title not truncated to 60 characters")
	}
}

func TestElapsed(t *testing.T) {
	tests := map[time.Duration]string{
		0:                            "00:00",
		59 * time.Second:             "00:00",
		61 * time.Minute:             "01:01",
		26*time.Hour + 5*time.Minute: "26:05",
		-time.Minute:                 "00:00",
	}
	for d, want := range tests {
		if got := Elapsed(d); got != want {
			t.Errorf("Elapsed(%v) = %q, want %q", d, got, want)
		}
	}
}
