package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Launcher starts a capture worker for one video and returns its pid.
type Launcher interface {
	Launch(ctx context.Context, videoID string) (int, error)
}

// ExecLauncher runs the capture binary as a detached child process, in its own process group,
// with the video id as its only argument. Output goes to <LogDir>/capture_<videoID>.log.
type ExecLauncher struct {
	Binary string
	LogDir string
	// Env is appended to the supervisor's environment.
	Env []string
}

// Launch starts the worker. The child is reaped in the background so it never lingers as a
// zombie, which would keep its pid looking alive to the marker.
func (l ExecLauncher) Launch(ctx context.Context, videoID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	bin := l.Binary
	if bin == "" {
		return 0, fmt.Errorf("capture binary not configured")
	}
	if resolved, err := exec.LookPath(bin); err == nil {
		bin = resolved
	}
	// Workers outlive the round that started them; cancellation is delivered by signal.
	cmd := exec.Command(bin, videoID) //nolint:gosec // binary comes from configuration
	cmd.Env = append(os.Environ(), l.Env...)
	detach(cmd)

	var logFile *os.File
	if l.LogDir != "" {
		if err := os.MkdirAll(l.LogDir, 0o755); err != nil {
			return 0, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(l.LogDir, "capture_"+videoID+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("open capture log: %w", err)
		}
		logFile = f
		cmd.Stdout, cmd.Stderr = f, f
	}
	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return 0, fmt.Errorf("start %s: %w", bin, err)
	}
	pid := cmd.Process.Pid
	go func() {
		err := cmd.Wait()
		if logFile != nil {
			_ = logFile.Close()
		}
		logger := slog.Default().With(slog.String("component", "monitor"), slog.String("video_id", videoID), slog.Int("pid", pid))
		if err != nil {
			logger.Warn("capture worker exited with error", slog.Any("err", err))
			return
		}
		logger.Info("capture worker exited")
	}()
	return pid, nil
}
