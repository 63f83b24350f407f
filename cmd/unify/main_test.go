package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onnwee/ytchat-collector/store"
)

func writeLive(t *testing.T, data, id, channel, ts string, n int) {
	t.Helper()
	m := store.Metadata{VideoID: id, Title: "Live " + id, Channel: channel, LiveStartedAt: "2024-05-01T21:00:00Z"}
	dir := store.LiveDir(data, m)
	if err := store.WriteMetadataCSV(dir, m); err != nil {
		t.Fatal(err)
	}
	w, err := store.OpenChat(dir)
	if err != nil {
		t.Fatal(err)
	}
	msgs := make([]store.ChatMessage, n)
	for i := range msgs {
		msgs[i] = store.ChatMessage{VideoID: id, Timestamp: ts, Author: "a", Message: "m"}
	}
	if err := w.Append(msgs); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunWritesDatasetAndSummary(t *testing.T) {
	data := t.TempDir()
	writeLive(t, data, "v1", "Canal A", "2024-05-01T21:10:00Z", 2)
	writeLive(t, data, "v2", "Canal A", "2024-05-02T21:10:00Z", 1)
	writeLive(t, data, "v3", "Canal B", "2024-05-03T21:10:00Z", 3)

	var stdout bytes.Buffer
	if code := run([]string{"-data", data, "-summary"}, &stdout); code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if _, err := os.Stat(filepath.Join(data, store.UnifiedFile)); err != nil {
		t.Fatalf("dataset missing: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"Canal A", "Canal B", "Total", "2024-05-01 21:10:00", "2024-05-03 21:10:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRunCustomOutputWithoutSummary(t *testing.T) {
	data := t.TempDir()
	writeLive(t, data, "v1", "Canal", "2024-05-01T21:10:00Z", 1)
	out := filepath.Join(t.TempDir(), "x.csv")

	var stdout bytes.Buffer
	if code := run([]string{"-data", data, "-out", out}, &stdout); code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("unexpected stdout %q", stdout.String())
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal(err)
	}
}

func TestRunErrors(t *testing.T) {
	var stdout bytes.Buffer
	if code := run([]string{"-data", filepath.Join(t.TempDir(), "missing")}, &stdout); code != 1 {
		t.Errorf("missing data dir exit = %d, want 1", code)
	}
	if code := run([]string{"-nope"}, &stdout); code != 2 {
		t.Errorf("bad flag exit = %d, want 2", code)
	}
}
