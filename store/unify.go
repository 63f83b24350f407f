package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// UnifiedFile is the default output name of Unify.
const UnifiedFile = "dataset_unificado.csv"

// UnifiedHeader is the chat header followed by every metadata column except id_video
// (already present) and descricao (dropped to keep the dataset compact).
var UnifiedHeader = func() []string {
	h := append([]string(nil), ChatHeader...)
	for _, c := range MetadataHeader {
		if c == "id_video" || c == "descricao" {
			continue
		}
		h = append(h, c)
	}
	return h
}()

// SkippedDir is a live folder Unify left out, with the reason.
type SkippedDir struct {
	Dir    string
	Reason string
}

// UnifyResult reports what Unify wrote.
type UnifyResult struct {
	Lives    int
	Messages int
	Skipped  []SkippedDir
}

// Unify joins every live folder's chat.csv with its single-row metadados.csv and writes the
// result to outPath. Folders missing either file, or whose metadata doesn't have exactly one
// row, are skipped and reported.
func Unify(dataDir, outPath string) (UnifyResult, error) {
	var res UnifyResult
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return res, fmt.Errorf("read data dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	aw, err := NewAtomicWriter(outPath)
	if err != nil {
		return res, err
	}
	w := csv.NewWriter(aw)
	if err := w.Write(UnifiedHeader); err != nil {
		_ = aw.Abort()
		return res, err
	}

	for _, name := range names {
		dir := filepath.Join(dataDir, name)
		chatPath, metaPath := filepath.Join(dir, ChatFile), filepath.Join(dir, MetadataFile)
		if !exists(chatPath) || !exists(metaPath) {
			res.Skipped = append(res.Skipped, SkippedDir{Dir: name, Reason: "missing chat.csv or metadados.csv"})
			continue
		}
		meta, err := readCSV(metaPath)
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedDir{Dir: name, Reason: err.Error()})
			continue
		}
		if rows := len(meta) - 1; rows != 1 {
			res.Skipped = append(res.Skipped, SkippedDir{Dir: name, Reason: fmt.Sprintf("metadata has %d rows", rows)})
			continue
		}
		extra := metaExtras(meta[0], meta[1])
		chat, err := readCSV(chatPath)
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedDir{Dir: name, Reason: err.Error()})
			continue
		}
		n := 0
		for _, r := range dataRows(chat) {
			row := make([]string, len(ChatHeader), len(UnifiedHeader))
			copy(row, r)
			row = append(row, extra...)
			if err := w.Write(row); err != nil {
				_ = aw.Abort()
				return res, err
			}
			n++
		}
		res.Lives++
		res.Messages += n
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = aw.Abort()
		return res, err
	}
	return res, aw.Commit()
}

// metaExtras picks the metadata values for UnifiedHeader's trailing columns by header name.
func metaExtras(header, row []string) []string {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	tail := UnifiedHeader[len(ChatHeader):]
	out := make([]string, len(tail))
	for i, c := range tail {
		if j, ok := idx[c]; ok && j < len(row) {
			out[i] = row[j]
		}
	}
	return out
}

// ChannelStats aggregates one channel in a unified dataset.
type ChannelStats struct {
	Channel  string
	Lives    int
	Messages int
}

// Description summarises a unified dataset.
type Description struct {
	Channels []ChannelStats
	Lives    int
	Messages int
	// First and Last bound the chat timestamps; zero when none parsed.
	First time.Time
	Last  time.Time
}

// Describe reads a file written by Unify and aggregates it per channel.
func Describe(path string) (Description, error) {
	var d Description
	rows, err := readCSV(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return d, fmt.Errorf("unified dataset not found: %w", err)
		}
		return d, err
	}
	if len(rows) == 0 {
		return d, nil
	}
	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		col[h] = i
	}
	ci, vi, ti := col["canal"], col["id_video"], col["timestamp"]

	stats := map[string]*ChannelStats{}
	lives := map[string]map[string]bool{}
	for _, r := range dataRows(rows) {
		ch, vid := field(r, ci), field(r, vi)
		s, ok := stats[ch]
		if !ok {
			s = &ChannelStats{Channel: ch}
			stats[ch] = s
			lives[ch] = map[string]bool{}
		}
		s.Messages++
		d.Messages++
		if !lives[ch][vid] {
			lives[ch][vid] = true
			s.Lives++
			d.Lives++
		}
		if ts, err := time.Parse(time.RFC3339Nano, field(r, ti)); err == nil {
			if d.First.IsZero() || ts.Before(d.First) {
				d.First = ts
			}
			if ts.After(d.Last) {
				d.Last = ts
			}
		}
	}
	for _, s := range stats {
		d.Channels = append(d.Channels, *s)
	}
	sort.Slice(d.Channels, func(i, j int) bool { return d.Channels[i].Channel < d.Channels[j].Channel })
	return d, nil
}

func dataRows(rows [][]string) [][]string {
	if len(rows) <= 1 {
		return nil
	}
	return rows[1:]
}

func field(r []string, i int) string {
	if i >= 0 && i < len(r) {
		return r[i]
	}
	return ""
}

func exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
