package store

import (
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// File names inside a live folder.
const (
	MetadataFile = "metadados.csv"
	ChatFile     = "chat.csv"
)

// Slugify strips accents and replaces anything outside [A-Za-z0-9_.-] with '_'.
// An empty result becomes "canal".
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(s) {
		if r > 127 {
			continue
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "canal"
	}
	return b.String()
}

// SplitStart turns an ISO-8601 start time into the "YYYY-MM-DD" and "HH-MM-SS" folder parts.
// Unparseable input falls back to slicing the string; empty input yields two empty parts.
func SplitStart(iso string) (date, clock string) {
	if iso == "" {
		return "", ""
	}
	if t, err := time.Parse(time.RFC3339, iso); err == nil {
		return t.Format("2006-01-02"), t.Format("15-04-05")
	}
	date = iso
	if len(date) > 10 {
		date = date[:10]
	}
	if len(iso) >= 19 {
		clock = strings.ReplaceAll(iso[11:19], ":", "-")
	}
	return date, clock
}

// LiveDirName builds "<channel>__<date>__<time>__<videoID>".
func LiveDirName(channel, startISO, videoID string) string {
	date, clock := SplitStart(startISO)
	return Slugify(channel) + "__" + date + "__" + clock + "__" + videoID
}

// LiveDir returns the folder for one live under dataDir.
func LiveDir(dataDir string, m Metadata) string {
	return filepath.Join(dataDir, LiveDirName(m.Channel, m.LiveStartedAt, m.VideoID))
}

// MetadataJSONPath returns <dataDir>/metadados/metadados_<videoID>.json.
func MetadataJSONPath(dataDir, videoID string) string {
	return filepath.Join(dataDir, "metadados", "metadados_"+videoID+".json")
}
