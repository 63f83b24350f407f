package store

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Channel is one monitored YouTube channel.
type Channel struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

type channelsFile struct {
	Channels []Channel `yaml:"channels"`
}

// LoadChannels reads the monitored channel list. Files ending in .yaml/.yml use
// {channels: [{id, name}]}; anything else is one channel id or URL per line, with blank lines
// and '#' comments ignored. Duplicates keep their first occurrence.
func LoadChannels(path string) ([]Channel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	var raw []Channel
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var cf channelsFile
		if err := yaml.Unmarshal(b, &cf); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		raw = cf.Channels
	default:
		sc := bufio.NewScanner(bytes.NewReader(b))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			raw = append(raw, Channel{ID: line})
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(raw))
	out := make([]Channel, 0, len(raw))
	for _, c := range raw {
		c.ID = NormalizeChannelID(c.ID)
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out, nil
}

// NormalizeChannelID accepts a bare id or a youtube.com/channel/<id> URL.
func NormalizeChannelID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "/channel/"); i >= 0 {
		s = s[i+len("/channel/"):]
		if j := strings.IndexAny(s, "/?#"); j >= 0 {
			s = s[:j]
		}
	}
	return s
}
