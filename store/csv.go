package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// WriteMetadataCSV writes the single-row metadados.csv into dir, replacing any previous file.
func WriteMetadataCSV(dir string, m Metadata) error {
	w, err := NewAtomicWriter(filepath.Join(dir, MetadataFile))
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll([][]string{MetadataHeader, m.Row()}); err != nil {
		_ = w.Abort()
		return fmt.Errorf("write metadata csv: %w", err)
	}
	return w.Commit()
}

// WriteMetadataJSON writes the metadata snapshot with a two-space indent.
func WriteMetadataJSON(path string, m Metadata) error {
	w, err := NewAtomicWriter(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		_ = w.Abort()
		return fmt.Errorf("encode metadata json: %w", err)
	}
	return w.Commit()
}

// ChatWriter appends rows to a chat.csv, writing the header only when the file is new.
// Every Append is flushed so a crash loses at most the batch in flight.
type ChatWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	rows int
}

// OpenChat opens (or creates) dir/chat.csv for appending.
func OpenChat(dir string) (*ChatWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create live dir: %w", err)
	}
	path := filepath.Join(dir, ChatFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open chat csv: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	cw := &ChatWriter{f: f, w: csv.NewWriter(f)}
	if st.Size() == 0 {
		if err := cw.write([][]string{ChatHeader}); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return cw, nil
}

// Append writes msgs and flushes.
func (c *ChatWriter) Append(msgs []ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, m.Row())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.write(rows); err != nil {
		return err
	}
	c.rows += len(msgs)
	return nil
}

// Rows reports how many messages this writer appended.
func (c *ChatWriter) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *ChatWriter) write(rows [][]string) error {
	if err := c.w.WriteAll(rows); err != nil {
		return fmt.Errorf("append chat csv: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (c *ChatWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return err
	}
	return c.f.Close()
}

// readCSV loads every record of a CSV file, header included.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}
