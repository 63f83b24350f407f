package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Approximate quota cost of each call kind.
const (
	SearchCost   = 100
	MetadataCost = 1
)

// ConsumptionPath returns <dataDir>/log_consumo_YYYYMMDD.txt for the given day.
func ConsumptionPath(dataDir string, t time.Time) string {
	return filepath.Join(dataDir, "log_consumo_"+t.Format("20060102")+".txt")
}

// ConsumptionLine formats one polling cycle's estimated quota use.
func ConsumptionLine(t time.Time, searches, metadata int) string {
	return fmt.Sprintf("%s BUSCA:%d METADADOS:%d TOTAL:%d\n",
		t.Format(time.RFC3339), searches, metadata, searches*SearchCost+metadata*MetadataCost)
}

// AppendConsumption appends one line to the day's consumption log.
func AppendConsumption(dataDir string, t time.Time, searches, metadata int) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(ConsumptionPath(dataDir, t), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open consumption log: %w", err)
	}
	if _, err := f.WriteString(ConsumptionLine(t, searches, metadata)); err != nil {
		_ = f.Close()
		return fmt.Errorf("append consumption log: %w", err)
	}
	return f.Close()
}
