// Command unify joins every captured live into one dataset.
//
// Each live folder's chat.csv is joined with its single-row metadados.csv and the rows are
// written to dataset_unificado.csv. Folders missing a file, or with a metadata file that
// doesn't hold exactly one row, are skipped and logged.
//
// Usage:
//
//	unify [-data DIR] [-out FILE] [-summary]
//
// Flags:
//
//	-data: capture output root (default $DATA_DIR or "dados")
//	-out: unified CSV path (default <data>/dataset_unificado.csv)
//	-summary: print per-channel lives and messages and the collection period
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/joho/godotenv"

	"github.com/onnwee/ytchat-collector/store"
	"github.com/onnwee/ytchat-collector/telemetry"
)

func main() {
	_ = godotenv.Load()
	telemetry.SetupLogging(os.Stderr)
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	defaultData := os.Getenv("DATA_DIR")
	if defaultData == "" {
		defaultData = "dados"
	}
	fs := flag.NewFlagSet("unify", flag.ContinueOnError)
	dataDir := fs.String("data", defaultData, "capture output root")
	out := fs.String("out", "", "unified CSV path (default <data>/"+store.UnifiedFile+")")
	summary := fs.Bool("summary", false, "print per-channel totals after unifying")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *out == "" {
		*out = filepath.Join(*dataDir, store.UnifiedFile)
	}

	res, err := store.Unify(*dataDir, *out)
	if err != nil {
		slog.Error("unify failed", slog.Any("error", err))
		return 1
	}
	for _, s := range res.Skipped {
		slog.Warn("live folder skipped", slog.String("dir", s.Dir), slog.String("reason", s.Reason))
	}
	slog.Info("dataset written",
		slog.String("path", *out),
		slog.Int("lives", res.Lives),
		slog.Int("messages", res.Messages),
		slog.Int("skipped", len(res.Skipped)))

	if !*summary {
		return 0
	}
	d, err := store.Describe(*out)
	if err != nil {
		slog.Error("describe failed", slog.Any("error", err))
		return 1
	}
	fmt.Fprintln(stdout, renderSummary(d))
	return 0
}

var (
	summaryHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	summaryCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func renderSummary(d store.Description) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Canal", "Lives", "Mensagens").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return summaryHeaderStyle
			}
			if col > 0 {
				return summaryCellStyle.Align(lipgloss.Right)
			}
			return summaryCellStyle
		})
	for _, c := range d.Channels {
		t.Row(c.Channel, strconv.Itoa(c.Lives), strconv.Itoa(c.Messages))
	}
	t.Row("Total", strconv.Itoa(d.Lives), strconv.Itoa(d.Messages))

	period := "Período: sem mensagens datadas"
	if !d.First.IsZero() {
		period = fmt.Sprintf("Período: %s a %s", d.First.Format(time.DateTime), d.Last.Format(time.DateTime))
	}
	return lipgloss.JoinVertical(lipgloss.Left, t.String(), period)
}
