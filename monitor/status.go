package monitor

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	statusTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusEmptyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	statusHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)
	statusCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	statusBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
)

// RenderStatus writes the table of tracked lives: channel, title and elapsed time (HH:MM).
func RenderStatus(w io.Writer, lives []TrackedLive, now time.Time) {
	fmt.Fprintln(w, StatusView(lives, now))
}

// StatusView renders the status table as a string.
func StatusView(lives []TrackedLive, now time.Time) string {
	if len(lives) == 0 {
		return statusEmptyStyle.Render("Nenhuma live ativa")
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusBorderStyle).
		Headers("Canal", "Título (até 60 car.)", "Duração").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return statusHeaderStyle
			}
			if col == 2 {
				return statusCellStyle.Align(lipgloss.Right)
			}
			return statusCellStyle
		})
	for _, l := range lives {
		t.Row(l.Channel, truncate(l.Title, 60), Elapsed(now.Sub(l.DetectedAt)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, statusTitleStyle.Render("Lives ativas"), t.String())
}

// Elapsed formats d as HH:MM. Negative durations count as zero.
func Elapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
