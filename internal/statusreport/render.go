package statusreport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/drover-dev/drover/internal/feature"
)

// Output formats accepted by Render.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	staleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	statusStyle = map[feature.Status]lipgloss.Style{
		feature.StatusPending:    lipgloss.NewStyle().Faint(true),
		feature.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		feature.StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		feature.StatusFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		feature.StatusBlocked:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		feature.StatusSkipped:    lipgloss.NewStyle().Faint(true),
	}
)

// Render formats a snapshot in the requested format.
func Render(s *Snapshot, format string) (string, error) {
	switch format {
	case FormatText, "":
		return RenderText(s), nil
	case FormatJSON:
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal status: %w", err)
		}
		return string(data) + "\n", nil
	case FormatYAML:
		data, err := yaml.Marshal(s)
		if err != nil {
			return "", fmt.Errorf("marshal status: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown status format %q (want text, json, or yaml)", format)
	}
}

// RenderText formats a snapshot for a terminal.
func RenderText(s *Snapshot) string {
	var b strings.Builder

	header := "Run status"
	if s.RunID != "" {
		header = fmt.Sprintf("Run %s", s.RunID)
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(summaryLine(s)))
	b.WriteString("\n\n")

	for _, row := range s.Features {
		badge := statusStyle[row.Status].Render(fmt.Sprintf("%-11s", row.Status))
		b.WriteString(fmt.Sprintf("  %s %s  %s", badge, row.ID, row.Title))
		if row.Attempts > 1 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d attempts)", row.Attempts)))
		}
		if row.CommitHash != "" {
			b.WriteString(dimStyle.Render("  " + row.CommitHash))
		}
		b.WriteString("\n")
		if row.LastError != "" && row.Status != feature.StatusDone {
			b.WriteString(errStyle.Render("      " + firstLine(row.LastError)))
			b.WriteString("\n")
		}
	}

	if len(s.Recent) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Recent progress"))
		b.WriteString("\n")
		for _, e := range s.Recent {
			line := fmt.Sprintf("  %s  %-8s %s", e.Timestamp.Format("2006-01-02 15:04"), e.Outcome, e.FeatureID)
			if e.Summary != "" {
				line += "  " + firstLine(e.Summary)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if s.LedgerStale {
		b.WriteString("\n")
		b.WriteString(staleStyle.Render("progress file unreadable; recent history omitted"))
		b.WriteString("\n")
	}

	return b.String()
}

func summaryLine(s *Snapshot) string {
	parts := []string{fmt.Sprintf("%d/%d done", s.Counts[feature.StatusDone], s.Total)}
	for _, st := range []feature.Status{
		feature.StatusInProgress,
		feature.StatusFailed,
		feature.StatusBlocked,
		feature.StatusSkipped,
		feature.StatusPending,
	} {
		if n := s.Counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, st))
		}
	}
	if s.Complete {
		parts = append(parts, "complete")
	}
	return strings.Join(parts, ", ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
