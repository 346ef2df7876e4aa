package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/ytdl-client/internal/job"
)

const visibleLogs = 10

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Bold(true)
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

// View implements tea.Model.
func (m Model) View() string {
	sections := []string{
		titleStyle.Render("YouTube Downloader"),
		m.viewForm(),
	}
	if md := m.viewMetadata(); md != "" {
		sections = append(sections, md)
	}
	sections = append(sections, m.viewProgress(), m.viewLogs(), m.viewHelp())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) label(f field, text string) string {
	marker := "  "
	if m.focus == f {
		marker = cursorStyle.Render("▸ ")
	}
	return marker + labelStyle.Render(text)
}

func (m Model) viewForm() string {
	var b strings.Builder
	b.WriteString(m.label(fieldURL, "Video URL") + "\n")
	b.WriteString("  " + m.url.View() + "\n")
	if m.state.URLError != "" {
		b.WriteString("  " + errorStyle.Render(m.state.URLError) + "\n")
	}

	b.WriteString(m.label(fieldFormat, "Format") + "  ")
	for i, f := range job.Formats {
		name := formatLabel(f)
		if i == m.formatIdx {
			name = selStyle.Render(" " + name + " ")
		} else {
			name = mutedStyle.Render(" " + name + " ")
		}
		b.WriteString(name)
	}
	b.WriteString("\n")

	check := "[ ]"
	if m.subtitles {
		check = "[x]"
	}
	b.WriteString(m.label(fieldSubtitles, "Subtitles") + "  " + check + "\n")

	if m.showAdv {
		for i, key := range advancedKeys {
			b.WriteString(m.label(fieldCookies+field(i), key) + "\n")
			b.WriteString("  " + m.advanced[i].View() + "\n")
		}
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func formatLabel(f job.Format) string {
	switch f {
	case job.FormatVideo:
		return "Video"
	case job.FormatAudioMP3:
		return "MP3"
	case job.FormatAudioWAV:
		return "WAV"
	case job.FormatMetadata:
		return "Metadata"
	default:
		return string(f)
	}
}

func (m Model) viewMetadata() string {
	md := m.state.Metadata
	if md == nil {
		return ""
	}
	lines := []string{
		labelStyle.Render(md.Title),
		mutedStyle.Render(fmt.Sprintf("%s · %s · %d views", md.Uploader, formatDuration(md.DurationValue()), md.ViewCount)),
	}
	if len(md.AvailableSubtitles) > 0 {
		lines = append(lines, mutedStyle.Render("Subtitles: "+strings.Join(md.AvailableSubtitles, ", ")))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) viewProgress() string {
	s := m.state
	status := fmt.Sprintf("Status: %s", s.Status)
	if s.JobID != "" {
		status += mutedStyle.Render("  job " + s.JobID)
	}
	lines := []string{status, m.bar.ViewAs(float64(s.Progress) / 100)}
	switch {
	case s.Status == job.StatusCompleted:
		lines = append(lines, okStyle.Render(s.Message))
	case s.Message != "":
		lines = append(lines, s.Message)
	}
	if s.Error != "" {
		lines = append(lines, errorStyle.Render(s.Error))
	}
	if m.err != "" && m.err != s.Error {
		lines = append(lines, errorStyle.Render(m.err))
	}
	if m.notice != "" {
		lines = append(lines, okStyle.Render(m.notice))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) viewLogs() string {
	logs := m.state.Logs
	if len(logs) > visibleLogs {
		logs = logs[len(logs)-visibleLogs:]
	}
	if len(logs) == 0 {
		return panelStyle.Render(mutedStyle.Render("No log entries"))
	}
	lines := make([]string, 0, len(logs))
	for _, entry := range logs {
		line := fmt.Sprintf("%s %s", entry.Timestamp.Format("15:04:05"), entry.Message)
		switch entry.Level {
		case job.LevelError:
			line = errorStyle.Render(line)
		case job.LevelWarning:
			line = warnStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) viewHelp() string {
	return mutedStyle.Render(
		"tab: next field • enter: download • ctrl+t: metadata • ctrl+r: retry • " +
			"ctrl+s: save • ctrl+a: advanced • ctrl+l: clear log • esc: quit",
	)
}
