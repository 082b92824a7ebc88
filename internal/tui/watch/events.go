package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/embedder/internal/events"
)

const streamLines = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("TRAFFIC"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= streamLines {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("TRAFFIC"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeInbound:
		typeStyle = theme.Inbound
	case events.TypeOutbound:
		typeStyle = theme.Outbound
	case events.TypeResponse:
		typeStyle = theme.Reply
	case events.TypeMiss:
		typeStyle = theme.StatusWarn
	case events.TypeLeak:
		typeStyle = theme.StatusFailed
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, describeEvent(e))
}

func describeEvent(e events.Event) string {
	t, err := events.DecodeTraffic(e)
	if err != nil || t.Channel == "" {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	parts := []string{t.Channel}
	if t.Token != "" {
		token := t.Token
		if len(token) > 8 {
			token = token[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", token))
	}
	parts = append(parts, fmt.Sprintf("%dB", t.Bytes))
	if t.Reason != "" {
		parts = append(parts, t.Reason)
	}
	return strings.Join(parts, " ")
}
