package watch

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/embedder/internal/events"
)

// ChannelState accumulates traffic seen for one channel.
type ChannelState struct {
	Name      string
	Inbound   int
	Outbound  int
	Replies   int
	Misses    int
	Leaks     int
	BytesIn   int
	BytesOut  int
	LastEvent time.Time
}

// updateChannelState folds one traffic event into states. Non-traffic events
// and undecodable bodies are ignored.
func updateChannelState(states map[string]*ChannelState, e events.Event) bool {
	switch e.Type {
	case events.TypeInbound, events.TypeOutbound, events.TypeResponse, events.TypeMiss, events.TypeLeak:
	default:
		return false
	}
	t, err := events.DecodeTraffic(e)
	if err != nil || t.Channel == "" {
		return false
	}

	st, ok := states[t.Channel]
	if !ok {
		st = &ChannelState{Name: t.Channel}
		states[t.Channel] = st
	}
	st.LastEvent = e.At

	switch e.Type {
	case events.TypeInbound:
		st.Inbound++
		st.BytesIn += t.Bytes
	case events.TypeOutbound:
		st.Outbound++
		st.BytesOut += t.Bytes
	case events.TypeResponse:
		st.Replies++
		st.BytesOut += t.Bytes
	case events.TypeMiss:
		st.Misses++
	case events.TypeLeak:
		st.Leaks++
	}
	return true
}

func newChannelTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Channel", Width: 24},
			{Title: "In", Width: 6},
			{Title: "Out", Width: 6},
			{Title: "Reply", Width: 6},
			{Title: "Miss", Width: 5},
			{Title: "Leak", Width: 5},
			{Title: "Bytes", Width: 12},
			{Title: "Last", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// channelRows renders states sorted by channel name.
func channelRows(states map[string]*ChannelState) []table.Row {
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		st := states[name]
		last := "-"
		if !st.LastEvent.IsZero() {
			last = st.LastEvent.Format("15:04:05")
		}
		rows = append(rows, table.Row{
			st.Name,
			fmt.Sprint(st.Inbound),
			fmt.Sprint(st.Outbound),
			fmt.Sprint(st.Replies),
			fmt.Sprint(st.Misses),
			fmt.Sprint(st.Leaks),
			fmt.Sprintf("%d/%d", st.BytesIn, st.BytesOut),
			last,
		})
	}
	return rows
}

func renderChannels(t table.Model, theme Theme, width int) string {
	innerWidth := width - 4
	body := t.View()
	if len(t.Rows()) == 0 {
		body = theme.Dim.Render("  No channel traffic yet...")
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("CHANNELS"),
		body,
	)
	return theme.Border.Width(innerWidth).Render(content)
}
