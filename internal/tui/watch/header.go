package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// stallAfter is how long the tick count may stand still before the
// header reports the loop as stalled.
const stallAfter = 10 * time.Second

// HealthState tracks host health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	ConfigDigest  string
	Ticks         int64
	Channels      int
	Queued        int
	Workers       int
	Running       int64
	Pending       int64
	Panics        int64
	OpenHandles   int
	LeakedHandles int64
	DroppedEvents int64
	Connected     bool
	LastCheck     time.Time
}

func (h *HealthState) apply(msg healthMsg) {
	h.Status = msg.Status
	h.UptimeSeconds = msg.UptimeSeconds
	h.ConfigDigest = msg.ConfigDigest
	h.Ticks = msg.Host.Ticks
	h.Channels = msg.Host.Channels
	h.Queued = msg.Host.Queued
	h.Workers = msg.Host.Pool.Workers
	h.Running = msg.Host.Pool.Running
	h.Pending = msg.Host.Pool.Pending
	h.Panics = msg.Host.Pool.Panics
	h.OpenHandles = msg.Host.Handles.Open
	h.LeakedHandles = msg.Host.Handles.Leaked
	h.DroppedEvents = msg.DroppedEvents
	h.Connected = true
	h.LastCheck = time.Now()
}

func renderHeader(health HealthState, ticker Ticker, spinner Spinner, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	switch {
	case !health.Connected:
		statusText = theme.StatusFailed.Render("CONNECTING")
	case health.Status != "ok" && health.Status != "":
		statusText = theme.StatusFailed.Render("DEGRADED")
	case health.LeakedHandles > 0:
		statusText = theme.StatusWarn.Render("LEAKING")
	case ticker.Stalled(stallAfter):
		statusText = theme.StatusWarn.Render("STALLED")
	}

	uptime := formatDuration(time.Duration(health.UptimeSeconds) * time.Second)

	lastEventStr := "never"
	if !spinner.LastEvent().IsZero() {
		ago := time.Since(spinner.LastEvent()).Round(time.Second)
		lastEventStr = fmt.Sprintf("%s ago", ago)
	}

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" EMBEDDER WATCH %s", tickerStr)

	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  up %s  ticks %d  channels %d  queued %d",
		statusText, uptime, health.Ticks, health.Channels, health.Queued)

	poolLine := fmt.Sprintf(" workers %d running %d pending %d panics %d  handles open %d leaked %d",
		health.Workers, health.Running, health.Pending, health.Panics,
		health.OpenHandles, health.LeakedHandles)

	activityLine := fmt.Sprintf(" Last event: %s %s", lastEventStr, spinner.Render(theme))
	if health.DroppedEvents > 0 {
		activityLine += theme.StatusWarn.Render(fmt.Sprintf("  dropped %d", health.DroppedEvents))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		poolLine,
		activityLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
