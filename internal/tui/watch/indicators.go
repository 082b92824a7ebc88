package watch

import (
	"strings"
	"time"
)

// Ticker rotates once per observed host tick advance. A frozen ticker means
// the polling loop stopped making progress.
type Ticker struct {
	frames    []string
	index     int
	lastTicks int64
	lastMove  time.Time
}

func NewTicker() Ticker {
	return Ticker{
		frames:   []string{"◐", "◓", "◑", "◒"},
		lastMove: time.Now(),
	}
}

// Observe advances the frame when the host tick count moved.
func (t *Ticker) Observe(ticks int64) {
	if ticks == t.lastTicks {
		return
	}
	t.lastTicks = ticks
	t.index = (t.index + 1) % len(t.frames)
	t.lastMove = time.Now()
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Stalled reports whether the tick count has not moved for longer than d.
func (t Ticker) Stalled(d time.Duration) bool {
	return time.Since(t.lastMove) > d
}

// Spinner shows traffic activity with a decaying dot pattern.
type Spinner struct {
	dots      int
	lastEvent time.Time
}

func NewSpinner() Spinner {
	return Spinner{}
}

func (s *Spinner) OnEvent() {
	s.dots = 5
	s.lastEvent = time.Now()
}

// Decay fades the dots based on time since the last event.
func (s *Spinner) Decay() {
	if s.dots == 0 {
		return
	}
	elapsed := time.Since(s.lastEvent)
	s.dots = 5 - int(elapsed/(2*time.Second))
	if s.dots < 0 {
		s.dots = 0
	}
}

func (s Spinner) Render(theme Theme) string {
	var result strings.Builder
	for i := range 5 {
		if i < s.dots {
			result.WriteString(theme.TickerActive.Render("●"))
		} else {
			result.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return result.String()
}

func (s Spinner) LastEvent() time.Time {
	return s.lastEvent
}
