package watch

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/embedder/internal/events"
)

func trafficEvent(t *testing.T, id int64, typ string, tr events.Traffic) events.Event {
	t.Helper()
	if tr.Bytes == 0 {
		tr.Bytes = len(tr.Payload)
	}
	hub := events.NewHub(1)
	ev := hub.Publish(typ, tr)
	ev.ID = id
	return ev
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"id: 7",
		"event: traffic.inbound",
		`data: {"channel":"app/echo","bytes":3}`,
		"",
		"id: 8",
		"event: traffic.response",
		`data: {"channel":"app/echo","bytes":3}`,
		"",
		"id: 9",
		"event: partial",
	}, "\n")

	var got []events.Event
	last := readSSE(strings.NewReader(stream), func(ev events.Event) { got = append(got, ev) })

	require.Len(t, got, 2)
	assert.Equal(t, int64(8), last)
	assert.Equal(t, events.TypeInbound, got[0].Type)
	assert.Equal(t, int64(7), got[0].ID)
	assert.JSONEq(t, `{"channel":"app/echo","bytes":3}`, string(got[1].Data))
	assert.False(t, got[0].At.IsZero())
}

func TestUpdateChannelState(t *testing.T) {
	states := map[string]*ChannelState{}

	assert.True(t, updateChannelState(states, trafficEvent(t, 1, events.TypeInbound, events.Traffic{Channel: "app/echo", Payload: []byte("abc")})))
	assert.True(t, updateChannelState(states, trafficEvent(t, 2, events.TypeResponse, events.Traffic{Channel: "app/echo", Payload: []byte("abcd")})))
	assert.True(t, updateChannelState(states, trafficEvent(t, 3, events.TypeMiss, events.Traffic{Channel: "app/none"})))
	assert.True(t, updateChannelState(states, trafficEvent(t, 4, events.TypeLeak, events.Traffic{Channel: "app/echo", Token: "t"})))
	assert.False(t, updateChannelState(states, events.Event{Type: "other", Data: []byte(`{"channel":"x"}`)}))
	assert.False(t, updateChannelState(states, events.Event{Type: events.TypeInbound, Data: []byte(`not json`)}))

	require.Len(t, states, 2)
	echo := states["app/echo"]
	assert.Equal(t, 1, echo.Inbound)
	assert.Equal(t, 1, echo.Replies)
	assert.Equal(t, 1, echo.Leaks)
	assert.Equal(t, 3, echo.BytesIn)
	assert.Equal(t, 4, echo.BytesOut)
	assert.Equal(t, 1, states["app/none"].Misses)

	rows := channelRows(states)
	require.Len(t, rows, 2)
	assert.Equal(t, "app/echo", rows[0][0])
	assert.Equal(t, "3/4", rows[0][6])
}

func TestModelTracksEvents(t *testing.T) {
	m := New("http://unused", "")
	var model tea.Model = *m

	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model, _ = model.Update(eventMsg(trafficEvent(t, 5, events.TypeInbound, events.Traffic{Channel: "app/echo", Token: "0123456789", Payload: []byte("hi")})))
	model, _ = model.Update(eventMsg(trafficEvent(t, 6, events.TypeMiss, events.Traffic{Channel: "app/ghost"})))

	got := model.(Model)
	assert.Equal(t, int64(6), got.lastID)
	assert.Len(t, got.eventLog, 2)
	assert.Equal(t, events.TypeMiss, got.eventLog[0].Type)
	assert.Len(t, got.table.Rows(), 2)
	assert.True(t, got.health.Connected)

	view := got.View()
	for _, needle := range []string{"EMBEDDER WATCH", "CHANNELS", "TRAFFIC", "app/echo", "app/ghost", "[01234567]"} {
		assert.Contains(t, view, needle)
	}
}

func TestModelDisconnectSchedulesReconnect(t *testing.T) {
	m := New("http://unused", "")
	var model tea.Model = *m

	model, _ = model.Update(eventMsg(events.Event{ID: 12, Type: "x", Data: []byte("{}")}))
	model, cmd := model.Update(sseDisconnectedMsg{lastID: 12})
	require.NotNil(t, cmd)
	got := model.(Model)
	assert.False(t, got.health.Connected)
	assert.Contains(t, got.lastError, "reconnecting")

	_, cmd = got.Update(reconnectMsg{lastID: 3})
	assert.NotNil(t, cmd)
}

func TestModelAppliesHealth(t *testing.T) {
	m := New("http://unused", "")
	var model tea.Model = *m

	var h healthMsg
	h.Status = "ok"
	h.UptimeSeconds = 75
	h.Host.Ticks = 42
	h.Host.Channels = 3
	h.Host.Handles.Leaked = 1
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model, _ = model.Update(h)

	got := model.(Model)
	assert.Equal(t, int64(42), got.health.Ticks)
	assert.Equal(t, 3, got.health.Channels)
	view := got.View()
	assert.Contains(t, view, "LEAKING")
	assert.Contains(t, view, "1m 15s")
}

func TestFetchHealthSendsKey(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"status":"ok","uptime_seconds":3,"host":{"ticks":9,"channels":2}}`))
	}))
	defer srv.Close()

	msg := fetchHealth(srv.URL, "k")
	h, ok := msg.(healthMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, int64(9), h.Host.Ticks)
}

func TestSpinnerDecay(t *testing.T) {
	s := NewSpinner()
	s.OnEvent()
	assert.Equal(t, 5, s.dots)
	s.lastEvent = time.Now().Add(-5 * time.Second)
	s.Decay()
	assert.Equal(t, 3, s.dots)
	s.lastEvent = time.Now().Add(-time.Minute)
	s.Decay()
	assert.Equal(t, 0, s.dots)
}

func TestTickerObserve(t *testing.T) {
	tk := NewTicker()
	first := tk.Current()
	tk.Observe(0)
	assert.Equal(t, first, tk.Current())
	tk.Observe(10)
	assert.NotEqual(t, first, tk.Current())
	assert.False(t, tk.Stalled(time.Minute))
}
