package keyevent_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/host"
	"github.com/mattjoyce/embedder/internal/host/hosttest"
	"github.com/mattjoyce/embedder/internal/keyevent"
	"github.com/mattjoyce/embedder/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

func TestPressSendsDownThenUp(t *testing.T) {
	s := keyevent.New("")
	env := hosttest.Start(t, func(h *host.Host) { s.Register(h.Registry()) })

	require.NoError(t, s.Press(65, 30, keyevent.ModShift, 'A'))
	sent := env.WaitSent(t, 2)

	var got []keyevent.Event
	for _, m := range sent {
		assert.Equal(t, keyevent.ChannelName, m.Channel)
		var ev keyevent.Event
		require.NoError(t, json.Unmarshal(m.Payload, &ev))
		got = append(got, ev)
	}
	assert.Equal(t, []keyevent.Event{
		{Type: keyevent.TypeKeyDown, Keymap: "linux", KeyCode: 65, ScanCode: 30, Modifiers: 1, CodePoint: 65},
		{Type: keyevent.TypeKeyUp, Keymap: "linux", KeyCode: 65, ScanCode: 30, Modifiers: 1, CodePoint: 65},
	}, got)
}

func TestSendRejectsUnknownType(t *testing.T) {
	s := keyevent.New("glfw")
	assert.Error(t, s.Send(keyevent.Event{Type: "keypress"}))
}

func TestSendWithoutChannel(t *testing.T) {
	s := keyevent.New("glfw")
	err := s.Send(keyevent.Event{Type: keyevent.TypeKeyDown})
	assert.ErrorIs(t, err, channel.ErrChannelClosed)
}

func TestInboundIsIgnored(t *testing.T) {
	s := keyevent.New("")
	env := hosttest.Start(t, func(h *host.Host) { s.Register(h.Registry()) })

	assert.Equal(t, []byte("null"), env.Call(t, keyevent.ChannelName, []byte(`{"type":"keydown"}`)))
}
