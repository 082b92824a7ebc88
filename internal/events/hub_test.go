package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	defer cancel()

	ev := h.Publish("x", map[string]int{"n": 1})
	got := <-ch
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "x", got.Type)
	assert.JSONEq(t, `{"n":1}`, string(got.Data))
	assert.Equal(t, 1, h.Subscribers())
}

func TestPublishNilData(t *testing.T) {
	h := NewHub(4)
	ev := h.Publish("empty", nil)
	assert.Equal(t, "{}", string(ev.Data))

	ev = h.Publish("bad", func() {})
	assert.Equal(t, "{}", string(ev.Data))
}

func TestRingOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("n", i)
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)
}

func TestSlowSubscriberDrops(t *testing.T) {
	h := NewHub(1)
	_, cancel := h.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish("n", i)
	}
	assert.Equal(t, int64(10), h.Dropped())
}

func TestCancelClosesAndIsIdempotent(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers())
}

func TestPublishTraffic(t *testing.T) {
	h := NewHub(2)
	h.PublishTraffic(TypeInbound, Traffic{Channel: "app/echo", Direction: DirInbound, Payload: []byte{1, 2, 3}, Token: "t1"})

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 1)
	tr, err := DecodeTraffic(snap[0])
	require.NoError(t, err)
	assert.Equal(t, "app/echo", tr.Channel)
	assert.Equal(t, 3, tr.Bytes)
	assert.Equal(t, []byte{1, 2, 3}, tr.Payload)
	assert.Equal(t, "t1", tr.Token)

	var nilHub *Hub
	assert.NotPanics(t, func() { nilHub.PublishTraffic(TypeMiss, Traffic{Channel: "x"}) })
}

func TestTapKeepsEveryEvent(t *testing.T) {
	h := NewHub(4)
	tap, cancel := h.Tap()

	const n = 1000
	for i := 0; i < n; i++ {
		h.Publish("n", i)
	}
	assert.Equal(t, n, tap.Len())
	assert.Zero(t, h.Dropped())

	batch, ok := tap.Drain()
	require.True(t, ok)
	require.Len(t, batch, n)
	assert.Equal(t, int64(1), batch[0].ID)
	assert.Equal(t, int64(n), batch[n-1].ID)

	h.Publish("n", n)
	cancel()
	h.Publish("after", nil)

	batch, ok = tap.Drain()
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, "n", batch[0].Type)

	_, ok = tap.Drain()
	assert.False(t, ok)
}

func TestTapDrainWakesOnPublish(t *testing.T) {
	h := NewHub(4)
	tap, cancel := h.Tap()
	defer cancel()

	got := make(chan []Event, 1)
	go func() {
		batch, _ := tap.Drain()
		got <- batch
	}()

	h.Publish("late", nil)
	select {
	case batch := <-got:
		require.Len(t, batch, 1)
		assert.Equal(t, "late", batch[0].Type)
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not wake")
	}
}
