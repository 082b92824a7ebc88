package host_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/embedder/internal/builtin"
	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/codec"
	"github.com/mattjoyce/embedder/internal/config"
	"github.com/mattjoyce/embedder/internal/engine"
	"github.com/mattjoyce/embedder/internal/events"
	"github.com/mattjoyce/embedder/internal/host"
	"github.com/mattjoyce/embedder/internal/log"
	"github.com/mattjoyce/embedder/internal/platform"
	"github.com/mattjoyce/embedder/internal/platform/mocks"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Service.TickInterval = time.Millisecond
	cfg.Service.DispatchTimeout = 5 * time.Millisecond
	cfg.Dispatch.Workers = 4
	return cfg
}

// pollingEngine is an engine that also flushes and polls.
type pollingEngine struct {
	*mocks.MockEngine
	*mocks.MockFlusher
	*mocks.MockEventSource
}

func newPollingEngine(ctrl *gomock.Controller) *pollingEngine {
	return &pollingEngine{
		MockEngine:      mocks.NewMockEngine(ctrl),
		MockFlusher:     mocks.NewMockFlusher(ctrl),
		MockEventSource: mocks.NewMockEventSource(ctrl),
	}
}

func shutdown(t *testing.T, h *host.Host) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
}

func TestConcurrentEchoThroughBridge(t *testing.T) {
	bridge := engine.NewBridge()
	h := host.New(testConfig(), bridge)
	bridge.Attach(h)

	echo := builtin.NewEcho(codec.JSON)
	echo.Register(h.Registry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := []byte(fmt.Sprintf(`{"i":%d}`, i))
			callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer callCancel()
			got, err := bridge.Call(callCtx, builtin.EchoChannel, want)
			assert.NoError(t, err)
			assert.JSONEq(t, string(want), string(got))
		}(i)
	}
	wg.Wait()

	cancel()
	require.NoError(t, <-done)
	shutdown(t, h)

	stats := h.Tracker().Stats()
	assert.Equal(t, int64(n), stats.Issued)
	assert.Equal(t, int64(n), stats.Consumed)
	assert.Zero(t, stats.Leaked)
	assert.Equal(t, int64(n), echo.Seen())
	assert.Zero(t, bridge.Pending())
}

func TestTickDrainsFlushesAndPolls(t *testing.T) {
	ctrl := gomock.NewController(t)
	eng := newPollingEngine(ctrl)
	h := host.New(testConfig(), eng)

	ran := false
	h.Post(func() { ran = true })

	gomock.InOrder(
		eng.MockFlusher.EXPECT().Flush().Return(nil),
		eng.MockEventSource.EXPECT().Poll(gomock.Any(), 5*time.Millisecond).Return(nil),
	)
	require.NoError(t, h.Tick(context.Background()))
	assert.True(t, ran)
	assert.Equal(t, int64(1), h.Ticks())
}

func TestTickJoinsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	eng := newPollingEngine(ctrl)
	h := host.New(testConfig(), eng)

	flushErr := errors.New("flush broke")
	pollErr := errors.New("poll broke")
	eng.MockFlusher.EXPECT().Flush().Return(flushErr)
	eng.MockEventSource.EXPECT().Poll(gomock.Any(), gomock.Any()).Return(pollErr)

	err := h.Tick(context.Background())
	assert.ErrorIs(t, err, flushErr)
	assert.ErrorIs(t, err, pollErr)
}

func TestDeliverFromPoll(t *testing.T) {
	ctrl := gomock.NewController(t)
	eng := newPollingEngine(ctrl)
	h := host.New(testConfig(), eng)

	got := make(chan codec.Value, 1)
	h.Registry().RegisterMessageChannel("app/in", codec.JSON, channel.Strong[channel.MessageHandler](
		channel.MessageHandlerFunc(func(_ context.Context, _ channel.Runtime, v codec.Value) (codec.Value, error) {
			got <- v
			return codec.Null(), nil
		})))

	eng.MockFlusher.EXPECT().Flush().Return(nil).AnyTimes()
	eng.MockEventSource.EXPECT().Poll(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, time.Duration) error {
			return h.Deliver("app/in", []byte(`"ping"`), "")
		})
	eng.MockEventSource.EXPECT().Poll(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	require.NoError(t, h.Tick(context.Background()))
	select {
	case v := <-got:
		assert.True(t, codec.String("ping").Equal(v))
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}
	shutdown(t, h)
}

func TestRouteMissCompletesEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	eng := mocks.NewMockEngine(ctrl)
	hub := events.NewHub(16)
	h := host.New(testConfig(), eng, host.WithHub(hub))

	eng.EXPECT().SendPlatformMessageResponse(platform.Token("t-1"), nil).Return(nil)
	require.NoError(t, h.Deliver("app/missing", []byte{1}, "t-1"))

	var types []string
	for _, ev := range hub.SnapshotSince(0) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{events.TypeInbound, events.TypeMiss, events.TypeResponse}, types)

	resp, err := events.DecodeTraffic(hub.SnapshotSince(2)[0])
	require.NoError(t, err)
	assert.Equal(t, "app/missing", resp.Channel)
	assert.Equal(t, "t-1", resp.Token)

	stats := h.Tracker().Stats()
	assert.Equal(t, int64(1), stats.Consumed)
	assert.Zero(t, stats.Open)
}

func TestWrongThread(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := host.New(testConfig(), mocks.NewMockEngine(ctrl))

	require.NoError(t, h.Tick(context.Background()))

	errs := make(chan error, 2)
	go func() {
		errs <- h.Deliver("x", nil, "")
		errs <- h.Tick(context.Background())
	}()
	assert.ErrorIs(t, <-errs, host.ErrWrongThread)
	assert.ErrorIs(t, <-errs, host.ErrWrongThread)
}

func TestShutdownWaitsForHandlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	eng := mocks.NewMockEngine(ctrl)
	h := host.New(testConfig(), eng)

	h.Registry().RegisterMessageChannel("app/slow", codec.JSON, channel.Strong[channel.MessageHandler](
		channel.MessageHandlerFunc(func(_ context.Context, _ channel.Runtime, v codec.Value) (codec.Value, error) {
			time.Sleep(20 * time.Millisecond)
			return v, nil
		})))

	eng.EXPECT().SendPlatformMessageResponse(platform.Token("slow"), []byte("7")).Return(nil)
	require.NoError(t, h.Deliver("app/slow", []byte("7"), "slow"))
	shutdown(t, h)

	stats := h.Tracker().Stats()
	assert.Equal(t, int64(1), stats.Consumed)
	assert.Zero(t, stats.Leaked)
}

func TestShutdownReportsOutstanding(t *testing.T) {
	ctrl := gomock.NewController(t)
	hub := events.NewHub(16)
	h := host.New(testConfig(), mocks.NewMockEngine(ctrl), host.WithHub(hub))

	handle := h.Tracker().Issue("app/orphan", "orphan")
	shutdown(t, h)

	assert.False(t, handle.Open())
	assert.Equal(t, int64(1), h.Tracker().Stats().Leaked)

	snap := hub.SnapshotSince(0)
	require.Len(t, snap, 1)
	assert.Equal(t, events.TypeLeak, snap[0].Type)
	leak, err := events.DecodeTraffic(snap[0])
	require.NoError(t, err)
	assert.Equal(t, string(platform.LeakShutdown), leak.Reason)
}

func TestAfterShutdown(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := host.New(testConfig(), mocks.NewMockEngine(ctrl))
	mc := channel.NewMessageChannel("app/out", codec.JSON, channel.Strong[channel.MessageHandler](
		channel.MessageHandlerFunc(func(context.Context, channel.Runtime, codec.Value) (codec.Value, error) {
			return codec.Null(), nil
		})))
	h.Registry().Register(mc)
	shutdown(t, h)

	assert.ErrorIs(t, h.Submit("app/out", nil, ""), host.ErrShutdown)
	assert.ErrorIs(t, h.Deliver("app/out", nil, ""), host.ErrShutdown)
	assert.ErrorIs(t, h.Run(context.Background()), host.ErrShutdown)
	// The runtime reference no longer resolves, so nothing reaches the engine.
	require.NoError(t, mc.Send(codec.Int(1)))
	assert.NoError(t, h.Shutdown(context.Background()))
}

func TestRunStopsAtMaxTicks(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := testConfig()
	cfg.Service.MaxTicks = 3
	h := host.New(cfg, mocks.NewMockEngine(ctrl))

	require.NoError(t, h.Run(context.Background()))
	assert.Equal(t, int64(3), h.Ticks())
	shutdown(t, h)
}

func TestRunRejectsSecondLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := host.New(testConfig(), mocks.NewMockEngine(ctrl))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	started := make(chan struct{})
	h.Post(func() { close(started) })
	go func() { done <- h.Run(ctx) }()
	<-started

	assert.ErrorIs(t, h.Run(ctx), host.ErrRunning)
	assert.ErrorIs(t, h.Shutdown(ctx), host.ErrRunning)
	cancel()
	require.NoError(t, <-done)
	shutdown(t, h)
}

func TestPanickingTaskIsContained(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := host.New(testConfig(), mocks.NewMockEngine(ctrl))

	after := false
	h.Post(func() { panic("boom") })
	h.Post(func() { after = true })

	assert.NotPanics(t, func() { _ = h.Tick(context.Background()) })
	assert.True(t, after)
}

func TestOutboundIsObserved(t *testing.T) {
	ctrl := gomock.NewController(t)
	eng := mocks.NewMockEngine(ctrl)
	hub := events.NewHub(16)
	h := host.New(testConfig(), eng, host.WithHub(hub))

	wh := h.Registry().RegisterMessageChannel("app/out", codec.JSON, channel.Strong[channel.MessageHandler](
		channel.MessageHandlerFunc(func(context.Context, channel.Runtime, codec.Value) (codec.Value, error) {
			return codec.Null(), nil
		})))
	mc, ok := wh.Get()
	require.True(t, ok)

	eng.EXPECT().SendPlatformMessage("app/out", []byte(`"hi"`)).Return(nil)
	require.NoError(t, mc.Send(codec.String("hi")))
	require.NoError(t, h.Tick(context.Background()))

	snap := hub.SnapshotSince(0)
	require.Len(t, snap, 1)
	assert.Equal(t, events.TypeOutbound, snap[0].Type)

	stats := h.Stats()
	assert.Equal(t, 1, stats.Channels)
	assert.Equal(t, int64(1), stats.Ticks)
}
