package channel_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/log"
	"github.com/mattjoyce/embedder/internal/platform"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

type queued struct {
	name string
	task channel.ChannelTask
}

// fakeRuntime runs spawned work on goroutines and holds posted tasks until
// drain, which plays the part of one host tick.
type fakeRuntime struct {
	ctx     context.Context
	engine  platform.Engine
	reg     *channel.Registry
	tracker *platform.Tracker

	wg    sync.WaitGroup
	mu    sync.Mutex
	tasks []queued
}

func newFakeRuntime(engine platform.Engine) *fakeRuntime {
	rt := &fakeRuntime{
		ctx:     context.Background(),
		engine:  engine,
		reg:     channel.NewRegistry(),
		tracker: platform.NewTracker(slog.New(slog.DiscardHandler)),
	}
	rt.reg.SetRuntime(channel.StrongRuntime(rt))
	return rt
}

func (f *fakeRuntime) Context() context.Context { return f.ctx }
func (f *fakeRuntime) Engine() platform.Engine  { return f.engine }

func (f *fakeRuntime) Spawn(fn func()) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		fn()
	}()
}

func (f *fakeRuntime) PostChannelTask(name string, task channel.ChannelTask) {
	f.mu.Lock()
	f.tasks = append(f.tasks, queued{name: name, task: task})
	f.mu.Unlock()
}

// drain waits for spawned work and then runs every queued task.
func (f *fakeRuntime) drain() int {
	f.wg.Wait()
	f.mu.Lock()
	tasks := f.tasks
	f.tasks = nil
	f.mu.Unlock()

	for _, q := range tasks {
		ch, _ := f.reg.Lookup(q.name)
		q.task(f, ch)
	}
	return len(tasks)
}

func (f *fakeRuntime) deliver(name string, payload []byte, token platform.Token) *platform.ResponseHandle {
	var h *platform.ResponseHandle
	if token != "" {
		h = f.tracker.Issue(name, token)
	}
	f.reg.Handle(f, platform.NewMessage(name, payload, h))
	return h
}
