package channel_test

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/codec"
	"github.com/mattjoyce/embedder/internal/platform"
	"github.com/mattjoyce/embedder/internal/platform/mocks"
)

type settings struct {
	Theme string `json:"theme"`
	Size  int    `json:"size"`
}

type prefsHandler struct {
	calls atomic.Int32
}

func (h *prefsHandler) OnMethodCall(_ context.Context, _ channel.Runtime, call codec.MethodCall) (codec.Value, error) {
	h.calls.Add(1)
	switch call.Method {
	case "ping":
		return codec.String("pong"), nil
	case "apply":
		var s settings
		if err := channel.DecodeArgs(call.Args, &s); err != nil {
			return codec.Null(), err
		}
		return codec.Int(int64(s.Size * 2)), nil
	case "deny":
		return codec.Null(), channel.NewMethodCallError("forbidden", "not allowed", codec.String("policy"))
	case "fail":
		return codec.Null(), errors.New("disk full")
	case "crash":
		panic("bad state")
	default:
		return codec.Null(), channel.NotImplemented(call.Method)
	}
}

func callPayload(t *testing.T, mc codec.MethodCodec, method string, args codec.Value) []byte {
	t.Helper()
	b, err := mc.EncodeMethodCall(codec.MethodCall{Method: method, Args: args})
	require.NoError(t, err)
	return b
}

// invoke delivers one call on a fresh runtime and returns the decoded reply.
func invoke(t *testing.T, mc codec.MethodCodec, handler channel.Ref[channel.MethodCallHandler], method string, args codec.Value) codec.MethodResult {
	t.Helper()
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)
	rt := newFakeRuntime(engine)
	rt.reg.RegisterMethodChannel("prefs", mc, handler)

	var reply []byte
	engine.EXPECT().SendPlatformMessageResponse(platform.Token("t"), gomock.Any()).
		DoAndReturn(func(_ platform.Token, payload []byte) error {
			reply = payload
			return nil
		}).Times(1)

	rt.deliver("prefs", callPayload(t, mc, method, args), "t")
	rt.drain()

	res, err := mc.DecodeEnvelope(reply)
	require.NoError(t, err)
	return res
}

func TestMethodCallSuccess(t *testing.T) {
	for _, mc := range []codec.MethodCodec{codec.JSON, codec.Standard} {
		t.Run(mc.Name(), func(t *testing.T) {
			h := &prefsHandler{}
			res := invoke(t, mc, channel.WeakMethodHandler(h), "ping", codec.Null())
			require.False(t, res.IsError())
			assert.True(t, codec.String("pong").Equal(res.Value))
			assert.EqualValues(t, 1, h.calls.Load())
			runtime.KeepAlive(h)
		})
	}
}

func TestMethodCallNotImplemented(t *testing.T) {
	h := &prefsHandler{}
	res := invoke(t, codec.JSON, channel.WeakMethodHandler(h), "NotImplemented.example", codec.Null())
	require.True(t, res.IsError())
	assert.Equal(t, channel.CodeNotImplemented, res.Err.Code)
	assert.Contains(t, res.Err.Message, "NotImplemented.example")
	assert.EqualValues(t, 1, h.calls.Load())
	runtime.KeepAlive(h)
}

func TestMethodCallCustomErrorPassesThrough(t *testing.T) {
	res := invoke(t, codec.Standard, channel.Strong[channel.MethodCallHandler](&prefsHandler{}), "deny", codec.Null())
	require.True(t, res.IsError())
	assert.Equal(t, "forbidden", res.Err.Code)
	assert.Equal(t, "not allowed", res.Err.Message)
	assert.True(t, codec.String("policy").Equal(res.Err.Details))
}

func TestMethodCallTypedArgs(t *testing.T) {
	handler := channel.Strong[channel.MethodCallHandler](&prefsHandler{})
	args := codec.StringMap(map[string]codec.Value{"theme": codec.String("dark"), "size": codec.Int(21)})

	res := invoke(t, codec.JSON, handler, "apply", args)
	require.False(t, res.IsError())
	assert.True(t, codec.Int(42).Equal(res.Value))

	res = invoke(t, codec.JSON, handler, "apply", codec.String("not an object"))
	require.True(t, res.IsError())
	assert.Equal(t, channel.CodeDecodeError, res.Err.Code)
}

func TestMethodCallGenericErrorIsInternal(t *testing.T) {
	res := invoke(t, codec.JSON, channel.Strong[channel.MethodCallHandler](&prefsHandler{}), "fail", codec.Null())
	require.True(t, res.IsError())
	assert.Equal(t, channel.CodeInternal, res.Err.Code)
	assert.Equal(t, "disk full", res.Err.Message)
}

func TestMethodCallPanicIsInternal(t *testing.T) {
	res := invoke(t, codec.JSON, channel.Strong[channel.MethodCallHandler](&prefsHandler{}), "crash", codec.Null())
	require.True(t, res.IsError())
	assert.Equal(t, channel.CodeInternal, res.Err.Code)
	assert.Contains(t, res.Err.Message, "bad state")
}

func TestMethodChannelClosed(t *testing.T) {
	res := invoke(t, codec.JSON, channel.Ref[channel.MethodCallHandler]{}, "ping", codec.Null())
	require.True(t, res.IsError())
	assert.Equal(t, channel.CodeChannelClosed, res.Err.Code)
}

func TestMethodDecodeErrorCompletesEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)
	rt := newFakeRuntime(engine)
	rt.reg.RegisterMethodChannel("prefs", codec.JSON, channel.Strong[channel.MethodCallHandler](&prefsHandler{}))

	engine.EXPECT().SendPlatformMessageResponse(platform.Token("t"), gomock.Nil()).Return(nil)

	rt.deliver("prefs", []byte(`{"args":[]}`), "t")
	rt.drain()
}

func TestMethodInvokeOutbound(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)
	rt := newFakeRuntime(engine)
	wh := rt.reg.RegisterMethodChannel("app/textinput", codec.JSON, channel.Ref[channel.MethodCallHandler]{})
	ch, ok := wh.Get()
	require.True(t, ok)

	gomock.InOrder(
		engine.EXPECT().SendPlatformMessage("app/textinput",
			[]byte(`{"method":"TextInputClient.updateEditingState","args":[1,{"text":"a"}]}`)).Return(nil),
		engine.EXPECT().SendPlatformMessage("app/textinput", []byte(`[true]`)).Return(nil),
		engine.EXPECT().SendPlatformMessage("app/textinput", []byte(`["oops","went wrong",null]`)).Return(nil),
	)

	require.NoError(t, ch.InvokeMethod("TextInputClient.updateEditingState",
		codec.List(codec.Int(1), codec.StringMap(map[string]codec.Value{"text": codec.String("a")}))))
	require.NoError(t, ch.SendSuccessEvent(codec.Bool(true)))
	require.NoError(t, ch.SendErrorEvent("oops", "went wrong", codec.Null()))
	assert.Equal(t, 3, rt.drain())

	assert.Error(t, ch.InvokeMethod("bad", codec.Binary([]byte{1})))
}

func TestUnregisteredBeforeReplyCompletesEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)
	rt := newFakeRuntime(engine)

	release := make(chan struct{})
	rt.reg.RegisterMethodChannel("slow", codec.JSON, channel.Strong[channel.MethodCallHandler](
		channel.MethodCallHandlerFunc(func(context.Context, channel.Runtime, codec.MethodCall) (codec.Value, error) {
			<-release
			return codec.String("late"), nil
		})))

	engine.EXPECT().SendPlatformMessageResponse(platform.Token("t"), gomock.Nil()).Return(nil)

	rt.deliver("slow", callPayload(t, codec.JSON, "wait", codec.Null()), "t")
	require.True(t, rt.reg.Unregister("slow"))
	close(release)
	rt.drain()
}

func TestMethodSetHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)
	rt := newFakeRuntime(engine)

	wh := rt.reg.RegisterMethodChannel("m", codec.JSON, channel.Ref[channel.MethodCallHandler]{})
	ch, ok := wh.Get()
	require.True(t, ok)
	assert.Equal(t, channel.KindMethod, ch.Kind())
	assert.Equal(t, "json", ch.CodecName())

	ch.SetHandler(channel.Strong[channel.MethodCallHandler](&prefsHandler{}))

	engine.EXPECT().SendPlatformMessageResponse(platform.Token("t"), []byte(`["pong"]`)).Return(nil)

	rt.deliver("m", callPayload(t, codec.JSON, "ping", codec.Null()), "t")
	rt.drain()
}

func TestMethodCallErrorString(t *testing.T) {
	assert.Equal(t, "c: m", channel.NewMethodCallError("c", "m", codec.Null()).Error())
	assert.Equal(t, "c", channel.NewMethodCallError("c", "", codec.Null()).Error())
	assert.True(t, errors.Is(channel.NotImplemented("x"), channel.ErrNotImplemented))
	assert.Equal(t, "method not implemented: x", fmt.Sprint(channel.NotImplemented("x")))
}
