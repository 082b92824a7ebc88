// Package textinput serves the app/textinput JSON method channel: it tracks
// which input client is attached and the client's last editing state, and
// pushes state changes back to the runtime.
package textinput

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/codec"
	"github.com/mattjoyce/embedder/internal/log"
)

const ChannelName = "app/textinput"

// Method names served and invoked on the channel.
const (
	MethodSetClient          = "TextInput.setClient"
	MethodClearClient        = "TextInput.clearClient"
	MethodSetEditingState    = "TextInput.setEditingState"
	MethodShow               = "TextInput.show"
	MethodHide               = "TextInput.hide"
	MethodUpdateEditingState = "TextInputClient.updateEditingState"
)

// ClientConfig is the second element of setClient's arguments.
type ClientConfig struct {
	Autocorrect        bool      `json:"autocorrect"`
	InputAction        string    `json:"inputAction"`
	ObscureText        bool      `json:"obscureText"`
	KeyboardAppearance string    `json:"keyboardAppearance"`
	ActionLabel        *string   `json:"actionLabel"`
	TextCapitalization string    `json:"textCapitalization"`
	InputType          InputType `json:"inputType"`
}

type InputType struct {
	Name    string `json:"name"`
	Signed  *bool  `json:"signed"`
	Decimal *bool  `json:"decimal"`
}

// EditingState mirrors the client's text and selection.
type EditingState struct {
	ComposingBase          int64  `json:"composingBase"`
	ComposingExtent        int64  `json:"composingExtent"`
	SelectionAffinity      string `json:"selectionAffinity"`
	SelectionBase          int64  `json:"selectionBase"`
	SelectionExtent        int64  `json:"selectionExtent"`
	SelectionIsDirectional bool   `json:"selectionIsDirectional"`
	Text                   string `json:"text"`
}

// Manager is the channel's handler. Register it and keep it referenced for
// as long as the channel should stay open; the channel holds it weakly.
type Manager struct {
	logger *slog.Logger

	mu       sync.Mutex
	clientID int64
	attached bool
	config   ClientConfig
	state    *EditingState
	visible  bool

	channel channel.WeakHandle[*channel.MethodChannel]
}

func New() *Manager {
	return &Manager{logger: log.WithChannel(ChannelName)}
}

// Register installs the channel on reg.
func (m *Manager) Register(reg *channel.Registry) {
	h := reg.RegisterMethodChannel(ChannelName, codec.JSON, channel.WeakMethodHandler(m))
	m.mu.Lock()
	m.channel = h
	m.mu.Unlock()
}

func (m *Manager) OnMethodCall(ctx context.Context, rt channel.Runtime, call codec.MethodCall) (codec.Value, error) {
	switch call.Method {
	case MethodSetClient:
		id, cfg, err := decodeSetClient(call.Args)
		if err != nil {
			return codec.Null(), err
		}
		m.mu.Lock()
		m.clientID, m.attached, m.config = id, true, cfg
		m.mu.Unlock()
		m.logger.Debug("text input client attached", "client_id", id, "input_type", cfg.InputType.Name)
	case MethodClearClient:
		m.mu.Lock()
		m.attached = false
		m.state = nil
		m.mu.Unlock()
	case MethodSetEditingState:
		var st EditingState
		if err := channel.DecodeArgs(call.Args, &st); err != nil {
			return codec.Null(), err
		}
		m.mu.Lock()
		m.state = &st
		m.mu.Unlock()
	case MethodShow, MethodHide:
		m.mu.Lock()
		m.visible = call.Method == MethodShow
		m.mu.Unlock()
	default:
		return codec.Null(), channel.NotImplemented(call.Method)
	}
	return codec.Null(), nil
}

func decodeSetClient(args codec.Value) (int64, ClientConfig, error) {
	var tuple []json.RawMessage
	if err := channel.DecodeArgs(args, &tuple); err != nil {
		return 0, ClientConfig{}, err
	}
	if len(tuple) != 2 {
		return 0, ClientConfig{}, channel.NewMethodCallError(channel.CodeDecodeError,
			fmt.Sprintf("setClient expects [id, config], got %d elements", len(tuple)), codec.Null())
	}
	var id int64
	if err := json.Unmarshal(tuple[0], &id); err != nil {
		return 0, ClientConfig{}, channel.NewMethodCallError(channel.CodeDecodeError, "client id: "+err.Error(), codec.Null())
	}
	var cfg ClientConfig
	if err := json.Unmarshal(tuple[1], &cfg); err != nil {
		return 0, ClientConfig{}, channel.NewMethodCallError(channel.CodeDecodeError, "client config: "+err.Error(), codec.Null())
	}
	return id, cfg, nil
}

// Client returns the attached client id and configuration.
func (m *Manager) Client() (int64, ClientConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientID, m.config, m.attached
}

// State returns a copy of the current editing state.
func (m *Manager) State() (EditingState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return EditingState{}, false
	}
	return *m.state, true
}

func (m *Manager) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// WithState applies fn to the editing state if there is one.
func (m *Manager) WithState(fn func(*EditingState)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return false
	}
	fn(m.state)
	return true
}

// NotifyChanges sends the current editing state to the client. It is a
// no-op without a client, a state or a live channel.
func (m *Manager) NotifyChanges() error {
	m.mu.Lock()
	id, attached, handle := m.clientID, m.attached, m.channel
	var st EditingState
	hasState := m.state != nil
	if hasState {
		st = *m.state
	}
	m.mu.Unlock()

	if !attached || !hasState {
		return nil
	}
	ch, ok := handle.Get()
	if !ok {
		m.logger.Debug("channel gone, editing state not sent")
		return nil
	}
	args, err := codec.ToValue([]any{id, st})
	if err != nil {
		return fmt.Errorf("encode editing state: %w", err)
	}
	return ch.InvokeMethod(MethodUpdateEditingState, args)
}
