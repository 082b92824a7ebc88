package protocol

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   *Frame
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name:  "payload is base64",
			frame: &Frame{Protocol: 1, Channel: "app/echo", Payload: []byte{0x07, 0x02, 'h', 'i'}},
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"payload":"BwJoaQ=="`) {
					t.Errorf("payload not base64: %s", output)
				}
				if strings.Contains(output, `"reply"`) {
					t.Error("reply should be omitted when unset")
				}
			},
		},
		{
			name:  "fire and forget",
			frame: &Frame{Protocol: 1, Channel: "app/keyevent", Reply: boolPtr(false)},
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"reply":false`) {
					t.Errorf("missing reply=false: %s", output)
				}
			},
		},
		{
			name:    "unsupported protocol version",
			frame:   &Frame{Protocol: 2, Channel: "x"},
			wantErr: true,
		},
		{
			name:    "missing channel",
			frame:   &Frame{Protocol: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := EncodeFrame(&buf, tt.frame)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, buf.String())
			}
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, f *Frame)
	}{
		{
			name:  "valid frame",
			input: `{"protocol":1,"channel":"app/echo","payload":"BwJoaQ=="}`,
			checkFn: func(t *testing.T, f *Frame) {
				if f.Channel != "app/echo" {
					t.Errorf("channel = %q", f.Channel)
				}
				if !bytes.Equal(f.Payload, []byte{0x07, 0x02, 'h', 'i'}) {
					t.Errorf("payload = %v", f.Payload)
				}
				if !f.ExpectsReply() {
					t.Error("reply should default to true")
				}
			},
		},
		{
			name:  "empty payload",
			input: `{"protocol":1,"channel":"app/echo"}`,
			checkFn: func(t *testing.T, f *Frame) {
				if len(f.Payload) != 0 {
					t.Errorf("payload = %v", f.Payload)
				}
			},
		},
		{
			name:  "reply false",
			input: `{"protocol":1,"channel":"c","reply":false,"codec":"json"}`,
			checkFn: func(t *testing.T, f *Frame) {
				if f.ExpectsReply() {
					t.Error("reply=false ignored")
				}
				if f.Codec != "json" {
					t.Errorf("codec = %q", f.Codec)
				}
			},
		},
		{name: "unknown field", input: `{"protocol":1,"channel":"c","extra":1}`, wantErr: true},
		{name: "bad base64", input: `{"protocol":1,"channel":"c","payload":"!!"}`, wantErr: true},
		{name: "missing channel", input: `{"protocol":1}`, wantErr: true},
		{name: "wrong version", input: `{"protocol":3,"channel":"c"}`, wantErr: true},
		{name: "trailing frame", input: `{"protocol":1,"channel":"c"} {"protocol":1,"channel":"d"}`, wantErr: true},
		{name: "not json", input: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, f)
			}
		})
	}
}

func TestReplyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := &Reply{Status: StatusOK, Channel: "app/echo", Payload: []byte("x"), Replied: true, Elapsed: 1500 * time.Microsecond}
	if err := EncodeReply(&buf, in); err != nil {
		t.Fatalf("EncodeReply() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"elapsed_ms":1`) {
		t.Errorf("elapsed not converted: %s", buf.String())
	}

	out, err := DecodeReply(&buf)
	if err != nil {
		t.Fatalf("DecodeReply() error = %v", err)
	}
	if out.Channel != "app/echo" || string(out.Payload) != "x" || !out.Replied {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestDecodeReplyValidation(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing status", `{"channel":"c"}`},
		{"bad status", `{"status":"maybe","channel":"c"}`},
		{"error without message", `{"status":"error","channel":"c"}`},
		{"unknown field", `{"status":"ok","channel":"c","oops":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeReply(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecodeReplyLenient(t *testing.T) {
	rep, raw, err := DecodeReplyLenient(strings.NewReader(`{"status":"error","channel":"c","error":"timeout","extra":1}`))
	if err != nil {
		t.Fatalf("DecodeReplyLenient() error = %v", err)
	}
	if rep.Error != "timeout" {
		t.Errorf("error = %q", rep.Error)
	}
	if len(raw) == 0 {
		t.Error("raw bytes not returned")
	}

	_, raw, err = DecodeReplyLenient(strings.NewReader(`<html>`))
	if err == nil {
		t.Error("expected error for non-JSON")
	}
	if string(raw) != "<html>" {
		t.Errorf("raw = %q", raw)
	}

	if _, _, err := DecodeReplyLenient(strings.NewReader("")); err == nil {
		t.Error("expected error for empty body")
	}
}
