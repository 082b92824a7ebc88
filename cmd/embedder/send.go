package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/embedder/internal/codec"
	"github.com/mattjoyce/embedder/internal/protocol"
)

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	apiURL := fs.String("api", defaultAPIURL(), "Host API URL")
	apiKey := fs.String("api-key", os.Getenv(apiKeyEnv), "API bearer token")
	channelName := fs.String("channel", "", "Target channel")
	codecName := fs.String("codec", "json", "Payload codec: json, standard, string or binary")
	value := fs.String("value", "null", "JSON value to send")
	method := fs.String("method", "", "Method name; sends a method call with --value as arguments")
	noReply := fs.Bool("no-reply", false, "Do not wait for a reply")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *channelName == "" {
		fmt.Fprintln(os.Stderr, "Error: --channel is required")
		return 1
	}

	v, err := codec.JSON.DecodeMessage([]byte(*value))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --value: %v\n", err)
		return 1
	}

	enc, err := newPayloadCodec(*codecName, *method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	payload, err := enc.encode(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode failed: %v\n", err)
		return 1
	}

	frame := &protocol.Frame{
		Protocol: protocol.Version,
		Channel:  *channelName,
		Payload:  payload,
		Codec:    *codecName,
	}
	if *noReply {
		f := false
		frame.Reply = &f
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	reply, err := postFrame(ctx, strings.TrimRight(*apiURL, "/"), *apiKey, frame)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		return 1
	}
	if reply.Status == protocol.StatusError {
		fmt.Fprintf(os.Stderr, "Send failed: %s\n", reply.Error)
		return 1
	}
	if !reply.Replied {
		fmt.Printf("sent to %s (no reply requested)\n", reply.Channel)
		return 0
	}

	out, err := enc.decode(reply.Payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Decode reply failed: %v\n", err)
		return 1
	}
	fmt.Println(out)
	return 0
}

// payloadCodec encodes a request and renders its reply for one codec and
// call style.
type payloadCodec struct {
	encode func(codec.Value) ([]byte, error)
	decode func([]byte) (string, error)
}

func newPayloadCodec(name, method string) (*payloadCodec, error) {
	if method != "" {
		mc, ok := codec.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("codec %q has no method form (use json or standard)", name)
		}
		return &payloadCodec{
			encode: func(args codec.Value) ([]byte, error) {
				return mc.EncodeMethodCall(codec.MethodCall{Method: method, Args: args})
			},
			decode: func(b []byte) (string, error) {
				if len(b) == 0 {
					return "", errors.New("empty reply: no envelope")
				}
				res, err := mc.DecodeEnvelope(b)
				if err != nil {
					return "", err
				}
				if res.Err != nil {
					return "", res.Err
				}
				return renderValue(res.Value), nil
			},
		}, nil
	}

	c, ok := codec.LookupMessage(name)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	return &payloadCodec{
		encode: func(v codec.Value) ([]byte, error) {
			if s, ok := v.AsString(); ok && c == codec.Bytes {
				v = codec.Binary([]byte(s))
			}
			return c.EncodeMessage(v)
		},
		decode: func(b []byte) (string, error) {
			v, err := c.DecodeMessage(b)
			if err != nil {
				return "", err
			}
			return renderValue(v), nil
		},
	}, nil
}

// renderValue prints JSON where the value allows it.
func renderValue(v codec.Value) string {
	if bin, ok := v.AsBinary(); ok {
		return fmt.Sprintf("%q", bin)
	}
	b, err := codec.JSON.EncodeMessage(v)
	if err != nil {
		return v.String()
	}
	return string(b)
}

func postFrame(ctx context.Context, apiURL, apiKey string, frame *protocol.Frame) (*protocol.Reply, error) {
	var body bytes.Buffer
	if err := protocol.EncodeFrame(&body, frame); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/frames", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reply, raw, err := protocol.DecodeReplyLenient(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w (body: %s)", resp.Status, err, strings.TrimSpace(string(raw)))
	}
	return reply, nil
}
