package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// EncodeFrame serializes a Frame to JSON and writes it to w.
func EncodeFrame(w io.Writer, f *Frame) error {
	if f.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", f.Protocol)
	}
	if f.Channel == "" {
		return fmt.Errorf("frame missing required field: channel")
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(f); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return nil
}

// DecodeFrame reads a Frame from r with strict field checking.
func DecodeFrame(r io.Reader) (*Frame, error) {
	var f Frame

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("failed to decode frame: trailing data after frame")
	}

	if f.Protocol != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", f.Protocol)
	}
	if f.Channel == "" {
		return nil, fmt.Errorf("frame missing required field: channel")
	}
	return &f, nil
}

// EncodeReply serializes a Reply to JSON and writes it to w.
func EncodeReply(w io.Writer, r *Reply) error {
	if r.Elapsed > 0 && r.ElapsedMS == 0 {
		r.ElapsedMS = r.Elapsed.Milliseconds()
	}
	if err := validateReply(r); err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(r); err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	return nil
}

// DecodeReply reads and validates a Reply from r.
func DecodeReply(r io.Reader) (*Reply, error) {
	var rep Reply

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&rep); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	if err := validateReply(&rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// DecodeReplyLenient is like DecodeReply but also returns the raw bytes,
// so callers can show what the server actually sent.
func DecodeReplyLenient(r io.Reader) (*Reply, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read reply: %w", err)
	}
	if len(data) == 0 {
		return nil, data, fmt.Errorf("server sent an empty body")
	}

	var rep Reply
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, data, fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if err := validateReply(&rep); err != nil {
		return nil, data, err
	}
	return &rep, data, nil
}

func validateReply(r *Reply) error {
	switch r.Status {
	case "":
		return fmt.Errorf("reply missing required field: status")
	case StatusOK, StatusError:
	default:
		return fmt.Errorf("invalid status value: %q (must be 'ok' or 'error')", r.Status)
	}
	if r.Status == StatusError && r.Error == "" {
		return fmt.Errorf("reply has status=error but no error message")
	}
	return nil
}
