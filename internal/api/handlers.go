package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/embedder/internal/engine"
	"github.com/mattjoyce/embedder/internal/host"
	"github.com/mattjoyce/embedder/internal/protocol"
)

// maxBodyBytes bounds an injected payload.
const maxBodyBytes = 4 << 20

const framesSuffix = "/frames"

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ConfigDigest:  s.config.ConfigDigest,
		Subscribers:   s.events.Subscribers(),
		DroppedEvents: s.events.Dropped(),
	}
	if s.stats != nil {
		resp.Host = s.stats.Stats()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ChannelsResponse{Channels: s.channelInfos()})
}

func (s *Server) channelInfos() []ChannelInfo {
	names := s.channels.Names()
	sort.Strings(names)
	out := make([]ChannelInfo, 0, len(names))
	for _, name := range names {
		ch, ok := s.channels.Lookup(name)
		if !ok {
			continue
		}
		out = append(out, ChannelInfo{Name: name, Kind: ch.Kind().String()})
	}
	return out
}

// handleChannelPost serves POST /channels/{name} and POST /channels/{name}/frames.
func (s *Server) handleChannelPost(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || name == "" {
		s.writeError(w, http.StatusBadRequest, "channel name is required")
		return
	}

	if trimmed, ok := strings.CutSuffix(name, framesSuffix); ok && trimmed != "" {
		s.serveFrame(w, r, trimmed)
		return
	}
	s.serveRaw(w, r, name)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	s.serveFrame(w, r, "")
}

// serveRaw injects the request body as-is and writes the reply bytes back.
func (s *Server) serveRaw(w http.ResponseWriter, r *http.Request, name string) {
	if _, ok := s.channels.Lookup(name); !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("channel %q not registered", name))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	expectReply := true
	if v := r.URL.Query().Get("reply"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "reply must be a boolean")
			return
		}
		expectReply = b
	}

	if !expectReply {
		if err := s.caller.Notify(name, payload); err != nil {
			s.writeError(w, statusFor(err), err.Error())
			return
		}
		respondJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted", Channel: name})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.ReplyTimeout)
	defer cancel()
	reply, err := s.caller.Call(ctx, name, payload)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(reply)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}

// serveFrame handles a JSON frame. urlName, when set, must agree with the frame.
func (s *Server) serveFrame(w http.ResponseWriter, r *http.Request, urlName string) {
	start := time.Now()

	frame, err := decodeFrameBody(w, r, urlName)
	if err != nil {
		s.writeReply(w, http.StatusBadRequest, &protocol.Reply{
			Status:  protocol.StatusError,
			Channel: urlName,
			Error:   err.Error(),
			Elapsed: time.Since(start),
		})
		return
	}

	reply := &protocol.Reply{Status: protocol.StatusOK, Channel: frame.Channel}
	if _, ok := s.channels.Lookup(frame.Channel); !ok {
		reply.Status = protocol.StatusError
		reply.Error = fmt.Sprintf("channel %q not registered", frame.Channel)
		reply.Elapsed = time.Since(start)
		s.writeReply(w, http.StatusNotFound, reply)
		return
	}

	status := http.StatusOK
	if frame.ExpectsReply() {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.ReplyTimeout)
		defer cancel()
		out, err := s.caller.Call(ctx, frame.Channel, frame.Payload)
		if err != nil {
			status = statusFor(err)
			reply.Status = protocol.StatusError
			reply.Error = err.Error()
		} else {
			reply.Replied = true
			reply.Payload = out
		}
	} else {
		if err := s.caller.Notify(frame.Channel, frame.Payload); err != nil {
			status = statusFor(err)
			reply.Status = protocol.StatusError
			reply.Error = err.Error()
		} else {
			status = http.StatusAccepted
		}
	}

	reply.Elapsed = time.Since(start)
	s.writeReply(w, status, reply)
}

func decodeFrameBody(w http.ResponseWriter, r *http.Request, urlName string) (*protocol.Frame, error) {
	frame, err := protocol.DecodeFrame(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if urlName != "" && frame.Channel != urlName {
		return nil, fmt.Errorf("frame channel %q does not match %q", frame.Channel, urlName)
	}
	return frame, nil
}

func (s *Server) writeReply(w http.ResponseWriter, statusCode int, reply *protocol.Reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := protocol.EncodeReply(w, reply); err != nil {
		s.logger.Error("failed to encode reply", "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, host.ErrShutdown), errors.Is(err, engine.ErrNotAttached):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
