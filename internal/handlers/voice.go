package handlers

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/placehive/placehive-backend/internal/chat"
	"github.com/placehive/placehive-backend/pkg/logger"
)

type micUserKey struct{}

// WithMicUser tags a request context with the user whose capture stream the
// microphone hub should open.
func WithMicUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, micUserKey{}, userID)
}

// SocketMicHub adapts client-streamed audio into the recorder's microphone
// contract. Clients emit "voice_chunk" socket events with base64 payloads
// while a recording is active; each user has at most one live stream.
type SocketMicHub struct {
	mu      sync.Mutex
	streams map[string]*remoteStream
}

func NewSocketMicHub() *SocketMicHub {
	return &SocketMicHub{streams: make(map[string]*remoteStream)}
}

// MicHub is the process-wide capture hub, set during startup.
var MicHub *SocketMicHub

// Request opens a capture stream for the user tagged on ctx. A user without
// a connected socket cannot deliver chunks, which surfaces as a permission
// failure.
func (h *SocketMicHub) Request(ctx context.Context) (chat.MediaStream, error) {
	userID, _ := ctx.Value(micUserKey{}).(string)
	if userID == "" || !IsUserOnline(userID) {
		return nil, chat.ErrMicPermission
	}

	stream := &remoteStream{
		hub:    h,
		userID: userID,
		ch:     make(chan []byte, 64),
	}

	h.mu.Lock()
	if prev, ok := h.streams[userID]; ok {
		// A stale stream means the previous recording never cleaned up.
		prev.ReleaseTracks()
	}
	h.streams[userID] = stream
	h.mu.Unlock()

	return stream, nil
}

// Push delivers one encoded chunk into the user's live stream. Chunks for
// users without an open stream are dropped.
func (h *SocketMicHub) Push(userID string, data []byte) {
	h.mu.Lock()
	stream, ok := h.streams[userID]
	h.mu.Unlock()
	if ok {
		stream.push(data)
	}
}

func (h *SocketMicHub) remove(s *remoteStream) {
	h.mu.Lock()
	if h.streams[s.userID] == s {
		delete(h.streams, s.userID)
	}
	h.mu.Unlock()
}

type remoteStream struct {
	hub    *SocketMicHub
	userID string

	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func (s *remoteStream) Chunks() <-chan []byte { return s.ch }

func (s *remoteStream) push(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- data:
	default:
		logger.Warn().Str("user_id", s.userID).Msg("Voice chunk dropped, capture buffer full")
	}
}

func (s *remoteStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

func (s *remoteStream) ReleaseTracks() {
	_ = s.Stop()
	s.hub.remove(s)
}

// HandleVoiceChunk decodes a streamed capture chunk from a socket event.
func HandleVoiceChunk(userID string, payload map[string]interface{}) {
	encoded, _ := payload["data"].(string)
	if encoded == "" {
		return
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return
	}
	if MicHub != nil {
		MicHub.Push(userID, data)
	}
}
