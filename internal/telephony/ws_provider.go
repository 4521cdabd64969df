package telephony

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/veristream/callshield/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Media connections come from the on-device call integration over
		// loopback; origin checks add nothing there
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsMessage is one frame of the media stream protocol. The integration
// sends start once, then media frames carrying base64 PCM16LE at the
// negotiated sample rate, then stop or a plain socket close.
type wsMessage struct {
	Event   string `json:"event"` // start, media, stop
	CallID  string `json:"call_id,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// HandleMediaWS accepts one call's media stream over a WebSocket and
// bridges it into the hub as call events plus a capture source
func HandleMediaWS(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.GetLogger()
			logger.Error().Err(err).Msg("Failed to upgrade media connection")
			return
		}
		defer conn.Close()

		logger := observability.WithCorrelationID(observability.NewCorrelationID()).
			With().
			Str("component", "media_ws").
			Logger()

		sess := &mediaSession{hub: hub, logger: logger}
		defer sess.teardown()

		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn().Err(err).Msg("Media connection closed unexpectedly")
				}
				return
			}
			if done := sess.handle(&msg); done {
				return
			}
		}
	}
}

// mediaSession tracks one connection's call state
type mediaSession struct {
	hub    *Hub
	logger zerolog.Logger
	callID string
	source *wsSource
}

// handle processes one protocol frame; it returns true when the stream is
// finished
func (s *mediaSession) handle(msg *wsMessage) bool {
	switch msg.Event {
	case "start":
		if s.source != nil {
			s.logger.Warn().Msg("Duplicate start event ignored")
			return false
		}
		s.callID = msg.CallID
		if s.callID == "" {
			s.callID = uuid.New().String()
		}
		s.source = newWSSource()
		s.logger.Info().Str("call_id", s.callID).Msg("Call media stream started")
		s.hub.Publish(CallEvent{CallID: s.callID, State: StateRinging})
		s.hub.Publish(CallEvent{CallID: s.callID, State: StateActive, Source: s.source})

	case "media":
		if s.source == nil {
			s.logger.Warn().Msg("Media frame before start event dropped")
			return false
		}
		samples, err := decodePCM16(msg.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to decode media payload")
			return false
		}
		s.source.push(samples)

	case "stop":
		s.logger.Info().Str("call_id", s.callID).Msg("Call media stream stopped")
		return true

	default:
		s.logger.Debug().Str("event", msg.Event).Msg("Unknown media event ignored")
	}
	return false
}

// teardown ends the stream and announces the disconnect exactly once
func (s *mediaSession) teardown() {
	if s.source == nil {
		return
	}
	s.source.end()
	s.hub.Publish(CallEvent{CallID: s.callID, State: StateDisconnected})
}

// decodePCM16 converts a base64 PCM16LE payload to normalized floats
func decodePCM16(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return out, nil
}

// wsSource bridges websocket media frames into the capture.Source the
// monitor reads from. Pushes never block the socket reader: when the
// monitor falls behind, frames are dropped.
type wsSource struct {
	ch      chan []float32
	done    chan struct{}
	endOnce sync.Once

	mu      sync.Mutex
	pending []float32
}

func newWSSource() *wsSource {
	return &wsSource{
		ch:   make(chan []float32, 64),
		done: make(chan struct{}),
	}
}

func (s *wsSource) push(samples []float32) {
	select {
	case <-s.done:
	case s.ch <- samples:
	default:
		// Reader stalled; dropping keeps the socket live
	}
}

// end marks the stream finished; pending audio already queued is discarded
func (s *wsSource) end() {
	s.endOnce.Do(func() { close(s.done) })
}

func (s *wsSource) Read(ctx context.Context, buf []float32) (int, error) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		n := copy(buf, s.pending)
		s.pending = s.pending[n:]
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.done:
		return 0, io.EOF
	case chunk := <-s.ch:
		n := copy(buf, chunk)
		if n < len(chunk) {
			s.mu.Lock()
			s.pending = append(s.pending, chunk[n:]...)
			s.mu.Unlock()
		}
		return n, nil
	}
}

func (s *wsSource) Close() error {
	s.end()
	return nil
}
