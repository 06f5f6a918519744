// Package source receives chat traffic from the external transport client.
// The transport itself (sessions, auth, chat protocol) lives outside this
// process; it connects to the bridge's websocket endpoint and pushes typed
// JSON frames carrying message events and channel metadata.
package source

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/models"
)

// Frame types on the bridge wire.
const (
	FrameMessage     = "message"
	FrameChannelInfo = "channel_info"
)

// Frame is the envelope the transport client sends.
type Frame struct {
	Type    string               `json:"type"`
	Message *models.MessageEvent `json:"message,omitempty"`
	Channel *models.ChannelInfo  `json:"channel,omitempty"`
}

// Bridge hosts the websocket endpoint and fans received message events into
// a buffered channel. A full buffer drops the event; the priority queue
// behind the bridge is the real backpressure point, so the buffer only
// absorbs bursts.
type Bridge struct {
	upgrader  websocket.Upgrader
	directory *Directory
	events    chan models.MessageEvent

	mu      sync.Mutex
	dropped int64
}

// NewBridge builds a bridge. buffer <= 0 selects 256.
func NewBridge(directory *Directory, buffer int) *Bridge {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bridge{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
		directory: directory,
		events:    make(chan models.MessageEvent, buffer),
	}
}

// Events is the stream of received message events.
func (b *Bridge) Events() <-chan models.MessageEvent {
	return b.events
}

// Dropped reports events lost to a full buffer.
func (b *Bridge) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// ServeHTTP upgrades the connection and reads frames until the client
// disconnects. Malformed frames are logged and skipped; the connection
// survives them.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	log.Info().Str("remote", r.RemoteAddr).Msg("transport client connected")

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("transport client connection lost")
			} else {
				log.Info().Msg("transport client disconnected")
			}
			return
		}
		b.handle(frame)
	}
}

func (b *Bridge) handle(frame Frame) {
	switch frame.Type {
	case FrameMessage:
		if frame.Message == nil {
			log.Warn().Msg("message frame without payload, skipped")
			return
		}
		select {
		case b.events <- *frame.Message:
		default:
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
			log.Warn().
				Str("channel", frame.Message.ChannelName).
				Str("message_id", frame.Message.MessageID).
				Msg("bridge buffer full, event dropped")
		}
	case FrameChannelInfo:
		if frame.Channel == nil {
			log.Warn().Msg("channel_info frame without payload, skipped")
			return
		}
		if b.directory != nil {
			b.directory.Update(*frame.Channel)
		}
	default:
		log.Warn().Str("type", frame.Type).Msg("unknown frame type, skipped")
	}
}
