package exposition

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meterhub/meterhub/pkg/metrics"
)

// StreamFrame is one snapshot pushed to a stream client.
type StreamFrame struct {
	Timestamp time.Time               `json:"timestamp"`
	Families  []metrics.FamilySamples `json:"families"`
}

// Streamer pushes periodic registry snapshots to WebSocket clients. A single
// broadcast loop gathers once per interval and fans the frame out to
// per-client channels; each client has its own writer goroutine, and a client
// whose channel is full is disconnected rather than backpressuring the loop.
type Streamer struct {
	registry Registry
	interval time.Duration
	upgrader websocket.Upgrader
	submit   func(func()) error

	mu      sync.Mutex
	clients map[string]*streamClient
	closed  bool
}

type streamClient struct {
	conn   *websocket.Conn
	frames chan StreamFrame
}

// NewStreamer creates a streamer gathering every interval.
func NewStreamer(registry Registry, interval time.Duration) *Streamer {
	return &Streamer{
		registry: registry,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[string]*streamClient),
	}
}

// Run drives the broadcast loop until ctx is cancelled. When a task runner is
// set, each broadcast runs as a submitted task; otherwise it runs inline.
func (s *Streamer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.submit == nil {
				s.broadcast()
				continue
			}
			if err := s.submit(s.broadcast); err != nil {
				log.Warn().Err(err).Msg("Stream broadcast skipped")
			}
		}
	}
}

// broadcast gathers one snapshot and fans it out. Clients that have not
// drained the previous frame are dropped.
func (s *Streamer) broadcast() {
	frame := StreamFrame{Timestamp: time.Now(), Families: s.registry.Gather()}

	s.mu.Lock()
	recipients := make(map[string]*streamClient, len(s.clients))
	for id, c := range s.clients {
		recipients[id] = c
	}
	s.mu.Unlock()

	for id, c := range recipients {
		select {
		case c.frames <- frame:
		default:
			log.Debug().Str("client_id", id).Msg("Dropping slow stream client")
			s.drop(id)
		}
	}
}

// drop disconnects a client. Closing the connection wakes its reader, which
// in turn ends the writer loop.
func (s *Streamer) drop(clientID string) {
	s.mu.Lock()
	c, ok := s.clients[clientID]
	if ok {
		delete(s.clients, clientID)
	}
	s.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

// HandleStream upgrades the request and streams snapshots until the client
// disconnects or the streamer closes.
func (s *Streamer) HandleStream(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade stream connection")
		return
	}

	clientID := uuid.New().String()
	c := &streamClient{conn: conn, frames: make(chan StreamFrame, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[clientID] = c
	s.mu.Unlock()

	log.Debug().Str("client_id", clientID).Msg("Stream client connected")

	// Reader goroutine: detect client-side close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		s.mu.Lock()
		delete(s.clients, clientID)
		s.mu.Unlock()
		conn.Close()
		log.Debug().Str("client_id", clientID).Msg("Stream client disconnected")
	}()

	// First frame goes out immediately; the broadcast loop takes over from
	// there.
	first := StreamFrame{Timestamp: time.Now(), Families: s.registry.Gather()}
	conn.SetWriteDeadline(time.Now().Add(s.interval))
	if err := conn.WriteJSON(first); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case frame := <-c.frames:
			conn.SetWriteDeadline(time.Now().Add(s.interval))
			if err := conn.WriteJSON(frame); err != nil {
				log.Debug().Str("client_id", clientID).Err(err).Msg("Dropping slow stream client")
				return
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (s *Streamer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, c := range s.clients {
		c.conn.Close()
		delete(s.clients, id)
	}
}

// ClientCount returns the number of connected stream clients.
func (s *Streamer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
