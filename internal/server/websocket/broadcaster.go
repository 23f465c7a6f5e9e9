// Package websocket provides the in-process WebSocket broadcaster for
// ksc-server. The Broadcaster fans newly finished compile jobs out to every
// currently-connected client without blocking the REST handler goroutine
// that triggered the compile.
//
// Design notes
//
//   - Each WebSocket client has a dedicated buffered channel of JSON-encoded
//     build status messages. A non-blocking send is used so a slow or
//     disconnected client never applies back-pressure to the compile path.
//   - Clients are tracked in a sync.Map keyed by client ID to allow
//     concurrent reads without a global lock on the hot broadcast path.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// BuildStatus is the JSON envelope pushed to connected clients whenever a
// compile job finishes.
type BuildStatus struct {
	Type    string `json:"type"`
	Unit    string `json:"unit"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Client represents a single connected WebSocket client, created by
// Broadcaster.Register and valid until Broadcaster.Unregister is called.
type Client struct {
	id      string
	send    chan []byte
	Dropped atomic.Int64
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Send returns a receive-only channel on which JSON-encoded build status
// frames are delivered. The channel is closed when the client is
// unregistered.
func (c *Client) Send() <-chan []byte { return c.send }

// Broadcaster fans build status events out to every currently-connected
// WebSocket client. Safe for concurrent use.
type Broadcaster struct {
	clients   sync.Map // map[string]*Client
	clientCnt atomic.Int64

	bufSize int
	logger  *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewBroadcaster creates a Broadcaster. bufSize is the per-client channel
// buffer depth; <= 0 defaults to 64.
func NewBroadcaster(logger *slog.Logger, bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Broadcaster{bufSize: bufSize, logger: logger}
}

// Register creates a new Client with the given id and stores it in the
// broadcaster. The caller must call Unregister(id) when the client
// disconnects.
func (b *Broadcaster) Register(id string) *Client {
	c := &Client{id: id, send: make(chan []byte, b.bufSize)}
	if b.closed.Load() {
		close(c.send)
		return c
	}
	b.clients.Store(id, c)
	b.clientCnt.Add(1)
	return c
}

// Unregister removes the client with id and closes its Send channel.
// Calling Unregister with an unknown id is a no-op.
func (b *Broadcaster) Unregister(id string) {
	if v, loaded := b.clients.LoadAndDelete(id); loaded {
		close(v.(*Client).send)
		b.clientCnt.Add(-1)
	}
}

// ClientCount returns the number of currently registered clients.
func (b *Broadcaster) ClientCount() int {
	return int(b.clientCnt.Load())
}

// NotifyBuild implements rest.BuildNotifier: it marshals a BuildStatus frame
// and broadcasts it to every connected client.
func (b *Broadcaster) NotifyBuild(unit, status, message string) {
	b.Broadcast(BuildStatus{Type: "build", Unit: unit, Status: status, Message: message})
}

// Broadcast marshals msg to JSON and delivers it to every registered client
// via a non-blocking send. When a client's buffer is full the message is
// dropped and the client's Dropped counter is incremented.
func (b *Broadcaster) Broadcast(msg BuildStatus) {
	if b.closed.Load() {
		return
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("websocket broadcaster: marshal failed", slog.Any("error", err))
		return
	}

	b.clients.Range(func(_, v any) bool {
		c := v.(*Client)
		select {
		case c.send <- raw:
		default:
			c.Dropped.Add(1)
			b.logger.Warn("websocket broadcaster: client buffer full, dropping build status",
				slog.String("client_id", c.id))
		}
		return true
	})
}

// Close removes all registered clients, closes every channel, and releases
// internal resources. After Close returns, Broadcast is a no-op.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.clients.Range(func(key, value any) bool {
			b.clients.Delete(key)
			close(value.(*Client).send)
			b.clientCnt.Add(-1)
			return true
		})
	})
}
