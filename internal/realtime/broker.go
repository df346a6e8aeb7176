// Package realtime fans events out to WebSocket participants grouped in
// rooms. Emit never blocks: a participant whose send buffer is full misses
// the frame.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	member "flock/internal/member/models"
	"flock/internal/platform/metrics"
	id "flock/pkg/domain"
	"flock/pkg/platform/middleware/auth"
)

const (
	defaultSendBuffer = 64
	defaultPingPeriod = 30 * time.Second
)

// ErrShutdown is returned by Run after Shutdown was called.
var ErrShutdown = errors.New("realtime broker shut down")

// Frame is the JSON envelope of every outbound message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// MemberFinder scopes member room subscriptions to the participant's church.
type MemberFinder interface {
	FindByID(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) (*member.Member, error)
}

type Broker struct {
	validator auth.JWTValidator
	members   MemberFinder
	logger    *slog.Logger
	metrics   *metrics.Metrics
	upgrader  websocket.Upgrader

	sendBuffer int
	pingPeriod time.Duration

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	closing bool
	wg      sync.WaitGroup

	stopOnce sync.Once
	stop     chan struct{}
}

type Option func(*Broker)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

func WithMemberFinder(f MemberFinder) Option {
	return func(b *Broker) {
		b.members = f
	}
}

func WithSendBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.sendBuffer = n
		}
	}
}

func WithPingPeriod(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.pingPeriod = d
		}
	}
}

// WithCheckOrigin replaces the same-origin check applied on upgrade.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(b *Broker) {
		b.upgrader.CheckOrigin = check
	}
}

func New(validator auth.JWTValidator, opts ...Option) *Broker {
	b := &Broker{
		validator:  validator,
		logger:     slog.Default(),
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		sendBuffer: defaultSendBuffer,
		pingPeriod: defaultPingPeriod,
		rooms:      make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run blocks until ctx is cancelled or Shutdown is called, then
// disconnects every participant.
func (b *Broker) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		b.shutdown()
		return ctx.Err()
	case <-b.stop:
		return ErrShutdown
	}
}

// Shutdown refuses new connections, closes the open ones and waits for
// their goroutines until ctx expires.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.shutdown()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) shutdown() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closing = true
		clients := make([]*Client, 0, len(b.clients))
		for c := range b.clients {
			clients = append(clients, c)
		}
		b.mu.Unlock()
		for _, c := range clients {
			c.close()
		}
		close(b.stop)
	})
}

// Emit sends event to every participant in room.
func (b *Broker) Emit(room string, event string, payload any) {
	b.EmitMany([]string{room}, event, payload)
}

// EmitMany sends event once to every participant in any of rooms.
func (b *Broker) EmitMany(rooms []string, event string, payload any) {
	msg, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		b.logger.Error("encode realtime frame", "event", event, "error", err)
		return
	}

	b.mu.RLock()
	targets := make(map[*Client]struct{})
	for _, room := range rooms {
		for c := range b.rooms[room] {
			targets[c] = struct{}{}
		}
	}
	b.mu.RUnlock()

	for c := range targets {
		if !c.enqueue(msg) {
			if b.metrics != nil {
				b.metrics.IncrementRealtimeFramesDropped()
			}
			b.logger.Debug("realtime frame dropped", "client_id", c.id, "event", event)
		}
	}
}

// RoomSize returns the number of participants in room.
func (b *Broker) RoomSize(room string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[room])
}

// Join adds c to room. Unregistered clients are ignored.
func (b *Broker) Join(c *Client, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; !ok {
		return
	}
	members, ok := b.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		b.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (b *Broker) Leave(c *Client, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(c, room)
}

func (b *Broker) leaveLocked(c *Client, room string) {
	if members, ok := b.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(b.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// register starts tracking c. It fails once shutdown began.
func (b *Broker) register(c *Client) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return false
	}
	b.clients[c] = struct{}{}
	b.wg.Add(2)
	if b.metrics != nil {
		b.metrics.IncrementRealtimeConnections()
	}
	return true
}

func (b *Broker) unregister(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		b.leaveLocked(c, room)
	}
	delete(b.clients, c)
	if b.metrics != nil {
		b.metrics.DecrementRealtimeConnections()
	}
}
