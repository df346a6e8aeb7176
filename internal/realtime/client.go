package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/middleware/auth"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Control events sent back to a participant.
const (
	EventAuthenticated = "authenticated"
	EventSubscribed    = "subscribed"
	EventUnsubscribed  = "unsubscribed"
	EventPong          = "pong"
	EventError         = "error"
)

// Inbound frame types.
const (
	TypeAuth        = "auth"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
)

type inbound struct {
	Type     string      `json:"type"`
	Token    string      `json:"token,omitempty"`
	MemberID id.MemberID `json:"member_id,omitempty"`
}

type authenticatedData struct {
	UserID   id.UserID   `json:"user_id"`
	ChurchID id.ChurchID `json:"church_id"`
}

type roomData struct {
	Room string `json:"room"`
}

type errorData struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Client is one WebSocket participant.
type Client struct {
	id     string
	broker *Broker
	conn   *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}

	// rooms is guarded by broker.mu.
	rooms map[string]struct{}

	mu     sync.Mutex
	claims *auth.JWTClaims
}

func newClient(b *Broker, conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		broker: b,
		conn:   conn,
		send:   make(chan []byte, b.sendBuffer),
		done:   make(chan struct{}),
		rooms:  make(map[string]struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Authenticated reports whether a credential was accepted.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claims != nil
}

// enqueue reports false when the frame had to be dropped.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) reply(event string, data any) {
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return
	}
	c.enqueue(msg)
}

func (c *Client) replyError(err error) {
	code := dErrors.CodeOf(err)
	c.reply(EventError, errorData{Error: string(code), ErrorDescription: err.Error()})
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.broker.unregister(c)
		c.close()
		_ = c.conn.Close()
		c.broker.wg.Done()
	}()

	pongWait := c.broker.pingPeriod * 10 / 9
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.broker.logger.DebugContext(ctx, "realtime connection closed", "client_id", c.id, "error", err)
			}
			return
		}
		c.handle(ctx, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.broker.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.broker.wg.Done()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		c.replyError(dErrors.New(dErrors.CodeInvalidPayload, "frame is not valid JSON"))
		return
	}
	switch in.Type {
	case TypeAuth:
		c.authenticate(ctx, in.Token)
	case TypeSubscribe:
		c.subscribe(ctx, in.MemberID)
	case TypeUnsubscribe:
		room := MemberRoom(in.MemberID)
		c.broker.Leave(c, room)
		c.reply(EventUnsubscribed, roomData{Room: room})
	case TypePing:
		c.reply(EventPong, nil)
	default:
		c.replyError(dErrors.New(dErrors.CodeInvalidPayload, "unknown frame type "+in.Type))
	}
}

// authenticate joins the user and church rooms on success. A failed
// attempt leaves the participant connected without delivery.
func (c *Client) authenticate(ctx context.Context, token string) {
	if c.Authenticated() {
		c.replyError(dErrors.New(dErrors.CodeConflict, "already authenticated"))
		return
	}
	if token == "" || c.broker.validator == nil {
		c.replyError(dErrors.New(dErrors.CodeUnauthorized, "missing token"))
		return
	}
	claims, err := c.broker.validator.ValidateToken(token)
	if err != nil {
		c.broker.logger.WarnContext(ctx, "realtime authentication failed", "client_id", c.id, "error", err)
		c.replyError(dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
		return
	}

	c.mu.Lock()
	c.claims = claims
	c.mu.Unlock()

	c.broker.Join(c, UserRoom(claims.UserID))
	c.broker.Join(c, ChurchRoom(claims.ChurchID))
	c.reply(EventAuthenticated, authenticatedData{UserID: claims.UserID, ChurchID: claims.ChurchID})
}

func (c *Client) subscribe(ctx context.Context, memberID id.MemberID) {
	c.mu.Lock()
	claims := c.claims
	c.mu.Unlock()
	if claims == nil {
		c.replyError(dErrors.New(dErrors.CodeUnauthorized, "authenticate before subscribing"))
		return
	}
	if memberID.IsNil() {
		c.replyError(dErrors.New(dErrors.CodeInvalidPayload, "member_id is required"))
		return
	}
	if c.broker.members != nil {
		if _, err := c.broker.members.FindByID(ctx, claims.ChurchID, memberID); err != nil {
			c.replyError(dErrors.New(dErrors.CodeNotFound, "member not found"))
			return
		}
	}
	room := MemberRoom(memberID)
	c.broker.Join(c, room)
	c.reply(EventSubscribed, roomData{Room: room})
}
