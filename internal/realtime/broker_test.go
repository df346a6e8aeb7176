package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	member "flock/internal/member/models"
	memberstore "flock/internal/member/store"
	id "flock/pkg/domain"
	"flock/pkg/platform/middleware/auth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// staticValidator accepts the tokens it was built with.
type staticValidator map[string]*auth.JWTClaims

func (v staticValidator) ValidateToken(token string) (*auth.JWTClaims, error) {
	claims, ok := v[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type receivedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type BrokerSuite struct {
	suite.Suite
	broker *Broker
	server *httptest.Server
	wsURL  string
}

func TestBrokerSuite(t *testing.T) {
	suite.Run(t, new(BrokerSuite))
}

func (s *BrokerSuite) SetupTest() {
	members := memberstore.NewInMemory()
	for _, m := range []struct {
		memberID id.MemberID
		churchID id.ChurchID
	}{{42, 7}, {77, 8}} {
		rec, err := member.NewMember(m.memberID, m.churchID, "Ada", "Obi", time.Now())
		s.Require().NoError(err)
		s.Require().NoError(members.Save(context.Background(), rec))
	}

	s.broker = New(staticValidator{
		"pastor": {UserID: 3, ChurchID: 7, Role: "admin"},
		"usher":  {UserID: 4, ChurchID: 7, Role: "member"},
	},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMemberFinder(members),
	)
	s.server = httptest.NewServer(s.broker)
	s.wsURL = "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *BrokerSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.broker.Shutdown(ctx))
	s.server.Close()
}

func (s *BrokerSuite) dial(query string, header http.Header) *websocket.Conn {
	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL+query, header)
	s.Require().NoError(err)
	_ = resp.Body.Close()
	return conn
}

func (s *BrokerSuite) read(conn *websocket.Conn) receivedFrame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var f receivedFrame
	s.Require().NoError(conn.ReadJSON(&f))
	return f
}

func (s *BrokerSuite) send(conn *websocket.Conn, v any) {
	s.Require().NoError(conn.WriteJSON(v))
}

// eventually polls cond; room joins land asynchronously for frame auth.
func (s *BrokerSuite) eventually(cond func() bool) {
	s.Require().Eventually(cond, 2*time.Second, 10*time.Millisecond)
}

// ====================================================================
// Authentication
// ====================================================================

func (s *BrokerSuite) TestHeaderAuthentication() {
	conn := s.dial("", http.Header{"Authorization": {"Bearer pastor"}})
	defer conn.Close()

	f := s.read(conn)
	s.Equal(EventAuthenticated, f.Event)
	s.JSONEq(`{"user_id":3,"church_id":7}`, string(f.Data))
	s.Equal(1, s.broker.RoomSize("user:3"))
	s.Equal(1, s.broker.RoomSize("church:7"))

	s.broker.Emit("user:3", "notification", map[string]any{"id": 9})
	f = s.read(conn)
	s.Equal("notification", f.Event)
	s.JSONEq(`{"id":9}`, string(f.Data))
}

func (s *BrokerSuite) TestQueryTokenAuthentication() {
	conn := s.dial("?token=usher", nil)
	defer conn.Close()

	s.Equal(EventAuthenticated, s.read(conn).Event)
	s.Equal(1, s.broker.RoomSize("user:4"))
}

func (s *BrokerSuite) TestFrameAuthentication() {
	conn := s.dial("", nil)
	defer conn.Close()

	s.send(conn, map[string]string{"type": TypeAuth, "token": "pastor"})
	s.Equal(EventAuthenticated, s.read(conn).Event)

	s.Run("second auth is rejected", func() {
		s.send(conn, map[string]string{"type": TypeAuth, "token": "usher"})
		f := s.read(conn)
		s.Equal(EventError, f.Event)
		s.Contains(string(f.Data), "conflict")
	})
}

func (s *BrokerSuite) TestFailedAuthenticationStaysConnectedWithoutDelivery() {
	conn := s.dial("?token=forged", nil)
	defer conn.Close()

	f := s.read(conn)
	s.Equal(EventError, f.Event)
	s.Contains(string(f.Data), "unauthorized")
	s.Zero(s.broker.RoomSize("church:7"))

	s.send(conn, map[string]string{"type": TypePing})
	s.Equal(EventPong, s.read(conn).Event)

	s.send(conn, map[string]string{"type": TypeAuth, "token": "usher"})
	s.Equal(EventAuthenticated, s.read(conn).Event)
}

// ====================================================================
// Rooms
// ====================================================================

func (s *BrokerSuite) TestMemberSubscription() {
	conn := s.dial("", nil)
	defer conn.Close()

	s.Run("requires authentication", func() {
		s.send(conn, map[string]any{"type": TypeSubscribe, "member_id": 42})
		f := s.read(conn)
		s.Equal(EventError, f.Event)
		s.Contains(string(f.Data), "unauthorized")
	})

	s.send(conn, map[string]string{"type": TypeAuth, "token": "pastor"})
	s.Require().Equal(EventAuthenticated, s.read(conn).Event)

	s.Run("members of another church are hidden", func() {
		s.send(conn, map[string]any{"type": TypeSubscribe, "member_id": 77})
		f := s.read(conn)
		s.Equal(EventError, f.Event)
		s.Contains(string(f.Data), "not_found")
	})

	s.send(conn, map[string]any{"type": TypeSubscribe, "member_id": 42})
	f := s.read(conn)
	s.Equal(EventSubscribed, f.Event)
	s.JSONEq(`{"room":"member:42"}`, string(f.Data))

	s.Run("EmitMany delivers once per participant", func() {
		s.broker.EmitMany([]string{"church:7", "member:42"}, "member:exited", map[string]any{"member_id": 42})
		s.Equal("member:exited", s.read(conn).Event)

		s.broker.Emit("user:3", "marker", nil)
		s.Equal("marker", s.read(conn).Event)
	})

	s.send(conn, map[string]any{"type": TypeUnsubscribe, "member_id": 42})
	s.Equal(EventUnsubscribed, s.read(conn).Event)
	s.Zero(s.broker.RoomSize("member:42"))
}

func (s *BrokerSuite) TestMalformedFrames() {
	conn := s.dial("", nil)
	defer conn.Close()

	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	s.Contains(string(s.read(conn).Data), "invalid_payload")

	s.send(conn, map[string]string{"type": "dance"})
	s.Contains(string(s.read(conn).Data), "invalid_payload")
}

func (s *BrokerSuite) TestDisconnectLeavesRooms() {
	conn := s.dial("?token=pastor", nil)
	s.Require().Equal(EventAuthenticated, s.read(conn).Event)
	s.Require().NoError(conn.Close())

	s.eventually(func() bool { return s.broker.RoomSize("church:7") == 0 })
}

// ====================================================================
// Lifecycle
// ====================================================================

func (s *BrokerSuite) TestShutdownClosesParticipants() {
	conn := s.dial("?token=pastor", nil)
	defer conn.Close()
	s.Require().Equal(EventAuthenticated, s.read(conn).Event)

	runErr := make(chan error, 1)
	go func() { runErr <- s.broker.Run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.broker.Shutdown(ctx))
	s.ErrorIs(<-runErr, ErrShutdown)

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	s.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	s.Require().ErrorIs(err, websocket.ErrBadHandshake)
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
}

func (s *BrokerSuite) TestRunStopsOnContextCancel() {
	conn := s.dial("?token=usher", nil)
	defer conn.Close()
	s.Require().Equal(EventAuthenticated, s.read(conn).Event)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ErrorIs(s.broker.Run(ctx), context.Canceled)
	s.eventually(func() bool { return s.broker.RoomSize("user:4") == 0 })
}

func TestEmitDropsWhenBufferFull(t *testing.T) {
	b := New(nil, WithSendBuffer(1), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	c := newClient(b, nil)
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	b.Join(c, "church:7")

	b.Emit("church:7", "first", nil)
	b.Emit("church:7", "second", nil)

	if got := len(c.send); got != 1 {
		t.Fatalf("expected one buffered frame, got %d", got)
	}
	var f receivedFrame
	if err := json.Unmarshal(<-c.send, &f); err != nil || f.Event != "first" {
		t.Fatalf("unexpected frame %+v (%v)", f, err)
	}
}
