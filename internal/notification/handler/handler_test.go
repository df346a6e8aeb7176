package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"flock/internal/notification/models"
	"flock/internal/notification/service"
	"flock/internal/notification/store"
	ratelimitmodels "flock/internal/ratelimit/models"
	ratelimit "flock/internal/ratelimit/service"
	"flock/internal/ratelimit/store/bucket"
	"flock/pkg/testutil"
)

type NotificationHandlerSuite struct {
	suite.Suite
	router http.Handler
}

func TestNotificationHandlerSuite(t *testing.T) {
	suite.Run(t, new(NotificationHandlerSuite))
}

func (s *NotificationHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := ratelimit.New(bucket.New(), ratelimit.WithLimits(ratelimitmodels.NotificationLimits{
		User:   ratelimitmodels.Limit{RequestsPerWindow: 1, Window: time.Minute},
		Church: ratelimitmodels.Limit{RequestsPerWindow: 5, Window: time.Minute},
	}))
	s.Require().NoError(err)
	svc := service.New(store.NewInMemory(), store.NewInMemoryPreferences(),
		service.WithLogger(logger),
		service.WithRateLimiter(limiter),
	)

	r := chi.NewRouter()
	r.Use(testutil.Scoped(7, 3))
	New(svc, logger, WithForceRoles("admin")).Register(r)
	s.router = r
}

func (s *NotificationHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	return testutil.Do(s.router, method, path, body)
}

func (s *NotificationHandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *NotificationHandlerSuite) create(body string) *models.Notification {
	rec := s.do(http.MethodPost, "/notifications", body)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var n models.Notification
	s.decode(rec, &n)
	return &n
}

func (s *NotificationHandlerSuite) TestCreate() {
	s.Run("church scope comes from the caller", func() {
		n := s.create(`{"user_id":3,"title":"Welcome","message":"Glad you are here"}`)
		s.Equal(int64(7), int64(n.ChurchID))
		s.Equal(models.ChannelInApp, n.Channel)
	})

	s.Run("user quota maps to 429", func() {
		rec := s.do(http.MethodPost, "/notifications", `{"user_id":3,"title":"Again","message":"Too soon"}`)
		testutil.AssertError(s.T(), rec, http.StatusTooManyRequests, "rate_limit_user")
	})

	s.Run("force needs an elevated role", func() {
		body := `{"user_id":3,"title":"Urgent","message":"Service moved","force":true}`
		rec := s.do(http.MethodPost, "/notifications", body)
		testutil.AssertError(s.T(), rec, http.StatusForbidden, "forbidden")

		rec = testutil.Do(s.router, http.MethodPost, "/notifications", body, testutil.HeaderRole, "member")
		testutil.AssertError(s.T(), rec, http.StatusForbidden, "forbidden")
	})

	s.Run("admin force bypasses the quota", func() {
		rec := testutil.Do(s.router, http.MethodPost, "/notifications",
			`{"user_id":3,"title":"Urgent","message":"Service moved","force":true}`, testutil.HeaderRole, "admin")
		s.Equal(http.StatusCreated, rec.Code, rec.Body.String())
	})

	s.Run("missing title is rejected", func() {
		rec := s.do(http.MethodPost, "/notifications", `{"message":"no title"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown fields are rejected", func() {
		rec := s.do(http.MethodPost, "/notifications", `{"title":"x","message":"y","church_id":9}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *NotificationHandlerSuite) TestListReadAndDelete() {
	first := s.create(`{"user_id":3,"title":"Rota","message":"You serve Sunday"}`)
	s.create(`{"title":"Picnic","message":"Saturday at noon"}`)

	rec := s.do(http.MethodGet, "/notifications?read=false", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var list models.ListResult
	s.decode(rec, &list)
	s.Equal(2, list.Total)

	rec = s.do(http.MethodPost, "/notifications/"+first.ID.String()+"/read", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var read models.Notification
	s.decode(rec, &read)
	s.True(read.Read)

	rec = s.do(http.MethodPost, "/notifications/read-all", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var all markAllReadResponse
	s.decode(rec, &all)
	s.Len(all.IDs, 1)

	rec = s.do(http.MethodDelete, "/notifications/"+first.ID.String(), "")
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/notifications/"+first.ID.String(), "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *NotificationHandlerSuite) TestBadParams() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/notifications?read=maybe", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/notifications?page=-1", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/notifications/abc", "").Code)
}

func (s *NotificationHandlerSuite) TestPreferences() {
	rec := s.do(http.MethodGet, "/notifications/preferences", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var pref models.Preference
	s.decode(rec, &pref)
	s.True(pref.Channels[models.ChannelInApp])

	rec = s.do(http.MethodPut, "/notifications/preferences", `{"channels":{"in_app":false}}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/notifications", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var list models.ListResult
	s.decode(rec, &list)
	s.Zero(list.Total)

	rec = s.do(http.MethodPut, "/notifications/preferences", `{"channels":{"pigeon":true}}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}
