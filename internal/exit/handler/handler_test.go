package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"flock/internal/exit/models"
	"flock/internal/exit/service"
	exitstore "flock/internal/exit/store"
	member "flock/internal/member/models"
	memberstore "flock/internal/member/store"
	id "flock/pkg/domain"
	"flock/pkg/platform/middleware/auth"
	"flock/pkg/platform/tx"
	"flock/pkg/requestcontext"
	"flock/pkg/testutil"
)

type ExitHandlerSuite struct {
	suite.Suite
	router  http.Handler
	members *memberstore.InMemory
}

func TestExitHandlerSuite(t *testing.T) {
	suite.Run(t, new(ExitHandlerSuite))
}

func (s *ExitHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.members = memberstore.NewInMemory()
	for _, memberID := range []id.MemberID{42, 43, 44} {
		m, err := member.NewMember(memberID, 7, "Ada", "Obi", requestcontext.Now(context.Background()))
		s.Require().NoError(err)
		s.Require().NoError(s.members.Save(context.Background(), m))
	}
	svc := service.New(exitstore.NewInMemory(), s.members, tx.NewMemoryRunner(0), service.WithLogger(logger))

	h := New(svc, logger, WithRepairGuard(auth.RequireRole(logger, "admin")))
	r := chi.NewRouter()
	r.Use(testutil.Scoped(7, 3))
	h.Register(r)
	s.router = r
}

func (s *ExitHandlerSuite) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	return testutil.Do(s.router, method, path, body, headers...)
}

func (s *ExitHandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *ExitHandlerSuite) createExit(memberID int) models.ExitRecord {
	rec := s.do(http.MethodPost, "/exits", `{"member_id":`+jsonInt(memberID)+`,"exit_type":"relocated"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var exit models.ExitRecord
	s.decode(rec, &exit)
	return exit
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func (s *ExitHandlerSuite) TestCreateAndDuplicate() {
	exit := s.createExit(42)
	s.Equal(id.ChurchID(7), exit.ChurchID)
	s.Equal(models.StatusActive, exit.Status)

	rec := s.do(http.MethodPost, "/exits", `{"member_id":42,"exit_type":"deceased"}`)
	testutil.AssertError(s.T(), rec, http.StatusConflict, "duplicate_active_exit")
}

func (s *ExitHandlerSuite) TestCreateRejectsBadPayload() {
	s.Run("unknown exit type", func() {
		rec := s.do(http.MethodPost, "/exits", `{"member_id":42,"exit_type":"raptured"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
	s.Run("unknown field", func() {
		rec := s.do(http.MethodPost, "/exits", `{"member_id":42,"exit_type":"other","church_id":9}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
	s.Run("missing member", func() {
		rec := s.do(http.MethodPost, "/exits", `{"member_id":999,"exit_type":"other"}`)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *ExitHandlerSuite) TestGetListAndStatistics() {
	exit := s.createExit(42)

	rec := s.do(http.MethodGet, "/exits/"+exit.ID.String(), "")
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/exits/abc", "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/exits/999", "")
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/exits?status=ACTIVE&limit=5", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var list models.ListResult
	s.decode(rec, &list)
	s.Equal(1, list.Total)
	s.Equal(5, list.Limit)

	rec = s.do(http.MethodGet, "/exits?status=bogus", "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/exits/statistics", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var stats models.Statistics
	s.decode(rec, &stats)
	s.Equal(1, stats.Total)
}

func (s *ExitHandlerSuite) TestReinstateAndHistory() {
	exit := s.createExit(42)

	rec := s.do(http.MethodPost, "/exits/"+exit.ID.String()+"/reinstate", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/exits/"+exit.ID.String()+"/reinstate", "")
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/members/42/exit-history", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var history historyResponse
	s.decode(rec, &history)
	s.Len(history.Events, 2)
}

func (s *ExitHandlerSuite) TestUpdateAndDelete() {
	exit := s.createExit(42)

	rec := s.do(http.MethodPatch, "/exits/"+exit.ID.String(), `{"exit_type":"transferred"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	var updated models.ExitRecord
	s.decode(rec, &updated)
	s.Equal(models.ExitTypeTransferred, updated.ExitType)

	rec = s.do(http.MethodDelete, "/exits/"+exit.ID.String(), "")
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, "/exits/"+exit.ID.String(), "")
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *ExitHandlerSuite) TestBulkReinstate() {
	a := s.createExit(42)
	b := s.createExit(43)

	rec := s.do(http.MethodPost, "/exits/bulk-reinstate", `{"ids":[`+a.ID.String()+`,`+b.ID.String()+`]}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	var res models.BulkResult
	s.decode(rec, &res)
	s.Equal(2, res.Processed)

	rec = s.do(http.MethodPost, "/exits/bulk-delete", `{"ids":[]}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ExitHandlerSuite) TestRepairRoutesRequireAdmin() {
	exit := s.createExit(42)
	s.Require().NoError(s.members.Restore(context.Background(), 7, 42, requestcontext.Now(context.Background())))

	rec := s.do(http.MethodGet, "/exits/inconsistencies", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var found inconsistenciesResponse
	s.decode(rec, &found)
	s.Equal(1, found.Total)

	rec = s.do(http.MethodPost, "/exits/inconsistencies/fix-all", "")
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/exits/"+exit.ID.String()+"/fix", "", testutil.HeaderRole, "admin")
	s.Require().Equal(http.StatusOK, rec.Code)
	var fix models.FixResult
	s.decode(rec, &fix)
	s.True(fix.Fixed)

	rec = s.do(http.MethodPost, "/exits/inconsistencies/fix-all", "", testutil.HeaderRole, "admin")
	s.Require().Equal(http.StatusOK, rec.Code)
	var all fixAllResponse
	s.decode(rec, &all)
	s.Zero(all.Fixed)
}
