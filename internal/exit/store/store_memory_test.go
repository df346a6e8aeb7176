package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"flock/internal/exit/models"
	id "flock/pkg/domain"
	"flock/pkg/platform/tx"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) newExit(churchID id.ChurchID, memberID id.MemberID, offset time.Duration) *models.ExitRecord {
	return &models.ExitRecord{
		ChurchID:  churchID,
		MemberID:  memberID,
		ExitType:  models.ExitTypeVoluntary,
		ExitDate:  s.now.Add(offset),
		Status:    models.StatusActive,
		CreatedAt: s.now.Add(offset),
		UpdatedAt: s.now.Add(offset),
	}
}

func (s *InMemoryStoreSuite) TestCreateAssignsIDs() {
	a := s.newExit(7, 42, 0)
	b := s.newExit(7, 43, 0)
	s.Require().NoError(s.store.Create(s.ctx, a))
	s.Require().NoError(s.store.Create(s.ctx, b))
	s.NotZero(a.ID)
	s.Greater(b.ID, a.ID)
}

func (s *InMemoryStoreSuite) TestOneActivePerMember() {
	s.Require().NoError(s.store.Create(s.ctx, s.newExit(7, 42, 0)))

	s.Run("second active rejected", func() {
		err := s.store.Create(s.ctx, s.newExit(7, 42, time.Minute))
		s.ErrorIs(err, ErrDuplicateActive)
	})

	s.Run("suggestions are not constrained", func() {
		suggestion := s.newExit(7, 42, time.Minute)
		suggestion.IsSuggestion = true
		s.NoError(s.store.Create(s.ctx, suggestion))
	})

	s.Run("other church is independent", func() {
		s.NoError(s.store.Create(s.ctx, s.newExit(8, 42, 0)))
	})
}

func (s *InMemoryStoreSuite) TestUpdateAndFind() {
	rec := s.newExit(7, 42, 0)
	s.Require().NoError(s.store.Create(s.ctx, rec))
	s.Require().NoError(rec.Reinstate(3, s.now.Add(time.Hour)))
	s.Require().NoError(s.store.Update(s.ctx, rec))

	got, err := s.store.FindByID(s.ctx, 7, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusReinstated, got.Status)

	_, err = s.store.FindByID(s.ctx, 8, rec.ID)
	s.ErrorIs(err, ErrNotFound)

	active, err := s.store.HasActive(s.ctx, 7, 42)
	s.Require().NoError(err)
	s.False(active)
}

func (s *InMemoryStoreSuite) TestRollback() {
	runner := tx.NewMemoryRunner(0)
	rec := s.newExit(7, 42, 0)
	s.Require().NoError(s.store.Create(s.ctx, rec))

	err := runner.RunInTx(s.ctx, func(ctx context.Context) error {
		cp := *rec
		if err := cp.SoftDelete(3, s.now); err != nil {
			return err
		}
		if err := s.store.Update(ctx, &cp); err != nil {
			return err
		}
		if err := s.store.Create(ctx, s.newExit(7, 50, 0)); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Require().Error(err)

	got, err := s.store.FindByID(s.ctx, 7, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, got.Status)

	active, err := s.store.HasActive(s.ctx, 7, 50)
	s.Require().NoError(err)
	s.False(active)
}

func (s *InMemoryStoreSuite) TestListAndLatest() {
	first := s.newExit(7, 42, 0)
	s.Require().NoError(s.store.Create(s.ctx, first))
	s.Require().NoError(first.Reinstate(3, s.now.Add(time.Hour)))
	s.Require().NoError(s.store.Update(s.ctx, first))

	second := s.newExit(7, 42, 2*time.Hour)
	second.ExitType = models.ExitTypeRelocated
	s.Require().NoError(s.store.Create(s.ctx, second))
	s.Require().NoError(s.store.Create(s.ctx, s.newExit(7, 43, time.Hour)))

	s.Run("list filters and pages newest first", func() {
		exits, total, err := s.store.List(s.ctx, 7, models.ListFilter{Status: models.StatusActive, Limit: 1})
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Require().Len(exits, 1)
		s.Equal(second.ID, exits[0].ID)
	})

	s.Run("latest per member", func() {
		latest, err := s.store.ListLatestPerMember(s.ctx, 7)
		s.Require().NoError(err)
		s.Require().Len(latest, 2)
		for _, e := range latest {
			if e.MemberID == 42 {
				s.Equal(second.ID, e.ID)
			}
		}
	})

	s.Run("member history oldest first", func() {
		exits, err := s.store.ListByMember(s.ctx, 7, 42)
		s.Require().NoError(err)
		s.Require().Len(exits, 2)
		s.Equal(first.ID, exits[0].ID)
	})

	s.Run("statistics", func() {
		stats, err := s.store.Statistics(s.ctx, 7, s.now.Add(30*time.Minute))
		s.Require().NoError(err)
		s.Equal(3, stats.Total)
		s.Equal(2, stats.ByStatus[models.StatusActive])
		s.Equal(1, stats.ByStatus[models.StatusReinstated])
		s.Equal(1, stats.ByExitType[models.ExitTypeRelocated])
		s.Equal(2, stats.LastThirty)
	})

	s.Run("active records put the non-suggestion first", func() {
		suggestion := s.newExit(7, 42, 3*time.Hour)
		suggestion.IsSuggestion = true
		s.Require().NoError(s.store.Create(s.ctx, suggestion))

		active, err := s.store.ListActive(s.ctx, 7, 42)
		s.Require().NoError(err)
		s.Require().Len(active, 2)
		s.Equal(second.ID, active[0].ID)
		s.Equal(suggestion.ID, active[1].ID)

		all, err := s.store.ListActive(s.ctx, 7, 0)
		s.Require().NoError(err)
		s.Len(all, 3)

		none, err := s.store.ListActive(s.ctx, 8, 0)
		s.Require().NoError(err)
		s.Empty(none)
	})
}
