package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"flock/internal/notification/models"
	id "flock/pkg/domain"
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
	s.now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) insert(churchID id.ChurchID, userID *id.UserID, memberID *id.MemberID, title string, offset time.Duration) *models.Notification {
	n := &models.Notification{
		ChurchID:  churchID,
		UserID:    userID,
		MemberID:  memberID,
		Title:     title,
		Message:   "details",
		Channel:   models.ChannelInApp,
		CreatedAt: s.now.Add(offset),
	}
	s.Require().NoError(s.store.Create(s.ctx, n))
	return n
}

func (s *InMemoryStoreSuite) TestListVisibility() {
	me, other := id.UserID(3), id.UserID(4)
	memberID := id.MemberID(42)
	s.insert(7, &me, nil, "mine", 0)
	s.insert(7, &other, nil, "theirs", time.Minute)
	s.insert(7, nil, &memberID, "member only", 2*time.Minute)
	s.insert(7, nil, nil, "broadcast", 3*time.Minute)
	s.insert(8, nil, nil, "elsewhere", 4*time.Minute)

	filter := models.ListFilter{Channels: []models.Channel{models.ChannelInApp}}
	filter.Normalize()
	list, total, err := s.store.List(s.ctx, 7, me, filter)
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Require().Len(list, 2)
	s.Equal("broadcast", list[0].Title)
	s.Equal("mine", list[1].Title)
}

func (s *InMemoryStoreSuite) TestPagination() {
	for i := range 5 {
		s.insert(7, nil, nil, "n", time.Duration(i)*time.Minute)
	}
	filter := models.ListFilter{Page: 2, Limit: 2, Channels: []models.Channel{models.ChannelInApp}}
	filter.Normalize()
	list, total, err := s.store.List(s.ctx, 7, 3, filter)
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Len(list, 2)
}

func (s *InMemoryStoreSuite) TestMarkAllReadReturnsAscendingIDs() {
	me := id.UserID(3)
	a := s.insert(7, &me, nil, "a", 0)
	b := s.insert(7, nil, nil, "b", time.Minute)
	c := s.insert(7, &me, nil, "c", 2*time.Minute)
	s.Require().NoError(s.store.MarkRead(s.ctx, 7, b.ID, s.now))

	ids, err := s.store.MarkAllRead(s.ctx, 7, me, s.now)
	s.Require().NoError(err)
	s.Equal([]id.NotificationID{a.ID, c.ID}, ids)

	again, err := s.store.MarkAllRead(s.ctx, 7, me, s.now)
	s.Require().NoError(err)
	s.Empty(again)
}

func (s *InMemoryStoreSuite) TestChurchScoping() {
	n := s.insert(7, nil, nil, "scoped", 0)

	_, err := s.store.FindByID(s.ctx, 8, n.ID)
	s.ErrorIs(err, ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, 8, n.ID), ErrNotFound)
	s.ErrorIs(s.store.MarkRead(s.ctx, 8, n.ID, s.now), ErrNotFound)

	s.Require().NoError(s.store.Delete(s.ctx, 7, n.ID))
	_, err = s.store.FindByID(s.ctx, 7, n.ID)
	s.ErrorIs(err, ErrNotFound)
}

func (s *InMemoryStoreSuite) TestReturnsCopies() {
	n := s.insert(7, nil, nil, "original", 0)
	got, err := s.store.FindByID(s.ctx, 7, n.ID)
	s.Require().NoError(err)
	got.Title = "mutated"

	again, err := s.store.FindByID(s.ctx, 7, n.ID)
	s.Require().NoError(err)
	s.Equal("original", again.Title)
}
