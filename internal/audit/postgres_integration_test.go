//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"heimdall/internal/audit"
	id "heimdall/pkg/domain"
	"heimdall/pkg/testutil/containers"
)

type PostgresSinkSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	sink     *audit.PostgresSink
	ctx      context.Context
}

func TestPostgresSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSinkSuite))
}

func (s *PostgresSinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.sink = audit.NewPostgresSink(s.postgres.DB)
	s.Require().NoError(s.sink.EnsureSchema(context.Background()))
}

func (s *PostgresSinkSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "access_events"))
}

func (s *PostgresSinkSuite) appendEvent(at time.Time, memberID *id.MemberID, decision, reason string) audit.AccessEvent {
	tagID, err := id.ParseTagID("04a22b9f11803c")
	s.Require().NoError(err)

	event := audit.NewAccessEvent(at)
	event.TagID = tagID
	event.MemberID = memberID
	event.Decision = decision
	event.Reason = reason
	s.Require().NoError(s.sink.Append(s.ctx, event))
	return event
}

func (s *PostgresSinkSuite) TestAppendAndListByMember() {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	memberID := id.NewMemberID()

	s.appendEvent(base, nil, "deny", "UNKNOWN_TAG")
	s.appendEvent(base.Add(time.Minute), &memberID, "grant", "OK")
	s.appendEvent(base.Add(2*time.Minute), &memberID, "grant", "OK_STALE")

	events, err := s.sink.ListByMember(s.ctx, memberID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("OK", events[0].Reason)
	s.Equal("OK_STALE", events[1].Reason)
	s.Require().NotNil(events[1].MemberID)
	s.Equal(memberID, *events[1].MemberID)
}

func (s *PostgresSinkSuite) TestListRecentReturnsNewestOldestFirst() {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := range 5 {
		s.appendEvent(base.Add(time.Duration(i)*time.Minute), nil, "deny", "TIMEOUT")
	}
	last := s.appendEvent(base.Add(10*time.Minute), nil, "grant", "OK")

	events, err := s.sink.ListRecent(s.ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(last.ID, events[2].ID)
	s.True(events[0].Timestamp.Before(events[1].Timestamp))
}

func (s *PostgresSinkSuite) TestNullMemberSurvivesRoundTrip() {
	event := s.appendEvent(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), nil, "deny", "UNBOUND_TAG")

	events, err := s.sink.ListRecent(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(event.ID, events[0].ID)
	s.Nil(events[0].MemberID)
}
