package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunter-hues/emotevote/internal/domain"
)

func activeEvent(creator *domain.User, createdAt time.Time) *domain.VotingEvent {
	return &domain.VotingEvent{
		ID:            uuid.New(),
		CreatorID:     creator.ID,
		ScheduleMode:  domain.ScheduleDuration,
		DurationHours: 24,
		Permission:    domain.PermissionAll,
		IsActive:      true,
		CreatedAt:     createdAt,
	}
}

func TestSubmitVote_Validation(t *testing.T) {
	svc, _ := newTestService(testClock())

	_, err := svc.SubmitVote(context.Background(), uuid.New(), uuid.New(), "", domain.ChoiceKeep)
	requireRejection(t, err, "Emote is required")

	_, err = svc.SubmitVote(context.Background(), uuid.New(), uuid.New(), "emote-1", "maybe")
	requireRejection(t, err, "Invalid vote choice")
}

func TestSubmitVote_RecordsOutcome(t *testing.T) {
	clock := testClock()
	svc, m := newTestService(clock)
	voter := userFixture("bob")
	creator := userFixture("alice")
	m.users.getByIDFn = usersByID(voter, creator)

	ev := activeEvent(creator, clock.Now().Add(-time.Hour))
	m.events.getByIDFn = func(_ context.Context, _ uuid.UUID) (*domain.VotingEvent, error) { return ev, nil }

	m.votes.submitFn = func(_ context.Context, eventID, voterID uuid.UUID, emoteID string, choice domain.VoteChoice) (domain.VoteOutcome, error) {
		assert.Equal(t, ev.ID, eventID)
		assert.Equal(t, voter.ID, voterID)
		assert.Equal(t, "emote-1", emoteID)
		assert.Equal(t, domain.ChoiceRemove, choice)
		return domain.VoteUpdated, nil
	}

	outcome, err := svc.SubmitVote(context.Background(), voter.ID, ev.ID, "emote-1", domain.ChoiceRemove)
	require.NoError(t, err)
	assert.Equal(t, domain.VoteUpdated, outcome)
}

func TestSubmitVote_ExpiredEventRefused(t *testing.T) {
	clock := testClock()
	svc, m := newTestService(clock)
	voter := userFixture("bob")
	creator := userFixture("alice")
	m.users.getByIDFn = usersByID(voter, creator)

	ev := activeEvent(creator, clock.Now().Add(-48*time.Hour))
	m.events.getByIDFn = func(_ context.Context, _ uuid.UUID) (*domain.VotingEvent, error) { return ev, nil }

	var expired []uuid.UUID
	m.events.markExpiredFn = func(_ context.Context, ids []uuid.UUID) error {
		expired = ids
		return nil
	}

	_, err := svc.SubmitVote(context.Background(), voter.ID, ev.ID, "emote-1", domain.ChoiceKeep)
	requireRejection(t, err, "Voting has ended")
	assert.Equal(t, []uuid.UUID{ev.ID}, expired)
	assert.False(t, ev.IsActive, "flag corrected in memory too")
}

func TestSubmitVote_InvisibleEventRefused(t *testing.T) {
	clock := testClock()
	svc, m := newTestService(clock)
	voter := userFixture("bob")
	creator := userFixture("alice")
	m.users.getByIDFn = usersByID(voter, creator)

	ev := activeEvent(creator, clock.Now().Add(-time.Hour))
	ev.Permission = domain.PermissionSpecific
	ev.SpecificUsers = []string{"carol"}
	m.events.getByIDFn = func(_ context.Context, _ uuid.UUID) (*domain.VotingEvent, error) { return ev, nil }

	_, err := svc.SubmitVote(context.Background(), voter.ID, ev.ID, "emote-1", domain.ChoiceKeep)
	requireRejection(t, err, "Permission denied")
}

func TestSubmitVote_FollowersTierUsesPointLookup(t *testing.T) {
	clock := testClock()
	svc, m := newTestService(clock)
	voter := userFixture("bob")
	creator := userFixture("alice")
	m.users.getByIDFn = usersByID(voter, creator)

	ev := activeEvent(creator, clock.Now().Add(-time.Hour))
	ev.Permission = domain.PermissionFollowers
	m.events.getByIDFn = func(_ context.Context, _ uuid.UUID) (*domain.VotingEvent, error) { return ev, nil }

	m.graph.isFollowingFn = func(_ context.Context, viewer, broadcaster *domain.User) (bool, error) {
		assert.Equal(t, voter.ID, viewer.ID)
		assert.Equal(t, creator.ID, broadcaster.ID)
		return true, nil
	}
	m.graph.followedBroadcasterIDsFn = func(_ context.Context, _ *domain.User) (map[string]struct{}, error) {
		t.Fatal("single submission must not fetch the whole follow set")
		return nil, nil
	}

	outcome, err := svc.SubmitVote(context.Background(), voter.ID, ev.ID, "emote-1", domain.ChoiceKeep)
	require.NoError(t, err)
	assert.Equal(t, domain.VoteCreated, outcome)
}

func TestSubmitVote_UnknownEvent(t *testing.T) {
	svc, m := newTestService(testClock())
	voter := userFixture("bob")
	m.users.getByIDFn = usersByID(voter)

	_, err := svc.SubmitVote(context.Background(), voter.ID, uuid.New(), "emote-1", domain.ChoiceKeep)
	requireRejection(t, err, "Voting event not found")
}

func TestSubmitVotes_Batch(t *testing.T) {
	clock := testClock()
	svc, m := newTestService(clock)
	voter := userFixture("bob")
	creator := userFixture("alice")
	m.users.getByIDFn = usersByID(voter, creator)

	ev := activeEvent(creator, clock.Now().Add(-time.Hour))
	m.events.getByIDFn = func(_ context.Context, _ uuid.UUID) (*domain.VotingEvent, error) { return ev, nil }

	m.votes.submitBatchFn = func(_ context.Context, _, _ uuid.UUID, submissions []domain.VoteSubmission) (*domain.BatchVoteResult, error) {
		assert.Len(t, submissions, 3)
		return &domain.BatchVoteResult{Created: 1, Updated: 1, Skipped: 1}, nil
	}

	result, err := svc.SubmitVotes(context.Background(), voter.ID, ev.ID, []domain.VoteSubmission{
		{EmoteID: "e1", Choice: domain.ChoiceKeep},
		{EmoteID: "e2", Choice: domain.ChoiceRemove},
		{EmoteID: "e3", Choice: domain.ChoiceNeutral},
	})
	require.NoError(t, err)
	assert.Equal(t, &domain.BatchVoteResult{Created: 1, Updated: 1, Skipped: 1}, result)
}

func TestSubmitVotes_Validation(t *testing.T) {
	svc, _ := newTestService(testClock())

	_, err := svc.SubmitVotes(context.Background(), uuid.New(), uuid.New(), nil)
	requireRejection(t, err, "No votes submitted")

	_, err = svc.SubmitVotes(context.Background(), uuid.New(), uuid.New(), []domain.VoteSubmission{
		{EmoteID: "e1", Choice: domain.ChoiceKeep},
		{EmoteID: "", Choice: domain.ChoiceKeep},
	})
	requireRejection(t, err, "Emote is required")

	_, err = svc.SubmitVotes(context.Background(), uuid.New(), uuid.New(), []domain.VoteSubmission{
		{EmoteID: "e1", Choice: "sideways"},
	})
	requireRejection(t, err, "Invalid vote choice")
}

func TestEventCounts(t *testing.T) {
	clock := testClock()
	svc, m := newTestService(clock)
	viewer := userFixture("bob")
	creator := userFixture("alice")
	m.users.getByIDFn = usersByID(viewer, creator)

	ev := activeEvent(creator, clock.Now().Add(-time.Hour))
	m.events.getByIDFn = func(_ context.Context, _ uuid.UUID) (*domain.VotingEvent, error) { return ev, nil }

	m.votes.countsFn = func(_ context.Context, _ uuid.UUID) (map[string]domain.VoteCounts, error) {
		return map[string]domain.VoteCounts{"e1": {Keep: 2, Remove: 1}}, nil
	}
	m.votes.uniqueVotersFn = func(_ context.Context, _ uuid.UUID) (int, error) { return 3, nil }

	counts, voters, err := svc.EventCounts(context.Background(), viewer.ID, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, voters)
	assert.Equal(t, domain.VoteCounts{Keep: 2, Remove: 1}, counts["e1"])
}

func TestEventCounts_DeniedWithoutVisibility(t *testing.T) {
	clock := testClock()
	svc, m := newTestService(clock)
	viewer := userFixture("bob")
	creator := userFixture("alice")
	m.users.getByIDFn = usersByID(viewer, creator)

	ev := activeEvent(creator, clock.Now().Add(-time.Hour))
	ev.Permission = domain.PermissionFollowers
	m.events.getByIDFn = func(_ context.Context, _ uuid.UUID) (*domain.VotingEvent, error) { return ev, nil }

	_, _, err := svc.EventCounts(context.Background(), viewer.ID, ev.ID)
	requireRejection(t, err, "Permission denied")
}

func TestCheckVote(t *testing.T) {
	svc, m := newTestService(testClock())
	voter := userFixture("bob")
	eventID := uuid.New()

	m.votes.choicesForVoterFn = func(_ context.Context, _, _ uuid.UUID) (map[string]domain.VoteChoice, error) {
		return map[string]domain.VoteChoice{"e1": domain.ChoiceKeep}, nil
	}

	choice, found, err := svc.CheckVote(context.Background(), voter.ID, eventID, "e1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.ChoiceKeep, choice)

	_, found, err = svc.CheckVote(context.Background(), voter.ID, eventID, "e2")
	require.NoError(t, err)
	assert.False(t, found)
}
