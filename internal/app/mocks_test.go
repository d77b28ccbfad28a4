package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/hunter-hues/emotevote/internal/domain"
)

// --- Mock implementations ---

type mockUserRepo struct {
	getByIDFn       func(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	getByUsernameFn func(ctx context.Context, twitchUsername string) (*domain.User, error)
	upsertFn        func(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.User, error)
	updateTokensFn  func(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, tokenExpiry time.Time) error
	setSevenTVIDFn  func(ctx context.Context, userID uuid.UUID, sevenTVID string) error
}

func (m *mockUserRepo) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, userID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, twitchUsername string) (*domain.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, twitchUsername)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockUserRepo) Upsert(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.User, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, twitchUserID, twitchUsername, accessToken, refreshToken, tokenExpiry)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockUserRepo) UpdateTokens(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, tokenExpiry time.Time) error {
	if m.updateTokensFn != nil {
		return m.updateTokensFn(ctx, userID, accessToken, refreshToken, tokenExpiry)
	}
	return nil
}

func (m *mockUserRepo) SetSevenTVID(ctx context.Context, userID uuid.UUID, sevenTVID string) error {
	if m.setSevenTVIDFn != nil {
		return m.setSevenTVIDFn(ctx, userID, sevenTVID)
	}
	return nil
}

type mockEventRepo struct {
	createFn      func(ctx context.Context, ev *domain.VotingEvent) (*domain.VotingEvent, error)
	getByIDFn     func(ctx context.Context, eventID uuid.UUID) (*domain.VotingEvent, error)
	listFn        func(ctx context.Context) ([]*domain.VotingEvent, error)
	updateFn      func(ctx context.Context, ev *domain.VotingEvent, removedUsers []string) error
	markExpiredFn func(ctx context.Context, eventIDs []uuid.UUID) error
}

func (m *mockEventRepo) Create(ctx context.Context, ev *domain.VotingEvent) (*domain.VotingEvent, error) {
	if m.createFn != nil {
		return m.createFn(ctx, ev)
	}
	created := *ev
	created.ID = uuid.New()
	return &created, nil
}

func (m *mockEventRepo) GetByID(ctx context.Context, eventID uuid.UUID) (*domain.VotingEvent, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, eventID)
	}
	return nil, domain.ErrEventNotFound
}

func (m *mockEventRepo) List(ctx context.Context) ([]*domain.VotingEvent, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockEventRepo) Update(ctx context.Context, ev *domain.VotingEvent, removedUsers []string) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, ev, removedUsers)
	}
	return nil
}

func (m *mockEventRepo) MarkExpired(ctx context.Context, eventIDs []uuid.UUID) error {
	if m.markExpiredFn != nil {
		return m.markExpiredFn(ctx, eventIDs)
	}
	return nil
}

type mockVoteRepo struct {
	submitFn          func(ctx context.Context, eventID, voterID uuid.UUID, emoteID string, choice domain.VoteChoice) (domain.VoteOutcome, error)
	submitBatchFn     func(ctx context.Context, eventID, voterID uuid.UUID, submissions []domain.VoteSubmission) (*domain.BatchVoteResult, error)
	countsFn          func(ctx context.Context, eventID uuid.UUID) (map[string]domain.VoteCounts, error)
	uniqueVotersFn    func(ctx context.Context, eventID uuid.UUID) (int, error)
	choicesForVoterFn func(ctx context.Context, eventID, voterID uuid.UUID) (map[string]domain.VoteChoice, error)
}

func (m *mockVoteRepo) Submit(ctx context.Context, eventID, voterID uuid.UUID, emoteID string, choice domain.VoteChoice) (domain.VoteOutcome, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, eventID, voterID, emoteID, choice)
	}
	return domain.VoteCreated, nil
}

func (m *mockVoteRepo) SubmitBatch(ctx context.Context, eventID, voterID uuid.UUID, submissions []domain.VoteSubmission) (*domain.BatchVoteResult, error) {
	if m.submitBatchFn != nil {
		return m.submitBatchFn(ctx, eventID, voterID, submissions)
	}
	return &domain.BatchVoteResult{Created: len(submissions)}, nil
}

func (m *mockVoteRepo) Counts(ctx context.Context, eventID uuid.UUID) (map[string]domain.VoteCounts, error) {
	if m.countsFn != nil {
		return m.countsFn(ctx, eventID)
	}
	return map[string]domain.VoteCounts{}, nil
}

func (m *mockVoteRepo) UniqueVoters(ctx context.Context, eventID uuid.UUID) (int, error) {
	if m.uniqueVotersFn != nil {
		return m.uniqueVotersFn(ctx, eventID)
	}
	return 0, nil
}

func (m *mockVoteRepo) ChoicesForVoter(ctx context.Context, eventID, voterID uuid.UUID) (map[string]domain.VoteChoice, error) {
	if m.choicesForVoterFn != nil {
		return m.choicesForVoterFn(ctx, eventID, voterID)
	}
	return map[string]domain.VoteChoice{}, nil
}

type mockDelegationRepo struct {
	grantFn        func(ctx context.Context, granterID uuid.UUID, granteeUsername string) (domain.GrantOutcome, error)
	revokeFn       func(ctx context.Context, granterID uuid.UUID, granteeUsername string) error
	moderatorsFn   func(ctx context.Context, granterID uuid.UUID) ([]string, error)
	grantersFn     func(ctx context.Context, userID uuid.UUID) ([]string, error)
	hasGrantFn     func(ctx context.Context, granterID uuid.UUID, granteeUsername string) (bool, error)
	applyPendingFn func(ctx context.Context, granteeID uuid.UUID, granteeUsername string) (int, error)
}

func (m *mockDelegationRepo) Grant(ctx context.Context, granterID uuid.UUID, granteeUsername string) (domain.GrantOutcome, error) {
	if m.grantFn != nil {
		return m.grantFn(ctx, granterID, granteeUsername)
	}
	return domain.GrantLinked, nil
}

func (m *mockDelegationRepo) Revoke(ctx context.Context, granterID uuid.UUID, granteeUsername string) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, granterID, granteeUsername)
	}
	return nil
}

func (m *mockDelegationRepo) Moderators(ctx context.Context, granterID uuid.UUID) ([]string, error) {
	if m.moderatorsFn != nil {
		return m.moderatorsFn(ctx, granterID)
	}
	return nil, nil
}

func (m *mockDelegationRepo) Granters(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if m.grantersFn != nil {
		return m.grantersFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockDelegationRepo) HasGrant(ctx context.Context, granterID uuid.UUID, granteeUsername string) (bool, error) {
	if m.hasGrantFn != nil {
		return m.hasGrantFn(ctx, granterID, granteeUsername)
	}
	return false, nil
}

func (m *mockDelegationRepo) ApplyPending(ctx context.Context, granteeID uuid.UUID, granteeUsername string) (int, error) {
	if m.applyPendingFn != nil {
		return m.applyPendingFn(ctx, granteeID, granteeUsername)
	}
	return 0, nil
}

type mockGraph struct {
	isFollowingFn            func(ctx context.Context, viewer, broadcaster *domain.User) (bool, error)
	followedBroadcasterIDsFn func(ctx context.Context, viewer *domain.User) (map[string]struct{}, error)
	isSubscribedFn           func(ctx context.Context, viewer, broadcaster *domain.User) (bool, error)
}

func (m *mockGraph) IsFollowing(ctx context.Context, viewer, broadcaster *domain.User) (bool, error) {
	if m.isFollowingFn != nil {
		return m.isFollowingFn(ctx, viewer, broadcaster)
	}
	return false, nil
}

func (m *mockGraph) FollowedBroadcasterIDs(ctx context.Context, viewer *domain.User) (map[string]struct{}, error) {
	if m.followedBroadcasterIDsFn != nil {
		return m.followedBroadcasterIDsFn(ctx, viewer)
	}
	return map[string]struct{}{}, nil
}

func (m *mockGraph) IsSubscribed(ctx context.Context, viewer, broadcaster *domain.User) (bool, error) {
	if m.isSubscribedFn != nil {
		return m.isSubscribedFn(ctx, viewer, broadcaster)
	}
	return false, nil
}

type mockEmoteProfile struct {
	resolveAccountFn func(ctx context.Context, twitchUsername string) (string, error)
}

func (m *mockEmoteProfile) ResolveAccount(ctx context.Context, twitchUsername string) (string, error) {
	if m.resolveAccountFn != nil {
		return m.resolveAccountFn(ctx, twitchUsername)
	}
	return "", domain.ErrAccountNotFound
}

// --- Fixtures ---

type serviceMocks struct {
	users  *mockUserRepo
	events *mockEventRepo
	votes  *mockVoteRepo
	grants *mockDelegationRepo
	graph  *mockGraph
	emotes *mockEmoteProfile
}

func newTestService(clock clockwork.Clock) (*Service, *serviceMocks) {
	m := &serviceMocks{
		users:  &mockUserRepo{},
		events: &mockEventRepo{},
		votes:  &mockVoteRepo{},
		grants: &mockDelegationRepo{},
		graph:  &mockGraph{},
		emotes: &mockEmoteProfile{},
	}
	svc := NewService(m.users, m.events, m.votes, m.grants, m.graph, m.emotes, clock)
	return svc, m
}

func userFixture(username string) *domain.User {
	return &domain.User{
		ID:             uuid.New(),
		TwitchUserID:   "tw-" + username,
		TwitchUsername: username,
		SevenTVID:      "7tv-" + username,
	}
}

// usersByID builds a getByIDFn over a fixed set of users.
func usersByID(users ...*domain.User) func(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return func(_ context.Context, userID uuid.UUID) (*domain.User, error) {
		for _, u := range users {
			if u.ID == userID {
				return u, nil
			}
		}
		return nil, domain.ErrUserNotFound
	}
}
