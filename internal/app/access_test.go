package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/hunter-hues/emotevote/internal/domain"
)

func eventWithPermission(creator *domain.User, level domain.PermissionLevel) *domain.VotingEvent {
	return &domain.VotingEvent{
		ID:         uuid.New(),
		CreatorID:  creator.ID,
		Permission: level,
		IsActive:   true,
	}
}

func TestCanView_CreatorAlwaysSees(t *testing.T) {
	creator := userFixture("alice")
	ev := eventWithPermission(creator, domain.PermissionSubscribers)

	graph := &mockGraph{
		isSubscribedFn: func(_ context.Context, _, _ *domain.User) (bool, error) {
			t.Fatal("creator must not hit the oracle")
			return false, nil
		},
	}

	access := newAccessContext(graph, creator)
	assert.True(t, access.canView(context.Background(), ev, creator))
}

func TestCanView_CreatorsModeratorAlwaysSees(t *testing.T) {
	creator := userFixture("alice")
	creator.Moderators = []string{"bob"}
	mod := userFixture("bob")
	ev := eventWithPermission(creator, domain.PermissionSpecific)
	ev.SpecificUsers = []string{"someone-else"}

	access := newAccessContext(&mockGraph{}, mod)
	assert.True(t, access.canView(context.Background(), ev, creator))
}

func TestCanView_AllTier(t *testing.T) {
	creator := userFixture("alice")
	viewer := userFixture("random")
	ev := eventWithPermission(creator, domain.PermissionAll)

	access := newAccessContext(&mockGraph{}, viewer)
	assert.True(t, access.canView(context.Background(), ev, creator))
}

func TestCanView_SpecificTier(t *testing.T) {
	creator := userFixture("alice")
	listed := userFixture("bob")
	unlisted := userFixture("carol")
	ev := eventWithPermission(creator, domain.PermissionSpecific)
	ev.SpecificUsers = []string{"bob"}

	assert.True(t, newAccessContext(&mockGraph{}, listed).canView(context.Background(), ev, creator))
	assert.False(t, newAccessContext(&mockGraph{}, unlisted).canView(context.Background(), ev, creator))
}

func TestCanView_FollowersTier(t *testing.T) {
	creator := userFixture("alice")
	follower := userFixture("bob")
	other := userFixture("carol")
	ev := eventWithPermission(creator, domain.PermissionFollowers)

	graph := &mockGraph{
		followedBroadcasterIDsFn: func(_ context.Context, viewer *domain.User) (map[string]struct{}, error) {
			if viewer.ID == follower.ID {
				return map[string]struct{}{creator.TwitchUserID: {}}, nil
			}
			return map[string]struct{}{}, nil
		},
	}

	assert.True(t, newAccessContext(graph, follower).canView(context.Background(), ev, creator))
	assert.False(t, newAccessContext(graph, other).canView(context.Background(), ev, creator))
}

func TestCanView_FollowersTierSingleEventUsesPointLookup(t *testing.T) {
	creator := userFixture("alice")
	follower := userFixture("bob")
	ev := eventWithPermission(creator, domain.PermissionFollowers)

	graph := &mockGraph{
		isFollowingFn: func(_ context.Context, viewer, broadcaster *domain.User) (bool, error) {
			assert.Equal(t, follower.ID, viewer.ID)
			assert.Equal(t, creator.ID, broadcaster.ID)
			return true, nil
		},
		followedBroadcasterIDsFn: func(_ context.Context, _ *domain.User) (map[string]struct{}, error) {
			t.Fatal("single-event check must not fetch the whole follow set")
			return nil, nil
		},
	}

	assert.True(t, newSingleAccessContext(graph, follower).canView(context.Background(), ev, creator))
}

func TestCanView_FollowersTierSingleEventFailsClosed(t *testing.T) {
	creator := userFixture("alice")
	viewer := userFixture("bob")
	ev := eventWithPermission(creator, domain.PermissionFollowers)

	graph := &mockGraph{
		isFollowingFn: func(_ context.Context, _, _ *domain.User) (bool, error) {
			return false, fmt.Errorf("helix unavailable")
		},
	}

	assert.False(t, newSingleAccessContext(graph, viewer).canView(context.Background(), ev, creator))
}

func TestCanView_FollowersTierFailsClosed(t *testing.T) {
	creator := userFixture("alice")
	viewer := userFixture("bob")
	ev := eventWithPermission(creator, domain.PermissionFollowers)

	graph := &mockGraph{
		followedBroadcasterIDsFn: func(_ context.Context, _ *domain.User) (map[string]struct{}, error) {
			return nil, fmt.Errorf("helix unavailable")
		},
	}

	assert.False(t, newAccessContext(graph, viewer).canView(context.Background(), ev, creator))
}

func TestCanView_SubscribersTierFailsClosed(t *testing.T) {
	creator := userFixture("alice")
	viewer := userFixture("bob")
	ev := eventWithPermission(creator, domain.PermissionSubscribers)

	graph := &mockGraph{
		isSubscribedFn: func(_ context.Context, _, _ *domain.User) (bool, error) {
			return false, fmt.Errorf("no stored credential")
		},
	}

	assert.False(t, newAccessContext(graph, viewer).canView(context.Background(), ev, creator))
}

func TestAccessContext_FollowSetFetchedOnce(t *testing.T) {
	viewer := userFixture("bob")
	var fetches atomic.Int32

	graph := &mockGraph{
		followedBroadcasterIDsFn: func(_ context.Context, _ *domain.User) (map[string]struct{}, error) {
			fetches.Add(1)
			return map[string]struct{}{"tw-alice": {}}, nil
		},
	}

	access := newAccessContext(graph, viewer)
	for range 5 {
		creator := userFixture("alice")
		creator.TwitchUserID = "tw-alice"
		ev := eventWithPermission(creator, domain.PermissionFollowers)
		assert.True(t, access.canView(context.Background(), ev, creator))
	}

	assert.Equal(t, int32(1), fetches.Load())
}

func TestAccessContext_SubscriberAnswersMemoizedPerCreator(t *testing.T) {
	viewer := userFixture("bob")
	creator := userFixture("alice")
	var checks atomic.Int32

	graph := &mockGraph{
		isSubscribedFn: func(_ context.Context, _, _ *domain.User) (bool, error) {
			checks.Add(1)
			return true, nil
		},
	}

	access := newAccessContext(graph, viewer)
	for range 3 {
		ev := eventWithPermission(creator, domain.PermissionSubscribers)
		assert.True(t, access.canView(context.Background(), ev, creator))
	}

	assert.Equal(t, int32(1), checks.Load())
}

func TestPrefetchSubscriberChecks_OneCheckPerCreator(t *testing.T) {
	viewer := userFixture("bob")
	alice := userFixture("alice")
	carol := userFixture("carol")
	var checks atomic.Int32

	graph := &mockGraph{
		isSubscribedFn: func(_ context.Context, _, _ *domain.User) (bool, error) {
			checks.Add(1)
			return true, nil
		},
	}

	events := []*domain.VotingEvent{
		eventWithPermission(alice, domain.PermissionSubscribers),
		eventWithPermission(alice, domain.PermissionSubscribers),
		eventWithPermission(carol, domain.PermissionSubscribers),
		eventWithPermission(carol, domain.PermissionAll),
		eventWithPermission(viewer, domain.PermissionSubscribers), // viewer's own, skipped
	}
	creators := map[uuid.UUID]*domain.User{
		alice.ID:  alice,
		carol.ID:  carol,
		viewer.ID: viewer,
	}

	access := newAccessContext(graph, viewer)
	access.prefetchSubscriberChecks(context.Background(), events, creators)

	assert.Equal(t, int32(2), checks.Load())

	// Prefetched answers serve the listing without further oracle calls.
	for _, ev := range events[:3] {
		assert.True(t, access.canView(context.Background(), ev, creators[ev.CreatorID]))
	}
	assert.Equal(t, int32(2), checks.Load())
}

func TestCanEdit(t *testing.T) {
	creator := userFixture("alice")
	creator.Moderators = []string{"bob"}
	mod := userFixture("bob")
	stranger := userFixture("carol")
	ev := eventWithPermission(creator, domain.PermissionAll)

	assert.True(t, canEdit(creator, ev, creator))
	assert.True(t, canEdit(mod, ev, creator))
	assert.False(t, canEdit(stranger, ev, creator))
}
