package app

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hunter-hues/emotevote/internal/domain"
	"github.com/hunter-hues/emotevote/internal/metrics"
)

// subscriberCheckConcurrency bounds the fan-out of per-creator subscriber
// checks issued for a single listing request.
const subscriberCheckConcurrency = 4

// canEdit is the narrow check: creator or one of the creator's moderators.
func canEdit(user *domain.User, ev *domain.VotingEvent, creator *domain.User) bool {
	if user.ID == ev.CreatorID {
		return true
	}
	return slices.Contains(creator.Moderators, user.TwitchUsername)
}

// accessContext evaluates can_view for one viewer, sharing oracle results
// across every event of a listing: the follow set is fetched at most once,
// and subscriber answers are memoized per creator.
type accessContext struct {
	graph  domain.SocialGraph
	viewer *domain.User

	// singleEvent switches the followers-tier check to the point lookup.
	// Fetching the whole paginated follow set pays off only when it is
	// shared across a listing.
	singleEvent bool

	followOnce   sync.Once
	followSet    map[string]struct{}
	followFailed bool

	mu         sync.Mutex
	subAnswers map[uuid.UUID]bool
}

func newAccessContext(graph domain.SocialGraph, viewer *domain.User) *accessContext {
	return &accessContext{
		graph:      graph,
		viewer:     viewer,
		subAnswers: make(map[uuid.UUID]bool),
	}
}

// newSingleAccessContext answers one event's check.
func newSingleAccessContext(graph domain.SocialGraph, viewer *domain.User) *accessContext {
	a := newAccessContext(graph, viewer)
	a.singleEvent = true
	return a
}

// canView applies the precedence order from the access policy. Oracle
// failures resolve to false, never true.
func (a *accessContext) canView(ctx context.Context, ev *domain.VotingEvent, creator *domain.User) bool {
	allowed := a.evaluate(ctx, ev, creator)

	decision := "deny"
	if allowed {
		decision = "allow"
	}
	metrics.AccessDecisionsTotal.WithLabelValues(string(ev.Permission), decision).Inc()
	return allowed
}

func (a *accessContext) evaluate(ctx context.Context, ev *domain.VotingEvent, creator *domain.User) bool {
	if a.viewer.ID == ev.CreatorID {
		return true
	}
	if slices.Contains(creator.Moderators, a.viewer.TwitchUsername) {
		return true
	}

	switch ev.Permission {
	case domain.PermissionAll:
		return true
	case domain.PermissionSpecific:
		return slices.Contains(ev.SpecificUsers, a.viewer.TwitchUsername)
	case domain.PermissionFollowers:
		return a.follows(ctx, creator)
	case domain.PermissionSubscribers:
		return a.subscribed(ctx, creator)
	}
	return false
}

// follows answers the followers-tier check from the shared follow set,
// fetching it on first use. A failed fetch denies every followers-tier
// event in the listing. Single-event contexts ask the oracle directly.
func (a *accessContext) follows(ctx context.Context, creator *domain.User) bool {
	if a.singleEvent {
		following, err := a.graph.IsFollowing(ctx, a.viewer, creator)
		if err != nil {
			slog.Warn("Follow check failed, denying followers-tier access",
				"viewer_id", a.viewer.ID, "creator_id", creator.ID, "error", err)
			return false
		}
		return following
	}

	a.followOnce.Do(func() {
		set, err := a.graph.FollowedBroadcasterIDs(ctx, a.viewer)
		if err != nil {
			slog.Warn("Follow set fetch failed, denying followers-tier access",
				"viewer_id", a.viewer.ID, "error", err)
			a.followFailed = true
			return
		}
		a.followSet = set
	})

	if a.followFailed {
		return false
	}
	_, ok := a.followSet[creator.TwitchUserID]
	return ok
}

// subscribed answers the subscribers-tier check, memoized per creator.
func (a *accessContext) subscribed(ctx context.Context, creator *domain.User) bool {
	a.mu.Lock()
	answer, ok := a.subAnswers[creator.ID]
	a.mu.Unlock()
	if ok {
		return answer
	}

	subscribed, err := a.graph.IsSubscribed(ctx, a.viewer, creator)
	if err != nil {
		slog.Warn("Subscription check failed, denying subscribers-tier access",
			"viewer_id", a.viewer.ID, "creator_id", creator.ID, "error", err)
		subscribed = false
	}

	a.mu.Lock()
	a.subAnswers[creator.ID] = subscribed
	a.mu.Unlock()
	return subscribed
}

// prefetchSubscriberChecks issues the subscriber checks a listing will need
// concurrently, one task per distinct creator. Each check needs a different
// broadcaster credential, so they cannot share a fetch the way the follow
// set does.
func (a *accessContext) prefetchSubscriberChecks(ctx context.Context, events []*domain.VotingEvent, creators map[uuid.UUID]*domain.User) {
	needed := make(map[uuid.UUID]*domain.User)
	for _, ev := range events {
		if ev.Permission != domain.PermissionSubscribers {
			continue
		}
		if ev.CreatorID == a.viewer.ID {
			continue
		}
		if creator, ok := creators[ev.CreatorID]; ok {
			needed[creator.ID] = creator
		}
	}

	if len(needed) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(subscriberCheckConcurrency)
	for _, creator := range needed {
		g.Go(func() error {
			a.subscribed(gctx, creator)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures deny per-creator
}
