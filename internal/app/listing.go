package app

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/hunter-hues/emotevote/internal/domain"
	"github.com/hunter-hues/emotevote/internal/metrics"
)

// EventView is an event decorated for display: visibility already checked,
// countdown text and tallies attached.
type EventView struct {
	Event           *domain.VotingEvent
	CreatorUsername string
	OwnerUsername   string
	Active          bool
	StatusText      string
	Counts          map[string]domain.VoteCounts
	UniqueVoters    int
	YourChoices     map[string]domain.VoteChoice
	CanEdit         bool
}

// EventListing splits the viewer's visible events by activity.
type EventListing struct {
	Active  []*EventView
	Expired []*EventView
}

// ListVisibleEvents fetches all events, corrects stale is_active flags in
// one batched write, filters by can_view with shared oracle results, and
// attaches tallies.
func (s *Service) ListVisibleEvents(ctx context.Context, viewerID uuid.UUID) (*EventListing, error) {
	viewer, err := s.users.GetByID(ctx, viewerID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.Reject("User not found")
	}
	if err != nil {
		return nil, err
	}

	events, err := s.events.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	// Lazy expiration: one statement for every stale flag observed in this
	// read, not one commit per event.
	var stale []uuid.UUID
	for _, ev := range events {
		if ev.IsActive && !ev.ActiveAt(now) {
			stale = append(stale, ev.ID)
			ev.IsActive = false
		}
	}
	if len(stale) > 0 {
		if err := s.events.MarkExpired(ctx, stale); err != nil {
			slog.Error("Failed to mark expired events", "count", len(stale), "error", err)
		} else {
			metrics.VotingEventsExpiredTotal.Add(float64(len(stale)))
		}
	}

	creators, err := s.loadCreators(ctx, viewer, events)
	if err != nil {
		return nil, err
	}

	access := newAccessContext(s.graph, viewer)
	access.prefetchSubscriberChecks(ctx, events, creators)

	listing := &EventListing{}
	for _, ev := range events {
		creator, ok := creators[ev.CreatorID]
		if !ok {
			continue
		}
		if !access.canView(ctx, ev, creator) {
			continue
		}

		view, err := s.buildEventView(ctx, viewer, ev, creator, creators)
		if err != nil {
			return nil, err
		}

		if view.Active {
			listing.Active = append(listing.Active, view)
		} else {
			listing.Expired = append(listing.Expired, view)
		}
	}

	newestFirst(listing.Active)
	newestFirst(listing.Expired)
	return listing, nil
}

// GetEvent returns the decorated view of a single event the viewer may see.
func (s *Service) GetEvent(ctx context.Context, viewerID, eventID uuid.UUID) (*EventView, error) {
	ev, viewer, creator, err := s.loadEventForAccess(ctx, viewerID, eventID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !ev.ActiveAt(now) {
		s.expireStale(ctx, ev)
	}

	access := newSingleAccessContext(s.graph, viewer)
	if !access.canView(ctx, ev, creator) {
		return nil, domain.Reject("Permission denied")
	}

	return s.buildEventView(ctx, viewer, ev, creator, map[uuid.UUID]*domain.User{creator.ID: creator})
}

func (s *Service) buildEventView(ctx context.Context, viewer *domain.User, ev *domain.VotingEvent, creator *domain.User, users map[uuid.UUID]*domain.User) (*EventView, error) {
	counts, err := s.votes.Counts(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	voters, err := s.votes.UniqueVoters(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	choices, err := s.votes.ChoicesForVoter(ctx, ev.ID, viewer.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	view := &EventView{
		Event:           ev,
		CreatorUsername: creator.TwitchUsername,
		Active:          ev.ActiveAt(now),
		StatusText:      ev.RemainingText(now),
		Counts:          counts,
		UniqueVoters:    voters,
		YourChoices:     choices,
		CanEdit:         canEdit(viewer, ev, creator),
	}
	if ev.OwnerID.Valid {
		if owner, ok := users[ev.OwnerID.UUID]; ok {
			view.OwnerUsername = owner.TwitchUsername
		} else if owner, err := s.users.GetByID(ctx, ev.OwnerID.UUID); err == nil {
			view.OwnerUsername = owner.TwitchUsername
		}
	}
	return view, nil
}

// loadCreators resolves every distinct creator and owner referenced by the
// listing, reusing the viewer's own record where possible.
func (s *Service) loadCreators(ctx context.Context, viewer *domain.User, events []*domain.VotingEvent) (map[uuid.UUID]*domain.User, error) {
	users := map[uuid.UUID]*domain.User{viewer.ID: viewer}
	for _, ev := range events {
		ids := []uuid.UUID{ev.CreatorID}
		if ev.OwnerID.Valid {
			ids = append(ids, ev.OwnerID.UUID)
		}
		for _, id := range ids {
			if _, ok := users[id]; ok {
				continue
			}
			u, err := s.users.GetByID(ctx, id)
			if errors.Is(err, domain.ErrUserNotFound) {
				continue // dangling reference, skip the event later
			}
			if err != nil {
				return nil, err
			}
			users[id] = u
		}
	}
	return users, nil
}

func newestFirst(views []*EventView) {
	sort.Slice(views, func(i, j int) bool {
		return views[i].Event.CreatedAt.After(views[j].Event.CreatedAt)
	})
}
