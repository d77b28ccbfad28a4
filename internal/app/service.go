package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/hunter-hues/emotevote/internal/domain"
	"github.com/hunter-hues/emotevote/internal/metrics"
)

// Service is the application layer, the only component that references
// multiple domain components. It orchestrates all use cases.
type Service struct {
	users  domain.UserRepository
	events domain.EventRepository
	votes  domain.VoteRepository
	grants domain.DelegationRepository
	graph  domain.SocialGraph
	emotes domain.EmoteProfile
	clock  clockwork.Clock
}

// NewService creates the application layer service.
func NewService(users domain.UserRepository, events domain.EventRepository, votes domain.VoteRepository, grants domain.DelegationRepository, graph domain.SocialGraph, emotes domain.EmoteProfile, clock clockwork.Clock) *Service {
	return &Service{
		users:  users,
		events: events,
		votes:  votes,
		grants: grants,
		graph:  graph,
		emotes: emotes,
		clock:  clock,
	}
}

// GetUserByID retrieves a user by internal ID.
func (s *Service) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpsertUser creates or updates a user at login and reconciles any pending
// delegation grants addressed to the username.
func (s *Service) UpsertUser(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.User, error) {
	user, err := s.users.Upsert(ctx, twitchUserID, twitchUsername, accessToken, refreshToken, tokenExpiry)
	if err != nil {
		return nil, err
	}

	// A fresh login should see fresh follow and subscription state. Stale
	// entries expire by TTL anyway, so a failed invalidation never blocks
	// the login.
	if inv, ok := s.graph.(domain.SocialGraphInvalidator); ok {
		if err := inv.Invalidate(ctx, user); err != nil {
			slog.Warn("Failed to invalidate social graph cache", "user_id", user.ID, "error", err)
		}
	}

	applied, err := s.grants.ApplyPending(ctx, user.ID, user.TwitchUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to apply pending permissions: %w", err)
	}
	if applied > 0 {
		slog.Info("Applied pending delegation grants", "user_id", user.ID, "count", applied)
		// Reload so the delegation projections include the new links.
		return s.users.GetByID(ctx, user.ID)
	}

	return user, nil
}

// CreateEventParams carries the creation form fields.
type CreateEventParams struct {
	Title         string
	EmoteSetID    string
	EmoteSetName  string
	OwnerUsername string // emote-set owner; may equal the creator's username
	ScheduleMode  string
	Duration      domain.Duration
	EndTime       time.Time
	Permission    string
	SpecificUsers []string
}

// CreateEvent validates and persists a new voting event. Validation order:
// delegation permission, owner's 7TV account, emote set, schedule bounds.
// Any failure short-circuits with a Rejection.
func (s *Service) CreateEvent(ctx context.Context, creatorID uuid.UUID, p CreateEventParams) (*domain.VotingEvent, error) {
	creator, err := s.users.GetByID(ctx, creatorID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.Reject("User not found")
	}
	if err != nil {
		return nil, err
	}

	owner := creator
	if p.OwnerUsername != "" && p.OwnerUsername != creator.TwitchUsername {
		owner, err = s.users.GetByUsername(ctx, p.OwnerUsername)
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.Reject("Emote set owner not found")
		}
		if err != nil {
			return nil, err
		}

		allowed, err := s.grants.HasGrant(ctx, owner.ID, creator.TwitchUsername)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, domain.Reject("Permission denied: cannot create votes for this user")
		}
	}

	if err := s.ensureSevenTVAccount(ctx, owner); err != nil {
		return nil, err
	}

	if p.EmoteSetID == "" || p.EmoteSetName == "" {
		return nil, domain.Reject("Emote set is required")
	}

	permission, err := domain.ParsePermissionLevel(p.Permission)
	if err != nil {
		return nil, domain.Reject("Unknown permission level")
	}

	now := s.clock.Now()
	ev := &domain.VotingEvent{
		CreatorID:    creator.ID,
		Title:        p.Title,
		EmoteSetID:   p.EmoteSetID,
		EmoteSetName: p.EmoteSetName,
		Permission:   permission,
		IsActive:     true,
	}
	if owner.ID != creator.ID {
		ev.OwnerID = uuid.NullUUID{UUID: owner.ID, Valid: true}
	}
	if permission == domain.PermissionSpecific {
		ev.SpecificUsers = p.SpecificUsers
	}

	switch domain.ScheduleMode(p.ScheduleMode) {
	case domain.ScheduleDuration:
		if !p.Duration.InBounds() {
			return nil, domain.Reject("Duration out of bounds")
		}
		ev.ScheduleMode = domain.ScheduleDuration
		ev.DurationHours = p.Duration.TotalHours()
	case domain.ScheduleEndTime:
		if p.EndTime.Before(now.Add(domain.MinVoteDuration)) || p.EndTime.After(now.Add(domain.MaxVoteDuration)) {
			return nil, domain.Reject("End time out of bounds")
		}
		ev.ScheduleMode = domain.ScheduleEndTime
		ev.EndTime = p.EndTime
	default:
		return nil, domain.Reject("Unknown schedule mode")
	}

	created, err := s.events.Create(ctx, ev)
	if err != nil {
		return nil, err
	}

	metrics.VotingEventsCreatedTotal.WithLabelValues(string(permission)).Inc()
	slog.Info("Voting event created", "event_id", created.ID, "creator_id", creator.ID, "tier", permission)
	return created, nil
}

// ensureSevenTVAccount lazily resolves the owner's 7TV account ID if it is
// still the placeholder. One resolution attempt, then give up.
func (s *Service) ensureSevenTVAccount(ctx context.Context, owner *domain.User) error {
	if owner.SevenTVID != "" {
		return nil
	}

	id, err := s.emotes.ResolveAccount(ctx, owner.TwitchUsername)
	if err != nil {
		slog.Warn("7TV account resolution failed", "username", owner.TwitchUsername, "error", err)
		return domain.Reject("Emote set owner needs a linked 7TV account")
	}

	if err := s.users.SetSevenTVID(ctx, owner.ID, id); err != nil {
		return err
	}
	owner.SevenTVID = id
	return nil
}

// ResolveSevenTVAccount maps a Twitch username to its 7TV account ID. For
// registered users the resolved ID is persisted so later lookups skip the
// network round trip.
func (s *Service) ResolveSevenTVAccount(ctx context.Context, twitchUsername string) (string, error) {
	if twitchUsername == "" {
		return "", domain.Reject("Username is required")
	}

	user, err := s.users.GetByUsername(ctx, twitchUsername)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return "", err
	}
	if user != nil && user.SevenTVID != "" {
		return user.SevenTVID, nil
	}

	id, err := s.emotes.ResolveAccount(ctx, twitchUsername)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return "", domain.Reject("User not found")
	}
	if err != nil {
		return "", err
	}

	if user != nil {
		if err := s.users.SetSevenTVID(ctx, user.ID, id); err != nil {
			return "", err
		}
	}
	return id, nil
}

// UpdateEventParams is a patch; nil fields are left untouched.
type UpdateEventParams struct {
	EndNow        bool
	Title         *string
	ScheduleMode  *string
	Duration      *domain.Duration
	EndTime       *time.Time
	SpecificUsers *[]string
}

// UpdateEvent applies a patch to an event the editor may edit. Ending the
// event short-circuits every other edit. Reschedules are validated with the
// creation bounds anchored to the current instant.
func (s *Service) UpdateEvent(ctx context.Context, editorID, eventID uuid.UUID, p UpdateEventParams) (*domain.VotingEvent, error) {
	ev, editor, creator, err := s.loadEventForAccess(ctx, editorID, eventID)
	if err != nil {
		return nil, err
	}

	if !canEdit(editor, ev, creator) {
		return nil, domain.Reject("Permission denied")
	}

	now := s.clock.Now()

	if p.EndNow {
		ev.ScheduleMode = domain.ScheduleEndTime
		ev.EndTime = now
		ev.DurationHours = 0
		ev.IsActive = false
		if err := s.events.Update(ctx, ev, nil); err != nil {
			return nil, err
		}
		slog.Info("Voting event ended", "event_id", ev.ID, "editor_id", editor.ID)
		return ev, nil
	}

	// Expired events only support ending; everything else edits a live vote.
	if !ev.ActiveAt(now) {
		s.expireStale(ctx, ev)
		return nil, domain.Reject("Voting has ended")
	}

	if p.Title != nil {
		if *p.Title == "" {
			return nil, domain.Reject("Title cannot be empty")
		}
		ev.Title = *p.Title
	}

	if p.ScheduleMode != nil {
		switch domain.ScheduleMode(*p.ScheduleMode) {
		case domain.ScheduleDuration:
			if p.Duration == nil || !p.Duration.InBounds() {
				return nil, domain.Reject("Duration out of bounds")
			}
			// Re-anchor to now: the stored hours are relative to created_at,
			// so the new window must end at now + requested duration.
			newEnd := now.Add(time.Duration(p.Duration.TotalMinutes()) * time.Minute)
			ev.ScheduleMode = domain.ScheduleDuration
			ev.DurationHours = newEnd.Sub(ev.CreatedAt).Hours()
			ev.EndTime = time.Time{}
		case domain.ScheduleEndTime:
			if p.EndTime == nil || p.EndTime.Before(now.Add(domain.MinVoteDuration)) || p.EndTime.After(now.Add(domain.MaxVoteDuration)) {
				return nil, domain.Reject("End time out of bounds")
			}
			ev.ScheduleMode = domain.ScheduleEndTime
			ev.EndTime = *p.EndTime
			ev.DurationHours = 0
		default:
			return nil, domain.Reject("Unknown schedule mode")
		}
	}

	var removed []string
	if p.SpecificUsers != nil {
		removed = missingFrom(ev.SpecificUsers, *p.SpecificUsers)
		ev.SpecificUsers = *p.SpecificUsers
	}

	if err := s.events.Update(ctx, ev, removed); err != nil {
		return nil, err
	}

	if len(removed) > 0 {
		slog.Info("Allow-list users removed, votes deleted", "event_id", ev.ID, "removed", len(removed))
	}
	return ev, nil
}

// loadEventForAccess loads the event plus the two users every access check
// needs. Missing records surface as refusals.
func (s *Service) loadEventForAccess(ctx context.Context, userID, eventID uuid.UUID) (*domain.VotingEvent, *domain.User, *domain.User, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if errors.Is(err, domain.ErrEventNotFound) {
		return nil, nil, nil, domain.Reject("Voting event not found")
	}
	if err != nil {
		return nil, nil, nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil, nil, domain.Reject("User not found")
	}
	if err != nil {
		return nil, nil, nil, err
	}

	creator := user
	if ev.CreatorID != user.ID {
		creator, err = s.users.GetByID(ctx, ev.CreatorID)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	return ev, user, creator, nil
}

// expireStale flips the persisted flag for one event observed expired.
func (s *Service) expireStale(ctx context.Context, ev *domain.VotingEvent) {
	if !ev.IsActive {
		return
	}
	ev.IsActive = false
	if err := s.events.MarkExpired(ctx, []uuid.UUID{ev.ID}); err != nil {
		slog.Error("Failed to mark event expired", "event_id", ev.ID, "error", err)
		return
	}
	metrics.VotingEventsExpiredTotal.Inc()
}

// missingFrom returns the entries of old that are absent from updated.
func missingFrom(old, updated []string) []string {
	kept := make(map[string]struct{}, len(updated))
	for _, u := range updated {
		kept[u] = struct{}{}
	}
	var gone []string
	for _, u := range old {
		if _, ok := kept[u]; !ok {
			gone = append(gone, u)
		}
	}
	return gone
}
