package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// --- Model types ---

type User struct {
	ID             uuid.UUID
	TwitchUserID   string
	TwitchUsername string
	SevenTVID      string // empty until resolved against 7TV
	AccessToken    string
	RefreshToken   string
	TokenExpiry    time.Time
	LoginCount     int
	LastLogin      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Projections of the moderator_grants join relation, loaded by the
	// user repository. Moderators holds usernames this user delegated
	// vote creation to (confirmed links plus pending grants);
	// CanCreateVotesFor holds usernames that delegated to this user.
	Moderators        []string
	CanCreateVotesFor []string
}

type VotingEvent struct {
	ID            uuid.UUID
	CreatorID     uuid.UUID
	OwnerID       uuid.NullUUID // set when a moderator created the vote for another streamer
	Title         string
	EmoteSetID    string
	EmoteSetName  string
	ScheduleMode  ScheduleMode
	DurationHours float64   // meaningful only under ScheduleDuration
	EndTime       time.Time // meaningful only under ScheduleEndTime
	Permission    PermissionLevel
	SpecificUsers []string
	IsActive      bool // cache; EndsAt is the source of truth
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type IndividualVote struct {
	ID            uuid.UUID
	VotingEventID uuid.UUID
	VoterID       uuid.UUID
	EmoteID       string
	Choice        VoteChoice
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type PendingPermission struct {
	ID              uuid.UUID
	GranteeUsername string
	GranterID       uuid.UUID
	Kind            string
	CreatedAt       time.Time
}

// PermissionKindModerator is the only delegation kind currently issued.
const PermissionKindModerator = "moderator"

// --- Vote ledger value types ---

type VoteSubmission struct {
	EmoteID string
	Choice  VoteChoice
}

// VoteOutcome reports what a submission did to the ledger.
type VoteOutcome string

const (
	VoteCreated VoteOutcome = "created"
	VoteUpdated VoteOutcome = "updated"
	VoteSkipped VoteOutcome = "skipped" // same choice already recorded
)

type BatchVoteResult struct {
	Created int
	Updated int
	Skipped int
}

type VoteCounts struct {
	Keep    int `json:"keep"`
	Remove  int `json:"remove"`
	Neutral int `json:"neutral"`
}

// --- Repositories ---

type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, twitchUsername string) (*User, error)
	Upsert(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*User, error)
	UpdateTokens(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, tokenExpiry time.Time) error
	SetSevenTVID(ctx context.Context, userID uuid.UUID, sevenTVID string) error
}

// GrantOutcome distinguishes an immediate link from a deferred one.
type GrantOutcome string

const (
	GrantLinked  GrantOutcome = "linked"
	GrantPending GrantOutcome = "pending"
)

// DelegationRepository maintains the moderator_grants join relation and its
// pending_permissions staging table. The mirror between Moderators and
// CanCreateVotesFor holds by construction: both are projections of one row.
type DelegationRepository interface {
	Grant(ctx context.Context, granterID uuid.UUID, granteeUsername string) (GrantOutcome, error)
	Revoke(ctx context.Context, granterID uuid.UUID, granteeUsername string) error
	Moderators(ctx context.Context, granterID uuid.UUID) ([]string, error)
	Granters(ctx context.Context, userID uuid.UUID) ([]string, error)
	HasGrant(ctx context.Context, granterID uuid.UUID, granteeUsername string) (bool, error)
	// ApplyPending links every pending grant addressed to the given username
	// and deletes the pending rows, in one transaction. Returns the number
	// of grants applied.
	ApplyPending(ctx context.Context, granteeID uuid.UUID, granteeUsername string) (int, error)
}

type EventRepository interface {
	Create(ctx context.Context, ev *VotingEvent) (*VotingEvent, error)
	GetByID(ctx context.Context, eventID uuid.UUID) (*VotingEvent, error)
	List(ctx context.Context) ([]*VotingEvent, error)
	// Update persists the event row and, in the same transaction, deletes
	// all votes cast on the event by the given removed allow-list users.
	Update(ctx context.Context, ev *VotingEvent, removedUsers []string) error
	// MarkExpired flips is_active to false for the given events in one
	// statement. Used by the lazy-expiration path.
	MarkExpired(ctx context.Context, eventIDs []uuid.UUID) error
}

type VoteRepository interface {
	Submit(ctx context.Context, eventID, voterID uuid.UUID, emoteID string, choice VoteChoice) (VoteOutcome, error)
	SubmitBatch(ctx context.Context, eventID, voterID uuid.UUID, submissions []VoteSubmission) (*BatchVoteResult, error)
	Counts(ctx context.Context, eventID uuid.UUID) (map[string]VoteCounts, error)
	UniqueVoters(ctx context.Context, eventID uuid.UUID) (int, error)
	ChoicesForVoter(ctx context.Context, eventID, voterID uuid.UUID) (map[string]VoteChoice, error)
}

// --- External collaborators ---

// SocialGraph answers follow/subscription questions against Twitch.
// Implementations surface errors to the caller, never guess: the access
// resolver treats any error as "deny".
type SocialGraph interface {
	IsFollowing(ctx context.Context, viewer, broadcaster *User) (bool, error)
	// FollowedBroadcasterIDs returns the full set of broadcaster IDs the
	// viewer follows, paginated internally. Fetched once per listing and
	// reused for every followers-tier event.
	FollowedBroadcasterIDs(ctx context.Context, viewer *User) (map[string]struct{}, error)
	// IsSubscribed requires the broadcaster's own stored credential.
	IsSubscribed(ctx context.Context, viewer, broadcaster *User) (bool, error)
}

// SocialGraphInvalidator is implemented by caching SocialGraph decorators.
// The application layer drops a viewer's cached answers on login.
type SocialGraphInvalidator interface {
	Invalidate(ctx context.Context, viewer *User) error
}

// EmoteProfile resolves Twitch usernames to external 7TV account IDs.
type EmoteProfile interface {
	ResolveAccount(ctx context.Context, twitchUsername string) (string, error)
}
