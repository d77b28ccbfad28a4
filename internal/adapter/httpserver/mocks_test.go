package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hunter-hues/emotevote/internal/adapter/seventv"
	"github.com/hunter-hues/emotevote/internal/app"
	"github.com/hunter-hues/emotevote/internal/domain"
	"github.com/hunter-hues/emotevote/internal/platform/config"
)

type mockApp struct {
	getUserByIDFn           func(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	upsertUserFn            func(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.User, error)
	createEventFn           func(ctx context.Context, creatorID uuid.UUID, p app.CreateEventParams) (*domain.VotingEvent, error)
	updateEventFn           func(ctx context.Context, editorID, eventID uuid.UUID, p app.UpdateEventParams) (*domain.VotingEvent, error)
	listVisibleEventsFn     func(ctx context.Context, viewerID uuid.UUID) (*app.EventListing, error)
	getEventFn              func(ctx context.Context, viewerID, eventID uuid.UUID) (*app.EventView, error)
	submitVoteFn            func(ctx context.Context, voterID, eventID uuid.UUID, emoteID string, choice domain.VoteChoice) (domain.VoteOutcome, error)
	submitVotesFn           func(ctx context.Context, voterID, eventID uuid.UUID, submissions []domain.VoteSubmission) (*domain.BatchVoteResult, error)
	eventCountsFn           func(ctx context.Context, viewerID, eventID uuid.UUID) (map[string]domain.VoteCounts, int, error)
	checkVoteFn             func(ctx context.Context, voterID, eventID uuid.UUID, emoteID string) (domain.VoteChoice, bool, error)
	grantModeratorFn        func(ctx context.Context, granterID uuid.UUID, granteeUsername string) (domain.GrantOutcome, error)
	revokeModeratorFn       func(ctx context.Context, granterID uuid.UUID, granteeUsername string) error
	listModeratorsFn        func(ctx context.Context, userID uuid.UUID) ([]string, error)
	resolveSevenTVAccountFn func(ctx context.Context, twitchUsername string) (string, error)
}

func (m *mockApp) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(ctx, userID)
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockApp) UpsertUser(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.User, error) {
	if m.upsertUserFn != nil {
		return m.upsertUserFn(ctx, twitchUserID, twitchUsername, accessToken, refreshToken, tokenExpiry)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) CreateEvent(ctx context.Context, creatorID uuid.UUID, p app.CreateEventParams) (*domain.VotingEvent, error) {
	if m.createEventFn != nil {
		return m.createEventFn(ctx, creatorID, p)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) UpdateEvent(ctx context.Context, editorID, eventID uuid.UUID, p app.UpdateEventParams) (*domain.VotingEvent, error) {
	if m.updateEventFn != nil {
		return m.updateEventFn(ctx, editorID, eventID, p)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) ListVisibleEvents(ctx context.Context, viewerID uuid.UUID) (*app.EventListing, error) {
	if m.listVisibleEventsFn != nil {
		return m.listVisibleEventsFn(ctx, viewerID)
	}
	return &app.EventListing{}, nil
}

func (m *mockApp) GetEvent(ctx context.Context, viewerID, eventID uuid.UUID) (*app.EventView, error) {
	if m.getEventFn != nil {
		return m.getEventFn(ctx, viewerID, eventID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) SubmitVote(ctx context.Context, voterID, eventID uuid.UUID, emoteID string, choice domain.VoteChoice) (domain.VoteOutcome, error) {
	if m.submitVoteFn != nil {
		return m.submitVoteFn(ctx, voterID, eventID, emoteID, choice)
	}
	return domain.VoteCreated, nil
}

func (m *mockApp) SubmitVotes(ctx context.Context, voterID, eventID uuid.UUID, submissions []domain.VoteSubmission) (*domain.BatchVoteResult, error) {
	if m.submitVotesFn != nil {
		return m.submitVotesFn(ctx, voterID, eventID, submissions)
	}
	return &domain.BatchVoteResult{}, nil
}

func (m *mockApp) EventCounts(ctx context.Context, viewerID, eventID uuid.UUID) (map[string]domain.VoteCounts, int, error) {
	if m.eventCountsFn != nil {
		return m.eventCountsFn(ctx, viewerID, eventID)
	}
	return map[string]domain.VoteCounts{}, 0, nil
}

func (m *mockApp) CheckVote(ctx context.Context, voterID, eventID uuid.UUID, emoteID string) (domain.VoteChoice, bool, error) {
	if m.checkVoteFn != nil {
		return m.checkVoteFn(ctx, voterID, eventID, emoteID)
	}
	return "", false, nil
}

func (m *mockApp) GrantModerator(ctx context.Context, granterID uuid.UUID, granteeUsername string) (domain.GrantOutcome, error) {
	if m.grantModeratorFn != nil {
		return m.grantModeratorFn(ctx, granterID, granteeUsername)
	}
	return domain.GrantLinked, nil
}

func (m *mockApp) RevokeModerator(ctx context.Context, granterID uuid.UUID, granteeUsername string) error {
	if m.revokeModeratorFn != nil {
		return m.revokeModeratorFn(ctx, granterID, granteeUsername)
	}
	return nil
}

func (m *mockApp) ListModerators(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if m.listModeratorsFn != nil {
		return m.listModeratorsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockApp) ResolveSevenTVAccount(ctx context.Context, twitchUsername string) (string, error) {
	if m.resolveSevenTVAccountFn != nil {
		return m.resolveSevenTVAccountFn(ctx, twitchUsername)
	}
	return "", domain.ErrAccountNotFound
}

type mockEmoteBrowser struct {
	emoteSetsFn func(ctx context.Context, sevenTVUserID string) ([]seventv.EmoteSet, error)
}

func (m *mockEmoteBrowser) EmoteSets(ctx context.Context, sevenTVUserID string) ([]seventv.EmoteSet, error) {
	if m.emoteSetsFn != nil {
		return m.emoteSetsFn(ctx, sevenTVUserID)
	}
	return nil, domain.ErrAccountNotFound
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:             "test",
		Port:               "0",
		TwitchClientID:     "client-id",
		TwitchClientSecret: "client-secret",
		TwitchRedirectURI:  "http://localhost/auth/callback",
		SessionSecret:      "test-session-secret",
		SessionMaxAge:      time.Hour,
	}
}

func newTestServer(t *testing.T) (*Server, *mockApp, *mockEmoteBrowser) {
	t.Helper()
	appMock := &mockApp{}
	emotes := &mockEmoteBrowser{}
	srv := NewServer(testConfig(), appMock, emotes, nil)
	return srv, appMock, emotes
}

// loginAs saves a session cookie for the user and wires the mock so the
// session survives the auth middleware's existence check.
func loginAs(t *testing.T, srv *Server, m *mockApp, user *domain.User) *http.Cookie {
	t.Helper()

	m.getUserByIDFn = func(_ context.Context, userID uuid.UUID) (*domain.User, error) {
		if userID == user.ID {
			return user, nil
		}
		return nil, domain.ErrUserNotFound
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, err := srv.sessionStore.New(req, sessionName)
	require.NoError(t, err)
	session.Values[sessionKeyToken] = user.ID.String()
	require.NoError(t, session.Save(req, rec))

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func doJSON(srv *Server, method, target string, body io.Reader, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
		if method != http.MethodGet {
			if csrf := csrfCookie(srv, cookie); csrf != nil {
				req.AddCookie(csrf)
				req.Header.Set("X-CSRF-Token", csrf.Value)
			}
		}
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

// csrfCookie bootstraps a CSRF token the way a client would, by calling
// /auth/me with the session cookie.
func csrfCookie(srv *Server, session *http.Cookie) *http.Cookie {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(session)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "csrf_token" {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func testUser(username string) *domain.User {
	return &domain.User{
		ID:             uuid.New(),
		TwitchUserID:   "tw-" + username,
		TwitchUsername: username,
		SevenTVID:      "7tv-" + username,
	}
}
