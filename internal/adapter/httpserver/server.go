package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/hunter-hues/emotevote/internal/adapter/seventv"
	"github.com/hunter-hues/emotevote/internal/app"
	"github.com/hunter-hues/emotevote/internal/domain"
	"github.com/hunter-hues/emotevote/internal/platform/config"
)

type appService interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpsertUser(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.User, error)
	CreateEvent(ctx context.Context, creatorID uuid.UUID, p app.CreateEventParams) (*domain.VotingEvent, error)
	UpdateEvent(ctx context.Context, editorID, eventID uuid.UUID, p app.UpdateEventParams) (*domain.VotingEvent, error)
	ListVisibleEvents(ctx context.Context, viewerID uuid.UUID) (*app.EventListing, error)
	GetEvent(ctx context.Context, viewerID, eventID uuid.UUID) (*app.EventView, error)
	SubmitVote(ctx context.Context, voterID, eventID uuid.UUID, emoteID string, choice domain.VoteChoice) (domain.VoteOutcome, error)
	SubmitVotes(ctx context.Context, voterID, eventID uuid.UUID, submissions []domain.VoteSubmission) (*domain.BatchVoteResult, error)
	EventCounts(ctx context.Context, viewerID, eventID uuid.UUID) (map[string]domain.VoteCounts, int, error)
	CheckVote(ctx context.Context, voterID, eventID uuid.UUID, emoteID string) (domain.VoteChoice, bool, error)
	GrantModerator(ctx context.Context, granterID uuid.UUID, granteeUsername string) (domain.GrantOutcome, error)
	RevokeModerator(ctx context.Context, granterID uuid.UUID, granteeUsername string) error
	ListModerators(ctx context.Context, userID uuid.UUID) ([]string, error)
	ResolveSevenTVAccount(ctx context.Context, twitchUsername string) (string, error)
}

type emoteBrowser interface {
	EmoteSets(ctx context.Context, sevenTVUserID string) ([]seventv.EmoteSet, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app    appService
	emotes emoteBrowser

	oauthClient  twitchOAuthClient
	sessionStore *sessions.CookieStore
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, app appService, emotes emoteBrowser, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          app,
		emotes:       emotes,
		oauthClient:  newTwitchOAuthClient(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI),
		sessionStore: setupSessionStore(cfg),
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Run starts the server and shuts it down gracefully when ctx is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.echo.Start(":" + s.config.Port)
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Session keys
const (
	sessionName          = "emotevote-session"
	sessionKeyToken      = "token"
	sessionKeyOAuthState = "oauth_state"
)

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}
	return sessionStore
}
