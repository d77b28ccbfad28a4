package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hunter-hues/emotevote/internal/domain"
	apperrors "github.com/hunter-hues/emotevote/internal/platform/errors"
)

const (
	twitchAuthURL = "https://id.twitch.tv/oauth2/authorize"
	twitchScopes  = "user:read:follows channel:read:subscriptions"
	oauthTimeout  = 10 * time.Second
)

func (s *Server) registerAuthRoutes(csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/auth/login", s.handleLogin, rateLimiter)
	s.echo.GET("/auth/callback", s.handleOAuthCallback, rateLimiter)
	s.echo.POST("/auth/logout", s.handleLogout, rateLimiter, s.requireAuth, csrfMiddleware)
	// /auth/me carries the CSRF middleware so the session bootstrap call
	// also issues the token.
	s.echo.GET("/auth/me", s.handleMe, s.requireAuth, csrfMiddleware)
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			return apperrors.UnauthorizedError("not logged in")
		}

		userIDStr, ok := session.Values[sessionKeyToken].(string)
		if !ok {
			return apperrors.UnauthorizedError("not logged in")
		}

		userUUID, err := uuid.Parse(userIDStr)
		if err != nil {
			return apperrors.UnauthorizedError("not logged in")
		}

		// Verify the user still exists in the DB (handles wiped DB, deleted accounts).
		if _, err := s.app.GetUserByID(c.Request().Context(), userUUID); err != nil {
			slog.Warn("Session references unknown user, invalidating", "user_id", userUUID)
			session.Options.MaxAge = -1
			_ = session.Save(c.Request(), c.Response().Writer)
			return apperrors.UnauthorizedError("not logged in")
		}

		c.Set("userID", userUUID)
		return next(c)
	}
}

func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *Server) handleLogin(c echo.Context) error {
	state, err := generateOAuthState()
	if err != nil {
		return apperrors.InternalError("failed to generate OAuth state", err)
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.Error("Failed to get session for OAuth state", "error", err)
	}

	session.Values[sessionKeyOAuthState] = state
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save OAuth state session", err)
	}

	authURL := fmt.Sprintf(
		"%s?client_id=%s&redirect_uri=%s&response_type=code&scope=%s&state=%s",
		twitchAuthURL,
		url.QueryEscape(s.config.TwitchClientID),
		url.QueryEscape(s.config.TwitchRedirectURI),
		url.QueryEscape(twitchScopes),
		url.QueryEscape(state),
	)

	if err := c.Redirect(http.StatusFound, authURL); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func (s *Server) handleOAuthCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return apperrors.ValidationError("missing code parameter")
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return apperrors.ValidationError("invalid session")
	}

	expectedState, ok := session.Values[sessionKeyOAuthState].(string)
	if !ok || expectedState == "" {
		return apperrors.ValidationError("missing OAuth state")
	}
	if c.QueryParam("state") != expectedState {
		return apperrors.ValidationError("invalid OAuth state")
	}
	delete(session.Values, sessionKeyOAuthState)

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	result, err := s.oauthClient.ExchangeCodeForToken(ctx, code)
	if err != nil {
		return apperrors.ExternalError("failed to authenticate with Twitch", err)
	}

	tokenExpiry := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	user, err := s.app.UpsertUser(ctx, result.UserID, result.Username, result.AccessToken, result.RefreshToken, tokenExpiry)
	if err != nil {
		return apperrors.InternalError("failed to save user", err).WithField("twitch_user_id", result.UserID)
	}

	// Regenerate session ID after successful authentication to prevent
	// session fixation attacks.
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to invalidate old session", err)
	}

	session, err = s.sessionStore.New(c.Request(), sessionName)
	if err != nil {
		return apperrors.InternalError("failed to create new session", err)
	}

	session.Values[sessionKeyToken] = user.ID.String()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}

	slog.InfoContext(ctx, "User logged in", "user_id", user.ID, "twitch_user_id", result.UserID, "twitch_username", result.Username, "login_count", user.LoginCount)

	if err := c.Redirect(http.StatusFound, "/"); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()
	userID, _ := c.Get("userID").(uuid.UUID)

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.Error("Failed to get session during logout", "error", err)
		session, err = s.sessionStore.New(c.Request(), sessionName)
		if err != nil {
			return apperrors.InternalError("failed to create new session during logout", err)
		}
	}
	session.Options.MaxAge = -1

	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save logout session", err)
	}

	slog.InfoContext(ctx, "User logged out", "user_id", userID)

	if err := c.JSON(http.StatusOK, map[string]any{"success": true}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleMe(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	user, err := s.app.GetUserByID(ctx, userID)
	if err != nil {
		return apperrors.InternalError("failed to load user", err).WithField("user_id", userID.String())
	}

	response := map[string]any{
		"id":                   user.ID,
		"twitch_user_id":       user.TwitchUserID,
		"twitch_username":      user.TwitchUsername,
		"seventv_id":           user.SevenTVID,
		"moderators":           stringsOrEmpty(user.Moderators),
		"can_create_votes_for": stringsOrEmpty(user.CanCreateVotesFor),
		"login_count":          user.LoginCount,
		"last_login":           user.LastLogin,
	}
	if token, ok := c.Get("csrf").(string); ok {
		response["csrf_token"] = token
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// stringsOrEmpty keeps JSON arrays as [] instead of null.
func stringsOrEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// respondRejection maps a domain refusal to the API's soft-failure shape.
// Returns false when err is not a refusal.
func respondRejection(c echo.Context, err error) (bool, error) {
	rejection, ok := domain.AsRejection(err)
	if !ok {
		return false, nil
	}
	if err := c.JSON(http.StatusOK, map[string]any{"success": false, "message": rejection.Reason}); err != nil {
		return true, fmt.Errorf("failed to send JSON response: %w", err)
	}
	return true, nil
}
