package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hunter-hues/emotevote/internal/domain"
	apperrors "github.com/hunter-hues/emotevote/internal/platform/errors"
)

func (s *Server) registerEmoteRoutes() {
	s.echo.GET("/users/:username", s.handleResolveUser, s.requireAuth)
	s.echo.GET("/emotes/emote_sets/:id", s.handleEmoteSets, s.requireAuth)
}

func (s *Server) handleResolveUser(c echo.Context) error {
	ctx := c.Request().Context()
	username := c.Param("username")

	id, err := s.app.ResolveSevenTVAccount(ctx, username)
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.ExternalError("failed to resolve 7TV account", err).WithField("username", username)
	}

	response := map[string]any{
		"success": true,
		"message": fmt.Sprintf("%s has been found", username),
		"id":      id,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleEmoteSets(c echo.Context) error {
	ctx := c.Request().Context()
	sevenTVUserID := c.Param("id")

	sets, err := s.emotes.EmoteSets(ctx, sevenTVUserID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return apperrors.NotFoundError("7TV user not found").WithField("seventv_id", sevenTVUserID)
	}
	if err != nil {
		return apperrors.ExternalError("failed to load emote sets", err).WithField("seventv_id", sevenTVUserID)
	}

	response := map[string]any{"success": true, "emote_sets": sets}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
