package httpserver

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hunter-hues/emotevote/internal/domain"
	apperrors "github.com/hunter-hues/emotevote/internal/platform/errors"
)

func (s *Server) registerModRoutes(csrfMiddleware echo.MiddlewareFunc) {
	s.echo.POST("/mods/add", s.handleAddModerator, s.requireAuth, csrfMiddleware)
	s.echo.POST("/mods/remove", s.handleRemoveModerator, s.requireAuth, csrfMiddleware)
	s.echo.GET("/mods/list", s.handleListModerators, s.requireAuth)
}

type modRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleAddModerator(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	var req modRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	outcome, err := s.app.GrantModerator(ctx, userID, req.Username)
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to add moderator", err).WithField("username", req.Username)
	}

	message := "Potential mod is now on your mod team"
	if outcome == domain.GrantPending {
		message = "Potential mod will be granted permissions once they make an account"
	}

	response := map[string]any{"success": true, "message": message}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRemoveModerator(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	var req modRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	err := s.app.RevokeModerator(ctx, userID, req.Username)
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to remove moderator", err).WithField("username", req.Username)
	}

	response := map[string]any{"success": true, "message": "Mod removed from your mod team"}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListModerators(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	mods, err := s.app.ListModerators(ctx, userID)
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to list moderators", err)
	}

	response := map[string]any{"success": true, "moderators": stringsOrEmpty(mods)}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
