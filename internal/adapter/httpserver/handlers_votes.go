package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hunter-hues/emotevote/internal/app"
	"github.com/hunter-hues/emotevote/internal/domain"
	apperrors "github.com/hunter-hues/emotevote/internal/platform/errors"
)

func (s *Server) registerVoteRoutes(csrfMiddleware echo.MiddlewareFunc) {
	s.echo.POST("/votes/create", s.handleCreateEvent, s.requireAuth, csrfMiddleware)
	s.echo.PATCH("/votes/:id", s.handleUpdateEvent, s.requireAuth, csrfMiddleware)
	s.echo.GET("/votes/list", s.handleListEvents, s.requireAuth)
	s.echo.GET("/votes/:id", s.handleGetEvent, s.requireAuth)
	s.echo.GET("/votes/:id/counts", s.handleEventCounts, s.requireAuth)
	s.echo.POST("/votes/submit", s.handleSubmitVote, s.requireAuth, csrfMiddleware)
	s.echo.POST("/votes/submit_batch", s.handleSubmitVotes, s.requireAuth, csrfMiddleware)
	s.echo.GET("/votes/check", s.handleCheckVote, s.requireAuth)
}

type durationRequest struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (d durationRequest) toDomain() domain.Duration {
	return domain.Duration{Days: d.Days, Hours: d.Hours, Minutes: d.Minutes}
}

type createEventRequest struct {
	Title         string           `json:"title"`
	EmoteSetID    string           `json:"emote_set_id"`
	EmoteSetName  string           `json:"emote_set_name"`
	OwnerUsername string           `json:"owner_username"`
	ScheduleMode  string           `json:"schedule_mode"`
	Duration      durationRequest  `json:"duration"`
	EndTime       time.Time        `json:"end_time"`
	Permission    string           `json:"permission_level"`
	SpecificUsers []string         `json:"specific_users"`
}

func (s *Server) handleCreateEvent(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	var req createEventRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	ev, err := s.app.CreateEvent(ctx, userID, app.CreateEventParams{
		Title:         req.Title,
		EmoteSetID:    req.EmoteSetID,
		EmoteSetName:  req.EmoteSetName,
		OwnerUsername: req.OwnerUsername,
		ScheduleMode:  req.ScheduleMode,
		Duration:      req.Duration.toDomain(),
		EndTime:       req.EndTime,
		Permission:    req.Permission,
		SpecificUsers: req.SpecificUsers,
	})
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to create voting event", err)
	}

	response := map[string]any{"success": true, "event": eventResponse(ev)}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type updateEventRequest struct {
	EndNow        bool             `json:"end_now"`
	Title         *string          `json:"title"`
	ScheduleMode  *string          `json:"schedule_mode"`
	Duration      *durationRequest `json:"duration"`
	EndTime       *time.Time       `json:"end_time"`
	SpecificUsers *[]string        `json:"specific_users"`
}

func (s *Server) handleUpdateEvent(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid event ID").WithField("id", c.Param("id"))
	}

	var req updateEventRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	params := app.UpdateEventParams{
		EndNow:        req.EndNow,
		Title:         req.Title,
		ScheduleMode:  req.ScheduleMode,
		EndTime:       req.EndTime,
		SpecificUsers: req.SpecificUsers,
	}
	if req.Duration != nil {
		d := req.Duration.toDomain()
		params.Duration = &d
	}

	ev, err := s.app.UpdateEvent(ctx, userID, eventID, params)
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to update voting event", err).WithField("event_id", eventID.String())
	}

	response := map[string]any{"success": true, "event": eventResponse(ev)}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListEvents(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	listing, err := s.app.ListVisibleEvents(ctx, userID)
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to list voting events", err)
	}

	response := map[string]any{
		"success": true,
		"active":  eventViewsResponse(listing.Active),
		"expired": eventViewsResponse(listing.Expired),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetEvent(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid event ID").WithField("id", c.Param("id"))
	}

	view, err := s.app.GetEvent(ctx, userID, eventID)
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to load voting event", err).WithField("event_id", eventID.String())
	}

	response := map[string]any{"success": true, "event": eventViewResponse(view)}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleEventCounts(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid event ID").WithField("id", c.Param("id"))
	}

	counts, voters, err := s.app.EventCounts(ctx, userID, eventID)
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to tally votes", err).WithField("event_id", eventID.String())
	}

	response := map[string]any{"success": true, "counts": counts, "unique_voters": voters}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type submitVoteRequest struct {
	EventID uuid.UUID `json:"event_id"`
	EmoteID string    `json:"emote_id"`
	Choice  string    `json:"vote_choice"`
}

func (s *Server) handleSubmitVote(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	var req submitVoteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	outcome, err := s.app.SubmitVote(ctx, userID, req.EventID, req.EmoteID, domain.VoteChoice(req.Choice))
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to submit vote", err).WithField("event_id", req.EventID.String())
	}

	response := map[string]any{"success": true, "outcome": outcome}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type submitVotesRequest struct {
	EventID uuid.UUID `json:"event_id"`
	Votes   []struct {
		EmoteID string `json:"emote_id"`
		Choice  string `json:"vote_choice"`
	} `json:"votes"`
}

func (s *Server) handleSubmitVotes(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	var req submitVotesRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	submissions := make([]domain.VoteSubmission, 0, len(req.Votes))
	for _, v := range req.Votes {
		submissions = append(submissions, domain.VoteSubmission{
			EmoteID: v.EmoteID,
			Choice:  domain.VoteChoice(v.Choice),
		})
	}

	result, err := s.app.SubmitVotes(ctx, userID, req.EventID, submissions)
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to submit votes", err).WithField("event_id", req.EventID.String())
	}

	response := map[string]any{
		"success": true,
		"created": result.Created,
		"updated": result.Updated,
		"skipped": result.Skipped,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCheckVote(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	eventID, err := uuid.Parse(c.QueryParam("event_id"))
	if err != nil {
		return apperrors.ValidationError("invalid event ID").WithField("event_id", c.QueryParam("event_id"))
	}
	emoteID := c.QueryParam("emote_id")
	if emoteID == "" {
		return apperrors.ValidationError("missing emote_id parameter")
	}

	choice, found, err := s.app.CheckVote(ctx, userID, eventID, emoteID)
	if handled, err := respondRejection(c, err); handled {
		return err
	}
	if err != nil {
		return apperrors.InternalError("failed to check vote", err).WithField("event_id", eventID.String())
	}

	response := map[string]any{"success": true, "has_voted": found}
	if found {
		response["vote_choice"] = choice
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func eventResponse(ev *domain.VotingEvent) map[string]any {
	resp := map[string]any{
		"id":               ev.ID,
		"creator_id":       ev.CreatorID,
		"title":            ev.Title,
		"emote_set_id":     ev.EmoteSetID,
		"emote_set_name":   ev.EmoteSetName,
		"schedule_mode":    ev.ScheduleMode,
		"end_time":         ev.EndsAt(),
		"permission_level": ev.Permission,
		"specific_users":   stringsOrEmpty(ev.SpecificUsers),
		"is_active":        ev.IsActive,
		"created_at":       ev.CreatedAt,
	}
	if ev.OwnerID.Valid {
		resp["owner_id"] = ev.OwnerID.UUID
	}
	return resp
}

func eventViewResponse(v *app.EventView) map[string]any {
	resp := eventResponse(v.Event)
	resp["creator_username"] = v.CreatorUsername
	resp["owner_username"] = v.OwnerUsername
	resp["is_active"] = v.Active
	resp["status_text"] = v.StatusText
	resp["counts"] = v.Counts
	resp["unique_voters"] = v.UniqueVoters
	resp["your_choices"] = v.YourChoices
	resp["can_edit"] = v.CanEdit
	return resp
}

func eventViewsResponse(views []*app.EventView) []map[string]any {
	out := make([]map[string]any, 0, len(views))
	for _, v := range views {
		out = append(out, eventViewResponse(v))
	}
	return out
}
