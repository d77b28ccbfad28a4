package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hunter-hues/emotevote/internal/domain"
)

// eventColumns must match the Scan order in scanEvent.
const eventColumns = `id, creator_id, owner_id, title, emote_set_id, emote_set_name, schedule_mode, COALESCE(duration_hours, 0), COALESCE(end_time, 'epoch'::timestamptz), permission_level, specific_users, is_active, created_at, updated_at`

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func scanEvent(row pgx.Row) (*domain.VotingEvent, error) {
	var ev domain.VotingEvent
	err := row.Scan(
		&ev.ID, &ev.CreatorID, &ev.OwnerID, &ev.Title,
		&ev.EmoteSetID, &ev.EmoteSetName,
		&ev.ScheduleMode, &ev.DurationHours, &ev.EndTime,
		&ev.Permission, &ev.SpecificUsers, &ev.IsActive,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan voting event: %w", err)
	}
	return &ev, nil
}

func (r *EventRepo) Create(ctx context.Context, ev *domain.VotingEvent) (*domain.VotingEvent, error) {
	created, err := scanEvent(r.pool.QueryRow(ctx, `
		INSERT INTO voting_events (creator_id, owner_id, title, emote_set_id, emote_set_name, schedule_mode, duration_hours, end_time, permission_level, specific_users, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0.0), NULLIF($8, 'epoch'::timestamptz), $9, $10, TRUE)
		RETURNING `+eventColumns+`
	`, ev.CreatorID, ev.OwnerID, ev.Title, ev.EmoteSetID, ev.EmoteSetName,
		ev.ScheduleMode, ev.DurationHours, ev.EndTime, ev.Permission, ev.SpecificUsers))
	if err != nil {
		return nil, fmt.Errorf("failed to create voting event: %w", err)
	}
	return created, nil
}

func (r *EventRepo) GetByID(ctx context.Context, eventID uuid.UUID) (*domain.VotingEvent, error) {
	return scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM voting_events WHERE id = $1`, eventID))
}

func (r *EventRepo) List(ctx context.Context) ([]*domain.VotingEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM voting_events ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list voting events: %w", err)
	}
	defer rows.Close()

	var events []*domain.VotingEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read voting events: %w", err)
	}
	return events, nil
}

func (r *EventRepo) Update(ctx context.Context, ev *domain.VotingEvent, removedUsers []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, `
		UPDATE voting_events
		SET title = $1, schedule_mode = $2, duration_hours = NULLIF($3, 0.0),
		    end_time = NULLIF($4, 'epoch'::timestamptz), permission_level = $5,
		    specific_users = $6, is_active = $7, updated_at = NOW()
		WHERE id = $8
	`, ev.Title, ev.ScheduleMode, ev.DurationHours, ev.EndTime,
		ev.Permission, ev.SpecificUsers, ev.IsActive, ev.ID)
	if err != nil {
		return fmt.Errorf("failed to update voting event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}

	// Votes from users dropped off the allow-list go with them.
	if len(removedUsers) > 0 {
		_, err = tx.Exec(ctx, `
			DELETE FROM individual_votes v
			USING users u
			WHERE v.voting_event_id = $1 AND v.voter_id = u.id AND u.twitch_username = ANY($2)
		`, ev.ID, removedUsers)
		if err != nil {
			return fmt.Errorf("failed to delete votes of removed users: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *EventRepo) MarkExpired(ctx context.Context, eventIDs []uuid.UUID) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE voting_events SET is_active = FALSE, updated_at = NOW()
		WHERE id = ANY($1) AND is_active
	`, eventIDs)
	if err != nil {
		return fmt.Errorf("failed to mark events expired: %w", err)
	}
	return nil
}
