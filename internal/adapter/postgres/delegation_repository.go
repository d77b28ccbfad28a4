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

// DelegationRepo implements domain.DelegationRepository on the
// moderator_grants join relation and its pending_permissions staging table.
type DelegationRepo struct {
	pool *pgxpool.Pool
}

func NewDelegationRepo(pool *pgxpool.Pool) *DelegationRepo {
	return &DelegationRepo{pool: pool}
}

func (r *DelegationRepo) Grant(ctx context.Context, granterID uuid.UUID, granteeUsername string) (domain.GrantOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM moderator_grants g
			JOIN users u ON u.id = g.grantee_id
			WHERE g.granter_id = $1 AND u.twitch_username = $2
			UNION ALL
			SELECT 1 FROM pending_permissions
			WHERE granter_id = $1 AND grantee_username = $2 AND kind = $3
		)
	`, granterID, granteeUsername, domain.PermissionKindModerator).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("failed to check existing grant: %w", err)
	}
	if exists {
		return "", domain.ErrAlreadyGranted
	}

	var granteeID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE twitch_username = $1`, granteeUsername).Scan(&granteeID)

	outcome := domain.GrantLinked
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Grantee has no account yet: stage the grant for reconciliation
		// at their first login.
		_, err = tx.Exec(ctx, `
			INSERT INTO pending_permissions (grantee_username, granter_id, kind)
			VALUES ($1, $2, $3)
		`, granteeUsername, granterID, domain.PermissionKindModerator)
		if err != nil {
			return "", fmt.Errorf("failed to stage pending permission: %w", err)
		}
		outcome = domain.GrantPending
	case err != nil:
		return "", fmt.Errorf("failed to look up grantee: %w", err)
	default:
		_, err = tx.Exec(ctx, `
			INSERT INTO moderator_grants (granter_id, grantee_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, granterID, granteeID)
		if err != nil {
			return "", fmt.Errorf("failed to insert grant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return outcome, nil
}

func (r *DelegationRepo) Revoke(ctx context.Context, granterID uuid.UUID, granteeUsername string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	linkTag, err := tx.Exec(ctx, `
		DELETE FROM moderator_grants g
		USING users u
		WHERE g.granter_id = $1 AND g.grantee_id = u.id AND u.twitch_username = $2
	`, granterID, granteeUsername)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}

	pendingTag, err := tx.Exec(ctx, `
		DELETE FROM pending_permissions
		WHERE granter_id = $1 AND grantee_username = $2
	`, granterID, granteeUsername)
	if err != nil {
		return fmt.Errorf("failed to delete pending permission: %w", err)
	}

	if linkTag.RowsAffected() == 0 && pendingTag.RowsAffected() == 0 {
		return domain.ErrGrantNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *DelegationRepo) Moderators(ctx context.Context, granterID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.twitch_username FROM moderator_grants g
		JOIN users u ON u.id = g.grantee_id
		WHERE g.granter_id = $1
		UNION
		SELECT p.grantee_username FROM pending_permissions p
		WHERE p.granter_id = $1
		ORDER BY 1
	`, granterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderators: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *DelegationRepo) Granters(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.twitch_username FROM moderator_grants g
		JOIN users u ON u.id = g.granter_id
		WHERE g.grantee_id = $1
		ORDER BY 1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list granters: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *DelegationRepo) HasGrant(ctx context.Context, granterID uuid.UUID, granteeUsername string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM moderator_grants g
			JOIN users u ON u.id = g.grantee_id
			WHERE g.granter_id = $1 AND u.twitch_username = $2
		)
	`, granterID, granteeUsername).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check grant: %w", err)
	}
	return exists, nil
}

func (r *DelegationRepo) ApplyPending(ctx context.Context, granteeID uuid.UUID, granteeUsername string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, `
		INSERT INTO moderator_grants (granter_id, grantee_id)
		SELECT p.granter_id, $1 FROM pending_permissions p
		WHERE p.grantee_username = $2 AND p.kind = $3
		ON CONFLICT DO NOTHING
	`, granteeID, granteeUsername, domain.PermissionKindModerator)
	if err != nil {
		return 0, fmt.Errorf("failed to apply pending permissions: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM pending_permissions WHERE grantee_username = $1
	`, granteeUsername)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending permissions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
