package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hunter-hues/emotevote/internal/crypto"
	"github.com/hunter-hues/emotevote/internal/domain"
)

// userColumns must match the Scan order in scanUser.
const userColumns = `id, twitch_user_id, twitch_username, seventv_id, access_token, refresh_token, token_expiry, login_count, COALESCE(last_login, 'epoch'::timestamptz), created_at, updated_at`

// UserRepo implements domain.UserRepository backed by PostgreSQL.
// Stored tokens are encrypted at rest via the crypto service; the delegation
// projections (Moderators/CanCreateVotesFor) are loaded on every read.
type UserRepo struct {
	pool   *pgxpool.Pool
	crypto crypto.Service
}

func NewUserRepo(pool *pgxpool.Pool, cryptoSvc crypto.Service) *UserRepo {
	return &UserRepo{pool: pool, crypto: cryptoSvc}
}

func (r *UserRepo) scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID, &user.TwitchUserID, &user.TwitchUsername, &user.SevenTVID,
		&user.AccessToken, &user.RefreshToken, &user.TokenExpiry,
		&user.LoginCount, &user.LastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.AccessToken, err = r.crypto.Decrypt(user.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	user.RefreshToken, err = r.crypto.Decrypt(user.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	return &user, nil
}

// loadDelegations populates the join-relation projections on a user.
func (r *UserRepo) loadDelegations(ctx context.Context, user *domain.User) error {
	rows, err := r.pool.Query(ctx, `
		SELECT u.twitch_username FROM moderator_grants g
		JOIN users u ON u.id = g.grantee_id
		WHERE g.granter_id = $1
		UNION
		SELECT p.grantee_username FROM pending_permissions p
		WHERE p.granter_id = $1
		ORDER BY 1
	`, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load moderators: %w", err)
	}
	user.Moderators, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to collect moderators: %w", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT u.twitch_username FROM moderator_grants g
		JOIN users u ON u.id = g.granter_id
		WHERE g.grantee_id = $1
		ORDER BY 1
	`, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load granters: %w", err)
	}
	user.CanCreateVotesFor, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to collect granters: %w", err)
	}

	return nil
}

func (r *UserRepo) getBy(ctx context.Context, where string, arg any) (*domain.User, error) {
	user, err := r.scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		return nil, err
	}
	if err := r.loadDelegations(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepo) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return r.getBy(ctx, "id = $1", userID)
}

func (r *UserRepo) GetByUsername(ctx context.Context, twitchUsername string) (*domain.User, error) {
	return r.getBy(ctx, "twitch_username = $1", twitchUsername)
}

func (r *UserRepo) Upsert(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.User, error) {
	encAccessToken, err := r.crypto.Encrypt(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefreshToken, err := r.crypto.Encrypt(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	user, err := r.scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (twitch_user_id, twitch_username, access_token, refresh_token, token_expiry, login_count, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, NOW(), NOW(), NOW())
		ON CONFLICT (twitch_user_id) DO UPDATE SET
			twitch_username = EXCLUDED.twitch_username,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			login_count = users.login_count + 1,
			last_login = NOW(),
			updated_at = NOW()
		RETURNING `+userColumns+`
	`, twitchUserID, twitchUsername, encAccessToken, encRefreshToken, tokenExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	if err := r.loadDelegations(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepo) UpdateTokens(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, tokenExpiry time.Time) error {
	encAccessToken, err := r.crypto.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefreshToken, err := r.crypto.Encrypt(refreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE users
		SET access_token = $1, refresh_token = $2, token_expiry = $3, updated_at = NOW()
		WHERE id = $4
	`, encAccessToken, encRefreshToken, tokenExpiry, userID)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return nil
}

func (r *UserRepo) SetSevenTVID(ctx context.Context, userID uuid.UUID, sevenTVID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET seventv_id = $1, updated_at = NOW() WHERE id = $2
	`, sevenTVID, userID)
	if err != nil {
		return fmt.Errorf("failed to set 7TV ID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
