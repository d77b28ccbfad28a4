package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hunter-hues/emotevote/internal/domain"
)

// GrantModerator delegates vote creation rights to a username. If the
// grantee has no account yet, the grant is staged as a pending permission
// and applied the moment they register.
func (s *Service) GrantModerator(ctx context.Context, granterID uuid.UUID, granteeUsername string) (domain.GrantOutcome, error) {
	if granteeUsername == "" {
		return "", domain.Reject("Username is required")
	}

	granter, err := s.users.GetByID(ctx, granterID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", domain.Reject("User not found")
	}
	if err != nil {
		return "", err
	}

	if granteeUsername == granter.TwitchUsername {
		return "", domain.Reject("You cannot add yourself as a moderator")
	}

	outcome, err := s.grants.Grant(ctx, granter.ID, granteeUsername)
	if errors.Is(err, domain.ErrAlreadyGranted) {
		return "", domain.Reject("Potential mod is already on your mod team")
	}
	if err != nil {
		return "", err
	}

	slog.Info("Delegation granted", "granter_id", granter.ID, "grantee", granteeUsername, "outcome", outcome)
	return outcome, nil
}

// RevokeModerator removes a delegation and any matching pending permission.
func (s *Service) RevokeModerator(ctx context.Context, granterID uuid.UUID, granteeUsername string) error {
	if granteeUsername == "" {
		return domain.Reject("Username is required")
	}

	granter, err := s.users.GetByID(ctx, granterID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.Reject("User not found")
	}
	if err != nil {
		return err
	}

	err = s.grants.Revoke(ctx, granter.ID, granteeUsername)
	if errors.Is(err, domain.ErrGrantNotFound) {
		return domain.Reject("Mod not found on your mod list")
	}
	if err != nil {
		return err
	}

	slog.Info("Delegation revoked", "granter_id", granter.ID, "grantee", granteeUsername)
	return nil
}

// ListModerators returns the usernames the user has delegated to, pending
// grants included.
func (s *Service) ListModerators(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if _, err := s.users.GetByID(ctx, userID); errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.Reject("User not found")
	} else if err != nil {
		return nil, err
	}
	return s.grants.Moderators(ctx, userID)
}
