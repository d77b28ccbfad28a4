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

type VoteRepo struct {
	pool *pgxpool.Pool
}

func NewVoteRepo(pool *pgxpool.Pool) *VoteRepo {
	return &VoteRepo{pool: pool}
}

func (r *VoteRepo) Submit(ctx context.Context, eventID, voterID uuid.UUID, emoteID string, choice domain.VoteChoice) (domain.VoteOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	outcome, err := submitInTx(ctx, tx, eventID, voterID, emoteID, choice)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return outcome, nil
}

func (r *VoteRepo) SubmitBatch(ctx context.Context, eventID, voterID uuid.UUID, submissions []domain.VoteSubmission) (*domain.BatchVoteResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	result := &domain.BatchVoteResult{}
	for _, sub := range submissions {
		outcome, err := submitInTx(ctx, tx, eventID, voterID, sub.EmoteID, sub.Choice)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case domain.VoteCreated:
			result.Created++
		case domain.VoteUpdated:
			result.Updated++
		case domain.VoteSkipped:
			result.Skipped++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// resolveSubmission decides what a submission does to the ledger, given the
// voter's prior choice for the emote (nil when no row exists yet).
func resolveSubmission(prior *domain.VoteChoice, incoming domain.VoteChoice) domain.VoteOutcome {
	switch {
	case prior == nil:
		return domain.VoteCreated
	case *prior == incoming:
		return domain.VoteSkipped
	default:
		return domain.VoteUpdated
	}
}

// submitInTx applies the overwrite semantics of the vote ledger: one row per
// (event, voter, emote), a repeat with the same choice is a no-op.
func submitInTx(ctx context.Context, tx pgx.Tx, eventID, voterID uuid.UUID, emoteID string, choice domain.VoteChoice) (domain.VoteOutcome, error) {
	var existing domain.VoteChoice
	err := tx.QueryRow(ctx, `
		SELECT vote_choice FROM individual_votes
		WHERE voting_event_id = $1 AND voter_id = $2 AND emote_id = $3
		FOR UPDATE
	`, eventID, voterID, emoteID).Scan(&existing)

	var prior *domain.VoteChoice
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return "", fmt.Errorf("failed to look up existing vote: %w", err)
	default:
		prior = &existing
	}

	switch outcome := resolveSubmission(prior, choice); outcome {
	case domain.VoteCreated:
		_, err = tx.Exec(ctx, `
			INSERT INTO individual_votes (voting_event_id, voter_id, emote_id, vote_choice)
			VALUES ($1, $2, $3, $4)
		`, eventID, voterID, emoteID, choice)
		if err != nil {
			return "", fmt.Errorf("failed to insert vote: %w", err)
		}
		return outcome, nil
	case domain.VoteUpdated:
		_, err = tx.Exec(ctx, `
			UPDATE individual_votes SET vote_choice = $1, updated_at = NOW()
			WHERE voting_event_id = $2 AND voter_id = $3 AND emote_id = $4
		`, choice, eventID, voterID, emoteID)
		if err != nil {
			return "", fmt.Errorf("failed to update vote: %w", err)
		}
		return outcome, nil
	default:
		return domain.VoteSkipped, nil
	}
}

func (r *VoteRepo) Counts(ctx context.Context, eventID uuid.UUID) (map[string]domain.VoteCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT emote_id, vote_choice, COUNT(*) FROM individual_votes
		WHERE voting_event_id = $1
		GROUP BY emote_id, vote_choice
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]domain.VoteCounts)
	for rows.Next() {
		var emoteID string
		var choice domain.VoteChoice
		var n int
		if err := rows.Scan(&emoteID, &choice, &n); err != nil {
			return nil, fmt.Errorf("failed to scan vote count: %w", err)
		}

		c := counts[emoteID]
		switch choice {
		case domain.ChoiceKeep:
			c.Keep = n
		case domain.ChoiceRemove:
			c.Remove = n
		case domain.ChoiceNeutral:
			c.Neutral = n
		}
		counts[emoteID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vote counts: %w", err)
	}
	return counts, nil
}

func (r *VoteRepo) UniqueVoters(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT voter_id) FROM individual_votes WHERE voting_event_id = $1
	`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unique voters: %w", err)
	}
	return n, nil
}

func (r *VoteRepo) ChoicesForVoter(ctx context.Context, eventID, voterID uuid.UUID) (map[string]domain.VoteChoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT emote_id, vote_choice FROM individual_votes
		WHERE voting_event_id = $1 AND voter_id = $2
	`, eventID, voterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load voter choices: %w", err)
	}
	defer rows.Close()

	choices := make(map[string]domain.VoteChoice)
	for rows.Next() {
		var emoteID string
		var choice domain.VoteChoice
		if err := rows.Scan(&emoteID, &choice); err != nil {
			return nil, fmt.Errorf("failed to scan voter choice: %w", err)
		}
		choices[emoteID] = choice
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read voter choices: %w", err)
	}
	return choices, nil
}
