package app

import (
	"context"

	"github.com/google/uuid"

	"github.com/hunter-hues/emotevote/internal/domain"
	"github.com/hunter-hues/emotevote/internal/metrics"
)

// SubmitVote records or overwrites one vote. The event must be currently
// active and visible to the voter.
func (s *Service) SubmitVote(ctx context.Context, voterID, eventID uuid.UUID, emoteID string, choice domain.VoteChoice) (domain.VoteOutcome, error) {
	if emoteID == "" {
		return "", domain.Reject("Emote is required")
	}
	if !choice.Valid() {
		return "", domain.Reject("Invalid vote choice")
	}

	ev, voter, creator, err := s.loadEventForAccess(ctx, voterID, eventID)
	if err != nil {
		return "", err
	}

	if err := s.ensureVotable(ctx, voter, ev, creator); err != nil {
		return "", err
	}

	outcome, err := s.votes.Submit(ctx, ev.ID, voter.ID, emoteID, choice)
	if err != nil {
		return "", err
	}

	metrics.VotesSubmittedTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}

// SubmitVotes applies a batch of submissions for one event and voter in a
// single transaction, partitioning into created/updated/skipped.
func (s *Service) SubmitVotes(ctx context.Context, voterID, eventID uuid.UUID, submissions []domain.VoteSubmission) (*domain.BatchVoteResult, error) {
	if len(submissions) == 0 {
		return nil, domain.Reject("No votes submitted")
	}
	for _, sub := range submissions {
		if sub.EmoteID == "" {
			return nil, domain.Reject("Emote is required")
		}
		if !sub.Choice.Valid() {
			return nil, domain.Reject("Invalid vote choice")
		}
	}

	ev, voter, creator, err := s.loadEventForAccess(ctx, voterID, eventID)
	if err != nil {
		return nil, err
	}

	if err := s.ensureVotable(ctx, voter, ev, creator); err != nil {
		return nil, err
	}

	result, err := s.votes.SubmitBatch(ctx, ev.ID, voter.ID, submissions)
	if err != nil {
		return nil, err
	}

	metrics.VotesSubmittedTotal.WithLabelValues(string(domain.VoteCreated)).Add(float64(result.Created))
	metrics.VotesSubmittedTotal.WithLabelValues(string(domain.VoteUpdated)).Add(float64(result.Updated))
	metrics.VotesSubmittedTotal.WithLabelValues(string(domain.VoteSkipped)).Add(float64(result.Skipped))
	return result, nil
}

// ensureVotable rejects submissions on expired or invisible events. An event
// observed expired here gets its persisted flag corrected before rejection.
func (s *Service) ensureVotable(ctx context.Context, voter *domain.User, ev *domain.VotingEvent, creator *domain.User) error {
	if !ev.ActiveAt(s.clock.Now()) {
		s.expireStale(ctx, ev)
		metrics.VotesSubmittedTotal.WithLabelValues("rejected").Inc()
		return domain.Reject("Voting has ended")
	}

	access := newSingleAccessContext(s.graph, voter)
	if !access.canView(ctx, ev, creator) {
		metrics.VotesSubmittedTotal.WithLabelValues("rejected").Inc()
		return domain.Reject("Permission denied")
	}
	return nil
}

// EventCounts returns the per-emote tallies and distinct-voter count for an
// event the viewer may see.
func (s *Service) EventCounts(ctx context.Context, viewerID, eventID uuid.UUID) (map[string]domain.VoteCounts, int, error) {
	ev, viewer, creator, err := s.loadEventForAccess(ctx, viewerID, eventID)
	if err != nil {
		return nil, 0, err
	}

	access := newSingleAccessContext(s.graph, viewer)
	if !access.canView(ctx, ev, creator) {
		return nil, 0, domain.Reject("Permission denied")
	}

	counts, err := s.votes.Counts(ctx, ev.ID)
	if err != nil {
		return nil, 0, err
	}
	voters, err := s.votes.UniqueVoters(ctx, ev.ID)
	if err != nil {
		return nil, 0, err
	}
	return counts, voters, nil
}

// CheckVote reports the viewer's recorded choice for one emote, if any.
func (s *Service) CheckVote(ctx context.Context, voterID, eventID uuid.UUID, emoteID string) (domain.VoteChoice, bool, error) {
	choices, err := s.votes.ChoicesForVoter(ctx, eventID, voterID)
	if err != nil {
		return "", false, err
	}
	choice, ok := choices[emoteID]
	return choice, ok, nil
}
