package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nicklaw5/helix/v2"
	"github.com/sony/gobreaker"

	"github.com/hunter-hues/emotevote/internal/domain"
	"github.com/hunter-hues/emotevote/internal/metrics"
)

const followPageSize = 100

// tokenRefresher is an interface for refreshing user tokens
type tokenRefresher interface {
	EnsureValidToken(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// Graph answers follow and subscription questions against the Helix API.
// Follow checks run with the viewer's credential, subscription checks with
// the broadcaster's. All calls pass through a shared circuit breaker; the
// access resolver treats breaker trips like any other oracle failure.
type Graph struct {
	mu      sync.Mutex
	client  *helix.Client
	tokens  tokenRefresher
	breaker *gobreaker.CircuitBreaker
}

func NewGraph(users domain.UserRepository, clientID, clientSecret string) (*Graph, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "twitch",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*10 >= counts.Requests*6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
		},
	})

	return &Graph{
		client:  client,
		tokens:  NewTokenRefresher(users, clientID, clientSecret),
		breaker: breaker,
	}, nil
}

func (g *Graph) IsFollowing(ctx context.Context, viewer, broadcaster *domain.User) (bool, error) {
	viewer, err := g.tokens.EnsureValidToken(ctx, viewer.ID)
	if err != nil {
		return false, err
	}

	resp, err := observe(g, "is_following", func() (*helix.GetFollowedChannelResponse, error) {
		return g.client.GetFollowedChannels(&helix.GetFollowedChannelParams{
			UserID:        viewer.TwitchUserID,
			BroadcasterID: broadcaster.TwitchUserID,
		})
	}, viewer.AccessToken)
	if err != nil {
		return false, fmt.Errorf("failed to check follow: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("follow check failed with status %d: %s", resp.StatusCode, resp.ErrorMessage)
	}
	return len(resp.Data.FollowedChannels) > 0, nil
}

func (g *Graph) FollowedBroadcasterIDs(ctx context.Context, viewer *domain.User) (map[string]struct{}, error) {
	viewer, err := g.tokens.EnsureValidToken(ctx, viewer.ID)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	cursor := ""
	for {
		resp, err := observe(g, "followed_channels", func() (*helix.GetFollowedChannelResponse, error) {
			return g.client.GetFollowedChannels(&helix.GetFollowedChannelParams{
				UserID: viewer.TwitchUserID,
				First:  followPageSize,
				After:  cursor,
			})
		}, viewer.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to list followed channels: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("followed channels failed with status %d: %s", resp.StatusCode, resp.ErrorMessage)
		}

		for _, channel := range resp.Data.FollowedChannels {
			set[channel.BroadcasterID] = struct{}{}
		}

		cursor = resp.Data.Pagination.Cursor
		if cursor == "" {
			return set, nil
		}
	}
}

func (g *Graph) IsSubscribed(ctx context.Context, viewer, broadcaster *domain.User) (bool, error) {
	// Only the broadcaster's own credential can read their subscriber list.
	broadcaster, err := g.tokens.EnsureValidToken(ctx, broadcaster.ID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrNoCredential, err)
	}

	resp, err := observe(g, "is_subscribed", func() (*helix.UserSubscriptionResponse, error) {
		return g.client.CheckUserSubscription(&helix.UserSubscriptionsParams{
			BroadcasterID: broadcaster.TwitchUserID,
			UserID:        viewer.TwitchUserID,
		})
	}, broadcaster.AccessToken)
	if err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}

	// Helix reports "not subscribed" as a 404.
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("subscription check failed with status %d: %s", resp.StatusCode, resp.ErrorMessage)
	}
	return len(resp.Data.UserSubscriptions) > 0, nil
}

// observe runs a Helix call under the client mutex and the circuit breaker,
// recording request metrics along the way.
func observe[T any](g *Graph, check string, call func() (*T, error), accessToken string) (*T, error) {
	start := time.Now()
	result, err := g.breaker.Execute(func() (any, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.client.SetUserAccessToken(accessToken)
		return call()
	})
	metrics.OracleRequestDuration.WithLabelValues(check).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.OracleRequestsTotal.WithLabelValues(check, "error").Inc()
		return nil, err
	}
	metrics.OracleRequestsTotal.WithLabelValues(check, "ok").Inc()
	return result.(*T), nil
}
