package seventv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hunter-hues/emotevote/internal/domain"
	"github.com/hunter-hues/emotevote/internal/platform/retry"
)

const previewEmoteCount = 3

type Emote struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type EmoteSet struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	PreviewEmotes []Emote `json:"preview_emotes"`
}

// Client talks to the 7TV GraphQL API. It implements domain.EmoteProfile and
// also serves the emote-set browser. Requests are rate limited client-side
// and retried on transient failures.
type Client struct {
	gqlURL  string
	http    *http.Client
	limiter *rate.Limiter
	policy  retry.Policy
}

func NewClient(gqlURL string) *Client {
	return &Client{
		gqlURL:  gqlURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   500 * time.Millisecond,
			MaxBackoff:       10 * time.Second,
			RateLimitBackoff: 5 * time.Second,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				slog.Warn("Retrying 7TV request", "attempt", attempt, "backoff", backoff, "error", err)
			},
		},
	}
}

// rateLimitedError marks HTTP 429 responses so the retry policy backs off longer.
type rateLimitedError struct{ err error }

func (e *rateLimitedError) Error() string { return e.err.Error() }
func (e *rateLimitedError) Unwrap() error { return e.err }

func classify(err error) retry.Action {
	var rl *rateLimitedError
	if errors.As(err, &rl) {
		return retry.After
	}
	if errors.Is(err, domain.ErrAccountNotFound) {
		return retry.Stop
	}
	return retry.Retry
}

// ResolveAccount finds the 7TV account whose Twitch connection matches the
// given username. Search results include near-matches, so the exact username
// is filtered client-side, as is the platform of each connection.
func (c *Client) ResolveAccount(ctx context.Context, twitchUsername string) (string, error) {
	const query = `query ($q: String!) {
		users(query: $q) {
			id
			username
			connections {
				id
				platform
			}
		}
	}`

	var result struct {
		Users []struct {
			ID          string `json:"id"`
			Username    string `json:"username"`
			Connections []struct {
				ID       string `json:"id"`
				Platform string `json:"platform"`
			} `json:"connections"`
		} `json:"users"`
	}

	err := c.query(ctx, query, map[string]any{"q": twitchUsername}, &result)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, user := range result.Users {
		if !strings.EqualFold(user.Username, twitchUsername) {
			continue
		}
		for _, conn := range user.Connections {
			if conn.Platform == "TWITCH" {
				matches = append(matches, user.ID)
				break
			}
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", domain.ErrAccountNotFound
	default:
		return "", fmt.Errorf("ambiguous 7TV account for %q: %d matches", twitchUsername, len(matches))
	}
}

// EmoteSets lists the account's emote sets, each trimmed to a short preview.
func (c *Client) EmoteSets(ctx context.Context, sevenTVUserID string) ([]EmoteSet, error) {
	const query = `query ($id: ObjectID!) {
		user(id: $id) {
			id
			username
			emote_sets {
				id
				name
				emotes {
					id
					name
				}
			}
		}
	}`

	var result struct {
		User *struct {
			ID        string `json:"id"`
			Username  string `json:"username"`
			EmoteSets []struct {
				ID     string  `json:"id"`
				Name   string  `json:"name"`
				Emotes []Emote `json:"emotes"`
			} `json:"emote_sets"`
		} `json:"user"`
	}

	err := c.query(ctx, query, map[string]any{"id": sevenTVUserID}, &result)
	if err != nil {
		return nil, err
	}
	if result.User == nil {
		return nil, domain.ErrAccountNotFound
	}

	sets := make([]EmoteSet, 0, len(result.User.EmoteSets))
	for _, raw := range result.User.EmoteSets {
		preview := raw.Emotes
		if len(preview) > previewEmoteCount {
			preview = preview[:previewEmoteCount]
		}
		sets = append(sets, EmoteSet{ID: raw.ID, Name: raw.Name, PreviewEmotes: preview})
	}
	return sets, nil
}

// query posts a GraphQL request and decodes data into out, with rate
// limiting and retries around the whole exchange.
func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return fmt.Errorf("failed to marshal GraphQL request: %w", err)
	}

	body, err := retry.Do(ctx, c.policy, classify, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.post(ctx, payload)
	})
	if err != nil {
		return err
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode 7TV response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("7TV query failed: %s", envelope.Errors[0].Message)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode 7TV data: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.gqlURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &rateLimitedError{err: fmt.Errorf("7TV rate limited: status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("7TV request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
