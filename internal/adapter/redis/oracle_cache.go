package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hunter-hues/emotevote/internal/domain"
	"github.com/hunter-hues/emotevote/internal/metrics"
)

const (
	followCachePrefix    = "follow_cache:"
	followSetCachePrefix = "follow_set_cache:"
	subCachePrefix       = "sub_cache:"
	oracleCacheTTL       = 5 * time.Minute
)

// OracleCache is a read-through cache in front of a social graph oracle.
// Redis failures fall through to the inner oracle; only an inner failure
// surfaces to the caller, so the access resolver's fail-closed rule still
// applies to real oracle errors and never to cache hiccups.
type OracleCache struct {
	rdb   goredis.Cmdable
	inner domain.SocialGraph
}

func NewOracleCache(rdb goredis.Cmdable, inner domain.SocialGraph) *OracleCache {
	return &OracleCache{rdb: rdb, inner: inner}
}

func (c *OracleCache) IsFollowing(ctx context.Context, viewer, broadcaster *domain.User) (bool, error) {
	key := followCachePrefix + viewer.TwitchUserID + ":" + broadcaster.TwitchUserID
	if answer, ok := c.getBool(ctx, key); ok {
		return answer, nil
	}

	answer, err := c.inner.IsFollowing(ctx, viewer, broadcaster)
	if err != nil {
		return false, err
	}
	c.setBool(ctx, key, answer)
	return answer, nil
}

func (c *OracleCache) FollowedBroadcasterIDs(ctx context.Context, viewer *domain.User) (map[string]struct{}, error) {
	key := followSetCachePrefix + viewer.TwitchUserID

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			slog.Warn("Failed to unmarshal cached follow set, falling through to oracle",
				"viewer_id", viewer.TwitchUserID, "error", err)
		} else {
			metrics.OracleCacheHits.WithLabelValues("hit").Inc()
			set := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				set[id] = struct{}{}
			}
			return set, nil
		}
	} else if !errors.Is(err, goredis.Nil) {
		slog.Warn("Redis follow set cache GET failed, falling through to oracle",
			"viewer_id", viewer.TwitchUserID, "error", err)
	}

	set, err := c.inner.FollowedBroadcasterIDs(ctx, viewer)
	if err != nil {
		return nil, err
	}
	metrics.OracleCacheHits.WithLabelValues("miss").Inc()

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	if encoded, err := json.Marshal(ids); err == nil {
		if err := c.rdb.Set(ctx, key, encoded, oracleCacheTTL).Err(); err != nil {
			slog.Warn("Failed to populate follow set cache",
				"viewer_id", viewer.TwitchUserID, "error", err)
		}
	}
	return set, nil
}

func (c *OracleCache) IsSubscribed(ctx context.Context, viewer, broadcaster *domain.User) (bool, error) {
	key := subCachePrefix + viewer.TwitchUserID + ":" + broadcaster.TwitchUserID
	if answer, ok := c.getBool(ctx, key); ok {
		return answer, nil
	}

	answer, err := c.inner.IsSubscribed(ctx, viewer, broadcaster)
	if err != nil {
		return false, err
	}
	c.setBool(ctx, key, answer)
	return answer, nil
}

// Invalidate drops every cached answer for the viewer. Called on login so a
// fresh session sees fresh follow and subscription state.
func (c *OracleCache) Invalidate(ctx context.Context, viewer *domain.User) error {
	keys := []string{followSetCachePrefix + viewer.TwitchUserID}

	for _, prefix := range []string{followCachePrefix, subCachePrefix} {
		iter := c.rdb.Scan(ctx, 0, prefix+viewer.TwitchUserID+":*", 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan oracle cache keys: %w", err)
		}
	}

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate oracle cache: %w", err)
	}
	return nil
}

func (c *OracleCache) getBool(ctx context.Context, key string) (answer, ok bool) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("Redis oracle cache GET failed, falling through to oracle", "key", key, "error", err)
		}
		return false, false
	}
	metrics.OracleCacheHits.WithLabelValues("hit").Inc()
	return val == "1", true
}

func (c *OracleCache) setBool(ctx context.Context, key string, answer bool) {
	metrics.OracleCacheHits.WithLabelValues("miss").Inc()
	val := "0"
	if answer {
		val = "1"
	}
	if err := c.rdb.Set(ctx, key, val, oracleCacheTTL).Err(); err != nil {
		slog.Warn("Failed to populate oracle cache", "key", key, "error", err)
	}
}
