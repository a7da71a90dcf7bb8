// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// output.go provides a Valkey-backed cache of rendered template output
// (L2). The compiled-template cache lives in process; this one lets the
// demo host skip a render when the same template revision is asked to
// render the same package again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
)

const (
	// outputKeyPrefix is the Valkey key prefix for rendered output.
	outputKeyPrefix = "output:"

	// DefaultOutputTTL is how long rendered output stays cached.
	DefaultOutputTTL = 5 * time.Minute
)

// OutputCache manages rendered output in Valkey.
type OutputCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOutputCache creates a new output cache backed by the given Valkey client.
func NewOutputCache(client *redis.Client, ttl time.Duration) *OutputCache {
	if ttl == 0 {
		ttl = DefaultOutputTTL
	}
	return &OutputCache{client: client, ttl: ttl}
}

// Key returns the cache key for one render: the template identity, its
// revision and a digest of the data it renders.
func Key(id engine.Identity, revision time.Time, data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("output cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%d:%s", identityPrefix(id), revision.UnixNano(), hex.EncodeToString(sum[:12])), nil
}

func identityPrefix(id engine.Identity) string {
	return outputKeyPrefix + id.String()
}

// Get retrieves cached output. Returns false on miss.
func (oc *OutputCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := oc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("output cache get error", "key", key, "error", err)
		return nil, false
	}
	slog.Debug("output cache hit", "key", key)
	return val, true
}

// Set stores rendered output with the configured TTL.
func (oc *OutputCache) Set(ctx context.Context, key string, output []byte) {
	if err := oc.client.Set(ctx, key, output, oc.ttl).Err(); err != nil {
		slog.Warn("output cache set error", "key", key, "error", err)
	}
}

// Invalidate removes every cached render of the given templates.
func (oc *OutputCache) Invalidate(ctx context.Context, ids ...engine.Identity) {
	for _, id := range ids {
		n := oc.deleteMatching(ctx, escapePattern(identityPrefix(id))+":*")
		slog.Debug("output cache invalidated", "identity", id.String(), "deleted", n)
	}
}

// InvalidateAll removes all cached output.
func (oc *OutputCache) InvalidateAll(ctx context.Context) {
	if n := oc.deleteMatching(ctx, outputKeyPrefix+"*"); n > 0 {
		slog.Info("output cache fully cleared", "deleted", n)
	}
}

func (oc *OutputCache) deleteMatching(ctx context.Context, pattern string) int {
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := oc.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			slog.Warn("output cache scan error", "error", err)
			return deleted
		}
		if len(keys) > 0 {
			if err := oc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("output cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			return deleted
		}
	}
}

var patternEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapePattern quotes glob characters for SCAN MATCH.
func escapePattern(s string) string {
	return patternEscaper.Replace(s)
}
