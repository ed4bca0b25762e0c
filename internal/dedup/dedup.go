// Package dedup drops articles already seen within a TTL window using
// content fingerprints stored in Redis.
package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long a fingerprint stays in the seen set.
const DefaultTTL = 48 * time.Hour

const keyPrefix = "dedup:"

// Fingerprint computes the stable content identity of an article:
// MD5 over the lowercased headline plus the lowercased first 100 bytes of
// the body. Stable under case changes and surrounding whitespace.
func Fingerprint(headline, body string) string {
	content := strings.ToLower(strings.TrimSpace(headline))
	body = strings.TrimSpace(body)
	if body != "" {
		if len(body) > 100 {
			body = body[:100]
		}
		content += " " + strings.ToLower(strings.TrimSpace(body))
	}
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Index is the shared seen-set. TryInsert is the only write path and is
// atomic: concurrent fetchers racing on the same article serialize on it.
type Index struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIndex builds an index over an existing Redis connection.
func NewIndex(client *redis.Client, ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Index{client: client, ttl: ttl}
}

// TryInsert records the fingerprint and reports whether it was newly
// created. Exactly one caller observes true per fingerprint per TTL window.
func (i *Index) TryInsert(ctx context.Context, fp string) (bool, error) {
	created, err := i.client.SetNX(ctx, keyPrefix+fp, 1, i.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	if !created {
		log.Debug().Str("fingerprint", fp).Msg("duplicate fingerprint")
	}
	return created, nil
}

// Seen reports whether the fingerprint is currently in the set, without
// inserting it.
func (i *Index) Seen(ctx context.Context, fp string) (bool, error) {
	n, err := i.client.Exists(ctx, keyPrefix+fp).Result()
	if err != nil {
		return false, fmt.Errorf("dedup exists: %w", err)
	}
	return n > 0, nil
}

// Clear removes all fingerprints. Maintenance use only.
func (i *Index) Clear(ctx context.Context) (int64, error) {
	keys, err := i.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return 0, fmt.Errorf("dedup keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := i.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("dedup del: %w", err)
	}
	log.Info().Int64("count", n).Msg("cleared dedup fingerprints")
	return n, nil
}
