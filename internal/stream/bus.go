// Package stream provides the durable stream bus joining pipeline stages:
// append-only ordered streams with consumer groups, acknowledgement and
// pending-entry retry, backed by Redis Streams.
package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Record is one entry read from a stream. Fields are flat key->string;
// complex values are JSON-encoded strings.
type Record struct {
	ID     string
	Fields map[string]string
}

// Handler processes one record. A nil return acknowledges the record; an
// error leaves it pending so the bus redelivers it.
type Handler func(ctx context.Context, rec Record) error

// Bus is the append/read/ack surface stages program against.
type Bus interface {
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)
	EnsureGroup(ctx context.Context, stream, group string) error
	Read(ctx context.Context, stream, group, consumer string, max int64, block time.Duration) ([]Record, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	Trim(ctx context.Context, stream string, maxLen int64) error
	Len(ctx context.Context, stream string) (int64, error)
}

// RedisBus implements Bus on Redis Streams. Delivery is at-least-once:
// records not acked within ReclaimMinIdle are claimed and redelivered.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus connects to Redis using a redis:// URL and verifies the
// connection.
func NewRedisBus(ctx context.Context, redisURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("stream bus connected")
	return &RedisBus{client: client}, nil
}

// NewRedisBusFromClient wraps an existing client. Used by tests and by the
// dedup index so both share one connection pool.
func NewRedisBusFromClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Client exposes the underlying connection for collaborators sharing the
// pool (dedup index).
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

// Append adds a record to the stream and returns its entry ID.
func (b *RedisBus) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	log.Debug().Str("stream", stream).Str("id", id).Msg("appended record")
	return id, nil
}

// EnsureGroup creates the consumer group at the stream tail, creating the
// stream itself if needed. An existing group is not an error.
func (b *RedisBus) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// Read returns up to max records not yet delivered to this group, blocking
// up to the given duration when the stream is empty.
func (b *RedisBus) Read(ctx context.Context, stream, group, consumer string, max int64, block time.Duration) ([]Record, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    max,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s/%s: %w", stream, group, err)
	}

	var records []Record
	for _, s := range streams {
		for _, msg := range s.Messages {
			records = append(records, toRecord(msg))
		}
	}
	return records, nil
}

// Ack acknowledges records for the group so they are not redelivered.
func (b *RedisBus) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("xack %s/%s: %w", stream, group, err)
	}
	return nil
}

// Trim caps the stream at approximately maxLen entries.
func (b *RedisBus) Trim(ctx context.Context, stream string, maxLen int64) error {
	if err := b.client.XTrimMaxLenApprox(ctx, stream, maxLen, 0).Err(); err != nil {
		return fmt.Errorf("xtrim %s: %w", stream, err)
	}
	log.Info().Str("stream", stream).Int64("max_len", maxLen).Msg("trimmed stream")
	return nil
}

// Len returns the number of entries currently in the stream.
func (b *RedisBus) Len(ctx context.Context, stream string) (int64, error) {
	n, err := b.client.XLen(ctx, stream).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen %s: %w", stream, err)
	}
	return n, nil
}

// Pending describes one unacknowledged delivery.
type Pending struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	Deliveries int64
}

// PendingEntries lists up to count unacked deliveries for the group whose
// idle time exceeds minIdle.
func (b *RedisBus) PendingEntries(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]Pending, error) {
	ext, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xpending %s/%s: %w", stream, group, err)
	}
	pending := make([]Pending, 0, len(ext))
	for _, p := range ext {
		pending = append(pending, Pending{
			ID:         p.ID,
			Consumer:   p.Consumer,
			Idle:       p.Idle,
			Deliveries: p.RetryCount,
		})
	}
	return pending, nil
}

// Claim transfers pending records to the given consumer and returns them
// for reprocessing.
func (b *RedisBus) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	msgs, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xclaim %s/%s: %w", stream, group, err)
	}
	records := make([]Record, 0, len(msgs))
	for _, msg := range msgs {
		records = append(records, toRecord(msg))
	}
	return records, nil
}

// Close releases the underlying connection pool.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

func toRecord(msg redis.XMessage) Record {
	fields := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		fields[k] = fmt.Sprint(v)
	}
	return Record{ID: msg.ID, Fields: fields}
}
