package stream

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DeadLetterSuffix is appended to a stream name to form its dead-letter
// stream.
const DeadLetterSuffix = ":dead"

// ConsumerConfig configures one competing consumer in a group.
type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string

	// BatchSize is the max records fetched per read. Block is how long a
	// read waits when the stream is empty.
	BatchSize int64
	Block     time.Duration

	// ReclaimMinIdle is how long a delivery may sit unacked before another
	// consumer claims it. MaxDeliveries caps retries; records over the cap
	// are copied to the dead-letter stream and acked.
	ReclaimMinIdle time.Duration
	MaxDeliveries  int64

	// HandlerTimeout bounds one handler invocation. A record whose handler
	// times out is not acked and is redelivered.
	HandlerTimeout time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	if c.Block == 0 {
		c.Block = 5 * time.Second
	}
	if c.ReclaimMinIdle == 0 {
		c.ReclaimMinIdle = 30 * time.Second
	}
	if c.MaxDeliveries == 0 {
		c.MaxDeliveries = 5
	}
	if c.HandlerTimeout == 0 {
		c.HandlerTimeout = 25 * time.Minute
	}
	return c
}

// Consumer is a long-lived loop that reads records for one group member,
// invokes the handler, and acks only on success. Failed records stay
// pending and are reclaimed after ReclaimMinIdle.
type Consumer struct {
	bus     *RedisBus
	cfg     ConsumerConfig
	handler Handler
}

// NewConsumer builds a consumer. The group is created on first Run.
func NewConsumer(bus *RedisBus, cfg ConsumerConfig, handler Handler) *Consumer {
	return &Consumer{bus: bus, cfg: cfg.withDefaults(), handler: handler}
}

// Run blocks until ctx is cancelled. The in-flight record finishes; no new
// records are claimed afterwards.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.bus.EnsureGroup(ctx, c.cfg.Stream, c.cfg.Group); err != nil {
		return err
	}
	log.Info().
		Str("stream", c.cfg.Stream).
		Str("group", c.cfg.Group).
		Str("consumer", c.cfg.Consumer).
		Msg("consumer started")

	for {
		if ctx.Err() != nil {
			log.Info().Str("consumer", c.cfg.Consumer).Msg("consumer stopped")
			return ctx.Err()
		}

		c.reclaim(ctx)

		records, err := c.bus.Read(ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.BatchSize, c.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("stream", c.cfg.Stream).Msg("stream read failed")
			time.Sleep(time.Second)
			continue
		}
		c.process(ctx, records)
	}
}

// ProcessOnce drains whatever is immediately available and returns. Used by
// tests and by one-shot maintenance commands.
func (c *Consumer) ProcessOnce(ctx context.Context) error {
	if err := c.bus.EnsureGroup(ctx, c.cfg.Stream, c.cfg.Group); err != nil {
		return err
	}
	c.reclaim(ctx)
	records, err := c.bus.Read(ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.BatchSize, time.Millisecond)
	if err != nil {
		return err
	}
	c.process(ctx, records)
	return nil
}

func (c *Consumer) process(ctx context.Context, records []Record) {
	for _, rec := range records {
		if err := c.invoke(ctx, rec); err != nil {
			// No ack: the record stays pending and is redelivered.
			log.Error().Err(err).
				Str("stream", c.cfg.Stream).
				Str("id", rec.ID).
				Msg("handler failed, record left pending")
			continue
		}
		if err := c.bus.Ack(ctx, c.cfg.Stream, c.cfg.Group, rec.ID); err != nil {
			log.Error().Err(err).Str("id", rec.ID).Msg("ack failed")
		}
	}
}

func (c *Consumer) invoke(ctx context.Context, rec Record) error {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandlerTimeout)
	defer cancel()
	return c.handler(hctx, rec)
}

// reclaim picks up deliveries abandoned by dead or stuck consumers.
// Records past MaxDeliveries are dead-lettered so a poison record cannot
// block the stream.
func (c *Consumer) reclaim(ctx context.Context) {
	pending, err := c.bus.PendingEntries(ctx, c.cfg.Stream, c.cfg.Group, c.cfg.ReclaimMinIdle, c.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Str("stream", c.cfg.Stream).Msg("pending scan failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	var retry, dead []string
	for _, p := range pending {
		if p.Deliveries >= c.cfg.MaxDeliveries {
			dead = append(dead, p.ID)
		} else {
			retry = append(retry, p.ID)
		}
	}

	if len(dead) > 0 {
		c.deadLetter(ctx, dead)
	}

	records, err := c.bus.Claim(ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.ReclaimMinIdle, retry)
	if err != nil {
		log.Error().Err(err).Str("stream", c.cfg.Stream).Msg("claim failed")
		return
	}
	if len(records) > 0 {
		log.Warn().Int("count", len(records)).Str("stream", c.cfg.Stream).Msg("reclaimed pending records")
		c.process(ctx, records)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, ids []string) {
	records, err := c.bus.Claim(ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.ReclaimMinIdle, ids)
	if err != nil {
		log.Error().Err(err).Msg("dead-letter claim failed")
		return
	}
	for _, rec := range records {
		if _, err := c.bus.Append(ctx, c.cfg.Stream+DeadLetterSuffix, rec.Fields); err != nil {
			log.Error().Err(err).Str("id", rec.ID).Msg("dead-letter append failed")
			continue
		}
		if err := c.bus.Ack(ctx, c.cfg.Stream, c.cfg.Group, rec.ID); err != nil {
			log.Error().Err(err).Str("id", rec.ID).Msg("dead-letter ack failed")
			continue
		}
		log.Warn().
			Str("stream", c.cfg.Stream).
			Str("id", rec.ID).
			Int64("max_deliveries", c.cfg.MaxDeliveries).
			Msg("record dead-lettered")
	}
}
