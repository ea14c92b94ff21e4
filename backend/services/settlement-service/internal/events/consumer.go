// Package events consumes the charge-session stream through a Redis consumer
// group. Delivery is at-least-once: entries are acked only after the handler
// returns nil, and stale pending entries are reclaimed from dead consumers.
package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libevents "chargeshare/backend/libs/events"
)

const (
	readBatch    = 16
	readBlock    = 5 * time.Second
	claimMinIdle = time.Minute
	retryBackoff = time.Second
)

// Handler processes one decoded session event. A nil return acks the entry;
// an error leaves it pending for redelivery.
type Handler func(ctx context.Context, ev libevents.SessionEvent) error

// Consumer reads the session stream on behalf of one group member.
type Consumer struct {
	client  *redis.Client
	group   string
	name    string
	handler Handler
	logger  *zap.Logger
}

// NewConsumer creates a consumer bound to a group member name.
func NewConsumer(client *redis.Client, group, name string, handler Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:  client,
		group:   group,
		name:    name,
		handler: handler,
		logger:  logger,
	}
}

// Run blocks reading the stream until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		c.claimStale(ctx)

		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{libevents.SessionStream, ">"},
			Count:    readBatch,
			Block:    readBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("stream read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryBackoff):
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, libevents.SessionStream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// claimStale picks up entries a crashed group member left pending.
func (c *Consumer) claimStale(ctx context.Context) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   libevents.SessionStream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  claimMinIdle,
		Start:    "0-0",
		Count:    readBatch,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("pending claim failed", zap.Error(err))
		}
		return
	}
	for _, msg := range msgs {
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	ev, err := libevents.FromValues(msg.Values)
	if err != nil {
		// Malformed entries can never succeed, ack them away.
		c.logger.Error("dropping malformed stream entry",
			zap.String("entry_id", msg.ID), zap.Error(err))
		c.ack(ctx, msg.ID)
		return
	}

	if err := c.handler(ctx, ev); err != nil {
		c.logger.Warn("event left pending for redelivery",
			zap.String("entry_id", msg.ID),
			zap.String("session_id", ev.SessionID),
			zap.String("type", ev.Type),
			zap.Error(err))
		return
	}

	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, entryID string) {
	if err := c.client.XAck(ctx, libevents.SessionStream, c.group, entryID).Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("ack failed", zap.String("entry_id", entryID), zap.Error(err))
	}
}
