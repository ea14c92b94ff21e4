// Package events publishes charge-session lifecycle events to the settlement
// stream and station occupancy updates to the live feed channel.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libevents "chargeshare/backend/libs/events"
	"chargeshare/backend/services/marketplace-service/internal/models"
)

// Publisher writes to the Redis stream and pub/sub channel.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPublisher builds publisher.
func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// SessionOpened emits the event that triggers payment authorization.
func (p *Publisher) SessionOpened(ctx context.Context, session *models.ChargeSession) error {
	return p.add(ctx, libevents.SessionEvent{
		Type:      libevents.TypeSessionOpened,
		SessionID: session.ID,
		DriverID:  session.DriverID,
		StationID: session.StationID,
		Status:    models.SessionPending,
	})
}

// SessionClosed emits the event that triggers capture and split. PrevStatus
// carries the pre-close status so the consumer sees the (before, after) pair.
func (p *Publisher) SessionClosed(ctx context.Context, session *models.ChargeSession, endTime time.Time, totalCost float64) error {
	return p.add(ctx, libevents.SessionEvent{
		Type:       libevents.TypeSessionClosed,
		SessionID:  session.ID,
		DriverID:   session.DriverID,
		StationID:  session.StationID,
		PrevStatus: session.Status,
		Status:     session.Status,
		EndTime:    endTime,
		TotalCost:  totalCost,
	})
}

func (p *Publisher) add(ctx context.Context, ev libevents.SessionEvent) error {
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: libevents.SessionStream,
		Values: ev.Values(),
	}).Err()
}

// StationChanged broadcasts a station snapshot on the live feed channel.
// Failures are logged and swallowed; the feed is best effort.
func (p *Publisher) StationChanged(ctx context.Context, station *models.Station) {
	payload, err := json.Marshal(station)
	if err != nil {
		p.logger.Warn("failed to encode station update", zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, libevents.StationChannel, payload).Err(); err != nil {
		p.logger.Warn("failed to publish station update",
			zap.String("station_id", station.ID),
			zap.Error(err),
		)
	}
}
