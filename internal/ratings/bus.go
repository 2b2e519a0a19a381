// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package ratings

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// ratingTopic is the single bus topic; updates for every surface travel on
// it, keyed by catalog id in the payload.
const ratingTopic = "rating.updates"

// Bus is the in-process rating event bus. Every completed lookup is
// published on it, including definitive misses, so a subscriber driving a
// loading indicator can stop spinning instead of waiting forever.
//
// Delivery is completion-ordered, not submission-ordered. Subscribers must
// resolve the current item list through a stable reference at delivery
// time: the background path takes multi-second pauses between batches, so
// the list that triggered a lookup has usually changed by the time its
// update arrives.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process bus backed by a watermill gochannel Pub/Sub.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, newWatermillLogger()),
	}
}

// Publish broadcasts one rating update to every subscriber.
func (b *Bus) Publish(u models.RatingUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode rating update: %w", err)
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	if err := b.pubsub.Publish(ratingTopic, msg); err != nil {
		return fmt.Errorf("failed to publish rating update: %w", err)
	}
	metrics.BusPublishes.Inc()
	return nil
}

// Subscribe returns a channel of decoded updates. The channel closes when
// ctx is cancelled or the bus shuts down; one subscription per surface
// lifetime is the intended usage.
func (b *Bus) Subscribe(ctx context.Context) (<-chan models.RatingUpdate, error) {
	msgs, err := b.pubsub.Subscribe(ctx, ratingTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to rating updates: %w", err)
	}

	out := make(chan models.RatingUpdate, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			var u models.RatingUpdate
			if err := json.Unmarshal(msg.Payload, &u); err != nil {
				logging.Warn().Err(err).Str("uuid", msg.UUID).Msg("Dropping undecodable rating update")
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down; all subscriber channels close.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter so the pubsub
// internals log through the same pipeline as everything else.
type watermillLogger struct {
	logger zerolog.Logger
}

func newWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{logger: logging.Logger()}
}

func (l *watermillLogger) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.logger.Error().Err(err), msg, fields)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(l.logger.Info(), msg, fields)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.logger.Debug(), msg, fields)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.logger.Trace(), msg, fields)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &watermillLogger{logger: ctx.Logger()}
}
