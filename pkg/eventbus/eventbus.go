// Package eventbus implements the durable, append-only event delivery
// contract described by spec §4.1: best-effort publish (a publish failure
// must never fail the DB transaction that preceded it) over named Redis
// Streams, consumed with consumer-group semantics so exactly one worker in a
// group claims each message.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/djinnbot/core/internal/config"
	"github.com/djinnbot/core/pkg/logger"
)

// Module provides the EventBus and its underlying Redis client.
var Module = fx.Module("eventbus",
	fx.Provide(NewRedisClient),
	fx.Provide(NewBus),
)

// Stream names used by the core (spec §4.1).
const (
	StreamGlobal       = "events:global"
	StreamNewRuns      = "events:new_runs"
	StreamChatSessions = "events:chat_sessions"
)

// StreamForRun returns the per-run control channel name.
func StreamForRun(runID string) string {
	return "events:run:" + runID
}

// Event is the envelope published to every stream. Type and entity ids are
// the minimum contract spec §4.1 requires; Data carries the rest.
type Event struct {
	Type        string         `json:"type"`
	TimestampMs int64          `json:"timestamp_ms"`
	Data        map[string]any `json:"data,omitempty"`
}

// NewRedisClient builds the Redis client backing the event bus transport.
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.EventBus.Addr,
		Password: cfg.EventBus.Password,
		DB:       cfg.EventBus.DB,
	})

	log = log.With(logger.Scope("eventbus.redis"))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing redis client")
			return client.Close()
		},
	})

	return client, nil
}

// Bus publishes and consumes events over Redis Streams.
type Bus struct {
	rdb          *redis.Client
	log          *slog.Logger
	consumerName string
	timeout      time.Duration
}

// NewBus constructs the EventBus.
func NewBus(rdb *redis.Client, cfg *config.Config, log *slog.Logger) *Bus {
	consumer := cfg.EventBus.ConsumerName
	if consumer == "" {
		consumer = "djinnbot-" + time.Now().UTC().Format("20060102T150405.000000000")
	}
	return &Bus{
		rdb:          rdb,
		log:          log.With(logger.Scope("eventbus")),
		consumerName: consumer,
		timeout:      cfg.EventBus.PublishTimeout,
	}
}

// Publish appends an event to stream. It has no error result: on a marshal
// or XADD failure it logs and returns, so a publish failure cannot fail the
// caller's already-committed DB work or surface as a request error. Call it
// after commit (spec §4.1).
func (b *Bus) Publish(ctx context.Context, stream string, eventType string, data map[string]any) {
	evt := Event{
		Type:        eventType,
		TimestampMs: time.Now().UnixMilli(),
		Data:        data,
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		b.log.Error("marshal event failed",
			slog.String("stream", stream),
			slog.String("event_type", eventType),
			logger.Error(err),
		)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	_, err = b.rdb.XAdd(pubCtx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"payload": payload},
	}).Result()
	if err != nil {
		b.log.Error("publish event failed",
			slog.String("stream", stream),
			slog.String("event_type", eventType),
			logger.Error(err),
		)
	}
}

// ConsumerGroup ensures a consumer group exists on stream, creating the
// stream itself if necessary.
func (b *Bus) ConsumerGroup(ctx context.Context, stream, group string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		// BUSYGROUP means the group already exists — not an error.
		if isBusyGroupErr(err) {
			return nil
		}
		return err
	}
	return nil
}

// Handler processes one delivered event. Returning an error leaves the
// message unacked in this consumer's pending list, so the next Consume call
// delivers it again.
type Handler func(ctx context.Context, evt Event) error

// Consume reads up to count messages for group/consumer from stream — this
// consumer's pending (delivered but unacked) entries first, new ones only
// when none are pending — invokes handler for each, and acks on success. It
// blocks up to block waiting for new messages when none are immediately
// available.
func (b *Bus) Consume(ctx context.Context, stream, group string, count int64, block time.Duration, handler Handler) error {
	res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: b.consumerName,
		Streams:  []string{stream, "0"},
		Count:    count,
		Block:    -1,
	}).Result()
	if err == nil && (len(res) == 0 || len(res[0].Messages) == 0) {
		res, err = b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumerName,
			Streams:  []string{stream, ">"},
			Count:    count,
			Block:    block,
		}).Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) || err == context.DeadlineExceeded {
			return nil
		}
		return err
	}

	for _, s := range res {
		for _, msg := range s.Messages {
			raw, _ := msg.Values["payload"].(string)
			var evt Event
			if err := json.Unmarshal([]byte(raw), &evt); err != nil {
				b.log.Warn("dropping malformed event",
					slog.String("stream", stream),
					slog.String("message_id", msg.ID),
					logger.Error(err),
				)
				_ = b.rdb.XAck(ctx, stream, group, msg.ID).Err()
				continue
			}

			if err := handler(ctx, evt); err != nil {
				b.log.Warn("event handler failed, leaving unacked for redelivery",
					slog.String("stream", stream),
					slog.String("message_id", msg.ID),
					logger.Error(err),
				)
				continue
			}

			if err := b.rdb.XAck(ctx, stream, group, msg.ID).Err(); err != nil {
				b.log.Error("ack failed",
					slog.String("stream", stream),
					slog.String("message_id", msg.ID),
					logger.Error(err),
				)
			}
		}
	}

	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
