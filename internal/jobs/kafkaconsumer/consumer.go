// Package kafkaconsumer runs parcel jobs received from a Kafka topic.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	obs "github.com/mohammed-shakir/catastro-tool/internal/core/observability"
	"github.com/mohammed-shakir/catastro-tool/internal/jobs"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
	"github.com/mohammed-shakir/catastro-tool/internal/refcat"
)

type Processor interface {
	Process(ctx context.Context, raw string) model.RunResult
}

type LayerInvalidator interface {
	InvalidateLayer(ctx context.Context, layer string) (int, error)
}

type Consumer struct {
	cfg    Config
	log    *slog.Logger
	proc   Processor
	inval  LayerInvalidator
	dedupe *requestDedupe
}

// New builds a consumer. inval may be nil when no layer cache is configured.
func New(cfg Config, log *slog.Logger, proc Processor, inval LayerInvalidator) *Consumer {
	if log == nil {
		log = logger.Discard()
	}
	return &Consumer{
		cfg:    cfg,
		log:    log,
		proc:   proc,
		inval:  inval,
		dedupe: newRequestDedupe(cfg.DedupeSize),
	}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.proc == nil {
		return errors.New("kafkaconsumer: missing processor")
	}
	if len(c.cfg.Brokers) == 0 {
		return errors.New("kafkaconsumer: no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = logger.WithComponent(ctx, "kafka_consumer")
	handler := &groupHandler{process: c.ProcessOne}

	c.log.InfoContext(ctx, "kafka job consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.log.InfoContext(ctx, "kafka job consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.log.ErrorContext(ctx, "kafka consumer error",
					"err", err, "brokers", c.cfg.Brokers, "topic", c.cfg.Topic)
				if err := sleep(ctx, 2*time.Second); err != nil {
					return nil
				}
			}
		}
	}
}

// ProcessOne handles a single message. Invalid messages are logged and
// acknowledged; cache failures and runs cut short by cancellation are
// returned so they get redelivered. A failed parcel run is a result, not a
// delivery error.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	m, err := jobs.Decode(msg.Value)
	if err != nil {
		obs.ObserveJob("unknown", "invalid")
		c.log.WarnContext(ctx, "dropping invalid job",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	key := string(m.Kind) + ":" + m.Layer
	if m.Kind == jobs.KindProcess {
		key = string(m.Kind) + ":" + refcat.Normalize(m.Reference)
	}
	at := m.RequestedAt.UnixNano()
	if !c.dedupe.fresh(key, at) {
		obs.ObserveJob(string(m.Kind), "duplicate")
		c.log.DebugContext(ctx, "skipping duplicate job", "key", key, "offset", msg.Offset)
		return nil
	}

	switch m.Kind {
	case jobs.KindInvalidateLayer:
		if err := c.invalidate(ctx, m.Layer); err != nil {
			return err
		}
		c.dedupe.record(key, at)
		return nil
	default:
		res := c.proc.Process(ctx, m.Reference)
		if err := ctx.Err(); err != nil {
			// interrupted run: leave it unrecorded and unmarked so it is redelivered
			obs.ObserveJob(string(m.Kind), "interrupted")
			return err
		}
		outcome := "ok"
		if res.Status == model.StatusFailed {
			outcome = "error"
		}
		obs.ObserveJob(string(m.Kind), outcome)
		c.dedupe.record(key, at)
		c.log.InfoContext(ctx, "job processed",
			"reference", res.Reference, "run_id", res.RunID, "status", res.Status,
			"requested_at", m.RequestedAt)
		return nil
	}
}

func (c *Consumer) invalidate(ctx context.Context, layer string) error {
	if c.inval == nil {
		obs.ObserveJob(string(jobs.KindInvalidateLayer), "ok")
		c.log.DebugContext(ctx, "no layer cache configured, nothing to invalidate", "layer", layer)
		return nil
	}
	n, err := c.inval.InvalidateLayer(ctx, layer)
	if err != nil {
		obs.ObserveJob(string(jobs.KindInvalidateLayer), "error")
		return fmt.Errorf("invalidate layer %q: %w", layer, err)
	}
	obs.ObserveJob(string(jobs.KindInvalidateLayer), "ok")
	c.log.InfoContext(ctx, "layer invalidated", "layer", layer, "keys", n)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
