// Package kafkaconsumer subscribes to catalog change events and applies them
// to the in-process caches: layer purges for data tables, localization
// reloads for label tables.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/ecovector/mosquito-atlas/internal/core/observability"
	"github.com/ecovector/mosquito-atlas/internal/i18n"
	"github.com/ecovector/mosquito-atlas/internal/invalidation"
)

type CachePurger interface {
	PurgeLayer(layer string) int
}

type Reloader interface {
	Reload(ctx context.Context, domain i18n.Domain) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	purger CachePurger
	labels Reloader

	// layerTables maps public layer names to backing tables; an event on a
	// table purges every layer it backs.
	layerTables map[string]string
}

func New(cfg Config, logger *slog.Logger, purger CachePurger, labels Reloader, layerTables map[string]string) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:         cfg,
		logger:      logger,
		purger:      purger,
		labels:      labels,
		layerTables: layerTables,
	}
}

// Start joins the consumer group and processes events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.purger == nil && c.labels == nil {
		return errors.New("kafkaconsumer: nothing to invalidate (purger and labels are nil)")
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

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("catalog change consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("catalog change consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				observability.IncConsumerError("consume")
				c.logger.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne applies a single change event.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncConsumerError("decode")
		return fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		observability.IncConsumerError("validate")
		return fmt.Errorf("invalid event: %w", err)
	}
	return c.Apply(ctx, ev)
}

// Apply routes the event: label tables reload their localization domain,
// data tables purge the layers they back. Unknown tables are ignored.
func (c *Consumer) Apply(ctx context.Context, ev invalidation.Event) error {
	if domain, ok := labelDomain(ev.Table); ok {
		if c.labels == nil {
			return nil
		}
		if err := c.labels.Reload(ctx, domain); err != nil {
			observability.IncConsumerError("reload")
			return fmt.Errorf("reload %s labels: %w", domain, err)
		}
		c.logger.Info("localization domain reloaded", "domain", string(domain), "op", ev.Op)
		return nil
	}

	if c.purger == nil {
		return nil
	}
	purged := 0
	for layer, table := range c.layerTables {
		if table == ev.Table {
			purged += c.purger.PurgeLayer(layer)
		}
	}
	if purged > 0 {
		c.logger.Debug("layer cache purged", "table", ev.Table, "entries", purged)
	}
	return nil
}

func labelDomain(table string) (i18n.Domain, bool) {
	for _, d := range i18n.Domains {
		if d.TableName() == table {
			return d, true
		}
	}
	return "", false
}
