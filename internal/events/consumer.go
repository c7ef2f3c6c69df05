package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ordercast/notify-service/internal/model"
	"github.com/ordercast/notify-service/internal/service"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer reads the order and presence topics and hands each decoded
// event to its service. Malformed messages are logged and skipped; the
// loops only stop when the context is cancelled.
type Consumer struct {
	orders     *kafka.Reader
	presence   *kafka.Reader
	dispatcher *service.FanoutDispatcher
	sync       *service.PresenceSynchronizer
	log        *zap.SugaredLogger
}

// NewConsumer returns Consumer.
func NewConsumer(orders, presence *kafka.Reader, d *service.FanoutDispatcher,
	s *service.PresenceSynchronizer, logger *zap.SugaredLogger) *Consumer {
	return &Consumer{orders: orders, presence: presence, dispatcher: d, sync: s, log: logger}
}

// RunOrders consumes order events until ctx is done.
func (c *Consumer) RunOrders(ctx context.Context) error {
	for {
		msg, err := c.orders.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		var evt model.OrderEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			c.log.Warnw("malformed order event, skipping",
				"offset", msg.Offset, "err", err)
			continue
		}
		if err := c.dispatcher.Dispatch(ctx, evt); err != nil {
			// delivery is best effort; the order store stays the
			// source of truth, so log and move on
			c.log.Errorf("dispatch order %s: %v", evt.OrderID, err)
		}
	}
}

// RunPresence consumes presence toggles until ctx is done.
func (c *Consumer) RunPresence(ctx context.Context) error {
	for {
		msg, err := c.presence.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		var evt model.PresenceEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			c.log.Warnw("malformed presence event, skipping",
				"offset", msg.Offset, "err", err)
			continue
		}
		if _, _, err := c.sync.Sync(ctx, evt); err != nil {
			c.log.Errorf("sync presence %s: %v", evt.BusinessID, err)
		}
	}
}
