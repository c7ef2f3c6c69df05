package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ordercast/notify-service/internal/model"
	"github.com/ordercast/notify-service/internal/push"
	"github.com/ordercast/notify-service/internal/repo"
	"github.com/ordercast/notify-service/internal/transport/live"
	"go.uber.org/zap"
)

// FanoutDispatcher turns "an order was created" into "every endpoint of
// that business was notified". Live connections get a direct push; device
// tokens go through the push gateway. Purely notifies; never mutates the
// order.
type FanoutDispatcher struct {
	repo      repo.RepositoryInterface
	transport live.Transport
	sender    push.Sender
	lifecycle *LifecycleManager
	logTTL    time.Duration
	log       *zap.SugaredLogger
}

// NewFanoutDispatcher returns FanoutDispatcher.
func NewFanoutDispatcher(r repo.RepositoryInterface, t live.Transport, s push.Sender,
	lc *LifecycleManager, logTTL time.Duration, logger *zap.SugaredLogger) *FanoutDispatcher {
	return &FanoutDispatcher{repo: r, transport: t, sender: s, lifecycle: lc, logTTL: logTTL, log: logger}
}

type liveMessage struct {
	Type string           `json:"type"`
	Data model.OrderEvent `json:"data"`
}

// Dispatch fans one order event out to every active endpoint of the owning
// business. An event with no routing key is skipped with a warning, not
// failed: the order is still queryable from the order store either way.
func (d *FanoutDispatcher) Dispatch(ctx context.Context, evt model.OrderEvent) error {
	businessID, ok := evt.ResolveBusinessID()
	if !ok {
		d.log.Warnw("order event has no business id, skipping", "order_id", evt.OrderID)
		return nil
	}

	endpoints, err := d.repo.ListActiveEndpoints(ctx, businessID)
	if err != nil {
		return fmt.Errorf("list endpoints for %s: %w", businessID, err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	var conns []model.Endpoint
	var tokens []push.Target
	for _, ep := range endpoints {
		if ep.Kind == model.KindLive {
			conns = append(conns, ep)
		} else {
			tokens = append(tokens, push.Target{Token: ep.EndpointID, Platform: ep.Platform})
		}
	}

	payload, err := json.Marshal(liveMessage{Type: "NEW_ORDER", Data: evt})
	if err != nil {
		return err
	}

	// all pushes of the batch run concurrently; one failure must not
	// block or fail the others
	var wg sync.WaitGroup
	for _, ep := range conns {
		wg.Add(1)
		go func(ep model.Endpoint) {
			defer wg.Done()
			err := d.transport.Send(ctx, ep.EndpointID, payload)
			switch {
			case errors.Is(err, live.ErrConnectionGone):
				d.lifecycle.OnTransportGone(ctx, ep.EndpointID)
			case err != nil:
				d.log.Warnw("live push failed", "endpoint_id", ep.EndpointID, "err", err)
			}
		}(ep)
	}

	var settlements []push.Settlement
	if len(tokens) > 0 {
		n := push.Notification{
			Title: fmt.Sprintf("New order from %s", evt.CustomerName),
			Body:  orderBody(evt),
			Data:  map[string]string{"order_id": evt.OrderID, "business_id": businessID},
		}
		settlements = d.sender.SendAll(ctx, tokens, n)
		for _, s := range settlements {
			if errors.Is(s.Err, push.ErrInvalidToken) {
				d.lifecycle.OnTransportGone(ctx, s.Target.Token)
			} else if s.Err != nil {
				d.log.Warnw("token push failed", "token", s.Target.Token, "err", s.Err)
			}
		}
		d.audit(ctx, businessID, n, settlements)
	}

	wg.Wait()
	d.log.Infow("order fanned out",
		"order_id", evt.OrderID, "business_id", businessID,
		"live", len(conns), "tokens", len(tokens))
	return nil
}

// DispatchBatch processes events independently; a skipped or failed event
// never halts the rest.
func (d *FanoutDispatcher) DispatchBatch(ctx context.Context, evts []model.OrderEvent) {
	for _, evt := range evts {
		if err := d.Dispatch(ctx, evt); err != nil {
			d.log.Errorf("dispatch order %s: %v", evt.OrderID, err)
		}
	}
}

func orderBody(evt model.OrderEvent) string {
	items := 0
	for _, it := range evt.Items {
		items += it.Quantity
	}
	return fmt.Sprintf("%d item(s), total %s", items, evt.Total.StringFixed(2))
}

// audit records the batch settlement. Write-only; a failed write costs the
// audit row, not the delivery.
func (d *FanoutDispatcher) audit(ctx context.Context, businessID string, n push.Notification, settlements []push.Settlement) {
	results := make([]model.PushResult, 0, len(settlements))
	for _, s := range settlements {
		r := model.PushResult{Token: s.Target.Token, OK: s.Err == nil, MessageID: s.MessageID}
		if s.Err != nil {
			r.Reason = s.Err.Error()
		}
		results = append(results, r)
	}
	raw, err := json.Marshal(results)
	if err != nil {
		d.log.Errorf("marshal push results: %v", err)
		return
	}
	l := &model.PushLog{
		LogID:      uuid.NewString(),
		BusinessID: businessID,
		Title:      n.Title,
		Message:    n.Body,
		Results:    string(raw),
		ExpiresAt:  time.Now().Add(d.logTTL),
	}
	if err := d.repo.CreatePushLog(ctx, l); err != nil {
		d.log.Errorf("write push log: %v", err)
	}
}
