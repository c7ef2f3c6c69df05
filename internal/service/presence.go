package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ordercast/notify-service/internal/model"
	"github.com/ordercast/notify-service/internal/repo"
	"go.uber.org/zap"
)

// PresenceSynchronizer keeps every subscription's is_active mirror in
// lock-step with its business's accepting-orders flag. Triggered per
// toggle; no state is retained between triggers.
type PresenceSynchronizer struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewPresenceSynchronizer returns PresenceSynchronizer.
func NewPresenceSynchronizer(r repo.RepositoryInterface, logger *zap.SugaredLogger) *PresenceSynchronizer {
	return &PresenceSynchronizer{repo: r, log: logger}
}

// Sync applies one presence toggle to every subscription on the business's
// topic. Each row is an independent single-row write: one broken row is
// logged and skipped so the rest still converge. Returns updated and
// failed counts.
func (p *PresenceSynchronizer) Sync(ctx context.Context, evt model.PresenceEvent) (updated, failed int, err error) {
	accepting := evt.Accepting()

	if err := p.repo.SavePresence(ctx, &model.BusinessPresence{
		BusinessID:       evt.BusinessID,
		AcceptingOrders:  accepting,
		LastStatusUpdate: evt.ToggledAt,
	}); err != nil {
		return 0, 0, err
	}
	if err := p.repo.CachePresence(ctx, evt.BusinessID, accepting); err != nil {
		p.log.Warnf("cache presence %s: %v", evt.BusinessID, err)
	}

	subs, err := p.repo.FindSubscriptionsByTopic(ctx, evt.BusinessID)
	if err != nil {
		return 0, 0, err
	}
	for _, sub := range subs {
		if err := p.repo.SetSubscriptionActive(ctx, sub.SubscriptionID, accepting); err != nil {
			p.log.Errorw("presence sync failed for subscription",
				"subscription_id", sub.SubscriptionID, "business_id", evt.BusinessID, "err", err)
			failed++
			continue
		}
		updated++
	}
	p.log.Infow("presence synchronized",
		"business_id", evt.BusinessID, "accepting", accepting,
		"updated", updated, "failed", failed)
	return updated, failed, nil
}

// Reconcile rewrites any subscription whose mirror flag disagrees with the
// business's last observed presence. Closes the window a crash mid-Sync
// leaves behind; every fix is still a single-row idempotent write.
func (p *PresenceSynchronizer) Reconcile(ctx context.Context) (fixed int, err error) {
	presences, err := p.repo.ListPresence(ctx)
	if err != nil {
		return 0, err
	}
	for _, pres := range presences {
		subs, err := p.repo.FindSubscriptionsByTopic(ctx, pres.BusinessID)
		if err != nil {
			p.log.Errorf("reconcile list %s: %v", pres.BusinessID, err)
			continue
		}
		for _, sub := range subs {
			if sub.IsActive == pres.AcceptingOrders {
				continue
			}
			if err := p.repo.SetSubscriptionActive(ctx, sub.SubscriptionID, pres.AcceptingOrders); err != nil {
				p.log.Errorf("reconcile subscription %s: %v", sub.SubscriptionID, err)
				continue
			}
			fixed++
		}
	}
	if fixed > 0 {
		p.log.Infow("presence reconciled", "fixed", fixed)
	}
	return fixed, nil
}

// Subscribe opens a customer's interest in a business's presence. The new
// row starts from the business's current flag so the subscriber sees the
// right state before the next toggle.
func (p *PresenceSynchronizer) Subscribe(ctx context.Context, businessID, subscriberID, connectionID string) (*model.Subscription, error) {
	accepting := false
	if cached, err := p.repo.GetCachedPresence(ctx, businessID); err == nil {
		accepting = cached
	} else if pres, err := p.repo.GetPresence(ctx, businessID); err == nil {
		accepting = pres.AcceptingOrders
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	sub := &model.Subscription{
		SubscriptionID: uuid.NewString(),
		BusinessID:     businessID,
		SubscriberID:   subscriberID,
		ConnectionID:   connectionID,
		IsActive:       accepting,
	}
	if err := p.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe drops the interest row.
func (p *PresenceSynchronizer) Unsubscribe(ctx context.Context, subscriptionID string) error {
	return p.repo.DeleteSubscription(ctx, subscriptionID)
}

// Presence returns the business's current flag, cache first.
func (p *PresenceSynchronizer) Presence(ctx context.Context, businessID string) (bool, error) {
	if accepting, err := p.repo.GetCachedPresence(ctx, businessID); err == nil {
		return accepting, nil
	}
	pres, err := p.repo.GetPresence(ctx, businessID)
	if err != nil {
		return false, err
	}
	if err := p.repo.CachePresence(ctx, businessID, pres.AcceptingOrders); err != nil {
		p.log.Warnf("cache presence %s: %v", businessID, err)
	}
	return pres.AcceptingOrders, nil
}
