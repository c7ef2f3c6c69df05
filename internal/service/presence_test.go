package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ordercast/notify-service/internal/logger"
	"github.com/ordercast/notify-service/internal/model"
	"github.com/ordercast/notify-service/internal/repo"
	"github.com/stretchr/testify/assert"
)

// brokenRowRepo fails SetSubscriptionActive for one subscription id.
type brokenRowRepo struct {
	repo.RepositoryInterface
	brokenID string
	failures int
}

func (b *brokenRowRepo) SetSubscriptionActive(ctx context.Context, subscriptionID string, active bool) error {
	if subscriptionID == b.brokenID {
		b.failures++
		return errors.New("row update failed")
	}
	return b.RepositoryInterface.SetSubscriptionActive(ctx, subscriptionID, active)
}

func newTestSynchronizer(t *testing.T) (*PresenceSynchronizer, *repo.Repository, context.Context) {
	r, ctx := newTestRepo(t)
	log, _ := logger.NewLogger()
	return NewPresenceSynchronizer(r, log), r, ctx
}

func seedSubscriptions(t *testing.T, r *repo.Repository, ctx context.Context, business string, active bool, ids ...string) {
	for _, id := range ids {
		assert.NoError(t, r.CreateSubscription(ctx, &model.Subscription{
			SubscriptionID: id, BusinessID: business,
			SubscriberID: "U-" + id, IsActive: active,
		}))
	}
}

func TestSync_Convergence(t *testing.T) {
	p, r, ctx := newTestSynchronizer(t)
	seedSubscriptions(t, r, ctx, "B1", false, "S1", "S2")

	// business comes online: both mirrors flip true
	updated, failed, err := p.Sync(ctx, model.PresenceEvent{
		BusinessID: "B1", Status: model.StatusOnline, ToggledAt: time.Now(),
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, 0, failed)

	subs, _ := r.FindSubscriptionsByTopic(ctx, "B1")
	for _, s := range subs {
		assert.True(t, s.IsActive)
	}

	// and back offline
	updated, _, err = p.Sync(ctx, model.PresenceEvent{
		BusinessID: "B1", Status: model.StatusOffline, ToggledAt: time.Now().Add(time.Second),
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, updated)
	subs, _ = r.FindSubscriptionsByTopic(ctx, "B1")
	for _, s := range subs {
		assert.False(t, s.IsActive)
	}
}

func TestSync_OneBrokenRowDoesNotBlockOthers(t *testing.T) {
	p, r, ctx := newTestSynchronizer(t)
	seedSubscriptions(t, r, ctx, "B1", true, "S1", "S2", "S3")

	broken := &brokenRowRepo{RepositoryInterface: r, brokenID: "S2"}
	log, _ := logger.NewLogger()
	p = NewPresenceSynchronizer(broken, log)

	updated, failed, err := p.Sync(ctx, model.PresenceEvent{
		BusinessID: "B1", Status: model.StatusOffline, ToggledAt: time.Now(),
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, broken.failures)

	subs, _ := r.FindSubscriptionsByTopic(ctx, "B1")
	for _, s := range subs {
		if s.SubscriptionID == "S2" {
			assert.True(t, s.IsActive) // stuck until reconciliation
		} else {
			assert.False(t, s.IsActive)
		}
	}
}

func TestReconcile_FixesDivergedRows(t *testing.T) {
	p, r, ctx := newTestSynchronizer(t)
	seedSubscriptions(t, r, ctx, "B1", true, "S1", "S2")

	// snapshot says offline but S1/S2 still read true, as after a crash
	// mid-sync
	assert.NoError(t, r.SavePresence(ctx, &model.BusinessPresence{
		BusinessID: "B1", AcceptingOrders: false, LastStatusUpdate: time.Now(),
	}))

	fixed, err := p.Reconcile(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, fixed)

	subs, _ := r.FindSubscriptionsByTopic(ctx, "B1")
	for _, s := range subs {
		assert.False(t, s.IsActive)
	}

	// a second pass finds nothing to do
	fixed, err = p.Reconcile(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, fixed)
}

func TestSubscribe_StartsFromCurrentPresence(t *testing.T) {
	p, r, ctx := newTestSynchronizer(t)

	assert.NoError(t, r.SavePresence(ctx, &model.BusinessPresence{
		BusinessID: "B1", AcceptingOrders: true, LastStatusUpdate: time.Now(),
	}))

	sub, err := p.Subscribe(ctx, "B1", "U1", "conn-1")
	assert.NoError(t, err)
	assert.True(t, sub.IsActive)

	// unknown business defaults to not accepting
	sub2, err := p.Subscribe(ctx, "B-new", "U1", "conn-1")
	assert.NoError(t, err)
	assert.False(t, sub2.IsActive)

	assert.NoError(t, p.Unsubscribe(ctx, sub.SubscriptionID))
	subs, _ := r.FindSubscriptionsByTopic(ctx, "B1")
	assert.Empty(t, subs)
}
