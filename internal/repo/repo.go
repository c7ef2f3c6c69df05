package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ordercast/notify-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// RepositoryInterface restricts Repo methods so services can be tested
// against fakes.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	RegisterEndpoint(ctx context.Context, e *model.Endpoint) error
	ListActiveEndpoints(ctx context.Context, businessID string) ([]model.Endpoint, error)
	ListEndpointsByToken(ctx context.Context, endpointID string) ([]model.Endpoint, error)
	DeactivateEndpoint(ctx context.Context, endpointID string) error
	DeleteEndpoint(ctx context.Context, businessID, endpointID string) error
	DeleteExpiredEndpoints(ctx context.Context, now time.Time) (int64, error)

	CreateSubscription(ctx context.Context, s *model.Subscription) error
	DeleteSubscription(ctx context.Context, subscriptionID string) error
	FindSubscriptionsByTopic(ctx context.Context, businessID string) ([]model.Subscription, error)
	SetSubscriptionActive(ctx context.Context, subscriptionID string, active bool) error

	SavePresence(ctx context.Context, p *model.BusinessPresence) error
	GetPresence(ctx context.Context, businessID string) (*model.BusinessPresence, error)
	ListPresence(ctx context.Context) ([]model.BusinessPresence, error)
	CachePresence(ctx context.Context, businessID string, accepting bool) error
	GetCachedPresence(ctx context.Context, businessID string) (bool, error)

	CreatePushLog(ctx context.Context, l *model.PushLog) error
	DeleteExpiredPushLogs(ctx context.Context, now time.Time) (int64, error)

	PublishOrderEvent(ctx context.Context, evt model.OrderEvent) error
	PublishPresenceEvent(ctx context.Context, evt model.PresenceEvent) error
}

// Repository implements RepositoryInterface on gorm + redis + kafka.
type Repository struct {
	db       *gorm.DB
	rdb      *redis.Client
	orders   *kafka.Writer
	presence *kafka.Writer
	log      *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, orders, presence *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, orders: orders, presence: presence, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// RegisterEndpoint upserts by (business_id, endpoint_id). Last-writer-wins
// by the caller-supplied last_updated_at: a write older than the stored row
// leaves it untouched, so a delayed retry cannot resurrect a stale token.
func (r *Repository) RegisterEndpoint(ctx context.Context, e *model.Endpoint) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "business_id"}, {Name: "endpoint_id"}},
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("endpoint.last_updated_at <= excluded.last_updated_at"),
		}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind", "platform", "user_id", "is_active", "last_updated_at", "expires_at",
		}),
	}).Create(e).Error
}

// ListActiveEndpoints returns the active, non-expired endpoints of one
// business.
func (r *Repository) ListActiveEndpoints(ctx context.Context, businessID string) ([]model.Endpoint, error) {
	var eps []model.Endpoint
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND is_active = ? AND (expires_at IS NULL OR expires_at > ?)",
			businessID, true, time.Now()).
		Find(&eps).Error
	return eps, err
}

// ListEndpointsByToken is the reverse lookup: every business row a token is
// registered under, active or not.
func (r *Repository) ListEndpointsByToken(ctx context.Context, endpointID string) ([]model.Endpoint, error) {
	var eps []model.Endpoint
	err := r.db.WithContext(ctx).Where("endpoint_id = ?", endpointID).Find(&eps).Error
	return eps, err
}

// DeactivateEndpoint flips is_active off for every row of the endpoint.
// Idempotent; rows stay until TTL reclamation.
func (r *Repository) DeactivateEndpoint(ctx context.Context, endpointID string) error {
	return r.db.WithContext(ctx).Model(&model.Endpoint{}).
		Where("endpoint_id = ?", endpointID).
		Updates(map[string]interface{}{"is_active": false, "last_updated_at": time.Now()}).Error
}

// DeleteEndpoint removes one (business, endpoint) row outright. Used by
// explicit deregistration, not by delivery failures.
func (r *Repository) DeleteEndpoint(ctx context.Context, businessID, endpointID string) error {
	return r.db.WithContext(ctx).
		Where("business_id = ? AND endpoint_id = ?", businessID, endpointID).
		Delete(&model.Endpoint{}).Error
}

// DeleteExpiredEndpoints reclaims rows past their TTL.
func (r *Repository) DeleteExpiredEndpoints(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&model.Endpoint{})
	return res.RowsAffected, res.Error
}

// CreateSubscription inserts a subscriber's interest row.
func (r *Repository) CreateSubscription(ctx context.Context, s *model.Subscription) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// DeleteSubscription removes the row on unsubscribe/disconnect.
func (r *Repository) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	return r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Delete(&model.Subscription{}).Error
}

// FindSubscriptionsByTopic returns every subscription on a business's
// presence topic.
func (r *Repository) FindSubscriptionsByTopic(ctx context.Context, businessID string) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).Where("business_id = ?", businessID).Find(&subs).Error
	return subs, err
}

// SetSubscriptionActive updates one row's mirror flag. Idempotent.
func (r *Repository) SetSubscriptionActive(ctx context.Context, subscriptionID string, active bool) error {
	return r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now()}).Error
}

// SavePresence upserts the last observed presence of a business, keeping
// the newest toggle when writes race.
func (r *Repository) SavePresence(ctx context.Context, p *model.BusinessPresence) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "business_id"}},
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("business_presence.last_status_update <= excluded.last_status_update"),
		}},
		DoUpdates: clause.AssignmentColumns([]string{"accepting_orders", "last_status_update"}),
	}).Create(p).Error
}

// GetPresence reads one business's presence snapshot.
func (r *Repository) GetPresence(ctx context.Context, businessID string) (*model.BusinessPresence, error) {
	var p model.BusinessPresence
	err := r.db.WithContext(ctx).Where("business_id = ?", businessID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPresence returns every presence snapshot; used by the reconciliation
// pass.
func (r *Repository) ListPresence(ctx context.Context) ([]model.BusinessPresence, error) {
	var ps []model.BusinessPresence
	err := r.db.WithContext(ctx).Find(&ps).Error
	return ps, err
}

// CachePresence writes Redis.
func (r *Repository) CachePresence(ctx context.Context, businessID string, accepting bool) error {
	val := "0"
	if accepting {
		val = "1"
	}
	return r.rdb.Set(ctx, "presence:"+businessID, val, 5*time.Minute).Err()
}

// GetCachedPresence reads Redis.
func (r *Repository) GetCachedPresence(ctx context.Context, businessID string) (bool, error) {
	str, err := r.rdb.Get(ctx, "presence:"+businessID).Result()
	if err != nil {
		return false, err
	}
	return str == "1", nil
}

// CreatePushLog writes one audit row. Write-only: nothing in this service
// reads it back.
func (r *Repository) CreatePushLog(ctx context.Context, l *model.PushLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

// DeleteExpiredPushLogs reclaims audit rows past their TTL.
func (r *Repository) DeleteExpiredPushLogs(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.PushLog{})
	return res.RowsAffected, res.Error
}

// PublishOrderEvent sends to the orders topic, keyed by routing key so one
// business's events land on one partition.
func (r *Repository) PublishOrderEvent(ctx context.Context, evt model.OrderEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	key, _ := evt.ResolveBusinessID()
	return r.orders.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
}

// PublishPresenceEvent sends to the presence topic.
func (r *Repository) PublishPresenceEvent(ctx context.Context, evt model.PresenceEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.presence.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.BusinessID),
		Value: payload,
		Time:  time.Now(),
	})
}
