package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/ordercast/notify-service/internal/model"
	"github.com/ordercast/notify-service/internal/push"
	"github.com/ordercast/notify-service/internal/repo"
	"go.uber.org/zap"
)

// ErrMissingBusiness means a registration arrived without an owner.
var ErrMissingBusiness = errors.New("business id required")

// ErrMissingToken means a device registration arrived without a token.
var ErrMissingToken = errors.New("device token required")

// apnsToken matches the fixed-length hex shape of an APNs device token.
var apnsToken = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// InferPlatform guesses the platform family from the token shape when the
// client did not say. FCM tokens carry a colon; APNs tokens are 64 hex
// chars. Anything else is stored as unknown rather than rejected.
func InferPlatform(token string) model.Platform {
	switch {
	case strings.Contains(token, ":"):
		return model.PlatformAndroid
	case apnsToken.MatchString(token):
		return model.PlatformIOS
	default:
		return model.PlatformUnknown
	}
}

// Registry handles endpoint registration and deregistration for both
// device tokens and live connections.
type Registry struct {
	repo     repo.RepositoryInterface
	sender   push.Sender
	tokenTTL time.Duration
	log      *zap.SugaredLogger
}

// NewRegistry returns Registry.
func NewRegistry(r repo.RepositoryInterface, s push.Sender, tokenTTL time.Duration, logger *zap.SugaredLogger) *Registry {
	return &Registry{repo: r, sender: s, tokenTTL: tokenTTL, log: logger}
}

// DeviceRegistration is the registration entrypoint payload.
type DeviceRegistration struct {
	DeviceToken string
	BusinessID  string
	Platform    model.Platform
	UserID      string
}

// RegisterDevice upserts a device-token endpoint. Every successful write
// refreshes the TTL window; a write carrying an older timestamp than the
// stored row is silently ignored (last-writer-wins).
func (r *Registry) RegisterDevice(ctx context.Context, reg DeviceRegistration) (*model.Endpoint, error) {
	if reg.BusinessID == "" {
		return nil, ErrMissingBusiness
	}
	if reg.DeviceToken == "" {
		return nil, ErrMissingToken
	}
	platform := reg.Platform
	if platform == "" {
		platform = InferPlatform(reg.DeviceToken)
	}

	// gateway handle pre-creation is idempotent; a transient gateway
	// failure does not block the registration itself
	if _, err := r.sender.EnsureRegistration(ctx, reg.DeviceToken, platform); err != nil {
		r.log.Warnf("ensure gateway registration for %s: %v", reg.DeviceToken, err)
	}

	now := time.Now()
	expires := now.Add(r.tokenTTL)
	ep := &model.Endpoint{
		BusinessID:    reg.BusinessID,
		EndpointID:    reg.DeviceToken,
		Kind:          model.KindToken,
		Platform:      platform,
		UserID:        reg.UserID,
		IsActive:      true,
		RegisteredAt:  now,
		LastUpdatedAt: now,
		ExpiresAt:     &expires,
	}
	if err := r.repo.RegisterEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// DeregisterDevice removes a token everywhere it is registered, via the
// reverse lookup.
func (r *Registry) DeregisterDevice(ctx context.Context, token string) error {
	eps, err := r.repo.ListEndpointsByToken(ctx, token)
	if err != nil {
		return err
	}
	for _, ep := range eps {
		if err := r.repo.DeleteEndpoint(ctx, ep.BusinessID, ep.EndpointID); err != nil {
			return err
		}
	}
	return nil
}

// AttachConnection registers a live connection for a business. No TTL:
// the transport's own disconnect signal retires it.
func (r *Registry) AttachConnection(ctx context.Context, businessID, connectionID string) (*model.Endpoint, error) {
	if businessID == "" {
		return nil, ErrMissingBusiness
	}
	now := time.Now()
	ep := &model.Endpoint{
		BusinessID:    businessID,
		EndpointID:    connectionID,
		Kind:          model.KindLive,
		Platform:      model.PlatformUnknown,
		IsActive:      true,
		RegisteredAt:  now,
		LastUpdatedAt: now,
	}
	if err := r.repo.RegisterEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// DetachConnection removes a live connection on disconnect.
func (r *Registry) DetachConnection(ctx context.Context, businessID, connectionID string) error {
	return r.repo.DeleteEndpoint(ctx, businessID, connectionID)
}
