package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ordercast/notify-service/internal/logger"
	"github.com/ordercast/notify-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestInferPlatform(t *testing.T) {
	// 64-char hex is the APNs token shape
	apns := strings.Repeat("ab12", 16)
	assert.Equal(t, model.PlatformIOS, InferPlatform(apns))

	// colon means FCM
	assert.Equal(t, model.PlatformAndroid, InferPlatform("dGhpcyBpcyBub3QgcmVhbA:APA91bE_x"))

	// ambiguous tokens are stored as unknown, not rejected
	assert.Equal(t, model.PlatformUnknown, InferPlatform("short-opaque-token"))
	assert.Equal(t, model.PlatformUnknown, InferPlatform(strings.Repeat("zz", 32)))
}

func newTestRegistry(t *testing.T) (*Registry, context.Context, func() ([]model.Endpoint, error)) {
	r, ctx := newTestRepo(t)
	sender := newFakeSender()
	log, _ := logger.NewLogger()
	reg := NewRegistry(r, sender, 90*24*time.Hour, log)
	list := func() ([]model.Endpoint, error) { return r.ListActiveEndpoints(ctx, "B1") }
	return reg, ctx, list
}

func TestRegisterDevice_InfersAndStores(t *testing.T) {
	reg, ctx, list := newTestRegistry(t)

	ep, err := reg.RegisterDevice(ctx, DeviceRegistration{
		DeviceToken: "abc:123", BusinessID: "B1", UserID: "U1",
	})
	assert.NoError(t, err)
	assert.Equal(t, model.PlatformAndroid, ep.Platform)
	assert.Equal(t, model.KindToken, ep.Kind)
	assert.NotNil(t, ep.ExpiresAt)

	eps, err := list()
	assert.NoError(t, err)
	assert.Len(t, eps, 1)

	// explicit platform wins over inference
	ep2, err := reg.RegisterDevice(ctx, DeviceRegistration{
		DeviceToken: "abc:456", BusinessID: "B1", Platform: model.PlatformIOS,
	})
	assert.NoError(t, err)
	assert.Equal(t, model.PlatformIOS, ep2.Platform)
}

func TestRegisterDevice_Validation(t *testing.T) {
	reg, ctx, _ := newTestRegistry(t)

	_, err := reg.RegisterDevice(ctx, DeviceRegistration{DeviceToken: "tok"})
	assert.ErrorIs(t, err, ErrMissingBusiness)

	_, err = reg.RegisterDevice(ctx, DeviceRegistration{BusinessID: "B1"})
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestDeregisterDevice_RemovesEverywhere(t *testing.T) {
	r, ctx := newTestRepo(t)
	sender := newFakeSender()
	log, _ := logger.NewLogger()
	reg := NewRegistry(r, sender, 90*24*time.Hour, log)

	for _, biz := range []string{"B1", "B2"} {
		_, err := reg.RegisterDevice(ctx, DeviceRegistration{DeviceToken: "tok:1", BusinessID: biz})
		assert.NoError(t, err)
	}

	assert.NoError(t, reg.DeregisterDevice(ctx, "tok:1"))
	eps, err := r.ListEndpointsByToken(ctx, "tok:1")
	assert.NoError(t, err)
	assert.Empty(t, eps)
}

func TestAttachDetachConnection(t *testing.T) {
	r, ctx := newTestRepo(t)
	sender := newFakeSender()
	log, _ := logger.NewLogger()
	reg := NewRegistry(r, sender, 90*24*time.Hour, log)

	ep, err := reg.AttachConnection(ctx, "B1", "conn-1")
	assert.NoError(t, err)
	assert.Equal(t, model.KindLive, ep.Kind)
	assert.Nil(t, ep.ExpiresAt)

	eps, _ := r.ListActiveEndpoints(ctx, "B1")
	assert.Len(t, eps, 1)

	assert.NoError(t, reg.DetachConnection(ctx, "B1", "conn-1"))
	eps, _ = r.ListActiveEndpoints(ctx, "B1")
	assert.Empty(t, eps)
}
