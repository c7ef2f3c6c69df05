package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ordercast/notify-service/internal/model"
	"github.com/ordercast/notify-service/internal/repo"
	"github.com/ordercast/notify-service/internal/service"
)

func RegisterHandlers(r *gin.Engine, reg *service.Registry, pres *service.PresenceSynchronizer, repository repo.RepositoryInterface) {
	v1 := r.Group("/v1")
	{
		v1.POST("/devices", registerDeviceHandler(reg))
		v1.DELETE("/devices/:token", deregisterDeviceHandler(reg))
		v1.POST("/connections", attachConnectionHandler(reg))
		v1.DELETE("/connections/:id", detachConnectionHandler(reg))
		v1.POST("/subscriptions", subscribeHandler(pres))
		v1.DELETE("/subscriptions/:id", unsubscribeHandler(pres))
		v1.POST("/businesses/:id/presence", presenceToggleHandler(repository))
		v1.GET("/businesses/:id/presence", presenceHandler(pres))
		v1.POST("/orders/events", orderEventHandler(repository))
	}
}

type deviceReq struct {
	DeviceToken string `json:"device_token" binding:"required"`
	BusinessID  string `json:"business_id" binding:"required"`
	Platform    string `json:"platform"`
	UserID      string `json:"user_id"`
}

func registerDeviceHandler(reg *service.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req deviceReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ep, err := reg.RegisterDevice(c, service.DeviceRegistration{
			DeviceToken: req.DeviceToken,
			BusinessID:  req.BusinessID,
			Platform:    model.Platform(req.Platform),
			UserID:      req.UserID,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"endpoint_id": ep.EndpointID, "platform": ep.Platform})
	}
}

func deregisterDeviceHandler(reg *service.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := reg.DeregisterDevice(c, c.Param("token")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

type connectionReq struct {
	BusinessID   string `json:"business_id" binding:"required"`
	ConnectionID string `json:"connection_id" binding:"required"`
}

func attachConnectionHandler(reg *service.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req connectionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ep, err := reg.AttachConnection(c, req.BusinessID, req.ConnectionID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"endpoint_id": ep.EndpointID})
	}
}

func detachConnectionHandler(reg *service.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		businessID := c.Query("business_id")
		if businessID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id required"})
			return
		}
		if err := reg.DetachConnection(c, businessID, c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

type subscribeReq struct {
	BusinessID   string `json:"business_id" binding:"required"`
	SubscriberID string `json:"subscriber_id" binding:"required"`
	ConnectionID string `json:"connection_id"`
}

func subscribeHandler(pres *service.PresenceSynchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req subscribeReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sub, err := pres.Subscribe(c, req.BusinessID, req.SubscriberID, req.ConnectionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"subscription_id": sub.SubscriptionID, "is_active": sub.IsActive})
	}
}

func unsubscribeHandler(pres *service.PresenceSynchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := pres.Unsubscribe(c, c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

type presenceToggleReq struct {
	Status string `json:"status" binding:"required"`
}

func presenceToggleHandler(repository repo.RepositoryInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req presenceToggleReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status := model.PresenceStatus(req.Status)
		if status != model.StatusOnline && status != model.StatusOffline {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be online or offline"})
			return
		}
		evt := model.PresenceEvent{
			BusinessID: c.Param("id"),
			Status:     status,
			ToggledAt:  time.Now(),
		}
		if err := repository.PublishPresenceEvent(c, evt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"business_id": evt.BusinessID, "status": req.Status})
	}
}

func presenceHandler(pres *service.PresenceSynchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		accepting, err := pres.Presence(c, c.Param("id"))
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown business"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"accepting_orders": accepting})
	}
}

func orderEventHandler(repository repo.RepositoryInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var evt model.OrderEvent
		if err := c.ShouldBindJSON(&evt); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := repository.PublishOrderEvent(c, evt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"order_id": evt.OrderID})
	}
}
