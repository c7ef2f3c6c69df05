package http

import (
	"github.com/gin-gonic/gin"
	"github.com/ordercast/notify-service/internal/config"
	"github.com/ordercast/notify-service/internal/repo"
	"github.com/ordercast/notify-service/internal/service"
	"go.uber.org/zap"
)

func NewRouter(reg *service.Registry, pres *service.PresenceSynchronizer,
	repository repo.RepositoryInterface, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, reg, pres, repository)
	return r
}
