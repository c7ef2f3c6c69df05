package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ordercast/notify-service/internal/config"
	"github.com/ordercast/notify-service/internal/logger"
	"github.com/ordercast/notify-service/internal/model"
	"github.com/ordercast/notify-service/internal/push"
	"github.com/ordercast/notify-service/internal/repo"
	"github.com/ordercast/notify-service/internal/service"
	httptransport "github.com/ordercast/notify-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.Endpoint{}, &model.Subscription{}, &model.PushLog{}, &model.BusinessPresence{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writers
	ordersW := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.OrdersTopic,
		Balancer: &kafka.LeastBytes{},
	}
	presenceW := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.PresenceTopic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. repo & services
	repository := repo.NewRepository(gdb, rdb, ordersW, presenceW, log)
	sender := push.NewClient(cfg.Push.BaseURL, cfg.Push.APIKey,
		time.Duration(cfg.Push.TimeoutSeconds)*time.Second, log)
	tokenTTL := time.Duration(cfg.Sweep.TokenTTLDays) * 24 * time.Hour
	registry := service.NewRegistry(repository, sender, tokenTTL, log)
	presence := service.NewPresenceSynchronizer(repository, log)

	// 7. gin router
	router := httptransport.NewRouter(registry, presence, repository, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("notify-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
