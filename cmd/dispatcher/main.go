package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ordercast/notify-service/internal/config"
	"github.com/ordercast/notify-service/internal/events"
	"github.com/ordercast/notify-service/internal/logger"
	"github.com/ordercast/notify-service/internal/model"
	"github.com/ordercast/notify-service/internal/push"
	"github.com/ordercast/notify-service/internal/repo"
	"github.com/ordercast/notify-service/internal/service"
	"github.com/ordercast/notify-service/internal/transport/live"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.Endpoint{}, &model.Subscription{}, &model.PushLog{}, &model.BusinessPresence{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	ordersR := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OrdersTopic,
		GroupID: cfg.Kafka.Group,
	})
	defer ordersR.Close()
	presenceR := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.PresenceTopic,
		GroupID: cfg.Kafka.Group,
	})
	defer presenceR.Close()

	repository := repo.NewRepository(gdb, rdb, nil, nil, log)
	sender := push.NewClient(cfg.Push.BaseURL, cfg.Push.APIKey,
		time.Duration(cfg.Push.TimeoutSeconds)*time.Second, log)
	transport := live.NewRedisTransport(rdb)
	lifecycle := service.NewLifecycleManager(repository, log)
	logTTL := time.Duration(cfg.Sweep.LogTTLDays) * 24 * time.Hour
	dispatcher := service.NewFanoutDispatcher(repository, transport, sender, lifecycle, logTTL, log)
	presence := service.NewPresenceSynchronizer(repository, log)
	consumer := events.NewConsumer(ordersR, presenceR, dispatcher, presence, log)

	ctx := context.Background()
	go func() {
		if err := consumer.RunOrders(ctx); err != nil {
			log.Fatalf("order consumer: %v", err)
		}
	}()
	go func() {
		if err := consumer.RunPresence(ctx); err != nil {
			log.Fatalf("presence consumer: %v", err)
		}
	}()

	sweep := time.NewTicker(time.Duration(cfg.Sweep.IntervalSeconds) * time.Second)
	defer sweep.Stop()
	reconcile := time.NewTicker(time.Duration(cfg.Sweep.ReconcileIntervalSeconds) * time.Second)
	defer reconcile.Stop()

	log.Info("notify-dispatcher started")
	for {
		select {
		case <-sweep.C:
			lifecycle.SweepExpired(ctx)
		case <-reconcile.C:
			if _, err := presence.Reconcile(ctx); err != nil {
				log.Errorf("reconcile: %v", err)
			}
		}
	}
}
