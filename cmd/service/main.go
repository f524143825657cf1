package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atelier-stock-service/config"
	"atelier-stock-service/internal/cache"
	"atelier-stock-service/internal/producer"
	"atelier-stock-service/internal/repository"
	"atelier-stock-service/internal/service"
	transport "atelier-stock-service/internal/transport/http"
	"atelier-stock-service/pkg/database"
	"atelier-stock-service/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	repos := repository.New(db)

	var redisCache *cache.RedisClient
	if cfg.Redis.Enabled {
		c, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSeconds)*time.Second, log)
		if err != nil {
			log.Warn("Redis недоступен, кэш отключён", zap.Error(err))
		} else {
			redisCache = c
			defer func() {
				if err := redisCache.Close(); err != nil {
					log.Warn("Ошибка закрытия Redis", zap.Error(err))
				}
			}()
		}
	}

	var movements *producer.MovementProducer
	if cfg.Kafka.Enabled {
		movements = producer.NewMovementProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := movements.Close(); err != nil {
				log.Warn("Ошибка закрытия Kafka-продюсера", zap.Error(err))
			}
		}()
	}

	catalogSvc := service.NewCatalogService(repos, log)
	stockSvc := service.NewStockService(repos, log, service.StockOptions{
		LockTimeoutMS: cfg.Stock.LockTimeoutMS,
		MaxRetries:    cfg.Stock.MaxRetries,
		Cache:         redisCache,
		Producer:      movements,
	})
	reportSvc := service.NewReportService(repos, log, redisCache)

	h := transport.NewHandler(catalogSvc, stockSvc, reportSvc, log)
	router := transport.NewRouter(h, log, isDev)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP-сервер запущен", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Ошибка HTTP-сервера", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Останавливаем HTTP-сервер...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Ошибка при остановке сервера", zap.Error(err))
	}
	log.Info("HTTP-сервер остановлен")
}
