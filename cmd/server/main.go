package main

import (
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cortexhq/cortex-server/internal/config"
	"github.com/cortexhq/cortex-server/internal/db"
	"github.com/cortexhq/cortex-server/internal/httpapi"
	"github.com/cortexhq/cortex-server/internal/store/rabbitmq"
	"github.com/cortexhq/cortex-server/internal/store/redisstore"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("startup: %v", err)
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		logger.Fatalw("migrate", "err", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, time.Duration(cfg.ProfileCacheTTL)*time.Second)
	defer rds.Close()

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Fatalw("rabbit connect", "err", err)
	}
	defer rabbit.Close()

	r := httpapi.NewRouter(gdb, cfg, rds, rabbit, logger)

	logger.Infow("server started", "addr", cfg.HTTPAddr, "provider", cfg.AIProvider)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		logger.Fatalw("server stopped", "err", err)
	}
}
