package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/fitbet/src/config"
	"github.com/stake-plus/fitbet/src/data"
	"github.com/stake-plus/fitbet/src/modules"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("env: %v", err)
	}

	boot, err := config.LoadBase(nil)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Use a single DB connection for all modules
	db, err := data.ConnectMySQL(boot.MySQLDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := data.Migrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// Reload with the settings table in place.
	base, err := config.LoadBase(db)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rdb *redis.Client
	if base.RedisURL != "" {
		rdb, err = data.ConnectRedis(ctx, base.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
	} else {
		log.Printf("redis: REDIS_URL not set, running without events or tick lease")
	}

	manager, err := modules.StartAll(ctx, db, rdb, base)
	if err != nil {
		log.Fatalf("modules start: %v", err)
	}

	// Wait for termination
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	manager.Stop(ctx)
}
