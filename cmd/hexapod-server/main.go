package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SoberingRealityCheck/hexapod-server/config"
	"github.com/SoberingRealityCheck/hexapod-server/engine"
	"github.com/SoberingRealityCheck/hexapod-server/live"
	"github.com/SoberingRealityCheck/hexapod-server/statecache"
	"github.com/SoberingRealityCheck/hexapod-server/store"
	"github.com/SoberingRealityCheck/hexapod-server/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "hexapod.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("hexapod-server", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("hexapod: database open (%s)", cfg.Database.Driver)

	// Redis
	var cache *statecache.RedisStore
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("hexapod: redis not available (%v), running without cache", err)
		redisClient.Close()
	} else {
		log.Printf("hexapod: redis connected (%s)", cfg.Redis.Address)
		cache = statecache.NewRedisStore(redisClient)
		defer cache.Close()
	}
	cancel()

	// Messaging client for broker-backed live updates
	var msgClient *live.Client
	switch cfg.Live.Backend {
	case live.BackendMQTT, live.BackendKafka:
		msgClient = live.NewClient(cfg.Live)
		if err := msgClient.Connect(); err != nil {
			log.Printf("hexapod: messaging connect failed (%v)", err)
		} else {
			log.Printf("hexapod: messaging connected (%s)", cfg.Live.Backend)
		}
		defer msgClient.Close()
	}

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Cache:      cache,
		MsgClient:  msgClient,
	})

	// Web server. The router subscribes to engine events, so it is built
	// before the engine starts.
	handler, stopWeb := www.NewRouter(eng)
	eng.Start()
	defer eng.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("hexapod: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("hexapod: ready (robot %s)", cfg.Robot.Name)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("hexapod: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("hexapod: stopped")
}
