package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SoberingRealityCheck/hexapod-server/config"
	"github.com/SoberingRealityCheck/hexapod-server/engine"
	"github.com/SoberingRealityCheck/hexapod-server/live"
	"github.com/SoberingRealityCheck/hexapod-server/statecache"
	"github.com/SoberingRealityCheck/hexapod-server/store"
	"github.com/SoberingRealityCheck/hexapod-server/tui"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "hexapod.yaml", "path to config file")
	logPath := flag.String("log", "", "write logs to this file (default: discard)")
	noHistory := flag.Bool("no-history", false, "do not open the database")
	flag.Parse()

	if *showVersion {
		fmt.Println("hexapod-tui", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// The terminal belongs to the dashboard; logs go to a file or nowhere.
	log.SetOutput(io.Discard)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	var db *store.DB
	if !*noHistory {
		db, err = store.Open(&cfg.Database)
		if err != nil {
			log.Printf("hexapod-tui: database unavailable (%v), running without history", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	var cache *statecache.RedisStore
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("hexapod-tui: redis not available (%v)", err)
			client.Close()
		} else {
			cache = statecache.NewRedisStore(client)
			defer cache.Close()
		}
		cancel()
	}

	var msgClient *live.Client
	switch cfg.Live.Backend {
	case live.BackendMQTT, live.BackendKafka:
		msgClient = live.NewClient(cfg.Live)
		if err := msgClient.Connect(); err != nil {
			log.Printf("hexapod-tui: messaging connect failed (%v)", err)
		}
		defer msgClient.Close()
	}

	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Cache:      cache,
		MsgClient:  msgClient,
	})
	eng.Start()
	defer eng.Stop()

	if err := tui.Run(tui.Options{Source: eng}); err != nil {
		log.Printf("hexapod-tui: %v", err)
		fmt.Fprintf(os.Stderr, "hexapod-tui: %v\n", err)
	}
}
