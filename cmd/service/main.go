package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Stalker400n/psi1-sub000/internal/config"
	"github.com/Stalker400n/psi1-sub000/internal/playback"
	"github.com/Stalker400n/psi1-sub000/internal/realtime"
	"github.com/Stalker400n/psi1-sub000/internal/store"
	"github.com/Stalker400n/psi1-sub000/internal/teams"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("queue-service: %v", err)
	}
	sc := cfg.Service

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres when configured, process memory otherwise.
	var st store.Store
	if sc.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, sc.DatabaseURL)
		if err != nil {
			log.Fatalf("queue-service: pg: %v", err)
		}
		defer pool.Close()
		if err := store.AutoMigrate(ctx, pool); err != nil {
			log.Fatalf("queue-service: migrate: %v", err)
		}
		st = store.NewPostgresStore(pool)
	} else {
		log.Printf("queue-service: DATABASE_URL not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	var rdb *redis.Client
	if sc.RedisURL != "" {
		opt, err := redis.ParseURL(sc.RedisURL)
		if err != nil {
			log.Fatalf("queue-service: invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	hub := realtime.NewHub()
	fanout := realtime.NewFanout(hub, rdb)
	queue := playback.NewQueueEngine(st, playback.NewTeamLocks())
	coord := playback.NewCoordinator(st, queue, fanout)

	// Another instance may have moved the pointer or edited the songs.
	fanout.OnMessage(queue.Invalidate)
	go fanout.RunRedisSubscriber(ctx)
	if sc.AutoAdvance {
		coord.StartTicker(ctx, sc.TickInterval)
	}

	ws := realtime.NewServer(ctx, coord, sc.FrontendBaseURL)
	srv := teams.NewServer(st, queue, coord).WithWebsocket(ws.HandleWS)
	if sc.JWTSecret != "" {
		srv.WithJWT([]byte(sc.JWTSecret))
	}

	r := srv.Router(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	httpSrv := &http.Server{Addr: ":" + sc.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("queue-service listening on :%s", sc.Port)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("queue-service: %v", err)
	}
}
