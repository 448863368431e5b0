package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dcms/clinic-service/internal/clock"
	"dcms/clinic-service/internal/config"
	"dcms/clinic-service/internal/httpapi"
	"dcms/clinic-service/internal/hub"
	"dcms/clinic-service/internal/queue"
	"dcms/clinic-service/internal/store/postgres"
	"dcms/clinic-service/internal/telemetry"
	"dcms/clinic-service/internal/worker"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv load: %v", err)
	}
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("clinic-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	clk := clock.Clock{}
	st := postgres.NewStore(pool, postgres.Options{
		MinutesPerPatient: cfg.MinutesPerPatient,
	})
	admitter := queue.NewAdmitter(st, clk)
	handler := httpapi.NewHandler(admitter, st, st, clk)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		BranchPerMinute: cfg.BranchRateLimitPerMinute,
		BranchBurst:     cfg.BranchRateLimitBurst,
	})

	h := hub.New()
	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.Handle("/realtime/", newRealtimeHandler(h))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "clinic-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := worker.NewDispatcher(st, h, worker.DispatcherConfig{
		Interval:  cfg.OutboxPollInterval,
		BatchSize: cfg.OutboxBatchSize,
	})
	go dispatcher.Run(ctx)

	if cfg.DedupeSweepEnabled && cfg.DedupeSweepInterval > 0 {
		sweeper := worker.NewSweeper(admitter, cfg.DedupeSweepInterval)
		go sweeper.Run(ctx)
	}

	go func() {
		log.Printf("clinic-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func newRealtimeHandler(h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{BranchID: parsed.BranchID})
		}
	})
}
