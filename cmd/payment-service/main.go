package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/order-fulfillment/internal/config"
	"github.com/dmehra2102/order-fulfillment/internal/payment/application"
	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
	paymenthttp "github.com/dmehra2102/order-fulfillment/internal/payment/infrastructure/http"
	paymentmem "github.com/dmehra2102/order-fulfillment/internal/payment/infrastructure/memory"
	paymentpg "github.com/dmehra2102/order-fulfillment/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/health"
	"github.com/dmehra2102/order-fulfillment/pkg/httpx"
	"github.com/dmehra2102/order-fulfillment/pkg/idempotency"
	"github.com/dmehra2102/order-fulfillment/pkg/logging"
	"github.com/dmehra2102/order-fulfillment/pkg/messaging"
	"github.com/dmehra2102/order-fulfillment/pkg/outbox"
	"github.com/dmehra2102/order-fulfillment/pkg/shutdown"
	"github.com/dmehra2102/order-fulfillment/pkg/tracing"
)

const resultTTL = 7 * 24 * time.Hour

func main() {
	config.LoadDotEnv()
	cfg := config.LoadPayment()
	log := logging.New(cfg.ServiceName, cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := messaging.NewMetrics(reg)
	monitor := health.NewMonitor(cfg.ServiceName)

	writer := messaging.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()

	var (
		store   application.PaymentStore
		pub     application.EventPublisher
		results idempotency.Store
	)
	if cfg.InMemory() {
		log.Warn("using in-memory payment and idempotency stores")
		store = paymentmem.NewStore()
		pub = messaging.NewKafkaPublisher(writer)
		results = idempotency.NewMemoryStore()
	} else {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("pg connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		monitor.Add("postgres", pool.Ping)

		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		monitor.Add("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

		repo := paymentpg.NewRepository(log, pool)
		ob := outbox.NewPostgresStore(pool)
		if err := migrate(ctx, repo.Migrate, ob.Migrate); err != nil {
			log.Error("migration failed", "err", err)
			os.Exit(1)
		}
		store = repo
		pub = outbox.NewPublisher(ob)
		results = idempotency.NewRedisStore(rdb, resultTTL)

		relay := outbox.NewRelay(log, ob, writer, cfg.ServiceName+"-relay")
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
	}

	auth := domain.NewThresholdAuthorizer(cfg.LowThreshold, cfg.HighThreshold, cfg.ApprovalRate, nil)
	svc := application.NewService(log, store, pub, auth, results)

	reader := messaging.NewReader(cfg.KafkaBrokers, events.TopicOrders, cfg.GroupID)
	consumer := messaging.NewConsumer(log, reader, messaging.NewPipeline("payment-"+events.TopicOrders, log, metrics, svc.HandleEvent), cfg.Workers)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped with error", "err", err)
			cancel()
		}
	}()

	gs, err := health.Run(cfg.GRPCAddr, monitor)
	if err != nil {
		log.Error("grpc health listen failed", "addr", cfg.GRPCAddr, "err", err)
		os.Exit(1)
	}
	go monitor.Watch(ctx, 10*time.Second)

	srv := httpx.NewServer(cfg.HTTPAddr, httpx.NewRouter(paymenthttp.NewHandler(log, svc).Routes(), monitor, reg))
	go serve(log, srv, cancel)

	<-ctx.Done()
	shutdown.HTTP(log, srv, 10*time.Second)
	monitor.Shutdown()
	gs.GracefulStop()
	log.Info("payment-service shutdown complete")
}

func migrate(ctx context.Context, steps ...func(context.Context) error) error {
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func serve(log *slog.Logger, srv *http.Server, cancel context.CancelFunc) {
	log.Info("http listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server error", "err", err)
		cancel()
	}
}
