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

	"github.com/dmehra2102/order-fulfillment/internal/config"
	"github.com/dmehra2102/order-fulfillment/internal/order/application"
	orderhttp "github.com/dmehra2102/order-fulfillment/internal/order/infrastructure/http"
	ordermem "github.com/dmehra2102/order-fulfillment/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/order-fulfillment/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/health"
	"github.com/dmehra2102/order-fulfillment/pkg/httpx"
	"github.com/dmehra2102/order-fulfillment/pkg/logging"
	"github.com/dmehra2102/order-fulfillment/pkg/messaging"
	"github.com/dmehra2102/order-fulfillment/pkg/outbox"
	"github.com/dmehra2102/order-fulfillment/pkg/shutdown"
	"github.com/dmehra2102/order-fulfillment/pkg/tracing"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadOrder()
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
		store application.OrderStore
		pub   application.EventPublisher
	)
	if cfg.InMemory() {
		log.Warn("using in-memory order store")
		store = ordermem.NewStore()
		pub = messaging.NewKafkaPublisher(writer)
	} else {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("pg connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		monitor.Add("postgres", pool.Ping)

		repo := orderpg.NewRepository(log, pool)
		ob := outbox.NewPostgresStore(pool)
		if err := migrate(ctx, repo.Migrate, ob.Migrate); err != nil {
			log.Error("migration failed", "err", err)
			os.Exit(1)
		}
		// repo appends events to the outbox inside its own save transaction
		store = repo

		relay := outbox.NewRelay(log, ob, writer, cfg.ServiceName+"-relay")
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
	}

	svc := application.NewService(log, store, pub)

	for _, topic := range []string{events.TopicPayments, events.TopicInventory} {
		reader := messaging.NewReader(cfg.KafkaBrokers, topic, cfg.GroupID)
		consumer := messaging.NewConsumer(log, reader, messaging.NewPipeline("order-"+topic, log, metrics, svc.HandleEvent), cfg.Workers)
		go func(topic string) {
			if err := consumer.Run(ctx); err != nil {
				log.Error("consumer stopped with error", "topic", topic, "err", err)
				cancel()
			}
		}(topic)
	}

	gs, err := health.Run(cfg.GRPCAddr, monitor)
	if err != nil {
		log.Error("grpc health listen failed", "addr", cfg.GRPCAddr, "err", err)
		os.Exit(1)
	}
	go monitor.Watch(ctx, 10*time.Second)

	srv := httpx.NewServer(cfg.HTTPAddr, httpx.NewRouter(orderhttp.NewHandler(log, svc).Routes(), monitor, reg))
	go serve(log, srv, cancel)

	<-ctx.Done()
	shutdown.HTTP(log, srv, 10*time.Second)
	monitor.Shutdown()
	gs.GracefulStop()
	log.Info("order-service shutdown complete")
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
