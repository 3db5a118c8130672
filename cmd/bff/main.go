package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/order-fulfillment/internal/bff/application"
	"github.com/dmehra2102/order-fulfillment/internal/bff/cache"
	"github.com/dmehra2102/order-fulfillment/internal/bff/infrastructure/client"
	bffhttp "github.com/dmehra2102/order-fulfillment/internal/bff/infrastructure/http"
	"github.com/dmehra2102/order-fulfillment/internal/config"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/health"
	"github.com/dmehra2102/order-fulfillment/pkg/httpx"
	"github.com/dmehra2102/order-fulfillment/pkg/logging"
	"github.com/dmehra2102/order-fulfillment/pkg/messaging"
	"github.com/dmehra2102/order-fulfillment/pkg/resilience"
	"github.com/dmehra2102/order-fulfillment/pkg/shutdown"
	"github.com/dmehra2102/order-fulfillment/pkg/tracing"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadBFF()
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

	l1 := cache.NewLocal(cfg.L1Capacity, cfg.L1TTL)
	defer l1.Close()
	var views cache.Cache = l1
	if !cfg.InMemory() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		monitor.Add("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		views = cache.NewTiered(l1, cache.NewRedis(log, rdb))
	} else {
		log.Warn("running with the local cache tier only")
	}

	policy := func(name string) *resilience.Executor {
		p := cfg.Resilience
		p.Name = name
		return resilience.New(log, p)
	}
	hc := &http.Client{Timeout: cfg.Resilience.Timeout}
	svc := application.NewService(log, application.Dependencies{
		Orders:          client.NewOrders(cfg.OrderURL, hc),
		Payments:        client.NewPayments(cfg.PaymentURL, hc),
		Inventory:       client.NewInventory(cfg.InventoryURL, hc),
		OrderPolicy:     policy("order-service"),
		PaymentPolicy:   policy("payment-service"),
		InventoryPolicy: policy("inventory-service"),
	}, views, cfg.L2TTL)

	invalidator := application.NewInvalidator(log, views)
	for _, topic := range []string{events.TopicOrders, events.TopicPayments, events.TopicInventory} {
		reader := messaging.NewReader(cfg.KafkaBrokers, topic, cfg.GroupID)
		consumer := messaging.NewConsumer(log, reader, messaging.NewPipeline("bff-cache-"+topic, log, metrics, invalidator.HandleEvent), cfg.Workers)
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

	srv := httpx.NewServer(cfg.HTTPAddr, httpx.NewRouter(bffhttp.NewHandler(log, svc, cfg.RequestBudget).Routes(), monitor, reg))
	go func() {
		log.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdown.HTTP(log, srv, 10*time.Second)
	monitor.Shutdown()
	gs.GracefulStop()
	log.Info("bff shutdown complete")
}
