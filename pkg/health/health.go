// Package health reports dependency liveness over gRPC health checking and HTTP.
package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Check func(ctx context.Context) error

type Monitor struct {
	service string
	grpc    *grpchealth.Server

	mu     sync.RWMutex
	checks map[string]Check
}

func NewMonitor(service string) *Monitor {
	m := &Monitor{service: service, grpc: grpchealth.NewServer(), checks: map[string]Check{}}
	m.grpc.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	m.grpc.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return m
}

func (m *Monitor) Add(name string, c Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = c
}

// Evaluate runs every check and publishes the aggregate status to gRPC watchers.
func (m *Monitor) Evaluate(ctx context.Context) map[string]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	checks := make(map[string]Check, len(m.checks))
	for n, c := range m.checks {
		names = append(names, n)
		checks[n] = c
	}
	m.mu.RUnlock()
	sort.Strings(names)

	out := make(map[string]string, len(names))
	status := healthpb.HealthCheckResponse_SERVING
	for _, n := range names {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := checks[n](cctx)
		cancel()
		if err != nil {
			out[n] = err.Error()
			status = healthpb.HealthCheckResponse_NOT_SERVING
			continue
		}
		out[n] = "ok"
	}
	m.grpc.SetServingStatus(m.service, status)
	m.grpc.SetServingStatus("", status)
	return out
}

// Watch re-evaluates on every tick until ctx is done.
func (m *Monitor) Watch(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Evaluate(ctx)
		}
	}
}

func (m *Monitor) Shutdown() { m.grpc.Shutdown() }

func (m *Monitor) Register(s *grpc.Server) { healthpb.RegisterHealthServer(s, m.grpc) }

func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := m.Evaluate(r.Context())
	code := http.StatusOK
	for _, v := range res {
		if v != "ok" {
			code = http.StatusServiceUnavailable
			break
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"service": m.service, "checks": res})
}

// Run serves gRPC health on addr in the background.
func Run(addr string, m *Monitor) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	m.Register(gs)
	go func() {
		_ = gs.Serve(lis)
	}()
	return gs, nil
}
