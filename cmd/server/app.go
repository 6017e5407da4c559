package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"registrar/internal/event/dedup"
	"registrar/internal/event/eventconfig"
	"registrar/internal/event/handler"
	"registrar/internal/event/index"
	eventmetrics "registrar/internal/event/metrics"
	"registrar/internal/event/service"
	"registrar/internal/event/store/idempotency"
	"registrar/internal/event/store/ledger"
	"registrar/internal/event/trigger"
	jwttoken "registrar/internal/jwt_token"
	"registrar/internal/platform/config"
	"registrar/internal/platform/kafka"
	httpmetrics "registrar/internal/platform/metrics"
	"registrar/internal/platform/postgres"
	"registrar/internal/platform/redis"
	"registrar/pkg/platform/circuit"
)

type app struct {
	router http.Handler
	db     *sql.DB
	redis  *redis.Client
	kafka  *kgo.Client
}

// buildApp selects a backend per concern: empty URLs fall back to in-memory
// implementations so the service runs standalone in development.
func buildApp(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	configs := eventconfig.Default()
	if cfg.EventConfigPath != "" {
		loaded, err := eventconfig.Load(cfg.EventConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load event config: %w", err)
		}
		configs = loaded
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	eventMetrics := eventmetrics.New(reg)
	httpMetrics := httpmetrics.New(reg)

	var err error
	var eventLedger service.Ledger = ledger.NewInMemoryStore()
	if a.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if a.db != nil {
		store := ledger.NewPostgres(a.db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		eventLedger = store
		log.Info("ledger backed by postgres", "driver", cfg.Database.Driver)
	}

	var idem service.IdempotencyStore = idempotency.NewInMemoryStore(cfg.Idempotency.TTL)
	if a.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if a.redis != nil {
		idem = idempotency.NewRedis(a.redis.Client, cfg.Idempotency.TTL)
		log.Info("idempotency keys backed by redis")
	}

	readModel := index.NewMemoryIndex()
	sinks := []index.Sink{{Name: "memory", Indexer: readModel}}
	if a.kafka, err = kafka.New(ctx, cfg.Kafka); err != nil {
		return nil, err
	}
	if a.kafka != nil {
		publisher := index.NewKafkaPublisher(a.kafka, cfg.Kafka.IndexTopic)
		if err := publisher.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replicas); err != nil {
			return nil, err
		}
		sinks = append(sinks, index.Sink{Name: "kafka", Indexer: publisher})
		log.Info("publishing event state to kafka", "topic", cfg.Kafka.IndexTopic)
	}
	fanout := index.NewFanout(sinks, index.WithLogger(log), index.WithMetrics(eventMetrics))

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(eventMetrics),
		service.WithIndexer(fanout),
		service.WithSearcher(readModel),
		service.WithIdempotency(idem),
		service.WithDuplicateDetection(dedup.NewDetector(readModel), readModel),
	}
	if cfg.Trigger.BaseURL != "" {
		breaker := circuit.New("country-config",
			circuit.WithFailureThreshold(cfg.Trigger.FailureThreshold),
			circuit.WithCooldown(cfg.Trigger.BreakerCooldown),
		)
		opts = append(opts, service.WithTrigger(trigger.New(cfg.Trigger.BaseURL,
			trigger.WithTimeout(cfg.Trigger.Timeout),
			trigger.WithBreaker(breaker),
			trigger.WithLogger(log),
		)))
	} else {
		log.Warn("COUNTRY_CONFIG_URL not set; confirmable actions will be refused")
	}
	svc := service.New(eventLedger, configs, opts...)

	n, err := svc.Reindex(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild read model: %w", err)
	}
	log.Info("read model rebuilt", "events", n)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	eventHandler := handler.New(svc, log, httpMetrics, jwttoken.NewJWTServiceAdapter(jwtService))

	r := chi.NewRouter()
	r.Get("/healthz", a.health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	eventHandler.Register(r)
	a.router = r

	ok = true
	return a, nil
}

func (a *app) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *app) Close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
