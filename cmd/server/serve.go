package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	"chatline/internal/contacts/handler"
	contactmetrics "chatline/internal/contacts/metrics"
	"chatline/internal/contacts/service"
	"chatline/internal/contacts/store/summarycache"
	jwttoken "chatline/internal/jwt_token"
	"chatline/internal/platform/config"
	"chatline/internal/platform/httpserver"
	"chatline/internal/platform/logger"
	"chatline/internal/platform/metrics"
	"chatline/internal/platform/redis"
	"chatline/internal/ratelimit"
	httptransport "chatline/internal/transport/http"
	"chatline/pkg/platform/audit/publisher"
	kafkasink "chatline/pkg/platform/audit/store/kafka"
	auditmemory "chatline/pkg/platform/audit/store/memory"
	"chatline/pkg/platform/circuit"
)

const auditBreakerName = "kafka-audit"

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending SQL migrations before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	httpMetrics := metrics.New()

	store, err := openBackend(ctx, cfg.Storage, log, migrate)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close storage", "error", err)
		}
	}()
	checks := map[string]httptransport.HealthCheck{"storage": store.Ping}

	var cache service.SummaryCache
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = summarycache.NewRedis(redisClient.Client, cfg.SummaryCacheTTL)
		checks["redis"] = redisClient.Health
		log.Info("summary cache backed by redis")
	} else {
		cache = summarycache.NewInMemory(cfg.SummaryCacheTTL)
	}

	auditPublisher, closeAudit, err := newAuditPublisher(ctx, cfg.Kafka, log, httpMetrics)
	if err != nil {
		return err
	}
	defer closeAudit()

	svc := service.New(store.ledger, store.identity,
		service.WithLogger(log),
		service.WithMetrics(contactmetrics.New()),
		service.WithSummaryCache(cache),
		service.WithAuditPublisher(auditPublisher),
	)

	handlerOpts := []handler.Option{handler.WithAdminToken(cfg.Auth.AdminToken)}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 0)
		handlerOpts = append(handlerOpts, handler.WithRateLimiter(
			ratelimit.New(limiter, log, ratelimit.WithRecorder(httpMetrics)),
		))
	}

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.Leeway)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metrics:        httpMetrics,
		Validator:      jwttoken.NewJWTServiceAdapter(jwt),
		Contacts:       handler.New(svc, log, handlerOpts...),
		RequestTimeout: cfg.Server.RequestTimeout,
		MetricsHandler: metrics.Handler(),
		HealthChecks:   checks,
	})

	srv := httpserver.New(cfg.Server, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting chatline", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// newAuditPublisher sends audit events to Kafka when brokers are configured
// and keeps them in memory otherwise. The returned func drains the buffer.
func newAuditPublisher(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger, m *metrics.Metrics) (*publisher.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Info("audit events kept in memory; set CHATLINE_KAFKA_BROKERS to publish them")
		p := publisher.NewPublisher(auditmemory.NewInMemoryStore(), publisher.WithLogger(log))
		return p, p.Close, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := kafkasink.EnsureTopic(topicCtx, client, cfg.AuditTopic, cfg.AuditPartitions, cfg.AuditReplication); err != nil {
		log.Warn("could not ensure audit topic; relying on broker auto-creation",
			"topic", cfg.AuditTopic,
			"error", err,
		)
	}
	breaker := circuit.New(auditBreakerName,
		circuit.WithFailureThreshold(cfg.BreakerFailures),
		circuit.WithOpenTimeout(cfg.BreakerOpenFor),
		circuit.WithLogger(log),
		circuit.WithStateChangeHook(func(_, to circuit.State) {
			m.SetBreakerOpen(auditBreakerName, to == circuit.StateOpen)
		}),
	)
	p := publisher.NewPublisher(kafkasink.New(client, cfg.AuditTopic, breaker),
		publisher.WithAsyncBuffer(cfg.AuditAsyncBuffer),
		publisher.WithLogger(log),
	)
	log.Info("publishing audit events to kafka", "topic", cfg.AuditTopic)
	return p, func() {
		p.Close()
		client.Close()
	}, nil
}
