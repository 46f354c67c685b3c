// cmd/followup-scheduler/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"followup-orchestrator/internal/common/aws"
	"followup-orchestrator/internal/common/config"
	"followup-orchestrator/internal/common/database"
	"followup-orchestrator/internal/common/genai"
	"followup-orchestrator/internal/common/logger"
	"followup-orchestrator/internal/common/observability"
	"followup-orchestrator/internal/common/whatsapp"
	"followup-orchestrator/internal/followup/analytics"
	decisionengine "followup-orchestrator/internal/followup/decision-engine"
	quotamanager "followup-orchestrator/internal/followup/quota-manager"
	"followup-orchestrator/internal/followup/scheduler"
	strategyselector "followup-orchestrator/internal/followup/strategy-selector"
	"followup-orchestrator/internal/store"
	"followup-orchestrator/pkg/registry"
)

// app holds every wired component for one process.
type app struct {
	cfg   *config.Config
	zap   *zap.Logger
	level zap.AtomicLevel
	log   logger.Logger
	obs   *observability.Observability

	pg    *database.PostgresClient
	redis *database.RedisClient
	es    *database.ElasticsearchClient

	store     *store.PostgresStore
	quota     *quotamanager.Manager
	scheduler *scheduler.Scheduler
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s aborted: %w", operationName, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	zapLog, level := logger.NewWithLevel(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	a := &app{
		cfg:   cfg,
		zap:   zapLog,
		level: level,
		log:   log,
		obs:   observability.New(ctx, "followup-scheduler", cfg.Tracing, log),
	}

	// --- PostgreSQL ---
	err := retryWithBackoff(ctx, func() error {
		var err error
		a.pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := a.pg.Ping(ctx); err != nil {
			_ = a.pg.Close()
			return err
		}
		return nil
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		a.close()
		return nil, err
	}
	log.Info("PostgreSQL connected successfully", nil)
	a.store = store.NewPostgresStore(a.pg.DB)

	// --- Redis: reservation counter and job locks ---
	var counter quotamanager.SlotCounter = quotamanager.NewMemorySlotCounter()
	if cfg.Database.Redis.Enabled {
		err := retryWithBackoff(ctx, func() error {
			var err error
			a.redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return a.redis.Ping(ctx)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			a.close()
			return nil, err
		}
		counter = quotamanager.NewRedisSlotCounter(a.redis.Client)
		log.Info("Redis connected successfully", nil)
	} else {
		log.Warn("redis disabled, quota reservations are process-local", nil)
	}

	// --- Elasticsearch: analytics sink ---
	var sink scheduler.AnalyticsSink
	if cfg.Database.Elasticsearch.Enabled {
		err := retryWithBackoff(ctx, func() error {
			var err error
			a.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return a.es.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			// analytics are best effort; the database copy is authoritative
			log.Warn("elasticsearch unavailable, analytics indexing disabled", map[string]interface{}{"error": err})
			a.es = nil
		} else {
			sink = analytics.NewElasticsearchSink(a.es, log)
			log.Info("Elasticsearch connected successfully", nil)
		}
	}

	// --- External services ---
	wa := whatsapp.NewClient(cfg.WhatsApp)

	var sms scheduler.Transport
	if cfg.Notifications.SMS.Enabled {
		t, err := aws.NewSNSTransport(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.SMS.SenderID)
		if err != nil {
			log.Warn("sms fallback unavailable", map[string]interface{}{"error": err})
		} else {
			sms = t
		}
	}

	var alerter scheduler.Alerter
	if cfg.Notifications.Email.Enabled {
		ses, err := aws.NewSESAlerter(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.Email.FromEmail, cfg.Notifications.Email.Recipients)
		if err != nil {
			log.Warn("email alerts unavailable", map[string]interface{}{"error": err})
		} else {
			alerter = ses
		}
	}

	generator, err := genai.New(ctx, cfg.AI)
	if err != nil {
		log.Warn("ai generator unavailable, ai templates disabled", map[string]interface{}{"provider": cfg.AI.Provider, "error": err})
		generator = nil
	}

	catalog, err := registry.LoadCatalog(cfg.Strategy.CatalogPath)
	if err != nil {
		log.Warn("template catalog not loaded, using built-in catalog", map[string]interface{}{"path": cfg.Strategy.CatalogPath, "error": err})
		catalog = registry.DefaultCatalog()
	}

	// --- Follow-up core ---
	a.quota = quotamanager.NewManager(quotamanager.ConfigFrom(cfg.Quota), a.store, wa, counter, log)

	selector := strategyselector.NewSelector(strategyselector.ConfigFrom(cfg.Strategy), strategyselector.Deps{
		Quota:     a.quota,
		Generator: generator,
		Registry:  wa,
		Store:     a.store,
		Insights:  strategyselector.HeuristicInsights{},
		Catalog:   catalog,
	}, log)

	deps := scheduler.Deps{
		Store:         a.store,
		Decider:       decisionengine.NewEngine(decisionengine.ConfigFrom(cfg.Decision), log),
		Strategist:    selector,
		Transport:     scheduler.NewFallbackTransport(log, wa, sms),
		Alerter:       alerter,
		Analytics:     sink,
		Quota:         a.quota,
		Observability: a.obs,
	}
	if a.redis != nil {
		deps.Locker = a.redis
	}

	a.scheduler, err = scheduler.New(scheduler.ConfigFrom(cfg.Scheduler), deps, log)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// readiness returns the dependency probes served on /ready.
func (a *app) readiness() []readinessCheck {
	checks := []readinessCheck{{name: "postgres", check: a.pg.Ping}}
	if a.redis != nil {
		checks = append(checks, readinessCheck{name: "redis", check: a.redis.Ping})
	}
	return checks
}

// reload applies the parts of a changed config that are safe to swap live.
func (a *app) reload(cfg *config.Config) {
	a.level.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	a.log.Info("configuration reloaded", map[string]interface{}{"logLevel": cfg.Logging.Level})
}

func (a *app) close() {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.pg != nil {
		errs = append(errs, a.pg.Close())
	}
	if err := errors.Join(errs...); err != nil && a.log != nil {
		a.log.Warn("error closing connections", map[string]interface{}{"error": err})
	}
	a.obs.Shutdown()
	_ = a.zap.Sync()
}
