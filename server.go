package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/documents"
	"github.com/huminex/payroll_backend/handlers"
	"github.com/huminex/payroll_backend/metrics"
	"github.com/huminex/payroll_backend/models"
	"github.com/huminex/payroll_backend/utils"
	"github.com/huminex/payroll_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// readyGate answers /healthz immediately and 503 for everything else until the router is installed.
type readyGate struct {
	handler atomic.Pointer[http.Handler]
}

func (g *readyGate) install(h http.Handler) {
	g.handler.Store(&h)
}

func (g *readyGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/healthz" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h := g.handler.Load()
	if h == nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write(utils.MarshalError(utils.CodeDependencyUnavailable, "service is starting", "", nil))
		return
	}
	(*h).ServeHTTP(w, r)
}

func main() {
	settings := config.LoadSettings()
	logger := config.GetLogger()
	metrics.Init()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start listening immediately so the startup probe passes while dependencies connect.
	gate := &readyGate{}
	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           gate,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	var rdb *redis.Client
	var locker *redislock.Client
	if settings.RedisEnabled {
		config.ConnectRedisWithRetry(sigCtx)
		rdb = config.GetRedisDB()
		locker = config.GetRedisLock()
	}

	// AutoMigrate can block tables; production runs cmd/migrate as a job and sets SKIP_MIGRATIONS.
	if !settings.SkipMigrations {
		if err := models.MigrateTable(sigCtx, db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal("migration failed: " + err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	docs, closeDocs := documentStorage(sigCtx, settings, logger)
	defer closeDocs()

	commands := workflow.NewPayrollCommands(db, docs, logger)
	commands.Locker = locker
	commands.TTL = settings.IdempotencyTTL
	queries := workflow.NewPayrollQueries(commands.Payroll, commands.Audit)

	gate.install(handlers.NewRouter(handlers.Deps{
		DB:       db,
		Commands: commands,
		Queries:  queries,
		Outbox:   commands.Outbox,
		Redis:    rdb,
		Logger:   logger,
		Settings: settings,
	}))

	workersCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if settings.OutboxEnabled && settings.PubSubTopic != "" {
		publisher := config.NewPubSubPublisher(settings.PubSubTopic)
		if settings.PubSubEnsureTopic {
			if err := publisher.EnsureTopic(sigCtx); err != nil {
				logger.WithFields(logrus.Fields{"field": "outbox"}).Error("ensure pubsub topic: " + err.Error())
			}
		}
		go workflow.NewOutboxDispatcher(db, publisher, logger).Run(workersCtx)
	} else {
		logger.WithFields(logrus.Fields{"field": "outbox"}).Warn("outbox dispatcher disabled; events stay PENDING")
	}
	go workflow.NewIdempotencyReaper(commands.Idempotency, logger, settings.IdempotencyReapInterval, settings.IdempotencyReapBatch).Run(workersCtx)

	logger.WithFields(logrus.Fields{"port": settings.Port}).Info("payroll api ready")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb != nil {
		_ = rdb.Close()
	}
}

// documentStorage uses the GCS bucket when configured and an in-process store otherwise.
func documentStorage(ctx context.Context, settings config.Settings, logger *logrus.Logger) (workflow.DocumentStorage, func()) {
	if settings.GCSBucket == "" {
		if settings.IsProduction() {
			logger.WithFields(logrus.Fields{"field": "documents"}).Warn("GCS_BUCKET not set; payslip documents are kept in memory")
		}
		return documents.NewMemoryStore(), func() {}
	}
	store, err := documents.NewGCSStore(ctx, settings.GCSBucket)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "documents"}).Fatal("gcs client: " + err.Error())
	}
	return store, func() { _ = store.Close() }
}
