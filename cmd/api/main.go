package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/checoluis2212/backend-b2b/internal/config"
	"github.com/checoluis2212/backend-b2b/internal/forward"
	"github.com/checoluis2212/backend-b2b/internal/httpserver"
	"github.com/checoluis2212/backend-b2b/internal/ingest"
	"github.com/checoluis2212/backend-b2b/internal/merge"
	"github.com/checoluis2212/backend-b2b/internal/sinks"
	"github.com/checoluis2212/backend-b2b/internal/store"
)

// main boots the service: config → logger → DB → schema → sinks → forwarder
// → HTTP server, then drains the forwarder on shutdown.
func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}

	// Connect to durable storage (Postgres) using a connection pool.
	db, err := store.NewPostgresStore(cfg.DBURL)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer db.Close()

	// Ensure required tables/indexes exist so `docker compose up --build`
	// is enough.
	if err := db.EnsureSchema(); err != nil {
		log.Fatal("schema", zap.Error(err))
	}

	var sinkHTTP *http.Client
	if cfg.SinkTimeout > 0 {
		sinkHTTP = &http.Client{Timeout: cfg.SinkTimeout}
	}

	var crmClient *sinks.CRMClient
	if cfg.CRMDirectoryEnabled() {
		crmClient = sinks.NewCRMClient(sinks.CRMOptions{
			BaseURL:      cfg.CRMBaseURL,
			FormsBaseURL: cfg.CRMFormsBaseURL,
			Token:        cfg.CRMToken,
			HTTPClient:   sinkHTTP,
		})
	}

	var analyticsClient *sinks.AnalyticsClient
	if cfg.AnalyticsEnabled() {
		analyticsClient = sinks.NewAnalyticsClient(sinks.AnalyticsOptions{
			MeasurementID: cfg.AnalyticsMeasurementID,
			APISecret:     cfg.AnalyticsAPISecret,
			Debug:         cfg.AnalyticsDebug,
			HTTPClient:    sinkHTTP,
		})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	var crmSink forward.CRMSink
	if crmClient != nil {
		crmSink = crmClient
	}
	var analyticsSink forward.AnalyticsSink
	if analyticsClient != nil {
		analyticsSink = analyticsClient
	}

	forwarder := forward.New(forward.Config{
		CRMEnabled:       cfg.CRMEnabled(),
		AnalyticsEnabled: cfg.AnalyticsEnabled(),
		CRMPortalID:      cfg.CRMPortalID,
		CRMFormID:        cfg.CRMFormID,
		QueueDepth:       cfg.ForwardQueueDepth,
		Workers:          cfg.ForwardWorkers,
		CallTimeout:      cfg.SinkTimeout,
		RetryOnce:        true,
	}, crmSink, analyticsSink, forward.NewMetrics(reg), log)

	engine := merge.New(db, log)

	var directory ingest.CRMDirectory
	if crmClient != nil {
		directory = crmClient
	}
	orch := ingest.New(engine, forwarder, directory, cfg.CRMFormID, log)

	router := httpserver.NewRouter(cfg, db, orch, db, reg)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		log.Info("server started", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// Stop accepting requests, then drain in-flight forwarding work.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	forwarder.Close()
	log.Info("server stopped")
}
