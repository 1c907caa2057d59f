package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custodia/internal/alerts"
	"custodia/internal/anomaly"
	"custodia/internal/classify"
	"custodia/internal/jwtauth"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/postgres"
	"custodia/internal/platform/redis"
	"custodia/internal/report"
	"custodia/internal/retention"
	"custodia/internal/risk"
	"custodia/internal/trail"
	"custodia/internal/trail/sink"
	trailpg "custodia/internal/trail/store/postgres"
	httptransport "custodia/internal/transport/http"
)

// main wires dependencies and owns the server lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error("connecting to postgres failed", "error", err)
		os.Exit(1)
	}
	var persistence trail.Persistence
	if db != nil {
		defer db.Close()
		persistence = trailpg.New(db)
	} else {
		log.Warn("no postgres DSN configured, trail runs memory-only")
	}

	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("connecting to redis failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	kafkaSink, err := sink.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	if err != nil {
		log.Error("connecting to kafka failed", "error", err)
		os.Exit(1)
	}

	rules, err := retention.Load(cfg.RetentionRulesPath)
	if err != nil {
		log.Error("loading retention rules failed", "error", err)
		os.Exit(1)
	}

	classifier := classify.New(classify.WithDefaultCategory(cfg.DefaultDataCategory))

	trailOpts := []trail.Option{
		trail.WithLogger(log),
		trail.WithMetrics(m),
		trail.WithBufferCap(cfg.BufferCap),
		trail.WithStoreTimeout(cfg.StoreTimeout),
	}
	if kafkaSink != nil {
		trailOpts = append(trailOpts, trail.WithSink(kafkaSink))
	}
	trailSvc := trail.New(persistence, classifier, trailOpts...)
	defer trailSvc.Close()

	riskEngine := risk.New(trailSvc,
		risk.WithLogger(log),
		risk.WithMetrics(m),
		risk.WithConsentValidity(cfg.ConsentValidity),
	)
	detector := anomaly.New(trailSvc,
		anomaly.WithLogger(log),
		anomaly.WithMetrics(m),
	)
	reporter := report.New(trailSvc,
		report.WithLogger(log),
		report.WithRetentionRules(rules),
		report.WithConsentValidity(cfg.ConsentValidity),
	)
	alertOpts := []alerts.Option{
		alerts.WithLogger(log),
		alerts.WithConsentValidity(cfg.ConsentValidity),
		alerts.WithRecorder(trailSvc),
	}
	if redisClient != nil {
		alertOpts = append(alertOpts, alerts.WithRedis(redisClient))
	}
	alertSvc := alerts.New(trailSvc, detector, alertOpts...)

	auth := jwtauth.New(cfg.JWTSigningKey, "custodia")
	handler := httptransport.NewHandler(httptransport.Services{
		Trail:     trailSvc,
		Risk:      riskEngine,
		Anomalies: detector,
		Reports:   reporter,
		Alerts:    alertSvc,
	}, log)
	router := httptransport.NewRouter(handler, auth, log, m)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting custodia", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
