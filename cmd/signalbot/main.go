package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"signalbot/config"
	"signalbot/internal/alert"
	"signalbot/internal/breaker"
	"signalbot/internal/engine"
	"signalbot/internal/gateway"
	"signalbot/internal/logger"
	"signalbot/internal/marketdata/binance"
	"signalbot/internal/metrics"
	"signalbot/internal/news"
	"signalbot/internal/notification"
	"signalbot/internal/scheduler"
	"signalbot/internal/store/journal"
	sigredis "signalbot/internal/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logger.Init("signalbot", logger.ParseLevel(cfg.LogLevel))

	instruments, _ := cfg.Instruments()
	resolution, _ := cfg.Resolution()
	symbols := make([]string, len(instruments))
	for i, inst := range instruments {
		symbols[i] = inst.Symbol()
	}
	log.Info("starting", "symbols", symbols, "resolution", string(resolution),
		"report_interval", cfg.ReportInterval.String(), "alert_interval", cfg.AlertInterval.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics + health ----
	reg := prometheus.NewRegistry()
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg, log)
	metricsSrv.Start()

	// ---- Market data ----
	exchangeBreaker := breaker.New("binance", 5, 30*time.Second, breaker.OnStateChange(prom.BreakerHook()))
	source := binance.New(cfg.BinanceBaseURL, binance.WithBreaker(exchangeBreaker))

	// ---- Notification ----
	notifiers := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID,
			notification.WithTelegramLogger(log)))
		log.Info("telegram notifier enabled")
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
		log.Info("webhook notifier enabled")
	}

	var newsProvider news.Provider
	if cfg.CryptoPanicToken != "" {
		newsProvider = news.NewCryptoPanic(cfg.CryptoPanicToken, "")
	}

	// ---- Optional journal ----
	var (
		journalStore *journal.Store
		journalRW    engine.Journal
		journalRead  gateway.JournalReader
		journalPing  metrics.Pinger
	)
	if cfg.JournalDSN != "" {
		journalStore, err = journal.Open(ctx, cfg.JournalDSN, log)
		if err != nil {
			log.Error("journal init failed", "error", err)
			os.Exit(1)
		}
		defer journalStore.Close()
		journalRW, journalRead, journalPing = journalStore, journalStore, journalStore
		health.EnableJournal()
	}

	// ---- Optional redis ----
	hub := gateway.NewHub(log)
	publishers := []engine.Publisher{}
	var (
		redisStore  *sigredis.Store
		memoryStore alert.Store
		rdb         *goredis.Client
	)
	if cfg.RedisAddr != "" {
		redisBreaker := breaker.New("redis", 5, 10*time.Second, breaker.OnStateChange(prom.BreakerHook()))
		redisStore, err = sigredis.New(ctx, sigredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, redisBreaker, log)
		if err != nil {
			log.Warn("redis init failed, continuing without redis", "error", err)
		} else {
			defer redisStore.Close()
			rdb = redisStore.Client()
			memoryStore = redisStore
			publishers = append(publishers, redisStore)
			health.EnableRedis()
			// The hub follows redis so every gateway replica sees every notice.
			go hub.RunRedis(ctx, redisStore)
		}
	}
	if redisStore == nil {
		publishers = append(publishers, hub)
	}
	health.StartLivenessChecker(ctx, rdb, journalPing, 10*time.Second)

	// ---- Engine ----
	memory := alert.NewMemory()
	eng, err := engine.New(engine.Config{
		Instruments: instruments,
		Resolution:  resolution,
		BarLimit:    cfg.BarLimit,
		ReportDelay: cfg.ReportInstrumentDelay,
		AlertDelay:  cfg.AlertInstrumentDelay,
		NewsCount:   cfg.NewsCount,
	}, engine.Deps{
		Source:     source,
		Memory:     memory,
		Notifier:   notifiers,
		News:       newsProvider,
		Journal:    journalRW,
		Publishers: publishers,
		Store:      memoryStore,
		Metrics:    prom,
		Health:     health,
		Logger:     log,
	})
	if err != nil {
		log.Error("engine init failed", "error", err)
		os.Exit(1)
	}
	if cfg.RestoreAlertMemory {
		if _, err := eng.RestoreMemory(ctx); err != nil {
			log.Warn("alert memory restore failed, starting empty", "error", err)
		}
	}

	// ---- Scheduler ----
	sched := scheduler.New(log, scheduler.OnRun(func(job string, err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		prom.JobRuns.WithLabelValues(job, result).Inc()
	}))
	jobs := []*scheduler.Job{{
		Name:        "full_report",
		Description: "Full analysis report over every instrument",
		Schedule:    scheduler.Every(cfg.ReportInterval, cfg.ReportFirstDelay),
		Timeout:     cfg.CycleTimeout,
		Handler: func(ctx context.Context) error {
			_, err := eng.RunReport(ctx)
			return err
		},
	}, {
		Name:        "alert_scan",
		Description: "Transition alerts for every instrument",
		Schedule:    scheduler.Every(cfg.AlertInterval, cfg.AlertFirstDelay),
		Timeout:     cfg.CycleTimeout,
		Handler: func(ctx context.Context) error {
			_, err := eng.RunAlertScan(ctx)
			return err
		},
	}}
	for _, job := range jobs {
		if err := sched.Register(job); err != nil {
			log.Error("job registration failed", "job", job.Name, "error", err)
			os.Exit(1)
		}
	}
	sched.Start(ctx)

	// ---- Gateway ----
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, &gateway.API{
		Hub:      hub,
		Analyzer: eng,
		Memory:   memory,
		Journal:  journalRead,
		Jobs:     sched,
		Start:    time.Now(),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("gateway listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("gateway server error", "error", err)
		}
	}()

	// ---- Wait for shutdown ----
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())
	cancel()

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("gateway shutdown error", "error", err)
	}
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Warn("metrics shutdown error", "error", err)
	}
	log.Info("stopped")
}
