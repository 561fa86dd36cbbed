package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecovector/mosquito-atlas/internal/core/config"
	"github.com/ecovector/mosquito-atlas/internal/core/observability"
	"github.com/ecovector/mosquito-atlas/internal/core/router"
	"github.com/ecovector/mosquito-atlas/internal/core/server"
	"github.com/ecovector/mosquito-atlas/internal/docstore/redisdoc"
	"github.com/ecovector/mosquito-atlas/internal/filteropts"
	"github.com/ecovector/mosquito-atlas/internal/geolayer"
	"github.com/ecovector/mosquito-atlas/internal/i18n"
	"github.com/ecovector/mosquito-atlas/internal/invalidation/kafkaconsumer"
	"github.com/ecovector/mosquito-atlas/internal/layercache"
	"github.com/ecovector/mosquito-atlas/internal/logger"
	"github.com/ecovector/mosquito-atlas/internal/observations"
)

const version = "0.3.0"

// i18nReadiness reports readiness from the localization cache. The service
// must not take traffic before every label domain has loaded once.
type i18nReadiness struct {
	cache *i18n.Cache
}

func (r i18nReadiness) Readiness() (bool, []string) {
	var loaded []string
	for _, d := range i18n.Domains {
		if r.cache.Loaded(d) {
			loaded = append(loaded, string(d))
		}
	}
	return r.cache.Ready(), loaded
}

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "atlas-server",
	}, os.Stdout)
	log := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := redisdoc.New(ctx, cfg.RedisAddr, redisdoc.WithOpTimeout(cfg.StoreOpTimeout))
	if err != nil {
		log.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	labels := i18n.New(store, cfg.DefaultLang, cfg.SupportedLangs)
	if err := labels.LoadAll(ctx); err != nil {
		// labels are a hard startup dependency, everything downstream
		// resolves through them
		log.Error("label load failed", "err", err)
		os.Exit(1)
	}
	log.Info("label domains loaded", "langs", cfg.SupportedLangs, "default", cfg.DefaultLang)

	repo := observations.New(store, cfg.AnonymousUserID, log)
	composer := filteropts.New(labels, log)
	lcache := layercache.New(cfg.LayerCacheSize, cfg.LayerCacheTTL)
	layers := geolayer.New(store, cfg.LayerTables, lcache, cfg.LayerLimit, log)

	if cfg.Invalidation.Enabled {
		consumer := kafkaconsumer.New(
			kafkaconsumer.NewConfig(cfg.Invalidation.Brokers, cfg.Invalidation.Topic, cfg.Invalidation.GroupID),
			log, lcache, labels, cfg.LayerTables,
		)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("catalog consumer stopped", "err", err)
			}
		}()
	}

	if cfg.MetricsEnabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.MetricsPath, promhttp.Handler())
			srv := &http.Server{
				Addr:              cfg.MetricsAddr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			log.Info("metrics listen", "addr", cfg.MetricsAddr, "path", cfg.MetricsPath)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics listener failed", "err", err)
			}
		}()
	}

	deps := router.Deps{
		Logger:      log,
		Options:     composer,
		Species:     repo,
		Layers:      layers,
		Obs:         repo,
		DefaultLang: cfg.DefaultLang,
		AnonymousID: cfg.AnonymousUserID,
	}

	if err := server.Run(ctx, cfg.Addr, deps, i18nReadiness{cache: labels}); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
