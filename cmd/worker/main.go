package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rangeos/engine/internal/apiclient"
	"github.com/rangeos/engine/internal/metrics"
	"github.com/rangeos/engine/internal/models"
	"github.com/rangeos/engine/internal/query"
	"github.com/rangeos/engine/internal/resources"
	"github.com/rangeos/engine/pkg/config"
	"github.com/rangeos/engine/pkg/logger"
)

// The worker keeps live list queries open against the DevOps API and logs
// status transitions of ranges, environments, VMs and background jobs.
func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat, zap.String("component", "worker"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store query.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		store = query.NewRedisStore(rdb, "rangeos:query")
		log.Info("query cache backed by redis", zap.String("addr", cfg.RedisAddr))
	}

	api, err := apiclient.New(apiclient.Config{
		BaseURL:    cfg.APIBaseURL(),
		GraphQLURL: cfg.GraphQLURL,
		AuthToken:  cfg.AuthToken,
		UserAgent:  "rangeos-worker",
	})
	if err != nil {
		log.Fatal("invalid api client configuration", zap.Error(err))
	}

	m := metrics.New(true)
	cache := query.NewClient(query.Config{
		StaleTime: cfg.QueryStaleTime,
		CacheTime: cfg.QueryCacheTime,
		Retry:     cfg.QueryRetry,
		Store:     store,
		Recorder:  m.Query(),
		Logger:    log,
	})
	go cache.RunGC(ctx, cfg.QueryCacheTime)

	reg := resources.NewRegistry(resources.Deps{API: api, Cache: cache, Logger: log})
	opts := resources.ListOptions{ShouldPoll: cfg.PollInterval}

	ranges := reg.Ranges.WatchList(ctx, opts)
	envs := reg.AwsEnvironments.WatchList(ctx, opts)
	defer ranges.Close()
	defer envs.Close()

	go follow(ctx, log.Named("ranges"), ranges.Observer, func(r models.Range) (string, string) { return r.UUID, r.Status })
	go follow(ctx, log.Named("environments"), envs.Observer, func(e models.AwsEnvironment) (string, string) { return e.UUID, e.Status })

	if cfg.WatchRangeID != "" && cfg.WatchScenarioID != "" {
		vms := reg.RangeVMs.In(resources.Scope{RangeID: cfg.WatchRangeID, ScenarioID: cfg.WatchScenarioID}).WatchList(ctx, opts)
		defer vms.Close()
		go follow(ctx, log.Named("vms"), vms.Observer, func(vm models.RangeVM) (string, string) { return vm.UUID, vm.Status })

		jobs := reg.BackgroundJobs.Watch(ctx, cfg.WatchScenarioID, cfg.PollInterval)
		defer jobs.Close()
		go followJobs(ctx, log.Named("jobs"), jobs)
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = newMetricsServer(cfg.MetricsAddr, m)
		go func() {
			log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", zap.Error(err))
				stop()
			}
		}()
	}

	log.Info("worker started",
		zap.String("api", api.BaseURL()),
		zap.Duration("poll", cfg.PollInterval),
	)
	<-ctx.Done()
	log.Info("shutdown signal received")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	cache.Wait()
	log.Info("worker exited gracefully")
}

// follow logs every status change of the records in an observed page.
func follow[T any](ctx context.Context, log *zap.Logger, obs *query.Observer[*apiclient.Page[T]], status func(T) (string, string)) {
	seen := map[string]string{}
	updates := obs.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
		}
		res := obs.Result()
		if res.Err != nil {
			log.Warn("refetch failed", zap.Error(res.Err))
			continue
		}
		if !res.HasData || res.Data == nil {
			continue
		}
		for _, rec := range res.Data.Data {
			id, st := status(rec)
			if prev, ok := seen[id]; !ok || prev != st {
				log.Info("status changed", zap.String("uuid", id), zap.String("from", prev), zap.String("to", st))
				seen[id] = st
			}
		}
	}
}

func followJobs(ctx context.Context, log *zap.Logger, obs *query.Observer[[]models.BackgroundJob]) {
	updates := obs.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
		}
		res := obs.Result()
		if res.Err != nil {
			log.Warn("refetch failed", zap.Error(res.Err))
			continue
		}
		if !res.HasData {
			continue
		}
		for _, j := range res.Data {
			log.Debug("job", zap.String("uuid", j.UUID), zap.String("state", j.State), zap.Int("progress", j.Progress))
		}
		if !resources.Pending(res.Data) {
			log.Info("background jobs settled", zap.Duration("age", time.Since(res.UpdatedAt)))
			obs.Close()
			return
		}
	}
}
