// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/briangreenhill/finboard/internal/bootstrap"
	"github.com/briangreenhill/finboard/internal/config"
	"github.com/briangreenhill/finboard/internal/http/routes"
	"github.com/briangreenhill/finboard/internal/jobs"
	"github.com/briangreenhill/finboard/internal/widgets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLogger := bootstrap.Logger(os.Stderr, "info")
		errLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Logger
	logger := bootstrap.Logger(os.Stdout, cfg.LogLevel)
	logger.Info().Str("port", cfg.Port).Msg("starting finboard api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Fetch stack
	stack, err := bootstrap.New(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Warn().Err(err).Msg("close redis")
		}
	}()

	store := widgets.NewStore(stack.Coordinator, widgets.WithLogger(logger.With().Str("component", "widgets").Logger()))

	// Refresh dispatch: asynq when Redis is available, goroutines otherwise
	var dispatcher widgets.Dispatcher
	if cfg.HasRedis() {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client := asynq.NewClient(redisOpt)
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("close asynq client")
			}
		}()

		worker := asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: 8,
			Queues:      map[string]int{jobs.QueueRefresh: 10},
		})
		if err := worker.Start(jobs.NewServeMux(store, logger.With().Str("component", "jobs").Logger())); err != nil {
			return err
		}
		defer worker.Shutdown()

		dispatcher = jobs.NewEnqueuer(client,
			jobs.WithUniqueFor(cfg.Scheduler.Tick),
			jobs.WithEnqueuerLogger(logger),
		)
		logger.Info().Str("redis", cfg.RedisAddr).Msg("refreshes dispatched through asynq")
	} else {
		inline := &widgets.InlineDispatcher{Store: store}
		defer inline.Wait()
		dispatcher = inline
	}

	scheduler := widgets.NewScheduler(store, dispatcher,
		widgets.WithTick(cfg.Scheduler.Tick),
		widgets.WithSchedulerLogger(logger.With().Str("component", "scheduler").Logger()),
	)

	// Router / server
	s := routes.New(routes.ServerOptions{
		Data:     stack.Coordinator,
		Widgets:  store,
		Gatherer: reg,
		APIToken: cfg.APIToken,
		Logger:   logger,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
