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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"domainintel/internal/analysis/handler"
	"domainintel/internal/analysis/metrics"
	"domainintel/internal/analysis/service"
	"domainintel/internal/platform/config"
	"domainintel/internal/platform/httpserver"
	"domainintel/internal/platform/logger"
	httptransport "domainintel/internal/transport/http"
)

// main wires dependencies and runs the HTTP server, the queue worker, and
// the staleness scheduler until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("domainintel exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("domainintel stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	q, err := openQueue(ctx, cfg.Queue, log)
	if err != nil {
		return err
	}
	defer q.consumer.Close()

	gateway, err := buildGateway(cfg.Providers, m, log)
	if err != nil {
		return err
	}

	opts := []service.Option{service.WithLogger(log), service.WithMetrics(m)}
	submitter, err := service.NewSubmitter(st.store, q.publisher, opts...)
	if err != nil {
		return err
	}
	analyzer, err := service.NewAnalyzer(gateway, st.store, opts...)
	if err != nil {
		return err
	}
	worker, err := service.NewWorker(analyzer, q.consumer, opts...)
	if err != nil {
		return err
	}

	h := handler.New(submitter, st.store, st.checks, log)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(h, reg, log))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting domainintel", "addr", cfg.Server.Addr, "store", cfg.Store.Driver, "queue", cfg.Queue.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(ctx)
	})

	if cfg.Scheduler.Enabled {
		scheduler, err := service.NewScheduler(st.store, analyzer, service.SchedulerConfig{
			Tick:         cfg.Scheduler.Tick,
			TicksPerPass: cfg.Scheduler.TicksPerPass,
			StaleAfter:   cfg.Scheduler.StaleAfter,
		}, opts...)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return scheduler.Run(ctx)
		})
	}

	return g.Wait()
}
