// Command retz-server runs the Retz controller: the HTTP API, the
// offer/dispatch loop against a ResourceBroker, and the retention GC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"retz/internal/broker"
	"retz/internal/broker/dockerbroker"
	"retz/internal/broker/execbroker"
	"retz/internal/broker/k8sbroker"
	"retz/internal/config"
	"retz/internal/controller"
	"retz/internal/dispatcher"
	retzlog "retz/internal/logger"
	"retz/internal/observability"
	"retz/internal/planner"
	"retz/internal/retention"
	"retz/internal/status"
	"retz/internal/store"
	"retz/internal/store/postgres"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to a retz.yaml config file")
	adminSecret := flag.String("admin-secret", "", "bearer secret for admin-only endpoints (overrides ADMIN_SECRET env)")
	priorityPlanner := flag.Bool("priority", false, "use the priority planner strategy instead of FIFO")
	flag.Parse()

	log := retzlog.New()
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	secret := *adminSecret
	if secret == "" {
		secret = os.Getenv("ADMIN_SECRET")
	}
	if secret == "" {
		log.Error("admin secret is required (flag -admin-secret or env ADMIN_SECRET)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Stop(context.Background())

	shutdownTracer, err := observability.Init(ctx, "retz-server", cfg.OTELEndpoint)
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("metrics shutdown failed", "error", err)
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	metricsAddr := fmt.Sprintf(":%d", cfg.HTTPPort+1)
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		log.Info("metrics server starting", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server exited", "error", err)
		}
	}()
	defer metricsSrv.Close()

	b, err := newBroker(cfg)
	if err != nil {
		log.Error("failed to build resource broker", "error", err)
		os.Exit(1)
	}

	var strategy planner.Planner = planner.FIFO{}
	if *priorityPlanner {
		strategy = planner.Priority{}
	}

	reporter := status.New(st, version)
	disp := dispatcher.New(b, strategy, st, log).WithReporter(reporter)

	if err := ensureFrameworkID(ctx, disp, st, log); err != nil {
		log.Error("failed to establish framework id", "error", err)
		os.Exit(1)
	}

	srvCfg := controller.Config{
		Addr:           fmt.Sprintf(":%d", cfg.HTTPPort),
		AdminSecret:    secret,
		RateLimit:      rate.Limit(10),
		RateLimitBurst: 20,
	}
	srv := controller.New(srvCfg, st, disp, reporter)

	gc := retention.New(st, 5*time.Minute, 7*24*3600, log)

	group := runGroup{}
	group.Go(func() error {
		log.Info("dispatcher starting")
		return disp.Run(ctx)
	})
	group.Go(func() error {
		log.Info("retention GC starting")
		return gc.Run(ctx)
	})
	group.Go(func() error {
		log.Info("controller starting", "addr", srvCfg.Addr)
		return srv.Run(ctx)
	})

	<-ctx.Done()
	log.Info("shutting down")

	if err := group.Wait(); err != nil {
		log.Warn("component exited with error", "error", err)
	}
}

func newBroker(cfg *config.Config) (broker.ResourceBroker, error) {
	switch cfg.Runtime {
	case "docker":
		return dockerbroker.New(dockerbroker.Config{
			Image:         "alpine:latest",
			Slots:         8,
			SlotResources: store.Resources{Cpu: 4, MemMB: 8192},
		})
	case "kubernetes":
		return k8sbroker.New(k8sbroker.Config{
			Namespace: "retz",
			Slots:     8,
			CPULimit:  "4",
			MemLimit:  "8Gi",
			Resources: store.Resources{Cpu: 4, MemMB: 8192},
		})
	case "exec":
		return execbroker.New(execbroker.Config{
			Slots:         4,
			SlotResources: store.Resources{Cpu: 4, MemMB: 8192},
			WorkDir:       cfg.RuntimeWorkDir,
		}), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q", cfg.Runtime)
	}
}

// ensureFrameworkID persists a freshly generated framework id on first
// run, mirroring a Mesos scheduler reusing its FrameworkInfo.id across
// restarts; on subsequent runs the existing id is kept as-is.
func ensureFrameworkID(ctx context.Context, disp *dispatcher.Dispatcher, st store.PropertyStore, log *slog.Logger) error {
	existing, err := st.GetFrameworkID(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Info("reusing persisted framework id", "framework_id", *existing)
		return nil
	}

	newID := uuid.NewString()
	if err := disp.OnReregistered(ctx, newID); err != nil {
		return err
	}
	log.Info("generated framework id", "framework_id", newID)
	return nil
}

// runGroup runs a handful of long-lived goroutines and collects the
// first non-nil error other than context.Canceled, mirroring the
// shape of the teacher's own shutdown handling without pulling in
// errgroup for three callers.
type runGroup struct {
	errs chan error
	n    int
}

func (g *runGroup) Go(f func() error) {
	if g.errs == nil {
		g.errs = make(chan error, 8)
	}
	g.n++
	go func() { g.errs <- f() }()
}

func (g *runGroup) Wait() error {
	var first error
	for i := 0; i < g.n; i++ {
		if err := <-g.errs; err != nil && err != context.Canceled && first == nil {
			first = err
		}
	}
	return first
}
