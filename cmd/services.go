package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/bus"
	"github.com/Ashfaaq98/imaging-case-console/internal/ingest"
	"github.com/Ashfaaq98/imaging-case-console/internal/metrics"
)

// streamMaxLen bounds the Redis streams trimmed by the maintenance loop.
const streamMaxLen = 10000

// ServiceCoordinator manages the background services of serve: the
// repository poller, the case change subscription, the metrics endpoint,
// folder watching and periodic health checks.
type ServiceCoordinator struct {
	backend *backend
	logger  *zap.Logger
	ctx     context.Context

	// MetricsAddr enables the /metrics endpoint when non-empty.
	MetricsAddr string
	// WatchDir enables folder ingestion when non-empty.
	WatchDir      string
	WatchPatterns []string
	WatchOwner    string

	HealthInterval time.Duration

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	server  *http.Server
	// listenAddr is the bound metrics address once started.
	listenAddr string
	ingest     *ingest.FolderIngestor
	// changeGroup is this console's consumer group on the changes stream.
	changeGroup string
}

// Start starts all background services
func (sc *ServiceCoordinator) Start() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.running {
		return fmt.Errorf("services already running")
	}
	if sc.logger == nil {
		sc.logger = zap.NewNop()
	}
	sc.logger = sc.logger.With(zap.String("component", "services"))
	if sc.HealthInterval <= 0 {
		sc.HealthInterval = 30 * time.Second
	}
	if sc.ctx == nil {
		sc.ctx = context.Background()
	}
	sc.ctx, sc.cancel = context.WithCancel(sc.ctx)

	if sc.MetricsAddr != "" {
		if err := sc.startMetricsServer(); err != nil {
			sc.cancel()
			return err
		}
	}

	// One group per console so every console sees every change. It is
	// created before the first fetch so no change falls between the two.
	sc.changeGroup = "case-console-" + sc.backend.repo.Origin()
	if rb, ok := sc.backend.tee.Bus.(*bus.RedisBus); ok {
		if err := rb.CreateConsumerGroup(sc.ctx, bus.StreamCaseChanges, sc.changeGroup, bus.StartNew); err != nil {
			sc.logger.Warn("could not create change group", zap.Error(err))
		}
	}

	sc.backend.repo.Start(sc.ctx)

	sc.wg.Add(1)
	go sc.runChangeSubscriber()

	sc.wg.Add(1)
	go sc.runHealthMonitor()

	if sc.WatchDir != "" {
		if err := os.MkdirAll(sc.WatchDir, 0755); err != nil {
			sc.logger.Warn("could not create ingest directory", zap.String("dir", sc.WatchDir), zap.Error(err))
		}
		sc.ingest = ingest.NewFolderIngestor(sc.backend.repo, ingest.FolderOptions{
			Dir:         sc.WatchDir,
			Watch:       true,
			Patterns:    sc.WatchPatterns,
			OwnerID:     sc.WatchOwner,
			TailFromEnd: true,
			Metrics:     sc.backend.metrics,
			Logger:      sc.logger,
		})
		sc.wg.Add(1)
		go func() {
			defer sc.wg.Done()
			if err := sc.ingest.Run(sc.ctx); err != nil && sc.ctx.Err() == nil {
				sc.logger.Error("folder ingest stopped", zap.Error(err))
			}
		}()
	}

	sc.running = true
	sc.logger.Info("background services started")
	return nil
}

// Stop stops all background services and waits for them to exit.
func (sc *ServiceCoordinator) Stop() {
	sc.mu.Lock()
	if !sc.running {
		sc.mu.Unlock()
		return
	}
	sc.running = false
	server := sc.server
	sc.mu.Unlock()

	sc.logger.Info("stopping background services")
	sc.cancel()
	sc.backend.repo.Close()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			sc.logger.Warn("metrics server shutdown", zap.Error(err))
		}
		cancel()
	}
	sc.wg.Wait()

	if rb, ok := sc.backend.tee.Bus.(*bus.RedisBus); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rb.DestroyConsumerGroup(ctx, bus.StreamCaseChanges, sc.changeGroup); err != nil {
			sc.logger.Warn("could not remove change group", zap.Error(err))
		}
		cancel()
	}
	sc.logger.Info("background services stopped")
}

func (sc *ServiceCoordinator) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(sc.backend.registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := sc.backend.tee.HealthCheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	ln, err := net.Listen("tcp", sc.MetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", sc.MetricsAddr, err)
	}
	sc.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	sc.listenAddr = ln.Addr().String()

	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		sc.logger.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()))
		if err := sc.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sc.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

// runChangeSubscriber refetches whenever another console publishes a case change.
func (sc *ServiceCoordinator) runChangeSubscriber() {
	defer sc.wg.Done()

	repo := sc.backend.repo
	consumer, _ := os.Hostname()
	if consumer == "" {
		consumer = "console"
	}

	handler := func(ctx context.Context, c bus.CaseChange) error {
		if c.Origin == repo.Origin() {
			return nil
		}
		sc.logger.Debug("case changed elsewhere",
			zap.String("case_id", c.CaseID),
			zap.String("action", c.Action),
			zap.String("origin", c.Origin))
		if err := repo.Refetch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			sc.logger.Warn("refetch after case change failed", zap.Error(err))
		}
		return nil
	}

	for {
		err := sc.backend.tee.ReadCaseChanges(sc.ctx, sc.changeGroup, consumer, handler)
		if sc.ctx.Err() != nil {
			return
		}
		if err != nil {
			sc.logger.Warn("error reading case changes", zap.Error(err))
		}
		select {
		case <-sc.ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// runHealthMonitor checks the bus and logs collection stats periodically.
func (sc *ServiceCoordinator) runHealthMonitor() {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sc.ctx.Done():
			return
		case <-ticker.C:
			sc.performHealthChecks()
		}
	}
}

// performHealthChecks checks the bus, trims its streams and logs stats.
func (sc *ServiceCoordinator) performHealthChecks() {
	ctx, cancel := context.WithTimeout(sc.ctx, 10*time.Second)
	defer cancel()

	b := sc.backend
	if err := b.tee.HealthCheck(ctx); err != nil {
		sc.logger.Warn("bus health check failed", zap.Error(err))
	}
	if rb, ok := b.tee.Bus.(*bus.RedisBus); ok {
		for _, stream := range []string{bus.StreamNotifications, bus.StreamCaseChanges} {
			if err := rb.CleanupOldMessages(ctx, stream, streamMaxLen); err != nil {
				sc.logger.Warn("stream trim failed", zap.String("stream", stream), zap.Error(err))
			}
		}
	}

	fields := []zap.Field{
		zap.Int("cases", len(b.repo.Cases())),
		zap.String("state", b.repo.State().String()),
		zap.Uint64("version", b.repo.Version()),
	}
	if stats, err := b.tee.GetStats(ctx); err == nil {
		fields = append(fields, zap.Any("bus", stats))
	}
	if sc.ingest != nil {
		st := sc.ingest.Stats()
		fields = append(fields, zap.Int("ingested", st.Ingested), zap.Int("ingest_errors", st.Errors))
	}
	sc.logger.Info("service status", fields...)
}
