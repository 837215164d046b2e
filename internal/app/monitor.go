package app

import (
	"context"
	"fmt"
	"time"

	"github.com/uks-watch/flats-monitor/internal/config"
	"github.com/uks-watch/flats-monitor/internal/health"
	"github.com/uks-watch/flats-monitor/internal/logger"
	"github.com/uks-watch/flats-monitor/internal/storage"
	"github.com/uks-watch/flats-monitor/internal/watcher"
	"github.com/uks-watch/flats-monitor/pkg/httpclient"
	"github.com/uks-watch/flats-monitor/pkg/notifiers"
	"github.com/uks-watch/flats-monitor/pkg/sources"
)

// Monitor represents the flats monitor runtime. It manages the poll loop,
// coordinating between sources, the watcher service, and notifiers. It also
// handles storage initialization and cleanup.
type Monitor struct {
	cfg          *config.Config
	sourceReg    *sources.Registry
	fanout       *notifiers.Fanout
	watchService *watcher.Service
	pollInterval time.Duration
	tracker      *health.Tracker
	log          logger.Logger
	store        storage.Store
}

// NewMonitor builds a monitor runtime from config files.
func NewMonitor(ctx context.Context, cfg *config.Config, log logger.Logger) (*Monitor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sourceReg, err := sources.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	sourceList := sourceReg.All()
	sourceIDs := make([]string, 0, len(sourceList))
	for _, src := range sourceList {
		sourceIDs = append(sourceIDs, src.ID)
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"count": len(sourceIDs),
		"ids":   sourceIDs,
	})

	notifierReg, err := notifiers.LoadRegistry(cfg.NotifiersFile)
	if err != nil {
		return nil, fmt.Errorf("load notifiers registry: %w", err)
	}

	enabledNotifiers := notifierReg.Enabled()
	if len(enabledNotifiers) == 0 {
		return nil, fmt.Errorf("no notifiers configured")
	}

	sinkRegistry := notifiers.DefaultRegistry()
	sinks, err := notifiers.BuildAll(ctx, sinkRegistry, enabledNotifiers, log)
	if err != nil {
		return nil, fmt.Errorf("build notifiers: %w", err)
	}
	fanout := notifiers.NewFanout(sinks)
	notifierSummaries := make([]map[string]string, 0, len(enabledNotifiers))
	for _, sinkCfg := range enabledNotifiers {
		notifierSummaries = append(notifierSummaries, map[string]string{
			"id":   sinkCfg.ID,
			"type": sinkCfg.Type,
		})
	}
	log.InfoObj("notifiers registry loaded", "notifiers_meta", map[string]any{
		"count":     len(notifierSummaries),
		"notifiers": notifierSummaries,
	})

	storeOpts := storage.Options{
		ListingTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"listing_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	tracker := health.NewTracker(cfg.AppName, cfg.HeartbeatPath, cfg.StalenessThreshold)

	client := httpclient.NewRestyClient(cfg.HTTPTimeout)
	fetcherReg := sources.DefaultFetcherRegistry(client, store, cfg.DownloadsDir)
	watchService := watcher.NewService(fetcherReg, fanout, store, tracker, log)

	return &Monitor{
		cfg:          cfg,
		sourceReg:    sourceReg,
		fanout:       fanout,
		watchService: watchService,
		pollInterval: cfg.PollInterval,
		tracker:      tracker,
		log:          log,
		store:        store,
	}, nil
}

// Run starts the poll loop until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if m == nil || m.watchService == nil {
		return fmt.Errorf("monitor is not initialized")
	}
	defer m.closeStore()
	defer m.closeNotifiers()
	srcs := m.sourceReg.All()
	if len(srcs) == 0 {
		m.log.WarnObj("no sources configured; monitor idle", "sources_file", m.cfg.SourcesFile)
		<-ctx.Done()
		return ctx.Err()
	}

	m.log.InfoObj("monitor loop starting", "monitor_state", map[string]any{
		"sources_count":   len(srcs),
		"notifiers_count": m.fanout.Size(),
		"poll_interval":   m.pollInterval.String(),
	})

	if err := m.runOnce(ctx, srcs); err != nil {
		m.log.ErrorObj("initial poll failed", "error", err)
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.InfoObj("monitor loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := m.runOnce(ctx, srcs); err != nil {
				m.log.ErrorObj("scheduled poll failed", "error", err)
			}
		}
	}
}

// runOnce performs a single poll cycle across all sources.
func (m *Monitor) runOnce(ctx context.Context, srcs []sources.Source) error {
	start := time.Now()
	m.log.InfoObj("poll started", "poll_meta", map[string]any{
		"sources_count": len(srcs),
		"started_at":    start.UTC(),
	})
	if err := m.watchService.Run(ctx, srcs); err != nil {
		return err
	}
	m.log.InfoObj("poll completed", "poll_meta", map[string]any{
		"sources_count": len(srcs),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
	return nil
}

// closeStore safely closes the storage backend, logging any errors encountered.
func (m *Monitor) closeStore() {
	if m == nil || m.store == nil {
		return
	}
	if err := m.store.Close(); err != nil {
		m.log.ErrorObj("storage close failed", "error", err)
	}
}

// closeNotifiers flushes notifiers that buffer deliveries before exit.
func (m *Monitor) closeNotifiers() {
	if m == nil || m.fanout == nil {
		return
	}
	if err := m.fanout.Close(); err != nil {
		m.log.ErrorObj("notifier close failed", "error", err)
	}
}
