package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uks-watch/flats-monitor/internal/domain"
	"github.com/uks-watch/flats-monitor/internal/logger"
	"github.com/uks-watch/flats-monitor/pkg/notifiers"
	"github.com/uks-watch/flats-monitor/pkg/sources"
)

// Service coordinates one poll cycle across all configured sources:
// fetch, dedup against the seen-set, fan out notifications, mark seen,
// and record the cycle heartbeat.
type Service struct {
	registry sources.FetcherRegistry
	fanout   EventPublisher
	deduper  Deduper
	health   CycleRecorder
	log      logger.Logger
	now      func() time.Time

	// memSeen shadows the durable seen-set so a failing store save cannot
	// cause a duplicate notification before restart. Bounded at memSeenMax;
	// the durable store stays the source of truth.
	memSeen map[string]struct{}
}

// memSeenMax caps the in-process seen shadow; when reached the map is reset
// and dedup falls back to the durable store alone.
const memSeenMax = 4096

// NewService wires a watcher with the source fetcher registry, the notifier
// fanout, the dedup store and the health recorder.
func NewService(reg sources.FetcherRegistry, fanout EventPublisher, deduper Deduper, health CycleRecorder, log logger.Logger) *Service {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Service{
		registry: reg,
		fanout:   fanout,
		deduper:  deduper,
		health:   health,
		log:      log,
		now:      time.Now,
		memSeen:  make(map[string]struct{}),
	}
}

// Run executes a poll cycle for all configured sources. The heartbeat is
// recorded whenever the cycle ran to completion, including cycles where
// individual sources failed and were skipped.
func (s *Service) Run(ctx context.Context, cfgs []sources.Source) error {
	if s == nil || s.registry == nil {
		return fmt.Errorf("watcher service is not initialized")
	}

	if len(cfgs) == 0 {
		return fmt.Errorf("no sources configured for polling")
	}

	errs := s.runAll(ctx, cfgs)
	s.recordHeartbeat(ctx)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Service) runAll(ctx context.Context, cfgs []sources.Source) []error {
	errs := make([]error, 0, len(cfgs))

	for _, cfg := range cfgs {
		select {
		case <-ctx.Done():
			return errs
		default:
		}

		if err := s.runSource(ctx, cfg); err != nil {
			errs = append(errs, err)
			s.log.ErrorObj("source poll failed", "source_error", map[string]any{
				"source_id": cfg.ID,
				"error":     err.Error(),
			})
		}
	}

	return errs
}

func (s *Service) runSource(ctx context.Context, cfg sources.Source) error {
	fetcher, err := s.registry.FetcherFor(cfg)
	if err != nil {
		return fmt.Errorf("resolve fetcher for source %s: %w", cfg.ID, err)
	}

	listings, err := fetcher.Fetch(ctx, cfg)
	if err != nil {
		return fmt.Errorf("source %s: %w: %w", cfg.ID, ErrFetch, err)
	}

	fresh := s.filterNewListings(cfg, listings)

	var deliveryErrs []error
	for _, listing := range fresh {
		evt := notifiers.NewEvent(cfg.ID, cfg.Name, listing)

		delivered, err := s.fanout.Notify(ctx, evt)
		if err != nil {
			deliveryErrs = append(deliveryErrs, fmt.Errorf("listing %s: %w: %w", listing.ID, ErrDelivery, err))
		}
		if err == nil && delivered == 0 {
			s.log.WarnObj("listing had no delivery targets", "delivery_meta", map[string]any{
				"source_id":  cfg.ID,
				"listing_id": listing.ID,
			})
		}

		// At-most-once: the listing counts as seen whether or not delivery
		// succeeded, so a flaky channel cannot spam duplicates.
		s.markSeen(cfg, listing)
	}

	s.log.InfoObj("source poll completed", "source_result", map[string]any{
		"source_id":         cfg.ID,
		"listings_fetched":  len(listings),
		"listings_fresh":    len(fresh),
		"delivery_failures": len(deliveryErrs),
	})

	return errors.Join(deliveryErrs...)
}

// filterNewListings drops listings already notified. Store lookup failures
// fail open (treated as unseen): a duplicate beats a silently dropped alert.
func (s *Service) filterNewListings(cfg sources.Source, listings []domain.Listing) []domain.Listing {
	if len(listings) == 0 {
		return nil
	}

	fresh := make([]domain.Listing, 0, len(listings))
	for _, listing := range listings {
		if _, ok := s.memSeen[listing.ID]; ok {
			continue
		}

		if s.deduper != nil {
			seen, err := s.deduper.SeenListing(listing.ID)
			if err != nil {
				s.log.WarnObj("seen-set lookup failed", "dedup_error", map[string]any{
					"source_id":  cfg.ID,
					"listing_id": listing.ID,
					"error":      err.Error(),
				})
			} else if seen {
				s.rememberSeen(listing.ID)
				continue
			}
		}

		fresh = append(fresh, listing)
	}
	return fresh
}

// markSeen records the listing in memory and in the durable store. A store
// failure is logged and retried implicitly on the next fresh listing; the
// in-memory shadow prevents duplicates until then.
func (s *Service) markSeen(cfg sources.Source, listing domain.Listing) {
	s.rememberSeen(listing.ID)

	if s.deduper == nil {
		return
	}
	if err := s.deduper.MarkListing(listing.ID); err != nil {
		s.log.ErrorObj("seen-set persist failed", "dedup_error", map[string]any{
			"source_id":  cfg.ID,
			"listing_id": listing.ID,
			"error":      fmt.Errorf("%w: %w", ErrPersistence, err).Error(),
		})
	}
}

func (s *Service) rememberSeen(id string) {
	if len(s.memSeen) >= memSeenMax {
		s.memSeen = make(map[string]struct{})
	}
	s.memSeen[id] = struct{}{}
}

func (s *Service) recordHeartbeat(ctx context.Context) {
	if s.health == nil || ctx.Err() != nil {
		return
	}
	if err := s.health.RecordCycle(s.now()); err != nil {
		s.log.ErrorObj("heartbeat persist failed", "health_error", map[string]any{
			"error": fmt.Errorf("%w: %w", ErrPersistence, err).Error(),
		})
	}
}
