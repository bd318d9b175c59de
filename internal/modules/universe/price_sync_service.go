package universe

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/events"
)

// PriceSource provides current prices for a set of symbols. The real market
// data feed lives in the surrounding application; the engine only consumes
// this interface.
type PriceSource interface {
	GetPrices(symbols []string) (map[string]float64, error)
}

// PriceSyncService refreshes instrument prices from an external source.
// Triggered by the scheduler; safe to run at any time.
type PriceSyncService struct {
	instrumentRepo *InstrumentRepository
	source         PriceSource
	eventManager   *events.Manager
	log            zerolog.Logger
}

// NewPriceSyncService creates a new price sync service
func NewPriceSyncService(
	instrumentRepo *InstrumentRepository,
	source PriceSource,
	eventManager *events.Manager,
	log zerolog.Logger,
) *PriceSyncService {
	return &PriceSyncService{
		instrumentRepo: instrumentRepo,
		source:         source,
		eventManager:   eventManager,
		log:            log.With().Str("service", "price_sync").Logger(),
	}
}

// SyncAll refreshes prices for every instrument in the catalog.
// Individual lookup misses are skipped, not fatal: a symbol the source does
// not know keeps its last price.
func (s *PriceSyncService) SyncAll() error {
	if s.source == nil {
		s.log.Debug().Msg("No price source configured, skipping sync")
		return nil
	}

	instruments, err := s.instrumentRepo.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load instruments for price sync: %w", err)
	}
	if len(instruments) == 0 {
		return nil
	}

	symbols := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		symbols = append(symbols, inst.Symbol)
	}

	prices, err := s.source.GetPrices(symbols)
	if err != nil {
		return fmt.Errorf("failed to fetch prices: %w", err)
	}

	updated := 0
	for _, inst := range instruments {
		price, ok := prices[inst.Symbol]
		if !ok {
			s.log.Debug().Str("symbol", inst.Symbol).Msg("No price from source, keeping last")
			continue
		}
		if price < 0 {
			s.log.Warn().Str("symbol", inst.Symbol).Float64("price", price).Msg("Ignoring negative price")
			continue
		}

		if err := s.instrumentRepo.UpdatePrice(inst.ID, price); err != nil {
			s.log.Error().Err(err).Str("symbol", inst.Symbol).Msg("Failed to update price")
			continue
		}
		updated++
	}

	s.log.Info().Int("updated", updated).Int("total", len(instruments)).Msg("Price sync complete")

	if updated > 0 && s.eventManager != nil {
		s.eventManager.Emit(events.PriceUpdated, "universe", map[string]interface{}{
			"updated": updated,
		})
	}

	return nil
}
