// Package rebalancing compares a portfolio's current allocation against the
// model portfolio matching the client's risk profile and reports drift.
package rebalancing

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
	"github.com/steward-fi/steward/internal/modules/allocation"
)

// PortfolioProvider supplies portfolios from the ledger
type PortfolioProvider interface {
	GetByID(id string) (*domain.Portfolio, error)
}

// HoldingProvider supplies current positions
type HoldingProvider interface {
	GetByPortfolio(portfolioID string) ([]domain.Holding, error)
}

// InstrumentProvider prices holdings from the universe
type InstrumentProvider interface {
	GetByIDs(ids []string) (map[string]domain.Instrument, error)
}

// ProfileProvider supplies client risk profiles
type ProfileProvider interface {
	GetByClient(clientID string) (*domain.RiskProfile, error)
}

// ModelProvider supplies the model portfolio catalog
type ModelProvider interface {
	GetAll() ([]domain.ModelPortfolio, error)
}

// AllocationReport is a portfolio's current asset-class breakdown
type AllocationReport struct {
	PortfolioID string                       `json:"portfolio_id"`
	TotalValue  float64                      `json:"total_value"`
	Cash        float64                      `json:"cash"`
	Classes     []allocation.ClassAllocation `json:"classes"`
	AsOf        time.Time                    `json:"as_of"`
}

// ClassDrift is the per-class comparison of current versus target
type ClassDrift struct {
	AssetClass domain.AssetClass `json:"asset_class"`
	CurrentPct float64           `json:"current_pct"`
	TargetPct  float64           `json:"target_pct"`
	Deviation  float64           `json:"deviation"`
}

// DriftReport compares a portfolio against its model and flags when the
// total drift crosses the rebalance threshold
type DriftReport struct {
	PortfolioID     string       `json:"portfolio_id"`
	ModelName       string       `json:"model_name"`
	TotalDrift      float64      `json:"total_drift"`
	Threshold       float64      `json:"threshold"`
	RebalanceNeeded bool         `json:"rebalance_needed"`
	Classes         []ClassDrift `json:"classes"`
	AsOf            time.Time    `json:"as_of"`
}

// Service computes allocation and drift reports
type Service struct {
	portfolios  PortfolioProvider
	holdings    HoldingProvider
	instruments InstrumentProvider
	profiles    ProfileProvider
	models      ModelProvider

	driftThreshold float64
	now            func() time.Time
	log            zerolog.Logger
}

// NewService creates a rebalancing service
func NewService(
	portfolios PortfolioProvider,
	holdings HoldingProvider,
	instruments InstrumentProvider,
	profiles ProfileProvider,
	models ModelProvider,
	driftThresholdPct float64,
	log zerolog.Logger,
) *Service {
	return &Service{
		portfolios:     portfolios,
		holdings:       holdings,
		instruments:    instruments,
		profiles:       profiles,
		models:         models,
		driftThreshold: driftThresholdPct,
		now:            time.Now,
		log:            log.With().Str("module", "rebalancing").Logger(),
	}
}

// SelectModel returns the model portfolio whose risk band contains the
// given score. The seeded bands partition 0-10, so exactly one matches;
// a gap in a hand-edited catalog surfaces as an error.
func (s *Service) SelectModel(score int) (*domain.ModelPortfolio, error) {
	models, err := s.models.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load model portfolios: %w", err)
	}

	for i := range models {
		if models[i].Matches(score) {
			return &models[i], nil
		}
	}

	return nil, fmt.Errorf("no model portfolio covers risk score %d", score)
}

// GetAllocation computes the current allocation of a portfolio.
// Returns (nil, nil) when the portfolio does not exist.
func (s *Service) GetAllocation(portfolioID string) (*AllocationReport, error) {
	portfolio, holdings, instruments, err := s.load(portfolioID)
	if err != nil || portfolio == nil {
		return nil, err
	}

	classes := allocation.Calculate(holdings, instruments, portfolio.Cash)

	total := portfolio.Cash
	for _, h := range holdings {
		if inst, ok := instruments[h.InstrumentID]; ok {
			total += h.MarketValue(inst.CurrentPrice)
		}
	}

	return &AllocationReport{
		PortfolioID: portfolioID,
		TotalValue:  total,
		Cash:        portfolio.Cash,
		Classes:     classes,
		AsOf:        s.now().UTC(),
	}, nil
}

// GetDrift compares a portfolio's allocation against the model matching the
// client's risk score. A client without a risk profile on file is measured
// against the most conservative model (score 0).
// Returns (nil, nil) when the portfolio does not exist.
func (s *Service) GetDrift(portfolioID string) (*DriftReport, error) {
	portfolio, holdings, instruments, err := s.load(portfolioID)
	if err != nil || portfolio == nil {
		return nil, err
	}

	profile, err := s.profiles.GetByClient(portfolio.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk profile: %w", err)
	}
	score := 0
	if profile != nil {
		score = profile.Score
	}

	model, err := s.SelectModel(score)
	if err != nil {
		return nil, err
	}

	current := allocation.Calculate(holdings, instruments, portfolio.Cash)
	total := allocation.Drift(current, model.Targets)

	currentPct := make(map[domain.AssetClass]float64, len(current))
	for _, c := range current {
		currentPct[c.AssetClass] = c.Percentage
	}

	classes := make([]ClassDrift, 0, len(domain.AllAssetClasses))
	for _, class := range domain.AllAssetClasses {
		cur := currentPct[class]
		tgt := model.Targets[class]
		if cur == 0 && tgt == 0 {
			continue
		}
		classes = append(classes, ClassDrift{
			AssetClass: class,
			CurrentPct: cur,
			TargetPct:  tgt,
			Deviation:  cur - tgt,
		})
	}

	return &DriftReport{
		PortfolioID:     portfolioID,
		ModelName:       model.Name,
		TotalDrift:      total,
		Threshold:       s.driftThreshold,
		RebalanceNeeded: total > s.driftThreshold,
		Classes:         classes,
		AsOf:            s.now().UTC(),
	}, nil
}

func (s *Service) load(portfolioID string) (*domain.Portfolio, []domain.Holding, map[string]domain.Instrument, error) {
	portfolio, err := s.portfolios.GetByID(portfolioID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if portfolio == nil {
		return nil, nil, nil, nil
	}

	holdings, err := s.holdings.GetByPortfolio(portfolioID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	ids := make([]string, 0, len(holdings))
	for _, h := range holdings {
		ids = append(ids, h.InstrumentID)
	}
	instruments, err := s.instruments.GetByIDs(ids)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to price holdings: %w", err)
	}

	return portfolio, holdings, instruments, nil
}
