package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
	"github.com/steward-fi/steward/internal/events"
	"github.com/steward-fi/steward/internal/modules/allocation"
	"github.com/steward-fi/steward/internal/modules/rebalancing"
)

// PriceSyncer refreshes instrument prices from the market data source
type PriceSyncer interface {
	SyncAll() error
}

// PriceRefreshJob pulls fresh prices into the instrument catalog
type PriceRefreshJob struct {
	syncer PriceSyncer
}

// NewPriceRefreshJob creates a price refresh job
func NewPriceRefreshJob(syncer PriceSyncer) *PriceRefreshJob {
	return &PriceRefreshJob{syncer: syncer}
}

// Name returns the job name
func (j *PriceRefreshJob) Name() string { return "price_refresh" }

// Run refreshes all instrument prices
func (j *PriceRefreshJob) Run() error {
	return j.syncer.SyncAll()
}

// PortfolioLister supplies the portfolios to snapshot
type PortfolioLister interface {
	GetAll() ([]domain.Portfolio, error)
}

// SnapshotSaver persists allocation snapshots
type SnapshotSaver interface {
	Save(snapshot allocation.Snapshot) error
}

// AuditSink records append-only audit events
type AuditSink interface {
	Append(eventType, actor, clientID string, detail map[string]interface{}) error
}

// DriftSnapshotJob captures each portfolio's allocation and drift, stores a
// snapshot for the history view, and raises a rebalance suggestion when the
// drift crosses the threshold.
type DriftSnapshotJob struct {
	portfolios PortfolioLister
	service    *rebalancing.Service
	snapshots  SnapshotSaver
	audit      AuditSink
	events     *events.Manager
	log        zerolog.Logger
}

// NewDriftSnapshotJob creates a drift snapshot job
func NewDriftSnapshotJob(
	portfolios PortfolioLister,
	service *rebalancing.Service,
	snapshots SnapshotSaver,
	audit AuditSink,
	eventManager *events.Manager,
	log zerolog.Logger,
) *DriftSnapshotJob {
	return &DriftSnapshotJob{
		portfolios: portfolios,
		service:    service,
		snapshots:  snapshots,
		audit:      audit,
		events:     eventManager,
		log:        log.With().Str("job", "drift_snapshot").Logger(),
	}
}

// Name returns the job name
func (j *DriftSnapshotJob) Name() string { return "drift_snapshot" }

// Run snapshots every portfolio. A failure on one portfolio does not stop
// the sweep; the first error is reported after the rest have been tried.
func (j *DriftSnapshotJob) Run() error {
	portfolios, err := j.portfolios.GetAll()
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	var firstErr error
	for _, p := range portfolios {
		if err := j.snapshotOne(p); err != nil {
			j.log.Error().Err(err).Str("portfolio_id", p.ID).Msg("Snapshot failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (j *DriftSnapshotJob) snapshotOne(p domain.Portfolio) error {
	report, err := j.service.GetAllocation(p.ID)
	if err != nil {
		return err
	}
	if report == nil {
		return nil
	}

	drift, err := j.service.GetDrift(p.ID)
	if err != nil {
		return err
	}

	snapshot := allocation.Snapshot{
		PortfolioID: p.ID,
		CapturedAt:  report.AsOf,
		TotalValue:  report.TotalValue,
		Allocations: report.Classes,
	}
	if drift != nil {
		snapshot.Drift = drift.TotalDrift
		snapshot.ModelName = drift.ModelName
	}

	if err := j.snapshots.Save(snapshot); err != nil {
		return err
	}

	if drift != nil && drift.RebalanceNeeded {
		detail := map[string]interface{}{
			"portfolio_id": p.ID,
			"model":        drift.ModelName,
			"drift":        drift.TotalDrift,
			"threshold":    drift.Threshold,
		}
		if err := j.audit.Append(domain.AuditRebalanceSuggested, "scheduler", p.ClientID, detail); err != nil {
			j.log.Warn().Err(err).Str("portfolio_id", p.ID).Msg("Failed to append audit event")
		}
		j.events.Emit(events.RebalanceSuggested, "scheduler", detail)
	}

	return nil
}

// SnapshotPruner removes old allocation snapshots
type SnapshotPruner interface {
	Prune(olderThan time.Duration) (int64, error)
}

// SnapshotPruneJob trims snapshot history beyond the retention window
type SnapshotPruneJob struct {
	snapshots SnapshotPruner
	retention time.Duration
	log       zerolog.Logger
}

// NewSnapshotPruneJob creates a snapshot prune job
func NewSnapshotPruneJob(snapshots SnapshotPruner, retention time.Duration, log zerolog.Logger) *SnapshotPruneJob {
	return &SnapshotPruneJob{
		snapshots: snapshots,
		retention: retention,
		log:       log.With().Str("job", "snapshot_prune").Logger(),
	}
}

// Name returns the job name
func (j *SnapshotPruneJob) Name() string { return "snapshot_prune" }

// Run deletes snapshots older than the retention window
func (j *SnapshotPruneJob) Run() error {
	removed, err := j.snapshots.Prune(j.retention)
	if err != nil {
		return err
	}
	if removed > 0 {
		j.log.Info().Int64("removed", removed).Msg("Pruned allocation snapshots")
	}
	return nil
}

// Uploader ships the ledger database to remote storage
type Uploader interface {
	UploadLedger() error
}

// BackupJob uploads the ledger database to object storage
type BackupJob struct {
	uploader Uploader
}

// NewBackupJob creates a backup job
func NewBackupJob(uploader Uploader) *BackupJob {
	return &BackupJob{uploader: uploader}
}

// Name returns the job name
func (j *BackupJob) Name() string { return "ledger_backup" }

// Run uploads the current ledger database
func (j *BackupJob) Run() error {
	return j.uploader.UploadLedger()
}
