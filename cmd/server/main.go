// Package main is the entry point for the Steward order and portfolio
// engine. It validates and executes client orders against a suitability,
// cash, and concentration rulebook, tracks portfolio allocations against
// risk-matched model portfolios, and keeps an append-only audit trail.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/backup"
	"github.com/steward-fi/steward/internal/clients/pricefeed"
	"github.com/steward-fi/steward/internal/config"
	"github.com/steward-fi/steward/internal/database"
	"github.com/steward-fi/steward/internal/events"
	"github.com/steward-fi/steward/internal/modules/allocation"
	ledgermod "github.com/steward-fi/steward/internal/modules/ledger"
	"github.com/steward-fi/steward/internal/modules/orders"
	portfoliomod "github.com/steward-fi/steward/internal/modules/portfolio"
	"github.com/steward-fi/steward/internal/modules/rebalancing"
	universemod "github.com/steward-fi/steward/internal/modules/universe"
	"github.com/steward-fi/steward/internal/scheduler"
	"github.com/steward-fi/steward/internal/server"
	"github.com/steward-fi/steward/internal/worker"
	"github.com/steward-fi/steward/pkg/logger"
)

// snapshotRetention is how long allocation snapshots are kept in the cache
const snapshotRetention = 90 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Steward")

	// Three databases with different durability profiles: the universe is
	// reference data, the ledger is the financial source of truth, the
	// cache holds ephemeral snapshots.
	universeDB := mustOpen(log, cfg.DataDir, "universe", database.ProfileStandard)
	defer universeDB.Close()
	ledgerDB := mustOpen(log, cfg.DataDir, "ledger", database.ProfileLedger)
	defer ledgerDB.Close()
	cacheDB := mustOpen(log, cfg.DataDir, "cache", database.ProfileCache)
	defer cacheDB.Close()

	// Repositories
	instruments := universemod.NewInstrumentRepository(universeDB.Conn(), log)
	profiles := universemod.NewRiskProfileRepository(universeDB.Conn(), log)
	models := universemod.NewModelPortfolioRepository(universeDB.Conn(), log)
	portfolios := portfoliomod.NewPortfolioRepository(ledgerDB.Conn(), log)
	holdings := portfoliomod.NewHoldingRepository(ledgerDB.Conn(), log)
	transactions := ledgermod.NewTransactionRepository(ledgerDB.Conn(), log)
	audit := ledgermod.NewAuditRepository(ledgerDB.Conn(), log)
	orderRepo := orders.NewOrderRepository(ledgerDB.Conn(), log)
	snapshots := allocation.NewSnapshotRepository(cacheDB.Conn(), log)

	if err := models.SeedDefaults(); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed model portfolios")
	}

	// Events fan out to the websocket stream and logs
	eventManager := events.NewManager(log)
	eventStream := server.NewEventStreamHandler(log)
	eventManager.Subscribe(eventStream)

	// Order execution pipeline: executor settles fills, the worker drives
	// it from a buffered queue
	executor := orders.NewExecutor(ledgerDB.Conn(), orderRepo, portfolios, portfolios, holdings, transactions, instruments, audit, eventManager, log)
	fillWorker := worker.New(executor, cfg.FillQueueSize, log)
	go fillWorker.Run()

	// Orders accepted before an earlier shutdown finished are still
	// PENDING; re-enqueue them so they settle.
	recoverPending(orderRepo, fillWorker, log)

	engine := orders.NewEngine(orderRepo, portfolios, holdings, instruments, profiles, audit, eventManager, fillWorker, cfg.ConcentrationLimitPct, log)
	rebalanceService := rebalancing.NewService(portfolios, holdings, instruments, profiles, models, cfg.DriftThresholdPct, log)

	var priceSource universemod.PriceSource
	if cfg.PriceFeedURL != "" {
		priceSource = pricefeed.NewClient(cfg.PriceFeedURL, log)
	}
	priceSync := universemod.NewPriceSyncService(instruments, priceSource, eventManager, log)

	sched := scheduler.New(log)
	registerJobs(sched, cfg, priceSync, portfolios, rebalanceService, snapshots, audit, eventManager, ledgerDB, log)
	sched.Start()

	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Databases: map[string]*database.DB{
			"universe": universeDB,
			"ledger":   ledgerDB,
			"cache":    cacheDB,
		},
		UniverseHandlers:    universemod.NewHandlers(instruments, profiles, models, priceSync, log),
		PortfolioHandlers:   portfoliomod.NewHandlers(portfolios, holdings, log),
		OrderHandlers:       orders.NewHandlers(engine, orderRepo, log),
		RebalancingHandlers: rebalancing.NewHandlers(rebalanceService, snapshots, log),
		LedgerHandlers:      ledgermod.NewHandlers(transactions, audit, log),
		EventStream:         eventStream,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Block until SIGINT or SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	// Stop intake first, then drain: the scheduler stops scheduling new
	// work, the worker settles every accepted order before exiting, and
	// the HTTP server finishes in-flight requests.
	sched.Stop()
	fillWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func mustOpen(log zerolog.Logger, dataDir, name string, profile database.DatabaseProfile) *database.DB {
	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("Failed to migrate database")
	}
	return db
}

// recoverPending re-enqueues orders left PENDING by a previous run
func recoverPending(orderRepo *orders.OrderRepository, fillWorker *worker.Worker, log zerolog.Logger) {
	pending, err := orderRepo.GetPending()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load pending orders for recovery")
		return
	}

	for _, order := range pending {
		if err := fillWorker.Enqueue(order.ID); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("Failed to re-enqueue pending order")
		}
	}

	if len(pending) > 0 {
		log.Info().Int("count", len(pending)).Msg("Re-enqueued pending orders from previous run")
	}
}

func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	priceSync *universemod.PriceSyncService,
	portfolios *portfoliomod.PortfolioRepository,
	rebalanceService *rebalancing.Service,
	snapshots *allocation.SnapshotRepository,
	audit *ledgermod.AuditRepository,
	eventManager *events.Manager,
	ledgerDB *database.DB,
	log zerolog.Logger,
) {
	if cfg.PriceFeedURL != "" {
		if err := sched.AddJob("@every 15m", scheduler.NewPriceRefreshJob(priceSync)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register price refresh job")
		}
	}

	driftJob := scheduler.NewDriftSnapshotJob(portfolios, rebalanceService, snapshots, audit, eventManager, log)
	if err := sched.AddJob("0 0 18 * * *", driftJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register drift snapshot job")
	}

	pruneJob := scheduler.NewSnapshotPruneJob(snapshots, snapshotRetention, log)
	if err := sched.AddJob("@daily", pruneJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register snapshot prune job")
	}

	if cfg.BackupEnabled() {
		backupSvc, err := backup.New(ledgerDB, filepath.Join(cfg.DataDir, "backups"), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup service")
		}
		if err := sched.AddJob("@hourly", scheduler.NewBackupJob(backupSvc)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	}
}
