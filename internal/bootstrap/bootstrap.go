// Package bootstrap arma el grafo de servicios a partir de la configuración. Lo comparten
// el servidor HTTP y el importador por línea de comandos.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jhoicas/nfe-conciliacao/internal/application/detector"
	"github.com/jhoicas/nfe-conciliacao/internal/application/importer"
	"github.com/jhoicas/nfe-conciliacao/internal/application/inconsistency"
	"github.com/jhoicas/nfe-conciliacao/internal/application/inventory"
	"github.com/jhoicas/nfe-conciliacao/internal/application/reconciliation"
	"github.com/jhoicas/nfe-conciliacao/internal/application/resolver"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/memory"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/nfe"
	infrapdf "github.com/jhoicas/nfe-conciliacao/internal/infrastructure/pdf"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/postgres"
	infraredis "github.com/jhoicas/nfe-conciliacao/internal/infrastructure/redis"
	"github.com/jhoicas/nfe-conciliacao/pkg/config"
)

// Storage valores de APP_STORAGE.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Services casos de uso listos para usar.
type Services struct {
	Imports         *importer.ImportService
	Batches         *importer.BatchService
	Reports         *importer.ReportUseCase
	Inconsistencies *inconsistency.ReviewUseCase
	Stock           *inventory.StockUseCase
	Replenishment   *inventory.ReplenishmentUseCase
	Units           repository.UnitRepository
	Dispatcher      *importer.NotificationDispatcher

	// Memory solo con APP_STORAGE=memory; permite sembrar unidades.
	Memory *memory.Store
	// Pool solo con APP_STORAGE=postgres.
	Pool *pgxpool.Pool

	closers []func()
}

// Close espera los lotes y notificaciones en curso y libera conexiones.
func (s *Services) Close() {
	if s.Batches != nil {
		s.Batches.Wait()
	}
	s.Dispatcher.Wait()
	s.release()
}

func (s *Services) release() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

type stack struct {
	suppliers   repository.SupplierRepository
	products    repository.ProductReferenceRepository
	bindings    repository.BindingRepository
	lots        repository.StockLotRepository
	adjustments repository.StockAdjustmentRepository
	history     repository.ValueHistoryRepository
	invoices    repository.InvoiceRepository
	imports     repository.ImportRepository
	batches     repository.BatchRepository
	incs        repository.InconsistencyRepository
	units       repository.UnitRepository
	users       repository.UserRepository
	tx          reconciliation.TxRunner
}

// Build construye los servicios según cfg.App.Storage y la presencia de Redis.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Services, error) {
	rules := detector.DefaultRuleSet(detector.Options{
		TotalTolerance:       cfg.Import.TotalTolerance,
		PriceDivergencePct:   cfg.Import.PriceDivergencePct,
		BlockOnNegativeStock: cfg.Import.BlockOnNegativeStock(),
	})
	if cfg.Import.RulesFile != "" {
		if err := detector.LoadRuleFile(cfg.Import.RulesFile, rules); err != nil {
			return nil, fmt.Errorf("reglas %s: %w", cfg.Import.RulesFile, err)
		}
	}

	out := &Services{}
	st, err := out.storage(ctx, cfg, log)
	if err != nil {
		out.release()
		return nil, err
	}

	var (
		locker   reconciliation.LotLocker = memory.NewLotLocker()
		notifier importer.Notifier        = importer.LogNotifier{Log: log.With().Str("component", "notifier").Logger()}
	)
	if cfg.Redis.Enabled() {
		rdb, err := infraredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			out.release()
			return nil, err
		}
		out.closers = append(out.closers, func() { _ = rdb.Close() })
		locker = infraredis.NewLotLocker(rdb, cfg.Import.LockTTL(), log.With().Str("component", "lot_locker").Logger())
		notifier = infraredis.NewNotifier(rdb, cfg.Redis.NotifyChannel)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis habilitado: locks distribuidos y notificaciones")
	}

	res := resolver.NewResolver(st.suppliers, st.products, st.bindings, st.lots, st.invoices)
	engine := reconciliation.NewEngine(st.tx, locker, rules, log.With().Str("component", "reconciliation").Logger())
	out.Dispatcher = importer.NewNotificationDispatcher(st.users, notifier, log.With().Str("component", "notifications").Logger())
	out.Imports = importer.NewImportService(
		nfe.NewParser(), res, detector.NewDetector(rules), engine,
		importer.Repos{
			Imports:         st.imports,
			Invoices:        st.invoices,
			Inconsistencies: st.incs,
			Units:           st.units,
		},
		out.Dispatcher, cfg.Import.MaxFileBytes(), log.With().Str("component", "importer").Logger(),
	)
	out.Imports.SetStaleAfter(cfg.Import.StaleAfter())
	out.Batches = importer.NewBatchService(out.Imports, st.batches, st.imports, cfg.Import.BatchWorkers, log.With().Str("component", "batch").Logger())
	out.Reports = importer.NewReportUseCase(st.imports, st.invoices, st.units, st.incs, st.adjustments, infrapdf.NewMarotoPDFGenerator())
	out.Inconsistencies = inconsistency.NewReviewUseCase(st.incs, log.With().Str("component", "review").Logger())
	out.Stock = inventory.NewStockUseCase(st.lots, st.adjustments, st.history)
	out.Replenishment = inventory.NewReplenishmentUseCase(st.lots, st.products)
	out.Units = st.units
	return out, nil
}

func (s *Services) storage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stack, error) {
	switch cfg.App.Storage {
	case StorageMemory:
		store := memory.NewStore()
		s.Memory = store
		log.Warn().Msg("almacenamiento en memoria: los datos se pierden al reiniciar")
		return &stack{
			suppliers:   memory.NewSupplierRepository(store),
			products:    memory.NewProductRepository(store),
			bindings:    memory.NewBindingRepository(store),
			lots:        memory.NewLotRepository(store),
			adjustments: memory.NewAdjustmentRepository(store),
			history:     memory.NewValueHistoryRepository(store),
			invoices:    memory.NewInvoiceRepository(store),
			imports:     memory.NewImportRepository(store),
			batches:     memory.NewBatchRepository(store),
			incs:        memory.NewInconsistencyRepository(store),
			units:       memory.NewUnitRepository(store),
			users:       memory.NewUserRepository(store),
			tx:          memory.NewTxRunner(store),
		}, nil

	case StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		s.Pool = pool
		s.closers = append(s.closers, pool.Close)
		if cfg.DB.Migrate {
			if err := postgres.RunMigrations(ctx, pool, log); err != nil {
				return nil, err
			}
		}
		return &stack{
			suppliers:   postgres.NewSupplierRepository(pool),
			products:    postgres.NewProductReferenceRepository(pool),
			bindings:    postgres.NewBindingRepository(pool),
			lots:        postgres.NewStockLotRepository(pool),
			adjustments: postgres.NewAdjustmentRepository(pool),
			history:     postgres.NewValueHistoryRepository(pool),
			invoices:    postgres.NewInvoiceRepository(pool),
			imports:     postgres.NewImportRepository(pool),
			batches:     postgres.NewBatchRepository(pool),
			incs:        postgres.NewInconsistencyRepository(pool),
			units:       postgres.NewUnitRepository(pool),
			users:       postgres.NewUserRepository(pool),
			tx:          postgres.NewTxRunner(pool),
		}, nil
	}
	return nil, fmt.Errorf("almacenamiento desconocido %q", cfg.App.Storage)
}
