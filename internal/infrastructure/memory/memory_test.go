package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-conciliacao/internal/application/reconciliation"
	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/memory"
)

func newLot(id, bindingID string, qty int64) *entity.StockLot {
	return &entity.StockLot{
		Audit:              entity.Audit{ID: id, Active: true},
		BindingID:          bindingID,
		ProductReferenceID: "prod-1",
		UnitID:             "unit-1",
		LotCode:            "L1",
		Quantity:           decimal.NewFromInt(qty),
		ReorderPoint:       decimal.NewFromInt(10),
	}
}

// ── Unidad de trabajo ──

func TestTxRunner_CommitAplicaTodo(t *testing.T) {
	store := memory.NewStore()
	tx := memory.NewTxRunner(store)
	ctx := context.Background()

	err := tx.Run(ctx, func(repos reconciliation.TxRepos) error {
		require.NoError(t, repos.Invoices.Create(ctx, &entity.Invoice{Audit: entity.Audit{ID: "inv-1"}, AccessKey: "K1"}))
		require.NoError(t, repos.Lots.Create(ctx, newLot("lot-1", "b-1", 5)))
		got, err := repos.Lots.GetForUpdate(ctx, entity.LotKey{BindingID: "b-1", UnitID: "unit-1", LotCode: "L1"})
		require.NoError(t, err)
		require.NotNil(t, got, "la transacción ve sus propias escrituras")
		return repos.Adjustments.Create(ctx, &entity.StockAdjustment{Audit: entity.Audit{ID: "adj-1"}, StockLotID: "lot-1"})
	})
	require.NoError(t, err)

	c := store.Counts()
	assert.Equal(t, 1, c.Invoices)
	assert.Equal(t, 1, c.Lots)
	assert.Equal(t, 1, c.Adjustments)
}

func TestTxRunner_RollbackDescartaTodo(t *testing.T) {
	store := memory.NewStore()
	tx := memory.NewTxRunner(store)
	ctx := context.Background()
	boom := errors.New("falla simulada")

	err := tx.Run(ctx, func(repos reconciliation.TxRepos) error {
		_ = repos.Invoices.Create(ctx, &entity.Invoice{Audit: entity.Audit{ID: "inv-1"}, AccessKey: "K1"})
		_ = repos.Lots.Create(ctx, newLot("lot-1", "b-1", 5))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, memory.Snapshot{}, store.Counts(), "no debe quedar ninguna escritura")
}

func TestTxRunner_ChaveDuplicada(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, memory.NewInvoiceRepository(store).Create(ctx, &entity.Invoice{Audit: entity.Audit{ID: "inv-1"}, AccessKey: "K1"}))

	err := memory.NewTxRunner(store).Run(ctx, func(repos reconciliation.TxRepos) error {
		return repos.Invoices.Create(ctx, &entity.Invoice{Audit: entity.Audit{ID: "inv-2"}, AccessKey: "K1"})
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateDocument)
	assert.Equal(t, 1, store.Counts().Invoices)
}

func TestTxRunner_VinculoInexistenteNoEscribeNada(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := memory.NewTxRunner(store).Run(ctx, func(repos reconciliation.TxRepos) error {
		require.NoError(t, repos.Invoices.Create(ctx, &entity.Invoice{Audit: entity.Audit{ID: "inv-1"}, AccessKey: "K1"}))
		require.NoError(t, repos.Lots.Create(ctx, newLot("lot-1", "b-1", 5)))
		require.NoError(t, repos.Adjustments.Create(ctx, &entity.StockAdjustment{Audit: entity.Audit{ID: "adj-1"}, StockLotID: "lot-1"}))
		require.NoError(t, repos.ValueHistory.Create(ctx, &entity.ValueHistory{Audit: entity.Audit{ID: "vh-1"}, StockLotID: "lot-1"}))
		return repos.Bindings.UpdatePurchase(ctx, &entity.ProductSupplierBinding{Audit: entity.Audit{ID: "no-existe"}})
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, memory.Snapshot{}, store.Counts(), "el commit no debe quedar a medias")

	inv, _ := memory.NewInvoiceRepository(store).GetByAccessKey(ctx, "K1")
	assert.Nil(t, inv, "la chave sigue libre para un reintento")
}

// ── Consultas de stock ──

func TestLotRepo_ListBelowReorderPoint(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	repo := memory.NewLotRepository(store)

	low := newLot("lot-1", "b-1", 3)
	ok := newLot("lot-2", "b-2", 50)
	blocked := newLot("lot-3", "b-3", 1)
	blocked.Blocked = true
	for _, l := range []*entity.StockLot{low, ok, blocked} {
		require.NoError(t, repo.Create(ctx, l))
	}

	got, err := repo.ListBelowReorderPoint(ctx, "unit-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lot-1", got[0].ID)

	all, err := repo.ListByUnit(ctx, "unit-1", 2, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "lot-2", all[0].ID, "orden por cantidad descendente")
}

// ── Importaciones ──

func TestImportRepo_CancelacionCompareAndSet(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	repo := memory.NewImportRepository(store)
	now := time.Now()

	imp := entity.NewImport("imp-1", "unit-1", "user-1", "", "a.xml", now)
	require.NoError(t, imp.Start(now))
	require.NoError(t, repo.Create(ctx, imp))

	got, err := repo.RequestCancel(ctx, "imp-1", time.Time{})
	require.NoError(t, err)
	assert.True(t, got.CancelRequested)
	assert.Equal(t, entity.ProcessingRunning, got.Status)

	assert.ErrorIs(t, repo.BeginMutation(ctx, "imp-1"), domain.ErrImportCancelled)

	// una escritura con copia vieja no borra la marca
	require.NoError(t, repo.Update(ctx, imp))
	stored, err := repo.GetByID(ctx, "imp-1")
	require.NoError(t, err)
	assert.True(t, stored.CancelRequested)
}

func TestImportRepo_ProgresoMonotono(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	repo := memory.NewImportRepository(store)
	require.NoError(t, repo.Create(ctx, entity.NewImport("imp-1", "unit-1", "user-1", "", "a.xml", time.Now())))

	require.NoError(t, repo.UpdateProgress(ctx, "imp-1", entity.ImportCounters{Total: 3, Processed: 2, Succeeded: 2}))
	require.NoError(t, repo.UpdateProgress(ctx, "imp-1", entity.ImportCounters{Total: 3, Processed: 1, Succeeded: 1}))

	got, err := repo.GetByID(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Counters.Processed)
	assert.Equal(t, 2, got.Counters.Succeeded)
}

// ── Bloqueo por lote ──

func TestLotLocker_ExclusionMutua(t *testing.T) {
	locker := memory.NewLotLocker()
	ctx := context.Background()

	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, []string{"b|u|L1", "b|u|L2", "b|u|L1"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			maxActive = max(maxActive, active)
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestLotLocker_RespetaContexto(t *testing.T) {
	locker := memory.NewLotLocker()
	unlock, err := locker.Lock(context.Background(), []string{"k"})
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, []string{"k"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
