package reconciliation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-conciliacao/internal/application/detector"
	"github.com/jhoicas/nfe-conciliacao/internal/application/reconciliation"
	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	domnfe "github.com/jhoicas/nfe-conciliacao/internal/domain/nfe"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/memory"
)

// ── Helpers ──

const unitID = "unit-1"

type fixture struct {
	store    *memory.Store
	engine   *reconciliation.Engine
	lots     *memory.LotRepo
	adjust   *memory.AdjustmentRepo
	history  *memory.ValueHistoryRepo
	invoices *memory.InvoiceRepo
	binding  *entity.ProductSupplierBinding
}

func newFixture(t *testing.T, opts detector.Options) *fixture {
	t.Helper()
	store := memory.NewStore()
	binding, _, err := memory.NewBindingRepository(store).CreateIfAbsent(context.Background(), &entity.ProductSupplierBinding{
		Audit:              entity.Audit{ID: "bind-1", Active: true},
		ProductReferenceID: "prod-1",
		SupplierID:         "sup-1",
	})
	require.NoError(t, err)
	return &fixture{
		store:    store,
		engine:   reconciliation.NewEngine(memory.NewTxRunner(store), memory.NewLotLocker(), detector.DefaultRuleSet(opts), zerolog.Nop()),
		lots:     memory.NewLotRepository(store),
		adjust:   memory.NewAdjustmentRepository(store),
		history:  memory.NewValueHistoryRepository(store),
		invoices: memory.NewInvoiceRepository(store),
		binding:  binding,
	}
}

func (f *fixture) line(n int, lot, qty, value string) reconciliation.Line {
	return reconciliation.Line{
		Item: domnfe.LineItem{
			Number:    n,
			Name:      "PARACETAMOL 500MG",
			LotCode:   lot,
			Quantity:  decimal.RequireFromString(qty),
			UnitValue: decimal.RequireFromString(value),
		},
		ProductID: "prod-1",
		Binding:   f.binding,
	}
}

func (f *fixture) request(kind, importID string, lines ...reconciliation.Line) reconciliation.Request {
	return reconciliation.Request{
		ImportID:      importID,
		UnitID:        unitID,
		ActorID:       "user-1",
		OperationKind: kind,
		Invoice: &entity.Invoice{
			Audit:     entity.Audit{ID: "inv-" + importID, Active: true},
			AccessKey: "key-" + importID,
			Number:    importID,
			UnitID:    unitID,
			EmittedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		},
		Lines: lines,
	}
}

func (f *fixture) lot(t *testing.T, code string) *entity.StockLot {
	t.Helper()
	l, err := f.lots.GetForUpdate(context.Background(), entity.LotKey{BindingID: f.binding.ID, UnitID: unitID, LotCode: code})
	require.NoError(t, err)
	return l
}

// ── Tests ──

func TestReconcile_CompraCreaLoteYAuditoria(t *testing.T) {
	f := newFixture(t, detector.Options{})
	var progress []reconciliation.Progress
	req := f.request(entity.OperationPurchase, "imp-1", f.line(1, "L1", "10", "2.50"), f.line(2, "L1", "5", "2.50"))
	req.OnProgress = func(p reconciliation.Progress) { progress = append(progress, p) }

	res, err := f.engine.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Adjustments, 2)
	assert.Len(t, res.ValueHistory, 1, "solo el primer ítem cambia el valor unitario")
	assert.Len(t, res.Lots, 1)
	assert.Equal(t, reconciliation.Progress{Processed: 2, Succeeded: 2}, res.Progress)
	assert.Equal(t, []reconciliation.Progress{{Processed: 1, Succeeded: 1}, {Processed: 2, Succeeded: 2}}, progress)

	lot := f.lot(t, "L1")
	require.NotNil(t, lot)
	assert.Equal(t, "15", lot.Quantity.String())
	assert.Equal(t, "37.5", lot.TotalValue.String())

	// ajustes encadenados: el nuevo de uno es el anterior del siguiente
	assert.True(t, res.Adjustments[0].NewQuantity.Equal(res.Adjustments[1].PreviousQuantity))
	assert.Equal(t, "inv-imp-1", res.Adjustments[0].InvoiceID)

	inv, err := f.invoices.GetByAccessKey(context.Background(), "key-imp-1")
	require.NoError(t, err)
	assert.NotNil(t, inv)

	binding, err := memory.NewBindingRepository(f.store).GetByID(context.Background(), f.binding.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.5", binding.LastPurchasePrice.String())
}

func TestReconcile_VentaYCambioDeValor(t *testing.T) {
	f := newFixture(t, detector.Options{})
	_, err := f.engine.Reconcile(context.Background(), f.request(entity.OperationPurchase, "imp-1", f.line(1, "L1", "20", "3.00")))
	require.NoError(t, err)

	res, err := f.engine.Reconcile(context.Background(), f.request(entity.OperationSale, "imp-2", f.line(1, "L1", "8", "3.50")))
	require.NoError(t, err)
	require.Len(t, res.Adjustments, 1)
	assert.Equal(t, "-8", res.Adjustments[0].Delta.String())
	assert.Equal(t, entity.AdjustmentReasonSale, res.Adjustments[0].Reason)
	require.Len(t, res.ValueHistory, 1)
	assert.Equal(t, "3", res.ValueHistory[0].PreviousValue.String())
	assert.Equal(t, "3.5", res.ValueHistory[0].NewValue.String())

	lot := f.lot(t, "L1")
	assert.Equal(t, "12", lot.Quantity.String())
	assert.Equal(t, "42", lot.TotalValue.String())

	// una venta no toca el precio de compra del vínculo
	binding, err := memory.NewBindingRepository(f.store).GetByID(context.Background(), f.binding.ID)
	require.NoError(t, err)
	assert.Equal(t, "3", binding.LastPurchasePrice.String())
}

func TestReconcile_StockNegativoBloqueanteRevierte(t *testing.T) {
	f := newFixture(t, detector.Options{BlockOnNegativeStock: true})
	_, err := f.engine.Reconcile(context.Background(), f.request(entity.OperationPurchase, "imp-1",
		f.line(1, "L1", "5", "1.00"), f.line(2, "L2", "1", "1.00")))
	require.NoError(t, err)
	before := f.store.Counts()

	_, err = f.engine.Reconcile(context.Background(), f.request(entity.OperationSale, "imp-2",
		f.line(1, "L1", "2", "1.00"), f.line(2, "L2", "3", "1.00")))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	se, ok := reconciliation.IsStockError(err)
	require.True(t, ok)
	assert.Equal(t, entity.InconsistencyInsufficientStock, se.Finding.Type)
	assert.Equal(t, 2, se.Finding.LineNumber)

	assert.Equal(t, before, f.store.Counts())
	assert.Equal(t, "5", f.lot(t, "L1").Quantity.String())
	inv, err := f.invoices.GetByAccessKey(context.Background(), "key-imp-2")
	require.NoError(t, err)
	assert.Nil(t, inv, "la nota se revierte con el resto")
}

func TestReconcile_StockNegativoInformativo(t *testing.T) {
	f := newFixture(t, detector.Options{})
	_, err := f.engine.Reconcile(context.Background(), f.request(entity.OperationPurchase, "imp-1", f.line(1, "L1", "2", "1.00")))
	require.NoError(t, err)

	res, err := f.engine.Reconcile(context.Background(), f.request(entity.OperationSale, "imp-2", f.line(1, "L1", "3", "1.00")))
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, entity.InconsistencyInsufficientStock, res.Findings[0].Type)
	assert.False(t, res.Findings[0].Blocking)

	require.Len(t, res.Adjustments, 1)
	assert.Equal(t, "-3", res.Adjustments[0].Delta.String())
	assert.Equal(t, "-1", f.lot(t, "L1").Quantity.String())
}

func TestReconcile_VentaSinLoteInformativa(t *testing.T) {
	f := newFixture(t, detector.Options{})
	req := f.request(entity.OperationSale, "imp-1", f.line(1, "NOPE", "1", "1.00"))
	req.Lines[0].Binding = nil

	res, err := f.engine.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, reconciliation.Progress{Processed: 1, Failed: 1}, res.Progress)
	require.Len(t, res.Findings, 1)
	assert.False(t, res.Findings[0].Blocking)
	assert.Empty(t, res.Adjustments)
}

func TestReconcile_NotaDuplicada(t *testing.T) {
	f := newFixture(t, detector.Options{})
	_, err := f.engine.Reconcile(context.Background(), f.request(entity.OperationPurchase, "imp-1", f.line(1, "L1", "5", "1.00")))
	require.NoError(t, err)

	req := f.request(entity.OperationPurchase, "imp-2", f.line(1, "L1", "5", "1.00"))
	req.Invoice.AccessKey = "key-imp-1"
	_, err = f.engine.Reconcile(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrDuplicateDocument)
	assert.Equal(t, "5", f.lot(t, "L1").Quantity.String())
}

func TestReconcile_BeforeMutationDetiene(t *testing.T) {
	f := newFixture(t, detector.Options{})
	req := f.request(entity.OperationPurchase, "imp-1", f.line(1, "L1", "5", "1.00"))
	req.BeforeMutation = func(context.Context) error { return domain.ErrImportCancelled }

	_, err := f.engine.Reconcile(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrImportCancelled)
	assert.Zero(t, f.store.Counts().Lots)
	assert.Zero(t, f.store.Counts().Invoices)
}

func TestReconcile_CancelacionTrasIniciarMutacion(t *testing.T) {
	f := newFixture(t, detector.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	req := f.request(entity.OperationPurchase, "imp-1", f.line(1, "L1", "5", "1.00"), f.line(2, "L2", "5", "1.00"))
	req.BeforeMutation = func(context.Context) error {
		cancel()
		return nil
	}

	res, err := f.engine.Reconcile(ctx, req)
	require.NoError(t, err, "la unidad de trabajo confirma completa")
	assert.Equal(t, 2, res.Progress.Succeeded)
	assert.Equal(t, 2, f.store.Counts().Lots)
}

func TestReconcile_OperacionInvalida(t *testing.T) {
	f := newFixture(t, detector.Options{})
	_, err := f.engine.Reconcile(context.Background(), f.request("DEVOLUCION", "imp-1", f.line(1, "L1", "5", "1.00")))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestReconcile_CantidadOValorNoPositivo(t *testing.T) {
	f := newFixture(t, detector.Options{})
	_, err := f.engine.Reconcile(context.Background(), f.request(entity.OperationPurchase, "imp-1", f.line(1, "L1", "100", "2.00")))
	require.NoError(t, err)
	before := f.store.Counts()

	for name, line := range map[string]reconciliation.Line{
		"cantidad negativa": f.line(1, "L1", "-5", "2.00"),
		"cantidad cero":     f.line(1, "L1", "0", "2.00"),
		"valor cero":        f.line(1, "L1", "5", "0"),
	} {
		_, err := f.engine.Reconcile(context.Background(), f.request(entity.OperationPurchase, "imp-2", line))
		assert.ErrorIs(t, err, domain.ErrInvalidInput, name)
	}
	assert.Equal(t, before, f.store.Counts())
	lot := f.lot(t, "L1")
	assert.Equal(t, "100", lot.Quantity.String())
	assert.Equal(t, "2", lot.UnitValue.String())
}
