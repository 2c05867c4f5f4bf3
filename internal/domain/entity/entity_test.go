package entity_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// ── Import ──

func TestImport_CicloCompleto(t *testing.T) {
	imp := entity.NewImport("imp-1", "unit-1", "user-1", "", "nota.xml", t0)
	assert.Equal(t, entity.ProcessingPending, imp.Status)

	require.NoError(t, imp.Start(t0))
	require.NoError(t, imp.BeginMutation(t0))
	require.NoError(t, imp.Complete(t0.Add(time.Second)))
	assert.Equal(t, entity.ProcessingDone, imp.Status)
	assert.NotNil(t, imp.StartedAt)
	assert.NotNil(t, imp.FinishedAt)

	assert.ErrorIs(t, imp.Start(t0), domain.ErrInvalidTransition, "un estado terminal no vuelve atrás")
	assert.ErrorIs(t, imp.Cancel(t0), domain.ErrInvalidTransition)
}

func TestImport_FailRegistraEtapa(t *testing.T) {
	imp := entity.NewImport("imp-1", "unit-1", "user-1", "", "nota.xml", t0)
	require.NoError(t, imp.Start(t0))
	require.NoError(t, imp.Fail("parse", errors.New("xml inválido"), t0))

	assert.Equal(t, entity.ProcessingError, imp.Status)
	assert.Equal(t, "parse", imp.Stage)
	assert.Equal(t, "[parse] xml inválido", imp.ErrorSummary())
}

func TestImport_RequestCancel(t *testing.T) {
	t.Run("pendiente pasa a CANCELLED", func(t *testing.T) {
		imp := entity.NewImport("imp-1", "unit-1", "user-1", "", "nota.xml", t0)
		require.NoError(t, imp.RequestCancel(t0, time.Time{}))
		assert.Equal(t, entity.ProcessingCancelled, imp.Status)
		assert.ErrorIs(t, imp.Start(t0), domain.ErrImportCancelled)
	})

	t.Run("en proceso solo marca la solicitud", func(t *testing.T) {
		imp := entity.NewImport("imp-1", "unit-1", "user-1", "", "nota.xml", t0)
		require.NoError(t, imp.Start(t0))
		require.NoError(t, imp.RequestCancel(t0, time.Time{}))
		assert.Equal(t, entity.ProcessingRunning, imp.Status)
		assert.True(t, imp.CancelRequested)
		assert.ErrorIs(t, imp.BeginMutation(t0), domain.ErrImportCancelled)
	})

	t.Run("con mutación iniciada se rechaza", func(t *testing.T) {
		imp := entity.NewImport("imp-1", "unit-1", "user-1", "", "nota.xml", t0)
		require.NoError(t, imp.Start(t0))
		require.NoError(t, imp.BeginMutation(t0))
		assert.ErrorIs(t, imp.RequestCancel(t0, time.Time{}), domain.ErrInvalidTransition)
		assert.ErrorIs(t, imp.Cancel(t0), domain.ErrInvalidTransition)
	})

	t.Run("en proceso sin actividad se finaliza", func(t *testing.T) {
		imp := entity.NewImport("imp-1", "unit-1", "user-1", "", "nota.xml", t0)
		require.NoError(t, imp.Start(t0))
		later := t0.Add(time.Hour)
		require.NoError(t, imp.RequestCancel(later, t0.Add(-time.Minute)), "actividad reciente")
		assert.Equal(t, entity.ProcessingRunning, imp.Status)

		require.NoError(t, imp.RequestCancel(later, later.Add(-30*time.Minute)))
		assert.Equal(t, entity.ProcessingCancelled, imp.Status)
		assert.ErrorIs(t, imp.BeginMutation(later), domain.ErrInvalidTransition)
	})
}

func TestImport_AdvanceCountersMonotono(t *testing.T) {
	imp := entity.NewImport("imp-1", "unit-1", "user-1", "", "nota.xml", t0)
	imp.AdvanceCounters(entity.ImportCounters{Total: 3, Processed: 2, Succeeded: 2})
	imp.AdvanceCounters(entity.ImportCounters{Processed: 1})
	assert.Equal(t, entity.ImportCounters{Total: 3, Processed: 2, Succeeded: 2}, imp.Counters)
}

// ── Batch ──

func child(status string, c entity.ImportCounters) *entity.Import {
	return &entity.Import{Status: status, Counters: c}
}

func TestBatch_Aggregate(t *testing.T) {
	b := entity.NewBatch("b-1", "unit-1", "user-1", "", 3, t0)

	b.Aggregate([]*entity.Import{
		child(entity.ProcessingDone, entity.ImportCounters{Total: 2, Processed: 2, Succeeded: 2}),
		child(entity.ProcessingRunning, entity.ImportCounters{Total: 1}),
		child(entity.ProcessingPending, entity.ImportCounters{}),
	}, t0)
	assert.Equal(t, entity.ProcessingRunning, b.Status)
	assert.Equal(t, 1, b.ImportsDone)
	assert.Equal(t, 3, b.Items.Total)

	b.Aggregate([]*entity.Import{
		child(entity.ProcessingDone, entity.ImportCounters{Total: 2, Processed: 2, Succeeded: 2}),
		child(entity.ProcessingError, entity.ImportCounters{Total: 1, Processed: 1, Failed: 1}),
		child(entity.ProcessingCancelled, entity.ImportCounters{}),
	}, t0)
	assert.Equal(t, entity.ProcessingDone, b.Status, "sin cancelación pedida el lote termina DONE")
	assert.Equal(t, 1, b.ImportsFailed)
	assert.Equal(t, 1, b.ImportsCancelled)
	assert.NotNil(t, b.FinishedAt)
}

func TestBatch_AggregateCancelado(t *testing.T) {
	b := entity.NewBatch("b-1", "unit-1", "user-1", "", 2, t0)
	b.CancelRequested = true
	b.Aggregate([]*entity.Import{
		child(entity.ProcessingDone, entity.ImportCounters{Total: 1, Processed: 1, Succeeded: 1}),
		child(entity.ProcessingCancelled, entity.ImportCounters{}),
	}, t0)
	assert.Equal(t, entity.ProcessingCancelled, b.Status)

	// un lote terminal no cambia de estado
	b.Aggregate([]*entity.Import{child(entity.ProcessingRunning, entity.ImportCounters{})}, t0)
	assert.Equal(t, entity.ProcessingCancelled, b.Status)
}

func TestBatch_Abort(t *testing.T) {
	b := entity.NewBatch("b-1", "unit-1", "user-1", "", 3, t0)
	require.NoError(t, b.Abort(t0))
	assert.Equal(t, entity.ProcessingCancelled, b.Status)
	assert.True(t, b.CancelRequested)
	assert.NotNil(t, b.FinishedAt)
	require.NoError(t, b.Abort(t0), "idempotente")

	done := entity.NewBatch("b-2", "unit-1", "user-1", "", 1, t0)
	done.Aggregate([]*entity.Import{child(entity.ProcessingDone, entity.ImportCounters{})}, t0)
	assert.ErrorIs(t, done.Abort(t0), domain.ErrInvalidTransition)
}

// ── Inconsistency ──

func TestInconsistency_Transiciones(t *testing.T) {
	inc := &entity.Inconsistency{Audit: entity.Audit{ID: "inc-1"}, Status: entity.InconsistencyPending}

	require.NoError(t, inc.TransitionTo(entity.InconsistencyUnderReview, "sup-1", "", t0))
	assert.Nil(t, inc.ResolvedAt)
	require.NoError(t, inc.TransitionTo(entity.InconsistencyResolved, "sup-1", "precio confirmado", t0))
	assert.Equal(t, "precio confirmado", inc.ResolutionNote)
	assert.NotNil(t, inc.ResolvedAt)

	err := inc.TransitionTo(entity.InconsistencyDismissed, "sup-1", "", t0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, entity.InconsistencyResolved, inc.Status)
}

// ── Supplier / binding ──

func TestSupplier_MergeEmpty(t *testing.T) {
	s := &entity.Supplier{TaxID: "11222333000181", LegalName: "DISTRIBUIDORA ORIGINAL"}
	changed := s.MergeEmpty(entity.Supplier{LegalName: "OTRO NOMBRE", City: "SAO PAULO", Phone: "+551133334444"})

	assert.True(t, changed)
	assert.Equal(t, "DISTRIBUIDORA ORIGINAL", s.LegalName, "los campos existentes no se sobrescriben")
	assert.Equal(t, "SAO PAULO", s.City)
	assert.Equal(t, "+551133334444", s.Phone)

	assert.False(t, s.MergeEmpty(entity.Supplier{City: "RIO"}))
}

func TestBinding_RecordPurchaseIgnoraFechasAnteriores(t *testing.T) {
	b := &entity.ProductSupplierBinding{}
	b.RecordPurchase(decimal.RequireFromString("10"), t0, t0)
	b.RecordPurchase(decimal.RequireFromString("8"), t0.Add(-24*time.Hour), t0)
	assert.True(t, decimal.RequireFromString("10").Equal(b.LastPurchasePrice))

	b.RecordPurchase(decimal.RequireFromString("12"), t0.Add(24*time.Hour), t0)
	assert.True(t, decimal.RequireFromString("12").Equal(b.LastPurchasePrice))
}

func TestProductNaturalKey(t *testing.T) {
	assert.Equal(t, "7891234567895", entity.ProductNaturalKey(" 7891234567895 ", "P1"))
	assert.Equal(t, "COD:P1", entity.ProductNaturalKey("", " P1 "))
}

func TestStockLot_NeedsReplenishment(t *testing.T) {
	l := &entity.StockLot{Quantity: decimal.NewFromInt(4), ReorderPoint: decimal.NewFromInt(5)}
	assert.True(t, l.NeedsReplenishment())
	l.Quantity = decimal.NewFromInt(5)
	assert.False(t, l.NeedsReplenishment())
	l.ReorderPoint = decimal.Zero
	assert.False(t, l.NeedsReplenishment(), "sin punto de reposición no hay sugerencia")
}
