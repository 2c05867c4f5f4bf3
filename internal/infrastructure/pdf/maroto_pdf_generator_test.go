package pdf

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-conciliacao/internal/application/importer"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

func TestFormatCNPJ(t *testing.T) {
	assert.Equal(t, "11.222.333/0001-81", formatCNPJ("11222333000181"))
	assert.Equal(t, "—", formatCNPJ(""))
	assert.Equal(t, "123", formatCNPJ("123"))
}

func TestGenerateImportReport(t *testing.T) {
	now := time.Now()
	imp := entity.NewImport("imp-1", "unit-1", "user-1", "", "nota.xml", now)
	imp.Status = entity.ProcessingDone
	imp.AccessKey = "35240111222333000181550010000012341123456784"
	imp.Counters = entity.ImportCounters{Total: 1, Processed: 1, Succeeded: 1}

	report := &importer.ImportReport{
		Import:  imp,
		Invoice: &entity.Invoice{Number: "1234", Series: "1", EmittedAt: now},
		Unit:    &entity.Unit{Name: "Farmacia Centro", TaxID: "12345678000195"},
		Adjustments: []*entity.StockAdjustment{{
			StockLotID:       "lot-0001-abcdef",
			Reason:           entity.AdjustmentReasonPurchase,
			PreviousQuantity: decimal.Zero,
			Delta:            decimal.NewFromInt(10),
			NewQuantity:      decimal.NewFromInt(10),
		}},
		Inconsistencies: []*entity.Inconsistency{{
			Type:        entity.InconsistencyPriceDivergence,
			Severity:    entity.SeverityMedium,
			Description: "precio 20% sobre la última compra",
			LineNumber:  1,
		}},
	}

	out, err := NewMarotoPDFGenerator().GenerateImportReport(context.Background(), report)
	require.NoError(t, err)
	assert.True(t, len(out) > 4 && string(out[:4]) == "%PDF", "debe producir un PDF")
}
