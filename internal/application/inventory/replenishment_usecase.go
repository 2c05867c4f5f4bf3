package inventory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-conciliacao/internal/application/dto"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

// ReplenishmentUseCase genera la lista de reposición de una unidad a partir de los lotes
// por debajo de su punto de reorden.
type ReplenishmentUseCase struct {
	lots     repository.StockLotRepository
	products repository.ProductReferenceRepository
}

// NewReplenishmentUseCase construye el caso de uso de reposición.
func NewReplenishmentUseCase(lots repository.StockLotRepository, products repository.ProductReferenceRepository) *ReplenishmentUseCase {
	return &ReplenishmentUseCase{lots: lots, products: products}
}

// GenerateReplenishmentList devuelve los lotes bajo punto de reorden con la cantidad
// sugerida de pedido, ordenados por déficit relativo (prioridad 1 = más urgente).
func (uc *ReplenishmentUseCase) GenerateReplenishmentList(ctx context.Context, unitID string) ([]dto.ReplenishmentSuggestionDTO, error) {
	lots, err := uc.lots.ListBelowReorderPoint(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return []dto.ReplenishmentSuggestionDTO{}, nil
	}

	names := map[string]string{}
	suggestions := make([]dto.ReplenishmentSuggestionDTO, 0, len(lots))
	for _, lot := range lots {
		name, ok := names[lot.ProductReferenceID]
		if !ok {
			if p, _ := uc.products.GetByID(ctx, lot.ProductReferenceID); p != nil {
				name = p.Name
			}
			names[lot.ProductReferenceID] = name
		}

		ideal := lot.MaxQuantity
		if !ideal.GreaterThan(lot.ReorderPoint) {
			ideal = lot.ReorderPoint.Mul(decimal.NewFromFloat(1.5))
		}
		suggested := ideal.Sub(decimal.Max(lot.Quantity, decimal.Zero))
		if suggested.IsNegative() {
			suggested = decimal.Zero
		}

		suggestions = append(suggestions, dto.ReplenishmentSuggestionDTO{
			LotID:              lot.ID,
			ProductReferenceID: lot.ProductReferenceID,
			ProductName:        name,
			LotCode:            lot.LotCode,
			CurrentStock:       lot.Quantity,
			ReorderPoint:       lot.ReorderPoint,
			IdealStock:         ideal,
			SuggestedOrderQty:  suggested,
			UnitValue:          lot.UnitValue,
			EstimatedOrderCost: suggested.Mul(lot.UnitValue).Round(2),
		})
	}

	// mayor déficit relativo primero; empate por déficit absoluto
	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		ra, rb := deficitRatio(a), deficitRatio(b)
		if !ra.Equal(rb) {
			return ra.GreaterThan(rb)
		}
		return a.ReorderPoint.Sub(a.CurrentStock).GreaterThan(b.ReorderPoint.Sub(b.CurrentStock))
	})
	for i := range suggestions {
		suggestions[i].Priority = i + 1
	}
	return suggestions, nil
}

func deficitRatio(s dto.ReplenishmentSuggestionDTO) decimal.Decimal {
	if !s.ReorderPoint.IsPositive() {
		return decimal.Zero
	}
	return s.ReorderPoint.Sub(s.CurrentStock).Div(s.ReorderPoint)
}
