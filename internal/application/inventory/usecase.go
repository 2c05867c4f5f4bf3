// Package inventory consultas de stock por lote: existencias por unidad, traza de
// auditoría de un lote y lista de reposición.
package inventory

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/application/dto"
	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

// StockUseCase lecturas de lotes y su auditoría.
type StockUseCase struct {
	lots        repository.StockLotRepository
	adjustments repository.StockAdjustmentRepository
	history     repository.ValueHistoryRepository
}

// NewStockUseCase construye el caso de uso.
func NewStockUseCase(
	lots repository.StockLotRepository,
	adjustments repository.StockAdjustmentRepository,
	history repository.ValueHistoryRepository,
) *StockUseCase {
	return &StockUseCase{lots: lots, adjustments: adjustments, history: history}
}

// ListLots lotes de la unidad, mayor cantidad primero.
func (uc *StockUseCase) ListLots(ctx context.Context, unitID string, page dto.PageRequest) ([]dto.LotResponse, error) {
	if unitID == "" {
		return nil, domain.ErrInvalidInput
	}
	page.DefaultPage()
	lots, err := uc.lots.ListByUnit(ctx, unitID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.LotResponse, 0, len(lots))
	for _, l := range lots {
		out = append(out, dto.FromLot(l))
	}
	return out, nil
}

// LotAudit lote con todos sus ajustes e historial de valor. unitID restringe el acceso.
func (uc *StockUseCase) LotAudit(ctx context.Context, unitID, lotID string) (*dto.LotAuditResponse, error) {
	lot, err := uc.lots.GetByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, domain.ErrNotFound
	}
	if unitID != "" && lot.UnitID != unitID {
		return nil, domain.ErrForbidden
	}
	adjustments, err := uc.adjustments.ListByLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	history, err := uc.history.ListByLot(ctx, lotID)
	if err != nil {
		return nil, err
	}

	out := &dto.LotAuditResponse{
		Lot:          dto.FromLot(lot),
		Adjustments:  make([]dto.AdjustmentResponse, 0, len(adjustments)),
		ValueHistory: make([]dto.ValueChangeResponse, 0, len(history)),
	}
	for _, a := range adjustments {
		out.Adjustments = append(out.Adjustments, dto.FromAdjustment(a))
	}
	for _, h := range history {
		out.ValueHistory = append(out.ValueHistory, dto.FromValueHistory(h))
	}
	return out, nil
}
