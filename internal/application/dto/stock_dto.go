package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// LotResponse lote de stock.
type LotResponse struct {
	ID                 string          `json:"id"`
	BindingID          string          `json:"binding_id"`
	ProductReferenceID string          `json:"product_reference_id"`
	UnitID             string          `json:"unit_id"`
	LotCode            string          `json:"lot_code"`
	Quantity           decimal.Decimal `json:"quantity"`
	ReorderPoint       decimal.Decimal `json:"reorder_point"`
	UnitValue          decimal.Decimal `json:"unit_value"`
	TotalValue         decimal.Decimal `json:"total_value"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`
	Blocked            bool            `json:"blocked"`
	LastMovementAt     time.Time       `json:"last_movement_at"`
}

// AdjustmentResponse ajuste de stock.
type AdjustmentResponse struct {
	ID               string          `json:"id"`
	ImportID         string          `json:"import_id"`
	InvoiceID        string          `json:"invoice_id,omitempty"`
	PreviousQuantity decimal.Decimal `json:"previous_quantity"`
	NewQuantity      decimal.Decimal `json:"new_quantity"`
	Delta            decimal.Decimal `json:"delta"`
	Reason           string          `json:"reason"`
	ActorID          string          `json:"actor_id"`
	DocumentNumber   string          `json:"document_number,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// ValueChangeResponse cambio de valor unitario.
type ValueChangeResponse struct {
	ImportID      string          `json:"import_id"`
	PreviousValue decimal.Decimal `json:"previous_value"`
	NewValue      decimal.Decimal `json:"new_value"`
	ActorID       string          `json:"actor_id"`
	ChangedAt     time.Time       `json:"changed_at"`
}

// LotAuditResponse lote con su traza completa.
type LotAuditResponse struct {
	Lot          LotResponse           `json:"lot"`
	Adjustments  []AdjustmentResponse  `json:"adjustments"`
	ValueHistory []ValueChangeResponse `json:"value_history"`
}

// ReplenishmentSuggestionDTO sugerencia de reposición de un lote bajo su punto de reorden.
type ReplenishmentSuggestionDTO struct {
	LotID              string          `json:"lot_id"`
	ProductReferenceID string          `json:"product_reference_id"`
	ProductName        string          `json:"product_name"`
	LotCode            string          `json:"lot_code"`
	CurrentStock       decimal.Decimal `json:"current_stock"`
	ReorderPoint       decimal.Decimal `json:"reorder_point"`
	IdealStock         decimal.Decimal `json:"ideal_stock"`         // MaxQuantity o ReorderPoint * 1.5
	SuggestedOrderQty  decimal.Decimal `json:"suggested_order_qty"` // IdealStock - CurrentStock
	UnitValue          decimal.Decimal `json:"unit_value"`
	EstimatedOrderCost decimal.Decimal `json:"estimated_order_cost"`
	Priority           int             `json:"priority"` // 1 = más urgente
}

// FromLot mapea la entidad.
func FromLot(l *entity.StockLot) LotResponse {
	return LotResponse{
		ID:                 l.ID,
		BindingID:          l.BindingID,
		ProductReferenceID: l.ProductReferenceID,
		UnitID:             l.UnitID,
		LotCode:            l.LotCode,
		Quantity:           l.Quantity,
		ReorderPoint:       l.ReorderPoint,
		UnitValue:          l.UnitValue,
		TotalValue:         l.TotalValue,
		ExpiresAt:          l.ExpiresAt,
		Blocked:            l.Blocked,
		LastMovementAt:     l.LastMovementAt,
	}
}

// FromAdjustment mapea la entidad.
func FromAdjustment(a *entity.StockAdjustment) AdjustmentResponse {
	return AdjustmentResponse{
		ID:               a.ID,
		ImportID:         a.ImportID,
		InvoiceID:        a.InvoiceID,
		PreviousQuantity: a.PreviousQuantity,
		NewQuantity:      a.NewQuantity,
		Delta:            a.Delta,
		Reason:           a.Reason,
		ActorID:          a.ActorID,
		DocumentNumber:   a.DocumentNumber,
		OccurredAt:       a.OccurredAt,
	}
}

// FromValueHistory mapea la entidad.
func FromValueHistory(h *entity.ValueHistory) ValueChangeResponse {
	return ValueChangeResponse{
		ImportID:      h.ImportID,
		PreviousValue: h.PreviousValue,
		NewValue:      h.NewValue,
		ActorID:       h.ActorID,
		ChangedAt:     h.ChangedAt,
	}
}
