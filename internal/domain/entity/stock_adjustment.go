package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Motivos de ajuste (coinciden con el tipo de operación del documento).
const (
	AdjustmentReasonPurchase = "PURCHASE"
	AdjustmentReasonSale     = "SALE"
)

// StockAdjustment registro inmutable de un cambio de cantidad en un lote.
type StockAdjustment struct {
	Audit
	StockLotID       string
	ImportID         string
	InvoiceID        string
	PreviousQuantity decimal.Decimal
	NewQuantity      decimal.Decimal
	Delta            decimal.Decimal // positivo entrada, negativo salida
	Reason           string
	ActorID          string
	DocumentNumber   string
	OccurredAt       time.Time
}
