package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotKey identifica un lote de stock: (vínculo, unidad, código de lote).
type LotKey struct {
	BindingID string
	UnitID    string
	LotCode   string
}

// String forma canónica usada para ordenar y bloquear.
func (k LotKey) String() string {
	return k.BindingID + "|" + k.UnitID + "|" + k.LotCode
}

// StockLot stock de un lote de un producto-proveedor en una unidad.
// TotalValue == Quantity × UnitValue tras cada escritura.
type StockLot struct {
	Audit
	BindingID          string
	ProductReferenceID string
	UnitID             string
	LotCode            string
	Quantity           decimal.Decimal
	MinQuantity        decimal.Decimal
	MaxQuantity        decimal.Decimal
	ReorderPoint       decimal.Decimal
	UnitValue          decimal.Decimal
	TotalValue         decimal.Decimal
	ExpiresAt          *time.Time
	Blocked            bool
	BlockReason        string
	LastMovementAt     time.Time
}

// Key devuelve la clave natural del lote.
func (l *StockLot) Key() LotKey {
	return LotKey{BindingID: l.BindingID, UnitID: l.UnitID, LotCode: l.LotCode}
}

// NeedsReplenishment indica si la cantidad quedó por debajo del punto de reposición.
func (l *StockLot) NeedsReplenishment() bool {
	return l.ReorderPoint.IsPositive() && l.Quantity.LessThan(l.ReorderPoint)
}
