package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductSupplierBinding vínculo producto-proveedor con los datos propios del proveedor.
// Único por (ProductReferenceID, SupplierID).
type ProductSupplierBinding struct {
	Audit
	ProductReferenceID string
	SupplierID         string
	SupplierCode       string
	SupplierName       string
	SupplierUnit       string
	SupplierEAN        string
	LastPurchasePrice  decimal.Decimal
	LastPurchaseAt     time.Time
}

// RecordPurchase actualiza el último precio y fecha de compra si la compra no es anterior a la registrada.
func (b *ProductSupplierBinding) RecordPurchase(price decimal.Decimal, at, now time.Time) {
	if !b.LastPurchaseAt.IsZero() && at.Before(b.LastPurchaseAt) {
		return
	}
	b.LastPurchasePrice = price
	b.LastPurchaseAt = at
	b.Touch(now)
}
