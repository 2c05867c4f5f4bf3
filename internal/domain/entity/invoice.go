package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de operación de un documento NFe.
const (
	OperationPurchase = "PURCHASE"
	OperationSale     = "SALE"
)

// Invoice nota fiscal conciliada con éxito. AccessKey es única.
type Invoice struct {
	Audit
	AccessKey      string
	Number         string
	Series         string
	Model          string
	OperationKind  string
	EmittedAt      time.Time
	TotalValue     decimal.Decimal
	IssuerTaxID    string
	RecipientTaxID string
	SupplierID     string // vacío en ventas
	UnitID         string
	ImportID       string
	ItemCount      int
}
