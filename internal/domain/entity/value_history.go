package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValueHistory registro inmutable de un cambio de valor unitario de un lote.
type ValueHistory struct {
	Audit
	StockLotID    string
	ImportID      string
	PreviousValue decimal.Decimal
	NewValue      decimal.Decimal
	ActorID       string
	ChangedAt     time.Time
}
