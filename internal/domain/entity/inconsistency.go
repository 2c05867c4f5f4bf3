package entity

import (
	"fmt"
	"time"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
)

// Tipos de inconsistencia (enumeración cerrada).
const (
	InconsistencyUnregisteredProduct   = "UNREGISTERED_PRODUCT"
	InconsistencyUnregisteredSupplier  = "UNREGISTERED_SUPPLIER"
	InconsistencyInvalidSupplier       = "INVALID_SUPPLIER"
	InconsistencyUnregisteredRecipient = "UNREGISTERED_RECIPIENT"
	InconsistencyPriceDivergence       = "PRICE_DIVERGENCE"
	InconsistencyCFOPMismatch          = "CFOP_MISMATCH"
	InconsistencyInvalidNCM            = "INVALID_NCM"
	InconsistencyInvalidEAN            = "INVALID_EAN"
	InconsistencyTotalValueMismatch    = "TOTAL_VALUE_MISMATCH"
	InconsistencyDuplicateAccessKey    = "DUPLICATE_ACCESS_KEY"
	InconsistencyInsufficientStock     = "INSUFFICIENT_STOCK"
	InconsistencyUnitOfMeasureMismatch = "UNIT_OF_MEASURE_MISMATCH"
	InconsistencyInvalidEmissionDate   = "INVALID_EMISSION_DATE"
	InconsistencyInvalidQuantity       = "INVALID_QUANTITY"
	InconsistencyInvalidUnitValue      = "INVALID_UNIT_VALUE"
)

// Severidades.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Estados de revisión: PENDING -> UNDER_REVIEW -> RESOLVED, o DISMISSED.
const (
	InconsistencyPending     = "PENDING"
	InconsistencyUnderReview = "UNDER_REVIEW"
	InconsistencyResolved    = "RESOLVED"
	InconsistencyDismissed   = "DISMISSED"
)

var inconsistencyTransitions = map[string][]string{
	InconsistencyPending:     {InconsistencyUnderReview, InconsistencyResolved, InconsistencyDismissed},
	InconsistencyUnderReview: {InconsistencyResolved, InconsistencyDismissed},
}

// Inconsistency hallazgo de una regla sobre un documento importado.
type Inconsistency struct {
	Audit
	Type           string
	Severity       string
	Blocking       bool
	Status         string
	Description    string
	Suggestion     string
	ResolutionNote string
	ReviewerID     string
	LineNumber     int // 0 = documento completo
	DetectedAt     time.Time
	ResolvedAt     *time.Time
	ImportID       string
	InvoiceID      string
	UnitID         string
}

// IsTerminal indica si ya no admite transiciones.
func (i *Inconsistency) IsTerminal() bool {
	return i.Status == InconsistencyResolved || i.Status == InconsistencyDismissed
}

// TransitionTo aplica una transición de estado de revisión.
func (i *Inconsistency) TransitionTo(status, reviewerID, note string, now time.Time) error {
	allowed := false
	for _, s := range inconsistencyTransitions[i.Status] {
		if s == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("inconsistencia %s: %s -> %s: %w", i.ID, i.Status, status, domain.ErrInvalidTransition)
	}
	i.Status = status
	i.ReviewerID = reviewerID
	if note != "" {
		i.ResolutionNote = note
	}
	if i.IsTerminal() {
		t := now
		i.ResolvedAt = &t
	}
	i.Touch(now)
	return nil
}
