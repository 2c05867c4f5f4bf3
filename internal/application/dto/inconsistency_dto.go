package dto

import (
	"time"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// InconsistencyResponse hallazgo para la API.
type InconsistencyResponse struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Severity       string     `json:"severity"`
	Blocking       bool       `json:"blocking"`
	Status         string     `json:"status"`
	Description    string     `json:"description"`
	Suggestion     string     `json:"suggestion,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	ReviewerID     string     `json:"reviewer_id,omitempty"`
	LineNumber     int        `json:"line_number,omitempty"`
	ImportID       string     `json:"import_id,omitempty"`
	InvoiceID      string     `json:"invoice_id,omitempty"`
	UnitID         string     `json:"unit_id"`
	DetectedAt     time.Time  `json:"detected_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// ListInconsistenciesQuery filtros de GET /api/inconsistencies.
type ListInconsistenciesQuery struct {
	PageRequest
	UnitID    string `query:"unit_id" validate:"required"`
	Status    string `query:"status" validate:"omitempty,oneof=PENDING UNDER_REVIEW RESOLVED DISMISSED"`
	ImportID  string `query:"import_id"`
	InvoiceID string `query:"invoice_id"`
}

// ReviewRequest body de resolve/dismiss.
type ReviewRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

// FromInconsistency mapea la entidad.
func FromInconsistency(i *entity.Inconsistency) InconsistencyResponse {
	return InconsistencyResponse{
		ID:             i.ID,
		Type:           i.Type,
		Severity:       i.Severity,
		Blocking:       i.Blocking,
		Status:         i.Status,
		Description:    i.Description,
		Suggestion:     i.Suggestion,
		ResolutionNote: i.ResolutionNote,
		ReviewerID:     i.ReviewerID,
		LineNumber:     i.LineNumber,
		ImportID:       i.ImportID,
		InvoiceID:      i.InvoiceID,
		UnitID:         i.UnitID,
		DetectedAt:     i.DetectedAt,
		ResolvedAt:     i.ResolvedAt,
	}
}
