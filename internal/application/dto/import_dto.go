package dto

import (
	"time"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// CountersDTO contadores de ítems.
type CountersDTO struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ImportResponse estado de una importación.
type ImportResponse struct {
	ID                 string      `json:"id"`
	UnitID             string      `json:"unit_id"`
	BatchID            string      `json:"batch_id,omitempty"`
	FileName           string      `json:"file_name"`
	AccessKey          string      `json:"access_key,omitempty"`
	OperationKind      string      `json:"operation_kind,omitempty"`
	Status             string      `json:"status"`
	Stage              string      `json:"stage,omitempty"`
	Items              CountersDTO `json:"items"`
	InconsistencyCount int         `json:"inconsistency_count"`
	InvoiceID          string      `json:"invoice_id,omitempty"`
	SupplierID         string      `json:"supplier_id,omitempty"`
	CancelRequested    bool        `json:"cancel_requested"`
	ProcessingLog      []string    `json:"processing_log"`
	ErrorLog           []string    `json:"error_log"`
	StartedAt          *time.Time  `json:"started_at,omitempty"`
	FinishedAt         *time.Time  `json:"finished_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// ImportResultResponse resultado de importar un documento.
type ImportResultResponse struct {
	Status          string `json:"status"` // SUCCESS | ERROR
	ImportID        string `json:"import_id,omitempty"`
	InvoiceID       string `json:"invoice_id,omitempty"`
	SupplierID      string `json:"supplier_id,omitempty"`
	ItemsProcessed  int    `json:"items_processed"`
	Inconsistencies int    `json:"inconsistencies"`
	Message         string `json:"message"`
}

// BatchResponse estado agregado de un lote.
type BatchResponse struct {
	ID               string           `json:"id"`
	UnitID           string           `json:"unit_id"`
	Description      string           `json:"description,omitempty"`
	Status           string           `json:"status"`
	ImportsTotal     int              `json:"imports_total"`
	ImportsDone      int              `json:"imports_done"`
	ImportsFailed    int              `json:"imports_failed"`
	ImportsCancelled int              `json:"imports_cancelled"`
	Items            CountersDTO      `json:"items"`
	CancelRequested  bool             `json:"cancel_requested"`
	Imports          []ImportResponse `json:"imports,omitempty"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
}

func counters(c entity.ImportCounters) CountersDTO {
	return CountersDTO{Total: c.Total, Processed: c.Processed, Succeeded: c.Succeeded, Failed: c.Failed}
}

// FromImport mapea la entidad.
func FromImport(i *entity.Import) ImportResponse {
	return ImportResponse{
		ID:                 i.ID,
		UnitID:             i.UnitID,
		BatchID:            i.BatchID,
		FileName:           i.FileName,
		AccessKey:          i.AccessKey,
		OperationKind:      i.OperationKind,
		Status:             i.Status,
		Stage:              i.Stage,
		Items:              counters(i.Counters),
		InconsistencyCount: i.InconsistencyCount,
		InvoiceID:          i.InvoiceID,
		SupplierID:         i.SupplierID,
		CancelRequested:    i.CancelRequested,
		ProcessingLog:      append([]string{}, i.ProcessingLog...),
		ErrorLog:           append([]string{}, i.ErrorLog...),
		StartedAt:          i.StartedAt,
		FinishedAt:         i.FinishedAt,
		CreatedAt:          i.CreatedAt,
	}
}

// FromBatch mapea el lote y, si se pasan, sus importaciones.
func FromBatch(b *entity.Batch, children []*entity.Import) BatchResponse {
	out := BatchResponse{
		ID:               b.ID,
		UnitID:           b.UnitID,
		Description:      b.Description,
		Status:           b.Status,
		ImportsTotal:     b.ImportsTotal,
		ImportsDone:      b.ImportsDone,
		ImportsFailed:    b.ImportsFailed,
		ImportsCancelled: b.ImportsCancelled,
		Items:            counters(b.Items),
		CancelRequested:  b.CancelRequested,
		StartedAt:        b.StartedAt,
		FinishedAt:       b.FinishedAt,
	}
	for _, c := range children {
		out.Imports = append(out.Imports, FromImport(c))
	}
	return out
}
