package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
)

// Estados de procesamiento de Import y Batch.
const (
	ProcessingPending   = "PENDING"
	ProcessingRunning   = "PROCESSING"
	ProcessingDone      = "DONE"
	ProcessingError     = "ERROR"
	ProcessingCancelled = "CANCELLED"
)

var processingTransitions = map[string][]string{
	ProcessingPending: {ProcessingRunning, ProcessingCancelled},
	ProcessingRunning: {ProcessingDone, ProcessingError, ProcessingCancelled},
}

func canTransition(from, to string) bool {
	for _, s := range processingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalState indica si el estado de procesamiento es final.
func IsTerminalState(status string) bool {
	return status == ProcessingDone || status == ProcessingError || status == ProcessingCancelled
}

// ImportCounters contadores de ítems de una importación (monótonos).
type ImportCounters struct {
	Total     int
	Processed int
	Succeeded int
	Failed    int
}

// Import ciclo de vida de la importación de un documento.
type Import struct {
	Audit
	UnitID             string
	ActorID            string
	BatchID            string
	FileName           string
	AccessKey          string
	Digest             string
	OperationKind      string
	Status             string
	Stage              string
	Counters           ImportCounters
	InconsistencyCount int
	ProcessingLog      []string
	ErrorLog           []string
	InvoiceID          string
	SupplierID         string
	CancelRequested    bool
	MutationStarted    bool
	StartedAt          *time.Time
	FinishedAt         *time.Time
}

// NewImport crea una importación en estado PENDING.
func NewImport(id, unitID, actorID, batchID, fileName string, now time.Time) *Import {
	imp := &Import{
		Audit:    Audit{ID: id, Active: true},
		UnitID:   unitID,
		ActorID:  actorID,
		BatchID:  batchID,
		FileName: fileName,
		Status:   ProcessingPending,
	}
	imp.Touch(now)
	return imp
}

// IsTerminal indica si la importación terminó.
func (i *Import) IsTerminal() bool { return IsTerminalState(i.Status) }

// Start PENDING -> PROCESSING.
func (i *Import) Start(now time.Time) error {
	if i.CancelRequested {
		return fmt.Errorf("import %s: %w", i.ID, domain.ErrImportCancelled)
	}
	if err := i.transition(ProcessingRunning, now); err != nil {
		return err
	}
	t := now
	i.StartedAt = &t
	return nil
}

// Complete PROCESSING -> DONE.
func (i *Import) Complete(now time.Time) error {
	if err := i.transition(ProcessingDone, now); err != nil {
		return err
	}
	i.finish(now)
	return nil
}

// Fail PROCESSING -> ERROR registrando la etapa y la causa.
func (i *Import) Fail(stage string, cause error, now time.Time) error {
	if err := i.transition(ProcessingError, now); err != nil {
		return err
	}
	i.Stage = stage
	i.ErrorLog = append(i.ErrorLog, fmt.Sprintf("[%s] %v", stage, cause))
	i.finish(now)
	return nil
}

// Cancel -> CANCELLED; solo antes de iniciar la mutación de stock.
func (i *Import) Cancel(now time.Time) error {
	if i.MutationStarted {
		return fmt.Errorf("import %s: mutación de stock iniciada: %w", i.ID, domain.ErrInvalidTransition)
	}
	if err := i.transition(ProcessingCancelled, now); err != nil {
		return err
	}
	i.CancelRequested = true
	i.finish(now)
	return nil
}

// RequestCancel marca la cancelación. Si aún está PENDING pasa a CANCELLED de inmediato;
// también una PROCESSING sin actividad desde staleBefore (proceso caído). staleBefore cero
// desactiva ese caso.
func (i *Import) RequestCancel(now, staleBefore time.Time) error {
	if i.IsTerminal() || i.MutationStarted {
		return fmt.Errorf("import %s en estado %s: %w", i.ID, i.Status, domain.ErrInvalidTransition)
	}
	if i.Status == ProcessingPending || i.IsStale(staleBefore) {
		return i.Cancel(now)
	}
	// sin Touch: la solicitud no cuenta como actividad del proceso
	i.CancelRequested = true
	return nil
}

// IsStale indica una importación PROCESSING sin actividad registrada desde before.
func (i *Import) IsStale(before time.Time) bool {
	return !before.IsZero() && i.Status == ProcessingRunning && !i.MutationStarted && i.UpdatedAt.Before(before)
}

// BeginMutation marca el inicio de la mutación de stock; falla si hay cancelación pedida.
func (i *Import) BeginMutation(now time.Time) error {
	if i.Status != ProcessingRunning {
		return fmt.Errorf("import %s en estado %s: %w", i.ID, i.Status, domain.ErrInvalidTransition)
	}
	if i.CancelRequested {
		return fmt.Errorf("import %s: %w", i.ID, domain.ErrImportCancelled)
	}
	i.MutationStarted = true
	i.Touch(now)
	return nil
}

// Log agrega una línea al log de procesamiento.
func (i *Import) Log(stage, format string, args ...any) {
	i.ProcessingLog = append(i.ProcessingLog, "["+stage+"] "+fmt.Sprintf(format, args...))
}

// ErrorSummary concatena el log de errores.
func (i *Import) ErrorSummary() string {
	return strings.Join(i.ErrorLog, "; ")
}

// AdvanceCounters aplica contadores sin retroceder ninguno.
func (i *Import) AdvanceCounters(c ImportCounters) {
	i.Counters.Total = max(i.Counters.Total, c.Total)
	i.Counters.Processed = max(i.Counters.Processed, c.Processed)
	i.Counters.Succeeded = max(i.Counters.Succeeded, c.Succeeded)
	i.Counters.Failed = max(i.Counters.Failed, c.Failed)
}

func (i *Import) transition(to string, now time.Time) error {
	if !canTransition(i.Status, to) {
		return fmt.Errorf("import %s: %s -> %s: %w", i.ID, i.Status, to, domain.ErrInvalidTransition)
	}
	i.Status = to
	i.Touch(now)
	return nil
}

func (i *Import) finish(now time.Time) {
	t := now
	i.FinishedAt = &t
}
