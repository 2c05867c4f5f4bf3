package entity

import (
	"fmt"
	"time"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
)

// Batch agrupa varias importaciones; sus contadores son la suma de los hijos.
type Batch struct {
	Audit
	UnitID           string
	ActorID          string
	Description      string
	Status           string
	ImportsTotal     int
	ImportsDone      int
	ImportsFailed    int
	ImportsCancelled int
	Items            ImportCounters
	CancelRequested  bool
	StartedAt        *time.Time
	FinishedAt       *time.Time
}

// NewBatch crea un lote en estado PENDING.
func NewBatch(id, unitID, actorID, description string, imports int, now time.Time) *Batch {
	b := &Batch{
		Audit:        Audit{ID: id, Active: true},
		UnitID:       unitID,
		ActorID:      actorID,
		Description:  description,
		Status:       ProcessingPending,
		ImportsTotal: imports,
	}
	b.Touch(now)
	return b
}

// IsTerminal indica si el lote terminó.
func (b *Batch) IsTerminal() bool { return IsTerminalState(b.Status) }

// Start PENDING -> PROCESSING.
func (b *Batch) Start(now time.Time) error {
	if b.Status == ProcessingRunning {
		return nil
	}
	if !canTransition(b.Status, ProcessingRunning) {
		return fmt.Errorf("batch %s: %s -> %s: %w", b.ID, b.Status, ProcessingRunning, domain.ErrInvalidTransition)
	}
	b.Status = ProcessingRunning
	t := now
	b.StartedAt = &t
	b.Touch(now)
	return nil
}

// Abort cancela un lote que no llegó a registrar todas sus importaciones.
func (b *Batch) Abort(now time.Time) error {
	b.CancelRequested = true
	if b.Status == ProcessingCancelled {
		return nil
	}
	if !canTransition(b.Status, ProcessingCancelled) {
		return fmt.Errorf("batch %s: %s -> %s: %w", b.ID, b.Status, ProcessingCancelled, domain.ErrInvalidTransition)
	}
	b.Status = ProcessingCancelled
	t := now
	b.FinishedAt = &t
	b.Touch(now)
	return nil
}

// Aggregate recalcula contadores y estado a partir de las importaciones hijas.
// DONE solo cuando todas las hijas son terminales; CANCELLED si se pidió cancelar
// y alguna hija quedó cancelada.
func (b *Batch) Aggregate(children []*Import, now time.Time) {
	var done, failed, cancelled, terminal int
	var items ImportCounters
	started := false
	for _, c := range children {
		items.Total += c.Counters.Total
		items.Processed += c.Counters.Processed
		items.Succeeded += c.Counters.Succeeded
		items.Failed += c.Counters.Failed
		switch c.Status {
		case ProcessingDone:
			done++
		case ProcessingError:
			failed++
		case ProcessingCancelled:
			cancelled++
		}
		if c.IsTerminal() {
			terminal++
		}
		if c.Status != ProcessingPending {
			started = true
		}
	}
	b.ImportsTotal = max(b.ImportsTotal, len(children))
	b.ImportsDone, b.ImportsFailed, b.ImportsCancelled = done, failed, cancelled
	b.Items = items

	if b.IsTerminal() {
		b.Touch(now)
		return
	}
	if started && b.Status == ProcessingPending {
		_ = b.Start(now)
	}
	if len(children) > 0 && terminal == len(children) {
		final := ProcessingDone
		if b.CancelRequested && cancelled > 0 {
			final = ProcessingCancelled
		}
		if b.Status == ProcessingPending && final == ProcessingDone {
			_ = b.Start(now)
		}
		b.Status = final
		t := now
		b.FinishedAt = &t
	}
	b.Touch(now)
}
