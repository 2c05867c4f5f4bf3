package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

var (
	_ repository.ImportRepository = (*ImportRepo)(nil)
	_ repository.BatchRepository  = (*BatchRepo)(nil)
)

const importColumns = `id, unit_id, actor_id, batch_id, file_name, access_key, digest, operation_kind, status, stage,
	items_total, items_processed, items_succeeded, items_failed, inconsistency_count, processing_log, error_log,
	invoice_id, supplier_id, cancel_requested, mutation_started, started_at, finished_at, active, created_at, updated_at`

// estados terminales en SQL.
const terminalStatuses = `('` + entity.ProcessingDone + `', '` + entity.ProcessingError + `', '` + entity.ProcessingCancelled + `')`

// ImportRepo ciclo de vida de importaciones. Las marcas de cancelación y mutación se
// resuelven con UPDATE condicionales, sin leer y escribir en dos pasos.
type ImportRepo struct {
	q   Querier
	now func() time.Time
}

// NewImportRepository construye el adaptador.
func NewImportRepository(q Querier) *ImportRepo {
	return &ImportRepo{q: q, now: time.Now}
}

func scanImport(row pgx.Row) (*entity.Import, error) {
	var imp entity.Import
	c := &imp.Counters
	err := row.Scan(&imp.ID, &imp.UnitID, &imp.ActorID, &imp.BatchID, &imp.FileName, &imp.AccessKey, &imp.Digest,
		&imp.OperationKind, &imp.Status, &imp.Stage, &c.Total, &c.Processed, &c.Succeeded, &c.Failed,
		&imp.InconsistencyCount, &imp.ProcessingLog, &imp.ErrorLog, &imp.InvoiceID, &imp.SupplierID,
		&imp.CancelRequested, &imp.MutationStarted, &imp.StartedAt, &imp.FinishedAt, &imp.Active,
		&imp.CreatedAt, &imp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &imp, nil
}

func logOrEmpty(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}

func (r *ImportRepo) Create(ctx context.Context, imp *entity.Import) error {
	query := `
		INSERT INTO imports (` + importColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26)`
	c := imp.Counters
	_, err := r.q.Exec(ctx, query, imp.ID, imp.UnitID, imp.ActorID, imp.BatchID, imp.FileName, imp.AccessKey,
		imp.Digest, imp.OperationKind, imp.Status, imp.Stage, c.Total, c.Processed, c.Succeeded, c.Failed,
		imp.InconsistencyCount, logOrEmpty(imp.ProcessingLog), logOrEmpty(imp.ErrorLog), imp.InvoiceID,
		imp.SupplierID, imp.CancelRequested, imp.MutationStarted, imp.StartedAt, imp.FinishedAt, imp.Active,
		createdAt(imp.CreatedAt), updatedAt(imp.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create import: %w", err)
	}
	return nil
}

func (r *ImportRepo) GetByID(ctx context.Context, id string) (*entity.Import, error) {
	imp, err := scanImport(r.q.QueryRow(ctx, `SELECT `+importColumns+` FROM imports WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get import: %w", err)
	}
	return imp, nil
}

// Update persiste el registro sin retroceder contadores ni borrar marcas escritas por otro actor.
// Un registro ya terminal solo acepta escrituras que conserven su estado.
func (r *ImportRepo) Update(ctx context.Context, imp *entity.Import) error {
	query := `
		UPDATE imports SET
			access_key = $2, digest = $3, operation_kind = $4, status = $5, stage = $6,
			items_total = GREATEST(items_total, $7), items_processed = GREATEST(items_processed, $8),
			items_succeeded = GREATEST(items_succeeded, $9), items_failed = GREATEST(items_failed, $10),
			inconsistency_count = $11, processing_log = $12, error_log = $13, invoice_id = $14, supplier_id = $15,
			cancel_requested = cancel_requested OR $16, mutation_started = mutation_started OR $17,
			started_at = $18, finished_at = $19, active = $20, updated_at = $21
		WHERE id = $1 AND (status NOT IN ` + terminalStatuses + ` OR status = $5)`
	c := imp.Counters
	tag, err := r.q.Exec(ctx, query, imp.ID, imp.AccessKey, imp.Digest, imp.OperationKind, imp.Status, imp.Stage,
		c.Total, c.Processed, c.Succeeded, c.Failed, imp.InconsistencyCount, logOrEmpty(imp.ProcessingLog),
		logOrEmpty(imp.ErrorLog), imp.InvoiceID, imp.SupplierID, imp.CancelRequested, imp.MutationStarted,
		imp.StartedAt, imp.FinishedAt, imp.Active, updatedAt(imp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("update import: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, imp.ID, domain.ErrConflict)
	}
	return nil
}

func (r *ImportRepo) UpdateProgress(ctx context.Context, id string, c entity.ImportCounters) error {
	query := `
		UPDATE imports SET
			items_total = GREATEST(items_total, $2), items_processed = GREATEST(items_processed, $3),
			items_succeeded = GREATEST(items_succeeded, $4), items_failed = GREATEST(items_failed, $5),
			updated_at = $6
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, c.Total, c.Processed, c.Succeeded, c.Failed, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update import progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RequestCancel PENDING pasa directo a CANCELLED, igual que una PROCESSING sin actividad
// desde staleBefore; una PROCESSING activa solo marca la solicitud.
// Falla con ErrInvalidTransition si ya terminó o la mutación de stock empezó.
func (r *ImportRepo) RequestCancel(ctx context.Context, id string, staleBefore time.Time) (*entity.Import, error) {
	now := r.now().UTC()
	var stale *time.Time
	if !staleBefore.IsZero() {
		t := staleBefore.UTC()
		stale = &t
	}
	query := `
		UPDATE imports SET
			cancel_requested = TRUE,
			status = CASE WHEN status = $2 OR updated_at < $6 THEN $3 ELSE status END,
			finished_at = CASE WHEN status = $2 OR updated_at < $6 THEN $4 ELSE finished_at END,
			updated_at = CASE WHEN status = $2 OR updated_at < $6 THEN $4 ELSE updated_at END
		WHERE id = $1 AND status IN ($2, $5) AND NOT mutation_started
		RETURNING ` + importColumns
	imp, err := scanImport(r.q.QueryRow(ctx, query, id, entity.ProcessingPending, entity.ProcessingCancelled, now,
		entity.ProcessingRunning, stale))
	if err == nil {
		return imp, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("request cancel: %w", err)
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	return nil, fmt.Errorf("import %s en estado %s: %w", id, current.Status, domain.ErrInvalidTransition)
}

// BeginMutation marca mutation_started solo si está PROCESSING y sin cancelación pedida.
func (r *ImportRepo) BeginMutation(ctx context.Context, id string) error {
	query := `
		UPDATE imports SET mutation_started = TRUE, updated_at = $3
		WHERE id = $1 AND status = $2 AND NOT cancel_requested`
	tag, err := r.q.Exec(ctx, query, id, entity.ProcessingRunning, r.now().UTC())
	if err != nil {
		return fmt.Errorf("begin mutation: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrNotFound
	}
	if current.Status == entity.ProcessingRunning && current.CancelRequested {
		return fmt.Errorf("import %s: %w", id, domain.ErrImportCancelled)
	}
	return fmt.Errorf("import %s en estado %s: %w", id, current.Status, domain.ErrInvalidTransition)
}

func (r *ImportRepo) ListByBatch(ctx context.Context, batchID string) ([]*entity.Import, error) {
	rows, err := r.q.Query(ctx, `SELECT `+importColumns+` FROM imports WHERE batch_id = $1 ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()
	var out []*entity.Import
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

func (r *ImportRepo) missingOr(ctx context.Context, id string, otherwise error) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrNotFound
	}
	return otherwise
}

// ── Lotes de importación ──

const batchColumns = `id, unit_id, actor_id, description, status, imports_total, imports_done, imports_failed,
	imports_cancelled, items_total, items_processed, items_succeeded, items_failed, cancel_requested,
	started_at, finished_at, active, created_at, updated_at`

// BatchRepo implementación de BatchRepository sobre PostgreSQL.
type BatchRepo struct {
	q Querier
}

// NewBatchRepository construye el adaptador.
func NewBatchRepository(q Querier) *BatchRepo {
	return &BatchRepo{q: q}
}

func (r *BatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	query := `
		INSERT INTO import_batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	it := b.Items
	_, err := r.q.Exec(ctx, query, b.ID, b.UnitID, b.ActorID, b.Description, b.Status, b.ImportsTotal,
		b.ImportsDone, b.ImportsFailed, b.ImportsCancelled, it.Total, it.Processed, it.Succeeded, it.Failed,
		b.CancelRequested, b.StartedAt, b.FinishedAt, b.Active, createdAt(b.CreatedAt), updatedAt(b.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) GetByID(ctx context.Context, id string) (*entity.Batch, error) {
	var b entity.Batch
	it := &b.Items
	err := r.q.QueryRow(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE id = $1`, id).Scan(
		&b.ID, &b.UnitID, &b.ActorID, &b.Description, &b.Status, &b.ImportsTotal, &b.ImportsDone,
		&b.ImportsFailed, &b.ImportsCancelled, &it.Total, &it.Processed, &it.Succeeded, &it.Failed,
		&b.CancelRequested, &b.StartedAt, &b.FinishedAt, &b.Active, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// Update persiste contadores y estado; cancel_requested nunca vuelve a false.
func (r *BatchRepo) Update(ctx context.Context, b *entity.Batch) error {
	query := `
		UPDATE import_batches SET
			description = $2, status = $3, imports_total = $4, imports_done = $5, imports_failed = $6,
			imports_cancelled = $7, items_total = $8, items_processed = $9, items_succeeded = $10,
			items_failed = $11, cancel_requested = cancel_requested OR $12, started_at = $13,
			finished_at = $14, active = $15, updated_at = $16
		WHERE id = $1`
	it := b.Items
	tag, err := r.q.Exec(ctx, query, b.ID, b.Description, b.Status, b.ImportsTotal, b.ImportsDone,
		b.ImportsFailed, b.ImportsCancelled, it.Total, it.Processed, it.Succeeded, it.Failed,
		b.CancelRequested, b.StartedAt, b.FinishedAt, b.Active, updatedAt(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
