package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

var _ repository.InconsistencyRepository = (*InconsistencyRepo)(nil)

const inconsistencyColumns = `id, type, severity, blocking, status, description, suggestion, resolution_note,
	reviewer_id, line_number, detected_at, resolved_at, import_id, invoice_id, unit_id, active, created_at, updated_at`

// InconsistencyRepo hallazgos de importación, listados en orden de inserción.
type InconsistencyRepo struct {
	q Querier
}

// NewInconsistencyRepository construye el adaptador.
func NewInconsistencyRepository(q Querier) *InconsistencyRepo {
	return &InconsistencyRepo{q: q}
}

func scanInconsistency(row pgx.Row) (*entity.Inconsistency, error) {
	var i entity.Inconsistency
	err := row.Scan(&i.ID, &i.Type, &i.Severity, &i.Blocking, &i.Status, &i.Description, &i.Suggestion,
		&i.ResolutionNote, &i.ReviewerID, &i.LineNumber, &i.DetectedAt, &i.ResolvedAt, &i.ImportID,
		&i.InvoiceID, &i.UnitID, &i.Active, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *InconsistencyRepo) Create(ctx context.Context, inc *entity.Inconsistency) error {
	query := `
		INSERT INTO inconsistencies (` + inconsistencyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.q.Exec(ctx, query, inc.ID, inc.Type, inc.Severity, inc.Blocking, inc.Status, inc.Description,
		inc.Suggestion, inc.ResolutionNote, inc.ReviewerID, inc.LineNumber, inc.DetectedAt, inc.ResolvedAt,
		inc.ImportID, inc.InvoiceID, inc.UnitID, inc.Active, createdAt(inc.CreatedAt), updatedAt(inc.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create inconsistency: %w", err)
	}
	return nil
}

func (r *InconsistencyRepo) GetByID(ctx context.Context, id string) (*entity.Inconsistency, error) {
	inc, err := scanInconsistency(r.q.QueryRow(ctx, `SELECT `+inconsistencyColumns+` FROM inconsistencies WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get inconsistency: %w", err)
	}
	return inc, nil
}

// Update persiste la revisión (estado, revisor, nota y fecha de resolución).
func (r *InconsistencyRepo) Update(ctx context.Context, inc *entity.Inconsistency) error {
	query := `
		UPDATE inconsistencies SET status = $2, resolution_note = $3, reviewer_id = $4, resolved_at = $5,
			invoice_id = $6, active = $7, updated_at = $8
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, inc.ID, inc.Status, inc.ResolutionNote, inc.ReviewerID, inc.ResolvedAt,
		inc.InvoiceID, inc.Active, updatedAt(inc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("update inconsistency: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *InconsistencyRepo) List(ctx context.Context, f repository.InconsistencyFilter) ([]*entity.Inconsistency, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UnitID != "" {
		add("unit_id = $%d", f.UnitID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.ImportID != "" {
		add("import_id = $%d", f.ImportID)
	}
	if f.InvoiceID != "" {
		add("invoice_id = $%d", f.InvoiceID)
	}

	query := `SELECT ` + inconsistencyColumns + ` FROM inconsistencies`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	lim, off := pageArgs(f.Limit, f.Offset)
	args = append(args, lim, off)
	query += fmt.Sprintf(` ORDER BY seq LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list inconsistencies: %w", err)
	}
	defer rows.Close()
	var out []*entity.Inconsistency
	for rows.Next() {
		inc, err := scanInconsistency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inconsistency: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (r *InconsistencyRepo) AttachInvoice(ctx context.Context, importID, invoiceID string) error {
	if _, err := r.q.Exec(ctx, `UPDATE inconsistencies SET invoice_id = $2 WHERE import_id = $1`, importID, invoiceID); err != nil {
		return fmt.Errorf("attach invoice: %w", err)
	}
	return nil
}
