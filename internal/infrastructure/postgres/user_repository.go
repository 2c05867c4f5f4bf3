package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

var (
	_ repository.UnitRepository = (*UnitRepo)(nil)
	_ repository.UserRepository = (*UserRepo)(nil)
)

// UnitRepo lectura de unidades organizacionales.
type UnitRepo struct {
	q Querier
}

// NewUnitRepository construye el adaptador.
func NewUnitRepository(q Querier) *UnitRepo {
	return &UnitRepo{q: q}
}

const unitColumns = `id, organization_id, name, tax_id, active, created_at, updated_at`

func (r *UnitRepo) GetByID(ctx context.Context, id string) (*entity.Unit, error) {
	var u entity.Unit
	err := r.q.QueryRow(ctx, `SELECT `+unitColumns+` FROM units WHERE id = $1`, id).Scan(
		&u.ID, &u.OrganizationID, &u.Name, &u.TaxID, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return &u, nil
}

func (r *UnitRepo) ListByOrganization(ctx context.Context, organizationID string) ([]*entity.Unit, error) {
	rows, err := r.q.Query(ctx, `SELECT `+unitColumns+` FROM units WHERE organization_id = $1 ORDER BY id`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()
	var out []*entity.Unit
	for rows.Next() {
		var u entity.Unit
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Name, &u.TaxID, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// Upsert alta o actualización de una unidad (usado por el CLI de importación).
func (r *UnitRepo) Upsert(ctx context.Context, u *entity.Unit) error {
	query := `
		INSERT INTO units (` + unitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET organization_id = EXCLUDED.organization_id, name = EXCLUDED.name,
			tax_id = EXCLUDED.tax_id, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query, u.ID, u.OrganizationID, u.Name, u.TaxID, u.Active,
		createdAt(u.CreatedAt), updatedAt(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert unit: %w", err)
	}
	return nil
}

// UserRepo lectura de usuarios con supervisión de unidades.
type UserRepo struct {
	q Querier
}

// NewUserRepository construye el adaptador.
func NewUserRepository(q Querier) *UserRepo {
	return &UserRepo{q: q}
}

// ListOversightByUnit usuarios activos con supervisión sobre la unidad.
func (r *UserRepo) ListOversightByUnit(ctx context.Context, unitID string) ([]*entity.User, error) {
	query := `
		SELECT id, organization_id, email, name, role, unit_ids, oversight, active, created_at, updated_at
		FROM users
		WHERE active AND oversight AND $1 = ANY (unit_ids)
		ORDER BY id`
	rows, err := r.q.Query(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("list oversight users: %w", err)
	}
	defer rows.Close()
	var out []*entity.User
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.Name, &u.Role, &u.UnitIDs, &u.Oversight,
			&u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}
