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
	_ repository.SupplierRepository         = (*SupplierRepo)(nil)
	_ repository.ProductReferenceRepository = (*ProductReferenceRepo)(nil)
	_ repository.BindingRepository          = (*BindingRepo)(nil)
)

// ── Proveedores ──

const supplierColumns = `id, tax_id, legal_name, trade_name, state_registration, address, city, state,
	zip_code, phone, email, active, created_at, updated_at`

// SupplierRepo implementación de SupplierRepository sobre PostgreSQL.
type SupplierRepo struct {
	q Querier
}

// NewSupplierRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSupplierRepository(q Querier) *SupplierRepo {
	return &SupplierRepo{q: q}
}

func scanSupplier(row pgx.Row) (*entity.Supplier, error) {
	var s entity.Supplier
	err := row.Scan(&s.ID, &s.TaxID, &s.LegalName, &s.TradeName, &s.StateRegistration, &s.Address,
		&s.City, &s.State, &s.ZipCode, &s.Phone, &s.Email, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SupplierRepo) getOne(ctx context.Context, where string, arg any) (*entity.Supplier, error) {
	s, err := scanSupplier(r.q.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE `+where, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get supplier: %w", err)
	}
	return s, nil
}

// GetByID obtiene un proveedor por ID. nil si no existe.
func (r *SupplierRepo) GetByID(ctx context.Context, id string) (*entity.Supplier, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByTaxID obtiene un proveedor por CNPJ/CPF. nil si no existe.
func (r *SupplierRepo) GetByTaxID(ctx context.Context, taxID string) (*entity.Supplier, error) {
	return r.getOne(ctx, "tax_id = $1", taxID)
}

// CreateIfAbsent inserta si el tax_id no existe; si existe devuelve el almacenado.
func (r *SupplierRepo) CreateIfAbsent(ctx context.Context, s *entity.Supplier) (*entity.Supplier, bool, error) {
	query := `
		INSERT INTO suppliers (` + supplierColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (tax_id) DO NOTHING
		RETURNING ` + supplierColumns
	created, err := scanSupplier(r.q.QueryRow(ctx, query,
		s.ID, s.TaxID, s.LegalName, s.TradeName, s.StateRegistration, s.Address, s.City, s.State,
		s.ZipCode, s.Phone, s.Email, s.Active, createdAt(s.CreatedAt), updatedAt(s.UpdatedAt),
	))
	if err == nil {
		return created, true, nil
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("create supplier: %w", err)
	}
	existing, err := r.GetByTaxID(ctx, s.TaxID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("supplier %s: %w", s.TaxID, domain.ErrEntityResolutionConflict)
	}
	return existing, false, nil
}

// Update actualiza los datos descriptivos (el tax_id es inmutable).
func (r *SupplierRepo) Update(ctx context.Context, s *entity.Supplier) error {
	query := `
		UPDATE suppliers SET legal_name = $2, trade_name = $3, state_registration = $4, address = $5,
			city = $6, state = $7, zip_code = $8, phone = $9, email = $10, active = $11, updated_at = $12
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, s.ID, s.LegalName, s.TradeName, s.StateRegistration, s.Address,
		s.City, s.State, s.ZipCode, s.Phone, s.Email, s.Active, updatedAt(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("update supplier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ── Productos canónicos ──

const productColumns = `id, natural_key, internal_code, name, ean, ncm, cfop, unit, active, created_at, updated_at`

// ProductReferenceRepo implementación de ProductReferenceRepository sobre PostgreSQL.
type ProductReferenceRepo struct {
	q Querier
}

// NewProductReferenceRepository construye el adaptador.
func NewProductReferenceRepository(q Querier) *ProductReferenceRepo {
	return &ProductReferenceRepo{q: q}
}

func scanProduct(row pgx.Row) (*entity.ProductReference, error) {
	var p entity.ProductReference
	err := row.Scan(&p.ID, &p.NaturalKey, &p.InternalCode, &p.Name, &p.EAN, &p.NCM, &p.CFOP, &p.Unit,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductReferenceRepo) getOne(ctx context.Context, where string, arg any) (*entity.ProductReference, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM product_references WHERE `+where, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product reference: %w", err)
	}
	return p, nil
}

func (r *ProductReferenceRepo) GetByID(ctx context.Context, id string) (*entity.ProductReference, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *ProductReferenceRepo) GetByNaturalKey(ctx context.Context, key string) (*entity.ProductReference, error) {
	return r.getOne(ctx, "natural_key = $1", key)
}

func (r *ProductReferenceRepo) CreateIfAbsent(ctx context.Context, p *entity.ProductReference) (*entity.ProductReference, bool, error) {
	query := `
		INSERT INTO product_references (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (natural_key) DO NOTHING
		RETURNING ` + productColumns
	created, err := scanProduct(r.q.QueryRow(ctx, query,
		p.ID, p.NaturalKey, p.InternalCode, p.Name, p.EAN, p.NCM, p.CFOP, p.Unit, p.Active,
		createdAt(p.CreatedAt), updatedAt(p.UpdatedAt),
	))
	if err == nil {
		return created, true, nil
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("create product reference: %w", err)
	}
	existing, err := r.GetByNaturalKey(ctx, p.NaturalKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("product %s: %w", p.NaturalKey, domain.ErrEntityResolutionConflict)
	}
	return existing, false, nil
}

// Update actualiza los datos descriptivos; natural_key no cambia.
func (r *ProductReferenceRepo) Update(ctx context.Context, p *entity.ProductReference) error {
	query := `
		UPDATE product_references SET internal_code = $2, name = $3, ean = $4, ncm = $5, cfop = $6,
			unit = $7, active = $8, updated_at = $9
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, p.ID, p.InternalCode, p.Name, p.EAN, p.NCM, p.CFOP, p.Unit, p.Active,
		updatedAt(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("update product reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ── Vínculos producto-proveedor ──

const bindingColumns = `id, product_reference_id, supplier_id, supplier_code, supplier_name, supplier_unit,
	supplier_ean, last_purchase_price, last_purchase_at, active, created_at, updated_at`

// BindingRepo implementación de BindingRepository sobre PostgreSQL.
type BindingRepo struct {
	q Querier
}

// NewBindingRepository construye el adaptador.
func NewBindingRepository(q Querier) *BindingRepo {
	return &BindingRepo{q: q}
}

func scanBinding(row pgx.Row) (*entity.ProductSupplierBinding, error) {
	var (
		b            entity.ProductSupplierBinding
		lastPurchase *time.Time
	)
	err := row.Scan(&b.ID, &b.ProductReferenceID, &b.SupplierID, &b.SupplierCode, &b.SupplierName,
		&b.SupplierUnit, &b.SupplierEAN, &b.LastPurchasePrice, &lastPurchase, &b.Active, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.LastPurchaseAt = timeOrZero(lastPurchase)
	return &b, nil
}

func (r *BindingRepo) getOne(ctx context.Context, where string, args ...any) (*entity.ProductSupplierBinding, error) {
	b, err := scanBinding(r.q.QueryRow(ctx, `SELECT `+bindingColumns+` FROM product_supplier_bindings WHERE `+where, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get binding: %w", err)
	}
	return b, nil
}

func (r *BindingRepo) GetByID(ctx context.Context, id string) (*entity.ProductSupplierBinding, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *BindingRepo) GetByProductAndSupplier(ctx context.Context, productID, supplierID string) (*entity.ProductSupplierBinding, error) {
	return r.getOne(ctx, "product_reference_id = $1 AND supplier_id = $2", productID, supplierID)
}

func (r *BindingRepo) ListByProduct(ctx context.Context, productID string) ([]*entity.ProductSupplierBinding, error) {
	query := `SELECT ` + bindingColumns + ` FROM product_supplier_bindings
		WHERE product_reference_id = $1
		ORDER BY last_purchase_at DESC NULLS LAST, id`
	rows, err := r.q.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()
	var out []*entity.ProductSupplierBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BindingRepo) CreateIfAbsent(ctx context.Context, b *entity.ProductSupplierBinding) (*entity.ProductSupplierBinding, bool, error) {
	query := `
		INSERT INTO product_supplier_bindings (` + bindingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (product_reference_id, supplier_id) DO NOTHING
		RETURNING ` + bindingColumns
	created, err := scanBinding(r.q.QueryRow(ctx, query,
		b.ID, b.ProductReferenceID, b.SupplierID, b.SupplierCode, b.SupplierName, b.SupplierUnit, b.SupplierEAN,
		b.LastPurchasePrice, nullTime(b.LastPurchaseAt), b.Active, createdAt(b.CreatedAt), updatedAt(b.UpdatedAt),
	))
	if err == nil {
		return created, true, nil
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("create binding: %w", err)
	}
	existing, err := r.GetByProductAndSupplier(ctx, b.ProductReferenceID, b.SupplierID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("binding %s/%s: %w", b.ProductReferenceID, b.SupplierID, domain.ErrEntityResolutionConflict)
	}
	return existing, false, nil
}

// UpdatePurchase registra el último precio de compra sin retroceder la fecha.
func (r *BindingRepo) UpdatePurchase(ctx context.Context, b *entity.ProductSupplierBinding) error {
	query := `
		UPDATE product_supplier_bindings
		SET last_purchase_price = $2, last_purchase_at = $3, updated_at = $4
		WHERE id = $1 AND (last_purchase_at IS NULL OR last_purchase_at <= $3)`
	tag, err := r.q.Exec(ctx, query, b.ID, b.LastPurchasePrice, nullTime(b.LastPurchaseAt), updatedAt(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("update binding purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.GetByID(ctx, b.ID)
		if err != nil {
			return err
		}
		if exists == nil {
			return domain.ErrNotFound
		}
	}
	return nil
}

// createdAt / updatedAt: fecha de la entidad o now() si no fue fijada.
func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func updatedAt(t time.Time) time.Time { return createdAt(t) }
