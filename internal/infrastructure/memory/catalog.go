package memory

import (
	"context"
	"sort"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

var (
	_ repository.SupplierRepository         = (*SupplierRepo)(nil)
	_ repository.ProductReferenceRepository = (*ProductRepo)(nil)
	_ repository.BindingRepository          = (*BindingRepo)(nil)
)

// SupplierRepo proveedores en memoria.
type SupplierRepo struct{ s *Store }

// NewSupplierRepository construye el repositorio.
func NewSupplierRepository(s *Store) *SupplierRepo { return &SupplierRepo{s: s} }

func (r *SupplierRepo) GetByID(_ context.Context, id string) (*entity.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if v, ok := r.s.suppliers[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, nil
}

func (r *SupplierRepo) GetByTaxID(ctx context.Context, taxID string) (*entity.Supplier, error) {
	r.s.mu.RLock()
	id, ok := r.s.supplierByTax[taxID]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *SupplierRepo) CreateIfAbsent(_ context.Context, sup *entity.Supplier) (*entity.Supplier, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.supplierByTax[sup.TaxID]; ok {
		c := *r.s.suppliers[id]
		return &c, false, nil
	}
	stored := *sup
	r.s.suppliers[sup.ID] = &stored
	r.s.supplierByTax[sup.TaxID] = sup.ID
	c := stored
	return &c, true, nil
}

func (r *SupplierRepo) Update(_ context.Context, sup *entity.Supplier) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.suppliers[sup.ID]; !ok {
		return domain.ErrNotFound
	}
	c := *sup
	r.s.suppliers[sup.ID] = &c
	return nil
}

// ProductRepo productos canónicos en memoria.
type ProductRepo struct{ s *Store }

// NewProductRepository construye el repositorio.
func NewProductRepository(s *Store) *ProductRepo { return &ProductRepo{s: s} }

func (r *ProductRepo) GetByID(_ context.Context, id string) (*entity.ProductReference, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if v, ok := r.s.products[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, nil
}

func (r *ProductRepo) GetByNaturalKey(ctx context.Context, key string) (*entity.ProductReference, error) {
	r.s.mu.RLock()
	id, ok := r.s.productByKey[key]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *ProductRepo) CreateIfAbsent(_ context.Context, p *entity.ProductReference) (*entity.ProductReference, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.productByKey[p.NaturalKey]; ok {
		c := *r.s.products[id]
		return &c, false, nil
	}
	stored := *p
	r.s.products[p.ID] = &stored
	r.s.productByKey[p.NaturalKey] = p.ID
	c := stored
	return &c, true, nil
}

func (r *ProductRepo) Update(_ context.Context, p *entity.ProductReference) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ID]; !ok {
		return domain.ErrNotFound
	}
	c := *p
	r.s.products[p.ID] = &c
	return nil
}

// BindingRepo vínculos producto-proveedor en memoria.
type BindingRepo struct{ s *Store }

// NewBindingRepository construye el repositorio.
func NewBindingRepository(s *Store) *BindingRepo { return &BindingRepo{s: s} }

func (r *BindingRepo) GetByID(_ context.Context, id string) (*entity.ProductSupplierBinding, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if v, ok := r.s.bindings[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, nil
}

func (r *BindingRepo) GetByProductAndSupplier(ctx context.Context, productID, supplierID string) (*entity.ProductSupplierBinding, error) {
	r.s.mu.RLock()
	id, ok := r.s.bindingByPair[pairKey(productID, supplierID)]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *BindingRepo) ListByProduct(_ context.Context, productID string) ([]*entity.ProductSupplierBinding, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.ProductSupplierBinding
	for _, b := range r.s.bindings {
		if b.ProductReferenceID == productID {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastPurchaseAt.Equal(out[j].LastPurchaseAt) {
			return out[i].LastPurchaseAt.After(out[j].LastPurchaseAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *BindingRepo) CreateIfAbsent(_ context.Context, b *entity.ProductSupplierBinding) (*entity.ProductSupplierBinding, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey(b.ProductReferenceID, b.SupplierID)
	if id, ok := r.s.bindingByPair[key]; ok {
		c := *r.s.bindings[id]
		return &c, false, nil
	}
	stored := *b
	r.s.bindings[b.ID] = &stored
	r.s.bindingByPair[key] = b.ID
	c := stored
	return &c, true, nil
}

func (r *BindingRepo) UpdatePurchase(_ context.Context, b *entity.ProductSupplierBinding) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bindings[b.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.applyBindingPurchase(b)
	return nil
}

// applyBindingPurchase requiere que el vínculo exista; el commit lo valida antes.
func (s *Store) applyBindingPurchase(b *entity.ProductSupplierBinding) {
	stored := s.bindings[b.ID]
	stored.LastPurchasePrice = b.LastPurchasePrice
	stored.LastPurchaseAt = b.LastPurchaseAt
	stored.UpdatedAt = b.UpdatedAt
}
