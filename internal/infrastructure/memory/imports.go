package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

var (
	_ repository.ImportRepository        = (*ImportRepo)(nil)
	_ repository.BatchRepository         = (*BatchRepo)(nil)
	_ repository.InconsistencyRepository = (*InconsistencyRepo)(nil)
	_ repository.UnitRepository          = (*UnitRepo)(nil)
	_ repository.UserRepository          = (*UserRepo)(nil)
)

// ImportRepo importaciones en memoria. Las operaciones compare-and-set se resuelven
// bajo el mutex del Store.
type ImportRepo struct {
	s   *Store
	now func() time.Time
}

// NewImportRepository construye el repositorio.
func NewImportRepository(s *Store) *ImportRepo { return &ImportRepo{s: s, now: time.Now} }

func (r *ImportRepo) Create(_ context.Context, imp *entity.Import) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.imports[imp.ID]; ok {
		return domain.ErrDuplicate
	}
	r.s.imports[imp.ID] = cloneImport(imp)
	return nil
}

func (r *ImportRepo) GetByID(_ context.Context, id string) (*entity.Import, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneImport(r.s.imports[id]), nil
}

// Update persiste el registro conservando las marcas y contadores que otro actor
// haya escrito entre la lectura y esta escritura.
func (r *ImportRepo) Update(_ context.Context, imp *entity.Import) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.imports[imp.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.IsTerminal() && stored.Status != imp.Status {
		return domain.ErrConflict
	}
	next := cloneImport(imp)
	next.CancelRequested = next.CancelRequested || stored.CancelRequested
	next.MutationStarted = next.MutationStarted || stored.MutationStarted
	next.AdvanceCounters(stored.Counters)
	r.s.imports[imp.ID] = next
	return nil
}

func (r *ImportRepo) UpdateProgress(_ context.Context, id string, c entity.ImportCounters) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.imports[id]
	if !ok {
		return domain.ErrNotFound
	}
	stored.AdvanceCounters(c)
	stored.Touch(r.now())
	return nil
}

func (r *ImportRepo) RequestCancel(_ context.Context, id string, staleBefore time.Time) (*entity.Import, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.imports[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := stored.RequestCancel(r.now(), staleBefore); err != nil {
		return nil, err
	}
	return cloneImport(stored), nil
}

func (r *ImportRepo) BeginMutation(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.imports[id]
	if !ok {
		return domain.ErrNotFound
	}
	return stored.BeginMutation(r.now())
}

func (r *ImportRepo) ListByBatch(_ context.Context, batchID string) ([]*entity.Import, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Import
	for _, imp := range r.s.imports {
		if imp.BatchID == batchID {
			out = append(out, cloneImport(imp))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// BatchRepo lotes de importación en memoria.
type BatchRepo struct{ s *Store }

// NewBatchRepository construye el repositorio.
func NewBatchRepository(s *Store) *BatchRepo { return &BatchRepo{s: s} }

func (r *BatchRepo) Create(_ context.Context, b *entity.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.batches[b.ID]; ok {
		return domain.ErrDuplicate
	}
	c := *b
	r.s.batches[b.ID] = &c
	return nil
}

func (r *BatchRepo) GetByID(_ context.Context, id string) (*entity.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if v, ok := r.s.batches[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, nil
}

func (r *BatchRepo) Update(_ context.Context, b *entity.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.batches[b.ID]
	if !ok {
		return domain.ErrNotFound
	}
	c := *b
	c.CancelRequested = c.CancelRequested || stored.CancelRequested
	r.s.batches[b.ID] = &c
	return nil
}

// InconsistencyRepo hallazgos en memoria, en orden de inserción.
type InconsistencyRepo struct{ s *Store }

// NewInconsistencyRepository construye el repositorio.
func NewInconsistencyRepository(s *Store) *InconsistencyRepo { return &InconsistencyRepo{s: s} }

func (r *InconsistencyRepo) Create(_ context.Context, inc *entity.Inconsistency) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.inconsistencies[inc.ID]; ok {
		return domain.ErrDuplicate
	}
	c := *inc
	r.s.inconsistencies[inc.ID] = &c
	r.s.incOrder = append(r.s.incOrder, inc.ID)
	return nil
}

func (r *InconsistencyRepo) GetByID(_ context.Context, id string) (*entity.Inconsistency, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if v, ok := r.s.inconsistencies[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, nil
}

func (r *InconsistencyRepo) Update(_ context.Context, inc *entity.Inconsistency) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.inconsistencies[inc.ID]; !ok {
		return domain.ErrNotFound
	}
	c := *inc
	r.s.inconsistencies[inc.ID] = &c
	return nil
}

func (r *InconsistencyRepo) List(_ context.Context, f repository.InconsistencyFilter) ([]*entity.Inconsistency, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Inconsistency
	for _, id := range r.s.incOrder {
		inc := r.s.inconsistencies[id]
		if f.UnitID != "" && inc.UnitID != f.UnitID {
			continue
		}
		if f.Status != "" && inc.Status != f.Status {
			continue
		}
		if f.ImportID != "" && inc.ImportID != f.ImportID {
			continue
		}
		if f.InvoiceID != "" && inc.InvoiceID != f.InvoiceID {
			continue
		}
		c := *inc
		out = append(out, &c)
	}
	return page(out, f.Limit, f.Offset), nil
}

func (r *InconsistencyRepo) AttachInvoice(_ context.Context, importID, invoiceID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inc := range r.s.inconsistencies {
		if inc.ImportID == importID {
			inc.InvoiceID = invoiceID
		}
	}
	return nil
}

// UnitRepo unidades organizacionales en memoria.
type UnitRepo struct{ s *Store }

// NewUnitRepository construye el repositorio.
func NewUnitRepository(s *Store) *UnitRepo { return &UnitRepo{s: s} }

func (r *UnitRepo) GetByID(_ context.Context, id string) (*entity.Unit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if v, ok := r.s.units[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, nil
}

func (r *UnitRepo) ListByOrganization(_ context.Context, organizationID string) ([]*entity.Unit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Unit
	for _, u := range r.s.units {
		if u.OrganizationID == organizationID {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UserRepo usuarios en memoria.
type UserRepo struct{ s *Store }

// NewUserRepository construye el repositorio.
func NewUserRepository(s *Store) *UserRepo { return &UserRepo{s: s} }

func (r *UserRepo) ListOversightByUnit(_ context.Context, unitID string) ([]*entity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.User
	for _, u := range r.s.users {
		if u.Oversees(unitID) {
			c := *u
			c.UnitIDs = slices.Clone(u.UnitIDs)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
