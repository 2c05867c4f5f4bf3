// Package memory implementación en memoria de los puertos de persistencia, con unidad de
// trabajo transaccional y bloqueo por lote en proceso. Usada en pruebas y en el modo
// de simulación del importador por línea de comandos.
package memory

import (
	"slices"
	"sync"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// Store estado compartido por todos los repositorios en memoria.
type Store struct {
	mu sync.RWMutex

	suppliers     map[string]*entity.Supplier
	supplierByTax map[string]string

	products     map[string]*entity.ProductReference
	productByKey map[string]string

	bindings      map[string]*entity.ProductSupplierBinding
	bindingByPair map[string]string

	lots     map[string]*entity.StockLot
	lotByKey map[string]string

	adjustments []*entity.StockAdjustment
	history     []*entity.ValueHistory

	invoices     map[string]*entity.Invoice
	invoiceByKey map[string]string

	inconsistencies map[string]*entity.Inconsistency
	incOrder        []string

	imports map[string]*entity.Import
	batches map[string]*entity.Batch
	units   map[string]*entity.Unit
	users   map[string]*entity.User
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{
		suppliers:       map[string]*entity.Supplier{},
		supplierByTax:   map[string]string{},
		products:        map[string]*entity.ProductReference{},
		productByKey:    map[string]string{},
		bindings:        map[string]*entity.ProductSupplierBinding{},
		bindingByPair:   map[string]string{},
		lots:            map[string]*entity.StockLot{},
		lotByKey:        map[string]string{},
		invoices:        map[string]*entity.Invoice{},
		invoiceByKey:    map[string]string{},
		inconsistencies: map[string]*entity.Inconsistency{},
		imports:         map[string]*entity.Import{},
		batches:         map[string]*entity.Batch{},
		units:           map[string]*entity.Unit{},
		users:           map[string]*entity.User{},
	}
}

// AddUnit registra una unidad organizacional.
func (s *Store) AddUnit(u *entity.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.units[u.ID] = &c
}

// AddUser registra un usuario.
func (s *Store) AddUser(u *entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	c.UnitIDs = slices.Clone(u.UnitIDs)
	s.users[u.ID] = &c
}

// Snapshot conteos de registros, útil para verificar atomicidad en pruebas.
type Snapshot struct {
	Suppliers       int
	Products        int
	Bindings        int
	Lots            int
	Adjustments     int
	ValueHistory    int
	Invoices        int
	Inconsistencies int
}

// Counts devuelve los conteos actuales.
func (s *Store) Counts() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Suppliers:       len(s.suppliers),
		Products:        len(s.products),
		Bindings:        len(s.bindings),
		Lots:            len(s.lots),
		Adjustments:     len(s.adjustments),
		ValueHistory:    len(s.history),
		Invoices:        len(s.invoices),
		Inconsistencies: len(s.inconsistencies),
	}
}

func pairKey(productID, supplierID string) string { return productID + "|" + supplierID }

func cloneLot(l *entity.StockLot) *entity.StockLot {
	if l == nil {
		return nil
	}
	c := *l
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func cloneImport(i *entity.Import) *entity.Import {
	if i == nil {
		return nil
	}
	c := *i
	c.ProcessingLog = slices.Clone(i.ProcessingLog)
	c.ErrorLog = slices.Clone(i.ErrorLog)
	return &c
}
