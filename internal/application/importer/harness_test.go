package importer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-conciliacao/internal/application/detector"
	"github.com/jhoicas/nfe-conciliacao/internal/application/importer"
	"github.com/jhoicas/nfe-conciliacao/internal/application/reconciliation"
	"github.com/jhoicas/nfe-conciliacao/internal/application/resolver"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	domnfe "github.com/jhoicas/nfe-conciliacao/internal/domain/nfe"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/memory"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/nfe"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/nfe/nfetest"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testUnitID      = "unit-1"
	testOtherUnitID = "unit-2"
	testActorID     = "user-operator"
	testSupervisor  = "user-supervisor"
)

// recordingNotifier guarda las notificaciones recibidas; fail simula un transporte caído.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, inc *entity.Inconsistency) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("transporte no disponible")
	}
	n.sent = append(n.sent, userID+":"+inc.Type)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// hookParser permite ejecutar código durante la etapa de análisis.
type hookParser struct {
	inner  importer.DocumentParser
	onCall func()
}

func (p *hookParser) Parse(raw []byte, org ...string) (*domnfe.Document, error) {
	if p.onCall != nil {
		p.onCall()
	}
	return p.inner.Parse(raw, org...)
}

type harness struct {
	store      *memory.Store
	svc        *importer.ImportService
	batches    *importer.BatchService
	dispatcher *importer.NotificationDispatcher
	notifier   *recordingNotifier
	parser     *hookParser
	imports    *memory.ImportRepo
	units      *memory.UnitRepo
	lots       *memory.LotRepo
	adjust     *memory.AdjustmentRepo
	history    *memory.ValueHistoryRepo
	incs       *memory.InconsistencyRepo
	invoices   *memory.InvoiceRepo
}

type harnessOptions struct {
	rules detector.Options
	yaml  string
	// suppliers envuelve el repositorio de proveedores (fallas simuladas).
	suppliers func(repository.SupplierRepository) repository.SupplierRepository
	// imports envuelve el repositorio de importaciones que usan los servicios.
	imports func(repository.ImportRepository) repository.ImportRepository
}

func newHarness(t *testing.T, opts ...harnessOptions) *harness {
	t.Helper()
	var o harnessOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	store := memory.NewStore()
	store.AddUnit(&entity.Unit{Audit: entity.Audit{ID: testUnitID, Active: true}, OrganizationID: "org-1", Name: "Farmacia Central", TaxID: nfetest.UnitCNPJ})
	store.AddUnit(&entity.Unit{Audit: entity.Audit{ID: testOtherUnitID, Active: true}, OrganizationID: "org-1", Name: "Farmacia Norte", TaxID: nfetest.OtherUnitCNPJ})
	store.AddUser(&entity.User{Audit: entity.Audit{ID: testSupervisor, Active: true}, OrganizationID: "org-1", Role: entity.RoleSupervisor, UnitIDs: []string{testUnitID}, Oversight: true})
	store.AddUser(&entity.User{Audit: entity.Audit{ID: testActorID, Active: true}, OrganizationID: "org-1", Role: entity.RoleOperator, UnitIDs: []string{testUnitID}})

	rules := detector.DefaultRuleSet(o.rules)
	if o.yaml != "" {
		require.NoError(t, detector.ApplyOverrides([]byte(o.yaml), rules))
	}

	imports := memory.NewImportRepository(store)
	lots := memory.NewLotRepository(store)
	invoices := memory.NewInvoiceRepository(store)
	var suppliers repository.SupplierRepository = memory.NewSupplierRepository(store)
	if o.suppliers != nil {
		suppliers = o.suppliers(suppliers)
	}
	res := resolver.NewResolver(
		suppliers,
		memory.NewProductRepository(store),
		memory.NewBindingRepository(store),
		lots,
		invoices,
	)
	det := detector.NewDetector(rules)
	engine := reconciliation.NewEngine(memory.NewTxRunner(store), memory.NewLotLocker(), rules, zerolog.Nop())

	notifier := &recordingNotifier{}
	dispatcher := importer.NewNotificationDispatcher(memory.NewUserRepository(store), notifier, zerolog.Nop())
	parser := &hookParser{inner: nfe.NewParser()}

	h := &harness{
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifier,
		parser:     parser,
		imports:    imports,
		units:      memory.NewUnitRepository(store),
		lots:       lots,
		adjust:     memory.NewAdjustmentRepository(store),
		history:    memory.NewValueHistoryRepository(store),
		incs:       memory.NewInconsistencyRepository(store),
		invoices:   invoices,
	}
	var importRepo repository.ImportRepository = imports
	if o.imports != nil {
		importRepo = o.imports(imports)
	}
	h.svc = importer.NewImportService(parser, res, det, engine, importer.Repos{
		Imports:         importRepo,
		Invoices:        h.invoices,
		Inconsistencies: h.incs,
		Units:           memory.NewUnitRepository(store),
	}, dispatcher, 0, zerolog.Nop())
	h.batches = importer.NewBatchService(h.svc, memory.NewBatchRepository(store), importRepo, 3, zerolog.Nop())
	t.Cleanup(func() {
		h.batches.Wait()
		dispatcher.Wait()
	})
	return h
}

func request(b *nfetest.Builder) importer.SubmitRequest {
	return importer.SubmitRequest{
		UnitID:   testUnitID,
		ActorID:  testActorID,
		FileName: fmt.Sprintf("nfe-%d.xml", b.Number),
		Content:  b.XML(),
	}
}

func (h *harness) importDoc(t *testing.T, b *nfetest.Builder) (*importer.ImportResult, error) {
	t.Helper()
	return h.svc.ImportDocument(context.Background(), request(b))
}

func (h *harness) mustImport(t *testing.T, b *nfetest.Builder) *importer.ImportResult {
	t.Helper()
	res, err := h.importDoc(t, b)
	require.NoError(t, err)
	require.Equal(t, importer.ResultSuccess, res.Status, res.Message)
	return res
}

// lotByCode busca el lote de la unidad de prueba con ese código.
func (h *harness) lotByCode(t *testing.T, code string) *entity.StockLot {
	t.Helper()
	lots, err := h.lots.ListByUnit(context.Background(), testUnitID, 0, 0)
	require.NoError(t, err)
	for _, l := range lots {
		if l.LotCode == code {
			return l
		}
	}
	return nil
}

func (h *harness) findings(t *testing.T, importID string) []*entity.Inconsistency {
	t.Helper()
	items, err := h.incs.List(context.Background(), repository.InconsistencyFilter{ImportID: importID})
	require.NoError(t, err)
	return items
}

func types(items []*entity.Inconsistency) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.Type)
	}
	return out
}

// saleItem ítem de venta (CFOP de salida).
func saleItem(item nfetest.Item) nfetest.Item {
	item.CFOP = "5102"
	return item
}
