package http_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-conciliacao/internal/application/detector"
	"github.com/jhoicas/nfe-conciliacao/internal/application/dto"
	"github.com/jhoicas/nfe-conciliacao/internal/application/importer"
	"github.com/jhoicas/nfe-conciliacao/internal/application/inconsistency"
	"github.com/jhoicas/nfe-conciliacao/internal/application/inventory"
	"github.com/jhoicas/nfe-conciliacao/internal/application/reconciliation"
	"github.com/jhoicas/nfe-conciliacao/internal/application/resolver"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/memory"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/nfe"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/nfe/nfetest"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/pdf"
	apphttp "github.com/jhoicas/nfe-conciliacao/internal/interfaces/http"
)

// buildAPI arma la API completa sobre el almacenamiento en memoria.
func buildAPI(t *testing.T) *fiber.App {
	t.Helper()
	store := memory.NewStore()
	store.AddUnit(&entity.Unit{Audit: entity.Audit{ID: "unit-1", Active: true}, OrganizationID: testOrgID, Name: "Farmacia Central", TaxID: nfetest.UnitCNPJ})
	store.AddUnit(&entity.Unit{Audit: entity.Audit{ID: "unit-2", Active: true}, OrganizationID: testOrgID, Name: "Farmacia Norte", TaxID: nfetest.OtherUnitCNPJ})

	rules := detector.DefaultRuleSet(detector.Options{})
	imports := memory.NewImportRepository(store)
	lots := memory.NewLotRepository(store)
	products := memory.NewProductRepository(store)
	units := memory.NewUnitRepository(store)
	invoices := memory.NewInvoiceRepository(store)
	incs := memory.NewInconsistencyRepository(store)
	adjustments := memory.NewAdjustmentRepository(store)

	res := resolver.NewResolver(memory.NewSupplierRepository(store), products, memory.NewBindingRepository(store), lots, invoices)
	engine := reconciliation.NewEngine(memory.NewTxRunner(store), memory.NewLotLocker(), rules, zerolog.Nop())
	svc := importer.NewImportService(nfe.NewParser(), res, detector.NewDetector(rules), engine, importer.Repos{
		Imports:         imports,
		Invoices:        invoices,
		Inconsistencies: incs,
		Units:           units,
	}, nil, 0, zerolog.Nop())
	batches := importer.NewBatchService(svc, memory.NewBatchRepository(store), imports, 2, zerolog.Nop())
	t.Cleanup(batches.Wait)

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Imports:         svc,
		Batches:         batches,
		Reports:         importer.NewReportUseCase(imports, invoices, units, incs, adjustments, pdf.NewMarotoPDFGenerator()),
		Inconsistencies: inconsistency.NewReviewUseCase(incs, zerolog.Nop()),
		Stock:           inventory.NewStockUseCase(lots, adjustments, memory.NewValueHistoryRepository(store)),
		Replenishment:   inventory.NewReplenishmentUseCase(lots, products),
		Units:           units,
		JWTSecret:       testJWTSecret,
	})
	return app
}

func upload(t *testing.T, app *fiber.App, path, field, auth string, files map[string][]byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", auth)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func post(t *testing.T, app *fiber.App, path, auth, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func importPurchase(t *testing.T, app *fiber.App, number int) dto.ImportResultResponse {
	t.Helper()
	doc := nfetest.Purchase(number, nfetest.Paracetamol("50", "10.00", "LOTE001"))
	resp := upload(t, app, "/api/units/unit-1/imports", "file", tokenFor(t, entity.RoleOperator),
		map[string][]byte{"nfe.xml": doc.XML()})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var out dto.ImportResultResponse
	decodeBody(t, resp, &out)
	return out
}

// ── Importaciones ──

func TestImportAPI_ImportaYConsulta(t *testing.T) {
	app := buildAPI(t)
	res := importPurchase(t, app, 2001)
	assert.Equal(t, importer.ResultSuccess, res.Status)
	assert.Equal(t, 1, res.ItemsProcessed)
	require.NotEmpty(t, res.ImportID)

	resp := doGet(t, app, "/api/units/unit-1/imports/"+res.ImportID, tokenFor(t, entity.RoleOperator))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var imp dto.ImportResponse
	decodeBody(t, resp, &imp)
	assert.Equal(t, entity.ProcessingDone, imp.Status)
	assert.Equal(t, res.InvoiceID, imp.InvoiceID)

	// la importación no es visible desde otra unidad
	resp = doGet(t, app, "/api/units/unit-2/imports/"+res.ImportID, tokenFor(t, entity.RoleOperator))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestImportAPI_DocumentoDuplicado(t *testing.T) {
	app := buildAPI(t)
	doc := nfetest.Purchase(2002, nfetest.Paracetamol("10", "10.00", "LOTE001")).XML()
	auth := tokenFor(t, entity.RoleOperator)

	resp := upload(t, app, "/api/units/unit-1/imports", "file", auth, map[string][]byte{"a.xml": doc})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = upload(t, app, "/api/units/unit-1/imports", "file", auth, map[string][]byte{"b.xml": doc})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	var out dto.ImportResultResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, importer.ResultError, out.Status)
	assert.NotEmpty(t, out.Message)
}

func TestImportAPI_ArchivoInvalido(t *testing.T) {
	app := buildAPI(t)
	auth := tokenFor(t, entity.RoleOperator)

	resp := upload(t, app, "/api/units/unit-1/imports", "file", auth, map[string][]byte{"nfe.pdf": []byte("%PDF")})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = upload(t, app, "/api/units/unit-1/imports", "file", auth, map[string][]byte{"nfe.xml": []byte("<nfeProc><NFe>")})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = upload(t, app, "/api/units/unit-1/imports", "otro", auth, map[string][]byte{"nfe.xml": []byte("<x/>")})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestImportAPI_CancelarTerminada(t *testing.T) {
	app := buildAPI(t)
	res := importPurchase(t, app, 2003)
	resp := post(t, app, "/api/units/unit-1/imports/"+res.ImportID+"/cancel", tokenFor(t, entity.RoleOperator), "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestImportAPI_ReportePDF(t *testing.T) {
	app := buildAPI(t)
	res := importPurchase(t, app, 2004)
	resp := doGet(t, app, "/api/units/unit-1/imports/"+res.ImportID+"/report", tokenFor(t, entity.RoleOperator))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".pdf")
}

// ── Lotes ──

func TestBatchAPI_CreaYProcesa(t *testing.T) {
	app := buildAPI(t)
	files := map[string][]byte{
		"a.xml": nfetest.Purchase(3001, nfetest.Paracetamol("5", "10.00", "L1")).XML(),
		"b.xml": nfetest.Purchase(3002, nfetest.Dipirona("7", "4.50", "L2")).XML(),
	}
	resp := upload(t, app, "/api/units/unit-1/batches", "files", tokenFor(t, entity.RoleOperator), files)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var batch dto.BatchResponse
	decodeBody(t, resp, &batch)
	assert.Equal(t, 2, batch.ImportsTotal)
	assert.Len(t, batch.Imports, 2)

	// operador no cancela lotes
	resp = post(t, app, "/api/units/unit-1/batches/"+batch.ID+"/cancel", tokenFor(t, entity.RoleOperator), "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

// ── Inconsistencias ──

func TestInconsistencyAPI_ListaYResuelve(t *testing.T) {
	app := buildAPI(t)
	res := importPurchase(t, app, 4001)

	resp := doGet(t, app, "/api/units/unit-1/inconsistencies?import_id="+res.ImportID, tokenFor(t, entity.RoleOperator))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list dto.ListResponse[dto.InconsistencyResponse]
	decodeBody(t, resp, &list)
	require.NotEmpty(t, list.Items)
	assert.Equal(t, len(list.Items), list.Page.Count)
	id := list.Items[0].ID

	resp = doGet(t, app, "/api/units/unit-1/inconsistencies?status=OTRO", tokenFor(t, entity.RoleOperator))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = post(t, app, "/api/units/unit-1/inconsistencies/"+id+"/resolve", tokenFor(t, entity.RoleOperator), `{"note":"ok"}`)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "solo supervisión resuelve")

	resp = post(t, app, "/api/units/unit-1/inconsistencies/"+id+"/resolve", tokenFor(t, entity.RoleSupervisor), `{"note":"proveedor dado de alta"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var inc dto.InconsistencyResponse
	decodeBody(t, resp, &inc)
	assert.Equal(t, entity.InconsistencyResolved, inc.Status)
	assert.Equal(t, "proveedor dado de alta", inc.ResolutionNote)

	// estado terminal
	resp = post(t, app, "/api/units/unit-1/inconsistencies/"+id+"/dismiss", tokenFor(t, entity.RoleSupervisor), "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = doGet(t, app, "/api/units/unit-2/inconsistencies/"+id, tokenFor(t, entity.RoleOperator))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = doGet(t, app, "/api/units/unit-1/inconsistencies/no-existe", tokenFor(t, entity.RoleOperator))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

// ── Stock ──

func TestStockAPI_LotesYAuditoria(t *testing.T) {
	app := buildAPI(t)
	importPurchase(t, app, 5001)
	auth := tokenFor(t, entity.RoleOperator)

	resp := doGet(t, app, "/api/units/unit-1/stock/lots", auth)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list dto.ListResponse[dto.LotResponse]
	decodeBody(t, resp, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "LOTE001", list.Items[0].LotCode)

	resp = doGet(t, app, "/api/units/unit-1/stock/lots/"+list.Items[0].ID+"/audit", auth)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var audit dto.LotAuditResponse
	decodeBody(t, resp, &audit)
	assert.Len(t, audit.Adjustments, 1)

	resp = doGet(t, app, "/api/units/unit-1/stock/lots?limit=500", auth)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doGet(t, app, "/api/units/unit-1/stock/replenishment", auth)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
