// Package importer orquesta la importación de documentos NFe: análisis, resolución de
// entidades, detección de inconsistencias y conciliación de stock, persistiendo el
// estado de la importación antes y después de cada etapa.
package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/nfe-conciliacao/internal/application/detector"
	"github.com/jhoicas/nfe-conciliacao/internal/application/reconciliation"
	"github.com/jhoicas/nfe-conciliacao/internal/application/resolver"
	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	domnfe "github.com/jhoicas/nfe-conciliacao/internal/domain/nfe"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

// Etapas registradas en los logs de la importación.
const (
	StageParse     = "parse"
	StageDuplicate = "duplicate_check"
	StageResolve   = "resolve"
	StageDetect    = "detect"
	StageReconcile = "reconcile"
	StageCancel    = "cancel"
)

// Estados de ImportResult.
const (
	ResultSuccess = "SUCCESS"
	ResultError   = "ERROR"
)

// DefaultMaxFileBytes tamaño máximo de un XML.
const DefaultMaxFileBytes = 10 << 20

// DefaultStaleAfter inactividad tras la cual una importación PROCESSING se considera
// abandonada y Cancel la finaliza directamente.
const DefaultStaleAfter = 15 * time.Minute

// ImportResult resultado de procesar un documento.
type ImportResult struct {
	Status          string
	ImportID        string
	InvoiceID       string
	SupplierID      string
	ItemsProcessed  int
	Inconsistencies int
	Message         string
}

// SubmitRequest archivo a importar.
type SubmitRequest struct {
	UnitID   string
	ActorID  string
	BatchID  string
	FileName string
	Content  []byte
}

// Repos repositorios usados por el orquestador.
type Repos struct {
	Imports         repository.ImportRepository
	Invoices        repository.InvoiceRepository
	Inconsistencies repository.InconsistencyRepository
	Units           repository.UnitRepository
}

// ImportService orquestador de importaciones individuales.
type ImportService struct {
	parser       DocumentParser
	resolver     *resolver.Resolver
	detector     *detector.Detector
	engine       *reconciliation.Engine
	repos        Repos
	dispatcher   *NotificationDispatcher
	maxFileBytes int64
	staleAfter   time.Duration
	log          zerolog.Logger
	now          func() time.Time
}

// NewImportService construye el orquestador. dispatcher puede ser nil.
func NewImportService(
	parser DocumentParser,
	res *resolver.Resolver,
	det *detector.Detector,
	engine *reconciliation.Engine,
	repos Repos,
	dispatcher *NotificationDispatcher,
	maxFileBytes int64,
	log zerolog.Logger,
) *ImportService {
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}
	return &ImportService{
		parser:       parser,
		resolver:     res,
		detector:     det,
		engine:       engine,
		repos:        repos,
		dispatcher:   dispatcher,
		maxFileBytes: maxFileBytes,
		staleAfter:   DefaultStaleAfter,
		log:          log,
		now:          time.Now,
	}
}

// SetStaleAfter ajusta la inactividad que vuelve cancelable de inmediato una importación
// en PROCESSING; cero desactiva ese caso.
func (s *ImportService) SetStaleAfter(d time.Duration) { s.staleAfter = d }

// ValidateFile verifica extensión, tamaño y contenido no vacío.
func (s *ImportService) ValidateFile(fileName string, size int64) error {
	if !strings.EqualFold(filepath.Ext(fileName), ".xml") {
		return fmt.Errorf("archivo %q: solo se aceptan archivos .xml: %w", fileName, domain.ErrInvalidInput)
	}
	if size == 0 {
		return fmt.Errorf("archivo %q vacío: %w", fileName, domain.ErrInvalidInput)
	}
	if size > s.maxFileBytes {
		return fmt.Errorf("archivo %q supera %d bytes: %w", fileName, s.maxFileBytes, domain.ErrInvalidInput)
	}
	return nil
}

// Submit registra una importación PENDING.
func (s *ImportService) Submit(ctx context.Context, req SubmitRequest) (*entity.Import, error) {
	if req.UnitID == "" || req.ActorID == "" {
		return nil, domain.ErrInvalidInput
	}
	if err := s.ValidateFile(req.FileName, int64(len(req.Content))); err != nil {
		return nil, err
	}
	if err := s.requireUnit(ctx, req.UnitID); err != nil {
		return nil, err
	}
	imp := entity.NewImport(uuid.New().String(), req.UnitID, req.ActorID, req.BatchID, req.FileName, s.now())
	if err := s.repos.Imports.Create(ctx, imp); err != nil {
		return nil, fmt.Errorf("registrar importación: %w", err)
	}
	return imp, nil
}

func (s *ImportService) requireUnit(ctx context.Context, unitID string) error {
	unit, err := s.repos.Units.GetByID(ctx, unitID)
	if err != nil {
		return fmt.Errorf("consultar unidad: %w", err)
	}
	if unit == nil {
		return fmt.Errorf("unidad %s: %w", unitID, domain.ErrNotFound)
	}
	return nil
}

// ImportDocument registra y procesa un documento de forma síncrona.
func (s *ImportService) ImportDocument(ctx context.Context, req SubmitRequest) (*ImportResult, error) {
	imp, err := s.Submit(ctx, req)
	if err != nil {
		return &ImportResult{Status: ResultError, Message: err.Error()}, err
	}
	return s.Process(ctx, imp.ID, req.Content)
}

// Get devuelve la importación.
func (s *ImportService) Get(ctx context.Context, id string) (*entity.Import, error) {
	imp, err := s.repos.Imports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if imp == nil {
		return nil, domain.ErrNotFound
	}
	return imp, nil
}

// Cancel solicita la cancelación. Una importación PENDING queda CANCELLED de inmediato;
// una en PROCESSING se detiene en el siguiente punto de control si aún no inició la mutación,
// salvo que lleve más de staleAfter sin actividad: entonces se finaliza aquí.
func (s *ImportService) Cancel(ctx context.Context, id string) (*entity.Import, error) {
	var staleBefore time.Time
	if s.staleAfter > 0 {
		staleBefore = s.now().Add(-s.staleAfter)
	}
	imp, err := s.repos.Imports.RequestCancel(ctx, id, staleBefore)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("import_id", id).Str("status", imp.Status).Msg("cancelación solicitada")
	return imp, nil
}

// run estado de una ejecución de Process.
type run struct {
	imp      *entity.Import
	log      zerolog.Logger
	findings int
}

// Process ejecuta las etapas sobre una importación PENDING. Siempre devuelve un
// ImportResult; el error conserva la causa para errors.Is.
func (s *ImportService) Process(ctx context.Context, importID string, raw []byte) (*ImportResult, error) {
	imp, err := s.Get(ctx, importID)
	if err != nil {
		return &ImportResult{Status: ResultError, ImportID: importID, Message: err.Error()}, err
	}
	r := &run{imp: imp, log: s.log.With().Str("import_id", imp.ID).Str("batch_id", imp.BatchID).Logger()}

	if imp.Status == entity.ProcessingCancelled {
		return s.result(r, domain.ErrImportCancelled), domain.ErrImportCancelled
	}
	if err := imp.Start(s.now()); err != nil {
		if errors.Is(err, domain.ErrImportCancelled) {
			return s.cancel(r)
		}
		return s.result(r, err), err
	}
	s.save(r)
	r.log.Info().Str("file", imp.FileName).Msg("importación iniciada")

	if err := s.execute(ctx, r, raw); err != nil {
		return s.finishWithError(ctx, r, err)
	}
	if err := r.imp.Complete(s.now()); err != nil {
		return s.result(r, err), err
	}
	r.imp.Log(StageReconcile, "importación completada")
	s.save(r)
	r.log.Info().
		Str("invoice_id", r.imp.InvoiceID).
		Int("items", r.imp.Counters.Processed).
		Int("inconsistencies", r.findings).
		Msg("importación completada")
	return s.result(r, nil), nil
}

// stageError error atribuido a una etapa.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func inStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

func (s *ImportService) execute(ctx context.Context, r *run, raw []byte) error {
	imp := r.imp

	// 1. análisis
	if err := s.checkpoint(ctx, r); err != nil {
		return err
	}
	unit, err := s.repos.Units.GetByID(ctx, imp.UnitID)
	if err != nil {
		return inStage(StageParse, err)
	}
	if unit == nil {
		return inStage(StageParse, fmt.Errorf("unidad %s: %w", imp.UnitID, domain.ErrNotFound))
	}
	orgTaxIDs, err := s.organizationTaxIDs(ctx, unit)
	if err != nil {
		return inStage(StageParse, err)
	}
	doc, err := s.parser.Parse(raw, orgTaxIDs...)
	if err != nil {
		return inStage(StageParse, err)
	}
	imp.AccessKey = doc.Header.AccessKey
	imp.Digest = doc.Digest
	imp.OperationKind = doc.Header.Kind
	imp.AdvanceCounters(entity.ImportCounters{Total: len(doc.Items)})
	imp.Log(StageParse, "nota %s serie %s, %d ítems, operación %s", doc.Header.Number, doc.Header.Series, len(doc.Items), doc.Header.Kind)
	s.save(r)

	// 2. documento ya conciliado
	if err := s.checkpoint(ctx, r); err != nil {
		return err
	}
	existing, err := s.repos.Invoices.GetByAccessKey(ctx, doc.Header.AccessKey)
	if err != nil {
		return inStage(StageDuplicate, err)
	}
	if existing != nil {
		return inStage(StageDuplicate, s.duplicate(ctx, r, doc.Header.AccessKey, existing.ID))
	}

	// 3. resolución de entidades
	if err := s.checkpoint(ctx, r); err != nil {
		return err
	}
	res, err := s.resolver.Resolve(ctx, doc, imp.UnitID)
	if err != nil {
		return inStage(StageResolve, err)
	}
	if res.Supplier != nil {
		imp.SupplierID = res.Supplier.ID
	}
	imp.Log(StageResolve, "proveedor creado=%t actualizado=%t", res.SupplierCreated, res.SupplierUpdated)
	s.save(r)

	// 4. detección
	if err := s.checkpoint(ctx, r); err != nil {
		return err
	}
	findings, err := s.detector.Detect(ctx, detector.Input{
		ImportID:           imp.ID,
		UnitID:             imp.UnitID,
		OrganizationTaxIDs: orgTaxIDs,
		Doc:                doc,
		Resolution:         res,
	})
	if err != nil {
		return inStage(StageDetect, err)
	}
	if err := s.persistFindings(ctx, r, findings, ""); err != nil {
		return inStage(StageDetect, err)
	}
	imp.Log(StageDetect, "%d hallazgos", len(findings))
	if detector.HasBlocking(findings) {
		return inStage(StageDetect, fmt.Errorf("%s: %w", blockingSummary(findings), domain.ErrBlockingInconsistency))
	}
	s.save(r)

	// 5. conciliación
	if err := s.checkpoint(ctx, r); err != nil {
		return err
	}
	return inStage(StageReconcile, s.reconcile(ctx, r, doc, res))
}

func (s *ImportService) reconcile(ctx context.Context, r *run, doc *domnfe.Document, res *resolver.Resolution) error {
	imp := r.imp
	now := s.now()
	inv := &entity.Invoice{
		Audit:          entity.Audit{ID: uuid.New().String(), Active: true},
		AccessKey:      doc.Header.AccessKey,
		Number:         doc.Header.Number,
		Series:         doc.Header.Series,
		Model:          doc.Header.Model,
		OperationKind:  doc.Header.Kind,
		EmittedAt:      doc.Header.EmittedAt,
		TotalValue:     doc.Header.TotalValue,
		IssuerTaxID:    doc.Issuer.TaxID,
		RecipientTaxID: doc.Recipient.TaxID,
		SupplierID:     imp.SupplierID,
		UnitID:         imp.UnitID,
		ImportID:       imp.ID,
		ItemCount:      len(doc.Items),
	}
	inv.Touch(now)

	lines := make([]reconciliation.Line, 0, len(res.Lines))
	for _, l := range res.Lines {
		lines = append(lines, reconciliation.Line{Item: l.Item, ProductID: l.Product.ID, Binding: l.Binding})
	}

	out, err := s.engine.Reconcile(ctx, reconciliation.Request{
		ImportID:      imp.ID,
		UnitID:        imp.UnitID,
		ActorID:       imp.ActorID,
		OperationKind: doc.Header.Kind,
		Invoice:       inv,
		Lines:         lines,
		BeforeMutation: func(ctx context.Context) error {
			if err := s.repos.Imports.BeginMutation(ctx, imp.ID); err != nil {
				return err
			}
			imp.MutationStarted = true
			return nil
		},
		OnProgress: func(p reconciliation.Progress) {
			c := entity.ImportCounters{Processed: p.Processed, Succeeded: p.Succeeded, Failed: p.Failed}
			imp.AdvanceCounters(c)
			if err := s.repos.Imports.UpdateProgress(context.WithoutCancel(ctx), imp.ID, c); err != nil {
				r.log.Warn().Err(err).Msg("no se pudo registrar el avance")
			}
		},
	})
	if err != nil {
		if se, ok := reconciliation.IsStockError(err); ok {
			if perr := s.persistFindings(ctx, r, []detector.Finding{se.Finding}, ""); perr != nil {
				r.log.Warn().Err(perr).Msg("no se pudo registrar el hallazgo de stock")
			}
		}
		// otra importación del mismo documento confirmó primero
		if errors.Is(err, domain.ErrDuplicateDocument) {
			if winner, _ := s.repos.Invoices.GetByAccessKey(context.WithoutCancel(ctx), doc.Header.AccessKey); winner != nil {
				return s.duplicate(ctx, r, doc.Header.AccessKey, winner.ID)
			}
		}
		return err
	}

	// el stock ya está confirmado: el registro posterior no debe cortarse por el llamador
	ctx = context.WithoutCancel(ctx)
	imp.InvoiceID = inv.ID
	imp.AdvanceCounters(entity.ImportCounters{
		Processed: out.Progress.Processed,
		Succeeded: out.Progress.Succeeded,
		Failed:    out.Progress.Failed,
	})
	if err := s.persistFindings(ctx, r, out.Findings, inv.ID); err != nil {
		r.log.Warn().Err(err).Msg("no se pudieron registrar los hallazgos de stock")
	}
	if err := s.repos.Inconsistencies.AttachInvoice(ctx, imp.ID, inv.ID); err != nil {
		r.log.Warn().Err(err).Msg("no se pudo vincular hallazgos con la nota")
	}
	imp.Log(StageReconcile, "%d ajustes, %d cambios de valor", len(out.Adjustments), len(out.ValueHistory))
	return nil
}

// duplicate registra el hallazgo de chave ya conciliada y devuelve ErrDuplicateDocument.
func (s *ImportService) duplicate(ctx context.Context, r *run, accessKey, invoiceID string) error {
	if f, ok := s.detector.Rules().DuplicateFinding(accessKey, invoiceID); ok {
		if err := s.persistFindings(ctx, r, []detector.Finding{f}, ""); err != nil {
			r.log.Warn().Err(err).Msg("no se pudo registrar el hallazgo de duplicado")
		}
	}
	return fmt.Errorf("chave %s ya conciliada en la nota %s: %w", accessKey, invoiceID, domain.ErrDuplicateDocument)
}

// checkpoint detiene el procesamiento si el llamador canceló o se pidió cancelar.
func (s *ImportService) checkpoint(ctx context.Context, r *run) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrImportCancelled, err)
	}
	cur, err := s.repos.Imports.GetByID(ctx, r.imp.ID)
	if err != nil {
		return err
	}
	if cur != nil && cur.CancelRequested {
		r.imp.CancelRequested = true
		return domain.ErrImportCancelled
	}
	return nil
}

func (s *ImportService) finishWithError(ctx context.Context, r *run, err error) (*ImportResult, error) {
	cancelled := errors.Is(err, domain.ErrImportCancelled) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if cancelled && !r.imp.MutationStarted {
		return s.cancel(r)
	}

	stage := StageParse
	var se *stageError
	if errors.As(err, &se) {
		stage = se.stage
	}
	if ferr := r.imp.Fail(stage, err, s.now()); ferr != nil {
		r.log.Error().Err(ferr).Msg("transición a ERROR rechazada")
	}
	s.save(r)
	r.log.Warn().Err(err).Str("stage", stage).Msg("importación con error")
	return s.result(r, err), err
}

func (s *ImportService) cancel(r *run) (*ImportResult, error) {
	if err := r.imp.Cancel(s.now()); err != nil {
		r.log.Error().Err(err).Msg("transición a CANCELLED rechazada")
	}
	r.imp.Log(StageCancel, "importación cancelada")
	s.save(r)
	r.log.Info().Msg("importación cancelada")
	return s.result(r, domain.ErrImportCancelled), domain.ErrImportCancelled
}

// save persiste el registro; corre desligado del contexto del llamador para que el
// estado final siempre quede escrito. Cada guardado cuenta como actividad.
func (s *ImportService) save(r *run) {
	r.imp.Touch(s.now())
	if err := s.repos.Imports.Update(context.Background(), r.imp); err != nil {
		r.log.Error().Err(err).Msg("no se pudo persistir la importación")
	}
}

func (s *ImportService) persistFindings(ctx context.Context, r *run, findings []detector.Finding, invoiceID string) error {
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	for _, f := range findings {
		inc := &entity.Inconsistency{
			Audit:       entity.Audit{ID: uuid.New().String(), Active: true},
			Type:        f.Type,
			Severity:    f.Severity,
			Blocking:    f.Blocking,
			Status:      entity.InconsistencyPending,
			Description: f.Description,
			Suggestion:  f.Suggestion,
			LineNumber:  f.LineNumber,
			DetectedAt:  now,
			ImportID:    r.imp.ID,
			InvoiceID:   invoiceID,
			UnitID:      r.imp.UnitID,
		}
		inc.Touch(now)
		if err := s.repos.Inconsistencies.Create(ctx, inc); err != nil {
			return fmt.Errorf("registrar inconsistencia %s: %w", f.Type, err)
		}
		r.findings++
		r.imp.InconsistencyCount++
		s.dispatcher.Dispatch(inc)
	}
	return nil
}

func (s *ImportService) organizationTaxIDs(ctx context.Context, unit *entity.Unit) ([]string, error) {
	units, err := s.repos.Units.ListByOrganization(ctx, unit.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("unidades de la organización: %w", err)
	}
	ids := make([]string, 0, len(units)+1)
	ids = append(ids, unit.TaxID)
	for _, u := range units {
		if u.ID != unit.ID && u.TaxID != "" {
			ids = append(ids, u.TaxID)
		}
	}
	return ids, nil
}

func (s *ImportService) result(r *run, err error) *ImportResult {
	out := &ImportResult{
		Status:          ResultSuccess,
		ImportID:        r.imp.ID,
		InvoiceID:       r.imp.InvoiceID,
		SupplierID:      r.imp.SupplierID,
		ItemsProcessed:  r.imp.Counters.Processed,
		Inconsistencies: r.findings,
		Message:         "importación completada",
	}
	if err != nil {
		out.Status = ResultError
		out.Message = err.Error()
	}
	return out
}

func blockingSummary(findings []detector.Finding) string {
	var kinds []string
	for _, f := range findings {
		if f.Blocking {
			kinds = append(kinds, f.Type)
		}
	}
	return strings.Join(kinds, ", ")
}
