package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

// DefaultBatchWorkers paralelismo por defecto de un lote.
const DefaultBatchWorkers = 4

// BatchFile archivo de un lote.
type BatchFile struct {
	FileName string
	Content  []byte
}

// CreateBatchRequest datos para crear un lote.
type CreateBatchRequest struct {
	UnitID      string
	ActorID     string
	Description string
	Files       []BatchFile
}

// BatchService procesa varios documentos con paralelismo acotado. Un error en una
// importación hija nunca hace fallar el lote.
type BatchService struct {
	imports    *ImportService
	batches    repository.BatchRepository
	importRepo repository.ImportRepository
	workers    int
	log        zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	payloads map[string]map[string][]byte // batchID -> importID -> XML
	wg       sync.WaitGroup
}

// NewBatchService construye el servicio.
func NewBatchService(imports *ImportService, batches repository.BatchRepository, importRepo repository.ImportRepository, workers int, log zerolog.Logger) *BatchService {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	return &BatchService{
		imports:    imports,
		batches:    batches,
		importRepo: importRepo,
		workers:    workers,
		log:        log,
		now:        time.Now,
		payloads:   map[string]map[string][]byte{},
	}
}

// Create registra el lote y una importación PENDING por archivo. Todo se valida antes
// de escribir; si aun así falla el registro de una hija, el lote y las hijas ya creadas
// quedan CANCELLED.
func (s *BatchService) Create(ctx context.Context, req CreateBatchRequest) (*entity.Batch, []*entity.Import, error) {
	if req.UnitID == "" || req.ActorID == "" || len(req.Files) == 0 {
		return nil, nil, domain.ErrInvalidInput
	}
	for _, f := range req.Files {
		if err := s.imports.ValidateFile(f.FileName, int64(len(f.Content))); err != nil {
			return nil, nil, err
		}
	}
	if err := s.imports.requireUnit(ctx, req.UnitID); err != nil {
		return nil, nil, err
	}

	batch := entity.NewBatch(uuid.New().String(), req.UnitID, req.ActorID, req.Description, len(req.Files), s.now())
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, nil, fmt.Errorf("registrar lote: %w", err)
	}

	children := make([]*entity.Import, 0, len(req.Files))
	payloads := make(map[string][]byte, len(req.Files))
	for _, f := range req.Files {
		imp, err := s.imports.Submit(ctx, SubmitRequest{
			UnitID:   req.UnitID,
			ActorID:  req.ActorID,
			BatchID:  batch.ID,
			FileName: f.FileName,
			Content:  f.Content,
		})
		if err != nil {
			s.abort(ctx, batch, children)
			return nil, nil, fmt.Errorf("registrar %s: %w", f.FileName, err)
		}
		children = append(children, imp)
		payloads[imp.ID] = f.Content
	}

	s.mu.Lock()
	s.payloads[batch.ID] = payloads
	s.mu.Unlock()

	s.log.Info().Str("batch_id", batch.ID).Int("imports", len(children)).Msg("lote creado")
	return batch, children, nil
}

// abort cancela las hijas ya registradas y cierra el lote.
func (s *BatchService) abort(ctx context.Context, batch *entity.Batch, children []*entity.Import) {
	ctx = context.WithoutCancel(ctx)
	log := s.log.With().Str("batch_id", batch.ID).Logger()
	for _, child := range children {
		if _, err := s.imports.Cancel(ctx, child.ID); err != nil {
			log.Error().Err(err).Str("import_id", child.ID).Msg("no se pudo cancelar la importación hija")
		}
	}
	now := s.now()
	batch.CancelRequested = true
	if current, err := s.importRepo.ListByBatch(ctx, batch.ID); err == nil {
		batch.Aggregate(current, now)
	}
	if err := batch.Abort(now); err != nil {
		log.Error().Err(err).Msg("transición a CANCELLED rechazada")
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		log.Error().Err(err).Msg("no se pudo cerrar el lote")
	}
	log.Warn().Int("registered", len(children)).Msg("lote cancelado al registrar sus importaciones")
}

// Run procesa las importaciones pendientes del lote y devuelve el agregado final.
func (s *BatchService) Run(ctx context.Context, batchID string) (*entity.Batch, error) {
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.IsTerminal() {
		return batch, nil
	}
	if err := batch.Start(s.now()); err != nil {
		return nil, err
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, fmt.Errorf("actualizar lote: %w", err)
	}

	children, err := s.importRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("importaciones del lote: %w", err)
	}
	s.mu.Lock()
	payloads := s.payloads[batchID]
	s.mu.Unlock()

	log := s.log.With().Str("batch_id", batchID).Logger()
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, child := range children {
		if child.Status != entity.ProcessingPending {
			continue
		}
		g.Go(func() error {
			raw, ok := payloads[child.ID]
			if !ok {
				log.Warn().Str("import_id", child.ID).Msg("contenido no disponible")
				s.failOrphan(ctx, child.ID)
			} else if _, err := s.imports.Process(ctx, child.ID, raw); err != nil && !errors.Is(err, domain.ErrImportCancelled) {
				log.Debug().Err(err).Str("import_id", child.ID).Msg("importación hija con error")
			}
			if _, err := s.refresh(context.WithoutCancel(ctx), batchID); err != nil {
				log.Warn().Err(err).Msg("no se pudo agregar el lote")
			}
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	delete(s.payloads, batchID)
	s.mu.Unlock()

	batch, err = s.refresh(context.WithoutCancel(ctx), batchID)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("status", batch.Status).
		Int("done", batch.ImportsDone).
		Int("failed", batch.ImportsFailed).
		Int("cancelled", batch.ImportsCancelled).
		Msg("lote finalizado")
	return batch, nil
}

// Start ejecuta Run en segundo plano, desligado de la cancelación del llamador.
func (s *BatchService) Start(ctx context.Context, batchID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Run(context.WithoutCancel(ctx), batchID); err != nil {
			s.log.Error().Err(err).Str("batch_id", batchID).Msg("lote con error")
		}
	}()
}

// Wait espera a que terminen los lotes iniciados con Start.
func (s *BatchService) Wait() { s.wg.Wait() }

// Cancel marca el lote y solicita la cancelación de cada hija no terminal.
func (s *BatchService) Cancel(ctx context.Context, batchID string) (*entity.Batch, error) {
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.IsTerminal() {
		return nil, fmt.Errorf("lote %s en estado %s: %w", batchID, batch.Status, domain.ErrInvalidTransition)
	}
	batch.CancelRequested = true
	batch.Touch(s.now())
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, fmt.Errorf("actualizar lote: %w", err)
	}

	children, err := s.importRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.IsTerminal() {
			continue
		}
		if _, err := s.imports.Cancel(ctx, child.ID); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return nil, err
		}
	}
	return s.refresh(ctx, batchID)
}

// Get devuelve el lote.
func (s *BatchService) Get(ctx context.Context, batchID string) (*entity.Batch, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrNotFound
	}
	return batch, nil
}

// Children importaciones del lote.
func (s *BatchService) Children(ctx context.Context, batchID string) ([]*entity.Import, error) {
	if _, err := s.Get(ctx, batchID); err != nil {
		return nil, err
	}
	return s.importRepo.ListByBatch(ctx, batchID)
}

// refresh recalcula el agregado a partir de las hijas. Serializado para que las
// escrituras concurrentes de los workers no retrocedan contadores.
func (s *BatchService) refresh(ctx context.Context, batchID string) (*entity.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	children, err := s.importRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	batch.Aggregate(children, s.now())
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, fmt.Errorf("actualizar lote: %w", err)
	}
	return batch, nil
}

// failOrphan cierra una hija cuyo contenido se perdió (p. ej. reinicio del proceso).
func (s *BatchService) failOrphan(ctx context.Context, importID string) {
	imp, err := s.importRepo.GetByID(ctx, importID)
	if err != nil || imp == nil {
		return
	}
	now := s.now()
	if err := imp.Start(now); err != nil {
		_ = imp.Cancel(now)
	} else {
		_ = imp.Fail(StageParse, fmt.Errorf("contenido del archivo no disponible: %w", domain.ErrInvalidInput), now)
	}
	_ = s.importRepo.Update(context.WithoutCancel(ctx), imp)
}
