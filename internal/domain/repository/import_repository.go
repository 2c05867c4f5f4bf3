package repository

import (
	"context"
	"time"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// ImportRepository puerto de persistencia del ciclo de vida de importaciones.
// RequestCancel y BeginMutation son compare-and-set sobre el registro.
type ImportRepository interface {
	Create(ctx context.Context, imp *entity.Import) error
	GetByID(ctx context.Context, id string) (*entity.Import, error)
	Update(ctx context.Context, imp *entity.Import) error
	// UpdateProgress aplica contadores sin retroceder ninguno.
	UpdateProgress(ctx context.Context, id string, c entity.ImportCounters) error
	// RequestCancel finaliza también una PROCESSING sin actividad desde staleBefore.
	RequestCancel(ctx context.Context, id string, staleBefore time.Time) (*entity.Import, error)
	BeginMutation(ctx context.Context, id string) error
	ListByBatch(ctx context.Context, batchID string) ([]*entity.Import, error)
}

// BatchRepository puerto de persistencia de lotes de importación.
type BatchRepository interface {
	Create(ctx context.Context, b *entity.Batch) error
	GetByID(ctx context.Context, id string) (*entity.Batch, error)
	Update(ctx context.Context, b *entity.Batch) error
}
