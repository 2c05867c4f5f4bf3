// Package inconsistency flujo de revisión de hallazgos: en revisión, resuelto o descartado.
package inconsistency

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/nfe-conciliacao/internal/application/dto"
	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

// ReviewUseCase revisión de inconsistencias.
type ReviewUseCase struct {
	repo repository.InconsistencyRepository
	log  zerolog.Logger
	now  func() time.Time
}

// NewReviewUseCase construye el caso de uso.
func NewReviewUseCase(repo repository.InconsistencyRepository, log zerolog.Logger) *ReviewUseCase {
	return &ReviewUseCase{repo: repo, log: log, now: time.Now}
}

// List hallazgos filtrados por unidad, estado e importación.
func (uc *ReviewUseCase) List(ctx context.Context, q dto.ListInconsistenciesQuery) ([]dto.InconsistencyResponse, error) {
	if q.UnitID == "" {
		return nil, domain.ErrInvalidInput
	}
	q.DefaultPage()
	items, err := uc.repo.List(ctx, repository.InconsistencyFilter{
		UnitID:    q.UnitID,
		Status:    q.Status,
		ImportID:  q.ImportID,
		InvoiceID: q.InvoiceID,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]dto.InconsistencyResponse, 0, len(items))
	for _, i := range items {
		out = append(out, dto.FromInconsistency(i))
	}
	return out, nil
}

// Get hallazgo por ID, restringido a la unidad si se indica.
func (uc *ReviewUseCase) Get(ctx context.Context, unitID, id string) (*dto.InconsistencyResponse, error) {
	inc, err := uc.load(ctx, unitID, id)
	if err != nil {
		return nil, err
	}
	out := dto.FromInconsistency(inc)
	return &out, nil
}

// StartReview PENDING -> UNDER_REVIEW.
func (uc *ReviewUseCase) StartReview(ctx context.Context, unitID, id, reviewerID string) (*dto.InconsistencyResponse, error) {
	return uc.transition(ctx, unitID, id, reviewerID, entity.InconsistencyUnderReview, "")
}

// Resolve -> RESOLVED con nota.
func (uc *ReviewUseCase) Resolve(ctx context.Context, unitID, id, reviewerID, note string) (*dto.InconsistencyResponse, error) {
	if note == "" {
		return nil, domain.ErrInvalidInput
	}
	return uc.transition(ctx, unitID, id, reviewerID, entity.InconsistencyResolved, note)
}

// Dismiss -> DISMISSED.
func (uc *ReviewUseCase) Dismiss(ctx context.Context, unitID, id, reviewerID, note string) (*dto.InconsistencyResponse, error) {
	return uc.transition(ctx, unitID, id, reviewerID, entity.InconsistencyDismissed, note)
}

func (uc *ReviewUseCase) transition(ctx context.Context, unitID, id, reviewerID, status, note string) (*dto.InconsistencyResponse, error) {
	if reviewerID == "" {
		return nil, domain.ErrUnauthorized
	}
	inc, err := uc.load(ctx, unitID, id)
	if err != nil {
		return nil, err
	}
	if err := inc.TransitionTo(status, reviewerID, note, uc.now()); err != nil {
		return nil, err
	}
	if err := uc.repo.Update(ctx, inc); err != nil {
		return nil, err
	}
	uc.log.Info().
		Str("inconsistency_id", id).
		Str("status", status).
		Str("reviewer_id", reviewerID).
		Msg("inconsistencia revisada")
	out := dto.FromInconsistency(inc)
	return &out, nil
}

func (uc *ReviewUseCase) load(ctx context.Context, unitID, id string) (*entity.Inconsistency, error) {
	inc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, domain.ErrNotFound
	}
	if unitID != "" && inc.UnitID != unitID {
		return nil, domain.ErrForbidden
	}
	return inc, nil
}
