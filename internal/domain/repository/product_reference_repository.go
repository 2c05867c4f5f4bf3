package repository

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// ProductReferenceRepository puerto de persistencia para productos canónicos (DIP).
type ProductReferenceRepository interface {
	GetByID(ctx context.Context, id string) (*entity.ProductReference, error)
	GetByNaturalKey(ctx context.Context, key string) (*entity.ProductReference, error)
	// CreateIfAbsent compare-and-create por NaturalKey.
	CreateIfAbsent(ctx context.Context, p *entity.ProductReference) (*entity.ProductReference, bool, error)
	Update(ctx context.Context, p *entity.ProductReference) error
}
