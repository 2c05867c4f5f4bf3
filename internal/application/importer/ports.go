package importer

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	domnfe "github.com/jhoicas/nfe-conciliacao/internal/domain/nfe"
)

// DocumentParser convierte el XML crudo en un documento estructurado.
type DocumentParser interface {
	Parse(raw []byte, organizationTaxIDs ...string) (*domnfe.Document, error)
}

// Notifier entrega una inconsistencia a un usuario supervisor.
type Notifier interface {
	Notify(ctx context.Context, userID string, inc *entity.Inconsistency) error
}
