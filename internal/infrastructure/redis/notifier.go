package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jhoicas/nfe-conciliacao/internal/application/importer"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

var _ importer.Notifier = (*Notifier)(nil)

// Message carga publicada por cada inconsistencia notificada.
type Message struct {
	UserID          string    `json:"user_id"`
	InconsistencyID string    `json:"inconsistency_id"`
	Type            string    `json:"type"`
	Severity        string    `json:"severity"`
	Blocking        bool      `json:"blocking"`
	Description     string    `json:"description"`
	ImportID        string    `json:"import_id"`
	UnitID          string    `json:"unit_id"`
	LineNumber      int       `json:"line_number,omitempty"`
	DetectedAt      time.Time `json:"detected_at"`
}

// Notifier publica las inconsistencias en un canal Pub/Sub de Redis.
type Notifier struct {
	rdb     goredis.UniversalClient
	channel string
}

// NewNotifier construye el notificador.
func NewNotifier(rdb goredis.UniversalClient, channel string) *Notifier {
	return &Notifier{rdb: rdb, channel: channel}
}

// Notify implementa importer.Notifier.
func (n *Notifier) Notify(ctx context.Context, userID string, inc *entity.Inconsistency) error {
	payload, err := json.Marshal(NewMessage(userID, inc))
	if err != nil {
		return fmt.Errorf("serializar notificación: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publicar en %s: %w", n.channel, err)
	}
	return nil
}

// NewMessage arma el mensaje para un usuario.
func NewMessage(userID string, inc *entity.Inconsistency) Message {
	return Message{
		UserID:          userID,
		InconsistencyID: inc.ID,
		Type:            inc.Type,
		Severity:        inc.Severity,
		Blocking:        inc.Blocking,
		Description:     inc.Description,
		ImportID:        inc.ImportID,
		UnitID:          inc.UnitID,
		LineNumber:      inc.LineNumber,
		DetectedAt:      inc.DetectedAt,
	}
}
