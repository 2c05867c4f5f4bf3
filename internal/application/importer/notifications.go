package importer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

const notifyTimeout = 10 * time.Second

// NotificationDispatcher envía cada inconsistencia a los supervisores de la unidad en
// segundo plano. Los fallos del notificador solo se registran en el log.
type NotificationDispatcher struct {
	users    repository.UserRepository
	notifier Notifier
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// NewNotificationDispatcher construye el despachador. notifier nil deshabilita el envío.
func NewNotificationDispatcher(users repository.UserRepository, notifier Notifier, log zerolog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{users: users, notifier: notifier, log: log}
}

// Dispatch programa el envío y retorna de inmediato.
func (d *NotificationDispatcher) Dispatch(inc *entity.Inconsistency) {
	if d == nil || d.notifier == nil || d.users == nil {
		return
	}
	c := *inc
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		d.deliver(ctx, &c)
	}()
}

func (d *NotificationDispatcher) deliver(ctx context.Context, inc *entity.Inconsistency) {
	users, err := d.users.ListOversightByUnit(ctx, inc.UnitID)
	if err != nil {
		d.log.Warn().Err(err).Str("unit_id", inc.UnitID).Msg("no se pudo obtener supervisores")
		return
	}
	for _, u := range users {
		if err := d.notifier.Notify(ctx, u.ID, inc); err != nil {
			d.log.Warn().Err(err).
				Str("user_id", u.ID).
				Str("inconsistency_id", inc.ID).
				Msg("notificación fallida")
		}
	}
}

// Wait espera a que terminen los envíos en curso.
func (d *NotificationDispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

// LogNotifier registra las notificaciones en el log; útil sin transporte configurado.
type LogNotifier struct {
	Log zerolog.Logger
}

// Notify implementa Notifier.
func (n LogNotifier) Notify(_ context.Context, userID string, inc *entity.Inconsistency) error {
	n.Log.Info().
		Str("user_id", userID).
		Str("type", inc.Type).
		Str("severity", inc.Severity).
		Str("import_id", inc.ImportID).
		Msg(inc.Description)
	return nil
}
