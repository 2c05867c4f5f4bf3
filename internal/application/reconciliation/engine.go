// Package reconciliation aplica los ítems de un documento sobre los lotes de stock en una
// única unidad de trabajo, con bloqueo por lote y auditoría completa.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-conciliacao/internal/application/detector"
	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/inventory"
	domnfe "github.com/jhoicas/nfe-conciliacao/internal/domain/nfe"
)

// Line ítem a conciliar con su producto y vínculo ya resueltos.
type Line struct {
	Item      domnfe.LineItem
	ProductID string
	Binding   *entity.ProductSupplierBinding // nil: no hay lote posible (venta)
}

// Progress avance reportado tras cada línea.
type Progress struct {
	Processed int
	Succeeded int
	Failed    int
}

// Request entrada de Reconcile.
type Request struct {
	ImportID      string
	UnitID        string
	ActorID       string
	OperationKind string
	Invoice       *entity.Invoice // se inserta en la misma transacción
	Lines         []Line
	// BeforeMutation se invoca con los locks tomados y antes de abrir la transacción.
	BeforeMutation func(ctx context.Context) error
	OnProgress     func(p Progress)
}

// Result mutaciones confirmadas.
type Result struct {
	Lots         []*entity.StockLot
	Adjustments  []*entity.StockAdjustment
	ValueHistory []*entity.ValueHistory
	Findings     []detector.Finding // hallazgos informativos de stock
	Progress     Progress
}

// StockError error fatal de stock con el hallazgo que lo originó.
type StockError struct {
	Finding detector.Finding
	Err     error
}

func (e *StockError) Error() string { return e.Finding.Description + ": " + e.Err.Error() }
func (e *StockError) Unwrap() error { return e.Err }

// Engine motor de conciliación de stock.
type Engine struct {
	txRunner TxRunner
	locker   LotLocker
	rules    *detector.RuleSet
	log      zerolog.Logger
	now      func() time.Time
}

// NewEngine construye el motor.
func NewEngine(txRunner TxRunner, locker LotLocker, rules *detector.RuleSet, log zerolog.Logger) *Engine {
	return &Engine{txRunner: txRunner, locker: locker, rules: rules, log: log, now: time.Now}
}

// Reconcile bloquea los lotes involucrados, y dentro de una transacción inserta la nota,
// aplica el delta firmado de cada línea y registra ajustes e historial de valor.
// Si alguna línea falla de forma fatal no queda ninguna mutación.
func (e *Engine) Reconcile(ctx context.Context, req Request) (*Result, error) {
	if req.OperationKind != entity.OperationPurchase && req.OperationKind != entity.OperationSale {
		return nil, fmt.Errorf("tipo de operación %q: %w", req.OperationKind, domain.ErrInvalidInput)
	}
	for _, l := range req.Lines {
		if !l.Item.Quantity.IsPositive() || !l.Item.UnitValue.IsPositive() {
			return nil, fmt.Errorf("ítem %d: cantidad %s, valor unitario %s: %w",
				l.Item.Number, l.Item.Quantity.String(), l.Item.UnitValue.String(), domain.ErrInvalidInput)
		}
	}

	unlock, err := e.locker.Lock(ctx, lockKeys(req))
	if err != nil {
		return nil, fmt.Errorf("bloquear lotes: %w", err)
	}
	defer unlock()

	if req.BeforeMutation != nil {
		if err := req.BeforeMutation(ctx); err != nil {
			return nil, err
		}
	}

	// iniciada la mutación, la unidad de trabajo confirma o revierte completa
	ctx = context.WithoutCancel(ctx)
	var res *Result
	err = e.txRunner.Run(ctx, func(repos TxRepos) error {
		res = &Result{}
		if req.Invoice != nil {
			if err := repos.Invoices.Create(ctx, req.Invoice); err != nil {
				return err
			}
		}
		for _, line := range req.Lines {
			applied, err := e.applyLine(ctx, repos, req, line, res)
			if err != nil {
				return err
			}
			res.Progress.Processed++
			if applied {
				res.Progress.Succeeded++
			} else {
				res.Progress.Failed++
			}
			if req.OnProgress != nil {
				req.OnProgress(res.Progress)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug().
		Str("import_id", req.ImportID).
		Int("adjustments", len(res.Adjustments)).
		Int("value_changes", len(res.ValueHistory)).
		Msg("conciliación confirmada")
	return res, nil
}

// applyLine devuelve false si la línea se omitió con un hallazgo informativo.
func (e *Engine) applyLine(ctx context.Context, repos TxRepos, req Request, line Line, res *Result) (bool, error) {
	now := e.now()
	item := line.Item
	sale := req.OperationKind == entity.OperationSale

	var lot *entity.StockLot
	if line.Binding != nil {
		var err error
		lot, err = repos.Lots.GetForUpdate(ctx, entity.LotKey{BindingID: line.Binding.ID, UnitID: req.UnitID, LotCode: item.LotCode})
		if err != nil {
			return false, fmt.Errorf("ítem %d: %w", item.Number, err)
		}
	}

	if lot == nil {
		if sale || line.Binding == nil {
			f := e.rules.NewFinding(entity.InconsistencyInsufficientStock,
				fmt.Sprintf("ítem %d (%s): lote %q sin stock registrado en la unidad", item.Number, item.Name, item.LotCode),
				"registrar la entrada del lote antes de la venta", item.Number)
			if f.Blocking {
				return false, &StockError{Finding: f, Err: domain.ErrStockLotNotFound}
			}
			res.Findings = append(res.Findings, f)
			return false, nil
		}
		lot = &entity.StockLot{
			Audit:              entity.Audit{ID: uuid.New().String(), Active: true},
			BindingID:          line.Binding.ID,
			ProductReferenceID: line.ProductID,
			UnitID:             req.UnitID,
			LotCode:            item.LotCode,
			Quantity:           decimal.Zero,
			UnitValue:          decimal.Zero,
			TotalValue:         decimal.Zero,
			ExpiresAt:          item.ExpiresAt,
		}
		lot.Touch(now)
		if err := repos.Lots.Create(ctx, lot); err != nil {
			return false, fmt.Errorf("ítem %d: crear lote: %w", item.Number, err)
		}
	}

	delta := inventory.SignedDelta(item.Quantity, sale)
	previous := lot.Quantity
	next := previous.Add(delta)
	if next.IsNegative() {
		f := e.rules.NewFinding(entity.InconsistencyInsufficientStock,
			fmt.Sprintf("ítem %d (%s): lote %q quedaría con %s (disponible %s)", item.Number, item.Name, lot.LotCode, next.String(), previous.String()),
			"verificar el stock físico del lote", item.Number)
		if f.Blocking {
			return false, &StockError{Finding: f, Err: domain.ErrInsufficientStock}
		}
		res.Findings = append(res.Findings, f)
	}

	if !item.UnitValue.Equal(lot.UnitValue) {
		h := &entity.ValueHistory{
			Audit:         entity.Audit{ID: uuid.New().String(), Active: true},
			StockLotID:    lot.ID,
			ImportID:      req.ImportID,
			PreviousValue: lot.UnitValue,
			NewValue:      item.UnitValue,
			ActorID:       req.ActorID,
			ChangedAt:     now,
		}
		h.Touch(now)
		if err := repos.ValueHistory.Create(ctx, h); err != nil {
			return false, fmt.Errorf("ítem %d: historial de valor: %w", item.Number, err)
		}
		res.ValueHistory = append(res.ValueHistory, h)
		lot.UnitValue = item.UnitValue
	}

	lot.Quantity = next
	lot.TotalValue = inventory.LotValue(lot.Quantity, lot.UnitValue)
	lot.LastMovementAt = now
	if lot.ExpiresAt == nil && item.ExpiresAt != nil {
		lot.ExpiresAt = item.ExpiresAt
	}
	lot.Touch(now)
	if err := repos.Lots.Update(ctx, lot); err != nil {
		return false, fmt.Errorf("ítem %d: actualizar lote: %w", item.Number, err)
	}

	adj := &entity.StockAdjustment{
		Audit:            entity.Audit{ID: uuid.New().String(), Active: true},
		StockLotID:       lot.ID,
		ImportID:         req.ImportID,
		PreviousQuantity: previous,
		NewQuantity:      next,
		Delta:            delta,
		Reason:           req.OperationKind,
		ActorID:          req.ActorID,
		OccurredAt:       now,
	}
	if req.Invoice != nil {
		adj.InvoiceID = req.Invoice.ID
		adj.DocumentNumber = req.Invoice.Number
	}
	adj.Touch(now)
	if err := repos.Adjustments.Create(ctx, adj); err != nil {
		return false, fmt.Errorf("ítem %d: ajuste: %w", item.Number, err)
	}
	res.Adjustments = append(res.Adjustments, adj)

	if !sale {
		purchasedAt := now
		if req.Invoice != nil {
			purchasedAt = req.Invoice.EmittedAt
		}
		line.Binding.RecordPurchase(item.UnitValue, purchasedAt, now)
		if err := repos.Bindings.UpdatePurchase(ctx, line.Binding); err != nil {
			return false, fmt.Errorf("ítem %d: vínculo: %w", item.Number, err)
		}
	}
	res.Lots = appendLot(res.Lots, lot)
	return true, nil
}

func appendLot(lots []*entity.StockLot, lot *entity.StockLot) []*entity.StockLot {
	for i, l := range lots {
		if l.ID == lot.ID {
			lots[i] = lot
			return lots
		}
	}
	return append(lots, lot)
}

func lockKeys(req Request) []string {
	keys := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.Binding == nil {
			continue
		}
		keys = append(keys, entity.LotKey{BindingID: l.Binding.ID, UnitID: req.UnitID, LotCode: l.Item.LotCode}.String())
	}
	return keys
}

// IsStockError indica si err proviene de una regla de stock bloqueante.
func IsStockError(err error) (*StockError, bool) {
	var se *StockError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
