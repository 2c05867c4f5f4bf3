// Package resolver mapea las partes e ítems de un documento NFe a las entidades canónicas
// (Supplier, ProductReference, ProductSupplierBinding), creándolas si no existen.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	domnfe "github.com/jhoicas/nfe-conciliacao/internal/domain/nfe"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
	"github.com/jhoicas/nfe-conciliacao/pkg/fiscal"
)

// DefaultPhoneRegion región usada para normalizar teléfonos de proveedores.
const DefaultPhoneRegion = "BR"

// Line resolución de un ítem del documento.
type Line struct {
	Item           domnfe.LineItem
	Product        *entity.ProductReference
	ProductCreated bool
	// ProductNew el producto nunca entró en stock: creado ahora o por un intento previo fallido.
	ProductNew     bool
	Binding        *entity.ProductSupplierBinding // nil en ventas sin vínculo conocido
	BindingCreated bool
	// PreviousPrice precio de última compra del vínculo antes de esta importación.
	PreviousPrice    decimal.Decimal
	HasPreviousPrice bool
}

// Resolution resultado de resolver un documento.
type Resolution struct {
	Supplier        *entity.Supplier // nil en ventas
	SupplierCreated bool
	SupplierUpdated bool
	// SupplierNew ninguna nota conciliada referencia al proveedor todavía.
	SupplierNew bool
	Lines       []Line
}

// Resolver servicio de resolución de entidades. Nunca muta stock.
type Resolver struct {
	suppliers   repository.SupplierRepository
	products    repository.ProductReferenceRepository
	bindings    repository.BindingRepository
	lots        repository.StockLotRepository
	invoices    repository.InvoiceRepository
	phoneRegion string
	now         func() time.Time
}

// NewResolver construye el resolver.
func NewResolver(
	suppliers repository.SupplierRepository,
	products repository.ProductReferenceRepository,
	bindings repository.BindingRepository,
	lots repository.StockLotRepository,
	invoices repository.InvoiceRepository,
) *Resolver {
	return &Resolver{
		suppliers:   suppliers,
		products:    products,
		bindings:    bindings,
		lots:        lots,
		invoices:    invoices,
		phoneRegion: DefaultPhoneRegion,
		now:         time.Now,
	}
}

// Resolve resuelve proveedor (solo compras), productos y vínculos de cada línea.
// Es idempotente: resolver dos veces el mismo documento devuelve los mismos IDs.
func (r *Resolver) Resolve(ctx context.Context, doc *domnfe.Document, unitID string) (*Resolution, error) {
	res := &Resolution{Lines: make([]Line, 0, len(doc.Items))}

	if !doc.IsSale() {
		err := withRetry(func() error {
			var err error
			res.Supplier, res.SupplierCreated, res.SupplierUpdated, err = r.resolveSupplier(ctx, doc.Party())
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("resolver proveedor %s: %w", doc.Party().TaxID, err)
		}
		res.SupplierNew = res.SupplierCreated
		if !res.SupplierNew {
			seen, err := r.invoices.ExistsBySupplier(ctx, res.Supplier.ID)
			if err != nil {
				return nil, fmt.Errorf("notas del proveedor %s: %w", res.Supplier.ID, err)
			}
			res.SupplierNew = !seen
		}
	}

	for _, item := range doc.Items {
		line := Line{Item: item}
		err := withRetry(func() error {
			var err error
			line.Product, line.ProductCreated, err = r.resolveProduct(ctx, item)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("resolver producto del ítem %d: %w", item.Number, err)
		}
		line.ProductNew = line.ProductCreated
		if !line.ProductNew {
			seen, err := r.lots.ExistsForProduct(ctx, line.Product.ID)
			if err != nil {
				return nil, fmt.Errorf("lotes del producto %s: %w", line.Product.ID, err)
			}
			line.ProductNew = !seen
		}

		if doc.IsSale() {
			line.Binding, err = r.bindingForSale(ctx, line.Product.ID, unitID, item.LotCode)
		} else {
			err = withRetry(func() error {
				return r.resolveBinding(ctx, &line, res.Supplier, doc.Header.EmittedAt)
			})
		}
		if err != nil {
			return nil, fmt.Errorf("resolver vínculo del ítem %d: %w", item.Number, err)
		}
		res.Lines = append(res.Lines, line)
	}
	return res, nil
}

func (r *Resolver) resolveSupplier(ctx context.Context, party domnfe.Party) (*entity.Supplier, bool, bool, error) {
	observed := entity.Supplier{
		TaxID:             party.TaxID,
		LegalName:         party.LegalName,
		TradeName:         party.TradeName,
		StateRegistration: party.StateRegistration,
		Address:           party.Address.Line(),
		City:              party.Address.City,
		State:             party.Address.State,
		ZipCode:           party.Address.ZipCode,
		Phone:             NormalizePhone(party.Phone, r.phoneRegion),
		Email:             party.Email,
	}
	if existing, err := r.suppliers.GetByTaxID(ctx, party.TaxID); err != nil {
		return nil, false, false, err
	} else if existing != nil {
		return r.mergeSupplier(ctx, existing, observed)
	}

	now := r.now()
	candidate := observed
	candidate.Audit = entity.Audit{ID: uuid.New().String(), Active: true}
	candidate.Touch(now)
	stored, created, err := r.suppliers.CreateIfAbsent(ctx, &candidate)
	if err != nil {
		return nil, false, false, err
	}
	if created {
		return stored, true, false, nil
	}
	return r.mergeSupplier(ctx, stored, observed)
}

// mergeSupplier completa solo campos vacíos; los existentes nunca se sobrescriben.
func (r *Resolver) mergeSupplier(ctx context.Context, existing *entity.Supplier, observed entity.Supplier) (*entity.Supplier, bool, bool, error) {
	if !existing.MergeEmpty(observed) {
		return existing, false, false, nil
	}
	existing.Touch(r.now())
	if err := r.suppliers.Update(ctx, existing); err != nil {
		return nil, false, false, err
	}
	return existing, false, true, nil
}

func (r *Resolver) resolveProduct(ctx context.Context, item domnfe.LineItem) (*entity.ProductReference, bool, error) {
	key := entity.ProductNaturalKey(item.EAN, item.Code)
	p, err := r.products.GetByNaturalKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if p == nil && item.EAN != "" {
		p, err = r.products.GetByNaturalKey(ctx, entity.InternalCodeKey(item.Code))
		if err != nil {
			return nil, false, err
		}
		if p != nil && p.EAN == "" {
			p.EAN = item.EAN
			p.Touch(r.now())
			if err := r.products.Update(ctx, p); err != nil {
				return nil, false, err
			}
		}
	}
	if p != nil {
		return p, false, nil
	}

	candidate := &entity.ProductReference{
		Audit:        entity.Audit{ID: uuid.New().String(), Active: true},
		NaturalKey:   key,
		InternalCode: item.Code,
		Name:         item.Name,
		EAN:          item.EAN,
		NCM:          item.NCM,
		CFOP:         item.CFOP,
		Unit:         fiscal.NormalizeUnit(item.Unit),
	}
	candidate.Touch(r.now())
	return r.products.CreateIfAbsent(ctx, candidate)
}

func (r *Resolver) resolveBinding(ctx context.Context, line *Line, supplier *entity.Supplier, emittedAt time.Time) error {
	existing, err := r.bindings.GetByProductAndSupplier(ctx, line.Product.ID, supplier.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		line.Binding, line.BindingCreated = existing, false
		line.PreviousPrice, line.HasPreviousPrice = existing.LastPurchasePrice, !existing.LastPurchaseAt.IsZero()
		return nil
	}

	candidate := &entity.ProductSupplierBinding{
		Audit:              entity.Audit{ID: uuid.New().String(), Active: true},
		ProductReferenceID: line.Product.ID,
		SupplierID:         supplier.ID,
		SupplierCode:       line.Item.Code,
		SupplierName:       line.Item.Name,
		SupplierUnit:       line.Item.Unit,
		SupplierEAN:        line.Item.EAN,
		LastPurchasePrice:  line.Item.UnitValue,
		LastPurchaseAt:     emittedAt,
	}
	candidate.Touch(r.now())
	stored, created, err := r.bindings.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return err
	}
	line.Binding, line.BindingCreated = stored, created
	if !created {
		line.PreviousPrice, line.HasPreviousPrice = stored.LastPurchasePrice, !stored.LastPurchaseAt.IsZero()
	}
	return nil
}

// bindingForSale elige el vínculo que posee el lote en la unidad; si no hay, el de compra
// más reciente del producto; nil si el producto nunca fue comprado.
func (r *Resolver) bindingForSale(ctx context.Context, productID, unitID, lotCode string) (*entity.ProductSupplierBinding, error) {
	lots, err := r.lots.FindForSale(ctx, productID, unitID, lotCode)
	if err != nil {
		return nil, err
	}
	if len(lots) > 0 {
		sort.SliceStable(lots, func(i, j int) bool { return lots[i].Quantity.GreaterThan(lots[j].Quantity) })
		return r.bindings.GetByID(ctx, lots[0].BindingID)
	}
	bindings, err := r.bindings.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return nil, nil
	}
	return bindings[0], nil
}

// withRetry reintenta una vez ante conflicto de creación concurrente.
func withRetry(fn func() error) error {
	err := fn()
	if errors.Is(err, domain.ErrEntityResolutionConflict) {
		err = fn()
	}
	return err
}

// NormalizePhone formatea el teléfono en E.164; si no es válido conserva solo los dígitos.
func NormalizePhone(raw, region string) string {
	digits := fiscal.OnlyDigits(raw)
	if digits == "" {
		return ""
	}
	num, err := libphonenumber.Parse(digits, region)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return digits
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
