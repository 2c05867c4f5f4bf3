package detector

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/pkg/fiscal"
)

// evalContext datos de una evaluación; los evaluadores no hacen I/O.
type evalContext struct {
	input Input
	rule  Rule
	now   time.Time
}

type evaluator func(ec evalContext) *Finding

// evaluators tabla de despacho por tipo de regla.
var evaluators = map[string]evaluator{
	entity.InconsistencyUnregisteredRecipient: evalUnregisteredRecipient,
	entity.InconsistencyInvalidSupplier:       evalInvalidSupplier,
	entity.InconsistencyInvalidQuantity:       evalQuantity,
	entity.InconsistencyInvalidUnitValue:      evalUnitValue,
	entity.InconsistencyTotalValueMismatch:    evalTotalMismatch,
	entity.InconsistencyInvalidEmissionDate:   evalEmissionDate,
	entity.InconsistencyCFOPMismatch:          evalCFOP,
	entity.InconsistencyInvalidNCM:            evalNCM,
	entity.InconsistencyInvalidEAN:            evalEAN,
	entity.InconsistencyUnitOfMeasureMismatch: evalUnitOfMeasure,
	entity.InconsistencyPriceDivergence:       evalPriceDivergence,
	entity.InconsistencyUnregisteredSupplier:  evalUnregisteredSupplier,
	entity.InconsistencyUnregisteredProduct:   evalUnregisteredProduct,
}

func evalUnregisteredRecipient(ec evalContext) *Finding {
	own := ec.input.Doc.OwnParty()
	for _, id := range ec.input.OrganizationTaxIDs {
		if fiscal.OnlyDigits(id) == own.TaxID {
			return nil
		}
	}
	return &Finding{
		Description: fmt.Sprintf("el documento %s no corresponde a ninguna unidad de la organización (CNPJ %s)", ec.input.Doc.Header.Kind, own.TaxID),
		Suggestion:  "verificar la unidad importadora o registrar el CNPJ de la unidad",
	}
}

func evalInvalidSupplier(ec evalContext) *Finding {
	party := ec.input.Doc.Party()
	if err := fiscal.ValidateTaxID(party.TaxID); err != nil {
		return &Finding{
			Description: fmt.Sprintf("documento de la contraparte %s inválido: %v", party.TaxID, err),
			Suggestion:  "confirmar el CNPJ/CPF con el emisor",
		}
	}
	return nil
}

func evalQuantity(ec evalContext) *Finding {
	return perLine(ec, "cantidad inválida", "la cantidad de cada ítem debe ser mayor que cero", func(i int) (bool, string) {
		q := ec.input.Doc.Items[i].Quantity
		return !q.IsPositive(), fmt.Sprintf("qCom %s", q.String())
	})
}

func evalUnitValue(ec evalContext) *Finding {
	return perLine(ec, "valor unitario inválido", "el valor unitario de cada ítem debe ser mayor que cero", func(i int) (bool, string) {
		v := ec.input.Doc.Items[i].UnitValue
		return !v.IsPositive(), fmt.Sprintf("vUnCom %s", v.String())
	})
}

func evalTotalMismatch(ec evalContext) *Finding {
	tolerance, err := decimal.NewFromString(ec.rule.Param(ParamTolerance, "0.01"))
	if err != nil {
		tolerance = decimal.RequireFromString("0.01")
	}
	declared := ec.input.Doc.Header.TotalValue
	computed := ec.input.Doc.ComputedTotal()
	if declared.Sub(computed).Abs().LessThanOrEqual(tolerance) {
		return nil
	}
	return &Finding{
		Description: fmt.Sprintf("valor total declarado %s difiere de la suma de los ítems %s", declared.StringFixed(2), computed.StringFixed(2)),
		Suggestion:  "revisar descuentos, fletes u otros valores no incluidos en los ítems",
	}
}

func evalEmissionDate(ec evalContext) *Finding {
	hours, err := strconv.Atoi(ec.rule.Param(ParamFutureToleranceHour, "24"))
	if err != nil {
		hours = 24
	}
	emitted := ec.input.Doc.Header.EmittedAt
	if emitted.After(ec.now.Add(time.Duration(hours) * time.Hour)) {
		return &Finding{
			Description: fmt.Sprintf("data de emissão futura: %s", emitted.Format(time.RFC3339)),
			Suggestion:  "verificar la fecha del documento",
		}
	}
	// 0 desactiva el control de antigüedad
	days, err := strconv.Atoi(ec.rule.Param(ParamMaxAgeDays, "30"))
	if err != nil {
		days = 30
	}
	if days > 0 && emitted.Before(ec.now.AddDate(0, 0, -days)) {
		return &Finding{
			Description: fmt.Sprintf("data de emissão com mais de %d dias: %s", days, emitted.Format(time.RFC3339)),
			Suggestion:  "confirmar que la nota no fue importada fuera de plazo",
		}
	}
	return nil
}

func evalCFOP(ec evalContext) *Finding {
	sale := ec.input.Doc.IsSale()
	return perLine(ec, "CFOP incompatible con la operación", "corregir el CFOP del ítem", func(i int) (bool, string) {
		cfop := ec.input.Doc.Items[i].CFOP
		switch {
		case !fiscal.ValidCFOP(cfop):
			return true, fmt.Sprintf("CFOP %q con formato inválido", cfop)
		case sale && !fiscal.IsOutboundCFOP(cfop):
			return true, fmt.Sprintf("CFOP %s de entrada en una venta", cfop)
		case !sale && !fiscal.IsInboundCFOP(cfop):
			return true, fmt.Sprintf("CFOP %s de salida en una compra", cfop)
		}
		return false, ""
	})
}

func evalNCM(ec evalContext) *Finding {
	return perLine(ec, "NCM inválido", "el NCM debe tener 8 dígitos", func(i int) (bool, string) {
		ncm := ec.input.Doc.Items[i].NCM
		return !fiscal.ValidNCM(ncm), fmt.Sprintf("NCM %q", ncm)
	})
}

func evalEAN(ec evalContext) *Finding {
	return perLine(ec, "EAN/GTIN inválido", "verificar el código de barras del producto", func(i int) (bool, string) {
		ean := ec.input.Doc.Items[i].EAN
		return ean != "" && !fiscal.ValidGTIN(ean), fmt.Sprintf("EAN %s", ean)
	})
}

func evalUnitOfMeasure(ec evalContext) *Finding {
	res := ec.input.Resolution
	if res == nil {
		return nil
	}
	return perLine(ec, "unidad de medida distinta a la del producto", "confirmar la conversión de unidades con el proveedor", func(i int) (bool, string) {
		line := res.Lines[i]
		if line.ProductCreated || line.Product == nil || line.Product.Unit == "" {
			return false, ""
		}
		got := fiscal.NormalizeUnit(line.Item.Unit)
		return got != line.Product.Unit, fmt.Sprintf("%s en lugar de %s", got, line.Product.Unit)
	})
}

func evalPriceDivergence(ec evalContext) *Finding {
	res := ec.input.Resolution
	if res == nil || ec.input.Doc.IsSale() {
		return nil
	}
	threshold, err := decimal.NewFromString(ec.rule.Param(ParamThresholdPct, "10"))
	if err != nil {
		threshold = decimal.NewFromInt(10)
	}
	hundred := decimal.NewFromInt(100)
	return perLine(ec, "precio divergente del último precio de compra", "revisar el precio negociado con el proveedor", func(i int) (bool, string) {
		line := res.Lines[i]
		if !line.HasPreviousPrice || !line.PreviousPrice.IsPositive() {
			return false, ""
		}
		pct := line.Item.UnitValue.Sub(line.PreviousPrice).Abs().Div(line.PreviousPrice).Mul(hundred)
		return pct.GreaterThan(threshold), fmt.Sprintf("%s contra %s (%s%%)",
			line.Item.UnitValue.String(), line.PreviousPrice.String(), pct.StringFixed(1))
	})
}

func evalUnregisteredSupplier(ec evalContext) *Finding {
	res := ec.input.Resolution
	if res == nil || !res.SupplierNew {
		return nil
	}
	return &Finding{
		Description: fmt.Sprintf("proveedor %s (%s) registrado automáticamente", res.Supplier.TaxID, res.Supplier.LegalName),
		Suggestion:  "completar el registro del proveedor",
	}
}

func evalUnregisteredProduct(ec evalContext) *Finding {
	res := ec.input.Resolution
	if res == nil {
		return nil
	}
	return perLine(ec, "producto registrado automáticamente", "revisar el registro del producto", func(i int) (bool, string) {
		line := res.Lines[i]
		return line.ProductNew, line.Item.Name
	})
}

// perLine agrupa en un único hallazgo las líneas que incumplen la regla.
func perLine(ec evalContext, title, suggestion string, check func(i int) (bool, string)) *Finding {
	var details []string
	var lines []int
	for i, item := range ec.input.Doc.Items {
		if bad, detail := check(i); bad {
			details = append(details, fmt.Sprintf("ítem %d: %s", item.Number, detail))
			lines = append(lines, item.Number)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	f := &Finding{Description: title + ": " + strings.Join(details, "; "), Suggestion: suggestion}
	if len(lines) == 1 {
		f.LineNumber = lines[0]
	}
	return f
}
