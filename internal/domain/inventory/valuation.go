package inventory

import "github.com/shopspring/decimal"

// SignedDelta delta firmado de un movimiento: la cantidad en compras, su opuesto en ventas.
// El signo de la cantidad se conserva; las cantidades no positivas se rechazan antes.
func SignedDelta(quantity decimal.Decimal, outbound bool) decimal.Decimal {
	if outbound {
		return quantity.Neg()
	}
	return quantity
}

// LotValue valor total de un lote: cantidad × valor unitario, sin redondeo.
func LotValue(quantity, unitValue decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitValue)
}
