package entity

// Unit unidad organizacional (sucursal/farmacia) que posee stock.
type Unit struct {
	Audit
	OrganizationID string
	Name           string
	TaxID          string
}
