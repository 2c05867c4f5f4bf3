package entity

// Supplier representa un proveedor identificado por su CNPJ/CPF (solo dígitos).
type Supplier struct {
	Audit
	TaxID             string // clave natural
	LegalName         string
	TradeName         string
	StateRegistration string
	Address           string
	City              string
	State             string
	ZipCode           string
	Phone             string
	Email             string
}

// MergeEmpty completa solo los campos vacíos con los observados en el documento.
// Devuelve true si algún campo cambió.
func (s *Supplier) MergeEmpty(observed Supplier) bool {
	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&s.LegalName, observed.LegalName)
	fill(&s.TradeName, observed.TradeName)
	fill(&s.StateRegistration, observed.StateRegistration)
	fill(&s.Address, observed.Address)
	fill(&s.City, observed.City)
	fill(&s.State, observed.State)
	fill(&s.ZipCode, observed.ZipCode)
	fill(&s.Phone, observed.Phone)
	fill(&s.Email, observed.Email)
	return changed
}
