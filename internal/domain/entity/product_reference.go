package entity

import "strings"

// prefijo de la clave natural cuando el ítem no trae EAN utilizable.
const internalCodeKeyPrefix = "COD:"

// ProductReference producto canónico, independiente del proveedor.
type ProductReference struct {
	Audit
	NaturalKey   string // EAN o "COD:"+código interno; inmutable
	InternalCode string
	Name         string
	EAN          string
	NCM          string
	CFOP         string
	Unit         string
}

// ProductNaturalKey calcula la clave natural: EAN si existe, si no el código interno.
func ProductNaturalKey(ean, internalCode string) string {
	if ean = strings.TrimSpace(ean); ean != "" {
		return ean
	}
	return InternalCodeKey(internalCode)
}

// InternalCodeKey clave natural derivada del código interno.
func InternalCodeKey(internalCode string) string {
	return internalCodeKeyPrefix + strings.TrimSpace(internalCode)
}
