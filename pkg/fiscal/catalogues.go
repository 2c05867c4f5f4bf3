package fiscal

import "strings"

// ValidNCM el NCM tiene exactamente 8 dígitos.
func ValidNCM(ncm string) bool {
	return len(ncm) == 8 && OnlyDigits(ncm) == ncm
}

// ValidCFOP el CFOP tiene exactamente 4 dígitos.
func ValidCFOP(cfop string) bool {
	return len(cfop) == 4 && OnlyDigits(cfop) == cfop
}

// IsInboundCFOP operación de entrada (primer dígito 1, 2 o 3).
func IsInboundCFOP(cfop string) bool {
	return ValidCFOP(cfop) && strings.ContainsRune("123", rune(cfop[0]))
}

// IsOutboundCFOP operación de salida (primer dígito 5, 6 o 7).
func IsOutboundCFOP(cfop string) bool {
	return ValidCFOP(cfop) && strings.ContainsRune("567", rune(cfop[0]))
}

// unitAliases equivalencias de unidades comerciales frecuentes en NFe.
var unitAliases = map[string]string{
	"UN": "UN", "UND": "UN", "UNID": "UN", "UNIDADE": "UN", "PC": "UN", "PÇ": "UN",
	"CX": "CX", "CAIXA": "CX", "FR": "FR", "FRASCO": "FR", "AMP": "AMP",
	"KG": "KG", "G": "G", "GR": "G", "L": "L", "LT": "L", "ML": "ML",
	"CT": "CT", "BL": "BL", "TB": "TB",
}

// NormalizeUnit normaliza la unidad comercial (mayúsculas, alias conocidos).
func NormalizeUnit(u string) string {
	u = strings.ToUpper(strings.TrimSpace(u))
	if n, ok := unitAliases[u]; ok {
		return n
	}
	return u
}
