package fiscal

import "strings"

// NoGTIN valor usado por la NFe cuando el producto no tiene código de barras.
const NoGTIN = "SEM GTIN"

// NormalizeGTIN devuelve "" para valores vacíos o "SEM GTIN".
func NormalizeGTIN(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, NoGTIN) {
		return ""
	}
	return s
}

// ValidGTIN valida GTIN-8/12/13/14 (dígito verificador módulo 10, pesos 3-1 desde la derecha).
func ValidGTIN(code string) bool {
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return false
	}
	if OnlyDigits(code) != code {
		return false
	}
	return code[len(code)-1] == GTINCheckDigit(code[:len(code)-1])
}

// GTINCheckDigit calcula el dígito verificador de un GTIN sin su último dígito.
func GTINCheckDigit(body string) byte {
	var sum int
	weight := 3
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	return byte('0' + (10-sum%10)%10)
}
