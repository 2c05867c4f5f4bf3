// Package fiscal validaciones de identificadores fiscales brasileños usados en la NFe
// (CNPJ, CPF, chave de acesso, GTIN, NCM, CFOP).
package fiscal

import (
	"fmt"
	"unicode"
)

var (
	cnpjFirstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// OnlyDigits elimina puntos, barras, guiones y espacios.
func OnlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) && r < 128 {
			out = append(out, byte(r))
		}
	}
	return string(out)
}

// ValidateTaxID valida un CNPJ (14 dígitos) o CPF (11 dígitos) con sus dígitos verificadores.
func ValidateTaxID(taxID string) error {
	digits := OnlyDigits(taxID)
	switch len(digits) {
	case 14:
		return ValidateCNPJ(digits)
	case 11:
		return ValidateCPF(digits)
	default:
		return fmt.Errorf("fiscal: documento debe tener 11 (CPF) o 14 (CNPJ) dígitos, se encontraron %d", len(digits))
	}
}

// ValidateCNPJ valida los dos dígitos verificadores (módulo 11) de un CNPJ.
func ValidateCNPJ(cnpj string) error {
	digits := OnlyDigits(cnpj)
	if len(digits) != 14 {
		return fmt.Errorf("fiscal: CNPJ debe tener 14 dígitos, se encontraron %d", len(digits))
	}
	if repeated(digits) {
		return fmt.Errorf("fiscal: CNPJ inválido %s", digits)
	}
	d1 := mod11Digit(digits[:12], cnpjFirstWeights)
	d2 := mod11Digit(digits[:12]+string(d1), cnpjSecondWeights)
	if digits[12] != d1 || digits[13] != d2 {
		return fmt.Errorf("fiscal: dígitos verificadores del CNPJ inválidos: esperado %c%c, recibido %s", d1, d2, digits[12:])
	}
	return nil
}

// ValidateCPF valida los dos dígitos verificadores de un CPF.
func ValidateCPF(cpf string) error {
	digits := OnlyDigits(cpf)
	if len(digits) != 11 {
		return fmt.Errorf("fiscal: CPF debe tener 11 dígitos, se encontraron %d", len(digits))
	}
	if repeated(digits) {
		return fmt.Errorf("fiscal: CPF inválido %s", digits)
	}
	d1 := mod11Digit(digits[:9], descending(10, 9))
	d2 := mod11Digit(digits[:10], descending(11, 10))
	if digits[9] != d1 || digits[10] != d2 {
		return fmt.Errorf("fiscal: dígitos verificadores del CPF inválidos: esperado %c%c, recibido %s", d1, d2, digits[9:])
	}
	return nil
}

// CompleteCNPJ calcula y agrega los dígitos verificadores a los 12 primeros dígitos.
func CompleteCNPJ(base string) (string, error) {
	digits := OnlyDigits(base)
	if len(digits) < 12 {
		return "", fmt.Errorf("fiscal: se requieren 12 dígitos para calcular el CNPJ, se encontraron %d", len(digits))
	}
	digits = digits[:12]
	d1 := mod11Digit(digits, cnpjFirstWeights)
	d2 := mod11Digit(digits+string(d1), cnpjSecondWeights)
	return digits + string(d1) + string(d2), nil
}

// mod11Digit dígito verificador módulo 11 con resto 0 o 1 -> '0'.
func mod11Digit(digits string, weights []int) byte {
	var sum int
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * weights[i]
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + (11 - r))
}

func descending(from, n int) []int {
	w := make([]int, n)
	for i := range w {
		w[i] = from - i
	}
	return w
}

func repeated(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
