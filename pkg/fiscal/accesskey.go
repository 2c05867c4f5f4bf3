package fiscal

import (
	"fmt"
	"strconv"
)

// AccessKeyLength longitud de la chave de acesso de la NFe.
const AccessKeyLength = 44

// AccessKey componentes de una chave de acesso.
type AccessKey struct {
	StateCode    string // cUF
	YearMonth    string // AAMM
	IssuerTaxID  string // CNPJ del emisor
	Model        string // 55 = NFe, 65 = NFCe
	Series       string
	Number       string
	EmissionType string
	RandomCode   string
	CheckDigit   byte
}

// ParseAccessKey valida longitud, dígitos y dígito verificador (módulo 11 con pesos 2..9).
func ParseAccessKey(key string) (*AccessKey, error) {
	if len(key) != AccessKeyLength {
		return nil, fmt.Errorf("fiscal: chave de acesso debe tener %d dígitos, se recibieron %d", AccessKeyLength, len(key))
	}
	if OnlyDigits(key) != key {
		return nil, fmt.Errorf("fiscal: chave de acesso contiene caracteres no numéricos")
	}
	expected := AccessKeyCheckDigit(key[:43])
	if key[43] != expected {
		return nil, fmt.Errorf("fiscal: dígito verificador de la chave inválido: esperado %c, recibido %c", expected, key[43])
	}
	return &AccessKey{
		StateCode:    key[0:2],
		YearMonth:    key[2:6],
		IssuerTaxID:  key[6:20],
		Model:        key[20:22],
		Series:       key[22:25],
		Number:       key[25:34],
		EmissionType: key[34:35],
		RandomCode:   key[35:43],
		CheckDigit:   key[43],
	}, nil
}

// AccessKeyCheckDigit calcula el dígito verificador para los 43 primeros dígitos.
func AccessKeyCheckDigit(first43 string) byte {
	var sum int
	weight := 2
	for i := len(first43) - 1; i >= 0; i-- {
		sum += int(first43[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + (11 - r))
}

// BuildAccessKey arma una chave válida a partir de sus componentes (usado en pruebas y herramientas).
func BuildAccessKey(stateCode, yearMonth, issuerCNPJ, model string, series, number int, emissionType, randomCode string) (string, error) {
	base := fmt.Sprintf("%2s%4s%14s%2s%03d%09d%1s%8s",
		stateCode, yearMonth, OnlyDigits(issuerCNPJ), model, series, number, emissionType, randomCode)
	if len(base) != 43 || OnlyDigits(base) != base {
		return "", fmt.Errorf("fiscal: componentes inválidos para chave de acesso: %q", base)
	}
	return base + string(AccessKeyCheckDigit(base)), nil
}

// NumberInt número del documento como entero.
func (k *AccessKey) NumberInt() int {
	n, _ := strconv.Atoi(k.Number)
	return n
}
