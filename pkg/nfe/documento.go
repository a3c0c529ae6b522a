// Validação de documentos de identificação fiscal (CNPJ e CPF).

package nfe

import "strings"

// OnlyDigits remove tudo que não for dígito 0-9 (CNPJ, CPF, IE).
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCNPJ valida os dois dígitos verificadores do CNPJ (14 dígitos).
func ValidCNPJ(cnpj string) bool {
	c := OnlyDigits(cnpj)
	if len(c) != 14 || allSame(c) {
		return false
	}
	w1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	return digitoVerificador(c[:12], w1) == int(c[12]-'0') &&
		digitoVerificador(c[:13], w2) == int(c[13]-'0')
}

// ValidCPF valida os dois dígitos verificadores do CPF (11 dígitos).
func ValidCPF(cpf string) bool {
	c := OnlyDigits(cpf)
	if len(c) != 11 || allSame(c) {
		return false
	}
	w1 := []int{10, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}
	return digitoVerificador(c[:9], w1) == int(c[9]-'0') &&
		digitoVerificador(c[:10], w2) == int(c[10]-'0')
}

// digitoVerificador calcula um dígito por módulo-11 com os pesos dados.
func digitoVerificador(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
