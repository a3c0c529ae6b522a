// Sanitização de texto para campos SEFAZ: a autoridade rejeita acentos e
// caracteres de controle em justificativas, textos de correção e infAdic.

package nfe

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeAcentos decompõe (NFD) e descarta marcas diacríticas.
var removeAcentos = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeTexto normaliza um texto para envio à SEFAZ: remove acentos,
// caracteres de controle e espaços redundantes.
func SanitizeTexto(s string) string {
	out, _, err := transform.String(removeAcentos, s)
	if err != nil {
		out = s
	}
	var b strings.Builder
	for _, r := range out {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			// descarta
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
