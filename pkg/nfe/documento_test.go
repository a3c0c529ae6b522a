package nfe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexopdv/nfe-engine/pkg/nfe"
)

func TestValidCNPJ(t *testing.T) {
	assert.True(t, nfe.ValidCNPJ("11222333000181"))
	assert.True(t, nfe.ValidCNPJ("11.222.333/0001-81"))
	assert.True(t, nfe.ValidCNPJ("11444777000161"))

	assert.False(t, nfe.ValidCNPJ("11222333000180")) // DV errado
	assert.False(t, nfe.ValidCNPJ("00000000000000")) // todos iguais
	assert.False(t, nfe.ValidCNPJ("123"))
	assert.False(t, nfe.ValidCNPJ(""))
}

func TestValidCPF(t *testing.T) {
	assert.True(t, nfe.ValidCPF("52998224725"))
	assert.True(t, nfe.ValidCPF("529.982.247-25"))

	assert.False(t, nfe.ValidCPF("52998224724"))
	assert.False(t, nfe.ValidCPF("11111111111"))
	assert.False(t, nfe.ValidCPF("9"))
}

func TestSanitizeTexto(t *testing.T) {
	assert.Equal(t, "Devolucao de mercadoria nao entregue",
		nfe.SanitizeTexto("Devolução de mercadoria não entregue"))
	assert.Equal(t, "linha um linha dois", nfe.SanitizeTexto("linha um\nlinha dois"))
	assert.Equal(t, "espacos normalizados", nfe.SanitizeTexto("  espaços   normalizados  "))
	assert.Equal(t, "", nfe.SanitizeTexto(""))
}

func TestOnlyDigits(t *testing.T) {
	assert.Equal(t, "11222333000181", nfe.OnlyDigits("11.222.333/0001-81"))
	assert.Equal(t, "", nfe.OnlyDigits("abc"))
}
