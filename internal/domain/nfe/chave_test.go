package nfe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexopdv/nfe-engine/internal/domain/nfe"
)

// ──────────────────────────────────────────────────────────────────────────────
// TestBuildChave valida que a montagem da chave de acesso produz exatamente a
// sequência de 44 dígitos esperada para parâmetros conhecidos.
//
// Se alguém alterar inadvertidamente a ordem dos campos, o formato dos números
// ou o cálculo do módulo-11, o teste falha imediatamente.
//
// Vetor de teste calculado manualmente:
//
//	base = cUF(35) + AAMM(2408) + CNPJ(11222333000181) + mod(55) +
//	       serie(001) + nNF(000000123) + tpEmis(1) + cNF(87654321)
//	DV(módulo-11, pesos 2..9) = 0
// ──────────────────────────────────────────────────────────────────────────────

const (
	chaveEsperadaSP = "35240811222333000181550010000001231876543210"
	chaveEsperadaMG = "31250111444777000161650020000045211001122338"
)

func TestBuildChave_VetorExatoNFe(t *testing.T) {
	chave, err := nfe.BuildChave(nfe.ChaveParams{
		UF:       "SP",
		Emissao:  time.Date(2024, 8, 15, 10, 0, 0, 0, time.UTC),
		CNPJ:     "11.222.333/0001-81",
		Modelo:   "55",
		Serie:    1,
		Numero:   123,
		TpEmis:   "1",
		CodigoNF: "87654321",
	})
	require.NoError(t, err)
	assert.Equal(t, chaveEsperadaSP, chave)
	assert.Len(t, chave, nfe.TamanhoChave)
}

func TestBuildChave_VetorExatoNFCe(t *testing.T) {
	chave, err := nfe.BuildChave(nfe.ChaveParams{
		UF:       "MG",
		Emissao:  time.Date(2025, 1, 3, 9, 30, 0, 0, time.UTC),
		CNPJ:     "11444777000161",
		Modelo:   "65",
		Serie:    2,
		Numero:   4521,
		TpEmis:   "1",
		CodigoNF: "00112233",
	})
	require.NoError(t, err)
	assert.Equal(t, chaveEsperadaMG, chave)
}

func TestBuildChave_CodigoNFSorteado(t *testing.T) {
	// Sem cNF informado o código é sorteado; a chave resultante deve ser válida.
	chave, err := nfe.BuildChave(nfe.ChaveParams{
		UF:      "RS",
		Emissao: time.Now(),
		CNPJ:    "11222333000181",
		Modelo:  "55",
		Serie:   1,
		Numero:  1,
	})
	require.NoError(t, err)
	assert.True(t, nfe.ValidChave(chave))
}

func TestBuildChave_Invalidos(t *testing.T) {
	base := nfe.ChaveParams{
		UF:      "SP",
		Emissao: time.Now(),
		CNPJ:    "11222333000181",
		Modelo:  "55",
		Serie:   1,
		Numero:  1,
	}

	casos := []struct {
		nome    string
		mutacao func(*nfe.ChaveParams)
	}{
		{"uf desconhecida", func(p *nfe.ChaveParams) { p.UF = "XX" }},
		{"cnpj curto", func(p *nfe.ChaveParams) { p.CNPJ = "123" }},
		{"modelo inválido", func(p *nfe.ChaveParams) { p.Modelo = "99" }},
		{"série zero", func(p *nfe.ChaveParams) { p.Serie = 0 }},
		{"número zero", func(p *nfe.ChaveParams) { p.Numero = 0 }},
		{"número estourado", func(p *nfe.ChaveParams) { p.Numero = 1_000_000_000 }},
		{"cNF curto", func(p *nfe.ChaveParams) { p.CodigoNF = "123" }},
	}
	for _, c := range casos {
		t.Run(c.nome, func(t *testing.T) {
			p := base
			c.mutacao(&p)
			_, err := nfe.BuildChave(p)
			assert.Error(t, err)
		})
	}
}

func TestValidChave(t *testing.T) {
	assert.True(t, nfe.ValidChave(chaveEsperadaSP))
	assert.True(t, nfe.ValidChave(chaveEsperadaMG))

	// DV trocado
	corrompida := chaveEsperadaSP[:43] + "5"
	assert.False(t, nfe.ValidChave(corrompida))

	assert.False(t, nfe.ValidChave(""))
	assert.False(t, nfe.ValidChave("35240811222333000181"))
	assert.False(t, nfe.ValidChave(chaveEsperadaSP[:43]+"X"))
}

func TestParseChave(t *testing.T) {
	info, err := nfe.ParseChave(chaveEsperadaSP)
	require.NoError(t, err)

	assert.Equal(t, "35", info.CodigoUF)
	assert.Equal(t, "2408", info.AAMM)
	assert.Equal(t, "11222333000181", info.CNPJ)
	assert.Equal(t, "55", info.Modelo)
	assert.Equal(t, int64(1), info.Serie)
	assert.Equal(t, int64(123), info.Numero)
	assert.Equal(t, "1", info.TpEmis)
	assert.Equal(t, "87654321", info.CodigoNF)
	assert.Equal(t, 0, info.DV)

	_, err = nfe.ParseChave("não é chave")
	assert.Error(t, err)
}
