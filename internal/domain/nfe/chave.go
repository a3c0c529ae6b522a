// Package nfe: montagem e validação da chave de acesso da NF-e (44 dígitos)
// conforme o MOC. Composição:
//
//	cUF(2) AAMM(4) CNPJ(14) mod(2) serie(3) nNF(9) tpEmis(1) cNF(8) cDV(1)
//
// O dígito verificador usa módulo-11 com pesos 2..9 da direita para a esquerda.
package nfe

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	pkgnfe "github.com/nexopdv/nfe-engine/pkg/nfe"
)

// TamanhoChave tamanho fixo da chave de acesso.
const TamanhoChave = 44

// ChaveParams dados para montar a chave de acesso.
type ChaveParams struct {
	UF       string    // Sigla da UF autorizadora (convertida para código IBGE)
	Emissao  time.Time // Data de emissão (AAMM)
	CNPJ     string    // CNPJ do emitente (14 dígitos)
	Modelo   string    // "55" ou "65"
	Serie    int64     // 1..999
	Numero   int64     // 1..999999999
	TpEmis   string    // Tipo de emissão ("1" = normal)
	CodigoNF string    // cNF de 8 dígitos; vazio = sorteado
}

// BuildChave monta a chave de acesso completa (com DV).
func BuildChave(p ChaveParams) (string, error) {
	cUF := pkgnfe.CodigoUF(p.UF)
	if cUF == "" {
		return "", fmt.Errorf("nfe: UF desconhecida %q", p.UF)
	}
	cnpj := pkgnfe.OnlyDigits(p.CNPJ)
	if len(cnpj) != 14 {
		return "", fmt.Errorf("nfe: CNPJ deve ter 14 dígitos, recebeu %d", len(cnpj))
	}
	if !pkgnfe.ValidModelos[p.Modelo] {
		return "", fmt.Errorf("nfe: modelo inválido %q", p.Modelo)
	}
	if p.Serie < 1 || p.Serie > 999 {
		return "", fmt.Errorf("nfe: série %d fora do intervalo 1..999", p.Serie)
	}
	if p.Numero < 1 || p.Numero > 999999999 {
		return "", fmt.Errorf("nfe: número %d fora do intervalo 1..999999999", p.Numero)
	}
	tpEmis := p.TpEmis
	if tpEmis == "" {
		tpEmis = "1"
	}
	cNF := p.CodigoNF
	if cNF == "" {
		var err error
		cNF, err = sorteiaCodigoNF()
		if err != nil {
			return "", err
		}
	}
	if len(cNF) != 8 {
		return "", fmt.Errorf("nfe: cNF deve ter 8 dígitos, recebeu %q", cNF)
	}

	base := cUF +
		p.Emissao.Format("0601") + // AAMM
		cnpj +
		p.Modelo +
		fmt.Sprintf("%03d", p.Serie) +
		fmt.Sprintf("%09d", p.Numero) +
		tpEmis +
		cNF
	return base + fmt.Sprintf("%d", DigitoVerificador(base)), nil
}

// DigitoVerificador calcula o cDV por módulo-11 (pesos 2..9 da direita para a esquerda).
// Resto 0 ou 1 resulta em DV 0.
func DigitoVerificador(base43 string) int {
	peso := 2
	soma := 0
	for i := len(base43) - 1; i >= 0; i-- {
		soma += int(base43[i]-'0') * peso
		peso++
		if peso > 9 {
			peso = 2
		}
	}
	resto := soma % 11
	if resto < 2 {
		return 0
	}
	return 11 - resto
}

// ValidChave verifica tamanho, dígitos e DV de uma chave de acesso.
func ValidChave(chave string) bool {
	if len(chave) != TamanhoChave {
		return false
	}
	for i := 0; i < len(chave); i++ {
		if chave[i] < '0' || chave[i] > '9' {
			return false
		}
	}
	return DigitoVerificador(chave[:43]) == int(chave[43]-'0')
}

// ChaveInfo campos extraídos de uma chave de acesso válida.
type ChaveInfo struct {
	CodigoUF string
	AAMM     string
	CNPJ     string
	Modelo   string
	Serie    int64
	Numero   int64
	TpEmis   string
	CodigoNF string
	DV       int
}

// ParseChave decompõe uma chave de acesso nos seus campos.
func ParseChave(chave string) (*ChaveInfo, error) {
	if !ValidChave(chave) {
		return nil, fmt.Errorf("nfe: chave de acesso inválida %q", chave)
	}
	var serie, numero int64
	fmt.Sscanf(chave[22:25], "%d", &serie)
	fmt.Sscanf(chave[25:34], "%d", &numero)
	return &ChaveInfo{
		CodigoUF: chave[0:2],
		AAMM:     chave[2:6],
		CNPJ:     chave[6:20],
		Modelo:   chave[20:22],
		Serie:    serie,
		Numero:   numero,
		TpEmis:   chave[34:35],
		CodigoNF: chave[35:43],
		DV:       int(chave[43] - '0'),
	}, nil
}

// sorteiaCodigoNF gera um cNF aleatório de 8 dígitos (crypto/rand; o MOC
// recomenda código não sequencial para dificultar adivinhação de chaves).
func sorteiaCodigoNF() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000000))
	if err != nil {
		return "", fmt.Errorf("nfe: sortear cNF: %w", err)
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}
