package sefaz_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexopdv/nfe-engine/internal/domain"
	"github.com/nexopdv/nfe-engine/internal/infrastructure/sefaz"
)

func clienteParaServidor(url string, maxAttempts int) *sefaz.Client {
	return sefaz.NewClient(sefaz.Config{
		UF:          "SP",
		Ambiente:    "2",
		Versao:      "4.00",
		EndpointURL: url,
		Timeout:     2 * time.Second,
		Retry:       sefaz.Backoff{BaseDelay: time.Millisecond, Multiplier: 2, MaxAttempts: maxAttempts},
	}, zerolog.Nop())
}

func TestClient_EnviarLote_RecebeRecibo(t *testing.T) {
	var corpoRecebido string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		corpoRecebido = string(b)
		w.Write([]byte(`<retEnviNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
			<tpAmb>2</tpAmb><cStat>103</cStat><xMotivo>Lote recebido com sucesso</xMotivo>
			<infRec><nRec>351000000000001</nRec></infRec>
		</retEnviNFe>`))
	}))
	defer srv.Close()

	cli := clienteParaServidor(srv.URL, 3)
	ret, err := cli.EnviarLote(context.Background(), []byte(`<NFe>assinada</NFe>`), "42")

	require.NoError(t, err)
	assert.Equal(t, "103", ret.CStat)
	assert.Equal(t, "351000000000001", ret.Recibo)

	// o XML assinado deve ir byte a byte dentro do enviNFe, sem reserialização
	assert.Contains(t, corpoRecebido, `<NFe>assinada</NFe>`)
	assert.Contains(t, corpoRecebido, `<idLote>42</idLote>`)
	assert.Contains(t, corpoRecebido, `soap12:Envelope`)
}

func TestClient_FalhaDeRedeRespeitaTeto(t *testing.T) {
	var chamadas int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		chamadas++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cli := clienteParaServidor(srv.URL, 3)
	_, err := cli.ConsultarRecibo(context.Background(), "351000000000001")

	require.Error(t, err)
	assert.Equal(t, 3, chamadas, "HTTP 5xx conta como falha de rede e re-tenta até o teto")

	var te *domain.TransmissionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, sefaz.ServicoRetAutorizacao, te.Operacao)
}

func TestClient_RespostaIndecifravel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html>manutencao programada</html>`))
	}))
	defer srv.Close()

	cli := clienteParaServidor(srv.URL, 2)
	_, err := cli.ConsultarChave(context.Background(), "35240811222333000181550010000001231876543210")

	var ie *domain.InterpretationError
	require.True(t, errors.As(err, &ie), "resposta 200 sem cStat vira InterpretationError")
}

func TestClient_CancelamentoMontaEvento(t *testing.T) {
	var corpo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		corpo = string(b)
		w.Write([]byte(`<retEnvEvento xmlns="http://www.portalfiscal.inf.br/nfe" versao="1.00">
			<cStat>128</cStat><xMotivo>Lote de evento processado</xMotivo>
			<retEvento versao="1.00"><infEvento>
				<chNFe>35240811222333000181550010000001231876543210</chNFe>
				<nProt>135240000054321</nProt>
				<cStat>135</cStat><xMotivo>Evento registrado e vinculado a NF-e</xMotivo>
			</infEvento></retEvento>
		</retEnvEvento>`))
	}))
	defer srv.Close()

	chave := "35240811222333000181550010000001231876543210"
	cli := clienteParaServidor(srv.URL, 1)
	ret, err := cli.Cancelar(context.Background(), chave, "135240000012345", "cancelamento por erro de digitacao")

	require.NoError(t, err)
	assert.Equal(t, "135", ret.CStat)
	assert.Equal(t, "135240000054321", ret.Protocolo)

	assert.Contains(t, corpo, `<tpEvento>110111</tpEvento>`)
	assert.Contains(t, corpo, `<nProt>135240000012345</nProt>`)
	assert.Contains(t, corpo, "ID110111"+chave+"01")
	// cOrgao e CNPJ derivam da própria chave
	assert.Contains(t, corpo, `<cOrgao>35</cOrgao>`)
	assert.Contains(t, corpo, `<CNPJ>11222333000181</CNPJ>`)
}

func TestClient_InutilizacaoMontaFaixa(t *testing.T) {
	var corpo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		corpo = string(b)
		w.Write([]byte(`<retInutNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
			<infInut><cStat>102</cStat><xMotivo>Inutilizacao de numero homologado</xMotivo>
			<nProt>135240000099999</nProt></infInut>
		</retInutNFe>`))
	}))
	defer srv.Close()

	cli := clienteParaServidor(srv.URL, 1)
	ret, err := cli.Inutilizar(context.Background(), "11222333000181", "65", 1, 124, 130, "quebra de sequencia por falha de sistema")

	require.NoError(t, err)
	assert.Equal(t, "102", ret.CStat)

	assert.Contains(t, corpo, `<xServ>INUTILIZAR</xServ>`)
	assert.Contains(t, corpo, `<mod>65</mod>`)
	assert.Contains(t, corpo, `<nNFIni>124</nNFIni>`)
	assert.Contains(t, corpo, `<nNFFin>130</nNFFin>`)
	assert.True(t, strings.Contains(corpo, `Id="ID35`), "o Id começa com o código da UF")
}
