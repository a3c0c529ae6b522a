// Cliente SOAP dos web services da SEFAZ (protocolo 4.00). Usa net/http da
// stdlib; a única inteligência extra é o retry de falhas de rede via Backoff e
// a normalização da resposta via InterpretarResposta.

package sefaz

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexopdv/nfe-engine/pkg/nfe"
)

// Transmissor porta de saída para os web services fiscais. A implementação
// concreta fala SOAP; para testes injeta-se um fake.
type Transmissor interface {
	// EnviarLote submete o XML assinado num lote de um documento.
	EnviarLote(ctx context.Context, xmlAssinado []byte, idLote string) (*Retorno, error)
	// ConsultarRecibo consulta o resultado do processamento de um lote.
	ConsultarRecibo(ctx context.Context, recibo string) (*Retorno, error)
	// ConsultarChave consulta a situação atual de um documento pela chave.
	ConsultarChave(ctx context.Context, chave string) (*Retorno, error)
	// Cancelar registra o evento de cancelamento de um documento autorizado.
	Cancelar(ctx context.Context, chave, protocolo, justificativa string) (*Retorno, error)
	// CartaCorrecao registra uma carta de correção eletrônica.
	CartaCorrecao(ctx context.Context, chave, texto string, sequencia int) (*Retorno, error)
	// Inutilizar inutiliza uma faixa de numeração nunca emitida do modelo dado.
	Inutilizar(ctx context.Context, cnpj, modelo string, serie, numeroInicial, numeroFinal int64, justificativa string) (*Retorno, error)
	// StatusServico verifica a disponibilidade do autorizador.
	StatusServico(ctx context.Context) (*Retorno, error)
}

// Config parâmetros de conexão do cliente.
type Config struct {
	UF           string
	Ambiente     string // "1" produção, "2" homologação
	Versao       string // versão do layout, ex. "4.00"
	EndpointURL  string // override fixo; vazio usa a tabela por UF
	Timeout      time.Duration
	Retry        Backoff
}

// Client implementação SOAP de Transmissor.
type Client struct {
	httpClient *http.Client
	cfg        Config
	log        zerolog.Logger
}

var _ Transmissor = (*Client)(nil)

// NewClient constrói o cliente com timeout fixo por chamada. O retry fica por
// conta do Backoff configurado, nunca do http.Client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Versao == "" {
		cfg.Versao = "4.00"
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		log:        log,
	}
}

// ─────────────────────────────────────────────
// Payloads do protocolo
// ─────────────────────────────────────────────

type consReciNFe struct {
	XMLName xml.Name `xml:"consReciNFe"`
	Xmlns   string   `xml:"xmlns,attr"`
	Versao  string   `xml:"versao,attr"`
	TpAmb   string   `xml:"tpAmb"`
	NRec    string   `xml:"nRec"`
}

type consSitNFe struct {
	XMLName xml.Name `xml:"consSitNFe"`
	Xmlns   string   `xml:"xmlns,attr"`
	Versao  string   `xml:"versao,attr"`
	TpAmb   string   `xml:"tpAmb"`
	XServ   string   `xml:"xServ"`
	ChNFe   string   `xml:"chNFe"`
}

type consStatServ struct {
	XMLName xml.Name `xml:"consStatServ"`
	Xmlns   string   `xml:"xmlns,attr"`
	Versao  string   `xml:"versao,attr"`
	TpAmb   string   `xml:"tpAmb"`
	CUF     string   `xml:"cUF"`
	XServ   string   `xml:"xServ"`
}

type envEvento struct {
	XMLName xml.Name `xml:"envEvento"`
	Xmlns   string   `xml:"xmlns,attr"`
	Versao  string   `xml:"versao,attr"`
	IDLote  string   `xml:"idLote"`
	Evento  evento   `xml:"evento"`
}

type evento struct {
	Xmlns     string    `xml:"xmlns,attr"`
	Versao    string    `xml:"versao,attr"`
	InfEvento infEvento `xml:"infEvento"`
}

type infEvento struct {
	ID         string    `xml:"Id,attr"`
	COrgao     string    `xml:"cOrgao"`
	TpAmb      string    `xml:"tpAmb"`
	CNPJ       string    `xml:"CNPJ"`
	ChNFe      string    `xml:"chNFe"`
	DhEvento   string    `xml:"dhEvento"`
	TpEvento   string    `xml:"tpEvento"`
	NSeqEvento int       `xml:"nSeqEvento"`
	VerEvento  string    `xml:"verEvento"`
	DetEvento  detEvento `xml:"detEvento"`
}

type detEvento struct {
	Versao     string `xml:"versao,attr"`
	DescEvento string `xml:"descEvento"`
	NProt      string `xml:"nProt,omitempty"`
	XJust      string `xml:"xJust,omitempty"`
	XCorrecao  string `xml:"xCorrecao,omitempty"`
	XCondUso   string `xml:"xCondUso,omitempty"`
}

type inutNFe struct {
	XMLName xml.Name `xml:"inutNFe"`
	Xmlns   string   `xml:"xmlns,attr"`
	Versao  string   `xml:"versao,attr"`
	InfInut infInut  `xml:"infInut"`
}

type infInut struct {
	ID     string `xml:"Id,attr"`
	TpAmb  string `xml:"tpAmb"`
	XServ  string `xml:"xServ"`
	CUF    string `xml:"cUF"`
	Ano    string `xml:"ano"`
	CNPJ   string `xml:"CNPJ"`
	Mod    string `xml:"mod"`
	Serie  int64  `xml:"serie"`
	NNFIni int64  `xml:"nNFIni"`
	NNFFin int64  `xml:"nNFFin"`
	XJust  string `xml:"xJust"`
}

// ─────────────────────────────────────────────
// Operações
// ─────────────────────────────────────────────

func (c *Client) EnviarLote(ctx context.Context, xmlAssinado []byte, idLote string) (*Retorno, error) {
	// o enviNFe embrulha o documento já assinado; montado por concatenação
	// para não reserializar (e invalidar) a assinatura
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<enviNFe xmlns="%s" versao="%s">`, nsPortalFiscal, c.cfg.Versao)
	fmt.Fprintf(&buf, `<idLote>%s</idLote><indSinc>0</indSinc>`, idLote)
	buf.Write(xmlAssinado)
	buf.WriteString(`</enviNFe>`)
	return c.chamar(ctx, ServicoAutorizacao, buf.Bytes())
}

func (c *Client) ConsultarRecibo(ctx context.Context, recibo string) (*Retorno, error) {
	payload, err := xml.Marshal(consReciNFe{
		Xmlns:  nsPortalFiscal,
		Versao: c.cfg.Versao,
		TpAmb:  c.cfg.Ambiente,
		NRec:   recibo,
	})
	if err != nil {
		return nil, fmt.Errorf("serializar consReciNFe: %w", err)
	}
	return c.chamar(ctx, ServicoRetAutorizacao, payload)
}

func (c *Client) ConsultarChave(ctx context.Context, chave string) (*Retorno, error) {
	payload, err := xml.Marshal(consSitNFe{
		Xmlns:  nsPortalFiscal,
		Versao: c.cfg.Versao,
		TpAmb:  c.cfg.Ambiente,
		XServ:  "CONSULTAR",
		ChNFe:  chave,
	})
	if err != nil {
		return nil, fmt.Errorf("serializar consSitNFe: %w", err)
	}
	return c.chamar(ctx, ServicoConsulta, payload)
}

func (c *Client) Cancelar(ctx context.Context, chave, protocolo, justificativa string) (*Retorno, error) {
	return c.enviarEvento(ctx, chave, nfe.EventoCancelamento, 1, detEvento{
		Versao:     "1.00",
		DescEvento: "Cancelamento",
		NProt:      protocolo,
		XJust:      justificativa,
	})
}

func (c *Client) CartaCorrecao(ctx context.Context, chave, texto string, sequencia int) (*Retorno, error) {
	return c.enviarEvento(ctx, chave, nfe.EventoCartaCorrecao, sequencia, detEvento{
		Versao:     "1.00",
		DescEvento: "Carta de Correcao",
		XCorrecao:  texto,
		XCondUso:   nfe.CondicaoUsoCCe,
	})
}

func (c *Client) Inutilizar(ctx context.Context, cnpj, modelo string, serie, numeroInicial, numeroFinal int64, justificativa string) (*Retorno, error) {
	cUF := nfe.CodigoUF(c.cfg.UF)
	ano := time.Now().Format("06")
	id := fmt.Sprintf("ID%s%s%s%s%03d%09d%09d",
		cUF, ano, cnpj, modelo, serie, numeroInicial, numeroFinal)
	payload, err := xml.Marshal(inutNFe{
		Xmlns:  nsPortalFiscal,
		Versao: c.cfg.Versao,
		InfInut: infInut{
			ID:     id,
			TpAmb:  c.cfg.Ambiente,
			XServ:  "INUTILIZAR",
			CUF:    cUF,
			Ano:    ano,
			CNPJ:   cnpj,
			Mod:    modelo,
			Serie:  serie,
			NNFIni: numeroInicial,
			NNFFin: numeroFinal,
			XJust:  justificativa,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("serializar inutNFe: %w", err)
	}
	return c.chamar(ctx, ServicoInutilizacao, payload)
}

func (c *Client) StatusServico(ctx context.Context) (*Retorno, error) {
	payload, err := xml.Marshal(consStatServ{
		Xmlns:  nsPortalFiscal,
		Versao: c.cfg.Versao,
		TpAmb:  c.cfg.Ambiente,
		CUF:    nfe.CodigoUF(c.cfg.UF),
		XServ:  "STATUS",
	})
	if err != nil {
		return nil, fmt.Errorf("serializar consStatServ: %w", err)
	}
	return c.chamar(ctx, ServicoStatus, payload)
}

func (c *Client) enviarEvento(ctx context.Context, chave, tpEvento string, sequencia int, det detEvento) (*Retorno, error) {
	payload, err := xml.Marshal(envEvento{
		Xmlns:  nsPortalFiscal,
		Versao: "1.00",
		IDLote: "1",
		Evento: evento{
			Xmlns:  nsPortalFiscal,
			Versao: "1.00",
			InfEvento: infEvento{
				ID:         fmt.Sprintf("ID%s%s%02d", tpEvento, chave, sequencia),
				COrgao:     chave[:2],
				TpAmb:      c.cfg.Ambiente,
				CNPJ:       chave[6:20],
				ChNFe:      chave,
				DhEvento:   time.Now().Format("2006-01-02T15:04:05-07:00"),
				TpEvento:   tpEvento,
				NSeqEvento: sequencia,
				VerEvento:  "1.00",
				DetEvento:  det,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("serializar envEvento: %w", err)
	}
	return c.chamar(ctx, ServicoEvento, payload)
}

// ─────────────────────────────────────────────
// Transporte SOAP
// ─────────────────────────────────────────────

// chamar embrulha o payload no envelope SOAP 1.2, submete com retry de rede e
// normaliza a resposta. O corpo bruto sobrevive dentro do Retorno.
func (c *Client) chamar(ctx context.Context, servico string, payload []byte) (*Retorno, error) {
	url := resolverEndpoint(c.cfg.EndpointURL, c.cfg.UF, c.cfg.Ambiente, servico)
	envelope := montarEnvelope(servico, payload)

	var corpo []byte
	err := c.cfg.Retry.Execute(ctx, servico, func(ctx context.Context) error {
		var err error
		corpo, err = c.post(ctx, url, servico, envelope)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.log.Debug().Str("servico", servico).Int("bytes", len(corpo)).Msg("resposta sefaz recebida")
	return InterpretarResposta(corpo)
}

func (c *Client) post(ctx context.Context, url, servico string, envelope []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("criar request: %w", err)
	}
	req.Header.Set("Content-Type",
		fmt.Sprintf(`application/soap+xml; charset=utf-8; action="http://www.portalfiscal.inf.br/nfe/wsdl/%s/nfeDadosMsg"`, servico))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errRede(err)
	}
	defer resp.Body.Close()

	corpo, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20)) // max 4 MB
	if err != nil {
		return nil, errRede(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errRede(fmt.Errorf("HTTP %d do autorizador", resp.StatusCode))
	}
	return corpo, nil
}

// montarEnvelope por concatenação: o payload pode carregar uma assinatura
// digital que reserialização via encoding/xml corromperia.
func montarEnvelope(servico string, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString(`<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope"><soap12:Body>`)
	fmt.Fprintf(&buf, `<nfeDadosMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/%s">`, servico)
	buf.Write(payload)
	buf.WriteString(`</nfeDadosMsg></soap12:Body></soap12:Envelope>`)
	return buf.Bytes()
}
