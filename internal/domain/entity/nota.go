package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados do ciclo de vida de uma nota fiscal.
const (
	EstadoRascunho      = "RASCUNHO"       // Criada em memória, ainda não montada
	EstadoMontada       = "MONTADA"        // Documento canônico validado, com chave de acesso
	EstadoAssinada      = "ASSINADA"       // XML assinado, pronto para transmissão
	EstadoEnviada       = "ENVIADA"        // Lote entregue à SEFAZ, recibo recebido
	EstadoAguardando    = "AGUARDANDO"     // Consultando recibo (autorização assíncrona)
	EstadoAutorizada    = "AUTORIZADA"     // cStat 100 com protocolo
	EstadoRejeitada     = "REJEITADA"      // Recusa explícita da SEFAZ (cStat/xMotivo preservados)
	EstadoCancelada     = "CANCELADA"      // Evento de cancelamento homologado
	EstadoInutilizada   = "INUTILIZADA"    // Faixa de numeração inutilizada (trilha independente)
)

// Tipos de evento registrados contra uma nota ou série.
const (
	TipoEventoAutorizacao   = "AUTORIZACAO"
	TipoEventoCancelamento  = "CANCELAMENTO"
	TipoEventoCartaCorrecao = "CARTA_CORRECAO"
	TipoEventoInutilizacao  = "INUTILIZACAO"
)

// NotaFiscal é a unidade de trabalho do engine: o documento canônico em memória.
// É criada por requisição e só persistida ao alcançar estado terminal ou estável;
// retries operam sobre o objeto em voo, não sobre linhas parciais de banco.
type NotaFiscal struct {
	ID         string
	EmpresaID  string
	Chave      string // Chave de acesso de 44 dígitos (definida na montagem)
	Modelo     string // "55" NF-e | "65" NFC-e
	Serie      int64
	Numero     int64
	Finalidade string // "1" normal, "2" complementar, "3" ajuste, "4" devolução
	ChaveRef   string // Chave referenciada (obrigatória na devolução)
	Natureza   string // Natureza da operação (natOp)
	Emissao    time.Time

	Emitente     *Empresa
	Destinatario *Destinatario
	Itens        []ItemNota
	Totais       Totais
	Pagamento    Pagamento
	InfAdicional string

	Estado       string
	Recibo       string // nRec devolvido pela SEFAZ no envio do lote
	Protocolo    string // nProt da autorização (15 dígitos)
	XMLAssinado  []byte
	Eventos      []EventoFiscal
	UltimoErro   string // cStat/xMotivo literal do último desfecho adverso

	CriadaEm     time.Time
	AtualizadaEm time.Time
}

// EventoAutorizacao devolve o evento de autorização da nota, se existir.
func (n *NotaFiscal) EventoAutorizacao() *EventoFiscal {
	for i := range n.Eventos {
		if n.Eventos[i].Tipo == TipoEventoAutorizacao {
			return &n.Eventos[i]
		}
	}
	return nil
}

// ProximaSequenciaCCe devolve a próxima sequência válida de carta de correção
// (máxima registrada + 1; 1 se nunca houve CC-e).
func (n *NotaFiscal) ProximaSequenciaCCe() int {
	max := 0
	for _, ev := range n.Eventos {
		if ev.Tipo == TipoEventoCartaCorrecao && ev.Sequencia > max {
			max = ev.Sequencia
		}
	}
	return max + 1
}

// ItemNota linha de produto/serviço da nota. Os códigos de classificação
// tributária (CFOP, NCM, CST/CSOSN) chegam já resolvidos e são opacos ao engine.
type ItemNota struct {
	Codigo     string // Código interno/SKU
	Descricao  string
	NCM        string
	CFOP       string
	CST        string // CST ou CSOSN, conforme o regime do emitente
	Unidade    string
	Quantidade decimal.Decimal
	ValorUnit  decimal.Decimal
	ValorTotal decimal.Decimal
	AliqICMS   decimal.Decimal
}

// Totais valores agregados da nota.
// Invariantes: Produtos == Σ itens.ValorTotal; Total == Produtos − Desconto + Acrescimo.
type Totais struct {
	Produtos  decimal.Decimal
	Desconto  decimal.Decimal
	Acrescimo decimal.Decimal // frete, seguro e outras despesas acessórias
	ICMS      decimal.Decimal
	Total     decimal.Decimal
}

// Pagamento forma e meio de pagamento (tag pag). Obrigatório no modelo 65.
type Pagamento struct {
	Indicador string          // "0" à vista, "1" a prazo
	Meio      string          // "01" dinheiro, "03" cartão crédito, "17" PIX, ...
	Valor     decimal.Decimal
}

// EventoFiscal evento de ciclo de vida registrado na SEFAZ.
type EventoFiscal struct {
	ID        string
	NotaID    string
	Tipo      string
	Sequencia int    // Sequência da CC-e (1..20); 0 para os demais
	Protocolo string // nProt devolvido pela SEFAZ
	CStat     string // Código de status literal da SEFAZ
	XMotivo   string // Mensagem literal da SEFAZ
	Texto     string // Justificativa ou texto de correção enviado
	Registro  time.Time
}
