// Package nfe contém catálogos e validações alinhados ao Manual de Orientação
// do Contribuinte (MOC) da NF-e, layout 4.00.
package nfe

// =============================================================================
// Modelos de documento fiscal eletrônico
// =============================================================================

const (
	ModeloNFe  = "55" // Nota Fiscal Eletrônica
	ModeloNFCe = "65" // Nota Fiscal de Consumidor Eletrônica
)

// ValidModelos modelos de documento aceitos pelo engine.
var ValidModelos = map[string]bool{
	ModeloNFe:  true,
	ModeloNFCe: true,
}

// =============================================================================
// Finalidade de emissão (tag finNFe)
// =============================================================================

const (
	FinalidadeNormal       = "1" // NF-e normal
	FinalidadeComplementar = "2" // NF-e complementar
	FinalidadeAjuste       = "3" // NF-e de ajuste
	FinalidadeDevolucao    = "4" // Devolução de mercadoria (exige refNFe)
)

// ValidFinalidades finalidades de emissão válidas.
var ValidFinalidades = map[string]bool{
	FinalidadeNormal:       true,
	FinalidadeComplementar: true,
	FinalidadeAjuste:       true,
	FinalidadeDevolucao:    true,
}

// =============================================================================
// Tipos de evento (tag tpEvento)
// =============================================================================

const (
	EventoCancelamento  = "110111" // Cancelamento de NF-e autorizada
	EventoCartaCorrecao = "110110" // Carta de Correção Eletrônica (CC-e)
)

// CondicaoUsoCCe texto de condição de uso exigido pelo MOC no evento de CC-e.
const CondicaoUsoCCe = "A Carta de Correcao e disciplinada pelo paragrafo 1o-A do art. 7o do Convenio S/N, de 15 de dezembro de 1970 e pode ser utilizada para regularizacao de erro ocorrido na emissao de documento fiscal, desde que o erro nao esteja relacionado com: I - as variaveis que determinam o valor do imposto tais como: base de calculo, aliquota, diferenca de preco, quantidade, valor da operacao ou da prestacao; II - a correcao de dados cadastrais que implique mudanca do remetente ou do destinatario; III - a data de emissao ou de saida."

// Limites da CC-e definidos pelo MOC.
const (
	CCeSequenciaMin = 1
	CCeSequenciaMax = 20
	CCeTextoMin     = 15
	CCeTextoMax     = 1000
)

// JustificativaMin tamanho mínimo de justificativa (cancelamento e inutilização).
const JustificativaMin = 15

// cfopsDevolucao CFOPs de devolução de mercadoria; itens de uma nota com
// finalidade 4 devem usar um destes.
var cfopsDevolucao = map[string]bool{
	"1201": true, "1202": true, "1410": true, "1411": true,
	"2201": true, "2202": true, "2410": true, "2411": true,
	"5201": true, "5202": true, "5410": true, "5411": true,
	"6201": true, "6202": true, "6410": true, "6411": true,
}

// IsCFOPDevolucao informa se o CFOP pertence ao grupo de devolução.
func IsCFOPDevolucao(cfop string) bool {
	return cfopsDevolucao[cfop]
}

// =============================================================================
// Códigos de status SEFAZ (cStat) usados pelo engine
// =============================================================================

const (
	StatusLoteRecebido        = "103" // Lote recebido com sucesso (devolve nRec)
	StatusLoteProcessado      = "104" // Lote processado (resultado por nota em protNFe)
	StatusLoteEmProcessamento = "105" // Lote em processamento — consultar novamente
	StatusAutorizado          = "100" // Autorizado o uso da NF-e
	StatusCancelada           = "101" // Cancelamento de NF-e homologado
	StatusInutilizada         = "102" // Inutilização de número homologada
	StatusEventoRegistrado    = "135" // Evento registrado e vinculado à NF-e
	StatusEventoRegistrado2   = "155" // Cancelamento homologado fora de prazo
	StatusLoteEventoProc      = "128" // Lote de evento processado — NÃO terminal, seguir consultando
	StatusNaoConsta           = "217" // NF-e não consta na base da SEFAZ
	StatusDuplicidadeEvento   = "573" // Duplicidade de evento (mesma sequência)
	StatusServicoOperando     = "107" // Serviço em operação (consulta de status)
)

// statusNaoTerminais códigos de lote/fila que exigem nova consulta em vez de desfecho.
var statusNaoTerminais = map[string]bool{
	StatusLoteRecebido:        true,
	StatusLoteEmProcessamento: true,
	StatusLoteEventoProc:      true,
}

// IsStatusPendente informa se o cStat indica processamento em andamento (seguir polling).
func IsStatusPendente(cStat string) bool {
	return statusNaoTerminais[cStat]
}

// descricaoStatus descrições amigáveis para os rejeitos mais comuns da SEFAZ.
// A mensagem original (xMotivo) é sempre preservada; isto é apenas apoio de UI/log.
var descricaoStatus = map[string]string{
	"204": "Duplicidade de NF-e",
	"206": "Número de NF-e já inutilizado na SEFAZ",
	"217": "NF-e não consta na base de dados da SEFAZ",
	"228": "Data de emissão muito atrasada",
	"252": "Ambiente informado diverge do ambiente de recebimento",
	"253": "Dígito verificador da chave de acesso inválido",
	"280": "Certificado digital transmissor inválido ou vencido",
	"502": "Chave de acesso não corresponde aos dados da NF-e",
	"539": "Já existe NF-e autorizada com este número e série",
	"573": "Duplicidade de evento",
	"703": "Data de emissão posterior à data de recebimento",
}

// DescricaoStatus devolve a descrição amigável do cStat, ou vazio se desconhecido.
func DescricaoStatus(cStat string) string {
	return descricaoStatus[cStat]
}

// =============================================================================
// Códigos de UF (IBGE) — usados no prefixo da chave de acesso e no cabeçalho SOAP
// =============================================================================

var codigoUF = map[string]string{
	"RO": "11", "AC": "12", "AM": "13", "RR": "14", "PA": "15", "AP": "16", "TO": "17",
	"MA": "21", "PI": "22", "CE": "23", "RN": "24", "PB": "25", "PE": "26", "AL": "27", "SE": "28", "BA": "29",
	"MG": "31", "ES": "32", "RJ": "33", "SP": "35",
	"PR": "41", "SC": "42", "RS": "43",
	"MS": "50", "MT": "51", "GO": "52", "DF": "53",
}

// CodigoUF devolve o código IBGE da UF (ex: SP -> 35). Vazio se a sigla for desconhecida.
func CodigoUF(sigla string) string {
	return codigoUF[sigla]
}
