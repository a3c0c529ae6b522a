package dto

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexopdv/nfe-engine/internal/application/fiscal"
	"github.com/nexopdv/nfe-engine/internal/domain"
	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
)

// EmitirNotaRequest entrada para emitir uma nota fiscal.
type EmitirNotaRequest struct {
	Modelo       string              `json:"modelo" validate:"required,oneof=55 65"`
	Serie        int64               `json:"serie" validate:"required,min=1,max=999"`
	Finalidade   string              `json:"finalidade" validate:"required,oneof=1 2 3 4"`
	ChaveRef     string              `json:"chave_ref"`
	Natureza     string              `json:"natureza" validate:"required"`
	Destinatario *DestinatarioDTO    `json:"destinatario"`
	Itens        []ItemNotaDTO       `json:"itens" validate:"required,min=1"`
	Desconto     decimal.Decimal     `json:"desconto"`
	Acrescimo    decimal.Decimal     `json:"acrescimo"`
	Total        decimal.Decimal     `json:"total" validate:"required"`
	Pagamento    *PagamentoDTO       `json:"pagamento"`
	InfAdicional string              `json:"inf_adicional"`
}

// DestinatarioDTO destinatário da nota (omitido = consumidor não identificado).
type DestinatarioDTO struct {
	Documento       string `json:"documento"`
	RazaoSocial     string `json:"razao_social"`
	UF              string `json:"uf"`
	CodigoMunicipio string `json:"codigo_municipio"`
	Municipio       string `json:"municipio"`
	Logradouro      string `json:"logradouro"`
	Numero          string `json:"numero"`
	Bairro          string `json:"bairro"`
	CEP             string `json:"cep"`
	IndIEDest       string `json:"ind_ie_dest"`
}

// ItemNotaDTO linha de item da nota.
type ItemNotaDTO struct {
	Codigo     string          `json:"codigo"`
	Descricao  string          `json:"descricao" validate:"required"`
	NCM        string          `json:"ncm" validate:"required"`
	CFOP       string          `json:"cfop" validate:"required"`
	CST        string          `json:"cst" validate:"required"`
	Unidade    string          `json:"unidade"`
	Quantidade decimal.Decimal `json:"quantidade"`
	ValorUnit  decimal.Decimal `json:"valor_unit"`
	ValorTotal decimal.Decimal `json:"valor_total"`
	AliqICMS   decimal.Decimal `json:"aliq_icms"`
}

// PagamentoDTO forma de pagamento (obrigatório no modelo 65).
type PagamentoDTO struct {
	Indicador string          `json:"indicador"`
	Meio      string          `json:"meio"`
	Valor     decimal.Decimal `json:"valor"`
}

// EmitirLoteRequest entrada para emitir várias notas numa única chamada.
type EmitirLoteRequest struct {
	Notas []EmitirNotaRequest `json:"notas" validate:"required,min=1"`
}

// ResultadoLoteResponse desfecho individual de uma posição do lote.
type ResultadoLoteResponse struct {
	Indice int           `json:"indice"`
	Nota   *NotaResponse `json:"nota,omitempty"`
	Erro   string        `json:"erro,omitempty"`
	CStat  string        `json:"cstat,omitempty"`
}

// LoteResponse desfechos do lote, na ordem de entrada.
type LoteResponse struct {
	Total      int                     `json:"total"`
	Falhas     int                     `json:"falhas"`
	Resultados []ResultadoLoteResponse `json:"resultados"`
}

// CancelarRequest entrada para cancelar uma nota autorizada.
type CancelarRequest struct {
	Justificativa string `json:"justificativa" validate:"required,min=15"`
}

// CartaCorrecaoRequest entrada para registrar uma CC-e.
type CartaCorrecaoRequest struct {
	Texto string `json:"texto" validate:"required,min=15,max=1000"`
}

// InutilizarRequest entrada para inutilizar uma faixa de numeração.
type InutilizarRequest struct {
	Modelo        string `json:"modelo" validate:"required,oneof=55 65"`
	Serie         int64  `json:"serie" validate:"required,min=1,max=999"`
	NumeroInicial int64  `json:"numero_inicial" validate:"required,min=1"`
	NumeroFinal   int64  `json:"numero_final" validate:"required,min=1"`
	Justificativa string `json:"justificativa" validate:"required,min=15"`
}

// NotaResponse visão externa de uma nota e seus eventos.
type NotaResponse struct {
	ID         string            `json:"id"`
	EmpresaID  string            `json:"empresa_id"`
	Chave      string            `json:"chave"`
	Modelo     string            `json:"modelo"`
	Serie      int64             `json:"serie"`
	Numero     int64             `json:"numero"`
	Estado     string            `json:"estado"`
	Recibo     string            `json:"recibo,omitempty"`
	Protocolo  string            `json:"protocolo,omitempty"`
	Total      decimal.Decimal   `json:"total"`
	UltimoErro string            `json:"ultimo_erro,omitempty"`
	Eventos    []EventoResponse  `json:"eventos,omitempty"`
	Emissao    time.Time         `json:"emissao"`
}

// EventoResponse evento de ciclo de vida registrado.
type EventoResponse struct {
	Tipo      string    `json:"tipo"`
	Sequencia int       `json:"sequencia,omitempty"`
	Protocolo string    `json:"protocolo"`
	CStat     string    `json:"cstat"`
	XMotivo   string    `json:"xmotivo"`
	Registro  time.Time `json:"registro"`
}

// InutilizacaoResponse faixa inutilizada homologada.
type InutilizacaoResponse struct {
	ID            string `json:"id"`
	Modelo        string `json:"modelo"`
	Serie         int64  `json:"serie"`
	NumeroInicial int64  `json:"numero_inicial"`
	NumeroFinal   int64  `json:"numero_final"`
	Protocolo     string `json:"protocolo"`
	CStat         string `json:"cstat"`
	XMotivo       string `json:"xmotivo"`
}

// ToEntrada converte o request na entrada do montador.
func (r *EmitirNotaRequest) ToEntrada() fiscal.EntradaNota {
	in := fiscal.EntradaNota{
		Modelo:         r.Modelo,
		Serie:          r.Serie,
		Finalidade:     r.Finalidade,
		ChaveRef:       r.ChaveRef,
		Natureza:       r.Natureza,
		Desconto:       r.Desconto,
		Acrescimo:      r.Acrescimo,
		TotalDeclarado: r.Total,
		InfAdicional:   r.InfAdicional,
	}
	if r.Destinatario != nil {
		in.Destinatario = &entity.Destinatario{
			Documento:       r.Destinatario.Documento,
			RazaoSocial:     r.Destinatario.RazaoSocial,
			UF:              r.Destinatario.UF,
			CodigoMunicipio: r.Destinatario.CodigoMunicipio,
			Municipio:       r.Destinatario.Municipio,
			Logradouro:      r.Destinatario.Logradouro,
			NumeroEndereco:  r.Destinatario.Numero,
			Bairro:          r.Destinatario.Bairro,
			CEP:             r.Destinatario.CEP,
			IndIEDest:       r.Destinatario.IndIEDest,
		}
	}
	if r.Pagamento != nil {
		in.Pagamento = entity.Pagamento{
			Indicador: r.Pagamento.Indicador,
			Meio:      r.Pagamento.Meio,
			Valor:     r.Pagamento.Valor,
		}
	}
	for _, item := range r.Itens {
		in.Itens = append(in.Itens, entity.ItemNota{
			Codigo:     item.Codigo,
			Descricao:  item.Descricao,
			NCM:        item.NCM,
			CFOP:       item.CFOP,
			CST:        item.CST,
			Unidade:    item.Unidade,
			Quantidade: item.Quantidade,
			ValorUnit:  item.ValorUnit,
			ValorTotal: item.ValorTotal,
			AliqICMS:   item.AliqICMS,
		})
	}
	return in
}

// FromNota converte a entidade na resposta externa.
func FromNota(n *entity.NotaFiscal) NotaResponse {
	resp := NotaResponse{
		ID:         n.ID,
		EmpresaID:  n.EmpresaID,
		Chave:      n.Chave,
		Modelo:     n.Modelo,
		Serie:      n.Serie,
		Numero:     n.Numero,
		Estado:     n.Estado,
		Recibo:     n.Recibo,
		Protocolo:  n.Protocolo,
		Total:      n.Totais.Total,
		UltimoErro: n.UltimoErro,
		Emissao:    n.Emissao,
	}
	for _, ev := range n.Eventos {
		resp.Eventos = append(resp.Eventos, EventoResponse{
			Tipo:      ev.Tipo,
			Sequencia: ev.Sequencia,
			Protocolo: ev.Protocolo,
			CStat:     ev.CStat,
			XMotivo:   ev.XMotivo,
			Registro:  ev.Registro,
		})
	}
	return resp
}

// FromResultados converte os desfechos do processador na resposta do lote.
// O cStat viaja junto quando o erro é rejeição da SEFAZ, para o chamador
// triar sem parsear mensagem.
func FromResultados(resultados []fiscal.ResultadoEmissao) LoteResponse {
	resp := LoteResponse{Total: len(resultados)}
	for _, r := range resultados {
		item := ResultadoLoteResponse{Indice: r.Indice}
		if r.Err != nil {
			resp.Falhas++
			item.Erro = r.Err.Error()
			var rej *domain.ProtocolRejection
			if errors.As(r.Err, &rej) {
				item.CStat = rej.CStat
			}
		}
		if r.Nota != nil {
			nota := FromNota(r.Nota)
			item.Nota = &nota
		}
		resp.Resultados = append(resp.Resultados, item)
	}
	return resp
}

// FromInutilizacao converte o registro na resposta externa.
func FromInutilizacao(i *repository.Inutilizacao) InutilizacaoResponse {
	return InutilizacaoResponse{
		ID:            i.ID,
		Modelo:        i.Modelo,
		Serie:         i.Serie,
		NumeroInicial: i.NumeroInicial,
		NumeroFinal:   i.NumeroFinal,
		Protocolo:     i.Protocolo,
		CStat:         i.CStat,
		XMotivo:       i.XMotivo,
	}
}
