// Eventos pós-autorização: cancelamento, carta de correção e inutilização de
// faixa. Cada operação valida tudo que puder localmente antes de tocar a rede;
// o cancelamento ainda exige uma consulta de situação fresca antes do evento.

package fiscal

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nexopdv/nfe-engine/internal/domain"
	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
	"github.com/nexopdv/nfe-engine/internal/infrastructure/sefaz"
	"github.com/nexopdv/nfe-engine/pkg/logger"
	"github.com/nexopdv/nfe-engine/pkg/nfe"
)

// JanelaCancelamentoPadrao prazo regulamentar para cancelar após a autorização.
const JanelaCancelamentoPadrao = 24 * time.Hour

// GestorEventos conduz os eventos de ciclo de vida contra a SEFAZ.
type GestorEventos struct {
	notas         repository.NotaRepository
	inutilizacoes repository.InutilizacaoRepository
	transmissor   sefaz.Transmissor
	artefatos     ArmazemArtefatos
	janela        time.Duration
	log           *logger.Logger
}

func NewGestorEventos(
	notas repository.NotaRepository,
	inutilizacoes repository.InutilizacaoRepository,
	transmissor sefaz.Transmissor,
	artefatos ArmazemArtefatos,
	janela time.Duration,
	log *logger.Logger,
) *GestorEventos {
	if janela <= 0 {
		janela = JanelaCancelamentoPadrao
	}
	return &GestorEventos{
		notas:         notas,
		inutilizacoes: inutilizacoes,
		transmissor:   transmissor,
		artefatos:     artefatos,
		janela:        janela,
		log:           log,
	}
}

// Cancelar registra o evento de cancelamento de uma nota autorizada.
//
// A sequência é defensiva: recusa local para nota fora do estado autorizado ou
// fora da janela regulamentar, depois consulta de situação fresca na SEFAZ, e
// só então o evento. O protocolo usado no evento é o devolvido pela consulta,
// nunca o registro local, que pode estar defasado.
func (g *GestorEventos) Cancelar(ctx context.Context, notaID, justificativa string) (*entity.EventoFiscal, error) {
	justificativa = nfe.SanitizeTexto(justificativa)
	if utf8.RuneCountInString(justificativa) < nfe.JustificativaMin {
		return nil, &domain.ValidationError{
			Campo:  "justificativa",
			Motivo: fmt.Sprintf("mínimo de %d caracteres", nfe.JustificativaMin),
		}
	}

	nota, err := g.notas.GetByID(ctx, notaID)
	if err != nil {
		return nil, fmt.Errorf("carregar nota: %w", err)
	}
	if nota.Estado != entity.EstadoAutorizada {
		return nil, &domain.ValidationError{
			Campo:  "estado",
			Motivo: fmt.Sprintf("cancelamento exige nota autorizada; estado atual %s", nota.Estado),
		}
	}
	if aut := nota.EventoAutorizacao(); aut != nil && !aut.Registro.IsZero() {
		if time.Since(aut.Registro) > g.janela {
			return nil, &domain.ValidationError{
				Campo:  "prazo",
				Motivo: fmt.Sprintf("janela de cancelamento de %s expirada (autorizada em %s)", g.janela, aut.Registro.Format(time.RFC3339)),
			}
		}
	}

	// consulta fresca: o estado local pode ter sido ultrapassado por um
	// cancelamento feito por outro canal
	sit, err := g.transmissor.ConsultarChave(ctx, nota.Chave)
	if err != nil {
		return nil, err
	}
	if sit.CStat != nfe.StatusAutorizado {
		// 101 (já cancelada), 217 (não consta) ou qualquer outra situação:
		// o evento nem é tentado e o literal da consulta vira o desfecho
		return nil, &domain.ProtocolRejection{CStat: sit.CStat, XMotivo: sit.XMotivo}
	}

	protocolo := sit.Protocolo
	if protocolo == "" {
		protocolo = nota.Protocolo
	}
	ret, err := g.transmissor.Cancelar(ctx, nota.Chave, protocolo, justificativa)
	if err != nil {
		return nil, err
	}
	switch ret.CStat {
	case nfe.StatusEventoRegistrado, nfe.StatusEventoRegistrado2:
		ev := g.novoEvento(nota, entity.TipoEventoCancelamento, 1, justificativa, ret)
		if err := g.notas.AddEvento(ctx, nota.ID, entity.EstadoCancelada, ev); err != nil {
			return nil, fmt.Errorf("persistir cancelamento: %w", err)
		}
		if err := g.artefatos.SalvarEvento(ctx, nota, ev, ret.Bruto); err != nil {
			g.log.Error().Err(err).Str("chave", nota.Chave).Msg("falha ao arquivar evento de cancelamento")
		}
		g.log.Info().Str("chave", nota.Chave).Str("cstat", ret.CStat).Msg("cancelamento homologado")
		return ev, nil
	case nfe.StatusDuplicidadeEvento:
		return nil, &domain.DuplicateEvent{Sequencia: 1, CStat: ret.CStat, XMotivo: ret.XMotivo}
	default:
		return nil, &domain.ProtocolRejection{CStat: ret.CStat, XMotivo: ret.XMotivo}
	}
}

// CartaCorrecao registra uma CC-e com a próxima sequência da nota.
// O texto condensa espaços e perde acentuação (exigência do validador); a
// sequência é derivada dos eventos já registrados, nunca do chamador.
func (g *GestorEventos) CartaCorrecao(ctx context.Context, notaID, texto string) (*entity.EventoFiscal, error) {
	texto = nfe.SanitizeTexto(texto)
	if n := utf8.RuneCountInString(texto); n < nfe.CCeTextoMin || n > nfe.CCeTextoMax {
		return nil, &domain.ValidationError{
			Campo:  "texto",
			Motivo: fmt.Sprintf("o texto da correção deve ter entre %d e %d caracteres", nfe.CCeTextoMin, nfe.CCeTextoMax),
		}
	}

	nota, err := g.notas.GetByID(ctx, notaID)
	if err != nil {
		return nil, fmt.Errorf("carregar nota: %w", err)
	}
	if nota.Estado != entity.EstadoAutorizada {
		return nil, &domain.ValidationError{
			Campo:  "estado",
			Motivo: fmt.Sprintf("carta de correção exige nota autorizada; estado atual %s", nota.Estado),
		}
	}
	sequencia := nota.ProximaSequenciaCCe()
	if sequencia > nfe.CCeSequenciaMax {
		return nil, &domain.ValidationError{
			Campo:  "sequencia",
			Motivo: fmt.Sprintf("limite de %d cartas de correção atingido", nfe.CCeSequenciaMax),
		}
	}

	ret, err := g.transmissor.CartaCorrecao(ctx, nota.Chave, texto, sequencia)
	if err != nil {
		return nil, err
	}
	switch ret.CStat {
	case nfe.StatusEventoRegistrado:
		ev := g.novoEvento(nota, entity.TipoEventoCartaCorrecao, sequencia, texto, ret)
		// a nota permanece autorizada (e cancelável); a correção vive na trilha de eventos
		if err := g.notas.AddEvento(ctx, nota.ID, entity.EstadoAutorizada, ev); err != nil {
			return nil, fmt.Errorf("persistir carta de correção: %w", err)
		}
		if err := g.artefatos.SalvarEvento(ctx, nota, ev, ret.Bruto); err != nil {
			g.log.Error().Err(err).Str("chave", nota.Chave).Msg("falha ao arquivar carta de correção")
		}
		g.log.Info().Str("chave", nota.Chave).Int("sequencia", sequencia).Msg("carta de correção registrada")
		return ev, nil
	case nfe.StatusDuplicidadeEvento:
		return nil, &domain.DuplicateEvent{Sequencia: sequencia, CStat: ret.CStat, XMotivo: ret.XMotivo}
	default:
		return nil, &domain.ProtocolRejection{CStat: ret.CStat, XMotivo: ret.XMotivo}
	}
}

// Inutilizar declara uma faixa de numeração nunca emitida. A faixa pertence a
// um (modelo, série) e é checada localmente contra números já autorizados
// antes de chegar à SEFAZ.
func (g *GestorEventos) Inutilizar(ctx context.Context, emp *entity.Empresa, modelo string, serie, de, ate int64, justificativa string) (*repository.Inutilizacao, error) {
	justificativa = nfe.SanitizeTexto(justificativa)
	if utf8.RuneCountInString(justificativa) < nfe.JustificativaMin {
		return nil, &domain.ValidationError{
			Campo:  "justificativa",
			Motivo: fmt.Sprintf("mínimo de %d caracteres", nfe.JustificativaMin),
		}
	}
	if !nfe.ValidModelos[modelo] {
		return nil, &domain.ValidationError{Campo: "modelo", Motivo: fmt.Sprintf("modelo desconhecido %q", modelo)}
	}
	if serie < 1 || serie > 999 {
		return nil, &domain.ValidationError{Campo: "serie", Motivo: "fora da faixa 1..999"}
	}
	if de < 1 || ate < de {
		return nil, &domain.ValidationError{
			Campo:  "faixa",
			Motivo: fmt.Sprintf("faixa inválida [%d, %d]", de, ate),
		}
	}

	ocupada, err := g.notas.ExisteAutorizadaNaFaixa(ctx, emp.ID, modelo, serie, de, ate)
	if err != nil {
		return nil, fmt.Errorf("verificar faixa: %w", err)
	}
	if ocupada {
		return nil, &domain.DuplicateEvent{
			CStat:   "",
			XMotivo: fmt.Sprintf("faixa [%d, %d] da série %d do modelo %s contém número já autorizado", de, ate, serie, modelo),
		}
	}

	ret, err := g.transmissor.Inutilizar(ctx, emp.CNPJ, modelo, serie, de, ate, justificativa)
	if err != nil {
		return nil, err
	}
	if ret.CStat != nfe.StatusInutilizada {
		return nil, &domain.ProtocolRejection{CStat: ret.CStat, XMotivo: ret.XMotivo}
	}

	inut := &repository.Inutilizacao{
		ID:            uuid.NewString(),
		EmpresaID:     emp.ID,
		Modelo:        modelo,
		Serie:         serie,
		NumeroInicial: de,
		NumeroFinal:   ate,
		Justificativa: justificativa,
		Protocolo:     ret.Protocolo,
		CStat:         ret.CStat,
		XMotivo:       ret.XMotivo,
	}
	if err := g.inutilizacoes.Save(ctx, inut); err != nil {
		return nil, fmt.Errorf("persistir inutilização: %w", err)
	}
	if err := g.artefatos.SalvarInutilizacao(ctx, inut, ret.Bruto); err != nil {
		g.log.Error().Err(err).Int64("de", de).Int64("ate", ate).Msg("falha ao arquivar inutilização")
	}
	g.log.Info().
		Str("empresa", emp.ID).
		Str("modelo", modelo).
		Int64("serie", serie).
		Int64("de", de).
		Int64("ate", ate).
		Msg("faixa inutilizada")
	return inut, nil
}

func (g *GestorEventos) novoEvento(nota *entity.NotaFiscal, tipo string, sequencia int, texto string, ret *sefaz.Retorno) *entity.EventoFiscal {
	registro := ret.Recebimento
	if registro.IsZero() {
		registro = time.Now()
	}
	return &entity.EventoFiscal{
		ID:        uuid.NewString(),
		NotaID:    nota.ID,
		Tipo:      tipo,
		Sequencia: sequencia,
		Protocolo: ret.Protocolo,
		CStat:     ret.CStat,
		XMotivo:   ret.XMotivo,
		Texto:     texto,
		Registro:  registro,
	}
}
