// Orquestrador do ciclo de emissão: montagem, assinatura, envio do lote e
// polling assíncrono da autorização. A nota vive em memória do início ao fim
// da tentativa; o banco só vê estados terminais ou estáveis.

package fiscal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexopdv/nfe-engine/internal/domain"
	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
	"github.com/nexopdv/nfe-engine/internal/infrastructure/sefaz"
	"github.com/nexopdv/nfe-engine/pkg/logger"
	"github.com/nexopdv/nfe-engine/pkg/nfe"
)

// Emissor coordena a emissão de ponta a ponta.
type Emissor struct {
	notas       repository.NotaRepository
	empresas    repository.EmpresaRepository
	numeracao   repository.NumeracaoRepository
	montador    *Montador
	builder     *sefaz.XMLBuilder
	signer      nfe.Signer
	credenciais Credenciais
	transmissor sefaz.Transmissor
	artefatos   ArmazemArtefatos
	agenda      sefaz.AgendaPolling
	log         *logger.Logger
}

// NewEmissor injeta todos os colaboradores do fluxo de emissão.
func NewEmissor(
	notas repository.NotaRepository,
	empresas repository.EmpresaRepository,
	numeracao repository.NumeracaoRepository,
	montador *Montador,
	builder *sefaz.XMLBuilder,
	signer nfe.Signer,
	credenciais Credenciais,
	transmissor sefaz.Transmissor,
	artefatos ArmazemArtefatos,
	agenda sefaz.AgendaPolling,
	log *logger.Logger,
) *Emissor {
	return &Emissor{
		notas:       notas,
		empresas:    empresas,
		numeracao:   numeracao,
		montador:    montador,
		builder:     builder,
		signer:      signer,
		credenciais: credenciais,
		transmissor: transmissor,
		artefatos:   artefatos,
		agenda:      agenda,
		log:         log,
	}
}

// Emitir executa uma tentativa completa de emissão. Em caso de
// TransmissionError nada é persistido e o chamador pode reemitir; a nova
// tentativa aloca novo número e sorteia novo cNF.
func (e *Emissor) Emitir(ctx context.Context, empresaID string, in EntradaNota) (*entity.NotaFiscal, error) {
	emp, err := e.empresas.GetByID(ctx, empresaID)
	if err != nil {
		return nil, fmt.Errorf("carregar empresa: %w", err)
	}

	// credencial antes de qualquer trabalho: vencida, a tentativa morre aqui
	cert, err := e.credenciais.Certificado(ctx, emp)
	if err != nil {
		return nil, err
	}

	numero, err := e.numeracao.Next(ctx, empresaID, in.Modelo, in.Serie)
	if err != nil {
		return nil, fmt.Errorf("alocar numeração: %w", err)
	}
	ultimo, err := e.notas.UltimoNumeroAutorizado(ctx, empresaID, in.Serie)
	if err != nil {
		return nil, fmt.Errorf("consultar último autorizado: %w", err)
	}
	if numero <= ultimo {
		return nil, &domain.ValidationError{
			Campo:  "numero",
			Motivo: fmt.Sprintf("número %d não é maior que o último autorizado %d da série %d", numero, ultimo, in.Serie),
		}
	}

	nota, err := e.montador.Montar(emp, numero, in)
	if err != nil {
		return nil, err
	}
	e.log.Info().
		Str("chave", nota.Chave).
		Str("empresa", empresaID).
		Int64("numero", numero).
		Msg("nota montada")

	xmlNota, err := e.builder.Build(nota)
	if err != nil {
		return nil, fmt.Errorf("gerar XML: %w", err)
	}
	assinado, err := e.signer.Sign(xmlNota, cert)
	if err != nil {
		return nil, err
	}
	nota.XMLAssinado = assinado
	nota.Estado = entity.EstadoAssinada

	return e.transmitir(ctx, nota)
}

// transmitir envia o lote e conduz o polling até desfecho, timeout ou
// cancelamento do contexto.
func (e *Emissor) transmitir(ctx context.Context, nota *entity.NotaFiscal) (*entity.NotaFiscal, error) {
	ret, err := e.transmissor.EnviarLote(ctx, nota.XMLAssinado, nota.ID)
	if err != nil {
		return nil, err
	}
	if ret.CStat != nfe.StatusLoteRecebido || ret.Recibo == "" {
		// recusa síncrona do lote: desfecho terminal, persistido literal
		return nota, e.rejeitar(ctx, nota, ret)
	}
	nota.Recibo = ret.Recibo
	nota.Estado = entity.EstadoEnviada
	e.log.Info().Str("chave", nota.Chave).Str("recibo", nota.Recibo).Msg("lote recebido pela sefaz")

	nota.Estado = entity.EstadoAguardando
	for consulta := 1; consulta <= e.agenda.MaxAttempts; consulta++ {
		if err := e.agenda.Wait(ctx, consulta); err != nil {
			// cancelamento do chamador: persiste o último estado conhecido
			e.persistir(ctx, nota)
			return nota, err
		}
		ret, err = e.transmissor.ConsultarRecibo(ctx, nota.Recibo)
		if err != nil {
			e.persistir(ctx, nota)
			return nota, err
		}
		if nfe.IsStatusPendente(ret.CStat) {
			e.log.Debug().
				Str("recibo", nota.Recibo).
				Str("cstat", ret.CStat).
				Int("consulta", consulta).
				Msg("lote ainda em processamento")
			continue
		}
		if ret.CStat == nfe.StatusAutorizado {
			return nota, e.autorizar(ctx, nota, ret)
		}
		return nota, e.rejeitar(ctx, nota, ret)
	}

	// polling esgotado: desfecho ambíguo, estado estável persistido com o
	// recibo para consulta posterior
	e.persistir(ctx, nota)
	return nota, &domain.AuthorizationTimeout{Recibo: nota.Recibo, Consultas: e.agenda.MaxAttempts}
}

func (e *Emissor) autorizar(ctx context.Context, nota *entity.NotaFiscal, ret *sefaz.Retorno) error {
	nota.Estado = entity.EstadoAutorizada
	nota.Protocolo = ret.Protocolo
	registro := ret.Recebimento
	if registro.IsZero() {
		registro = time.Now()
	}
	nota.Eventos = append(nota.Eventos, entity.EventoFiscal{
		ID:        nota.ID + "-aut",
		NotaID:    nota.ID,
		Tipo:      entity.TipoEventoAutorizacao,
		Protocolo: ret.Protocolo,
		CStat:     ret.CStat,
		XMotivo:   ret.XMotivo,
		Registro:  registro,
	})
	if err := e.notas.Save(ctx, nota); err != nil {
		return fmt.Errorf("persistir nota autorizada: %w", err)
	}
	if err := e.artefatos.SalvarAutorizada(ctx, nota); err != nil {
		e.log.Error().Err(err).Str("chave", nota.Chave).Msg("falha ao arquivar XML autorizado")
	}
	if err := e.artefatos.SalvarDesfecho(ctx, nota); err != nil {
		e.log.Error().Err(err).Str("chave", nota.Chave).Msg("falha ao arquivar desfecho")
	}
	e.log.Info().
		Str("chave", nota.Chave).
		Str("protocolo", nota.Protocolo).
		Msg("nota autorizada")
	return nil
}

func (e *Emissor) rejeitar(ctx context.Context, nota *entity.NotaFiscal, ret *sefaz.Retorno) error {
	nota.Estado = entity.EstadoRejeitada
	nota.UltimoErro = fmt.Sprintf("[%s] %s", ret.CStat, ret.XMotivo)
	if err := e.notas.Save(ctx, nota); err != nil {
		return fmt.Errorf("persistir nota rejeitada: %w", err)
	}
	if err := e.artefatos.SalvarDesfecho(ctx, nota); err != nil {
		e.log.Error().Err(err).Str("chave", nota.Chave).Msg("falha ao arquivar desfecho")
	}
	e.log.Warn().
		Str("chave", nota.Chave).
		Str("cstat", ret.CStat).
		Str("xmotivo", ret.XMotivo).
		Msg("nota rejeitada pela sefaz")
	return &domain.ProtocolRejection{CStat: ret.CStat, XMotivo: ret.XMotivo}
}

// persistir grava o último estado conhecido sem alterar o fluxo de erro.
func (e *Emissor) persistir(ctx context.Context, nota *entity.NotaFiscal) {
	// contexto possivelmente cancelado; a gravação usa um contexto próprio curto
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.notas.Save(pctx, nota); err != nil && !errors.Is(err, context.Canceled) {
		e.log.Error().Err(err).Str("chave", nota.Chave).Msg("falha ao persistir estado da nota")
	}
}
