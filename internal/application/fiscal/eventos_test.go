package fiscal_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexopdv/nfe-engine/internal/application/fiscal"
	"github.com/nexopdv/nfe-engine/internal/domain"
	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
	"github.com/nexopdv/nfe-engine/internal/infrastructure/sefaz"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

const chaveAutorizada = "35240811222333000181550010000001231876543210"

const justificativaValida = "cancelamento solicitado pelo destinatario da mercadoria"

type fakeInutilizacoes struct {
	salvas []*repository.Inutilizacao
}

func (f *fakeInutilizacoes) Save(_ context.Context, inut *repository.Inutilizacao) error {
	f.salvas = append(f.salvas, inut)
	return nil
}

func notaAutorizada(autorizadaEm time.Time) *entity.NotaFiscal {
	return &entity.NotaFiscal{
		ID:        "nota-1",
		EmpresaID: "emp-1",
		Chave:     chaveAutorizada,
		Modelo:    "55",
		Serie:     1,
		Numero:    123,
		Estado:    entity.EstadoAutorizada,
		Protocolo: "135240000012345",
		Eventos: []entity.EventoFiscal{{
			ID:        "nota-1-aut",
			NotaID:    "nota-1",
			Tipo:      entity.TipoEventoAutorizacao,
			Protocolo: "135240000012345",
			CStat:     "100",
			Registro:  autorizadaEm,
		}},
	}
}

type ambienteEventos struct {
	gestor        *fiscal.GestorEventos
	notas         *fakeNotas
	inutilizacoes *fakeInutilizacoes
	transmissor   *fakeTransmissor
	artefatos     *fakeArtefatos
}

func novoAmbienteEventos(t *testing.T, nota *entity.NotaFiscal, trans *fakeTransmissor) *ambienteEventos {
	t.Helper()
	notas := &fakeNotas{porID: map[string]*entity.NotaFiscal{}}
	if nota != nil {
		notas.porID[nota.ID] = nota
	}
	inuts := &fakeInutilizacoes{}
	artefatos := &fakeArtefatos{}
	gestor := fiscal.NewGestorEventos(notas, inuts, trans, artefatos, fiscal.JanelaCancelamentoPadrao, logTeste())
	return &ambienteEventos{
		gestor:        gestor,
		notas:         notas,
		inutilizacoes: inuts,
		transmissor:   trans,
		artefatos:     artefatos,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Cancelamento
// ──────────────────────────────────────────────────────────────────────────────

func TestCancelar_Homologado(t *testing.T) {
	trans := &fakeTransmissor{
		situacaoRet: &sefaz.Retorno{CStat: "100", XMotivo: "Autorizado o uso da NF-e", Protocolo: "135240000054321"},
		cancelRet: &sefaz.Retorno{CStat: "135", XMotivo: "Evento registrado e vinculado a NF-e",
			Protocolo: "135240000067890", Bruto: []byte("<retEnvEvento/>")},
	}
	amb := novoAmbienteEventos(t, notaAutorizada(time.Now().Add(-time.Hour)), trans)

	ev, err := amb.gestor.Cancelar(context.Background(), "nota-1", justificativaValida)
	require.NoError(t, err)

	assert.Equal(t, entity.TipoEventoCancelamento, ev.Tipo)
	assert.Equal(t, "135240000067890", ev.Protocolo)
	assert.Equal(t, justificativaValida, ev.Texto)

	// o protocolo enviado no evento é o da consulta fresca, não o registro local
	assert.Equal(t, 1, trans.situacoes)
	assert.Equal(t, "135240000054321", trans.cancelProt)

	assert.Equal(t, entity.EstadoCancelada, amb.notas.estadoDoEvento)
	assert.Equal(t, 1, amb.artefatos.eventos)
	assert.Equal(t, []byte("<retEnvEvento/>"), amb.artefatos.brutoEvento)
}

func TestCancelar_RecusasLocaisNaoTocamARede(t *testing.T) {
	t.Run("nota não autorizada", func(t *testing.T) {
		nota := notaAutorizada(time.Now())
		nota.Estado = entity.EstadoRejeitada
		trans := &fakeTransmissor{}
		amb := novoAmbienteEventos(t, nota, trans)

		_, err := amb.gestor.Cancelar(context.Background(), "nota-1", justificativaValida)

		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "estado", ve.Campo)
		assert.Equal(t, 0, trans.situacoes, "recusa local não consulta a SEFAZ")
		assert.Equal(t, 0, trans.cancelas)
	})

	t.Run("janela regulamentar expirada", func(t *testing.T) {
		trans := &fakeTransmissor{}
		amb := novoAmbienteEventos(t, notaAutorizada(time.Now().Add(-48*time.Hour)), trans)

		_, err := amb.gestor.Cancelar(context.Background(), "nota-1", justificativaValida)

		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "prazo", ve.Campo)
		assert.Equal(t, 0, trans.situacoes)
		assert.Equal(t, 0, trans.cancelas)
	})

	t.Run("justificativa curta", func(t *testing.T) {
		trans := &fakeTransmissor{}
		amb := novoAmbienteEventos(t, notaAutorizada(time.Now()), trans)

		_, err := amb.gestor.Cancelar(context.Background(), "nota-1", "muito curta")

		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "justificativa", ve.Campo)
		assert.Equal(t, 0, trans.cancelas)
	})

	t.Run("mínimo conta caracteres, não bytes", func(t *testing.T) {
		trans := &fakeTransmissor{}
		amb := novoAmbienteEventos(t, notaAutorizada(time.Now()), trans)

		// 14 caracteres, 16 bytes: o "º" sobrevive à sanitização como rune multibyte
		curta := "aaaaaaaaaaaaºº"
		require.Equal(t, 16, len(curta))

		_, err := amb.gestor.Cancelar(context.Background(), "nota-1", curta)

		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "justificativa", ve.Campo)
		assert.Equal(t, 0, trans.cancelas)
	})
}

func TestCancelar_ConsultaFrescaBarraOEvento(t *testing.T) {
	// a nota já foi cancelada por outro canal; a consulta devolve 101 e o
	// evento nem chega a ser tentado
	trans := &fakeTransmissor{
		situacaoRet: &sefaz.Retorno{CStat: "101", XMotivo: "Cancelamento de NF-e homologado"},
	}
	amb := novoAmbienteEventos(t, notaAutorizada(time.Now()), trans)

	_, err := amb.gestor.Cancelar(context.Background(), "nota-1", justificativaValida)

	var rej *domain.ProtocolRejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "101", rej.CStat)
	assert.Equal(t, "Cancelamento de NF-e homologado", rej.XMotivo)
	assert.Equal(t, 0, trans.cancelas, "situação divergente impede o envio do evento")
}

func TestCancelar_Duplicidade(t *testing.T) {
	trans := &fakeTransmissor{
		situacaoRet: &sefaz.Retorno{CStat: "100", Protocolo: "135240000054321"},
		cancelRet:   &sefaz.Retorno{CStat: "573", XMotivo: "Rejeicao: Duplicidade de Evento"},
	}
	amb := novoAmbienteEventos(t, notaAutorizada(time.Now()), trans)

	_, err := amb.gestor.Cancelar(context.Background(), "nota-1", justificativaValida)

	var dup *domain.DuplicateEvent
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, 1, dup.Sequencia)
	assert.Equal(t, "573", dup.CStat)
	assert.Empty(t, amb.notas.eventosGravados)
}

// ──────────────────────────────────────────────────────────────────────────────
// Carta de correção
// ──────────────────────────────────────────────────────────────────────────────

func TestCartaCorrecao_SequenciaDerivadaDaTrilha(t *testing.T) {
	nota := notaAutorizada(time.Now())
	nota.Eventos = append(nota.Eventos,
		entity.EventoFiscal{Tipo: entity.TipoEventoCartaCorrecao, Sequencia: 1},
		entity.EventoFiscal{Tipo: entity.TipoEventoCartaCorrecao, Sequencia: 2},
	)
	trans := &fakeTransmissor{
		cceRet: &sefaz.Retorno{CStat: "135", XMotivo: "Evento registrado e vinculado a NF-e",
			Protocolo: "135240000078901", Bruto: []byte("<retEnvEvento/>")},
	}
	amb := novoAmbienteEventos(t, nota, trans)

	ev, err := amb.gestor.CartaCorrecao(context.Background(), "nota-1", "corrigir a natureza da operacao informada")
	require.NoError(t, err)

	assert.Equal(t, 3, ev.Sequencia, "a sequência vem da trilha de eventos, nunca do chamador")
	assert.Equal(t, 3, trans.cceSequencia)

	// a correção não muda o estado: a nota permanece autorizada e cancelável
	assert.Equal(t, entity.EstadoAutorizada, amb.notas.estadoDoEvento)
	assert.Equal(t, 1, amb.artefatos.eventos)
}

func TestCartaCorrecao_LimiteDeSequencias(t *testing.T) {
	nota := notaAutorizada(time.Now())
	nota.Eventos = append(nota.Eventos, entity.EventoFiscal{Tipo: entity.TipoEventoCartaCorrecao, Sequencia: 20})
	trans := &fakeTransmissor{}
	amb := novoAmbienteEventos(t, nota, trans)

	_, err := amb.gestor.CartaCorrecao(context.Background(), "nota-1", "corrigir a natureza da operacao informada")

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "sequencia", ve.Campo)
	assert.Equal(t, 0, trans.cces)
}

func TestCartaCorrecao_TextoForaDosLimites(t *testing.T) {
	trans := &fakeTransmissor{}
	amb := novoAmbienteEventos(t, notaAutorizada(time.Now()), trans)

	_, err := amb.gestor.CartaCorrecao(context.Background(), "nota-1", "curto")
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "texto", ve.Campo)

	_, err = amb.gestor.CartaCorrecao(context.Background(), "nota-1", strings.Repeat("x", 1001))
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "texto", ve.Campo)

	assert.Equal(t, 0, trans.cces)
}

// ──────────────────────────────────────────────────────────────────────────────
// Inutilização de faixa
// ──────────────────────────────────────────────────────────────────────────────

func TestInutilizar_Homologada(t *testing.T) {
	trans := &fakeTransmissor{
		inutRet: &sefaz.Retorno{CStat: "102", XMotivo: "Inutilizacao de numero homologado",
			Protocolo: "135240000089012", Bruto: []byte("<retInutNFe/>")},
	}
	amb := novoAmbienteEventos(t, nil, trans)

	inut, err := amb.gestor.Inutilizar(context.Background(), empresaTeste(), "55", 1, 124, 130,
		"quebra de sequencia por falha no sistema emissor")
	require.NoError(t, err)

	assert.Equal(t, "55", inut.Modelo)
	assert.Equal(t, int64(124), inut.NumeroInicial)
	assert.Equal(t, int64(130), inut.NumeroFinal)
	assert.Equal(t, "135240000089012", inut.Protocolo)
	assert.Equal(t, "102", inut.CStat)

	require.Len(t, amb.inutilizacoes.salvas, 1)
	assert.Equal(t, 1, amb.artefatos.inutilizacoes)
}

// A inutilização é escopada por modelo: uma NFC-e autorizada na faixa não
// bloqueia a inutilização de números de NF-e da mesma série.
func TestInutilizar_EscopadaPorModelo(t *testing.T) {
	trans := &fakeTransmissor{
		inutRet: &sefaz.Retorno{CStat: "102", XMotivo: "Inutilizacao de numero homologado",
			Protocolo: "135240000089013", Bruto: []byte("<retInutNFe/>")},
	}
	amb := novoAmbienteEventos(t, nil, trans)

	_, err := amb.gestor.Inutilizar(context.Background(), empresaTeste(), "65", 1, 124, 130,
		"quebra de sequencia por falha no sistema emissor")
	require.NoError(t, err)

	assert.Equal(t, "65", amb.notas.faixaModelo, "a consulta de faixa filtra pelo modelo")
	assert.Equal(t, "65", trans.inutModelo, "o pedido à SEFAZ carrega o modelo")
	require.Len(t, amb.inutilizacoes.salvas, 1)
	assert.Equal(t, "65", amb.inutilizacoes.salvas[0].Modelo)
}

func TestInutilizar_FaixaComNumeroAutorizado(t *testing.T) {
	trans := &fakeTransmissor{}
	amb := novoAmbienteEventos(t, nil, trans)
	amb.notas.faixaOcupada = true

	_, err := amb.gestor.Inutilizar(context.Background(), empresaTeste(), "55", 1, 100, 200,
		"quebra de sequencia por falha no sistema emissor")

	var dup *domain.DuplicateEvent
	require.True(t, errors.As(err, &dup))
	assert.Contains(t, dup.XMotivo, "já autorizado")
	assert.Equal(t, 0, trans.inuts, "faixa ocupada é barrada antes da rede")
	assert.Empty(t, amb.inutilizacoes.salvas)
}

func TestInutilizar_RecusadaPelaSEFAZ(t *testing.T) {
	trans := &fakeTransmissor{
		inutRet: &sefaz.Retorno{CStat: "241", XMotivo: "Rejeicao: Um numero da faixa ja foi utilizado"},
	}
	amb := novoAmbienteEventos(t, nil, trans)

	_, err := amb.gestor.Inutilizar(context.Background(), empresaTeste(), "55", 1, 124, 130,
		"quebra de sequencia por falha no sistema emissor")

	var rej *domain.ProtocolRejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "241", rej.CStat)
	assert.Empty(t, amb.inutilizacoes.salvas)
}

func TestInutilizar_ValidacoesLocais(t *testing.T) {
	casos := []struct {
		nome           string
		modelo         string
		serie, de, ate int64
		justificativa  string
		campo          string
	}{
		{"justificativa curta", "55", 1, 1, 10, "curta", "justificativa"},
		{"modelo desconhecido", "99", 1, 1, 10, "quebra de sequencia por falha no sistema", "modelo"},
		{"série inválida", "55", 0, 1, 10, "quebra de sequencia por falha no sistema", "serie"},
		{"faixa invertida", "55", 1, 10, 5, "quebra de sequencia por falha no sistema", "faixa"},
		{"início zero", "55", 1, 0, 5, "quebra de sequencia por falha no sistema", "faixa"},
	}
	for _, tc := range casos {
		t.Run(tc.nome, func(t *testing.T) {
			trans := &fakeTransmissor{}
			amb := novoAmbienteEventos(t, nil, trans)

			_, err := amb.gestor.Inutilizar(context.Background(), empresaTeste(), tc.modelo, tc.serie, tc.de, tc.ate, tc.justificativa)

			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.campo, ve.Campo)
			assert.Equal(t, 0, trans.inuts)
		})
	}
}
