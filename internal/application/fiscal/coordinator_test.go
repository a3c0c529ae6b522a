package fiscal_test

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexopdv/nfe-engine/internal/application/fiscal"
	"github.com/nexopdv/nfe-engine/internal/domain"
	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
	"github.com/nexopdv/nfe-engine/internal/infrastructure/sefaz"
	"github.com/nexopdv/nfe-engine/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dublês compartilhados pelo pacote de testes
// ──────────────────────────────────────────────────────────────────────────────

type fakeNotas struct {
	porID            map[string]*entity.NotaFiscal
	salvas           []*entity.NotaFiscal
	estadosGravados  []string // estado no momento de cada Save
	eventosGravados  []*entity.EventoFiscal
	estadoDoEvento   string
	ultimoAutorizado int64
	faixaOcupada     bool
	faixaModelo      string
}

var _ repository.NotaRepository = (*fakeNotas)(nil)

func (f *fakeNotas) Save(_ context.Context, nota *entity.NotaFiscal) error {
	f.salvas = append(f.salvas, nota)
	f.estadosGravados = append(f.estadosGravados, nota.Estado)
	return nil
}

func (f *fakeNotas) GetByID(_ context.Context, id string) (*entity.NotaFiscal, error) {
	nota, ok := f.porID[id]
	if !ok {
		return nil, fmt.Errorf("nota %s não encontrada", id)
	}
	return nota, nil
}

func (f *fakeNotas) GetByChave(_ context.Context, chave string) (*entity.NotaFiscal, error) {
	for _, nota := range f.porID {
		if nota.Chave == chave {
			return nota, nil
		}
	}
	return nil, fmt.Errorf("chave %s não encontrada", chave)
}

func (f *fakeNotas) AddEvento(_ context.Context, notaID string, estado string, evento *entity.EventoFiscal) error {
	f.eventosGravados = append(f.eventosGravados, evento)
	f.estadoDoEvento = estado
	if nota, ok := f.porID[notaID]; ok {
		nota.Estado = estado
		nota.Eventos = append(nota.Eventos, *evento)
	}
	return nil
}

func (f *fakeNotas) UltimoNumeroAutorizado(_ context.Context, _ string, _ int64) (int64, error) {
	return f.ultimoAutorizado, nil
}

func (f *fakeNotas) ExisteAutorizadaNaFaixa(_ context.Context, _, modelo string, _, _, _ int64) (bool, error) {
	f.faixaModelo = modelo
	return f.faixaOcupada, nil
}

type fakeEmpresas struct{ emp *entity.Empresa }

func (f *fakeEmpresas) GetByID(_ context.Context, _ string) (*entity.Empresa, error) {
	return f.emp, nil
}

type fakeNumeracao struct {
	proximo  int64
	chamadas int
}

func (f *fakeNumeracao) Next(_ context.Context, _, _ string, _ int64) (int64, error) {
	f.chamadas++
	n := f.proximo
	f.proximo++
	return n, nil
}

type fakeCredenciais struct {
	err      error
	chamadas int
}

func (f *fakeCredenciais) Certificado(_ context.Context, _ *entity.Empresa) (tls.Certificate, error) {
	f.chamadas++
	return tls.Certificate{}, f.err
}

type fakeSigner struct{}

func (fakeSigner) Sign(xmlBytes []byte, _ tls.Certificate) ([]byte, error) {
	return xmlBytes, nil
}

type fakeArtefatos struct {
	autorizadas   int
	desfechos     int
	eventos       int
	inutilizacoes int
	brutoEvento   []byte
}

var _ fiscal.ArmazemArtefatos = (*fakeArtefatos)(nil)

func (f *fakeArtefatos) SalvarAutorizada(_ context.Context, _ *entity.NotaFiscal) error {
	f.autorizadas++
	return nil
}

func (f *fakeArtefatos) SalvarDesfecho(_ context.Context, _ *entity.NotaFiscal) error {
	f.desfechos++
	return nil
}

func (f *fakeArtefatos) SalvarEvento(_ context.Context, _ *entity.NotaFiscal, _ *entity.EventoFiscal, bruto []byte) error {
	f.eventos++
	f.brutoEvento = bruto
	return nil
}

func (f *fakeArtefatos) SalvarInutilizacao(_ context.Context, _ *repository.Inutilizacao, _ []byte) error {
	f.inutilizacoes++
	return nil
}

// fakeTransmissor devolve retornos roteirizados e conta as chamadas por operação.
type fakeTransmissor struct {
	envioRet     *sefaz.Retorno
	envioErr     error
	envios       int
	loteEnviado  []byte
	consultaRets []*sefaz.Retorno // respostas sequenciais de ConsultarRecibo
	consultas    int
	aoConsultar  func() // hook executado a cada ConsultarRecibo
	situacaoRet  *sefaz.Retorno
	situacoes    int
	cancelRet    *sefaz.Retorno
	cancelas     int
	cancelProt   string
	cceRet       *sefaz.Retorno
	cces         int
	cceSequencia int
	inutRet      *sefaz.Retorno
	inuts        int
	inutModelo   string
}

var _ sefaz.Transmissor = (*fakeTransmissor)(nil)

func (f *fakeTransmissor) EnviarLote(_ context.Context, xmlAssinado []byte, _ string) (*sefaz.Retorno, error) {
	f.envios++
	f.loteEnviado = xmlAssinado
	return f.envioRet, f.envioErr
}

func (f *fakeTransmissor) ConsultarRecibo(_ context.Context, _ string) (*sefaz.Retorno, error) {
	if f.aoConsultar != nil {
		f.aoConsultar()
	}
	i := f.consultas
	f.consultas++
	if i >= len(f.consultaRets) {
		i = len(f.consultaRets) - 1
	}
	return f.consultaRets[i], nil
}

func (f *fakeTransmissor) ConsultarChave(_ context.Context, _ string) (*sefaz.Retorno, error) {
	f.situacoes++
	return f.situacaoRet, nil
}

func (f *fakeTransmissor) Cancelar(_ context.Context, _, protocolo, _ string) (*sefaz.Retorno, error) {
	f.cancelas++
	f.cancelProt = protocolo
	return f.cancelRet, nil
}

func (f *fakeTransmissor) CartaCorrecao(_ context.Context, _, _ string, sequencia int) (*sefaz.Retorno, error) {
	f.cces++
	f.cceSequencia = sequencia
	return f.cceRet, nil
}

func (f *fakeTransmissor) Inutilizar(_ context.Context, _, modelo string, _, _, _ int64, _ string) (*sefaz.Retorno, error) {
	f.inuts++
	f.inutModelo = modelo
	return f.inutRet, nil
}

func (f *fakeTransmissor) StatusServico(_ context.Context) (*sefaz.Retorno, error) {
	return &sefaz.Retorno{CStat: "107", XMotivo: "Servico em Operacao"}, nil
}

func logTeste() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

// ambienteEmissao amarra os dublês num Emissor pronto para uso.
type ambienteEmissao struct {
	emissor     *fiscal.Emissor
	notas       *fakeNotas
	numeracao   *fakeNumeracao
	credenciais *fakeCredenciais
	transmissor *fakeTransmissor
	artefatos   *fakeArtefatos
}

func novoAmbiente(t *testing.T, trans *fakeTransmissor) *ambienteEmissao {
	t.Helper()
	notas := &fakeNotas{porID: map[string]*entity.NotaFiscal{}}
	numeracao := &fakeNumeracao{proximo: 124}
	credenciais := &fakeCredenciais{}
	artefatos := &fakeArtefatos{}
	agenda := sefaz.AgendaPolling{InitialDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 3}
	emissor := fiscal.NewEmissor(
		notas,
		&fakeEmpresas{emp: empresaTeste()},
		numeracao,
		fiscal.NewMontador(),
		sefaz.NewXMLBuilder(""),
		fakeSigner{},
		credenciais,
		trans,
		artefatos,
		agenda,
		logTeste(),
	)
	return &ambienteEmissao{
		emissor:     emissor,
		notas:       notas,
		numeracao:   numeracao,
		credenciais: credenciais,
		transmissor: trans,
		artefatos:   artefatos,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Emissão de ponta a ponta
// ──────────────────────────────────────────────────────────────────────────────

func TestEmitir_AutorizadaAposPolling(t *testing.T) {
	trans := &fakeTransmissor{
		envioRet: &sefaz.Retorno{CStat: "103", XMotivo: "Lote recebido com sucesso", Recibo: "351000012345678"},
		consultaRets: []*sefaz.Retorno{
			{CStat: "105", XMotivo: "Lote em processamento"},
			{CStat: "100", XMotivo: "Autorizado o uso da NF-e", Protocolo: "135240000012345",
				Recebimento: time.Date(2024, 8, 15, 10, 5, 0, 0, time.UTC)},
		},
	}
	amb := novoAmbiente(t, trans)

	nota, err := amb.emissor.Emitir(context.Background(), "emp-1", entradaValida())
	require.NoError(t, err)

	assert.Equal(t, entity.EstadoAutorizada, nota.Estado)
	assert.Equal(t, "351000012345678", nota.Recibo)
	assert.Equal(t, "135240000012345", nota.Protocolo)
	assert.Equal(t, 2, trans.consultas, "a primeira consulta pendente deve ser seguida de outra")

	// trilha: evento de autorização com protocolo e data da SEFAZ
	aut := nota.EventoAutorizacao()
	require.NotNil(t, aut)
	assert.Equal(t, "135240000012345", aut.Protocolo)
	assert.Equal(t, 2024, aut.Registro.Year())

	// persistência e arquivamento
	require.Len(t, amb.notas.salvas, 1)
	assert.Equal(t, entity.EstadoAutorizada, amb.notas.estadosGravados[0])
	assert.Equal(t, 1, amb.artefatos.autorizadas)
	assert.Equal(t, 1, amb.artefatos.desfechos)

	// o lote transmitido é o XML assinado, byte a byte
	assert.Contains(t, string(trans.loteEnviado), "<infNFe")
}

func TestEmitir_RecusaSincronaDoLote(t *testing.T) {
	trans := &fakeTransmissor{
		envioRet: &sefaz.Retorno{CStat: "225", XMotivo: "Rejeicao: Falha no Schema XML do lote de NFe"},
	}
	amb := novoAmbiente(t, trans)

	nota, err := amb.emissor.Emitir(context.Background(), "emp-1", entradaValida())

	var rej *domain.ProtocolRejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "225", rej.CStat)

	assert.Equal(t, entity.EstadoRejeitada, nota.Estado)
	assert.Equal(t, "[225] Rejeicao: Falha no Schema XML do lote de NFe", nota.UltimoErro)
	assert.Equal(t, 0, trans.consultas, "lote recusado não entra em polling")
	require.Len(t, amb.notas.salvas, 1)
	assert.Equal(t, 0, amb.artefatos.autorizadas)
	assert.Equal(t, 1, amb.artefatos.desfechos)
}

func TestEmitir_RejeitadaNoPolling(t *testing.T) {
	trans := &fakeTransmissor{
		envioRet: &sefaz.Retorno{CStat: "103", Recibo: "351000012345678"},
		consultaRets: []*sefaz.Retorno{
			{CStat: "539", XMotivo: "Rejeicao: Duplicidade de NF-e com diferenca na Chave de Acesso"},
		},
	}
	amb := novoAmbiente(t, trans)

	nota, err := amb.emissor.Emitir(context.Background(), "emp-1", entradaValida())

	var rej *domain.ProtocolRejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "539", rej.CStat)
	assert.Equal(t, entity.EstadoRejeitada, nota.Estado)
	assert.Contains(t, nota.UltimoErro, "[539]")
}

func TestEmitir_PollingEsgotado(t *testing.T) {
	trans := &fakeTransmissor{
		envioRet: &sefaz.Retorno{CStat: "103", Recibo: "351000099999999"},
		consultaRets: []*sefaz.Retorno{
			{CStat: "105", XMotivo: "Lote em processamento"},
		},
	}
	amb := novoAmbiente(t, trans)

	nota, err := amb.emissor.Emitir(context.Background(), "emp-1", entradaValida())

	var at *domain.AuthorizationTimeout
	require.True(t, errors.As(err, &at))
	assert.Equal(t, "351000099999999", at.Recibo)
	assert.Equal(t, 3, at.Consultas)
	assert.Equal(t, 3, trans.consultas)

	// o estado estável fica gravado com o recibo para consulta posterior
	assert.Equal(t, entity.EstadoAguardando, nota.Estado)
	assert.Equal(t, "351000099999999", nota.Recibo)
	require.Len(t, amb.notas.salvas, 1)
	assert.Equal(t, entity.EstadoAguardando, amb.notas.estadosGravados[0])
}

func TestEmitir_CancelamentoDoContextoPersisteEstado(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	trans := &fakeTransmissor{
		envioRet: &sefaz.Retorno{CStat: "103", Recibo: "351000011111111"},
		consultaRets: []*sefaz.Retorno{
			{CStat: "105", XMotivo: "Lote em processamento"},
		},
	}
	trans.aoConsultar = cancel // o chamador desiste durante o polling
	amb := novoAmbiente(t, trans)

	nota, err := amb.emissor.Emitir(ctx, "emp-1", entradaValida())

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, entity.EstadoAguardando, nota.Estado)
	assert.Equal(t, "351000011111111", nota.Recibo)
	require.Len(t, amb.notas.salvas, 1, "o último estado conhecido deve ser gravado mesmo com contexto cancelado")
}

func TestEmitir_NumeroNaoMonotonicoRecusadoLocalmente(t *testing.T) {
	trans := &fakeTransmissor{}
	amb := novoAmbiente(t, trans)
	amb.notas.ultimoAutorizado = 500
	amb.numeracao.proximo = 200 // alocador atrasado em relação ao autorizado

	_, err := amb.emissor.Emitir(context.Background(), "emp-1", entradaValida())

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "numero", ve.Campo)
	assert.Equal(t, 0, trans.envios, "nada deve ir à rede")
	assert.Empty(t, amb.notas.salvas)
}

func TestEmitir_CredencialInvalidaMorreAntesDaRede(t *testing.T) {
	trans := &fakeTransmissor{}
	amb := novoAmbiente(t, trans)
	amb.credenciais.err = &domain.CredentialError{Motivo: "certificado expirado"}

	_, err := amb.emissor.Emitir(context.Background(), "emp-1", entradaValida())

	var ce *domain.CredentialError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 0, amb.numeracao.chamadas, "credencial vencida não deve consumir numeração")
	assert.Equal(t, 0, trans.envios)
	assert.Empty(t, amb.notas.salvas)
}

func TestEmitir_FalhaDeTransmissaoNaoPersisteNada(t *testing.T) {
	trans := &fakeTransmissor{
		envioErr: &domain.TransmissionError{Operacao: "autorizacao", Tentativas: 3, Err: errors.New("timeout")},
	}
	amb := novoAmbiente(t, trans)

	_, err := amb.emissor.Emitir(context.Background(), "emp-1", entradaValida())

	var te *domain.TransmissionError
	require.True(t, errors.As(err, &te))
	assert.Empty(t, amb.notas.salvas, "desfecho desconhecido não gera linha no banco; a reemissão aloca novo número")
}
