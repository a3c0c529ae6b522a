package repository

import (
	"context"

	"github.com/nexopdv/nfe-engine/internal/domain/entity"
)

// NotaRepository persistência de notas fiscais e seus eventos.
// A nota só é gravada ao alcançar estado terminal ou estável (autorizada,
// rejeitada, cancelada); o ciclo em voo vive em memória.
type NotaRepository interface {
	Save(ctx context.Context, nota *entity.NotaFiscal) error
	GetByID(ctx context.Context, id string) (*entity.NotaFiscal, error)
	GetByChave(ctx context.Context, chave string) (*entity.NotaFiscal, error)
	// AddEvento grava um evento homologado e atualiza o estado da nota.
	AddEvento(ctx context.Context, notaID string, estado string, evento *entity.EventoFiscal) error
	// UltimoNumeroAutorizado devolve o maior número já autorizado da série (0 se nenhum).
	UltimoNumeroAutorizado(ctx context.Context, empresaID string, serie int64) (int64, error)
	// ExisteAutorizadaNaFaixa informa se algum número da faixa [de, ate] da série
	// já foi autorizado para o modelo dado (a numeração é independente por modelo).
	ExisteAutorizadaNaFaixa(ctx context.Context, empresaID, modelo string, serie, de, ate int64) (bool, error)
}

// InutilizacaoRepository registro das faixas de numeração inutilizadas.
type InutilizacaoRepository interface {
	Save(ctx context.Context, inut *Inutilizacao) error
}

// Inutilizacao faixa de numeração inutilizada homologada pela SEFAZ.
type Inutilizacao struct {
	ID            string
	EmpresaID     string
	Modelo        string
	Serie         int64
	NumeroInicial int64
	NumeroFinal   int64
	Justificativa string
	Protocolo     string
	CStat         string
	XMotivo       string
}
