// Emissão em lote com concorrência limitada. Cada nota é uma tentativa
// independente: o erro de uma não interrompe as demais.

package fiscal

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	"github.com/nexopdv/nfe-engine/pkg/logger"
)

// ResultadoEmissao desfecho individual de uma nota do lote.
type ResultadoEmissao struct {
	Indice int
	Nota   *entity.NotaFiscal
	Err    error
}

// Processador emite várias notas em paralelo respeitando um teto de
// concorrência (o autorizador limita conexões simultâneas por CNPJ).
type Processador struct {
	emissor       *Emissor
	maxConcurrent int
	log           *logger.Logger
}

func NewProcessador(emissor *Emissor, maxConcurrent int, log *logger.Logger) *Processador {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Processador{emissor: emissor, maxConcurrent: maxConcurrent, log: log}
}

// EmitirLote processa todas as entradas e devolve um resultado por posição,
// na ordem de entrada. O contexto cancelado interrompe as emissões ainda não
// iniciadas; as em andamento persistem seu último estado.
func (p *Processador) EmitirLote(ctx context.Context, empresaID string, entradas []EntradaNota) []ResultadoEmissao {
	resultados := make([]ResultadoEmissao, len(entradas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)
	for i, in := range entradas {
		i, in := i, in
		g.Go(func() error {
			nota, err := p.emissor.Emitir(gctx, empresaID, in)
			resultados[i] = ResultadoEmissao{Indice: i, Nota: nota, Err: err}
			// erros individuais não derrubam o grupo
			return nil
		})
	}
	g.Wait()

	var falhas int
	for _, r := range resultados {
		if r.Err != nil {
			falhas++
		}
	}
	p.log.Info().
		Str("empresa", empresaID).
		Int("total", len(entradas)).
		Int("falhas", falhas).
		Msg("lote de emissão processado")
	return resultados
}
