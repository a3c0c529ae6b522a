package postgres

import (
	"context"
	"fmt"

	"github.com/nexopdv/nfe-engine/internal/domain/repository"
)

var _ repository.NumeracaoRepository = (*NumeracaoRepo)(nil)

// NumeracaoRepo alocador transacional de numeração por série. O upsert
// atômico garante que duas emissões concorrentes da mesma série nunca recebem
// o mesmo número, mesmo a partir de processos distintos.
type NumeracaoRepo struct {
	q Querier
}

func NewNumeracaoRepository(q Querier) *NumeracaoRepo {
	return &NumeracaoRepo{q: q}
}

// Next aloca e devolve o próximo número da série. Números alocados mas não
// autorizados (tentativa abortada) viram buracos de numeração, resolvidos
// depois por inutilização de faixa.
func (r *NumeracaoRepo) Next(ctx context.Context, empresaID string, modelo string, serie int64) (int64, error) {
	var numero int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO numeracao (empresa_id, modelo, serie, ultimo)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (empresa_id, modelo, serie)
			DO UPDATE SET ultimo = numeracao.ultimo + 1
		RETURNING ultimo`,
		empresaID, modelo, serie).Scan(&numero)
	if err != nil {
		return 0, fmt.Errorf("alocar numeração: %w", err)
	}
	return numero, nil
}
