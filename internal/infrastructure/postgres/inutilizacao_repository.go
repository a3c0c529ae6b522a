package postgres

import (
	"context"
	"fmt"

	"github.com/nexopdv/nfe-engine/internal/domain/repository"
)

var _ repository.InutilizacaoRepository = (*InutilizacaoRepo)(nil)

// InutilizacaoRepo registro das faixas inutilizadas homologadas.
type InutilizacaoRepo struct {
	q Querier
}

func NewInutilizacaoRepository(q Querier) *InutilizacaoRepo {
	return &InutilizacaoRepo{q: q}
}

func (r *InutilizacaoRepo) Save(ctx context.Context, inut *repository.Inutilizacao) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO inutilizacoes (id, empresa_id, modelo, serie, numero_inicial, numero_final,
			justificativa, protocolo, cstat, xmotivo, criada_em)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
		inut.ID, inut.EmpresaID, inut.Modelo, inut.Serie, inut.NumeroInicial, inut.NumeroFinal,
		inut.Justificativa, inut.Protocolo, inut.CStat, inut.XMotivo)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("faixa já inutilizada: %w", err)
		}
		return fmt.Errorf("gravar inutilização: %w", err)
	}
	return nil
}
