package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
)

var _ repository.EmpresaRepository = (*EmpresaRepo)(nil)

// EmpresaRepo leitura do perfil fiscal do emitente.
type EmpresaRepo struct {
	q Querier
}

func NewEmpresaRepository(q Querier) *EmpresaRepo {
	return &EmpresaRepo{q: q}
}

func (r *EmpresaRepo) GetByID(ctx context.Context, id string) (*entity.Empresa, error) {
	query := `
		SELECT id, razao_social, COALESCE(nome_fantasia, ''), cnpj, ie, regime, uf,
			codigo_municipio, municipio, logradouro, numero, bairro, cep,
			ambiente, cert_ref, criada_em, atualizada_em
		FROM empresas WHERE id = $1`

	var emp entity.Empresa
	err := r.q.QueryRow(ctx, query, id).Scan(
		&emp.ID, &emp.RazaoSocial, &emp.NomeFantasia, &emp.CNPJ, &emp.IE, &emp.Regime,
		&emp.UF, &emp.CodigoMunicipio, &emp.Municipio, &emp.Logradouro,
		&emp.NumeroEndereco, &emp.Bairro, &emp.CEP, &emp.Ambiente, &emp.CertRef,
		&emp.CriadaEm, &emp.AtualizadaEm,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("empresa %s não encontrada", id)
	}
	if err != nil {
		return nil, fmt.Errorf("buscar empresa: %w", err)
	}
	return &emp, nil
}
