package repository

import (
	"context"

	"github.com/nexopdv/nfe-engine/internal/domain/entity"
)

// EmpresaRepository provedor do perfil fiscal do tenant (somente leitura para o engine).
type EmpresaRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Empresa, error)
}

// NumeracaoRepository alocador de numeração por série. O engine chama Next uma
// vez por tentativa de emissão e apenas valida a monotonicidade do que recebe.
type NumeracaoRepository interface {
	Next(ctx context.Context, empresaID string, modelo string, serie int64) (int64, error)
}
