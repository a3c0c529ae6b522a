package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
)

var _ repository.NotaRepository = (*NotaRepo)(nil)

// NotaRepo implementação de NotaRepository (usável com pool ou tx).
// Itens, destinatário e pagamento são gravados como JSONB: após o desfecho a
// nota é consultada inteira, nunca filtrada por campo de item.
type NotaRepo struct {
	q Querier
}

func NewNotaRepository(q Querier) *NotaRepo {
	return &NotaRepo{q: q}
}

// Save grava a nota e seus eventos de forma idempotente (upsert pela chave).
func (r *NotaRepo) Save(ctx context.Context, nota *entity.NotaFiscal) error {
	itens, err := json.Marshal(nota.Itens)
	if err != nil {
		return fmt.Errorf("serializar itens: %w", err)
	}
	dest, err := json.Marshal(nota.Destinatario)
	if err != nil {
		return fmt.Errorf("serializar destinatário: %w", err)
	}
	pag, err := json.Marshal(nota.Pagamento)
	if err != nil {
		return fmt.Errorf("serializar pagamento: %w", err)
	}

	query := `
		INSERT INTO notas (id, empresa_id, chave, modelo, serie, numero, finalidade, chave_ref,
			natureza, emissao, destinatario, itens, pagamento, inf_adicional,
			total_produtos, total_desconto, total_acrescimo, total_icms, total,
			estado, recibo, protocolo, xml_assinado, ultimo_erro, criada_em, atualizada_em)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, now())
		ON CONFLICT (chave) DO UPDATE SET
			estado       = EXCLUDED.estado,
			recibo       = EXCLUDED.recibo,
			protocolo    = EXCLUDED.protocolo,
			xml_assinado = EXCLUDED.xml_assinado,
			ultimo_erro  = EXCLUDED.ultimo_erro,
			atualizada_em = now()`
	_, err = r.q.Exec(ctx, query,
		nota.ID, nota.EmpresaID, nota.Chave, nota.Modelo, nota.Serie, nota.Numero,
		nota.Finalidade, nullIfEmpty(nota.ChaveRef), nota.Natureza, nota.Emissao,
		dest, itens, pag, nullIfEmpty(nota.InfAdicional),
		nota.Totais.Produtos, nota.Totais.Desconto, nota.Totais.Acrescimo,
		nota.Totais.ICMS, nota.Totais.Total,
		nota.Estado, nullIfEmpty(nota.Recibo), nullIfEmpty(nota.Protocolo),
		nota.XMLAssinado, nullIfEmpty(nota.UltimoErro), nota.CriadaEm,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("nota duplicada (número %d série %d): %w", nota.Numero, nota.Serie, err)
		}
		return fmt.Errorf("gravar nota: %w", err)
	}

	for i := range nota.Eventos {
		if err := r.inserirEvento(ctx, &nota.Eventos[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *NotaRepo) GetByID(ctx context.Context, id string) (*entity.NotaFiscal, error) {
	return r.buscar(ctx, "id = $1", id)
}

func (r *NotaRepo) GetByChave(ctx context.Context, chave string) (*entity.NotaFiscal, error) {
	return r.buscar(ctx, "chave = $1", chave)
}

func (r *NotaRepo) buscar(ctx context.Context, cond string, arg any) (*entity.NotaFiscal, error) {
	query := `
		SELECT id, empresa_id, chave, modelo, serie, numero, finalidade,
			COALESCE(chave_ref, ''), natureza, emissao, destinatario, itens, pagamento,
			COALESCE(inf_adicional, ''), total_produtos, total_desconto, total_acrescimo,
			total_icms, total, estado, COALESCE(recibo, ''), COALESCE(protocolo, ''),
			xml_assinado, COALESCE(ultimo_erro, ''), criada_em, atualizada_em
		FROM notas WHERE ` + cond

	var nota entity.NotaFiscal
	var dest, itens, pag []byte
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&nota.ID, &nota.EmpresaID, &nota.Chave, &nota.Modelo, &nota.Serie, &nota.Numero,
		&nota.Finalidade, &nota.ChaveRef, &nota.Natureza, &nota.Emissao,
		&dest, &itens, &pag, &nota.InfAdicional,
		&nota.Totais.Produtos, &nota.Totais.Desconto, &nota.Totais.Acrescimo,
		&nota.Totais.ICMS, &nota.Totais.Total,
		&nota.Estado, &nota.Recibo, &nota.Protocolo, &nota.XMLAssinado,
		&nota.UltimoErro, &nota.CriadaEm, &nota.AtualizadaEm,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("nota não encontrada")
	}
	if err != nil {
		return nil, fmt.Errorf("buscar nota: %w", err)
	}
	if err := json.Unmarshal(dest, &nota.Destinatario); err != nil {
		return nil, fmt.Errorf("desserializar destinatário: %w", err)
	}
	if err := json.Unmarshal(itens, &nota.Itens); err != nil {
		return nil, fmt.Errorf("desserializar itens: %w", err)
	}
	if err := json.Unmarshal(pag, &nota.Pagamento); err != nil {
		return nil, fmt.Errorf("desserializar pagamento: %w", err)
	}
	if err := r.carregarEventos(ctx, &nota); err != nil {
		return nil, err
	}
	return &nota, nil
}

func (r *NotaRepo) carregarEventos(ctx context.Context, nota *entity.NotaFiscal) error {
	rows, err := r.q.Query(ctx, `
		SELECT id, nota_id, tipo, sequencia, COALESCE(protocolo, ''), cstat, xmotivo,
			COALESCE(texto, ''), registro
		FROM eventos WHERE nota_id = $1 ORDER BY registro`, nota.ID)
	if err != nil {
		return fmt.Errorf("buscar eventos: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ev entity.EventoFiscal
		if err := rows.Scan(&ev.ID, &ev.NotaID, &ev.Tipo, &ev.Sequencia,
			&ev.Protocolo, &ev.CStat, &ev.XMotivo, &ev.Texto, &ev.Registro); err != nil {
			return fmt.Errorf("ler evento: %w", err)
		}
		nota.Eventos = append(nota.Eventos, ev)
	}
	return rows.Err()
}

// AddEvento grava o evento e atualiza o estado da nota na mesma chamada.
func (r *NotaRepo) AddEvento(ctx context.Context, notaID string, estado string, evento *entity.EventoFiscal) error {
	if err := r.inserirEvento(ctx, evento); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx,
		`UPDATE notas SET estado = $2, atualizada_em = now() WHERE id = $1`,
		notaID, estado)
	if err != nil {
		return fmt.Errorf("atualizar estado da nota: %w", err)
	}
	return nil
}

func (r *NotaRepo) inserirEvento(ctx context.Context, ev *entity.EventoFiscal) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO eventos (id, nota_id, tipo, sequencia, protocolo, cstat, xmotivo, texto, registro)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.NotaID, ev.Tipo, ev.Sequencia, nullIfEmpty(ev.Protocolo),
		ev.CStat, ev.XMotivo, nullIfEmpty(ev.Texto), ev.Registro)
	if err != nil {
		return fmt.Errorf("gravar evento: %w", err)
	}
	return nil
}

func (r *NotaRepo) UltimoNumeroAutorizado(ctx context.Context, empresaID string, serie int64) (int64, error) {
	var ultimo int64
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(MAX(numero), 0) FROM notas
		WHERE empresa_id = $1 AND serie = $2 AND estado = $3`,
		empresaID, serie, entity.EstadoAutorizada).Scan(&ultimo)
	if err != nil {
		return 0, fmt.Errorf("consultar último autorizado: %w", err)
	}
	return ultimo, nil
}

func (r *NotaRepo) ExisteAutorizadaNaFaixa(ctx context.Context, empresaID, modelo string, serie, de, ate int64) (bool, error) {
	var existe bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notas
			WHERE empresa_id = $1 AND modelo = $2 AND serie = $3 AND numero BETWEEN $4 AND $5
				AND estado IN ($6, $7)
		)`,
		empresaID, modelo, serie, de, ate, entity.EstadoAutorizada, entity.EstadoCancelada).Scan(&existe)
	if err != nil {
		return false, fmt.Errorf("consultar faixa: %w", err)
	}
	return existe, nil
}
