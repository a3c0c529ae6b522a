// Montagem do documento canônico: validação de conteúdo, recomputação de
// totais e geração da chave de acesso. Tudo aqui é local; nenhum erro desta
// etapa gera tráfego de rede.

package fiscal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexopdv/nfe-engine/internal/domain"
	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	domnfe "github.com/nexopdv/nfe-engine/internal/domain/nfe"
	"github.com/nexopdv/nfe-engine/pkg/nfe"
)

// toleranciaTotais diferença máxima tolerada entre o total declarado e o
// recomputado: um centavo, para absorver arredondamento por item.
var toleranciaTotais = decimal.NewFromFloat(0.01)

// EntradaNota conteúdo bruto fornecido pelo chamador. Números de série e de
// documento NÃO entram aqui: a numeração vem do alocador, nunca do chamador.
type EntradaNota struct {
	Modelo         string
	Serie          int64
	Finalidade     string
	ChaveRef       string
	Natureza       string
	Emissao        time.Time
	Destinatario   *entity.Destinatario
	Itens          []entity.ItemNota
	Desconto       decimal.Decimal
	Acrescimo      decimal.Decimal
	TotalDeclarado decimal.Decimal
	Pagamento      entity.Pagamento
	InfAdicional   string
	CodigoNF       string // cNF fixo; vazio sorteia (fixar só faz sentido em teste)
}

// Montador valida o conteúdo e produz a NotaFiscal montada, com chave.
type Montador struct{}

func NewMontador() *Montador {
	return &Montador{}
}

// Montar valida a entrada contra as regras do modelo e da finalidade,
// recomputa os totais e gera a chave de acesso. O número vem do alocador e
// deve ser estritamente maior que o último autorizado da série.
func (m *Montador) Montar(emp *entity.Empresa, numero int64, in EntradaNota) (*entity.NotaFiscal, error) {
	if err := validarEmitente(emp); err != nil {
		return nil, err
	}
	if err := validarIdentificacao(in); err != nil {
		return nil, err
	}
	if err := validarPartes(in); err != nil {
		return nil, err
	}
	if err := validarItens(in.Itens); err != nil {
		return nil, err
	}

	totais, err := recomputarTotais(in)
	if err != nil {
		return nil, err
	}

	emissao := in.Emissao
	if emissao.IsZero() {
		emissao = time.Now()
	}

	chave, err := domnfe.BuildChave(domnfe.ChaveParams{
		UF:       emp.UF,
		Emissao:  emissao,
		CNPJ:     emp.CNPJ,
		Modelo:   in.Modelo,
		Serie:    in.Serie,
		Numero:   numero,
		CodigoNF: in.CodigoNF,
	})
	if err != nil {
		return nil, err
	}

	agora := time.Now()
	return &entity.NotaFiscal{
		ID:           uuid.NewString(),
		EmpresaID:    emp.ID,
		Chave:        chave,
		Modelo:       in.Modelo,
		Serie:        in.Serie,
		Numero:       numero,
		Finalidade:   in.Finalidade,
		ChaveRef:     in.ChaveRef,
		Natureza:     nfe.SanitizeTexto(in.Natureza),
		Emissao:      emissao,
		Emitente:     emp,
		Destinatario: in.Destinatario,
		Itens:        in.Itens,
		Totais:       totais,
		Pagamento:    in.Pagamento,
		InfAdicional: nfe.SanitizeTexto(in.InfAdicional),
		Estado:       entity.EstadoMontada,
		CriadaEm:     agora,
		AtualizadaEm: agora,
	}, nil
}

func validarEmitente(emp *entity.Empresa) error {
	if emp == nil {
		return &domain.ValidationError{Campo: "emitente", Motivo: "não informado"}
	}
	if !nfe.ValidCNPJ(emp.CNPJ) {
		return &domain.ValidationError{Campo: "emitente.cnpj", Motivo: "CNPJ inválido"}
	}
	if emp.RazaoSocial == "" {
		return &domain.ValidationError{Campo: "emitente.razaoSocial", Motivo: "obrigatório"}
	}
	if emp.IE == "" {
		return &domain.ValidationError{Campo: "emitente.ie", Motivo: "inscrição estadual obrigatória"}
	}
	if nfe.CodigoUF(emp.UF) == "" {
		return &domain.ValidationError{Campo: "emitente.uf", Motivo: fmt.Sprintf("UF desconhecida %q", emp.UF)}
	}
	if emp.CodigoMunicipio == "" {
		return &domain.ValidationError{Campo: "emitente.codigoMunicipio", Motivo: "código IBGE do município obrigatório"}
	}
	if emp.Regime != entity.RegimeSimplesNacional &&
		emp.Regime != entity.RegimeSimplesExcesso &&
		emp.Regime != entity.RegimeNormal {
		return &domain.ValidationError{Campo: "emitente.regime", Motivo: fmt.Sprintf("CRT inválido %q", emp.Regime)}
	}
	return nil
}

func validarIdentificacao(in EntradaNota) error {
	if !nfe.ValidModelos[in.Modelo] {
		return &domain.ValidationError{Campo: "modelo", Motivo: fmt.Sprintf("modelo desconhecido %q", in.Modelo)}
	}
	if !nfe.ValidFinalidades[in.Finalidade] {
		return &domain.ValidationError{Campo: "finalidade", Motivo: fmt.Sprintf("finalidade desconhecida %q", in.Finalidade)}
	}
	if in.Serie < 1 || in.Serie > 999 {
		return &domain.ValidationError{Campo: "serie", Motivo: "fora da faixa 1..999"}
	}
	if in.Natureza == "" {
		return &domain.ValidationError{Campo: "natureza", Motivo: "natureza da operação obrigatória"}
	}
	if in.Finalidade == nfe.FinalidadeDevolucao {
		if !domnfe.ValidChave(in.ChaveRef) {
			return &domain.ValidationError{Campo: "chaveRef", Motivo: "devolução exige chave referenciada válida de 44 dígitos"}
		}
		for i, item := range in.Itens {
			if !nfe.IsCFOPDevolucao(item.CFOP) {
				return &domain.ValidationError{
					Campo:  fmt.Sprintf("itens[%d].cfop", i),
					Motivo: fmt.Sprintf("CFOP %q não é de devolução", item.CFOP),
				}
			}
		}
	} else if in.ChaveRef != "" && !domnfe.ValidChave(in.ChaveRef) {
		return &domain.ValidationError{Campo: "chaveRef", Motivo: "chave referenciada inválida"}
	}
	return nil
}

func validarPartes(in EntradaNota) error {
	switch in.Modelo {
	case nfe.ModeloNFe:
		// NF-e exige destinatário identificado
		if !in.Destinatario.Identificado() {
			return &domain.ValidationError{Campo: "destinatario", Motivo: "obrigatório no modelo 55"}
		}
	case nfe.ModeloNFCe:
		// NFC-e exige pagamento; destinatário pode ser consumidor anônimo
		if in.Pagamento.Meio == "" {
			return &domain.ValidationError{Campo: "pagamento.meio", Motivo: "obrigatório no modelo 65"}
		}
		if !in.Pagamento.Valor.IsPositive() {
			return &domain.ValidationError{Campo: "pagamento.valor", Motivo: "deve ser positivo no modelo 65"}
		}
	}
	if in.Destinatario.Identificado() {
		doc := in.Destinatario.Documento
		if !nfe.ValidCNPJ(doc) && !nfe.ValidCPF(doc) {
			return &domain.ValidationError{Campo: "destinatario.documento", Motivo: "CNPJ/CPF inválido"}
		}
		if in.Destinatario.RazaoSocial == "" {
			return &domain.ValidationError{Campo: "destinatario.razaoSocial", Motivo: "obrigatório quando identificado"}
		}
	}
	return nil
}

func validarItens(itens []entity.ItemNota) error {
	if len(itens) == 0 {
		return &domain.ValidationError{Campo: "itens", Motivo: "a nota precisa de ao menos um item"}
	}
	for i, item := range itens {
		campo := func(nome string) string { return fmt.Sprintf("itens[%d].%s", i, nome) }
		if item.Descricao == "" {
			return &domain.ValidationError{Campo: campo("descricao"), Motivo: "obrigatória"}
		}
		if item.CFOP == "" {
			return &domain.ValidationError{Campo: campo("cfop"), Motivo: "obrigatório"}
		}
		if item.NCM == "" {
			return &domain.ValidationError{Campo: campo("ncm"), Motivo: "obrigatório"}
		}
		if item.CST == "" {
			return &domain.ValidationError{Campo: campo("cst"), Motivo: "CST/CSOSN obrigatório"}
		}
		if !item.Quantidade.IsPositive() {
			return &domain.ValidationError{Campo: campo("quantidade"), Motivo: "deve ser positiva"}
		}
		if item.ValorUnit.IsNegative() {
			return &domain.ValidationError{Campo: campo("valorUnit"), Motivo: "não pode ser negativo"}
		}
		esperado := item.Quantidade.Mul(item.ValorUnit).Round(2)
		if esperado.Sub(item.ValorTotal).Abs().GreaterThan(toleranciaTotais) {
			return &domain.ValidationError{
				Campo:  campo("valorTotal"),
				Motivo: fmt.Sprintf("declarado %s, esperado %s", item.ValorTotal.StringFixed(2), esperado.StringFixed(2)),
			}
		}
	}
	return nil
}

// recomputarTotais soma os itens e confronta com o total declarado. Divergência
// acima de um centavo é TotalsMismatch: o engine nunca corrige silenciosamente.
func recomputarTotais(in EntradaNota) (entity.Totais, error) {
	produtos := decimal.Zero
	icms := decimal.Zero
	cem := decimal.NewFromInt(100)
	for _, item := range in.Itens {
		produtos = produtos.Add(item.ValorTotal)
		icms = icms.Add(item.ValorTotal.Mul(item.AliqICMS).Div(cem).Round(2))
	}
	total := produtos.Sub(in.Desconto).Add(in.Acrescimo)
	if total.IsNegative() {
		return entity.Totais{}, &domain.ValidationError{Campo: "desconto", Motivo: "desconto maior que o valor dos produtos"}
	}
	if total.Sub(in.TotalDeclarado).Abs().GreaterThan(toleranciaTotais) {
		return entity.Totais{}, &domain.TotalsMismatch{Declarado: in.TotalDeclarado, Recomputado: total}
	}
	return entity.Totais{
		Produtos:  produtos,
		Desconto:  in.Desconto,
		Acrescimo: in.Acrescimo,
		ICMS:      icms,
		Total:     total,
	}, nil
}
