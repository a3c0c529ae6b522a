// Geração do XML NFe (layout 4.00) a partir do documento canônico. A árvore é
// montada com etree e serializada compacta, sem indentação: qualquer byte de
// formatação mudaria o digest na assinatura.

package sefaz

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/nexopdv/nfe-engine/internal/domain/entity"
	domnfe "github.com/nexopdv/nfe-engine/internal/domain/nfe"
	"github.com/nexopdv/nfe-engine/pkg/nfe"
)

// XMLBuilder transforma uma NotaFiscal montada no XML de transmissão.
type XMLBuilder struct {
	versao string
}

func NewXMLBuilder(versao string) *XMLBuilder {
	if versao == "" {
		versao = "4.00"
	}
	return &XMLBuilder{versao: versao}
}

// Build serializa a nota como elemento <NFe> com infNFe Id="NFe"+chave,
// pronto para assinatura.
func (b *XMLBuilder) Build(nota *entity.NotaFiscal) ([]byte, error) {
	if nota.Emitente == nil {
		return nil, fmt.Errorf("nota sem emitente")
	}
	info, err := domnfe.ParseChave(nota.Chave)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	raiz := doc.CreateElement("NFe")
	raiz.CreateAttr("xmlns", nsPortalFiscal)

	inf := raiz.CreateElement("infNFe")
	inf.CreateAttr("Id", "NFe"+nota.Chave)
	inf.CreateAttr("versao", b.versao)

	b.ide(inf, nota, info)
	b.emit(inf, nota.Emitente)
	if nota.Destinatario.Identificado() {
		b.dest(inf, nota)
	}
	for i, item := range nota.Itens {
		b.det(inf, nota.Emitente, item, i+1)
	}
	b.total(inf, nota.Totais)
	inf.CreateElement("transp").CreateElement("modFrete").SetText("9")
	b.pag(inf, nota)
	if nota.InfAdicional != "" {
		inf.CreateElement("infAdic").CreateElement("infCpl").SetText(nota.InfAdicional)
	}

	doc.WriteSettings.CanonicalEndTags = true
	return doc.WriteToBytes()
}

func (b *XMLBuilder) ide(pai *etree.Element, nota *entity.NotaFiscal, info *domnfe.ChaveInfo) {
	emp := nota.Emitente

	ide := pai.CreateElement("ide")
	texto(ide, "cUF", nfe.CodigoUF(emp.UF))
	texto(ide, "cNF", info.CodigoNF)
	texto(ide, "natOp", nota.Natureza)
	texto(ide, "mod", nota.Modelo)
	texto(ide, "serie", fmt.Sprintf("%d", nota.Serie))
	texto(ide, "nNF", fmt.Sprintf("%d", nota.Numero))
	texto(ide, "dhEmi", nota.Emissao.Format("2006-01-02T15:04:05-07:00"))
	texto(ide, "tpNF", "1") // saída
	texto(ide, "idDest", idDest(nota))
	texto(ide, "cMunFG", emp.CodigoMunicipio)
	if nota.Modelo == nfe.ModeloNFCe {
		texto(ide, "tpImp", "4") // DANFE NFC-e
	} else {
		texto(ide, "tpImp", "1")
	}
	texto(ide, "tpEmis", "1")
	texto(ide, "cDV", fmt.Sprintf("%d", info.DV))
	texto(ide, "tpAmb", emp.Ambiente)
	texto(ide, "finNFe", nota.Finalidade)
	texto(ide, "indFinal", indFinal(nota))
	texto(ide, "indPres", indPres(nota))
	texto(ide, "procEmi", "0")
	texto(ide, "verProc", "nfe-engine 1.0")
	if nota.ChaveRef != "" {
		ide.CreateElement("NFref").CreateElement("refNFe").SetText(nota.ChaveRef)
	}
}

func (b *XMLBuilder) emit(pai *etree.Element, emp *entity.Empresa) {
	emit := pai.CreateElement("emit")
	texto(emit, "CNPJ", emp.CNPJ)
	texto(emit, "xNome", emp.RazaoSocial)
	if emp.NomeFantasia != "" {
		texto(emit, "xFant", emp.NomeFantasia)
	}
	end := emit.CreateElement("enderEmit")
	texto(end, "xLgr", emp.Logradouro)
	texto(end, "nro", emp.NumeroEndereco)
	texto(end, "xBairro", emp.Bairro)
	texto(end, "cMun", emp.CodigoMunicipio)
	texto(end, "xMun", emp.Municipio)
	texto(end, "UF", emp.UF)
	texto(end, "CEP", emp.CEP)
	texto(end, "cPais", "1058")
	texto(end, "xPais", "BRASIL")
	texto(emit, "IE", emp.IE)
	texto(emit, "CRT", emp.Regime)
}

func (b *XMLBuilder) dest(pai *etree.Element, nota *entity.NotaFiscal) {
	d := nota.Destinatario
	dest := pai.CreateElement("dest")
	if len(d.Documento) == 14 {
		texto(dest, "CNPJ", d.Documento)
	} else {
		texto(dest, "CPF", d.Documento)
	}
	texto(dest, "xNome", d.RazaoSocial)
	if d.Logradouro != "" {
		end := dest.CreateElement("enderDest")
		texto(end, "xLgr", d.Logradouro)
		texto(end, "nro", d.NumeroEndereco)
		texto(end, "xBairro", d.Bairro)
		texto(end, "cMun", d.CodigoMunicipio)
		texto(end, "xMun", d.Municipio)
		texto(end, "UF", d.UF)
		texto(end, "CEP", d.CEP)
	}
	ind := d.IndIEDest
	if ind == "" {
		ind = "9"
	}
	texto(dest, "indIEDest", ind)
}

func (b *XMLBuilder) det(pai *etree.Element, emp *entity.Empresa, item entity.ItemNota, nItem int) {
	det := pai.CreateElement("det")
	det.CreateAttr("nItem", fmt.Sprintf("%d", nItem))

	prod := det.CreateElement("prod")
	texto(prod, "cProd", item.Codigo)
	texto(prod, "cEAN", "SEM GTIN")
	texto(prod, "xProd", item.Descricao)
	texto(prod, "NCM", item.NCM)
	texto(prod, "CFOP", item.CFOP)
	texto(prod, "uCom", item.Unidade)
	texto(prod, "qCom", item.Quantidade.StringFixed(4))
	texto(prod, "vUnCom", item.ValorUnit.StringFixed(10))
	texto(prod, "vProd", item.ValorTotal.StringFixed(2))
	texto(prod, "cEANTrib", "SEM GTIN")
	texto(prod, "uTrib", item.Unidade)
	texto(prod, "qTrib", item.Quantidade.StringFixed(4))
	texto(prod, "vUnTrib", item.ValorUnit.StringFixed(10))
	texto(prod, "indTot", "1")

	icms := det.CreateElement("imposto").CreateElement("ICMS")
	if emp.Regime == entity.RegimeNormal {
		grupo := icms.CreateElement("ICMS" + item.CST)
		texto(grupo, "orig", "0")
		texto(grupo, "CST", item.CST)
		if item.AliqICMS.IsPositive() {
			texto(grupo, "modBC", "3")
			texto(grupo, "vBC", item.ValorTotal.StringFixed(2))
			texto(grupo, "pICMS", item.AliqICMS.StringFixed(2))
			texto(grupo, "vICMS", valorICMS(item).StringFixed(2))
		}
	} else {
		grupo := icms.CreateElement("ICMSSN" + item.CST)
		texto(grupo, "orig", "0")
		texto(grupo, "CSOSN", item.CST)
	}
}

func (b *XMLBuilder) total(pai *etree.Element, t entity.Totais) {
	tot := pai.CreateElement("total").CreateElement("ICMSTot")
	texto(tot, "vBC", "0.00")
	texto(tot, "vICMS", t.ICMS.StringFixed(2))
	texto(tot, "vICMSDeson", "0.00")
	texto(tot, "vFCP", "0.00")
	texto(tot, "vBCST", "0.00")
	texto(tot, "vST", "0.00")
	texto(tot, "vFCPST", "0.00")
	texto(tot, "vFCPSTRet", "0.00")
	texto(tot, "vProd", t.Produtos.StringFixed(2))
	texto(tot, "vFrete", "0.00")
	texto(tot, "vSeg", "0.00")
	texto(tot, "vDesc", t.Desconto.StringFixed(2))
	texto(tot, "vII", "0.00")
	texto(tot, "vIPI", "0.00")
	texto(tot, "vIPIDevol", "0.00")
	texto(tot, "vPIS", "0.00")
	texto(tot, "vCOFINS", "0.00")
	texto(tot, "vOutro", t.Acrescimo.StringFixed(2))
	texto(tot, "vNF", t.Total.StringFixed(2))
}

func (b *XMLBuilder) pag(pai *etree.Element, nota *entity.NotaFiscal) {
	pag := pai.CreateElement("pag")
	det := pag.CreateElement("detPag")
	p := nota.Pagamento
	if p.Meio == "" {
		// modelo 55 sem pagamento informado: "90 - sem pagamento"
		texto(det, "tPag", "90")
		texto(det, "vPag", "0.00")
		return
	}
	if p.Indicador != "" {
		texto(det, "indPag", p.Indicador)
	}
	texto(det, "tPag", p.Meio)
	texto(det, "vPag", p.Valor.StringFixed(2))
}

func texto(pai *etree.Element, tag, valor string) {
	pai.CreateElement(tag).SetText(valor)
}

func valorICMS(item entity.ItemNota) decimal.Decimal {
	return item.ValorTotal.Mul(item.AliqICMS).Div(decimal.NewFromInt(100)).Round(2)
}

func idDest(nota *entity.NotaFiscal) string {
	d := nota.Destinatario
	if d.Identificado() && d.UF != "" && d.UF != nota.Emitente.UF {
		return "2" // interestadual
	}
	return "1"
}

func indFinal(nota *entity.NotaFiscal) string {
	if nota.Modelo == nfe.ModeloNFCe {
		return "1"
	}
	return "0"
}

func indPres(nota *entity.NotaFiscal) string {
	if nota.Modelo == nfe.ModeloNFCe {
		return "1" // operação presencial
	}
	return "0"
}
