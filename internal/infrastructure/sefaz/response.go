// Interpretador das respostas da SEFAZ. Na prática cada autorizador devolve o
// retorno num formato levemente diferente (documento nu, envelope SOAP com
// prefixos variados, XML truncado em falha de gateway), então a extração segue
// três camadas, da mais estrita à mais permissiva:
//
//  1. decodificação estruturada do documento completo;
//  2. varredura da árvore por elementos conhecidos, ignorando namespace;
//  3. regex sobre o texto bruto.
//
// Quando um retorno carrega mais de um cStat (lote + protocolo, lote + evento),
// vale o ÚLTIMO na ordem do documento: é sempre o resultado individual, mais
// específico que o status do lote que o envolve.

package sefaz

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/nexopdv/nfe-engine/internal/domain"
)

// Retorno resultado normalizado de qualquer operação SEFAZ. Bruto preserva o
// corpo original para auditoria e persistência do desfecho.
type Retorno struct {
	CStat       string
	XMotivo     string
	Recibo      string
	Protocolo   string
	Chave       string
	Recebimento time.Time
	Bruto       []byte
}

// formatos de data aceitos nos campos dhRecbto/dhRegEvento.
var formatosData = []string{
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05",
}

// InterpretarResposta normaliza o corpo de uma resposta SEFAZ. Se nenhuma das
// três camadas localizar um cStat, devolve InterpretationError com o corpo
// intacto; o chamador decide se loga ou persiste o bruto.
func InterpretarResposta(corpo []byte) (*Retorno, error) {
	if ret, ok := decodificarEstruturado(corpo); ok {
		ret.Bruto = corpo
		return ret, nil
	}
	if ret, ok := varrerArvore(corpo); ok {
		ret.Bruto = corpo
		return ret, nil
	}
	if ret, ok := extrairPorRegex(corpo); ok {
		ret.Bruto = corpo
		return ret, nil
	}
	return nil, &domain.InterpretationError{Corpo: corpo}
}

// ─────────────────────────────────────────────
// Camada 1: decodificação estruturada
// ─────────────────────────────────────────────

type infProtXML struct {
	ChNFe    string `xml:"chNFe"`
	DhRecbto string `xml:"dhRecbto"`
	NProt    string `xml:"nProt"`
	CStat    string `xml:"cStat"`
	XMotivo  string `xml:"xMotivo"`
}

type infEventoXML struct {
	ChNFe      string `xml:"chNFe"`
	DhRegEvent string `xml:"dhRegEvento"`
	NProt      string `xml:"nProt"`
	CStat      string `xml:"cStat"`
	XMotivo    string `xml:"xMotivo"`
}

type infInutXML struct {
	CStat    string `xml:"cStat"`
	XMotivo  string `xml:"xMotivo"`
	NProt    string `xml:"nProt"`
	DhRecbto string `xml:"dhRecbto"`
}

// retornoXML cobre os cinco documentos de retorno do protocolo (envio de lote,
// consulta de recibo, consulta por chave, evento e inutilização) num único
// shape permissivo.
type retornoXML struct {
	XMLName  xml.Name
	CStat    string `xml:"cStat"`
	XMotivo  string `xml:"xMotivo"`
	DhRecbto string `xml:"dhRecbto"`
	NRec     string `xml:"nRec"` // consulta de recibo: filho direto
	InfRec   struct {
		NRec string `xml:"nRec"` // envio de lote: dentro de infRec
	} `xml:"infRec"`
	ProtNFe []struct {
		InfProt infProtXML `xml:"infProt"`
	} `xml:"protNFe"`
	RetEvento []struct {
		InfEvento infEventoXML `xml:"infEvento"`
	} `xml:"retEvento"`
	ProcEvento []struct {
		RetEvento struct {
			InfEvento infEventoXML `xml:"infEvento"`
		} `xml:"retEvento"`
	} `xml:"procEventoNFe"`
	InfInut *infInutXML `xml:"infInut"`
}

// fontesDeStatus conta quantos grupos de status distintos o documento carrega.
// A consulta de situação de uma nota cancelada traz protNFe (autorização
// original) E procEventoNFe (cancelamento); o shape estruturado não preserva a
// ordem relativa entre grupos, então com mais de uma fonte a decodificação
// estruturada abdica e a varredura da árvore decide pelo último do documento.
func (d *retornoXML) fontesDeStatus() int {
	n := 0
	if len(d.ProtNFe) > 0 {
		n++
	}
	if len(d.RetEvento) > 0 {
		n++
	}
	if len(d.ProcEvento) > 0 {
		n++
	}
	if d.InfInut != nil {
		n++
	}
	return n
}

func decodificarEstruturado(corpo []byte) (*Retorno, bool) {
	var doc retornoXML
	if err := xml.Unmarshal(corpo, &doc); err != nil {
		return nil, false
	}
	if !strings.HasPrefix(doc.XMLName.Local, "ret") {
		// envelope SOAP ou documento desconhecido: deixa para a camada 2
		return nil, false
	}
	if doc.fontesDeStatus() > 1 {
		// nota cancelada na consulta de situação: o protNFe antigo (100) não
		// pode sobrepor o evento de cancelamento; só a ordem do documento
		// decide, e quem a enxerga é a camada 2
		return nil, false
	}

	recibo := doc.NRec
	if recibo == "" {
		recibo = doc.InfRec.NRec
	}
	ret := &Retorno{
		CStat:       doc.CStat,
		XMotivo:     doc.XMotivo,
		Recibo:      recibo,
		Recebimento: parseData(doc.DhRecbto),
	}
	// o resultado individual (último protocolo ou evento) prevalece sobre o
	// status do lote
	if n := len(doc.ProtNFe); n > 0 {
		p := doc.ProtNFe[n-1].InfProt
		ret.CStat = p.CStat
		ret.XMotivo = p.XMotivo
		ret.Protocolo = p.NProt
		ret.Chave = p.ChNFe
		ret.Recebimento = parseData(p.DhRecbto)
	}
	if n := len(doc.RetEvento); n > 0 {
		e := doc.RetEvento[n-1].InfEvento
		ret.CStat = e.CStat
		ret.XMotivo = e.XMotivo
		ret.Protocolo = e.NProt
		ret.Chave = e.ChNFe
		ret.Recebimento = parseData(e.DhRegEvent)
	}
	if n := len(doc.ProcEvento); n > 0 {
		e := doc.ProcEvento[n-1].RetEvento.InfEvento
		ret.CStat = e.CStat
		ret.XMotivo = e.XMotivo
		ret.Protocolo = e.NProt
		ret.Chave = e.ChNFe
		ret.Recebimento = parseData(e.DhRegEvent)
	}
	if doc.InfInut != nil {
		ret.CStat = doc.InfInut.CStat
		ret.XMotivo = doc.InfInut.XMotivo
		ret.Protocolo = doc.InfInut.NProt
		ret.Recebimento = parseData(doc.InfInut.DhRecbto)
	}
	if ret.CStat == "" {
		return nil, false
	}
	return ret, true
}

// ─────────────────────────────────────────────
// Camada 2: varredura da árvore sem namespace
// ─────────────────────────────────────────────

func varrerArvore(corpo []byte) (*Retorno, bool) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(corpo); err != nil {
		return nil, false
	}
	ret := &Retorno{}
	var achouStat bool
	percorrer(doc.Root(), func(el *etree.Element) {
		switch el.Tag {
		case "cStat":
			ret.CStat = strings.TrimSpace(el.Text())
			achouStat = true
		case "xMotivo":
			ret.XMotivo = strings.TrimSpace(el.Text())
		case "nRec":
			ret.Recibo = strings.TrimSpace(el.Text())
		case "nProt":
			ret.Protocolo = strings.TrimSpace(el.Text())
		case "chNFe":
			ret.Chave = strings.TrimSpace(el.Text())
		case "dhRecbto", "dhRegEvento":
			ret.Recebimento = parseData(strings.TrimSpace(el.Text()))
		}
	})
	if !achouStat {
		return nil, false
	}
	return ret, true
}

// percorrer visita os elementos em ordem de documento; o visitante sobrescreve
// o valor a cada ocorrência, de modo que o último elemento prevalece.
func percorrer(el *etree.Element, fn func(*etree.Element)) {
	if el == nil {
		return
	}
	fn(el)
	for _, filho := range el.ChildElements() {
		percorrer(filho, fn)
	}
}

// ─────────────────────────────────────────────
// Camada 3: regex sobre o texto bruto
// ─────────────────────────────────────────────

var (
	reCStat   = regexp.MustCompile(`<(?:\w+:)?cStat>\s*(\d+)\s*</(?:\w+:)?cStat>`)
	reXMotivo = regexp.MustCompile(`<(?:\w+:)?xMotivo>\s*([^<]+?)\s*</(?:\w+:)?xMotivo>`)
	reNRec    = regexp.MustCompile(`<(?:\w+:)?nRec>\s*(\d+)\s*</(?:\w+:)?nRec>`)
	reNProt   = regexp.MustCompile(`<(?:\w+:)?nProt>\s*(\d+)\s*</(?:\w+:)?nProt>`)
	reChNFe   = regexp.MustCompile(`<(?:\w+:)?chNFe>\s*(\d{44})\s*</(?:\w+:)?chNFe>`)
)

func extrairPorRegex(corpo []byte) (*Retorno, bool) {
	ultimo := func(re *regexp.Regexp) string {
		ms := re.FindAllSubmatch(corpo, -1)
		if len(ms) == 0 {
			return ""
		}
		return string(bytes.TrimSpace(ms[len(ms)-1][1]))
	}
	cStat := ultimo(reCStat)
	if cStat == "" {
		return nil, false
	}
	return &Retorno{
		CStat:     cStat,
		XMotivo:   ultimo(reXMotivo),
		Recibo:    ultimo(reNRec),
		Protocolo: ultimo(reNProt),
		Chave:     ultimo(reChNFe),
	}, true
}

func parseData(s string) time.Time {
	for _, f := range formatosData {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
