package entity

import "time"

// Regimes tributários (tag CRT do emitente).
const (
	RegimeSimplesNacional = "1" // Simples Nacional (usa CSOSN nos itens)
	RegimeSimplesExcesso  = "2" // Simples Nacional com excesso de sublimite
	RegimeNormal          = "3" // Regime Normal (usa CST nos itens)
)

// Empresa perfil fiscal do emitente (tenant). Consumido somente leitura
// na montagem do documento; a manutenção do cadastro é colaborador externo.
type Empresa struct {
	ID              string
	RazaoSocial     string
	NomeFantasia    string
	CNPJ            string
	IE              string // Inscrição Estadual
	Regime          string // CRT: "1", "2" ou "3"
	UF              string
	CodigoMunicipio string // Código IBGE do município
	Municipio       string
	Logradouro      string
	NumeroEndereco  string
	Bairro          string
	CEP             string
	Ambiente        string // "1" produção, "2" homologação (seletor por tenant)
	CertRef         string // Referência da credencial no provedor (caminho/alias do .pfx)
	CriadaEm        time.Time
	AtualizadaEm    time.Time
}

// Destinatario parte destinatária da nota. No modelo 65 (NFC-e) pode ser
// consumidor não identificado (todos os campos vazios).
type Destinatario struct {
	Documento       string // CNPJ (14) ou CPF (11)
	RazaoSocial     string
	UF              string
	CodigoMunicipio string
	Municipio       string
	Logradouro      string
	NumeroEndereco  string
	Bairro          string
	CEP             string
	IndIEDest       string // "1" contribuinte, "2" isento, "9" não contribuinte
}

// Identificado informa se o destinatário foi informado (obrigatório no modelo 55).
func (d *Destinatario) Identificado() bool {
	return d != nil && d.Documento != ""
}
