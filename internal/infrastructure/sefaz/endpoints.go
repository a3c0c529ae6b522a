package sefaz

// Serviços da versão 4.00 do protocolo. Cada operação do cliente mapeia para
// um destes nomes, que por sua vez resolve a URL do autorizador da UF.
const (
	ServicoAutorizacao    = "NFeAutorizacao4"
	ServicoRetAutorizacao = "NFeRetAutorizacao4"
	ServicoConsulta       = "NFeConsultaProtocolo4"
	ServicoEvento         = "NFeRecepcaoEvento4"
	ServicoInutilizacao   = "NFeInutilizacao4"
	ServicoStatus         = "NFeStatusServico4"
)

// Ambientes SEFAZ (tpAmb).
const (
	AmbienteProducao    = "1"
	AmbienteHomologacao = "2"
)

const nsPortalFiscal = "http://www.portalfiscal.inf.br/nfe"

// endpointsSP autorizador próprio de São Paulo.
var endpointsSP = map[string]map[string]string{
	AmbienteProducao: {
		ServicoAutorizacao:    "https://nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx",
		ServicoRetAutorizacao: "https://nfe.fazenda.sp.gov.br/ws/nferetautorizacao4.asmx",
		ServicoConsulta:       "https://nfe.fazenda.sp.gov.br/ws/nfeconsultaprotocolo4.asmx",
		ServicoEvento:         "https://nfe.fazenda.sp.gov.br/ws/nferecepcaoevento4.asmx",
		ServicoInutilizacao:   "https://nfe.fazenda.sp.gov.br/ws/nfeinutilizacao4.asmx",
		ServicoStatus:         "https://nfe.fazenda.sp.gov.br/ws/nfestatusservico4.asmx",
	},
	AmbienteHomologacao: {
		ServicoAutorizacao:    "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx",
		ServicoRetAutorizacao: "https://homologacao.nfe.fazenda.sp.gov.br/ws/nferetautorizacao4.asmx",
		ServicoConsulta:       "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeconsultaprotocolo4.asmx",
		ServicoEvento:         "https://homologacao.nfe.fazenda.sp.gov.br/ws/nferecepcaoevento4.asmx",
		ServicoInutilizacao:   "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeinutilizacao4.asmx",
		ServicoStatus:         "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfestatusservico4.asmx",
	},
}

// endpointsSVRS SEFAZ Virtual do Rio Grande do Sul, que atende a maioria das
// UFs sem autorizador próprio. Serve de fallback para qualquer UF fora das
// tabelas dedicadas.
var endpointsSVRS = map[string]map[string]string{
	AmbienteProducao: {
		ServicoAutorizacao:    "https://nfe.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		ServicoRetAutorizacao: "https://nfe.svrs.rs.gov.br/ws/NfeRetAutorizacao/NFeRetAutorizacao4.asmx",
		ServicoConsulta:       "https://nfe.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx",
		ServicoEvento:         "https://nfe.svrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx",
		ServicoInutilizacao:   "https://nfe.svrs.rs.gov.br/ws/nfeinutilizacao/nfeinutilizacao4.asmx",
		ServicoStatus:         "https://nfe.svrs.rs.gov.br/ws/NfeStatusServico/NfeStatusServico4.asmx",
	},
	AmbienteHomologacao: {
		ServicoAutorizacao:    "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		ServicoRetAutorizacao: "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeRetAutorizacao/NFeRetAutorizacao4.asmx",
		ServicoConsulta:       "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx",
		ServicoEvento:         "https://nfe-homologacao.svrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx",
		ServicoInutilizacao:   "https://nfe-homologacao.svrs.rs.gov.br/ws/nfeinutilizacao/nfeinutilizacao4.asmx",
		ServicoStatus:         "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeStatusServico/NfeStatusServico4.asmx",
	},
}

// ufsComAutorizadorProprio tabela parcial: UFs aqui usam seu próprio
// autorizador; as demais caem na SVRS.
var ufsComAutorizadorProprio = map[string]map[string]map[string]string{
	"SP": endpointsSP,
}

// resolverEndpoint devolve a URL do serviço para a UF e ambiente. Um override
// de configuração (endpoint fixo, útil em homologação local) vence a tabela.
func resolverEndpoint(override, uf, ambiente, servico string) string {
	if override != "" {
		return override
	}
	if tabela, ok := ufsComAutorizadorProprio[uf]; ok {
		if url, ok := tabela[ambiente][servico]; ok {
			return url
		}
	}
	return endpointsSVRS[ambiente][servico]
}
