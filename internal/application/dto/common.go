package dto

// ErrorResponse corpo padrão de erro da API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Campos específicos de rejeição fiscal; vazios nos demais erros.
	CStat     string `json:"cstat,omitempty"`
	XMotivo   string `json:"xmotivo,omitempty"`
	Descricao string `json:"descricao,omitempty"`
	Recibo    string `json:"recibo,omitempty"`
}
