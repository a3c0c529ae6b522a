package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nexopdv/nfe-engine/internal/application/dto"
	"github.com/nexopdv/nfe-engine/internal/application/fiscal"
	"github.com/nexopdv/nfe-engine/internal/domain"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
	"github.com/nexopdv/nfe-engine/pkg/nfe"
)

// NFeHandler trata as requisições HTTP do ciclo de vida fiscal.
type NFeHandler struct {
	emissor     *fiscal.Emissor
	processador *fiscal.Processador
	eventos     *fiscal.GestorEventos
	notas       repository.NotaRepository
	empresas    repository.EmpresaRepository
}

func NewNFeHandler(
	emissor *fiscal.Emissor,
	processador *fiscal.Processador,
	eventos *fiscal.GestorEventos,
	notas repository.NotaRepository,
	empresas repository.EmpresaRepository,
) *NFeHandler {
	return &NFeHandler{
		emissor:     emissor,
		processador: processador,
		eventos:     eventos,
		notas:       notas,
		empresas:    empresas,
	}
}

// Emitir monta, assina, transmite e acompanha a autorização de uma nota.
// POST /api/empresas/:empresaId/notas
func (h *NFeHandler) Emitir(c *fiber.Ctx) error {
	empresaID := c.Params("empresaId")
	if empresaID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "empresaId obrigatório"})
	}
	var req dto.EmitirNotaRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	nota, err := h.emissor.Emitir(c.Context(), empresaID, req.ToEntrada())
	if err != nil {
		// rejeição e timeout ainda carregam a nota persistida; o corpo de
		// erro leva o literal da SEFAZ e o chamador pode consultar depois
		return responderErro(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromNota(nota))
}

// EmitirLote emite várias notas em paralelo; cada posição tem desfecho próprio
// e o HTTP devolve 207 quando há mistura de sucesso e falha.
// POST /api/empresas/:empresaId/notas/lote
func (h *NFeHandler) EmitirLote(c *fiber.Ctx) error {
	empresaID := c.Params("empresaId")
	if empresaID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "empresaId obrigatório"})
	}
	var req dto.EmitirLoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	if len(req.Notas) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "o lote precisa de ao menos uma nota"})
	}

	entradas := make([]fiscal.EntradaNota, len(req.Notas))
	for i := range req.Notas {
		entradas[i] = req.Notas[i].ToEntrada()
	}
	resp := dto.FromResultados(h.processador.EmitirLote(c.Context(), empresaID, entradas))

	status := fiber.StatusCreated
	switch {
	case resp.Falhas == resp.Total:
		status = fiber.StatusUnprocessableEntity
	case resp.Falhas > 0:
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(resp)
}

// Consultar devolve a nota persistida com a trilha de eventos.
// GET /api/notas/:id
func (h *NFeHandler) Consultar(c *fiber.Ctx) error {
	nota, err := h.notas.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "nota não encontrada"})
	}
	return c.JSON(dto.FromNota(nota))
}

// ConsultarPorChave devolve a nota persistida pela chave de acesso.
// GET /api/notas/chave/:chave
func (h *NFeHandler) ConsultarPorChave(c *fiber.Ctx) error {
	nota, err := h.notas.GetByChave(c.Context(), c.Params("chave"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "nota não encontrada"})
	}
	return c.JSON(dto.FromNota(nota))
}

// Cancelar registra o evento de cancelamento de uma nota autorizada.
// POST /api/notas/:id/cancelamento
func (h *NFeHandler) Cancelar(c *fiber.Ctx) error {
	var req dto.CancelarRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	ev, err := h.eventos.Cancelar(c.Context(), c.Params("id"), req.Justificativa)
	if err != nil {
		return responderErro(c, err)
	}
	return c.JSON(dto.EventoResponse{
		Tipo:      ev.Tipo,
		Sequencia: ev.Sequencia,
		Protocolo: ev.Protocolo,
		CStat:     ev.CStat,
		XMotivo:   ev.XMotivo,
		Registro:  ev.Registro,
	})
}

// CartaCorrecao registra uma CC-e contra uma nota autorizada.
// POST /api/notas/:id/carta-correcao
func (h *NFeHandler) CartaCorrecao(c *fiber.Ctx) error {
	var req dto.CartaCorrecaoRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	ev, err := h.eventos.CartaCorrecao(c.Context(), c.Params("id"), req.Texto)
	if err != nil {
		return responderErro(c, err)
	}
	return c.JSON(dto.EventoResponse{
		Tipo:      ev.Tipo,
		Sequencia: ev.Sequencia,
		Protocolo: ev.Protocolo,
		CStat:     ev.CStat,
		XMotivo:   ev.XMotivo,
		Registro:  ev.Registro,
	})
}

// Inutilizar declara uma faixa de numeração nunca emitida.
// POST /api/empresas/:empresaId/inutilizacoes
func (h *NFeHandler) Inutilizar(c *fiber.Ctx) error {
	var req dto.InutilizarRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	emp, err := h.empresas.GetByID(c.Context(), c.Params("empresaId"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "empresa não encontrada"})
	}
	inut, err := h.eventos.Inutilizar(c.Context(), emp, req.Modelo, req.Serie, req.NumeroInicial, req.NumeroFinal, req.Justificativa)
	if err != nil {
		return responderErro(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromInutilizacao(inut))
}

// responderErro mapeia a taxonomia de erros do domínio para status HTTP.
func responderErro(c *fiber.Ctx, err error) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: ve.Error()})
	}
	var tm *domain.TotalsMismatch
	if errors.As(err, &tm) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "TOTALS_MISMATCH", Message: tm.Error()})
	}
	var ce *domain.CredentialError
	if errors.As(err, &ce) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "CREDENTIAL", Message: ce.Error()})
	}
	var pr *domain.ProtocolRejection
	if errors.As(err, &pr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Code:      "SEFAZ_REJECTION",
			Message:   pr.Error(),
			CStat:     pr.CStat,
			XMotivo:   pr.XMotivo,
			Descricao: nfe.DescricaoStatus(pr.CStat),
		})
	}
	var de *domain.DuplicateEvent
	if errors.As(err, &de) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Code:    "DUPLICATE_EVENT",
			Message: de.Error(),
			CStat:   de.CStat,
			XMotivo: de.XMotivo,
		})
	}
	var at *domain.AuthorizationTimeout
	if errors.As(err, &at) {
		return c.Status(fiber.StatusGatewayTimeout).JSON(dto.ErrorResponse{
			Code:    "AUTHORIZATION_TIMEOUT",
			Message: at.Error(),
			Recibo:  at.Recibo,
		})
	}
	var te *domain.TransmissionError
	if errors.As(err, &te) {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "TRANSMISSION", Message: te.Error()})
	}
	var ie *domain.InterpretationError
	if errors.As(err, &ie) {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "INTERPRETATION", Message: ie.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}
