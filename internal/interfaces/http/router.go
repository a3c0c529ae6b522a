package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nexopdv/nfe-engine/internal/application/fiscal"
	"github.com/nexopdv/nfe-engine/internal/domain/repository"
	"github.com/nexopdv/nfe-engine/internal/infrastructure/sefaz"
)

// RouterDeps dependências do router.
type RouterDeps struct {
	Emissor     *fiscal.Emissor
	Processador *fiscal.Processador
	Eventos     *fiscal.GestorEventos
	Notas       repository.NotaRepository
	Empresas    repository.EmpresaRepository
	Transmissor sefaz.Transmissor
}

// Router registra as rotas da API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	handler := NewNFeHandler(deps.Emissor, deps.Processador, deps.Eventos, deps.Notas, deps.Empresas)

	empresas := api.Group("/empresas/:empresaId")
	empresas.Post("/notas", handler.Emitir)
	empresas.Post("/notas/lote", handler.EmitirLote)
	empresas.Post("/inutilizacoes", handler.Inutilizar)

	notas := api.Group("/notas")
	notas.Get("/chave/:chave", handler.ConsultarPorChave)
	notas.Get("/:id", handler.Consultar)
	notas.Post("/:id/cancelamento", handler.Cancelar)
	notas.Post("/:id/carta-correcao", handler.CartaCorrecao)

	// disponibilidade do autorizador
	api.Get("/sefaz/status", func(c *fiber.Ctx) error {
		ret, err := deps.Transmissor.StatusServico(c.Context())
		if err != nil {
			return responderErro(c, err)
		}
		return c.JSON(fiber.Map{"cstat": ret.CStat, "xmotivo": ret.XMotivo})
	})
}
