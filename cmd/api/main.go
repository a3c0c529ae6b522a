package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nexopdv/nfe-engine/internal/application/fiscal"
	"github.com/nexopdv/nfe-engine/internal/infrastructure/postgres"
	"github.com/nexopdv/nfe-engine/internal/infrastructure/sefaz"
	"github.com/nexopdv/nfe-engine/internal/infrastructure/sefaz/signer"
	"github.com/nexopdv/nfe-engine/internal/infrastructure/storage"
	httpRouter "github.com/nexopdv/nfe-engine/internal/interfaces/http"
	"github.com/nexopdv/nfe-engine/pkg/config"
	"github.com/nexopdv/nfe-engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("carregar configuração: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("uf", cfg.NFe.UF).
		Str("ambiente", cfg.NFe.Ambiente).
		Msg("iniciando engine fiscal")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexão ao PostgreSQL")
	}
	defer pool.Close()

	notaRepo := postgres.NewNotaRepository(pool)
	empresaRepo := postgres.NewEmpresaRepository(pool)
	numeracaoRepo := postgres.NewNumeracaoRepository(pool)
	inutilizRepo := postgres.NewInutilizacaoRepository(pool)

	transmissor := sefaz.NewClient(sefaz.Config{
		UF:          cfg.NFe.UF,
		Ambiente:    cfg.NFe.Ambiente,
		Versao:      cfg.NFe.VersaoSchema,
		EndpointURL: cfg.NFe.EndpointURL,
		Timeout:     cfg.NFe.Timeout,
		Retry: sefaz.Backoff{
			BaseDelay:   cfg.NFe.RetryBaseDelay,
			Multiplier:  2,
			MaxAttempts: cfg.NFe.RetryMaxAttempts,
		},
	}, log.Zerolog())

	credenciais := signer.NewProvider(filepath.Dir(cfg.NFe.CertPath), cfg.NFe.CertPassword)
	artefatos := storage.NewFileStore(cfg.NFe.StoragePath)

	emissor := fiscal.NewEmissor(
		notaRepo, empresaRepo, numeracaoRepo,
		fiscal.NewMontador(),
		sefaz.NewXMLBuilder(cfg.NFe.VersaoSchema),
		signer.NewService(),
		credenciais,
		transmissor,
		artefatos,
		sefaz.AgendaPolling{
			InitialDelay: cfg.NFe.PollInitialDelay,
			Multiplier:   cfg.NFe.PollMultiplier,
			MaxAttempts:  cfg.NFe.PollMaxAttempts,
		},
		log,
	)
	processador := fiscal.NewProcessador(emissor, cfg.NFe.MaxConcurrent, log)
	eventos := fiscal.NewGestorEventos(
		notaRepo, inutilizRepo, transmissor, artefatos,
		fiscal.JanelaCancelamentoPadrao, log,
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Emissor:     emissor,
		Processador: processador,
		Eventos:     eventos,
		Notas:       notaRepo,
		Empresas:    empresaRepo,
		Transmissor: transmissor,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("sinal de desligamento recebido, encerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("encerramento do servidor")
	}

	log.Info().Msg("aplicação finalizada")
}
