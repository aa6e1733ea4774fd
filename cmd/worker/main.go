package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/tu-usuario/facturacion-sifen/internal/application/queue"
	infrapdf "github.com/tu-usuario/facturacion-sifen/internal/infrastructure/pdf"
	"github.com/tu-usuario/facturacion-sifen/internal/infrastructure/postgres"
	infrasifen "github.com/tu-usuario/facturacion-sifen/internal/infrastructure/sifen"
	"github.com/tu-usuario/facturacion-sifen/internal/infrastructure/sifen/signer"
	httpRouter "github.com/tu-usuario/facturacion-sifen/internal/interfaces/http"
	"github.com/tu-usuario/facturacion-sifen/pkg/config"
	"github.com/tu-usuario/facturacion-sifen/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("ambiente_sifen", cfg.Sifen.Ambiente).
		Msg("iniciando worker de facturación electrónica")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	docRepo := postgres.NewDocumentoRepository(pool)
	ventaRepo := postgres.NewVentaRepository(pool)
	colaRepo := postgres.NewColaRepository(pool)

	// Las sociedades sin certificado o CSC propios usan los globales de la
	// configuración.
	sociedadRepo := infrasifen.NewSociedadesConCredenciales(
		postgres.NewSociedadRepository(pool),
		infrasifen.CredencialesPorDefecto{
			PathCertificadoP12:     cfg.Sifen.CertPath,
			PasswordCertificadoP12: cfg.Sifen.CertPassword,
			IdCsc:                  cfg.Sifen.IdCsc,
			Csc:                    cfg.Sifen.Csc,
		},
	)

	// Pipeline SIFEN: construcción del rDE, firma xmldsig y transporte SOAP.
	constructor := infrasifen.NewBuilderService(docRepo)
	firmador := signer.NewService()
	transporte := infrasifen.NewSoapClient(cfg.Sifen.TimeoutHTTP)

	manager := queue.NewManager(
		docRepo, ventaRepo, sociedadRepo, colaRepo, colaRepo,
		constructor, firmador, transporte, log,
	)

	// Driver periódico de la cola: corre hasta recibir la señal de apagado.
	colaTerminada := make(chan struct{})
	go func() {
		defer close(colaTerminada)
		if err := manager.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("driver de la cola finalizado con error")
		}
	}()

	// API de monitoreo
	monitor := httpRouter.NewMonitorHandler(
		docRepo, ventaRepo, sociedadRepo, colaRepo,
		manager, transporte, infrapdf.NewKudeGenerator(),
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Monitor SIFEN",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Monitor:   monitor,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("señal de apagado recibida, cerrando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	// Esperar a que el ciclo en curso termine el documento que procesaba.
	select {
	case <-colaTerminada:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("la cola no terminó a tiempo, apagando igual")
	}

	log.Info().Msg("worker detenido")
}
