package http

import (
	"github.com/gofiber/fiber/v2"
)

// RouterDeps dependencias para el router del monitor.
type RouterDeps struct {
	Monitor   *MonitorHandler
	JWTSecret string
}

// Router registra las rutas de la API de monitoreo. Las proyecciones de
// lectura requieren cualquier token válido; las acciones de operador
// (reencolar, cancelar, ciclo manual) exigen rol admin u operador.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	// Historial de ciclos de la cola
	cola := api.Group("/cola")
	cola.Get("/ejecuciones", deps.Monitor.ListarEjecuciones)
	cola.Post("/ciclo", RequireRol(RolAdmin, RolOperador), deps.Monitor.EjecutarCiclo)

	// Documentos fiscales
	documentos := api.Group("/documentos")
	documentos.Get("/", deps.Monitor.ListarDocumentos)
	documentos.Get("/:id", deps.Monitor.GetDocumento)
	documentos.Get("/:id/kude", deps.Monitor.Kude)
	documentos.Get("/:id/qr.png", deps.Monitor.QrPng)
	documentos.Post("/:id/reencolar", RequireRol(RolAdmin, RolOperador), deps.Monitor.Reencolar)
	documentos.Post("/:id/cancelar", RequireRol(RolAdmin, RolOperador), deps.Monitor.Cancelar)

	// Consulta de RUC contra SIFEN
	api.Get("/sociedades/:id/ruc/:ruc", deps.Monitor.ConsultarRuc)
}
