package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/facturacion-sifen/internal/application/dto"
	"github.com/tu-usuario/facturacion-sifen/internal/application/queue"
	"github.com/tu-usuario/facturacion-sifen/internal/domain"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/repository"
	"github.com/tu-usuario/facturacion-sifen/internal/infrastructure/pdf"
	infrasifen "github.com/tu-usuario/facturacion-sifen/internal/infrastructure/sifen"
	pkgsifen "github.com/tu-usuario/facturacion-sifen/pkg/sifen"
)

// MonitorHandler expone la superficie de monitoreo de la cola SIFEN:
// proyecciones de solo lectura más las acciones de operador.
type MonitorHandler struct {
	docRepo       repository.DocumentoRepository
	ventaRepo     repository.VentaRepository
	sociedadRepo  repository.SociedadRepository
	ejecucionRepo repository.EjecucionRepository
	manager       *queue.Manager
	transporte    infrasifen.TransporteSifen
	kude          *pdf.KudeGenerator
}

// NewMonitorHandler construye el handler.
func NewMonitorHandler(
	docRepo repository.DocumentoRepository,
	ventaRepo repository.VentaRepository,
	sociedadRepo repository.SociedadRepository,
	ejecucionRepo repository.EjecucionRepository,
	manager *queue.Manager,
	transporte infrasifen.TransporteSifen,
	kude *pdf.KudeGenerator,
) *MonitorHandler {
	return &MonitorHandler{
		docRepo:       docRepo,
		ventaRepo:     ventaRepo,
		sociedadRepo:  sociedadRepo,
		ejecucionRepo: ejecucionRepo,
		manager:       manager,
		transporte:    transporte,
		kude:          kude,
	}
}

// ListarEjecuciones devuelve el historial de ciclos, del más reciente al más viejo.
// GET /api/cola/ejecuciones?limit=20
func (h *MonitorHandler) ListarEjecuciones(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	ejecuciones, err := h.ejecucionRepo.ListarUltimas(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := make([]dto.EjecucionResponse, 0, len(ejecuciones))
	for _, e := range ejecuciones {
		out = append(out, dto.NewEjecucionResponse(e))
	}
	return c.JSON(out)
}

// EjecutarCiclo dispara un ciclo de la cola bajo demanda.
// POST /api/cola/ciclo
func (h *MonitorHandler) EjecutarCiclo(c *fiber.Ctx) error {
	ejecucion, err := h.manager.EjecutarCiclo(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(dto.NewEjecucionResponse(ejecucion))
}

// ListarDocumentos lista documentos con filtros de estado, sociedad y fechas.
// GET /api/documentos?estado=PENDIENTE&sociedad=...&desde=2026-08-01&hasta=...&limit=50&offset=0
func (h *MonitorHandler) ListarDocumentos(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()

	filtro := repository.FiltroDocumentos{
		Estado:     c.Query("estado"),
		IdSociedad: c.Query("sociedad"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	if desde := c.Query("desde"); desde != "" {
		t, err := time.Parse("2006-01-02", desde)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "desde: formato esperado AAAA-MM-DD"})
		}
		filtro.Desde = &t
	}
	if hasta := c.Query("hasta"); hasta != "" {
		t, err := time.Parse("2006-01-02", hasta)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "hasta: formato esperado AAAA-MM-DD"})
		}
		fin := t.Add(24*time.Hour - time.Nanosecond)
		filtro.Hasta = &fin
	}

	docs, err := h.docRepo.Listar(c.Context(), filtro)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := make([]dto.DocumentoResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, dto.NewDocumentoResponse(d))
	}
	return c.JSON(out)
}

// GetDocumento devuelve el detalle completo de un documento, XMLs incluidos.
// GET /api/documentos/:id
func (h *MonitorHandler) GetDocumento(c *fiber.Ctx) error {
	doc, err := h.docRepo.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if doc == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "documento no encontrado"})
	}
	return c.JSON(dto.NewDocumentoDetalleResponse(doc))
}

// Reencolar acción de operador: resetea intentos y devuelve el documento a la cola.
// POST /api/documentos/:id/reencolar
func (h *MonitorHandler) Reencolar(c *fiber.Ctx) error {
	err := h.manager.Reencolar(c.Context(), c.Params("id"))
	if err != nil {
		return h.errorDeAccion(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Cancelar acción de operador: lleva un documento no terminal a CANCELADO.
// POST /api/documentos/:id/cancelar
func (h *MonitorHandler) Cancelar(c *fiber.Ctx) error {
	err := h.manager.Cancelar(c.Context(), c.Params("id"))
	if err != nil {
		return h.errorDeAccion(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Kude genera y sirve el PDF del KuDE de un documento.
// GET /api/documentos/:id/kude
func (h *MonitorHandler) Kude(c *fiber.Ctx) error {
	doc, err := h.docRepo.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if doc == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "documento no encontrado"})
	}
	venta, err := h.ventaRepo.GetSnapshot(c.Context(), doc.IdVenta)
	if err != nil || venta == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "venta de origen no encontrada"})
	}
	sociedad, err := h.sociedadRepo.GetByID(c.Context(), doc.IdSociedad)
	if err != nil || sociedad == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "sociedad no encontrada"})
	}

	bytes, err := h.kude.GenerarKude(c.Context(), doc, venta, sociedad)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	c.Set("Content-Type", "application/pdf")
	c.Set("Content-Disposition", `inline; filename="kude-`+doc.CDC+`.pdf"`)
	return c.Send(bytes)
}

// QrPng sirve el QR de consulta como imagen PNG.
// GET /api/documentos/:id/qr.png
func (h *MonitorHandler) QrPng(c *fiber.Ctx) error {
	doc, err := h.docRepo.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if doc == nil || doc.UrlQr == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "documento sin QR disponible"})
	}
	png, err := pdf.GenerarQrPng(doc.UrlQr, c.QueryInt("px", 256))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	c.Set("Content-Type", "image/png")
	return c.Send(png)
}

// ConsultarRuc verifica un RUC contra el web service de SIFEN.
// GET /api/sociedades/:id/ruc/:ruc
func (h *MonitorHandler) ConsultarRuc(c *fiber.Ctx) error {
	ruc := c.Params("ruc")
	if !pkgsifen.FormatoRucValido(ruc) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "RUC con formato inválido"})
	}
	sociedad, err := h.sociedadRepo.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if sociedad == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "sociedad no encontrada"})
	}
	consulta, err := h.transporte.ConsultarRuc(c.Context(), ruc, sociedad)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "SIFEN_UNAVAILABLE", Message: err.Error()})
	}
	return c.JSON(dto.ConsultaRucResponse{
		RUC:         ruc,
		Existe:      consulta.Existe,
		RazonSocial: consulta.RazonSocial,
		Estado:      consulta.Estado,
		Codigo:      consulta.Codigo,
		Mensaje:     consulta.Mensaje,
	})
}

func (h *MonitorHandler) errorDeAccion(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNoEncontrado):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "documento no encontrado"})
	case errors.Is(err, domain.ErrEstadoInvalido):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "INVALID_STATE", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
