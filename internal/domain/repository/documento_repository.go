package repository

import (
	"context"
	"time"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
)

// FiltroDocumentos filtros de listado para la superficie de monitoreo.
type FiltroDocumentos struct {
	Estado     string
	IdSociedad string
	Desde      *time.Time
	Hasta      *time.Time
	Limit      int
	Offset     int
}

// DocumentoRepository define el puerto de persistencia de documentos fiscales.
type DocumentoRepository interface {
	Crear(ctx context.Context, doc *entity.DocumentoFiscal) error
	GetByID(ctx context.Context, id string) (*entity.DocumentoFiscal, error)
	GetByCDC(ctx context.Context, cdc string) (*entity.DocumentoFiscal, error)

	// ReclamarPendientes marca hasta limit documentos PENDIENTE como reclamados
	// por esta instancia y los devuelve. Usa SKIP LOCKED: dos instancias nunca
	// reclaman el mismo documento. Los documentos con reclamo vencido (proceso
	// caído) vuelven a ser elegibles.
	ReclamarPendientes(ctx context.Context, limit int) ([]*entity.DocumentoFiscal, error)

	// Actualizar persiste estado, CDC, XMLs, intentos y campos de resultado.
	Actualizar(ctx context.Context, doc *entity.DocumentoFiscal) error

	// ExisteCDC indica si otro documento ya tiene asignado ese CDC.
	ExisteCDC(ctx context.Context, cdc string) (bool, error)

	// ListarEnviadosSinResolver devuelve documentos que quedaron en ENVIADO
	// de ciclos anteriores, para reconciliar su estado por consulta.
	ListarEnviadosSinResolver(ctx context.Context, limit int) ([]*entity.DocumentoFiscal, error)

	// Listar consulta de solo lectura para el monitor.
	Listar(ctx context.Context, filtro FiltroDocumentos) ([]*entity.DocumentoFiscal, error)
}
