package repository

import (
	"context"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
)

// SociedadRepository acceso de lectura a los datos del emisor.
type SociedadRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Sociedad, error)
}

// VentaRepository expone la venta origen como snapshot de solo lectura.
// La cola nunca modifica ventas.
type VentaRepository interface {
	GetSnapshot(ctx context.Context, idVenta string) (*entity.VentaSnapshot, error)
}
