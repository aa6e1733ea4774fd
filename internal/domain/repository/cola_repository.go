package repository

import (
	"context"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
)

// ConfiguracionRepository lee la configuración operativa de la cola.
// Se consulta al inicio de cada ciclo; un ciclo en curso no ve cambios.
type ConfiguracionRepository interface {
	GetConfiguracion(ctx context.Context) (*entity.ConfiguracionCola, error)
}

// EjecucionRepository persiste el historial de ciclos de la cola.
type EjecucionRepository interface {
	Registrar(ctx context.Context, ejecucion *entity.EjecucionCola) error
	ListarUltimas(ctx context.Context, limit int) ([]*entity.EjecucionCola, error)
}
