package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/repository"
)

var _ repository.ConfiguracionRepository = (*ColaRepo)(nil)
var _ repository.EjecucionRepository = (*ColaRepo)(nil)

// ColaRepo configuración e historial de ejecuciones de la cola sobre PostgreSQL.
type ColaRepo struct {
	q Querier
}

// NewColaRepository construye el adaptador. Pasar pool o tx (Querier).
func NewColaRepository(q Querier) *ColaRepo {
	return &ColaRepo{q: q}
}

// GetConfiguracion lee la fila única de configuración. Si no existe devuelve
// la configuración por defecto con la cola activa.
func (r *ColaRepo) GetConfiguracion(ctx context.Context) (*entity.ConfiguracionCola, error) {
	query := `
		SELECT activa, intervalo_minutos, max_documentos_por_ciclo,
		       max_reintentos, workers, actualizado_en
		FROM configuracion_cola
		ORDER BY actualizado_en DESC
		LIMIT 1`
	var cfg entity.ConfiguracionCola
	err := r.q.QueryRow(ctx, query).Scan(
		&cfg.Activa, &cfg.IntervaloMinutos, &cfg.MaxDocumentosPorCiclo,
		&cfg.MaxReintentos, &cfg.Workers, &cfg.ActualizadoEn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			cfg = entity.ConfiguracionCola{Activa: true}
			cfg.Normalizar()
			return &cfg, nil
		}
		return nil, fmt.Errorf("get configuracion de cola: %w", err)
	}
	cfg.Normalizar()
	return &cfg, nil
}

// Registrar persiste el resumen de un ciclo terminado.
func (r *ColaRepo) Registrar(ctx context.Context, ejecucion *entity.EjecucionCola) error {
	if ejecucion.ID == "" {
		ejecucion.ID = uuid.New().String()
	}
	query := `
		INSERT INTO ejecuciones_cola (
			id, inicio, fin, procesados, aceptados, rechazados,
			reintentados, errores, notas
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		ejecucion.ID, ejecucion.Inicio, ejecucion.Fin,
		ejecucion.Procesados, ejecucion.Aceptados, ejecucion.Rechazados,
		ejecucion.Reintentados, ejecucion.Errores, nullIfEmpty(ejecucion.Notas),
	)
	if err != nil {
		return fmt.Errorf("registrar ejecucion: %w", err)
	}
	return nil
}

// ListarUltimas devuelve las ejecuciones más recientes, de la más nueva a la más vieja.
func (r *ColaRepo) ListarUltimas(ctx context.Context, limit int) ([]*entity.EjecucionCola, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	query := `
		SELECT id, inicio, fin, procesados, aceptados, rechazados,
		       reintentados, errores, COALESCE(notas, '')
		FROM ejecuciones_cola
		ORDER BY inicio DESC
		LIMIT $1`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listar ejecuciones: %w", err)
	}
	defer rows.Close()
	var list []*entity.EjecucionCola
	for rows.Next() {
		var e entity.EjecucionCola
		err := rows.Scan(
			&e.ID, &e.Inicio, &e.Fin, &e.Procesados, &e.Aceptados,
			&e.Rechazados, &e.Reintentados, &e.Errores, &e.Notas,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ejecucion: %w", err)
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
