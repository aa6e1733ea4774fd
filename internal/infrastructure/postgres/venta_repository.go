package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/repository"
)

var _ repository.VentaRepository = (*VentaRepo)(nil)

// VentaRepo lectura de ventas confirmadas sobre PostgreSQL. La cola solo lee:
// el flujo de ventas es dueño de estas tablas.
type VentaRepo struct {
	q Querier
}

// NewVentaRepository construye el adaptador. Pasar pool o tx (Querier).
func NewVentaRepository(q Querier) *VentaRepo {
	return &VentaRepo{q: q}
}

// GetSnapshot arma la vista de solo lectura de una venta o nota de crédito:
// cabecera con totales confirmados, receptor congelado al momento de la
// confirmación y líneas con los precios ya calculados.
func (r *VentaRepo) GetSnapshot(ctx context.Context, idVenta string) (*entity.VentaSnapshot, error) {
	query := `
		SELECT v.id, v.fecha_emision, v.moneda_iso, COALESCE(v.cambio_del_dia, 0),
		       v.total, v.total_iva, COALESCE(v.cdc_venta_asociada, ''),
		       v.receptor_naturaleza, v.receptor_razon_social,
		       COALESCE(v.receptor_ruc, ''), COALESCE(v.receptor_dv, 0),
		       v.receptor_tipo_documento, COALESCE(v.receptor_numero_documento, ''),
		       COALESCE(v.receptor_codigo_pais, 'PRY'), COALESCE(v.receptor_desc_pais, 'Paraguay'),
		       COALESCE(v.receptor_direccion, ''), COALESCE(v.receptor_numero_casa, ''),
		       COALESCE(v.receptor_ciudad, 0), COALESCE(v.receptor_telefono, ''),
		       COALESCE(v.receptor_codigo_cliente, '')
		FROM ventas v WHERE v.id = $1`
	var snap entity.VentaSnapshot
	err := r.q.QueryRow(ctx, query, idVenta).Scan(
		&snap.IdVenta, &snap.FechaEmision, &snap.MonedaISO, &snap.CambioDelDia,
		&snap.Total, &snap.TotalIva, &snap.CdcVentaAsociada,
		&snap.Receptor.Naturaleza, &snap.Receptor.RazonSocial,
		&snap.Receptor.RUC, &snap.Receptor.Dv,
		&snap.Receptor.TipoDocumentoIdentidad, &snap.Receptor.NumeroDocumento,
		&snap.Receptor.CodigoPais, &snap.Receptor.DescPais,
		&snap.Receptor.Direccion, &snap.Receptor.NumeroCasa,
		&snap.Receptor.Ciudad, &snap.Receptor.Telefono,
		&snap.Receptor.CodigoCliente,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get venta: %w", err)
	}

	items, err := r.items(ctx, idVenta)
	if err != nil {
		return nil, err
	}
	snap.Items = items
	return &snap, nil
}

func (r *VentaRepo) items(ctx context.Context, idVenta string) ([]entity.VentaItem, error) {
	query := `
		SELECT codigo_producto, descripcion, unidad_medida,
		       cantidad, precio_unitario, tasa_iva, subtotal
		FROM venta_items
		WHERE id_venta = $1
		ORDER BY orden`
	rows, err := r.q.Query(ctx, query, idVenta)
	if err != nil {
		return nil, fmt.Errorf("listar items de venta: %w", err)
	}
	defer rows.Close()
	var list []entity.VentaItem
	for rows.Next() {
		var it entity.VentaItem
		err := rows.Scan(
			&it.CodigoProducto, &it.Descripcion, &it.UnidadMedida,
			&it.Cantidad, &it.PrecioUnitario, &it.TasaIva, &it.Subtotal,
		)
		if err != nil {
			return nil, fmt.Errorf("scan item de venta: %w", err)
		}
		list = append(list, it)
	}
	return list, rows.Err()
}
