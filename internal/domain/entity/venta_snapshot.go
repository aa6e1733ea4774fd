package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceptorSnapshot datos del receptor tal como quedaron al confirmar la venta.
type ReceptorSnapshot struct {
	Naturaleza             int // 1=Contribuyente, 2=No contribuyente
	RazonSocial            string
	RUC                    string // solo contribuyentes
	Dv                     int
	TipoDocumentoIdentidad *int // iTipIDRec; nil => Innominado
	NumeroDocumento        string
	CodigoPais             string // "PRY" por defecto
	DescPais               string
	Direccion              string
	NumeroCasa             string
	Ciudad                 int
	Telefono               string
	CodigoCliente          string
}

// VentaItem línea de la venta para el documento electrónico.
type VentaItem struct {
	CodigoProducto string
	Descripcion    string
	UnidadMedida   string // código SIFEN (77=unidad, 83=kg, ...)
	Cantidad       decimal.Decimal
	PrecioUnitario decimal.Decimal
	TasaIva        decimal.Decimal // 0, 5 o 10
	Subtotal       decimal.Decimal
}

// VentaSnapshot es la vista de solo lectura de la venta/nota de crédito origen.
// La cola no recalcula precios ni impuestos: consume los totales confirmados.
type VentaSnapshot struct {
	IdVenta      string
	FechaEmision time.Time
	MonedaISO    string          // "PYG" por defecto
	CambioDelDia decimal.Decimal // > 0 obligatorio si la moneda no es PYG
	Total        decimal.Decimal
	TotalIva     decimal.Decimal
	Items        []VentaItem
	Receptor     ReceptorSnapshot

	// Solo notas de crédito: CDC de la venta asociada (obligatorio).
	CdcVentaAsociada string
}
