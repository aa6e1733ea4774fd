package sifen

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/pkg/sifen"
)

func ventaValida() *entity.VentaSnapshot {
	// Precio con IVA 10% incluido: 110.000 Gs => IVA 10.000 Gs.
	return &entity.VentaSnapshot{
		IdVenta:   "V-0001",
		MonedaISO: "PYG",
		Total:     decimal.NewFromInt(110000),
		TotalIva:  decimal.NewFromInt(10000),
		Items: []entity.VentaItem{
			{
				Descripcion:    "Servicio de consultoría",
				Cantidad:       decimal.NewFromInt(1),
				PrecioUnitario: decimal.NewFromInt(110000),
				TasaIva:        decimal.NewFromInt(10),
				Subtotal:       decimal.NewFromInt(110000),
			},
		},
		Receptor: entity.ReceptorSnapshot{
			Naturaleza:  sifen.NaturalezaContribuyente,
			RazonSocial: "Empresa Receptora S.A.",
			RUC:         "80017425",
			Dv:          9,
		},
	}
}

func TestValidarVenta_OK(t *testing.T) {
	err := ValidarVenta(ventaValida(), sifen.TipoDocFactura)
	require.NoError(t, err)
}

func TestValidarVenta_Nula(t *testing.T) {
	err := ValidarVenta(nil, sifen.TipoDocFactura)
	assert.ErrorIs(t, err, ErrVentaInvalida)
}

func TestValidarVenta_SinItems(t *testing.T) {
	v := ventaValida()
	v.Items = nil
	err := ValidarVenta(v, sifen.TipoDocFactura)
	assert.ErrorIs(t, err, ErrVentaInvalida)
	assert.Contains(t, err.Error(), "al menos un ítem")
}

func TestValidarVenta_TotalesNoCuadran(t *testing.T) {
	v := ventaValida()
	v.Total = decimal.NewFromInt(120000)
	err := ValidarVenta(v, sifen.TipoDocFactura)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no coincide")
}

func TestValidarVenta_IvaNoCuadra(t *testing.T) {
	v := ventaValida()
	v.TotalIva = decimal.NewFromInt(9999)
	err := ValidarVenta(v, sifen.TipoDocFactura)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IVA")
}

func TestValidarVenta_ContribuyenteConDvInvalido(t *testing.T) {
	v := ventaValida()
	v.Receptor.Dv = 3
	err := ValidarVenta(v, sifen.TipoDocFactura)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUC del receptor")
}

func TestValidarVenta_NoContribuyenteSinDocumentoEsInnominado(t *testing.T) {
	v := ventaValida()
	v.Receptor = entity.ReceptorSnapshot{
		Naturaleza:  sifen.NaturalezaNoContribuyente,
		RazonSocial: "Cliente Ocasional",
	}
	err := ValidarVenta(v, sifen.TipoDocFactura)
	assert.NoError(t, err)
}

func TestValidarVenta_TipoIdentidadFueraDeCatalogo(t *testing.T) {
	tipo := 7
	v := ventaValida()
	v.Receptor = entity.ReceptorSnapshot{
		Naturaleza:             sifen.NaturalezaNoContribuyente,
		RazonSocial:            "Cliente Ocasional",
		TipoDocumentoIdentidad: &tipo,
		NumeroDocumento:        "1234567",
	}
	err := ValidarVenta(v, sifen.TipoDocFactura)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuera de catálogo")
}

func TestValidarVenta_NotaCreditoSinCdcAsociado(t *testing.T) {
	v := ventaValida()
	err := ValidarVenta(v, sifen.TipoDocNotaCredito)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venta asociada")
}

func TestValidarVenta_MonedaExtranjeraSinCambio(t *testing.T) {
	v := ventaValida()
	v.MonedaISO = "USD"
	err := ValidarVenta(v, sifen.TipoDocFactura)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tipo de cambio")
}
