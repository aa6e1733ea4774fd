package sifen

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	pkgsifen "github.com/tu-usuario/facturacion-sifen/pkg/sifen"
)

// CDC que produce documentoDePrueba + sociedadDePrueba con el código de
// seguridad fijo 123456789.
const cdcEsperado = "01800174259001001000000112026081511234567897"

var fechaEmisionPrueba = time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)

func sociedadDePrueba() *entity.Sociedad {
	return &entity.Sociedad{
		ID:                "soc-1",
		Nombre:            "COMERCIAL DEL ESTE S.A.",
		RUC:               "80017425",
		Dv:                9,
		TipoContribuyente: "2",
		Direccion:         "Avda. Mcal. López 1234",
		NumeroCasa:        "1234",
		Departamento:      11,
		DescDepartamento:  "ALTO PARANA",
		Distrito:          145,
		DescDistrito:      "CIUDAD DEL ESTE",
		Ciudad:            3432,
		DescCiudad:        "CIUDAD DEL ESTE",
		Telefono:          "0615001234",
		Email:             "facturacion@comercialdeleste.com.py",
		Actividades: []entity.ActividadEconomica{
			{Codigo: "46510", Descripcion: "VENTA AL POR MAYOR DE EQUIPOS INFORMATICOS"},
		},
		Ambiente: pkgsifen.AmbienteTest,
		IdCsc:    "0001",
		Csc:      "ABCD0000000000000000000000000000",
	}
}

func ventaDePrueba() *entity.VentaSnapshot {
	return &entity.VentaSnapshot{
		IdVenta:      "venta-1",
		FechaEmision: fechaEmisionPrueba,
		MonedaISO:    "PYG",
		Total:        decimal.NewFromInt(550000),
		TotalIva:     decimal.NewFromInt(50000),
		Items: []entity.VentaItem{
			{
				CodigoProducto: "NB-001",
				Descripcion:    "Notebook 14 pulgadas",
				UnidadMedida:   "77",
				Cantidad:       decimal.NewFromInt(1),
				PrecioUnitario: decimal.NewFromInt(550000),
				TasaIva:        decimal.NewFromInt(10),
				Subtotal:       decimal.NewFromInt(550000),
			},
		},
		Receptor: entity.ReceptorSnapshot{
			Naturaleza:  pkgsifen.NaturalezaContribuyente,
			RazonSocial: "DISTRIBUIDORA GUARANI S.R.L.",
			RUC:         "80024242",
			Dv:          4,
			CodigoPais:  "PRY",
			DescPais:    "Paraguay",
		},
	}
}

func documentoDePrueba(tipo string) *entity.DocumentoFiscal {
	return &entity.DocumentoFiscal{
		ID:              "doc-1",
		IdVenta:         "venta-1",
		IdSociedad:      "soc-1",
		TipoDocumento:   tipo,
		Timbrado:        "12345678",
		Establecimiento: "001",
		PuntoExpedicion: "001",
		NumeroDocumento: "0000001",
		CodigoSeguridad: "123456789",
		Estado:          entity.EstadoPendiente,
		FechaEmision:    fechaEmisionPrueba,
	}
}
