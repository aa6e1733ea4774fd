// Package pdf implementa la generación del KuDE: la representación gráfica
// del Documento Electrónico SIFEN (ekuatia, SET Paraguay).
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón Social + RUC  │  Timbrado + N° + Fecha       │
//	│  ─────────────────────────────────────────────────────────  │
//	│  EMISOR: Dirección / Tel / Email                            │
//	│  RECEPTOR: Nombre + RUC o documento                         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Descripción | P.Unit | IVA | Subtotal        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Total operación / Total IVA                       │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER SIFEN: CDC + QR de consulta + Leyenda legal         │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	pkgsifen "github.com/tu-usuario/facturacion-sifen/pkg/sifen"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorWhite   = &props.Color{Red: 255, Green: 255, Blue: 255}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// KudeGenerator genera el KuDE de un documento fiscal usando Maroto v2.
type KudeGenerator struct{}

// NewKudeGenerator construye el generador.
func NewKudeGenerator() *KudeGenerator { return &KudeGenerator{} }

// GenerarKude genera el PDF del KuDE y devuelve sus bytes.
func (g *KudeGenerator) GenerarKude(
	_ context.Context,
	doc *entity.DocumentoFiscal,
	venta *entity.VentaSnapshot,
	sociedad *entity.Sociedad,
) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("KuDE - Documento Electrónico", true).
		WithAuthor(sociedad.Nombre, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(doc, sociedad))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(emisorRow(sociedad))
	m.AddRows(receptorRow(&venta.Receptor))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	for _, r := range tableDetailRows(venta.Items) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(venta))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	for _, r := range sifenFooterRows(doc) {
		m.AddRows(r)
	}

	generado, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return generado.GetBytes(), nil
}

// GenerarQrPng renderiza la URL de consulta como imagen PNG independiente
// (para el monitor y para incrustar en correos u otros canales).
func GenerarQrPng(urlQr string, pixeles int) ([]byte, error) {
	if urlQr == "" {
		return nil, fmt.Errorf("pdf: url qr vacía")
	}
	if pixeles <= 0 {
		pixeles = 256
	}
	png, err := qrcode.Encode(urlQr, qrcode.Medium, pixeles)
	if err != nil {
		return nil, fmt.Errorf("pdf: codificar qr: %w", err)
	}
	return png, nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: Razón social + RUC (izq) y tipo de documento + número + fecha (der).
func headerRow(doc *entity.DocumentoFiscal, sociedad *entity.Sociedad) core.Row {
	numero := doc.Establecimiento + "-" + doc.PuntoExpedicion + "-" + doc.NumeroDocumento
	fecha := doc.FechaEmision.Format("02/01/2006")

	titulo := "FACTURA ELECTRÓNICA"
	if doc.TipoDocumento == pkgsifen.TipoDocNotaCredito {
		titulo = "NOTA DE CRÉDITO ELECTRÓNICA"
	}

	return row.New(18).Add(
		col.New(7).Add(
			text.New(sociedad.Nombre, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("RUC: %s-%d", sociedad.RUC, sociedad.Dv), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(titulo, props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(numero, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New(fmt.Sprintf("Timbrado: %s   Fecha: %s", doc.Timbrado, fecha), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// emisorRow: datos del emisor (sociedad).
func emisorRow(sociedad *entity.Sociedad) core.Row {
	return row.New(12).Add(
		col.New(12).Add(
			text.New("DATOS DEL EMISOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("Dirección: %s   |   Tel: %s   |   Email: %s",
				nonEmpty(sociedad.Direccion, "—"),
				nonEmpty(sociedad.Telefono, "—"),
				nonEmpty(sociedad.Email, "—"),
			), props.Text{Size: 8, Top: 7, Color: colorGray}),
		),
	)
}

// receptorRow: datos del receptor congelados en la venta.
func receptorRow(receptor *entity.ReceptorSnapshot) core.Row {
	identidad := "Innominado"
	if receptor.Naturaleza == pkgsifen.NaturalezaContribuyente {
		identidad = fmt.Sprintf("RUC: %s-%d", receptor.RUC, receptor.Dv)
	} else if receptor.NumeroDocumento != "" {
		identidad = "Documento: " + receptor.NumeroDocumento
	}
	return row.New(14).Add(
		col.New(12).Add(
			text.New("RECEPTOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(receptor.RazonSocial, props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("%s   |   Tel: %s",
				identidad,
				nonEmpty(receptor.Telefono, "—"),
			), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

// tableHeaderRow: cabecera de la tabla de ítems.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorWhite, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Descripción del producto/servicio", 5, align.Left),
		h("Precio Unit.", 2, align.Right),
		h("IVA%", 1, align.Center),
		h("Subtotal", 3, align.Right),
	)
}

// tableDetailRows: una fila por ítem de la venta.
func tableDetailRows(items []entity.VentaItem) []core.Row {
	result := make([]core.Row, 0, len(items))
	for _, it := range items {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				it.Cantidad.StringFixed(0),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(5).Add(text.New(
				it.Descripcion,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				formatGuaranies(it.PrecioUnitario.StringFixed(0)),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(1).Add(text.New(
				it.TasaIva.StringFixed(0)+"%",
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(3).Add(text.New(
				formatGuaranies(it.Subtotal.StringFixed(0)),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// totalsRow: bloque de totales alineado a la derecha.
func totalsRow(venta *entity.VentaSnapshot) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	grandLabel := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 2,
		})
	}
	grandValue := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 1,
		})
	}

	return row.New(20).Add(
		col.New(3),
		col.New(4).Add(
			label("Total IVA ("+venta.MonedaISO+"):"),
			grandLabel("TOTAL OPERACIÓN:"),
		),
		col.New(3).Add(
			value(formatGuaranies(venta.TotalIva.StringFixed(0))),
			grandValue(formatGuaranies(venta.Total.StringFixed(0))),
		),
		col.New(2),
	)
}

// sifenFooterRows: CDC partido + código QR de consulta + leyenda legal.
func sifenFooterRows(doc *entity.DocumentoFiscal) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("INFORMACIÓN ELECTRÓNICA SIFEN", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}

	if doc.CDC != "" {
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New("CDC (Código de Control del Documento):", props.Text{
				Style: fontstyle.Bold, Size: 7, Top: 1,
			}),
		)))
		// CDC en grupos de 4 dígitos, como lo imprime el portal ekuatia
		rows = append(rows, row.New(4).Add(col.New(12).Add(
			text.New(agruparCdc(doc.CDC), props.Text{Size: 7, Color: colorGray, Top: 0.5, Left: 2}),
		)))
	}

	rows = append(rows, row.New(3))

	if doc.UrlQr != "" {
		rows = append(rows, row.New(50).Add(
			col.New(4).Add(code.NewQr(doc.UrlQr, props.Rect{
				Percent: 95,
				Center:  true,
			})),
			col.New(8).Add(
				text.New("Consulte la validez de este documento\nescaneando el QR en ekuatia.set.gov.py.", props.Text{
					Size: 8, Top: 4, Left: 3, Color: colorGray,
				}),
				text.New("KuDE — Representación gráfica del\nDocumento Electrónico", props.Text{
					Style: fontstyle.Bold, Size: 10, Top: 22,
					Left: 3, Color: colorPrimary,
				}),
			),
		))
	} else {
		rows = append(rows, row.New(10).Add(col.New(12).Add(
			text.New("KuDE — Representación gráfica del Documento Electrónico", props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Center,
				Color: colorPrimary, Top: 2,
			}),
		)))
	}

	if doc.NumeroProtocolo != "" {
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New("Protocolo de autorización SIFEN: "+doc.NumeroProtocolo, props.Text{
				Size: 7, Color: colorGray, Top: 1,
			}),
		)))
	}

	rows = append(rows, row.New(8).Add(col.New(12).Add(
		text.New(
			"Documento electrónico emitido conforme a la Ley 6380/19 y la "+
				"Resolución General SET correspondiente. Conserve este documento "+
				"como soporte fiscal.",
			props.Text{Size: 6.5, Color: colorGray, Top: 2},
		),
	)))

	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatGuaranies inserta puntos de miles en un string numérico sin decimales.
// Ej: "25000" → "25.000", "1000000" → "1.000.000"
func formatGuaranies(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(s) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// agruparCdc separa el CDC en bloques de 4 dígitos para lectura humana.
func agruparCdc(cdc string) string {
	buf := make([]byte, 0, len(cdc)+len(cdc)/4)
	for i := 0; i < len(cdc); i += 4 {
		if i > 0 {
			buf = append(buf, ' ')
		}
		fin := i + 4
		if fin > len(cdc) {
			fin = len(cdc)
		}
		buf = append(buf, cdc[i:fin]...)
	}
	return string(buf)
}
