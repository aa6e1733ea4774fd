package sifen

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	pkgsifen "github.com/tu-usuario/facturacion-sifen/pkg/sifen"
)

// Namespaces oficiales del formato SIFEN v150.
const (
	NsSifen = "http://ekuatia.set.gov.py/sifen/xsd"
	NsXsi   = "http://www.w3.org/2001/XMLSchema-instance"

	schemaLocationRecepDE = "http://ekuatia.set.gov.py/sifen/xsd siRecepDE_v150.xsd"

	// Placeholder del DigestValue en dCarQR; el firmador lo sustituye por el
	// hex del digest real de la firma y calcula el cHashQR final.
	digestQrPlaceholder = "665569394474586a4f4a396970724970754f344c434a75706a457a73645766664846656d573270344c69593d"
)

// XmlBuilderService construye el rDE/DE v150 (sin firma) para facturas y
// notas de crédito. Serializa sin indentación y sin declaración XML: el
// firmador hashea los bytes tal cual se generan aquí.
type XmlBuilderService struct{}

// NewXmlBuilderService crea el servicio.
func NewXmlBuilderService() *XmlBuilderService {
	return &XmlBuilderService{}
}

// ConstruirXml genera el rDE completo para el documento. El CDC debe venir ya
// asignado en doc (lo genera el builder antes de llamar aquí).
func (s *XmlBuilderService) ConstruirXml(doc *entity.DocumentoFiscal, venta *entity.VentaSnapshot, sociedad *entity.Sociedad) ([]byte, error) {
	if doc.CDC == "" || len(doc.CDC) != pkgsifen.LenCDC {
		return nil, fmt.Errorf("sifen: documento %s sin CDC válido", doc.ID)
	}

	rde := etree.NewElement("rDE")
	rde.CreateAttr("xmlns", NsSifen)
	rde.CreateAttr("xmlns:xsi", NsXsi)
	rde.CreateAttr("xsi:schemaLocation", schemaLocationRecepDE)
	addText(rde, "dVerFor", "150")

	de := rde.CreateElement("DE")
	de.CreateAttr("Id", doc.CDC)
	addText(de, "dDVId", doc.CDC[pkgsifen.LenCDC-1:])
	addText(de, "dFecFirma", doc.FechaEmision.Format("2006-01-02T15:04:05"))
	addText(de, "dSisFact", "1")

	gOpeDE := de.CreateElement("gOpeDE")
	addText(gOpeDE, "iTipEmi", pkgsifen.EmisionNormal)
	addText(gOpeDE, "dDesTipEmi", "Normal")
	// dCodSeg debe coincidir con las posiciones 35-43 del CDC.
	addText(gOpeDE, "dCodSeg", doc.CDC[34:43])

	s.escribirTimbrado(de, doc, sociedad)
	s.escribirDatosGenerales(de, doc, venta, sociedad)
	if err := s.escribirDetalle(de, doc, venta); err != nil {
		return nil, err
	}
	s.escribirTotales(de, venta)

	// Notas de crédito referencian el DE de la venta original.
	if doc.TipoDocumento == pkgsifen.TipoDocNotaCredito {
		gAsoc := de.CreateElement("gCamDEAsoc")
		addText(gAsoc, "iTipDocAso", "1")
		addText(gAsoc, "dDesTipDocAso", "Electrónico")
		addText(gAsoc, "dCdCDERef", venta.CdcVentaAsociada)
	}

	// gCamFuFD va a nivel de rDE, después del DE.
	gFuFD := rde.CreateElement("gCamFuFD")
	addText(gFuFD, "dCarQR", s.textoQrBase(doc, venta, sociedad))

	xdoc := etree.NewDocument()
	xdoc.SetRoot(rde)
	var buf bytes.Buffer
	if _, err := xdoc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("sifen: serializar rDE: %w", err)
	}
	return buf.Bytes(), nil
}

// escribirTimbrado arma gTimb. En ambiente de pruebas el número de timbrado
// es el RUC del emisor (sin DV) a 8 dígitos; en producción es el timbrado
// real asignado por la SET.
func (s *XmlBuilderService) escribirTimbrado(de *etree.Element, doc *entity.DocumentoFiscal, sociedad *entity.Sociedad) {
	nroTim := soloDigitos(doc.Timbrado)
	if sociedad.Ambiente != pkgsifen.AmbienteProd {
		nroTim = soloDigitos(sociedad.RUC)
	}
	gTimb := de.CreateElement("gTimb")
	addText(gTimb, "iTiDE", strconv.Itoa(tipoDeNumerico(doc.TipoDocumento)))
	addText(gTimb, "dDesTiDE", pkgsifen.DescripcionTipoDoc(doc.TipoDocumento))
	addText(gTimb, "dNumTim", padLeft(nroTim, 8))
	addText(gTimb, "dEst", padLeft(soloDigitos(doc.Establecimiento), 3))
	addText(gTimb, "dPunExp", padLeft(soloDigitos(doc.PuntoExpedicion), 3))
	addText(gTimb, "dNumDoc", padLeft(soloDigitos(doc.NumeroDocumento), 7))
	addText(gTimb, "dFeIniT", doc.FechaEmision.Format("2006-01-02"))
}

func (s *XmlBuilderService) escribirDatosGenerales(de *etree.Element, doc *entity.DocumentoFiscal, venta *entity.VentaSnapshot, sociedad *entity.Sociedad) {
	gDatGralOpe := de.CreateElement("gDatGralOpe")
	addText(gDatGralOpe, "dFeEmiDE", doc.FechaEmision.Format("2006-01-02T15:04:05"))

	gOpeCom := gDatGralOpe.CreateElement("gOpeCom")
	addText(gOpeCom, "iTipTra", "3")
	addText(gOpeCom, "dDesTipTra", "Mixto (Venta de mercadería y servicios)")
	addText(gOpeCom, "iTImp", "1")
	addText(gOpeCom, "dDesTImp", "IVA")
	moneda := venta.MonedaISO
	if moneda == "" {
		moneda = "PYG"
	}
	addText(gOpeCom, "cMoneOpe", moneda)
	addText(gOpeCom, "dDesMoneOpe", descripcionMoneda(moneda))
	if moneda != "PYG" {
		addText(gOpeCom, "dCondTiCam", "1")
		addText(gOpeCom, "dTiCam", venta.CambioDelDia.StringFixed(4))
	}
	gOblAfe := gOpeCom.CreateElement("gOblAfe")
	addText(gOblAfe, "cOblAfe", "211")
	addText(gOblAfe, "dDesOblAfe", "IMPUESTO AL VALOR AGREGADO - GRAVADAS Y EXONERADAS - EXPORTADORES")

	s.escribirEmisor(gDatGralOpe, sociedad)
	s.escribirReceptor(gDatGralOpe, &venta.Receptor)
}

func (s *XmlBuilderService) escribirEmisor(parent *etree.Element, sociedad *entity.Sociedad) {
	gEmis := parent.CreateElement("gEmis")
	addText(gEmis, "dRucEm", soloDigitos(sociedad.RUC))
	addText(gEmis, "dDVEmi", strconv.Itoa(sociedad.Dv))
	tipCont := sociedad.TipoContribuyente
	if tipCont == "" {
		tipCont = "1"
	}
	addText(gEmis, "iTipCont", tipCont)
	addText(gEmis, "dNomEmi", noVacio(sociedad.Nombre, "SIN NOMBRE"))
	addText(gEmis, "dDirEmi", noVacio(sociedad.Direccion, "SIN DIRECCION"))
	addText(gEmis, "dNumCas", noVacio(sociedad.NumeroCasa, "0"))
	addText(gEmis, "cDepEmi", strconv.Itoa(sociedad.Departamento))
	addText(gEmis, "dDesDepEmi", sociedad.DescDepartamento)
	addText(gEmis, "cDisEmi", strconv.Itoa(sociedad.Distrito))
	addText(gEmis, "dDesDisEmi", sociedad.DescDistrito)
	addText(gEmis, "cCiuEmi", strconv.Itoa(sociedad.Ciudad))
	addText(gEmis, "dDesCiuEmi", sociedad.DescCiudad)
	addText(gEmis, "dTelEmi", noVacio(sociedad.Telefono, "000000000"))
	addText(gEmis, "dEmailE", noVacio(sociedad.Email, "sin@email.com"))

	actividades := sociedad.Actividades
	if len(actividades) == 0 {
		actividades = []entity.ActividadEconomica{{
			Codigo:      "47190",
			Descripcion: "VENTA AL POR MENOR DE OTROS PRODUCTOS EN COMERCIOS NO ESPECIALIZADOS",
		}}
	}
	// El XSD admite un máximo de 9 actividades.
	if len(actividades) > 9 {
		actividades = actividades[:9]
	}
	for _, act := range actividades {
		gAct := gEmis.CreateElement("gActEco")
		addText(gAct, "cActEco", act.Codigo)
		addText(gAct, "dDesActEco", noVacio(act.Descripcion, "ACTIVIDAD ECONOMICA"))
	}
}

// escribirReceptor arma gDatRec respetando el orden del XSD tgDatRec.
// Contribuyentes llevan RUC+DV; no contribuyentes llevan iTipIDRec con su
// descripción y número; sin documento declarado se emite como Innominado.
func (s *XmlBuilderService) escribirReceptor(parent *etree.Element, r *entity.ReceptorSnapshot) {
	gDatRec := parent.CreateElement("gDatRec")

	esContribuyente := r.Naturaleza == pkgsifen.NaturalezaContribuyente
	tipoID, numeroID := identidadReceptor(r)
	esConsumidorFinal := !esContribuyente && tipoID == pkgsifen.DocIdentidadInnominado

	addText(gDatRec, "iNatRec", strconv.Itoa(r.Naturaleza))
	if esContribuyente {
		addText(gDatRec, "iTiOpe", strconv.Itoa(pkgsifen.OperacionB2B))
	} else {
		addText(gDatRec, "iTiOpe", strconv.Itoa(pkgsifen.OperacionB2C))
	}
	addText(gDatRec, "cPaisRec", noVacio(r.CodigoPais, "PRY"))
	addText(gDatRec, "dDesPaisRe", noVacio(r.DescPais, "Paraguay"))

	if esConsumidorFinal {
		addText(gDatRec, "iTiContRec", "1")
	}

	if esContribuyente {
		addText(gDatRec, "dRucRec", noVacio(soloDigitos(r.RUC), "0"))
		addText(gDatRec, "dDVRec", strconv.Itoa(r.Dv))
	} else {
		addText(gDatRec, "iTipIDRec", strconv.Itoa(tipoID))
		addText(gDatRec, "dDTipIDRec", pkgsifen.TiposDocumentoIdentidadValidos[tipoID])
		addText(gDatRec, "dNumIDRec", numeroID)
	}

	nombre := r.RazonSocial
	if esConsumidorFinal {
		nombre = "SIN NOMBRE-CONSUMIDOR FINAL"
	}
	addText(gDatRec, "dNomRec", noVacio(nombre, "SIN NOMBRE"))
	if r.Direccion != "" {
		addText(gDatRec, "dDirRec", recortar(r.Direccion, 255))
		addText(gDatRec, "dNumCasRec", noVacio(r.NumeroCasa, "0"))
	}
}

func (s *XmlBuilderService) escribirDetalle(de *etree.Element, doc *entity.DocumentoFiscal, venta *entity.VentaSnapshot) error {
	if len(venta.Items) == 0 {
		return fmt.Errorf("sifen: venta %s sin ítems", venta.IdVenta)
	}
	gDtipDE := de.CreateElement("gDtipDE")

	switch doc.TipoDocumento {
	case pkgsifen.TipoDocFactura:
		gCamFE := gDtipDE.CreateElement("gCamFE")
		addText(gCamFE, "iIndPres", "1")
		addText(gCamFE, "dDesIndPres", "Operación presencial")
	case pkgsifen.TipoDocNotaCredito:
		gCamNCDE := gDtipDE.CreateElement("gCamNCDE")
		addText(gCamNCDE, "iMotEmi", "1")
		addText(gCamNCDE, "dDesMotEmi", "Devolución y Ajuste de precios")
	}

	// Contado; el flujo de crédito con cuotas queda fuera de la cola.
	gCamCond := gDtipDE.CreateElement("gCamCond")
	addText(gCamCond, "iCondOpe", "1")
	addText(gCamCond, "dDCondOpe", "Contado")
	gPago := gCamCond.CreateElement("gPaConEIni")
	addText(gPago, "iTiPago", "1")
	addText(gPago, "dDesTiPag", "Efectivo")
	addText(gPago, "dMonTiPag", entero(venta.Total))
	addText(gPago, "cMoneTiPag", noVacio(venta.MonedaISO, "PYG"))
	addText(gPago, "dDMoneTiPag", descripcionMoneda(noVacio(venta.MonedaISO, "PYG")))

	for _, item := range venta.Items {
		gItem := gDtipDE.CreateElement("gCamItem")
		addText(gItem, "dCodInt", noVacio(item.CodigoProducto, "PROD"))
		addText(gItem, "dDesProSer", noVacio(item.Descripcion, "ITEM"))
		addText(gItem, "cUniMed", noVacio(item.UnidadMedida, "77"))
		addText(gItem, "dDesUniMed", "UNI")
		addText(gItem, "dCantProSer", item.Cantidad.StringFixed(4))

		gValor := gItem.CreateElement("gValorItem")
		addText(gValor, "dPUniProSer", entero(item.PrecioUnitario))
		addText(gValor, "dTotBruOpeItem", entero(item.Subtotal))
		gResta := gValor.CreateElement("gValorRestaItem")
		addText(gResta, "dDescItem", "0")
		addText(gResta, "dPorcDesIt", "0.00")
		addText(gResta, "dTotOpeItem", entero(item.Subtotal))

		s.escribirIvaItem(gItem, item)
	}
	return nil
}

func (s *XmlBuilderService) escribirIvaItem(gItem *etree.Element, item entity.VentaItem) {
	gIVA := gItem.CreateElement("gCamIVA")
	if item.TasaIva.IsZero() {
		addText(gIVA, "iAfecIVA", "3")
		addText(gIVA, "dDesAfecIVA", "Exento")
		addText(gIVA, "dPropIVA", "0")
		addText(gIVA, "dTasaIVA", "0")
		addText(gIVA, "dBasGravIVA", "0")
		addText(gIVA, "dLiqIVAItem", "0")
		addText(gIVA, "dBasExe", "0")
		return
	}
	// Precio con IVA incluido: base = subtotal / (1 + tasa/100).
	divisor := decimal.NewFromInt(100).Add(item.TasaIva)
	base := item.Subtotal.Mul(decimal.NewFromInt(100)).Div(divisor).Round(0)
	liq := item.Subtotal.Sub(base)
	addText(gIVA, "iAfecIVA", "1")
	addText(gIVA, "dDesAfecIVA", "Gravado IVA")
	addText(gIVA, "dPropIVA", "100")
	addText(gIVA, "dTasaIVA", entero(item.TasaIva))
	addText(gIVA, "dBasGravIVA", entero(base))
	addText(gIVA, "dLiqIVAItem", entero(liq))
	addText(gIVA, "dBasExe", "0")
}

// escribirTotales arma gTotSub. Para PYG todos los montos son enteros.
func (s *XmlBuilderService) escribirTotales(de *etree.Element, venta *entity.VentaSnapshot) {
	var subExe, sub5, sub10, iva5, iva10 decimal.Decimal
	cien := decimal.NewFromInt(100)
	for _, item := range venta.Items {
		switch {
		case item.TasaIva.IsZero():
			subExe = subExe.Add(item.Subtotal)
		case item.TasaIva.Equal(decimal.NewFromInt(5)):
			sub5 = sub5.Add(item.Subtotal)
			base := item.Subtotal.Mul(cien).Div(cien.Add(item.TasaIva)).Round(0)
			iva5 = iva5.Add(item.Subtotal.Sub(base))
		default:
			sub10 = sub10.Add(item.Subtotal)
			base := item.Subtotal.Mul(cien).Div(cien.Add(item.TasaIva)).Round(0)
			iva10 = iva10.Add(item.Subtotal.Sub(base))
		}
	}
	totIVA := iva5.Add(iva10)
	baseGrav5 := sub5.Sub(iva5)
	baseGrav10 := sub10.Sub(iva10)

	gTotSub := de.CreateElement("gTotSub")
	addText(gTotSub, "dSubExe", entero(subExe))
	addText(gTotSub, "dSub5", entero(sub5))
	addText(gTotSub, "dSub10", entero(sub10))
	addText(gTotSub, "dTotOpe", entero(venta.Total))
	addText(gTotSub, "dTotDesc", "0")
	addText(gTotSub, "dTotDescGlotem", "0")
	addText(gTotSub, "dTotAntItem", "0")
	addText(gTotSub, "dTotAnt", "0")
	addText(gTotSub, "dPorcDescTotal", "0")
	addText(gTotSub, "dDescTotal", "0")
	addText(gTotSub, "dAnticipo", "0")
	addText(gTotSub, "dRedon", "0")
	addText(gTotSub, "dTotGralOpe", entero(venta.Total))
	addText(gTotSub, "dIVA5", entero(iva5))
	addText(gTotSub, "dIVA10", entero(iva10))
	addText(gTotSub, "dTotIVA", entero(totIVA))
	addText(gTotSub, "dBaseGrav5", entero(baseGrav5))
	addText(gTotSub, "dBaseGrav10", entero(baseGrav10))
	addText(gTotSub, "dTBasGraIVA", entero(baseGrav5.Add(baseGrav10)))
}

// textoQrBase genera el contenido de dCarQR con el DigestValue placeholder y
// el CSC pegado al IdCSC. El firmador sustituye el placeholder y reemplaza el
// CSC por el parámetro cHashQR final.
func (s *XmlBuilderService) textoQrBase(doc *entity.DocumentoFiscal, venta *entity.VentaSnapshot, sociedad *entity.Sociedad) string {
	fechaHex := hex.EncodeToString([]byte(doc.FechaEmision.Format("2006-01-02T15:04:05")))

	idParam := "dNumIDRec"
	idValor := "0"
	if venta.Receptor.Naturaleza == pkgsifen.NaturalezaContribuyente {
		idParam = "dRucRec"
		idValor = noVacio(soloDigitos(venta.Receptor.RUC), "0")
	} else if _, num := identidadReceptor(&venta.Receptor); num != "" {
		idValor = num
	}

	idCsc := noVacio(trimCerosIzquierda(sociedad.IdCsc), "1")
	return fmt.Sprintf("nVersion=150&Id=%s&dFeEmiDE=%s&%s=%s&dTotGralOpe=%s&dTotIVA=%s&cItems=%d&DigestValue=%s&IdCSC=%s%s",
		doc.CDC, fechaHex, idParam, idValor,
		entero(venta.Total), entero(venta.TotalIva), len(venta.Items),
		digestQrPlaceholder, idCsc, sociedad.Csc)
}

// identidadReceptor resuelve el par (iTipIDRec, número) de un no contribuyente.
// Sin tipo declarado o sin número cae a Innominado/"0".
func identidadReceptor(r *entity.ReceptorSnapshot) (int, string) {
	if r.TipoDocumentoIdentidad == nil {
		return pkgsifen.DocIdentidadInnominado, "0"
	}
	num := soloDigitos(r.NumeroDocumento)
	if num == "" || num == "0" {
		return pkgsifen.DocIdentidadInnominado, "0"
	}
	return *r.TipoDocumentoIdentidad, num
}

func tipoDeNumerico(tipoDocumento string) int {
	n, err := strconv.Atoi(tipoDocumento)
	if err != nil {
		return 1
	}
	return n
}

func descripcionMoneda(iso string) string {
	switch iso {
	case "PYG":
		return "Guarani"
	case "USD":
		return "US Dollar"
	default:
		return iso
	}
}

func entero(d decimal.Decimal) string {
	return d.Round(0).StringFixed(0)
}

func noVacio(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func recortar(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func trimCerosIzquierda(s string) string {
	i := 0
	for i < len(s) && s[i] == '0' {
		i++
	}
	return s[i:]
}

func padLeft(s string, n int) string {
	if s == "" {
		s = "0"
	}
	if len(s) >= n {
		return s[len(s)-n:]
	}
	return strings.Repeat("0", n-len(s)) + s
}

func soloDigitos(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func addText(parent *etree.Element, tag, value string) {
	parent.CreateElement(tag).SetText(value)
}
