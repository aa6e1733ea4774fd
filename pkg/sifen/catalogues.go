// Catálogos cerrados del Manual Técnico SIFEN v150 y URLs de los servicios web.

package sifen

// =============================================================================
// Tipos de Documento Electrónico (iTiDE)
// =============================================================================

const (
	TipoDocFactura      = "01" // Factura electrónica
	TipoDocAutofactura  = "04" // Autofactura electrónica
	TipoDocNotaCredito  = "05" // Nota de crédito electrónica
	TipoDocNotaDebito   = "06" // Nota de débito electrónica
	TipoDocNotaRemision = "07" // Nota de remisión electrónica
)

// DescripcionTipoDoc descripción oficial del tipo de DE (dDesTiDE).
func DescripcionTipoDoc(codigo string) string {
	switch codigo {
	case TipoDocFactura:
		return "Factura electrónica"
	case TipoDocAutofactura:
		return "Autofactura electrónica"
	case TipoDocNotaCredito:
		return "Nota de crédito electrónica"
	case TipoDocNotaDebito:
		return "Nota de débito electrónica"
	case TipoDocNotaRemision:
		return "Nota de remisión electrónica"
	default:
		return ""
	}
}

// =============================================================================
// Tipos de documento de identidad del receptor no contribuyente (iTipIDRec).
// Catálogo cerrado; los contribuyentes usan RUC+DV y no llevan iTipIDRec.
// =============================================================================

const (
	DocIdentidadCedulaParaguaya  = 1
	DocIdentidadCedulaExtranjera = 2
	DocIdentidadPasaporte        = 3
	DocIdentidadCarnetResidencia = 4
	DocIdentidadInnominado       = 5
	DocIdentidadSinDocumento     = 9
)

// TiposDocumentoIdentidadValidos catálogo cerrado de iTipIDRec.
var TiposDocumentoIdentidadValidos = map[int]string{
	DocIdentidadCedulaParaguaya:  "Cédula paraguaya",
	DocIdentidadCedulaExtranjera: "Cédula extranjera",
	DocIdentidadPasaporte:        "Pasaporte",
	DocIdentidadCarnetResidencia: "Carnet de residencia",
	DocIdentidadInnominado:       "Innominado",
	DocIdentidadSinDocumento:     "Sin documento",
}

// =============================================================================
// Naturaleza del receptor (iNatRec) y tipo de operación (iTiOpe)
// =============================================================================

const (
	NaturalezaContribuyente   = 1
	NaturalezaNoContribuyente = 2

	OperacionB2B = 1
	OperacionB2C = 2
	OperacionB2G = 3
	OperacionB2F = 4
)

// =============================================================================
// Tipos de emisión (iTipEmi)
// =============================================================================

const (
	EmisionNormal       = "1"
	EmisionContingencia = "2"
)

// =============================================================================
// URLs de los servicios web SIFEN. Endpoints de servicio (sin .wsdl) para POST SOAP.
// =============================================================================

const (
	baseTest = "https://sifen-test.set.gov.py"
	baseProd = "https://sifen.set.gov.py"

	endpointConsultaRuc  = "/de/ws/consultas/consulta-ruc"
	endpointEnvioDe      = "/de/ws/sync/recibe-de"
	endpointEnvioLote    = "/de/ws/async/recibe-lote"
	endpointConsultaDe   = "/de/ws/consultas/consulta-de"
	endpointConsultaLote = "/de/ws/consultas/consulta-lote"
)

// Ambientes reconocidos.
const (
	AmbienteTest = "test"
	AmbienteProd = "prod"
)

func urlBase(ambiente string) string {
	if ambiente == AmbienteProd {
		return baseProd
	}
	return baseTest
}

// UrlEnvioDe URL del servicio síncrono de recepción de DE.
func UrlEnvioDe(ambiente string) string { return urlBase(ambiente) + endpointEnvioDe }

// UrlEnvioLote URL del servicio asíncrono de recepción de lotes.
func UrlEnvioLote(ambiente string) string { return urlBase(ambiente) + endpointEnvioLote }

// UrlConsultaDe URL de consulta de DE por CDC.
func UrlConsultaDe(ambiente string) string { return urlBase(ambiente) + endpointConsultaDe }

// UrlConsultaLote URL de consulta del resultado de un lote.
func UrlConsultaLote(ambiente string) string { return urlBase(ambiente) + endpointConsultaLote }

// UrlConsultaRuc URL de consulta de RUC.
func UrlConsultaRuc(ambiente string) string { return urlBase(ambiente) + endpointConsultaRuc }

// UrlQrBase URL base de las consultas QR de eKuatia, con el separador final.
func UrlQrBase(ambiente string) string {
	if ambiente == AmbienteProd {
		return "https://ekuatia.set.gov.py/consultas/qr?"
	}
	return "https://ekuatia.set.gov.py/consultas-test/qr?"
}
