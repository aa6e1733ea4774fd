package entity

import "time"

// Estados del ciclo de vida de un documento fiscal electrónico.
// El flujo del trabajo de facturación crea el documento en PENDIENTE;
// a partir de ahí solo la cola SIFEN lo muta. Nunca se borra: los estados
// terminales quedan como pista de auditoría.
const (
	EstadoPendiente    = "PENDIENTE"    // Encolado, a la espera del próximo ciclo
	EstadoConstruyendo = "CONSTRUYENDO" // Builder en curso (CDC + XML canónico)
	EstadoFirmado      = "FIRMADO"      // XML firmado persistido
	EstadoListoEnvio   = "LISTO_ENVIO"  // Firmado, pendiente de transmisión
	EstadoEnviado      = "ENVIADO"      // Transmitido, respuesta definitiva pendiente
	EstadoAceptado     = "ACEPTADO"     // Aprobado por SIFEN (terminal)
	EstadoRechazado    = "RECHAZADO"    // Rechazo definitivo de SIFEN (terminal)
	EstadoError        = "ERROR"        // Agotó reintentos o dato permanente inválido (terminal)
	EstadoCancelado    = "CANCELADO"    // Cancelación del operador (terminal)
)

// EsEstadoTerminal indica si el documento ya no debe ser seleccionado por la cola.
func EsEstadoTerminal(estado string) bool {
	switch estado {
	case EstadoAceptado, EstadoRechazado, EstadoError, EstadoCancelado:
		return true
	}
	return false
}

// DocumentoFiscal es la unidad de trabajo de la cola SIFEN: una venta o nota
// de crédito confirmada que requiere emisión electrónica.
type DocumentoFiscal struct {
	ID            string
	IdVenta       string // referencia a la venta/NC de origen (flujo externo)
	IdSociedad    string
	TipoDocumento string // 01=Factura, 05=Nota de crédito

	// Numeración SIFEN: única por (establecimiento, punto, número, timbrado).
	Timbrado        string
	Establecimiento string // 3 dígitos
	PuntoExpedicion string // 3 dígitos
	NumeroDocumento string // 7 dígitos

	// Identidad electrónica. CDC y CodigoSeguridad se asignan en el primer
	// build y se reutilizan en cada reintento (nunca se regeneran).
	CDC             string
	CodigoSeguridad string // 9 dígitos

	XmlCanonico string // rDE sin firma
	XmlFirmado  string // rDE con ds:Signature y dCarQR
	UrlQr       string

	Estado          string
	Intentos        int
	UltimoIntento   *time.Time
	UltimoError     string
	NumeroProtocolo string // dProtAut asignado por SIFEN al aprobar
	IdLote          string // dProtConsLote cuando se envía por lote

	FechaEmision  time.Time
	CreadoEn      time.Time
	ActualizadoEn time.Time
}
