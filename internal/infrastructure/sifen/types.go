// Package sifen implementa la construcción, firma y transporte del Documento
// Electrónico (DE) v150 hacia los web services de SIFEN (Paraguay).
package sifen

import (
	"context"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
)

// Clasificacion resultado de interpretar la respuesta de SIFEN.
type Clasificacion int

const (
	// ClasificacionDesconocida la respuesta no pudo interpretarse (timeout,
	// fault, código fuera de catálogo). El documento queda pendiente de
	// reconciliación por consulta; nunca se reenvía a ciegas.
	ClasificacionDesconocida Clasificacion = iota
	ClasificacionAceptado
	ClasificacionRechazado
	// ClasificacionTransitoria error recuperable (servicio caído, HTTP 5xx);
	// el documento vuelve a la cola para reintento.
	ClasificacionTransitoria
)

// String para logs y registros de ejecución.
func (c Clasificacion) String() string {
	switch c {
	case ClasificacionAceptado:
		return "aceptado"
	case ClasificacionRechazado:
		return "rechazado"
	case ClasificacionTransitoria:
		return "transitorio"
	default:
		return "desconocido"
	}
}

// DocumentoCanonico es la salida del constructor: XML base sin firma más los
// identificadores generados durante la construcción.
type DocumentoCanonico struct {
	Xml             []byte
	CDC             string
	CodigoSeguridad string
}

// DocumentoFirmado XML con ds:Signature inyectada y la URL QR calculada a
// partir del DigestValue real de la firma.
type DocumentoFirmado struct {
	Xml   []byte
	UrlQr string
}

// ResultadoEnvio resultado de una operación de transporte contra SIFEN.
type ResultadoEnvio struct {
	Clasificacion   Clasificacion
	Codigo          string // dCodRes (ej: 0260, 0160, 0300)
	Mensaje         string // dMsgRes
	NumeroProtocolo string // dProtAut cuando el DE fue aceptado
	NumeroLote      string // dProtConsLote en envíos por lote

	// campos crudos de la respuesta, para consultas que exponen más datos.
	campos map[string]string
}

// ConstructorDocumentos arma el XML canónico del DE a partir de la venta.
type ConstructorDocumentos interface {
	Construir(ctx context.Context, doc *entity.DocumentoFiscal, venta *entity.VentaSnapshot, sociedad *entity.Sociedad) (*DocumentoCanonico, error)
}

// FirmadorDocumentos firma el XML canónico con el certificado de la sociedad.
type FirmadorDocumentos interface {
	Firmar(ctx context.Context, canonico *DocumentoCanonico, sociedad *entity.Sociedad) (*DocumentoFirmado, error)
}

// TransporteSifen define el puerto de salida hacia los web services SIFEN.
// Las implementaciones no reintentan internamente: un fallo de red se reporta
// como clasificación transitoria y la cola decide el reintento.
type TransporteSifen interface {
	// Enviar entrega un DE firmado por el servicio síncrono recibe-de.
	Enviar(ctx context.Context, xmlFirmado []byte, sociedad *entity.Sociedad) (*ResultadoEnvio, error)
	// EnviarLote entrega hasta 50 DE firmados por el servicio asíncrono recibe-lote.
	EnviarLote(ctx context.Context, xmlsFirmados [][]byte, sociedad *entity.Sociedad) (*ResultadoEnvio, error)
	// ConsultarEstado consulta el estado de un DE por su CDC.
	ConsultarEstado(ctx context.Context, cdc string, sociedad *entity.Sociedad) (*ResultadoEnvio, error)
	// ConsultarLote consulta el resultado de procesamiento de un lote.
	ConsultarLote(ctx context.Context, numeroLote string, sociedad *entity.Sociedad) (*ResultadoEnvio, error)
	// ConsultarRuc verifica la existencia y estado de un RUC en SIFEN.
	ConsultarRuc(ctx context.Context, ruc string, sociedad *entity.Sociedad) (*ConsultaRuc, error)
}

// ConsultaRuc respuesta de la consulta de RUC.
type ConsultaRuc struct {
	Existe      bool
	RazonSocial string
	Estado      string
	Codigo      string
	Mensaje     string
}
