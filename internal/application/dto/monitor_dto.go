package dto

import (
	"time"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
)

// DocumentoResponse proyección de un documento fiscal para el monitor.
// No incluye los XML completos: esos se piden por documento.
type DocumentoResponse struct {
	ID              string     `json:"id"`
	IdVenta         string     `json:"id_venta"`
	IdSociedad      string     `json:"id_sociedad"`
	TipoDocumento   string     `json:"tipo_documento"`
	Timbrado        string     `json:"timbrado"`
	Numero          string     `json:"numero"` // EEE-PPP-NNNNNNN
	CDC             string     `json:"cdc,omitempty"`
	Estado          string     `json:"estado"`
	Intentos        int        `json:"intentos"`
	UltimoIntento   *time.Time `json:"ultimo_intento,omitempty"`
	UltimoError     string     `json:"ultimo_error,omitempty"`
	NumeroProtocolo string     `json:"numero_protocolo,omitempty"`
	UrlQr           string     `json:"url_qr,omitempty"`
	FechaEmision    time.Time  `json:"fecha_emision"`
	CreadoEn        time.Time  `json:"creado_en"`
	ActualizadoEn   time.Time  `json:"actualizado_en"`
}

// DocumentoDetalleResponse agrega los XML persistidos al detalle.
type DocumentoDetalleResponse struct {
	DocumentoResponse
	XmlCanonico string `json:"xml_canonico,omitempty"`
	XmlFirmado  string `json:"xml_firmado,omitempty"`
}

// NewDocumentoResponse arma la proyección desde la entidad.
func NewDocumentoResponse(d *entity.DocumentoFiscal) DocumentoResponse {
	return DocumentoResponse{
		ID:              d.ID,
		IdVenta:         d.IdVenta,
		IdSociedad:      d.IdSociedad,
		TipoDocumento:   d.TipoDocumento,
		Timbrado:        d.Timbrado,
		Numero:          d.Establecimiento + "-" + d.PuntoExpedicion + "-" + d.NumeroDocumento,
		CDC:             d.CDC,
		Estado:          d.Estado,
		Intentos:        d.Intentos,
		UltimoIntento:   d.UltimoIntento,
		UltimoError:     d.UltimoError,
		NumeroProtocolo: d.NumeroProtocolo,
		UrlQr:           d.UrlQr,
		FechaEmision:    d.FechaEmision,
		CreadoEn:        d.CreadoEn,
		ActualizadoEn:   d.ActualizadoEn,
	}
}

// NewDocumentoDetalleResponse proyección completa con XMLs.
func NewDocumentoDetalleResponse(d *entity.DocumentoFiscal) DocumentoDetalleResponse {
	return DocumentoDetalleResponse{
		DocumentoResponse: NewDocumentoResponse(d),
		XmlCanonico:       d.XmlCanonico,
		XmlFirmado:        d.XmlFirmado,
	}
}

// EjecucionResponse resumen de un ciclo de la cola.
type EjecucionResponse struct {
	ID           string    `json:"id"`
	Inicio       time.Time `json:"inicio"`
	Fin          time.Time `json:"fin"`
	Procesados   int       `json:"procesados"`
	Aceptados    int       `json:"aceptados"`
	Rechazados   int       `json:"rechazados"`
	Reintentados int       `json:"reintentados"`
	Errores      int       `json:"errores"`
	Notas        string    `json:"notas,omitempty"`
}

// NewEjecucionResponse arma la proyección desde la entidad.
func NewEjecucionResponse(e *entity.EjecucionCola) EjecucionResponse {
	return EjecucionResponse{
		ID:           e.ID,
		Inicio:       e.Inicio,
		Fin:          e.Fin,
		Procesados:   e.Procesados,
		Aceptados:    e.Aceptados,
		Rechazados:   e.Rechazados,
		Reintentados: e.Reintentados,
		Errores:      e.Errores,
		Notas:        e.Notas,
	}
}

// ConsultaRucResponse resultado de la consulta de RUC contra SIFEN.
type ConsultaRucResponse struct {
	RUC         string `json:"ruc"`
	Existe      bool   `json:"existe"`
	RazonSocial string `json:"razon_social,omitempty"`
	Estado      string `json:"estado,omitempty"`
	Codigo      string `json:"codigo"`
	Mensaje     string `json:"mensaje,omitempty"`
}
