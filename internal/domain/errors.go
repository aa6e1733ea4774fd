package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNoEncontrado   = errors.New("recurso no encontrado")
	ErrEstadoInvalido = errors.New("transición de estado no permitida")
	ErrNoAutorizado   = errors.New("no autorizado")

	// Builder: siempre permanentes (problemas de datos, no de red).
	ErrCDCDuplicado   = errors.New("CDC duplicado: ya existe un documento emitido con ese código")
	ErrDatosInvalidos = errors.New("datos insuficientes o inconsistentes para el documento electrónico")

	// Firma: permanentes salvo ErrFirmaFallida, que puede ser transitorio.
	ErrCertificadoNoEncontrado = errors.New("certificado digital no configurado o inexistente")
	ErrCertificadoVencido      = errors.New("certificado digital vencido")
	ErrFirmaFallida            = errors.New("fallo criptográfico al firmar el documento")
)

// EsErrorPermanenteDeFirma distingue los fallos de firma que no deben reintentarse.
func EsErrorPermanenteDeFirma(err error) bool {
	return errors.Is(err, ErrCertificadoNoEncontrado) || errors.Is(err, ErrCertificadoVencido)
}
