// Package sifen: algoritmos del protocolo SIFEN (Paraguay) según Manual Técnico v150.
// CDC de 44 dígitos, dígito verificador módulo 11 y código de seguridad de 9 dígitos.

package sifen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// Longitudes de cada componente del CDC (posiciones 1-44 del Manual Técnico v150).
const (
	LenTipoDocumento     = 2
	LenRucEmisor         = 8
	LenDvEmisor          = 1
	LenEstablecimiento   = 3
	LenPuntoExpedicion   = 3
	LenNumeroDocumento   = 7
	LenTipoContribuyente = 1
	LenFechaEmision      = 8
	LenTipoEmision       = 1
	LenCodigoSeguridad   = 9
	LenCDC               = 44
)

// CdcParams contiene los componentes del CDC en el orden exigido por SIFEN.
type CdcParams struct {
	TipoDocumento     string    // 01=Factura, 05=Nota de crédito, etc.
	RucEmisor         string    // RUC del emisor sin DV (hasta 8 dígitos)
	DvEmisor          string    // Dígito verificador del RUC emisor
	Establecimiento   string    // 3 dígitos
	PuntoExpedicion   string    // 3 dígitos
	NumeroDocumento   string    // 7 dígitos
	TipoContribuyente string    // 1=Persona física, 2=Persona jurídica
	FechaEmision      time.Time // Solo la fecha (yyyyMMdd) entra en el CDC
	TipoEmision       string    // 1=Normal, 2=Contingencia
	CodigoSeguridad   string    // 9 dígitos; si está vacío se genera uno aleatorio
}

// GenerarCDC genera el CDC completo de 44 dígitos.
// Con CodigoSeguridad no vacío el resultado es una función pura de los parámetros:
// el mismo input produce siempre el mismo CDC (requisito de estabilidad bajo reintento).
func GenerarCDC(p CdcParams) (string, error) {
	codSeg := p.CodigoSeguridad
	if codSeg == "" {
		codSeg = GenerarCodigoSeguridad()
	}

	cdc43 := limpiarYPadLeft(p.TipoDocumento, LenTipoDocumento) +
		limpiarYPadLeft(p.RucEmisor, LenRucEmisor) +
		limpiarYPadLeft(p.DvEmisor, LenDvEmisor) +
		limpiarYPadLeft(p.Establecimiento, LenEstablecimiento) +
		limpiarYPadLeft(p.PuntoExpedicion, LenPuntoExpedicion) +
		limpiarYPadLeft(p.NumeroDocumento, LenNumeroDocumento) +
		limpiarYPadLeft(p.TipoContribuyente, LenTipoContribuyente) +
		p.FechaEmision.Format("20060102") +
		limpiarYPadLeft(p.TipoEmision, LenTipoEmision) +
		limpiarYPadLeft(codSeg, LenCodigoSeguridad)

	if len(cdc43) != LenCDC-1 {
		return "", fmt.Errorf("sifen: cadena base del CDC con longitud %d (esperado %d)", len(cdc43), LenCDC-1)
	}
	return cdc43 + digitoVerificadorCDC(cdc43), nil
}

// digitoVerificadorCDC calcula el DV del CDC: módulo 11 con base 2-9,
// recorriendo de derecha a izquierda. Si el resultado es 10 u 11 se usa 0.
func digitoVerificadorCDC(cdc43 string) string {
	suma := 0
	mult := 2
	for i := len(cdc43) - 1; i >= 0; i-- {
		suma += int(cdc43[i]-'0') * mult
		mult++
		if mult > 9 {
			mult = 2
		}
	}
	dv := 11 - suma%11
	if dv >= 10 {
		dv = 0
	}
	return string(rune('0' + dv))
}

// GenerarCodigoSeguridad genera un código aleatorio de 9 dígitos (crypto/rand).
func GenerarCodigoSeguridad() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand no falla en la práctica; el pad garantiza el formato igual
		return "000000001"
	}
	n := binary.BigEndian.Uint64(b[:]) % 1_000_000_000
	return fmt.Sprintf("%09d", n)
}

// ValidarCDC verifica longitud y dígito verificador de un CDC.
func ValidarCDC(cdc string) bool {
	limpio := soloDigitos(cdc)
	if len(limpio) != LenCDC {
		return false
	}
	return digitoVerificadorCDC(limpio[:LenCDC-1]) == limpio[LenCDC-1:]
}

// CdcInfo desglose de un CDC para análisis y reconciliación.
type CdcInfo struct {
	TipoDocumento     string
	RucEmisor         string
	DvEmisor          string
	Establecimiento   string
	PuntoExpedicion   string
	NumeroDocumento   string
	TipoContribuyente string
	FechaEmision      string // yyyyMMdd
	TipoEmision       string
	CodigoSeguridad   string
	DigitoVerificador string
}

// ExtraerInfo separa los componentes de un CDC de 44 dígitos.
func ExtraerInfo(cdc string) (*CdcInfo, error) {
	limpio := soloDigitos(cdc)
	if len(limpio) != LenCDC {
		return nil, fmt.Errorf("sifen: el CDC debe tener %d dígitos, tiene %d", LenCDC, len(limpio))
	}
	return &CdcInfo{
		TipoDocumento:     limpio[0:2],
		RucEmisor:         limpio[2:10],
		DvEmisor:          limpio[10:11],
		Establecimiento:   limpio[11:14],
		PuntoExpedicion:   limpio[14:17],
		NumeroDocumento:   limpio[17:24],
		TipoContribuyente: limpio[24:25],
		FechaEmision:      limpio[25:33],
		TipoEmision:       limpio[33:34],
		CodigoSeguridad:   limpio[34:43],
		DigitoVerificador: limpio[43:44],
	}, nil
}

// limpiarYPadLeft deja solo dígitos y rellena con ceros a la izquierda.
// Si la cadena excede la longitud se toman los últimos dígitos (comportamiento SIFEN).
func limpiarYPadLeft(valor string, longitud int) string {
	d := soloDigitos(valor)
	if len(d) > longitud {
		return d[len(d)-longitud:]
	}
	for len(d) < longitud {
		d = "0" + d
	}
	return d
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
