package sifen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QrParams datos para construir la URL de verificación QR de un documento electrónico.
type QrParams struct {
	Cdc            string
	FechaEmision   time.Time
	RucReceptor    string // solo dígitos; "0" para innominados
	TotalOperacion decimal.Decimal
	TotalIva       decimal.Decimal
	CantidadItems  int
	DigestValue    string // DigestValue de la firma, tal cual aparece en el XML (Base64)
	IdCsc          string // ID del Código de Seguridad del Contribuyente
	Csc            string // CSC secreto; entra solo al hash, nunca a la URL
}

// GenerarUrlQr construye la URL completa del QR según la especificación SIFEN:
// parámetros en orden fijo, dFeEmiDE y DigestValue en hexadecimal, y
// cHashQR = SHA-256 de los parámetros (sin la URL base) con el CSC concatenado.
func GenerarUrlQr(urlBase string, p QrParams) (string, error) {
	if p.Cdc == "" {
		return "", fmt.Errorf("sifen: CDC requerido para el QR")
	}
	if p.IdCsc == "" {
		p.IdCsc = "1"
	}

	rucRec := soloDigitos(p.RucReceptor)
	if rucRec == "" {
		rucRec = "0"
	}

	// dFeEmiDE: hex de la fecha ISO 8601. DigestValue: hex de la cadena Base64
	// tal cual (no del valor decodificado), igual que el verificador de la SET.
	fechaHex := hex.EncodeToString([]byte(p.FechaEmision.Format("2006-01-02T15:04:05")))
	digestHex := hex.EncodeToString([]byte(p.DigestValue))

	params := []string{
		"nVersion=150",
		"Id=" + soloDigitos(p.Cdc),
		"dFeEmiDE=" + fechaHex,
		"dRucRec=" + rucRec,
		"dTotGralOpe=" + p.TotalOperacion.Round(0).String(),
		"dTotIVA=" + p.TotalIva.Round(0).String(),
		fmt.Sprintf("cItems=%d", p.CantidadItems),
		"DigestValue=" + digestHex,
		"IdCSC=" + p.IdCsc,
	}

	query := strings.Join(params, "&")
	return urlBase + query + "&cHashQR=" + CalcularHashQr(query, p.Csc), nil
}

// CalcularHashQr calcula cHashQR: SHA-256 hexadecimal de los parámetros de la
// URL (sin la base https) con el CSC pegado al final, sin separador.
func CalcularHashQr(parametros, csc string) string {
	if i := strings.IndexByte(parametros, '?'); i >= 0 {
		parametros = parametros[i+1:]
	}
	sum := sha256.Sum256([]byte(parametros + csc))
	return hex.EncodeToString(sum[:])
}
