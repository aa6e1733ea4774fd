// Package certstore carga y valida los certificados de firma y transporte
// de las sociedades (.p12/PKCS#12 o par PEM).
package certstore

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/tu-usuario/facturacion-sifen/internal/domain"
)

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %v", domain.ErrCertificadoNoEncontrado, err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
	}
	// pkcs12.Decode devuelve un solo certificado; para SIFEN basta la hoja.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM carga certificado y llave desde archivos PEM (por separado o combinados).
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if keyPath == "" {
		keyPath = certPath
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("cargar PEM: %w", err)
	}
	return cert, nil
}

// ValidarVigencia verifica que el certificado esté dentro de su período de
// validez. Un certificado vencido es un error permanente: el documento no
// debe reintentar hasta que se reemplace el certificado.
func ValidarVigencia(cert *x509.Certificate, ahora time.Time) error {
	if cert == nil {
		return domain.ErrCertificadoNoEncontrado
	}
	if ahora.Before(cert.NotBefore) {
		return fmt.Errorf("%w: válido desde %s", domain.ErrCertificadoVencido, cert.NotBefore.Format("2006-01-02"))
	}
	if ahora.After(cert.NotAfter) {
		return fmt.Errorf("%w: expiró el %s", domain.ErrCertificadoVencido, cert.NotAfter.Format("2006-01-02"))
	}
	return nil
}
