package certstore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-sifen/internal/domain"
)

func certificadoConVigencia(t *testing.T, desde, hasta time.Time) *x509.Certificate {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "prueba"},
		NotBefore:    desde,
		NotAfter:     hasta,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestValidarVigencia(t *testing.T) {
	ahora := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	vigente := certificadoConVigencia(t, ahora.Add(-24*time.Hour), ahora.Add(24*time.Hour))
	assert.NoError(t, ValidarVigencia(vigente, ahora))

	vencido := certificadoConVigencia(t, ahora.Add(-48*time.Hour), ahora.Add(-24*time.Hour))
	assert.ErrorIs(t, ValidarVigencia(vencido, ahora), domain.ErrCertificadoVencido)

	futuro := certificadoConVigencia(t, ahora.Add(24*time.Hour), ahora.Add(48*time.Hour))
	assert.ErrorIs(t, ValidarVigencia(futuro, ahora), domain.ErrCertificadoVencido)

	assert.ErrorIs(t, ValidarVigencia(nil, ahora), domain.ErrCertificadoNoEncontrado)
}

func TestLoadFromP12_ArchivoInexistente(t *testing.T) {
	_, err := LoadFromP12("/no/existe/cert.p12", "")
	assert.ErrorIs(t, err, domain.ErrCertificadoNoEncontrado)
}
