// Servicio de firma digital enveloped para el DE v150 de SIFEN.
// Firma el elemento DE (Reference URI="#CDC") e inserta <Signature> dentro de
// rDE, entre DE y gCamFuFD, y resuelve el dCarQR final con el DigestValue real.

package signer

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/tu-usuario/facturacion-sifen/internal/domain"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	infrasifen "github.com/tu-usuario/facturacion-sifen/internal/infrastructure/sifen"
	"github.com/tu-usuario/facturacion-sifen/internal/infrastructure/sifen/certstore"
	pkgsifen "github.com/tu-usuario/facturacion-sifen/pkg/sifen"
)

// CargadorCertificado resuelve el certificado de firma de una sociedad.
// Se inyecta para poder firmar en tests con certificados autogenerados.
type CargadorCertificado func(sociedad *entity.Sociedad) (tls.Certificate, error)

// Service implementa el firmador de documentos electrónicos.
type Service struct {
	cargar CargadorCertificado
	ahora  func() time.Time
}

// NewService crea el firmador con el cargador de certificados por defecto
// (archivo .p12 referenciado por la sociedad).
func NewService() *Service {
	return &Service{
		cargar: func(s *entity.Sociedad) (tls.Certificate, error) {
			return certstore.LoadFromP12(s.PathCertificadoP12, s.PasswordCertificadoP12)
		},
		ahora: time.Now,
	}
}

// NewServiceConCargador crea el firmador con un cargador a medida.
func NewServiceConCargador(cargar CargadorCertificado) *Service {
	return &Service{cargar: cargar, ahora: time.Now}
}

// Firmar firma el XML canónico con el certificado de la sociedad.
// Certificado ausente o vencido produce un error permanente de firma:
// el documento pasa a ERROR sin consumir reintentos de red.
func (s *Service) Firmar(ctx context.Context, canonico *infrasifen.DocumentoCanonico, sociedad *entity.Sociedad) (*infrasifen.DocumentoFirmado, error) {
	if len(canonico.Xml) == 0 {
		return nil, fmt.Errorf("%w: XML canónico vacío", domain.ErrFirmaFallida)
	}
	cert, err := s.cargar(sociedad)
	if err != nil {
		return nil, err
	}
	leaf := cert.Leaf
	if leaf == nil {
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("%w: parsear certificado: %v", domain.ErrFirmaFallida, err)
		}
	}
	if err := certstore.ValidarVigencia(leaf, s.ahora()); err != nil {
		return nil, err
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: el certificado debe incluir llave privada RSA", domain.ErrFirmaFallida)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(canonico.Xml); err != nil {
		return nil, fmt.Errorf("%w: parsear rDE: %v", domain.ErrFirmaFallida, err)
	}
	rde := doc.Root()
	if rde == nil || rde.Tag != "rDE" {
		return nil, fmt.Errorf("%w: documento sin raíz rDE", domain.ErrFirmaFallida)
	}
	de := rde.SelectElement("DE")
	if de == nil {
		return nil, fmt.Errorf("%w: no se encontró el elemento DE", domain.ErrFirmaFallida)
	}

	// 1) Digest del DE canonicalizado.
	digestB64, err := s.digestElemento(de, rde)
	if err != nil {
		return nil, err
	}

	// 2) SignedInfo canonicalizado y firmado con RSA-SHA256.
	signedInfoXML := s.buildSignedInfo(canonico.CDC, digestB64)
	canonicalSignedInfo, err := canonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		canonicalSignedInfo = []byte(signedInfoXML)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: firmar SignedInfo: %v", domain.ErrFirmaFallida, err)
	}

	// 3) Nodo Signature completo, insertado entre DE y gCamFuFD. Sin xmlns
	// propio: hereda el namespace SIFEN del rDE, como el XML aprobado en
	// producción.
	signatureXML := s.buildSignature(signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(leaf.Raw))
	if err := s.insertarFirma(rde, signatureXML); err != nil {
		return nil, err
	}

	// 4) dCarQR final con el DigestValue real y el cHashQR calculado.
	urlQr, err := s.resolverQr(rde, digestB64, sociedad)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("%w: serializar XML firmado: %v", domain.ErrFirmaFallida, err)
	}
	return &infrasifen.DocumentoFirmado{Xml: out.Bytes(), UrlQr: urlQr}, nil
}

// digestElemento serializa el DE con el namespace heredado del rDE,
// lo canonicaliza y devuelve el SHA-256 en Base64.
func (s *Service) digestElemento(de, rde *etree.Element) (string, error) {
	copia := de.Copy()
	if copia.SelectAttr("xmlns") == nil {
		if ns := rde.SelectAttr("xmlns"); ns != nil {
			copia.CreateAttr("xmlns", ns.Value)
		}
	}
	tmp := etree.NewDocument()
	tmp.SetRoot(copia)
	var buf bytes.Buffer
	if _, err := tmp.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("%w: serializar DE: %v", domain.ErrFirmaFallida, err)
	}
	canonical, err := canonicalizeXML(buf.Bytes())
	if err != nil {
		canonical = buf.Bytes()
	}
	digest := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(digest[:]), nil
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func (s *Service) buildSignedInfo(cdc, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14NExc + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<Reference URI="#` + cdc + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<Transform Algorithm="` + AlgC14NExc + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func (s *Service) buildSignature(signedInfoXML, signatureValueB64, certB64 string) string {
	// El SignedInfo interno va sin el xmlns redundante.
	inner := strings.Replace(signedInfoXML, ` xmlns="`+NamespaceDS+`"`, "", 1)
	var sb strings.Builder
	sb.WriteString(`<Signature>`)
	sb.WriteString(inner)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}

// insertarFirma coloca Signature después de DE y antes de gCamFuFD.
func (s *Service) insertarFirma(rde *etree.Element, signatureXML string) error {
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return fmt.Errorf("%w: parsear Signature: %v", domain.ErrFirmaFallida, err)
	}
	sigRoot := sigDoc.Root()
	if sigRoot == nil {
		return fmt.Errorf("%w: nodo Signature vacío", domain.ErrFirmaFallida)
	}
	gFuFD := rde.SelectElement("gCamFuFD")
	if gFuFD == nil {
		rde.AddChild(sigRoot)
		return nil
	}
	rde.RemoveChild(gFuFD)
	rde.AddChild(sigRoot)
	rde.AddChild(gFuFD)
	return nil
}

// resolverQr sustituye el placeholder del DigestValue, calcula el cHashQR y
// deja en dCarQR la URL de verificación completa. El CSC pegado al IdCSC se
// retira del texto final: solo participa del hash.
func (s *Service) resolverQr(rde *etree.Element, digestB64 string, sociedad *entity.Sociedad) (string, error) {
	gFuFD := rde.SelectElement("gCamFuFD")
	if gFuFD == nil {
		return "", fmt.Errorf("%w: rDE sin gCamFuFD", domain.ErrFirmaFallida)
	}
	qrNode := gFuFD.SelectElement("dCarQR")
	if qrNode == nil {
		return "", fmt.Errorf("%w: rDE sin dCarQR", domain.ErrFirmaFallida)
	}

	// SIFEN espera el DigestValue como hex de la cadena Base64, no del binario.
	digestHex := hex.EncodeToString([]byte(digestB64))
	texto := qrNode.Text()
	if i := strings.Index(texto, "DigestValue="); i >= 0 {
		fin := strings.IndexByte(texto[i:], '&')
		if fin < 0 {
			fin = len(texto) - i
		}
		texto = texto[:i] + "DigestValue=" + digestHex + texto[i+fin:]
	}

	params := strings.TrimSuffix(texto, sociedad.Csc)
	hash := pkgsifen.CalcularHashQr(params, sociedad.Csc)

	base := sociedad.UrlQrBase
	if base == "" {
		base = pkgsifen.UrlQrBase(sociedad.Ambiente)
	}
	urlFinal := base + params + "&cHashQR=" + hash
	qrNode.SetText(urlFinal)
	return urlFinal, nil
}

var _ infrasifen.FirmadorDocumentos = (*Service)(nil)
