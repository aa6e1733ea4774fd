package sifen

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/internal/infrastructure/sifen/certstore"
	pkgsifen "github.com/tu-usuario/facturacion-sifen/pkg/sifen"
)

const (
	soapNS12 = "http://www.w3.org/2003/05/soap-envelope"

	// SIFEN limita los lotes a 50 documentos.
	MaxDocumentosPorLote = 50

	// Nombre de la entrada dentro del ZIP del lote, fijado por el formato
	// que SIFEN acepta en producción.
	nombreEntradaLote = "compressed.txt"
)

// SoapClient implementa TransporteSifen contra los web services SOAP 1.2 de
// SIFEN. Requiere TLS mutuo: el certificado de la sociedad autentica cada
// conexión. El cliente nunca reintenta por su cuenta; cada llamada es un
// intento único cuyo resultado clasifica para que la cola decida.
type SoapClient struct {
	timeout time.Duration

	mu       sync.Mutex
	clientes map[string]*http.Client

	// httpOverride reemplaza al cliente mTLS (tests con httptest).
	httpOverride *http.Client
}

// NewSoapClient crea el cliente con el timeout de red dado; cero o negativo
// aplica el valor por defecto de 30 s.
func NewSoapClient(timeout time.Duration) *SoapClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SoapClient{
		timeout:  timeout,
		clientes: make(map[string]*http.Client),
	}
}

// NewSoapClientConHttp crea el cliente usando el *http.Client dado para todas
// las sociedades. Pensado para tests.
func NewSoapClientConHttp(hc *http.Client) *SoapClient {
	return &SoapClient{
		timeout:      30 * time.Second,
		clientes:     make(map[string]*http.Client),
		httpOverride: hc,
	}
}

// Enviar entrega un rDE firmado por el servicio síncrono recibe-de.
func (c *SoapClient) Enviar(ctx context.Context, xmlFirmado []byte, sociedad *entity.Sociedad) (*ResultadoEnvio, error) {
	if len(xmlFirmado) == 0 {
		return nil, fmt.Errorf("sifen: XML firmado vacío")
	}
	// El rDE hereda el namespace del rEnviDe envolvente.
	rde := strings.Replace(string(xmlFirmado), ` xmlns="`+NsSifen+`"`, "", 1)
	body := fmt.Sprintf(`<rEnviDe xmlns=%q><dId>%s</dId><xDE>%s</xDE></rEnviDe>`,
		NsSifen, generarDId(), rde)

	url := sociedad.UrlEnvioDe
	if url == "" {
		url = pkgsifen.UrlEnvioDe(sociedad.Ambiente)
	}
	return c.post(ctx, url, envolver(body), sociedad)
}

// EnviarLote entrega hasta 50 rDE firmados por el servicio asíncrono
// recibe-lote. El lote viaja como Base64 de un ZIP con el rLoteDE adentro.
func (c *SoapClient) EnviarLote(ctx context.Context, xmlsFirmados [][]byte, sociedad *entity.Sociedad) (*ResultadoEnvio, error) {
	if len(xmlsFirmados) == 0 {
		return nil, fmt.Errorf("sifen: lote vacío")
	}
	if len(xmlsFirmados) > MaxDocumentosPorLote {
		return nil, fmt.Errorf("sifen: lote de %d documentos supera el máximo de %d", len(xmlsFirmados), MaxDocumentosPorLote)
	}

	// rLoteDE sin namespace; cada rDE conserva el suyo. Sin declaración XML.
	var lote bytes.Buffer
	lote.WriteString("<rLoteDE>")
	for _, x := range xmlsFirmados {
		lote.Write(x)
	}
	lote.WriteString("</rLoteDE>")

	zipped, err := comprimirLote(lote.Bytes())
	if err != nil {
		return nil, err
	}
	body := fmt.Sprintf(`<rEnvioLote xmlns=%q><dId>%s</dId><xDE>%s</xDE></rEnvioLote>`,
		NsSifen, generarDId(), base64.StdEncoding.EncodeToString(zipped))

	url := sociedad.UrlEnvioLote
	if url == "" {
		url = pkgsifen.UrlEnvioLote(sociedad.Ambiente)
	}
	return c.post(ctx, url, envolver(body), sociedad)
}

// ConsultarEstado consulta un DE por CDC en el servicio consulta-de.
func (c *SoapClient) ConsultarEstado(ctx context.Context, cdc string, sociedad *entity.Sociedad) (*ResultadoEnvio, error) {
	body := fmt.Sprintf(`<rEnviConsDeRequest xmlns=%q><dId>1</dId><dCDC>%s</dCDC></rEnviConsDeRequest>`, NsSifen, cdc)
	url := sociedad.UrlConsultaDe
	if url == "" {
		url = pkgsifen.UrlConsultaDe(sociedad.Ambiente)
	}
	return c.post(ctx, url, envolver(body), sociedad)
}

// ConsultarLote consulta el resultado de procesamiento de un lote.
func (c *SoapClient) ConsultarLote(ctx context.Context, numeroLote string, sociedad *entity.Sociedad) (*ResultadoEnvio, error) {
	body := fmt.Sprintf(`<rEnviConsLoteDe xmlns=%q><dId>1</dId><dProtConsLote>%s</dProtConsLote></rEnviConsLoteDe>`, NsSifen, numeroLote)
	return c.post(ctx, pkgsifen.UrlConsultaLote(sociedad.Ambiente), envolver(body), sociedad)
}

// ConsultarRuc verifica un RUC contra el padrón de SIFEN.
func (c *SoapClient) ConsultarRuc(ctx context.Context, ruc string, sociedad *entity.Sociedad) (*ConsultaRuc, error) {
	body := fmt.Sprintf(`<rEnviConsRUC xmlns=%q><dId>1</dId><dRUCCons>%s</dRUCCons></rEnviConsRUC>`, NsSifen, ruc)
	url := sociedad.UrlConsultaRuc
	if url == "" {
		url = pkgsifen.UrlConsultaRuc(sociedad.Ambiente)
	}
	res, err := c.post(ctx, url, envolver(body), sociedad)
	if err != nil {
		return nil, err
	}
	campos := res.campos
	// 0502 = RUC encontrado en el padrón.
	return &ConsultaRuc{
		Existe:      res.Codigo == "0502",
		RazonSocial: campos["dRazCons"],
		Estado:      campos["dDesEstCons"],
		Codigo:      res.Codigo,
		Mensaje:     res.Mensaje,
	}, nil
}

// post ejecuta la llamada SOAP y clasifica la respuesta. Los fallos de red
// se devuelven como resultado clasificado, no como error: un error Go aquí
// significa que la llamada ni siquiera pudo construirse.
func (c *SoapClient) post(ctx context.Context, url, envelope string, sociedad *entity.Sociedad) (*ResultadoEnvio, error) {
	hc, err := c.clienteHttp(sociedad)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("sifen: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("Accept", "application/soap+xml, application/xml, text/xml")

	resp, err := hc.Do(req)
	if err != nil {
		// Timeout tras enviar: SIFEN pudo haber recibido el documento.
		// Nunca se clasifica como transitorio para no provocar un reenvío
		// a ciegas; la reconciliación por consulta resuelve el estado real.
		if errors.Is(err, context.DeadlineExceeded) || esTimeout(err) {
			return &ResultadoEnvio{
				Clasificacion: ClasificacionDesconocida,
				Mensaje:       fmt.Sprintf("sin respuesta de SIFEN: %v", err),
			}, nil
		}
		return &ResultadoEnvio{
			Clasificacion: ClasificacionTransitoria,
			Mensaje:       fmt.Sprintf("conexión fallida: %v", err),
		}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &ResultadoEnvio{
			Clasificacion: ClasificacionDesconocida,
			Mensaje:       fmt.Sprintf("leer respuesta: %v", err),
		}, nil
	}
	if resp.StatusCode >= 500 {
		return &ResultadoEnvio{
			Clasificacion: ClasificacionTransitoria,
			Codigo:        fmt.Sprintf("HTTP %d", resp.StatusCode),
			Mensaje:       recortar(string(raw), 300),
		}, nil
	}
	// Balanceadores delante de SIFEN a veces devuelven HTML de login.
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "<html") {
		return &ResultadoEnvio{
			Clasificacion: ClasificacionTransitoria,
			Mensaje:       "respuesta HTML inesperada del servidor",
		}, nil
	}
	return clasificarRespuesta(raw), nil
}

// clasificarRespuesta aplica la tabla de códigos de SIFEN:
// 0260/0302 aprobado, 0160 o "xml mal formado" rechazo definitivo,
// 0300 lote recibido (resultado pendiente de consulta).
func clasificarRespuesta(raw []byte) *ResultadoEnvio {
	campos := extraerCampos(raw,
		"dCodRes", "dMsgRes", "dProtAut", "dProtConsLote", "dEstRes", "faultstring", "dRazCons", "dDesEstCons")

	res := &ResultadoEnvio{
		Codigo:          campos["dCodRes"],
		Mensaje:         campos["dMsgRes"],
		NumeroProtocolo: campos["dProtAut"],
		NumeroLote:      campos["dProtConsLote"],
		campos:          campos,
	}
	if fault := campos["faultstring"]; fault != "" && res.Codigo == "" {
		res.Clasificacion = ClasificacionTransitoria
		res.Mensaje = "SOAP Fault: " + fault
		return res
	}

	switch {
	case res.Codigo == "0260" || res.Codigo == "0302":
		res.Clasificacion = ClasificacionAceptado
	case res.Codigo == "0160" || strings.Contains(strings.ToLower(res.Mensaje), "xml mal formado"):
		res.Clasificacion = ClasificacionRechazado
	case res.Codigo == "0300":
		// Lote recibido: no es aceptación del documento.
		res.Clasificacion = ClasificacionDesconocida
	case campos["dEstRes"] == "Aprobado":
		res.Clasificacion = ClasificacionAceptado
	case campos["dEstRes"] == "Rechazado":
		res.Clasificacion = ClasificacionRechazado
	case res.Codigo == "0420" && res.NumeroProtocolo != "":
		res.Clasificacion = ClasificacionAceptado
	case res.Codigo == "0422":
		// CDC no encontrado: el envío nunca llegó; es seguro reintentar.
		res.Clasificacion = ClasificacionTransitoria
	default:
		res.Clasificacion = ClasificacionDesconocida
	}
	return res
}

// extraerCampos recorre la respuesta y captura el texto de los elementos
// pedidos por nombre local, ignorando prefijos de namespace (ns2:, soap:).
func extraerCampos(raw []byte, nombres ...string) map[string]string {
	buscados := make(map[string]bool, len(nombres))
	for _, n := range nombres {
		buscados[n] = true
	}
	out := make(map[string]string)

	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	var actual string
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if buscados[t.Name.Local] {
				actual = t.Name.Local
			} else {
				actual = ""
			}
		case xml.CharData:
			if actual != "" && out[actual] == "" {
				out[actual] = strings.TrimSpace(string(t))
			}
		case xml.EndElement:
			actual = ""
		}
	}
}

// clienteHttp devuelve el cliente mTLS de la sociedad, creándolo y
// cacheándolo la primera vez.
func (c *SoapClient) clienteHttp(sociedad *entity.Sociedad) (*http.Client, error) {
	if c.httpOverride != nil {
		return c.httpOverride, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clientes[sociedad.ID]; ok {
		return hc, nil
	}
	cert, err := certstore.LoadFromP12(sociedad.PathCertificadoP12, sociedad.PasswordCertificadoP12)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		},
	}
	c.clientes[sociedad.ID] = hc
	return hc, nil
}

func envolver(body string) string {
	return fmt.Sprintf(`<soap:Envelope xmlns:soap=%q><soap:Body>%s</soap:Body></soap:Envelope>`, soapNS12, body)
}

// generarDId produce el identificador de envío de 16 dígitos
// (yyyyMMddHHmmss + 2 dígitos anticolisión).
func generarDId() string {
	return time.Now().Format("20060102150405") + fmt.Sprintf("%02d", rand.Intn(100))
}

func comprimirLote(contenido []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(nombreEntradaLote)
	if err != nil {
		return nil, fmt.Errorf("sifen: crear entrada ZIP: %w", err)
	}
	if _, err := w.Write(contenido); err != nil {
		return nil, fmt.Errorf("sifen: escribir ZIP: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("sifen: cerrar ZIP: %w", err)
	}
	return buf.Bytes(), nil
}

func esTimeout(err error) bool {
	var nerr interface{ Timeout() bool }
	return errors.As(err, &nerr) && nerr.Timeout()
}

var _ TransporteSifen = (*SoapClient)(nil)
