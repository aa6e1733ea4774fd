package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-sifen/internal/domain"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/repository"
	infrasifen "github.com/tu-usuario/facturacion-sifen/internal/infrastructure/sifen"
	"github.com/tu-usuario/facturacion-sifen/pkg/logger"
)

const cdcPrueba = "01800174259001001000000112026081511234567890"

// ── Fakes en memoria ──────────────────────────────────────────────────────────

type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[string]*entity.DocumentoFiscal
	// orden de inserción para el FIFO del reclamo
	orden []string
	// reclamarVencidos simula reclamos con el plazo vencido: los documentos
	// que quedaron a mitad de pipeline vuelven a ser elegibles.
	reclamarVencidos bool
}

func newFakeDocRepo(docs ...*entity.DocumentoFiscal) *fakeDocRepo {
	r := &fakeDocRepo{docs: map[string]*entity.DocumentoFiscal{}}
	for _, d := range docs {
		copia := *d
		r.docs[d.ID] = &copia
		r.orden = append(r.orden, d.ID)
	}
	return r
}

func (r *fakeDocRepo) Crear(_ context.Context, doc *entity.DocumentoFiscal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copia := *doc
	r.docs[doc.ID] = &copia
	r.orden = append(r.orden, doc.ID)
	return nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, id string) (*entity.DocumentoFiscal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	copia := *d
	return &copia, nil
}

func (r *fakeDocRepo) GetByCDC(_ context.Context, cdc string) (*entity.DocumentoFiscal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.CDC == cdc {
			copia := *d
			return &copia, nil
		}
	}
	return nil, nil
}

func (r *fakeDocRepo) ReclamarPendientes(_ context.Context, limit int) ([]*entity.DocumentoFiscal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var elegibles []*entity.DocumentoFiscal
	for _, id := range r.orden {
		d := r.docs[id]
		switch d.Estado {
		case entity.EstadoPendiente:
			elegibles = append(elegibles, d)
		case entity.EstadoConstruyendo, entity.EstadoFirmado, entity.EstadoListoEnvio:
			if r.reclamarVencidos {
				elegibles = append(elegibles, d)
			}
		}
	}
	// Los más viejos primero, como el ORDER BY creado_en del repositorio real.
	sort.SliceStable(elegibles, func(i, j int) bool {
		return elegibles[i].CreadoEn.Before(elegibles[j].CreadoEn)
	})

	var claimed []*entity.DocumentoFiscal
	for _, d := range elegibles {
		if len(claimed) >= limit {
			break
		}
		d.Estado = entity.EstadoConstruyendo
		copia := *d
		claimed = append(claimed, &copia)
	}
	return claimed, nil
}

func (r *fakeDocRepo) Actualizar(_ context.Context, doc *entity.DocumentoFiscal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; !ok {
		return domain.ErrNoEncontrado
	}
	copia := *doc
	r.docs[doc.ID] = &copia
	return nil
}

func (r *fakeDocRepo) ExisteCDC(_ context.Context, cdc string) (bool, error) {
	d, _ := r.GetByCDC(context.Background(), cdc)
	return d != nil, nil
}

func (r *fakeDocRepo) ListarEnviadosSinResolver(_ context.Context, limit int) ([]*entity.DocumentoFiscal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*entity.DocumentoFiscal
	for _, id := range r.orden {
		if len(list) >= limit {
			break
		}
		if d := r.docs[id]; d.Estado == entity.EstadoEnviado {
			copia := *d
			list = append(list, &copia)
		}
	}
	return list, nil
}

func (r *fakeDocRepo) Listar(_ context.Context, _ repository.FiltroDocumentos) ([]*entity.DocumentoFiscal, error) {
	return nil, nil
}

func (r *fakeDocRepo) estado(t *testing.T, id string) string {
	t.Helper()
	d, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d.Estado
}

type fakeVentaRepo struct{ snap *entity.VentaSnapshot }

func (r *fakeVentaRepo) GetSnapshot(_ context.Context, _ string) (*entity.VentaSnapshot, error) {
	return r.snap, nil
}

type fakeSociedadRepo struct{ sociedad *entity.Sociedad }

func (r *fakeSociedadRepo) GetByID(_ context.Context, _ string) (*entity.Sociedad, error) {
	return r.sociedad, nil
}

type fakeConfigRepo struct{ cfg entity.ConfiguracionCola }

func (r *fakeConfigRepo) GetConfiguracion(_ context.Context) (*entity.ConfiguracionCola, error) {
	copia := r.cfg
	return &copia, nil
}

type fakeEjecucionRepo struct {
	mu        sync.Mutex
	registros []*entity.EjecucionCola
}

func (r *fakeEjecucionRepo) Registrar(_ context.Context, e *entity.EjecucionCola) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copia := *e
	r.registros = append(r.registros, &copia)
	return nil
}

func (r *fakeEjecucionRepo) ListarUltimas(_ context.Context, _ int) ([]*entity.EjecucionCola, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registros, nil
}

type fakeConstructor struct {
	err error
	// alConstruir simula eventos externos durante la construcción (por
	// ejemplo una cancelación del operador).
	alConstruir func()
}

func (c *fakeConstructor) Construir(_ context.Context, doc *entity.DocumentoFiscal, _ *entity.VentaSnapshot, _ *entity.Sociedad) (*infrasifen.DocumentoCanonico, error) {
	if c.alConstruir != nil {
		c.alConstruir()
	}
	if c.err != nil {
		return nil, c.err
	}
	cdc := doc.CDC
	if cdc == "" {
		cdc = cdcPrueba
	}
	return &infrasifen.DocumentoCanonico{
		Xml:             []byte("<rDE><DE Id=\"" + cdc + "\"/></rDE>"),
		CDC:             cdc,
		CodigoSeguridad: cdc[34:43],
	}, nil
}

type fakeFirmador struct {
	err      error
	alFirmar func()
}

func (f *fakeFirmador) Firmar(_ context.Context, canonico *infrasifen.DocumentoCanonico, _ *entity.Sociedad) (*infrasifen.DocumentoFirmado, error) {
	if f.alFirmar != nil {
		f.alFirmar()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &infrasifen.DocumentoFirmado{
		Xml:   append(canonico.Xml, []byte("<!--firmado-->")...),
		UrlQr: "https://ekuatia.set.gov.py/consultas-test/qr?nVersion=150",
	}, nil
}

type fakeTransporte struct {
	mu        sync.Mutex
	envios    int
	consultas int
	respuesta *infrasifen.ResultadoEnvio
	consulta  *infrasifen.ResultadoEnvio
}

func (t *fakeTransporte) Enviar(_ context.Context, _ []byte, _ *entity.Sociedad) (*infrasifen.ResultadoEnvio, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.envios++
	return t.respuesta, nil
}

func (t *fakeTransporte) EnviarLote(_ context.Context, _ [][]byte, _ *entity.Sociedad) (*infrasifen.ResultadoEnvio, error) {
	return t.respuesta, nil
}

func (t *fakeTransporte) ConsultarEstado(_ context.Context, _ string, _ *entity.Sociedad) (*infrasifen.ResultadoEnvio, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consultas++
	if t.consulta == nil {
		return &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionDesconocida}, nil
	}
	return t.consulta, nil
}

func (t *fakeTransporte) ConsultarLote(_ context.Context, _ string, _ *entity.Sociedad) (*infrasifen.ResultadoEnvio, error) {
	return t.respuesta, nil
}

func (t *fakeTransporte) ConsultarRuc(_ context.Context, _ string, _ *entity.Sociedad) (*infrasifen.ConsultaRuc, error) {
	return &infrasifen.ConsultaRuc{Existe: true}, nil
}

// ── Armado ────────────────────────────────────────────────────────────────────

type banco struct {
	docs       *fakeDocRepo
	ejecucion  *fakeEjecucionRepo
	transporte *fakeTransporte
	config     *fakeConfigRepo
	manager    *Manager
}

func armarManager(t *testing.T, transporte *fakeTransporte, constructor *fakeConstructor, firmador *fakeFirmador, docs ...*entity.DocumentoFiscal) *banco {
	t.Helper()
	docRepo := newFakeDocRepo(docs...)
	ejecucionRepo := &fakeEjecucionRepo{}
	configRepo := &fakeConfigRepo{cfg: entity.ConfiguracionCola{
		Activa:                true,
		IntervaloMinutos:      2,
		MaxDocumentosPorCiclo: 10,
		MaxReintentos:         3,
		Workers:               2,
	}}
	m := NewManager(
		docRepo,
		&fakeVentaRepo{snap: ventaPrueba()},
		&fakeSociedadRepo{sociedad: &entity.Sociedad{ID: "soc-1", RUC: "80017425", Dv: 9, Ambiente: "test"}},
		configRepo,
		ejecucionRepo,
		constructor,
		firmador,
		transporte,
		logger.New(logger.Config{Env: "production", Level: "error"}),
	)
	m.ahora = func() time.Time { return time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC) }
	return &banco{docs: docRepo, ejecucion: ejecucionRepo, transporte: transporte, config: configRepo, manager: m}
}

func ventaPrueba() *entity.VentaSnapshot {
	return &entity.VentaSnapshot{
		IdVenta:   "V-0001",
		MonedaISO: "PYG",
		Total:     decimal.NewFromInt(110000),
		TotalIva:  decimal.NewFromInt(10000),
		Items: []entity.VentaItem{{
			Descripcion:    "Producto de prueba",
			Cantidad:       decimal.NewFromInt(1),
			PrecioUnitario: decimal.NewFromInt(110000),
			TasaIva:        decimal.NewFromInt(10),
			Subtotal:       decimal.NewFromInt(110000),
		}},
		Receptor: entity.ReceptorSnapshot{
			Naturaleza:  1,
			RazonSocial: "Receptor S.A.",
			RUC:         "80017425",
			Dv:          9,
		},
	}
}

func documentoPendiente(id string) *entity.DocumentoFiscal {
	return &entity.DocumentoFiscal{
		ID:              id,
		IdVenta:         "V-0001",
		IdSociedad:      "soc-1",
		TipoDocumento:   "01",
		Timbrado:        "12345678",
		Establecimiento: "001",
		PuntoExpedicion: "001",
		NumeroDocumento: "0000001",
		Estado:          entity.EstadoPendiente,
		FechaEmision:    time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestCicloInactivo_RegistraCorridaSinTocarDocumentos(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionAceptado}}
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, documentoPendiente("d1"))
	b.config.cfg.Activa = false

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, ejecucion.Procesados)
	assert.Equal(t, entity.EstadoPendiente, b.docs.estado(t, "d1"))
	assert.Equal(t, 0, transporte.envios)
	require.Len(t, b.ejecucion.registros, 1)
}

func TestCiclo_DocumentoAceptado(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{
		Clasificacion:   infrasifen.ClasificacionAceptado,
		Codigo:          "0260",
		NumeroProtocolo: "7776665554",
	}}
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, documentoPendiente("d1"))

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ejecucion.Procesados)
	assert.Equal(t, 1, ejecucion.Aceptados)

	doc, err := b.docs.GetByID(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, entity.EstadoAceptado, doc.Estado)
	assert.Equal(t, "7776665554", doc.NumeroProtocolo)
	assert.Equal(t, cdcPrueba, doc.CDC)
	assert.NotEmpty(t, doc.XmlFirmado)
	assert.NotEmpty(t, doc.UrlQr)
}

func TestCiclo_RechazoDefinitivo(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{
		Clasificacion: infrasifen.ClasificacionRechazado,
		Codigo:        "0160",
		Mensaje:       "XML mal formado",
	}}
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, documentoPendiente("d1"))

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ejecucion.Rechazados)
	doc, _ := b.docs.GetByID(context.Background(), "d1")
	assert.Equal(t, entity.EstadoRechazado, doc.Estado)
	assert.Contains(t, doc.UltimoError, "0160")
}

func TestCiclo_FalloTransitorioVuelveAPendiente(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{
		Clasificacion: infrasifen.ClasificacionTransitoria,
		Mensaje:       "servicio no disponible",
	}}
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, documentoPendiente("d1"))

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ejecucion.Reintentados)
	doc, _ := b.docs.GetByID(context.Background(), "d1")
	assert.Equal(t, entity.EstadoPendiente, doc.Estado)
	assert.Equal(t, 1, doc.Intentos)
	assert.NotEmpty(t, doc.UltimoError)
	// El XML firmado queda persistido: el próximo intento no reconstruye.
	assert.NotEmpty(t, doc.XmlFirmado)
	assert.Equal(t, cdcPrueba, doc.CDC)
}

func TestCiclo_ReintentosAgotadosTerminaEnError(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{
		Clasificacion: infrasifen.ClasificacionTransitoria,
	}}
	doc := documentoPendiente("d1")
	doc.Intentos = 2 // MaxReintentos = 3: este es el último intento permitido
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, doc)

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ejecucion.Errores)
	final, _ := b.docs.GetByID(context.Background(), "d1")
	assert.Equal(t, entity.EstadoError, final.Estado)
	assert.Equal(t, 3, final.Intentos)
}

func TestCiclo_RespuestaDesconocidaSeReconciliaSinReenviar(t *testing.T) {
	transporte := &fakeTransporte{
		respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionDesconocida},
		consulta: &infrasifen.ResultadoEnvio{
			Clasificacion:   infrasifen.ClasificacionAceptado,
			NumeroProtocolo: "1112223334",
		},
	}
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, documentoPendiente("d1"))

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, transporte.envios, "una respuesta ambigua jamás provoca reenvío")
	assert.Equal(t, 1, transporte.consultas)
	assert.Equal(t, 1, ejecucion.Aceptados)
	doc, _ := b.docs.GetByID(context.Background(), "d1")
	assert.Equal(t, entity.EstadoAceptado, doc.Estado)
	assert.Equal(t, "1112223334", doc.NumeroProtocolo)
}

func TestCiclo_DesconocidaSinRespuestaDeConsultaQuedaEnviado(t *testing.T) {
	transporte := &fakeTransporte{
		respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionDesconocida},
	}
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, documentoPendiente("d1"))

	_, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entity.EstadoEnviado, b.docs.estado(t, "d1"))
	assert.Equal(t, 1, transporte.envios)
}

func TestCiclo_ReconciliaEnviadosDeCiclosAnteriores(t *testing.T) {
	transporte := &fakeTransporte{
		respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionAceptado},
		consulta: &infrasifen.ResultadoEnvio{
			Clasificacion: infrasifen.ClasificacionRechazado,
			Codigo:        "0160",
			Mensaje:       "rechazado en lote",
		},
	}
	enviado := documentoPendiente("d1")
	enviado.Estado = entity.EstadoEnviado
	enviado.CDC = cdcPrueba
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, enviado)

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ejecucion.Rechazados)
	assert.Equal(t, entity.EstadoRechazado, b.docs.estado(t, "d1"))
	assert.Equal(t, 0, transporte.envios)
}

func TestCiclo_DatosInvalidosVanDirectoAError(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionAceptado}}
	constructor := &fakeConstructor{err: fmt.Errorf("receptor sin RUC: %w", domain.ErrDatosInvalidos)}
	b := armarManager(t, transporte, constructor, &fakeFirmador{}, documentoPendiente("d1"))

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ejecucion.Errores)
	assert.Equal(t, entity.EstadoError, b.docs.estado(t, "d1"))
	assert.Equal(t, 0, transporte.envios)
}

func TestCiclo_CertificadoVencidoEsPermanente(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionAceptado}}
	firmador := &fakeFirmador{err: fmt.Errorf("sociedad soc-1: %w", domain.ErrCertificadoVencido)}
	b := armarManager(t, transporte, &fakeConstructor{}, firmador, documentoPendiente("d1"))

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ejecucion.Errores)
	assert.Equal(t, entity.EstadoError, b.docs.estado(t, "d1"))
	assert.Equal(t, 0, transporte.envios)
}

func TestCiclo_RespetaElCapPorCiclo(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionAceptado}}
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{},
		documentoPendiente("d1"), documentoPendiente("d2"), documentoPendiente("d3"))
	b.config.cfg.MaxDocumentosPorCiclo = 2

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, ejecucion.Procesados)
	assert.Equal(t, entity.EstadoPendiente, b.docs.estado(t, "d3"))
}

func TestReencolar_ResetaIntentos(t *testing.T) {
	transporte := &fakeTransporte{}
	doc := documentoPendiente("d1")
	doc.Estado = entity.EstadoError
	doc.Intentos = 3
	doc.UltimoError = "reintentos agotados"
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, doc)

	require.NoError(t, b.manager.Reencolar(context.Background(), "d1"))

	final, _ := b.docs.GetByID(context.Background(), "d1")
	assert.Equal(t, entity.EstadoPendiente, final.Estado)
	assert.Equal(t, 0, final.Intentos)
	assert.Empty(t, final.UltimoError)
}

func TestReencolar_AceptadoNoSePuede(t *testing.T) {
	doc := documentoPendiente("d1")
	doc.Estado = entity.EstadoAceptado
	b := armarManager(t, &fakeTransporte{}, &fakeConstructor{}, &fakeFirmador{}, doc)

	err := b.manager.Reencolar(context.Background(), "d1")
	assert.ErrorIs(t, err, domain.ErrEstadoInvalido)
}

func TestCancelar_PendienteOK(t *testing.T) {
	b := armarManager(t, &fakeTransporte{}, &fakeConstructor{}, &fakeFirmador{}, documentoPendiente("d1"))

	require.NoError(t, b.manager.Cancelar(context.Background(), "d1"))
	assert.Equal(t, entity.EstadoCancelado, b.docs.estado(t, "d1"))
}

func TestCancelar_TerminalNoSePuede(t *testing.T) {
	doc := documentoPendiente("d1")
	doc.Estado = entity.EstadoAceptado
	b := armarManager(t, &fakeTransporte{}, &fakeConstructor{}, &fakeFirmador{}, doc)

	err := b.manager.Cancelar(context.Background(), "d1")
	assert.ErrorIs(t, err, domain.ErrEstadoInvalido)
}

func TestCancelar_Inexistente(t *testing.T) {
	b := armarManager(t, &fakeTransporte{}, &fakeConstructor{}, &fakeFirmador{})

	err := b.manager.Cancelar(context.Background(), "no-existe")
	assert.ErrorIs(t, err, domain.ErrNoEncontrado)
}

func TestCiclo_EnviadoConCdcDesconocidoVuelveALaColaYSeReenvia(t *testing.T) {
	// La consulta responde que SIFEN no conoce el CDC: el envío anterior
	// nunca entró, así que el documento no puede quedar ENVIADO para siempre.
	transporte := &fakeTransporte{
		respuesta: &infrasifen.ResultadoEnvio{
			Clasificacion:   infrasifen.ClasificacionAceptado,
			Codigo:          "0260",
			NumeroProtocolo: "9990001112",
		},
		consulta: &infrasifen.ResultadoEnvio{
			Clasificacion: infrasifen.ClasificacionTransitoria,
			Codigo:        "0422",
			Mensaje:       "CDC no encontrado",
		},
	}
	enviado := documentoPendiente("d1")
	enviado.Estado = entity.EstadoEnviado
	enviado.CDC = cdcPrueba
	enviado.XmlFirmado = "<rDE><DE Id=\"" + cdcPrueba + "\"/></rDE><!--firmado-->"
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, enviado)

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	// Reconciliación: vuelve a PENDIENTE como reintento y el mismo ciclo lo
	// reclama, verifica el CDC una vez más y recién entonces lo reenvía.
	assert.Equal(t, 1, ejecucion.Reintentados)
	assert.Equal(t, 1, ejecucion.Aceptados)
	assert.Equal(t, 2, transporte.consultas)
	assert.Equal(t, 1, transporte.envios)

	doc, _ := b.docs.GetByID(context.Background(), "d1")
	assert.Equal(t, entity.EstadoAceptado, doc.Estado)
	assert.Equal(t, "9990001112", doc.NumeroProtocolo)
	assert.Equal(t, 1, doc.Intentos)
}

func TestCiclo_ReclamoVencidoConsultaElCdcAntesDeReenviar(t *testing.T) {
	// Documento que quedó LISTO_ENVIO por un corte: el envío pudo haber
	// salido. La consulta confirma que SIFEN ya lo aprobó, así que no hay
	// segundo envío.
	transporte := &fakeTransporte{
		respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionAceptado},
		consulta: &infrasifen.ResultadoEnvio{
			Clasificacion:   infrasifen.ClasificacionAceptado,
			NumeroProtocolo: "5554443332",
		},
	}
	doc := documentoPendiente("d1")
	doc.Estado = entity.EstadoListoEnvio
	doc.CDC = cdcPrueba
	doc.XmlFirmado = "<rDE><DE Id=\"" + cdcPrueba + "\"/></rDE><!--firmado-->"
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, doc)
	b.docs.reclamarVencidos = true

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, transporte.envios, "un reclamo vencido jamás reenvía a ciegas")
	assert.Equal(t, 1, transporte.consultas)
	assert.Equal(t, 1, ejecucion.Aceptados)

	final, _ := b.docs.GetByID(context.Background(), "d1")
	assert.Equal(t, entity.EstadoAceptado, final.Estado)
	assert.Equal(t, "5554443332", final.NumeroProtocolo)
}

func TestCiclo_ReclamoVencidoSinConfirmacionQuedaEnviado(t *testing.T) {
	// Si la consulta previa al reenvío tampoco es concluyente, el documento
	// queda ENVIADO para reconciliarse después; nunca sale otro envío.
	transporte := &fakeTransporte{
		respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionAceptado},
	}
	doc := documentoPendiente("d1")
	doc.Estado = entity.EstadoListoEnvio
	doc.CDC = cdcPrueba
	doc.XmlFirmado = "<rDE><DE Id=\"" + cdcPrueba + "\"/></rDE><!--firmado-->"
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, doc)
	b.docs.reclamarVencidos = true

	_, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, transporte.envios)
	assert.Equal(t, 1, transporte.consultas)
	assert.Equal(t, entity.EstadoEnviado, b.docs.estado(t, "d1"))
}

func TestCiclo_CancelacionDuranteLaConstruccionSeHonra(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionAceptado}}
	constructor := &fakeConstructor{}
	b := armarManager(t, transporte, constructor, &fakeFirmador{}, documentoPendiente("d1"))
	constructor.alConstruir = func() {
		require.NoError(t, b.manager.Cancelar(context.Background(), "d1"))
	}

	_, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entity.EstadoCancelado, b.docs.estado(t, "d1"))
	assert.Equal(t, 0, transporte.envios)
	assert.Equal(t, 0, transporte.consultas)
}

func TestCiclo_CancelacionTrasLaFirmaNoEnvia(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionAceptado}}
	firmador := &fakeFirmador{}
	b := armarManager(t, transporte, &fakeConstructor{}, firmador, documentoPendiente("d1"))
	firmador.alFirmar = func() {
		require.NoError(t, b.manager.Cancelar(context.Background(), "d1"))
	}

	_, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	final, _ := b.docs.GetByID(context.Background(), "d1")
	assert.Equal(t, entity.EstadoCancelado, final.Estado)
	assert.Empty(t, final.XmlFirmado, "la cancelación no se pisa con la persistencia de la firma")
	assert.Equal(t, 0, transporte.envios)
}

func TestCiclo_ReclamaLosMasViejosPrimero(t *testing.T) {
	transporte := &fakeTransporte{respuesta: &infrasifen.ResultadoEnvio{Clasificacion: infrasifen.ClasificacionAceptado}}
	base := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	d1 := documentoPendiente("d1")
	d1.CreadoEn = base.Add(5 * time.Minute)
	d2 := documentoPendiente("d2")
	d2.CreadoEn = base // el más viejo, encolado último
	d3 := documentoPendiente("d3")
	d3.CreadoEn = base.Add(3 * time.Minute)
	b := armarManager(t, transporte, &fakeConstructor{}, &fakeFirmador{}, d1, d2, d3)
	b.config.cfg.MaxDocumentosPorCiclo = 1

	ejecucion, err := b.manager.EjecutarCiclo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ejecucion.Procesados)
	assert.Equal(t, entity.EstadoAceptado, b.docs.estado(t, "d2"))
	assert.Equal(t, entity.EstadoPendiente, b.docs.estado(t, "d1"))
	assert.Equal(t, entity.EstadoPendiente, b.docs.estado(t, "d3"))
}
