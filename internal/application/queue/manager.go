// Package queue implementa el motor de la cola SIFEN: el ciclo periódico que
// toma documentos pendientes y los lleva por construcción, firma y envío
// hasta un estado terminal.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tu-usuario/facturacion-sifen/internal/domain"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/repository"
	infrasifen "github.com/tu-usuario/facturacion-sifen/internal/infrastructure/sifen"
	"github.com/tu-usuario/facturacion-sifen/pkg/logger"
)

// Manager orquesta el ciclo de vida completo de los documentos fiscales:
//
//	PENDIENTE → CONSTRUYENDO → FIRMADO → LISTO_ENVIO → ENVIADO → ACEPTADO/RECHAZADO
//
// Un único driver periódico dispara los ciclos; dentro de un ciclo los
// documentos se reparten a un pool acotado de workers (1–4). La configuración
// se lee al inicio de cada ciclo y nunca cambia a mitad de uno.
type Manager struct {
	docRepo       repository.DocumentoRepository
	ventaRepo     repository.VentaRepository
	sociedadRepo  repository.SociedadRepository
	configRepo    repository.ConfiguracionRepository
	ejecucionRepo repository.EjecucionRepository

	constructor infrasifen.ConstructorDocumentos
	firmador    infrasifen.FirmadorDocumentos
	transporte  infrasifen.TransporteSifen

	log   *logger.Logger
	ahora func() time.Time
}

// NewManager construye el motor de la cola con todas sus dependencias.
func NewManager(
	docRepo repository.DocumentoRepository,
	ventaRepo repository.VentaRepository,
	sociedadRepo repository.SociedadRepository,
	configRepo repository.ConfiguracionRepository,
	ejecucionRepo repository.EjecucionRepository,
	constructor infrasifen.ConstructorDocumentos,
	firmador infrasifen.FirmadorDocumentos,
	transporte infrasifen.TransporteSifen,
	log *logger.Logger,
) *Manager {
	return &Manager{
		docRepo:       docRepo,
		ventaRepo:     ventaRepo,
		sociedadRepo:  sociedadRepo,
		configRepo:    configRepo,
		ejecucionRepo: ejecucionRepo,
		constructor:   constructor,
		firmador:      firmador,
		transporte:    transporte,
		log:           log,
		ahora:         time.Now,
	}
}

// Run ejecuta ciclos hasta que el contexto se cancele. El intervalo entre
// ciclos se relee de la configuración, así un cambio del operador toma efecto
// en la siguiente espera.
func (m *Manager) Run(ctx context.Context) error {
	for {
		resumen, err := m.ciclo(ctx)
		if err != nil {
			m.log.Error().Err(err).Msg("ciclo de cola falló")
		}

		intervalo := 2 * time.Minute
		if resumen != nil && resumen.intervaloMinutos > 0 {
			intervalo = time.Duration(resumen.intervaloMinutos) * time.Minute
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(intervalo):
		}
	}
}

// resumenCiclo resultado interno de un ciclo, con el intervalo vigente para
// que Run programe la siguiente corrida.
type resumenCiclo struct {
	ejecucion        *entity.EjecucionCola
	intervaloMinutos int
}

// EjecutarCiclo corre un ciclo completo bajo demanda (acción "ejecutar ahora"
// del operador) y devuelve el resumen registrado.
func (m *Manager) EjecutarCiclo(ctx context.Context) (*entity.EjecucionCola, error) {
	resumen, err := m.ciclo(ctx)
	if resumen == nil {
		return nil, err
	}
	return resumen.ejecucion, err
}

// ciclo hace el trabajo de un ciclo: snapshot de configuración,
// reconciliación de envíos sin respuesta, reclamo FIFO de pendientes y
// procesamiento con workers acotados. Siempre registra una EjecucionCola,
// incluso para ciclos inactivos o sin trabajo.
func (m *Manager) ciclo(ctx context.Context) (*resumenCiclo, error) {
	cfg, err := m.configRepo.GetConfiguracion(ctx)
	if err != nil {
		return nil, fmt.Errorf("leer configuracion: %w", err)
	}
	cfg.Normalizar()

	ejecucion := &entity.EjecucionCola{Inicio: m.ahora()}
	resumen := &resumenCiclo{ejecucion: ejecucion, intervaloMinutos: cfg.IntervaloMinutos}

	if !cfg.Activa {
		ejecucion.Fin = m.ahora()
		ejecucion.Notas = "cola inactiva"
		if err := m.ejecucionRepo.Registrar(ctx, ejecucion); err != nil {
			return resumen, fmt.Errorf("registrar ciclo inactivo: %w", err)
		}
		m.log.Debug().Msg("cola inactiva, ciclo sin trabajo")
		return resumen, nil
	}

	// Primero resolver lo que quedó ENVIADO sin respuesta definitiva: nunca
	// se reenvía un documento sin antes agotar la consulta de estado.
	m.reconciliarEnviados(ctx, cfg, ejecucion)

	docs, err := m.docRepo.ReclamarPendientes(ctx, cfg.MaxDocumentosPorCiclo)
	if err != nil {
		ejecucion.Fin = m.ahora()
		ejecucion.Notas = "fallo al reclamar pendientes: " + err.Error()
		_ = m.ejecucionRepo.Registrar(ctx, ejecucion)
		return resumen, fmt.Errorf("reclamar pendientes: %w", err)
	}

	m.procesarEnParalelo(ctx, docs, cfg, ejecucion)

	ejecucion.Fin = m.ahora()
	if err := m.ejecucionRepo.Registrar(ctx, ejecucion); err != nil {
		return resumen, fmt.Errorf("registrar ejecucion: %w", err)
	}
	m.log.Info().
		Int("procesados", ejecucion.Procesados).
		Int("aceptados", ejecucion.Aceptados).
		Int("rechazados", ejecucion.Rechazados).
		Int("reintentados", ejecucion.Reintentados).
		Int("errores", ejecucion.Errores).
		Msg("ciclo de cola terminado")
	return resumen, nil
}

// procesarEnParalelo reparte los documentos reclamados entre cfg.Workers
// goroutines y acumula los contadores del ciclo bajo mutex.
func (m *Manager) procesarEnParalelo(ctx context.Context, docs []*entity.DocumentoFiscal, cfg *entity.ConfiguracionCola, ejecucion *entity.EjecucionCola) {
	if len(docs) == 0 {
		return
	}

	trabajos := make(chan *entity.DocumentoFiscal)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := cfg.Workers
	if workers > len(docs) {
		workers = len(docs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range trabajos {
				r := m.procesarDocumento(ctx, doc, cfg)
				mu.Lock()
				ejecucion.Procesados++
				switch r {
				case resultadoAceptado:
					ejecucion.Aceptados++
				case resultadoRechazado:
					ejecucion.Rechazados++
				case resultadoReintento:
					ejecucion.Reintentados++
				case resultadoError:
					ejecucion.Errores++
				}
				mu.Unlock()
			}
		}()
	}

	for _, doc := range docs {
		select {
		case <-ctx.Done():
			// El documento en curso termina; el resto vuelve por reclamo vencido.
			close(trabajos)
			wg.Wait()
			return
		case trabajos <- doc:
		}
	}
	close(trabajos)
	wg.Wait()
}

type resultadoDocumento int

const (
	resultadoSinCambio resultadoDocumento = iota
	resultadoAceptado
	resultadoRechazado
	resultadoReintento
	resultadoError
)

// procesarDocumento lleva un documento reclamado por build → firma → envío,
// persistiendo cada etapa para que un corte a mitad de camino se reanude sin
// regenerar identidad (el CDC asignado se reutiliza siempre).
func (m *Manager) procesarDocumento(ctx context.Context, doc *entity.DocumentoFiscal, cfg *entity.ConfiguracionCola) resultadoDocumento {
	logDoc := m.log.With().
		Str("documento", doc.ID).
		Str("tipo", doc.TipoDocumento).
		Int("intento", doc.Intentos+1).
		Logger()

	// Un documento reclamado con el XML firmado ya persistido viene de un
	// intento anterior interrumpido: pudo haber salido a la red.
	reanudado := doc.XmlFirmado != ""

	sociedad, err := m.sociedadRepo.GetByID(ctx, doc.IdSociedad)
	if err != nil {
		return m.marcarReintento(ctx, doc, cfg, fmt.Errorf("leer sociedad: %w", err))
	}
	if sociedad == nil {
		return m.marcarError(ctx, doc, fmt.Errorf("sociedad %s no existe: %w", doc.IdSociedad, domain.ErrDatosInvalidos))
	}

	venta, err := m.ventaRepo.GetSnapshot(ctx, doc.IdVenta)
	if err != nil {
		return m.marcarReintento(ctx, doc, cfg, fmt.Errorf("leer venta: %w", err))
	}
	if venta == nil {
		return m.marcarError(ctx, doc, fmt.Errorf("venta %s no existe: %w", doc.IdVenta, domain.ErrDatosInvalidos))
	}

	// Construir y firmar solo si el XML firmado no quedó persistido de un
	// intento anterior.
	if doc.XmlFirmado == "" {
		canonico, err := m.constructor.Construir(ctx, doc, venta, sociedad)
		if err != nil {
			if errors.Is(err, domain.ErrDatosInvalidos) || errors.Is(err, domain.ErrCDCDuplicado) {
				return m.marcarError(ctx, doc, err)
			}
			return m.marcarReintento(ctx, doc, cfg, err)
		}
		doc.CDC = canonico.CDC
		doc.CodigoSeguridad = canonico.CodigoSeguridad
		doc.XmlCanonico = string(canonico.Xml)
		if cancelado, r := m.abortarSiCancelado(ctx, doc); cancelado {
			return r
		}

		firmado, err := m.firmador.Firmar(ctx, canonico, sociedad)
		if err != nil {
			if domain.EsErrorPermanenteDeFirma(err) {
				return m.marcarError(ctx, doc, err)
			}
			return m.marcarReintento(ctx, doc, cfg, err)
		}
		if cancelado, r := m.abortarSiCancelado(ctx, doc); cancelado {
			return r
		}
		doc.XmlFirmado = string(firmado.Xml)
		doc.UrlQr = firmado.UrlQr
		doc.Estado = entity.EstadoFirmado
		if err := m.docRepo.Actualizar(ctx, doc); err != nil {
			return m.marcarReintento(ctx, doc, cfg, fmt.Errorf("persistir firmado: %w", err))
		}
		logDoc.Debug().Str("cdc", doc.CDC).Msg("documento firmado")
	}

	if cancelado, r := m.abortarSiCancelado(ctx, doc); cancelado {
		return r
	}

	if reanudado {
		if listo, r := m.verificarAntesDeReenviar(ctx, doc, sociedad); !listo {
			return r
		}
	}

	doc.Estado = entity.EstadoListoEnvio
	if err := m.docRepo.Actualizar(ctx, doc); err != nil {
		return m.marcarReintento(ctx, doc, cfg, fmt.Errorf("persistir listo para envío: %w", err))
	}

	resultado, err := m.transporte.Enviar(ctx, []byte(doc.XmlFirmado), sociedad)
	ahora := m.ahora()
	doc.UltimoIntento = &ahora
	if err != nil {
		return m.marcarReintento(ctx, doc, cfg, fmt.Errorf("enviar: %w", err))
	}

	switch resultado.Clasificacion {
	case infrasifen.ClasificacionAceptado:
		return m.marcarAceptado(ctx, doc, resultado.NumeroProtocolo)

	case infrasifen.ClasificacionRechazado:
		return m.marcarRechazado(ctx, doc, resultado.Codigo, resultado.Mensaje)

	case infrasifen.ClasificacionTransitoria:
		return m.marcarReintento(ctx, doc, cfg, fmt.Errorf("respuesta transitoria %s: %s", resultado.Codigo, resultado.Mensaje))

	default:
		// Respuesta desconocida: el documento pudo haber entrado a SIFEN.
		// Queda ENVIADO y se resuelve por consulta, nunca por reenvío.
		doc.Estado = entity.EstadoEnviado
		doc.UltimoError = "respuesta no interpretable; pendiente de consulta"
		if err := m.docRepo.Actualizar(ctx, doc); err != nil {
			logDoc.Error().Err(err).Msg("no se pudo persistir estado enviado")
			return resultadoError
		}
		logDoc.Warn().Str("cdc", doc.CDC).Msg("respuesta desconocida, se reconcilia por consulta")
		return m.reconciliarDocumento(ctx, doc, sociedad, cfg)
	}
}

// verificarAntesDeReenviar decide si un documento reanudado con XML firmado
// puede volver a la red. El reclamo anterior pudo cortarse con la transmisión
// ya despachada, así que primero se consulta el CDC: solo la confirmación de
// que SIFEN no lo conoce habilita otro envío. Cualquier otra respuesta deja
// el documento resuelto o ENVIADO a la espera de reconciliación.
func (m *Manager) verificarAntesDeReenviar(ctx context.Context, doc *entity.DocumentoFiscal, sociedad *entity.Sociedad) (bool, resultadoDocumento) {
	consulta, err := m.transporte.ConsultarEstado(ctx, doc.CDC, sociedad)
	if err == nil && consulta != nil {
		switch consulta.Clasificacion {
		case infrasifen.ClasificacionTransitoria:
			// CDC no encontrado: el envío anterior nunca entró a SIFEN.
			return true, resultadoSinCambio
		case infrasifen.ClasificacionAceptado:
			return false, m.marcarAceptado(ctx, doc, consulta.NumeroProtocolo)
		case infrasifen.ClasificacionRechazado:
			return false, m.marcarRechazado(ctx, doc, consulta.Codigo, consulta.Mensaje)
		}
	}
	doc.Estado = entity.EstadoEnviado
	doc.UltimoError = "posible envío previo sin confirmar; pendiente de consulta"
	if errAct := m.docRepo.Actualizar(ctx, doc); errAct != nil {
		m.log.Error().Err(errAct).Str("documento", doc.ID).Msg("no se pudo persistir estado enviado")
		return false, resultadoError
	}
	m.log.Warn().Str("documento", doc.ID).Str("cdc", doc.CDC).Msg("reanudado sin confirmación de envío, se reconcilia por consulta")
	return false, resultadoSinCambio
}

// reconciliarDocumento consulta el estado de un documento ENVIADO por su CDC
// y aplica el resultado. Un "CDC no encontrado" confirma que SIFEN nunca lo
// recibió y el documento vuelve a la cola como reintento; si la consulta no
// es concluyente, permanece ENVIADO para el siguiente ciclo.
func (m *Manager) reconciliarDocumento(ctx context.Context, doc *entity.DocumentoFiscal, sociedad *entity.Sociedad, cfg *entity.ConfiguracionCola) resultadoDocumento {
	consulta, err := m.transporte.ConsultarEstado(ctx, doc.CDC, sociedad)
	if err != nil || consulta == nil {
		return resultadoSinCambio
	}
	switch consulta.Clasificacion {
	case infrasifen.ClasificacionAceptado:
		return m.marcarAceptado(ctx, doc, consulta.NumeroProtocolo)
	case infrasifen.ClasificacionRechazado:
		return m.marcarRechazado(ctx, doc, consulta.Codigo, consulta.Mensaje)
	case infrasifen.ClasificacionTransitoria:
		return m.marcarReintento(ctx, doc, cfg, fmt.Errorf("consulta %s: %s", consulta.Codigo, consulta.Mensaje))
	default:
		return resultadoSinCambio
	}
}

// reconciliarEnviados resuelve documentos ENVIADO de ciclos anteriores antes
// de reclamar trabajo nuevo.
func (m *Manager) reconciliarEnviados(ctx context.Context, cfg *entity.ConfiguracionCola, ejecucion *entity.EjecucionCola) {
	docs, err := m.docRepo.ListarEnviadosSinResolver(ctx, 20)
	if err != nil {
		m.log.Error().Err(err).Msg("no se pudieron listar enviados sin resolver")
		return
	}
	for _, doc := range docs {
		sociedad, err := m.sociedadRepo.GetByID(ctx, doc.IdSociedad)
		if err != nil || sociedad == nil {
			continue
		}
		switch m.reconciliarDocumento(ctx, doc, sociedad, cfg) {
		case resultadoAceptado:
			ejecucion.Procesados++
			ejecucion.Aceptados++
		case resultadoRechazado:
			ejecucion.Procesados++
			ejecucion.Rechazados++
		case resultadoReintento:
			ejecucion.Procesados++
			ejecucion.Reintentados++
		case resultadoError:
			ejecucion.Procesados++
			ejecucion.Errores++
		}
	}
}

// abortarSiCancelado relee el estado persistido entre etapas: una cancelación
// del operador se honra antes de la siguiente etapa, no a mitad de una.
func (m *Manager) abortarSiCancelado(ctx context.Context, doc *entity.DocumentoFiscal) (bool, resultadoDocumento) {
	actual, err := m.docRepo.GetByID(ctx, doc.ID)
	if err != nil || actual == nil {
		return false, resultadoSinCambio
	}
	if actual.Estado == entity.EstadoCancelado {
		m.log.Info().Str("documento", doc.ID).Msg("cancelado por operador, se abandona el procesamiento")
		return true, resultadoSinCambio
	}
	return false, resultadoSinCambio
}

// marcarAceptado persiste la aprobación de SIFEN con su número de protocolo.
func (m *Manager) marcarAceptado(ctx context.Context, doc *entity.DocumentoFiscal, protocolo string) resultadoDocumento {
	doc.Estado = entity.EstadoAceptado
	doc.NumeroProtocolo = protocolo
	doc.UltimoError = ""
	if err := m.docRepo.Actualizar(ctx, doc); err != nil {
		m.log.Error().Err(err).Str("documento", doc.ID).Msg("no se pudo persistir aceptación")
		return resultadoError
	}
	m.log.Info().Str("documento", doc.ID).Str("cdc", doc.CDC).Str("protocolo", protocolo).Msg("documento aceptado")
	return resultadoAceptado
}

// marcarRechazado persiste un rechazo definitivo de SIFEN.
func (m *Manager) marcarRechazado(ctx context.Context, doc *entity.DocumentoFiscal, codigo, mensaje string) resultadoDocumento {
	doc.Estado = entity.EstadoRechazado
	doc.UltimoError = codigo + ": " + mensaje
	if err := m.docRepo.Actualizar(ctx, doc); err != nil {
		m.log.Error().Err(err).Str("documento", doc.ID).Msg("no se pudo persistir rechazo")
		return resultadoError
	}
	m.log.Warn().Str("documento", doc.ID).Str("cdc", doc.CDC).Str("codigo", codigo).Msg("documento rechazado")
	return resultadoRechazado
}

// marcarReintento incrementa el contador de intentos y devuelve el documento
// a PENDIENTE para un ciclo futuro; al agotar MaxReintentos pasa a ERROR.
func (m *Manager) marcarReintento(ctx context.Context, doc *entity.DocumentoFiscal, cfg *entity.ConfiguracionCola, causa error) resultadoDocumento {
	doc.Intentos++
	ahora := m.ahora()
	doc.UltimoIntento = &ahora
	doc.UltimoError = causa.Error()

	if doc.Intentos >= cfg.MaxReintentos {
		doc.Estado = entity.EstadoError
		if err := m.docRepo.Actualizar(ctx, doc); err != nil {
			m.log.Error().Err(err).Str("documento", doc.ID).Msg("no se pudo persistir agotamiento de reintentos")
		}
		m.log.Warn().Str("documento", doc.ID).Int("intentos", doc.Intentos).Err(causa).Msg("reintentos agotados")
		return resultadoError
	}

	doc.Estado = entity.EstadoPendiente
	if err := m.docRepo.Actualizar(ctx, doc); err != nil {
		m.log.Error().Err(err).Str("documento", doc.ID).Msg("no se pudo devolver el documento a pendiente")
		return resultadoError
	}
	m.log.Warn().Str("documento", doc.ID).Int("intentos", doc.Intentos).Err(causa).Msg("fallo transitorio, vuelve a la cola")
	return resultadoReintento
}

// marcarError lleva el documento directo a ERROR: datos permanentemente
// inválidos o certificado inutilizable no se reintentan.
func (m *Manager) marcarError(ctx context.Context, doc *entity.DocumentoFiscal, causa error) resultadoDocumento {
	doc.Estado = entity.EstadoError
	ahora := m.ahora()
	doc.UltimoIntento = &ahora
	doc.UltimoError = causa.Error()
	if err := m.docRepo.Actualizar(ctx, doc); err != nil {
		m.log.Error().Err(err).Str("documento", doc.ID).Msg("no se pudo persistir el error permanente")
	}
	m.log.Error().Str("documento", doc.ID).Err(causa).Msg("error permanente, requiere intervención del operador")
	return resultadoError
}

// Reencolar acción de operador: devuelve a PENDIENTE un documento en ERROR,
// RECHAZADO o CANCELADO, reseteando el contador de intentos. Un documento
// ACEPTADO jamás se reencola.
func (m *Manager) Reencolar(ctx context.Context, idDocumento string) error {
	doc, err := m.docRepo.GetByID(ctx, idDocumento)
	if err != nil {
		return err
	}
	if doc == nil {
		return domain.ErrNoEncontrado
	}
	switch doc.Estado {
	case entity.EstadoError, entity.EstadoRechazado, entity.EstadoCancelado:
	default:
		return fmt.Errorf("reencolar desde %s: %w", doc.Estado, domain.ErrEstadoInvalido)
	}
	doc.Estado = entity.EstadoPendiente
	doc.Intentos = 0
	doc.UltimoError = ""
	if err := m.docRepo.Actualizar(ctx, doc); err != nil {
		return err
	}
	m.log.Info().Str("documento", doc.ID).Msg("documento reencolado por operador")
	return nil
}

// Cancelar acción de operador: lleva a CANCELADO cualquier documento no
// terminal. Los estados terminales no se tocan.
func (m *Manager) Cancelar(ctx context.Context, idDocumento string) error {
	doc, err := m.docRepo.GetByID(ctx, idDocumento)
	if err != nil {
		return err
	}
	if doc == nil {
		return domain.ErrNoEncontrado
	}
	if entity.EsEstadoTerminal(doc.Estado) {
		return fmt.Errorf("cancelar desde %s: %w", doc.Estado, domain.ErrEstadoInvalido)
	}
	doc.Estado = entity.EstadoCancelado
	if err := m.docRepo.Actualizar(ctx, doc); err != nil {
		return err
	}
	m.log.Info().Str("documento", doc.ID).Msg("documento cancelado por operador")
	return nil
}
