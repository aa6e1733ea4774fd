package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/facturacion-sifen/internal/domain"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/repository"
)

var _ repository.DocumentoRepository = (*DocumentoRepo)(nil)

// Ventana tras la cual un reclamo se considera huérfano (proceso caído a mitad
// de ciclo) y el documento vuelve a ser elegible.
const vencimientoReclamo = 10 * time.Minute

// columnasDocumento en el orden que espera scanDocumento.
const columnasDocumento = `
	id, id_venta, id_sociedad, tipo_documento,
	timbrado, establecimiento, punto_expedicion, numero_documento,
	COALESCE(cdc, ''), COALESCE(codigo_seguridad, ''),
	COALESCE(xml_canonico, ''), COALESCE(xml_firmado, ''), COALESCE(url_qr, ''),
	estado, intentos, ultimo_intento, COALESCE(ultimo_error, ''),
	COALESCE(numero_protocolo, ''), COALESCE(id_lote, ''),
	fecha_emision, creado_en, actualizado_en`

// DocumentoRepo implementación de DocumentoRepository sobre PostgreSQL (usable con pool o tx).
type DocumentoRepo struct {
	q Querier
}

// NewDocumentoRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentoRepository(q Querier) *DocumentoRepo {
	return &DocumentoRepo{q: q}
}

// Crear encola un documento fiscal nuevo en estado PENDIENTE.
func (r *DocumentoRepo) Crear(ctx context.Context, doc *entity.DocumentoFiscal) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Estado == "" {
		doc.Estado = entity.EstadoPendiente
	}
	query := `
		INSERT INTO documentos_fiscales (
			id, id_venta, id_sociedad, tipo_documento,
			timbrado, establecimiento, punto_expedicion, numero_documento,
			cdc, codigo_seguridad, estado, intentos, fecha_emision,
			creado_en, actualizado_en
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, now(), now())`
	_, err := r.q.Exec(ctx, query,
		doc.ID, doc.IdVenta, doc.IdSociedad, doc.TipoDocumento,
		doc.Timbrado, doc.Establecimiento, doc.PuntoExpedicion, doc.NumeroDocumento,
		nullIfEmpty(doc.CDC), nullIfEmpty(doc.CodigoSeguridad), doc.Estado, doc.FechaEmision,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: numeración o CDC ya registrados", domain.ErrCDCDuplicado)
		}
		return fmt.Errorf("crear documento fiscal: %w", err)
	}
	return nil
}

// GetByID obtiene un documento fiscal por su ID interno.
func (r *DocumentoRepo) GetByID(ctx context.Context, id string) (*entity.DocumentoFiscal, error) {
	query := `SELECT ` + columnasDocumento + ` FROM documentos_fiscales WHERE id = $1`
	doc, err := scanDocumento(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get documento: %w", err)
	}
	return doc, nil
}

// GetByCDC busca un documento por su CDC.
func (r *DocumentoRepo) GetByCDC(ctx context.Context, cdc string) (*entity.DocumentoFiscal, error) {
	query := `SELECT ` + columnasDocumento + ` FROM documentos_fiscales WHERE cdc = $1`
	doc, err := scanDocumento(r.q.QueryRow(ctx, query, cdc))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get documento por cdc: %w", err)
	}
	return doc, nil
}

// ReclamarPendientes toma hasta limit documentos elegibles y los marca como
// reclamados por esta instancia. El SKIP LOCKED garantiza que dos instancias
// concurrentes nunca reclaman el mismo documento; los reclamos vencidos
// (CONSTRUYENDO, FIRMADO o LISTO_ENVIO sin avance) vuelven al lote porque el
// CDC persistido hace seguro reanudarlos.
func (r *DocumentoRepo) ReclamarPendientes(ctx context.Context, limit int) ([]*entity.DocumentoFiscal, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		UPDATE documentos_fiscales
		SET estado = $1, reclamado_en = now(), actualizado_en = now()
		WHERE id IN (
			SELECT id FROM documentos_fiscales
			WHERE estado = $2
			   OR (estado IN ($1, $3, $4) AND reclamado_en < now() - make_interval(mins => $5))
			ORDER BY creado_en
			FOR UPDATE SKIP LOCKED
			LIMIT $6
		)
		RETURNING ` + columnasDocumento
	rows, err := r.q.Query(ctx, query,
		entity.EstadoConstruyendo, entity.EstadoPendiente,
		entity.EstadoFirmado, entity.EstadoListoEnvio,
		int(vencimientoReclamo.Minutes()), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reclamar pendientes: %w", err)
	}
	defer rows.Close()
	return collectDocumentos(rows)
}

// Actualizar persiste el resultado de una etapa del pipeline.
func (r *DocumentoRepo) Actualizar(ctx context.Context, doc *entity.DocumentoFiscal) error {
	query := `
		UPDATE documentos_fiscales SET
			cdc = COALESCE($2, cdc),
			codigo_seguridad = COALESCE($3, codigo_seguridad),
			xml_canonico = COALESCE($4, xml_canonico),
			xml_firmado = COALESCE($5, xml_firmado),
			url_qr = COALESCE($6, url_qr),
			estado = $7,
			intentos = $8,
			ultimo_intento = $9,
			ultimo_error = $10,
			numero_protocolo = COALESCE($11, numero_protocolo),
			id_lote = COALESCE($12, id_lote),
			actualizado_en = now()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		doc.ID,
		nullIfEmpty(doc.CDC), nullIfEmpty(doc.CodigoSeguridad),
		nullIfEmpty(doc.XmlCanonico), nullIfEmpty(doc.XmlFirmado), nullIfEmpty(doc.UrlQr),
		doc.Estado, doc.Intentos, doc.UltimoIntento, doc.UltimoError,
		nullIfEmpty(doc.NumeroProtocolo), nullIfEmpty(doc.IdLote),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrCDCDuplicado, doc.CDC)
		}
		return fmt.Errorf("actualizar documento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("actualizar documento %s: %w", doc.ID, domain.ErrNoEncontrado)
	}
	return nil
}

// ExisteCDC indica si otro documento ya tiene asignado ese CDC.
func (r *DocumentoRepo) ExisteCDC(ctx context.Context, cdc string) (bool, error) {
	var existe bool
	query := `SELECT EXISTS(SELECT 1 FROM documentos_fiscales WHERE cdc = $1)`
	if err := r.q.QueryRow(ctx, query, cdc).Scan(&existe); err != nil {
		return false, fmt.Errorf("existe cdc: %w", err)
	}
	return existe, nil
}

// ListarEnviadosSinResolver devuelve documentos que quedaron en ENVIADO de
// ciclos anteriores, del más antiguo al más reciente, para reconciliarlos
// por consulta de estado antes de procesar pendientes nuevos.
func (r *DocumentoRepo) ListarEnviadosSinResolver(ctx context.Context, limit int) ([]*entity.DocumentoFiscal, error) {
	query := `
		SELECT ` + columnasDocumento + `
		FROM documentos_fiscales
		WHERE estado = $1
		ORDER BY actualizado_en
		LIMIT $2`
	rows, err := r.q.Query(ctx, query, entity.EstadoEnviado, limit)
	if err != nil {
		return nil, fmt.Errorf("listar enviados sin resolver: %w", err)
	}
	defer rows.Close()
	return collectDocumentos(rows)
}

// Listar consulta de solo lectura para la superficie de monitoreo.
func (r *DocumentoRepo) Listar(ctx context.Context, filtro repository.FiltroDocumentos) ([]*entity.DocumentoFiscal, error) {
	query := `SELECT ` + columnasDocumento + ` FROM documentos_fiscales WHERE 1=1`
	args := []any{}
	if filtro.Estado != "" {
		args = append(args, filtro.Estado)
		query += fmt.Sprintf(" AND estado = $%d", len(args))
	}
	if filtro.IdSociedad != "" {
		args = append(args, filtro.IdSociedad)
		query += fmt.Sprintf(" AND id_sociedad = $%d", len(args))
	}
	if filtro.Desde != nil {
		args = append(args, *filtro.Desde)
		query += fmt.Sprintf(" AND fecha_emision >= $%d", len(args))
	}
	if filtro.Hasta != nil {
		args = append(args, *filtro.Hasta)
		query += fmt.Sprintf(" AND fecha_emision <= $%d", len(args))
	}
	query += " ORDER BY creado_en DESC"
	limit := filtro.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filtro.Offset > 0 {
		args = append(args, filtro.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listar documentos: %w", err)
	}
	defer rows.Close()
	return collectDocumentos(rows)
}

func scanDocumento(row pgx.Row) (*entity.DocumentoFiscal, error) {
	var doc entity.DocumentoFiscal
	err := row.Scan(
		&doc.ID, &doc.IdVenta, &doc.IdSociedad, &doc.TipoDocumento,
		&doc.Timbrado, &doc.Establecimiento, &doc.PuntoExpedicion, &doc.NumeroDocumento,
		&doc.CDC, &doc.CodigoSeguridad,
		&doc.XmlCanonico, &doc.XmlFirmado, &doc.UrlQr,
		&doc.Estado, &doc.Intentos, &doc.UltimoIntento, &doc.UltimoError,
		&doc.NumeroProtocolo, &doc.IdLote,
		&doc.FechaEmision, &doc.CreadoEn, &doc.ActualizadoEn,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func collectDocumentos(rows pgx.Rows) ([]*entity.DocumentoFiscal, error) {
	var list []*entity.DocumentoFiscal
	for rows.Next() {
		doc, err := scanDocumento(rows)
		if err != nil {
			return nil, fmt.Errorf("scan documento: %w", err)
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}
