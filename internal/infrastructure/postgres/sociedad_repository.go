package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/repository"
)

var _ repository.SociedadRepository = (*SociedadRepo)(nil)

// SociedadRepo lectura de sociedades emisoras sobre PostgreSQL.
type SociedadRepo struct {
	q Querier
}

// NewSociedadRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSociedadRepository(q Querier) *SociedadRepo {
	return &SociedadRepo{q: q}
}

// GetByID obtiene la sociedad con sus actividades económicas.
// Las credenciales del certificado y el CSC se devuelven en la entidad pero
// nunca deben escribirse en logs ni respuestas HTTP.
func (r *SociedadRepo) GetByID(ctx context.Context, id string) (*entity.Sociedad, error) {
	query := `
		SELECT id, nombre, ruc, dv, tipo_contribuyente,
		       COALESCE(direccion, ''), COALESCE(numero_casa, ''),
		       departamento, COALESCE(desc_departamento, ''),
		       distrito, COALESCE(desc_distrito, ''),
		       ciudad, COALESCE(desc_ciudad, ''),
		       COALESCE(telefono, ''), COALESCE(email, ''),
		       ambiente,
		       COALESCE(url_envio_de, ''), COALESCE(url_envio_lote, ''),
		       COALESCE(url_consulta_de, ''), COALESCE(url_consulta_ruc, ''),
		       COALESCE(url_qr_base, ''),
		       path_certificado_p12, password_certificado_p12,
		       COALESCE(id_csc, ''), COALESCE(csc, ''),
		       creado_en, actualizado_en
		FROM sociedades WHERE id = $1`
	var s entity.Sociedad
	err := r.q.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Nombre, &s.RUC, &s.Dv, &s.TipoContribuyente,
		&s.Direccion, &s.NumeroCasa,
		&s.Departamento, &s.DescDepartamento,
		&s.Distrito, &s.DescDistrito,
		&s.Ciudad, &s.DescCiudad,
		&s.Telefono, &s.Email,
		&s.Ambiente,
		&s.UrlEnvioDe, &s.UrlEnvioLote,
		&s.UrlConsultaDe, &s.UrlConsultaRuc,
		&s.UrlQrBase,
		&s.PathCertificadoP12, &s.PasswordCertificadoP12,
		&s.IdCsc, &s.Csc,
		&s.CreadoEn, &s.ActualizadoEn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sociedad: %w", err)
	}

	actividades, err := r.actividades(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Actividades = actividades
	return &s, nil
}

func (r *SociedadRepo) actividades(ctx context.Context, idSociedad string) ([]entity.ActividadEconomica, error) {
	query := `
		SELECT codigo, descripcion
		FROM sociedad_actividades
		WHERE id_sociedad = $1
		ORDER BY orden`
	rows, err := r.q.Query(ctx, query, idSociedad)
	if err != nil {
		return nil, fmt.Errorf("listar actividades: %w", err)
	}
	defer rows.Close()
	var list []entity.ActividadEconomica
	for rows.Next() {
		var a entity.ActividadEconomica
		if err := rows.Scan(&a.Codigo, &a.Descripcion); err != nil {
			return nil, fmt.Errorf("scan actividad: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
