package sifen

import (
	"context"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/repository"
)

// CredencialesPorDefecto certificado y CSC globales de la configuración,
// aplicados a las sociedades que no tienen los propios cargados.
type CredencialesPorDefecto struct {
	PathCertificadoP12     string
	PasswordCertificadoP12 string
	IdCsc                  string
	Csc                    string
}

// SociedadesConCredenciales decora un SociedadRepository completando las
// credenciales faltantes con los valores globales. Los valores propios de la
// sociedad siempre ganan: solo se completan pares vacíos (certificado con su
// contraseña, CSC con su identificador).
type SociedadesConCredenciales struct {
	repository.SociedadRepository
	defaults CredencialesPorDefecto
}

// NewSociedadesConCredenciales construye el decorador.
func NewSociedadesConCredenciales(repo repository.SociedadRepository, defaults CredencialesPorDefecto) *SociedadesConCredenciales {
	return &SociedadesConCredenciales{SociedadRepository: repo, defaults: defaults}
}

// GetByID devuelve la sociedad con las credenciales globales aplicadas donde falten.
func (s *SociedadesConCredenciales) GetByID(ctx context.Context, id string) (*entity.Sociedad, error) {
	sociedad, err := s.SociedadRepository.GetByID(ctx, id)
	if err != nil || sociedad == nil {
		return sociedad, err
	}
	if sociedad.PathCertificadoP12 == "" {
		sociedad.PathCertificadoP12 = s.defaults.PathCertificadoP12
		sociedad.PasswordCertificadoP12 = s.defaults.PasswordCertificadoP12
	}
	if sociedad.Csc == "" {
		sociedad.Csc = s.defaults.Csc
		sociedad.IdCsc = s.defaults.IdCsc
	}
	return sociedad, nil
}
