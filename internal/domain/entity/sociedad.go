package entity

import "time"

// ActividadEconomica actividad económica registrada de la sociedad (gActEco).
type ActividadEconomica struct {
	Codigo      string
	Descripcion string
}

// Sociedad es la entidad emisora: dueña del certificado digital y de la
// configuración de endpoints SIFEN. Lectura durante el ciclo; rotación
// administrativa fuera de la cola.
type Sociedad struct {
	ID                string
	Nombre            string
	RUC               string // sin DV
	Dv                int
	TipoContribuyente string // 1=Persona física, 2=Persona jurídica
	Direccion         string
	NumeroCasa        string
	Departamento      int
	DescDepartamento  string
	Distrito          int
	DescDistrito      string
	Ciudad            int
	DescCiudad        string
	Telefono          string
	Email             string
	Actividades       []ActividadEconomica

	// Ambiente SIFEN: "test" o "prod". Los endpoints pueden sobreescribirse
	// por sociedad; vacío = URL por defecto del ambiente.
	Ambiente       string
	UrlEnvioDe     string
	UrlEnvioLote   string
	UrlConsultaDe  string
	UrlConsultaRuc string
	UrlQrBase      string

	// Certificado de firma (.p12) y CSC para el hash del QR.
	// PasswordCertificado y Csc jamás se escriben en logs.
	PathCertificadoP12     string
	PasswordCertificadoP12 string
	IdCsc                  string
	Csc                    string

	CreadoEn      time.Time
	ActualizadoEn time.Time
}
