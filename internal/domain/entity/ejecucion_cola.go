package entity

import "time"

// EjecucionCola registra el resultado agregado de un ciclo de la cola.
type EjecucionCola struct {
	ID           string
	Inicio       time.Time
	Fin          time.Time
	Procesados   int
	Aceptados    int
	Rechazados   int
	Reintentados int
	Errores      int
	Notas        string
}

// ConfiguracionCola parámetros operativos de la cola, reevaluados al inicio
// de cada ciclo (los cambios no afectan al ciclo en curso).
type ConfiguracionCola struct {
	Activa                bool
	IntervaloMinutos      int
	MaxDocumentosPorCiclo int
	MaxReintentos         int
	Workers               int
	ActualizadoEn         time.Time
}

// Normalizar aplica los valores por defecto y acota los rangos válidos.
func (c *ConfiguracionCola) Normalizar() {
	if c.IntervaloMinutos <= 0 {
		c.IntervaloMinutos = 2
	}
	if c.MaxDocumentosPorCiclo <= 0 {
		c.MaxDocumentosPorCiclo = 10
	}
	if c.MaxReintentos <= 0 {
		c.MaxReintentos = 3
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Workers > 4 {
		c.Workers = 4
	}
}
