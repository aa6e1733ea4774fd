// seed_catalogo genera el script SQL del catálogo geográfico SIFEN
// (departamento, distrito, ciudad) a partir del CSV publicado por la DNIT.
//
// Uso: go run ./cmd/seed_catalogo [ruta/catalogo_geografico.csv]
// Sin argumento usa SIFEN_CATALOGO_GEO_CSV de la configuración, o
// catalogo_geografico.csv en el directorio actual.
// El CSV oficial viene en ISO-8859-1 separado por punto y coma.
// Escribe: internal/infrastructure/postgres/migrations/002_seed_catalogo_geografico.sql
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/tu-usuario/facturacion-sifen/pkg/config"
)

type fila struct {
	deptCod, dept, distCod, dist, ciuCod, ciu string
}

func main() {
	csvPath := "catalogo_geografico.csv"
	if cfg, err := config.Load(); err == nil && cfg.Sifen.RutaCatalogoGeo != "" {
		csvPath = cfg.Sifen.RutaCatalogoGeo
	}
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}
	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	// El catálogo oficial viene en latin-1; convertir a UTF-8 al leer.
	r := csv.NewReader(transform.NewReader(f, charmap.ISO8859_1.NewDecoder()))
	r.Comma = ';'
	r.FieldsPerRecord = 6

	registros, err := r.ReadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer CSV: %v\n", err)
		os.Exit(1)
	}

	var filas []fila
	for i, reg := range registros {
		if i == 0 && strings.EqualFold(strings.TrimSpace(reg[0]), "departamento_cod") {
			continue // cabecera
		}
		fl := fila{
			deptCod: strings.TrimSpace(reg[0]),
			dept:    strings.TrimSpace(reg[1]),
			distCod: strings.TrimSpace(reg[2]),
			dist:    strings.TrimSpace(reg[3]),
			ciuCod:  strings.TrimSpace(reg[4]),
			ciu:     strings.TrimSpace(reg[5]),
		}
		if fl.deptCod == "" || fl.distCod == "" || fl.ciuCod == "" {
			continue
		}
		filas = append(filas, fl)
	}

	moduleRoot := findModuleRoot()
	outPath := filepath.Join(moduleRoot, "internal", "infrastructure", "postgres", "migrations", "002_seed_catalogo_geografico.sql")
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	out.WriteString("-- Catálogo geográfico SIFEN (departamento, distrito, ciudad)\n")
	out.WriteString("-- Generado desde el CSV oficial de la DNIT\n\n")

	for _, fl := range filas {
		fmt.Fprintf(out,
			"INSERT INTO catalogo_geografico (departamento, desc_departamento, distrito, desc_distrito, ciudad, desc_ciudad)\n"+
				"VALUES (%s, '%s', %s, '%s', %s, '%s')\n"+
				"ON CONFLICT (ciudad) DO UPDATE SET desc_ciudad = EXCLUDED.desc_ciudad;\n",
			fl.deptCod, escapeSQL(fl.dept),
			fl.distCod, escapeSQL(fl.dist),
			fl.ciuCod, escapeSQL(fl.ciu),
		)
	}

	fmt.Printf("Generado %s: %d ciudades\n", outPath, len(filas))
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
