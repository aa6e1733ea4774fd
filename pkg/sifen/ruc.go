package sifen

import (
	"fmt"
	"strconv"
	"strings"
)

// CalcularDvRuc calcula el dígito verificador del RUC paraguayo
// (versión oficial de la SET: pesos 2-9 de derecha a izquierda, (suma*10) % 11, 10 -> 0).
func CalcularDvRuc(ruc string) (int, error) {
	ruc = strings.TrimSpace(ruc)
	if ruc == "" {
		return 0, fmt.Errorf("sifen: RUC vacío")
	}
	if len(ruc) > 16 {
		return 0, fmt.Errorf("sifen: el RUC no soporta más de 16 dígitos")
	}
	suma := 0
	peso := 2
	for i := len(ruc) - 1; i >= 0; i-- {
		d := ruc[i]
		if d < '0' || d > '9' {
			return 0, fmt.Errorf("sifen: RUC %q contiene caracteres no numéricos", ruc)
		}
		suma += int(d-'0') * peso
		peso++
		if peso > 9 {
			peso = 2
		}
	}
	dv := (suma * 10) % 11
	if dv == 10 {
		dv = 0
	}
	return dv, nil
}

// FormatoRucValido indica si la cadena tiene forma de RUC: solo dígitos,
// hasta 16, sin DV pegado.
func FormatoRucValido(ruc string) bool {
	ruc = strings.TrimSpace(ruc)
	if ruc == "" || len(ruc) > 16 {
		return false
	}
	for i := 0; i < len(ruc); i++ {
		if ruc[i] < '0' || ruc[i] > '9' {
			return false
		}
	}
	return true
}

// ValidarDvRuc verifica que el DV declarado coincida con el calculado.
// Acepta tanto "80012345-7" como el par (ruc, dv) por separado.
func ValidarDvRuc(ruc string, dv int) error {
	if idx := strings.IndexByte(ruc, '-'); idx != -1 {
		declarado, err := strconv.Atoi(strings.TrimSpace(ruc[idx+1:]))
		if err != nil {
			return fmt.Errorf("sifen: DV del RUC %q no es numérico", ruc)
		}
		dv = declarado
		ruc = ruc[:idx]
	}
	calculado, err := CalcularDvRuc(ruc)
	if err != nil {
		return err
	}
	if calculado != dv {
		return fmt.Errorf("sifen: DV del RUC %s inválido: declarado %d, calculado %d", ruc, dv, calculado)
	}
	return nil
}
