// Package sifen contiene validaciones de dominio para facturación electrónica
// SIFEN (Paraguay), según el Manual Técnico v150. Utiliza catálogos y reglas
// de pkg/sifen.
package sifen

import (
	"errors"
	"fmt"

	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/pkg/sifen"

	"github.com/shopspring/decimal"
)

// ErrVentaInvalida agrupa errores de validación de la venta origen.
var ErrVentaInvalida = errors.New("venta inválida para SIFEN")

// ValidarVenta valida el snapshot de la venta antes de construir el documento
// electrónico. Para receptores contribuyentes exige RUC con dígito verificador
// válido; para no contribuyentes exige un tipo de documento de identidad del
// catálogo iTipIDRec (o lo deja caer al tratamiento de Innominado). Comprueba
// que los totales coincidan con la suma de los ítems.
func ValidarVenta(venta *entity.VentaSnapshot, tipoDocumento string) error {
	if venta == nil {
		return fmt.Errorf("%w: venta nula", ErrVentaInvalida)
	}
	var errs []error

	if err := validarReceptor(&venta.Receptor); err != nil {
		errs = append(errs, err)
	}

	// Notas de crédito referencian obligatoriamente la venta asociada.
	if tipoDocumento == sifen.TipoDocNotaCredito {
		if venta.CdcVentaAsociada == "" {
			errs = append(errs, fmt.Errorf("%w: nota de crédito sin CDC de venta asociada", ErrVentaInvalida))
		} else if !sifen.ValidarCDC(venta.CdcVentaAsociada) {
			errs = append(errs, fmt.Errorf("%w: CDC de venta asociada mal formado", ErrVentaInvalida))
		}
	}

	// Moneda extranjera requiere tipo de cambio positivo.
	if venta.MonedaISO != "" && venta.MonedaISO != "PYG" && !venta.CambioDelDia.IsPositive() {
		errs = append(errs, fmt.Errorf("%w: moneda %s sin tipo de cambio", ErrVentaInvalida, venta.MonedaISO))
	}

	// Totales coherentes con los ítems.
	if len(venta.Items) == 0 {
		errs = append(errs, fmt.Errorf("%w: la venta debe tener al menos un ítem", ErrVentaInvalida))
	} else {
		var sumTotal, sumIva decimal.Decimal
		for i, item := range venta.Items {
			if !item.Cantidad.IsPositive() {
				errs = append(errs, fmt.Errorf("ítem %d: cantidad no positiva", i+1))
			}
			if item.PrecioUnitario.IsNegative() {
				errs = append(errs, fmt.Errorf("ítem %d: precio unitario negativo", i+1))
			}
			sumTotal = sumTotal.Add(item.Subtotal)
			sumIva = sumIva.Add(ivaDelItem(item))
		}
		if !venta.Total.Equal(sumTotal.Round(0)) {
			errs = append(errs, fmt.Errorf("total (%s) no coincide con la suma de subtotales de ítems (%s)", venta.Total.String(), sumTotal.Round(0).String()))
		}
		if !venta.TotalIva.Equal(sumIva.Round(0)) {
			errs = append(errs, fmt.Errorf("total IVA (%s) no coincide con el IVA calculado por ítems (%s)", venta.TotalIva.String(), sumIva.Round(0).String()))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrVentaInvalida}, errs...)...)
	}
	return nil
}

// ivaDelItem calcula el IVA incluido en el subtotal de la línea.
// En Paraguay los precios incluyen IVA: base = subtotal / (1 + tasa/100).
func ivaDelItem(item entity.VentaItem) decimal.Decimal {
	if item.TasaIva.IsZero() {
		return decimal.Zero
	}
	divisor := decimal.NewFromInt(100).Add(item.TasaIva)
	return item.Subtotal.Mul(item.TasaIva).Div(divisor).Round(0)
}

func validarReceptor(r *entity.ReceptorSnapshot) error {
	if r.RazonSocial == "" {
		return fmt.Errorf("%w: receptor sin razón social", ErrVentaInvalida)
	}
	switch r.Naturaleza {
	case sifen.NaturalezaContribuyente:
		if r.RUC == "" {
			return fmt.Errorf("%w: receptor contribuyente sin RUC", ErrVentaInvalida)
		}
		if err := sifen.ValidarDvRuc(r.RUC, r.Dv); err != nil {
			return fmt.Errorf("RUC del receptor: %w", err)
		}
	case sifen.NaturalezaNoContribuyente:
		// Sin documento declarado: se emite como Innominado con documento "0".
		if r.TipoDocumentoIdentidad == nil {
			return nil
		}
		if _, ok := sifen.TiposDocumentoIdentidadValidos[*r.TipoDocumentoIdentidad]; !ok {
			return fmt.Errorf("%w: tipo de documento de identidad %d fuera de catálogo", ErrVentaInvalida, *r.TipoDocumentoIdentidad)
		}
		if *r.TipoDocumentoIdentidad != sifen.DocIdentidadInnominado && r.NumeroDocumento == "" {
			return fmt.Errorf("%w: tipo de documento %d requiere número", ErrVentaInvalida, *r.TipoDocumentoIdentidad)
		}
	default:
		return fmt.Errorf("%w: naturaleza del receptor %d fuera de catálogo", ErrVentaInvalida, r.Naturaleza)
	}
	return nil
}
