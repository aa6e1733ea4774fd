package sifen

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tu-usuario/facturacion-sifen/internal/domain"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sifen/internal/domain/repository"
	domsifen "github.com/tu-usuario/facturacion-sifen/internal/domain/sifen"
	pkgsifen "github.com/tu-usuario/facturacion-sifen/pkg/sifen"
)

// BuilderService implementa ConstructorDocumentos: valida la venta, genera el
// CDC (o reutiliza el existente) y arma el XML canónico del rDE.
type BuilderService struct {
	xmlBuilder *XmlBuilderService
	docRepo    repository.DocumentoRepository
}

// NewBuilderService crea el constructor de documentos.
func NewBuilderService(docRepo repository.DocumentoRepository) *BuilderService {
	return &BuilderService{
		xmlBuilder: NewXmlBuilderService(),
		docRepo:    docRepo,
	}
}

// Construir genera el DocumentoCanonico. El CDC y el código de seguridad se
// asignan una sola vez en la vida del documento: un reintento reconstruye el
// XML con los mismos identificadores, nunca con otros nuevos.
func (s *BuilderService) Construir(ctx context.Context, doc *entity.DocumentoFiscal, venta *entity.VentaSnapshot, sociedad *entity.Sociedad) (*DocumentoCanonico, error) {
	if err := domsifen.ValidarVenta(venta, doc.TipoDocumento); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDatosInvalidos, err)
	}
	switch doc.TipoDocumento {
	case pkgsifen.TipoDocFactura, pkgsifen.TipoDocNotaCredito:
	default:
		return nil, fmt.Errorf("%w: tipo de documento %q no emitible por la cola", domain.ErrDatosInvalidos, doc.TipoDocumento)
	}

	cdc := doc.CDC
	if cdc == "" {
		generado, err := s.generarCdc(ctx, doc, sociedad)
		if err != nil {
			return nil, err
		}
		cdc = generado
	} else if !pkgsifen.ValidarCDC(cdc) {
		return nil, fmt.Errorf("%w: CDC persistido %q mal formado", domain.ErrDatosInvalidos, cdc)
	}

	docConCdc := *doc
	docConCdc.CDC = cdc
	docConCdc.CodigoSeguridad = cdc[34:43]

	xml, err := s.xmlBuilder.ConstruirXml(&docConCdc, venta, sociedad)
	if err != nil {
		return nil, err
	}
	return &DocumentoCanonico{
		Xml:             xml,
		CDC:             cdc,
		CodigoSeguridad: docConCdc.CodigoSeguridad,
	}, nil
}

// generarCdc arma el CDC desde la numeración del documento y los datos del
// emisor, reutilizando el código de seguridad persistido si existe. Si el CDC
// resultante ya pertenece a otro documento se devuelve ErrCDCDuplicado; el
// índice único de la base es la garantía final contra la carrera.
func (s *BuilderService) generarCdc(ctx context.Context, doc *entity.DocumentoFiscal, sociedad *entity.Sociedad) (string, error) {
	cdc, err := pkgsifen.GenerarCDC(pkgsifen.CdcParams{
		TipoDocumento:     doc.TipoDocumento,
		RucEmisor:         sociedad.RUC,
		DvEmisor:          strconv.Itoa(sociedad.Dv),
		Establecimiento:   doc.Establecimiento,
		PuntoExpedicion:   doc.PuntoExpedicion,
		NumeroDocumento:   doc.NumeroDocumento,
		TipoContribuyente: sociedad.TipoContribuyente,
		FechaEmision:      doc.FechaEmision,
		TipoEmision:       pkgsifen.EmisionNormal,
		CodigoSeguridad:   doc.CodigoSeguridad,
	})
	if err != nil {
		return "", err
	}
	existe, err := s.docRepo.ExisteCDC(ctx, cdc)
	if err != nil {
		return "", fmt.Errorf("verificar CDC: %w", err)
	}
	if existe {
		return "", fmt.Errorf("%w: %s", domain.ErrCDCDuplicado, cdc)
	}
	return cdc, nil
}
