package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ErrUnsupportedFormat is returned for file types the adapter cannot turn
// into raster candidates.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// pdfRenderDPIs are tried highest first: small codes on A4 scans need the
// resolution, but huge pages can fail to render large surfaces, so lower
// scales remain as fallbacks.
var pdfRenderDPIs = []float64{300, 200, 144, 96}

// Raster is a decoded pixel buffer plus a tag describing how it was produced.
type Raster struct {
	Image  image.Image
	Source string
}

// Producer lazily materializes one raster candidate. The render only happens
// when Produce is called, so untried scales cost nothing.
type Producer struct {
	Source string
	render func() (image.Image, error)
}

// NewProducer wraps a render function as a candidate producer.
func NewProducer(source string, render func() (image.Image, error)) Producer {
	return Producer{Source: source, render: render}
}

// Produce performs the actual decode or page render. A failure here is local
// to this candidate; callers advance to the next producer.
func (p Producer) Produce() (*Raster, error) {
	img, err := p.render()
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", p.Source, err)
	}
	return &Raster{Image: img, Source: p.Source}, nil
}

// Adapt normalizes an input document into an ordered sequence of raster
// candidate producers. Raster images yield a single native-resolution
// producer; PDFs yield one producer per render scale, descending; anything
// else fails with ErrUnsupportedFormat.
func Adapt(name string, data []byte) ([]Producer, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return []Producer{{
			Source: "native",
			render: func() (image.Image, error) {
				// Phone uploads regularly carry HEIC data behind a
				// .jpg name; sniff before handing off to the decoder.
				if isHEIC(data) {
					return heic.Decode(bytes.NewReader(data))
				}
				return imaging.Decode(bytes.NewReader(data))
			},
		}}, nil
	case ".heic", ".heif":
		return []Producer{{
			Source: "native",
			render: func() (image.Image, error) {
				return heic.Decode(bytes.NewReader(data))
			},
		}}, nil
	case ".pdf":
		producers := make([]Producer, 0, len(pdfRenderDPIs))
		for _, dpi := range pdfRenderDPIs {
			dpi := dpi
			producers = append(producers, Producer{
				Source: fmt.Sprintf("pdf@%.0fdpi", dpi),
				render: func() (image.Image, error) {
					return renderFirstPage(data, dpi)
				},
			})
		}
		return producers, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// renderFirstPage rasterizes page 0 at the given DPI. Invoice codes sit on
// the first page; later pages are not rendered.
func renderFirstPage(data []byte, dpi float64) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer doc.Close()

	img, err := doc.ImageDPI(0, dpi)
	if err != nil {
		return nil, fmt.Errorf("rendering pdf page: %w", err)
	}
	return img, nil
}

// isHEIC reports whether the data starts with an ISO-BMFF ftyp box carrying a
// HEIC/HEIF brand.
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}
