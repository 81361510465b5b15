package decode

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// maxDecodeDimension bounds the downscale strategy: scans above this size are
// shrunk to fit, which rescues decoders that lose the finder patterns at very
// high pixel counts.
const maxDecodeDimension = 2000

// Strategy is a pure pixel transform applied before the engines run.
type Strategy struct {
	Name  string
	Apply func(image.Image) image.Image
	// When non-nil, the strategy only runs if the predicate accepts the
	// image.
	When func(image.Image) bool
}

// defaultStrategies is ordered by observed reliability on scanned invoices:
// the untouched image decodes most often, progressively heavier corrections
// follow, and downscaling runs last and only for oversized scans.
func defaultStrategies() []Strategy {
	return []Strategy{
		{Name: "identity", Apply: func(img image.Image) image.Image {
			return img
		}},
		{Name: "gray-contrast", Apply: func(img image.Image) image.Image {
			return imaging.AdjustContrast(imaging.Grayscale(img), 30)
		}},
		{Name: "histogram-stretch", Apply: stretchHistogram},
		{Name: "invert", Apply: func(img image.Image) image.Image {
			return imaging.Invert(img)
		}},
		{Name: "brighten", Apply: func(img image.Image) image.Image {
			return imaging.AdjustBrightness(img, 30)
		}},
		{Name: "darken", Apply: func(img image.Image) image.Image {
			return imaging.AdjustBrightness(img, -30)
		}},
		{Name: "posterize", Apply: posterize},
		{Name: "blur-contrast", Apply: func(img image.Image) image.Image {
			return imaging.AdjustContrast(imaging.Blur(img, 0.8), 40)
		}},
		{Name: "gray-stretch-sharpen", Apply: func(img image.Image) image.Image {
			return imaging.Sharpen(stretchHistogram(imaging.Grayscale(img)), 1.2)
		}},
		{Name: "downscale", When: oversized, Apply: func(img image.Image) image.Image {
			return imaging.Fit(img, maxDecodeDimension, maxDecodeDimension, imaging.Lanczos)
		}},
	}
}

func oversized(img image.Image) bool {
	bounds := img.Bounds()
	return bounds.Dx() > maxDecodeDimension || bounds.Dy() > maxDecodeDimension
}

// stretchHistogram linearly rescales luminance so the darkest pixel maps to
// black and the brightest to white, recovering washed-out scans.
func stretchHistogram(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	lo, hi := uint8(255), uint8(0)
	bounds := gray.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.NRGBAAt(x, y).R
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return gray
	}
	scale := 255.0 / float64(hi-lo)
	return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		v := uint8(float64(c.R-lo) * scale)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

// posterize flattens each channel to four levels, crushing JPEG gradient
// noise around module edges.
func posterize(img image.Image) image.Image {
	quantize := func(v uint8) uint8 {
		return (v / 64) * 85
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: quantize(c.R), G: quantize(c.G), B: quantize(c.B), A: c.A}
	})
}
