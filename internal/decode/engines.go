package decode

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
	"github.com/liyue201/goqr"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

var errNoCode = errors.New("no code in image")

// Engine is one decode attempt over a prepared image.
type Engine struct {
	Name   string
	Decode func(image.Image) (string, error)
}

// defaultEngines is the fixed engine order tried for every preprocessed
// variant: the quirc port is cheap and handles clean scans in both
// polarities; the zxing port is slower but tolerates damage, first with the
// global-histogram binarizer for evenly lit scans, then with the hybrid
// binarizer for uneven lighting.
func defaultEngines() []Engine {
	return []Engine{
		{Name: "goqr", Decode: decodeGoqr},
		{Name: "goqr-inverted", Decode: func(img image.Image) (string, error) {
			return decodeGoqr(imaging.Invert(img))
		}},
		{Name: "zxing-global", Decode: func(img image.Image) (string, error) {
			return decodeZxing(img, gozxing.NewGlobalHistgramBinarizer)
		}},
		{Name: "zxing-hybrid", Decode: func(img image.Image) (string, error) {
			return decodeZxing(img, gozxing.NewHybridBinarizer)
		}},
	}
}

func decodeGoqr(img image.Image) (string, error) {
	codes, err := goqr.Recognize(img)
	if err != nil {
		return "", err
	}
	if len(codes) == 0 {
		return "", errNoCode
	}
	return string(codes[0].Payload), nil
}

func decodeZxing(img image.Image, binarizer func(gozxing.LuminanceSource) gozxing.Binarizer) (string, error) {
	source := gozxing.NewLuminanceSourceFromImage(img)
	bitmap, err := gozxing.NewBinaryBitmap(binarizer(source))
	if err != nil {
		return "", err
	}
	result, err := qrcode.NewQRCodeReader().Decode(bitmap, map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	})
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}
