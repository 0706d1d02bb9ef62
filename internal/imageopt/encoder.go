package imageopt

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
)

// Output formats.
const (
	FormatWebP = "webp"
	FormatJPEG = "jpeg"
)

// Encoder writes an image at a given quality (1-100).
type Encoder interface {
	Encode(w io.Writer, img image.Image, quality int) error
	ContentType() string
	Extension() string
}

// EncoderFor returns the encoder for format.
func EncoderFor(format string) (Encoder, error) {
	switch format {
	case FormatWebP, "":
		return webpEncoder{}, nil
	case FormatJPEG:
		return jpegEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
}

type webpEncoder struct{}

func (webpEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	return webp.Encode(w, img, webp.Options{Quality: quality, Method: 4})
}

func (webpEncoder) ContentType() string { return "image/webp" }
func (webpEncoder) Extension() string   { return ".webp" }

type jpegEncoder struct{}

// Encode flattens transparency onto white before encoding; JPEG has no alpha.
func (jpegEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	flat := imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
	return imaging.Encode(w, flat, imaging.JPEG, imaging.JPEGQuality(quality))
}

func (jpegEncoder) ContentType() string { return "image/jpeg" }
func (jpegEncoder) Extension() string   { return ".jpg" }
