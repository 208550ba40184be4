package generator

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// Format identifies an output encoding.
type Format string

const (
	// FormatWebP is the modern compressed encoding.
	FormatWebP Format = "webp"
	// FormatJPEG is the broadly compatible fallback.
	FormatJPEG Format = "jpeg"
)

// Ext returns the file extension used for the format, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	default:
		return string(f)
	}
}

// MIMEType returns the media type of the format.
func (f Format) MIMEType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Encoding pairs a format with its fixed quality (0-100).
type Encoding struct {
	Format  Format
	Quality int
}

func (e Encoding) String() string {
	return fmt.Sprintf("%s@q%d", e.Format, e.Quality)
}

// Encoder writes an image in one format.
type Encoder interface {
	Encode(w io.Writer, img image.Image, quality int) error
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(w io.Writer, img image.Image, quality int) error

// Encode calls f.
func (f EncoderFunc) Encode(w io.Writer, img image.Image, quality int) error {
	return f(w, img, quality)
}

// JPEGEncoder encodes baseline JPEG through imaging.
type JPEGEncoder struct{}

// Encode writes img as JPEG at the given quality.
func (JPEGEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

// WebPEncoder encodes lossy WebP through libwebp.
type WebPEncoder struct{}

// Encode writes img as lossy WebP at the given quality.
func (WebPEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return fmt.Errorf("webp options: %w", err)
	}
	return webp.Encode(w, img, options)
}

// DefaultEncoders returns the encoder registry used by DefaultGenerator.
func DefaultEncoders() map[Format]Encoder {
	return map[Format]Encoder{
		FormatWebP: WebPEncoder{},
		FormatJPEG: JPEGEncoder{},
	}
}
