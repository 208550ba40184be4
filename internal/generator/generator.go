package generator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

// Params defines the inputs of one generation run.
type Params struct {
	SourcePath string
	OutputDir  string
	BaseName   string
	Widths     []int
	Encodings  []Encoding
	Filter     imaging.ResampleFilter
	AutoOrient bool
}

// Artifact is one planned output file: a (width, encoding) pair.
type Artifact struct {
	Width    int
	Encoding Encoding
	Path     string
}

// Result describes a single written artifact.
type Result struct {
	Artifact
	Height     int
	Size       int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// ProgressFunc is called once per width, after every encoding of that width
// has been written.
type ProgressFunc func(width int, results []Result)

// Generator defines the interface for responsive image generation.
type Generator interface {
	// Generate resizes the source to every width in params and writes one
	// file per encoding. It stops at the first error.
	Generate(ctx context.Context, params Params) ([]Result, error)
}

// ArtifactName returns the file name for an artifact: {base}-{width}.{ext}.
func ArtifactName(base string, width int, format Format) string {
	return fmt.Sprintf("%s-%d.%s", base, width, format.Ext())
}

// PlanArtifacts lists the artifacts a run writes, in write order: widths in
// the given order, encodings in the given order within each width.
func PlanArtifacts(params Params) []Artifact {
	out := make([]Artifact, 0, len(params.Widths)*len(params.Encodings))
	for _, w := range params.Widths {
		for _, enc := range params.Encodings {
			out = append(out, Artifact{
				Width:    w,
				Encoding: enc,
				Path:     filepath.Join(params.OutputDir, ArtifactName(params.BaseName, w, enc.Format)),
			})
		}
	}
	return out
}

// DefaultEncodings returns the WebP-then-JPEG pair with the given qualities.
func DefaultEncodings(webpQuality, jpegQuality int) []Encoding {
	return []Encoding{
		{Format: FormatWebP, Quality: webpQuality},
		{Format: FormatJPEG, Quality: jpegQuality},
	}
}

// ResampleFilter maps a filter name to its imaging filter. Unknown names
// fall back to Lanczos.
func ResampleFilter(name string) imaging.ResampleFilter {
	switch name {
	case "catmullrom":
		return imaging.CatmullRom
	case "mitchellnetravali":
		return imaging.MitchellNetravali
	case "linear":
		return imaging.Linear
	case "box":
		return imaging.Box
	case "nearest":
		return imaging.NearestNeighbor
	default:
		return imaging.Lanczos
	}
}

// ExpectedHeight returns the height a resize to width produces for a source
// of srcW x srcH, matching imaging's rounding.
func ExpectedHeight(srcW, srcH, width int) int {
	if srcW <= 0 {
		return 0
	}
	h := int(float64(width)*float64(srcH)/float64(srcW) + 0.5)
	if h < 1 {
		h = 1
	}
	return h
}
