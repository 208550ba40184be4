// Package picture renders the responsive <picture> markup the portfolio site
// builds from the generated file names.
package picture

import (
	"bytes"
	"fmt"
	"html/template"
	"path"
	"sort"
	"strings"

	"portfolio-images/internal/config"
	"portfolio-images/internal/generator"
)

// Options describes one responsive image set.
type Options struct {
	PublicPath string // URL prefix of the output directory, e.g. "/images"
	BaseName   string
	Widths     []int
	Sizes      string
	Alt        string
}

// URL returns the public URL of one artifact.
func URL(publicPath, base string, width int, format generator.Format) string {
	prefix := publicPath
	if prefix == "" {
		prefix = "/"
	}
	return path.Join(prefix, generator.ArtifactName(base, width, format))
}

// Srcset returns a srcset attribute value listing every width in ascending
// order, e.g. "/images/me-320.webp 320w, /images/me-800.webp 800w".
func Srcset(opts Options, format generator.Format) string {
	widths := sortedWidths(opts.Widths)
	parts := make([]string, 0, len(widths))
	for _, w := range widths {
		parts = append(parts, fmt.Sprintf("%s %dw", URL(opts.PublicPath, opts.BaseName, w, format), w))
	}
	return strings.Join(parts, ", ")
}

// FallbackURL returns the JPEG at the largest width, used as <img src>.
// It is empty when no widths are configured.
func FallbackURL(opts Options) string {
	widths := sortedWidths(opts.Widths)
	if len(widths) == 0 {
		return ""
	}
	return URL(opts.PublicPath, opts.BaseName, widths[len(widths)-1], generator.FormatJPEG)
}

var pictureTmpl = template.Must(template.New("picture").Parse(
	`<picture>
  <source type="{{.WebPType}}" srcset="{{.WebPSrcset}}"{{if .Sizes}} sizes="{{.Sizes}}"{{end}}>
  <img src="{{.Fallback}}" srcset="{{.JPEGSrcset}}"{{if .Sizes}} sizes="{{.Sizes}}"{{end}} alt="{{.Alt}}" loading="lazy" decoding="async">
</picture>`))

// Markup renders the <picture> element for opts.
func Markup(opts Options) (template.HTML, error) {
	data := struct {
		WebPType   string
		WebPSrcset string
		JPEGSrcset string
		Fallback   string
		Sizes      string
		Alt        string
	}{
		WebPType:   generator.FormatWebP.MIMEType(),
		WebPSrcset: Srcset(opts, generator.FormatWebP),
		JPEGSrcset: Srcset(opts, generator.FormatJPEG),
		Fallback:   FallbackURL(opts),
		Sizes:      opts.Sizes,
		Alt:        opts.Alt,
	}

	var buf bytes.Buffer
	if err := pictureTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render picture: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func sortedWidths(widths []int) []int {
	out := append([]int(nil), widths...)
	sort.Ints(out)
	return out
}

// OptionsFromConfig builds picture options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PublicPath: cfg.Picture.PublicPath,
		BaseName:   cfg.GetBaseName(),
		Widths:     cfg.Widths,
		Sizes:      cfg.Picture.Sizes,
		Alt:        cfg.Picture.Alt,
	}
}
