package generator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"portfolio-images/internal/logger"
	"portfolio-images/internal/statistics"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultGenerator is the default implementation of the Generator interface.
// It processes widths one after another and never runs encodes concurrently.
type DefaultGenerator struct {
	log      *logrus.Logger
	stats    *statistics.Statistics
	encoders map[Format]Encoder
	progress ProgressFunc
}

// NewDefaultGenerator creates a new DefaultGenerator instance.
func NewDefaultGenerator(log *logrus.Logger, stats *statistics.Statistics) *DefaultGenerator {
	return NewDefaultGeneratorWithProgress(log, stats, nil)
}

// NewDefaultGeneratorWithProgress creates a DefaultGenerator that reports
// every completed width to progress.
func NewDefaultGeneratorWithProgress(log *logrus.Logger, stats *statistics.Statistics, progress ProgressFunc) *DefaultGenerator {
	if log == nil {
		log = logger.Discard()
	}
	if stats == nil {
		stats = statistics.NewStatistics()
	}
	return &DefaultGenerator{
		log:      log,
		stats:    stats,
		encoders: DefaultEncoders(),
		progress: progress,
	}
}

// SetEncoder replaces the encoder used for format.
func (g *DefaultGenerator) SetEncoder(format Format, enc Encoder) {
	g.encoders[format] = enc
}

// Statistics returns the statistics the generator records into.
func (g *DefaultGenerator) Statistics() *statistics.Statistics {
	return g.stats
}

// Generate performs the run described by params.
func (g *DefaultGenerator) Generate(ctx context.Context, params Params) ([]Result, error) {
	runID := uuid.NewString()
	entry := logger.WithRun(g.log, runID)
	defer g.stats.Finalize()

	for _, enc := range params.Encodings {
		if _, ok := g.encoders[enc.Format]; !ok {
			return nil, fmt.Errorf("no encoder registered for format %q", enc.Format)
		}
	}

	// The existence check comes first so a missing source never creates
	// the output directory.
	info, err := os.Stat(params.SourcePath)
	if err != nil || !info.Mode().IsRegular() {
		entry.WithField("source", params.SourcePath).Error("Source image not found")
		return nil, &MissingSourceError{Path: params.SourcePath}
	}

	if err := os.MkdirAll(params.OutputDir, 0755); err != nil {
		return nil, &ProcessingError{Op: OpCreateOutputDir, Path: params.OutputDir, Err: err}
	}

	plan := PlanArtifacts(params)
	g.stats.SetPlan(len(params.Widths), len(plan))
	entry.WithFields(logrus.Fields{
		"source":    params.SourcePath,
		"output":    params.OutputDir,
		"widths":    params.Widths,
		"artifacts": len(plan),
	}).Info("Starting image generation")

	if len(params.Widths) == 0 {
		entry.Info("No target widths configured")
		return nil, nil
	}

	src, err := imaging.Open(params.SourcePath, imaging.AutoOrientation(params.AutoOrient))
	if err != nil {
		g.stats.AddError(params.SourcePath, OpDecode, err.Error())
		return nil, &ProcessingError{Op: OpDecode, Path: params.SourcePath, Err: err}
	}
	bounds := src.Bounds()
	g.stats.SetSource(bounds.Dx(), bounds.Dy(), info.Size())
	entry.Debugf("Decoded source %dx%d", bounds.Dx(), bounds.Dy())

	results := make([]Result, 0, len(plan))
	for i := 0; i < len(plan); {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		width := plan[i].Width
		resized := imaging.Resize(src, width, 0, params.Filter)

		var widthResults []Result
		for ; i < len(plan) && plan[i].Width == width; i++ {
			res, err := g.writeArtifact(entry, plan[i], resized)
			if err != nil {
				g.stats.AddError(plan[i].Path, opOf(err), err.Error())
				return results, err
			}
			results = append(results, res)
			widthResults = append(widthResults, res)
		}

		g.stats.IncrementWidthsCompleted()
		if g.progress != nil {
			g.progress(width, widthResults)
		}
	}

	entry.WithField("artifacts", len(results)).Info("Image generation completed")
	return results, nil
}

// writeArtifact encodes img into a temp file next to the final path and
// renames it into place.
func (g *DefaultGenerator) writeArtifact(entry *logrus.Entry, a Artifact, img image.Image) (Result, error) {
	start := time.Now()
	res := Result{
		Artifact:  a,
		Height:    img.Bounds().Dy(),
		StartedAt: start,
	}

	var buf bytes.Buffer
	if err := g.encoders[a.Encoding.Format].Encode(&buf, img, a.Encoding.Quality); err != nil {
		return res, &ProcessingError{Op: OpEncode, Path: a.Path, Err: err}
	}

	if err := writeFileAtomic(a.Path, buf.Bytes()); err != nil {
		return res, &ProcessingError{Op: OpWrite, Path: a.Path, Err: err}
	}

	res.Size = int64(buf.Len())
	res.FinishedAt = time.Now()
	g.stats.AddArtifact(string(a.Encoding.Format), res.Size)

	logger.WithArtifact(entry, a.Path, a.Width, string(a.Encoding.Format)).
		WithFields(logrus.Fields{
			"height":   res.Height,
			"quality":  a.Encoding.Quality,
			"bytes":    res.Size,
			"duration": res.FinishedAt.Sub(start),
		}).Debug("Artifact written")

	return res, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func opOf(err error) string {
	if pe, ok := err.(*ProcessingError); ok {
		return pe.Op
	}
	return "generate"
}
