package generator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"portfolio-images/internal/config"
	"portfolio-images/internal/logger"
	"portfolio-images/internal/statistics"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// writeSource writes a w x h gradient JPEG and returns its path.
func writeSource(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	path := filepath.Join(dir, "me.jpg")
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("Failed to write source image: %v", err)
	}
	return path
}

func decodeConfig(t *testing.T, path string) (image.Config, string) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("Failed to decode %s: %v", path, err)
	}
	return cfg, format
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func newParams(src, out string, widths ...int) Params {
	return Params{
		SourcePath: src,
		OutputDir:  out,
		BaseName:   "me",
		Widths:     widths,
		Encodings:  DefaultEncodings(75, 78),
		Filter:     imaging.Lanczos,
	}
}

func TestArtifactName(t *testing.T) {
	tests := []struct {
		base   string
		width  int
		format Format
		want   string
	}{
		{"me", 320, FormatWebP, "me-320.webp"},
		{"me", 320, FormatJPEG, "me-320.jpg"},
		{"portrait", 1200, FormatJPEG, "portrait-1200.jpg"},
	}
	for _, tt := range tests {
		if got := ArtifactName(tt.base, tt.width, tt.format); got != tt.want {
			t.Errorf("ArtifactName(%q, %d, %s) = %q, want %q", tt.base, tt.width, tt.format, got, tt.want)
		}
	}
}

func TestPlanArtifactsOrder(t *testing.T) {
	plan := PlanArtifacts(newParams("me.jpg", "out", 320, 800))

	want := []string{"me-320.webp", "me-320.jpg", "me-800.webp", "me-800.jpg"}
	if len(plan) != len(want) {
		t.Fatalf("Expected %d artifacts, got %d", len(want), len(plan))
	}
	for i, a := range plan {
		if a.Path != filepath.Join("out", want[i]) {
			t.Errorf("artifact %d: expected %s, got %s", i, want[i], a.Path)
		}
	}
	if plan[0].Encoding.Quality != 75 || plan[1].Encoding.Quality != 78 {
		t.Errorf("Unexpected qualities: %v, %v", plan[0].Encoding, plan[1].Encoding)
	}
}

func TestGeneratePortraitSet(t *testing.T) {
	src := writeSource(t, t.TempDir(), 1600, 2000)
	out := filepath.Join(t.TempDir(), "public", "images")

	var progressWidths []int
	gen := NewDefaultGeneratorWithProgress(logger.Discard(), nil, func(width int, results []Result) {
		progressWidths = append(progressWidths, width)
		if len(results) != 2 {
			t.Errorf("width %d: expected 2 results, got %d", width, len(results))
			return
		}
		if results[0].Encoding.Format != FormatWebP || results[1].Encoding.Format != FormatJPEG {
			t.Errorf("width %d: expected webp before jpeg", width)
		}
	})

	results, err := gen.Generate(context.Background(), newParams(src, out, 320, 800, 1200))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("Expected 6 results, got %d", len(results))
	}

	wantFiles := []string{
		"me-1200.jpg", "me-1200.webp",
		"me-320.jpg", "me-320.webp",
		"me-800.jpg", "me-800.webp",
	}
	got := listDir(t, out)
	if strings.Join(got, ",") != strings.Join(wantFiles, ",") {
		t.Fatalf("Expected files %v, got %v", wantFiles, got)
	}

	heights := map[int]int{320: 400, 800: 1000, 1200: 1500}
	for _, res := range results {
		cfg, format := decodeConfig(t, res.Path)
		if cfg.Width != res.Width || cfg.Height != heights[res.Width] {
			t.Errorf("%s: expected %dx%d, got %dx%d",
				res.Path, res.Width, heights[res.Width], cfg.Width, cfg.Height)
		}
		if res.Height != heights[res.Width] {
			t.Errorf("%s: result height %d, want %d", res.Path, res.Height, heights[res.Width])
		}
		if format != string(res.Encoding.Format) {
			t.Errorf("%s: expected format %s, got %s", res.Path, res.Encoding.Format, format)
		}
		if res.Size <= 0 {
			t.Errorf("%s: expected positive size", res.Path)
		}
	}

	if len(progressWidths) != 3 || progressWidths[0] != 320 || progressWidths[2] != 1200 {
		t.Errorf("Expected progress for 320, 800, 1200 in order, got %v", progressWidths)
	}

	stats := gen.Statistics()
	if stats.ArtifactsWritten != 6 || stats.WidthsCompleted != 3 {
		t.Errorf("Unexpected statistics: written=%d widths=%d", stats.ArtifactsWritten, stats.WidthsCompleted)
	}
	if stats.SourceWidth != 1600 || stats.SourceHeight != 2000 {
		t.Errorf("Unexpected source dimensions: %dx%d", stats.SourceWidth, stats.SourceHeight)
	}
}

func TestGenerateMissingSource(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope", "me.jpg")
	out := filepath.Join(t.TempDir(), "images")

	called := false
	gen := NewDefaultGeneratorWithProgress(logger.Discard(), nil, func(int, []Result) { called = true })

	results, err := gen.Generate(context.Background(), newParams(missing, out, 320, 800, 1200))
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("Expected ErrMissingSource, got %v", err)
	}
	var mse *MissingSourceError
	if !errors.As(err, &mse) || mse.Path != missing {
		t.Errorf("Expected MissingSourceError carrying the path, got %v", err)
	}
	if !strings.Contains(err.Error(), missing) {
		t.Errorf("Error message should contain the path: %v", err)
	}
	if len(results) != 0 || called {
		t.Errorf("Expected no output, got %d results (progress called: %v)", len(results), called)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("Output directory must not be created for a missing source")
	}
}

func TestGenerateSourceIsDirectory(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "images")

	_, err := NewDefaultGenerator(logger.Discard(), nil).Generate(context.Background(), newParams(dir, out, 320))
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("Expected ErrMissingSource for a directory source, got %v", err)
	}
}

func TestGenerateEmptyWidths(t *testing.T) {
	src := writeSource(t, t.TempDir(), 40, 50)
	out := filepath.Join(t.TempDir(), "images")

	results, err := NewDefaultGenerator(logger.Discard(), nil).Generate(context.Background(), newParams(src, out))
	if err != nil {
		t.Fatalf("Expected success for an empty width set, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
	if names := listDir(t, out); len(names) != 0 {
		t.Errorf("Expected empty output directory, got %v", names)
	}
}

func TestGenerateEncoderFailureAborts(t *testing.T) {
	src := writeSource(t, t.TempDir(), 160, 200)
	out := t.TempDir()
	boom := errors.New("encoder exploded")

	progressCalls := 0
	stats := statistics.NewStatistics()
	gen := NewDefaultGeneratorWithProgress(logger.Discard(), stats, func(int, []Result) { progressCalls++ })
	gen.SetEncoder(FormatJPEG, EncoderFunc(func(w io.Writer, img image.Image, quality int) error {
		if img.Bounds().Dx() == 80 {
			return boom
		}
		return JPEGEncoder{}.Encode(w, img, quality)
	}))

	results, err := gen.Generate(context.Background(), newParams(src, out, 32, 80, 120))
	if !errors.Is(err, boom) {
		t.Fatalf("Expected encoder error to propagate, got %v", err)
	}
	var pe *ProcessingError
	if !errors.As(err, &pe) || pe.Op != OpEncode || filepath.Base(pe.Path) != "me-80.jpg" {
		t.Fatalf("Expected encode ProcessingError for me-80.jpg, got %v", err)
	}

	if len(results) != 3 {
		t.Errorf("Expected 3 artifacts written before the failure, got %d", len(results))
	}
	want := []string{"me-32.jpg", "me-32.webp", "me-80.webp"}
	if got := listDir(t, out); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v on disk, got %v", want, got)
	}
	if progressCalls != 1 {
		t.Errorf("Expected 1 progress call, got %d", progressCalls)
	}
	if stats.ArtifactsFailed != 1 {
		t.Errorf("Expected 1 failed artifact, got %d", stats.ArtifactsFailed)
	}
}

func TestGenerateCorruptSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "me.jpg")
	if err := os.WriteFile(src, []byte("definitely not a jpeg"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt source: %v", err)
	}
	out := t.TempDir()

	_, err := NewDefaultGenerator(logger.Discard(), nil).Generate(context.Background(), newParams(src, out, 320))
	var pe *ProcessingError
	if !errors.As(err, &pe) || pe.Op != OpDecode {
		t.Fatalf("Expected decode ProcessingError, got %v", err)
	}
	if errors.Is(err, ErrMissingSource) {
		t.Errorf("A corrupt source is not a missing source")
	}
	if names := listDir(t, out); len(names) != 0 {
		t.Errorf("Expected no artifacts, got %v", names)
	}
}

func TestGenerateOverwritesPreviousRun(t *testing.T) {
	src := writeSource(t, t.TempDir(), 160, 200)
	out := t.TempDir()
	stale := filepath.Join(out, "me-32.jpg")
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatalf("Failed to write stale artifact: %v", err)
	}

	params := newParams(src, out, 32, 80)
	first, err := NewDefaultGenerator(logger.Discard(), nil).Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := NewDefaultGenerator(logger.Discard(), nil).Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("Runs produced different artifact counts: %d vs %d", len(first), len(second))
	}
	for i := range first {
		cfg, _ := decodeConfig(t, second[i].Path)
		if cfg.Width != first[i].Width || cfg.Height != first[i].Height {
			t.Errorf("%s: dimensions changed between runs", second[i].Path)
		}
		a, b := float64(first[i].Size), float64(second[i].Size)
		if b < a*0.9 || b > a*1.1 {
			t.Errorf("%s: size drifted from %v to %v bytes", second[i].Path, a, b)
		}
	}

	if names := listDir(t, out); len(names) != 4 {
		t.Errorf("Expected exactly 4 artifacts and no temp files, got %v", names)
	}
}

func TestGenerateCanceledContext(t *testing.T) {
	src := writeSource(t, t.TempDir(), 40, 50)
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewDefaultGenerator(logger.Discard(), nil).Generate(ctx, newParams(src, out, 20))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
}

func TestGenerateUnknownEncoding(t *testing.T) {
	src := writeSource(t, t.TempDir(), 40, 50)
	params := newParams(src, t.TempDir(), 20)
	params.Encodings = []Encoding{{Format: "avif", Quality: 50}}

	if _, err := NewDefaultGenerator(logger.Discard(), nil).Generate(context.Background(), params); err == nil {
		t.Fatal("Expected error for an unregistered format")
	}
}

func TestExpectedHeight(t *testing.T) {
	tests := []struct {
		srcW, srcH, width, want int
	}{
		{1600, 2000, 320, 400},
		{1600, 2000, 1200, 1500},
		{1000, 667, 320, 213},
		{3000, 1, 10, 1},
		{0, 100, 10, 0},
	}
	for _, tt := range tests {
		if got := ExpectedHeight(tt.srcW, tt.srcH, tt.width); got != tt.want {
			t.Errorf("ExpectedHeight(%d, %d, %d) = %d, want %d", tt.srcW, tt.srcH, tt.width, got, tt.want)
		}
	}
}

func TestFormatExt(t *testing.T) {
	if FormatJPEG.Ext() != "jpg" || FormatWebP.Ext() != "webp" {
		t.Errorf("Unexpected extensions: %s %s", FormatJPEG.Ext(), FormatWebP.Ext())
	}
	if FormatWebP.MIMEType() != "image/webp" || FormatJPEG.MIMEType() != "image/jpeg" {
		t.Errorf("Unexpected MIME types")
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	params := ParamsFromConfig(cfg)

	if params.SourcePath != "public/images/me.jpg" || params.OutputDir != "public/images" {
		t.Errorf("Unexpected paths: %s -> %s", params.SourcePath, params.OutputDir)
	}
	if params.BaseName != "me" {
		t.Errorf("Expected base name 'me', got %q", params.BaseName)
	}
	if len(params.Encodings) != 2 ||
		params.Encodings[0] != (Encoding{Format: FormatWebP, Quality: 75}) ||
		params.Encodings[1] != (Encoding{Format: FormatJPEG, Quality: 78}) {
		t.Errorf("Unexpected encodings: %v", params.Encodings)
	}

	plan := PlanArtifacts(params)
	if len(plan) != 6 {
		t.Fatalf("Expected 6 planned artifacts, got %d", len(plan))
	}
	if filepath.Base(plan[5].Path) != "me-1200.jpg" {
		t.Errorf("Expected last artifact me-1200.jpg, got %s", plan[5].Path)
	}
}
