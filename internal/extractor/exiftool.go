package extractor

import (
	"fmt"
	"os"
	"strings"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"
)

// ExiftoolExtractor reads metadata through a running exiftool process.
// Close must be called to stop the process.
type ExiftoolExtractor struct {
	logger *logrus.Logger
	et     *exiftool.Exiftool
}

// NewExiftoolExtractor starts exiftool. It fails when the binary is not installed.
func NewExiftoolExtractor(logger *logrus.Logger) (*ExiftoolExtractor, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &ExiftoolExtractor{logger: logger, et: et}, nil
}

// Name returns the extractor name.
func (e *ExiftoolExtractor) Name() string {
	return "exiftool"
}

// Close stops the exiftool process.
func (e *ExiftoolExtractor) Close() error {
	return e.et.Close()
}

// Extract returns the metadata of filePath.
func (e *ExiftoolExtractor) Extract(filePath string) (*SourceInfo, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	files := e.et.ExtractMetadata(filePath)
	if len(files) == 0 {
		return nil, fmt.Errorf("exiftool returned no metadata for %s", filePath)
	}
	if files[0].Err != nil {
		return nil, fmt.Errorf("exiftool: %w", files[0].Err)
	}
	meta := files[0]

	info := &SourceInfo{
		Path:        filePath,
		Size:        fileInfo.Size(),
		ModTime:     fileInfo.ModTime(),
		Orientation: OrientationNormal,
		Extractor:   e.Name(),
	}

	if v, err := meta.GetString("FileType"); err == nil {
		info.Format = strings.ToLower(v)
	}
	if v, err := meta.GetInt("ImageWidth"); err == nil {
		info.Width = int(v)
	}
	if v, err := meta.GetInt("ImageHeight"); err == nil {
		info.Height = int(v)
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("exiftool reported no dimensions for %s", filePath)
	}

	// Orientation is printed as text unless -n is used.
	if v, err := meta.GetString("Orientation"); err == nil {
		info.Orientation = parseOrientation(v)
	}
	if v, err := meta.GetString("Model"); err == nil {
		info.CameraModel = strings.TrimSpace(v)
	}
	if v, err := meta.GetString("Software"); err == nil {
		info.Software = strings.TrimSpace(v)
	}
	if v, err := meta.GetString("DateTimeOriginal"); err == nil {
		info.DateTaken = parseEXIFDateTime(v)
	}

	e.logger.Debugf("exiftool extracted %d fields from %s", len(meta.Fields), filePath)
	return info, nil
}

func parseOrientation(v string) Orientation {
	v = strings.TrimSpace(v)
	for o := Orientation(1); o <= 8; o++ {
		if strings.EqualFold(v, o.String()) {
			return o
		}
	}
	if len(v) == 1 && v[0] >= '1' && v[0] <= '8' {
		return Orientation(v[0] - '0')
	}
	return OrientationNormal
}

// NewBestExtractor returns the exiftool extractor when exiftool is
// available, and the goexif extractor otherwise. The returned close func
// is always safe to call.
func NewBestExtractor(logger *logrus.Logger, preferExiftool bool) (MetadataExtractor, func() error) {
	if preferExiftool {
		et, err := NewExiftoolExtractor(logger)
		if err == nil {
			return et, et.Close
		}
		logger.Warnf("exiftool unavailable, falling back to goexif: %v", err)
	}
	return NewEXIFExtractor(logger), func() error { return nil }
}
