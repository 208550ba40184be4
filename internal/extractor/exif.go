package extractor

import (
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"time"

	// Decoders for DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFExtractor reads dimensions with image.DecodeConfig and metadata with goexif.
type EXIFExtractor struct {
	logger *logrus.Logger
}

// NewEXIFExtractor returns a new EXIFExtractor.
func NewEXIFExtractor(logger *logrus.Logger) *EXIFExtractor {
	return &EXIFExtractor{logger: logger}
}

// Name returns the extractor name.
func (e *EXIFExtractor) Name() string {
	return "goexif"
}

// Extract returns the metadata of filePath. Missing EXIF data is not an error.
func (e *EXIFExtractor) Extract(filePath string) (*SourceInfo, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}

	info := &SourceInfo{
		Path:        filePath,
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Size:        fileInfo.Size(),
		ModTime:     fileInfo.ModTime(),
		Orientation: OrientationNormal,
		Extractor:   e.Name(),
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind file: %w", err)
	}
	x, err := exif.Decode(file)
	if err != nil {
		e.logger.Debugf("No EXIF data in %s: %v", filePath, err)
		return info, nil
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
			info.Orientation = Orientation(v)
		}
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if v, err := tag.StringVal(); err == nil {
			info.CameraModel = strings.TrimSpace(v)
		}
	}
	if tag, err := x.Get(exif.Software); err == nil {
		if v, err := tag.StringVal(); err == nil {
			info.Software = strings.TrimSpace(v)
		}
	}
	if tm, err := x.DateTime(); err == nil {
		info.DateTaken = &tm
	} else if tag, err := x.Get(exif.DateTimeOriginal); err == nil {
		if v, err := tag.StringVal(); err == nil {
			info.DateTaken = parseEXIFDateTime(v)
		}
	}

	return info, nil
}

// parseEXIFDateTime parses an EXIF date time string. Returns nil if parsing fails.
func parseEXIFDateTime(dateStr string) *time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		"2006-01-02",
		time.RFC3339,
	}

	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}
	return nil
}
