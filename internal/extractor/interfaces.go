package extractor

import (
	"fmt"
	"strings"
	"time"
)

// MetadataExtractor is the interface for reading source image metadata.
type MetadataExtractor interface {
	Extract(filePath string) (*SourceInfo, error)
	Name() string
}

// SourceInfo describes a source image before generation.
type SourceInfo struct {
	Path        string
	Format      string
	Width       int
	Height      int
	Size        int64
	ModTime     time.Time
	Orientation Orientation
	CameraModel string
	Software    string
	DateTaken   *time.Time
	Extractor   string
}

// Orientation is the EXIF orientation tag value (1-8).
type Orientation int

// OrientationNormal is assumed when the tag is absent.
const OrientationNormal Orientation = 1

// SwapsAxes reports whether displaying the image upright swaps width and height.
func (o Orientation) SwapsAxes() bool {
	return o >= 5 && o <= 8
}

// String returns a human-readable description of the orientation.
func (o Orientation) String() string {
	switch o {
	case 1:
		return "Horizontal (normal)"
	case 2:
		return "Mirror horizontal"
	case 3:
		return "Rotate 180"
	case 4:
		return "Mirror vertical"
	case 5:
		return "Mirror horizontal and rotate 270 CW"
	case 6:
		return "Rotate 90 CW"
	case 7:
		return "Mirror horizontal and rotate 90 CW"
	case 8:
		return "Rotate 270 CW"
	default:
		return "Unknown"
	}
}

// DisplaySize returns the upright dimensions, honoring the orientation.
func (s *SourceInfo) DisplaySize() (int, int) {
	if s.Orientation.SwapsAxes() {
		return s.Height, s.Width
	}
	return s.Width, s.Height
}

// AspectRatio returns width/height of the stored pixels.
func (s *SourceInfo) AspectRatio() float64 {
	if s.Height == 0 {
		return 0
	}
	return float64(s.Width) / float64(s.Height)
}

// Describe returns a multi-line report for the inspect command.
func (s *SourceInfo) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "File:        %s\n", s.Path)
	fmt.Fprintf(&b, "Format:      %s\n", s.Format)
	fmt.Fprintf(&b, "Dimensions:  %dx%d (aspect %.4f)\n", s.Width, s.Height, s.AspectRatio())
	fmt.Fprintf(&b, "Size:        %d bytes\n", s.Size)
	fmt.Fprintf(&b, "Modified:    %s\n", s.ModTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Orientation: %s\n", s.Orientation)
	if s.CameraModel != "" {
		fmt.Fprintf(&b, "Camera:      %s\n", s.CameraModel)
	}
	if s.Software != "" {
		fmt.Fprintf(&b, "Software:    %s\n", s.Software)
	}
	if s.DateTaken != nil {
		fmt.Fprintf(&b, "Taken:       %s\n", s.DateTaken.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&b, "Extractor:   %s", s.Extractor)
	return b.String()
}
