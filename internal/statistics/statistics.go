package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains all statistics for a single generation run.
type Statistics struct {
	WidthsPlanned    int64
	WidthsCompleted  int64
	ArtifactsPlanned int64
	ArtifactsWritten int64
	ArtifactsFailed  int64
	BytesWritten     int64

	SourceWidth  int
	SourceHeight int
	SourceBytes  int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Errors []StatError

	mutex sync.RWMutex

	FormatStats map[string]*FormatStats
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// FormatStats aggregates written artifacts of one encoding.
type FormatStats struct {
	Artifacts int64
	Bytes     int64
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		FormatStats: make(map[string]*FormatStats),
		Errors:      make([]StatError, 0),
	}
}

// SetPlan records how many widths and artifacts the run intends to produce.
func (s *Statistics) SetPlan(widths, artifacts int) {
	atomic.StoreInt64(&s.WidthsPlanned, int64(widths))
	atomic.StoreInt64(&s.ArtifactsPlanned, int64(artifacts))
}

// SetSource records the decoded source dimensions and file size.
func (s *Statistics) SetSource(width, height int, size int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.SourceWidth = width
	s.SourceHeight = height
	s.SourceBytes = size
}

// IncrementWidthsCompleted increases the count of fully written widths by 1.
func (s *Statistics) IncrementWidthsCompleted() {
	atomic.AddInt64(&s.WidthsCompleted, 1)
}

// AddArtifact records one written artifact of the given format.
func (s *Statistics) AddArtifact(format string, bytes int64) {
	atomic.AddInt64(&s.ArtifactsWritten, 1)
	atomic.AddInt64(&s.BytesWritten, bytes)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	fs, ok := s.FormatStats[format]
	if !ok {
		fs = &FormatStats{}
		s.FormatStats[format] = fs
	}
	fs.Artifacts++
	fs.Bytes += bytes
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	atomic.AddInt64(&s.ArtifactsFailed, 1)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize records the end time and duration.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return fmt.Sprintf(`Image Generation Summary:

Source:
		Dimensions: %dx%d
		Size: %s

Widths:
		Planned: %d
		Completed: %d

Artifacts:
		Planned: %d
		Written: %d
		Failed: %d
		Bytes Written: %s
%s
Performance:
		Duration: %v`,
		s.SourceWidth, s.SourceHeight,
		formatBytes(s.SourceBytes),
		atomic.LoadInt64(&s.WidthsPlanned),
		atomic.LoadInt64(&s.WidthsCompleted),
		atomic.LoadInt64(&s.ArtifactsPlanned),
		atomic.LoadInt64(&s.ArtifactsWritten),
		atomic.LoadInt64(&s.ArtifactsFailed),
		formatBytes(atomic.LoadInt64(&s.BytesWritten)),
		s.formatBreakdownLocked(),
		s.Duration)
}

// GetFormatBreakdown returns a formatted breakdown of written formats.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 {
		return "No artifacts written"
	}
	return s.formatBreakdownLocked()
}

func (s *Statistics) formatBreakdownLocked() string {
	if len(s.FormatStats) == 0 {
		return ""
	}

	formats := make([]string, 0, len(s.FormatStats))
	for f := range s.FormatStats {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	var b strings.Builder
	for _, f := range formats {
		fs := s.FormatStats[f]
		fmt.Fprintf(&b, "		%s: %d (%s)\n", f, fs.Artifacts, formatBytes(fs.Bytes))
	}
	return b.String()
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for _, err := range s.Errors {
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// Snapshot returns the counters as a map suitable for JSON responses.
func (s *Statistics) Snapshot() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	formats := make(map[string]interface{}, len(s.FormatStats))
	for f, fs := range s.FormatStats {
		formats[f] = map[string]int64{
			"artifacts": fs.Artifacts,
			"bytes":     fs.Bytes,
		}
	}

	return map[string]interface{}{
		"widths_planned":    atomic.LoadInt64(&s.WidthsPlanned),
		"widths_completed":  atomic.LoadInt64(&s.WidthsCompleted),
		"artifacts_planned": atomic.LoadInt64(&s.ArtifactsPlanned),
		"artifacts_written": atomic.LoadInt64(&s.ArtifactsWritten),
		"artifacts_failed":  atomic.LoadInt64(&s.ArtifactsFailed),
		"bytes_written":     atomic.LoadInt64(&s.BytesWritten),
		"formats":           formats,
		"duration_ms":       s.Duration.Milliseconds(),
	}
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
