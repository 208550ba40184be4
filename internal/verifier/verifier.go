// Package verifier checks generated artifacts against the run plan.
package verifier

import (
	"fmt"
	"image"
	"os"
	"strings"

	_ "image/jpeg"

	_ "golang.org/x/image/webp"

	"portfolio-images/internal/generator"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// IssueKind classifies a verification failure.
type IssueKind string

const (
	IssueMissing        IssueKind = "missing"
	IssueUnreadable     IssueKind = "unreadable"
	IssueFormat         IssueKind = "format_mismatch"
	IssueWidthMismatch  IssueKind = "width_mismatch"
	IssueHeightMismatch IssueKind = "height_mismatch"
)

// heightTolerance absorbs encoder rounding.
const heightTolerance = 1

// Issue is one problem found with an artifact.
type Issue struct {
	Path   string    `json:"path"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

// Check is the verification outcome of one planned artifact.
type Check struct {
	Path           string `json:"path"`
	Format         string `json:"format"`
	ExpectedWidth  int    `json:"expected_width"`
	ExpectedHeight int    `json:"expected_height"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Size           int64  `json:"size"`
	OK             bool   `json:"ok"`
}

// Report collects the checks and issues of a verification.
type Report struct {
	SourceWidth  int     `json:"source_width"`
	SourceHeight int     `json:"source_height"`
	Checks       []Check `json:"checks"`
	Issues       []Issue `json:"issues"`
}

// OK reports whether every planned artifact passed.
func (r *Report) OK() bool {
	return len(r.Issues) == 0
}

// Summary returns a one-line-per-artifact report.
func (r *Report) Summary() string {
	var b strings.Builder
	for _, c := range r.Checks {
		status := "ok"
		if !c.OK {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%-4s %s (%dx%d, want %dx%d)\n",
			status, c.Path, c.Width, c.Height, c.ExpectedWidth, c.ExpectedHeight)
	}
	for _, is := range r.Issues {
		fmt.Fprintf(&b, "  %s: %s: %s\n", is.Kind, is.Path, is.Detail)
	}
	fmt.Fprintf(&b, "%d artifacts checked, %d issues", len(r.Checks), len(r.Issues))
	return b.String()
}

// Verifier checks a finished run.
type Verifier struct {
	log *logrus.Logger
}

// New returns a Verifier.
func New(log *logrus.Logger) *Verifier {
	return &Verifier{log: log}
}

// Verify decodes the source to learn its upright size, then checks every
// artifact PlanArtifacts(params) lists. The error is non-nil only when the
// source itself cannot be read.
func (v *Verifier) Verify(params generator.Params) (*Report, error) {
	if _, err := os.Stat(params.SourcePath); err != nil {
		return nil, &generator.MissingSourceError{Path: params.SourcePath}
	}

	// Orientation must match what the generator saw, so decode the same way.
	src, err := imaging.Open(params.SourcePath, imaging.AutoOrientation(params.AutoOrient))
	if err != nil {
		return nil, fmt.Errorf("decode source %s: %w", params.SourcePath, err)
	}
	bounds := src.Bounds()

	report := &Report{
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
	}

	for _, a := range generator.PlanArtifacts(params) {
		check, issues := v.checkArtifact(a, report.SourceWidth, report.SourceHeight)
		report.Checks = append(report.Checks, check)
		report.Issues = append(report.Issues, issues...)
	}

	v.log.WithFields(logrus.Fields{
		"checked": len(report.Checks),
		"issues":  len(report.Issues),
	}).Info("Verification finished")

	return report, nil
}

func (v *Verifier) checkArtifact(a generator.Artifact, srcW, srcH int) (Check, []Issue) {
	check := Check{
		Path:           a.Path,
		Format:         string(a.Encoding.Format),
		ExpectedWidth:  a.Width,
		ExpectedHeight: generator.ExpectedHeight(srcW, srcH, a.Width),
	}

	info, err := os.Stat(a.Path)
	if err != nil {
		return check, []Issue{{Path: a.Path, Kind: IssueMissing, Detail: err.Error()}}
	}
	check.Size = info.Size()

	f, err := os.Open(a.Path)
	if err != nil {
		return check, []Issue{{Path: a.Path, Kind: IssueUnreadable, Detail: err.Error()}}
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return check, []Issue{{Path: a.Path, Kind: IssueUnreadable, Detail: err.Error()}}
	}
	check.Width = cfg.Width
	check.Height = cfg.Height

	var issues []Issue
	if format != string(a.Encoding.Format) {
		issues = append(issues, Issue{
			Path: a.Path, Kind: IssueFormat,
			Detail: fmt.Sprintf("encoded as %s, want %s", format, a.Encoding.Format),
		})
	}
	if cfg.Width != check.ExpectedWidth {
		issues = append(issues, Issue{
			Path: a.Path, Kind: IssueWidthMismatch,
			Detail: fmt.Sprintf("width %d, want %d", cfg.Width, check.ExpectedWidth),
		})
	}
	if d := cfg.Height - check.ExpectedHeight; d > heightTolerance || d < -heightTolerance {
		issues = append(issues, Issue{
			Path: a.Path, Kind: IssueHeightMismatch,
			Detail: fmt.Sprintf("height %d, want %d", cfg.Height, check.ExpectedHeight),
		})
	}

	check.OK = len(issues) == 0
	return check, issues
}
