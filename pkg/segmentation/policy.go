package segmentation

import (
	"strings"

	"segedit/internal/models"
)

// CoverageMode decides which existing labels a drawing operation may overwrite
type CoverageMode int

const (
	// PaintOverAll overwrites every voxel
	PaintOverAll CoverageMode = iota
	// PaintOverBackgroundOnly overwrites only background voxels
	PaintOverBackgroundOnly
	// PaintOverLabel overwrites only voxels holding the draw-over label
	PaintOverLabel
)

var coverageNames = [...]string{
	PaintOverAll:            "PaintOverAll",
	PaintOverBackgroundOnly: "PaintOverBackgroundOnly",
	PaintOverLabel:          "PaintOverLabel",
}

func (m CoverageMode) String() string {
	if m < 0 || int(m) >= len(coverageNames) {
		return "CoverageMode(?)"
	}
	return coverageNames[m]
}

// ParseCoverageMode accepts the mode names case-insensitively
func ParseCoverageMode(s string) (CoverageMode, error) {
	for m, name := range coverageNames {
		if strings.EqualFold(s, name) {
			return CoverageMode(m), nil
		}
	}
	return 0, Error.New("unknown coverage mode %q", s)
}

// MarshalText writes the mode name, as used in config files
func (m CoverageMode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(coverageNames) {
		return nil, Error.New("invalid coverage mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name such as PaintOverBackgroundOnly
func (m *CoverageMode) UnmarshalText(text []byte) error {
	v, err := ParseCoverageMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Policy is the overwrite rule of a coverage mode
type Policy struct {
	Mode     CoverageMode
	DrawOver models.Label
}

// Allows reports whether a voxel currently holding current may be overwritten
func (p Policy) Allows(current models.Label) bool {
	switch p.Mode {
	case PaintOverAll:
		return true
	case PaintOverBackgroundOnly:
		return current == models.Background
	case PaintOverLabel:
		return current == p.DrawOver
	}
	return false
}

// DrawingSettings is the drawing state chosen by the user
type DrawingSettings struct {
	// DrawingLabel is written by paint operations. Zero erases.
	DrawingLabel  models.Label
	DrawOverLabel models.Label
	Mode          CoverageMode
	// InvertDrawing paints the unset pixels of a slice drawing instead of the set ones
	InvertDrawing bool
}

// DefaultDrawingSettings paints label 1 over everything
func DefaultDrawingSettings() DrawingSettings {
	return DrawingSettings{DrawingLabel: 1, Mode: PaintOverAll}
}

// Policy returns the overwrite rule of the settings
func (s DrawingSettings) Policy() Policy {
	return Policy{Mode: s.Mode, DrawOver: s.DrawOverLabel}
}

// Validate checks the coverage mode
func (s DrawingSettings) Validate() error {
	if s.Mode < PaintOverAll || s.Mode > PaintOverLabel {
		return Error.New("invalid coverage mode %d", int(s.Mode))
	}
	return nil
}

// DrawOverLabel returns the label a voxel holding current ends up with when drawn
// on with settings: the drawing label if the coverage policy allows the overwrite,
// otherwise current. Every editing path resolves voxel values through it.
func DrawOverLabel(s DrawingSettings, current models.Label) models.Label {
	if s.Policy().Allows(current) {
		return s.DrawingLabel
	}
	return current
}
