// Package script runs YAML edit scripts against the application facade. A
// script names the main image geometry and a list of steps; each step is one
// facade operation.
package script

import (
	"os"
	"strings"

	"github.com/zeebo/errs"
	"gopkg.in/yaml.v3"

	"segedit/internal/models"
	"segedit/pkg/segmentation"
)

// Error is the class for script errors
var Error = errs.Class("script")

// Step operations
const (
	OpPaint    = "paint"
	OpErase    = "erase"
	OpReplace  = "replace"
	OpCutPlane = "cutplane"
	OpClear    = "clear"
	OpUndo     = "undo"
	OpRedo     = "redo"
	OpCount    = "count"
	OpCursor   = "cursor"
	OpSettings = "settings"
	OpSnap     = "snap"
	OpMerge    = "merge"
	OpRelease  = "release"
)

var knownOps = map[string]bool{
	OpPaint: true, OpErase: true, OpReplace: true, OpCutPlane: true,
	OpClear: true, OpUndo: true, OpRedo: true, OpCount: true,
	OpCursor: true, OpSettings: true, OpSnap: true, OpMerge: true,
	OpRelease: true,
}

// Script is a main image description followed by edit steps
type Script struct {
	Size        [3]int    `yaml:"size,flow"`
	Orientation string    `yaml:"orientation"`
	Display     [3]string `yaml:"display,flow,omitempty"`
	Steps       []Step    `yaml:"steps"`
}

// Step is one operation. Only the fields its op uses are read.
type Step struct {
	Op          string `yaml:"op"`
	Description string `yaml:"description,omitempty"`

	// paint, erase, count
	Label  *models.Label `yaml:"label,omitempty"`
	Voxels [][3]int      `yaml:"voxels,flow,omitempty"`
	Box    *Box          `yaml:"box,omitempty"`

	// replace
	From models.Label `yaml:"from,omitempty"`
	To   models.Label `yaml:"to,omitempty"`

	// cutplane
	Normal    [3]float64 `yaml:"normal,flow,omitempty"`
	Intercept float64    `yaml:"intercept,omitempty"`

	// cursor
	At [3]int `yaml:"at,flow,omitempty"`

	// snap
	Origin [3]int `yaml:"origin,flow,omitempty"`
	Extent [3]int `yaml:"extent,flow,omitempty"`

	// settings
	Coverage      string        `yaml:"coverage,omitempty"`
	DrawingLabel  *models.Label `yaml:"drawingLabel,omitempty"`
	DrawOverLabel *models.Label `yaml:"drawOverLabel,omitempty"`
	Invert        *bool         `yaml:"invert,omitempty"`
}

// Box is an inclusive voxel range
type Box struct {
	Min [3]int `yaml:"min,flow"`
	Max [3]int `yaml:"max,flow"`
}

// Coords lists the voxels of the box, X fastest
func (b Box) Coords() []models.Coord {
	var out []models.Coord
	for z := b.Min[2]; z <= b.Max[2]; z++ {
		for y := b.Min[1]; y <= b.Max[1]; y++ {
			for x := b.Min[0]; x <= b.Max[0]; x++ {
				out = append(out, models.Coord{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

// coords returns the explicit voxels of a step followed by its box
func (s *Step) coords() []models.Coord {
	out := make([]models.Coord, 0, len(s.Voxels))
	for _, v := range s.Voxels {
		out = append(out, models.Coord{X: v[0], Y: v[1], Z: v[2]})
	}
	if s.Box != nil {
		out = append(out, s.Box.Coords()...)
	}
	return out
}

// apply updates settings with the fields the step sets
func (s *Step) apply(settings segmentation.DrawingSettings) (segmentation.DrawingSettings, error) {
	if s.Coverage != "" {
		mode, err := segmentation.ParseCoverageMode(s.Coverage)
		if err != nil {
			return settings, err
		}
		settings.Mode = mode
	}
	if s.DrawingLabel != nil {
		settings.DrawingLabel = *s.DrawingLabel
	}
	if s.DrawOverLabel != nil {
		settings.DrawOverLabel = *s.DrawOverLabel
	}
	if s.Invert != nil {
		settings.InvertDrawing = *s.Invert
	}
	return settings, nil
}

// Parse decodes and validates a script
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, Error.New("failed to parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a script file
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Error.New("failed to read script: %w", err)
	}
	return Parse(data)
}

// Validate checks the geometry and that every step names a known op
func (s *Script) Validate() error {
	if !models.Size(s.Size).Valid() {
		return Error.New("invalid size %v", s.Size)
	}
	if s.Orientation == "" {
		s.Orientation = "RAI"
	}
	for i := range s.Steps {
		st := &s.Steps[i]
		st.Op = strings.ToLower(strings.TrimSpace(st.Op))
		if !knownOps[st.Op] {
			return Error.New("step %d: unknown op %q", i, st.Op)
		}
		switch st.Op {
		case OpPaint, OpErase:
			if len(st.Voxels) == 0 && st.Box == nil {
				return Error.New("step %d: %s needs voxels or a box", i, st.Op)
			}
		case OpCount:
			if st.Label == nil {
				return Error.New("step %d: count needs a label", i)
			}
		case OpCutPlane:
			if st.Normal == [3]float64{} {
				return Error.New("step %d: cutplane needs a normal", i)
			}
		case OpSnap:
			if !models.Size(st.Extent).Valid() {
				return Error.New("step %d: invalid snap extent %v", i, st.Extent)
			}
		}
	}
	return nil
}
