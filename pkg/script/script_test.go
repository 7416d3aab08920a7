package script

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"segedit/internal/models"
	"segedit/pkg/app"
)

const editScript = `
size: [6, 6, 6]
orientation: RAI
steps:
  - op: paint
    label: 2
    box: {min: [0, 0, 0], max: [2, 2, 2]}
  - op: count
    label: 2
  - op: replace
    from: 2
    to: 3
  - op: undo
  - op: undo
  - op: undo
  - op: redo
  - op: settings
    coverage: PaintOverBackgroundOnly
    drawingLabel: 4
  - op: cutplane
    normal: [1, 0, 0]
    intercept: 4
  - op: count
    label: 4
  - op: settings
    coverage: PaintOverAll
  - op: erase
    voxels: [[5, 0, 0], [5, 1, 0]]
  - op: count
    label: 4
`

func newApp(t *testing.T) *app.Application {
	t.Helper()
	a, err := app.New(nil, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestParse(t *testing.T) {
	s, err := Parse([]byte(editScript))
	require.NoError(t, err)
	assert.Equal(t, [3]int{6, 6, 6}, s.Size)
	require.Len(t, s.Steps, 13)
	assert.Equal(t, OpPaint, s.Steps[0].Op)
	require.NotNil(t, s.Steps[0].Box)
	assert.Len(t, s.Steps[0].coords(), 27)
	assert.Equal(t, models.Label(3), s.Steps[2].To)
	assert.Equal(t, [3]float64{1, 0, 0}, s.Steps[8].Normal)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"size":     "size: [0, 2, 2]\n",
		"op":       "size: [2, 2, 2]\nsteps:\n  - op: smudge\n",
		"paint":    "size: [2, 2, 2]\nsteps:\n  - op: paint\n",
		"count":    "size: [2, 2, 2]\nsteps:\n  - op: count\n",
		"cutplane": "size: [2, 2, 2]\nsteps:\n  - op: cutplane\n",
		"snap":     "size: [2, 2, 2]\nsteps:\n  - op: snap\n    extent: [0, 1, 1]\n",
		"yaml":     "size: [2, 2",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.True(t, Error.Has(err))
		})
	}
}

func TestDefaultOrientation(t *testing.T) {
	s, err := Parse([]byte("size: [2, 2, 2]\nsteps:\n  - op: Clear\n"))
	require.NoError(t, err)
	assert.Equal(t, "RAI", s.Orientation)
	assert.Equal(t, OpClear, s.Steps[0].Op)
}

func TestRun(t *testing.T) {
	s, err := Parse([]byte(editScript))
	require.NoError(t, err)

	a := newApp(t)
	var out bytes.Buffer
	report, err := Run(context.Background(), a, s, &out)
	require.NoError(t, err)
	require.Len(t, report.Results, 13)

	r := report.Results
	assert.Equal(t, 27, r[0].Changed)
	assert.Equal(t, "Paint label 2", r[0].Description)
	assert.Equal(t, 27, r[1].Count)
	assert.Equal(t, 27, r[2].Changed)
	assert.Equal(t, "Replace label 2 with 3", r[3].Description)
	assert.Equal(t, "Paint label 2", r[4].Description)

	// the third undo runs off the start of the history
	assert.Contains(t, r[5].Err, "nothing to undo")
	assert.Equal(t, "Paint label 2", r[6].Description)

	// x >= 4 is two planes of 36, all background
	assert.Equal(t, 72, r[8].Changed)
	assert.Equal(t, 72, r[9].Count)
	assert.Equal(t, 2, r[11].Changed)
	assert.Equal(t, 70, r[12].Count)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 5, failed[0].Step)

	assert.Contains(t, out.String(), "count=70")
	assert.Equal(t, 13, bytes.Count(out.Bytes(), []byte("\n")))
}

func TestRunStopsOnError(t *testing.T) {
	s, err := Parse([]byte(`
size: [3, 3, 3]
steps:
  - op: paint
    label: 1
    voxels: [[0, 0, 0]]
  - op: paint
    label: 1
    voxels: [[1, 1, 1], [3, 0, 0]]
  - op: clear
`))
	require.NoError(t, err)

	a := newApp(t)
	report, err := Run(context.Background(), a, s, nil)
	assert.True(t, Error.Has(err))
	require.Len(t, report.Results, 2)
	assert.NotEmpty(t, report.Results[1].Err)

	// the failing step painted nothing
	count, err := a.CountVoxelsWithLabel(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunSNAP(t *testing.T) {
	s, err := Parse([]byte(`
size: [8, 8, 8]
steps:
  - op: cursor
    at: [3, 3, 3]
  - op: snap
    origin: [2, 2, 2]
    extent: [4, 4, 4]
  - op: paint
    label: 5
    voxels: [[0, 0, 0], [1, 1, 1]]
  - op: merge
  - op: count
    label: 5
`))
	require.NoError(t, err)

	a := newApp(t)
	report, err := Run(context.Background(), a, s, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Results[3].Changed)
	assert.Equal(t, 2, report.Results[4].Count)
	assert.Equal(t, app.IRIS, a.Mode())
}

func TestRunCancelled(t *testing.T) {
	s, err := Parse([]byte("size: [2, 2, 2]\nsteps:\n  - op: clear\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, newApp(t), s, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(editScript), 0644))
	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Steps, 13)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, Error.Has(err))
}
