package app

import (
	"context"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"segedit/internal/models"
	"segedit/pkg/delta"
	"segedit/pkg/events"
	"segedit/pkg/labelvolume"
	"segedit/pkg/segmentation"
	"segedit/pkg/stats"
	"segedit/pkg/undo"
	"segedit/pkg/visualization"
)

// SegmentationEvent is the data of a SegmentationChange event
type SegmentationEvent struct {
	Mode        Mode
	Description string
	Changed     int
}

func (a *Application) segmentationChanged(mode Mode, description string, changed int) {
	a.bus.Publish(events.SegmentationChange, SegmentationEvent{Mode: mode, Description: description, Changed: changed})
	a.bus.Publish(events.UndoHistoryChange, mode)
}

// lastDescription returns the description of the newest undo step of d
func lastDescription(d *ImageData) string {
	entries := d.editor.History()
	if len(entries) == 0 {
		return ""
	}
	return entries[len(entries)-1].Description
}

// SetDrawingSettings applies s to every mode
func (a *Application) SetDrawingSettings(s segmentation.DrawingSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.settings = s
	imgs := a.imageDataLocked()
	a.mu.Unlock()

	for _, d := range imgs {
		if err := d.editor.SetSettings(s); err != nil {
			return err
		}
	}
	return nil
}

// DrawingSettings returns the settings applied to every paint operation
func (a *Application) DrawingSettings() segmentation.DrawingSettings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// DrawOverLabel returns the label a voxel holding target gets when drawn on
func (a *Application) DrawOverLabel(target models.Label) models.Label {
	return segmentation.DrawOverLabel(a.DrawingSettings(), target)
}

// BeginSegmentationUpdate opens a paint transaction with the drawing label
func (a *Application) BeginSegmentationUpdate(description string) error {
	d, err := a.ActiveImage()
	if err != nil {
		return err
	}
	return d.editor.BeginSegmentationUpdate(description)
}

// BeginSegmentationUpdateWithLabel opens a paint transaction with label
func (a *Application) BeginSegmentationUpdateWithLabel(label models.Label, description string) error {
	d, err := a.ActiveImage()
	if err != nil {
		return err
	}
	return d.editor.Begin(label, description)
}

// UpdateSegmentationVoxel paints c in the open transaction of the active mode
// and reports whether its label changed.
func (a *Application) UpdateSegmentationVoxel(c models.Coord) (bool, error) {
	d, err := a.ActiveImage()
	if err != nil {
		return false, err
	}
	return d.editor.UpdateSegmentationVoxel(c)
}

// EndSegmentationUpdate commits the open transaction and returns the number of
// voxels relabeled
func (a *Application) EndSegmentationUpdate() (int, error) {
	d, mode, err := a.active()
	if err != nil {
		return 0, err
	}
	n, err := d.editor.EndSegmentationUpdate()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.segmentationChanged(mode, lastDescription(d), n)
	}
	return n, nil
}

// ReplaceLabel relabels every voxel holding from with to as one undo step
func (a *Application) ReplaceLabel(ctx context.Context, from, to models.Label) (int, error) {
	d, mode, err := a.active()
	if err != nil {
		return 0, err
	}
	n, err := d.editor.ReplaceLabel(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.segmentationChanged(mode, lastDescription(d), n)
	}
	return n, nil
}

// RelabelWithCutPlane draws over every voxel on the positive side of the plane
func (a *Application) RelabelWithCutPlane(ctx context.Context, normal r3.Vec, intercept float64) (int, error) {
	d, mode, err := a.active()
	if err != nil {
		return 0, err
	}
	n, err := d.editor.RelabelWithCutPlane(ctx, normal, intercept)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.segmentationChanged(mode, lastDescription(d), n)
	}
	return n, nil
}

// ClearSegmentation sets every voxel of the active image to background as one undo step
func (a *Application) ClearSegmentation(ctx context.Context) (int, error) {
	d, mode, err := a.active()
	if err != nil {
		return 0, err
	}
	n, err := d.editor.Clear(ctx, "Clear segmentation")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.segmentationChanged(mode, lastDescription(d), n)
	}
	return n, nil
}

// UpdateSegmentationWithSliceDrawing applies a drawing made on display window w
// to the slice of w that contains the cursor.
func (a *Application) UpdateSegmentationWithSliceDrawing(ctx context.Context, mask segmentation.SliceMask, w int, description string) (int, error) {
	a.mu.Lock()
	d, mode, err := a.activeLocked()
	if err != nil {
		a.mu.Unlock()
		return 0, err
	}
	xf, cursor := a.transform, d.cursor
	a.mu.Unlock()

	slice, err := xf.SliceIndex(w, cursor, d.Size())
	if err != nil {
		return 0, err
	}
	n, err := d.editor.ApplySliceDrawing(ctx, mask, w, slice, description)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.segmentationChanged(mode, description, n)
	}
	return n, nil
}

// Undo reverts the last edit of the active mode and returns its description
func (a *Application) Undo() (string, error) {
	return a.step(func(e *segmentation.Editor) (*delta.Delta, error) { return e.Undo() })
}

// Redo replays the last undone edit of the active mode and returns its description
func (a *Application) Redo() (string, error) {
	return a.step(func(e *segmentation.Editor) (*delta.Delta, error) { return e.Redo() })
}

func (a *Application) step(fn func(*segmentation.Editor) (*delta.Delta, error)) (string, error) {
	d, mode, err := a.active()
	if err != nil {
		return "", err
	}
	dl, err := fn(d.editor)
	if err != nil {
		return "", err
	}
	a.segmentationChanged(mode, dl.Description(), dl.VoxelCount())
	return dl.Description(), nil
}

// CanUndo reports whether the active mode has an edit to undo
func (a *Application) CanUndo() bool {
	d, err := a.ActiveImage()
	return err == nil && d.editor.CanUndo()
}

// CanRedo reports whether the active mode has an edit to redo
func (a *Application) CanRedo() bool {
	d, err := a.ActiveImage()
	return err == nil && d.editor.CanRedo()
}

// ClearHistory makes the current state of the active mode impossible to undo past
func (a *Application) ClearHistory() error {
	d, mode, err := a.active()
	if err != nil {
		return err
	}
	d.editor.ClearHistory()
	a.bus.Publish(events.UndoHistoryChange, mode)
	return nil
}

// History lists the undo history of the active mode
func (a *Application) History() ([]undo.Entry, error) {
	d, err := a.ActiveImage()
	if err != nil {
		return nil, err
	}
	return d.editor.History(), nil
}

// CountVoxelsWithLabel counts the voxels of the active image holding label
func (a *Application) CountVoxelsWithLabel(ctx context.Context, label models.Label) (int, error) {
	d, err := a.ActiveImage()
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	cb := a.progress
	a.mu.Unlock()

	var n int
	err = d.editor.View(func(vol *labelvolume.Volume) error {
		var err error
		n, err = vol.CountVoxelsWithLabel(ctx, label, a.cfg.Processing.NumCores)
		return err
	})
	if err == nil && cb != nil {
		cb(d.Size().Len(), d.Size().Len(), "Counting voxels")
	}
	return n, err
}

// Statistics computes per-label statistics of the main segmentation, using the
// grey image when one was loaded.
func (a *Application) Statistics(ctx context.Context) (stats.Table, error) {
	a.mu.Lock()
	iris, grey := a.iris, a.grey
	opts := stats.Options{
		Mapping:       a.mapping,
		Spacing:       a.spacing,
		Progress:      a.progress,
		ProgressEvery: a.cfg.Processing.ProgressEvery,
	}
	a.mu.Unlock()
	if iris == nil {
		return nil, Error.New("no main image loaded")
	}

	var table stats.Table
	err := iris.editor.View(func(vol *labelvolume.Volume) error {
		var err error
		table, err = stats.Compute(ctx, vol, grey, opts)
		return err
	})
	return table, err
}

// Snapshot returns a copy of the active image labels
func (a *Application) Snapshot() (*labelvolume.Volume, error) {
	d, err := a.ActiveImage()
	if err != nil {
		return nil, err
	}
	var out *labelvolume.Volume
	err = d.editor.View(func(vol *labelvolume.Volume) error {
		out = vol.Clone()
		return nil
	})
	return out, err
}

// ExportSlices writes every label slice of display window w of the active
// image to dir and returns the number of files written.
func (a *Application) ExportSlices(w int, dir string) (int, error) {
	xf, err := a.currentTransform()
	if err != nil {
		return 0, err
	}
	vol, err := a.Snapshot()
	if err != nil {
		return 0, err
	}
	a.log.Info("exporting slices", zap.Int("window", w), zap.String("dir", dir))
	return visualization.NewViewer(vol, xf).SaveSliceSequence(w, dir)
}
