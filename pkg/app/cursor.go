package app

import (
	"gonum.org/v1/gonum/spatial/r3"

	"segedit/internal/models"
	"segedit/pkg/events"
	"segedit/pkg/labelvolume"
	"segedit/pkg/orientation"
)

// CursorEvent is the data of a CursorUpdate event
type CursorEvent struct {
	Mode     Mode
	Position models.Coord
}

// SetCursorPosition moves the cursor of the active mode. An event is published
// when the position changes or force is set.
func (a *Application) SetCursorPosition(c models.Coord, force bool) error {
	a.mu.Lock()
	d, mode, err := a.activeLocked()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if !d.Size().Contains(c) {
		a.mu.Unlock()
		return orientation.ErrOutOfRange.New("cursor %v outside %v", c, d.Size())
	}
	changed := d.cursor != c
	d.cursor = c
	a.mu.Unlock()

	if changed || force {
		a.bus.Publish(events.CursorUpdate, CursorEvent{Mode: mode, Position: c})
	}
	return nil
}

// CursorPosition returns the cursor of the active mode
func (a *Application) CursorPosition() (models.Coord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, _, err := a.activeLocked()
	if err != nil {
		return models.Coord{}, err
	}
	return d.cursor, nil
}

// TransferCursor copies the cursor of source to target through main image
// coordinates, clamping it to the target region.
func (a *Application) TransferCursor(source, target Mode) error {
	a.mu.Lock()
	src, err := a.modeDataLocked(source)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	dst, err := a.modeDataLocked(target)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	global := src.origin.Add(src.cursor)
	c := dst.Size().Clamp(global.Sub(dst.origin))
	changed := dst.cursor != c
	dst.cursor = c
	a.mu.Unlock()

	if changed {
		a.bus.Publish(events.CursorUpdate, CursorEvent{Mode: target, Position: c})
	}
	return nil
}

// modeDataLocked returns the image data of m. The caller holds a.mu.
func (a *Application) modeDataLocked(m Mode) (*ImageData, error) {
	switch m {
	case IRIS:
		if a.iris == nil {
			return nil, Error.New("no main image loaded")
		}
		return a.iris, nil
	case SNAP:
		if a.snap == nil {
			return nil, Error.New("SNAP is not initialized")
		}
		return a.snap, nil
	}
	return nil, Error.New("unknown mode %d", int(m))
}

// RayIntersect returns the first labeled voxel of the active image hit by the
// ray from point along ray, both in the active image's index coordinates.
func (a *Application) RayIntersect(point, ray r3.Vec) (models.Coord, bool, error) {
	d, err := a.ActiveImage()
	if err != nil {
		return models.Coord{}, false, err
	}
	var (
		hit models.Coord
		ok  bool
	)
	err = d.editor.View(func(vol *labelvolume.Volume) error {
		hit, ok = vol.RayIntersection(point, ray)
		return nil
	})
	return hit, ok, err
}

// ImageAxisForAnatomicalDirection returns the image axis closest to d
func (a *Application) ImageAxisForAnatomicalDirection(d orientation.Direction) (int, error) {
	xf, err := a.currentTransform()
	if err != nil {
		return 0, err
	}
	return xf.ImageAxisForAnatomicalDirection(d)
}

// DisplayWindowForAnatomicalDirection returns the window looking along d
func (a *Application) DisplayWindowForAnatomicalDirection(d orientation.Direction) (orientation.WindowRef, error) {
	xf, err := a.currentTransform()
	if err != nil {
		return orientation.WindowRef{}, err
	}
	return xf.DisplayWindowForAnatomicalDirection(d)
}

// AnatomicalDirectionForDisplayWindow is the inverse of DisplayWindowForAnatomicalDirection
func (a *Application) AnatomicalDirectionForDisplayWindow(ref orientation.WindowRef) (orientation.Direction, error) {
	xf, err := a.currentTransform()
	if err != nil {
		return 0, err
	}
	return xf.AnatomicalDirectionForDisplayWindow(ref)
}

// IsImageOrientationOblique reports whether the main image is oblique
func (a *Application) IsImageOrientationOblique() (bool, error) {
	xf, err := a.currentTransform()
	if err != nil {
		return false, err
	}
	return xf.IsOblique(), nil
}

// ImageToAnatomyRAI returns the RAI code of the main image
func (a *Application) ImageToAnatomyRAI() (string, error) {
	xf, err := a.currentTransform()
	if err != nil {
		return "", err
	}
	return xf.ImageCode().String(), nil
}

// DisplayToAnatomyRAI returns the RAI code of display window w
func (a *Application) DisplayToAnatomyRAI(w int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w < 0 || w >= orientation.NumWindows {
		return "", orientation.ErrOutOfRange.New("display window %d", w)
	}
	return a.display[w].String(), nil
}

// Transform returns the current coordinate transform
func (a *Application) Transform() (*orientation.Transform, error) {
	return a.currentTransform()
}
