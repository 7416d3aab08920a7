package app

import (
	"context"

	"go.uber.org/zap"

	"segedit/internal/models"
	"segedit/pkg/events"
	"segedit/pkg/labelvolume"
)

// Mode returns the active mode
func (a *Application) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// SetMode switches the active mode. SNAP needs an initialized region.
func (a *Application) SetMode(m Mode) error {
	a.mu.Lock()
	if _, err := a.modeDataLocked(m); err != nil {
		a.mu.Unlock()
		return err
	}
	changed := a.mode != m
	a.mode = m
	a.mu.Unlock()

	if changed {
		a.bus.Publish(events.ModeChange, m)
	}
	return nil
}

// InitializeSNAP copies the main labels inside the region at origin into a new
// SNAP image data with its own history, moves the cursor into it and switches
// to SNAP mode.
func (a *Application) InitializeSNAP(origin models.Coord, size models.Size) error {
	a.mu.Lock()
	iris := a.iris
	a.mu.Unlock()
	if iris == nil {
		return Error.New("no main image loaded")
	}

	var region *labelvolume.Volume
	err := iris.editor.View(func(vol *labelvolume.Volume) error {
		var err error
		region, err = vol.Crop(origin, size)
		return err
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	snap, err := a.newImageData(origin, region, a.transform)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.snap = snap
	a.mu.Unlock()

	a.log.Info("initialized SNAP region", zap.Stringer("origin", origin), zap.Stringer("size", size))
	if err := a.TransferCursor(IRIS, SNAP); err != nil {
		return err
	}
	return a.SetMode(SNAP)
}

// UpdateIRISWithSNAP merges the labeled SNAP voxels into the main segmentation
// under the draw-over policy as one undo step, then releases SNAP.
func (a *Application) UpdateIRISWithSNAP(ctx context.Context, description string) (int, error) {
	a.mu.Lock()
	iris, snap := a.iris, a.snap
	a.mu.Unlock()
	if iris == nil || snap == nil {
		return 0, Error.New("SNAP is not initialized")
	}

	// copy under the SNAP lock so a stroke in progress is never half merged
	var region *labelvolume.Volume
	if err := snap.editor.View(func(vol *labelvolume.Volume) error {
		region = vol.Clone()
		return nil
	}); err != nil {
		return 0, err
	}

	n, err := iris.editor.MergeRegion(ctx, region, snap.origin, description)
	if err != nil {
		return 0, err
	}
	if err := a.TransferCursor(SNAP, IRIS); err != nil {
		return 0, err
	}
	a.ReleaseSNAP()
	if n > 0 {
		a.segmentationChanged(IRIS, description, n)
	}
	return n, nil
}

// ReleaseSNAP discards the SNAP region and returns to IRIS mode
func (a *Application) ReleaseSNAP() {
	a.mu.Lock()
	a.snap = nil
	changed := a.mode != IRIS
	a.mode = IRIS
	a.mu.Unlock()

	if changed {
		a.bus.Publish(events.ModeChange, IRIS)
	}
}
