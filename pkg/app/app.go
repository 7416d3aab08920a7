// Package app is the application facade over the segmentation core.
//
// It owns the main (IRIS) image data and the optional SNAP region, selects the
// coordinate transform, delegates edits to the active mode's editor, and turns
// successful operations into events for observers.
package app

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"segedit/internal/models"
	"segedit/pkg/config"
	"segedit/pkg/delta"
	"segedit/pkg/events"
	"segedit/pkg/intensity"
	"segedit/pkg/labelvolume"
	"segedit/pkg/orientation"
	"segedit/pkg/segmentation"
	"segedit/pkg/undo"
)

var (
	// Error is the class for facade errors such as a missing image or a bad mode
	Error = errs.Class("app")
)

// Mode selects which image data edits apply to
type Mode int

const (
	// IRIS edits the full main image
	IRIS Mode = iota
	// SNAP edits a cropped region of interest
	SNAP
)

func (m Mode) String() string {
	switch m {
	case IRIS:
		return "IRIS"
	case SNAP:
		return "SNAP"
	}
	return "Mode(?)"
}

// ImageData is the label volume and editing state of one mode. Origin is where
// the region starts inside the main image; the cursor is in region coordinates.
// The labels belong to the editor. Origin and size never change.
type ImageData struct {
	origin models.Coord
	size   models.Size
	editor *segmentation.Editor
	cursor models.Coord
}

// Origin is the position of the region inside the main image
func (d *ImageData) Origin() models.Coord { return d.origin }

// Size is the extent of the region
func (d *ImageData) Size() models.Size { return d.size }

// Application is the facade. It is safe for concurrent use, but edits are
// serialized by each mode's editor.
type Application struct {
	mu sync.Mutex

	cfg         *config.Config
	log         *zap.Logger
	bus         *events.Bus
	codec       *delta.Codec
	undoMetrics *undo.Metrics
	segMetrics  *segmentation.Metrics

	settings  segmentation.DrawingSettings
	display   [orientation.NumWindows]orientation.Code
	transform *orientation.Transform
	mapping   intensity.Mapping
	spacing   models.Spacing
	progress  models.ProgressCallback

	grey []int16
	mode Mode
	iris *ImageData
	snap *ImageData
}

// New creates an application with no image loaded. Metrics are registered on
// reg when it is not nil.
func New(cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	settings, err := cfg.DrawingSettings()
	if err != nil {
		return nil, err
	}
	display, err := cfg.DisplayCodes()
	if err != nil {
		return nil, err
	}
	mapping, err := cfg.IntensityMapping()
	if err != nil {
		return nil, err
	}
	codec, err := delta.NewCodec(cfg.Undo.CompressionLevel)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	a := &Application{
		cfg:      cfg,
		log:      log.Named("app"),
		bus:      events.NewBus(events.WithLogger(log)),
		codec:    codec,
		settings: settings,
		display:  display,
		mapping:  mapping,
		spacing:  cfg.Spacing(),
	}
	if reg != nil {
		a.undoMetrics = undo.NewMetrics(reg)
		a.segMetrics = segmentation.NewMetrics(reg)
	}
	return a, nil
}

// Close releases the delta codec
func (a *Application) Close() error {
	return Error.Wrap(a.codec.Close())
}

// Subscribe registers an observer; see events.Bus.Subscribe
func (a *Application) Subscribe(handler events.Handler, types ...events.Type) string {
	return a.bus.Subscribe(handler, types...)
}

// Unsubscribe removes an observer
func (a *Application) Unsubscribe(id string) bool {
	return a.bus.Unsubscribe(id)
}

// Events returns the most recently published events
func (a *Application) Events() []events.Event {
	return a.bus.Recent()
}

// SetProgressCallback sets the callback used by long scans
func (a *Application) SetProgressCallback(cb models.ProgressCallback) {
	a.mu.Lock()
	a.progress = cb
	imgs := a.imageDataLocked()
	a.mu.Unlock()

	for _, d := range imgs {
		d.editor.SetProgress(cb)
	}
}

// LoadMainImage creates an empty segmentation for a main image of the given
// size whose axes follow the RAI code imageRAI. Any SNAP region is released and
// the undo history starts empty.
func (a *Application) LoadMainImage(size models.Size, imageRAI string) error {
	code, err := orientation.ParseCode(imageRAI)
	if err != nil {
		return err
	}
	xf, err := orientation.New(code, a.displayCodes())
	if err != nil {
		return err
	}
	return a.loadMainImage(size, xf)
}

// LoadDirectionMatrix is LoadMainImage for an image described by its 3x3
// direction cosine matrix. Oblique matrices are accepted and flagged.
func (a *Application) LoadDirectionMatrix(size models.Size, m mat.Matrix) error {
	xf, err := orientation.FromDirectionMatrix(m, a.displayCodes())
	if err != nil {
		return err
	}
	return a.loadMainImage(size, xf)
}

func (a *Application) displayCodes() [orientation.NumWindows]orientation.Code {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.display
}

func (a *Application) loadMainImage(size models.Size, xf *orientation.Transform) error {
	vol, err := labelvolume.New(size)
	if err != nil {
		return err
	}

	a.mu.Lock()
	iris, err := a.newImageData(models.Coord{}, vol, xf)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	iris.cursor = models.Coord{X: size[0] / 2, Y: size[1] / 2, Z: size[2] / 2}
	a.transform = xf
	a.iris = iris
	a.snap = nil
	a.grey = nil
	modeChanged := a.mode != IRIS
	a.mode = IRIS
	cursor := iris.cursor
	a.mu.Unlock()

	a.log.Info("loaded main image",
		zap.Stringer("size", size),
		zap.Stringer("orientation", xf.ImageCode()),
		zap.Bool("oblique", xf.IsOblique()))

	if modeChanged {
		a.bus.Publish(events.ModeChange, IRIS)
	}
	a.bus.Publish(events.MainImageDimensionsChange, size)
	a.bus.Publish(events.UndoHistoryChange, IRIS)
	a.bus.Publish(events.CursorUpdate, CursorEvent{Mode: IRIS, Position: cursor})
	return nil
}

// newImageData builds a region with its own history. The caller holds a.mu.
func (a *Application) newImageData(origin models.Coord, vol *labelvolume.Volume, xf *orientation.Transform) (*ImageData, error) {
	history, err := undo.New(a.codec, undo.Options{
		BudgetBytes: a.cfg.Undo.BudgetBytes,
		Logger:      a.log,
		Metrics:     a.undoMetrics,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	editor, err := segmentation.NewEditor(vol, history, segmentation.Options{
		Logger:        a.log,
		Metrics:       a.segMetrics,
		Settings:      a.settings,
		Transform:     xf,
		Progress:      a.progress,
		ProgressEvery: a.cfg.Processing.ProgressEvery,
	})
	if err != nil {
		return nil, err
	}
	return &ImageData{origin: origin, size: vol.Size(), editor: editor}, nil
}

// LoadSegmentation replaces the main image labels without recording an undo
// step, and clears the history.
func (a *Application) LoadSegmentation(labels []models.Label) error {
	a.mu.Lock()
	iris := a.iris
	a.mu.Unlock()
	if iris == nil {
		return Error.New("no main image loaded")
	}

	vol, err := labelvolume.FromData(iris.Size(), labels)
	if err != nil {
		return err
	}
	if err := iris.editor.Reset(vol); err != nil {
		return err
	}

	a.bus.Publish(events.SegmentationChange, SegmentationEvent{Mode: IRIS, Description: "Load segmentation"})
	a.bus.Publish(events.UndoHistoryChange, IRIS)
	return nil
}

// LoadGreyImage sets the main image intensities used by Statistics
func (a *Application) LoadGreyImage(grey []int16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.iris == nil {
		return Error.New("no main image loaded")
	}
	if len(grey) != a.iris.Size().Len() {
		return Error.New("grey image has %d voxels, main image has %d", len(grey), a.iris.Size().Len())
	}
	a.grey = grey
	return nil
}

// SetIntensityMapping sets the mapping from stored to native grey values
func (a *Application) SetIntensityMapping(m intensity.Mapping) {
	a.mu.Lock()
	a.mapping = m
	a.mu.Unlock()
	a.bus.Publish(events.DisplayMappingChange, m)
}

// IntensityMapping returns the mapping used to report native intensities
func (a *Application) IntensityMapping() intensity.Mapping {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mapping
}

// SetDisplayToAnatomyRAI changes the display windows. On error nothing changes.
func (a *Application) SetDisplayToAnatomyRAI(axial, sagittal, coronal string) error {
	var codes [orientation.NumWindows]orientation.Code
	for w, s := range [...]string{axial, sagittal, coronal} {
		code, err := orientation.ParseCode(s)
		if err != nil {
			return err
		}
		codes[w] = code
	}

	a.mu.Lock()
	var xf *orientation.Transform
	if a.transform != nil {
		var err error
		if xf, err = a.transform.WithDisplay(codes); err != nil {
			a.mu.Unlock()
			return err
		}
	} else if _, err := orientation.New(orientation.MustParseCode("RAI"), codes); err != nil {
		a.mu.Unlock()
		return err
	}
	a.display = codes
	a.transform = xf
	imgs := a.imageDataLocked()
	a.mu.Unlock()

	if xf != nil {
		for _, d := range imgs {
			d.editor.SetTransform(xf)
		}
	}
	a.bus.Publish(events.DisplayMappingChange, codes)
	return nil
}

// imageDataLocked lists the loaded image data. The caller holds a.mu.
func (a *Application) imageDataLocked() []*ImageData {
	var out []*ImageData
	if a.iris != nil {
		out = append(out, a.iris)
	}
	if a.snap != nil {
		out = append(out, a.snap)
	}
	return out
}

// active returns the image data of the current mode
func (a *Application) active() (*ImageData, Mode, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeLocked()
}

func (a *Application) activeLocked() (*ImageData, Mode, error) {
	switch {
	case a.iris == nil:
		return nil, a.mode, Error.New("no main image loaded")
	case a.mode == SNAP && a.snap == nil:
		return nil, a.mode, Error.New("SNAP mode without SNAP data")
	case a.mode == SNAP:
		return a.snap, SNAP, nil
	}
	return a.iris, IRIS, nil
}

func (a *Application) currentTransform() (*orientation.Transform, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.transform == nil {
		return nil, Error.New("no main image loaded")
	}
	return a.transform, nil
}

// MainImageSize returns the size of the IRIS image
func (a *Application) MainImageSize() (models.Size, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.iris == nil {
		return models.Size{}, Error.New("no main image loaded")
	}
	return a.iris.Size(), nil
}

// ActiveImage returns the image data edits currently apply to
func (a *Application) ActiveImage() (*ImageData, error) {
	d, _, err := a.active()
	return d, err
}
