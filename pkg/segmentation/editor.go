// Package segmentation applies undoable edits to a label volume.
//
// Interactive painting uses the Begin / UpdateVoxel / End transaction protocol.
// Bulk operations (replace, cut plane, slice drawing, merge, clear) each run as one
// implicit transaction. Every path resolves the new value of a voxel through
// DrawOverLabel and commits exactly one delta to the undo history when something
// changed.
//
// The editor holds one mutex per discrete operation. It is never held across an
// open transaction, but no other edit, undo or scan may start while one is open.
package segmentation

import (
	"sync"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"segedit/internal/models"
	"segedit/pkg/delta"
	"segedit/pkg/labelvolume"
	"segedit/pkg/orientation"
	"segedit/pkg/undo"
)

var (
	// Error is the class for segmentation errors
	Error = errs.Class("segmentation")

	// ErrTransactionAlreadyOpen is returned when an operation needs the editor idle
	ErrTransactionAlreadyOpen = errs.Class("transaction already open")

	// ErrNoActiveTransaction is returned by UpdateVoxel and End outside a transaction
	ErrNoActiveTransaction = errs.Class("no active transaction")
)

// defaultProgressEvery is the number of voxels between progress reports and
// cancellation checks in bulk operations
const defaultProgressEvery = 1 << 20

// Options configures an Editor
type Options struct {
	Logger   *zap.Logger
	Metrics  *Metrics
	Settings DrawingSettings
	// Transform is used by slice drawing and the cut-plane fast path.
	// Nil means an RAI image with the default display windows.
	Transform *orientation.Transform

	Progress      models.ProgressCallback
	ProgressEvery int
}

// transaction holds the state between Begin and End
type transaction struct {
	description string
	settings    DrawingSettings
	original    map[int]models.Label
	changed     int
}

// Editor owns a label volume and its undo history
type Editor struct {
	mu sync.Mutex

	vol       *labelvolume.Volume
	history   *undo.Manager
	settings  DrawingSettings
	transform *orientation.Transform

	log           *zap.Logger
	metrics       *Metrics
	progress      models.ProgressCallback
	progressEvery int

	tx *transaction
}

// NewEditor creates an editor for vol that records edits in history
func NewEditor(vol *labelvolume.Volume, history *undo.Manager, opts Options) (*Editor, error) {
	if vol == nil || history == nil {
		return nil, Error.New("editor needs a volume and an undo history")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	xf := opts.Transform
	if xf == nil {
		var err error
		xf, err = orientation.New(orientation.MustParseCode("RAI"), orientation.DefaultDisplay)
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = defaultProgressEvery
	}
	return &Editor{
		vol:           vol,
		history:       history,
		settings:      opts.Settings,
		transform:     xf,
		log:           log.Named("segmentation"),
		metrics:       opts.Metrics,
		progress:      opts.Progress,
		progressEvery: every,
	}, nil
}

// Settings returns the current drawing settings
func (e *Editor) Settings() DrawingSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// SetSettings replaces the drawing settings. An open transaction keeps the
// settings it was started with.
func (e *Editor) SetSettings(s DrawingSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s
	return nil
}

// DrawOverLabel resolves current under the editor's drawing settings
func (e *Editor) DrawOverLabel(current models.Label) models.Label {
	return DrawOverLabel(e.Settings(), current)
}

// Transform returns the transform used for display-space edits
func (e *Editor) Transform() *orientation.Transform {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transform
}

// SetTransform replaces the transform used for display-space edits
func (e *Editor) SetTransform(xf *orientation.Transform) {
	if xf == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transform = xf
}

// SetProgress replaces the callback used by bulk operations
func (e *Editor) SetProgress(cb models.ProgressCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = cb
}

// InTransaction reports whether a transaction is open
func (e *Editor) InTransaction() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx != nil
}

// BeginSegmentationUpdate opens a transaction that paints the current drawing label
func (e *Editor) BeginSegmentationUpdate(description string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.begin(e.settings.DrawingLabel, description)
}

// Begin opens a transaction that paints label under the current coverage policy
func (e *Editor) Begin(label models.Label, description string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.begin(label, description)
}

func (e *Editor) begin(label models.Label, description string) error {
	if e.tx != nil {
		return ErrTransactionAlreadyOpen.New("%q is still open", e.tx.description)
	}
	s := e.settings
	s.DrawingLabel = label
	e.tx = &transaction{
		description: description,
		settings:    s,
		original:    make(map[int]models.Label),
	}
	return nil
}

// UpdateSegmentationVoxel is UpdateVoxel under the facade's name
func (e *Editor) UpdateSegmentationVoxel(c models.Coord) (bool, error) {
	return e.UpdateVoxel(c)
}

// UpdateVoxel paints c if the coverage policy allows it and reports whether the
// voxel's label changed. The policy is checked against the value c held when the
// transaction began, so touching a voxel twice gives the same result as once.
func (e *Editor) UpdateVoxel(c models.Coord) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tx == nil {
		return false, ErrNoActiveTransaction.New("update of %v", c)
	}
	size := e.vol.Size()
	if !size.Contains(c) {
		return false, labelvolume.ErrOutOfRange.New("%v outside %v", c, size)
	}

	idx := size.Index(c)
	before, seen := e.tx.original[idx]
	if !seen {
		before = e.vol.At(idx)
	}
	target := DrawOverLabel(e.tx.settings, before)
	if target == before {
		return false, nil
	}
	if !seen {
		e.tx.original[idx] = before
		e.tx.changed++
	}
	e.vol.SetAt(idx, target)
	return true, nil
}

// EndSegmentationUpdate is End under the facade's name
func (e *Editor) EndSegmentationUpdate() (int, error) {
	return e.End()
}

// End closes the transaction and returns the number of voxels relabeled. When
// that number is zero no undo step is recorded.
func (e *Editor) End() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.tx
	if tx == nil {
		return 0, ErrNoActiveTransaction.New("end")
	}
	e.tx = nil
	if tx.changed == 0 {
		return 0, nil
	}

	d, err := e.history.Commit(tx.description, tx.original, e.vol)
	if err != nil {
		return 0, err
	}
	e.committed("paint", tx.description, tx.changed, d)
	return tx.changed, nil
}

func (e *Editor) committed(op, description string, changed int, d *delta.Delta) {
	var size int64
	if d != nil {
		size = d.Size()
	}
	e.metrics.committed(op, changed)
	e.log.Debug("committed edit",
		zap.String("op", op),
		zap.String("description", description),
		zap.Int("changed", changed),
		zap.Int64("bytes", size))
}

// Undo reverts the most recent applied edit and returns its delta
func (e *Editor) Undo() (*delta.Delta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx != nil {
		return nil, ErrTransactionAlreadyOpen.New("undo during %q", e.tx.description)
	}
	return e.history.Undo(e.vol)
}

// Redo replays the next undone edit and returns its delta
func (e *Editor) Redo() (*delta.Delta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx != nil {
		return nil, ErrTransactionAlreadyOpen.New("redo during %q", e.tx.description)
	}
	return e.history.Redo(e.vol)
}

// CanUndo reports whether a delta can be reverted. It is false during a transaction.
func (e *Editor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx == nil && e.history.CanUndo()
}

// CanRedo reports whether a reverted delta can be replayed
func (e *Editor) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx == nil && e.history.CanRedo()
}

// ClearHistory drops every undo step. The volume is unchanged.
func (e *Editor) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Clear()
}

// History lists the undo history oldest first
func (e *Editor) History() []undo.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Entries()
}

// Reset swaps in a new volume and clears the history. An open transaction is discarded.
func (e *Editor) Reset(vol *labelvolume.Volume) error {
	if vol == nil {
		return Error.New("nil volume")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx != nil {
		e.log.Warn("discarding open transaction on reset", zap.String("description", e.tx.description))
		e.tx = nil
	}
	e.vol = vol
	e.history.Clear()
	return nil
}

// View runs fn with the volume while holding the editor lock. fn must not modify
// the volume. It fails while a transaction is open.
func (e *Editor) View(fn func(vol *labelvolume.Volume) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx != nil {
		return ErrTransactionAlreadyOpen.New("scan during %q", e.tx.description)
	}
	return fn(e.vol)
}
