// Package undo keeps a linear, byte-bounded history of segmentation deltas.
//
// The history is a slice of deltas and a cursor c. Deltas [0,c) are applied to the
// current volume, deltas [c,N) can be redone. Pushing while c < N discards the redo
// tail. When the encoded size of the history exceeds the budget, the oldest deltas
// are evicted; the newest delta is always kept.
//
// A Manager is not safe for concurrent use. Callers serialize access, as
// segmentation.Editor does with its mutex.
package undo

import (
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"segedit/internal/models"
	"segedit/pkg/delta"
)

var (
	// Error is the class for undo history failures
	Error = errs.Class("undo")

	// ErrNothingToUndo is returned by Undo when the cursor is at the start
	ErrNothingToUndo = errs.Class("nothing to undo")

	// ErrNothingToRedo is returned by Redo when the cursor is at the end
	ErrNothingToRedo = errs.Class("nothing to redo")
)

// Options configures a Manager
type Options struct {
	// BudgetBytes bounds the encoded size of the history. Zero means unbounded.
	BudgetBytes int64
	Logger      *zap.Logger
	Metrics     *Metrics
}

// Entry describes one delta in the history
type Entry struct {
	Description string
	Voxels      int
	Bytes       int64
	// Applied is true for deltas that are part of the current state
	Applied bool
}

// Manager owns the delta codec and the history
type Manager struct {
	codec   *delta.Codec
	log     *zap.Logger
	metrics *Metrics
	budget  int64

	deltas []*delta.Delta
	cursor int
	bytes  int64
}

// New creates an empty history that encodes with codec
func New(codec *delta.Codec, opts Options) (*Manager, error) {
	if codec == nil {
		return nil, Error.New("nil codec")
	}
	if opts.BudgetBytes < 0 {
		return nil, Error.New("negative budget %d", opts.BudgetBytes)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		codec:   codec,
		log:     log.Named("undo"),
		metrics: opts.Metrics,
		budget:  opts.BudgetBytes,
	}
	m.metrics.size(0, 0)
	return m, nil
}

// Codec returns the codec the manager encodes and applies deltas with
func (m *Manager) Codec() *delta.Codec { return m.codec }

// Budget returns the configured byte budget
func (m *Manager) Budget() int64 { return m.budget }

// Commit encodes the changes between original and the current volume contents and
// pushes the result. It returns nil without touching the history when nothing changed.
func (m *Manager) Commit(description string, original map[int]models.Label, current delta.Reader) (*delta.Delta, error) {
	d, err := m.codec.Encode(description, original, current)
	if err != nil || d == nil {
		return nil, err
	}
	m.Push(d)
	return d, nil
}

// CommitChanges encodes an explicit change list and pushes the result. It returns
// nil without touching the history when no change alters a label.
func (m *Manager) CommitChanges(description string, changes []delta.Change) (*delta.Delta, error) {
	d, err := m.codec.EncodeChanges(description, changes)
	if err != nil || d == nil {
		return nil, err
	}
	m.Push(d)
	return d, nil
}

// Push drops the redo tail, appends d and evicts from the front while over budget
func (m *Manager) Push(d *delta.Delta) {
	if d == nil {
		return
	}
	for _, dropped := range m.deltas[m.cursor:] {
		m.bytes -= dropped.Size()
	}
	clear(m.deltas[m.cursor:])
	m.deltas = append(m.deltas[:m.cursor], d)
	m.cursor = len(m.deltas)
	m.bytes += d.Size()
	m.metrics.pushed()

	m.evict()
	m.metrics.size(m.bytes, len(m.deltas))
}

func (m *Manager) evict() {
	if m.budget == 0 {
		return
	}
	n := 0
	var freed int64
	for m.bytes > m.budget && len(m.deltas)-n > 1 {
		size := m.deltas[n].Size()
		m.bytes -= size
		freed += size
		n++
	}
	if n == 0 {
		return
	}

	clear(m.deltas[:n])
	m.deltas = m.deltas[n:]
	m.cursor -= n
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.metrics.evicted(n)
	m.log.Info("undo budget exceeded, evicted oldest deltas",
		zap.Int("evicted", n),
		zap.Int64("freed", freed),
		zap.Int64("bytes", m.bytes),
		zap.Int64("budget", m.budget))
}

// Undo reverts delta c-1 in vol and moves the cursor back. If the delta cannot be
// applied the cursor is unchanged.
func (m *Manager) Undo(vol delta.Writer) (d *delta.Delta, err error) {
	defer func() { m.metrics.operation("undo", err) }()

	if m.cursor == 0 {
		return nil, ErrNothingToUndo.New("history depth %d", len(m.deltas))
	}
	d = m.deltas[m.cursor-1]
	if err = m.codec.Apply(vol, d, delta.Inverse); err != nil {
		return nil, err
	}
	m.cursor--
	return d, nil
}

// Redo replays delta c in vol and moves the cursor forward. If the delta cannot be
// applied the cursor is unchanged.
func (m *Manager) Redo(vol delta.Writer) (d *delta.Delta, err error) {
	defer func() { m.metrics.operation("redo", err) }()

	if m.cursor == len(m.deltas) {
		return nil, ErrNothingToRedo.New("history depth %d", len(m.deltas))
	}
	d = m.deltas[m.cursor]
	if err = m.codec.Apply(vol, d, delta.Forward); err != nil {
		return nil, err
	}
	m.cursor++
	return d, nil
}

// Clear empties the history
func (m *Manager) Clear() {
	clear(m.deltas)
	m.deltas = m.deltas[:0]
	m.cursor = 0
	m.bytes = 0
	m.metrics.size(0, 0)
}

// CanUndo reports whether Undo has a delta to revert
func (m *Manager) CanUndo() bool { return m.cursor > 0 }

// CanRedo reports whether Redo has a delta to replay
func (m *Manager) CanRedo() bool { return m.cursor < len(m.deltas) }

// UndoDepth is the number of deltas Undo can still revert
func (m *Manager) UndoDepth() int { return m.cursor }

// RedoDepth is the number of deltas Redo can still replay
func (m *Manager) RedoDepth() int { return len(m.deltas) - m.cursor }

// Len is the number of retained deltas
func (m *Manager) Len() int { return len(m.deltas) }

// Bytes is the accounted size of the retained deltas
func (m *Manager) Bytes() int64 { return m.bytes }

// Entries lists the history oldest first
func (m *Manager) Entries() []Entry {
	out := make([]Entry, len(m.deltas))
	for i, d := range m.deltas {
		out[i] = Entry{
			Description: d.Description(),
			Voxels:      d.VoxelCount(),
			Bytes:       d.Size(),
			Applied:     i < m.cursor,
		}
	}
	return out
}
