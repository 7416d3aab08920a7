// Package delta encodes the voxels changed by one segmentation edit into a compact,
// reversible record.
//
// Changed voxels are sorted by linear index and grouped into maximal runs of
// consecutive indices sharing the same (before, after) label pair. Paint strokes
// and whole-plane relabels therefore collapse into few runs. The run list is
// varint-encoded and then compressed with zstd.
package delta

import (
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"

	"segedit/internal/models"
)

var (
	// Error is the class for malformed or unusable deltas
	Error = errs.Class("delta")

	// ErrMismatch is returned when a delta does not match the volume it is applied to
	ErrMismatch = errs.Class("delta mismatch")
)

// Direction selects whether a delta is replayed (Forward) or reverted (Inverse)
type Direction int

const (
	Forward Direction = iota
	Inverse
)

func (d Direction) String() string {
	if d == Inverse {
		return "inverse"
	}
	return "forward"
}

// Change is a single voxel's label before and after an edit
type Change struct {
	Index  int
	Before models.Label
	After  models.Label
}

// Reader gives indexed access to labels
type Reader interface {
	Len() int
	At(i int) models.Label
}

// Writer is a Reader that can also be written
type Writer interface {
	Reader
	SetAt(i int, l models.Label)
}

// overhead approximates the fixed in-memory cost of a Delta beyond its payload
const overhead = 96

// Delta is an immutable compressed record of one committed edit
type Delta struct {
	id          uuid.UUID
	description string
	voxels      int
	runs        int
	rawSize     int
	payload     []byte
	createdAt   time.Time
}

// ID uniquely identifies the delta
func (d *Delta) ID() uuid.UUID { return d.id }

// Description is the human readable undo label
func (d *Delta) Description() string { return d.description }

// VoxelCount is the number of voxels the delta changes
func (d *Delta) VoxelCount() int { return d.voxels }

// RunCount is the number of runs in the encoding
func (d *Delta) RunCount() int { return d.runs }

// RawSize is the length of the encoding before compression
func (d *Delta) RawSize() int { return d.rawSize }

// Size is the number of bytes the delta accounts for in an undo budget
func (d *Delta) Size() int64 { return int64(len(d.payload)) + overhead }

// CreatedAt is when the delta was encoded
func (d *Delta) CreatedAt() time.Time { return d.createdAt }
