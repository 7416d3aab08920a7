package segmentation

import (
	"context"
	"fmt"
	"image"

	"gonum.org/v1/gonum/spatial/r3"

	"segedit/internal/models"
	"segedit/pkg/delta"
	"segedit/pkg/labelvolume"
)

// bulkEdit is one implicit transaction over many voxels. Each voxel must be
// visited at most once.
type bulkEdit struct {
	e        *Editor
	ctx      context.Context
	op       string
	message  string
	settings DrawingSettings

	changes []delta.Change
	visited int
	next    int
	total   int
}

// bulk starts a bulk edit. The caller holds e.mu.
func (e *Editor) bulk(ctx context.Context, op, message string, settings DrawingSettings, total int) (*bulkEdit, error) {
	if e.tx != nil {
		return nil, ErrTransactionAlreadyOpen.New("%s during %q", op, e.tx.description)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &bulkEdit{
		e:        e,
		ctx:      ctx,
		op:       op,
		message:  message,
		settings: settings,
		next:     e.progressEvery,
		total:    total,
	}, nil
}

// tick accounts for n processed voxels, reporting progress and polling the
// context every progressEvery voxels
func (b *bulkEdit) tick(n int) error {
	b.visited += n
	if b.visited < b.next {
		return nil
	}
	b.next = b.visited + b.e.progressEvery
	if b.e.progress != nil {
		b.e.progress(b.visited, b.total, b.message)
	}
	return b.ctx.Err()
}

// visit resolves voxel idx through DrawOverLabel and writes the result
func (b *bulkEdit) visit(idx int) error {
	if err := b.tick(1); err != nil {
		return err
	}
	before := b.e.vol.At(idx)
	after := DrawOverLabel(b.settings, before)
	if after != before {
		b.changes = append(b.changes, delta.Change{Index: idx, Before: before, After: after})
		b.e.vol.SetAt(idx, after)
	}
	return nil
}

// finish commits the edit, or rolls every write back when err is set
func (b *bulkEdit) finish(description string, err error) (int, error) {
	if err != nil {
		b.rollback()
		return 0, err
	}
	if b.e.progress != nil {
		b.e.progress(b.total, b.total, b.message)
	}
	if len(b.changes) == 0 {
		return 0, nil
	}
	d, err := b.e.history.CommitChanges(description, b.changes)
	if err != nil {
		b.rollback()
		return 0, err
	}
	b.e.committed(b.op, description, len(b.changes), d)
	return len(b.changes), nil
}

func (b *bulkEdit) rollback() {
	for i := len(b.changes) - 1; i >= 0; i-- {
		b.e.vol.SetAt(b.changes[i].Index, b.changes[i].Before)
	}
	b.changes = nil
}

// ReplaceLabel relabels every voxel holding from to to as one undo step and
// returns the number of voxels changed.
func (e *Editor) ReplaceLabel(ctx context.Context, from, to models.Label) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := DrawingSettings{DrawingLabel: to, DrawOverLabel: from, Mode: PaintOverLabel}
	b, err := e.bulk(ctx, "replace", "Replacing label", s, e.vol.Len())
	if err != nil {
		return 0, err
	}
	if from == to {
		return 0, nil
	}
	for i := 0; i < e.vol.Len() && err == nil; i++ {
		err = b.visit(i)
	}
	return b.finish(replaceDescription(from, to), err)
}

// Clear relabels every voxel to background as one undo step
func (e *Editor) Clear(ctx context.Context, description string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := DrawingSettings{DrawingLabel: models.Background, Mode: PaintOverAll}
	b, err := e.bulk(ctx, "clear", "Clearing segmentation", s, e.vol.Len())
	if err != nil {
		return 0, err
	}
	for i := 0; i < e.vol.Len() && err == nil; i++ {
		err = b.visit(i)
	}
	return b.finish(description, err)
}

// RelabelWithCutPlane paints, with the current drawing settings, every voxel p
// (in index coordinates) with dot(normal, p) - intercept >= 0.
func (e *Editor) RelabelWithCutPlane(ctx context.Context, normal r3.Vec, intercept float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.relabelWithCutPlane(ctx, normal, intercept, !e.transform.IsOblique())
}

func (e *Editor) relabelWithCutPlane(ctx context.Context, normal r3.Vec, intercept float64, allowFast bool) (int, error) {
	if r3.Norm(normal) == 0 {
		return 0, Error.New("cut plane normal is zero")
	}
	b, err := e.bulk(ctx, "cutplane", "Relabeling with cut plane", e.settings, e.vol.Len())
	if err != nil {
		return 0, err
	}

	size := e.vol.Size()
	n := [3]float64{normal.X, normal.Y, normal.Z}
	axis, aligned := alignedAxis(n)

	if allowFast && aligned {
		// whole planes perpendicular to the normal are on one side
		plane := size.Len() / size[axis]
		for v := 0; v < size[axis] && err == nil; v++ {
			if n[axis]*float64(v)-intercept < 0 {
				err = b.tick(plane)
				continue
			}
			err = forPlane(size, axis, v, b.visit)
		}
	} else {
		for i := 0; i < size.Len() && err == nil; i++ {
			c := size.Coord(i)
			p := r3.Vec{X: float64(c.X), Y: float64(c.Y), Z: float64(c.Z)}
			if r3.Dot(normal, p)-intercept < 0 {
				err = b.tick(1)
				continue
			}
			err = b.visit(i)
		}
	}
	return b.finish("Cut plane relabel", err)
}

// alignedAxis returns the only non-zero component of n
func alignedAxis(n [3]float64) (int, bool) {
	axis, count := 0, 0
	for a, v := range n {
		if v != 0 {
			axis = a
			count++
		}
	}
	return axis, count == 1
}

// forPlane calls fn for the linear index of every voxel with coordinate v along axis
func forPlane(size models.Size, axis, v int, fn func(idx int) error) error {
	var c models.Coord
	c = c.WithAxis(axis, v)
	u, w := (axis+1)%3, (axis+2)%3
	for j := 0; j < size[w]; j++ {
		for i := 0; i < size[u]; i++ {
			if err := fn(size.Index(c.WithAxis(u, i).WithAxis(w, j))); err != nil {
				return err
			}
		}
	}
	return nil
}

// SliceMask is a binary drawing in display-slice coordinates
type SliceMask interface {
	Bounds() image.Rectangle
	At(x, y int) bool
}

// ApplySliceDrawing paints the set pixels of mask (the unset ones when
// InvertDrawing is on) on the given slice of display window w.
func (e *Editor) ApplySliceDrawing(ctx context.Context, mask SliceMask, w, slice int, description string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	size := e.vol.Size()
	ds, err := e.transform.DisplaySize(w, size)
	if err != nil {
		return 0, err
	}
	r := mask.Bounds()
	if r.Dx() != ds[0] || r.Dy() != ds[1] {
		return 0, Error.New("drawing is %dx%d, window %d shows %dx%d", r.Dx(), r.Dy(), w, ds[0], ds[1])
	}
	if slice < 0 || slice >= ds[2] {
		return 0, labelvolume.ErrOutOfRange.New("slice %d of window %d (%d slices)", slice, w, ds[2])
	}

	b, err := e.bulk(ctx, "slice", "Applying slice drawing", e.settings, ds[0]*ds[1])
	if err != nil {
		return 0, err
	}
	for y := 0; y < ds[1] && err == nil; y++ {
		for x := 0; x < ds[0] && err == nil; x++ {
			if mask.At(r.Min.X+x, r.Min.Y+y) == e.settings.InvertDrawing {
				err = b.tick(1)
				continue
			}
			var c models.Coord
			if c, err = e.transform.DisplayToImage(w, models.Coord{X: x, Y: y, Z: slice}, size); err == nil {
				err = b.visit(size.Index(c))
			}
		}
	}
	return b.finish(description, err)
}

// MergeRegion draws the non-background labels of src into the volume at offset,
// each under the current coverage policy, as one undo step.
func (e *Editor) MergeRegion(ctx context.Context, src *labelvolume.Volume, offset models.Coord, description string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	size, ss := e.vol.Size(), src.Size()
	last := offset.Add(models.Coord{X: ss[0] - 1, Y: ss[1] - 1, Z: ss[2] - 1})
	if !size.Contains(offset) || !size.Contains(last) {
		return 0, labelvolume.ErrOutOfRange.New("region %v at %v outside %v", ss, offset, size)
	}

	b, err := e.bulk(ctx, "merge", "Merging region", e.settings, src.Len())
	if err != nil {
		return 0, err
	}
	for i := 0; i < src.Len() && err == nil; i++ {
		l := src.At(i)
		if l == models.Background {
			err = b.tick(1)
			continue
		}
		b.settings.DrawingLabel = l
		err = b.visit(size.Index(ss.Coord(i).Add(offset)))
	}
	return b.finish(description, err)
}

func replaceDescription(from, to models.Label) string {
	return fmt.Sprintf("Replace label %d with %d", from, to)
}
