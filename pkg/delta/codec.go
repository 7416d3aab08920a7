package delta

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"segedit/internal/models"
)

var magic = []byte("SGD1")

// Codec compresses and applies deltas. It is safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec creates a codec using the named zstd level: fastest, default, better or best.
// An empty level means default.
func NewCodec(level string) (*Codec, error) {
	if level == "" {
		level = "default"
	}
	ok, lvl := zstd.EncoderLevelFromString(level)
	if !ok {
		return nil, Error.New("unknown compression level %q", level)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		_ = enc.Close()
		return nil, Error.Wrap(err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Close releases the encoder and decoder
func (c *Codec) Close() error {
	c.dec.Close()
	return Error.Wrap(c.enc.Close())
}

// Encode diffs the recorded original labels against the current contents of the
// volume. Voxels whose current value equals the original are dropped. It returns
// nil when nothing changed.
func (c *Codec) Encode(description string, original map[int]models.Label, current Reader) (*Delta, error) {
	changes := make([]Change, 0, len(original))
	for idx, before := range original {
		if idx < 0 || idx >= current.Len() {
			return nil, Error.New("index %d outside volume of %d voxels", idx, current.Len())
		}
		if after := current.At(idx); after != before {
			changes = append(changes, Change{Index: idx, Before: before, After: after})
		}
	}
	return c.encode(description, changes)
}

// EncodeChanges builds a delta from an explicit change list. Indices must be unique.
// Changes with Before == After are dropped; nil is returned when none remain.
func (c *Codec) EncodeChanges(description string, changes []Change) (*Delta, error) {
	filtered := make([]Change, 0, len(changes))
	for _, ch := range changes {
		if ch.Index < 0 {
			return nil, Error.New("negative index %d", ch.Index)
		}
		if ch.Before != ch.After {
			filtered = append(filtered, ch)
		}
	}
	return c.encode(description, filtered)
}

type run struct {
	start, length int
	before, after models.Label
}

func (c *Codec) encode(description string, changes []Change) (*Delta, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Index < changes[j].Index })

	runs := make([]run, 0, 16)
	for i, ch := range changes {
		if i > 0 && changes[i-1].Index == ch.Index {
			return nil, Error.New("duplicate index %d", ch.Index)
		}
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.start+last.length == ch.Index && last.before == ch.Before && last.after == ch.After {
				last.length++
				continue
			}
		}
		runs = append(runs, run{start: ch.Index, length: 1, before: ch.Before, after: ch.After})
	}

	raw := make([]byte, 0, len(magic)+2*binary.MaxVarintLen64+len(runs)*8)
	raw = append(raw, magic...)
	raw = binary.AppendUvarint(raw, uint64(len(changes)))
	raw = binary.AppendUvarint(raw, uint64(len(runs)))
	end := 0
	for _, r := range runs {
		raw = binary.AppendUvarint(raw, uint64(r.start-end))
		raw = binary.AppendUvarint(raw, uint64(r.length))
		raw = binary.AppendUvarint(raw, uint64(r.before))
		raw = binary.AppendUvarint(raw, uint64(r.after))
		end = r.start + r.length
	}

	return &Delta{
		id:          uuid.New(),
		description: description,
		voxels:      len(changes),
		runs:        len(runs),
		rawSize:     len(raw),
		payload:     c.enc.EncodeAll(raw, nil),
		createdAt:   time.Now(),
	}, nil
}

func (c *Codec) decode(d *Delta) ([]run, error) {
	if d == nil {
		return nil, Error.New("nil delta")
	}
	raw, err := c.dec.DecodeAll(d.payload, make([]byte, 0, d.rawSize))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !bytes.HasPrefix(raw, magic) {
		return nil, Error.New("bad magic")
	}
	buf := bytes.NewReader(raw[len(magic):])

	next := func(what string) (uint64, error) {
		v, err := binary.ReadUvarint(buf)
		if err != nil {
			return 0, Error.New("reading %s: %v", what, err)
		}
		return v, nil
	}

	voxels, err := next("voxel count")
	if err != nil {
		return nil, err
	}
	count, err := next("run count")
	if err != nil {
		return nil, err
	}
	if count > voxels || int(voxels) != d.voxels {
		return nil, Error.New("header mismatch: %d runs, %d voxels, expected %d voxels", count, voxels, d.voxels)
	}

	runs := make([]run, 0, count)
	var end, total uint64
	for i := uint64(0); i < count; i++ {
		var fields [4]uint64
		for f, name := range []string{"gap", "length", "before", "after"} {
			if fields[f], err = next(name); err != nil {
				return nil, err
			}
		}
		gap, length := fields[0], fields[1]
		if length == 0 || fields[2] > math.MaxUint16 || fields[3] > math.MaxUint16 {
			return nil, Error.New("invalid run %d", i)
		}
		start := end + gap
		if start < end || start+length < start || start+length > math.MaxInt {
			return nil, Error.New("run %d overflows", i)
		}
		runs = append(runs, run{
			start:  int(start),
			length: int(length),
			before: models.Label(fields[2]),
			after:  models.Label(fields[3]),
		})
		end = start + length
		total += length
	}
	if total != voxels {
		return nil, Error.New("runs cover %d voxels, header says %d", total, voxels)
	}
	return runs, nil
}

// Changes expands a delta into its per-voxel change list, ordered by index
func (c *Codec) Changes(d *Delta) ([]Change, error) {
	runs, err := c.decode(d)
	if err != nil {
		return nil, err
	}
	out := make([]Change, 0, d.voxels)
	for _, r := range runs {
		for i := 0; i < r.length; i++ {
			out = append(out, Change{Index: r.start + i, Before: r.before, After: r.after})
		}
	}
	return out, nil
}

// Apply writes the delta into vol. Forward writes the after labels, Inverse the
// before labels. Every voxel must currently hold the opposite side of its change;
// otherwise ErrMismatch is returned and vol is left untouched.
func (c *Codec) Apply(vol Writer, d *Delta, dir Direction) error {
	runs, err := c.decode(d)
	if err != nil {
		return err
	}

	n := vol.Len()
	for _, r := range runs {
		if r.start+r.length > n {
			return ErrMismatch.New("run [%d,%d) outside volume of %d voxels", r.start, r.start+r.length, n)
		}
		want := r.before
		if dir == Inverse {
			want = r.after
		}
		for i := r.start; i < r.start+r.length; i++ {
			if got := vol.At(i); got != want {
				return ErrMismatch.New("%s apply of %q: voxel %d holds %d, expected %d", dir, d.description, i, got, want)
			}
		}
	}

	for _, r := range runs {
		l := r.after
		if dir == Inverse {
			l = r.before
		}
		for i := r.start; i < r.start+r.length; i++ {
			vol.SetAt(i, l)
		}
	}
	return nil
}
