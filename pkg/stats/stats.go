// Package stats computes per-label segmentation statistics: voxel count,
// physical volume, and the mean and standard deviation of the grey image
// inside each label.
package stats

import (
	"context"
	"sort"

	"github.com/zeebo/errs"
	"gonum.org/v1/gonum/stat"

	"segedit/internal/models"
	"segedit/pkg/intensity"
	"segedit/pkg/labelvolume"
)

// Error is the class for statistics errors
var Error = errs.Class("stats")

const defaultProgressEvery = 1 << 20

// Options configures Compute
type Options struct {
	Mapping intensity.Mapping
	Spacing models.Spacing

	Progress      models.ProgressCallback
	ProgressEvery int
}

// Row holds the statistics of one label
type Row struct {
	Label     models.Label
	Count     int
	VolumeMM3 float64
	Mean      float64
	StdDev    float64
}

// Table maps each present label to its row
type Table map[models.Label]Row

// Sorted returns the rows ordered by label
func (t Table) Sorted() []Row {
	rows := make([]Row, 0, len(t))
	for _, r := range t {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })
	return rows
}

// Compute scans seg once. grey may be nil, in which case means and deviations
// are zero; otherwise it must have one value per voxel. Intensities are
// accumulated as per-label histograms of the stored values, so memory depends on
// the number of distinct grey values rather than on the volume size.
func Compute(ctx context.Context, seg *labelvolume.Volume, grey []int16, opts Options) (Table, error) {
	if grey != nil && len(grey) != seg.Len() {
		return nil, Error.New("grey image has %d voxels, segmentation has %d", len(grey), seg.Len())
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = defaultProgressEvery
	}
	spacing := opts.Spacing
	if spacing == (models.Spacing{}) {
		spacing = models.UnitSpacing
	}

	counts := make(map[models.Label]int)
	hists := make(map[models.Label]map[int16]float64)
	data := seg.Data()
	for i, l := range data {
		if i > 0 && i%every == 0 {
			if opts.Progress != nil {
				opts.Progress(i, len(data), "Computing statistics")
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		counts[l]++
		if grey == nil {
			continue
		}
		h := hists[l]
		if h == nil {
			h = make(map[int16]float64)
			hists[l] = h
		}
		h[grey[i]]++
	}
	if opts.Progress != nil {
		opts.Progress(len(data), len(data), "Computing statistics")
	}

	voxel := spacing.VoxelVolume()
	table := make(Table, len(counts))
	for l, n := range counts {
		row := Row{Label: l, Count: n, VolumeMM3: float64(n) * voxel}
		if h := hists[l]; h != nil {
			row.Mean, row.StdDev = weightedMeanStdDev(h, opts.Mapping)
		}
		table[l] = row
	}
	return table, nil
}

func weightedMeanStdDev(h map[int16]float64, m intensity.Mapping) (mean, std float64) {
	x := make([]float64, 0, len(h))
	w := make([]float64, 0, len(h))
	var total float64
	for v, n := range h {
		x = append(x, m.ToNative(float64(v)))
		w = append(w, n)
		total += n
	}
	if total < 2 {
		return stat.Mean(x, w), 0
	}
	return stat.MeanStdDev(x, w)
}
