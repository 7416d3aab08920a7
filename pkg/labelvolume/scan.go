package labelvolume

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"segedit/internal/models"
)

// CountVoxelsWithLabel counts voxels holding label. The volume is split into Z slabs
// that are scanned by up to workers goroutines. ctx is polled between slabs.
func (v *Volume) CountVoxelsWithLabel(ctx context.Context, label models.Label, workers int) (int, error) {
	counts := make([]int, v.size[2])
	err := v.scanSlabs(ctx, workers, func(z int, slab []models.Label) {
		n := 0
		for _, l := range slab {
			if l == label {
				n++
			}
		}
		counts[z] = n
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Histogram returns the number of voxels per label, background included
func (v *Volume) Histogram(ctx context.Context, workers int) (map[models.Label]int, error) {
	var mu sync.Mutex
	hist := make(map[models.Label]int)
	err := v.scanSlabs(ctx, workers, func(_ int, slab []models.Label) {
		local := make(map[models.Label]int)
		for _, l := range slab {
			local[l]++
		}
		mu.Lock()
		for l, n := range local {
			hist[l] += n
		}
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return hist, nil
}

// scanSlabs calls fn once per Z slab. fn must only touch state owned by its slab
// or guard shared state itself.
func (v *Volume) scanSlabs(ctx context.Context, workers int, fn func(z int, slab []models.Label)) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	plane := v.size[0] * v.size[1]

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for z := 0; z < v.size[2]; z++ {
		if gctx.Err() != nil {
			break
		}
		z := z
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(z, v.data[z*plane:(z+1)*plane])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
