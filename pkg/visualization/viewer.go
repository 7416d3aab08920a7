package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/zeebo/errs"

	"segedit/internal/models"
	"segedit/pkg/labelvolume"
	"segedit/pkg/orientation"
)

var (
	// Error is the class for slice extraction and export errors
	Error = errs.Class("visualization")

	// ErrOblique is returned when slices are requested from an oblique image
	ErrOblique = errs.Class("oblique image")
)

// Viewer renders the label slices shown in the display windows
type Viewer struct {
	// volume holds the segmentation labels
	volume *labelvolume.Volume

	// transform maps display windows to image axes
	transform *orientation.Transform
}

// NewViewer creates a viewer for the labels of vol as seen through xf
func NewViewer(vol *labelvolume.Volume, xf *orientation.Transform) *Viewer {
	return &Viewer{
		volume:    vol,
		transform: xf,
	}
}

// ExtractSlice extracts slice number position of display window w. Each pixel
// holds the label value. Oblique images have no axis-aligned display slices.
func (v *Viewer) ExtractSlice(w, position int) (*image.Gray16, error) {
	if v.transform.IsOblique() {
		return nil, ErrOblique.New("slice export of window %d", w)
	}

	size := v.volume.Size()
	ds, err := v.transform.DisplaySize(w, size)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= ds[2] {
		return nil, Error.New("position %d outside window %d with %d slices", position, w, ds[2])
	}

	img := image.NewGray16(image.Rect(0, 0, ds[0], ds[1]))
	for y := 0; y < ds[1]; y++ {
		for x := 0; x < ds[0]; x++ {
			c, err := v.transform.DisplayToImage(w, models.Coord{X: x, Y: y, Z: position}, size)
			if err != nil {
				return nil, err
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v.volume.At(size.Index(c)))})
		}
	}
	return img, nil
}

// ExtractLabelSlice is ExtractSlice without a long-lived viewer
func ExtractLabelSlice(vol *labelvolume.Volume, xf *orientation.Transform, w, position int) (*image.Gray16, error) {
	return NewViewer(vol, xf).ExtractSlice(w, position)
}

// SaveSlice saves an extracted slice as a 16-bit PNG. The encoding is lossless
// so label values survive.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return Error.Wrap(err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(file.Close())
}

// SaveSliceSequence extracts and saves every slice of window w into outputDir
// and returns the number of files written.
func (v *Viewer) SaveSliceSequence(w int, outputDir string) (int, error) {
	ds, err := v.transform.DisplaySize(w, v.volume.Size())
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, Error.Wrap(err)
	}

	for pos := 0; pos < ds[2]; pos++ {
		img, err := v.ExtractSlice(w, pos)
		if err != nil {
			return pos, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_w%d_%03d.png", w, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}
	return ds[2], nil
}
