package script

import (
	"context"
	"fmt"
	"io"

	"gonum.org/v1/gonum/spatial/r3"

	"segedit/internal/models"
	"segedit/pkg/app"
	"segedit/pkg/undo"
)

// Result is the outcome of one step
type Result struct {
	Step        int
	Op          string
	Description string
	Changed     int
	Count       int
	Err         string
}

// Report collects the step results of a run
type Report struct {
	Results []Result
	Changed int
}

// Failed returns the results whose step recorded an error
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != "" {
			out = append(out, res)
		}
	}
	return out
}

// Run loads the script's main image into a and executes the steps in order. A
// line per step is written to out when it is not nil. Undo and redo past the
// ends of the history are recorded in the report; any other failure stops the
// run and is returned with the report so far.
func Run(ctx context.Context, a *app.Application, s *Script, out io.Writer) (Report, error) {
	var report Report
	if err := s.Validate(); err != nil {
		return report, err
	}
	if err := a.LoadMainImage(models.Size(s.Size), s.Orientation); err != nil {
		return report, err
	}
	if s.Display != [3]string{} {
		if err := a.SetDisplayToAnatomyRAI(s.Display[0], s.Display[1], s.Display[2]); err != nil {
			return report, err
		}
	}

	for i := range s.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		st := &s.Steps[i]
		res := Result{Step: i, Op: st.Op, Description: st.Description}
		err := runStep(ctx, a, st, &res)
		switch {
		case undo.ErrNothingToUndo.Has(err), undo.ErrNothingToRedo.Has(err):
			res.Err = err.Error()
		case err != nil:
			res.Err = err.Error()
			report.Results = append(report.Results, res)
			writeResult(out, res)
			return report, Error.New("step %d (%s): %w", i, st.Op, err)
		}
		report.Changed += res.Changed
		report.Results = append(report.Results, res)
		writeResult(out, res)
	}
	return report, nil
}

func runStep(ctx context.Context, a *app.Application, st *Step, res *Result) (err error) {
	switch st.Op {
	case OpPaint, OpErase:
		return paint(a, st, res)

	case OpReplace:
		if res.Description == "" {
			res.Description = fmt.Sprintf("Replace label %d with %d", st.From, st.To)
		}
		res.Changed, err = a.ReplaceLabel(ctx, st.From, st.To)

	case OpCutPlane:
		if res.Description == "" {
			res.Description = "Cut plane relabel"
		}
		n := r3.Vec{X: st.Normal[0], Y: st.Normal[1], Z: st.Normal[2]}
		res.Changed, err = a.RelabelWithCutPlane(ctx, n, st.Intercept)

	case OpClear:
		if res.Description == "" {
			res.Description = "Clear segmentation"
		}
		res.Changed, err = a.ClearSegmentation(ctx)

	case OpUndo:
		res.Description, err = a.Undo()

	case OpRedo:
		res.Description, err = a.Redo()

	case OpCount:
		res.Count, err = a.CountVoxelsWithLabel(ctx, *st.Label)

	case OpCursor:
		err = a.SetCursorPosition(models.Coord{X: st.At[0], Y: st.At[1], Z: st.At[2]}, true)

	case OpSettings:
		settings, err := st.apply(a.DrawingSettings())
		if err != nil {
			return err
		}
		return a.SetDrawingSettings(settings)

	case OpSnap:
		origin := models.Coord{X: st.Origin[0], Y: st.Origin[1], Z: st.Origin[2]}
		err = a.InitializeSNAP(origin, models.Size(st.Extent))

	case OpMerge:
		if res.Description == "" {
			res.Description = "Update main image with SNAP"
		}
		res.Changed, err = a.UpdateIRISWithSNAP(ctx, res.Description)

	case OpRelease:
		a.ReleaseSNAP()

	default:
		err = Error.New("unknown op %q", st.Op)
	}
	return err
}

// paint checks every voxel against the active image before opening the
// transaction, so a bad coordinate never leaves it half applied.
func paint(a *app.Application, st *Step, res *Result) error {
	d, err := a.ActiveImage()
	if err != nil {
		return err
	}
	coords := st.coords()
	for _, c := range coords {
		if !d.Size().Contains(c) {
			return Error.New("voxel %v outside %v", c, d.Size())
		}
	}

	switch {
	case st.Op == OpErase:
		if res.Description == "" {
			res.Description = "Erase"
		}
		err = a.BeginSegmentationUpdateWithLabel(models.Background, res.Description)
	case st.Label != nil:
		if res.Description == "" {
			res.Description = fmt.Sprintf("Paint label %d", *st.Label)
		}
		err = a.BeginSegmentationUpdateWithLabel(*st.Label, res.Description)
	default:
		if res.Description == "" {
			res.Description = fmt.Sprintf("Paint label %d", a.DrawingSettings().DrawingLabel)
		}
		err = a.BeginSegmentationUpdate(res.Description)
	}
	if err != nil {
		return err
	}

	for _, c := range coords {
		if _, err := a.UpdateSegmentationVoxel(c); err != nil {
			_, _ = a.EndSegmentationUpdate()
			return err
		}
	}
	res.Changed, err = a.EndSegmentationUpdate()
	return err
}

func writeResult(out io.Writer, res Result) {
	if out == nil {
		return
	}
	line := fmt.Sprintf("%3d  %-9s %-32q changed=%d", res.Step, res.Op, res.Description, res.Changed)
	if res.Op == OpCount {
		line += fmt.Sprintf(" count=%d", res.Count)
	}
	if res.Err != "" {
		line += " error=" + res.Err
	}
	fmt.Fprintln(out, line)
}
