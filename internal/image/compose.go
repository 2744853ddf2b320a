package imagepkg

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/youruser/collageapp/internal/errors"
	"github.com/youruser/collageapp/internal/layout"
)

const (
	// DefaultCanvasSize is the edge length of the default square collage.
	DefaultCanvasSize = 2160
	// DefaultMaxEdge caps a canvas dimension; 8192² NRGBA is 256 MiB.
	DefaultMaxEdge = 8192
	// DefaultMargin is the gutter each slot is inset by before painting.
	DefaultMargin = 16
)

// CoverFit returns the uniform scale that makes a srcW x srcH image cover a
// dstW x dstH rectangle, and the offset that centres the scaled image in it.
// At least one axis matches exactly; the other overflows.
func CoverFit(srcW, srcH, dstW, dstH float64) (scale, dx, dy float64) {
	if srcW*dstH > dstW*srcH {
		scale = dstH / srcH
	} else {
		scale = dstW / srcW
	}
	dx = (dstW - srcW*scale) / 2
	dy = (dstH - srcH*scale) / 2
	return scale, dx, dy
}

// Interpolator resolves a configured resampling name. Unknown names are an
// error; the empty name selects Catmull-Rom.
func Interpolator(name string) (draw.Interpolator, error) {
	switch strings.ToLower(name) {
	case "", "catmullrom", "catmull-rom":
		return draw.CatmullRom, nil
	case "bilinear":
		return draw.BiLinear, nil
	case "approx-bilinear":
		return draw.ApproxBiLinear, nil
	case "nearest":
		return draw.NearestNeighbor, nil
	}
	return nil, fmt.Errorf("unknown interpolation %q", name)
}

// Compositor paints decoded images into their slots on a shared canvas.
type Compositor struct {
	Margin       float64
	Interpolator draw.Interpolator
	Background   color.Color
}

// NewCompositor returns a compositor with the default margin, Catmull-Rom
// resampling and a white background.
func NewCompositor() *Compositor {
	return &Compositor{
		Margin:       DefaultMargin,
		Interpolator: draw.CatmullRom,
		Background:   color.White,
	}
}

// Compose renders images[i] into slots[i] for every slot and returns a
// width x height raster. Each image is cover-fitted and centred inside its
// slot after insetting by the margin, and painted only within that inset
// rect. Slots whose inset is degenerate are left as background.
//
// Every slot needs an image; a short or nil entry is a precondition failure.
func (c *Compositor) Compose(images []image.Image, slots []layout.Rect, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "canvas size %dx%d must be positive", width, height)
	}
	if len(images) < len(slots) {
		return nil, errors.New(errors.ErrCodeCompositionAborted,
			"%d slots but only %d decoded images", len(slots), len(images))
	}
	for i := range slots {
		if images[i] == nil || images[i].Bounds().Empty() {
			return nil, errors.New(errors.ErrCodeCompositionAborted, "slot %d has no decoded image", i)
		}
	}

	bg := c.Background
	if bg == nil {
		bg = color.White
	}
	interp := c.Interpolator
	if interp == nil {
		interp = draw.CatmullRom
	}

	canvas := imaging.New(width, height, bg)
	for i, slot := range slots {
		dest, ok := slot.Inset(c.Margin)
		if !ok {
			continue
		}
		clip := dest.Pixels().Intersect(canvas.Bounds())
		if clip.Empty() {
			continue
		}
		c.paint(canvas.SubImage(clip).(*image.NRGBA), dest, images[i], interp)
	}
	return canvas, nil
}

// paint draws src cover-fitted into dest. dst is already bounded to the
// slot, so the transform cannot write outside it.
func (c *Compositor) paint(dst *image.NRGBA, dest layout.Rect, src image.Image, interp draw.Interpolator) {
	sb := src.Bounds()
	scale, dx, dy := CoverFit(float64(sb.Dx()), float64(sb.Dy()), dest.Width(), dest.Height())

	tx := dest.Left + dx - scale*float64(sb.Min.X)
	ty := dest.Top + dy - scale*float64(sb.Min.Y)
	s2d := f64.Aff3{
		scale, 0, tx,
		0, scale, ty,
	}
	interp.Transform(dst, s2d, src, sb, draw.Over, nil)
}
