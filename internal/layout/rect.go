package layout

import (
	"fmt"
	"image"
	"math"
)

// Rect is an axis-aligned rectangle in canvas space.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// R is shorthand for a Rect from its four edges.
func R(left, top, right, bottom float64) Rect {
	return Rect{Left: left, Top: top, Right: right, Bottom: bottom}
}

func (r Rect) Width() float64  { return r.Right - r.Left }
func (r Rect) Height() float64 { return r.Bottom - r.Top }
func (r Rect) Area() float64   { return r.Width() * r.Height() }

// Empty reports whether r encloses no area.
func (r Rect) Empty() bool {
	return !(r.Right > r.Left) || !(r.Bottom > r.Top)
}

// Inset shrinks r by m on all four sides. The second result is false when
// 2*m is not smaller than the width or height; the returned rect is then
// empty and should not be painted.
func (r Rect) Inset(m float64) (Rect, bool) {
	if 2*m >= r.Width() || 2*m >= r.Height() {
		return Rect{Left: r.Left, Top: r.Top, Right: r.Left, Bottom: r.Top}, false
	}
	return Rect{Left: r.Left + m, Top: r.Top + m, Right: r.Right - m, Bottom: r.Bottom - m}, true
}

// Intersect returns the overlap of r and s, which may be empty.
func (r Rect) Intersect(s Rect) Rect {
	out := Rect{
		Left:   math.Max(r.Left, s.Left),
		Top:    math.Max(r.Top, s.Top),
		Right:  math.Min(r.Right, s.Right),
		Bottom: math.Min(r.Bottom, s.Bottom),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// Within reports whether r lies inside a width x height canvas.
func (r Rect) Within(width, height float64) bool {
	return r.Left >= 0 && r.Top >= 0 && r.Right <= width && r.Bottom <= height
}

// Pixels rounds r to the pixel grid. Edges shared by two rects round to the
// same column or row, so neighbouring slots never overlap after rounding.
func (r Rect) Pixels() image.Rectangle {
	return image.Rect(
		int(math.Round(r.Left)),
		int(math.Round(r.Top)),
		int(math.Round(r.Right)),
		int(math.Round(r.Bottom)),
	)
}

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g)-(%g,%g)", r.Left, r.Top, r.Right, r.Bottom)
}
