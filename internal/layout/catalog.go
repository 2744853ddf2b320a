// Package layout holds the collage template catalog.
//
// A template maps an image count to an ordered list of slots for a given
// canvas size. Layouts are pure functions of the canvas size built from
// halves, thirds and quarters; every layout partitions the canvas exactly.
// Slot i is always filled by source image i.
package layout

import (
	"slices"

	"github.com/youruser/collageapp/internal/errors"
)

// Func computes the slots of a template for a width x height canvas.
type Func func(width, height float64) []Rect

// Template binds a slot count to its layout.
type Template struct {
	Count  int
	layout Func
}

// Layout returns the slots for a width x height canvas, in slot order. The
// zero Template has no slots.
func (t Template) Layout(width, height float64) []Rect {
	if t.layout == nil {
		return nil
	}
	return t.layout(width, height)
}

var catalog = map[int]Func{
	2: twoColumns,
	3: halfAndStack,
	4: quadrants,
	5: twoOverThree,
	6: threeByTwo,
	7: threeTwoTwo,
	8: twoByFour,
	9: threeByThree,
}

// LayoutsFor looks up the template for exactly count images. There is no
// nearest-match fallback.
func LayoutsFor(count int) (Template, bool) {
	fn, ok := catalog[count]
	if !ok {
		return Template{}, false
	}
	return Template{Count: count, layout: fn}, true
}

// Lookup is LayoutsFor returning a NO_TEMPLATE_FOR_COUNT error on a miss.
func Lookup(count int) (Template, error) {
	t, ok := LayoutsFor(count)
	if !ok {
		counts := Counts()
		return Template{}, errors.New(errors.ErrCodeNoTemplate,
			"no template for %d images; supported counts are %d-%d", count, counts[0], counts[len(counts)-1])
	}
	return t, nil
}

// Counts returns the supported image counts in ascending order.
func Counts() []int {
	out := make([]int, 0, len(catalog))
	for n := range catalog {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Templates returns every template in ascending count order.
func Templates() []Template {
	counts := Counts()
	out := make([]Template, len(counts))
	for i, n := range counts {
		out[i] = Template{Count: n, layout: catalog[n]}
	}
	return out
}

func twoColumns(w, h float64) []Rect {
	x := w / 2
	return []Rect{R(0, 0, x, h), R(x, 0, w, h)}
}

func halfAndStack(w, h float64) []Rect {
	x, y := w/2, h/2
	return []Rect{R(0, 0, x, h), R(x, 0, w, y), R(x, y, w, h)}
}

func quadrants(w, h float64) []Rect {
	x, y := w/2, h/2
	return []Rect{
		R(0, 0, x, y), R(x, 0, w, y),
		R(0, y, x, h), R(x, y, w, h),
	}
}

func twoOverThree(w, h float64) []Rect {
	half, x1, x2 := w/2, w/3, 2*w/3
	y := h / 3
	return []Rect{
		R(0, 0, half, y), R(half, 0, w, y),
		R(0, y, x1, h), R(x1, y, x2, h), R(x2, y, w, h),
	}
}

func threeByTwo(w, h float64) []Rect {
	x1, x2 := w/3, 2*w/3
	y := h / 2
	return []Rect{
		R(0, 0, x1, y), R(x1, 0, x2, y), R(x2, 0, w, y),
		R(0, y, x1, h), R(x1, y, x2, h), R(x2, y, w, h),
	}
}

func threeTwoTwo(w, h float64) []Rect {
	x1, x2, half := w/3, 2*w/3, w/2
	y1, y2 := h/3, 2*h/3
	return []Rect{
		R(0, 0, x1, y1), R(x1, 0, x2, y1), R(x2, 0, w, y1),
		R(0, y1, half, y2), R(half, y1, w, y2),
		R(0, y2, half, h), R(half, y2, w, h),
	}
}

func twoByFour(w, h float64) []Rect {
	x := w / 2
	y1, y2, y3 := h/4, 2*h/4, 3*h/4
	return []Rect{
		R(0, 0, x, y1), R(x, 0, w, y1),
		R(0, y1, x, y2), R(x, y1, w, y2),
		R(0, y2, x, y3), R(x, y2, w, y3),
		R(0, y3, x, h), R(x, y3, w, h),
	}
}

func threeByThree(w, h float64) []Rect {
	x1, x2 := w/3, 2*w/3
	y1, y2 := h/3, 2*h/3
	return []Rect{
		R(0, 0, x1, y1), R(x1, 0, x2, y1), R(x2, 0, w, y1),
		R(0, y1, x1, y2), R(x1, y1, x2, y2), R(x2, y1, w, y2),
		R(0, y2, x1, h), R(x1, y2, x2, h), R(x2, y2, w, h),
	}
}
