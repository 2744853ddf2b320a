package layout

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/youruser/collageapp/internal/errors"
)

var canvases = []struct{ w, h float64 }{
	{2160, 2160},
	{1, 1},
	{1080, 1920},
	{333, 77},
	{0.5, 3},
}

func TestCounts(t *testing.T) {
	want := []int{2, 3, 4, 5, 6, 7, 8, 9}
	if diff := cmp.Diff(want, Counts()); diff != "" {
		t.Errorf("Counts() mismatch (-want +got):\n%s", diff)
	}
	if got := len(Templates()); got != len(want) {
		t.Errorf("Templates() returned %d templates, want %d", got, len(want))
	}
}

func TestLayoutsForUnknownCount(t *testing.T) {
	for _, n := range []int{-1, 0, 1, 10, 100} {
		if _, ok := LayoutsFor(n); ok {
			t.Errorf("LayoutsFor(%d) should have no template", n)
		}
		_, err := Lookup(n)
		if !errors.Is(err, errors.ErrCodeNoTemplate) {
			t.Errorf("Lookup(%d) error = %v, want NO_TEMPLATE_FOR_COUNT", n, err)
		}
	}
}

func TestLayoutSlotsWithinCanvas(t *testing.T) {
	for _, tmpl := range Templates() {
		for _, c := range canvases {
			rects := tmpl.Layout(c.w, c.h)
			if len(rects) != tmpl.Count {
				t.Fatalf("count %d on %gx%g: got %d rects", tmpl.Count, c.w, c.h, len(rects))
			}
			for i, r := range rects {
				if r.Width() <= 0 || r.Height() <= 0 {
					t.Errorf("count %d slot %d: non-positive size %v", tmpl.Count, i, r)
				}
				if !r.Within(c.w, c.h) {
					t.Errorf("count %d slot %d: %v outside %gx%g", tmpl.Count, i, r, c.w, c.h)
				}
			}
		}
	}
}

func TestLayoutsPartitionCanvas(t *testing.T) {
	for _, tmpl := range Templates() {
		for _, c := range canvases {
			rects := tmpl.Layout(c.w, c.h)

			var sum float64
			for i, r := range rects {
				sum += r.Area()
				for j := i + 1; j < len(rects); j++ {
					if overlap := r.Intersect(rects[j]).Area(); overlap > 0 {
						t.Errorf("count %d: slots %d and %d overlap by %g", tmpl.Count, i, j, overlap)
					}
				}
			}
			want := c.w * c.h
			if math.Abs(sum-want) > want*1e-12 {
				t.Errorf("count %d on %gx%g: area sum %g, want %g", tmpl.Count, c.w, c.h, sum, want)
			}
		}
	}
}

func TestLayoutIsDeterministic(t *testing.T) {
	for _, tmpl := range Templates() {
		a := tmpl.Layout(2160, 2160)
		b := tmpl.Layout(2160, 2160)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("count %d not deterministic:\n%s", tmpl.Count, diff)
		}
	}
}

func TestKnownLayouts(t *testing.T) {
	tests := []struct {
		count int
		want  []Rect
	}{
		{2, []Rect{R(0, 0, 1080, 2160), R(1080, 0, 2160, 2160)}},
		{3, []Rect{R(0, 0, 1080, 2160), R(1080, 0, 2160, 1080), R(1080, 1080, 2160, 2160)}},
		{4, []Rect{
			R(0, 0, 1080, 1080), R(1080, 0, 2160, 1080),
			R(0, 1080, 1080, 2160), R(1080, 1080, 2160, 2160),
		}},
		{5, []Rect{
			R(0, 0, 1080, 720), R(1080, 0, 2160, 720),
			R(0, 720, 720, 2160), R(720, 720, 1440, 2160), R(1440, 720, 2160, 2160),
		}},
	}

	for _, tt := range tests {
		tmpl, ok := LayoutsFor(tt.count)
		if !ok {
			t.Fatalf("LayoutsFor(%d) missing", tt.count)
		}
		if diff := cmp.Diff(tt.want, tmpl.Layout(2160, 2160)); diff != "" {
			t.Errorf("count %d mismatch (-want +got):\n%s", tt.count, diff)
		}
	}
}

func TestRectInset(t *testing.T) {
	tests := []struct {
		name   string
		r      Rect
		margin float64
		want   Rect
		ok     bool
	}{
		{"regular", R(0, 0, 100, 50), 16, R(16, 16, 84, 34), true},
		{"exactly half height", R(0, 0, 100, 32), 16, R(0, 0, 0, 0), false},
		{"too narrow", R(10, 10, 30, 200), 16, R(10, 10, 10, 10), false},
		{"zero margin", R(1, 2, 3, 4), 0, R(1, 2, 3, 4), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.r.Inset(tt.margin)
			if ok != tt.ok {
				t.Fatalf("Inset ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Inset = %v, want %v", got, tt.want)
			}
			if !ok && !got.Empty() {
				t.Errorf("degenerate inset should be empty, got %v", got)
			}
		})
	}
}

func TestRectPixelsSharedEdges(t *testing.T) {
	tmpl, _ := LayoutsFor(9)
	rects := tmpl.Layout(1000, 1000)
	for i, a := range rects {
		for j := i + 1; j < len(rects); j++ {
			if ov := a.Pixels().Intersect(rects[j].Pixels()); !ov.Empty() {
				t.Errorf("pixel rects %d and %d overlap: %v", i, j, ov)
			}
		}
	}
}

func TestZeroTemplateHasNoSlots(t *testing.T) {
	var tmpl Template
	if got := tmpl.Layout(2160, 2160); got != nil {
		t.Errorf("zero Template.Layout() = %v, want nil", got)
	}
	missing, _ := LayoutsFor(10)
	if got := missing.Layout(100, 100); got != nil {
		t.Errorf("unmatched Template.Layout() = %v, want nil", got)
	}
}
