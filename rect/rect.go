// Package rect implements the rectangle partitioner from spec.md §4.3: given
// an ordered sequence of axis-aligned rectangles, AddRect finds the largest
// by area, bisects it along its longer axis, and appends the new piece.
//
// This mirrors original_source/memcom/__init__.py's module-level addRect
// function, which mutates a list[dict] in place and returns the new
// rectangle. Go keeps that same "mutate in place, return what was added"
// contract over a typed slice rather than inventing an object model the
// original never had (see SPEC_FULL.md's SUPPLEMENTED FEATURES section).
package rect

// Rect is an axis-aligned rectangle in pixel coordinates.
type Rect struct {
	X, Y, W, H int
}

// Area returns W*H.
func (r Rect) Area() int { return r.W * r.H }

// AddRect finds the largest-area rectangle in rects, bisects it along its
// longer axis (ties go to width, i.e. a square splits vertically) into
// floor(L/2) and L-floor(L/2), shrinks the original in place to the first
// half, appends the second half to rects, and returns it.
//
// Tie-break: the first maximum area encountered wins, matching the
// original's linear scan with a strict `<` comparison.
//
// AddRect reports ok=false (and leaves rects unmodified) only when rects is
// empty.
func AddRect(rects *[]Rect) (added Rect, ok bool) {
	rs := *rects

	best := -1
	bestArea := -1
	for i, r := range rs {
		if a := r.Area(); a > bestArea {
			bestArea = a
			best = i
		}
	}
	if best < 0 {
		return Rect{}, false
	}

	r := rs[best]
	var n Rect
	if r.W >= r.H {
		w1 := r.W / 2
		w2 := r.W - w1
		n = Rect{X: r.X + w1, Y: r.Y, W: w2, H: r.H}
		r.W = w1
	} else {
		h1 := r.H / 2
		h2 := r.H - h1
		n = Rect{X: r.X, Y: r.Y + h1, W: r.W, H: h2}
		r.H = h1
	}
	rs[best] = r
	rs = append(rs, n)

	*rects = rs
	return n, true
}
