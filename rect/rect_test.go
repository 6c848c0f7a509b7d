package rect

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_AddRectEmpty(t *testing.T) {
	rects := []Rect{}
	_, ok := AddRect(&rects)
	assert.False(t, ok)
}

func Test_AddRectSplitsLongerAxis(t *testing.T) {
	rects := []Rect{{X: 0, Y: 0, W: 10, H: 4}}

	added, ok := AddRect(&rects)
	require.True(t, ok)

	assert.Equal(t, Rect{X: 5, Y: 0, W: 5, H: 4}, added)
	assert.Equal(t, Rect{X: 0, Y: 0, W: 5, H: 4}, rects[0])
}

func Test_AddRectTieGoesToWidth(t *testing.T) {
	rects := []Rect{{X: 0, Y: 0, W: 8, H: 8}}

	added, _ := AddRect(&rects)

	assert.Equal(t, Rect{X: 4, Y: 0, W: 4, H: 8}, added)
	assert.Empty(t, cmp.Diff([]Rect{{X: 0, Y: 0, W: 4, H: 8}, {X: 4, Y: 0, W: 4, H: 8}}, rects))
}

// Test_AddRectPartitionsExactly exercises spec.md §8.6: repeated AddRect
// calls against a single starting rectangle always produce pairwise
// disjoint pieces whose union is exactly the original rectangle.
func Test_AddRectPartitionsExactly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 200).Draw(t, "w")
		h := rapid.IntRange(1, 200).Draw(t, "h")
		k := rapid.IntRange(0, 50).Draw(t, "k")

		rects := []Rect{{X: 0, Y: 0, W: w, H: h}}
		for i := 0; i < k; i++ {
			if _, ok := AddRect(&rects); !ok {
				t.Fatalf("AddRect reported empty on a non-empty slice")
			}
		}

		assertDisjointAndCovering(t, rects, Rect{X: 0, Y: 0, W: w, H: h})
	})
}

func assertDisjointAndCovering(t *rapid.T, rects []Rect, bounds Rect) {
	area := 0
	for i, r := range rects {
		area += r.Area()
		for j, other := range rects {
			if i == j {
				continue
			}
			if overlaps(r, other) {
				t.Fatalf("rect %+v overlaps %+v", r, other)
			}
		}
	}
	if area != bounds.Area() {
		t.Fatalf("partition area %d != bounds area %d", area, bounds.Area())
	}
}

func overlaps(a, b Rect) bool {
	return a.X < b.X+b.W && b.X < a.X+a.W && a.Y < b.Y+b.H && b.Y < a.Y+a.H
}
