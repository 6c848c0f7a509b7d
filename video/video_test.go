package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/wheresjames/memcom-go/internal/shm"
)

func withScratchDir(t *testing.T) {
	t.Helper()
	prev := shm.Dir
	shm.Dir = t.TempDir()
	t.Cleanup(func() { shm.Dir = prev })
}

func Test_CreateRoundTripsHeader(t *testing.T) {
	withScratchDir(t)

	r, err := Create("vring", shm.ModeNew, Shape{Buffers: 16, Width: 320, Height: 240, Fps: 15}, true)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 16, r.Buffers())
	assert.Equal(t, 320, r.Width())
	assert.Equal(t, 240, r.Height())
	assert.Equal(t, 15, r.Fps())
}

// Test_DimensionRoundTrip mirrors spec.md §8, scenario 3: a second handle
// opened in existing mode reports exactly the dimensions the creator used,
// and metadata written through one handle round-trips through the other.
func Test_DimensionRoundTrip(t *testing.T) {
	withScratchDir(t)

	a, err := Create("vring2", shm.ModeNew, Shape{Buffers: 16, Width: 320, Height: 240, Fps: 15}, true)
	require.NoError(t, err)
	defer a.Close()

	b, err := Create("vring2", shm.ModeExisting, Shape{}, false)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, a.Buffers(), b.Buffers())
	assert.Equal(t, a.Width(), b.Width())
	assert.Equal(t, a.Height(), b.Height())
	assert.Equal(t, a.Fps(), b.Fps())

	for i := int64(0); i < 16; i++ {
		assert.Equal(t, i, a.GetIdx())
		a.SetFrameInfo(i, FrameInfo{Pts: i * 1000, Idx: i, Clk: i + 1, Rds: i + 2, Wts: i + 3})
		a.AddIdx(1)

		fi, ok := b.GetFrameInfo(i)
		require.True(t, ok)
		assert.Equal(t, i*1000, fi.Pts)
		assert.Equal(t, i, fi.Idx)
		assert.Equal(t, i+1, fi.Clk)
		assert.Equal(t, i+2, fi.Rds)
		assert.Equal(t, i+3, fi.Wts)
	}
}

// Test_CrossHandlePixelVisibility mirrors spec.md §8, scenario 4.
func Test_CrossHandlePixelVisibility(t *testing.T) {
	withScratchDir(t)

	a, err := Create("vring3", shm.ModeNew, Shape{Buffers: 4, Width: 8, Height: 8, Fps: 30}, true)
	require.NoError(t, err)
	defer a.Close()

	b, err := Create("vring3", shm.ModeExisting, Shape{}, false)
	require.NoError(t, err)
	defer b.Close()

	planeA := a.GetBuf(0)
	planeA.At(0, 0)[0] = 123

	planeB := b.GetBuf(0)
	assert.Equal(t, byte(123), planeB.At(0, 0)[0])
}

func Test_GetFrameInfoAbsentUntilWritten(t *testing.T) {
	withScratchDir(t)

	r, err := Create("vring4", shm.ModeNew, Shape{Buffers: 4, Width: 8, Height: 8, Fps: 30}, true)
	require.NoError(t, err)
	defer r.Close()

	_, ok := r.GetFrameInfo(0)
	assert.False(t, ok)

	r.SetFrameInfo(0, FrameInfo{Pts: 1, Idx: 2, Clk: 3, Rds: 4, Wts: 5})
	_, ok = r.GetFrameInfo(0)
	assert.True(t, ok)
}

// Test_IdxArithmeticLaws mirrors spec.md §8's universal invariants for
// calc_idx/calc_drift/add_idx.
func Test_IdxArithmeticLaws(t *testing.T) {
	withScratchDir(t)

	r, err := Create("vring5", shm.ModeNew, Shape{Buffers: 7, Width: 4, Height: 4, Fps: 10}, true)
	require.NoError(t, err)
	defer r.Close()

	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.Int64Range(-1000, 1000).Draw(rt, "k")

		before := r.GetIdx()
		assert.Equal(rt, before, r.CalcIdx(0))
		assert.Equal(rt, mod(before+k, 7), r.CalcIdx(k))

		got := r.AddIdx(k)
		assert.Equal(rt, mod(before+k, 7), got)
		assert.Equal(rt, got, r.GetIdx())
	})
}

func Test_CalcDriftLaws(t *testing.T) {
	withScratchDir(t)

	r, err := Create("vring6", shm.ModeNew, Shape{Buffers: 9, Width: 4, Height: 4, Fps: 10}, true)
	require.NoError(t, err)
	defer r.Close()

	rapid.Check(t, func(rt *rapid.T) {
		x := rapid.Int64Range(-100, 100).Draw(rt, "x")
		ref := rapid.Int64Range(-100, 100).Draw(rt, "ref")

		assert.Equal(rt, int64(0), r.CalcDrift(x, x))
		assert.Equal(rt, int64(-1), r.CalcDrift(mod(ref+1, 9), ref))
		assert.Equal(rt, -mod(x-ref, 9), r.CalcDrift(x, ref))
	})
}
