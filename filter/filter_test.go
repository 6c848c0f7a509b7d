package filter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheresjames/memcom-go/internal/shm"
	"github.com/wheresjames/memcom-go/video"
)

func withScratchDir(t *testing.T) {
	t.Helper()
	prev := shm.Dir
	shm.Dir = t.TempDir()
	t.Cleanup(func() { shm.Dir = prev })
}

type recordingCallbacks struct {
	BaseCallbacks
	video []video.FrameInfo
	errs  []string
}

func (c *recordingCallbacks) OnVideo(f *Filter, ring *video.Ring, fi video.FrameInfo, buf video.Plane) error {
	c.video = append(c.video, fi)
	return nil
}

func (c *recordingCallbacks) OnError(f *Filter, err error) {
	c.errs = append(c.errs, err.Error())
}

func Test_StepDeliversInWriterOrder(t *testing.T) {
	withScratchDir(t)

	ring, err := video.Create("fvring", shm.ModeNew, video.Shape{Buffers: 8, Width: 4, Height: 4, Fps: 30}, true)
	require.NoError(t, err)
	defer ring.Close()

	// Attach before writing: the read cursor starts at the writer's
	// current index, so only slots published after this are delivered.
	cb := &recordingCallbacks{}
	f := New(cb, time.Millisecond)
	f.AddVideoInput(ring, 0, 1)

	for i := int64(0); i < 3; i++ {
		ring.SetFrameInfo(i, video.FrameInfo{Idx: i})
		ring.AddIdx(1)
	}

	progressed, err := f.Step()
	require.NoError(t, err)
	assert.True(t, progressed)

	require.Len(t, cb.video, 3)
	for i, fi := range cb.video {
		assert.Equal(t, int64(i), fi.Idx)
	}
}

func Test_StepNoProgressWhenCaughtUp(t *testing.T) {
	withScratchDir(t)

	ring, err := video.Create("fvring2", shm.ModeNew, video.Shape{Buffers: 8, Width: 4, Height: 4, Fps: 30}, true)
	require.NoError(t, err)
	defer ring.Close()

	cb := &recordingCallbacks{}
	f := New(cb, time.Millisecond)
	f.AddVideoInput(ring, 0, 1)

	progressed, err := f.Step()
	require.NoError(t, err)
	assert.False(t, progressed)
	assert.Empty(t, cb.video)
}

// Test_WindowBreach mirrors spec.md §4.4's window-breach branch: a reader
// whose ptr has fallen more than winf slots behind the writer's bias
// target reports an error and skips ahead without consuming.
func Test_WindowBreach(t *testing.T) {
	withScratchDir(t)

	ring, err := video.Create("fvring3", shm.ModeNew, video.Shape{Buffers: 4, Width: 4, Height: 4, Fps: 30}, true)
	require.NoError(t, err)
	defer ring.Close()

	cb := &recordingCallbacks{}
	f := New(cb, time.Millisecond)
	f.AddVideoInput(ring, 0, 0.5) // winf = round(0.5*4) = 2

	for i := int64(0); i < 3; i++ {
		ring.SetFrameInfo(i, video.FrameInfo{Idx: i})
	}
	ring.AddIdx(3) // writer now 3 slots ahead of the reader's ptr=0

	moved, err := f.stepVideo(f.videoInputs[0])
	assert.False(t, moved)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "window breach"))
	assert.Equal(t, int64(1), f.videoInputs[0].ptr) // skipped ahead, did not consume
}

// Test_Overrun mirrors spec.md §4.4's overrun branch: a slot whose
// FrameInfo.Idx is not strictly greater than the last consumed idx is
// reported as an overrun rather than delivered.
func Test_Overrun(t *testing.T) {
	withScratchDir(t)

	ring, err := video.Create("fvring4", shm.ModeNew, video.Shape{Buffers: 4, Width: 4, Height: 4, Fps: 30}, true)
	require.NoError(t, err)
	defer ring.Close()

	cb := &recordingCallbacks{}
	f := New(cb, time.Millisecond)
	f.AddVideoInput(ring, 0, 1)

	in := f.videoInputs[0]
	in.last = 5 // simulate having already consumed a frame stamped Idx=5

	ring.SetFrameInfo(0, video.FrameInfo{Idx: 3}) // a stale/out-of-order write at the reader's slot
	ring.AddIdx(1)

	moved, err := f.stepVideo(in)
	assert.False(t, moved)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "overrun"))
}

func Test_RunLoopStopsOnCancel(t *testing.T) {
	withScratchDir(t)

	ring, err := video.Create("fvring5", shm.ModeNew, video.Shape{Buffers: 4, Width: 4, Height: 4, Fps: 30}, true)
	require.NoError(t, err)
	defer ring.Close()

	cb := &recordingCallbacks{}
	f := New(cb, time.Millisecond)
	f.AddVideoInput(ring, 0, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	f.RunLoop(ctx)
	// Returning at all (within the test timeout) demonstrates RunLoop
	// honors context cancellation instead of spinning forever.
}
