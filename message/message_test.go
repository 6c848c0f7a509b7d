package message

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheresjames/memcom-go/internal/shm"
)

func withScratchDir(t *testing.T) {
	t.Helper()
	prev := shm.Dir
	shm.Dir = t.TempDir()
	t.Cleanup(func() { shm.Dir = prev })
}

func Test_CreateDefaultsCapacity(t *testing.T) {
	withScratchDir(t)

	r, err := Create("mring", shm.ModeNew, 0, true)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, defaultCapacity, r.Capacity())
}

func Test_SendRejectsEmpty(t *testing.T) {
	withScratchDir(t)

	r, err := Create("mring2", shm.ModeNew, 1024, true)
	require.NoError(t, err)
	defer r.Close()

	assert.Error(t, r.Send(nil))
}

func Test_SendRejectsOversized(t *testing.T) {
	withScratchDir(t)

	r, err := Create("mring3", shm.ModeNew, 1024, true)
	require.NoError(t, err)
	defer r.Close()

	assert.Error(t, r.Send(make([]byte, 1024)))
}

func Test_ReadWithNothingSentReturnsNotOk(t *testing.T) {
	withScratchDir(t)

	r, err := Create("mring4", shm.ModeNew, 1024, true)
	require.NoError(t, err)
	defer r.Close()

	msg, ok, err := r.Read()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "", msg)
}

// Test_EchoThroughput mirrors spec.md §8, scenario 1.
func Test_EchoThroughput(t *testing.T) {
	withScratchDir(t)

	r, err := Create("mring5", shm.ModeNew, 0, true)
	require.NoError(t, err)
	defer r.Close()

	const want = "This is a message"
	for i := 0; i < 10000; i++ {
		require.NoError(t, r.Send([]byte(want)))
		got, ok, err := r.Read()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

// Test_VariableLengthMessagesWrap mirrors spec.md §8, scenario 2: a small
// ring, a range of payload sizes, and at least one wraparound. Sizes start
// at 1, not 0: §4.2 explicitly requires Send to reject an empty message,
// so an all-dashes string of length 0 is not a valid input here.
func Test_VariableLengthMessagesWrap(t *testing.T) {
	withScratchDir(t)

	r, err := Create("mring6", shm.ModeNew, 2048, true)
	require.NoError(t, err)
	defer r.Close()

	wrapped := false
	prevWrite := r.write
	for sz := 1; sz < 100; sz++ {
		want := strings.Repeat("-", sz)
		for i := 0; i < 1000; i++ {
			require.NoError(t, r.Send([]byte(want)), "sz=%d i=%d", sz, i)
			if r.write < prevWrite {
				wrapped = true
			}
			prevWrite = r.write

			got, ok, err := r.Read()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got, "sz=%d i=%d", sz, i)
		}
	}
	assert.True(t, wrapped, "expected at least one wraparound over the run")
}

// Test_FIFOOrderAcrossWrap keeps a handful of messages outstanding at a
// time (well within the ring's capacity) across many wraps, confirming
// reads stay in send order throughout.
func Test_FIFOOrderAcrossWrap(t *testing.T) {
	withScratchDir(t)

	r, err := Create("mring7", shm.ModeNew, 256, true)
	require.NoError(t, err)
	defer r.Close()

	const batch = 4
	for b := 0; b < 200; b++ {
		var sent []string
		for i := 0; i < batch; i++ {
			msg := fmt.Sprintf("msg-%d-%d", b, i)
			require.NoError(t, r.Send([]byte(msg)))
			sent = append(sent, msg)
		}
		for _, want := range sent {
			got, ok, err := r.Read()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
	}
}
