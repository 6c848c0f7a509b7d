package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func Test_Int64RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int64().Draw(t, "v")
		b := make([]byte, 8)
		PutInt64(b, 0, v)
		assert.Equal(t, v, GetInt64(b, 0))
	})
}

func Test_Int32RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int32().Draw(t, "v")
		b := make([]byte, 4)
		PutInt32(b, 0, v)
		assert.Equal(t, v, GetInt32(b, 0))
	})
}

func Test_IdxCellLoadStoreAdd(t *testing.T) {
	b := make([]byte, 8)
	c := NewIdxCell(b, 0)

	c.Store(41)
	assert.Equal(t, int64(41), c.Load())

	got := c.Add(1)
	assert.Equal(t, int64(42), got)
	assert.Equal(t, int64(42), c.Load())
}
