package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadParsesFullPipeline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	contents := `
video:
  name: myvid
  mode: always
  cleanup: true
  buffers: 16
  width: 320
  height: 240
  fps: 30
audio:
  name: myaud
  mode: existing
  buffers: 150
  channels: 2
  bps: 16
  bitrate: 48000
  fps: 50
message:
  name: mymsg
  capacity: 4096
bias: -0.5
window: 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	p, err := Load(path)
	require.NoError(t, err)

	require.NotNil(t, p.Video)
	assert.Equal(t, "myvid", p.Video.Name)
	assert.Equal(t, 320, p.Video.Width)
	assert.Equal(t, 30, p.Video.Fps)

	require.NotNil(t, p.Audio)
	assert.Equal(t, 48000, p.Audio.Bitrate)
	assert.Equal(t, 50, p.Audio.Fps)

	require.NotNil(t, p.Message)
	assert.Equal(t, 4096, p.Message.Capacity)

	assert.Equal(t, -0.5, p.Bias)
	assert.Equal(t, 0.25, p.Window)
}

func Test_ShmModeDefaultsToAlways(t *testing.T) {
	r := RingRef{}
	mode, err := r.ShmMode()
	require.NoError(t, err)
	assert.Equal(t, "always", string(mode))
}

func Test_ShmModeRejectsUnknown(t *testing.T) {
	r := RingRef{Mode: "bogus"}
	_, err := r.ShmMode()
	assert.Error(t, err)
}

func Test_LoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
