package main

import (
	"github.com/wheresjames/memcom-go/audio"
	"github.com/wheresjames/memcom-go/internal/config"
	"github.com/wheresjames/memcom-go/video"
)

func videoRing(pl *config.Pipeline) (*video.Ring, error) {
	mode, err := pl.Video.ShmMode()
	if err != nil {
		return nil, err
	}
	return video.Create(pl.Video.Name, mode, video.Shape{
		Buffers: pl.Video.Buffers,
		Width:   pl.Video.Width,
		Height:  pl.Video.Height,
		Fps:     pl.Video.Fps,
	}, pl.Video.Cleanup)
}

func audioRing(pl *config.Pipeline) (*audio.Ring, error) {
	mode, err := pl.Audio.ShmMode()
	if err != nil {
		return nil, err
	}
	return audio.Create(pl.Audio.Name, mode, audio.Shape{
		Buffers:  pl.Audio.Buffers,
		Channels: pl.Audio.Channels,
		Bps:      pl.Audio.Bps,
		Bitrate:  pl.Audio.Bitrate,
		Fps:      pl.Audio.Fps,
	}, pl.Audio.Cleanup)
}
