// Command memcom-clock runs the clock source for a video ring (and,
// optionally, a matching audio ring): it advances each ring's writer idx at
// a fixed real-time rate, publishing whatever a separate capture process
// has already written into the upcoming slot. It does not generate content
// itself; see memcom-testpattern for that.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/wheresjames/memcom-go/audio"
	"github.com/wheresjames/memcom-go/clock"
	"github.com/wheresjames/memcom-go/internal/config"
	"github.com/wheresjames/memcom-go/video"
)

func main() {
	var configPath string
	flag.StringVarP(&configPath, "config", "c", "", "pipeline descriptor YAML file")
	flag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "memcom-clock: -config is required")
		os.Exit(2)
	}

	pl, err := config.Load(configPath)
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	if pl.Video == nil {
		log.Fatal("config: video section is required")
	}

	mode, err := pl.Video.ShmMode()
	if err != nil {
		log.Fatal("config", "err", err)
	}
	vr, err := video.Create(pl.Video.Name, mode, video.Shape{
		Buffers: pl.Video.Buffers,
		Width:   pl.Video.Width,
		Height:  pl.Video.Height,
		Fps:     pl.Video.Fps,
	}, pl.Video.Cleanup)
	if err != nil {
		log.Fatal("open video ring", "err", err)
	}
	defer vr.Close()
	log.Info("video ring ready", "name", vr.Name(), "fps", vr.Fps())

	c := clock.New(1)
	c.AddVideo(clock.VideoOutput{Ring: vr})

	var ar *audio.Ring
	if pl.Audio != nil {
		amode, err := pl.Audio.ShmMode()
		if err != nil {
			log.Fatal("config", "err", err)
		}
		ar, err = audio.Create(pl.Audio.Name, amode, audio.Shape{
			Buffers:  pl.Audio.Buffers,
			Channels: pl.Audio.Channels,
			Bps:      pl.Audio.Bps,
			Bitrate:  pl.Audio.Bitrate,
			Fps:      pl.Audio.Fps,
		}, pl.Audio.Cleanup)
		if err != nil {
			log.Fatal("open audio ring", "err", err)
		}
		defer ar.Close()
		log.Info("audio ring ready", "name", ar.Name())
		c.AddAudio(clock.AudioOutput{Ring: ar})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("clock running, ctrl-c to stop")
	c.Run(ctx)
}
