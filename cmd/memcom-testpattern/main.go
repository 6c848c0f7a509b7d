// Command memcom-testpattern drives a video ring (and, optionally, a
// matching audio ring) with a bouncing-box/chirp test pattern, for
// exercising a pipeline end to end without a real capture source.
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
	"github.com/wheresjames/memcom-go/pattern"
)

func main() {
	var configPath string
	flag.StringVarP(&configPath, "config", "c", "", "pipeline descriptor YAML file")
	flag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "memcom-testpattern: -config is required")
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

	vr, err := videoRing(pl)
	if err != nil {
		log.Fatal("open video ring", "err", err)
	}
	defer vr.Close()
	log.Info("video ring ready", "name", vr.Name(), "mode", mode, "w", vr.Width(), "h", vr.Height(), "fps", vr.Fps())

	gen := pattern.NewGenerator(vr.Width(), vr.Height(), 220, 880, 2)

	c := clock.New(1)
	c.AddVideo(clock.VideoOutput{Ring: vr, Fill: gen.FillVideo})

	var ar *audio.Ring
	if pl.Audio != nil {
		ar, err = audioRing(pl)
		if err != nil {
			log.Fatal("open audio ring", "err", err)
		}
		defer ar.Close()
		log.Info("audio ring ready", "name", ar.Name(), "bitrate", ar.Bitrate(), "channels", ar.Channels())
		c.AddAudio(clock.AudioOutput{Ring: ar, Fill: gen.FillAudio})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("running test pattern, ctrl-c to stop")
	c.Run(ctx)
}
