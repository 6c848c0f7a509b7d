// Command memcom-eraser attaches to an existing video ring (and, optionally,
// a matching audio ring) and runs the blanking filter against it, so that a
// reader who ever falls a full revolution behind sees black/silence instead
// of stale data from the previous lap.
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
	"github.com/wheresjames/memcom-go/eraser"
	"github.com/wheresjames/memcom-go/filter"
	"github.com/wheresjames/memcom-go/internal/config"
	"github.com/wheresjames/memcom-go/internal/shm"
	"github.com/wheresjames/memcom-go/video"
)

func main() {
	var configPath string
	flag.StringVarP(&configPath, "config", "c", "", "pipeline descriptor YAML file")
	flag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "memcom-eraser: -config is required")
		os.Exit(2)
	}

	pl, err := config.Load(configPath)
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	if pl.Video == nil {
		log.Fatal("config: video section is required")
	}

	vr, err := video.Create(pl.Video.Name, shm.ModeExisting, video.Shape{}, false)
	if err != nil {
		log.Fatal("attach video ring", "err", err)
	}
	defer vr.Close()

	e := eraser.New()
	f := filter.New(e, 0)
	f.AddVideoInput(vr, -0.75, 1)

	var ar *audio.Ring
	if pl.Audio != nil {
		ar, err = audio.Create(pl.Audio.Name, shm.ModeExisting, audio.Shape{}, false)
		if err != nil {
			log.Fatal("attach audio ring", "err", err)
		}
		defer ar.Close()
		f.AddAudioInput(ar, -0.75, 1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := f.Start(ctx); err != nil {
		log.Fatal("start filter", "err", err)
	}
	log.Info("eraser running, ctrl-c to stop")
	<-ctx.Done()
	f.Close()
}
