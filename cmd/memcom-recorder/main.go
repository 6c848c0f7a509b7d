// Command memcom-recorder attaches to an existing video ring (and,
// optionally, a matching audio ring) and dumps every slot it sees to raw
// output files, as a stand-in for a real encoder/muxer behind
// recorder.Sink.
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
	"github.com/wheresjames/memcom-go/filter"
	"github.com/wheresjames/memcom-go/internal/config"
	"github.com/wheresjames/memcom-go/internal/shm"
	"github.com/wheresjames/memcom-go/recorder"
	"github.com/wheresjames/memcom-go/video"
)

// rawSink writes raw frame/PCM bytes straight to disk, with no framing,
// container, or compression: it exists to exercise recorder.Sink, not to
// be a usable media file format.
type rawSink struct {
	videoOut *os.File
	audioOut *os.File
}

func (s *rawSink) WriteVideoFrame(idx, pts int64, plane video.Plane) error {
	if s.videoOut == nil {
		return nil
	}
	for y := 0; y < plane.Height; y++ {
		if _, err := s.videoOut.Write(plane.Row(y)); err != nil {
			return err
		}
	}
	return nil
}

func (s *rawSink) WriteAudioBlock(idx, pts int64, pcm []byte) error {
	if s.audioOut == nil {
		return nil
	}
	_, err := s.audioOut.Write(pcm)
	return err
}

func main() {
	var configPath, videoPath, audioPath string
	var bitrateTolerance int64
	flag.StringVarP(&configPath, "config", "c", "", "pipeline descriptor YAML file")
	flag.StringVar(&videoPath, "video-out", "", "raw video output file")
	flag.StringVar(&audioPath, "audio-out", "", "raw audio output file")
	flag.Int64Var(&bitrateTolerance, "bitrate-tolerance", 0, "encoder bitrate tolerance in bits/sec (default width*height*2)")
	flag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "memcom-recorder: -config is required")
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

	sink := &rawSink{}
	if videoPath != "" {
		sink.videoOut, err = os.Create(videoPath)
		if err != nil {
			log.Fatal("create video output", "err", err)
		}
		defer sink.videoOut.Close()
	}

	var ar *audio.Ring
	if pl.Audio != nil {
		ar, err = audio.Create(pl.Audio.Name, shm.ModeExisting, audio.Shape{}, false)
		if err != nil {
			log.Fatal("attach audio ring", "err", err)
		}
		defer ar.Close()
		if audioPath != "" {
			sink.audioOut, err = os.Create(audioPath)
			if err != nil {
				log.Fatal("create audio output", "err", err)
			}
			defer sink.audioOut.Close()
		}
	}

	if bitrateTolerance == 0 {
		bitrateTolerance = recorder.BitrateToleranceFor(vr.Width(), vr.Height())
	}
	rec := recorder.New(sink, recorder.Options{BitrateTolerance: bitrateTolerance})
	f := filter.New(rec, 0)
	f.AddVideoInput(vr, -0.5, 1)
	if ar != nil {
		f.AddAudioInput(ar, -0.5, 1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := f.Start(ctx); err != nil {
		log.Fatal("start filter", "err", err)
	}
	log.Info("recording, ctrl-c to stop")
	<-ctx.Done()
	f.Close()
}
