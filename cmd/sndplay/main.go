// Command sndplay plays a WAV or MP3 file through a snd channel.
//
// Audio is queued as CMD_BUFFER commands; CMD_CALLBACK markers interleaved
// with them report progress through the channel callback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-audio/audio"
	"go.uber.org/zap"

	"github.com/gen2brain/snd"
	"github.com/gen2brain/snd/alsa"
	"github.com/gen2brain/snd/cmd/internal/config"
)

const (
	markProgress = 0
	markEnd      = 1

	// progressEvery is the number of buffers between two progress markers.
	progressEvery = 16
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	configPath := fs.String("config", "", "Path to an optional config file")
	fs.Uint("card", 0, "The card to receive the audio")
	fs.Uint("device", 0, "The device to receive the audio")
	fs.Uint("periodSize", 1024, "The size of a period in frames")
	fs.Uint("periodCount", 4, "The number of periods")
	fs.Int("queueLength", alsa.DefaultQueueLength, "The channel command queue capacity")
	fs.String("loglevel", "info", "The log level (debug, info, warn, error)")
	fs.Uint("channels", 0, "The amount of channels per frame (0 = use the file's channels)")
	fs.Uint("rate", 0, "The amount of frames per second (0 = use the file's rate)")
	fs.String("format", "", "The sample format (s16, s24, s32, float, float64; empty = from the file)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <wav-or-mp3-file>\n\nOptions:\n", os.Args[0])
		fs.PrintDefaults()
	}

	_ = fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	if err := config.LoadConfig(*configPath, fs); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := config.ConfigureLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	snd.SetLogger(log)

	if err := play(log, fs.Arg(0)); err != nil {
		log.Error("playback failed", zap.Error(err))
		os.Exit(1)
	}
}

func play(log *zap.Logger, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var dec decoder
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		dec, err = newMp3Decoder(f)
	} else {
		dec, err = newWavDecoder(f)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	cfg := config.Driver(log)
	cfg.Channels = firstSet(cfg.Channels, uint32(dec.NumChans()))
	cfg.Rate = firstSet(cfg.Rate, dec.SampleRate())
	if cfg.Format, err = formatFor(config.Format(), dec); err != nil {
		return err
	}

	drv := alsa.Open(cfg)
	defer func() {
		if err := drv.Close(); err != nil {
			log.Warn("driver close failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := snd.NewSession(drv, snd.WithLogger(log))

	serveCtx, cancelServe := context.WithCancel(ctx)
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = sess.Dispatcher().Serve(serveCtx)
	}()
	defer func() {
		cancelServe()
		<-served
	}()

	total, _ := dec.Duration()
	finished := make(chan struct{})

	ch, err := sess.NewChannel(0, 0, func(ch *snd.Channel, cmd snd.Command) error {
		if cmd.Param1 == markEnd {
			close(finished)

			return nil
		}

		st, err := ch.Status()
		if err != nil {
			return err
		}

		played := time.Duration(float64(st.Frames) / float64(cfg.Rate) * float64(time.Second))
		log.Info("playing", zap.Duration("position", played.Round(time.Millisecond)), zap.Duration("total", total.Round(time.Millisecond)))

		return nil
	})
	if err != nil {
		return err
	}

	log.Info("playback started",
		zap.String("file", path),
		zap.String("device", fmt.Sprintf("hw:%d,%d", cfg.Card, cfg.Device)),
		zap.Uint32("channels", cfg.Channels),
		zap.Uint32("rate", cfg.Rate))

	start := time.Now()

	if err := feed(ctx, ch, dec, cfg); err != nil {
		_ = ch.Dispose(true)

		return err
	}

	select {
	case <-finished:
	case <-ctx.Done():
		log.Info("playback interrupted")

		return ch.Dispose(true)
	}

	st, _ := ch.Status()
	if err := ch.Dispose(false); err != nil {
		return err
	}

	log.Info("playback finished", zap.Duration("elapsed", time.Since(start)), zap.Uint64("frames", st.Frames))

	return nil
}

// feed queues the whole stream, one period per CMD_BUFFER, followed by the
// end marker. A full queue is retried after one period of audio has had time
// to play.
func feed(ctx context.Context, ch *snd.Channel, dec decoder, cfg alsa.Config) error {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: int(cfg.Channels), SampleRate: int(cfg.Rate)},
		Data:   make([]int, int(cfg.PeriodSize)*int(cfg.Channels)),
	}
	period := time.Duration(float64(cfg.PeriodSize) / float64(cfg.Rate) * float64(time.Second))

	submit := func(v any) error {
		for {
			err := ch.Submit(v)
			if !errors.Is(err, alsa.ErrQueueFull) {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(period):
			}
		}
	}

	for i := 1; ctx.Err() == nil; i++ {
		n, err := dec.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode: %w", err)
		}

		if n == 0 {
			break
		}

		payload, err := encode(buf.Data[:n], dec.BitDepth(), cfg.Format)
		if err != nil {
			return err
		}

		if err := submit([]any{snd.CMD_BUFFER, 0, payload}); err != nil {
			return err
		}

		if i%progressEvery == 0 {
			if err := submit([]int{int(snd.CMD_CALLBACK), markProgress}); err != nil {
				return err
			}
		}
	}

	return submit([]int{int(snd.CMD_CALLBACK), markEnd})
}

// firstSet returns override when it is set, v otherwise.
func firstSet(override, v uint32) uint32 {
	if override != 0 {
		return override
	}

	return v
}
