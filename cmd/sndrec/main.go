// Command sndrec records from a capture device into a WAV file through a
// snd SPB.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	"github.com/gen2brain/snd"
	"github.com/gen2brain/snd/alsa"
	"github.com/gen2brain/snd/cmd/internal/config"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	configPath := fs.String("config", "", "Path to an optional config file")
	fs.Uint("card", 0, "The card to capture from")
	fs.Uint("device", 0, "The device to capture from")
	fs.Uint("periodSize", 1024, "The size of a period in frames")
	fs.Uint("periodCount", 4, "The number of periods")
	fs.String("loglevel", "info", "The log level (debug, info, warn, error)")
	fs.Uint("channels", 0, "The number of channels (0 = 2)")
	fs.Uint("rate", 0, "The sample rate in Hz (0 = 48000)")
	fs.String("format", "", "The sample format (s16, s24, s32; empty = s16)")
	fs.Duration("duration", 5*time.Second, "The length of the recording")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <output-wav-file>\n\nOptions:\n", os.Args[0])
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

	pcmFormat, bitDepth, err := determineFormat(config.Format())
	if err != nil {
		log.Error("invalid format", zap.Error(err))
		os.Exit(1)
	}

	cfg := config.Driver(log)
	cfg.Format = pcmFormat

	if err := record(log, fs.Arg(0), cfg, bitDepth, config.Duration()); err != nil {
		log.Error("recording failed", zap.Error(err))
		os.Exit(1)
	}
}

type result struct {
	code  int16
	count int32
}

func record(log *zap.Logger, path string, cfg alsa.Config, bitDepth int, d time.Duration) error {
	drv := alsa.Open(cfg)
	defer func() {
		if err := drv.Close(); err != nil {
			log.Warn("driver close failed", zap.Error(err))
		}
	}()
	cfg = drv.Config()

	sess := snd.NewSession(drv, snd.WithLogger(log))

	// The dispatcher outlives the signal: StopRecording still delivers a completion.
	serveCtx, cancelServe := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = sess.Dispatcher().Serve(serveCtx)
	}()
	defer func() {
		cancelServe()
		<-served
	}()

	ms := d.Milliseconds()
	size := int(float64(ms) * cfg.BytesPerMillisecond())
	size -= size % int(cfg.FrameSize())

	spb := sess.NewSPB()
	defer spb.Close()

	spb.SetInputChannel(int32(cfg.Card<<8 | cfg.Device))
	spb.SetBuffer(make([]byte, size))
	spb.SetMillisecondLimit(int32(ms))

	spb.SetInterruptCallback(func(spb *snd.SPB) error {
		st, err := spb.RecordingStatus()
		if err != nil {
			return err
		}

		log.Debug("recording",
			zap.Uint32("ms", st.RecordedMilliseconds),
			zap.Uint32("total_ms", st.TotalMilliseconds),
			zap.Int16("meter", st.MeterLevel))

		return nil
	})

	done := make(chan result, 1)
	spb.SetCompletionCallback(func(spb *snd.SPB) error {
		done <- result{code: spb.LastError(), count: spb.Count()}

		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("recording started",
		zap.String("device", fmt.Sprintf("hw:%d,%d", cfg.Card, cfg.Device)),
		zap.Uint32("channels", cfg.Channels),
		zap.Uint32("rate", cfg.Rate),
		zap.Duration("duration", d))

	if err := spb.StartRecording(true); err != nil {
		return err
	}

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		log.Info("recording interrupted")
		if err := spb.StopRecording(); err != nil {
			log.Warn("stop failed", zap.Error(err))
		}
		res = <-done
	}

	if res.code == snd.SPB_ERR_IO {
		return fmt.Errorf("device error after %d bytes", res.count)
	}

	if err := writeWav(path, spb.Buffer()[:res.count], cfg, bitDepth); err != nil {
		return err
	}

	log.Info("recording finished",
		zap.String("file", path),
		zap.Int32("bytes", res.count),
		zap.Bool("aborted", res.code == snd.SPB_ERR_ABORTED))

	return nil
}

func writeWav(path string, data []byte, cfg alsa.Config, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, int(cfg.Rate), bitDepth, int(cfg.Channels), 1) // 1 is PCM

	buf, err := bytesToIntBuffer(data, cfg.Format, int(cfg.Channels))
	if err != nil {
		return err
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return enc.Close()
}

// determineFormat maps a format name to the device format and the WAV bit depth.
func determineFormat(s string) (alsa.PcmFormat, int, error) {
	switch s {
	case "", "s16":
		return alsa.SNDRV_PCM_FORMAT_S16_LE, 16, nil
	case "s24":
		// S24_LE carries 24 bits in a 32-bit container.
		return alsa.SNDRV_PCM_FORMAT_S24_LE, 24, nil
	case "s32":
		return alsa.SNDRV_PCM_FORMAT_S32_LE, 32, nil
	default:
		return 0, 0, fmt.Errorf("unsupported format %q, want s16, s24 or s32", s)
	}
}

// bytesToIntBuffer converts captured frames into the buffer the WAV encoder takes.
func bytesToIntBuffer(data []byte, format alsa.PcmFormat, channels int) (*audio.IntBuffer, error) {
	width := int(alsa.PcmFormatToBits(format) / 8)
	if width == 0 {
		return nil, fmt.Errorf("unsupported format %d", format)
	}

	samples := make([]int, len(data)/width)
	depth := 0

	for i := range samples {
		b := data[i*width:]

		switch format {
		case alsa.SNDRV_PCM_FORMAT_S16_LE:
			samples[i] = int(int16(binary.LittleEndian.Uint16(b)))
			depth = 16
		case alsa.SNDRV_PCM_FORMAT_S24_LE:
			// Sign-extend the low three bytes.
			samples[i] = int(int32(binary.LittleEndian.Uint32(b)<<8) >> 8)
			depth = 24
		case alsa.SNDRV_PCM_FORMAT_S32_LE:
			samples[i] = int(int32(binary.LittleEndian.Uint32(b)))
			depth = 32
		default:
			return nil, fmt.Errorf("unhandled format %d", format)
		}
	}

	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels},
		Data:           samples,
		SourceBitDepth: depth,
	}, nil
}
