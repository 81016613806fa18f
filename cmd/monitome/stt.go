package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/monitome/internal/config"
	"github.com/MrWong99/monitome/internal/transcribe"
	"github.com/MrWong99/monitome/pkg/audio/capture"
	"github.com/MrWong99/monitome/pkg/audio/capture/portaudio"
	"github.com/MrWong99/monitome/pkg/provider/stt"
)

// sttFlags mirrors config.TranscribeConfig. Only flags set on the command
// line override the loaded configuration.
type sttFlags struct {
	model            string
	language         string
	commitStrategy   string
	manualCommitSecs float64
	sampleRate       int
	chunkMs          int
	device           string
	timestamps       bool
	previousText     string
	queueSize        int
	linger           time.Duration

	listDevices bool
	input       string
	realtime    bool
}

func (c *cli) sttCommand() *cobra.Command {
	var f sttFlags
	cmd := &cobra.Command{
		Use:   "stt",
		Short: "Transcribe microphone audio in real time",
		Long: `Streams microphone audio to the ElevenLabs realtime speech-to-text
endpoint and prints partial and committed transcripts as they arrive.
Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.listDevices {
				return c.printDevices()
			}
			f.apply(cmd, c.cfg)
			if err := config.Validate(c.cfg); err != nil {
				return err
			}
			return c.runSTT(cmd.Context(), f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.model, "model", config.DefaultSTTModel, "realtime model id")
	fl.StringVar(&f.language, "language", "", "language code, e.g. en; empty lets the server detect it")
	fl.StringVar(&f.commitStrategy, "commit-strategy", config.DefaultCommitStrategy, "commit strategy: manual or vad")
	fl.Float64Var(&f.manualCommitSecs, "manual-commit-secs", config.DefaultManualCommitSecs, "seconds between commits when --commit-strategy=manual")
	fl.IntVar(&f.sampleRate, "sample-rate", config.DefaultSampleRate, "capture sample rate in Hz")
	fl.IntVar(&f.chunkMs, "chunk-ms", config.DefaultChunkMs, "audio frame length in milliseconds")
	fl.StringVar(&f.device, "device", "", "input device index or name substring")
	fl.BoolVar(&f.timestamps, "timestamps", false, "request word timestamps on committed transcripts")
	fl.StringVar(&f.previousText, "previous-text", "", "context text sent with the first audio chunk")
	fl.IntVar(&f.queueSize, "queue-size", config.DefaultQueueSize, "frames buffered between capture and sender")
	fl.DurationVar(&f.linger, "linger", 0, "how long to wait for transcripts after --input ends")
	fl.BoolVar(&f.listDevices, "list-devices", false, "list audio devices and exit")
	fl.StringVar(&f.input, "input", "", `read raw 16-bit mono PCM from a file ("-" for stdin) instead of the microphone`)
	fl.BoolVar(&f.realtime, "realtime", true, "pace --input at real-time speed")
	return cmd
}

// apply copies every flag the user set onto cfg.
func (f *sttFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	t := &cfg.Transcribe
	if changed("model") {
		cfg.Providers.STT.Model = f.model
	}
	if changed("language") {
		t.Language = f.language
	}
	if changed("commit-strategy") {
		t.CommitStrategy = f.commitStrategy
	}
	if changed("manual-commit-secs") {
		t.ManualCommitSecs = f.manualCommitSecs
	}
	if changed("sample-rate") {
		t.SampleRate = f.sampleRate
	}
	if changed("chunk-ms") {
		t.ChunkMs = f.chunkMs
	}
	if changed("device") {
		t.Device = f.device
	}
	if changed("timestamps") {
		t.Timestamps = f.timestamps
	}
	if changed("previous-text") {
		t.PreviousText = f.previousText
	}
	if changed("queue-size") {
		t.QueueSize = f.queueSize
	}
	if changed("linger") {
		t.Linger = f.linger
	}
}

// runSTT resolves the credential before touching the network or the audio
// device, then runs one transcription session until it ends.
func (c *cli) runSTT(ctx context.Context, f sttFlags) error {
	entry, err := c.resolveKey(c.cfg.Providers.STT)
	if err != nil {
		return err
	}
	provider, err := c.registry.CreateSTT(entry)
	if err != nil {
		return fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}

	t := c.cfg.Transcribe
	strategy, err := stt.ParseCommitStrategy(t.CommitStrategy)
	if err != nil {
		return err
	}

	source, closeInput, err := c.openSource(capture.Config{
		SampleRate: t.SampleRate,
		ChunkMs:    t.ChunkMs,
		Device:     t.Device,
	}, f.input, f.realtime)
	if err != nil {
		return err
	}
	defer closeInput()

	session, err := transcribe.NewSession(provider, source, transcribe.Config{
		Stream: stt.StreamConfig{
			Model:             entry.Model,
			SampleRate:        t.SampleRate,
			CommitStrategy:    strategy,
			IncludeTimestamps: t.Timestamps,
			Language:          t.Language,
		},
		ManualCommitInterval: t.ManualCommitInterval(),
		PreviousText:         t.PreviousText,
		QueueSize:            t.QueueSize,
		Linger:               t.Linger,
	}, transcribe.WithOutput(c.stdout))
	if err != nil {
		return err
	}

	if err := session.Run(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		fmt.Fprintln(c.stdout, "\nStopped.")
	}
	return nil
}

// openSource picks the microphone or a PCM reader. The returned func
// releases the input file, if one was opened.
func (c *cli) openSource(cfg capture.Config, input string, realtime bool) (capture.Source, func(), error) {
	noop := func() {}
	switch input {
	case "":
		src, err := portaudio.New(cfg, portaudio.WithLogger(slog.Default()))
		return src, noop, err
	case "-":
		src, err := capture.NewReader(c.stdin, cfg, capture.WithPacing(realtime))
		return src, noop, err
	}

	file, err := os.Open(input)
	if err != nil {
		return nil, noop, fmt.Errorf("open input: %w", err)
	}
	src, err := capture.NewReader(file, cfg, capture.WithPacing(realtime))
	if err != nil {
		file.Close()
		return nil, noop, err
	}
	return src, func() { file.Close() }, nil
}
