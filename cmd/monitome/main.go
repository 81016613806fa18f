// Command monitome transcribes microphone audio in real time and serves the
// screenshot analysis API.
//
// Usage:
//
//	monitome stt [flags]      stream the microphone (or a PCM file) to the realtime STT endpoint
//	monitome serve [flags]    run the screen activity analysis HTTP service
//	monitome devices          list audio devices
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/monitome/internal/config"
	"github.com/MrWong99/monitome/internal/credential"
	"github.com/MrWong99/monitome/pkg/audio/capture"
	"github.com/MrWong99/monitome/pkg/audio/capture/portaudio"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], newCLI(os.Stdin, os.Stdout, os.Stderr))
	stop()
	os.Exit(code)
}

// run executes the command line and maps the outcome to a process exit
// code: 0 for success or an operator interrupt, 1 for any error.
func run(ctx context.Context, args []string, c *cli) int {
	root := c.rootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// cli holds the process collaborators shared by every subcommand. Tests
// replace them to run commands without a terminal, microphone or real
// credentials.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// getenv and dotfile feed credential lookups.
	getenv  func(string) string
	dotfile string

	registry    *config.Registry
	listDevices func() ([]capture.Device, error)

	// Persistent flag values.
	configPath string
	logLevel   string
	logFormat  string

	// cfg is populated by the root command's pre-run hook.
	cfg *config.Config
}

func newCLI(stdin io.Reader, stdout, stderr io.Writer) *cli {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	return &cli{
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		getenv:      os.Getenv,
		dotfile:     credential.DefaultDotfile(),
		registry:    reg,
		listDevices: portaudio.ListDevices,
	}
}
