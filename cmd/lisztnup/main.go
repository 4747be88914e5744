package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/jacbz/lisztnup/internal/audio"
	"github.com/jacbz/lisztnup/internal/config"
	"github.com/jacbz/lisztnup/internal/deezer"
	"github.com/jacbz/lisztnup/internal/player"
	"github.com/jacbz/lisztnup/internal/ui"
)

var version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	Version bool          `short:"v" help:"Show version information"`
	Length  time.Duration `short:"l" help:"Excerpt length per track (5s-30s), overrides LISZTNUP_TRACK_LENGTH"`
	Simple  bool          `help:"Use the wall-clock fallback playback path"`
	Verbose bool          `help:"Write a debug log to lisztnup-debug.log"`
	Tracks  []string      `arg:"" name:"tracks" help:"Deezer track IDs to play" optional:""`
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("lisztnup"),
		kong.Description("Loudness-normalized preview player for trivia rounds"),
		kong.UsageOnError(),
	)

	if cli.Version {
		fmt.Printf("lisztnup %s\n", version)
		os.Exit(0)
	}
	if len(cli.Tracks) == 0 {
		fmt.Fprintln(os.Stderr, "no track IDs given")
		kctx.PrintUsage(false)
		os.Exit(1)
	}

	cfg := config.Load()
	if cli.Length != 0 {
		cfg.TrackLength = cli.Length
	}
	if cli.Simple {
		cfg.SimpleBackend = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := newLogger(cfg, cli.Verbose)

	client := deezer.NewClient(cfg.DeezerBaseURL, cfg.FetchTimeout, log)
	refs, err := client.Tracks(context.Background(), cli.Tracks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving tracks: %v\n", err)
		os.Exit(1)
	}
	if len(refs) == 0 {
		fmt.Fprintln(os.Stderr, "none of the given tracks are playable")
		os.Exit(1)
	}

	out := player.NewSpeakerOutput()
	var backend player.Backend
	if cfg.SimpleBackend {
		backend = player.NewSimpleBackend(out, log)
	} else {
		backend = player.NewPreciseBackend(out, log)
	}
	loader := audio.NewLoader(nil, cfg.FetchTimeout, log)
	session := player.NewSession(loader, backend, cfg.TrackLength, log)
	defer session.Destroy()

	p := tea.NewProgram(ui.NewModel(session, refs), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ui error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the root logger. The TUI owns the terminal, so debug
// output goes to a file; without --verbose, logging is discarded entirely.
func newLogger(cfg config.Config, verbose bool) zerolog.Logger {
	if !verbose {
		return zerolog.New(io.Discard)
	}
	f, err := os.Create("lisztnup-debug.log")
	if err != nil {
		return zerolog.New(io.Discard)
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(f).Level(level).With().Timestamp().Logger()
}
