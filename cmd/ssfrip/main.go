package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli"
	emucore "github.com/user-none/eblitui/api"

	"github.com/user-none/satsound/adapter"
	satcli "github.com/user-none/satsound/cli"
	"github.com/user-none/satsound/imageloader"
	"github.com/user-none/satsound/vgm"
	"github.com/user-none/satsound/wavsink"
)

// Used when a track carries no length tag.
const defaultLength = 10 * time.Minute

var coreFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "cpu",
		Usage: "CPU backend (m68k, z80)",
		Value: adapter.CPUM68K,
	},
	cli.StringFlag{
		Name:  "chip",
		Usage: "Sound chip backend (scsp, psg)",
		Value: adapter.ChipSCSP,
	},
	cli.IntFlag{
		Name:  "block",
		Usage: "Frames rendered per step",
		Value: satcli.DefaultBlock,
	},
	cli.DurationFlag{
		Name:  "length",
		Usage: "Play time, overriding the track's length tag",
	},
	cli.DurationFlag{
		Name:  "fade",
		Usage: "Fade-out time, overriding the track's fade tag",
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "ssfrip"
	app.Usage = "play and rip Saturn sound tracks"
	app.Description = "Runs SSF/MINISSF programs on an emulated sound CPU and chip"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Enable debug logging",
		},
	}
	app.Before = func(c *cli.Context) error {
		level := slog.LevelInfo
		if c.GlobalBool("verbose") {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "rip",
			Usage:     "Render a track to a WAV or VGM file",
			ArgsUsage: "<track>",
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Usage: "Output file (default: track name with the format's extension)",
				},
				cli.StringFlag{
					Name:  "format, f",
					Usage: "Output format (wav, vgm); inferred from --out when omitted",
				},
			}, coreFlags...),
			Action: runRip,
		},
		{
			Name:      "play",
			Usage:     "Play a track through the default audio device",
			ArgsUsage: "<track>",
			Flags:     coreFlags,
			Action:    runPlay,
		},
		{
			Name:      "info",
			Usage:     "Show a track's tags and image layout",
			ArgsUsage: "<track>",
			Action:    runInfo,
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running ssfrip", "error", err)
		os.Exit(1)
	}
}

// session is a loaded track on a ready player.
type session struct {
	res    *imageloader.Result
	player *adapter.Player
	length time.Duration
	fade   time.Duration
}

func trackArg(c *cli.Context) (string, error) {
	if c.NArg() == 0 {
		cli.ShowCommandHelp(c, c.Command.Name)
		return "", errors.New("no track path provided")
	}
	return c.Args().First(), nil
}

func openSession(c *cli.Context) (*session, error) {
	path, err := trackArg(c)
	if err != nil {
		return nil, err
	}
	res, err := imageloader.Load(path, nil)
	if err != nil {
		return nil, err
	}

	f := &adapter.Factory{Logger: slog.Default()}
	p, err := f.Create(c.String("cpu"), c.String("chip"))
	if err != nil {
		return nil, err
	}
	p.Load(res.Image)

	length, fade, ok := res.File.Tags.Length()
	if !ok {
		length = defaultLength
	}
	if c.IsSet("length") {
		length = c.Duration("length")
	}
	if c.IsSet("fade") {
		fade = c.Duration("fade")
	}

	slog.Debug("track loaded", "name", res.Name, "start", res.Image.Start,
		"size", len(res.Image.Data), "length", length, "fade", fade)
	return &session{res: res, player: p, length: length, fade: fade}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runRip(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}

	out := c.String("out")
	format := strings.ToLower(c.String("format"))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
	}
	if format == "" {
		format = "wav"
	}
	if out == "" {
		out = strings.TrimSuffix(s.res.Name, filepath.Ext(s.res.Name)) + "." + format
	}

	ctx, cancel := signalContext()
	defer cancel()

	var frames int
	switch format {
	case "wav":
		frames, err = ripWAV(ctx, c, s, out)
	case "vgm":
		frames, err = ripVGM(ctx, c, s, out)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return err
	}
	slog.Info("rip complete", "out", out, "frames", frames)
	return nil
}

func ripWAV(ctx context.Context, c *cli.Context, s *session, out string) (int, error) {
	sink, err := wavsink.Create(out)
	if err != nil {
		return 0, err
	}
	r := satcli.NewRunner(s.player, sink, c.Int("block"), adapter.SampleRate, slog.Default())
	frames, err := r.Run(ctx, s.length, s.fade)
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	return frames, err
}

// discard drops rendered audio; a VGM rip only needs the recorder tap.
type discard struct{}

func (discard) WriteSamples([]int16) error { return nil }

func ripVGM(ctx context.Context, c *cli.Context, s *session, out string) (frames int, rerr error) {
	f, err := os.Create(out)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = err
		}
	}()

	w := vgm.NewWriter(f)
	w.SetGD3(gd3From(s.res))
	w.Begin(s.player.ReadRegion(emucore.MemorySystemRAM))
	s.player.SetRecorder(w)

	r := satcli.NewRunner(s.player, discard{}, c.Int("block"), adapter.SampleRate, slog.Default())
	frames, err = r.Run(ctx, s.length, s.fade)
	s.player.SetRecorder(nil)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return frames, err
}

func gd3From(res *imageloader.Result) vgm.GD3 {
	tags := res.File.Tags
	track := tags.Get("title")
	if track == "" {
		track = strings.TrimSuffix(res.Name, filepath.Ext(res.Name))
	}
	ripper := tags.Get("ssfby")
	if ripper == "" {
		ripper = tags.Get("psfby")
	}
	return vgm.GD3{
		Track:  track,
		Game:   tags.Get("game"),
		System: "Sega Saturn",
		Author: tags.Get("artist"),
		Date:   tags.Get("year"),
		Ripper: ripper,
		Notes:  tags.Get("comment"),
	}
}

func runPlay(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	spk, err := satcli.NewSpeaker(adapter.SampleRate)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	slog.Info("playing", "track", s.res.Name, "length", s.length+s.fade)
	r := satcli.NewRunner(s.player, spk, c.Int("block"), adapter.SampleRate, slog.Default())
	_, err = r.Run(ctx, s.length, s.fade)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if cerr := spk.Close(); err == nil {
		err = cerr
	}
	return err
}

func runInfo(c *cli.Context) error {
	path, err := trackArg(c)
	if err != nil {
		return err
	}
	res, err := imageloader.Load(path, nil)
	if err != nil {
		return err
	}
	fmt.Println(formatInfo(res, newStyles()))
	return nil
}
