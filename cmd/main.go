package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/samaelod/flowmap/config"
	"github.com/samaelod/flowmap/engine"
	"github.com/samaelod/flowmap/loader"
	"github.com/samaelod/flowmap/lua"
	"github.com/samaelod/flowmap/stream"
	"github.com/samaelod/flowmap/tui"
)

var version = "dev"

type cli struct {
	Config  string           `short:"c" type:"existingfile" help:"Config file (JSON or YAML). Searched for when omitted."`
	Version kong.VersionFlag `help:"Print the version and exit."`

	TUI    tuiCmd    `cmd:"" default:"withargs" help:"Open the interactive diagram (default)."`
	Run    runCmd    `cmd:"" help:"Play a dataset headless and print the final frame as JSON."`
	Serve  serveCmd  `cmd:"" help:"Play a dataset and stream frames over WebSocket."`
	Export exportCmd `cmd:"" help:"Convert a capture or JSON payload into a Lua dataset."`
}

type tuiCmd struct {
	File string `arg:"" optional:"" type:"path" help:"Dataset or capture to open right away."`
}

func (c *tuiCmd) Run(cfg *config.Config) error {
	return tui.Run(cfg, version, c.File)
}

type runCmd struct {
	File    string  `arg:"" type:"existingfile" help:"Dataset or capture to play."`
	Ticks   int     `default:"600" help:"Number of host ticks to simulate."`
	DeltaMs float64 `name:"delta" default:"33.333" help:"Wall time per tick in milliseconds."`
	Follow  string  `help:"Connection id whose packets are played as particles."`
	Output  string  `short:"o" type:"path" help:"Write the frame here instead of stdout."`
	Verbose bool    `short:"v" help:"Print the engine log to stderr."`
}

func (c *runCmd) Run(cfg *config.Config) error {
	eng, err := openEngine(cfg, c.File, "", c.Follow)
	if err != nil {
		return err
	}
	defer eng.Close()

	for i := 0; i < c.Ticks; i++ {
		eng.Tick(c.DeltaMs)
	}

	if c.Verbose {
		fmt.Fprint(os.Stderr, eng.Log.ReadAll())
	}

	var out io.Writer = os.Stdout
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(eng.Frame())
}

type serveCmd struct {
	File   string `arg:"" type:"existingfile" help:"Dataset or capture to play."`
	Addr   string `help:"Listen address. Defaults to stream.addr from the config."`
	Follow string `help:"Connection id whose packets are played as particles."`
}

func (c *serveCmd) Run(cfg *config.Config) error {
	name := strings.TrimSuffix(filepath.Base(c.File), filepath.Ext(c.File))
	eng, err := openEngine(cfg, c.File, filepath.Join(cfg.LogsDir, name+".log"), c.Follow)
	if err != nil {
		return err
	}
	defer eng.Close()

	addr := c.Addr
	if addr == "" {
		addr = cfg.Stream.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Serving %s on %s", c.File, addr)
	return stream.Serve(ctx, eng, addr, cfg.TPS)
}

type exportCmd struct {
	File string `arg:"" type:"existingfile" help:"Capture or JSON payload to convert."`
	Dir  string `help:"Output directory. Defaults to recent_dir from the config."`
}

func (c *exportCmd) Run(cfg *config.Config) error {
	ds, report, err := loader.Load(c.File)
	if err != nil {
		return err
	}
	for _, d := range report.Dropped {
		log.Printf("Dropped %s", d)
	}

	var path string
	if c.Dir != "" {
		path, err = lua.SaveToRecentDir(ds, c.File, c.Dir)
	} else {
		path, err = lua.SaveToRecent(ds, c.File)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d timelines, %d packets\n", path, report.Timelines, report.Packets)
	return nil
}

// openEngine loads path into a new engine and starts playback.
func openEngine(cfg *config.Config, path, logPath, follow string) (*engine.Engine, error) {
	ds, report, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	eng := engine.NewEngine(cfg, logPath, nil)
	for _, d := range report.Dropped {
		eng.Log.Warnf("Dropped %s", d)
	}
	eng.LoadDataset(ds)
	if follow != "" && !eng.SelectConnection(follow) {
		eng.Close()
		return nil, fmt.Errorf("connection %s not found or has no packets", follow)
	}
	eng.Play()
	return eng, nil
}

func main() {
	// Only create debug log in dev builds
	if version == "dev" {
		f, err := os.OpenFile("debug.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			log.SetOutput(f)
		}
	}

	var c cli
	ctx := kong.Parse(&c,
		kong.Name("flowmap"),
		kong.Description("Replay network captures as an animated connection diagram."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	config.UseFile(c.Config)
	cfg, err := config.LoadDefault()
	if err != nil {
		ctx.Fatalf("%v", err)
	}
	ctx.FatalIfErrorf(ctx.Run(cfg))
}
