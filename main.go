// Program smpspeed polls a SNES console through a usb2snes bridge for the
// audio-coprocessor clock measurement screen, waits for the on-screen counters
// to stabilize, and appends the extracted readings to a CSV file at a fixed
// interval. Optional side channels mirror the readings to SQLite, archive the
// raw snapshots, publish over MQTT, and render a live terminal dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/TASBotL3C/smpspeed-usb2snes/archive"
	"github.com/TASBotL3C/smpspeed-usb2snes/config"
	"github.com/TASBotL3C/smpspeed-usb2snes/csvlog"
	"github.com/TASBotL3C/smpspeed-usb2snes/publish"
	"github.com/TASBotL3C/smpspeed-usb2snes/recorder"
	"github.com/TASBotL3C/smpspeed-usb2snes/sampler"
	"github.com/TASBotL3C/smpspeed-usb2snes/tilemap"
	"github.com/TASBotL3C/smpspeed-usb2snes/ui"
	"github.com/TASBotL3C/smpspeed-usb2snes/usb2snes"
)

// Exit codes: 0 clean stop, 1 startup or connection failure, 2 structural
// decode failure (wrong ROM or memory layout), 3 stabilization budget expired.
const (
	exitOK         = 0
	exitStartup    = 1
	exitStructural = 2
	exitExpired    = 3
)

func main() {
	os.Exit(run())
}

type cliFlags struct {
	configPath string
	address    string
	device     string
	interval   int
	output     string
	dashboard  bool
	debug      bool
}

// Purpose: Parse command-line flags into a cliFlags bundle.
// Key aspects: Zero values mean "not given"; applyFlags only overrides config
// fields the user actually set.
// Upstream: run.
// Downstream: flag package.
func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "c", "", "yaml config file (optional)")
	flag.StringVar(&f.address, "a", "", "usb2snes bridge address (default ws://localhost:8080)")
	flag.StringVar(&f.device, "device", "", "preferred device name (substring match)")
	flag.IntVar(&f.interval, "i", 0, "seconds between CSV rows (default 5)")
	flag.StringVar(&f.output, "o", "", "output CSV path (default timestamp-derived)")
	flag.BoolVar(&f.dashboard, "dashboard", false, "show the live terminal dashboard")
	flag.BoolVar(&f.debug, "debug", false, "log the per-attempt stabilization trace")
	flag.Parse()
	return f
}

func applyFlags(cfg *config.Config, f cliFlags) {
	if f.address != "" {
		cfg.Bridge.Address = f.address
	}
	if f.device != "" {
		cfg.Bridge.PreferredDevice = f.device
	}
	if f.interval > 0 {
		cfg.Output.IntervalSeconds = f.interval
	}
	if f.output != "" {
		cfg.Output.CSVPath = f.output
	}
	if f.dashboard {
		cfg.UI.Dashboard = true
	}
	if f.debug {
		cfg.Logging.Debug = true
	}
}

// Purpose: Report whether stdout is an interactive terminal.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: run, to decide whether to print the effective config.
// Downstream: term.IsTerminal.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Run one measurement session end to end.
// Key aspects: Returns the process exit code instead of calling os.Exit so
// deferred cleanup always runs.
// Upstream: main.
// Downstream: usb2snes.Connect, sampler.Machine, csvlog.Logger.
func run() int {
	flags := parseFlags()

	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Config: %v\n", err)
			return exitStartup
		}
		cfg = loaded
	}
	applyFlags(cfg, flags)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config: %v\n", err)
		return exitStartup
	}

	fanout, err := setupLogging(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging: %v\n", err)
	}
	defer fanout.Close()
	log.SetOutput(fanout)
	log.SetFlags(0)

	if stdoutIsTerminal() && !cfg.UI.Dashboard {
		cfg.Print()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := usb2snes.Connect(ctx, usb2snes.WebSocketURL(cfg.Bridge.Address), usb2snes.Options{
		PreferredDevice:  cfg.Bridge.PreferredDevice,
		ReadTimeout:      cfg.ReadTimeout(),
		HandshakeTimeout: cfg.HandshakeTimeout(),
	})
	if err != nil {
		log.Printf("Bridge: %v", err)
		return exitStartup
	}
	defer client.Close()
	log.Printf("Connected to %s via %s", client.DeviceName(), cfg.Bridge.Address)

	if rom, err := client.PlayingBasename(ctx); err != nil {
		log.Printf("Bridge: could not determine the playing ROM: %v", err)
	} else if rom == "" {
		log.Printf("Warning: no ROM is playing; the measurement screen will never appear")
	} else {
		log.Printf("Playing ROM: %s", rom)
	}

	var store *archive.Store
	if cfg.Archive.Enabled {
		store, err = archive.Open(cfg.Archive.Dir, cfg.Archive.MaxSnapshots)
		if err != nil {
			log.Printf("Archive: %v", err)
			return exitStartup
		}
		defer store.Close()
	}

	machine := sampler.New(client, sampler.Config{
		Offset:  tilemap.SnapshotOffset,
		Size:    tilemap.SnapshotSize,
		Cadence: cfg.Cadence(),
		Budget:  cfg.Budget(),
		Trace:   fanout.Debugf,
		Observe: func(ts time.Time, raw []byte, accepted bool) {
			if store != nil {
				store.Add(ts, raw, accepted)
			}
		},
	})

	csvPath := cfg.Output.CSVPath
	if csvPath == "" {
		csvPath = csvlog.DefaultPath(time.Now().UTC())
	}
	writer, err := csvlog.Create(csvPath)
	if err != nil {
		log.Printf("Output: %v", err)
		return exitStartup
	}
	defer writer.Close()
	log.Printf("Logging to %s every %s", csvPath, cfg.Interval())

	var sinks []csvlog.RecordSink

	if cfg.Recorder.Enabled {
		rec, err := recorder.New(cfg.Recorder.DBPath, cfg.Recorder.Limit)
		if err != nil {
			log.Printf("Recorder: %v", err)
			return exitStartup
		}
		defer rec.Close()
		sinks = append(sinks, rec)
	}

	if cfg.Publish.Enabled {
		pub, err := publish.New(cfg.Publish.Broker, cfg.Publish.Port, cfg.Publish.Topic)
		if err != nil {
			log.Printf("Publish: %v", err)
			return exitStartup
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	dash := ui.New(cfg.UI.Dashboard, func() {
		select {
		case sigChan <- os.Interrupt:
		default:
		}
	})
	if dash != nil {
		fanout.SetConsoleSink(dash.EventWriter(), true)
		sinks = append(sinks, dash)
		go func() {
			if err := dash.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "UI: %v\n", err)
			}
		}()
		defer func() {
			dash.Stop()
			fanout.SetConsoleSink(os.Stdout, true)
		}()
	}

	logger := csvlog.NewLogger(writer, machine, cfg.Interval(), sinks...)

	start := time.Now()
	errCh := make(chan error, 1)
	go func() { errCh <- logger.Run(ctx) }()

	var runErr error
	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		cancel()
		runErr = <-errCh
		if errors.Is(runErr, context.Canceled) {
			runErr = nil
		}
	case runErr = <-errCh:
		cancel()
	}

	logSummary(writer.Rows(), time.Since(start), csvPath)

	switch {
	case runErr == nil:
		return exitOK
	case errors.Is(runErr, sampler.ErrExpired):
		log.Printf("Stabilization budget expired; restart the measurement ROM and try again")
		return exitExpired
	case errors.Is(runErr, tilemap.ErrGeometry):
		log.Printf("Snapshot decode failed: %v", runErr)
		return exitStructural
	default:
		log.Printf("Session failed: %v", runErr)
		return exitStartup
	}
}

// Purpose: Print the end-of-session summary line.
// Key aspects: Uses humanized counts so long sessions stay readable.
// Upstream: run.
// Downstream: humanize.Comma.
func logSummary(rows int, elapsed time.Duration, path string) {
	log.Printf("Session summary: %s rows in %s (%s)",
		humanize.Comma(int64(rows)), elapsed.Round(time.Second), path)
}
