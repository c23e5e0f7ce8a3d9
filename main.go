/*
 * GPIB488 - main
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"
	"golang.org/x/sync/errgroup"
	"periph.io/x/host/v3"

	"github.com/rcornwell/gpib488/bus/gpib"
	"github.com/rcornwell/gpib488/bus/gpiolines"
	"github.com/rcornwell/gpib488/bus/lines"
	"github.com/rcornwell/gpib488/bus/simbus"
	"github.com/rcornwell/gpib488/command/parser"
	"github.com/rcornwell/gpib488/command/reader"
	"github.com/rcornwell/gpib488/config/busconfig"
	"github.com/rcornwell/gpib488/config/store"
	"github.com/rcornwell/gpib488/macro"
	"github.com/rcornwell/gpib488/monitor"
	"github.com/rcornwell/gpib488/session"
	"github.com/rcornwell/gpib488/sim/instrument"
	"github.com/rcornwell/gpib488/telnet"
	"github.com/rcornwell/gpib488/util/logger"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Log debug to console")
	optEEPROM := getopt.StringLong("eeprom", 'e', "", "Configuration store file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Unable to create log file: "+err.Error())
			os.Exit(1)
		}
		defer file.Close()
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	log := slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, *optDebug))
	slog.SetDefault(log)

	log.Info("GPIB488 Started")
	settings := busconfig.New()
	if *optConfig != "" {
		var err error
		settings, err = busconfig.Load(*optConfig)
		if err != nil {
			log.Error(err.Error())
			os.Exit(1)
		}
	}
	if *optEEPROM != "" {
		settings.EEPROM = *optEEPROM
	}

	if err := run(settings); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
	log.Info("Servers stopped.")
}

// Open the line interface, hardware pins or a simulated bus.
func openLines(set *busconfig.Settings) (lines.Interface, *simbus.Bus, error) {
	if set.Simulated() {
		sim := simbus.New()
		return sim.Port("interface"), sim, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("unable to initialise GPIO host: %w", err)
	}
	li, err := gpiolines.New(*set.Layout)
	if err != nil {
		return nil, nil, err
	}
	return li, nil, nil
}

func run(set *busconfig.Settings) error {
	initial := *set.Bus

	var st *store.Store
	if set.EEPROM != "" {
		var err error
		st, err = store.Open(set.EEPROM)
		if err != nil {
			return err
		}
		err = st.Load(set.Bus)
		switch {
		case errors.Is(err, store.ErrClear):
		case err != nil:
			slog.Warn("Saved configuration not loaded", "error", err.Error())
		default:
			slog.Info("Loaded saved configuration", "file", st.Name())
		}
	}

	li, sim, err := openLines(set)
	if err != nil {
		return err
	}
	bus := gpib.New(li, set.Bus)
	core := session.New(bus)

	env := &parser.Env{Core: core, Out: os.Stdout, Store: st, Initial: &initial}
	if len(set.Macros) != 0 {
		env.Macros = macro.New(set.Macros, env)
	}
	mux := telnet.NewMux(*env, telnet.MaxClients)
	mux.SetFallback(os.Stdout)
	core.SetOutput(mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if sim != nil {
		for _, cfg := range set.Simulate {
			in, err := instrument.New(sim, cfg)
			if err != nil {
				return err
			}
			g.Go(func() error {
				return in.Run(ctx)
			})
		}
	} else if len(set.Simulate) != 0 {
		slog.Warn("Simulated instruments need the simulated bus, ignored")
	}

	if set.MonitorPort != "" {
		if sim == nil {
			slog.Warn("Bus monitor needs the simulated bus, not started")
		} else {
			mon := monitor.New()
			if err := mon.Listen(set.MonitorPort); err != nil {
				mon.Stop()
				return err
			}
			defer mon.Stop()
			sim.Trace(mon.Observe)
		}
	}

	go core.Start()
	defer core.Stop()

	if set.TelnetPort != "" {
		srv, err := telnet.Start(set.TelnetPort, mux)
		if err != nil {
			return err
		}
		defer srv.Stop()
	}

	// Without a terminal the network port keeps running after input ends.
	interactive := reader.Interactive()
	g.Go(func() error {
		err := reader.ConsoleReader(env)
		if interactive || set.TelnetPort == "" {
			stop()
		}
		return err
	})

	<-ctx.Done()
	stop()
	core.Stop()
	if !interactive {
		return g.Wait()
	}
	// The console may still be waiting for a line.
	return nil
}
