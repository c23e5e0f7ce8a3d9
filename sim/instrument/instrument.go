/*
 * GPIB488 - Simulated GPIB instrument
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

package instrument

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/gpib"
	"github.com/rcornwell/gpib488/bus/simbus"
	"github.com/rcornwell/gpib488/session"
	"github.com/rcornwell/gpib488/util/debug"
)

// Config describes one simulated instrument.
type Config struct {
	Addr   int    // Primary address.
	IDN    string // Reply to *IDN?.
	Status uint8  // Initial status byte.
}

// Debug options.
const (
	debugMsg = 1 << iota
	debugCmd
)

var debugMsk = debug.Register("INSTRUMENT", map[string]int{
	"MSG": debugMsg,
	"CMD": debugCmd,
})

// Instrument is a device on the simulated bus. It answers *IDN? and *STB?,
// echoes any other query and counts triggers.
type Instrument struct {
	cfg      Config
	core     *session.Core
	bus      *gpib.Bus
	mu       sync.Mutex
	last     []byte // Last message received.
	triggers int    // GET count.
	clears   int    // DCL and SDC count.
}

// Attach an instrument to sim.
func New(sim *simbus.Bus, cfg Config) (*Instrument, error) {
	busCfg := config.New()
	if err := busCfg.SetMode(config.Device); err != nil {
		return nil, err
	}
	if err := busCfg.SetPrimaryAddr(cfg.Addr); err != nil {
		return nil, fmt.Errorf("instrument: %w", err)
	}
	busCfg.SetEOI(true)
	busCfg.SetStatus(cfg.Status)
	if cfg.IDN == "" {
		cfg.IDN = fmt.Sprintf("GPIB488,SIMULATED,%d,1.0", cfg.Addr)
	}

	in := &Instrument{cfg: cfg}
	in.bus = gpib.New(sim.Port(fmt.Sprintf("inst%d", cfg.Addr)), busCfg)
	in.bus.SetLogger(slog.Default().With("instrument", cfg.Addr))
	in.core = session.New(in.bus)
	in.core.SetLogger(slog.Default().With("instrument", cfg.Addr))
	in.core.OnAttention(in.attention)
	return in, nil
}

// Addr returns the primary address.
func (in *Instrument) Addr() int {
	return in.cfg.Addr
}

// Bus returns the engine of the instrument.
func (in *Instrument) Bus() *gpib.Bus {
	return in.bus
}

// Run the instrument until ctx is done.
func (in *Instrument) Run(ctx context.Context) error {
	in.core.SetOutput(in)
	go in.core.Start()
	<-ctx.Done()
	in.core.Stop()
	return nil
}

// Write takes one message from the controller.
func (in *Instrument) Write(msg []byte) (int, error) {
	text := strings.TrimRight(string(msg), "\r\n")
	debugMsk.DebugAddrf(in.cfg.Addr, debugMsg, "received %q", text)
	in.mu.Lock()
	in.last = []byte(text)
	in.mu.Unlock()

	switch {
	case strings.EqualFold(text, "*IDN?"):
		in.core.Queue([]byte(in.cfg.IDN))
	case strings.EqualFold(text, "*STB?"):
		in.core.Queue([]byte(fmt.Sprintf("%d", in.bus.Config().Status())))
	case strings.HasPrefix(strings.ToUpper(text), "SRQ "):
		var status uint8
		if _, err := fmt.Sscanf(text[4:], "%d", &status); err == nil {
			in.bus.SetStatus(status)
		}
	case strings.HasSuffix(text, "?"):
		in.core.Queue([]byte(text))
	}
	return len(msg), nil
}

// Called after each period of attention.
func (in *Instrument) attention(att gpib.Attention) {
	debugMsk.DebugAddrf(in.cfg.Addr, debugCmd, "commands % x", att.Commands)
	in.mu.Lock()
	defer in.mu.Unlock()
	if att.Trigger {
		in.triggers++
		in.core.Queue([]byte(fmt.Sprintf("TRIG %d", in.triggers)))
	}
	if att.Clear {
		in.clears++
		in.last = nil
	}
}

// Last message received.
func (in *Instrument) Last() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return string(in.last)
}

// Number of triggers and clears seen.
func (in *Instrument) Counts() (int, int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.triggers, in.clears
}
