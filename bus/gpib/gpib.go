/*
 * GPIB488 - GPIB bus engine
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

package gpib

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/lines"
	"github.com/rcornwell/gpib488/util/debug"
)

// Bus command bytes, sent with ATN asserted.
const (
	GTL uint8 = 0x01 // Go to local.
	SDC uint8 = 0x04 // Selected device clear.
	PPC uint8 = 0x05 // Parallel poll configure.
	GET uint8 = 0x08 // Group execute trigger.
	TCT uint8 = 0x09 // Take control.
	LLO uint8 = 0x11 // Local lockout.
	DCL uint8 = 0x14 // Device clear.
	PPU uint8 = 0x15 // Parallel poll unconfigure.
	SPE uint8 = 0x18 // Serial poll enable.
	SPD uint8 = 0x19 // Serial poll disable.
	LAD uint8 = 0x20 // Listen address base.
	UNL uint8 = 0x3f // Unlisten.
	TAD uint8 = 0x40 // Talk address base.
	UNT uint8 = 0x5f // Untalk.
	SAD uint8 = 0x60 // Secondary address base.
)

// Control characters.
const (
	ETX = 0x03
	LF  = 0x0a
	CR  = 0x0d
	ESC = 0x1b
)

// Service request bit of the status byte.
const StatusRQS uint8 = 0x40

// Point at which a single byte handshake stopped.
type Stage uint8

const (
	StageNone     Stage = iota // Completed.
	StageIFC                   // Aborted, IFC asserted.
	StageATN                   // Aborted, ATN changed.
	StageNDACLow               // Timed out waiting for NDAC low.
	StageNRFDHigh              // Timed out waiting for NRFD high.
	StageNRFDLow               // Timed out waiting for NRFD low.
	StageNDACHigh              // Timed out waiting for NDAC high.
	StageDAVLow                // Timed out waiting for DAV low.
	StageDAVHigh               // Timed out waiting for DAV high.
)

var stageNames = []string{
	"complete",
	"interface clear",
	"attention",
	"waiting for NDAC low",
	"waiting for NRFD high",
	"waiting for NRFD low",
	"waiting for NDAC high",
	"waiting for DAV low",
	"waiting for DAV high",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage %d", uint8(s))
}

// Timeout reports whether the stage is a timeout rather than an abort.
func (s Stage) Timeout() bool {
	return s >= StageNDACLow
}

var (
	ErrNotController = errors.New("not controller in charge")
	ErrNotDevice     = errors.New("not in device mode")
	ErrAddressing    = errors.New("addressing failed")
	ErrBreak         = errors.New("transfer interrupted")
)

// HandshakeError reports a failed single byte transfer.
type HandshakeError struct {
	Op    string // "read" or "write".
	Stage Stage  // Where it stopped.
}

func (e *HandshakeError) Error() string {
	if e.Stage.Timeout() {
		return "gpib " + e.Op + ": timeout " + e.Stage.String()
	}
	return "gpib " + e.Op + ": aborted by " + e.Stage.String()
}

// Timeout reports whether the handshake timed out.
func (e *HandshakeError) Timeout() bool {
	return e.Stage.Timeout()
}

// Delays used when driving the bus. Values depend on the hardware.
type Timing struct {
	EOIPulse   time.Duration // Width of EOI pulse after a write.
	IFCPulse   time.Duration // Width of IFC pulse.
	ModeSettle time.Duration // Settle time when changing role.
	ClearHold  time.Duration // REN/ATN hold during all clear.
	Debounce   time.Duration // Delay before un-addressing.
}

// Default timing for a microcontroller class interface.
func DefaultTiming() Timing {
	return Timing{
		EOIPulse:   40 * time.Microsecond,
		IFCPulse:   150 * time.Microsecond,
		ModeSettle: 200 * time.Microsecond,
		ClearHold:  40 * time.Millisecond,
		Debounce:   30 * time.Microsecond,
	}
}

// Clock supplies monotonic time and delays to the engine.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Short delays spin, the scheduler can't sleep for microseconds.
func (systemClock) Sleep(d time.Duration) {
	if d >= time.Millisecond {
		time.Sleep(d)
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}

// SystemClock is the wall clock, using its monotonic reading.
var SystemClock Clock = systemClock{}

// Debug options.
const (
	debugCmd = 1 << iota
	debugData
	debugCtrl
	debugHandshake
)

var debugMsk = debug.Register("GPIB", map[string]int{
	"CMD":       debugCmd,
	"DATA":      debugData,
	"CTRL":      debugCtrl,
	"HANDSHAKE": debugHandshake,
})

// Bus is the GPIB engine for one interface. It is not safe for concurrent
// use, except SignalBreak.
type Bus struct {
	lines     lines.Interface
	cfg       *config.Config
	clock     Clock
	timing    Timing
	log       *slog.Logger
	phase     Phase       // Current control state.
	addressed bool        // Controller has a device addressed.
	listen    bool        // Device addressed to listen.
	talk      bool        // Device addressed to talk.
	spe       bool        // Device in serial poll mode.
	txBreak   atomic.Bool // Break requested.
}

// Create a new engine on line interface li using configuration cfg.
func New(li lines.Interface, cfg *config.Config) *Bus {
	return &Bus{
		lines:  li,
		cfg:    cfg,
		clock:  SystemClock,
		timing: DefaultTiming(),
		log:    slog.Default(),
	}
}

// Replace clock, used by tests.
func (bus *Bus) SetClock(clock Clock) {
	bus.clock = clock
}

func (bus *Bus) SetTiming(timing Timing) {
	bus.timing = timing
}

func (bus *Bus) SetLogger(log *slog.Logger) {
	bus.log = log
}

// Config returns the configuration the engine runs from.
func (bus *Bus) Config() *config.Config {
	return bus.cfg
}

// Lines returns the line interface.
func (bus *Bus) Lines() lines.Interface {
	return bus.lines
}

// SignalBreak asks a transfer in progress to stop. Safe from any goroutine.
func (bus *Bus) SignalBreak() {
	bus.txBreak.Store(true)
}

// Check if a control line is asserted (LOW).
func (bus *Bus) IsAsserted(sig lines.Signal) bool {
	return bus.lines.ReadLine(sig) == gpio.Low
}

// Per byte timeout.
func (bus *Bus) timeout() time.Duration {
	return time.Duration(bus.cfg.ReadTimeout()) * time.Millisecond
}

// Wait for d, skipping zero delays.
func (bus *Bus) delay(d time.Duration) {
	if d > 0 {
		bus.clock.Sleep(d)
	}
}
