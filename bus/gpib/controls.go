/*
 * GPIB488 - GPIB control states
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
	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/lines"
)

// Phase is a named pattern of the eight control lines.
type Phase uint8

const (
	PhaseNone Phase = iota // Interface stopped.
	CINI                   // Controller initialise.
	CIDS                   // Controller idle.
	CCMS                   // Controller sending commands.
	CLAS                   // Controller listening.
	CTAS                   // Controller talking.
	DINI                   // Device initialise.
	DIDS                   // Device idle.
	DLAS                   // Device listening.
	DTAS                   // Device talking.
)

var phaseNames = []string{"none", "CINI", "CIDS", "CCMS", "CLAS", "CTAS", "DINI", "DIDS", "DLAS", "DTAS"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Line pattern for a phase, bits 7-ATN 6-SRQ 5-REN 4-EOI 3-DAV 2-NRFD 1-NDAC 0-IFC.
type Pattern struct {
	Dir       uint8 // 1 = output.
	DirMask   uint8 // Lines direction applies to.
	Level     uint8 // 1 = HIGH.
	LevelMask uint8 // Lines level applies to.
	Release   bool  // Return data bus to inputs.
}

var patterns = [...]Pattern{
	CINI: {Dir: 0b10111000, DirMask: 0b11111111, Level: 0b11011111, LevelMask: 0b11111111},
	CIDS: {Dir: 0b10111000, DirMask: 0b10011110, Level: 0b11011111, LevelMask: 0b10011110},
	CCMS: {Dir: 0b10111001, DirMask: 0b10011111, Level: 0b01011111, LevelMask: 0b10011111},
	CLAS: {Dir: 0b10100110, DirMask: 0b10011110, Level: 0b11011000, LevelMask: 0b10011110},
	CTAS: {Dir: 0b10111001, DirMask: 0b10011110, Level: 0b11011111, LevelMask: 0b10011110},
	DINI: {Dir: 0b00000000, DirMask: 0b11111111, Level: 0b11111111, LevelMask: 0b11111111, Release: true},
	DIDS: {Dir: 0b00000000, DirMask: 0b00001110, Level: 0b11111111, LevelMask: 0b00001110, Release: true},
	DLAS: {Dir: 0b00000110, DirMask: 0b00011110, Level: 0b11111001, LevelMask: 0b00011110},
	DTAS: {Dir: 0b00011000, DirMask: 0b00011110, Level: 0b11111001, LevelMask: 0b00011110},
}

// PatternOf returns the line pattern of a phase.
func PatternOf(phase Phase) (Pattern, bool) {
	if phase == PhaseNone || int(phase) >= len(patterns) {
		return Pattern{}, false
	}
	return patterns[phase], true
}

// SetControls drives the control lines to the pattern of phase and makes
// it the current phase.
func (bus *Bus) SetControls(phase Phase) {
	pat, ok := PatternOf(phase)
	if !ok {
		return
	}
	bus.lines.SetControls(pat.Dir, pat.DirMask, lines.Direction)
	bus.lines.SetControls(pat.Level, pat.LevelMask, lines.Level)
	if pat.Release {
		bus.lines.ReleaseDataBus()
	}
	if bus.phase != phase {
		debugMsk.Debugf(debugCtrl, "phase %s -> %s", bus.phase, phase)
	}
	bus.phase = phase
}

// Phase returns the current control state.
func (bus *Bus) Phase() Phase {
	return bus.phase
}

// Return to the idle phase of the current role.
func (bus *Bus) idle() {
	if bus.cfg.IsController() {
		bus.SetControls(CIDS)
	} else {
		bus.SetControls(DIDS)
	}
}

// Release every line and stop driving the bus.
func (bus *Bus) Stop() {
	bus.phase = PhaseNone
	bus.lines.SetControls(0, lines.AllLines, lines.Direction)
	bus.lines.SetControls(lines.AllLines, lines.AllLines, lines.Level)
	bus.lines.ReleaseDataBus()
}

// Start the bus in the configured role.
func (bus *Bus) Begin() {
	if bus.cfg.IsController() {
		bus.StartControllerMode()
	} else {
		bus.StartDeviceMode()
	}
}

// Switch to device role and go idle.
func (bus *Bus) StartDeviceMode() {
	bus.Stop()
	bus.delay(bus.timing.ModeSettle)
	_ = bus.cfg.SetMode(config.Device)
	bus.addressed = false
	bus.listen = false
	bus.talk = false
	bus.spe = false
	bus.SetControls(DINI)
	bus.SetControls(DIDS)
	bus.log.Debug("Device mode started", "address", bus.cfg.PrimaryAddr())
}

// Switch to controller role, claim the bus with IFC and address the
// configured device to listen.
func (bus *Bus) StartControllerMode() {
	bus.SendAllClear()
	bus.Stop()
	bus.delay(bus.timing.ModeSettle)
	_ = bus.cfg.SetMode(config.Controller)
	bus.addressed = false
	bus.listen = false
	bus.talk = false
	bus.spe = false
	bus.SetControls(CINI)
	bus.lines.ReleaseDataBus()
	_ = bus.SendIFC()
	bus.log.Debug("Controller mode started")
	if bus.cfg.PrimaryAddr() > 1 {
		if err := bus.AddressDevice(bus.cfg.PrimaryAddr(), false); err != nil {
			bus.log.Debug("Initial address failed", "error", err.Error())
		}
	}
}

// State queries.
func (bus *Bus) IsController() bool {
	return bus.cfg.IsController()
}

func (bus *Bus) IsAddressedToListen() bool {
	return bus.phase == DLAS
}

func (bus *Bus) IsAddressedToTalk() bool {
	return bus.phase == DTAS
}

func (bus *Bus) IsIdle() bool {
	return bus.phase == DIDS || bus.phase == CIDS
}
