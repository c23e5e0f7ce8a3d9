/*
 * GPIB488 - GPIB control state tests
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
	"testing"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/simbus"
)

func TestPatterns(t *testing.T) {
	tests := []struct {
		phase   Phase
		dir     uint8
		dirMsk  uint8
		level   uint8
		lvlMsk  uint8
		release bool
	}{
		{CINI, 0b10111000, 0b11111111, 0b11011111, 0b11111111, false},
		{CIDS, 0b10111000, 0b10011110, 0b11011111, 0b10011110, false},
		{CCMS, 0b10111001, 0b10011111, 0b01011111, 0b10011111, false},
		{CLAS, 0b10100110, 0b10011110, 0b11011000, 0b10011110, false},
		{CTAS, 0b10111001, 0b10011110, 0b11011111, 0b10011110, false},
		{DINI, 0b00000000, 0b11111111, 0b11111111, 0b11111111, true},
		{DIDS, 0b00000000, 0b00001110, 0b11111111, 0b00001110, true},
		{DLAS, 0b00000110, 0b00011110, 0b11111001, 0b00011110, false},
		{DTAS, 0b00011000, 0b00011110, 0b11111001, 0b00011110, false},
	}

	for _, test := range tests {
		pat, ok := PatternOf(test.phase)
		if !ok {
			t.Errorf("No pattern for %s", test.phase)
			continue
		}
		if pat.Dir != test.dir || pat.DirMask != test.dirMsk || pat.Level != test.level ||
			pat.LevelMask != test.lvlMsk || pat.Release != test.release {
			t.Errorf("Pattern %s wrong: %+v", test.phase, pat)
		}

		sim := simbus.New()
		port := sim.Port("p")
		port.SetDataBus(0x5a)
		bus := New(port, config.New())
		bus.SetControls(test.phase)
		dir, level := port.Driven()
		if dir&test.dirMsk != test.dir&test.dirMsk {
			t.Errorf("Phase %s direction %08b", test.phase, dir)
		}
		if level&test.lvlMsk != test.level&test.lvlMsk {
			t.Errorf("Phase %s level %08b", test.phase, level)
		}
		// Lines outside the masks keep their idle state.
		if dir&^test.dirMsk != 0 || level&^test.lvlMsk != ^test.lvlMsk {
			t.Errorf("Phase %s touched unmasked lines: %08b %08b", test.phase, dir, level)
		}
		if port.DataDriven() == test.release {
			t.Errorf("Phase %s data bus driven: %v", test.phase, port.DataDriven())
		}
		if bus.Phase() != test.phase {
			t.Errorf("Phase not recorded: %s", bus.Phase())
		}

		// Applying again changes nothing.
		bus.SetControls(test.phase)
		dir2, level2 := port.Driven()
		if dir2 != dir || level2 != level {
			t.Errorf("Phase %s not idempotent", test.phase)
		}
	}
}

func TestNoPattern(t *testing.T) {
	if _, ok := PatternOf(PhaseNone); ok {
		t.Errorf("Pattern for stopped interface")
	}
	if _, ok := PatternOf(Phase(20)); ok {
		t.Errorf("Pattern for unknown phase")
	}
}

func TestStop(t *testing.T) {
	sim := simbus.New()
	port := sim.Port("p")
	bus := New(port, config.New())
	bus.SetControls(CCMS)
	bus.Stop()
	dir, level := port.Driven()
	if dir != 0 || level != 0xff || port.DataDriven() {
		t.Errorf("Stop left lines driven: %08b %08b", dir, level)
	}
	if bus.Phase() != PhaseNone {
		t.Errorf("Stop phase: %s", bus.Phase())
	}
}

func TestStartModes(t *testing.T) {
	sim := simbus.New()
	bus := newEngine(sim, "p", config.Controller, 1)
	bus.StartDeviceMode()
	if bus.IsController() || bus.Phase() != DIDS || !bus.IsIdle() {
		t.Errorf("Device mode not idle: %s", bus.Phase())
	}
	bus.StartControllerMode()
	if !bus.IsController() || bus.Phase() != CINI {
		t.Errorf("Controller mode not initialised: %s", bus.Phase())
	}
	// Only REN stays asserted.
	if sim.Lines() != 0b11011111 {
		t.Errorf("Lines after controller start: %08b", sim.Lines())
	}
	bus.SetControls(CIDS)
	if !bus.IsIdle() || bus.IsAddressedToListen() || bus.IsAddressedToTalk() {
		t.Errorf("Controller state queries wrong")
	}
}
