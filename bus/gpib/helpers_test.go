/*
 * GPIB488 - GPIB bus engine test helpers
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
	"time"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/lines"
	"github.com/rcornwell/gpib488/bus/simbus"
)

// Clock that moves forward on every reading.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
}

// Create engine on a port of sim.
func newEngine(sim *simbus.Bus, name string, mode config.Mode, addr int) *Bus {
	cfg := config.New()
	_ = cfg.SetMode(mode)
	_ = cfg.SetPrimaryAddr(addr)
	bus := New(sim.Port(name), cfg)
	bus.SetTiming(Timing{})
	return bus
}

// Engine whose timeouts pass in a few thousand polls.
func newFakeEngine(sim *simbus.Bus, name string, mode config.Mode, addr int) *Bus {
	bus := newEngine(sim, name, mode, addr)
	bus.SetClock(&fakeClock{step: time.Millisecond})
	return bus
}

// Make a raw port drive lines low.
func drive(port *simbus.Port, sig lines.Signal) {
	port.SetControls(uint8(sig), uint8(sig), lines.Direction)
	port.SetControls(0, uint8(sig), lines.Level)
}

// Wait for the controller to assert ATN.
func waitATN(bus *Bus, limit time.Duration) bool {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		if bus.IsAsserted(lines.ATN) {
			return true
		}
	}
	return false
}

// Service attention until n command bytes have been taken. The
// controller may run several periods of ATN together, flags of all
// periods are merged.
func serveCommands(dev *Bus, n int) (Attention, error) {
	var all Attention
	for len(all.Commands) < n {
		if !waitATN(dev, 2*time.Second) {
			return all, errors.New("no attention")
		}
		att, err := dev.ServiceAttention()
		if err != nil {
			return all, err
		}
		all.Commands = append(all.Commands, att.Commands...)
		all.Listen = all.Listen || att.Listen
		all.Talk = all.Talk || att.Talk
		all.Unlisten = all.Unlisten || att.Unlisten
		all.Untalk = all.Untalk || att.Untalk
		all.Clear = all.Clear || att.Clear
		all.Trigger = all.Trigger || att.Trigger
		all.LocalLockout = all.LocalLockout || att.LocalLockout
		all.GoToLocal = all.GoToLocal || att.GoToLocal
		all.SerialPoll = all.SerialPoll || att.SerialPoll
		if att.Secondary != 0 {
			all.Secondary = att.Secondary
		}
	}
	return all, nil
}
