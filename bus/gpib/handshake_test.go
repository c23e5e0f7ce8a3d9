/*
 * GPIB488 - GPIB three wire handshake tests
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
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/lines"
	"github.com/rcornwell/gpib488/bus/simbus"
)

// Each stall point of the talker times out with its own stage.
func TestWriteTimeouts(t *testing.T) {
	tests := []struct {
		name  string
		setup func(sim *simbus.Bus, peer *simbus.Port)
		stage Stage
	}{
		{"no listener", func(_ *simbus.Bus, _ *simbus.Port) {}, StageNDACLow},
		{"not ready", func(_ *simbus.Bus, peer *simbus.Port) {
			drive(peer, lines.NDAC|lines.NRFD)
		}, StageNRFDHigh},
		{"not taking", func(_ *simbus.Bus, peer *simbus.Port) {
			drive(peer, lines.NDAC)
		}, StageNRFDLow},
		{"not accepting", func(sim *simbus.Bus, peer *simbus.Port) {
			drive(peer, lines.NDAC)
			// Listener takes the byte but never accepts it.
			sim.Trace(func(ev simbus.Event) {
				if ev.Lines&uint8(lines.DAV) == 0 {
					drive(peer, lines.NRFD|lines.NDAC)
				}
			})
		}, StageNDACHigh},
	}

	for _, test := range tests {
		sim := simbus.New()
		bus := newFakeEngine(sim, "ctl", config.Controller, 1)
		peer := sim.Port("peer")
		bus.SetControls(CTAS)
		test.setup(sim, peer)
		stage := bus.WriteByte(0x41, false)
		if stage != test.stage {
			t.Errorf("Write %s got stage: %s expected: %s", test.name, stage, test.stage)
		}
		if !stage.Timeout() {
			t.Errorf("Write %s stage not a timeout: %s", test.name, stage)
		}
		if sim.Asserted(lines.DAV) || sim.Asserted(lines.EOI) {
			t.Errorf("Write %s left DAV or EOI asserted", test.name)
		}
		if data := sim.Data(); data != 0 {
			t.Errorf("Write %s left data %02x on the bus", test.name, data)
		}
	}
}

func TestReadTimeouts(t *testing.T) {
	sim := simbus.New()
	bus := newFakeEngine(sim, "ctl", config.Controller, 1)
	bus.SetControls(CLAS)
	_, _, stage := bus.ReadByte(false)
	if stage != StageDAVLow {
		t.Errorf("Read with no talker got stage: %s", stage)
	}

	// Talker that never releases DAV.
	peer := sim.Port("peer")
	peer.SetDataBus(0x33)
	drive(peer, lines.DAV)
	_, _, stage = bus.ReadByte(false)
	if stage != StageDAVHigh {
		t.Errorf("Read with stuck DAV got stage: %s", stage)
	}
}

// Timeout is elapsed time, not number of polls.
func TestTimeoutIsTime(t *testing.T) {
	sim := simbus.New()
	bus := newEngine(sim, "ctl", config.Controller, 1)
	clock := &fakeClock{step: 10 * time.Millisecond}
	bus.SetClock(clock)
	_ = bus.cfg.SetReadTimeout(100)
	bus.SetControls(CTAS)
	start := clock.now
	bus.WriteByte(0, false)
	elapsed := clock.now.Sub(start)
	if elapsed < 100*time.Millisecond || elapsed > 130*time.Millisecond {
		t.Errorf("Timeout after %v expected 100ms", elapsed)
	}
}

// Controller takes the bus while the byte is on the data lines.
func TestDeviceWriteAbortMidByte(t *testing.T) {
	sim := simbus.New()
	dev := newFakeEngine(sim, "dev", config.Device, 3)
	peer := sim.Port("ctl")
	dev.SetControls(DTAS)
	drive(peer, lines.NDAC)
	sim.Trace(func(ev simbus.Event) {
		if ev.Lines&uint8(lines.DAV) == 0 && ev.Lines&uint8(lines.ATN) != 0 {
			drive(peer, lines.ATN)
		}
	})
	if stage := dev.WriteByte(0x41, true); stage != StageATN {
		t.Errorf("Device write ignored ATN: %s", stage)
	}
	if data := sim.Data(); data != 0 {
		t.Errorf("Device left data %02x on the bus", data)
	}
	if sim.Asserted(lines.DAV) || sim.Asserted(lines.EOI) {
		t.Errorf("Device left DAV or EOI asserted")
	}
	if dev.Phase() != DLAS {
		t.Errorf("Device not listening after ATN: %s", dev.Phase())
	}
}

func TestDeviceWriteAbort(t *testing.T) {
	sim := simbus.New()
	dev := newFakeEngine(sim, "dev", config.Device, 3)
	peer := sim.Port("ctl")
	dev.SetControls(DTAS)
	drive(peer, lines.ATN)
	if stage := dev.WriteByte(0x55, true); stage != StageATN {
		t.Errorf("Device write ignored ATN: %s", stage)
	}
	if dev.Phase() != DLAS {
		t.Errorf("Device not listening after ATN: %s", dev.Phase())
	}

	peer.SetControls(0xff, 0xff, lines.Level)
	drive(peer, lines.IFC)
	dev.SetControls(DTAS)
	if stage := dev.WriteByte(0x55, false); stage != StageIFC {
		t.Errorf("Device write ignored IFC: %s", stage)
	}
}

func TestDeviceReadAbort(t *testing.T) {
	sim := simbus.New()
	dev := newFakeEngine(sim, "dev", config.Device, 3)
	peer := sim.Port("ctl")
	dev.SetControls(DLAS)
	drive(peer, lines.IFC)
	if _, _, stage := dev.ReadByte(false); stage != StageIFC {
		t.Errorf("Device read ignored IFC: %s", stage)
	}

	// ATN set after entry.
	peer.SetControls(0xff, 0xff, lines.Level)
	drive(peer, lines.ATN)
	if _, _, stage := dev.readByte(false, false); stage != StageATN {
		t.Errorf("Device read ignored ATN: %s", stage)
	}

	// ATN released after entry.
	peer.SetControls(0xff, 0xff, lines.Level)
	if _, _, stage := dev.readByte(false, true); stage != StageATN {
		t.Errorf("Device read ignored ATN release: %s", stage)
	}

	// Controller is not interrupted by lines it drives itself.
	ctl := newFakeEngine(sim, "ctl2", config.Controller, 1)
	drive(peer, lines.IFC)
	ctl.SetControls(CLAS)
	if _, _, stage := ctl.ReadByte(false); stage != StageDAVLow {
		t.Errorf("Controller read aborted: %s", stage)
	}
}

// A byte written by one engine is read unchanged by another, EOI
// arrives only with the byte that carried it.
func TestRoundTrip(t *testing.T) {
	values := []uint8{0x00, 0x01, 0x55, 0xaa, 0x80, 0xff}
	for _, eoi := range []bool{false, true} {
		sim := simbus.New()
		ctl := newEngine(sim, "ctl", config.Controller, 1)
		dev := newEngine(sim, "dev", config.Device, 2)
		ctl.cfg.SetEOI(true)
		ctl.SetControls(CTAS)
		dev.SetControls(DLAS)

		var got []uint8
		var eois []bool
		var g errgroup.Group
		g.Go(func() error {
			for i, v := range values {
				last := eoi && i == len(values)-1
				if stage := ctl.WriteByte(v, last); stage != StageNone {
					return fmt.Errorf("write %02x: %s", v, stage)
				}
			}
			return nil
		})
		g.Go(func() error {
			for range values {
				db, seen, stage := dev.ReadByte(true)
				if stage != StageNone {
					return fmt.Errorf("read: %s", stage)
				}
				got = append(got, db)
				eois = append(eois, seen)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			t.Fatalf("Round trip failed: %v", err)
		}
		for i, v := range values {
			if got[i] != v {
				t.Errorf("Byte %d got: %02x expected: %02x", i, got[i], v)
			}
			want := eoi && i == len(values)-1
			if eois[i] != want {
				t.Errorf("Byte %d eoi: %v expected: %v", i, eois[i], want)
			}
		}
		if sim.Asserted(lines.DAV) || sim.Asserted(lines.EOI) {
			t.Errorf("Handshake left DAV or EOI asserted")
		}
	}
}

// EOI on the final byte needs EOI enabled in the configuration.
func TestNoEOIWhenDisabled(t *testing.T) {
	sim := simbus.New()
	ctl := newEngine(sim, "ctl", config.Controller, 1)
	dev := newEngine(sim, "dev", config.Device, 2)
	ctl.SetControls(CTAS)
	dev.SetControls(DLAS)
	var g errgroup.Group
	var seen bool
	g.Go(func() error {
		if stage := ctl.WriteByte('x', true); stage != StageNone {
			return errors.New(stage.String())
		}
		return nil
	})
	g.Go(func() error {
		var stage Stage
		_, seen, stage = dev.ReadByte(true)
		if stage != StageNone {
			return errors.New(stage.String())
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if seen {
		t.Errorf("EOI sent with EOI disabled")
	}
}

func TestHandshakeError(t *testing.T) {
	err := error(&HandshakeError{Op: "read", Stage: StageDAVLow})
	var hs *HandshakeError
	if !errors.As(err, &hs) || !hs.Timeout() {
		t.Errorf("Handshake error not a timeout: %v", err)
	}
	if err.Error() != "gpib read: timeout waiting for DAV low" {
		t.Errorf("Handshake error text: %s", err.Error())
	}
	abort := &HandshakeError{Op: "write", Stage: StageATN}
	if abort.Timeout() || abort.Error() != "gpib write: aborted by attention" {
		t.Errorf("Abort error wrong: %v", abort)
	}
}
