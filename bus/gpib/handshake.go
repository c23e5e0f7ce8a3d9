/*
 * GPIB488 - GPIB three wire handshake
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
	"periph.io/x/conn/v3/gpio"

	"github.com/rcornwell/gpib488/bus/lines"
)

const (
	lineDAV  = uint8(lines.DAV)
	lineEOI  = uint8(lines.EOI)
	lineNRFD = uint8(lines.NRFD)
	lineNDAC = uint8(lines.NDAC)
	lineIFC  = uint8(lines.IFC)
	lineATN  = uint8(lines.ATN)
	lineREN  = uint8(lines.REN)
	lineSRQ  = uint8(lines.SRQ)
)

func (bus *Bus) level(sig lines.Signal) gpio.Level {
	return bus.lines.ReadLine(sig)
}

// Check for IFC or ATN interrupting a device transfer.
func (bus *Bus) deviceAbort(atn bool) Stage {
	if bus.cfg.IsController() {
		return StageNone
	}
	if bus.IsAsserted(lines.IFC) {
		return StageIFC
	}
	if bus.IsAsserted(lines.ATN) != atn {
		return StageATN
	}
	return StageNone
}

// WriteByte sends one byte as talker. If last is set and EOI is
// enabled, EOI is asserted with the byte. Returns StageNone on success.
func (bus *Bus) WriteByte(db uint8, last bool) Stage {
	withEOI := last && bus.cfg.EOI()
	assert := lineDAV
	if withEOI {
		assert |= lineEOI
	}
	timeout := bus.timeout()
	start := bus.clock.Now()
	stage := StageNDACLow
	for {
		// A device gives up the bus when the controller takes it.
		if abort := bus.deviceAbort(false); abort != StageNone {
			if stage == StageNRFDLow || stage == StageNDACHigh {
				bus.dropByte(assert)
			}
			bus.SetControls(DLAS)
			debugMsk.Debugf(debugHandshake, "write %02x aborted: %s", db, abort)
			return abort
		}

		// All listeners have seen the last byte.
		if stage == StageNDACLow && bus.level(lines.NDAC) == gpio.Low {
			stage = StageNRFDHigh
		}

		// All listeners ready, place byte and signal data valid.
		if stage == StageNRFDHigh && bus.level(lines.NRFD) == gpio.High {
			bus.lines.SetDataBus(db)
			bus.delay(bus.busSettle())
			bus.lines.SetControls(0, assert, lines.Level)
			stage = StageNRFDLow
		}

		if stage == StageNRFDLow && bus.level(lines.NRFD) == gpio.Low {
			stage = StageNDACHigh
		}

		// Byte accepted, clear the bus.
		if stage == StageNDACHigh && bus.level(lines.NDAC) == gpio.High {
			bus.dropByte(assert)
			debugMsk.Debugf(debugHandshake, "write %02x eoi=%v", db, withEOI)
			return StageNone
		}

		if bus.clock.Now().Sub(start) >= timeout {
			if stage == StageNRFDLow || stage == StageNDACHigh {
				bus.dropByte(assert)
			}
			debugMsk.Debugf(debugHandshake, "write %02x timeout: %s", db, stage)
			return stage
		}
	}
}

// Release DAV and EOI and take the byte off the data lines.
func (bus *Bus) dropByte(assert uint8) {
	bus.lines.SetControls(assert, assert, lines.Level)
	bus.lines.SetDataBus(0)
}

// ReadByte accepts one byte as listener. With eoiDetect set the state of
// EOI is returned with the byte. Returns StageNone on success.
func (bus *Bus) ReadByte(eoiDetect bool) (uint8, bool, Stage) {
	return bus.readByte(eoiDetect, bus.IsAsserted(lines.ATN))
}

// Read a byte as a device expecting ATN in state atn. Any change aborts.
func (bus *Bus) readByte(eoiDetect bool, atn bool) (uint8, bool, Stage) {
	var db uint8
	eoi := false
	timeout := bus.timeout()
	start := bus.clock.Now()

	// Ready for data.
	bus.lines.SetControls(lineNRFD, lineNRFD, lines.Level)
	stage := StageDAVLow
	for {
		if abort := bus.deviceAbort(atn); abort != StageNone {
			debugMsk.Debugf(debugHandshake, "read aborted: %s", abort)
			return 0, false, abort
		}

		if stage == StageDAVLow && bus.level(lines.DAV) == gpio.Low {
			// ATN is always set before DAV, a byte seen after ATN changed
			// belongs to the controller.
			if abort := bus.deviceAbort(atn); abort != StageNone {
				debugMsk.Debugf(debugHandshake, "read aborted: %s", abort)
				return 0, false, abort
			}
			bus.lines.SetControls(0, lineNRFD, lines.Level)
			if eoiDetect && bus.IsAsserted(lines.EOI) {
				eoi = true
			}
			db = bus.lines.ReadDataBus()
			bus.lines.SetControls(lineNDAC, lineNDAC, lines.Level)
			stage = StageDAVHigh
		}

		if stage == StageDAVHigh && bus.level(lines.DAV) == gpio.High {
			bus.lines.SetControls(0, lineNDAC, lines.Level)
			debugMsk.Debugf(debugHandshake, "read %02x eoi=%v", db, eoi)
			return db, eoi, StageNone
		}

		if bus.clock.Now().Sub(start) >= timeout {
			debugMsk.Debugf(debugHandshake, "read timeout: %s", stage)
			return 0, false, stage
		}
	}
}
