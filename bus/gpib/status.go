/*
 * GPIB488 - GPIB status byte and service request
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
	"github.com/rcornwell/gpib488/bus/lines"
)

// SetStatus stores the status byte. As a device SRQ follows the RQS bit.
func (bus *Bus) SetStatus(status uint8) {
	bus.cfg.SetStatus(status)
	if bus.cfg.IsController() {
		return
	}
	if status&StatusRQS != 0 {
		bus.lines.SetControls(lineSRQ, lineSRQ, lines.Direction)
		bus.lines.SetControls(0, lineSRQ, lines.Level)
	} else {
		bus.lines.SetControls(0, lineSRQ, lines.Direction)
		bus.lines.SetControls(lineSRQ, lineSRQ, lines.Level)
	}
	debugMsk.Debugf(debugCtrl, "status %02x", status)
}

// SendStatus answers a serial poll with the status byte, then clears the
// request bit and SRQ.
func (bus *Bus) SendStatus() error {
	if bus.cfg.IsController() {
		return ErrNotDevice
	}
	if bus.phase != DTAS {
		bus.SetControls(DTAS)
	}
	status := bus.cfg.Status()
	stage := bus.WriteByte(status, false)
	// The request is withdrawn even when the poll fails.
	bus.SetControls(DIDS)
	bus.SetStatus(status &^ StatusRQS)
	if stage != StageNone {
		return &HandshakeError{Op: "write", Stage: stage}
	}
	return nil
}

// IsSRQ reports whether a device is requesting service.
func (bus *Bus) IsSRQ() bool {
	return bus.IsAsserted(lines.SRQ)
}
