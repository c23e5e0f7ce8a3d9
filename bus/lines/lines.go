/*
 * GPIB488 - GPIB line interface
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

package lines

import (
	"strings"

	"periph.io/x/conn/v3/gpio"
)

// Control lines, in the bit order used by SetControls value and mask bytes.
type Signal uint8

const (
	IFC  Signal = 1 << iota // Interface clear.
	NDAC                    // Not data accepted.
	NRFD                    // Not ready for data.
	DAV                     // Data valid.
	EOI                     // End or identify.
	REN                     // Remote enable.
	SRQ                     // Service request.
	ATN                     // Attention.
)

// Mask covering all eight control lines.
const AllLines uint8 = 0xff

// What SetControls changes.
type Mode uint8

const (
	Level     Mode = iota // 0 = LOW, 1 = HIGH (or pull-up when input).
	Direction             // 0 = input with pull-up, 1 = output.
)

// Interface is the only way the bus engine touches hardware.
//
// Control line values are electrical: a bit of 1 is HIGH (released), 0 is
// LOW (asserted). Data bus values are logical: a bit of 1 is an asserted
// DIO line.
type Interface interface {
	// SetDataBus drives the data lines with value.
	SetDataBus(value uint8)
	// ReleaseDataBus returns the data lines to inputs with pull-ups.
	ReleaseDataBus()
	// ReadDataBus returns the byte currently on the data lines.
	ReadDataBus() uint8
	// SetControls changes the lines selected by mask.
	SetControls(value uint8, mask uint8, mode Mode)
	// ReadLine returns the electrical level of one control line.
	ReadLine(sig Signal) gpio.Level
}

var signalNames = []string{"IFC", "NDAC", "NRFD", "DAV", "EOI", "REN", "SRQ", "ATN"}

func (s Signal) String() string {
	var names []string
	for i, name := range signalNames {
		if uint8(s)&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Signals in bit order, for callers that walk every line.
var Signals = []Signal{IFC, NDAC, NRFD, DAV, EOI, REN, SRQ, ATN}

// Asserted reports whether a line reads as asserted (LOW).
func Asserted(li Interface, sig Signal) bool {
	return li.ReadLine(sig) == gpio.Low
}

// ByName returns the signal for a line name, or 0 when unknown.
func ByName(name string) Signal {
	name = strings.ToUpper(name)
	for i, n := range signalNames {
		if n == name {
			return Signal(1 << i)
		}
	}
	return 0
}
