/*
 * GPIB488 - GPIB lines on GPIO pins
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

package gpiolines

import (
	"errors"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/rcornwell/gpib488/bus/lines"
)

// Layout names the pin used for each bus line.
type Layout struct {
	Data    [8]string // DIO1 to DIO8.
	Control [8]string // Indexed by control bit, IFC first.
}

// Layout for a Raspberry Pi header.
func DefaultLayout() Layout {
	return Layout{
		Data: [8]string{"GPIO26", "GPIO19", "GPIO13", "GPIO6", "GPIO5", "GPIO11", "GPIO9", "GPIO10"},
		Control: [8]string{
			"GPIO22", // IFC
			"GPIO27", // NDAC
			"GPIO17", // NRFD
			"GPIO4",  // DAV
			"GPIO3",  // EOI
			"GPIO2",  // REN
			"GPIO24", // SRQ
			"GPIO23", // ATN
		},
	}
}

var ErrLayout = errors.New("invalid pin layout")

// ParseLayout updates the default layout from a list of line=pin
// assignments, "DIO1=GPIO5,ATN=GPIO23".
func ParseLayout(text string) (Layout, error) {
	layout := DefaultLayout()
	for _, item := range strings.Split(text, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, pin, ok := strings.Cut(item, "=")
		name = strings.ToUpper(strings.TrimSpace(name))
		pin = strings.TrimSpace(pin)
		if !ok || pin == "" {
			return layout, fmt.Errorf("%w: %s", ErrLayout, item)
		}
		var n int
		if _, err := fmt.Sscanf(name, "DIO%d", &n); err == nil {
			if n < 1 || n > 8 {
				return layout, fmt.Errorf("%w: %s", ErrLayout, name)
			}
			layout.Data[n-1] = pin
			continue
		}
		sig := lines.ByName(name)
		if sig == 0 {
			return layout, fmt.Errorf("%w: unknown line %s", ErrLayout, name)
		}
		for bit := range 8 {
			if sig == lines.Signal(1<<bit) {
				layout.Control[bit] = pin
			}
		}
	}
	return layout, nil
}

// Lines drives the bus through GPIO pins. Lines are open collector, an
// output at HIGH is the same as a released line to the other devices.
type Lines struct {
	data  [8]gpio.PinIO
	ctl   [8]gpio.PinIO
	dir   uint8 // 1 = output.
	level uint8 // 1 = HIGH.
	err   error // First pin error.
}

// Open pins of layout. Host drivers must be initialised first.
func New(layout Layout) (*Lines, error) {
	var data, ctl [8]gpio.PinIO
	for i, name := range layout.Data {
		if data[i] = gpioreg.ByName(name); data[i] == nil {
			return nil, fmt.Errorf("%w: no pin %s for DIO%d", ErrLayout, name, i+1)
		}
	}
	for i, name := range layout.Control {
		if ctl[i] = gpioreg.ByName(name); ctl[i] == nil {
			return nil, fmt.Errorf("%w: no pin %s for %s", ErrLayout, name, lines.Signal(1<<i))
		}
	}
	return NewPins(data, ctl), nil
}

// Build on already opened pins. Every line starts as a pulled up input.
func NewPins(data [8]gpio.PinIO, ctl [8]gpio.PinIO) *Lines {
	li := &Lines{data: data, ctl: ctl, level: lines.AllLines}
	li.ReleaseDataBus()
	li.SetControls(0, lines.AllLines, lines.Direction)
	return li
}

// Err returns the first error any pin reported.
func (li *Lines) Err() error {
	return li.err
}

func (li *Lines) check(err error) {
	if err != nil && li.err == nil {
		li.err = err
	}
}

// Asserted data bits are driven LOW.
func (li *Lines) SetDataBus(value uint8) {
	for i, pin := range li.data {
		level := gpio.High
		if value&(1<<i) != 0 {
			level = gpio.Low
		}
		li.check(pin.Out(level))
	}
}

func (li *Lines) ReleaseDataBus() {
	for _, pin := range li.data {
		li.check(pin.In(gpio.PullUp, gpio.NoEdge))
	}
}

func (li *Lines) ReadDataBus() uint8 {
	value := uint8(0)
	for i, pin := range li.data {
		if pin.Read() == gpio.Low {
			value |= 1 << i
		}
	}
	return value
}

func (li *Lines) SetControls(value uint8, mask uint8, mode lines.Mode) {
	switch mode {
	case lines.Direction:
		li.dir = (li.dir &^ mask) | (value & mask)
	case lines.Level:
		li.level = (li.level &^ mask) | (value & mask)
	}
	for i, pin := range li.ctl {
		bit := uint8(1) << i
		if mask&bit == 0 {
			continue
		}
		if li.dir&bit != 0 {
			li.check(pin.Out(gpio.Level(li.level&bit != 0)))
		} else {
			li.check(pin.In(gpio.PullUp, gpio.NoEdge))
		}
	}
}

func (li *Lines) ReadLine(sig lines.Signal) gpio.Level {
	for i, pin := range li.ctl {
		if sig == lines.Signal(1<<i) {
			return pin.Read()
		}
	}
	return gpio.High
}

var _ lines.Interface = (*Lines)(nil)
