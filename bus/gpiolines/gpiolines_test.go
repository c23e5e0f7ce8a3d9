/*
 * GPIB488 - GPIB lines on GPIO pins tests
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
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/rcornwell/gpib488/bus/lines"
)

func newTestPins() ([8]*gpiotest.Pin, [8]*gpiotest.Pin, *Lines) {
	var data, ctl [8]*gpiotest.Pin
	var dio, cio [8]gpio.PinIO
	for i := range 8 {
		data[i] = &gpiotest.Pin{N: fmt.Sprintf("DIO%d", i+1), Num: i, L: gpio.Low}
		ctl[i] = &gpiotest.Pin{N: lines.Signal(1 << i).String(), Num: 8 + i, L: gpio.Low}
		dio[i] = data[i]
		cio[i] = ctl[i]
	}
	return data, ctl, NewPins(dio, cio)
}

func TestNewPinsReleased(t *testing.T) {
	data, ctl, li := newTestPins()
	for i := range 8 {
		if data[i].L != gpio.High || data[i].P != gpio.PullUp {
			t.Errorf("DIO%d not released: %s %s", i+1, data[i].L, data[i].P)
		}
		if ctl[i].L != gpio.High || ctl[i].P != gpio.PullUp {
			t.Errorf("%s not released: %s %s", ctl[i].N, ctl[i].L, ctl[i].P)
		}
	}
	if li.Err() != nil {
		t.Errorf("Pin error: %v", li.Err())
	}
}

func TestDataBus(t *testing.T) {
	data, _, li := newTestPins()
	li.SetDataBus(0x05)
	for i := range 8 {
		want := gpio.High
		if i == 0 || i == 2 {
			want = gpio.Low
		}
		if data[i].L != want {
			t.Errorf("DIO%d got %s expected %s", i+1, data[i].L, want)
		}
	}
	if v := li.ReadDataBus(); v != 0x05 {
		t.Errorf("Data bus read: %02x", v)
	}
	li.ReleaseDataBus()
	if v := li.ReadDataBus(); v != 0 {
		t.Errorf("Released data bus read: %02x", v)
	}
}

func TestControls(t *testing.T) {
	_, ctl, li := newTestPins()
	atn := uint8(lines.ATN)
	li.SetControls(atn, atn, lines.Direction)
	li.SetControls(0, atn, lines.Level)
	if ctl[7].L != gpio.Low || li.ReadLine(lines.ATN) != gpio.Low {
		t.Errorf("ATN not driven low")
	}
	if !lines.Asserted(li, lines.ATN) || lines.Asserted(li, lines.EOI) {
		t.Errorf("Asserted reports wrong lines")
	}

	// Level of an input only matters once it turns output.
	eoi := uint8(lines.EOI)
	li.SetControls(0, eoi, lines.Level)
	if ctl[4].L != gpio.High {
		t.Errorf("Input EOI driven low")
	}
	li.SetControls(eoi, eoi, lines.Direction)
	if ctl[4].L != gpio.Low {
		t.Errorf("EOI did not take stored level")
	}

	li.SetControls(0, atn|eoi, lines.Direction)
	if ctl[7].L != gpio.High || ctl[4].L != gpio.High || ctl[7].P != gpio.PullUp {
		t.Errorf("Lines not released when made inputs")
	}
}

func TestParseLayout(t *testing.T) {
	layout, err := ParseLayout("DIO1=GPIO5, atn=GPIO12,")
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	if layout.Data[0] != "GPIO5" || layout.Control[7] != "GPIO12" {
		t.Errorf("Layout not updated: %v", layout)
	}
	def := DefaultLayout()
	if layout.Data[1] != def.Data[1] || layout.Control[0] != def.Control[0] {
		t.Errorf("Layout changed other pins")
	}

	bad := []string{"DIO9=GPIO1", "FOO=GPIO1", "ATN", "EOI="}
	for _, text := range bad {
		if _, err := ParseLayout(text); !errors.Is(err, ErrLayout) {
			t.Errorf("Layout %q returned: %v", text, err)
		}
	}
}

func TestNewUnknownPin(t *testing.T) {
	layout := DefaultLayout()
	layout.Data[3] = "NOSUCHPIN"
	if _, err := New(layout); !errors.Is(err, ErrLayout) {
		t.Errorf("Unknown pin accepted: %v", err)
	}
}
