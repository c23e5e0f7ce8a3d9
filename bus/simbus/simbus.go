/*
 * GPIB488 - Simulated GPIB cable
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

package simbus

import (
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/rcornwell/gpib488/bus/lines"
)

/*
 * GPIB lines are open collector with pull-ups. A control line reads LOW
 * when any port drives it as an output at LOW, otherwise it floats HIGH.
 * Data lines are logical, a bit is asserted when any driving port asserts it.
 */

// Change of bus state, passed to the trace hook.
type Event struct {
	Time  time.Time // When it changed.
	Port  string    // Port that caused the change.
	Lines uint8     // Electrical control line levels after change.
	Data  uint8     // Logical data bus after change.
}

// Bus models one cable shared by any number of ports.
type Bus struct {
	mu    sync.Mutex
	ports []*Port
	lines uint8 // Last resolved control levels.
	data  uint8 // Last resolved data bus.
	trace func(Event)
}

// Port is one connector on the cable.
type Port struct {
	bus    *Bus
	name   string
	dir    uint8 // 1 = output.
	level  uint8 // 1 = HIGH.
	driven bool  // Data bus driven by this port.
	value  uint8 // Data bus value when driven.
}

// Create an idle bus, all lines pulled HIGH.
func New() *Bus {
	return &Bus{lines: lines.AllLines}
}

// Trace installs fn to be called on every change of the resolved bus state.
func (b *Bus) Trace(fn func(Event)) {
	b.mu.Lock()
	b.trace = fn
	b.mu.Unlock()
}

// Port attaches a new connector with every line an input.
func (b *Bus) Port(name string) *Port {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &Port{bus: b, name: name, level: lines.AllLines}
	b.ports = append(b.ports, p)
	return p
}

// Lines returns the electrical state of the control lines.
func (b *Bus) Lines() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolveLines()
}

// Data returns the logical state of the data bus.
func (b *Bus) Data() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolveData()
}

// Probe returns a snapshot of the whole cable.
func (b *Bus) Probe() Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Event{Time: time.Now(), Port: "probe", Lines: b.resolveLines(), Data: b.resolveData()}
}

// Asserted reports whether sig is currently held LOW by anyone.
func (b *Bus) Asserted(sig lines.Signal) bool {
	return b.Lines()&uint8(sig) == 0
}

// Must be called with lock held.
func (b *Bus) resolveLines() uint8 {
	low := uint8(0)
	for _, p := range b.ports {
		low |= p.dir &^ p.level
	}
	return ^low
}

// Must be called with lock held.
func (b *Bus) resolveData() uint8 {
	data := uint8(0)
	for _, p := range b.ports {
		if p.driven {
			data |= p.value
		}
	}
	return data
}

// Recompute bus state after port changed, returns event if anything moved.
// Must be called with lock held.
func (b *Bus) update(p *Port) (func(Event), Event, bool) {
	ctl := b.resolveLines()
	data := b.resolveData()
	if ctl == b.lines && data == b.data {
		return nil, Event{}, false
	}
	b.lines = ctl
	b.data = data
	if b.trace == nil {
		return nil, Event{}, false
	}
	return b.trace, Event{Time: time.Now(), Port: p.name, Lines: ctl, Data: data}, true
}

// Apply a change to a port and post a trace event outside the lock.
func (p *Port) change(fn func()) {
	p.bus.mu.Lock()
	fn()
	trace, ev, ok := p.bus.update(p)
	p.bus.mu.Unlock()
	if ok {
		trace(ev)
	}
}

// Name of port.
func (p *Port) Name() string {
	return p.name
}

// Driven returns this port's direction and level registers.
func (p *Port) Driven() (uint8, uint8) {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()
	return p.dir, p.level
}

// DataDriven reports whether this port currently drives the data bus.
func (p *Port) DataDriven() bool {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()
	return p.driven
}

func (p *Port) SetDataBus(value uint8) {
	p.change(func() {
		p.driven = true
		p.value = value
	})
}

func (p *Port) ReleaseDataBus() {
	p.change(func() {
		p.driven = false
		p.value = 0
	})
}

func (p *Port) ReadDataBus() uint8 {
	return p.bus.Data()
}

func (p *Port) SetControls(value uint8, mask uint8, mode lines.Mode) {
	p.change(func() {
		switch mode {
		case lines.Level:
			p.level = (p.level &^ mask) | (value & mask)
		case lines.Direction:
			p.dir = (p.dir &^ mask) | (value & mask)
		}
	})
}

// Reading a line yields the processor so peers polling the same
// cable from other goroutines keep moving.
func (p *Port) ReadLine(sig lines.Signal) gpio.Level {
	ctl := p.bus.Lines()
	runtime.Gosched()
	return gpio.Level(ctl&uint8(sig) != 0)
}

var _ lines.Interface = (*Port)(nil)
