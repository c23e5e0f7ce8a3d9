/*
 * GPIB488 - Bus session tests
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

package session

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/gpib"
	"github.com/rcornwell/gpib488/bus/simbus"
)

// Writer safe to read while the core writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newBus(sim *simbus.Bus, name string, mode config.Mode, addr int) *gpib.Bus {
	cfg := config.New()
	_ = cfg.SetMode(mode)
	_ = cfg.SetPrimaryAddr(addr)
	bus := gpib.New(sim.Port(name), cfg)
	bus.SetTiming(gpib.Timing{})
	return bus
}

func TestIDNReply(t *testing.T) {
	cfg := config.New()
	_ = cfg.SetShortName("bench")
	_ = cfg.SetSerial(1234)

	if _, ok := idnReply(cfg, []byte("*IDN?\r\n")); ok {
		t.Errorf("Reply with identification off")
	}
	_ = cfg.SetIDN(config.IDNName)
	if reply, ok := idnReply(cfg, []byte("*idn?\n")); !ok || reply != "bench" {
		t.Errorf("Name reply: %q %v", reply, ok)
	}
	if _, ok := idnReply(cfg, []byte("*IDN? ")); ok {
		t.Errorf("Reply to other message")
	}
	_ = cfg.SetIDN(config.IDNNameSerial)
	if reply, _ := idnReply(cfg, []byte("*IDN?")); reply != "bench-000001234" {
		t.Errorf("Serial reply: %q", reply)
	}
}

func TestQueue(t *testing.T) {
	core := New(newBus(simbus.New(), "dev", config.Device, 4))
	msg := []byte("one")
	core.Queue(msg)
	msg[0] = 'X'
	core.Queue([]byte("two"))
	if core.Pending() != 2 {
		t.Errorf("Pending: %d", core.Pending())
	}
	if got := core.nextMessage(); string(got) != "one" {
		t.Errorf("First message: %q", got)
	}

	go core.Start()
	if err := core.Flush(); err != nil {
		t.Errorf("Flush failed: %v", err)
	}
	if core.Pending() != 0 {
		t.Errorf("Pending after flush: %d", core.Pending())
	}
	core.Stop()
}

func TestDoAndStop(t *testing.T) {
	bus := newBus(simbus.New(), "ctl", config.Controller, 0)
	core := New(bus)
	go core.Start()

	var phase gpib.Phase
	err := core.Do(func(b *gpib.Bus) error {
		phase = b.Phase()
		return nil
	})
	if err != nil || phase != gpib.CINI {
		t.Errorf("Do failed: %v phase %s", err, phase)
	}
	fail := errors.New("failed")
	if err := core.Do(func(*gpib.Bus) error { return fail }); !errors.Is(err, fail) {
		t.Errorf("Do error not returned: %v", err)
	}

	core.Stop()
	if bus.Phase() != gpib.PhaseNone {
		t.Errorf("Bus running after stop: %s", bus.Phase())
	}
	if err := core.Do(func(*gpib.Bus) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Do after stop: %v", err)
	}
	core.Stop()
}

// A device core takes messages, answers *IDN? itself and sends queued
// messages when addressed to talk.
func TestDeviceService(t *testing.T) {
	sim := simbus.New()
	dev := newBus(sim, "dev", config.Device, 6)
	_ = dev.Config().SetIDN(config.IDNName)
	_ = dev.Config().SetShortName("probe")
	ctl := newBus(sim, "ctl", config.Controller, 0)
	ctl.SetControls(gpib.CIDS)

	core := New(dev)
	var out syncBuffer
	core.SetOutput(&out)
	var mu sync.Mutex
	var seen []gpib.Attention
	core.OnAttention(func(att gpib.Attention) {
		mu.Lock()
		seen = append(seen, att)
		mu.Unlock()
	})
	go core.Start()
	defer core.Stop()

	if err := ctl.WriteTo(6, []byte("MEAS")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := ctl.WriteTo(6, []byte("*IDN?")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	var reply bytes.Buffer
	if _, err := ctl.ReadFrom(6, &reply, gpib.ReceiveOptions{}); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if reply.String() != "probe" {
		t.Errorf("Identification: %q", reply.String())
	}
	if out.String() != "MEAS\r\n" {
		t.Errorf("Device output: %q", out.String())
	}

	core.Queue([]byte("42"))
	reply.Reset()
	if _, err := ctl.ReadFrom(6, &reply, gpib.ReceiveOptions{}); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if reply.String() != "42" {
		t.Errorf("Queued reply: %q", reply.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Errorf("No attention reported")
}
