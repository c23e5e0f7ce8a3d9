/*
 * GPIB488 - Bus trace monitor tests
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

package monitor

import (
	"encoding/json"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcornwell/gpib488/bus/lines"
	"github.com/rcornwell/gpib488/bus/simbus"
)

func TestNewFrame(t *testing.T) {
	ev := simbus.Event{Port: "ctl", Lines: lines.AllLines &^ uint8(lines.ATN|lines.NRFD), Data: 0x3f}
	frame := NewFrame(ev)
	if !slices.Equal(frame.Asserted, []string{"NRFD", "ATN"}) || frame.Data != 0x3f || frame.Port != "ctl" {
		t.Errorf("Frame: %+v", frame)
	}
	if idle := NewFrame(simbus.Event{Lines: lines.AllLines}); idle.Asserted == nil || len(idle.Asserted) != 0 {
		t.Errorf("Idle frame: %+v", idle)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if err := json.Unmarshal(msg, &frame); err != nil {
		t.Fatalf("Bad frame %q: %v", msg, err)
	}
	return frame
}

func TestTrace(t *testing.T) {
	mon := New()
	defer mon.Stop()
	srv := httptest.NewServer(mon)
	defer srv.Close()

	sim := simbus.New()
	sim.Trace(mon.Observe)
	ctl := sim.Port("ctl")
	ctl.SetControls(uint8(lines.REN), uint8(lines.REN), lines.Direction)
	ctl.SetControls(0, uint8(lines.REN), lines.Level)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// Latest state comes first.
	if frame := readFrame(t, conn); !slices.Equal(frame.Asserted, []string{"REN"}) {
		t.Errorf("First frame: %+v", frame)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mon.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	ctl.SetControls(uint8(lines.ATN), uint8(lines.ATN), lines.Direction)
	ctl.SetControls(0, uint8(lines.ATN), lines.Level)
	// The first change may arrive again before the new one.
	frame := readFrame(t, conn)
	if slices.Equal(frame.Asserted, []string{"REN"}) {
		frame = readFrame(t, conn)
	}
	if !slices.Equal(frame.Asserted, []string{"REN", "ATN"}) || frame.Port != "ctl" {
		t.Errorf("ATN frame: %+v", frame)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for mon.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if mon.Clients() != 0 {
		t.Errorf("Client not removed")
	}
}

func TestListen(t *testing.T) {
	mon := New()
	if err := mon.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+mon.Addr()+"/trace", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	mon.Stop()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Errorf("Connection open after stop")
	}
}
