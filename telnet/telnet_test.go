/*
 * GPIB488 - telnet server tests
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

package telnet

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"slices"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/gpib"
	"github.com/rcornwell/gpib488/bus/simbus"
	"github.com/rcornwell/gpib488/command/parser"
	"github.com/rcornwell/gpib488/session"
	"github.com/rcornwell/gpib488/sim/instrument"
)

type collect struct {
	lines  []string
	breaks int
}

func newTestState(reply *bytes.Buffer) (*tnState, *collect) {
	c := &collect{}
	state := newState(reply, func(line string) {
		c.lines = append(c.lines, line)
	}, func() {
		c.breaks++
	})
	return state, c
}

func TestLines(t *testing.T) {
	var reply bytes.Buffer
	state, c := newTestState(&reply)
	state.receive([]byte("++ver\r\n*IDN?\nA\x1b\rB\r\x00"))
	state.receive([]byte("par"))
	state.receive([]byte("tial\n\xff\xffX\r"))
	want := []string{"++ver", "*IDN?", "A\x1b\rB", "partial", "\xffX"}
	if !slices.Equal(c.lines, want) {
		t.Errorf("Lines %q expected %q", c.lines, want)
	}
	if reply.Len() != 0 {
		t.Errorf("Plain data produced reply % x", reply.Bytes())
	}
}

func TestNegotiation(t *testing.T) {
	var reply bytes.Buffer
	state, c := newTestState(&reply)
	state.receive([]byte{
		tnIAC, tnWILL, tnOptionSGA,
		tnIAC, tnWILL, tnOptionEcho,
		tnIAC, tnDO, tnOptionBinary,
		tnIAC, tnDO, tnOptionTerm,
		tnIAC, tnSB, tnOptionTerm, 0, 'V', 'T', tnIAC, tnSE,
		tnIAC, tnBRK, 'o', 'k', '\n',
		tnIAC, tnWILL, tnOptionSGA,
	})
	want := []byte{
		tnIAC, tnDO, tnOptionSGA,
		tnIAC, tnDONT, tnOptionEcho,
		tnIAC, tnWILL, tnOptionBinary,
		tnIAC, tnWONT, tnOptionTerm,
	}
	if !bytes.Equal(reply.Bytes(), want) {
		t.Errorf("Replies % x expected % x", reply.Bytes(), want)
	}
	if c.breaks != 1 || !slices.Equal(c.lines, []string{"ok"}) {
		t.Errorf("Break %d lines %q", c.breaks, c.lines)
	}
}

func TestIACWriter(t *testing.T) {
	var out bytes.Buffer
	n, err := iacWriter{w: &out}.Write([]byte{'a', tnIAC, 'b'})
	if err != nil || n != 3 || !bytes.Equal(out.Bytes(), []byte{'a', tnIAC, tnIAC, 'b'}) {
		t.Errorf("Quoted %d %v % x", n, err, out.Bytes())
	}
}

// Controller session on a simulated bus with one instrument at 5.
func newSession(t *testing.T) (*session.Core, func()) {
	t.Helper()
	sim := simbus.New()
	in, err := instrument.New(sim, instrument.Config{Addr: 5, IDN: "ACME,SCOPE,7,1.0"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error {
		return in.Run(ctx)
	})
	cfg := config.New()
	_ = cfg.SetPrimaryAddr(5)
	_ = cfg.SetAutoMode(config.AutoOnQuery)
	bus := gpib.New(sim.Port("ctl"), cfg)
	bus.SetTiming(gpib.Timing{})
	core := session.New(bus)
	go core.Start()
	return core, func() {
		core.Stop()
		cancel()
		_ = g.Wait()
	}
}

func TestServer(t *testing.T) {
	core, stop := newSession(t)
	defer stop()
	mux := NewMux(parser.Env{Core: core}, 1)
	srv, err := Start("127.0.0.1:0", mux)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	read := bufio.NewReader(conn)

	_, _ = conn.Write([]byte("*IDN?\r\n++ver\r\n++bogus\r\n"))
	for _, want := range []string{"ACME,SCOPE,7,1.0", parser.Version} {
		line, err := read.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") != want {
			t.Errorf("Got %q %v expected %q", line, err, want)
		}
	}
	if line, _ := read.ReadString('\n'); !strings.HasPrefix(line, "Error: ") {
		t.Errorf("Bad command gave %q", line)
	}

	// Only one client allowed.
	second, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Second dial failed: %v", err)
	}
	_ = second.SetDeadline(time.Now().Add(5 * time.Second))
	if line, _ := bufio.NewReader(second).ReadString('\n'); !strings.Contains(line, ErrBusy.Error()) {
		t.Errorf("Second client gave %q", line)
	}
	second.Close()

	_, _ = conn.Write([]byte("++quit\r\n"))
	if _, err := read.ReadString('\n'); err == nil {
		t.Errorf("Connection still open after quit")
	}
	deadline := time.Now().Add(2 * time.Second)
	for mux.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if mux.Clients() != 0 {
		t.Errorf("Client not detached")
	}
}

func TestMuxFallback(t *testing.T) {
	mux := NewMux(parser.Env{}, 0)
	var out bytes.Buffer
	mux.SetFallback(&out)
	if _, err := mux.Write([]byte("reading\r\n")); err != nil || out.String() != "reading\r\n" {
		t.Errorf("Fallback got %q %v", out.String(), err)
	}
}
