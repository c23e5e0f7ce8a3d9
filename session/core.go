/*
 * GPIB488 - Bus session
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
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/gpib"
	"github.com/rcornwell/gpib488/bus/lines"
	"github.com/rcornwell/gpib488/util/debug"
)

// Message types sent to the core.
const (
	Exec  = 1 + iota // Run function against the bus.
	Flush            // Drop queued device messages.
)

// Packet is one request to the goroutine owning the bus.
type Packet struct {
	Msg  int
	Fn   func(*gpib.Bus) error
	Done chan error
}

// Returned when the core has been stopped.
var ErrStopped = errors.New("bus session stopped")

// How often a device checks the bus when idle.
const pollInterval = time.Millisecond

// Debug options.
const (
	debugData = 1 << iota
	debugAttention
)

var debugMsk = debug.Register("SESSION", map[string]int{
	"DATA":      debugData,
	"ATTENTION": debugAttention,
})

// Core owns one bus engine. Requests run one at a time on its goroutine,
// in device mode it also answers the controller between requests.
type Core struct {
	wg        sync.WaitGroup
	done      chan struct{} // Signal to shut down.
	stopOnce  sync.Once
	Master    chan Packet
	bus       *gpib.Bus
	mu        sync.Mutex
	talk      [][]byte             // Messages waiting for a controller to read.
	out       io.Writer            // Where device mode messages go.
	attention func(gpib.Attention) // Called after each period of ATN.
	log       *slog.Logger
}

// Create a core for bus.
func New(bus *gpib.Bus) *Core {
	return &Core{
		Master: make(chan Packet),
		done:   make(chan struct{}),
		bus:    bus,
		out:    io.Discard,
		log:    slog.Default(),
	}
}

func (core *Core) SetLogger(log *slog.Logger) {
	core.log = log
}

// Call fn after every period of attention in device mode. Must be set
// before Start.
func (core *Core) OnAttention(fn func(gpib.Attention)) {
	core.attention = fn
}

// Start the bus in its configured role and serve requests until Stop.
func (core *Core) Start() {
	core.wg.Add(1)
	defer core.wg.Done()
	core.bus.Begin()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-core.done:
			core.bus.Stop()
			return
		case packet := <-core.Master:
			core.processPacket(packet)
		case <-ticker.C:
			if !core.bus.IsController() {
				core.serviceDevice()
			}
		}
	}
}

// Stop a running core.
func (core *Core) Stop() {
	core.stopOnce.Do(func() {
		core.log.Info("Shutting down bus session")
		close(core.done)
	})
	done := make(chan struct{})
	go func() {
		core.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		core.log.Warn("Timed out waiting for bus session to finish.")
	}
}

// Send a packet, giving up if the core stops first.
func (core *Core) send(packet Packet) error {
	select {
	case core.Master <- packet:
	case <-core.done:
		return ErrStopped
	}
	select {
	case err := <-packet.Done:
		return err
	case <-core.done:
		return ErrStopped
	}
}

// Do runs fn on the goroutine owning the bus and waits for it.
func (core *Core) Do(fn func(*gpib.Bus) error) error {
	return core.send(Packet{Msg: Exec, Fn: fn, Done: make(chan error, 1)})
}

// Drop messages waiting for the controller.
func (core *Core) Flush() error {
	return core.send(Packet{Msg: Flush, Done: make(chan error, 1)})
}

// Send device mode messages to w, nil discards them.
func (core *Core) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	core.mu.Lock()
	core.out = w
	core.mu.Unlock()
}

func (core *Core) output() io.Writer {
	core.mu.Lock()
	defer core.mu.Unlock()
	return core.out
}

// Break stops a transfer in progress.
func (core *Core) Break() {
	core.bus.SignalBreak()
}

// Queue a message for the controller to read. Safe from any goroutine.
func (core *Core) Queue(msg []byte) {
	core.mu.Lock()
	core.talk = append(core.talk, bytes.Clone(msg))
	core.mu.Unlock()
}

// Number of messages waiting.
func (core *Core) Pending() int {
	core.mu.Lock()
	defer core.mu.Unlock()
	return len(core.talk)
}

func (core *Core) clearQueue() {
	core.mu.Lock()
	core.talk = nil
	core.mu.Unlock()
}

func (core *Core) nextMessage() []byte {
	core.mu.Lock()
	defer core.mu.Unlock()
	if len(core.talk) == 0 {
		return nil
	}
	msg := core.talk[0]
	core.talk = core.talk[1:]
	return msg
}

// Process a packet sent to the core.
func (core *Core) processPacket(packet Packet) {
	var err error
	switch packet.Msg {
	case Exec:
		err = packet.Fn(core.bus)
	case Flush:
		core.clearQueue()
	default:
		err = fmt.Errorf("unknown request %d", packet.Msg)
	}
	packet.Done <- err
}

// Answer the controller: commands under ATN, then data in whichever
// direction the device was addressed.
func (core *Core) serviceDevice() {
	bus := core.bus
	if bus.HandleIFC() {
		debugMsk.Debugf(debugAttention, "IFC")
		return
	}
	if bus.IsAsserted(lines.ATN) {
		att, err := bus.ServiceAttention()
		if err != nil {
			core.log.Debug("Attention failed", "error", err.Error())
			return
		}
		debugMsk.Debugf(debugAttention, "commands % x", att.Commands)
		if att.Clear {
			core.clearQueue()
		}
		if core.attention != nil {
			core.attention(att)
		}
	}

	switch {
	case bus.IsAddressedToListen():
		core.receive()
	case bus.IsAddressedToTalk():
		msg := core.nextMessage()
		if msg == nil {
			return
		}
		if err := bus.Send(msg); err != nil {
			core.log.Debug("Device send failed", "error", err.Error())
			return
		}
		debugMsk.Debugf(debugData, "sent %q", msg)
	}
}

// Take one message from the controller.
func (core *Core) receive() {
	var buf bytes.Buffer
	_, err := core.bus.Receive(&buf, gpib.ReceiveOptions{})
	var hs *gpib.HandshakeError
	if err != nil && !(errors.As(err, &hs) && hs.Stage == gpib.StageATN) {
		core.log.Debug("Device receive failed", "error", err.Error())
	}
	if buf.Len() == 0 {
		return
	}
	debugMsk.Debugf(debugData, "received %q", buf.Bytes())
	if reply, ok := idnReply(core.bus.Config(), buf.Bytes()); ok {
		core.Queue([]byte(reply))
		return
	}
	if _, err := core.output().Write(buf.Bytes()); err != nil {
		core.log.Warn("Device output failed", "error", err.Error())
	}
}

// Identification reply for a *IDN? query, when the interface answers it.
func idnReply(cfg *config.Config, msg []byte) (string, bool) {
	query := strings.TrimRight(string(msg), "\r\n")
	if cfg.IDN() == config.IDNOff || !strings.EqualFold(query, "*IDN?") {
		return "", false
	}
	if cfg.IDN() == config.IDNNameSerial {
		return fmt.Sprintf("%s-%09d", cfg.ShortName(), cfg.Serial()), true
	}
	return cfg.ShortName(), true
}
