/*
 * GPIB488 - GPIB message transfer
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
	"fmt"
	"io"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/lines"
)

// ReceiveOptions adjust a single Receive call.
type ReceiveOptions struct {
	DetectEOI  bool  // Stop on EOI regardless of configuration.
	UseEndByte bool  // Stop after EndByte.
	EndByte    uint8 // Last byte of message, delivered to the sink.
}

// Terminator sequences in wire order, indexed by receive policy.
var terminators = [...][]byte{
	config.EORCRLF:    {CR, LF},
	config.EORCR:      {CR},
	config.EORLF:      {LF},
	config.EORNone:    nil,
	config.EORLFCR:    {LF, CR},
	config.EORETX:     {ETX},
	config.EORCRLFETX: {CR, LF, ETX},
	config.EOREOI:     nil,
}

// Terminator returns the receive terminator of policy eor.
func Terminator(eor uint8) []byte {
	if int(eor) >= len(terminators) {
		return nil
	}
	return terminators[eor]
}

// Transfer session state for one receive.
type session struct {
	term  []byte // Terminator to match.
	held  []byte // Bytes that may start the terminator.
	sink  io.Writer
	count int  // Bytes delivered.
	eoi   bool // EOI seen.
}

func (s *session) emit(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	n, err := s.sink.Write(b)
	s.count += n
	return err
}

// Add byte to window. Returns true when the terminator is complete. Bytes
// that can no longer be part of the terminator go to the sink.
func (s *session) push(db uint8) (bool, error) {
	if len(s.term) == 0 {
		return false, s.emit([]byte{db})
	}
	s.held = append(s.held, db)
	for len(s.held) > 0 && !isPrefix(s.held, s.term) {
		if err := s.emit(s.held[:1]); err != nil {
			return false, err
		}
		s.held = s.held[1:]
	}
	if len(s.held) == len(s.term) {
		s.held = s.held[:0]
		return true, nil
	}
	return false, nil
}

// Deliver anything still held.
func (s *session) flush() error {
	err := s.emit(s.held)
	s.held = nil
	return err
}

func isPrefix(b []byte, of []byte) bool {
	if len(b) > len(of) {
		return false
	}
	for i := range b {
		if b[i] != of[i] {
			return false
		}
	}
	return true
}

// Send writes data as talker, followed by the configured end of string
// bytes. With EOI enabled every byte goes out as is and EOI is pulsed
// after the message. Otherwise ESC quotes the next byte and bare CR, LF
// and ESC are dropped.
func (bus *Bus) Send(data []byte) error {
	if bus.cfg.IsController() {
		bus.SetControls(CTAS)
	} else {
		bus.SetControls(DTAS)
	}

	raw := bus.cfg.EOI()
	escaped := false
	for _, db := range data {
		if !raw {
			if !escaped && db == ESC {
				escaped = true
				continue
			}
			if !escaped && (db == CR || db == LF) {
				continue
			}
			escaped = false
		}
		if err := bus.sendByte(db); err != nil {
			return err
		}
	}

	eos := bus.cfg.EOS()
	if eos&0x02 == 0 {
		if err := bus.sendByte(CR); err != nil {
			return err
		}
	}
	if eos&0x01 == 0 {
		if err := bus.sendByte(LF); err != nil {
			return err
		}
	}

	if bus.cfg.EOI() {
		bus.lines.SetControls(0, lineEOI, lines.Level)
		bus.delay(bus.timing.EOIPulse)
		bus.lines.SetControls(lineEOI, lineEOI, lines.Level)
	}
	bus.idle()
	debugMsk.Debugf(debugData, "sent %d bytes", len(data))
	return nil
}

// Write one message byte, restoring idle on failure.
func (bus *Bus) sendByte(db uint8) error {
	stage := bus.WriteByte(db, false)
	if stage == StageNone {
		return nil
	}
	bus.log.Debug("Send failed", "byte", db, "stage", stage.String())
	// A device aborted by the controller stays listening for commands.
	if bus.cfg.IsController() || stage.Timeout() {
		bus.idle()
	}
	return &HandshakeError{Op: "write", Stage: stage}
}

// Receive reads one message from the bus into sink. As controller the
// configured device is addressed to talk first. Returns number of bytes
// delivered to sink.
func (bus *Bus) Receive(sink io.Writer, opts ReceiveOptions) (int, error) {
	return bus.receive(bus.cfg.PrimaryAddr(), true, sink, opts)
}

// ReadFrom addresses addr to talk and reads one message.
func (bus *Bus) ReadFrom(addr uint8, sink io.Writer, opts ReceiveOptions) (int, error) {
	if !bus.cfg.IsController() {
		return 0, ErrNotController
	}
	return bus.receive(addr, false, sink, opts)
}

// WriteTo addresses addr to listen, sends data and unaddresses the bus.
func (bus *Bus) WriteTo(addr uint8, data []byte) error {
	if err := bus.AddressDevice(addr, false); err != nil {
		return err
	}
	return bus.sendAddressed(data)
}

// Write sends data to the configured device, using its secondary address
// when one is set.
func (bus *Bus) Write(data []byte) error {
	if !bus.cfg.IsController() {
		return ErrNotController
	}
	if err := bus.addressConfigured(false); err != nil {
		return err
	}
	return bus.sendAddressed(data)
}

func (bus *Bus) sendAddressed(data []byte) error {
	if err := bus.Send(data); err != nil {
		_ = bus.UnaddressDevice()
		bus.SetControls(CIDS)
		return err
	}
	err := bus.UnaddressDevice()
	bus.SetControls(CIDS)
	return err
}

func (bus *Bus) receive(addr uint8, secondary bool, sink io.Writer, opts ReceiveOptions) (int, error) {
	// A break only applies to the transfer it was signalled in.
	bus.txBreak.Store(false)
	defer bus.txBreak.Store(false)
	eor := bus.cfg.EOR()
	withEOI := bus.cfg.EOI() || opts.DetectEOI || eor == config.EOREOI || eor == config.EORETX
	controller := bus.cfg.IsController()

	if controller {
		var err error
		if secondary {
			err = bus.addressConfigured(true)
		} else {
			err = bus.AddressDevice(addr, true)
		}
		if err != nil {
			bus.SetControls(CIDS)
			return 0, err
		}
		bus.SetControls(CLAS)
	} else {
		bus.SetControls(DLAS)
		withEOI = true
	}
	bus.lines.ReleaseDataBus()

	sess := &session{sink: sink}
	if !withEOI || eor == config.EORETX {
		sess.term = Terminator(eor)
	}

	var err error
	for {
		if bus.txBreak.Load() {
			err = ErrBreak
			break
		}
		if !controller && bus.IsAsserted(lines.ATN) {
			break
		}

		db, eoi, stage := bus.readByte(withEOI, false)
		if stage != StageNone {
			err = &HandshakeError{Op: "read", Stage: stage}
			break
		}

		if opts.UseEndByte && db == opts.EndByte {
			if err = sess.flush(); err == nil {
				err = sess.emit([]byte{db})
			}
			break
		}
		done, werr := sess.push(db)
		if werr != nil {
			err = fmt.Errorf("gpib receive: %w", werr)
			break
		}
		if done {
			break
		}
		if withEOI && eoi {
			sess.eoi = true
			break
		}
	}

	if ferr := sess.flush(); ferr != nil && err == nil {
		err = fmt.Errorf("gpib receive: %w", ferr)
	}
	if sess.eoi && bus.cfg.EOTEnable() {
		if _, werr := sink.Write([]byte{bus.cfg.EOTChar()}); werr != nil && err == nil {
			err = fmt.Errorf("gpib receive: %w", werr)
		}
	}

	if controller {
		if uerr := bus.UnaddressDevice(); uerr != nil && err == nil {
			err = uerr
		}
		bus.SetControls(CIDS)
	} else {
		bus.SetControls(DIDS)
	}
	if err != nil {
		bus.log.Debug("Receive ended", "bytes", sess.count, "error", err.Error())
	}
	debugMsk.Debugf(debugData, "received %d bytes eoi=%v", sess.count, sess.eoi)
	return sess.count, err
}
