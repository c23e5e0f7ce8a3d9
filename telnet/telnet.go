/*
 * GPIB488 - telnet server
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
	"bytes"
	"io"
	"log/slog"
	"net"
)

// Telnet protocol constants.
const (
	tnIAC  byte = 255 // protocol delim
	tnDONT byte = 254 // dont
	tnDO   byte = 253 // do
	tnWONT byte = 252 // wont
	tnWILL byte = 251 // will
	tnSB   byte = 250 // Sub negotiations begin
	tnIP   byte = 244 // Interrupt process
	tnBRK  byte = 243 // break
	tnSE   byte = 240 // Sub negotiations end

	// Telnet line states.

	tnStateData int = 1 + iota // normal
	tnStateIAC                 // IAC seen
	tnStateWILL                // WILL seen
	tnStateDO                  // DO seen
	tnStateDONT                // DONT seen
	tnStateWONT                // WONT seen
	tnStateSB                  // Inside SB, until IAC
	tnStateSE                  // IAC inside SB, waiting for SE

	// Telnet options.
	tnOptionBinary byte = 0  // Binary data transfer
	tnOptionEcho   byte = 1  // Echo
	tnOptionSGA    byte = 3  // Send Go Ahead
	tnOptionTerm   byte = 24 // Request Terminal Type
	tnOptionEOR    byte = 25 // Handle end of record
	tnOptionNAWS   byte = 31 // Negotiate about terminal size
	tnOptionLINE   byte = 34 // line mode
	tnOptionENV    byte = 39 // Environment

	// Telnet flags.
	tnFlagDo   uint8 = 0x01 // Do received
	tnFlagDont uint8 = 0x02 // Don't received
	tnFlagWill uint8 = 0x04 // Will received
	tnFlagWont uint8 = 0x08 // Wont received
)

// Escape character, quotes the next byte of a data line.
const esc byte = 0x1b

// Longest line accepted, longer lines are cut.
const maxLine = 4096

// Convert option number to string.
func optName(opt byte) string {
	switch opt {
	case tnOptionBinary:
		return "bin"
	case tnOptionEcho:
		return "echo"
	case tnOptionSGA:
		return "sga"
	case tnOptionTerm:
		return "term"
	case tnOptionEOR:
		return "eor"
	case tnOptionNAWS:
		return "naws"
	case tnOptionLINE:
		return "line"
	case tnOptionENV:
		return "env"
	}
	return "unknown"
}

// State of one client connection. Plain TCP clients never send IAC and
// see no negotiation.
type tnState struct {
	optionState [256]uint8   // Current state of telnet session
	state       int          // Current line State
	reply       io.Writer    // Where option replies go.
	line        []byte       // Line being collected.
	escaped     bool         // Last data byte was ESC.
	lastCR      bool         // Last data byte ended a line with CR.
	onLine      func(string) // Called with each complete line.
	onBreak     func()       // Called on BRK or IP.
	log         *slog.Logger
}

func newState(reply io.Writer, onLine func(string), onBreak func()) *tnState {
	return &tnState{
		state:   tnStateData,
		reply:   reply,
		onLine:  onLine,
		onBreak: onBreak,
		log:     slog.Default(),
	}
}

// Send a response to client, and record what we sent.
func (state *tnState) sendOption(setState, option byte) {
	data := []byte{tnIAC, setState, option}
	_, _ = state.reply.Write(data)
	switch setState {
	case tnWILL:
		state.optionState[option] |= tnFlagWill
	case tnWONT:
		state.optionState[option] |= tnFlagWont
	case tnDO:
		state.optionState[option] |= tnFlagDo
	case tnDONT:
		state.optionState[option] |= tnFlagDont
	}
}

// Handle DO request, only binary and suppress go ahead are agreed.
func (state *tnState) handleDO(input byte) {
	state.log.Debug("telnet do", "option", optName(input))
	switch input {
	case tnOptionSGA, tnOptionBinary:
		if (state.optionState[input] & tnFlagWill) == 0 {
			state.sendOption(tnWILL, input)
		}
	default:
		if (state.optionState[input] & tnFlagWont) == 0 {
			state.sendOption(tnWONT, input)
		}
	}
}

// Handle WILL offer.
func (state *tnState) handleWILL(input byte) {
	state.log.Debug("telnet will", "option", optName(input))
	switch input {
	case tnOptionSGA, tnOptionBinary:
		if (state.optionState[input] & tnFlagDo) == 0 {
			state.sendOption(tnDO, input)
		}
	default:
		if (state.optionState[input] & tnFlagDont) == 0 {
			state.sendOption(tnDONT, input)
		}
	}
}

// Add one data byte to the line. CR, LF or CR LF end a line unless
// quoted by ESC.
func (state *tnState) data(input byte) {
	if state.escaped {
		state.escaped = false
		state.add(input)
		return
	}
	switch input {
	case '\r':
		state.endLine()
		state.lastCR = true
		return
	case '\n':
		if !state.lastCR {
			state.endLine()
		}
	case 0:
		// NUL after CR from telnet clients.
		if !state.lastCR {
			state.add(input)
		}
		return
	case esc:
		state.escaped = true
		state.add(input)
	default:
		state.add(input)
	}
	state.lastCR = false
}

func (state *tnState) add(input byte) {
	if len(state.line) < maxLine {
		state.line = append(state.line, input)
	}
}

func (state *tnState) endLine() {
	line := string(state.line)
	state.line = state.line[:0]
	state.onLine(line)
}

// Process bytes from the client.
func (state *tnState) receive(buffer []byte) {
	for _, input := range buffer {
		switch state.state {
		case tnStateData: // normal
			if input == tnIAC {
				state.state = tnStateIAC
			} else {
				state.data(input)
			}
		case tnStateIAC: // IAC seen
			switch input {
			case tnIAC:
				state.state = tnStateData
				state.data(input)
			case tnBRK, tnIP:
				state.state = tnStateData
				state.log.Debug("telnet break")
				state.onBreak()
			case tnWILL:
				state.state = tnStateWILL
			case tnWONT:
				state.state = tnStateWONT
			case tnDO:
				state.state = tnStateDO
			case tnDONT:
				state.state = tnStateDONT
			case tnSB:
				state.state = tnStateSB
			default:
				state.state = tnStateData
			}

		case tnStateWILL: // WILL seen
			state.handleWILL(input)
			state.state = tnStateData

		case tnStateWONT: // WONT seen
			if (state.optionState[input] & tnFlagDont) == 0 {
				state.sendOption(tnDONT, input)
			}
			state.state = tnStateData

		case tnStateDO: // DO seen
			state.handleDO(input)
			state.state = tnStateData

		case tnStateDONT:
			if (state.optionState[input] & tnFlagWont) == 0 {
				state.sendOption(tnWONT, input)
			}
			state.state = tnStateData

		case tnStateSB: // Sub negotiation is ignored.
			if input == tnIAC {
				state.state = tnStateSE
			}

		case tnStateSE:
			if input == tnSE {
				state.state = tnStateData
			} else {
				state.state = tnStateSB
			}
		}
	}
}

// Writer that quotes IAC in data sent to the client.
type iacWriter struct {
	w io.Writer
}

func (iw iacWriter) Write(p []byte) (int, error) {
	if bytes.IndexByte(p, tnIAC) < 0 {
		return iw.w.Write(p)
	}
	quoted := bytes.ReplaceAll(p, []byte{tnIAC}, []byte{tnIAC, tnIAC})
	if _, err := iw.w.Write(quoted); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Handle client connection. Lines are run in order on their own goroutine
// so a break can reach a transfer in progress.
func handleClient(conn net.Conn, mux *Mux) {
	defer conn.Close()

	cl, err := mux.attach(conn)
	if err != nil {
		_, _ = conn.Write([]byte("Error: " + err.Error() + "\r\n"))
		slog.Warn("Connection refused", "remote", conn.RemoteAddr().String(), "error", err.Error())
		return
	}
	defer mux.detach(cl)

	lines := make(chan string, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range lines {
			if cl.execute(line) {
				_ = conn.Close()
				return
			}
		}
	}()

	state := newState(rawWriter{cl}, func(line string) {
		select {
		case lines <- line:
		case <-done:
		}
	}, mux.env.Core.Break)

	buffer := make([]byte, 1024)
	for {
		num, err := conn.Read(buffer)
		if err != nil {
			break
		}
		state.receive(buffer[:num])
	}
	close(lines)
	<-done
	slog.Info("Connection closed", "remote", conn.RemoteAddr().String())
}
