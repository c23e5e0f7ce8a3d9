/*
 * GPIB488 - GPIB device command handling
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
	"github.com/rcornwell/gpib488/bus/lines"
)

// Attention is what a device saw during one period of ATN.
type Attention struct {
	Commands     []uint8 // Command bytes in order.
	Listen       bool    // Addressed to listen.
	Talk         bool    // Addressed to talk.
	Unlisten     bool    // UNL seen.
	Untalk       bool    // UNT seen.
	Secondary    uint8   // Secondary address following own address.
	Clear        bool    // DCL, or SDC while listening.
	Trigger      bool    // GET while listening.
	LocalLockout bool    // LLO seen.
	GoToLocal    bool    // GTL while listening.
	SerialPoll   bool    // Status byte sent.
}

// ServiceAttention takes command bytes from the controller while ATN is
// asserted, then sets the device phase to match its new address state.
func (bus *Bus) ServiceAttention() (Attention, error) {
	var att Attention
	if bus.cfg.IsController() {
		return att, ErrNotDevice
	}

	bus.SetControls(DLAS)
	bus.lines.ReleaseDataBus()
	addr := bus.cfg.PrimaryAddr()
	own := false // Last primary was our own address.
	for bus.IsAsserted(lines.ATN) {
		db, _, stage := bus.readByte(false, true)
		if stage == StageATN {
			break
		}
		if stage == StageIFC {
			bus.clearState()
			bus.SetControls(DIDS)
			return att, &HandshakeError{Op: "read", Stage: stage}
		}
		if stage != StageNone {
			bus.SetControls(DIDS)
			return att, &HandshakeError{Op: "read", Stage: stage}
		}

		db &= 0x7f
		att.Commands = append(att.Commands, db)
		debugMsk.Debugf(debugCmd, "device command %02x", db)
		switch {
		case db == UNL:
			att.Unlisten = true
			bus.listen = false
			own = false
		case db == UNT:
			att.Untalk = true
			bus.talk = false
			own = false
		case db == MLA(addr):
			att.Listen = true
			bus.listen = true
			own = true
		case db == MTA(addr):
			att.Talk = true
			bus.talk = true
			own = true
		case db >= TAD && db < UNT:
			// Another talker takes the bus.
			bus.talk = false
			own = false
		case db >= LAD && db < UNL:
			own = false
		case db >= SAD && db < 0x7f:
			if own {
				att.Secondary = db
			}
		case db == SPE:
			bus.spe = true
		case db == SPD:
			bus.spe = false
		case db == DCL:
			att.Clear = true
		case db == SDC && bus.listen:
			att.Clear = true
		case db == GET && bus.listen:
			att.Trigger = true
		case db == GTL && bus.listen:
			att.GoToLocal = true
		case db == LLO:
			att.LocalLockout = true
		}
	}

	switch {
	case bus.talk && bus.spe:
		if err := bus.SendStatus(); err != nil {
			return att, err
		}
		att.SerialPoll = true
		bus.talk = false
	case bus.talk:
		bus.SetControls(DTAS)
	case bus.listen:
		bus.SetControls(DLAS)
	default:
		bus.SetControls(DIDS)
	}
	return att, nil
}

// Drop all address state after IFC.
func (bus *Bus) clearState() {
	bus.listen = false
	bus.talk = false
	bus.spe = false
}

// HandleIFC resets a device when interface clear is asserted. Returns true
// if IFC was seen.
func (bus *Bus) HandleIFC() bool {
	if bus.cfg.IsController() || !bus.IsAsserted(lines.IFC) {
		return false
	}
	bus.clearState()
	bus.SetControls(DIDS)
	return true
}
