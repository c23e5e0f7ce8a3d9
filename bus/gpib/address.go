/*
 * GPIB488 - GPIB addressing and bus commands
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
	"time"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/lines"
)

// Settle time between placing data and asserting DAV.
func (bus *Bus) busSettle() time.Duration {
	return time.Duration(bus.cfg.BusSettle()) * time.Microsecond
}

// Listen address of addr.
func MLA(addr uint8) uint8 {
	return LAD + addr
}

// Talk address of addr.
func MTA(addr uint8) uint8 {
	return TAD + addr
}

// Secondary address byte of addr.
func MSA(addr uint8) uint8 {
	return SAD + (addr & 0x1f)
}

// SendCommand sends one command byte with ATN asserted. The bus is left
// in the command phase.
func (bus *Bus) SendCommand(cmd uint8) error {
	if !bus.cfg.IsController() {
		return ErrNotController
	}
	bus.SetControls(CCMS)
	debugMsk.Debugf(debugCmd, "command %02x", cmd)
	if stage := bus.WriteByte(cmd, false); stage != StageNone {
		return &HandshakeError{Op: "write", Stage: stage}
	}
	return nil
}

// Send command sequence, stopping at the first failure.
func (bus *Bus) sendCommands(cmds ...uint8) error {
	for _, cmd := range cmds {
		if err := bus.SendCommand(cmd); err != nil {
			return err
		}
	}
	return nil
}

// AddressDevice un-addresses the bus, then addresses addr as listener, or
// as talker when talk is set. ATN stays asserted.
func (bus *Bus) AddressDevice(addr uint8, talk bool) error {
	if !bus.cfg.IsController() {
		return ErrNotController
	}
	if addr > config.MaxAddr {
		return fmt.Errorf("%w: address %d: %w", ErrAddressing, addr, config.ErrRange)
	}
	cmd := MLA(addr)
	if talk {
		cmd = MTA(addr)
	}
	if err := bus.sendCommands(UNL, UNT, cmd); err != nil {
		bus.SetControls(CIDS)
		return fmt.Errorf("%w: address %d: %w", ErrAddressing, addr, err)
	}
	bus.addressed = true
	return nil
}

// Address with the configured secondary address when one is set.
func (bus *Bus) addressConfigured(talk bool) error {
	if err := bus.AddressDevice(bus.cfg.PrimaryAddr(), talk); err != nil {
		return err
	}
	if sa := bus.cfg.SecondaryAddr(); sa != 0 {
		if err := bus.SendCommand(sa); err != nil {
			bus.SetControls(CIDS)
			return fmt.Errorf("%w: secondary %02x: %w", ErrAddressing, sa, err)
		}
	}
	return nil
}

// UnaddressDevice sends unlisten and untalk and clears the addressed state.
func (bus *Bus) UnaddressDevice() error {
	if !bus.cfg.IsController() {
		return ErrNotController
	}
	bus.delay(bus.timing.Debounce)
	err := bus.sendCommands(UNL, UNT)
	bus.addressed = false
	if err != nil {
		return fmt.Errorf("%w: unaddress: %w", ErrAddressing, err)
	}
	return nil
}

// Addressed reports whether the controller has a device addressed.
func (bus *Bus) Addressed() bool {
	return bus.addressed
}

// SendSecondary sends a secondary address and releases ATN.
func (bus *Bus) SendSecondary(addr uint8) error {
	err := bus.SendCommand(addr)
	if bus.cfg.IsController() {
		bus.lines.SetControls(lineATN, lineATN, lines.Level)
	}
	return err
}

// Address own address to listen.
func (bus *Bus) SendMLA() error {
	return bus.SendCommand(MLA(bus.cfg.PrimaryAddr()))
}

// Address own address to talk.
func (bus *Bus) SendMTA() error {
	return bus.SendCommand(MTA(bus.cfg.PrimaryAddr()))
}

// Send configured secondary address.
func (bus *Bus) SendMSA() error {
	return bus.SendSecondary(MSA(bus.cfg.SecondaryAddr()))
}

// Send one command then return to idle.
func (bus *Bus) sendIdle(cmds ...uint8) error {
	err := bus.sendCommands(cmds...)
	if bus.cfg.IsController() {
		bus.SetControls(CIDS)
	}
	return err
}

// Unlisten all devices.
func (bus *Bus) SendUNL() error {
	err := bus.sendIdle(UNL)
	if err == nil {
		bus.addressed = false
	}
	return err
}

// Untalk all devices.
func (bus *Bus) SendUNT() error {
	err := bus.sendIdle(UNT)
	if err == nil {
		bus.addressed = false
	}
	return err
}

// Address addr to listen then send a single addressed command.
func (bus *Bus) addressedCommand(addr uint8, cmd uint8) error {
	if err := bus.AddressDevice(addr, false); err != nil {
		return err
	}
	err := bus.SendCommand(cmd)
	if err == nil {
		err = bus.UnaddressDevice()
	}
	bus.SetControls(CIDS)
	return err
}

// Selected device clear.
func (bus *Bus) SendSDC(addr uint8) error {
	return bus.addressedCommand(addr, SDC)
}

// Return addr to local control.
func (bus *Bus) SendGTL(addr uint8) error {
	return bus.addressedCommand(addr, GTL)
}

// Trigger addr.
func (bus *Bus) SendGET(addr uint8) error {
	return bus.addressedCommand(addr, GET)
}

// Lock out front panels of all devices.
func (bus *Bus) SendLLO() error {
	return bus.sendIdle(LLO)
}

// Clear all devices.
func (bus *Bus) SendDCL() error {
	return bus.sendIdle(DCL)
}

// SendIFC pulses interface clear.
func (bus *Bus) SendIFC() error {
	if !bus.cfg.IsController() {
		return ErrNotController
	}
	bus.lines.SetControls(lineIFC, lineIFC, lines.Direction)
	bus.lines.SetControls(0, lineIFC, lines.Level)
	bus.delay(bus.timing.IFCPulse)
	bus.lines.SetControls(lineIFC, lineIFC, lines.Level)
	bus.addressed = false
	debugMsk.Debugf(debugCtrl, "IFC")
	return nil
}

// SetREN drives remote enable. True asserts it.
func (bus *Bus) SetREN(assert bool) error {
	if !bus.cfg.IsController() {
		return ErrNotController
	}
	bus.lines.SetControls(lineREN, lineREN, lines.Direction)
	if assert {
		bus.lines.SetControls(0, lineREN, lines.Level)
	} else {
		bus.lines.SetControls(lineREN, lineREN, lines.Level)
	}
	return nil
}

// SendAllClear drops REN, then holds ATN and REN asserted so every
// device clears, then releases ATN.
func (bus *Bus) SendAllClear() {
	bus.lines.SetControls(lineREN, lineREN, lines.Level)
	bus.delay(bus.timing.ClearHold)
	bus.lines.SetControls(0, lineATN|lineREN, lines.Level)
	bus.delay(bus.timing.ClearHold)
	bus.lines.SetControls(lineATN, lineATN, lines.Level)
	debugMsk.Debugf(debugCtrl, "all clear")
}

// SerialPoll reads the status byte of addr.
func (bus *Bus) SerialPoll(addr uint8) (uint8, error) {
	if !bus.cfg.IsController() {
		return 0, ErrNotController
	}
	if err := bus.sendCommands(UNL, SPE, MTA(addr)); err != nil {
		bus.SetControls(CIDS)
		return 0, fmt.Errorf("%w: serial poll %d: %w", ErrAddressing, addr, err)
	}
	bus.addressed = true
	bus.SetControls(CLAS)
	bus.lines.ReleaseDataBus()
	status, _, stage := bus.ReadByte(false)
	err := bus.sendCommands(SPD, UNT)
	bus.addressed = false
	bus.SetControls(CIDS)
	if stage != StageNone {
		return 0, &HandshakeError{Op: "read", Stage: stage}
	}
	if err != nil {
		return status, fmt.Errorf("%w: serial poll %d: %w", ErrAddressing, addr, err)
	}
	return status, nil
}
