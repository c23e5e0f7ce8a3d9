/*
 * GPIB488 - GPIB bus configuration record
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

package config

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Operating role of the interface.
type Mode uint8

const (
	Device     Mode = 1 + iota // Addressable device.
	Controller                 // Controller in charge.
)

func (m Mode) String() string {
	switch m {
	case Device:
		return "device"
	case Controller:
		return "controller"
	}
	return "unknown"
}

// Write terminator policy, one bit per suppressed terminator.
const (
	EOSCRLF uint8 = iota // Append CR and LF.
	EOSCR                // Append CR only.
	EOSLF                // Append LF only.
	EOSNone              // Append nothing.
)

// Receive terminator policy.
const (
	EORCRLF    uint8 = iota // CR then LF.
	EORCR                   // CR only.
	EORLF                   // LF only.
	EORNone                 // Rely on timeout.
	EORLFCR                 // LF then CR.
	EORETX                  // ETX (0x03).
	EORCRLFETX              // CR, LF then ETX.
	EOREOI                  // EOI only.
)

// Auto read modes.
const (
	AutoOff = iota
	AutoPrologix
	AutoOnQuery
	AutoContinuous
)

// Identification reply modes.
const (
	IDNOff = iota
	IDNName
	IDNNameSerial
)

const (
	MaxAddr       = 30
	MinSecondary  = 0x60
	MaxSecondary  = 0x7e
	MaxTimeout    = 32000
	MaxBusSettle  = 30000
	MaxSerial     = 999999999
	VersionLength = 48
	NameLength    = 16
	RecordSize    = 84
)

// Returned by setters for out of range values.
var ErrRange = errors.New("value out of range")

// Returned by Unmarshal for records of the wrong size or content.
var ErrRecord = errors.New("invalid configuration record")

// Config holds all operating parameters of the interface. Fields change
// only through setters, which reject bad values before touching the record.
type Config struct {
	mode      Mode   // Device or controller.
	ctrlAddr  uint8  // Controller's own address.
	paddr     uint8  // Primary address.
	saddr     uint8  // Secondary address, 0 when not used.
	rtmo      uint16 // Read timeout in milliseconds.
	eoi       bool   // Assert EOI on write.
	eos       uint8  // Write terminator policy.
	eor       uint8  // Receive terminator policy.
	eotEnable bool   // Append EOT character after EOI.
	eotChar   uint8  // EOT character.
	status    uint8  // Status byte.
	autoMode  uint8  // Auto read mode.
	verbose   bool   // Verbose command responses.
	vstr      string // Custom version string.
	sname     string // Interface short name.
	serial    uint32 // Interface serial number.
	idn       uint8  // Identification reply mode.
	busSettle uint16 // Settle time in microseconds.
}

// Create configuration with defaults.
func New() *Config {
	cfg := &Config{}
	cfg.Reset()
	return cfg
}

// Restore defaults.
func (cfg *Config) Reset() {
	*cfg = Config{
		mode:  Controller,
		paddr: 1,
		rtmo:  1200,
	}
}

func (cfg *Config) Mode() Mode { return cfg.mode }
func (cfg *Config) IsController() bool { return cfg.mode == Controller }
func (cfg *Config) CtrlAddr() uint8 { return cfg.ctrlAddr }
func (cfg *Config) PrimaryAddr() uint8 { return cfg.paddr }
func (cfg *Config) SecondaryAddr() uint8 { return cfg.saddr }
func (cfg *Config) ReadTimeout() uint16 { return cfg.rtmo }
func (cfg *Config) EOI() bool { return cfg.eoi }
func (cfg *Config) EOS() uint8 { return cfg.eos }
func (cfg *Config) EOR() uint8 { return cfg.eor }
func (cfg *Config) EOTEnable() bool { return cfg.eotEnable }
func (cfg *Config) EOTChar() uint8 { return cfg.eotChar }
func (cfg *Config) Status() uint8 { return cfg.status }
func (cfg *Config) AutoMode() uint8 { return cfg.autoMode }
func (cfg *Config) Verbose() bool { return cfg.verbose }
func (cfg *Config) VersionString() string { return cfg.vstr }
func (cfg *Config) ShortName() string { return cfg.sname }
func (cfg *Config) Serial() uint32 { return cfg.serial }
func (cfg *Config) IDN() uint8 { return cfg.idn }
func (cfg *Config) BusSettle() uint16 { return cfg.busSettle }

func rangeError(name string, value int, low int, high int) error {
	return fmt.Errorf("%s %d not in %d..%d: %w", name, value, low, high, ErrRange)
}

// Set operating role.
func (cfg *Config) SetMode(mode Mode) error {
	if mode != Device && mode != Controller {
		return rangeError("mode", int(mode), int(Device), int(Controller))
	}
	cfg.mode = mode
	return nil
}

// Set controller's own address.
func (cfg *Config) SetCtrlAddr(addr int) error {
	if addr < 0 || addr > MaxAddr {
		return rangeError("controller address", addr, 0, MaxAddr)
	}
	cfg.ctrlAddr = uint8(addr)
	return nil
}

// Set primary address.
func (cfg *Config) SetPrimaryAddr(addr int) error {
	if addr < 0 || addr > MaxAddr {
		return rangeError("primary address", addr, 0, MaxAddr)
	}
	cfg.paddr = uint8(addr)
	return nil
}

// Set secondary address, 0 disables secondary addressing.
func (cfg *Config) SetSecondaryAddr(addr int) error {
	if addr != 0 && (addr < MinSecondary || addr > MaxSecondary) {
		return rangeError("secondary address", addr, MinSecondary, MaxSecondary)
	}
	cfg.saddr = uint8(addr)
	return nil
}

// Set read timeout in milliseconds.
func (cfg *Config) SetReadTimeout(ms int) error {
	if ms < 1 || ms > MaxTimeout {
		return rangeError("read timeout", ms, 1, MaxTimeout)
	}
	cfg.rtmo = uint16(ms)
	return nil
}

func (cfg *Config) SetEOI(enable bool) {
	cfg.eoi = enable
}

// Set write terminator policy.
func (cfg *Config) SetEOS(eos int) error {
	if eos < int(EOSCRLF) || eos > int(EOSNone) {
		return rangeError("eos", eos, int(EOSCRLF), int(EOSNone))
	}
	cfg.eos = uint8(eos)
	return nil
}

// Set receive terminator policy.
func (cfg *Config) SetEOR(eor int) error {
	if eor < int(EORCRLF) || eor > int(EOREOI) {
		return rangeError("eor", eor, int(EORCRLF), int(EOREOI))
	}
	cfg.eor = uint8(eor)
	return nil
}

func (cfg *Config) SetEOTEnable(enable bool) {
	cfg.eotEnable = enable
}

func (cfg *Config) SetEOTChar(ch uint8) {
	cfg.eotChar = ch
}

// Status byte is any value, the SRQ line follows it in the bus engine.
func (cfg *Config) SetStatus(status uint8) {
	cfg.status = status
}

// Set auto read mode.
func (cfg *Config) SetAutoMode(mode int) error {
	if mode < AutoOff || mode > AutoContinuous {
		return rangeError("auto mode", mode, AutoOff, AutoContinuous)
	}
	cfg.autoMode = uint8(mode)
	return nil
}

func (cfg *Config) SetVerbose(verbose bool) {
	cfg.verbose = verbose
}

// Set custom version string.
func (cfg *Config) SetVersionString(vstr string) error {
	if len(vstr) >= VersionLength {
		return rangeError("version string length", len(vstr), 0, VersionLength-1)
	}
	cfg.vstr = vstr
	return nil
}

// Set interface short name.
func (cfg *Config) SetShortName(name string) error {
	if len(name) >= NameLength {
		return rangeError("short name length", len(name), 0, NameLength-1)
	}
	cfg.sname = name
	return nil
}

func (cfg *Config) SetSerial(serial int) error {
	if serial < 0 || serial > MaxSerial {
		return rangeError("serial", serial, 0, MaxSerial)
	}
	cfg.serial = uint32(serial)
	return nil
}

func (cfg *Config) SetIDN(mode int) error {
	if mode < IDNOff || mode > IDNNameSerial {
		return rangeError("idn", mode, IDNOff, IDNNameSerial)
	}
	cfg.idn = uint8(mode)
	return nil
}

// Set bus settle time in microseconds.
func (cfg *Config) SetBusSettle(us int) error {
	if us < 0 || us > MaxBusSettle {
		return rangeError("bus settle", us, 0, MaxBusSettle)
	}
	cfg.busSettle = uint16(us)
	return nil
}

/*
 * Record layout, little endian:
 *
 *  0      flags: bit 0 EOT enable, bit 1 EOI, bit 2 verbose
 *  1      mode
 *  2      controller address
 *  3      primary address
 *  4      secondary address
 *  5      eos
 *  6      eor
 *  7      status
 *  8      auto mode
 *  9-10   read timeout
 *  11     eot character
 *  12-59  version string, NUL padded
 *  60-61  bus settle
 *  62-77  short name, NUL padded
 *  78-81  serial
 *  82     idn mode
 *  83     reserved
 */

const (
	flagEOT     = 0x01
	flagEOI     = 0x02
	flagVerbose = 0x04
)

// Marshal returns the persisted form of the record.
func (cfg *Config) Marshal() []byte {
	rec := make([]byte, RecordSize)
	if cfg.eotEnable {
		rec[0] |= flagEOT
	}
	if cfg.eoi {
		rec[0] |= flagEOI
	}
	if cfg.verbose {
		rec[0] |= flagVerbose
	}
	rec[1] = uint8(cfg.mode)
	rec[2] = cfg.ctrlAddr
	rec[3] = cfg.paddr
	rec[4] = cfg.saddr
	rec[5] = cfg.eos
	rec[6] = cfg.eor
	rec[7] = cfg.status
	rec[8] = cfg.autoMode
	binary.LittleEndian.PutUint16(rec[9:], cfg.rtmo)
	rec[11] = cfg.eotChar
	copy(rec[12:12+VersionLength-1], cfg.vstr)
	binary.LittleEndian.PutUint16(rec[60:], cfg.busSettle)
	copy(rec[62:62+NameLength-1], cfg.sname)
	binary.LittleEndian.PutUint32(rec[78:], cfg.serial)
	rec[82] = cfg.idn
	return rec
}

// Return string up to first NUL.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Unmarshal loads a persisted record. Every field goes through its setter,
// on error the current configuration is left unchanged.
func (cfg *Config) Unmarshal(rec []byte) error {
	if len(rec) != RecordSize {
		return fmt.Errorf("%w: size %d", ErrRecord, len(rec))
	}

	n := New()
	n.eotEnable = (rec[0] & flagEOT) != 0
	n.eoi = (rec[0] & flagEOI) != 0
	n.verbose = (rec[0] & flagVerbose) != 0
	n.eotChar = rec[11]
	n.status = rec[7]
	errs := []error{
		n.SetMode(Mode(rec[1])),
		n.SetCtrlAddr(int(rec[2])),
		n.SetPrimaryAddr(int(rec[3])),
		n.SetSecondaryAddr(int(rec[4])),
		n.SetEOS(int(rec[5])),
		n.SetEOR(int(rec[6])),
		n.SetAutoMode(int(rec[8])),
		n.SetReadTimeout(int(binary.LittleEndian.Uint16(rec[9:]))),
		n.SetVersionString(cString(rec[12 : 12+VersionLength])),
		n.SetBusSettle(int(binary.LittleEndian.Uint16(rec[60:]))),
		n.SetShortName(cString(rec[62 : 62+NameLength])),
		n.SetSerial(int(binary.LittleEndian.Uint32(rec[78:]))),
		n.SetIDN(int(rec[82])),
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrRecord, err)
	}
	*cfg = *n
	return nil
}
