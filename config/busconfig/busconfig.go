/*
 * GPIB488 - Bus configuration file items
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

package busconfig

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/gpiolines"
	cfgparser "github.com/rcornwell/gpib488/config/configparser"
	"github.com/rcornwell/gpib488/sim/instrument"
	"github.com/rcornwell/gpib488/util/debug"
)

// Settings collected from a configuration file.
type Settings struct {
	Bus         *config.Config      // Bus record.
	Layout      *gpiolines.Layout   // GPIO pins, nil runs the simulated bus.
	Simulate    []instrument.Config // Instruments on the simulated bus.
	TelnetPort  string              // Network data port.
	MonitorPort string              // Websocket trace port.
	Macros      map[int]string      // Macro number to Lua file.
	EEPROM      string              // Configuration store file.
	debug       map[string][]string // Debug flags per module.
}

// Highest macro number.
const MaxMacro = 9

var ErrValue = errors.New("invalid value")

// Settings being filled by the file being loaded.
var current *Settings

func init() {
	cfgparser.RegisterOption("MODE", setMode)
	cfgparser.RegisterModel("ADDR", cfgparser.TypeModel, setAddr)
	cfgparser.RegisterOption("TIMEOUT", setTimeout)
	cfgparser.RegisterOption("EOI", setEOI)
	cfgparser.RegisterOption("EOS", setEOS)
	cfgparser.RegisterOption("EOR", setEOR)
	cfgparser.RegisterOption("EOT", setEOT)
	cfgparser.RegisterOption("STATUS", setStatus)
	cfgparser.RegisterOption("AUTO", setAuto)
	cfgparser.RegisterOption("VERSION", setVersion)
	cfgparser.RegisterModel("IDN", cfgparser.TypeOptions, setIDN)
	cfgparser.RegisterModel("LAYOUT", cfgparser.TypeOptions, setLayout)
	cfgparser.RegisterModel("SIMULATE", cfgparser.TypeModel, setSimulate)
	cfgparser.RegisterOption("TELNET", setTelnet)
	cfgparser.RegisterOption("MONITOR", setMonitor)
	cfgparser.RegisterModel("MACRO", cfgparser.TypeModel, setMacro)
	cfgparser.RegisterFile("EEPROM", setEEPROM)
	cfgparser.RegisterModel("DEBUG", cfgparser.TypeOptions, setDebug)
	cfgparser.RegisterSwitch("VERBOSE", setVerbose)
}

// Create settings with defaults.
func New() *Settings {
	return &Settings{
		Bus:    config.New(),
		Macros: map[int]string{},
		debug:  map[string][]string{},
	}
}

// Load settings from configuration file name.
func Load(name string) (*Settings, error) {
	current = New()
	defer func() { current = nil }()
	if err := cfgparser.LoadConfigFile(name); err != nil {
		return nil, err
	}
	return current, current.enableDebug()
}

// Parse settings from r.
func Parse(r io.Reader) (*Settings, error) {
	current = New()
	defer func() { current = nil }()
	if err := cfgparser.Load(r); err != nil {
		return nil, err
	}
	return current, current.enableDebug()
}

// Turn on debug flags named in file.
func (set *Settings) enableDebug() error {
	for module, flags := range set.debug {
		for _, flag := range flags {
			if err := debug.Enable(module, flag); err != nil {
				return err
			}
		}
	}
	return nil
}

// Simulated reports whether the bus runs without hardware.
func (set *Settings) Simulated() bool {
	return set.Layout == nil
}

func number(name string, value string) (int, error) {
	n, err := strconv.ParseInt(value, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s", ErrValue, name, value)
	}
	return int(n), nil
}

func onOff(name string, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "on", "yes", "true", "enable":
		return true, nil
	case "0", "off", "no", "false", "disable":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s %s", ErrValue, name, value)
}

func setMode(_ int, value string, _ []cfgparser.Option) error {
	switch strings.ToLower(value) {
	case "controller", "1":
		return current.Bus.SetMode(config.Controller)
	case "device", "0":
		return current.Bus.SetMode(config.Device)
	}
	return fmt.Errorf("%w: mode %s", ErrValue, value)
}

// ADDR <primary> [secondary=<n>] [controller=<n>]
func setAddr(addr int, _ string, options []cfgparser.Option) error {
	if err := current.Bus.SetPrimaryAddr(addr); err != nil {
		return err
	}
	for _, opt := range options {
		n, err := number(opt.Name, opt.EqualOpt)
		if err != nil {
			return err
		}
		switch strings.ToUpper(opt.Name) {
		case "SECONDARY":
			err = current.Bus.SetSecondaryAddr(n)
		case "CONTROLLER":
			err = current.Bus.SetCtrlAddr(n)
		default:
			err = fmt.Errorf("%w: address option %s", ErrValue, opt.Name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func setTimeout(_ int, value string, _ []cfgparser.Option) error {
	ms, err := number("timeout", value)
	if err != nil {
		return err
	}
	return current.Bus.SetReadTimeout(ms)
}

func setEOI(_ int, value string, _ []cfgparser.Option) error {
	on, err := onOff("eoi", value)
	if err != nil {
		return err
	}
	current.Bus.SetEOI(on)
	return nil
}

func setEOS(_ int, value string, _ []cfgparser.Option) error {
	eos, err := number("eos", value)
	if err != nil {
		return err
	}
	return current.Bus.SetEOS(eos)
}

func setEOR(_ int, value string, _ []cfgparser.Option) error {
	eor, err := number("eor", value)
	if err != nil {
		return err
	}
	return current.Bus.SetEOR(eor)
}

// EOT off or EOT <char>, the character also enables it.
func setEOT(_ int, value string, _ []cfgparser.Option) error {
	if on, err := onOff("eot", value); err == nil && !on {
		current.Bus.SetEOTEnable(false)
		return nil
	}
	ch, err := number("eot", value)
	if err != nil {
		return err
	}
	if ch < 0 || ch > 255 {
		return fmt.Errorf("%w: eot %s", ErrValue, value)
	}
	current.Bus.SetEOTChar(uint8(ch))
	current.Bus.SetEOTEnable(true)
	return nil
}

func setStatus(_ int, value string, _ []cfgparser.Option) error {
	status, err := number("status", value)
	if err != nil {
		return err
	}
	if status < 0 || status > 255 {
		return fmt.Errorf("%w: status %s", ErrValue, value)
	}
	current.Bus.SetStatus(uint8(status))
	return nil
}

func setAuto(_ int, value string, _ []cfgparser.Option) error {
	mode, err := number("auto", value)
	if err != nil {
		return err
	}
	return current.Bus.SetAutoMode(mode)
}

func setVersion(_ int, value string, _ []cfgparser.Option) error {
	return current.Bus.SetVersionString(value)
}

// IDN <mode> [name=<short name>] [serial=<number>]
func setIDN(_ int, value string, options []cfgparser.Option) error {
	mode, err := number("idn", value)
	if err != nil {
		return err
	}
	if err := current.Bus.SetIDN(mode); err != nil {
		return err
	}
	for _, opt := range options {
		switch strings.ToUpper(opt.Name) {
		case "NAME":
			err = current.Bus.SetShortName(opt.EqualOpt)
		case "SERIAL":
			var serial int
			serial, err = number("serial", opt.EqualOpt)
			if err == nil {
				err = current.Bus.SetSerial(serial)
			}
		default:
			err = fmt.Errorf("%w: idn option %s", ErrValue, opt.Name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// LAYOUT default | LAYOUT custom DIO1=GPIO5 ATN=GPIO12 ...
func setLayout(_ int, value string, options []cfgparser.Option) error {
	var assign []string
	switch strings.ToLower(value) {
	case "default":
		if len(options) != 0 {
			return fmt.Errorf("%w: default layout takes no pins", ErrValue)
		}
	case "custom":
		for _, opt := range options {
			assign = append(assign, opt.Name+"="+opt.EqualOpt)
		}
	default:
		return fmt.Errorf("%w: layout %s", ErrValue, value)
	}
	layout, err := gpiolines.ParseLayout(strings.Join(assign, ","))
	if err != nil {
		return err
	}
	current.Layout = &layout
	return nil
}

// SIMULATE <addr> [idn="<reply>"] [status=<n>]
func setSimulate(addr int, _ string, options []cfgparser.Option) error {
	cfg := instrument.Config{Addr: addr}
	for _, opt := range options {
		switch strings.ToUpper(opt.Name) {
		case "IDN":
			cfg.IDN = opt.EqualOpt
		case "STATUS":
			status, err := number("status", opt.EqualOpt)
			if err != nil || status < 0 || status > 255 {
				return fmt.Errorf("%w: status %s", ErrValue, opt.EqualOpt)
			}
			cfg.Status = uint8(status)
		default:
			return fmt.Errorf("%w: simulate option %s", ErrValue, opt.Name)
		}
	}
	for _, in := range current.Simulate {
		if in.Addr == addr {
			return fmt.Errorf("%w: instrument %d defined twice", ErrValue, addr)
		}
	}
	current.Simulate = append(current.Simulate, cfg)
	return nil
}

// Port numbers become listen addresses on all interfaces.
func listenAddr(name string, value string) (string, error) {
	if _, err := strconv.ParseUint(value, 10, 16); err == nil {
		return ":" + value, nil
	}
	if !strings.Contains(value, ":") {
		return "", fmt.Errorf("%w: %s %s", ErrValue, name, value)
	}
	return value, nil
}

func setTelnet(_ int, value string, _ []cfgparser.Option) error {
	port, err := listenAddr("telnet", value)
	if err != nil {
		return err
	}
	current.TelnetPort = port
	return nil
}

func setMonitor(_ int, value string, _ []cfgparser.Option) error {
	port, err := listenAddr("monitor", value)
	if err != nil {
		return err
	}
	current.MonitorPort = port
	return nil
}

// MACRO <n> file="<script>"
func setMacro(addr int, _ string, options []cfgparser.Option) error {
	if addr > MaxMacro {
		return fmt.Errorf("%w: macro %d", ErrValue, addr)
	}
	if len(options) != 1 || !strings.EqualFold(options[0].Name, "FILE") || options[0].EqualOpt == "" {
		return fmt.Errorf("%w: macro %d requires file=", ErrValue, addr)
	}
	current.Macros[addr] = options[0].EqualOpt
	return nil
}

func setEEPROM(_ int, name string, _ []cfgparser.Option) error {
	current.EEPROM = name
	return nil
}

// DEBUG <module> <flag>[,<flag>...]
func setDebug(_ int, module string, options []cfgparser.Option) error {
	module = strings.ToUpper(module)
	for _, opt := range options {
		flags := []string{opt.Name}
		for _, value := range opt.Value {
			flags = append(flags, *value)
		}
		current.debug[module] = append(current.debug[module], flags...)
	}
	return nil
}

func setVerbose(_ int, _ string, _ []cfgparser.Option) error {
	current.Bus.SetVerbose(true)
	return nil
}
