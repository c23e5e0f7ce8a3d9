/*
 * GPIB488 - Interface commands
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

package parser

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/gpib"
	"github.com/rcornwell/gpib488/bus/lines"
	"github.com/rcornwell/gpib488/command/command"
	"github.com/rcornwell/gpib488/config/store"
)

const (
	ctl = command.ValidController
	dev = command.ValidDevice
	all = command.ValidAll
)

var cmdList []cmd

// Filled in init, help refers back to the list.
func init() {
	cmdList = []cmd{
		{Name: "addr", Min: 4, Valid: all, Args: "[pad [sad]]", Help: "Set or show the GPIB address", Process: addr},
		{Name: "allspoll", Min: 8, Valid: ctl, Help: "Serial poll every address", Process: allSpoll},
		{Name: "auto", Min: 4, Valid: ctl, Args: "[0-3]", Help: "Set or show read after write", Process: auto},
		{Name: "clr", Min: 3, Valid: ctl, Help: "Clear the addressed device", Process: clr},
		{Name: "dcl", Min: 3, Valid: ctl, Help: "Clear all devices", Process: dcl},
		{Name: "default", Min: 7, Valid: all, Help: "Restore default configuration", Process: defaults},
		{Name: "eoi", Min: 3, Valid: all, Args: "[0|1]", Help: "Set or show EOI on last byte sent", Process: eoi},
		{Name: "eor", Min: 3, Valid: all, Args: "[0-7]", Help: "Set or show receive terminator", Process: eor},
		{Name: "eos", Min: 3, Valid: all, Args: "[0-3]", Help: "Set or show send terminator", Process: eos},
		{Name: "eot_char", Min: 8, Valid: all, Args: "[char]", Help: "Set or show character added on EOI", Process: eotChar},
		{Name: "eot_enable", Min: 10, Valid: all, Args: "[0|1]", Help: "Set or show adding character on EOI", Process: eotEnable},
		{Name: "help", Min: 1, Valid: all, Args: "[command]", Help: "Show commands", Process: help, Complete: helpComplete},
		{Name: "ifc", Min: 3, Valid: ctl, Help: "Pulse interface clear", Process: ifc},
		{
			Name: "id", Min: 2, Valid: all, Args: "name|serial|verstr [value]", Help: "Set or show identification",
			Process: id, Complete: keywordComplete(idOptions),
		},
		{Name: "idn", Min: 3, Valid: all, Args: "[0-2]", Help: "Set or show *IDN? reply mode", Process: idn},
		{
			Name: "llo", Min: 3, Valid: ctl, Args: "[all]", Help: "Lock out front panel",
			Process: llo, Complete: keywordComplete(allOption),
		},
		{
			Name: "loc", Min: 3, Valid: ctl, Args: "[all]", Help: "Return to local control",
			Process: loc, Complete: keywordComplete(allOption),
		},
		{Name: "macro", Min: 5, Valid: ctl, Args: "[n]", Help: "List or run a macro", Process: macro},
		{Name: "mla", Min: 3, Valid: ctl, Help: "Send my listen address", Process: mla},
		{Name: "mode", Min: 4, Valid: all, Args: "[0|1]", Help: "Set or show device (0) or controller (1) mode", Process: mode},
		{Name: "msa", Min: 3, Valid: ctl, Args: "sad", Help: "Send secondary address", Process: msa},
		{Name: "mta", Min: 3, Valid: ctl, Help: "Send my talk address", Process: mta},
		{Name: "quit", Min: 4, Valid: all, Help: "End session", Process: quit},
		{
			Name: "read", Min: 4, Valid: ctl, Args: "[eoi|char]", Help: "Read from addressed device",
			Process: read, Complete: keywordComplete(readOptions),
		},
		{Name: "read_tmo_ms", Min: 11, Valid: ctl, Args: "[1-32000]", Help: "Set or show read timeout", Process: readTimeout},
		{Name: "ren", Min: 3, Valid: ctl, Args: "[0|1]", Help: "Set or show remote enable", Process: ren},
		{Name: "repeat", Min: 6, Valid: ctl, Args: "count delay data", Help: "Send data and read reply repeatedly", Process: repeat},
		{Name: "rst", Min: 3, Valid: all, Help: "Reset interface", Process: rst},
		{Name: "savecfg", Min: 7, Valid: all, Help: "Save configuration", Process: saveCfg},
		{Name: "setvstr", Min: 7, Valid: all, Args: "text", Help: "Set version string", Process: setVstr},
		{
			Name: "spoll", Min: 5, Valid: ctl, Args: "[all|pad]", Help: "Serial poll device",
			Process: spoll, Complete: keywordComplete(allOption),
		},
		{Name: "srq", Min: 3, Valid: ctl, Help: "Show service request", Process: srq},
		{Name: "status", Min: 6, Valid: dev, Args: "[byte]", Help: "Set or show status byte", Process: status},
		{Name: "trg", Min: 3, Valid: ctl, Args: "[pad ...]", Help: "Trigger devices", Process: trg},
		{Name: "unl", Min: 3, Valid: ctl, Help: "Send unlisten", Process: unl},
		{Name: "unt", Min: 3, Valid: ctl, Help: "Send untalk", Process: unt},
		{
			Name: "ver", Min: 3, Valid: all, Args: "[real]", Help: "Show version",
			Process: ver, Complete: keywordComplete(verOptions),
		},
		{Name: "verbose", Min: 7, Valid: all, Help: "Toggle verbose mode", Process: verbose},
	}
}

var (
	allOption = []command.Options{
		{Name: "all", OptionType: command.OptionSwitch, OptionValid: ctl},
	}
	idOptions = []command.Options{
		{Name: "name", OptionType: command.OptionName, OptionValid: all},
		{Name: "serial", OptionType: command.OptionNumber, OptionValid: all},
		{Name: "verstr", OptionType: command.OptionName, OptionValid: all},
	}
	readOptions = []command.Options{
		{Name: "eoi", OptionType: command.OptionSwitch, OptionValid: ctl},
	}
	verOptions = []command.Options{
		{Name: "real", OptionType: command.OptionSwitch, OptionValid: all},
	}
)

// Limit of addresses for one ++trg.
const maxTrigger = 15

// Run fn against the bus configuration.
func (env *Env) config(fn func(*config.Config) error) error {
	return env.Core.Do(func(bus *gpib.Bus) error {
		return fn(bus.Config())
	})
}

// Handle a setting that is a number: show it or set it.
func (env *Env) number(line *cmdLine, name string, low int, high int,
	get func(*config.Config) int, set func(*config.Config, int) error,
) error {
	value, ok, err := line.getRange(low, high)
	if err != nil {
		return err
	}
	if err := line.checkEOL(); err != nil {
		return err
	}
	return env.config(func(cfg *config.Config) error {
		if !ok {
			env.show(cfg, name, get(cfg))
			return nil
		}
		return set(cfg, value)
	})
}

// Handle a setting that is on or off.
func (env *Env) flag(line *cmdLine, name string, get func(*config.Config) bool, set func(*config.Config, bool)) error {
	return env.number(line, name, 0, 1,
		func(cfg *config.Config) int {
			if get(cfg) {
				return 1
			}
			return 0
		},
		func(cfg *config.Config, v int) error {
			set(cfg, v == 1)
			return nil
		})
}

// ++addr [pad [sad]]
func addr(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Addr")
	pad, ok, err := line.getRange(0, config.MaxAddr)
	if err != nil {
		return false, err
	}
	sad, hasSad, err := line.getRange(config.MinSecondary, config.MaxSecondary)
	if err != nil {
		return false, err
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.config(func(cfg *config.Config) error {
		if !ok {
			text := strconv.Itoa(int(cfg.PrimaryAddr()))
			if cfg.SecondaryAddr() != 0 {
				text += " " + strconv.Itoa(int(cfg.SecondaryAddr()))
			}
			env.show(cfg, "addr", text)
			return nil
		}
		if err := cfg.SetPrimaryAddr(pad); err != nil {
			return err
		}
		if !hasSad {
			sad = 0
		}
		return cfg.SetSecondaryAddr(sad)
	})
}

// Poll addresses, printing those that answer.
func allSpoll(_ *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Allspoll")
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		own := bus.Config().CtrlAddr()
		for pad := uint8(0); pad <= config.MaxAddr; pad++ {
			if pad == own {
				continue
			}
			status, err := bus.SerialPoll(pad)
			if errors.Is(err, gpib.ErrAddressing) {
				return err
			}
			if err != nil {
				continue
			}
			env.println(fmt.Sprintf("%d %d", pad, status))
		}
		return nil
	})
}

func auto(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Auto")
	return false, env.number(line, "auto", config.AutoOff, config.AutoContinuous,
		func(cfg *config.Config) int { return int(cfg.AutoMode()) },
		(*config.Config).SetAutoMode)
}

// Selected device clear of the addressed device.
func clr(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Clr")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		return bus.SendSDC(bus.Config().PrimaryAddr())
	})
}

func dcl(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command DCL")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do((*gpib.Bus).SendDCL)
}

// Restore defaults and restart the bus.
func defaults(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Default")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		bus.Config().Reset()
		bus.Begin()
		return nil
	})
}

func eoi(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command EOI")
	return false, env.flag(line, "eoi", (*config.Config).EOI, (*config.Config).SetEOI)
}

func eor(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command EOR")
	return false, env.number(line, "eor", int(config.EORCRLF), int(config.EOREOI),
		func(cfg *config.Config) int { return int(cfg.EOR()) },
		(*config.Config).SetEOR)
}

func eos(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command EOS")
	return false, env.number(line, "eos", int(config.EOSCRLF), int(config.EOSNone),
		func(cfg *config.Config) int { return int(cfg.EOS()) },
		(*config.Config).SetEOS)
}

func eotChar(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command EOT char")
	return false, env.number(line, "eot_char", 0, 255,
		func(cfg *config.Config) int { return int(cfg.EOTChar()) },
		func(cfg *config.Config, v int) error {
			cfg.SetEOTChar(uint8(v))
			return nil
		})
}

func eotEnable(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command EOT enable")
	return false, env.flag(line, "eot_enable", (*config.Config).EOTEnable, (*config.Config).SetEOTEnable)
}

// List commands valid in the current mode, or describe one.
func help(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Help")
	role, err := env.role()
	if err != nil {
		return false, err
	}
	name := line.getWord()
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	list := cmdList
	if name != "" {
		list = matchList(name)
		if len(list) == 0 {
			return false, fmt.Errorf("%w: %s", ErrCommand, name)
		}
	}
	for _, c := range list {
		if c.Valid&role == 0 {
			continue
		}
		env.println(fmt.Sprintf("%-24s %s", strings.TrimSpace(prefix+c.Name+" "+c.Args), c.Help))
	}
	return false, nil
}

func ifc(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command IFC")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do((*gpib.Bus).SendIFC)
}

// ++id name|serial|verstr [value]
func id(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command ID")
	opt, err := line.getKeyword(idOptions, all)
	if err != nil {
		return false, err
	}
	if opt == nil {
		return false, fmt.Errorf("%w: id needs name, serial or verstr", ErrArg)
	}
	value := line.getRest()
	return false, env.config(func(cfg *config.Config) error {
		switch opt.Name {
		case "name":
			if value == "" {
				env.show(cfg, "name", cfg.ShortName())
				return nil
			}
			return cfg.SetShortName(value)
		case "serial":
			if value == "" {
				env.show(cfg, "serial", fmt.Sprintf("%09d", cfg.Serial()))
				return nil
			}
			serial, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%w: serial %s", ErrArg, value)
			}
			return cfg.SetSerial(serial)
		default:
			if value == "" {
				env.show(cfg, "verstr", cfg.VersionString())
				return nil
			}
			return cfg.SetVersionString(value)
		}
	})
}

func idn(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command IDN")
	return false, env.number(line, "idn", config.IDNOff, config.IDNNameSerial,
		func(cfg *config.Config) int { return int(cfg.IDN()) },
		(*config.Config).SetIDN)
}

// Local lockout of the addressed device, or of all devices.
func llo(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command LLO")
	opt, err := line.getKeyword(allOption, ctl)
	if err != nil {
		return false, err
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		if opt != nil {
			if err := bus.SetREN(true); err != nil {
				return err
			}
			return bus.SendLLO()
		}
		if err := bus.AddressDevice(bus.Config().PrimaryAddr(), false); err != nil {
			return err
		}
		err := bus.SendCommand(gpib.LLO)
		if uerr := bus.UnaddressDevice(); err == nil {
			err = uerr
		}
		bus.SetControls(gpib.CIDS)
		return err
	})
}

// Return the addressed device to local, or all devices by dropping REN.
func loc(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Loc")
	opt, err := line.getKeyword(allOption, ctl)
	if err != nil {
		return false, err
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		if opt != nil {
			return bus.SetREN(false)
		}
		return bus.SendGTL(bus.Config().PrimaryAddr())
	})
}

// List macros or run one.
func macro(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Macro")
	if env.Macros == nil {
		return false, errors.New("no macros defined")
	}
	n, ok, err := line.getRange(0, 9)
	if err != nil {
		return false, err
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	if !ok {
		var names []string
		for _, m := range env.Macros.List() {
			names = append(names, strconv.Itoa(m))
		}
		env.println(strings.Join(names, " "))
		return false, nil
	}
	return false, env.Macros.Run(n, env.Out)
}

func mla(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command MLA")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do((*gpib.Bus).SendMLA)
}

// Change role, restarting the bus in the new one.
func mode(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Mode")
	value, ok, err := line.getRange(0, 1)
	if err != nil {
		return false, err
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		cfg := bus.Config()
		if !ok {
			current := 0
			if cfg.IsController() {
				current = 1
			}
			env.show(cfg, "mode", current)
			return nil
		}
		role := config.Device
		if value == 1 {
			role = config.Controller
		}
		if role == cfg.Mode() {
			return nil
		}
		if err := cfg.SetMode(role); err != nil {
			return err
		}
		bus.Begin()
		return nil
	})
}

func msa(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command MSA")
	sad, ok, err := line.getRange(config.MinSecondary, config.MaxSecondary)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: msa needs a secondary address", ErrArg)
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		return bus.SendSecondary(uint8(sad))
	})
}

func mta(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command MTA")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do((*gpib.Bus).SendMTA)
}

func quit(_ *cmdLine, _ *Env) (bool, error) {
	slog.Debug("Command Quit")
	return true, nil
}

// ++read [eoi|char]
func read(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Read")
	var opts gpib.ReceiveOptions
	line.skipSpace()
	if !line.isEOL() {
		if word := line.getWord(); word != "" {
			if command.Match(word, readOptions, ctl) == nil {
				return false, fmt.Errorf("%w: %s", ErrArg, word)
			}
			opts.DetectEOI = true
		} else {
			end, _, err := line.getRange(0, 255)
			if err != nil {
				return false, err
			}
			opts.UseEndByte = true
			opts.EndByte = uint8(end)
		}
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.readReply(opts)
}

// Read one message from the addressed device to the output.
func (env *Env) readReply(opts gpib.ReceiveOptions) error {
	var buf bytes.Buffer
	err := env.Core.Do(func(bus *gpib.Bus) error {
		_, err := bus.Receive(&buf, opts)
		return err
	})
	if buf.Len() != 0 {
		buf.WriteString("\r\n")
		_, _ = env.Out.Write(buf.Bytes())
	}
	return err
}

func readTimeout(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Read timeout")
	return false, env.number(line, "read_tmo_ms", 1, config.MaxTimeout,
		func(cfg *config.Config) int { return int(cfg.ReadTimeout()) },
		(*config.Config).SetReadTimeout)
}

func ren(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command REN")
	value, ok, err := line.getRange(0, 1)
	if err != nil {
		return false, err
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		if !ok {
			state := 0
			if bus.IsAsserted(lines.REN) {
				state = 1
			}
			env.show(bus.Config(), "ren", state)
			return nil
		}
		return bus.SetREN(value == 1)
	})
}

// ++repeat count delay data
func repeat(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Repeat")
	count, ok, err := line.getRange(2, 255)
	if err != nil || !ok {
		return false, fmt.Errorf("%w: repeat needs count 2..255", ErrArg)
	}
	delay, ok, err := line.getRange(0, 10000)
	if err != nil || !ok {
		return false, fmt.Errorf("%w: repeat needs delay 0..10000 ms", ErrArg)
	}
	data := line.getRest()
	if data == "" {
		return false, fmt.Errorf("%w: repeat needs data", ErrArg)
	}
	for range count {
		if err := env.Core.Do(func(bus *gpib.Bus) error {
			return bus.Write([]byte(data))
		}); err != nil {
			return false, err
		}
		if err := env.readReply(gpib.ReceiveOptions{}); err != nil {
			return false, err
		}
		time.Sleep(time.Duration(delay) * time.Millisecond)
	}
	return false, nil
}

// Reload the starting configuration, then any saved one, and restart.
func rst(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Reset")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		cfg := bus.Config()
		if env.Initial != nil {
			*cfg = *env.Initial
		} else {
			cfg.Reset()
		}
		if env.Store != nil {
			err := env.Store.Load(cfg)
			if err != nil && !errors.Is(err, store.ErrClear) {
				slog.Warn("Saved configuration not loaded", "error", err.Error())
			}
		}
		bus.Begin()
		return nil
	})
}

func saveCfg(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Savecfg")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	if env.Store == nil {
		return false, ErrNoStore
	}
	return false, env.config(env.Store.Save)
}

func setVstr(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Setvstr")
	text := line.getRest()
	if text == "" {
		return false, fmt.Errorf("%w: setvstr needs text", ErrArg)
	}
	return false, env.config(func(cfg *config.Config) error {
		return cfg.SetVersionString(text)
	})
}

// ++spoll [all|pad]
func spoll(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Spoll")
	line.skipSpace()
	if word := line.getWord(); word != "" {
		if command.Match(word, allOption, ctl) == nil {
			return false, fmt.Errorf("%w: %s", ErrArg, word)
		}
		if err := line.checkEOL(); err != nil {
			return false, err
		}
		return allSpoll(line, env)
	}
	pad, ok, err := line.getRange(0, config.MaxAddr)
	if err != nil {
		return false, err
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		if !ok {
			pad = int(bus.Config().PrimaryAddr())
		}
		status, err := bus.SerialPoll(uint8(pad))
		if err != nil {
			return err
		}
		env.println(strconv.Itoa(int(status)))
		return nil
	})
}

func srq(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command SRQ")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		state := 0
		if bus.IsSRQ() {
			state = 1
		}
		env.show(bus.Config(), "srq", state)
		return nil
	})
}

// Status byte of the device, setting RQS requests service.
func status(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Status")
	value, ok, err := line.getRange(0, 255)
	if err != nil {
		return false, err
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		if !ok {
			env.show(bus.Config(), "status", bus.Config().Status())
			return nil
		}
		bus.SetStatus(uint8(value))
		return nil
	})
}

// Trigger the addressed device or each address given.
func trg(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Trg")
	var pads []uint8
	for {
		pad, ok, err := line.getRange(0, config.MaxAddr)
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		pads = append(pads, uint8(pad))
	}
	if len(pads) > maxTrigger {
		return false, fmt.Errorf("%w: at most %d addresses", ErrArg, maxTrigger)
	}
	return false, env.Core.Do(func(bus *gpib.Bus) error {
		if len(pads) == 0 {
			pads = append(pads, bus.Config().PrimaryAddr())
		}
		for _, pad := range pads {
			if err := bus.SendGET(pad); err != nil {
				return err
			}
		}
		return nil
	})
}

func unl(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command UNL")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do((*gpib.Bus).SendUNL)
}

func unt(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command UNT")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.Core.Do((*gpib.Bus).SendUNT)
}

// Version string, ++ver real ignores any custom one.
func ver(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Ver")
	opt, err := line.getKeyword(verOptions, all)
	if err != nil {
		return false, err
	}
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.config(func(cfg *config.Config) error {
		if opt == nil && cfg.VersionString() != "" {
			env.println(cfg.VersionString())
			return nil
		}
		env.println(Version)
		return nil
	})
}

func verbose(line *cmdLine, env *Env) (bool, error) {
	slog.Debug("Command Verbose")
	if err := line.checkEOL(); err != nil {
		return false, err
	}
	return false, env.config(func(cfg *config.Config) error {
		cfg.SetVerbose(!cfg.Verbose())
		if cfg.Verbose() {
			env.println("Verbose: ON")
		} else {
			env.println("Verbose: OFF")
		}
		return nil
	})
}

// Data line. A controller sends it to the addressed device, reading the
// reply as auto mode asks. A device queues it for the controller.
func (env *Env) data(msg []byte) error {
	autoMode := uint8(config.AutoOff)
	controller := false
	err := env.Core.Do(func(bus *gpib.Bus) error {
		if !bus.IsController() {
			return nil
		}
		controller = true
		autoMode = bus.Config().AutoMode()
		return bus.Write(msg)
	})
	if err != nil {
		return err
	}
	if !controller {
		env.Core.Queue(msg)
		return nil
	}

	switch autoMode {
	case config.AutoPrologix:
		return env.readReply(gpib.ReceiveOptions{})
	case config.AutoOnQuery:
		if bytes.HasSuffix(bytes.TrimSpace(msg), []byte("?")) {
			return env.readReply(gpib.ReceiveOptions{})
		}
	case config.AutoContinuous:
		for {
			if err := env.readReply(gpib.ReceiveOptions{}); err != nil {
				if errors.Is(err, gpib.ErrBreak) {
					return nil
				}
				return err
			}
		}
	}
	return nil
}
