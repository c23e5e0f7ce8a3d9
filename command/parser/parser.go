/*
 * GPIB488 - Command line parser
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
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/gpib"
	"github.com/rcornwell/gpib488/command/command"
	"github.com/rcornwell/gpib488/config/store"
	"github.com/rcornwell/gpib488/session"
)

// Version reported by ++ver.
const Version = "GPIB488 GPIB controller, ver. 1.0"

// Lines starting with this are commands to the interface.
const prefix = "++"

var (
	ErrCommand = errors.New("unrecognized command")
	ErrRole    = errors.New("command not available in this mode")
	ErrArg     = errors.New("invalid argument")
	ErrNoStore = errors.New("no configuration store")
)

// Macros runs numbered command scripts.
type Macros interface {
	List() []int
	Run(n int, out io.Writer) error
}

// Env is what a command line runs against.
type Env struct {
	Core    *session.Core
	Out     io.Writer
	Store   *store.Store   // May be nil.
	Initial *config.Config // Restored by ++rst, defaults when nil.
	Macros  Macros         // May be nil.
}

type cmd struct {
	Name     string // Command name.
	Min      int    // Minimum match size.
	Valid    int    // Roles command is valid in.
	Args     string // Argument summary for help.
	Help     string // One line description.
	Process  func(*cmdLine, *Env) (bool, error)
	Complete func(*cmdLine, int) []string
}

type cmdLine struct {
	line string // Current command.
	pos  int    // Position in line.
}

// ProcessLine runs one line of input. Lines starting with ++ are commands,
// anything else is data for the bus. Returns true when the session should
// end.
func ProcessLine(text string, env *Env) (bool, error) {
	text = strings.TrimRight(text, "\r\n")
	if rest, ok := strings.CutPrefix(text, prefix); ok {
		return ProcessCommand(rest, env)
	}
	if text == "" {
		return false, nil
	}
	return false, env.data([]byte(text))
}

// Execute the command line given, without the leading ++.
func ProcessCommand(commandLine string, env *Env) (bool, error) {
	line := cmdLine{line: commandLine}
	name := line.getWord()
	if name == "" {
		return false, nil
	}

	match := matchList(name)
	if len(match) == 0 {
		return false, fmt.Errorf("%w: %s", ErrCommand, name)
	}

	if len(match) > 1 {
		return false, fmt.Errorf("%w: %s is not unique", ErrCommand, name)
	}

	role, err := env.role()
	if err != nil {
		return false, err
	}
	if match[0].Valid&role == 0 {
		return false, fmt.Errorf("%w: %s", ErrRole, match[0].Name)
	}
	return match[0].Process(&line, env)
}

// Check if command matches at least to minimum length.
func matchCommand(match cmd, command string) bool {
	if len(command) > len(match.Name) {
		return false
	}
	l := 0
	for l = range len(command) {
		if match.Name[l] != command[l] {
			return false
		}
	}
	return (l + 1) >= match.Min
}

// Check if command matches one of the commands.
func matchList(command string) []cmd {
	// If command empty just return.
	if command == "" {
		return []cmd{}
	}

	// An exact match wins over longer names.
	var match []cmd
	for _, m := range cmdList {
		if m.Name == command {
			return []cmd{m}
		}
		if matchCommand(m, command) {
			match = append(match, m)
		}
	}
	return match
}

// Current role as a command.Valid flag.
func (env *Env) role() (int, error) {
	role := command.ValidDevice
	err := env.Core.Do(func(bus *gpib.Bus) error {
		if bus.IsController() {
			role = command.ValidController
		}
		return nil
	})
	return role, err
}

// Write one line of output.
func (env *Env) println(text string) {
	_, _ = io.WriteString(env.Out, text+"\r\n")
}

// Show a setting, with its name in verbose mode.
func (env *Env) show(cfg *config.Config, name string, value any) {
	if cfg.Verbose() {
		env.println(fmt.Sprintf("%s: %v", name, value))
		return
	}
	env.println(fmt.Sprint(value))
}

// Skip forward over line until none whitespace character found.
func (line *cmdLine) skipSpace() {
	for {
		if line.pos >= len(line.line) {
			return
		}
		if unicode.IsSpace(rune(line.line[line.pos])) {
			line.pos++
			continue
		}
		return
	}
}

// Check if at end of line.
func (line *cmdLine) isEOL() bool {
	if line.pos >= len(line.line) {
		return true
	}

	if line.line[line.pos] == '#' {
		return true
	}
	return false
}

// Return current character and advance to next.
func (line *cmdLine) getCurrent() byte {
	if line.isEOL() {
		return 0
	}
	by := line.line[line.pos]
	line.pos++
	return by
}

// Parse a decimal number.
func (line *cmdLine) getNumber() (int, error) {
	line.skipSpace()

	// Check if end of line.
	if line.isEOL() {
		return 0, errors.New("not a number")
	}

	pos := line.pos
	value := 0
	by := line.getCurrent()
	for by != 0 {
		if !unicode.IsDigit(rune(by)) {
			line.pos = pos
			return 0, errors.New("not a number")
		}
		value = (value * 10) + int(by-'0')
		if value > 1_000_000_000 {
			line.pos = pos
			return 0, errors.New("number too large")
		}
		by = line.getCurrent()
		if by != 0 && unicode.IsSpace(rune(by)) {
			break
		}
	}

	return value, nil
}

// Optional number in low to high. Present is false at end of line.
func (line *cmdLine) getRange(low int, high int) (int, bool, error) {
	line.skipSpace()
	if line.isEOL() {
		return 0, false, nil
	}
	value, err := line.getNumber()
	if err != nil {
		return 0, true, fmt.Errorf("%w: %w", ErrArg, err)
	}
	if value < low || value > high {
		return 0, true, fmt.Errorf("%w: %d not in %d..%d", ErrArg, value, low, high)
	}
	return value, true, nil
}

// Parse a command or keyword. Letters first, then letters, digits or
// underscore.
func (line *cmdLine) getWord() string {
	line.skipSpace()

	value := ""
	pos := line.pos
	by := line.getCurrent()
	for by != 0 {
		ok := unicode.IsLetter(rune(by)) ||
			(value != "" && (unicode.IsDigit(rune(by)) || by == '_'))
		if !ok {
			line.pos = pos
			return ""
		}
		value += string([]byte{by})
		by = line.getCurrent()
		if by != 0 && unicode.IsSpace(rune(by)) {
			break
		}
	}

	return strings.ToLower(value)
}

// Rest of line with surrounding space removed, comments included.
func (line *cmdLine) getRest() string {
	line.skipSpace()
	if line.pos >= len(line.line) {
		return ""
	}
	rest := strings.TrimSpace(line.line[line.pos:])
	line.pos = len(line.line)
	return rest
}

// Parse string that is "string" or just string.
func (line *cmdLine) parseQuoteString() (string, bool) {
	line.skipSpace()
	inQuote := false
	value := ""

	// If quote, set we are in quoted string
	by := line.getCurrent()
	if by == 0 {
		return "", false
	}

	if by == '"' {
		inQuote = true
		by = line.getCurrent()
	}

	for by != 0 {
		// If processing a quoted string "" gets replaced by single quote
		if by == '"' && inQuote {
			by = line.getCurrent()
			// Single quote terminates string.
			if by != '"' {
				return value, true
			}
		}

		// Space terminates a no quoted string.
		if !inQuote && unicode.IsSpace(rune(by)) {
			return value, true
		}

		value += string(by)
		by = line.getCurrent()
	}
	return value, !inQuote
}

// Keyword from list valid for role, nil at end of line.
func (line *cmdLine) getKeyword(list []command.Options, role int) (*command.Options, error) {
	line.skipSpace()
	if line.isEOL() {
		return nil, nil
	}
	word := line.getWord()
	opt := command.Match(word, list, role)
	if opt == nil {
		return nil, fmt.Errorf("%w: %s", ErrArg, word)
	}
	return opt, nil
}

// Error if anything but a comment is left on the line.
func (line *cmdLine) checkEOL() error {
	line.skipSpace()
	if !line.isEOL() {
		return fmt.Errorf("%w: %s", ErrArg, strings.TrimSpace(line.line[line.pos:]))
	}
	return nil
}
