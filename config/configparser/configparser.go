/*
 * GPIB488 - Configuration file parser
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

package configparser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Passed to create routines when the first value is not a bus address.
const NoAddr = -1

// Highest primary address on the bus.
const maxAddr = 30

var (
	ErrUnknown = errors.New("unknown configuration item")
	ErrSyntax  = errors.New("configuration syntax error")
)

// List of options to pass to create routine.
type Option struct {
	Name     string    // Name of option.
	EqualOpt string    // Value of string after =.
	Value    []*string // Value of option.
}

// Item name at start of line.
type modelName struct {
	model string // Name of item.
}

// Value following item name.
type FirstOption struct {
	addr   int    // Bus address when value is a number.
	isAddr bool   // Valid address in addr.
	value  string // String value of option.
}

// Callback for one configuration line.
type CreateFunc func(addr int, value string, options []Option) error

// Current option line being parsed.
type optionLine struct {
	line   string // Current option line.
	pos    int    // Current position in line.
	number int    // Line number in file.
}

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <line> := <model> <whitespace> <address> <whitespace> <options> |
 *            <option> <whitespace> <quoteopt> |
 *            <file> <whitespace> <path>
 * <model> := <string>
 * <address> ::= <number> (0 to 30)
 * <path> ::= '"' *(<any>) '"' | *(<not whitespace>)
 * <options> ::= *(<option> *(<whitespace>))
 * <option> ::= *<value> (<whitespace> | <eol>
 * <value> ::= <opt> *(',' *(<whitespace>) <string>
 * <opt> := <valueopt> | <string>
 * <commaopt> ::= ',' *(<whitespace>) <string>
 * <optstring> ::= <string>
 * <optvalue> ::= <string>' =' <quoteopt>
 * <quoteopt> ::= <string> | '"' *(<letter> | <whitespace>) '"'
 * <string> ::= *(<letter> | <number>)
 */

const (
	TypeModel   = 1 + iota // Item at a bus address.
	TypeOption             // Accepts a option parameter.
	TypeOptions            // Accepts a list of options.
	TypeSwitch             // Option only used to set a flag.
	TypeFile               // Accepts a file name.
)

// Item creation list.
type modelDef struct {
	create CreateFunc
	ty     int
}

var models = map[string]modelDef{}

// Return type of model or 0 if no model.
func getModel(mod string) int {
	model, ok := models[mod]
	if !ok {
		return 0
	}
	return model.ty
}

func register(mod string, ty int, fn CreateFunc) {
	mod = strings.ToUpper(mod)
	slog.Debug("Registering configuration item", "name", mod, "type", ty)
	models[mod] = modelDef{create: fn, ty: ty}
}

// Register should be called from init functions.
func RegisterModel(mod string, ty int, fn CreateFunc) {
	register(mod, ty, fn)
}

// Register should be called from init functions.
func RegisterSwitch(mod string, fn CreateFunc) {
	register(mod, TypeSwitch, fn)
}

// Register should be called from init functions.
func RegisterOption(mod string, fn CreateFunc) {
	register(mod, TypeOption, fn)
}

// Register an item that takes a file name.
func RegisterFile(mod string, fn CreateFunc) {
	register(mod, TypeFile, fn)
}

// Look up a registered item of type ty.
func lookup(mod string, ty int, kind string) (modelDef, error) {
	mod = strings.ToUpper(mod)
	model, ok := models[mod]
	if !ok {
		return model, fmt.Errorf("%w: %s", ErrUnknown, mod)
	}
	if model.ty != ty {
		return model, fmt.Errorf("%w: %s not a %s", ErrUnknown, mod, kind)
	}
	return model, nil
}

func (first *FirstOption) address() int {
	if first.isAddr {
		return first.addr
	}
	return NoAddr
}

// Create a device of type model.
func createModel(mod string, first *FirstOption, options []Option) error {
	model, err := lookup(mod, TypeModel, "device")
	if err != nil {
		return err
	}
	return model.create(first.addr, "", options)
}

// Create a option with one parameter.
func createOption(mod string, first *FirstOption) error {
	model, err := lookup(mod, TypeOption, "option")
	if err != nil {
		return err
	}
	return model.create(first.address(), first.value, []Option{})
}

// Create a option with options.
func createOptions(mod string, first *FirstOption, options []Option) error {
	model, err := lookup(mod, TypeOptions, "options item")
	if err != nil {
		return err
	}
	return model.create(first.address(), first.value, options)
}

// Create switch option.
func createSwitch(mod string) error {
	model, err := lookup(mod, TypeSwitch, "switch")
	if err != nil {
		return err
	}
	return model.create(NoAddr, "", nil)
}

// Create file option.
func createFile(mod string, name string) error {
	model, err := lookup(mod, TypeFile, "file item")
	if err != nil {
		return err
	}
	return model.create(NoAddr, name, nil)
}

// Load in a configuration file.
func LoadConfigFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := Load(file); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Load configuration from reader, stopping at first bad line.
func Load(r io.Reader) error {
	reader := bufio.NewReader(r)
	number := 0
	for {
		var err error

		line := optionLine{}
		line.line, err = reader.ReadString('\n')
		number++
		line.number = number
		if len(line.line) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		err = line.parseLine()
		if err != nil {
			return err
		}
	}
	return nil
}

func (line *optionLine) errorf(format string, a ...any) error {
	return fmt.Errorf("%w: %s, line: %d", ErrSyntax, fmt.Sprintf(format, a...), line.number)
}

// Parse one line from file.
func (line *optionLine) parseLine() error {
	model := line.parseModel()
	if model == nil {
		return nil
	}
	var err error
	switch getModel(model.model) {
	case TypeModel:
		// Get bus address
		first := line.parseFirst()
		if first == nil || !first.isAddr {
			return line.errorf("device %s requires bus address", model.model)
		}
		// Get any remaining options.
		var options []Option
		options, err = line.parseOptions()
		if err != nil {
			return err
		}

		// Try and create the device.
		err = createModel(model.model, first, options)

	case TypeOption:
		first := line.parseFirst()
		line.skipSpace()
		if !line.isEOL() || first == nil {
			return line.errorf("option %s not followed by value", model.model)
		}
		err = createOption(model.model, first)

	case TypeOptions:
		first := line.parseFirst()
		if first == nil {
			return line.errorf("option %s not followed by value", model.model)
		}
		var options []Option
		options, err = line.parseOptions()
		if err != nil {
			return err
		}
		err = createOptions(model.model, first, options)

	case TypeSwitch:
		line.skipSpace()
		if !line.isEOL() {
			return line.errorf("switch %s followed by options", model.model)
		}
		err = createSwitch(model.model)

	case TypeFile:
		name, ok := line.parsePath()
		if !ok {
			return line.errorf("%s requires a file name", model.model)
		}
		err = createFile(model.model, name)

	case 0:
		return fmt.Errorf("%w: %s, line: %d", ErrUnknown, model.model, line.number)
	}
	if err != nil {
		return fmt.Errorf("line %d: %w", line.number, err)
	}
	return nil
}

// Skip forward over line until none whitespace character found.
func (line *optionLine) skipSpace() {
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
func (line *optionLine) isEOL() bool {
	if line.pos >= len(line.line) {
		return true
	}

	if line.line[line.pos] == '#' {
		return true
	}
	return false
}

// Return next letter or digit in line. 0 if EOL or space.
func (line *optionLine) getNext(inQuote bool) byte {
	line.pos++
	if line.isEOL() {
		return 0
	}
	by := line.line[line.pos]
	if unicode.IsLetter(rune(by)) || unicode.IsNumber(rune(by)) || inQuote {
		return by
	}
	return 0
}

// Peek at next character.
func (line *optionLine) getPeek() byte {
	if (line.pos + 1) >= len(line.line) {
		return 0
	}
	return line.line[line.pos+1]
}

// Parse model option.
func (line *optionLine) parseModel() *modelName {
	// Skip leading space
	line.skipSpace()
	// Check if end of line.
	if line.isEOL() {
		return nil
	}

	model := modelName{}

	// Get model name
	for {
		if line.isEOL() {
			break
		}
		by := line.line[line.pos]
		if unicode.IsLetter(rune(by)) || unicode.IsNumber(rune(by)) {
			model.model += string([]byte{by})
			line.pos++
			continue
		}
		break
	}

	model.model = strings.ToUpper(model.model)
	return &model
}

// Parse first option parameter.
func (line *optionLine) parseFirst() *FirstOption {
	// Skip leading space
	line.skipSpace()
	// Check if end of line.
	if line.isEOL() {
		return nil
	}

	// Quoted value is never an address.
	if line.line[line.pos] == '"' {
		end := strings.IndexByte(line.line[line.pos+1:], '"')
		if end < 0 {
			return nil
		}
		value := line.line[line.pos+1 : line.pos+1+end]
		line.pos += end + 2
		return &FirstOption{addr: NoAddr, value: value}
	}

	value := ""
	for {
		if line.isEOL() {
			break
		}
		by := line.line[line.pos]
		if unicode.IsLetter(rune(by)) || unicode.IsNumber(rune(by)) {
			value += string([]byte{by})
			line.pos++
			continue
		}
		break
	}

	option := FirstOption{addr: NoAddr, value: value}

	addr, err := strconv.Atoi(value)
	if err == nil && addr >= 0 && addr <= maxAddr {
		option.addr = addr
		option.isAddr = true
	}
	return &option
}

// Parse a file name, quoted or up to the next space.
func (line *optionLine) parsePath() (string, bool) {
	line.skipSpace()
	if line.isEOL() {
		return "", false
	}
	if line.line[line.pos] == '"' {
		end := strings.IndexByte(line.line[line.pos+1:], '"')
		if end < 0 {
			return "", false
		}
		name := line.line[line.pos+1 : line.pos+1+end]
		line.pos += end + 2
		line.skipSpace()
		return name, name != "" && line.isEOL()
	}
	start := line.pos
	for line.pos < len(line.line) && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	name := line.line[start:line.pos]
	line.skipSpace()
	return name, line.isEOL()
}

// Parse string that is "string" or just string.
func (line *optionLine) parseQuoteString() (string, bool) {
	inQuote := false
	value := ""

	// If quote, set we are in quoted string
	if line.getPeek() == '"' {
		inQuote = true
		_ = line.getNext(true)
	}

	for {
		by := line.getNext(inQuote)
		// If processing a quoted string "" gets replaced by signal quote
		if by == '"' && inQuote {
			by = line.getNext(inQuote)
			if by != '"' {
				// Hit end of string.
				return value, true
			}
		}

		space := unicode.IsSpace(rune(by))
		// Space or comma terminates a no quoted string.
		if !inQuote && (space || by == 0 || by == ',') {
			return value, true
		}

		value += string(by)
		// If we hit end of line, stop processing.
		if line.isEOL() {
			return value, !inQuote
		}
	}
}

// Parse option name.
func (line *optionLine) getName() (string, error) {
	// Check if end of line.
	if line.isEOL() {
		return "", nil
	}

	// First character must be alphabetic.
	by := line.line[line.pos]
	if !unicode.IsLetter(rune(by)) {
		if !line.isEOL() {
			return "", line.errorf("invalid option at %d", line.pos)
		}
		return "", nil
	}
	value := ""

	// Already verified that first character is letter,
	// so grab until not letter or number.
	for {
		value += string([]byte{by})
		by = line.getNext(false)
		if by == 0 {
			break
		}
	}

	return value, nil
}

// Parse options for a line.
func (line *optionLine) parseOption() (*Option, error) {
	// Skip leading space
	line.skipSpace()

	// Grab option name
	value, err := line.getName()
	if value == "" {
		return nil, err
	}

	// Empty option.
	option := Option{Name: value}

	// If at end of line done.
	if line.isEOL() {
		return &option, nil
	}

	// Check if equals option.
	if line.line[line.pos] == '=' {
		v, ok := line.parseQuoteString()
		if ok {
			option.EqualOpt = v
		} else {
			return nil, line.errorf("invalid quoted string at %d", line.pos)
		}
	}

	// Skip any spaces.
	line.skipSpace()

	// Grab all , options
	for !line.isEOL() && line.line[line.pos] == ',' {
		line.pos++ // Skip comma
		// Skip space between , and next option
		line.skipSpace()
		v, err := line.getName()
		if err != nil {
			return nil, err
		}
		if v != "" {
			option.Value = append(option.Value, &v)
		}
		// Skip any trailing spaces.
		line.skipSpace()
	}

	return &option, nil
}

// Collect all options for line.
func (line *optionLine) parseOptions() ([]Option, error) {
	options := []Option{}
	for {
		option, err := line.parseOption()
		if err != nil {
			return nil, err
		}
		if option == nil {
			break
		}
		options = append(options, *option)
	}
	return options, nil
}
