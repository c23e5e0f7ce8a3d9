/*
 * GPIB488 - Debug message support
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

package debug

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	config "github.com/rcornwell/gpib488/config/configparser"
)

// Module is a named set of debug flags.
type Module struct {
	name    string
	options map[string]int
	mask    atomic.Int64
}

var (
	mu      sync.Mutex
	logFile io.Writer
	modules = map[string]*Module{}
)

var ErrOption = errors.New("unknown debug option")

// Register a module and the flags it can enable. Registering a name twice
// returns the first module.
func Register(name string, options map[string]int) *Module {
	mu.Lock()
	defer mu.Unlock()
	name = strings.ToUpper(name)
	if mod, ok := modules[name]; ok {
		return mod
	}
	mod := &Module{name: name, options: options}
	modules[name] = mod
	return mod
}

// Enable one flag of a module, ALL enables every flag.
func Enable(module string, option string) error {
	mu.Lock()
	mod, ok := modules[strings.ToUpper(module)]
	mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no module %s", ErrOption, module)
	}
	return mod.Enable(option)
}

// Names of registered modules, sorted.
func Modules() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Enable one flag, ALL enables every flag.
func (m *Module) Enable(option string) error {
	option = strings.ToUpper(option)
	if option == "ALL" {
		all := 0
		for _, flag := range m.options {
			all |= flag
		}
		m.mask.Store(int64(all))
		return nil
	}
	flag, ok := m.options[option]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrOption, m.name, option)
	}
	for {
		old := m.mask.Load()
		if m.mask.CompareAndSwap(old, old|int64(flag)) {
			return nil
		}
	}
}

// Turn off all flags.
func (m *Module) Clear() {
	m.mask.Store(0)
}

func (m *Module) Enabled(level int) bool {
	return m.mask.Load()&int64(level) != 0
}

// Generic debug message.
func (m *Module) Debugf(level int, format string, a ...any) {
	if m.Enabled(level) {
		write(m.name+": "+format+"\n", a...)
	}
}

// Debug message for the device at a bus address.
func (m *Module) DebugAddrf(addr int, level int, format string, a ...any) {
	if m.Enabled(level) {
		write(m.name+" "+strconv.Itoa(addr)+": "+format+"\n", a...)
	}
}

func write(format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		fmt.Fprintf(logFile, format, a...)
	}
}

// Send debug output to w, nil discards it.
func SetOutput(w io.Writer) {
	mu.Lock()
	logFile = w
	mu.Unlock()
}

// register debug file on initialize.
func init() {
	config.RegisterFile("DEBUGFILE", create)
}

// Create the debug file.
func create(_ int, fileName string, _ []config.Option) error {
	mu.Lock()
	defer mu.Unlock()
	if f, ok := logFile.(*os.File); ok && f != nil {
		return fmt.Errorf("can't have more then one debug file, previous: %s", f.Name())
	}

	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("unable to create debug file: %s: %w", fileName, err)
	}

	logFile = file
	return nil
}
