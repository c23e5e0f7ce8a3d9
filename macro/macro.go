/*
 * GPIB488 - Lua command macros
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

package macro

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/bus/gpib"
	"github.com/rcornwell/gpib488/command/parser"
	"github.com/rcornwell/gpib488/util/debug"
)

var ErrNoMacro = errors.New("macro not defined")

const debugRun = 1 << iota

var debugMsk = debug.Register("MACRO", map[string]int{
	"RUN": debugRun,
})

// Longest sleep a macro may ask for.
const maxSleep = 10 * time.Second

// Engine runs numbered Lua scripts against a command environment.
type Engine struct {
	files map[int]string // Macro number to script file.
	env   *parser.Env    // Where commands run.
}

// Create engine for files, running against env.
func New(files map[int]string, env *parser.Env) *Engine {
	return &Engine{files: files, env: env}
}

// List returns the defined macro numbers in order.
func (eng *Engine) List() []int {
	list := make([]int, 0, len(eng.files))
	for n := range eng.files {
		list = append(list, n)
	}
	slices.Sort(list)
	return list
}

// Run macro n, writing anything it prints to out.
func (eng *Engine) Run(n int, out io.Writer) error {
	name, ok := eng.files[n]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoMacro, n)
	}
	debugMsk.Debugf(debugRun, "run macro %d from %s", n, name)

	// Macros can not run other macros.
	env := *eng.env
	env.Out = out
	env.Macros = nil

	L := lua.NewState()
	defer L.Close()
	register(L, &env)
	if err := L.DoFile(name); err != nil {
		slog.Debug("Macro failed", "macro", n, "error", err.Error())
		return fmt.Errorf("macro %d: %w", n, err)
	}
	return nil
}

// Install the gpib table and print.
func register(L *lua.LState, env *parser.Env) {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"cmd":   func(L *lua.LState) int { return luaCmd(L, env) },
		"write": func(L *lua.LState) int { return luaWrite(L, env) },
		"read":  func(L *lua.LState) int { return luaRead(L, env) },
		"query": func(L *lua.LState) int { return luaQuery(L, env) },
		"spoll": func(L *lua.LState) int { return luaSpoll(L, env) },
		"sleep": luaSleep,
	})
	L.SetGlobal("gpib", tbl)
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int { return luaPrint(L, env) }))
}

// gpib.cmd("++command") runs an interface command, the ++ is optional.
func luaCmd(L *lua.LState, env *parser.Env) int {
	line := L.CheckString(1)
	if !strings.HasPrefix(line, "++") {
		line = "++" + line
	}
	if _, err := parser.ProcessLine(line, env); err != nil {
		L.RaiseError("%s: %s", line, err.Error())
	}
	return 0
}

func write(env *parser.Env, data string) error {
	return env.Core.Do(func(bus *gpib.Bus) error {
		return bus.Write([]byte(data))
	})
}

func read(env *parser.Env) (string, error) {
	var buf bytes.Buffer
	err := env.Core.Do(func(bus *gpib.Bus) error {
		_, err := bus.Receive(&buf, gpib.ReceiveOptions{})
		return err
	})
	return buf.String(), err
}

// gpib.write(data) sends data to the addressed device.
func luaWrite(L *lua.LState, env *parser.Env) int {
	if err := write(env, L.CheckString(1)); err != nil {
		L.RaiseError("write: %s", err.Error())
	}
	return 0
}

// gpib.read() returns one message from the addressed device.
func luaRead(L *lua.LState, env *parser.Env) int {
	reply, err := read(env)
	if err != nil {
		L.RaiseError("read: %s", err.Error())
	}
	L.Push(lua.LString(reply))
	return 1
}

// gpib.query(data) writes then reads.
func luaQuery(L *lua.LState, env *parser.Env) int {
	if err := write(env, L.CheckString(1)); err != nil {
		L.RaiseError("query: %s", err.Error())
	}
	return luaRead(L, env)
}

// gpib.spoll([addr]) returns the status byte of addr or the addressed device.
func luaSpoll(L *lua.LState, env *parser.Env) int {
	addr := L.OptInt(1, -1)
	if addr > config.MaxAddr {
		L.ArgError(1, "address out of range")
	}
	var status uint8
	err := env.Core.Do(func(bus *gpib.Bus) error {
		pad := bus.Config().PrimaryAddr()
		if addr >= 0 {
			pad = uint8(addr)
		}
		var err error
		status, err = bus.SerialPoll(pad)
		return err
	})
	if err != nil {
		L.RaiseError("spoll: %s", err.Error())
	}
	L.Push(lua.LNumber(status))
	return 1
}

// gpib.sleep(ms)
func luaSleep(L *lua.LState) int {
	d := time.Duration(L.CheckInt(1)) * time.Millisecond
	if d < 0 || d > maxSleep {
		L.ArgError(1, "sleep out of range")
	}
	time.Sleep(d)
	return 0
}

// print writes its arguments to the macro output, one line per call.
func luaPrint(L *lua.LState, env *parser.Env) int {
	var parts []string
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	_, _ = io.WriteString(env.Out, strings.Join(parts, "\t")+"\r\n")
	return 0
}
