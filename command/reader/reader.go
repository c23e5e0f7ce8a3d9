/*
 * GPIB488 - Command reader
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

package reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/rcornwell/gpib488/command/parser"
)

const prompt = "gpib> "

// ConsoleReader runs lines typed on the console until quit or end of input.
// When standard input is not a terminal lines are read without editing.
func ConsoleReader(env *parser.Env) error {
	if !Interactive() {
		return Run(os.Stdin, env)
	}

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(env.Complete)

	for {
		text, err := line.Prompt(prompt)
		if err == nil {
			line.AppendHistory(text)
			if execute(text, env) {
				return nil
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		slog.Error("error reading line: " + err.Error())
		return err
	}
}

// Interactive reports whether standard input is a terminal.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Run executes every line of r.
func Run(r io.Reader, env *parser.Env) error {
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		if execute(scan.Text(), env) {
			return nil
		}
	}
	return scan.Err()
}

// Process one line, reporting errors to the output. Returns true on quit.
func execute(text string, env *parser.Env) bool {
	quit, err := parser.ProcessLine(text, env)
	if err != nil {
		_, _ = fmt.Fprintf(env.Out, "Error: %s\r\n", err.Error())
	}
	return quit
}
