/*
 * GPIB488 - Command completion functions
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
	"slices"
	"strings"
	"unicode"

	"github.com/rcornwell/gpib488/command/command"
)

// Called to complete a command line, during line editing. Only ++ commands
// valid for role are offered, data lines are never completed.
func CompleteCmd(commandLine string, role int) []string {
	rest, ok := strings.CutPrefix(commandLine, prefix)
	if !ok {
		if strings.HasPrefix(prefix, commandLine) {
			return []string{prefix}
		}
		return nil
	}
	line := cmdLine{line: rest}
	name := line.getWord()

	// We have a command, let it try and complete its arguments.
	if line.pos < len(line.line) || strings.HasSuffix(rest, " ") {
		match := matchList(name)
		if len(match) != 1 || match[0].Valid&role == 0 || match[0].Complete == nil {
			return nil
		}
		var matches []string
		for _, m := range match[0].Complete(&line, role) {
			matches = append(matches, prefix+m)
		}
		return matches
	}

	// Try and match one command.
	var matches []string
	for _, m := range cmdList {
		if m.Valid&role != 0 && strings.HasPrefix(m.Name, name) {
			matches = append(matches, prefix+m.Name)
		}
	}
	slices.Sort(matches)
	return matches
}

// Completer for a command taking one keyword from list.
func keywordComplete(list []command.Options) func(*cmdLine, int) []string {
	return func(line *cmdLine, role int) []string {
		leading := strings.TrimRightFunc(line.line[:line.pos], unicode.IsSpace) + " "
		line.skipSpace()
		word := strings.TrimSpace(line.line[line.pos:])
		if strings.ContainsFunc(word, unicode.IsSpace) {
			return nil
		}
		var matches []string
		for _, name := range command.Complete(word, list, role) {
			matches = append(matches, leading+name)
		}
		return matches
	}
}

// Help completes command names.
func helpComplete(line *cmdLine, role int) []string {
	leading := strings.TrimRightFunc(line.line[:line.pos], unicode.IsSpace) + " "
	line.skipSpace()
	word := strings.ToLower(strings.TrimSpace(line.line[line.pos:]))
	var matches []string
	for _, m := range cmdList {
		if m.Valid&role != 0 && strings.HasPrefix(m.Name, word) {
			matches = append(matches, leading+m.Name)
		}
	}
	slices.Sort(matches)
	return matches
}

// Complete line for the current role of env.
func (env *Env) Complete(line string) []string {
	role, err := env.role()
	if err != nil {
		return nil
	}
	return CompleteCmd(line, role)
}
