/*
 * GPIB488 - Command descriptions
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

package command

import (
	"slices"
	"strings"
)

// Roles a command or keyword is valid in.
const (
	ValidDevice = 1 << iota
	ValidController
	ValidAll = ValidDevice | ValidController
)

// Type of value that follows a keyword.
const (
	OptionSwitch = 1 + iota // Keyword alone.
	OptionNumber            // Keyword followed by a number.
	OptionName              // Keyword followed by text to end of line.
)

// Keyword accepted after a command.
type Options struct {
	Name        string // Keyword.
	OptionType  int    // Type of value that follows.
	OptionValid int    // Roles keyword is valid in.
}

// Find keyword name in list for role, nil if not there.
func Match(name string, list []Options, role int) *Options {
	name = strings.ToLower(name)
	for i := range list {
		if list[i].OptionValid&role != 0 && list[i].Name == name {
			return &list[i]
		}
	}
	return nil
}

// Keywords of list valid for role that start with prefix, sorted.
func Complete(prefix string, list []Options, role int) []string {
	prefix = strings.ToLower(prefix)
	var names []string
	for _, opt := range list {
		if opt.OptionValid&role != 0 && strings.HasPrefix(opt.Name, prefix) {
			names = append(names, opt.Name)
		}
	}
	slices.Sort(names)
	return names
}
