/*
 * GPIB488 - Hex formatting
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

package hex

import "strings"

var hexMap = "0123456789abcdef"

// Bytes shown on one dump row.
const RowSize = 16

// FormatByte adds data as two hex digits.
func FormatByte(str *strings.Builder, data byte) {
	str.WriteByte(hexMap[(data>>4)&0xf])
	str.WriteByte(hexMap[data&0xf])
}

// FormatBytes adds data as hex, with a space before each byte when space
// is set.
func FormatBytes(str *strings.Builder, space bool, data []uint8) {
	for _, by := range data {
		if space {
			str.WriteByte(' ')
		}
		FormatByte(str, by)
	}
}

// FormatAddr adds a three digit offset followed by a colon.
func FormatAddr(str *strings.Builder, addr int) {
	str.WriteByte(hexMap[(addr>>8)&0xf])
	str.WriteByte(hexMap[(addr>>4)&0xf])
	str.WriteByte(hexMap[addr&0xf])
	str.WriteByte(':')
}

// Row formats one dump row of up to RowSize bytes starting at offset addr.
func Row(addr int, data []byte) string {
	var str strings.Builder
	if len(data) > RowSize {
		data = data[:RowSize]
	}
	FormatAddr(&str, addr)
	FormatBytes(&str, true, data)
	return str.String()
}
