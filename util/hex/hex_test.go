/*
 * GPIB488 - Hex formatting tests
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

import (
	"strings"
	"testing"
)

func TestRow(t *testing.T) {
	tests := []struct {
		addr int
		data []byte
		want string
	}{
		{0, []byte{0x00, 0xff, 0x3a}, "000: 00 ff 3a"},
		{0x1f0, nil, "1f0:"},
		{0x010, make([]byte, 20), "010:" + strings.Repeat(" 00", RowSize)},
	}
	for _, test := range tests {
		if got := Row(test.addr, test.data); got != test.want {
			t.Errorf("Row %03x gave %q expected %q", test.addr, got, test.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	var str strings.Builder
	FormatBytes(&str, false, []byte{0xde, 0xad})
	FormatByte(&str, 0x01)
	if str.String() != "dead01" {
		t.Errorf("Formatted %q", str.String())
	}
}
