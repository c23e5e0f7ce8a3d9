/*
 * GPIB488 - Bus configuration file item tests
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

package busconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rcornwell/gpib488/bus/config"
	cfgparser "github.com/rcornwell/gpib488/config/configparser"
)

const sample = `# Bench adapter
MODE device
ADDR 7 secondary=0x61
TIMEOUT 2500
EOI on
EOS 3
EOR 7
EOT 0x2a
STATUS 0x10
AUTO 2
VERSION "bench adapter 1.0"
IDN 2 name=bench serial=1234
SIMULATE 5 idn="ACME,DMM,0,1"
SIMULATE 9 status=0x40
TELNET 2323
MONITOR "localhost:8088"
MACRO 1 file="scan.lua"
EEPROM /var/lib/gpib/eeprom.bin
DEBUG gpib CMD,DATA
VERBOSE
`

func TestParseSample(t *testing.T) {
	set, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	bus := set.Bus
	if bus.Mode() != config.Device || bus.PrimaryAddr() != 7 || bus.SecondaryAddr() != 0x61 {
		t.Errorf("Address: %v %d %02x", bus.Mode(), bus.PrimaryAddr(), bus.SecondaryAddr())
	}
	if bus.ReadTimeout() != 2500 || !bus.EOI() || bus.EOS() != 3 || bus.EOR() != 7 {
		t.Errorf("Transfer: %d %v %d %d", bus.ReadTimeout(), bus.EOI(), bus.EOS(), bus.EOR())
	}
	if !bus.EOTEnable() || bus.EOTChar() != '*' || bus.Status() != 0x10 || bus.AutoMode() != 2 {
		t.Errorf("EOT %v %02x status %02x auto %d", bus.EOTEnable(), bus.EOTChar(), bus.Status(), bus.AutoMode())
	}
	if bus.VersionString() != "bench adapter 1.0" || !bus.Verbose() {
		t.Errorf("Version %q verbose %v", bus.VersionString(), bus.Verbose())
	}
	if bus.IDN() != config.IDNNameSerial || bus.ShortName() != "bench" || bus.Serial() != 1234 {
		t.Errorf("IDN %d %q %d", bus.IDN(), bus.ShortName(), bus.Serial())
	}
	if len(set.Simulate) != 2 || set.Simulate[0].IDN != "ACME,DMM,0,1" || set.Simulate[1].Status != 0x40 {
		t.Errorf("Instruments: %+v", set.Simulate)
	}
	if set.TelnetPort != ":2323" || set.MonitorPort != "localhost:8088" {
		t.Errorf("Ports: %q %q", set.TelnetPort, set.MonitorPort)
	}
	if set.Macros[1] != "scan.lua" || set.EEPROM != "/var/lib/gpib/eeprom.bin" {
		t.Errorf("Macros %v eeprom %q", set.Macros, set.EEPROM)
	}
	if !set.Simulated() {
		t.Errorf("No layout but not simulated")
	}
	if strings.Join(set.debug["GPIB"], ",") != "CMD,DATA" {
		t.Errorf("Debug flags: %v", set.debug)
	}
}

func TestDefaults(t *testing.T) {
	set, err := Parse(strings.NewReader("# nothing\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if set.Bus.Mode() != config.Controller || set.Bus.ReadTimeout() != 1200 {
		t.Errorf("Defaults changed: %v %d", set.Bus.Mode(), set.Bus.ReadTimeout())
	}
	if set.TelnetPort != "" || len(set.Simulate) != 0 || len(set.Macros) != 0 {
		t.Errorf("Unexpected settings: %+v", set)
	}
}

func TestLayout(t *testing.T) {
	set, err := Parse(strings.NewReader("LAYOUT custom DIO1=GPIO5 atn=GPIO12\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if set.Simulated() || set.Layout.Data[0] != "GPIO5" || set.Layout.Control[7] != "GPIO12" {
		t.Errorf("Layout: %+v", set.Layout)
	}
	set, err = Parse(strings.NewReader("LAYOUT default\n"))
	if err != nil || set.Layout == nil || set.Layout.Data[1] != "GPIO19" {
		t.Errorf("Default layout: %v %+v", err, set)
	}
}

func TestEOTOff(t *testing.T) {
	set, err := Parse(strings.NewReader("EOT 13\nEOT off\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if set.Bus.EOTEnable() || set.Bus.EOTChar() != 13 {
		t.Errorf("EOT %v %d", set.Bus.EOTEnable(), set.Bus.EOTChar())
	}
}

func TestBadValues(t *testing.T) {
	tests := []struct {
		text string
		err  error
	}{
		{"MODE listener", ErrValue},
		{"TIMEOUT 40000", config.ErrRange},
		{"TIMEOUT soon", ErrValue},
		{"EOI maybe", ErrValue},
		{"EOS 4", config.ErrRange},
		{"EOR 8", config.ErrRange},
		{"EOT 300", ErrValue},
		{"STATUS 256", ErrValue},
		{"ADDR 3 tertiary=1", ErrValue},
		{"ADDR 3 secondary=0x20", config.ErrRange},
		{"IDN 3", config.ErrRange},
		{"IDN 1 colour=red", ErrValue},
		{"LAYOUT sideways", ErrValue},
		{"LAYOUT default DIO1=GPIO5", ErrValue},
		{"SIMULATE 4 volts=3", ErrValue},
		{"SIMULATE 4\nSIMULATE 4", ErrValue},
		{"TELNET localhost", ErrValue},
		{`MACRO 12 file="a.lua"`, ErrValue},
		{"MACRO 2", ErrValue},
		{"ADDR 31", cfgparser.ErrSyntax},
	}
	for _, test := range tests {
		if _, err := Parse(strings.NewReader(test.text + "\n")); !errors.Is(err, test.err) {
			t.Errorf("%q gave: %v", test.text, err)
		}
	}
}

func TestDebugModule(t *testing.T) {
	if _, err := Parse(strings.NewReader("DEBUG nosuch ALL\n")); err == nil {
		t.Errorf("Unknown debug module accepted")
	}
	if _, err := Parse(strings.NewReader("DEBUG session DATA\n")); err != nil {
		t.Errorf("Debug session failed: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "gpib.cfg")
	if err := os.WriteFile(name, []byte("ADDR 12\nTELNET 4000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := Load(name)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if set.Bus.PrimaryAddr() != 12 || set.TelnetPort != ":4000" {
		t.Errorf("Loaded: %d %q", set.Bus.PrimaryAddr(), set.TelnetPort)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.cfg")); err == nil {
		t.Errorf("Missing file loaded")
	}
}
